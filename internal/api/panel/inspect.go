package panel

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"

	"github.com/joeblew999/grousemap/internal/humastar"
	"github.com/joeblew999/grousemap/internal/inspect"
)

// Inspect fills the popup with the features under the clicked point, or
// hides it when there are none.
func (p *Panel) Inspect(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	pt := orb.Point{signals.Float("lon"), signals.Float("lat")}

	return p.Stream(func(sse humastar.SSE) {
		popup := inspect.BuildPopup(p.inspector.Query(ctx, pt, signals.Float("resolution")))
		if popup.Empty() {
			sse.Signals(map[string]any{"popupVisible": false})
			return
		}
		html, err := inspect.RenderPopup(popup)
		if err != nil {
			sse.Error(err.Error())
			return
		}
		sse.Patch(html, "#popup-content")
		sse.Signals(map[string]any{"popupVisible": true})
	}), nil
}
