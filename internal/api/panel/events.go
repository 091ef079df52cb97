package panel

import (
	"context"
	"fmt"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/grousemap/internal/humastar"
	"github.com/joeblew999/grousemap/internal/service"
)

// Events streams bus events to the page so other tabs and REST clients
// show up in the panel.
func (p *Panel) Events(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			sse := humastar.NewSSE(humaCtx)
			ch := p.bus.Subscribe()
			defer p.bus.Unsubscribe(ch)

			done := humaCtx.Context().Done()
			for {
				select {
				case <-done:
					return
				case ev := <-ch:
					p.forward(sse, ev)
				}
			}
		},
	}, nil
}

func (p *Panel) forward(sse humastar.SSE, ev service.Event) {
	switch ev.Resource {
	case service.ResourceLayers:
		switch ev.Action {
		case "created", "deleted":
			p.patchLists(sse)
		default:
			if l, ok := p.layers.Get(ev.ID); ok {
				sse.Replace(p.Render("layer-item", newLayerItem(l)), fmt.Sprintf("#layer-%s", l.ID))
				sse.DispatchCustomEvent("layer-changed", map[string]any{
					"id": l.ID, "visible": l.Visible, "opacity": l.Opacity,
				})
			}
		}
	case service.ResourcePosition:
		state := p.tracker.State()
		if ev.Action == "moved" {
			dispatchPosition(sse, state)
		} else if state.LastError != nil {
			sse.Error(fmt.Sprintf("Location unavailable: %s", positionErrorText(*state.LastError)))
		}
	}
	sse.DispatchCustomEvent("resource-changed", map[string]any{
		"resource": ev.Resource,
		"action":   ev.Action,
		"id":       ev.ID,
	})
}
