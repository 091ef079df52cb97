package panel

import (
	"context"
	"fmt"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/grousemap/internal/humastar"
	"github.com/joeblew999/grousemap/internal/service"
)

// itemActions are the panel endpoints each layer item posts to.
var itemActions = []humastar.ActionDef[service.Layer]{
	{Rel: "toggle", Path: BasePath + "/layers/{id}/toggle", Method: "POST"},
	{Rel: "opacity", Path: BasePath + "/layers/{id}/opacity", Method: "POST"},
	{Rel: "base", Path: BasePath + "/layers/{id}/base", Method: "POST",
		When: func(l service.Layer) bool { return l.Kind == service.KindBase }},
}

// LayerItem is the data behind one data-layer entry of the panel.
type LayerItem struct {
	service.Layer
	Percent int
	actions []humastar.Action
}

func newLayerItem(l service.Layer) LayerItem {
	return LayerItem{Layer: l, Percent: l.OpacityPercent(), actions: humastar.ActionsFor(l, l.ID, itemActions)}
}

// URL returns the endpoint for an action rel, or "" if there is none.
func (i LayerItem) URL(rel string) string {
	return humastar.Href(i.actions, rel)
}

type IDInput struct {
	ID string `path:"id" doc:"Layer ID" example:"stateForest"`
}

type SignalsIDInput struct {
	IDInput
	humastar.SignalsInput
}

// Layers renders the base and overlay groups of the panel.
func (p *Panel) Layers(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	return p.Stream(func(sse humastar.SSE) {
		p.patchLists(sse)
	}), nil
}

func (p *Panel) patchLists(sse humastar.SSE) {
	var base, overlays []any
	for _, l := range p.layers.List() {
		if l.Kind == service.KindBase {
			base = append(base, newLayerItem(l))
		} else {
			overlays = append(overlays, newLayerItem(l))
		}
	}
	sse.Patch(p.RenderList("layer-item", base, "No base maps", "Add a base layer to the map definition"), "#base-layers")
	sse.Patch(p.RenderList("layer-item", overlays, "No overlays", "Run acquire to download boundary layers"), "#overlay-layers")
}

// Toggle flips one layer and replaces only that layer's item.
func (p *Panel) Toggle(ctx context.Context, input *IDInput) (*huma.StreamResponse, error) {
	return p.Stream(func(sse humastar.SSE) {
		layer, err := p.layers.Toggle(input.ID)
		if err != nil {
			sse.Error(err.Error())
			return
		}
		p.replaceItem(sse, layer)
	}), nil
}

// Opacity applies the opacity signal (0-100) to one layer.
func (p *Panel) Opacity(ctx context.Context, input *SignalsIDInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	return p.Stream(func(sse humastar.SSE) {
		state, err := p.layers.SetOpacity(input.ID, signals.Int("opacity"))
		if err != nil {
			sse.Error(err.Error())
			return
		}
		sse.Patch(state.Label, "#opacity-value-"+input.ID)
		sse.Signals(map[string]any{"opacity_" + input.ID: state.Percent})
		sse.DispatchCustomEvent("layer-changed", map[string]any{
			"id": state.ID, "opacity": state.Opacity,
		})
	}), nil
}

// Base makes one base layer the only visible one.
func (p *Panel) Base(ctx context.Context, input *IDInput) (*huma.StreamResponse, error) {
	return p.Stream(func(sse humastar.SSE) {
		changed, err := p.layers.SelectBase(input.ID)
		if err != nil {
			sse.Error(err.Error())
			return
		}
		for _, l := range changed {
			p.replaceItem(sse, l)
		}
	}), nil
}

func (p *Panel) replaceItem(sse humastar.SSE, l service.Layer) {
	sse.Replace(p.Render("layer-item", newLayerItem(l)), fmt.Sprintf("#layer-%s", l.ID))
	sse.DispatchCustomEvent("layer-changed", map[string]any{
		"id": l.ID, "visible": l.Visible, "opacity": l.Opacity,
	})
}
