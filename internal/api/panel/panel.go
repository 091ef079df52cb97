// Package panel contains the Datastar SSE handlers behind the viewer's
// layer panel, popup and location tracker.
package panel

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/grousemap/internal/humastar"
	"github.com/joeblew999/grousemap/internal/inspect"
	"github.com/joeblew999/grousemap/internal/service"
)

// BasePath is where the panel operations are mounted.
const BasePath = "/api/v1/panel"

// Panel serves the viewer's interactive fragments.
type Panel struct {
	humastar.Handler
	layers    *service.LayerService
	tracker   *service.TrackerService
	inspector *inspect.Inspector
	bus       *service.EventBus
}

// New creates the panel handlers. With a nil bus the events stream stays idle.
func New(layers *service.LayerService, tracker *service.TrackerService, inspector *inspect.Inspector, bus *service.EventBus, renderer *humastar.Renderer) *Panel {
	if bus == nil {
		bus = service.NewEventBus()
	}
	return &Panel{
		Handler:   humastar.Handler{Renderer: renderer},
		layers:    layers,
		tracker:   tracker,
		inspector: inspector,
		bus:       bus,
	}
}

// Signals is the initial data-signals of the viewer page.
func Signals() map[string]any {
	return map[string]any{
		"opacity":      0,
		"lon":          0,
		"lat":          0,
		"resolution":   0,
		"popupVisible": false,
		"tracking":     false,
		"gpsLon":       0,
		"gpsLat":       0,
		"gpsAccuracy":  0,
		"gpsCode":      0,
		"gpsMessage":   "",
		"error":        "",
		"success":      "",
	}
}

func (p *Panel) RegisterRoutes(api huma.API) {
	tags := huma.OperationTags(humastar.PanelTag)
	huma.Get(api, BasePath+"/layers", p.Layers, tags)
	huma.Post(api, BasePath+"/layers/{id}/toggle", p.Toggle, tags)
	huma.Post(api, BasePath+"/layers/{id}/opacity", p.Opacity, tags)
	huma.Post(api, BasePath+"/layers/{id}/base", p.Base, tags)
	huma.Post(api, BasePath+"/inspect", p.Inspect, tags)
	huma.Post(api, BasePath+"/position", p.Position, tags)
	huma.Post(api, BasePath+"/position/error", p.PositionError, tags)
	huma.Get(api, BasePath+"/events", p.Events, tags)
}
