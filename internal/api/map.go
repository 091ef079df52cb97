package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"

	"github.com/joeblew999/grousemap/internal/humastar"
	"github.com/joeblew999/grousemap/internal/inspect"
	"github.com/joeblew999/grousemap/internal/service"
)

// MapBody is everything the viewer needs to build its map.
type MapBody struct {
	service.MapView
	Layers []service.Layer `json:"layers" doc:"Layer catalog in draw order"`
}

type InspectInput struct {
	Lon        float64 `query:"lon" minimum:"-180" maximum:"180" required:"true" doc:"Longitude of the click" example:"-80.18"`
	Lat        float64 `query:"lat" minimum:"-90" maximum:"90" required:"true" doc:"Latitude of the click" example:"38.92"`
	Resolution float64 `query:"resolution" minimum:"0" doc:"Map resolution in degrees per pixel, sets the hit tolerance"`
}

// InspectBody is the popup for one click.
type InspectBody struct {
	Visible bool          `json:"visible" doc:"Whether the popup should be shown"`
	Popup   inspect.Popup `json:"popup" doc:"Attribute sections per feature"`
	HTML    string        `json:"html" doc:"Escaped popup HTML"`
}

type PositionErrorInput struct {
	Body struct {
		Code    int    `json:"code" minimum:"0" doc:"Geolocation error code (1 denied, 2 unavailable, 3 timeout)"`
		Message string `json:"message" doc:"Error message"`
	}
}

// RegisterMap registers the map bootstrap, inspector and position routes.
func (h *APIHandler) RegisterMap(api huma.API) {
	huma.Get(api, "/api/v1/map", h.GetMap, huma.OperationTags("map"))
	huma.Get(api, "/api/v1/inspect", h.Inspect, huma.OperationTags("map"))
	huma.Get(api, "/api/v1/position", h.GetPosition, huma.OperationTags("map"))
	huma.Put(api, "/api/v1/position", h.PutPosition, huma.OperationTags("map"))
	huma.Post(api, "/api/v1/position/error", h.PostPositionError, huma.OperationTags("map"))
}

func (h *APIHandler) GetMap(ctx context.Context, input *struct{}) (*struct{ Body MapBody }, error) {
	return &struct{ Body MapBody }{Body: MapBody{
		MapView: h.svc.View,
		Layers:  h.svc.Layer.List(),
	}}, nil
}

func (h *APIHandler) Inspect(ctx context.Context, input *InspectInput) (*struct{ Body InspectBody }, error) {
	popup := inspect.BuildPopup(h.svc.Inspector.Query(ctx, orb.Point{input.Lon, input.Lat}, input.Resolution))
	html, err := inspect.RenderPopup(popup)
	if err != nil {
		return nil, huma.Error500InternalServerError("rendering popup", err)
	}
	return &struct{ Body InspectBody }{Body: InspectBody{
		Visible: !popup.Empty(),
		Popup:   popup,
		HTML:    html,
	}}, nil
}

func (h *APIHandler) GetPosition(ctx context.Context, input *struct{}) (*struct{ Body service.TrackerState }, error) {
	return &struct{ Body service.TrackerState }{Body: h.svc.Tracker.State()}, nil
}

func (h *APIHandler) PutPosition(ctx context.Context, input *struct{ Body service.Position }) (*struct{ Body service.TrackerState }, error) {
	state, err := h.svc.Tracker.Update(input.Body)
	if err != nil {
		if errors.Is(err, service.ErrInvalidPosition) {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		return nil, err
	}
	return &struct{ Body service.TrackerState }{Body: state}, nil
}

func (h *APIHandler) PostPositionError(ctx context.Context, input *PositionErrorInput) (*struct{ Body service.PositionError }, error) {
	e := h.svc.Tracker.Fail(input.Body.Code, input.Body.Message)
	return &struct{ Body service.PositionError }{Body: e}, nil
}

// AddLinks adds the links between viewer resources that do not follow from
// their paths: the map view to what it draws, and the tile listing to the
// tile endpoint template.
func AddLinks(links *humastar.Links) {
	for _, l := range []struct{ from, rel, href string }{
		{"/api/v1/map", "layers", "/api/v1/layers"},
		{"/api/v1/map", "position", "/api/v1/position"},
		{"/api/v1/map", "inspect", "/api/v1/inspect{?lon,lat,resolution}"},
		{"/api/v1/map", "tiles", "/api/v1/tiles"},
		{"/api/v1/map", "viewer", "/viewer"},
		{"/api/v1/inspect", "map", "/api/v1/map"},
		{"/api/v1/position", "map", "/api/v1/map"},
		{"/api/v1/position", "error", "/api/v1/position/error"},
		{"/api/v1/position/error", "position", "/api/v1/position"},
		{"/api/v1/tiles", "tile", "/tiles/{set}/{z}/{x}/{y}"},
		{"/api/v1/tiles", "sources", "/api/v1/sources"},
		{"/api/v1/layers", "map", "/api/v1/map"},
	} {
		links.Add(l.from, l.rel, l.href)
	}
}
