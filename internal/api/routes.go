// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/grousemap/internal/humastar"
	"github.com/joeblew999/grousemap/internal/inspect"
	"github.com/joeblew999/grousemap/internal/service"
)

// Version is reported by /health and /api/v1/info.
const Version = "0.1.0"

// Services holds the service dependencies for API handlers.
type Services struct {
	Layer     *service.LayerService
	Feature   *service.FeatureService
	Tracker   *service.TrackerService
	Tile      *service.TileService
	Tiler     *service.TilerService
	Source    *service.SourceService
	Inspector *inspect.Inspector
	Bus       *service.EventBus
	View      service.MapView
}

// Types

type IDInput struct {
	ID string `path:"id" doc:"Layer ID" example:"stateForest"`
}

// LayerBody is a layer plus the actions its current state allows.
type LayerBody struct {
	service.Layer
}

// layerActions are the per-layer operations advertised in Link headers.
var layerActions = []humastar.ActionDef[service.Layer]{
	{Rel: "toggle", Path: "/api/v1/layers/{id}/toggle", Method: "POST", TitleFor: func(l service.Layer) string {
		if l.Visible {
			return "Hide layer"
		}
		return "Show layer"
	}},
	{Rel: "opacity", Path: "/api/v1/layers/{id}/opacity", Method: "PUT", Title: "Set opacity"},
	{Rel: "base", Path: "/api/v1/layers/{id}/base", Method: "POST", Title: "Show only this base map",
		When: func(l service.Layer) bool { return l.Kind == service.KindBase }},
	{Rel: "features", Path: "/api/v1/layers/{id}/features", Method: "GET", Title: "List features",
		When: service.Layer.IsVector},
	{Rel: "delete", Path: "/api/v1/layers/{id}", Method: "DELETE", Title: "Delete layer"},
}

// Actions implements humastar.Actor.
func (b LayerBody) Actions() []humastar.Action {
	return humastar.ActionsFor(b.Layer, b.ID, layerActions)
}

type LayerOutput struct {
	Body LayerBody
}

type LayersOutput struct {
	Body []service.Layer
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"0.1.0"`
}

type VisibilityInput struct {
	IDInput
	Body struct {
		Visible bool `json:"visible" doc:"Whether the layer is shown"`
	}
}

type OpacityInput struct {
	IDInput
	Body struct {
		Percent int `json:"percent" doc:"Slider value 0-100; values outside the range are clamped" example:"70"`
	}
}

type FeaturesInput struct {
	IDInput
	Offset int `query:"offset" minimum:"0" default:"0" doc:"Index of the first feature"`
	Limit  int `query:"limit" minimum:"1" maximum:"500" default:"50" doc:"Page size"`
}

type FeaturesOutput struct {
	Body humastar.PageBody[service.FeatureSummary]
}

type SelectBaseOutput struct {
	Body []service.Layer
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterLayers registers layer CRUD and state routes.
func (h *APIHandler) RegisterLayers(api huma.API) {
	huma.Get(api, "/api/v1/layers", h.GetLayers, huma.OperationTags("layers"))
	huma.Post(api, "/api/v1/layers", h.CreateLayer, huma.OperationTags("layers"))
	huma.Get(api, "/api/v1/layers/{id}", h.GetLayer, huma.OperationTags("layers"))
	huma.Put(api, "/api/v1/layers/{id}", h.PutLayer, huma.OperationTags("layers"))
	huma.Delete(api, "/api/v1/layers/{id}", h.DeleteLayer, huma.OperationTags("layers"))

	huma.Post(api, "/api/v1/layers/{id}/toggle", h.ToggleLayer, huma.OperationTags("layers"))
	huma.Put(api, "/api/v1/layers/{id}/visibility", h.PutVisibility, huma.OperationTags("layers"))
	huma.Put(api, "/api/v1/layers/{id}/opacity", h.PutOpacity, huma.OperationTags("layers"))
	huma.Post(api, "/api/v1/layers/{id}/base", h.SelectBase, huma.OperationTags("layers"))
	huma.Get(api, "/api/v1/layers/{id}/features", h.GetFeatures, huma.OperationTags("layers"))
}

// RegisterSources registers source listing routes.
func (h *APIHandler) RegisterSources(api huma.API) {
	huma.Get(api, "/api/v1/sources", h.GetSources, huma.OperationTags("sources"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: Version}}, nil
}

func (h *APIHandler) GetLayers(ctx context.Context, input *struct{}) (*LayersOutput, error) {
	return &LayersOutput{Body: h.svc.Layer.List()}, nil
}

func (h *APIHandler) CreateLayer(ctx context.Context, input *struct{ Body service.Layer }) (*LayerOutput, error) {
	created, err := h.svc.Layer.Create(input.Body)
	if err != nil {
		return nil, layerError(err)
	}
	return &LayerOutput{Body: LayerBody{created}}, nil
}

func (h *APIHandler) GetLayer(ctx context.Context, input *IDInput) (*LayerOutput, error) {
	layer, ok := h.svc.Layer.Get(input.ID)
	if !ok {
		return nil, huma.Error404NotFound("layer not found")
	}
	return &LayerOutput{Body: LayerBody{layer}}, nil
}

func (h *APIHandler) PutLayer(ctx context.Context, input *struct {
	IDInput
	Body service.Layer
}) (*LayerOutput, error) {
	updated, err := h.svc.Layer.Update(input.ID, input.Body)
	if err != nil {
		return nil, layerError(err)
	}
	if h.svc.Feature != nil {
		h.svc.Feature.Invalidate(input.ID)
	}
	return &LayerOutput{Body: LayerBody{updated}}, nil
}

func (h *APIHandler) DeleteLayer(ctx context.Context, input *IDInput) (*struct{ Body MessageBody }, error) {
	if err := h.svc.Layer.Delete(input.ID); err != nil {
		return nil, layerError(err)
	}
	if h.svc.Feature != nil {
		h.svc.Feature.Invalidate(input.ID)
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Layer deleted"}}, nil
}

func (h *APIHandler) ToggleLayer(ctx context.Context, input *IDInput) (*LayerOutput, error) {
	layer, err := h.svc.Layer.Toggle(input.ID)
	if err != nil {
		return nil, layerError(err)
	}
	return &LayerOutput{Body: LayerBody{layer}}, nil
}

func (h *APIHandler) PutVisibility(ctx context.Context, input *VisibilityInput) (*LayerOutput, error) {
	layer, err := h.svc.Layer.SetVisible(input.ID, input.Body.Visible)
	if err != nil {
		return nil, layerError(err)
	}
	return &LayerOutput{Body: LayerBody{layer}}, nil
}

func (h *APIHandler) PutOpacity(ctx context.Context, input *OpacityInput) (*struct{ Body service.OpacityState }, error) {
	state, err := h.svc.Layer.SetOpacity(input.ID, input.Body.Percent)
	if err != nil {
		return nil, layerError(err)
	}
	return &struct{ Body service.OpacityState }{Body: state}, nil
}

func (h *APIHandler) SelectBase(ctx context.Context, input *IDInput) (*SelectBaseOutput, error) {
	changed, err := h.svc.Layer.SelectBase(input.ID)
	if err != nil {
		return nil, layerError(err)
	}
	if changed == nil {
		changed = []service.Layer{}
	}
	return &SelectBaseOutput{Body: changed}, nil
}

func (h *APIHandler) GetFeatures(ctx context.Context, input *FeaturesInput) (*FeaturesOutput, error) {
	layer, ok := h.svc.Layer.Get(input.ID)
	if !ok {
		return nil, huma.Error404NotFound("layer not found")
	}
	if !layer.IsVector() {
		return nil, huma.Error400BadRequest("layer " + layer.ID + " has no features")
	}
	page, total, err := h.svc.Feature.Features(ctx, layer, input.Offset, input.Limit)
	if err != nil {
		return nil, huma.Error502BadGateway("layer data unavailable", err)
	}
	return &FeaturesOutput{Body: humastar.PageBody[service.FeatureSummary]{
		Total:  total,
		Offset: input.Offset,
		Limit:  input.Limit,
		Data:   page,
	}}, nil
}

func (h *APIHandler) GetSources(ctx context.Context, input *struct{}) (*struct{ Body []service.SourceFile }, error) {
	sources, err := h.svc.Source.List()
	if err != nil {
		return &struct{ Body []service.SourceFile }{Body: []service.SourceFile{}}, nil
	}
	return &struct{ Body []service.SourceFile }{Body: sources}, nil
}

// layerError maps catalog errors to HTTP errors.
func layerError(err error) error {
	switch {
	case errors.Is(err, service.ErrLayerNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, service.ErrLayerExists):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, service.ErrInvalidLayer):
		return huma.Error400BadRequest(err.Error())
	default:
		return huma.Error500InternalServerError("saving layer catalog", err)
	}
}
