package api

import (
	"context"
	"path/filepath"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/grousemap/internal/service"
)

type GenerateTilesBody struct {
	Output  string `json:"output" doc:"Path of the generated archive"`
	TileSet string `json:"tileSet" doc:"Tile set name served under /tiles/{set}" example:"state_parks"`
	Message string `json:"message" doc:"Result message"`
}

// RegisterTiles registers tile set listing and generation routes.
func (h *APIHandler) RegisterTiles(api huma.API) {
	huma.Get(api, "/api/v1/tiles", h.GetTiles, huma.OperationTags("tiles"))
	huma.Post(api, "/api/v1/tiles", h.GenerateTiles, huma.OperationTags("tiles"))
}

func (h *APIHandler) GetTiles(ctx context.Context, input *struct{}) (*struct{ Body []service.TileFile }, error) {
	tiles, err := h.svc.Tile.List()
	if err != nil {
		return &struct{ Body []service.TileFile }{Body: []service.TileFile{}}, nil
	}
	return &struct{ Body []service.TileFile }{Body: tiles}, nil
}

// GenerateTiles tiles a boundary source into a PMTiles archive.
func (h *APIHandler) GenerateTiles(ctx context.Context, input *struct{ Body service.TileGenerateOptions }) (*struct{ Body GenerateTilesBody }, error) {
	if err := h.svc.Tiler.ValidateSourceFile(input.Body.SourceFile); err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	out, err := h.svc.Tiler.Generate(ctx, input.Body, nil)
	if err != nil {
		return nil, huma.Error500InternalServerError("tile generation failed", err)
	}
	name := filepath.Base(out)
	set := name[:len(name)-len(filepath.Ext(name))]
	if h.svc.Bus != nil {
		h.svc.Bus.Publish(service.Event{Resource: service.ResourceTiles, Action: "created", ID: set})
	}
	return &struct{ Body GenerateTilesBody }{Body: GenerateTilesBody{
		Output:  out,
		TileSet: set,
		Message: "Tiles generated: " + name,
	}}, nil
}
