package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/grousemap/internal/regs"
)

// RegsHandler serves the scraped hunting-season table.
type RegsHandler struct {
	regs *regs.Service
}

func NewRegsHandler(r *regs.Service) *RegsHandler {
	return &RegsHandler{regs: r}
}

func (h *RegsHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/regulations", h.GetRegulations, huma.OperationTags("regulations"))
}

type RegulationsInput struct {
	Refresh bool `query:"refresh" doc:"Scrape the season page again instead of using the cache"`
}

func (h *RegsHandler) GetRegulations(ctx context.Context, input *RegulationsInput) (*struct{ Body regs.Regulations }, error) {
	r, err := h.regs.Get(ctx, input.Refresh)
	if err != nil && r.Seasons == nil {
		return nil, huma.Error502BadGateway("season page unavailable", err)
	}
	return &struct{ Body regs.Regulations }{Body: r}, nil
}
