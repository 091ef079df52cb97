package panel

import (
	"context"
	"fmt"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/grousemap/internal/humastar"
	"github.com/joeblew999/grousemap/internal/service"
)

// Position records a device fix from the gps* signals and sends the new
// marker and accuracy shapes to the map.
func (p *Panel) Position(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	pos := service.Position{
		Lon:      signals.Float("gpsLon"),
		Lat:      signals.Float("gpsLat"),
		Accuracy: signals.Float("gpsAccuracy"),
	}
	if signals.Has("gpsHeading") {
		h := signals.Float("gpsHeading")
		pos.Heading = &h
	}
	if signals.Has("gpsSpeed") {
		s := signals.Float("gpsSpeed")
		pos.Speed = &s
	}

	return p.Stream(func(sse humastar.SSE) {
		state, err := p.tracker.Update(pos)
		if err != nil {
			sse.Error(err.Error())
			return
		}
		sse.Signals(map[string]any{"tracking": true, "error": ""})
		dispatchPosition(sse, state)
	}), nil
}

// PositionError surfaces a geolocation failure as the error signal.
func (p *Panel) PositionError(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	return p.Stream(func(sse humastar.SSE) {
		e := p.tracker.Fail(signals.Int("gpsCode"), signals.String("gpsMessage"))
		sse.Error(fmt.Sprintf("Location unavailable: %s", positionErrorText(e)))
	}), nil
}

func dispatchPosition(sse humastar.SSE, state service.TrackerState) {
	sse.DispatchCustomEvent("position-changed", map[string]any{
		"marker":   state.Marker,
		"accuracy": state.Accuracy,
	})
}

// positionErrorText names the W3C geolocation error codes.
func positionErrorText(e service.PositionError) string {
	var reason string
	switch e.Code {
	case 1:
		reason = "permission denied"
	case 2:
		reason = "position unavailable"
	case 3:
		reason = "timed out"
	default:
		reason = "unknown error"
	}
	if e.Message == "" {
		return reason
	}
	return reason + " (" + e.Message + ")"
}
