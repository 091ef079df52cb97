package service

import (
	"log/slog"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/muesli/gamut"
)

// assignColors fills in missing fill/stroke colors on vector overlays from a
// generated pastel palette. Strokes are a darker shade of the fill.
func assignColors(layers []Layer) {
	var missing []int
	for i, l := range layers {
		if l.Kind == KindOverlay && l.IsVector() && l.Fill == "" {
			missing = append(missing, i)
		}
	}
	if len(missing) == 0 {
		return
	}

	colors, err := gamut.Generate(len(missing), gamut.PastelGenerator{})
	if err != nil {
		slog.Warn("failed to generate overlay palette", "err", err)
		return
	}

	for n, i := range missing {
		c, ok := colorful.MakeColor(colors[n])
		if !ok {
			continue
		}
		layers[i].Fill = c.Hex()
		if layers[i].Stroke == "" {
			h, s, l := c.Hsl()
			layers[i].Stroke = colorful.Hsl(h, s, l*0.6).Clamped().Hex()
		}
	}
}
