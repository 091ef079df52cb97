// Package mapconfig loads the map definition: the initial view and the
// layer catalog the viewer starts with.
package mapconfig

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"

	"github.com/joeblew999/grousemap/internal/service"
)

//go:embed default.hcl
var defaultHCL []byte

type Config struct {
	Map    *MapBlock     `hcl:"map,block"`
	Layers []*LayerBlock `hcl:"layer,block"`
}

type MapBlock struct {
	Center []float64 `hcl:"center"`
	Zoom   float64   `hcl:"zoom"`
}

type LayerBlock struct {
	ID          string         `hcl:"id,label"`
	Name        string         `hcl:"name"`
	Kind        string         `hcl:"kind"`
	Source      string         `hcl:"source"`
	URL         string         `hcl:"url,optional"`
	File        string         `hcl:"file,optional"`
	MinZoom     int            `hcl:"min_zoom,optional"`
	MaxZoom     int            `hcl:"max_zoom,optional"`
	FlipY       bool           `hcl:"flip_y,optional"`
	Visible     bool           `hcl:"visible,optional"`
	Opacity     *float64       `hcl:"opacity,optional"`
	Fill        string         `hcl:"fill,optional"`
	Stroke      string         `hcl:"stroke,optional"`
	Attribution string         `hcl:"attribution,optional"`
	Legend      []*LegendBlock `hcl:"legend,block"`
}

type LegendBlock struct {
	Label string `hcl:"label"`
	Color string `hcl:"color"`
}

// envFunc exposes env("NAME") to map files, so tile URLs can carry keys
// without committing them.
var envFunc = function.New(&function.Spec{
	Params: []function.Parameter{{Name: "name", Type: cty.String}},
	Type:   function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		return cty.StringVal(os.Getenv(args[0].AsString())), nil
	},
})

func newHCLEvalContext(dataDir string) *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"data_dir": cty.StringVal(dataDir),
		},
		Functions: map[string]function.Function{
			"env": envFunc,
		},
	}
}

// Load reads a map definition from path, or the built-in default when path
// is empty. dataDir is available to the file as the data_dir variable.
func Load(path, dataDir string) (*Config, error) {
	if path == "" {
		return Parse("default.hcl", defaultHCL, dataDir)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading map config: %w", err)
	}
	return Parse(path, src, dataDir)
}

// Parse decodes and validates HCL source. filename must end in .hcl.
func Parse(filename string, src []byte, dataDir string) (*Config, error) {
	var cfg Config
	if err := hclsimple.Decode(filename, src, newHCLEvalContext(dataDir), &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Map == nil {
		return fmt.Errorf("missing map block")
	}
	if len(c.Map.Center) != 2 {
		return fmt.Errorf("map center must be [lon, lat], got %d values", len(c.Map.Center))
	}
	lon, lat := c.Map.Center[0], c.Map.Center[1]
	if lon < -180 || lon > 180 || lat < -90 || lat > 90 {
		return fmt.Errorf("map center %v is outside WGS84 bounds", c.Map.Center)
	}

	seen := make(map[string]bool, len(c.Layers))
	for _, l := range c.Layers {
		if seen[l.ID] {
			return fmt.Errorf("layer %q defined twice", l.ID)
		}
		seen[l.ID] = true

		switch l.Kind {
		case service.KindBase, service.KindOverlay:
		default:
			return fmt.Errorf("layer %q: kind must be base or overlay, got %q", l.ID, l.Kind)
		}
		switch l.Source {
		case service.SourceOSM:
		case service.SourceXYZ, service.SourceArcGIS:
			if l.URL == "" {
				return fmt.Errorf("layer %q: %s source needs a url", l.ID, l.Source)
			}
		case service.SourceGeoJSON, service.SourcePMTiles, service.SourceMBTiles, service.SourceDir:
			if l.URL == "" && l.File == "" {
				return fmt.Errorf("layer %q: %s source needs a url or file", l.ID, l.Source)
			}
		default:
			return fmt.Errorf("layer %q: unknown source %q", l.ID, l.Source)
		}
		if !service.ValidFile(l.File) {
			return fmt.Errorf("layer %q: file %q must be relative to the data directory", l.ID, l.File)
		}
		if l.Opacity != nil && (*l.Opacity < 0 || *l.Opacity > 1) {
			return fmt.Errorf("layer %q: opacity %g is outside [0, 1]", l.ID, *l.Opacity)
		}
	}
	return nil
}

// View returns the initial map view.
func (c *Config) View() service.MapView {
	return service.MapView{
		Center: [2]float64{c.Map.Center[0], c.Map.Center[1]},
		Zoom:   c.Map.Zoom,
	}
}

// CatalogLayers converts the layer blocks into catalog layers in file order.
func (c *Config) CatalogLayers() []service.Layer {
	layers := make([]service.Layer, 0, len(c.Layers))
	for i, b := range c.Layers {
		l := service.Layer{
			ID:          b.ID,
			Name:        b.Name,
			Kind:        b.Kind,
			Source:      b.Source,
			URL:         b.URL,
			File:        b.File,
			MinZoom:     b.MinZoom,
			MaxZoom:     b.MaxZoom,
			FlipY:       b.FlipY,
			Visible:     b.Visible,
			Opacity:     1,
			Fill:        b.Fill,
			Stroke:      b.Stroke,
			Attribution: b.Attribution,
			Order:       i + 1,
		}
		if b.Opacity != nil {
			l.Opacity = *b.Opacity
		}
		for _, item := range b.Legend {
			l.Legend = append(l.Legend, service.LegendItem{Label: item.Label, Color: item.Color})
		}
		layers = append(layers, l)
	}
	return layers
}
