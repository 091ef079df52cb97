package arcgis

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/paulmach/orb/geojson"
	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

// Rules holds, per service layer name, attributes stamped on every feature.
type Rules struct {
	Layers map[string]map[string]string `yaml:"layers"`
}

// DefaultRules returns the built-in West Virginia rule set.
func DefaultRules() Rules {
	r, err := ParseRules(defaultRules)
	if err != nil {
		panic(err)
	}
	return r
}

// LoadRules reads a rules file, or returns DefaultRules when path is empty.
func LoadRules(path string) (Rules, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, err
	}
	r, err := ParseRules(data)
	if err != nil {
		return Rules{}, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// ParseRules decodes YAML rules.
func ParseRules(data []byte) (Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Rules{}, fmt.Errorf("parsing rules: %w", err)
	}
	return r, nil
}

// Apply stamps the layer's attributes on every feature. It reports whether
// any rule exists for the layer.
func (r Rules) Apply(layer string, fc *geojson.FeatureCollection) bool {
	attrs, ok := r.Layers[layer]
	if !ok {
		return false
	}
	for _, f := range fc.Features {
		if f.Properties == nil {
			f.Properties = geojson.Properties{}
		}
		for k, v := range attrs {
			f.Properties[k] = v
		}
	}
	return true
}
