package arcgis

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/paulmach/orb/geojson"
)

// DatasetKey is the attribute naming the service layer a feature came from.
const DatasetKey = "Dataset"

// Schema maps, per service layer name, source field names to output names.
// Fields not listed for a layer are dropped.
type Schema map[string]map[string]string

// LoadSchema reads a schema CSV file. See ParseSchema.
func LoadSchema(path string) (Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	s, err := ParseSchema(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseSchema reads CSV with a Layer,Field,Rename header.
func ParseSchema(r io.Reader) (Schema, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading schema header: %w", err)
	}
	col := map[string]int{}
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, name := range []string{"Layer", "Field", "Rename"} {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("schema is missing the %s column", name)
		}
	}

	s := Schema{}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading schema: %w", err)
		}
		layer, field, rename := rec[col["Layer"]], rec[col["Field"]], rec[col["Rename"]]
		if layer == "" || field == "" {
			continue
		}
		if rename == "" {
			rename = field
		}
		if s[layer] == nil {
			s[layer] = map[string]string{}
		}
		s[layer][field] = rename
	}
	return s, nil
}

// Clean keeps only the mapped fields of every feature, renamed, and stamps
// DatasetKey with the layer name on features that keep any field. A nil
// schema leaves the collection untouched.
func (s Schema) Clean(layer string, fc *geojson.FeatureCollection) {
	if s == nil {
		return
	}
	fields := s[layer]
	for _, f := range fc.Features {
		cleaned := geojson.Properties{}
		for old, v := range f.Properties {
			if renamed, ok := fields[old]; ok {
				cleaned[renamed] = v
			}
		}
		if len(cleaned) > 0 {
			cleaned[DatasetKey] = layer
		}
		f.Properties = cleaned
	}
}
