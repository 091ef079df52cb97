package inspect

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"sort"
	"strconv"
	"strings"
)

// Keys never shown in a popup.
const (
	keyGeometry = "geometry"
	keySource   = "Source"
)

// Popup is the content of the map popup.
type Popup struct {
	Sections []Section `json:"sections" doc:"One section per feature under the cursor"`
}

// Section lists the attributes of one feature.
type Section struct {
	LayerID   string `json:"layerId" doc:"Layer the feature belongs to" example:"stateForest"`
	LayerName string `json:"layerName" doc:"Layer display name" example:"WV State Forests"`
	Rows      []Row  `json:"rows" doc:"Attribute rows sorted by key"`
}

// Row is one attribute.
type Row struct {
	Key   string `json:"key" example:"Name"`
	Value string `json:"value" example:"Kumbrabow State Forest"`
}

// Empty reports whether there is nothing to show, which hides the popup.
func (p Popup) Empty() bool {
	return len(p.Sections) == 0
}

// BuildPopup turns hits into popup sections. The geometry and Source keys
// and empty values are left out.
func BuildPopup(hits []Hit) Popup {
	p := Popup{Sections: make([]Section, 0, len(hits))}
	for _, h := range hits {
		s := Section{LayerID: h.Layer.ID, LayerName: h.Layer.Name, Rows: []Row{}}
		if s.LayerName == "" {
			s.LayerName = h.Layer.ID
		}

		keys := make([]string, 0, len(h.Feature.Properties))
		for k := range h.Feature.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			if k == keyGeometry || k == keySource {
				continue
			}
			v, ok := formatValue(h.Feature.Properties[k])
			if !ok {
				continue
			}
			s.Rows = append(s.Rows, Row{Key: k, Value: v})
		}
		p.Sections = append(p.Sections, s)
	}
	return p
}

// formatValue renders an attribute value as text. ok is false for values
// that count as empty.
func formatValue(v any) (string, bool) {
	var s string
	switch v := v.(type) {
	case nil:
		return "", false
	case string:
		s = v
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(v)
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return "", false
		}
		s = string(b)
	default:
		s = fmt.Sprint(v)
	}
	if strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

var popupTemplate = template.Must(template.New("popup").Parse(
	`{{range .Sections}}<div class="popup-feature" data-layer="{{.LayerID}}">` +
		`<h4>{{.LayerName}}</h4>` +
		`{{range .Rows}}<p><strong>{{.Key}}:</strong> {{.Value}}</p>{{end}}` +
		`</div>{{end}}`))

// RenderPopup renders the popup as HTML with every key and value escaped.
// An empty popup renders as "".
func RenderPopup(p Popup) (string, error) {
	if p.Empty() {
		return "", nil
	}
	var buf bytes.Buffer
	if err := popupTemplate.Execute(&buf, p); err != nil {
		return "", fmt.Errorf("rendering popup: %w", err)
	}
	return buf.String(), nil
}
