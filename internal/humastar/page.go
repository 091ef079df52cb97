// page.go: OpenAPI spec → page template data.
//
// BuildPageData extracts what the viewer page needs from the spec so the
// HTML never hardcodes URLs or signal names:
//   - Signals JSON (data-signals init)
//   - Routes of the panel operations, discovered by tag and path
package humastar

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// PanelTag marks Datastar SSE operations. They are left out of the
// hypermedia link graph and discovered by BuildPageData instead.
const PanelTag = "panel"

// PageData holds everything a page template needs from the OpenAPI spec.
type PageData struct {
	// Signals is the JSON string for data-signals initialization.
	Signals string

	// Routes maps a panel operation's last static path segment to its path,
	// e.g. Routes["layers"] = "/api/v1/panel/layers".
	Routes map[string]string

	// Inits are GET panel endpoints (no path params) loaded on page start.
	Inits []string

	// Extra carries page-specific values (map view, layer list, ...).
	Extra map[string]any
}

// DataInit returns a Datastar data-init expression running every init GET,
// e.g. "@get('/api/v1/panel/events'); @get('/api/v1/panel/layers')".
func (pd PageData) DataInit() string {
	var parts []string
	for _, url := range pd.Inits {
		parts = append(parts, fmt.Sprintf("@get('%s')", url))
	}
	return strings.Join(parts, "; ")
}

// Route returns the discovered path for name, or "" if the spec has none.
func (pd PageData) Route(name string) string {
	return pd.Routes[name]
}

// BuildPageData walks the OpenAPI paths tagged PanelTag under basePath.
func BuildPageData(api huma.API, basePath string, signals map[string]any) PageData {
	pd := PageData{Routes: map[string]string{}, Extra: map[string]any{}}

	if signals == nil {
		signals = map[string]any{}
	}
	signalsJSON, _ := json.Marshal(signals)
	pd.Signals = string(signalsJSON)

	for path, item := range api.OpenAPI().Paths {
		if !strings.HasPrefix(path, basePath) || !isPanel(item) {
			continue
		}
		pd.Routes[routeName(strings.TrimPrefix(path, basePath))] = path
		if item.Get != nil && !strings.Contains(path, "{") {
			pd.Inits = append(pd.Inits, path)
		}
	}
	sort.Strings(pd.Inits)
	return pd
}

// routeName names a path by its static segments after the base, joined
// with "-": "/layers/{id}/toggle" → "layers-toggle".
func routeName(rest string) string {
	var parts []string
	for _, seg := range strings.Split(strings.Trim(rest, "/"), "/") {
		if seg == "" || strings.HasPrefix(seg, "{") {
			continue
		}
		parts = append(parts, seg)
	}
	return strings.Join(parts, "-")
}
