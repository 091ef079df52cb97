package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"

	"github.com/joeblew999/grousemap/internal/humastar"
	"github.com/joeblew999/grousemap/internal/inspect"
	"github.com/joeblew999/grousemap/internal/service"
)

const forestsGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"Name": "Kumbrabow", "Source": "WVDNR", "Acres": 9474},
     "geometry": {"type": "Polygon", "coordinates": [[[-80.2,38.6],[-80.0,38.6],[-80.0,38.7],[-80.2,38.7],[-80.2,38.6]]]}},
    {"type": "Feature", "properties": {"Name": "Seneca", "Notes": "<b>bold</b>"},
     "geometry": {"type": "Polygon", "coordinates": [[[-80.1,38.3],[-79.9,38.3],[-79.9,38.4],[-80.1,38.4],[-80.1,38.3]]]}},
    {"type": "Feature", "properties": {"Name": "Coopers Rock"},
     "geometry": {"type": "Point", "coordinates": [-79.78, 39.65]}}
  ]
}`

func testLayers() []service.Layer {
	return []service.Layer{
		{ID: "osm", Name: "OpenStreetMap", Kind: service.KindBase, Source: service.SourceOSM, Visible: true, Opacity: 1},
		{ID: "satellite", Name: "Satellite", Kind: service.KindBase, Source: service.SourceXYZ, Opacity: 1},
		{ID: "stateForest", Name: "WV State Forests", Kind: service.KindOverlay, Source: service.SourceGeoJSON, File: "forests.geojson", Visible: true, Opacity: 1},
	}
}

func newTestAPI(t *testing.T) (humatest.TestAPI, *Services) {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "sources"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sources", "forests.geojson"), []byte(forestsGeoJSON), 0644); err != nil {
		t.Fatal(err)
	}

	bus := service.NewEventBus()
	layers := service.NewLayerService(dir, bus)
	if err := layers.Seed(testLayers()); err != nil {
		t.Fatal(err)
	}
	features := service.NewFeatureService(dir, nil)
	svc := &Services{
		Layer:     layers,
		Feature:   features,
		Tracker:   service.NewTrackerService(bus),
		Tile:      service.NewTileService(dir),
		Tiler:     service.NewTilerService(dir),
		Source:    service.NewSourceService(dir),
		Inspector: inspect.New(layers, features),
		View:      service.MapView{Center: [2]float64{-80.181745, 38.92017}, Zoom: 7},
	}

	config := huma.DefaultConfig("grousemap test", "1.0.0")
	links := humastar.NewLinks()
	config.Transformers = append(config.Transformers, links.Transformer())
	_, api := humatest.New(t, config)
	huma.AutoRegister(api, NewAPIHandler(svc))
	AddLinks(links)
	links.Build(api)
	return api, svc
}

func decode(t *testing.T, body []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(body, v); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
}

func TestHealth(t *testing.T) {
	api, _ := newTestAPI(t)
	resp := api.Get("/health")
	if resp.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", resp.Code)
	}
	var body HealthBody
	decode(t, resp.Body.Bytes(), &body)
	if body.Status != "ok" {
		t.Fatalf("status=%q, want ok", body.Status)
	}
}

func TestToggleChangesOnlyThatLayer(t *testing.T) {
	api, svc := newTestAPI(t)
	before := map[string]bool{}
	for _, l := range svc.Layer.List() {
		before[l.ID] = l.Visible
	}

	resp := api.Post("/api/v1/layers/satellite/toggle")
	if resp.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.Code, resp.Body.String())
	}
	var got service.Layer
	decode(t, resp.Body.Bytes(), &got)
	if !got.Visible {
		t.Fatal("satellite should be visible after toggle")
	}
	if !strings.Contains(strings.Join(resp.Header().Values("Link"), ","), `rel="toggle"; method="POST"; title="Hide layer"`) {
		t.Fatalf("links=%q, want toggle action", resp.Header().Values("Link"))
	}

	for _, l := range svc.Layer.List() {
		if l.ID == "satellite" {
			continue
		}
		if l.Visible != before[l.ID] {
			t.Fatalf("layer %s visibility changed to %v", l.ID, l.Visible)
		}
	}
}

func TestVisibility(t *testing.T) {
	api, svc := newTestAPI(t)
	resp := api.Put("/api/v1/layers/stateForest/visibility", map[string]any{"visible": false})
	if resp.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.Code, resp.Body.String())
	}
	if l, _ := svc.Layer.Get("stateForest"); l.Visible {
		t.Fatal("stateForest still visible")
	}
}

func TestOpacity(t *testing.T) {
	api, svc := newTestAPI(t)

	resp := api.Put("/api/v1/layers/stateForest/opacity", map[string]any{"percent": 70})
	if resp.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.Code, resp.Body.String())
	}
	var state service.OpacityState
	decode(t, resp.Body.Bytes(), &state)
	if state.Opacity != 0.7 || state.Label != "70%" {
		t.Fatalf("state=%+v, want 0.7 and 70%%", state)
	}
	if l, _ := svc.Layer.Get("stateForest"); l.Opacity != 0.7 {
		t.Fatalf("opacity=%v, want 0.7", l.Opacity)
	}

	resp = api.Put("/api/v1/layers/stateForest/opacity", map[string]any{"percent": 150})
	decode(t, resp.Body.Bytes(), &state)
	if state.Percent != 100 || state.Label != "100%" {
		t.Fatalf("state=%+v, want clamped to 100", state)
	}
}

func TestLayerErrors(t *testing.T) {
	api, _ := newTestAPI(t)

	if resp := api.Get("/api/v1/layers/nope"); resp.Code != http.StatusNotFound {
		t.Fatalf("get unknown status=%d, want 404", resp.Code)
	}
	if resp := api.Post("/api/v1/layers/nope/toggle"); resp.Code != http.StatusNotFound {
		t.Fatalf("toggle unknown status=%d, want 404", resp.Code)
	}
	if resp := api.Post("/api/v1/layers/stateForest/base"); resp.Code != http.StatusBadRequest {
		t.Fatalf("base on overlay status=%d, want 400", resp.Code)
	}

	dup := map[string]any{"id": "osm", "name": "Again", "kind": "base", "source": "osm"}
	if resp := api.Post("/api/v1/layers", dup); resp.Code != http.StatusConflict {
		t.Fatalf("duplicate status=%d, want 409 (%s)", resp.Code, resp.Body.String())
	}

	outside := map[string]any{"name": "Passwords", "kind": "overlay", "source": "geojson", "file": "/etc/passwd"}
	if resp := api.Post("/api/v1/layers", outside); resp.Code != http.StatusBadRequest {
		t.Fatalf("absolute file status=%d, want 400 (%s)", resp.Code, resp.Body.String())
	}
}

func TestLayerErrorStatus(t *testing.T) {
	saveErr := &fs.PathError{Op: "mkdir", Path: "/data", Err: syscall.ENOTDIR}
	for _, c := range []struct {
		err    error
		status int
	}{
		{fmt.Errorf("layer %q: %w", "x", service.ErrLayerNotFound), http.StatusNotFound},
		{fmt.Errorf("layer %q: %w", "x", service.ErrLayerExists), http.StatusConflict},
		{fmt.Errorf("%w: not a base layer", service.ErrInvalidLayer), http.StatusBadRequest},
		{saveErr, http.StatusInternalServerError},
	} {
		var se huma.StatusError
		if !errors.As(layerError(c.err), &se) || se.GetStatus() != c.status {
			t.Fatalf("layerError(%v)=%v, want status %d", c.err, layerError(c.err), c.status)
		}
	}
}

func TestCreateAndDelete(t *testing.T) {
	api, svc := newTestAPI(t)

	resp := api.Post("/api/v1/layers", map[string]any{
		"name": "WV State Parks", "kind": "overlay", "source": "geojson", "file": "parks.geojson", "opacity": 0.5,
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.Code, resp.Body.String())
	}
	var created service.Layer
	decode(t, resp.Body.Bytes(), &created)
	if created.ID != "wv_state_parks" || created.Order != 4 {
		t.Fatalf("created=%+v", created)
	}

	if resp := api.Delete("/api/v1/layers/wv_state_parks"); resp.Code != http.StatusOK {
		t.Fatalf("delete status=%d", resp.Code)
	}
	if _, ok := svc.Layer.Get("wv_state_parks"); ok {
		t.Fatal("layer still present after delete")
	}
}

func TestSelectBase(t *testing.T) {
	api, svc := newTestAPI(t)
	resp := api.Post("/api/v1/layers/satellite/base")
	if resp.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.Code, resp.Body.String())
	}
	var changed []service.Layer
	decode(t, resp.Body.Bytes(), &changed)
	if len(changed) != 2 {
		t.Fatalf("changed=%d layers, want 2", len(changed))
	}
	osm, _ := svc.Layer.Get("osm")
	sat, _ := svc.Layer.Get("satellite")
	if osm.Visible || !sat.Visible {
		t.Fatalf("osm=%v satellite=%v, want only satellite", osm.Visible, sat.Visible)
	}
}

func TestFeaturesPagination(t *testing.T) {
	api, _ := newTestAPI(t)

	resp := api.Get("/api/v1/layers/stateForest/features?offset=0&limit=2")
	if resp.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.Code, resp.Body.String())
	}
	var page humastar.PageBody[service.FeatureSummary]
	decode(t, resp.Body.Bytes(), &page)
	if page.Total != 3 || len(page.Data) != 2 {
		t.Fatalf("total=%d len=%d, want 3 and 2", page.Total, len(page.Data))
	}
	if page.Data[0].Properties["Name"] != "Kumbrabow" {
		t.Fatalf("first=%v", page.Data[0].Properties)
	}
	links := strings.Join(resp.Header().Values("Link"), ",")
	if !strings.Contains(links, `</api/v1/layers/stateForest/features?limit=2&offset=2>; rel="next"`) {
		t.Fatalf("links=%q, want next page", links)
	}

	if resp := api.Get("/api/v1/layers/osm/features"); resp.Code != http.StatusBadRequest {
		t.Fatalf("raster features status=%d, want 400", resp.Code)
	}
}

func TestLayerLinks(t *testing.T) {
	api, _ := newTestAPI(t)

	links := strings.Join(api.Get("/api/v1/layers/stateForest").Header().Values("Link"), ",")
	for _, want := range []string{
		`</api/v1/layers>; rel="collection"`,
		`</api/v1/layers/stateForest/features>; rel="features"`,
		`</api/v1/layers/stateForest>; rel="self"`,
		`</api/v1/layers/stateForest/opacity>; rel="opacity"; method="PUT"`,
	} {
		if !strings.Contains(links, want) {
			t.Fatalf("layer links=%q, missing %q", links, want)
		}
	}
	if strings.Contains(links, `rel="base"`) {
		t.Fatalf("overlay links=%q, should not offer base", links)
	}

	links = strings.Join(api.Post("/api/v1/layers/osm/toggle").Header().Values("Link"), ",")
	for _, want := range []string{`</api/v1/layers/osm>; rel="up"`, `rel="base"; method="POST"`} {
		if !strings.Contains(links, want) {
			t.Fatalf("toggle links=%q, missing %q", links, want)
		}
	}
	if strings.Contains(links, `rel="collection"`) || strings.Contains(links, `rel="features"`) {
		t.Fatalf("toggle links=%q, action should link up only", links)
	}

	links = strings.Join(api.Get("/api/v1/map").Header().Values("Link"), ",")
	for _, want := range []string{`</api/v1/layers>; rel="layers"`, `</api/v1/position>; rel="position"`, `</api/v1/tiles>; rel="tiles"`} {
		if !strings.Contains(links, want) {
			t.Fatalf("map links=%q, missing %q", links, want)
		}
	}

	links = strings.Join(api.Get("/health").Header().Values("Link"), ",")
	for _, want := range []string{`</api/v1/layers>; rel="layers"`, `</api/v1/map>; rel="map"`, `rel="service-desc"`} {
		if !strings.Contains(links, want) {
			t.Fatalf("health links=%q, missing %q", links, want)
		}
	}
	if strings.Contains(links, "/api/v1/position/error") {
		t.Fatalf("health links=%q, should list only top-level collections", links)
	}
}

func TestMap(t *testing.T) {
	api, _ := newTestAPI(t)
	resp := api.Get("/api/v1/map")
	var body MapBody
	decode(t, resp.Body.Bytes(), &body)
	if body.Zoom != 7 || body.Center[0] != -80.181745 {
		t.Fatalf("view=%+v", body.MapView)
	}
	if len(body.Layers) != 3 || body.Layers[0].ID != "osm" {
		t.Fatalf("layers=%+v", body.Layers)
	}
}

func TestInspect(t *testing.T) {
	api, _ := newTestAPI(t)

	resp := api.Get("/api/v1/inspect?lon=-80.09&lat=38.65")
	if resp.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.Code, resp.Body.String())
	}
	var hit InspectBody
	decode(t, resp.Body.Bytes(), &hit)
	if !hit.Visible || len(hit.Popup.Sections) != 1 {
		t.Fatalf("inspect=%+v, want one section", hit)
	}
	if strings.Contains(hit.HTML, "WVDNR") || !strings.Contains(hit.HTML, "Kumbrabow") {
		t.Fatalf("html=%q, want Name without Source", hit.HTML)
	}

	resp = api.Get("/api/v1/inspect?lon=-79.95&lat=38.35")
	decode(t, resp.Body.Bytes(), &hit)
	if !strings.Contains(hit.HTML, "&lt;b&gt;bold&lt;/b&gt;") {
		t.Fatalf("html=%q, want escaped value", hit.HTML)
	}

	resp = api.Get("/api/v1/inspect?lon=-75&lat=38")
	var miss InspectBody
	decode(t, resp.Body.Bytes(), &miss)
	if miss.Visible || miss.HTML != "" {
		t.Fatalf("miss=%+v, want hidden popup", miss)
	}
}

func TestPosition(t *testing.T) {
	api, _ := newTestAPI(t)

	if resp := api.Put("/api/v1/position", map[string]any{"lon": -80.18, "lat": 95, "accuracy": 10}); resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid position status=%d, want 422", resp.Code)
	}

	resp := api.Put("/api/v1/position", map[string]any{"lon": -80.18, "lat": 38.92, "accuracy": 25})
	if resp.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.Code, resp.Body.String())
	}

	resp = api.Get("/api/v1/position")
	var state struct {
		Tracking bool            `json:"tracking"`
		Marker   json.RawMessage `json:"marker"`
		Accuracy json.RawMessage `json:"accuracy"`
	}
	decode(t, resp.Body.Bytes(), &state)
	if !state.Tracking || !strings.Contains(string(state.Marker), "-80.18") {
		t.Fatalf("state=%s", resp.Body.String())
	}
	if !strings.Contains(string(state.Accuracy), `"Polygon"`) {
		t.Fatalf("accuracy=%s, want polygon", state.Accuracy)
	}

	resp = api.Post("/api/v1/position/error", map[string]any{"code": 1, "message": "User denied Geolocation"})
	if resp.Code != http.StatusOK {
		t.Fatalf("error status=%d body=%s", resp.Code, resp.Body.String())
	}
	resp = api.Get("/api/v1/position")
	if !strings.Contains(resp.Body.String(), "User denied Geolocation") {
		t.Fatalf("state=%s, want last error", resp.Body.String())
	}
}

func TestSourcesAndTiles(t *testing.T) {
	api, _ := newTestAPI(t)

	resp := api.Get("/api/v1/sources")
	var sources []service.SourceFile
	decode(t, resp.Body.Bytes(), &sources)
	if len(sources) != 1 || sources[0].Name != "forests.geojson" {
		t.Fatalf("sources=%+v", sources)
	}

	resp = api.Post("/api/v1/tiles", map[string]any{
		"sourceFile": "forests.geojson", "outputName": "forests", "minZoom": 0, "maxZoom": 6, "engine": "go",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("generate status=%d body=%s", resp.Code, resp.Body.String())
	}
	var gen GenerateTilesBody
	decode(t, resp.Body.Bytes(), &gen)
	if gen.TileSet != "forests" {
		t.Fatalf("tileSet=%q, want forests", gen.TileSet)
	}

	resp = api.Get("/api/v1/tiles")
	var tiles []service.TileFile
	decode(t, resp.Body.Bytes(), &tiles)
	if len(tiles) != 1 || tiles[0].Format != "pmtiles" {
		t.Fatalf("tiles=%+v", tiles)
	}

	if resp := api.Post("/api/v1/tiles", map[string]any{"sourceFile": "../etc/passwd", "outputName": "x", "minZoom": 0, "maxZoom": 6}); resp.Code != http.StatusBadRequest {
		t.Fatalf("bad source status=%d, want 400", resp.Code)
	}
}

func TestDBUnavailable(t *testing.T) {
	_, api := humatest.New(t)
	NewDBHandler(nil, "").RegisterRoutes(api)
	if resp := api.Get("/api/v1/tables"); resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, want 503", resp.Code)
	}
	if resp := api.Post("/api/v1/query", map[string]any{"query": "SELECT 1"}); resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, want 503", resp.Code)
	}
}

func TestInfo(t *testing.T) {
	_, api := humatest.New(t)
	NewInfoHandler("/data", false).RegisterRoutes(api)
	var body InfoBody
	decode(t, api.Get("/api/v1/info").Body.Bytes(), &body)
	if body.Name != "grousemap" || body.DB {
		t.Fatalf("info=%+v", body)
	}
}
