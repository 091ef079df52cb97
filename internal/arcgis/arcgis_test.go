package arcgis

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/grousemap/internal/fetch"
	"github.com/joeblew999/grousemap/internal/service"
)

const parksGeoJSON = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"NAME":"Cacapon","ACRES":6000,"OBJECTID":1},
  "geometry":{"type":"Point","coordinates":[-78.3,39.5]}}]}`

func newArcGIS(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case r.URL.Path == "/FeatureServer" && q.Get("f") == "json":
			w.Write([]byte(`{"layers":[{"id":0,"name":"WV State Parks"},{"id":1,"name":"Broken Layer"},{"id":2,"name":"WVDNR Managed Lands"}]}`))
		case r.URL.Path == "/FeatureServer/0/query" || r.URL.Path == "/FeatureServer/2/query":
			if q.Get("where") != "1=1" || q.Get("outFields") != "*" || q.Get("f") != "geojson" || q.Get("returnGeometry") != "true" {
				http.Error(w, "bad query "+r.URL.RawQuery, http.StatusBadRequest)
				return
			}
			w.Write([]byte(parksGeoJSON))
		default:
			http.Error(w, "nope", http.StatusInternalServerError)
		}
	}))
}

func TestQueryReportsStatus(t *testing.T) {
	srv := newArcGIS(t)
	defer srv.Close()
	c := NewClient(fetch.New(fetch.Config{RequestsPerSec: 1000}))

	_, err := c.Query(context.Background(), srv.URL+"/FeatureServer/1")
	var se *fetch.StatusError
	if !errors.As(err, &se) || se.Status != http.StatusInternalServerError {
		t.Fatalf("err=%v, want status 500", err)
	}
	if !strings.Contains(err.Error(), "/FeatureServer/1") {
		t.Fatalf("err=%q should name the layer URL", err)
	}
}

func TestServiceErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"code":499,"message":"Token Required"}}`))
	}))
	defer srv.Close()

	_, err := NewClient(nil).Service(context.Background(), srv.URL)
	var ae *Error
	if !errors.As(err, &ae) || ae.Code != 499 {
		t.Fatalf("err=%v, want arcgis error 499", err)
	}
}

func TestSchemaClean(t *testing.T) {
	s, err := ParseSchema(strings.NewReader("Layer,Field,Rename\nWV State Parks,NAME,Name\nWV State Parks,ACRES,Acres\nOther,NAME,Title\n"))
	if err != nil {
		t.Fatal(err)
	}

	fc, err := geojson.UnmarshalFeatureCollection([]byte(parksGeoJSON))
	if err != nil {
		t.Fatal(err)
	}
	s.Clean("WV State Parks", fc)

	props := fc.Features[0].Properties
	if props["Name"] != "Cacapon" || props["Acres"] != 6000.0 || props[DatasetKey] != "WV State Parks" {
		t.Fatalf("props=%v", props)
	}
	if _, ok := props["OBJECTID"]; ok {
		t.Fatal("unmapped field OBJECTID should be dropped")
	}
	if _, ok := props["NAME"]; ok {
		t.Fatal("renamed field should not keep its old name")
	}

	other, _ := geojson.UnmarshalFeatureCollection([]byte(parksGeoJSON))
	s.Clean("Unlisted", other)
	if len(other.Features[0].Properties) != 0 {
		t.Fatalf("props=%v, want all dropped for unlisted layer", other.Features[0].Properties)
	}
}

func TestParseSchemaRequiresColumns(t *testing.T) {
	if _, err := ParseSchema(strings.NewReader("Layer,Field\nA,B\n")); err == nil {
		t.Fatal("expected error for missing Rename column")
	}
}

func TestDefaultRules(t *testing.T) {
	r := DefaultRules()
	if len(r.Layers) != 5 {
		t.Fatalf("rules for %d layers, want 5", len(r.Layers))
	}
	fc, _ := geojson.UnmarshalFeatureCollection([]byte(parksGeoJSON))
	if !r.Apply("WV State Parks", fc) {
		t.Fatal("WV State Parks should have rules")
	}
	props := fc.Features[0].Properties
	if props["Source"] != "West Virginia State Park" || props["Access"] != "Restricted Access" {
		t.Fatalf("props=%v", props)
	}
	if r.Apply("Unknown", fc) {
		t.Fatal("Unknown layer should have no rules")
	}
}

func TestPipelineRun(t *testing.T) {
	srv := newArcGIS(t)
	defer srv.Close()

	dataDir := t.TempDir()
	catalog := service.NewLayerService(dataDir, service.NewEventBus())
	p := &Pipeline{
		Client:     NewClient(fetch.New(fetch.Config{RequestsPerSec: 1000})),
		ServiceURL: srv.URL + "/FeatureServer",
		Rules:      DefaultRules(),
		OutDir:     filepath.Join(dataDir, "sources"),
		Catalog:    catalog,
	}

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Written) != 2 {
		t.Fatalf("written=%v, want 2 files", report.Written)
	}
	if _, ok := report.Failed["Broken Layer"]; !ok || len(report.Failed) != 1 {
		t.Fatalf("failed=%v, want Broken Layer", report.Failed)
	}

	data, err := os.ReadFile(filepath.Join(dataDir, "sources", "WVDNR Managed Lands.geojson"))
	if err != nil {
		t.Fatal(err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		t.Fatal(err)
	}
	if fc.Features[0].Properties["Source"] != "West Virginia Wildlife Management Area" {
		t.Fatalf("props=%v", fc.Features[0].Properties)
	}

	layer, ok := catalog.Get("wv_state_parks")
	if !ok || layer.File != "WV State Parks.geojson" || layer.Kind != service.KindOverlay || layer.Visible {
		t.Fatalf("registered layer=%+v ok=%v", layer, ok)
	}

	// A second run keeps the registered layers.
	if _, err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := len(catalog.List()); n != 2 {
		t.Fatalf("catalog has %d layers after rerun, want 2", n)
	}
}
