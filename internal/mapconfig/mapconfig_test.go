package mapconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joeblew999/grousemap/internal/service"
)

func TestDefaultMap(t *testing.T) {
	cfg, err := Load("", t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	view := cfg.View()
	if view.Center != [2]float64{-80.181745, 38.92017} || view.Zoom != 7 {
		t.Fatalf("view=%+v, want WV center at zoom 7", view)
	}

	layers := cfg.CatalogLayers()
	var ids []string
	for _, l := range layers {
		ids = append(ids, l.ID)
	}
	if got := strings.Join(ids, ","); got != "osm,satellite,terrain,suitability,stateForest" {
		t.Fatalf("layers=%s", got)
	}

	osm, suit, forest := layers[0], layers[3], layers[4]
	if !osm.Visible || osm.Kind != service.KindBase {
		t.Fatalf("osm=%+v, want visible base layer", osm)
	}
	if layers[1].Visible || layers[2].Visible {
		t.Fatal("satellite and terrain must start hidden")
	}
	if !suit.FlipY || suit.MinZoom != 2 || suit.MaxZoom != 10 || !strings.Contains(suit.URL, "{-y}") {
		t.Fatalf("suitability=%+v", suit)
	}
	if forest.Source != service.SourceArcGIS || !forest.IsVector() || forest.Opacity != 1 {
		t.Fatalf("stateForest=%+v", forest)
	}
	if layers[1].MaxZoom != 19 {
		t.Fatalf("satellite maxZoom=%d, want 19", layers[1].MaxZoom)
	}
}

func TestParseFunctionsAndOpacity(t *testing.T) {
	t.Setenv("GROUSEMAP_TILE_KEY", "k123")
	src := `
map {
  center = [-79.9, 39.6]
  zoom   = 9
}
layer "parks" {
  name    = "State Parks"
  kind    = "overlay"
  source  = "geojson"
  file    = "${data_dir}/WV State Parks.geojson"
  opacity = 0.5
}
layer "topo" {
  name   = "Topo"
  kind   = "base"
  source = "xyz"
  url    = "https://tiles.example.com/{z}/{x}/{y}.png?key=${env("GROUSEMAP_TILE_KEY")}"
}
`
	cfg, err := Parse("map.hcl", []byte(src), "/srv/data")
	if err != nil {
		t.Fatal(err)
	}
	layers := cfg.CatalogLayers()
	if layers[0].File != "/srv/data/WV State Parks.geojson" || layers[0].Opacity != 0.5 {
		t.Fatalf("parks=%+v", layers[0])
	}
	if !strings.HasSuffix(layers[1].URL, "key=k123") {
		t.Fatalf("topo url=%q, want env key", layers[1].URL)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"no map":      "layer \"a\" {\n name = \"A\"\n kind = \"base\"\n source = \"osm\"\n}",
		"bad center":  "map {\n center = [1]\n zoom = 3\n}",
		"bad kind":    "map {\n center = [0, 0]\n zoom = 3\n}\nlayer \"a\" {\n name = \"A\"\n kind = \"top\"\n source = \"osm\"\n}",
		"missing url": "map {\n center = [0, 0]\n zoom = 3\n}\nlayer \"a\" {\n name = \"A\"\n kind = \"base\"\n source = \"xyz\"\n}",
		"opacity":     "map {\n center = [0, 0]\n zoom = 3\n}\nlayer \"a\" {\n name = \"A\"\n kind = \"base\"\n source = \"osm\"\n opacity = 2\n}",
		"duplicate":   "map {\n center = [0, 0]\n zoom = 3\n}\nlayer \"a\" {\n name = \"A\"\n kind = \"base\"\n source = \"osm\"\n}\nlayer \"a\" {\n name = \"B\"\n kind = \"base\"\n source = \"osm\"\n}",
	}
	for name, src := range cases {
		if _, err := Parse("map.hcl", []byte(src), ""); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.hcl")
	if err := os.WriteFile(path, []byte("map {\n center = [0, 0]\n zoom = 2\n}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path, "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.View().Zoom != 2 || len(cfg.CatalogLayers()) != 0 {
		t.Fatalf("cfg=%+v", cfg)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.hcl"), ""); err == nil {
		t.Fatal("expected error for missing file")
	}
}
