package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestTilerServiceGoEngine(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "sources"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sources", "forests.geojson"), []byte(forestsGeoJSON), 0644); err != nil {
		t.Fatal(err)
	}

	var last int
	s := NewTilerService(dir)
	out, err := s.Generate(context.Background(), TileGenerateOptions{
		SourceFile: "forests.geojson",
		OutputName: "forests",
		MinZoom:    4,
		MaxZoom:    6,
		Engine:     "go",
	}, func(progress int, status string) { last = progress })
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(out) != "forests.pmtiles" {
		t.Fatalf("output=%q, want forests.pmtiles", out)
	}
	if last != 100 {
		t.Fatalf("last progress=%d, want 100", last)
	}

	tiles, err := NewTileService(dir).List()
	if err != nil {
		t.Fatal(err)
	}
	if len(tiles) != 1 || tiles[0].Name != "forests" || tiles[0].Format != SourcePMTiles {
		t.Fatalf("tiles=%+v", tiles)
	}
}

func TestValidateSourceFile(t *testing.T) {
	s := NewTilerService(t.TempDir())
	for _, name := range []string{"../x.geojson", "a/b.geojson", "data.parquet", "missing.geojson"} {
		if err := s.ValidateSourceFile(name); err == nil {
			t.Fatalf("ValidateSourceFile(%q) succeeded, want error", name)
		}
	}
}
