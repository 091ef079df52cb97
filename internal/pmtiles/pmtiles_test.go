package pmtiles

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
)

func TestEntriesRoundTrip(t *testing.T) {
	entries := []EntryV3{
		{TileID: 0, Offset: 0, Length: 10, RunLength: 1},
		{TileID: 1, Offset: 10, Length: 5, RunLength: 2},
		{TileID: 7, Offset: 0, Length: 10, RunLength: 1},
	}
	data, err := SerializeEntries(entries, Gzip)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DeserializeEntries(data, Gzip)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(entries) {
		t.Fatalf("len=%d, want %d", len(got), len(entries))
	}
	for i := range entries {
		if got[i] != entries[i] {
			t.Fatalf("entry %d=%+v, want %+v", i, got[i], entries[i])
		}
	}
}

func TestFindTileRunLength(t *testing.T) {
	entries := []EntryV3{
		{TileID: 5, RunLength: 3},
		{TileID: 20, RunLength: 1},
	}
	if _, ok := FindTile(entries, 7); !ok {
		t.Fatal("tile 7 should be covered by run starting at 5")
	}
	if _, ok := FindTile(entries, 8); ok {
		t.Fatal("tile 8 is past the run")
	}
	if _, ok := FindTile(entries, 4); ok {
		t.Fatal("tile 4 is before the first entry")
	}
}

func TestWriteAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.pmtiles")
	tiles := []Tile{
		{Z: 0, X: 0, Y: 0, Data: []byte("root")},
		{Z: 1, X: 0, Y: 0, Data: []byte("a")},
		{Z: 1, X: 1, Y: 1, Data: []byte("a")},
		{Z: 1, X: 1, Y: 0, Data: []byte("b")},
	}
	err := WriteFile(path, tiles, WriteOptions{
		TileType:        Png,
		TileCompression: NoCompression,
		MinZoom:         0,
		MaxZoom:         1,
		Metadata:        map[string]any{"name": "suitability"},
	})
	if err != nil {
		t.Fatal(err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if r.Header().TileContentsCount != 3 {
		t.Fatalf("contents=%d, want 3 (deduplicated)", r.Header().TileContentsCount)
	}
	for _, tile := range tiles {
		got, err := r.Tile(tile.Z, tile.X, tile.Y)
		if err != nil {
			t.Fatalf("tile %d/%d/%d: %v", tile.Z, tile.X, tile.Y, err)
		}
		if !bytes.Equal(got, tile.Data) {
			t.Fatalf("tile %d/%d/%d=%q, want %q", tile.Z, tile.X, tile.Y, got, tile.Data)
		}
	}
	if _, err := r.Tile(1, 0, 1); !errors.Is(err, ErrTileNotFound) {
		t.Fatalf("err=%v, want ErrTileNotFound", err)
	}
	if _, err := r.Tile(5, 0, 0); !errors.Is(err, ErrTileNotFound) {
		t.Fatalf("err=%v, want ErrTileNotFound for zoom outside range", err)
	}

	meta, err := r.Metadata()
	if err != nil {
		t.Fatal(err)
	}
	if meta["name"] != "suitability" {
		t.Fatalf("name=%v, want suitability", meta["name"])
	}
}
