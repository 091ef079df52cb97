package tilestore

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joeblew999/grousemap/internal/fetch"
	"github.com/joeblew999/grousemap/internal/pmtiles"
	"github.com/joeblew999/grousemap/internal/service"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
}

func writeMBTiles(t *testing.T, path string) {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	for _, stmt := range []string{
		`create table metadata (name text, value text)`,
		`create table tiles (zoom_level integer, tile_column integer, tile_row integer, tile_data blob)`,
		`insert into metadata values ('name', 'suitability'), ('format', 'png')`,
		// XYZ 2/1/0 is TMS row 3.
		`insert into tiles values (2, 1, 3, x'89504e47')`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("%s: %v", stmt, err)
		}
	}
}

func TestDir(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "3", "2", "5.png"), []byte("png"))

	d := NewDir(root, false)
	tile, err := d.Tile(context.Background(), 3, 2, 5)
	if err != nil {
		t.Fatal(err)
	}
	if string(tile.Data) != "png" || tile.ContentType != "image/png" {
		t.Fatalf("tile=%+v", tile)
	}
	if _, err := d.Tile(context.Background(), 3, 2, 6); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
	if _, err := d.Tile(context.Background(), 1, 2, 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("out of range err=%v, want ErrNotFound", err)
	}
}

func TestDirFlipY(t *testing.T) {
	root := t.TempDir()
	// TMS row 1 at zoom 1 is XYZ row 0.
	writeFile(t, filepath.Join(root, "1", "0", "1.png"), []byte("tms"))

	d := NewDir(root, true)
	tile, err := d.Tile(context.Background(), 1, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if string(tile.Data) != "tms" {
		t.Fatalf("data=%q, want tms", tile.Data)
	}
	if _, err := d.Tile(context.Background(), 1, 0, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
}

func TestRegistryLayerOptions(t *testing.T) {
	tilesDir := t.TempDir()
	writeFile(t, filepath.Join(tilesDir, "tms", "1", "0", "1.png"), []byte("tms"))
	outside := t.TempDir()
	writeFile(t, filepath.Join(outside, "1", "0", "0.png"), []byte("secret"))

	reg := NewRegistry(tilesDir, nil)
	defer reg.Close()
	reg.Sync([]service.Layer{
		{ID: "habitat", Source: service.SourceDir, File: "tms", FlipY: true},
		{ID: "abs", Source: service.SourceDir, File: outside},
		{ID: "up", Source: service.SourceDir, File: "../" + filepath.Base(outside)},
	})

	s, ok := reg.Get("habitat")
	if !ok {
		t.Fatal("habitat not registered")
	}
	tile, err := s.Tile(context.Background(), 1, 0, 0)
	if err != nil || string(tile.Data) != "tms" {
		t.Fatalf("tile=%q err=%v, want tms", tile.Data, err)
	}
	for _, name := range []string{"abs", "up"} {
		if _, ok := reg.Get(name); ok {
			t.Fatalf("%s: layer outside the tiles directory was registered", name)
		}
	}
}

func TestMBTilesFlipsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "suitability.mbtiles")
	writeMBTiles(t, path)

	m, err := OpenMBTiles(path)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if m.Metadata()["name"] != "suitability" {
		t.Fatalf("metadata=%v", m.Metadata())
	}
	tile, err := m.Tile(context.Background(), 2, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if tile.ContentType != "image/png" || len(tile.Data) != 4 {
		t.Fatalf("tile=%+v", tile)
	}
	if _, err := m.Tile(context.Background(), 2, 1, 3); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unflipped row err=%v, want ErrNotFound", err)
	}
}

func TestPMTiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forests.pmtiles")
	err := pmtiles.WriteFile(path, []pmtiles.Tile{{Z: 1, X: 1, Y: 0, Data: []byte("mvt")}}, pmtiles.WriteOptions{
		TileType:        pmtiles.Mvt,
		TileCompression: pmtiles.Gzip,
		MaxZoom:         1,
	})
	if err != nil {
		t.Fatal(err)
	}

	p, err := OpenPMTiles(path)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	tile, err := p.Tile(context.Background(), 1, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if tile.ContentType != "application/vnd.mapbox-vector-tile" || tile.Encoding != "gzip" {
		t.Fatalf("tile=%+v", tile)
	}
	if _, err := p.Tile(context.Background(), 1, 0, 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
}

func TestProxyFlippedTemplateAndCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/7/35/79.png" {
			w.Header().Set("Content-Type", "image/png")
			w.Write([]byte("tile"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	p := NewProxy(srv.URL+"/{z}/{x}/{-y}.png", fetch.New(fetch.Config{RequestsPerSec: 1000}), ProxyOptions{})
	// XYZ row 48 at zoom 7 is TMS row 127-48 = 79.
	if got := p.URL(7, 35, 48); got != srv.URL+"/7/35/79.png" {
		t.Fatalf("url=%q", got)
	}

	for i := 0; i < 3; i++ {
		tile, err := p.Tile(context.Background(), 7, 35, 48)
		if err != nil {
			t.Fatal(err)
		}
		if string(tile.Data) != "tile" || tile.ContentType != "image/png" {
			t.Fatalf("tile=%+v", tile)
		}
	}
	if hits.Load() != 1 {
		t.Fatalf("upstream hits=%d, want 1", hits.Load())
	}

	if _, err := p.Tile(context.Background(), 7, 35, 49); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound for upstream 404", err)
	}
}

func TestProxyURLFlipYOption(t *testing.T) {
	p := NewProxy("https://t.example.com/{z}/{x}/{y}.png", nil, ProxyOptions{FlipY: true})
	if got := p.URL(2, 1, 0); got != "https://t.example.com/2/1/3.png" {
		t.Fatalf("url=%q, want flipped row", got)
	}
	q := NewProxy("https://server.arcgisonline.com/tile/{z}/{y}/{x}", nil, ProxyOptions{})
	if got := q.URL(5, 9, 12); got != "https://server.arcgisonline.com/tile/5/12/9" {
		t.Fatalf("url=%q", got)
	}
}

func TestCacheEvictsAndExpires(t *testing.T) {
	c := newCache(2, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.set("a", Tile{Data: []byte("a")})
	c.set("b", Tile{Data: []byte("b")})
	c.get("a")
	c.set("c", Tile{Data: []byte("c")})

	if _, ok := c.get("b"); ok {
		t.Fatal("least recently used entry should be evicted")
	}
	if _, ok := c.get("a"); !ok {
		t.Fatal("recently used entry should survive")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.get("a"); ok {
		t.Fatal("expired entry should be dropped")
	}
}

func TestRegistrySyncAndServe(t *testing.T) {
	tilesDir := t.TempDir()
	writeFile(t, filepath.Join(tilesDir, "rugr_LC_3_tiles", "2", "1", "0.png"), []byte("dir-tile"))
	writeMBTiles(t, filepath.Join(tilesDir, "suitability.mbtiles"))

	reg := NewRegistry(tilesDir, nil)
	defer reg.Close()
	reg.Sync([]service.Layer{
		{ID: "osm", Source: service.SourceOSM},
		{ID: "stateForest", Source: service.SourceArcGIS, URL: "https://example.com/query"},
		{ID: "habitat", Source: service.SourceDir, File: "rugr_LC_3_tiles"},
	})

	if got := strings.Join(reg.Names(), ","); got != "habitat,rugr_LC_3_tiles,suitability" {
		t.Fatalf("names=%s", got)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /tiles/{set}/{z}/{x}/{y}", reg)

	cases := []struct {
		path   string
		status int
		body   string
	}{
		{"/tiles/habitat/2/1/0.png", http.StatusOK, "dir-tile"},
		{"/tiles/suitability/2/1/0", http.StatusOK, "\x89PNG"},
		{"/tiles/habitat/2/1/1.png", http.StatusNoContent, ""},
		{"/tiles/unknown/2/1/0.png", http.StatusNotFound, ""},
		{"/tiles/habitat/z/1/0.png", http.StatusBadRequest, ""},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, c.path, nil))
		if rec.Code != c.status {
			t.Fatalf("%s: status=%d, want %d", c.path, rec.Code, c.status)
		}
		if c.body != "" && rec.Body.String() != c.body {
			t.Fatalf("%s: body=%q, want %q", c.path, rec.Body.String(), c.body)
		}
		if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
			t.Fatalf("%s: missing CORS header", c.path)
		}
	}

	// Removing the layer drops its store; file tile sets stay.
	reg.Sync(nil)
	if got := strings.Join(reg.Names(), ","); got != "rugr_LC_3_tiles,suitability" {
		t.Fatalf("names after sync=%s", got)
	}
}
