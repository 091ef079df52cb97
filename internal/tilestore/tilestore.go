// Package tilestore serves XYZ tiles out of several backends: {z}/{x}/{y}
// directory trees, MBTiles databases, PMTiles archives and rate-limited
// upstream tile servers.
package tilestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/joeblew999/grousemap/internal/fetch"
	"github.com/joeblew999/grousemap/internal/service"
)

// ErrNotFound is returned when a store has no tile at the address.
var ErrNotFound = errors.New("tile not found")

// Tile is one tile ready to be written to a response.
type Tile struct {
	Data        []byte
	ContentType string
	Encoding    string // Content-Encoding, e.g. "gzip" for PMTiles vector tiles
}

// Store is a source of XYZ tiles. y counts from the top (XYZ, not TMS).
type Store interface {
	Tile(ctx context.Context, z, x, y int) (Tile, error)
	Close() error
}

// validTile reports whether z/x/y addresses a tile of the world pyramid.
func validTile(z, x, y int) bool {
	if z < 0 || z > 30 {
		return false
	}
	n := 1 << z
	return x >= 0 && x < n && y >= 0 && y < n
}

// flipY converts between XYZ and TMS row numbering.
func flipY(z, y int) int {
	return (1 << z) - 1 - y
}

// Registry holds the named tile sets served under /tiles/{set}.
type Registry struct {
	tilesDir string
	fetcher  *fetch.Client

	mu     sync.RWMutex
	stores map[string]entry
}

type entry struct {
	key   string
	store Store
}

// NewRegistry creates an empty registry. Relative layer files resolve
// against tilesDir; upstream tiles are fetched through fetcher.
func NewRegistry(tilesDir string, fetcher *fetch.Client) *Registry {
	if fetcher == nil {
		fetcher = fetch.New(fetch.Config{})
	}
	return &Registry{
		tilesDir: tilesDir,
		fetcher:  fetcher,
		stores:   make(map[string]entry),
	}
}

// Get returns the store registered under name.
func (r *Registry) Get(name string) (Store, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.stores[name]
	return e.store, ok
}

// Names returns the registered tile set names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.stores))
	for name := range r.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Add registers s under name, closing any store it replaces.
func (r *Registry) Add(name string, s Store) {
	r.add(name, "", s)
}

func (r *Registry) add(name, key string, s Store) {
	r.mu.Lock()
	old, ok := r.stores[name]
	r.stores[name] = entry{key: key, store: s}
	r.mu.Unlock()
	if ok {
		old.store.Close()
	}
}

// Sync makes the registry match the raster layers of the catalog plus the
// tile sets found in the tiles directory. Stores whose definition did not
// change are kept open.
func (r *Registry) Sync(layers []service.Layer) {
	want := map[string]string{}
	for _, l := range layers {
		if key := layerKey(l); key != "" {
			want[l.ID] = key
			r.syncOne(l.ID, key, func() (Store, error) { return r.openLayer(l) })
		}
	}

	for _, tf := range r.localTileSets() {
		if _, taken := want[tf.name]; taken {
			continue
		}
		key := "file|" + tf.path
		want[tf.name] = key
		r.syncOne(tf.name, key, tf.open)
	}

	r.mu.Lock()
	var stale []Store
	for name, e := range r.stores {
		if e.key == "" {
			continue // added by hand
		}
		if _, ok := want[name]; !ok {
			stale = append(stale, e.store)
			delete(r.stores, name)
		}
	}
	r.mu.Unlock()
	for _, s := range stale {
		s.Close()
	}
}

func (r *Registry) syncOne(name, key string, open func() (Store, error)) {
	r.mu.RLock()
	e, ok := r.stores[name]
	r.mu.RUnlock()
	if ok && e.key == key {
		return
	}
	s, err := open()
	if err != nil {
		slog.Warn("tile set unavailable", "set", name, "err", err)
		return
	}
	r.add(name, key, s)
}

// layerKey identifies a servable layer definition, or "" for layers that
// are not served as tiles.
func layerKey(l service.Layer) string {
	switch l.Source {
	case service.SourceXYZ, service.SourceDir, service.SourceMBTiles, service.SourcePMTiles:
		return fmt.Sprintf("%s|%s|%s|%t", l.Source, l.URL, l.File, l.FlipY)
	}
	return ""
}

func (r *Registry) openLayer(l service.Layer) (Store, error) {
	switch l.Source {
	case service.SourceXYZ:
		return NewProxy(l.URL, r.fetcher, ProxyOptions{FlipY: l.FlipY}), nil
	}
	if !service.ValidFile(l.File) {
		return nil, fmt.Errorf("layer %q: file %q must be relative to the tiles directory", l.ID, l.File)
	}
	path := filepath.Join(r.tilesDir, l.File)
	switch l.Source {
	case service.SourceDir:
		return NewDir(path, l.FlipY), nil
	case service.SourceMBTiles:
		return OpenMBTiles(path)
	case service.SourcePMTiles:
		return OpenPMTiles(path)
	}
	return nil, fmt.Errorf("layer %q: source %q is not a tile source", l.ID, l.Source)
}

type localTileSet struct {
	name string
	path string
	open func() (Store, error)
}

func (r *Registry) localTileSets() []localTileSet {
	entries, err := os.ReadDir(r.tilesDir)
	if err != nil {
		return nil
	}
	var sets []localTileSet
	for _, e := range entries {
		path := filepath.Join(r.tilesDir, e.Name())
		switch ext := filepath.Ext(e.Name()); {
		case e.IsDir():
			sets = append(sets, localTileSet{e.Name(), path, func() (Store, error) { return NewDir(path, false), nil }})
		case ext == ".mbtiles":
			sets = append(sets, localTileSet{strings.TrimSuffix(e.Name(), ext), path, func() (Store, error) { return OpenMBTiles(path) }})
		case ext == ".pmtiles":
			sets = append(sets, localTileSet{strings.TrimSuffix(e.Name(), ext), path, func() (Store, error) { return OpenPMTiles(path) }})
		}
	}
	return sets
}

// Close closes every registered store.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for name, e := range r.stores {
		if err := e.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		delete(r.stores, name)
	}
	return errors.Join(errs...)
}
