package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/grousemap/internal/fetch"
)

// failureTTL is how long a failed load is remembered before the source is
// tried again.
const failureTTL = 30 * time.Second

// FeatureSummary is one feature as listed by the features endpoint.
type FeatureSummary struct {
	Index      int            `json:"index" doc:"Position in the layer's feature collection"`
	ID         any            `json:"id,omitempty" doc:"Feature ID, if the source provides one"`
	Type       string         `json:"type" doc:"Geometry type" example:"Polygon"`
	Bound      [4]float64     `json:"bound" doc:"Bounding box as [minLon, minLat, maxLon, maxLat]"`
	Properties map[string]any `json:"properties" doc:"Feature attributes"`
}

// FeatureService loads and caches the feature collections behind vector overlays.
type FeatureService struct {
	sourcesDir string
	fetcher    *fetch.Client

	mu    sync.RWMutex
	cache map[string]cachedCollection
	now   func() time.Time
}

// cachedCollection holds either a loaded collection or, until expires, the
// error from the last failed load.
type cachedCollection struct {
	key     string
	fc      *geojson.FeatureCollection
	err     error
	expires time.Time
}

// NewFeatureService creates a feature service reading local files from
// <dataDir>/sources and remote data through fetcher.
func NewFeatureService(dataDir string, fetcher *fetch.Client) *FeatureService {
	if fetcher == nil {
		fetcher = fetch.New(fetch.Config{})
	}
	return &FeatureService{
		sourcesDir: filepath.Join(dataDir, "sources"),
		fetcher:    fetcher,
		cache:      make(map[string]cachedCollection),
		now:        time.Now,
	}
}

// Load returns the feature collection for a vector layer, fetching it on
// first use. The cache entry is keyed on the layer's URL and file, so an
// updated layer definition is reloaded. A failure is cached for failureTTL.
func (s *FeatureService) Load(ctx context.Context, layer Layer) (*geojson.FeatureCollection, error) {
	if !layer.IsVector() {
		return nil, fmt.Errorf("layer %q is not a vector layer", layer.ID)
	}

	key := layer.URL + "|" + layer.File
	s.mu.RLock()
	c, ok := s.cache[layer.ID]
	s.mu.RUnlock()
	if ok && c.key == key {
		if c.err == nil {
			return c.fc, nil
		}
		if s.now().Before(c.expires) {
			return nil, c.err
		}
	}

	fc, err := s.load(ctx, layer)
	entry := cachedCollection{key: key, fc: fc, err: err}
	if err != nil {
		entry.expires = s.now().Add(failureTTL)
	}

	s.mu.Lock()
	s.cache[layer.ID] = entry
	s.mu.Unlock()
	return fc, err
}

func (s *FeatureService) load(ctx context.Context, layer Layer) (*geojson.FeatureCollection, error) {
	data, err := s.read(ctx, layer)
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parsing geojson for layer %q: %w", layer.ID, err)
	}
	return fc, nil
}

// Collection is Load for rendering paths: a source that cannot be fetched
// or parsed yields an empty collection and a warning, never an error.
func (s *FeatureService) Collection(ctx context.Context, layer Layer) *geojson.FeatureCollection {
	fc, err := s.Load(ctx, layer)
	if err != nil {
		slog.Warn("layer data unavailable, drawing empty layer", "layer", layer.ID, "err", err)
		return geojson.NewFeatureCollection()
	}
	return fc
}

// Invalidate drops the cached collection for a layer.
func (s *FeatureService) Invalidate(id string) {
	s.mu.Lock()
	delete(s.cache, id)
	s.mu.Unlock()
}

// Features lists a page of a layer's features and the total count.
func (s *FeatureService) Features(ctx context.Context, layer Layer, offset, limit int) ([]FeatureSummary, int, error) {
	fc, err := s.Load(ctx, layer)
	if err != nil {
		return nil, 0, err
	}

	total := len(fc.Features)
	offset = max(0, min(offset, total))
	end := min(total, offset+max(0, limit))

	page := make([]FeatureSummary, 0, end-offset)
	for i := offset; i < end; i++ {
		f := fc.Features[i]
		summary := FeatureSummary{
			Index:      i,
			ID:         f.ID,
			Properties: map[string]any(f.Properties),
		}
		if f.Geometry != nil {
			b := f.Geometry.Bound()
			summary.Type = f.Geometry.GeoJSONType()
			summary.Bound = [4]float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
		}
		if summary.Properties == nil {
			summary.Properties = map[string]any{}
		}
		page = append(page, summary)
	}
	return page, total, nil
}

func (s *FeatureService) read(ctx context.Context, layer Layer) ([]byte, error) {
	if layer.File != "" {
		if !ValidFile(layer.File) {
			return nil, fmt.Errorf("invalid source file %q", layer.File)
		}
		return os.ReadFile(filepath.Join(s.sourcesDir, layer.File))
	}
	if layer.URL == "" {
		return nil, fmt.Errorf("layer %q has neither file nor url", layer.ID)
	}
	body, _, err := s.fetcher.Get(ctx, layer.URL)
	return body, err
}
