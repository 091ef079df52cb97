package service

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// LayerService manages the layer catalog and its visibility/opacity state.
type LayerService struct {
	dataDir string
	layers  map[string]Layer
	bus     *EventBus
	mu      sync.RWMutex
}

// NewLayerService creates a new layer service. With a nil bus changes are
// not published.
func NewLayerService(dataDir string, bus *EventBus) *LayerService {
	if bus == nil {
		bus = NewEventBus()
	}
	s := &LayerService{
		dataDir: dataDir,
		layers:  make(map[string]Layer),
		bus:     bus,
	}
	s.loadFromDisk()
	return s
}

// Seed populates an empty catalog. It is a no-op once any layer exists,
// so state persisted in layers.json survives restarts.
func (s *LayerService) Seed(layers []Layer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.layers) > 0 {
		return nil
	}

	layers = append([]Layer(nil), layers...)
	assignColors(layers)
	for i, layer := range layers {
		if layer.ID == "" {
			layer.ID = generateID(layer.Name)
		}
		if layer.Order == 0 {
			layer.Order = i + 1
		}
		s.layers[layer.ID] = layer
	}
	if err := s.saveToDisk(); err != nil {
		s.layers = make(map[string]Layer)
		return err
	}
	return nil
}

// List returns all layers in draw order.
func (s *LayerService) List() []Layer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Layer, 0, len(s.layers))
	for _, v := range s.layers {
		result = append(result, v)
	}
	sortLayers(result)
	return result
}

// VisibleOverlays returns the visible vector overlays, topmost first.
func (s *LayerService) VisibleOverlays() []Layer {
	var result []Layer
	for _, l := range s.List() {
		if l.Kind == KindOverlay && l.Visible && l.IsVector() {
			result = append(result, l)
		}
	}
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result
}

// Get returns a layer by ID.
func (s *LayerService) Get(id string) (Layer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	layer, ok := s.layers[id]
	return layer, ok
}

// Create adds a new layer.
func (s *LayerService) Create(layer Layer) (Layer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if layer.ID == "" {
		layer.ID = generateID(layer.Name)
	}
	if layer.ID == "" {
		return Layer{}, fmt.Errorf("%w: name %q does not produce a valid ID", ErrInvalidLayer, layer.Name)
	}
	if _, exists := s.layers[layer.ID]; exists {
		return Layer{}, fmt.Errorf("layer %q: %w", layer.ID, ErrLayerExists)
	}
	if !ValidFile(layer.File) {
		return Layer{}, fmt.Errorf("%w: file %q must be relative to the data directory", ErrInvalidLayer, layer.File)
	}
	layer.Opacity = clampUnit(layer.Opacity)
	if layer.Order == 0 {
		layer.Order = s.nextOrder()
	}

	s.layers[layer.ID] = layer
	if err := s.saveToDisk(); err != nil {
		delete(s.layers, layer.ID)
		return Layer{}, err
	}
	s.publish("created", layer.ID)
	return layer, nil
}

// Update replaces a layer by ID.
func (s *LayerService) Update(id string, layer Layer) (Layer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.layers[id]
	if !exists {
		return Layer{}, fmt.Errorf("layer %q: %w", id, ErrLayerNotFound)
	}
	if !ValidFile(layer.File) {
		return Layer{}, fmt.Errorf("%w: file %q must be relative to the data directory", ErrInvalidLayer, layer.File)
	}

	layer.ID = id
	layer.Opacity = clampUnit(layer.Opacity)
	s.layers[id] = layer
	if err := s.saveToDisk(); err != nil {
		s.layers[id] = prev
		return Layer{}, err
	}
	s.publish("updated", id)
	return layer, nil
}

// Delete removes a layer by ID.
func (s *LayerService) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.layers[id]
	if !exists {
		return fmt.Errorf("layer %q: %w", id, ErrLayerNotFound)
	}

	delete(s.layers, id)
	if err := s.saveToDisk(); err != nil {
		s.layers[id] = prev
		return err
	}
	s.publish("deleted", id)
	return nil
}

// Toggle flips the visibility of exactly one layer and returns it.
func (s *LayerService) Toggle(id string) (Layer, error) {
	return s.mutate(id, "toggled", func(l *Layer) {
		l.Visible = !l.Visible
	})
}

// SetVisible sets the visibility of one layer.
func (s *LayerService) SetVisible(id string, visible bool) (Layer, error) {
	return s.mutate(id, "toggled", func(l *Layer) {
		l.Visible = visible
	})
}

// SetOpacity applies a 0-100 slider value: opacity becomes percent/100 and
// the readout becomes "percent%". Out-of-range values are clamped.
func (s *LayerService) SetOpacity(id string, percent int) (OpacityState, error) {
	percent = max(0, min(100, percent))
	_, err := s.mutate(id, "opacity", func(l *Layer) {
		l.Opacity = float64(percent) / 100
	})
	if err != nil {
		return OpacityState{}, err
	}
	return OpacityState{
		ID:      id,
		Percent: percent,
		Opacity: float64(percent) / 100,
		Label:   fmt.Sprintf("%d%%", percent),
	}, nil
}

// SelectBase makes id the only visible base layer.
func (s *LayerService) SelectBase(id string) ([]Layer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.layers[id]
	if !ok {
		return nil, fmt.Errorf("layer %q: %w", id, ErrLayerNotFound)
	}
	if target.Kind != KindBase {
		return nil, fmt.Errorf("%w: layer %q is not a base layer", ErrInvalidLayer, id)
	}

	var changed []Layer
	for lid, l := range s.layers {
		if l.Kind != KindBase {
			continue
		}
		want := lid == id
		if l.Visible != want {
			l.Visible = want
			s.layers[lid] = l
			changed = append(changed, l)
		}
	}
	if err := s.saveToDisk(); err != nil {
		for _, l := range changed {
			l.Visible = !l.Visible
			s.layers[l.ID] = l
		}
		return nil, err
	}
	sortLayers(changed)
	for _, l := range changed {
		s.publish("toggled", l.ID)
	}
	return changed, nil
}

func (s *LayerService) mutate(id, action string, fn func(*Layer)) (Layer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	layer, ok := s.layers[id]
	if !ok {
		return Layer{}, fmt.Errorf("layer %q: %w", id, ErrLayerNotFound)
	}
	prev := layer
	fn(&layer)
	s.layers[id] = layer
	if err := s.saveToDisk(); err != nil {
		s.layers[id] = prev
		return Layer{}, err
	}
	s.publish(action, id)
	return layer, nil
}

func (s *LayerService) publish(action, id string) {
	s.bus.Publish(Event{Resource: ResourceLayers, Action: action, ID: id})
}

func (s *LayerService) nextOrder() int {
	n := 0
	for _, l := range s.layers {
		n = max(n, l.Order)
	}
	return n + 1
}

// configFile returns the path to the layers config file.
func (s *LayerService) configFile() string {
	return filepath.Join(s.dataDir, "layers.json")
}

// loadFromDisk loads the catalog from disk.
func (s *LayerService) loadFromDisk() {
	data, err := os.ReadFile(s.configFile())
	if err != nil {
		return // File doesn't exist yet, start empty
	}

	var layers map[string]Layer
	if err := json.Unmarshal(data, &layers); err != nil {
		slog.Warn("ignoring unreadable layer catalog", "file", s.configFile(), "err", err)
		return
	}

	s.layers = layers
}

// saveToDisk persists the catalog to disk.
func (s *LayerService) saveToDisk() error {
	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s.layers, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.configFile(), data, 0644)
}

func sortLayers(layers []Layer) {
	sort.SliceStable(layers, func(i, j int) bool {
		if layers[i].Order != layers[j].Order {
			return layers[i].Order < layers[j].Order
		}
		return layers[i].ID < layers[j].ID
	})
}

func clampUnit(v float64) float64 {
	return max(0, min(1, v))
}

// generateID creates a URL-safe ID from a name.
func generateID(name string) string {
	id := strings.ToLower(name)
	id = strings.ReplaceAll(id, " ", "_")
	var result strings.Builder
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			result.WriteRune(r)
		}
	}
	return result.String()
}
