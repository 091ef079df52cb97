package arcgis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/grousemap/internal/service"
)

// Catalog receives an overlay for every written layer.
type Catalog interface {
	Create(layer service.Layer) (service.Layer, error)
}

// Pipeline downloads every layer of a FeatureServer, cleans it with the
// schema, applies the rules and writes one GeoJSON file per layer.
type Pipeline struct {
	Client     *Client
	ServiceURL string
	Schema     Schema
	Rules      Rules
	OutDir     string
	// Catalog, when set, gets a hidden overlay for each new file.
	Catalog Catalog
}

// Report summarizes a run.
type Report struct {
	Written []string          `json:"written"`
	Failed  map[string]string `json:"failed,omitempty"`
}

// Run processes every service layer. A layer that fails is logged and
// skipped; Run only errors when the service itself cannot be read.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	report := Report{Failed: map[string]string{}}

	serviceURL := p.ServiceURL
	if serviceURL == "" {
		serviceURL = DefaultServiceURL
	}
	info, err := p.Client.Service(ctx, serviceURL)
	if err != nil {
		return report, err
	}
	if err := os.MkdirAll(p.OutDir, 0755); err != nil {
		return report, fmt.Errorf("creating output directory: %w", err)
	}

	for _, l := range info.Layers {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		log := slog.With("layer", l.Name, "id", l.ID)

		file, err := p.runLayer(ctx, serviceURL, l)
		if err != nil {
			log.Warn("skipping layer", "err", err)
			report.Failed[l.Name] = err.Error()
			continue
		}
		log.Info("wrote layer", "file", file)
		report.Written = append(report.Written, file)

		if p.Catalog != nil {
			p.register(l.Name, filepath.Base(file))
		}
	}
	return report, nil
}

func (p *Pipeline) runLayer(ctx context.Context, serviceURL string, l LayerInfo) (string, error) {
	fc, err := p.Client.Query(ctx, LayerURL(serviceURL, l.ID))
	if err != nil {
		return "", err
	}
	p.Schema.Clean(l.Name, fc)
	if !p.Rules.Apply(l.Name, fc) {
		slog.Debug("no rules for layer", "layer", l.Name)
	}

	name, err := fileName(l.Name)
	if err != nil {
		return "", err
	}
	path := filepath.Join(p.OutDir, name)
	if err := writeGeoJSON(path, fc); err != nil {
		return "", err
	}
	return path, nil
}

func (p *Pipeline) register(layerName, file string) {
	_, err := p.Catalog.Create(service.Layer{
		Name:    layerName,
		Kind:    service.KindOverlay,
		Source:  service.SourceGeoJSON,
		File:    file,
		Opacity: 1,
	})
	if err != nil && !errors.Is(err, service.ErrLayerExists) {
		slog.Warn("could not register layer", "layer", layerName, "err", err)
	}
}

// fileName turns a layer name into "<name>.geojson", refusing names that
// would escape the output directory.
func fileName(layer string) (string, error) {
	name := strings.TrimSpace(layer)
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", fmt.Errorf("layer name %q is not usable as a file name", layer)
	}
	return name + ".geojson", nil
}

func writeGeoJSON(path string, fc *geojson.FeatureCollection) error {
	data, err := json.MarshalIndent(fc, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
