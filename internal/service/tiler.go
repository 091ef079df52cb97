package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeblew999/grousemap/internal/tiler"
	"github.com/joeblew999/grousemap/internal/tiler/gotiler"
)

// TilerService turns boundary sources into PMTiles archives.
type TilerService struct {
	sourcesDir string
	tilesDir   string
	engines    []func(ProgressFunc) tiler.Tiler
}

// NewTilerService creates a tiler service that prefers tippecanoe when it
// is installed and falls back to the pure Go engine.
func NewTilerService(dataDir string) *TilerService {
	return &TilerService{
		sourcesDir: filepath.Join(dataDir, "sources"),
		tilesDir:   filepath.Join(dataDir, "tiles"),
		engines: []func(ProgressFunc) tiler.Tiler{
			func(onProgress ProgressFunc) tiler.Tiler {
				// Scale tippecanoe's 0-100% to 10-90% of ours.
				return &tiler.Tippecanoe{Progress: func(pct float64) {
					onProgress(10+int(pct*0.8), fmt.Sprintf("Processing: %.1f%%", pct))
				}}
			},
			func(ProgressFunc) tiler.Tiler { return gotiler.New() },
		},
	}
}

// TileGenerateOptions contains options for tile generation.
type TileGenerateOptions struct {
	SourceFile string `json:"sourceFile" required:"true" doc:"Source file name" example:"WV State Parks.geojson"`
	OutputName string `json:"outputName" required:"true" doc:"Output tile set name" example:"state_parks"`
	LayerName  string `json:"layerName,omitempty" doc:"Layer name in tiles"`
	MinZoom    int    `json:"minZoom" minimum:"0" maximum:"22" doc:"Minimum zoom level"`
	MaxZoom    int    `json:"maxZoom" minimum:"0" maximum:"22" doc:"Maximum zoom level"`
	Engine     string `json:"engine,omitempty" enum:"tippecanoe,go" doc:"Force a tiling engine"`
}

// ProgressFunc is called with progress updates during tile generation.
type ProgressFunc func(progress int, status string)

// Generate creates a PMTiles archive from a source file and returns its path.
func (s *TilerService) Generate(ctx context.Context, opts TileGenerateOptions, onProgress ProgressFunc) (string, error) {
	if onProgress == nil {
		onProgress = func(int, string) {}
	}
	if err := s.ValidateSourceFile(opts.SourceFile); err != nil {
		return "", err
	}

	if opts.LayerName == "" {
		opts.LayerName = strings.TrimSuffix(opts.SourceFile, filepath.Ext(opts.SourceFile))
	}
	if opts.MinZoom == 0 && opts.MaxZoom == 0 {
		opts.MaxZoom = 14
	}
	if !strings.HasSuffix(opts.OutputName, ".pmtiles") {
		opts.OutputName += ".pmtiles"
	}

	engine, err := s.engine(opts.Engine, onProgress)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.tilesDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create tiles directory: %w", err)
	}

	onProgress(10, fmt.Sprintf("Tiling with %s...", engine.Name()))
	outputPath := filepath.Join(s.tilesDir, opts.OutputName)
	err = engine.Tile(ctx, filepath.Join(s.sourcesDir, opts.SourceFile), outputPath, tiler.TileConfig{
		Layer:   opts.LayerName,
		MinZoom: opts.MinZoom,
		MaxZoom: opts.MaxZoom,
	})
	if err != nil {
		return "", fmt.Errorf("tile generation failed: %w", err)
	}

	onProgress(100, "Tiles generated successfully!")
	return outputPath, nil
}

func (s *TilerService) engine(name string, onProgress ProgressFunc) (tiler.Tiler, error) {
	for _, newEngine := range s.engines {
		e := newEngine(onProgress)
		if name != "" && e.Name() != name {
			continue
		}
		if e.Available() {
			return e, nil
		}
	}
	if name != "" {
		return nil, fmt.Errorf("tiling engine %q is not available", name)
	}
	return nil, fmt.Errorf("no tiling engine available")
}

// ValidateSourceFile checks if a source file exists and has a valid extension.
func (s *TilerService) ValidateSourceFile(filename string) error {
	if strings.Contains(filename, "/") || strings.Contains(filename, "\\") || strings.Contains(filename, "..") {
		return fmt.Errorf("invalid filename")
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".geojson" && ext != ".json" {
		return fmt.Errorf("unsupported file type: %s", ext)
	}

	if _, err := os.Stat(filepath.Join(s.sourcesDir, filename)); os.IsNotExist(err) {
		return fmt.Errorf("source file not found: %s", filename)
	}

	return nil
}
