// Package tiler turns boundary GeoJSON into vector tile archives.
package tiler

import "context"

// TileConfig describes one tiling run.
type TileConfig struct {
	Layer   string // layer name inside the tiles
	MinZoom int
	MaxZoom int
}

// Tiler is a tile generation engine.
type Tiler interface {
	Name() string
	Available() bool
	Tile(ctx context.Context, inputPath, outputPath string, config TileConfig) error
}
