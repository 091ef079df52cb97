// Package gotiler generates PMTiles vector tiles in pure Go.
//
// It stands in for tippecanoe where the C++ binary is not installed. Boundary
// polygons are simplified per zoom, clipped to each tile and encoded as
// gzipped MVT with paulmach/orb.
package gotiler

import (
	"context"
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/simplify"

	"github.com/joeblew999/grousemap/internal/pmtiles"
	"github.com/joeblew999/grousemap/internal/tiler"
)

// maxZoom is the deepest zoom the pure Go engine will generate.
const maxZoom = 14

// GoTiler implements tiler.Tiler using pure Go libraries.
type GoTiler struct{}

// New creates a new GoTiler.
func New() *GoTiler {
	return &GoTiler{}
}

// Name returns the engine name.
func (g *GoTiler) Name() string {
	return "go"
}

// Available always returns true (pure Go, no external deps).
func (g *GoTiler) Available() bool {
	return true
}

// Tile converts a GeoJSON file to a PMTiles archive.
func (g *GoTiler) Tile(ctx context.Context, inputPath, outputPath string, config tiler.TileConfig) error {
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("reading geojson: %w", err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return fmt.Errorf("parsing geojson: %w", err)
	}

	return g.TileCollection(ctx, fc, outputPath, config)
}

// TileCollection tiles an in-memory feature collection.
func (g *GoTiler) TileCollection(ctx context.Context, fc *geojson.FeatureCollection, outputPath string, config tiler.TileConfig) error {
	minZ := max(0, config.MinZoom)
	maxZ := config.MaxZoom
	if maxZ <= 0 || maxZ > maxZoom {
		maxZ = maxZoom
	}
	if minZ > maxZ {
		return fmt.Errorf("min zoom %d is above max zoom %d", minZ, maxZ)
	}
	if config.Layer == "" {
		config.Layer = "default"
	}

	var tiles []pmtiles.Tile
	bound := orb.Bound{Min: orb.Point{180, 90}, Max: orb.Point{-180, -90}}
	for _, f := range fc.Features {
		if f.Geometry != nil {
			bound = bound.Union(f.Geometry.Bound())
		}
	}

	for z := minZ; z <= maxZ; z++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for tile, data := range generateZoomLevel(fc, maptile.Zoom(z), config.Layer) {
			tiles = append(tiles, pmtiles.Tile{
				Z: uint8(tile.Z), X: tile.X, Y: tile.Y, Data: data,
			})
		}
	}

	return pmtiles.WriteFile(outputPath, tiles, pmtiles.WriteOptions{
		TileType:        pmtiles.Mvt,
		TileCompression: pmtiles.Gzip,
		MinZoom:         uint8(minZ),
		MaxZoom:         uint8(maxZ),
		Bounds:          [4]float64{bound.Min[0], bound.Min[1], bound.Max[0], bound.Max[1]},
		Metadata: map[string]any{
			"name":   config.Layer,
			"format": "pbf",
			"vector_layers": []map[string]any{
				{"id": config.Layer, "minzoom": minZ, "maxzoom": maxZ},
			},
		},
	})
}

// generateZoomLevel creates MVT tiles for one zoom level.
func generateZoomLevel(fc *geojson.FeatureCollection, zoom maptile.Zoom, layerName string) map[maptile.Tile][]byte {
	tileFeatures := make(map[maptile.Tile][]*geojson.Feature)
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		for _, tile := range tilesInBounds(f.Geometry.Bound(), zoom) {
			tileFeatures[tile] = append(tileFeatures[tile], f)
		}
	}

	result := make(map[maptile.Tile][]byte)
	for tile, features := range tileFeatures {
		if data := createMVT(tile, features, layerName); len(data) > 0 {
			result[tile] = data
		}
	}
	return result
}

// createMVT encodes the features touching a tile.
func createMVT(tile maptile.Tile, features []*geojson.Feature, layerName string) []byte {
	tileBound := tile.Bound()
	fc := geojson.NewFeatureCollection()

	for _, f := range features {
		// mvt clips and projects in place, so each tile gets its own copy.
		clipped := clip.Geometry(tileBound, orb.Clone(f.Geometry))
		if clipped == nil {
			continue
		}
		clone := geojson.NewFeature(clipped)
		for k, v := range f.Properties {
			clone.Properties[k] = v
		}
		fc.Append(clone)
	}
	if len(fc.Features) == 0 {
		return nil
	}

	layer := mvt.NewLayer(layerName, fc)
	if epsilon := simplifyEpsilon(tile.Z); epsilon > 0 {
		layer.Simplify(simplify.DouglasPeucker(epsilon))
	}
	layer.ProjectToTile(tile)
	layer.RemoveEmpty(0.5, 0.5)
	if len(layer.Features) == 0 {
		return nil
	}

	data, err := mvt.MarshalGzipped(mvt.Layers{layer})
	if err != nil {
		return nil
	}
	return data
}

// tilesInBounds returns all tiles at a zoom level that intersect a bounding box.
func tilesInBounds(bounds orb.Bound, zoom maptile.Zoom) []maptile.Tile {
	minTile := maptile.At(bounds.Min, zoom)
	maxTile := maptile.At(bounds.Max, zoom)

	// Tile Y grows southward, so the corners swap.
	minX, maxX := min(minTile.X, maxTile.X), max(minTile.X, maxTile.X)
	minY, maxY := min(minTile.Y, maxTile.Y), max(minTile.Y, maxTile.Y)

	var tiles []maptile.Tile
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			tiles = append(tiles, maptile.New(x, y, zoom))
		}
	}
	return tiles
}

// simplifyEpsilon returns the simplification tolerance in degrees for a zoom.
// Public land parcels get small at statewide zooms, so tolerances stay well
// under a parcel's width.
func simplifyEpsilon(zoom maptile.Zoom) float64 {
	switch {
	case zoom >= 13:
		return 0
	case zoom >= 10:
		return 0.00005
	case zoom >= 7:
		return 0.0002
	default:
		return 0.001
	}
}

var _ tiler.Tiler = (*GoTiler)(nil)
