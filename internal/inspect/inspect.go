// Package inspect answers "what is under this point?" for the visible
// vector overlays and turns the answer into popup content.
package inspect

import (
	"context"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/joeblew999/grousemap/internal/service"
)

// PixelTolerance is how many pixels away from a point or line a click
// still counts as a hit.
const PixelTolerance = 5

// DefaultTolerance is used when the caller does not know the map resolution.
const DefaultTolerance = 0.001

// Hit is one feature under the cursor.
type Hit struct {
	Layer   service.Layer
	Feature *geojson.Feature
}

// HitTest returns the features of fc under pt. Polygons hit when they
// contain the point; points and lines hit when they are within tolerance
// degrees of it.
func HitTest(fc *geojson.FeatureCollection, pt orb.Point, tolerance float64) []*geojson.Feature {
	if fc == nil {
		return nil
	}
	var hits []*geojson.Feature
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		if hitGeometry(f.Geometry, pt, tolerance) {
			hits = append(hits, f)
		}
	}
	return hits
}

func hitGeometry(g orb.Geometry, pt orb.Point, tolerance float64) bool {
	if !g.Bound().Pad(tolerance).Contains(pt) {
		return false
	}

	switch g := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, pt)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, pt)
	case orb.Ring:
		return planar.RingContains(g, pt)
	case orb.Bound:
		return g.Contains(pt)
	case orb.Collection:
		for _, sub := range g {
			if hitGeometry(sub, pt, tolerance) {
				return true
			}
		}
		return false
	default:
		return planar.DistanceFrom(g, pt) <= tolerance
	}
}

// FeatureSource loads the feature collection behind a layer.
type FeatureSource interface {
	Collection(ctx context.Context, layer service.Layer) *geojson.FeatureCollection
}

// LayerSource lists the overlays that can be inspected.
type LayerSource interface {
	VisibleOverlays() []service.Layer
}

// Inspector hit-tests the visible overlays.
type Inspector struct {
	layers   LayerSource
	features FeatureSource
}

// New creates an inspector.
func New(layers LayerSource, features FeatureSource) *Inspector {
	return &Inspector{layers: layers, features: features}
}

// Query hit-tests every visible vector overlay at pt, topmost layer first.
// resolution is the map resolution in degrees per pixel; zero selects
// DefaultTolerance.
func (i *Inspector) Query(ctx context.Context, pt orb.Point, resolution float64) []Hit {
	tolerance := DefaultTolerance
	if resolution > 0 {
		tolerance = resolution * PixelTolerance
	}

	var hits []Hit
	for _, layer := range i.layers.VisibleOverlays() {
		if ctx.Err() != nil {
			break
		}
		for _, f := range HitTest(i.features.Collection(ctx, layer), pt, tolerance) {
			hits = append(hits, Hit{Layer: layer, Feature: f})
		}
	}
	return hits
}
