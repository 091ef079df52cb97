// Package service contains business logic for the grousemap viewer.
package service

import (
	"errors"
	"path/filepath"
	"strings"
)

// ErrLayerNotFound is returned when a layer ID is not in the catalog.
var ErrLayerNotFound = errors.New("layer not found")

// ErrLayerExists is returned when creating a layer whose ID is taken.
var ErrLayerExists = errors.New("layer already exists")

// ErrInvalidLayer is returned for a layer definition or request the catalog
// cannot accept.
var ErrInvalidLayer = errors.New("invalid layer")

// ValidFile reports whether name is a relative path that stays inside the
// directory it is joined to.
func ValidFile(name string) bool {
	return !filepath.IsAbs(name) && !strings.Contains(name, "..")
}

// Layer kinds.
const (
	KindBase    = "base"
	KindOverlay = "overlay"
)

// Layer source types.
const (
	SourceOSM     = "osm"
	SourceXYZ     = "xyz"
	SourceGeoJSON = "geojson"
	SourceArcGIS  = "arcgis"
	SourcePMTiles = "pmtiles"
	SourceMBTiles = "mbtiles"
	SourceDir     = "dir"
)

// Layer describes one entry of the map's layer catalog.
// Huma reads the tags for OpenAPI + validation; the panel templates read
// the same struct to render each data-layer control.
type Layer struct {
	ID          string       `json:"id,omitempty" doc:"Unique layer identifier, also the data-layer attribute" example:"stateForest"`
	Name        string       `json:"name" required:"true" minLength:"1" maxLength:"100" doc:"Display name" example:"WV State Forests"`
	Kind        string       `json:"kind" required:"true" enum:"base,overlay" doc:"Base layers fill the background, overlays draw above" example:"overlay"`
	Source      string       `json:"source" required:"true" enum:"osm,xyz,geojson,arcgis,pmtiles,mbtiles,dir" doc:"Where the layer data comes from" example:"arcgis"`
	URL         string       `json:"url,omitempty" doc:"Tile URL template or vector data URL" example:"https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/{z}/{y}/{x}"`
	File        string       `json:"file,omitempty" doc:"Local data file under the data directory" example:"WV State Parks.geojson"`
	MinZoom     int          `json:"minZoom,omitempty" minimum:"0" maximum:"22" doc:"Minimum zoom level"`
	MaxZoom     int          `json:"maxZoom,omitempty" minimum:"0" maximum:"22" doc:"Maximum zoom level" example:"19"`
	FlipY       bool         `json:"flipY,omitempty" doc:"Tiles are addressed bottom-up (TMS, {-y})"`
	Visible     bool         `json:"visible" required:"false" doc:"Whether the layer is currently shown"`
	Opacity     float64      `json:"opacity" required:"false" minimum:"0" maximum:"1" default:"1" doc:"Layer opacity (0-1)" example:"0.7"`
	Fill        string       `json:"fill,omitempty" doc:"Fill color (CSS) for vector overlays" example:"#3388ff"`
	Stroke      string       `json:"stroke,omitempty" doc:"Stroke color (CSS) for vector overlays" example:"#2266cc"`
	Attribution string       `json:"attribution,omitempty" doc:"Attribution text shown on the map"`
	Order       int          `json:"order" required:"false" doc:"Draw order, lower draws first"`
	Legend      []LegendItem `json:"legend,omitempty" doc:"Legend entries for this layer"`
}

// IsVector reports whether the layer is drawn from a feature collection
// the inspector can hit-test.
func (l Layer) IsVector() bool {
	return l.Source == SourceGeoJSON || l.Source == SourceArcGIS
}

// OpacityPercent returns the opacity as the 0-100 slider value.
func (l Layer) OpacityPercent() int {
	return int(l.Opacity*100 + 0.5)
}

// LegendItem defines a legend entry.
type LegendItem struct {
	Label string `json:"label" doc:"Legend label"`
	Color string `json:"color" doc:"Legend color (CSS)"`
}

// OpacityState is the result of moving an opacity slider.
type OpacityState struct {
	ID      string  `json:"id" doc:"Layer ID"`
	Percent int     `json:"percent" minimum:"0" maximum:"100" doc:"Slider value"`
	Opacity float64 `json:"opacity" minimum:"0" maximum:"1" doc:"Applied opacity (percent/100)"`
	Label   string  `json:"label" doc:"Readout text" example:"70%"`
}

// MapView is the initial view of the map.
type MapView struct {
	Center [2]float64 `json:"center" doc:"Center as [lon, lat]" example:"[-80.181745,38.92017]"`
	Zoom   float64    `json:"zoom" doc:"Initial zoom level" example:"7"`
}

// SourceFile represents a source data file (GeoJSON, etc.).
type SourceFile struct {
	Name     string `json:"name" doc:"File name" example:"WV State Parks.geojson"`
	Size     string `json:"size" doc:"Human-readable file size" example:"1.2 MB"`
	FileType string `json:"fileType" doc:"File type" example:"GeoJSON"`
}

// TileFile represents a local tile set.
type TileFile struct {
	Name   string `json:"name" doc:"Tile set name" example:"suitability"`
	Format string `json:"format" enum:"pmtiles,mbtiles,dir" doc:"Storage format"`
	Size   string `json:"size" doc:"Human-readable size" example:"5.4 MB"`
}
