// Package arcgis downloads public-land boundaries from ArcGIS FeatureServer
// services and normalizes them into GeoJSON sources for the viewer.
package arcgis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/grousemap/internal/fetch"
)

// DefaultServiceURL is the West Virginia public lands FeatureServer.
const DefaultServiceURL = "https://services6.arcgis.com/cGI8zn9Oo7U9dF6z/arcgis/rest/services/WV_Public_Lands_pro/FeatureServer"

// LayerInfo is one layer listed in the service metadata.
type LayerInfo struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ServiceInfo is the part of the FeatureServer metadata we use.
type ServiceInfo struct {
	Layers []LayerInfo `json:"layers"`
}

// Error is an error reported inside an ArcGIS JSON response body, which
// ArcGIS sends with HTTP 200.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("arcgis error %d: %s", e.Code, e.Message)
}

// Client talks to ArcGIS REST services.
type Client struct {
	fetcher *fetch.Client
}

// NewClient creates a client. A nil fetcher uses default limits.
func NewClient(fetcher *fetch.Client) *Client {
	if fetcher == nil {
		fetcher = fetch.New(fetch.Config{})
	}
	return &Client{fetcher: fetcher}
}

// Service fetches the service metadata (?f=json).
func (c *Client) Service(ctx context.Context, serviceURL string) (ServiceInfo, error) {
	body, _, err := c.fetcher.Get(ctx, withQuery(serviceURL, url.Values{"f": {"json"}}))
	if err != nil {
		return ServiceInfo{}, fmt.Errorf("service metadata: %w", err)
	}
	if err := checkError(body); err != nil {
		return ServiceInfo{}, fmt.Errorf("service metadata %s: %w", serviceURL, err)
	}

	var info ServiceInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return ServiceInfo{}, fmt.Errorf("decoding service metadata %s: %w", serviceURL, err)
	}
	return info, nil
}

// LayerURL returns the URL of layer id within a service.
func LayerURL(serviceURL string, id int) string {
	return strings.TrimRight(serviceURL, "/") + "/" + strconv.Itoa(id)
}

// QueryURL returns the query returning every feature of a layer as GeoJSON.
func QueryURL(layerURL string) string {
	return withQuery(strings.TrimRight(layerURL, "/")+"/query", url.Values{
		"where":          {"1=1"},
		"outFields":      {"*"},
		"f":              {"geojson"},
		"returnGeometry": {"true"},
	})
}

// Query downloads every feature of a layer.
func (c *Client) Query(ctx context.Context, layerURL string) (*geojson.FeatureCollection, error) {
	body, _, err := c.fetcher.Get(ctx, QueryURL(layerURL))
	if err != nil {
		return nil, fmt.Errorf("query layer %s: %w", layerURL, err)
	}
	if err := checkError(body); err != nil {
		return nil, fmt.Errorf("query layer %s: %w", layerURL, err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, fmt.Errorf("decoding layer %s: %w", layerURL, err)
	}
	return fc, nil
}

func checkError(body []byte) error {
	var envelope struct {
		Error *Error `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error != nil {
		return envelope.Error
	}
	return nil
}

func withQuery(base string, q url.Values) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + q.Encode()
}
