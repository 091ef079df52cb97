package tilestore

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/joeblew999/grousemap/internal/fetch"
)

// ProxyOptions tunes an upstream proxy.
type ProxyOptions struct {
	// FlipY addresses upstream rows bottom-up even when the template uses {y}.
	FlipY bool
	// CacheSize is the number of tiles kept in memory; 0 selects 512.
	CacheSize int
	// CacheTTL is how long a cached tile is served; 0 selects one hour.
	CacheTTL time.Duration
}

// Proxy fetches tiles from an upstream XYZ server. The URL template may use
// {z}, {x}, {y} and {-y} (TMS row).
type Proxy struct {
	template string
	flipY    bool
	fetcher  *fetch.Client
	cache    *cache
}

// NewProxy creates a proxy for an upstream URL template.
func NewProxy(template string, fetcher *fetch.Client, opts ProxyOptions) *Proxy {
	if fetcher == nil {
		fetcher = fetch.New(fetch.Config{})
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 512
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	return &Proxy{
		template: template,
		flipY:    opts.FlipY,
		fetcher:  fetcher,
		cache:    newCache(opts.CacheSize, opts.CacheTTL),
	}
}

// URL expands the template for z/x/y.
func (p *Proxy) URL(z, x, y int) string {
	row := y
	if p.flipY && !strings.Contains(p.template, "{-y}") {
		row = flipY(z, y)
	}
	return strings.NewReplacer(
		"{z}", strconv.Itoa(z),
		"{x}", strconv.Itoa(x),
		"{-y}", strconv.Itoa(flipY(z, y)),
		"{y}", strconv.Itoa(row),
	).Replace(p.template)
}

func (p *Proxy) Tile(ctx context.Context, z, x, y int) (Tile, error) {
	if !validTile(z, x, y) {
		return Tile{}, ErrNotFound
	}
	url := p.URL(z, x, y)
	if t, ok := p.cache.get(url); ok {
		return t, nil
	}

	data, contentType, err := p.fetcher.Get(ctx, url)
	var se *fetch.StatusError
	if errors.As(err, &se) && se.Status == http.StatusNotFound {
		return Tile{}, ErrNotFound
	}
	if err != nil {
		return Tile{}, err
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	t := Tile{Data: data, ContentType: contentType}
	p.cache.set(url, t)
	return t, nil
}

func (p *Proxy) Close() error { return nil }
