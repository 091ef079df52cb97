package tilestore

import (
	"context"
	"errors"

	"github.com/joeblew999/grousemap/internal/pmtiles"
)

// PMTiles serves tiles out of a PMTiles v3 archive.
type PMTiles struct {
	r *pmtiles.Reader
}

// OpenPMTiles opens the archive at path.
func OpenPMTiles(path string) (*PMTiles, error) {
	r, err := pmtiles.Open(path)
	if err != nil {
		return nil, err
	}
	return &PMTiles{r: r}, nil
}

func (p *PMTiles) Tile(_ context.Context, z, x, y int) (Tile, error) {
	if !validTile(z, x, y) {
		return Tile{}, ErrNotFound
	}
	data, err := p.r.Tile(uint8(z), uint32(x), uint32(y))
	if errors.Is(err, pmtiles.ErrTileNotFound) {
		return Tile{}, ErrNotFound
	}
	if err != nil {
		return Tile{}, err
	}

	h := p.r.Header()
	t := Tile{Data: data}
	switch h.TileType {
	case pmtiles.Mvt:
		t.ContentType = "application/vnd.mapbox-vector-tile"
	case pmtiles.Png:
		t.ContentType = "image/png"
	case pmtiles.Jpeg:
		t.ContentType = "image/jpeg"
	case pmtiles.Webp:
		t.ContentType = "image/webp"
	case pmtiles.Avif:
		t.ContentType = "image/avif"
	default:
		t.ContentType = "application/octet-stream"
	}
	switch h.TileCompression {
	case pmtiles.Gzip:
		t.Encoding = "gzip"
	case pmtiles.Brotli:
		t.Encoding = "br"
	case pmtiles.Zstd:
		t.Encoding = "zstd"
	}
	return t, nil
}

func (p *PMTiles) Close() error {
	return p.r.Close()
}
