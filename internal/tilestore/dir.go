package tilestore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
)

// dirExtensions are tried in order for each tile.
var dirExtensions = []struct {
	ext, contentType string
}{
	{".png", "image/png"},
	{".jpg", "image/jpeg"},
	{".jpeg", "image/jpeg"},
	{".webp", "image/webp"},
	{".pbf", "application/vnd.mapbox-vector-tile"},
	{".mvt", "application/vnd.mapbox-vector-tile"},
}

// Dir serves a {z}/{x}/{y}.<ext> tree, as written by gdal2tiles --xyz.
// With flipY the rows on disk are TMS numbered (gdal2tiles default).
type Dir struct {
	root  string
	flipY bool
}

// NewDir creates a store over root.
func NewDir(root string, flipY bool) *Dir {
	return &Dir{root: root, flipY: flipY}
}

func (d *Dir) Tile(_ context.Context, z, x, y int) (Tile, error) {
	if !validTile(z, x, y) {
		return Tile{}, ErrNotFound
	}
	row := y
	if d.flipY {
		row = flipY(z, y)
	}
	base := filepath.Join(d.root, strconv.Itoa(z), strconv.Itoa(x), strconv.Itoa(row))
	for _, e := range dirExtensions {
		data, err := os.ReadFile(base + e.ext)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return Tile{}, err
		}
		return Tile{Data: data, ContentType: e.contentType}, nil
	}
	return Tile{}, ErrNotFound
}

func (d *Dir) Close() error { return nil }
