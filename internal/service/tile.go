package service

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// TileService lists the tile sets stored under <data>/tiles.
type TileService struct {
	tilesDir string
}

// NewTileService creates a new tile service.
func NewTileService(dataDir string) *TileService {
	return &TileService{
		tilesDir: filepath.Join(dataDir, "tiles"),
	}
}

// List returns all PMTiles archives, MBTiles databases and {z}/{x}/{y} directories.
func (s *TileService) List() ([]TileFile, error) {
	entries, err := os.ReadDir(s.tilesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []TileFile{}, nil
		}
		return nil, err
	}

	files := []TileFile{}
	for _, entry := range entries {
		if entry.IsDir() {
			size, err := dirSize(filepath.Join(s.tilesDir, entry.Name()))
			if err != nil {
				continue
			}
			files = append(files, TileFile{Name: entry.Name(), Format: SourceDir, Size: formatSize(size)})
			continue
		}

		ext := filepath.Ext(entry.Name())
		var format string
		switch ext {
		case ".pmtiles":
			format = SourcePMTiles
		case ".mbtiles":
			format = SourceMBTiles
		default:
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		files = append(files, TileFile{
			Name:   strings.TrimSuffix(entry.Name(), ext),
			Format: format,
			Size:   formatSize(info.Size()),
		})
	}

	return files, nil
}

// TilesDir returns the path to the tiles directory.
func (s *TileService) TilesDir() string {
	return s.tilesDir
}

func dirSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}

// formatSize returns a human-readable file size.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
