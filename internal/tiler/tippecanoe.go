package tiler

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Tippecanoe runs the tippecanoe binary.
type Tippecanoe struct {
	// Progress, if set, receives tippecanoe's own percentage (0-100).
	Progress func(pct float64)
}

// Name returns the engine name.
func (t *Tippecanoe) Name() string {
	return "tippecanoe"
}

// Available reports whether tippecanoe is on PATH.
func (t *Tippecanoe) Available() bool {
	_, err := exec.LookPath("tippecanoe")
	return err == nil
}

// Tile runs tippecanoe on a GeoJSON file.
func (t *Tippecanoe) Tile(ctx context.Context, inputPath, outputPath string, config TileConfig) error {
	if config.Layer == "" {
		config.Layer = "default"
	}
	if config.MaxZoom == 0 {
		config.MaxZoom = 14
	}

	args := []string{
		"-o", outputPath,
		"-l", config.Layer,
		"-Z", strconv.Itoa(config.MinZoom),
		"-z", strconv.Itoa(config.MaxZoom),
		"--force",
		"--no-tile-size-limit",
		"--coalesce-densest-as-needed",
		inputPath,
	}

	cmd := exec.CommandContext(ctx, "tippecanoe", args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to get stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return errors.New("tippecanoe is not installed")
		}
		return fmt.Errorf("failed to start tippecanoe: %w", err)
	}

	// Tippecanoe reports progress like "99.9%  11/14".
	var last string
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()
		last = line
		if t.Progress == nil || !strings.Contains(line, "%") {
			continue
		}
		if parts := strings.Fields(line); len(parts) > 0 {
			if pct, err := strconv.ParseFloat(strings.TrimSuffix(parts[0], "%"), 64); err == nil {
				t.Progress(pct)
			}
		}
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("tippecanoe failed: %w (%s)", err, last)
	}
	return nil
}

var _ Tiler = (*Tippecanoe)(nil)
