package colorramp

import (
	"context"
	"fmt"
	"image/png"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Stats counts what ApplyDir did.
type Stats struct {
	Written int64 `json:"written"`
	Existed int64 `json:"existed"`
	Skipped int64 `json:"skipped"`
}

// Options tune ApplyDir.
type Options struct {
	// Concurrency is the number of tiles processed at once; 0 means GOMAXPROCS.
	Concurrency int
}

// ApplyDir recolors every *.png under in into the same relative path under
// out. Tiles whose output already exists are left alone, and files that
// cannot be decoded are logged and skipped.
func ApplyDir(ctx context.Context, in, out string, opts Options) (Stats, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.GOMAXPROCS(0)
	}

	var stats Stats
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	err := filepath.WalkDir(in, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".png") {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(in, path)
		if err != nil {
			return err
		}
		target := filepath.Join(out, rel)
		if _, err := os.Stat(target); err == nil {
			atomic.AddInt64(&stats.Existed, 1)
			return nil
		}

		g.Go(func() error {
			ok, err := applyFile(path, target)
			switch {
			case err != nil:
				return err
			case ok:
				atomic.AddInt64(&stats.Written, 1)
			default:
				atomic.AddInt64(&stats.Skipped, 1)
			}
			return nil
		})
		return nil
	})
	if werr := g.Wait(); werr != nil {
		err = werr
	}
	return stats, err
}

// applyFile recolors one tile. ok is false when the source is not a
// decodable PNG.
func applyFile(src, dst string) (ok bool, err error) {
	f, err := os.Open(src)
	if err != nil {
		return false, err
	}
	img, err := png.Decode(f)
	f.Close()
	if err != nil {
		slog.Warn("skipping tile, cannot decode", "file", src, "err", err)
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return false, err
	}
	tmp := dst + ".tmp"
	w, err := os.Create(tmp)
	if err != nil {
		return false, err
	}
	if err := png.Encode(w, Apply(img)); err != nil {
		w.Close()
		os.Remove(tmp)
		return false, fmt.Errorf("encoding %s: %w", dst, err)
	}
	if err := w.Close(); err != nil {
		return false, err
	}
	return true, os.Rename(tmp, dst)
}
