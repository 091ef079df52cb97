package tilestore

import (
	"errors"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
)

// ServeHTTP serves GET /tiles/{set}/{z}/{x}/{y}. The y segment may carry a
// file extension (".png", ".pbf"), which is ignored.
func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	setTileCORS(w)
	if req.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	set := req.PathValue("set")
	z, errZ := strconv.Atoi(req.PathValue("z"))
	x, errX := strconv.Atoi(req.PathValue("x"))
	yRaw := req.PathValue("y")
	y, errY := strconv.Atoi(strings.TrimSuffix(yRaw, path.Ext(yRaw)))
	if errZ != nil || errX != nil || errY != nil {
		http.Error(w, "invalid tile address", http.StatusBadRequest)
		return
	}

	store, ok := r.Get(set)
	if !ok {
		http.Error(w, "unknown tile set", http.StatusNotFound)
		return
	}

	t, err := store.Tile(req.Context(), z, x, y)
	if errors.Is(err, ErrNotFound) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		slog.Warn("tile fetch failed", "set", set, "z", z, "x", x, "y", y, "err", err)
		http.Error(w, "tile unavailable", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", t.ContentType)
	if t.Encoding != "" {
		w.Header().Set("Content-Encoding", t.Encoding)
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Content-Length", strconv.Itoa(len(t.Data)))
	w.Write(t.Data)
}

// FileHandler serves raw archives from dir with CORS and Range support, so
// browsers can read PMTiles directly.
func FileHandler(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setTileCORS(w)
		w.Header().Set("Access-Control-Allow-Headers", "Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, Accept-Ranges")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		files.ServeHTTP(w, r)
	})
}

func setTileCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
}
