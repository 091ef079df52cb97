package server

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/joeblew999/grousemap/internal/api"
	"github.com/joeblew999/grousemap/internal/api/panel"
	"github.com/joeblew999/grousemap/internal/db"
	"github.com/joeblew999/grousemap/internal/fetch"
	"github.com/joeblew999/grousemap/internal/humastar"
	"github.com/joeblew999/grousemap/internal/inspect"
	"github.com/joeblew999/grousemap/internal/mapconfig"
	"github.com/joeblew999/grousemap/internal/regs"
	"github.com/joeblew999/grousemap/internal/service"
	"github.com/joeblew999/grousemap/internal/tilestore"
	"github.com/joeblew999/grousemap/web"
)

// Config holds the server configuration.
type Config struct {
	Host      string
	Port      string
	DataDir   string
	WebDir    string  // Serve templates and static files from here instead of the embedded copy
	MapConfig string  // HCL map definition; empty uses the embedded default
	FetchRate float64 // Outbound requests per second
	NoDB      bool
}

// Server is the grousemap HTTP server.
type Server struct {
	config    Config
	mux       *http.ServeMux
	humaAPI   huma.API
	links     *humastar.Links
	db        *sql.DB
	bus       *service.EventBus
	services  *api.Services
	regs      *regs.Service
	tiles     *tilestore.Registry
	fragments *humastar.Renderer
	pages     *humastar.Renderer
	static    fs.FS
	events    chan service.Event
}

// New creates a new server.
func New(cfg Config) (*Server, error) {
	mapDef, err := mapconfig.Load(cfg.MapConfig, cfg.DataDir)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()

	humaConfig := huma.DefaultConfig("grousemap API", api.Version)
	humaConfig.Info.Description = "Map viewer API for wildlife habitat and public land overlays: layer catalog, feature inspection, device position and tiles."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	links := humastar.NewLinks()
	humaConfig.Transformers = append(humaConfig.Transformers, links.Transformer())

	humaAPI := humago.New(mux, humaConfig)

	fetcher := fetch.New(fetch.Config{RequestsPerSec: cfg.FetchRate})
	bus := service.NewEventBus()

	layers := service.NewLayerService(cfg.DataDir, bus)
	if err := layers.Seed(mapDef.CatalogLayers()); err != nil {
		return nil, fmt.Errorf("seeding layer catalog: %w", err)
	}
	features := service.NewFeatureService(cfg.DataDir, fetcher)
	services := &api.Services{
		Layer:     layers,
		Feature:   features,
		Tracker:   service.NewTrackerService(bus),
		Tile:      service.NewTileService(cfg.DataDir),
		Tiler:     service.NewTilerService(cfg.DataDir),
		Source:    service.NewSourceService(cfg.DataDir),
		Inspector: inspect.New(layers, features),
		Bus:       bus,
		View:      mapDef.View(),
	}

	templates, static := web.Templates(), web.Static()
	if cfg.WebDir != "" {
		templates = os.DirFS(filepath.Join(cfg.WebDir, "templates"))
		static = os.DirFS(filepath.Join(cfg.WebDir, "static"))
	}
	fragments, err := humastar.NewRenderer(templates, "fragments/*.html")
	if err != nil {
		return nil, err
	}
	pages, err := humastar.NewRenderer(templates, "*.html")
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:    cfg,
		mux:       mux,
		humaAPI:   humaAPI,
		links:     links,
		bus:       bus,
		services:  services,
		regs:      regs.NewService(regs.Config{CachePath: filepath.Join(cfg.DataDir, "regulations.json")}),
		tiles:     tilestore.NewRegistry(filepath.Join(cfg.DataDir, "tiles"), fetcher),
		fragments: fragments,
		pages:     pages,
		static:    static,
	}

	if !cfg.NoDB {
		conn, err := db.Get(db.Config{DataDir: cfg.DataDir, DBName: "grousemap"})
		if err != nil {
			slog.Warn("duckdb unavailable", "err", err)
		} else {
			s.db = conn
			if loaded, err := db.LoadSources(context.Background(), conn, services.Source.SourcesDir()); err != nil {
				slog.Warn("loading sources into duckdb", "err", err)
			} else if len(loaded) > 0 {
				slog.Info("loaded sources into duckdb", "tables", loaded)
			}
		}
	}

	s.tiles.Sync(layers.List())
	s.watch()
	s.routes()
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the API description.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Close closes server resources.
func (s *Server) Close() error {
	s.bus.Unsubscribe(s.events)
	s.tiles.Close()
	if s.db != nil {
		return db.Close()
	}
	return nil
}

// watch keeps the tile registry in step with the catalog and the tiles
// directory.
func (s *Server) watch() {
	s.events = s.bus.Subscribe()
	go func(ch chan service.Event) {
		for ev := range ch {
			if ev.Resource == service.ResourceLayers || ev.Resource == service.ResourceTiles {
				s.tiles.Sync(s.services.Layer.List())
			}
		}
	}(s.events)
}

func (s *Server) routes() {
	// Huma REST API routes (OpenAPI-documented JSON endpoints)
	huma.AutoRegister(s.humaAPI, api.NewAPIHandler(s.services))
	api.NewInfoHandler(s.config.DataDir, s.db != nil).RegisterRoutes(s.humaAPI)
	api.NewDBHandler(s.db, s.services.Source.SourcesDir()).RegisterRoutes(s.humaAPI)
	api.NewRegsHandler(s.regs).RegisterRoutes(s.humaAPI)

	// Panel SSE routes using Huma + Datastar SDK
	panel.New(s.services.Layer, s.services.Tracker, s.services.Inspector, s.bus, s.fragments).RegisterRoutes(s.humaAPI)

	api.AddLinks(s.links)
	s.links.Build(s.humaAPI)

	// Tiles, raw archives and sources
	s.mux.Handle("GET /tiles/{set}/{z}/{x}/{y}", s.tiles)
	s.mux.Handle("/files/tiles/", http.StripPrefix("/files/tiles/", tilestore.FileHandler(filepath.Join(s.config.DataDir, "tiles"))))
	s.mux.Handle("/files/sources/", http.StripPrefix("/files/sources/", tilestore.FileHandler(s.services.Source.SourcesDir())))

	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServerFS(s.static)))

	// Page routes
	s.mux.HandleFunc("/viewer", s.handleViewer)
	s.mux.HandleFunc("/{$}", s.handleViewer)
}

func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	pd := humastar.BuildPageData(s.humaAPI, panel.BasePath, panel.Signals())
	pd.Extra["mapURL"] = "/api/v1/map"

	html, err := s.pages.Render("viewer.html", pd)
	if err != nil {
		slog.Error("rendering viewer", "err", err)
		http.Error(w, "viewer unavailable", http.StatusInternalServerError)
		return
	}

	for _, link := range s.links.Root() {
		w.Header().Add("Link", link)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(html))
}
