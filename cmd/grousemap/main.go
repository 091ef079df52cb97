package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/grousemap/internal/arcgis"
	"github.com/joeblew999/grousemap/internal/colorramp"
	"github.com/joeblew999/grousemap/internal/fetch"
	"github.com/joeblew999/grousemap/internal/regs"
	"github.com/joeblew999/grousemap/internal/server"
	"github.com/joeblew999/grousemap/internal/service"
)

// Options defines all CLI flags and env vars for the server.
// Flags: --host, --port, --data-dir, --web-dir, --map-config, --fetch-rate, --no-db
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, ...
type Options struct {
	Host      string `doc:"Host to bind to" default:"0.0.0.0"`
	Port      int    `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir   string `doc:"Directory for layer data, tiles and caches" default:".data"`
	WebDir    string `doc:"Serve templates and static files from this web/ directory instead of the embedded copy"`
	MapConfig string `doc:"HCL map definition (empty uses the built-in West Virginia map)"`
	FetchRate int    `doc:"Outbound requests per second to remote data and tile servers" default:"10"`
	NoDB      bool   `doc:"Run without DuckDB and the SQL endpoints"`
}

func newServer(opts *Options) *server.Server {
	srv, err := server.New(server.Config{
		Host:      opts.Host,
		Port:      fmt.Sprintf("%d", opts.Port),
		DataDir:   opts.DataDir,
		WebDir:    opts.WebDir,
		MapConfig: opts.MapConfig,
		FetchRate: float64(opts.FetchRate),
		NoDB:      opts.NoDB,
	})
	if err != nil {
		log.Fatalf("Server setup failed: %v", err)
	}
	return srv
}

func newFetcher(opts *Options) *fetch.Client {
	return fetch.New(fetch.Config{RequestsPerSec: float64(opts.FetchRate)})
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		hooks.OnStart(func() {
			srv := newServer(opts)
			defer srv.Close()

			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("grousemap server starting...\n")
			fmt.Printf("  Map:     %s/\n", baseURL)
			fmt.Printf("  Data:    %s\n", opts.DataDir)
			fmt.Println()
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Println()

			if err := http.ListenAndServe(addr, srv); err != nil {
				log.Fatalf("Server error: %v", err)
			}
		})
	})

	cli.Root().Use = "grousemap"
	cli.Root().Short = "Map viewer for ruffed grouse habitat and public land"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			opts.NoDB = true
			srv := newServer(opts)
			defer srv.Close()
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			var err error
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling spec: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// acquire subcommand: download boundary layers from ArcGIS
	acquireCmd := &cobra.Command{
		Use:   "acquire",
		Short: "Download public land boundaries into <data-dir>/sources",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			serviceURL, _ := cmd.Flags().GetString("service-url")
			schemaPath, _ := cmd.Flags().GetString("schema")
			rulesPath, _ := cmd.Flags().GetString("rules")
			register, _ := cmd.Flags().GetBool("register")

			var schema arcgis.Schema
			if schemaPath != "" {
				s, err := arcgis.LoadSchema(schemaPath)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error loading schema: %v\n", err)
					os.Exit(1)
				}
				schema = s
			}
			rules, err := arcgis.LoadRules(rulesPath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error loading rules: %v\n", err)
				os.Exit(1)
			}

			p := &arcgis.Pipeline{
				Client:     arcgis.NewClient(newFetcher(opts)),
				ServiceURL: serviceURL,
				Schema:     schema,
				Rules:      rules,
				OutDir:     filepath.Join(opts.DataDir, "sources"),
			}
			if register {
				p.Catalog = service.NewLayerService(opts.DataDir, nil)
			}

			report, err := p.Run(context.Background())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Wrote %d layers to %s\n", len(report.Written), p.OutDir)
			for name, reason := range report.Failed {
				fmt.Printf("  failed: %s: %s\n", name, reason)
			}
		}),
	}
	acquireCmd.Flags().String("service-url", arcgis.DefaultServiceURL, "ArcGIS FeatureServer URL")
	acquireCmd.Flags().String("schema", "", "CSV with Layer,Field,Rename columns; fields not listed are dropped")
	acquireCmd.Flags().String("rules", "", "YAML attribute rules (default: built-in rules)")
	acquireCmd.Flags().Bool("register", true, "Add a hidden overlay to the layer catalog for each new file")
	cli.Root().AddCommand(acquireCmd)

	// ramp subcommand: color grayscale suitability tiles
	rampCmd := &cobra.Command{
		Use:   "ramp <in-dir> <out-dir>",
		Short: "Recolor grayscale suitability tiles with a red to green ramp",
		Args:  cobra.ExactArgs(2),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			concurrency, _ := cmd.Flags().GetInt("concurrency")
			stats, err := colorramp.ApplyDir(context.Background(), args[0], args[1], colorramp.Options{Concurrency: concurrency})
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Tiles written: %d, already present: %d, skipped: %d\n", stats.Written, stats.Existed, stats.Skipped)
		}),
	}
	rampCmd.Flags().Int("concurrency", 0, "Tiles processed at once (default GOMAXPROCS)")
	cli.Root().AddCommand(rampCmd)

	// tile subcommand: GeoJSON source to PMTiles
	tileCmd := &cobra.Command{
		Use:   "tile <source-file>",
		Short: "Generate a PMTiles archive from a source in <data-dir>/sources",
		Args:  cobra.ExactArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			output, _ := cmd.Flags().GetString("output")
			minZoom, _ := cmd.Flags().GetInt("min-zoom")
			maxZoom, _ := cmd.Flags().GetInt("max-zoom")
			engine, _ := cmd.Flags().GetString("engine")
			if output == "" {
				output = args[0][:len(args[0])-len(filepath.Ext(args[0]))]
			}

			tiler := service.NewTilerService(opts.DataDir)
			path, err := tiler.Generate(context.Background(), service.TileGenerateOptions{
				SourceFile: args[0],
				OutputName: output,
				MinZoom:    minZoom,
				MaxZoom:    maxZoom,
				Engine:     engine,
			}, func(progress int, status string) {
				fmt.Printf("[%3d%%] %s\n", progress, status)
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Tiles written to %s\n", path)
		}),
	}
	tileCmd.Flags().StringP("output", "o", "", "Tile set name (default: source name)")
	tileCmd.Flags().Int("min-zoom", 0, "Minimum zoom level")
	tileCmd.Flags().Int("max-zoom", 14, "Maximum zoom level")
	tileCmd.Flags().String("engine", "", "Force a tiling engine (tippecanoe or go)")
	cli.Root().AddCommand(tileCmd)

	// regs subcommand: scrape hunting season dates
	regsCmd := &cobra.Command{
		Use:   "regs",
		Short: "Scrape hunting season dates and cache them in <data-dir>/regulations.json",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			species, _ := cmd.Flags().GetString("species")
			refresh, _ := cmd.Flags().GetBool("refresh")

			r, err := regs.NewService(regs.Config{
				Species:   species,
				CachePath: filepath.Join(opts.DataDir, "regulations.json"),
			}).Get(context.Background(), refresh)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			output, _ := json.MarshalIndent(r, "", "  ")
			fmt.Println(string(output))
		}),
	}
	regsCmd.Flags().String("species", regs.DefaultSpecies, "Species to select from the season table")
	regsCmd.Flags().Bool("refresh", true, "Scrape the page even when a cache exists")
	cli.Root().AddCommand(regsCmd)

	cli.Run()
}
