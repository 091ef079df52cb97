// Package db holds the DuckDB connection the viewer uses for spatial SQL
// over the downloaded boundary layers.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/marcboeker/go-duckdb"
)

var (
	instance *sql.DB
	once     sync.Once
	initErr  error
)

// Config holds database configuration.
type Config struct {
	DataDir string
	DBName  string
}

// Get returns the singleton DuckDB connection.
func Get(cfg Config) (*sql.DB, error) {
	once.Do(func() {
		duckdbDir := filepath.Join(cfg.DataDir, "duckdb")
		if err := os.MkdirAll(duckdbDir, 0755); err != nil {
			initErr = fmt.Errorf("failed to create duckdb directory: %w", err)
			return
		}

		dbPath := filepath.Join(duckdbDir, cfg.DBName+".duckdb")
		instance, initErr = sql.Open("duckdb", dbPath)
		if initErr != nil {
			return
		}

		for _, ext := range []string{"spatial", "json"} {
			if _, err := instance.Exec(fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext)); err != nil {
				slog.Warn("duckdb extension unavailable", "extension", ext, "err", err)
			}
		}
	})
	return instance, initErr
}

// Close closes the database connection.
func Close() error {
	if instance != nil {
		return instance.Close()
	}
	return nil
}

// Result is a query result with rows keyed by column name.
type Result struct {
	Columns []string         `json:"columns" doc:"Column names"`
	Rows    []map[string]any `json:"rows" doc:"Query results"`
	Count   int              `json:"count" doc:"Number of rows returned"`
}

// Query runs q and collects every row. Geometry columns come back as the
// driver returns them, so callers wanting GeoJSON should select
// ST_AsGeoJSON(geom).
func Query(ctx context.Context, db *sql.DB, q string, args ...any) (Result, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return Result{}, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, err
	}

	res := Result{Columns: columns, Rows: []map[string]any{}}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Result{}, err
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		res.Rows = append(res.Rows, row)
	}
	res.Count = len(res.Rows)
	return res, rows.Err()
}

// Tables lists the tables in the database.
func Tables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SHOW TABLES")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// TableName derives a SQL identifier from a source file name:
// "WV State Parks.geojson" becomes "wv_state_parks".
func TableName(file string) string {
	base := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(base) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			underscore = false
		case !underscore && b.Len() > 0:
			b.WriteByte('_')
			underscore = true
		}
	}
	name := strings.TrimSuffix(b.String(), "_")
	if name == "" || (name[0] >= '0' && name[0] <= '9') {
		name = "t_" + name
	}
	return name
}

// LoadGeoJSON (re)creates table from a GeoJSON file using the spatial
// extension's ST_Read.
func LoadGeoJSON(ctx context.Context, db *sql.DB, table, path string) error {
	q := fmt.Sprintf(`CREATE OR REPLACE TABLE "%s" AS SELECT * FROM ST_Read(?)`, table)
	if _, err := db.ExecContext(ctx, q, path); err != nil {
		return fmt.Errorf("loading %s into %s: %w", path, table, err)
	}
	return nil
}

// LoadSources loads every GeoJSON file in dir into its own table. A file
// that fails is logged and skipped.
func LoadSources(ctx context.Context, db *sql.DB, dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var loaded []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".geojson" && ext != ".json") {
			continue
		}
		table := TableName(e.Name())
		if err := LoadGeoJSON(ctx, db, table, filepath.Join(dir, e.Name())); err != nil {
			slog.Warn("skipping source", "file", e.Name(), "err", err)
			continue
		}
		loaded = append(loaded, table)
	}
	return loaded, nil
}
