package api

import (
	"context"
	"database/sql"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/grousemap/internal/db"
)

// DBHandler handles database-related endpoints.
type DBHandler struct {
	db         *sql.DB
	sourcesDir string
}

// NewDBHandler creates a new database handler. sourcesDir is where
// boundary GeoJSON files are loaded from.
func NewDBHandler(conn *sql.DB, sourcesDir string) *DBHandler {
	return &DBHandler{db: conn, sourcesDir: sourcesDir}
}

// RegisterRoutes registers database routes with Huma.
func (h *DBHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/tables", h.ListTables, huma.OperationTags("tables"))
	huma.Post(api, "/api/v1/tables", h.LoadTables, huma.OperationTags("tables"))
	huma.Post(api, "/api/v1/query", h.Query, huma.OperationTags("tables"))
}

// TablesOutput is the response for listing tables.
type TablesOutput struct {
	Body struct {
		Tables []string `json:"tables" doc:"List of table names"`
	}
}

// ListTables returns all DuckDB tables.
func (h *DBHandler) ListTables(ctx context.Context, input *struct{}) (*TablesOutput, error) {
	if h.db == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}
	tables, err := db.Tables(ctx, h.db)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list tables", err)
	}
	out := &TablesOutput{}
	out.Body.Tables = tables
	return out, nil
}

// LoadTables (re)loads every boundary source into its own table.
func (h *DBHandler) LoadTables(ctx context.Context, input *struct{}) (*TablesOutput, error) {
	if h.db == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}
	loaded, err := db.LoadSources(ctx, h.db, h.sourcesDir)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to load sources", err)
	}
	out := &TablesOutput{}
	out.Body.Tables = loaded
	if out.Body.Tables == nil {
		out.Body.Tables = []string{}
	}
	return out, nil
}

// QueryInput is the input for SQL queries.
type QueryInput struct {
	Body struct {
		Query string `json:"query" required:"true" doc:"SQL query to execute" example:"SELECT Name, ST_Area(geom) FROM wv_state_forests"`
	}
}

// Query executes a SQL query against DuckDB.
func (h *DBHandler) Query(ctx context.Context, input *QueryInput) (*struct{ Body db.Result }, error) {
	if h.db == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}
	res, err := db.Query(ctx, h.db, input.Body.Query)
	if err != nil {
		return nil, huma.Error400BadRequest("Query failed: " + err.Error())
	}
	return &struct{ Body db.Result }{Body: res}, nil
}
