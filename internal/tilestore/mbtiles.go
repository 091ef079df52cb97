package tilestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	_ "github.com/mattn/go-sqlite3"
)

// MBTiles serves tiles from an MBTiles SQLite database. Rows are stored
// TMS style (origin bottom-left) and flipped on the way out.
type MBTiles struct {
	db       *sql.DB
	tileStmt *sql.Stmt

	format   string
	metadata map[string]string
}

// OpenMBTiles opens the database at path read-only.
func OpenMBTiles(path string) (*MBTiles, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro&immutable=1")
	if err != nil {
		return nil, err
	}
	m := &MBTiles{db: db}
	ok := false
	defer func() {
		if !ok {
			m.Close()
		}
	}()

	m.metadata, err = readMetadata(db)
	if err != nil {
		return nil, fmt.Errorf("reading %s metadata: %w", path, err)
	}
	m.format = m.metadata["format"]

	m.tileStmt, err = db.Prepare(`select tile_data from tiles
where zoom_level = ?1 and tile_column = ?2 and tile_row = ?3`)
	if err != nil {
		return nil, fmt.Errorf("preparing %s: %w", path, err)
	}
	ok = true
	return m, nil
}

func readMetadata(db *sql.DB) (map[string]string, error) {
	rows, err := db.Query("select name, value from metadata")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	md := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		md[name] = value
	}
	return md, rows.Err()
}

// Metadata returns the name/value pairs of the metadata table.
func (m *MBTiles) Metadata() map[string]string {
	out := make(map[string]string, len(m.metadata))
	for k, v := range m.metadata {
		out[k] = v
	}
	return out
}

func (m *MBTiles) Tile(ctx context.Context, z, x, y int) (Tile, error) {
	if !validTile(z, x, y) {
		return Tile{}, ErrNotFound
	}
	var blob []byte
	err := m.tileStmt.QueryRowContext(ctx, z, x, flipY(z, y)).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return Tile{}, ErrNotFound
	}
	if err != nil {
		return Tile{}, err
	}

	t := Tile{Data: blob}
	switch m.format {
	case "pbf":
		t.ContentType = "application/vnd.mapbox-vector-tile"
		t.Encoding = "gzip"
	case "jpg":
		t.ContentType = "image/jpeg"
	case "png":
		t.ContentType = "image/png"
	case "webp":
		t.ContentType = "image/webp"
	default:
		t.ContentType = http.DetectContentType(blob)
	}
	return t, nil
}

func (m *MBTiles) Close() error {
	if m.tileStmt != nil {
		m.tileStmt.Close()
	}
	return m.db.Close()
}
