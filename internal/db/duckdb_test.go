package db

import (
	"context"
	"database/sql"
	"testing"
)

func TestTableName(t *testing.T) {
	cases := map[string]string{
		"WV State Parks.geojson":      "wv_state_parks",
		"Wildlife Management Areas":   "wildlife_management_areas",
		"sources/forests.json":        "forests",
		"2024 - Refuges (USFWS).json": "t_2024_refuges_usfws",
		"!!!.geojson":                 "t_",
	}
	for in, want := range cases {
		if got := TableName(in); got != want {
			t.Fatalf("TableName(%q)=%q, want %q", in, got, want)
		}
	}
}

func TestQueryAndTables(t *testing.T) {
	conn, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	ctx := context.Background()
	if _, err := conn.ExecContext(ctx, `CREATE TABLE forests (name VARCHAR, acres INTEGER)`); err != nil {
		t.Fatal(err)
	}
	if _, err := conn.ExecContext(ctx, `INSERT INTO forests VALUES ('Kumbrabow', 9474), ('Seneca', 11684)`); err != nil {
		t.Fatal(err)
	}

	tables, err := Tables(ctx, conn)
	if err != nil {
		t.Fatal(err)
	}
	if len(tables) != 1 || tables[0] != "forests" {
		t.Fatalf("tables=%v, want [forests]", tables)
	}

	res, err := Query(ctx, conn, `SELECT name FROM forests WHERE acres > ? ORDER BY name`, 10000)
	if err != nil {
		t.Fatal(err)
	}
	if res.Count != 1 || res.Rows[0]["name"] != "Seneca" {
		t.Fatalf("result=%+v", res)
	}

	if _, err := Query(ctx, conn, `SELECT * FROM missing`); err == nil {
		t.Fatal("expected error for missing table")
	}
}

func TestLoadSourcesMissingDir(t *testing.T) {
	loaded, err := LoadSources(context.Background(), nil, t.TempDir()+"/nope")
	if err != nil || loaded != nil {
		t.Fatalf("loaded=%v err=%v, want nothing", loaded, err)
	}
}
