// Package db mirrors the tree dataset into DuckDB for ad-hoc SQL.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/joeblew999/plat-trees/internal/service"
)

var extensionName = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Config holds database configuration.
type Config struct {
	DataDir    string
	DBName     string
	Extensions []string // e.g. "spatial"; loaded best-effort
}

// Path returns the database file location. An empty DataDir means an
// in-memory database.
func (c Config) Path() string {
	if c.DataDir == "" {
		return ""
	}
	return filepath.Join(c.DataDir, "duckdb", c.DBName+".duckdb")
}

// Open opens the DuckDB database described by cfg.
func Open(cfg Config) (*sql.DB, error) {
	path := cfg.Path()
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create duckdb directory: %w", err)
		}
	}

	for _, ext := range cfg.Extensions {
		if !extensionName.MatchString(ext) {
			return nil, fmt.Errorf("invalid duckdb extension name %q", ext)
		}
	}

	conn, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening duckdb: %w", err)
	}

	// Extensions need network access on first install; the mirror works
	// without them.
	for _, ext := range cfg.Extensions {
		_, _ = conn.Exec(fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext))
	}
	return conn, nil
}

const createTrees = `CREATE OR REPLACE TABLE trees (
	id VARCHAR PRIMARY KEY,
	owner_email VARCHAR,
	owner VARCHAR,
	name VARCHAR,
	species VARCHAR,
	planted_year INTEGER,
	co2_offset DOUBLE,
	lon DOUBLE,
	lat DOUBLE
)`

// SyncTrees replaces the trees table with the located trees in one
// transaction. It returns the number of rows written.
func SyncTrees(ctx context.Context, conn *sql.DB, trees []service.Tree) (int, error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, createTrees); err != nil {
		return 0, fmt.Errorf("creating trees table: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO trees VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	seen := make(map[string]bool, len(trees))
	n := 0
	for _, t := range trees {
		if t.Location == nil || seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		if _, err := stmt.ExecContext(ctx,
			t.ID, t.OwnerEmail, t.Owner, t.Name, t.Species,
			t.PlantedYear, t.CO2Offset, t.Location.Lon(), t.Location.Lat(),
		); err != nil {
			return 0, fmt.Errorf("inserting tree %s: %w", t.ID, err)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

// Tables lists the tables in the main schema.
func Tables(ctx context.Context, conn *sql.DB) ([]string, error) {
	rows, err := conn.QueryContext(ctx, "SHOW TABLES")
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

// Query runs an arbitrary statement and returns column names and rows keyed
// by column.
func Query(ctx context.Context, conn *sql.DB, query string, args ...any) ([]string, []map[string]any, error) {
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	results := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, nil, err
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}
	return columns, results, rows.Err()
}
