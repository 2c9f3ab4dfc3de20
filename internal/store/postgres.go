package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// connection retry bounds for the cloud backend; transient startup races with
// a managed database are common.
const (
	pgConnectAttempts = 5
	pgConnectBackoff  = 500 * time.Millisecond
)

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func postgresDDL(schema string) []string {
	pfx := schema + "."
	return []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, schema),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %speople (
			id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			tags TEXT NOT NULL DEFAULT '[]',
			service_days TEXT NOT NULL DEFAULT '[]'
		)`, pfx),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %sevent_types (
			id TEXT PRIMARY KEY,
			label TEXT NOT NULL,
			weight DOUBLE PRECISION NOT NULL DEFAULT 1
		)`, pfx),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %ssessions (
			id TEXT PRIMARY KEY,
			date TEXT NOT NULL,
			dow INTEGER NOT NULL,
			event_type_id TEXT NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			UNIQUE (date, event_type_id)
		)`, pfx),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %srecords (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			person_id TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT '',
			minutes_late INTEGER NOT NULL DEFAULT 0,
			notes TEXT NOT NULL DEFAULT '',
			leave_status TEXT NOT NULL DEFAULT '',
			UNIQUE (session_id, person_id)
		)`, pfx),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %ssettings (
			id TEXT PRIMARY KEY,
			team_name TEXT NOT NULL DEFAULT '',
			tardy_threshold_mins INTEGER NOT NULL DEFAULT 5,
			low_threshold DOUBLE PRECISION NOT NULL,
			mid_threshold DOUBLE PRECISION NOT NULL,
			high_threshold DOUBLE PRECISION NOT NULL
		)`, pfx),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_sessions_date ON %ssessions (date)`, pfx),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_records_session ON %srecords (session_id)`, pfx),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_records_person ON %srecords (person_id)`, pfx),
	}
}

// NewCloud connects to the shared postgres document store. The schema name
// scopes all tables so several teams can share one database.
func NewCloud(ctx context.Context, url, schema string) (Provider, error) {
	if url == "" {
		return nil, fmt.Errorf("cloud store: database URL is required")
	}
	if schema == "" {
		schema = "rollbook"
	}
	if !identPattern.MatchString(schema) {
		return nil, fmt.Errorf("cloud store: invalid schema name %q", schema)
	}

	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := pingWithRetry(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	return &sqlProvider{
		db:     db,
		mode:   ModeCloud,
		prefix: schema + ".",
		dollar: true,
		ddl:    postgresDDL(schema),
	}, nil
}

func pingWithRetry(ctx context.Context, db *sql.DB) error {
	var err error
	delay := pgConnectBackoff
	for attempt := 0; attempt < pgConnectAttempts; attempt++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
