package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var sqliteDDL = []string{
	`CREATE TABLE IF NOT EXISTS people (
		id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		tags TEXT NOT NULL DEFAULT '[]',
		service_days TEXT NOT NULL DEFAULT '[]'
	)`,
	`CREATE TABLE IF NOT EXISTS event_types (
		id TEXT PRIMARY KEY,
		label TEXT NOT NULL,
		weight REAL NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		dow INTEGER NOT NULL,
		event_type_id TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		UNIQUE (date, event_type_id)
	)`,
	`CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		person_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT '',
		minutes_late INTEGER NOT NULL DEFAULT 0,
		notes TEXT NOT NULL DEFAULT '',
		leave_status TEXT NOT NULL DEFAULT '',
		UNIQUE (session_id, person_id)
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		id TEXT PRIMARY KEY,
		team_name TEXT NOT NULL DEFAULT '',
		tardy_threshold_mins INTEGER NOT NULL DEFAULT 5,
		low_threshold REAL NOT NULL,
		mid_threshold REAL NOT NULL,
		high_threshold REAL NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_date ON sessions (date)`,
	`CREATE INDEX IF NOT EXISTS idx_records_session ON records (session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_records_person ON records (person_id)`,
}

// NewLocal opens the on-device sqlite store under dataDir. The database file
// is created on first use.
func NewLocal(dataDir string) (Provider, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "rollbook.db")
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite writes serialize anyway
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &sqlProvider{
		db:   db,
		mode: ModeLocal,
		ddl:  sqliteDDL,
	}, nil
}
