package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go driver, no cgo
)

// dbConfig mirrors the pragmas a single-writer, WAL-mode SQLite database
// needs under concurrent orchestrator goroutines.
type dbConfig struct {
	BusyTimeout  time.Duration
	MaxOpenConns int
}

func defaultDBConfig() dbConfig {
	return dbConfig{
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 25,
	}
}

// openDB opens dbPath with WAL journaling, a busy timeout so concurrent
// BEGIN IMMEDIATE transactions back off instead of erroring, and foreign
// keys enforced.
func openDB(dbPath string, cfg dbConfig) (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		dbPath, cfg.BusyTimeout.Milliseconds(),
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dbPath, err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping %s: %w", dbPath, err)
	}

	return db, nil
}
