// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/teradata-labs/llmbatch/internal/sqlitedriver" // registers "sqlite3"
	"github.com/teradata-labs/llmbatch/pkg/types"
)

// SQLiteMetrics persists metric rows to a SQLite database, so a batch's
// cost/token history survives past the process that produced it. Every
// call opens its own short-lived write; there is no in-process cache, so
// GetAll always reflects what's actually on disk.
type SQLiteMetrics struct {
	db *sql.DB
}

// NewSQLiteMetrics opens (creating if absent) a metrics database at path.
func NewSQLiteMetrics(path string) (*SQLiteMetrics, error) {
	db, err := sql.Open("sqlite3", path+"?_fk=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open metrics db: %w", err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS metrics (
	key TEXT PRIMARY KEY,
	cost_usd REAL NOT NULL DEFAULT 0,
	elapsed_seconds REAL NOT NULL DEFAULT 0,
	tokens INTEGER NOT NULL DEFAULT 0,
	custom_json TEXT
)`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create metrics schema: %w", err)
	}
	return &SQLiteMetrics{db: db}, nil
}

// Record implements types.MetricsManager, upserting key's row. accumulate
// adds the numeric fields onto the existing row instead of overwriting it.
func (s *SQLiteMetrics) Record(key string, costUSD, elapsed float64, tokens int, custom map[string]any, accumulate bool) {
	customJSON, _ := json.Marshal(custom)

	if accumulate {
		_, err := s.db.Exec(`
INSERT INTO metrics (key, cost_usd, elapsed_seconds, tokens, custom_json) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
	cost_usd = cost_usd + excluded.cost_usd,
	elapsed_seconds = elapsed_seconds + excluded.elapsed_seconds,
	tokens = tokens + excluded.tokens,
	custom_json = excluded.custom_json`,
			key, costUSD, elapsed, tokens, string(customJSON))
		_ = err // persisted metrics are best-effort; a write failure never blocks the caller
		return
	}

	_, err := s.db.Exec(`
INSERT INTO metrics (key, cost_usd, elapsed_seconds, tokens, custom_json) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
	cost_usd = excluded.cost_usd,
	elapsed_seconds = excluded.elapsed_seconds,
	tokens = excluded.tokens,
	custom_json = excluded.custom_json`,
		key, costUSD, elapsed, tokens, string(customJSON))
	_ = err
}

// GetAll implements types.MetricsManager.
func (s *SQLiteMetrics) GetAll() map[string]any {
	out := map[string]any{}

	rows, err := s.db.Query(`SELECT key, cost_usd, elapsed_seconds, tokens, custom_json FROM metrics`)
	if err != nil {
		return out
	}
	defer rows.Close()

	for rows.Next() {
		var key, customJSON string
		var costUSD, elapsed float64
		var tokens int
		if err := rows.Scan(&key, &costUSD, &elapsed, &tokens, &customJSON); err != nil {
			continue
		}
		var custom map[string]any
		_ = json.Unmarshal([]byte(customJSON), &custom)
		out[key] = map[string]any{
			"cost_usd": costUSD, "elapsed_seconds": elapsed,
			"tokens": tokens, "custom": custom,
		}
	}
	return out
}

// Close releases the underlying database handle.
func (s *SQLiteMetrics) Close() error { return s.db.Close() }

var _ types.MetricsManager = (*SQLiteMetrics)(nil)
