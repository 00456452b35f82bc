// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package storage

import (
	"sync"

	"github.com/teradata-labs/llmbatch/pkg/types"
)

type metricRow struct {
	CostUSD float64        `json:"cost_usd"`
	Elapsed float64        `json:"elapsed_seconds"`
	Tokens  int            `json:"tokens"`
	Custom  map[string]any `json:"custom,omitempty"`
}

// InMemoryMetrics is the default types.MetricsManager: a mutex-guarded map
// keyed by the caller's metric key (e.g. an agent id or iteration label).
// It never persists across process restarts; use SQLiteMetrics when a
// run's metrics need to outlive the process.
type InMemoryMetrics struct {
	mu   sync.Mutex
	rows map[string]*metricRow
}

// NewInMemoryMetrics constructs an empty InMemoryMetrics.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{rows: make(map[string]*metricRow)}
}

// Record implements types.MetricsManager. When accumulate is true, the
// numeric fields add onto any existing row for key rather than replacing
// it; custom always replaces wholesale, matching how a caller re-reports
// its full custom-field snapshot on every call.
func (m *InMemoryMetrics) Record(key string, costUSD, elapsed float64, tokens int, custom map[string]any, accumulate bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[key]
	if !ok || !accumulate {
		m.rows[key] = &metricRow{CostUSD: costUSD, Elapsed: elapsed, Tokens: tokens, Custom: custom}
		return
	}
	row.CostUSD += costUSD
	row.Elapsed += elapsed
	row.Tokens += tokens
	row.Custom = custom
}

// GetAll implements types.MetricsManager.
func (m *InMemoryMetrics) GetAll() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]any, len(m.rows))
	for k, v := range m.rows {
		out[k] = map[string]any{
			"cost_usd": v.CostUSD, "elapsed_seconds": v.Elapsed,
			"tokens": v.Tokens, "custom": v.Custom,
		}
	}
	return out
}

var _ types.MetricsManager = (*InMemoryMetrics)(nil)
