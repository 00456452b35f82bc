// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type artifact struct {
	Text string `json:"text"`
}

func TestFileStage_SaveLoadFile_RoundTrips(t *testing.T) {
	stage, err := NewFileStage(t.TempDir(), nil)
	require.NoError(t, err)

	require.NoError(t, stage.SaveFile("results/out.json", artifact{Text: "hello"}))

	var got artifact
	require.NoError(t, stage.LoadFile("results/out.json", &got))
	assert.Equal(t, "hello", got.Text)
}

func TestFileStage_SaveLoadPage_RoundTrips(t *testing.T) {
	stage, err := NewFileStage(t.TempDir(), nil)
	require.NoError(t, err)

	require.NoError(t, stage.SavePage(7, artifact{Text: "page seven"}, "mistral"))

	var got artifact
	require.NoError(t, stage.LoadPage(7, "mistral", &got))
	assert.Equal(t, "page seven", got.Text)
}

func TestFileStage_ResolveNeverEscapesRoot(t *testing.T) {
	stage, err := NewFileStage(t.TempDir(), nil)
	require.NoError(t, err)

	require.NoError(t, stage.SaveFile("../../etc/passwd", artifact{Text: "nope"}))

	var got artifact
	require.NoError(t, stage.LoadFile("etc/passwd", &got))
	assert.Equal(t, "nope", got.Text)
}

func TestFileStage_LoadFile_MissingReturnsError(t *testing.T) {
	stage, err := NewFileStage(t.TempDir(), nil)
	require.NoError(t, err)

	var got artifact
	assert.Error(t, stage.LoadFile("missing.json", &got))
}

func TestFileStage_Metrics_DefaultsToInMemory(t *testing.T) {
	stage, err := NewFileStage(t.TempDir(), nil)
	require.NoError(t, err)
	assert.IsType(t, &InMemoryMetrics{}, stage.Metrics())
}

func TestInMemoryMetrics_RecordAccumulatesWhenRequested(t *testing.T) {
	m := NewInMemoryMetrics()
	m.Record("iteration_0001", 0.01, 1.5, 100, map[string]any{"tool": "search"}, false)
	m.Record("iteration_0001", 0.02, 2.0, 50, map[string]any{"tool": "search"}, true)

	row := m.GetAll()["iteration_0001"].(map[string]any)
	assert.InDelta(t, 0.03, row["cost_usd"], 1e-9)
	assert.InDelta(t, 3.5, row["elapsed_seconds"], 1e-9)
	assert.Equal(t, 150, row["tokens"])
}

func TestInMemoryMetrics_RecordWithoutAccumulateOverwrites(t *testing.T) {
	m := NewInMemoryMetrics()
	m.Record("a", 1.0, 1.0, 10, nil, true)
	m.Record("a", 5.0, 5.0, 5, nil, false)

	row := m.GetAll()["a"].(map[string]any)
	assert.InDelta(t, 5.0, row["cost_usd"], 1e-9)
	assert.Equal(t, 5, row["tokens"])
}
