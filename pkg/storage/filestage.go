// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package storage implements the types.StageStorage and
// types.MetricsManager ports: a stage-scoped filesystem artifact store
// (FileStage) and two MetricsManager implementations, in-memory and
// SQLite-persisted.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/teradata-labs/llmbatch/pkg/types"
)

// FileStage implements types.StageStorage by JSON-encoding objects onto a
// single root directory. SaveFile/LoadFile address one artifact directly
// by its relative path; SavePage/LoadPage address one of a numbered
// sequence within a subdirectory, the shape a pipeline stage uses to
// store one file per input page. FileStage never writes outside Root:
// every path is cleaned and joined under it, with ".." segments collapsed
// rather than rejected.
type FileStage struct {
	Root    string
	metrics types.MetricsManager
}

// NewFileStage constructs a FileStage rooted at root, creating it if
// absent. metrics may be nil, in which case Metrics() returns a fresh
// InMemoryMetrics.
func NewFileStage(root string, metrics types.MetricsManager) (*FileStage, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create stage root: %w", err)
	}
	if metrics == nil {
		metrics = NewInMemoryMetrics()
	}
	return &FileStage{Root: root, metrics: metrics}, nil
}

// resolve joins rel onto Root. Cleaning rel against a leading "/" first
// collapses any ".." segments before the join, so the result can never
// land outside Root regardless of what the caller passes.
func (f *FileStage) resolve(rel string) (string, error) {
	cleaned := filepath.Clean(string(filepath.Separator) + rel)
	return filepath.Join(f.Root, cleaned), nil
}

// SaveFile implements types.StageStorage.
func (f *FileStage) SaveFile(path string, obj any) error {
	full, err := f.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return fmt.Errorf("create parent dir for %q: %w", path, err)
	}
	data, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %q: %w", path, err)
	}
	return os.WriteFile(full, data, 0o640)
}

// LoadFile implements types.StageStorage.
func (f *FileStage) LoadFile(path string, out any) error {
	full, err := f.resolve(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return fmt.Errorf("read %q: %w", path, err)
	}
	return json.Unmarshal(data, out)
}

// SavePage implements types.StageStorage, writing page n under subdir as
// "<subdir>/page_NNNN.json".
func (f *FileStage) SavePage(n int, obj any, subdir string) error {
	return f.SaveFile(pagePath(n, subdir), obj)
}

// LoadPage implements types.StageStorage.
func (f *FileStage) LoadPage(n int, subdir string, out any) error {
	return f.LoadFile(pagePath(n, subdir), out)
}

func pagePath(n int, subdir string) string {
	return filepath.Join(subdir, fmt.Sprintf("page_%04d.json", n))
}

// Metrics implements types.StageStorage.
func (f *FileStage) Metrics() types.MetricsManager { return f.metrics }

var _ types.StageStorage = (*FileStage)(nil)
