// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package testtools provides a minimal in-memory types.Tools
// implementation for exercising pkg/agent without a real tool backend.
package testtools

import (
	"context"
	"sync"

	"github.com/teradata-labs/llmbatch/pkg/types"
)

// Mock is a controllable, thread-safe types.Tools implementation for
// tests. Each named tool has its own scripted executor; IsComplete and
// CurrentImages are likewise swappable.
type Mock struct {
	mu sync.Mutex

	Schemas []types.ToolSchema

	Execs map[string]func(ctx context.Context, args map[string]any) (string, error)

	CompleteFn func() bool
	ImagesFn   func() []types.ContentPart

	ExecuteCount int
	LastTool     string
	LastArgs     map[string]any
}

// NewMock constructs a Mock that reports complete=false and has no tools
// registered; callers set Schemas/Execs/CompleteFn as their scenario needs.
func NewMock() *Mock {
	return &Mock{Execs: make(map[string]func(context.Context, map[string]any) (string, error))}
}

// OnExecute registers the executor for a named tool, returning m for
// chaining.
func (m *Mock) OnExecute(name string, fn func(ctx context.Context, args map[string]any) (string, error)) *Mock {
	m.Execs[name] = fn
	return m
}

func (m *Mock) ListToolSchemas() []types.ToolSchema {
	return m.Schemas
}

func (m *Mock) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	m.mu.Lock()
	m.ExecuteCount++
	m.LastTool = name
	m.LastArgs = args
	fn := m.Execs[name]
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, args)
	}
	return `{"result":"mock"}`, nil
}

func (m *Mock) IsComplete() bool {
	if m.CompleteFn != nil {
		return m.CompleteFn()
	}
	return false
}

func (m *Mock) CurrentImages() []types.ContentPart {
	if m.ImagesFn != nil {
		return m.ImagesFn()
	}
	return nil
}

var _ types.Tools = (*Mock)(nil)
