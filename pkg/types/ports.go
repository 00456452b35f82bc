// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package types

import "context"

// LLMClient is the transport port the engine consumes. The default
// implementation (pkg/llm.Executor) performs the streaming HTTP call,
// nonce injection, and telemetry internally; callers only see the final
// Result.
type LLMClient interface {
	// Call executes a single request and returns its Result. Never
	// returns a Go error for request-level failures — those are encoded
	// in Result.ErrorKind/ErrorMessage, since the worker pool routes on
	// that taxonomy. A non-nil error indicates a programming error (e.g.
	// nil request) rather than a transport failure.
	Call(ctx context.Context, req *Request) (*Result, error)

	// CallWithTools behaves like Call but additionally returns any
	// tool_calls the model requested, used by the agent loop.
	CallWithTools(ctx context.Context, req *Request) (*Result, error)
}

// CostCalculator computes the USD cost of one LLM call. Implementations
// must tolerate unknown model ids by returning 0 rather than an error.
type CostCalculator interface {
	Cost(modelID string, promptTokens, completionTokens, images int) float64
}

// MetricsManager records per-item metrics under a string key (e.g.
// "iteration_0003") and exposes them back for reporting.
type MetricsManager interface {
	Record(key string, costUSD float64, elapsed float64, tokens int, custom map[string]any, accumulate bool)
	GetAll() map[string]any
}

// StageStorage is the persistence port the engine consumes. The engine
// writes only within the stage it is given; it never touches foreign
// paths.
type StageStorage interface {
	SaveFile(path string, obj any) error
	LoadFile(path string, out any) error
	SavePage(n int, obj any, subdir string) error
	LoadPage(n int, subdir string, out any) error
	Metrics() MetricsManager
}

// Logger is a leveled logger with no format assumptions; fields are
// passed as alternating key/value pairs, matching the teacher's zap
// SugaredLogger-style call convention.
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)
}
