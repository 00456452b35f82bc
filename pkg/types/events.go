// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package types

import "time"

// EventKind enumerates every lifecycle event the engine emits to host
// observers, LLM-level and agent-level combined.
type EventKind string

const (
	EventQueued      EventKind = "QUEUED"
	EventDequeued    EventKind = "DEQUEUED"
	EventExecuting   EventKind = "EXECUTING"
	EventFirstToken  EventKind = "FIRST_TOKEN"
	EventStreaming   EventKind = "STREAMING"
	EventCompleted   EventKind = "COMPLETED"
	EventFailed      EventKind = "FAILED"
	EventRetryQueued EventKind = "RETRY_QUEUED"
	EventRateLimited EventKind = "RATE_LIMITED"
	EventProgress    EventKind = "PROGRESS"

	EventAgentStart       EventKind = "agent_start"
	EventIterationStart   EventKind = "iteration_start"
	EventToolCall         EventKind = "tool_call"
	EventIterationDone    EventKind = "iteration_complete"
	EventAgentComplete    EventKind = "agent_complete"
	EventAgentStatusFinal EventKind = "agent_status_final"
)

// Event is a single structured notification emitted by the engine. Only
// the fields relevant to Kind are populated; the rest are zero values.
type Event struct {
	Kind      EventKind `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
	AgentID   string    `json:"agent_id,omitempty"`

	// Streaming telemetry (FIRST_TOKEN, STREAMING).
	TTFT            time.Duration `json:"ttft,omitempty"`
	TokensObserved  int           `json:"tokens_observed,omitempty"`
	TokensPerSecond float64       `json:"tokens_per_second,omitempty"`
	ETASeconds      float64       `json:"eta_seconds,omitempty"`

	// Scheduling (RATE_LIMITED, RETRY_QUEUED).
	RateLimitETA time.Duration `json:"rate_limit_eta,omitempty"`
	RetryCount   int           `json:"retry_count,omitempty"`

	// Terminal (COMPLETED, FAILED).
	ErrorKind ErrorKind `json:"error_kind,omitempty"`

	// Agent-level.
	Iteration     int     `json:"iteration,omitempty"`
	ToolName      string  `json:"tool_name,omitempty"`
	ToolArgsShort string  `json:"tool_args_short,omitempty"`
	ToolExecTime  time.Duration `json:"tool_exec_time,omitempty"`
	PromptTokens  int     `json:"prompt_tokens,omitempty"`
	CompletionTokens int  `json:"completion_tokens,omitempty"`
	CostDeltaUSD  float64 `json:"cost_delta_usd,omitempty"`
	Status        string  `json:"status,omitempty"` // agent_status_final: "found" / "not_found"
}

// EventSink receives Events as the engine emits them. Implementations must
// not block for long; the engine does not buffer unconsumed events.
type EventSink func(Event)
