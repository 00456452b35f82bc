// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package types contains the data model shared across the batch execution
// engine: requests, results, phase tracking, and the provider interfaces
// that break import cycles between pkg/llm, pkg/batch, and pkg/agent.
package types

import "time"

// ContentPart is one piece of a multi-part message, either text or an
// image. Messages whose Content is a plain string use Message.Content
// directly and leave Parts nil; messages with mixed text/image content
// set Parts and leave Content empty.
type ContentPart struct {
	Type string `json:"type"` // "text" or "image"

	Text string `json:"text,omitempty"`

	ImageMediaType string `json:"image_media_type,omitempty"`
	ImageData      string `json:"image_data,omitempty"` // base64, when source is inline
	ImageURL       string `json:"image_url,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // raw JSON text, parsed by the agent loop
}

// ReasoningDetail captures an extended-thinking / reasoning block returned
// alongside a model's content, kept opaque to the engine.
type ReasoningDetail struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Message is one turn in a conversation sent to or received from the LLM.
type Message struct {
	Role string `json:"role"` // "user", "assistant", "tool"

	// Content is used when the message is plain text. Mutually exclusive
	// with Parts; exactly one should be set on outbound messages.
	Content string        `json:"content,omitempty"`
	Parts   []ContentPart `json:"parts,omitempty"`

	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a "tool" role message back to the ToolCall it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`

	ReasoningDetails []ReasoningDetail `json:"reasoning_details,omitempty"`
}

// HasText reports whether m carries any non-empty textual content, across
// both the plain-string and multi-part shapes.
func (m Message) HasText() bool {
	if m.Content != "" {
		return true
	}
	for _, p := range m.Parts {
		if p.Type == "text" && p.Text != "" {
			return true
		}
	}
	return false
}

// RequestPhase is the lifecycle stage of a Request inside the worker pool.
type RequestPhase string

const (
	PhaseQueued      RequestPhase = "QUEUED"
	PhaseRateLimited RequestPhase = "RATE_LIMITED"
	PhaseDequeued    RequestPhase = "DEQUEUED"
	PhaseExecuting   RequestPhase = "EXECUTING"
	PhaseCompleted   RequestPhase = "COMPLETED"
	PhaseFailed      RequestPhase = "FAILED"
)

// ErrorKind is the taxonomy of failure reasons a Result may carry. It is
// carried as data (compared, logged, retried on) rather than as a Go
// error, since it must cross the worker-pool boundary intact.
type ErrorKind string

const (
	ErrTimeout            ErrorKind = "timeout"
	ErrThreadTimeout      ErrorKind = "thread_timeout"
	ErrServerError        ErrorKind = "5xx"
	ErrRateLimit          ErrorKind = "429_rate_limit"
	ErrPayloadTooLarge    ErrorKind = "413_payload_too_large"
	ErrUnprocessable      ErrorKind = "422_unprocessable"
	ErrClientError        ErrorKind = "4xx"
	ErrJSONParse          ErrorKind = "json_parse"
	ErrWorkerException    ErrorKind = "worker_exception"
	ErrMissing            ErrorKind = "missing"
	ErrUnknown            ErrorKind = "unknown"
	maxRetriesSuffix                = "_max_retries_exceeded"
)

// WithMaxRetriesExceeded returns k suffixed to mark that the retry budget
// was exhausted while this kind was in play.
func (k ErrorKind) WithMaxRetriesExceeded() ErrorKind {
	return k + maxRetriesSuffix
}

// Retryable error kinds, per the executor's classification table. 4xx and
// missing/worker_exception deliberately excluded: 4xx errors other than
// 413/422/429 are treated as caller bugs, and the remainder are
// engine-internal states rather than classification outcomes to retry on.
var retryableKinds = map[ErrorKind]bool{
	ErrTimeout:         true,
	ErrThreadTimeout:   true,
	ErrServerError:     true,
	ErrRateLimit:       true,
	ErrPayloadTooLarge: true,
	ErrUnprocessable:   true,
	ErrJSONParse:       true,
	ErrUnknown:         true,
}

// IsRetryable reports whether k is in the engine's retryable set.
func IsRetryable(k ErrorKind) bool {
	return retryableKinds[k]
}

// Request is one unit of work submitted to the worker pool.
type Request struct {
	ID       string    `json:"id"`
	Messages []Message `json:"messages"`

	Model        string   `json:"model"`
	Temperature  float64  `json:"temperature"`
	MaxTokens    int      `json:"max_tokens,omitempty"`
	Timeout      time.Duration `json:"timeout"`
	Images       []ContentPart `json:"images,omitempty"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
	Tools        []ToolSchema `json:"tools,omitempty"`
	// FallbackModels is carried through as request data for a host-level
	// router to consult; the executor always calls Model as given and
	// never selects among these itself.
	FallbackModels []string `json:"fallback_models,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`

	// OCRInputTokens is a host-supplied hint used only for the ETA display
	// heuristic (0.73 x this value); it must never influence routing.
	OCRInputTokens int `json:"ocr_input_tokens,omitempty"`

	// retryCount and queuedAt are owned exclusively by the worker pool.
	retryCount int
	queuedAt   time.Time
}

// RetryCount returns the number of retry attempts recorded so far.
func (r *Request) RetryCount() int { return r.retryCount }

// QueuedAt returns the time this request was last admitted to the queue.
func (r *Request) QueuedAt() time.Time { return r.queuedAt }

// Stamp marks the request as freshly admitted to the queue, setting
// QueuedAt to now. Only called by pkg/batch.
func (r *Request) Stamp(now time.Time) { r.queuedAt = now }

// IncrementRetry bumps the retry counter. Only called by pkg/batch.
func (r *Request) IncrementRetry() { r.retryCount++ }

// ToolSchema describes one tool available to the model, in whatever shape
// the provider's function-calling API expects.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Usage tracks token counts for one LLM call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	ReasoningTokens  int `json:"reasoning_tokens"`
	TotalTokens      int `json:"total_tokens"`
	// Estimated marks that Usage was derived from a local token count of
	// the text rather than a provider-reported usage block.
	Estimated bool `json:"estimated"`
}

// Result is the outcome of executing one Request.
type Result struct {
	RequestID string `json:"request_id"`
	Request   *Request `json:"-"` // back-reference for host convenience

	Success  bool   `json:"success"`
	Response string `json:"response"`

	Usage   Usage   `json:"usage"`
	CostUSD float64 `json:"cost_usd"`

	QueueTime     time.Duration `json:"queue_time"`
	ExecutionTime time.Duration `json:"execution_time"`
	TTFT          time.Duration `json:"ttft"`

	Attempts      int    `json:"attempts"`
	SelectedModel string `json:"selected_model"`

	ErrorKind    ErrorKind `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	RetryAfter   time.Duration `json:"retry_after,omitempty"`

	ToolCalls        []ToolCall        `json:"tool_calls,omitempty"`
	ReasoningDetails []ReasoningDetail `json:"reasoning_details,omitempty"`
}

// RequestStatus is the worker pool's phase-tracking record for one id.
type RequestStatus struct {
	RequestID      string
	Phase          RequestPhase
	QueuedAt       time.Time
	PhaseEnteredAt time.Time
	RetryCount     int
	RateLimitETA   time.Duration
}

// AgentResult is the outcome of one Conversation run.
type AgentResult struct {
	Success bool `json:"success"`

	Iterations int `json:"iterations"`

	TotalCostUSD            float64 `json:"total_cost_usd"`
	TotalPromptTokens       int     `json:"total_prompt_tokens"`
	TotalCompletionTokens   int     `json:"total_completion_tokens"`
	TotalReasoningTokens    int     `json:"total_reasoning_tokens"`

	ExecutionTime time.Duration `json:"execution_time"`

	FinalMessages []Message `json:"final_messages"`
	RunLogPath    string    `json:"run_log_path,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
}

// BatchStats is a point-in-time snapshot computed on demand from a batch's
// results, never maintained incrementally.
type BatchStats struct {
	Completed  int
	Failed     int
	InProgress int
	Queued     int

	TotalCostUSD float64
	TotalTokens  int

	ThroughputPerSecond float64
	RateLimitUtilization float64
}
