// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package llm implements the streaming request executor (C2): one HTTP
// streaming call per Request, SSE parsing, telemetry events, and error
// classification. It performs exactly one attempt; retry scheduling is
// pkg/batch's job.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/llmbatch/pkg/types"
)

const (
	// streamingThrottleInterval is the minimum gap between STREAMING events.
	streamingThrottleInterval = 200 * time.Millisecond
	// streamStallTimeout fails the stream if no chunk arrives within it.
	streamStallTimeout = 30 * time.Second
	// maxParseErrors is the corruption threshold.
	maxParseErrors = 10
	// charsPerTokenEstimate approximates tokens from character counts when
	// TokenCounter cannot load its tiktoken encoding.
	charsPerTokenEstimate = 3
	// outputSizeHeuristic is the ETA display-only estimator: observed
	// output tends to run at ~73% of the OCR'd input size.
	outputSizeHeuristic = 0.73
	// defaultMaxTokensFallback is used for the ETA estimate when neither
	// an OCR hint nor a max_tokens cap is present.
	defaultMaxTokensFallback = 1200
)

// Config configures the executor.
type Config struct {
	Endpoint string
	APIKey   string

	// Workers sizes the per-slot HTTP client pool (bounds connection
	// count to roughly worker count, avoiding cross-worker contention).
	Workers int

	CostCalculator types.CostCalculator
	Logger         *zap.Logger

	// Events receives telemetry (QUEUED/DEQUEUED/COMPLETED/FAILED are
	// emitted by pkg/batch; FIRST_TOKEN/STREAMING originate here). May be nil.
	Events types.EventSink

	// Tokens estimates token counts for streaming telemetry and the
	// no-usage-block fallback. Defaults to a tiktoken-backed counter.
	Tokens *TokenCounter
}

// Executor performs one streaming HTTP call per Call/CallWithTools
// invocation and folds the SSE stream into a types.Result.
type Executor struct {
	cfg Config

	clientsMu sync.Mutex
	clients   []*http.Client
	nextSlot  int
}

// New constructs an Executor. A small pool of *http.Client is preallocated
// sized to cfg.Workers (minimum 1) and handed out round-robin, so
// concurrent calls are spread across clients rather than all sharing one.
func New(cfg Config) *Executor {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Tokens == nil {
		cfg.Tokens = NewTokenCounter()
	}
	clients := make([]*http.Client, cfg.Workers)
	for i := range clients {
		clients[i] = &http.Client{}
	}
	return &Executor{cfg: cfg, clients: clients}
}

func (e *Executor) client() *http.Client {
	e.clientsMu.Lock()
	defer e.clientsMu.Unlock()
	c := e.clients[e.nextSlot%len(e.clients)]
	e.nextSlot++
	return c
}

// Call executes req without tool schemas.
func (e *Executor) Call(ctx context.Context, req *types.Request) (*types.Result, error) {
	return e.execute(ctx, req, false)
}

// CallWithTools executes req including its tool schemas and returns any
// tool_calls the model requested.
func (e *Executor) CallWithTools(ctx context.Context, req *types.Request) (*types.Result, error) {
	return e.execute(ctx, req, true)
}

func (e *Executor) execute(ctx context.Context, req *types.Request, withTools bool) (*types.Result, error) {
	start := time.Now()
	model := req.Model

	payload := buildPayload(req, model, withTools)
	body, err := json.Marshal(payload)
	if err != nil {
		return &types.Result{
			RequestID: req.ID, Request: req, Success: false,
			ErrorKind: types.ErrUnknown, ErrorMessage: fmt.Sprintf("marshal payload: %v", err),
			SelectedModel: model,
		}, nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return &types.Result{
			RequestID: req.ID, Request: req, Success: false,
			ErrorKind: types.ErrUnknown, ErrorMessage: fmt.Sprintf("build request: %v", err),
			SelectedModel: model,
		}, nil
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if e.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}

	resp, err := e.client().Do(httpReq)
	if err != nil {
		return e.failureResult(req, model, start, 0, classifyTransportError(err), err.Error()), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		kind, retryAfter := classifyHTTPStatus(resp.StatusCode, resp.Header.Get("Retry-After"))
		return e.failureResult(req, model, start, retryAfter, kind,
			fmt.Sprintf("http %d: %s", resp.StatusCode, truncate(string(respBody), 500))), nil
	}

	return e.processStream(req, model, resp.Body, start)
}

func (e *Executor) failureResult(req *types.Request, model string, start time.Time, retryAfter time.Duration, kind types.ErrorKind, msg string) *types.Result {
	r := &types.Result{
		RequestID:     req.ID,
		Request:       req,
		Success:       false,
		ExecutionTime: time.Since(start),
		Attempts:      1,
		SelectedModel: model,
		ErrorKind:     kind,
		ErrorMessage:  msg,
		RetryAfter:    retryAfter,
	}
	// COMPLETED/FAILED are emitted by pkg/batch at terminal routing, once
	// per request id rather than once per attempt.
	return r
}

type streamState struct {
	start           time.Time
	lastEmit        time.Time
	lastChunk       time.Time
	tokensSoFar     int
	content         strings.Builder
	parseErrors     int
	firstTokenTime  time.Time
	firstTokenSeen  bool
	actualUsage     *types.Usage
	toolCalls       []types.ToolCall
	reasoning       []types.ReasoningDetail
}

func (e *Executor) processStream(req *types.Request, model string, body io.Reader, start time.Time) (*types.Result, error) {
	st := &streamState{start: start, lastEmit: start, lastChunk: start}

	// A read that blocks never reaches the per-line check below, so a timer
	// closes the body once no line has arrived within streamStallTimeout.
	var stalled atomic.Bool
	stallTimer := time.AfterFunc(streamStallTimeout, func() {
		stalled.Store(true)
		if c, ok := body.(io.Closer); ok {
			_ = c.Close()
		}
	})
	defer stallTimer.Stop()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if time.Since(st.lastChunk) > streamStallTimeout {
			return e.failureResult(req, model, start, 0, types.ErrTimeout,
				fmt.Sprintf("stream stalled: no data for %s", streamStallTimeout)), nil
		}

		line := scanner.Text()
		if line == "" {
			continue
		}
		st.lastChunk = time.Now()
		stallTimer.Reset(streamStallTimeout)

		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		if corrupted := e.parseChunk(data, st, req); corrupted {
			return e.failureResult(req, model, start, 0, types.ErrUnknown,
				fmt.Sprintf("too many SSE parse errors (%d) - stream may be corrupted", st.parseErrors)), nil
		}
	}
	if err := scanner.Err(); err != nil {
		if stalled.Load() {
			return e.failureResult(req, model, start, 0, types.ErrTimeout,
				fmt.Sprintf("stream stalled: no data for %s", streamStallTimeout)), nil
		}
		return e.failureResult(req, model, start, 0, types.ErrTimeout, fmt.Sprintf("error reading stream: %v", err)), nil
	}

	if st.tokensSoFar > 0 {
		e.emitStreaming(req, st, time.Now(), true)
	}

	return e.finalize(req, model, st, start), nil
}

// parseChunk parses one SSE data line, updates st, and returns true if the
// corruption threshold has just been crossed.
func (e *Executor) parseChunk(data string, st *streamState, req *types.Request) bool {
	var chunk struct {
		Usage *struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
		Choices []struct {
			Delta struct {
				Content   string `json:"content"`
				ToolCalls []struct {
					ID       string `json:"id"`
					Function struct {
						Name      string `json:"name"`
						Arguments string `json:"arguments"`
					} `json:"function"`
				} `json:"tool_calls"`
			} `json:"delta"`
		} `json:"choices"`
	}

	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		st.parseErrors++
		if st.parseErrors == 1 {
			e.cfg.Logger.Warn("SSE chunk parse error", zap.String("request_id", req.ID), zap.Error(err))
		}
		return st.parseErrors > maxParseErrors
	}

	if chunk.Usage != nil {
		st.actualUsage = &types.Usage{
			PromptTokens:     chunk.Usage.PromptTokens,
			CompletionTokens: chunk.Usage.CompletionTokens,
			TotalTokens:      chunk.Usage.PromptTokens + chunk.Usage.CompletionTokens,
		}
	}

	if len(chunk.Choices) > 0 {
		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			e.processContentDelta(delta.Content, st, req)
		}
		for _, tc := range delta.ToolCalls {
			if tc.Function.Name == "" && tc.ID == "" {
				continue
			}
			st.toolCalls = append(st.toolCalls, types.ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
	}

	return false
}

func (e *Executor) processContentDelta(content string, st *streamState, req *types.Request) {
	if !st.firstTokenSeen {
		st.firstTokenTime = time.Now()
		st.firstTokenSeen = true
		if e.cfg.Events != nil {
			e.cfg.Events(types.Event{
				Kind:      types.EventFirstToken,
				Timestamp: st.firstTokenTime,
				RequestID: req.ID,
				TTFT:      st.firstTokenTime.Sub(st.start),
			})
		}
	}

	st.content.WriteString(content)

	now := time.Now()
	if now.Sub(st.lastEmit) >= streamingThrottleInterval {
		// Re-tokenizing the whole buffer only at the throttled emit cadence
		// (not per chunk) keeps this proportional to event volume, not
		// stream chunk volume.
		st.tokensSoFar = e.cfg.Tokens.Count(st.content.String())
		e.emitStreaming(req, st, now, false)
		st.lastEmit = now
	}
}

func (e *Executor) emitStreaming(req *types.Request, st *streamState, now time.Time, final bool) {
	if e.cfg.Events == nil {
		return
	}
	elapsed := now.Sub(st.start)
	tps := 0.0
	if elapsed > 0 {
		tps = float64(st.tokensSoFar) / elapsed.Seconds()
	}
	eta := etaSeconds(req, st.tokensSoFar, elapsed)
	if final {
		eta = 0
	}
	e.cfg.Events(types.Event{
		Kind:            types.EventStreaming,
		Timestamp:       now,
		RequestID:       req.ID,
		TokensObserved:  st.tokensSoFar,
		TokensPerSecond: tps,
		ETASeconds:      eta,
	})
}

// etaSeconds is the display-only ETA heuristic: never read by routing.
func etaSeconds(req *types.Request, tokensSoFar int, elapsed time.Duration) float64 {
	var estimatedTotal int
	if req.OCRInputTokens > 0 {
		estimatedTotal = int(float64(req.OCRInputTokens) * outputSizeHeuristic)
	} else if req.MaxTokens > 0 {
		estimatedTotal = req.MaxTokens
	} else {
		estimatedTotal = defaultMaxTokensFallback
	}
	remaining := estimatedTotal - tokensSoFar
	if remaining < 0 {
		remaining = 0
	}
	if elapsed <= 0 {
		return 0
	}
	rate := float64(tokensSoFar) / elapsed.Seconds()
	if rate <= 0 {
		return 0
	}
	return float64(remaining) / rate
}

func (e *Executor) finalize(req *types.Request, model string, st *streamState, start time.Time) *types.Result {
	response := st.content.String()

	var usage types.Usage
	if st.actualUsage != nil {
		usage = *st.actualUsage
	} else {
		promptTokens := 0
		for _, m := range req.Messages {
			promptTokens += e.cfg.Tokens.Count(m.Content)
		}
		usage = types.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: e.cfg.Tokens.Count(response),
			Estimated:        true,
		}
		e.cfg.Logger.Warn("no usage data in SSE stream, estimating token counts",
			zap.String("request_id", req.ID))
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

	var cost float64
	if e.cfg.CostCalculator != nil {
		cost = e.cfg.CostCalculator.Cost(req.Model, usage.PromptTokens, usage.CompletionTokens, len(req.Images))
	}

	var ttft time.Duration
	if st.firstTokenSeen {
		ttft = st.firstTokenTime.Sub(start)
	}

	return &types.Result{
		RequestID:        req.ID,
		Request:          req,
		Success:          true,
		Response:         response,
		Usage:            usage,
		CostUSD:          cost,
		ExecutionTime:    time.Since(start),
		TTFT:             ttft,
		Attempts:         1,
		SelectedModel:    model,
		ToolCalls:        st.toolCalls,
		ReasoningDetails: st.reasoning,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func classifyTransportError(err error) types.ErrorKind {
	msg := err.Error()
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") {
		return types.ErrTimeout
	}
	return types.ErrUnknown
}

func classifyHTTPStatus(status int, retryAfterHeader string) (types.ErrorKind, time.Duration) {
	var retryAfter time.Duration
	if secs, err := strconv.Atoi(retryAfterHeader); err == nil {
		retryAfter = time.Duration(secs) * time.Second
	}
	switch {
	case status == http.StatusTooManyRequests:
		return types.ErrRateLimit, retryAfter
	case status == http.StatusRequestEntityTooLarge:
		return types.ErrPayloadTooLarge, retryAfter
	case status == http.StatusUnprocessableEntity:
		return types.ErrUnprocessable, retryAfter
	case status >= 500:
		return types.ErrServerError, retryAfter
	case status >= 400:
		return types.ErrClientError, retryAfter
	default:
		return types.ErrUnknown, retryAfter
	}
}
