// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/llmbatch/pkg/types"
)

func sseServer(t *testing.T, chunks []string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"boom"}`))
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		for _, c := range chunks {
			_, _ = fmt.Fprintf(w, "data: %s\n\n", c)
			if flusher != nil {
				flusher.Flush()
			}
		}
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
}

func TestExecutor_Call_SuccessWithUsage(t *testing.T) {
	srv := sseServer(t, []string{
		`{"choices":[{"delta":{"content":"Hel"}}]}`,
		`{"choices":[{"delta":{"content":"lo"}}]}`,
		`{"usage":{"prompt_tokens":5,"completion_tokens":2}}`,
	}, http.StatusOK)
	defer srv.Close()

	exec := New(Config{Endpoint: srv.URL})
	req := &types.Request{ID: "r1", Model: "gpt-test", Messages: []types.Message{{Role: "user", Content: "hi"}}}

	result, err := exec.Call(context.Background(), req)
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "Hello", result.Response)
	assert.Equal(t, 5, result.Usage.PromptTokens)
	assert.Equal(t, 2, result.Usage.CompletionTokens)
	assert.False(t, result.Usage.Estimated)
	assert.GreaterOrEqual(t, result.TTFT, time.Duration(0))
}

func TestExecutor_Call_EstimatesUsageWhenAbsent(t *testing.T) {
	srv := sseServer(t, []string{`{"choices":[{"delta":{"content":"abc"}}]}`}, http.StatusOK)
	defer srv.Close()

	exec := New(Config{Endpoint: srv.URL})
	req := &types.Request{ID: "r2", Model: "m", Messages: []types.Message{{Role: "user", Content: "hi"}}}

	result, err := exec.Call(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.Usage.Estimated)
}

func TestExecutor_Call_429ClassifiesAsRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	exec := New(Config{Endpoint: srv.URL})
	req := &types.Request{ID: "r3", Model: "m", Messages: []types.Message{{Role: "user", Content: "hi"}}}

	result, err := exec.Call(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, types.ErrRateLimit, result.ErrorKind)
	assert.Equal(t, 2*time.Second, result.RetryAfter)
}

func TestExecutor_Call_ServerErrorClassifiedAs5xx(t *testing.T) {
	srv := sseServer(t, nil, http.StatusInternalServerError)
	defer srv.Close()

	exec := New(Config{Endpoint: srv.URL})
	req := &types.Request{ID: "r4", Model: "m", Messages: []types.Message{{Role: "user", Content: "hi"}}}

	result, err := exec.Call(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, types.ErrServerError, result.ErrorKind)
}

func TestExecutor_CallWithTools_ExtractsToolCalls(t *testing.T) {
	srv := sseServer(t, []string{
		`{"choices":[{"delta":{"tool_calls":[{"id":"t1","function":{"name":"search","arguments":"{\"q\":\"x\"}"}}]}}]}`,
	}, http.StatusOK)
	defer srv.Close()

	exec := New(Config{Endpoint: srv.URL})
	req := &types.Request{ID: "r5", Model: "m", Messages: []types.Message{{Role: "user", Content: "hi"}}}

	result, err := exec.CallWithTools(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, result.ToolCalls, 1)
	assert.Equal(t, "search", result.ToolCalls[0].Name)
}
