// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package batch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/llmbatch/pkg/ratelimit"
	"github.com/teradata-labs/llmbatch/pkg/types"
)

// scriptedClient returns, for each request id, a queue of outcomes
// consumed one per Call; the last outcome repeats once exhausted.
type scriptedClient struct {
	mu       sync.Mutex
	scripts  map[string][]*types.Result
	calls    map[string]int
	callDelay time.Duration
}

func newScriptedClient() *scriptedClient {
	return &scriptedClient{scripts: map[string][]*types.Result{}, calls: map[string]int{}}
}

func (c *scriptedClient) on(id string, results ...*types.Result) *scriptedClient {
	c.scripts[id] = results
	return c
}

func (c *scriptedClient) Call(ctx context.Context, req *types.Request) (*types.Result, error) {
	if c.callDelay > 0 {
		// Ignores ctx deliberately: simulates a call that genuinely hangs
		// past the caller's deadline, which is what the thread-level
		// timeout wrapper exists to catch.
		time.Sleep(c.callDelay)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	seq := c.scripts[req.ID]
	n := c.calls[req.ID]
	c.calls[req.ID] = n + 1
	if n >= len(seq) {
		n = len(seq) - 1
	}
	got := *seq[n]
	got.RequestID = req.ID
	return &got, nil
}

func (c *scriptedClient) CallWithTools(ctx context.Context, req *types.Request) (*types.Result, error) {
	return c.Call(ctx, req)
}

func testLimiter() *ratelimit.Limiter {
	return ratelimit.New(ratelimit.Config{RequestsPerMinute: 6000})
}

func TestPool_ProcessBatch_AllSucceed(t *testing.T) {
	client := newScriptedClient().
		on("r1", &types.Result{Success: true, Response: "ok1"}).
		on("r2", &types.Result{Success: true, Response: "ok2"})

	cfg := DefaultConfig()
	cfg.MaxWorkers = 2
	p := New(client, testLimiter(), cfg)

	requests := []*types.Request{{ID: "r1"}, {ID: "r2"}}

	var seen int32
	results := p.ProcessBatch(context.Background(), requests, func(r *types.Result) {
		atomic.AddInt32(&seen, 1)
	})

	require.Len(t, results, 2)
	assert.True(t, results["r1"].Success)
	assert.True(t, results["r2"].Success)
	assert.Equal(t, int32(2), atomic.LoadInt32(&seen))
}

func TestPool_ProcessBatch_RetriesThenSucceeds(t *testing.T) {
	client := newScriptedClient().
		on("r1",
			&types.Result{Success: false, ErrorKind: types.ErrServerError},
			&types.Result{Success: false, ErrorKind: types.ErrServerError},
			&types.Result{Success: true, Response: "finally"},
		)

	cfg := DefaultConfig()
	cfg.MaxWorkers = 1
	cfg.RetryJitterMin = 1 * time.Millisecond
	cfg.RetryJitterMax = 3 * time.Millisecond
	p := New(client, testLimiter(), cfg)

	results := p.ProcessBatch(context.Background(), []*types.Request{{ID: "r1"}}, nil)

	require.Contains(t, results, "r1")
	assert.True(t, results["r1"].Success)
	assert.Equal(t, 3, results["r1"].Attempts)
}

func TestPool_ProcessBatch_PermanentFailureAfterMaxRetries(t *testing.T) {
	always5xx := []*types.Result{}
	for i := 0; i < 10; i++ {
		always5xx = append(always5xx, &types.Result{Success: false, ErrorKind: types.ErrServerError})
	}
	client := newScriptedClient().on("r1", always5xx...)

	cfg := DefaultConfig()
	cfg.MaxWorkers = 1
	cfg.MaxRetries = 2
	cfg.RetryJitterMin = 1 * time.Millisecond
	cfg.RetryJitterMax = 2 * time.Millisecond
	p := New(client, testLimiter(), cfg)

	results := p.ProcessBatch(context.Background(), []*types.Request{{ID: "r1"}}, nil)

	r := results["r1"]
	require.NotNil(t, r)
	assert.False(t, r.Success)
	assert.Equal(t, types.ErrServerError.WithMaxRetriesExceeded(), r.ErrorKind)
	assert.Equal(t, 3, r.Attempts) // initial attempt + 2 retries
}

func TestPool_ProcessBatch_MaxRetriesZeroNeverRequeues(t *testing.T) {
	client := newScriptedClient().on("r1", &types.Result{Success: false, ErrorKind: types.ErrTimeout})

	cfg := DefaultConfig()
	cfg.MaxWorkers = 1
	cfg.MaxRetries = 0
	p := New(client, testLimiter(), cfg)

	results := p.ProcessBatch(context.Background(), []*types.Request{{ID: "r1"}}, nil)

	r := results["r1"]
	require.NotNil(t, r)
	assert.Equal(t, 1, r.Attempts)
	assert.Equal(t, types.ErrTimeout.WithMaxRetriesExceeded(), r.ErrorKind)
}

func TestPool_ProcessBatch_NonRetryable4xxFailsImmediately(t *testing.T) {
	client := newScriptedClient().on("r1", &types.Result{Success: false, ErrorKind: types.ErrClientError})

	cfg := DefaultConfig()
	cfg.MaxWorkers = 1
	cfg.MaxRetries = 5
	p := New(client, testLimiter(), cfg)

	results := p.ProcessBatch(context.Background(), []*types.Request{{ID: "r1"}}, nil)

	r := results["r1"]
	require.NotNil(t, r)
	assert.Equal(t, 1, r.Attempts)
	// not retryable, so no _max_retries_exceeded suffix is appended
	assert.Equal(t, types.ErrClientError, r.ErrorKind)
}

func TestPool_ProcessBatch_ThreadTimeoutSynthesized(t *testing.T) {
	client := newScriptedClient()
	client.callDelay = 200 * time.Millisecond
	client.on("r1", &types.Result{Success: true, Response: "too slow"})

	cfg := DefaultConfig()
	cfg.MaxWorkers = 1
	cfg.MaxRetries = 0
	p := New(client, testLimiter(), cfg)

	req := &types.Request{ID: "r1", Timeout: 20 * time.Millisecond}
	results := p.ProcessBatch(context.Background(), []*types.Request{req}, nil)

	r := results["r1"]
	require.NotNil(t, r)
	assert.False(t, r.Success)
	assert.Contains(t, string(r.ErrorKind), string(types.ErrThreadTimeout))
}

func TestPool_ProcessBatch_ExactlyOneTerminalResultPerRequest(t *testing.T) {
	client := newScriptedClient().
		on("r1", &types.Result{Success: false, ErrorKind: types.ErrTimeout}, &types.Result{Success: true}).
		on("r2", &types.Result{Success: true}).
		on("r3", &types.Result{Success: false, ErrorKind: types.ErrClientError})

	cfg := DefaultConfig()
	cfg.MaxWorkers = 3
	cfg.RetryJitterMin = 1 * time.Millisecond
	cfg.RetryJitterMax = 2 * time.Millisecond
	p := New(client, testLimiter(), cfg)

	var callbackCount int32
	results := p.ProcessBatch(context.Background(), []*types.Request{{ID: "r1"}, {ID: "r2"}, {ID: "r3"}}, func(r *types.Result) {
		atomic.AddInt32(&callbackCount, 1)
	})

	assert.Len(t, results, 3)
	assert.Equal(t, int32(3), atomic.LoadInt32(&callbackCount))
}

func TestPool_ProcessBatch_SynthesizesMissingResultWhenNoWorkerRuns(t *testing.T) {
	client := newScriptedClient().on("r1", &types.Result{Success: true})

	cfg := DefaultConfig()
	cfg.MaxWorkers = 1
	p := New(client, testLimiter(), cfg)
	// Force the "never completed" path deterministically: with zero
	// workers spawned, the request sits in the queue untouched and the
	// post-condition check at the end of ProcessBatch must still produce
	// a terminal Result for it.
	p.cfg.MaxWorkers = 0

	var callbackResult *types.Result
	results := p.ProcessBatch(context.Background(), []*types.Request{{ID: "r1"}}, func(r *types.Result) {
		callbackResult = r
	})

	require.Len(t, results, 1)
	require.NotNil(t, callbackResult)
	assert.Equal(t, types.ErrMissing, results["r1"].ErrorKind)
	assert.False(t, results["r1"].Success)
	assert.Equal(t, callbackResult, results["r1"])
}
