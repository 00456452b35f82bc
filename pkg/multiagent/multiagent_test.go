// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package multiagent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/llmbatch/pkg/agent/testtools"
	"github.com/teradata-labs/llmbatch/pkg/types"
)

// fakeLLM always succeeds immediately with no tool calls, counting calls
// per request id.
type fakeLLM struct {
	mu    sync.Mutex
	calls map[string]int
}

func newFakeLLM() *fakeLLM {
	return &fakeLLM{calls: map[string]int{}}
}

func (f *fakeLLM) Call(ctx context.Context, req *types.Request) (*types.Result, error) {
	return f.CallWithTools(ctx, req)
}

func (f *fakeLLM) CallWithTools(ctx context.Context, req *types.Request) (*types.Result, error) {
	f.mu.Lock()
	f.calls[req.ID]++
	f.mu.Unlock()

	return &types.Result{Success: true, Response: "done", Usage: types.Usage{PromptTokens: 1, CompletionTokens: 1}}, nil
}

func TestBatch_Run_AllAgentsComplete(t *testing.T) {
	llm := newFakeLLM()
	specs := make([]AgentSpec, 3)
	for i := range specs {
		tools := testtools.NewMock()
		tools.CompleteFn = func() bool { return true }
		specs[i] = AgentSpec{
			AgentID: "agent-" + string(rune('a'+i)), Model: "m",
			InitialMessages: []types.Message{{Role: "user", Content: "go"}},
			Tools:           tools, MaxIterations: 5,
		}
	}

	b := New(llm, Config{MaxWorkers: 2})
	result := b.Run(context.Background(), specs)

	require.Equal(t, 3, result.TotalAgents)
	assert.Equal(t, 3, result.Successful)
	assert.Equal(t, 0, result.Failed)
	assert.Len(t, result.Results, 3)
}

func TestBatch_Run_PartialFailureDoesNotAbortOthers(t *testing.T) {
	llm := newFakeLLM()

	toolsOK := testtools.NewMock()
	toolsOK.CompleteFn = func() bool { return true }

	toolsFail := testtools.NewMock()
	toolsFail.CompleteFn = func() bool { return false }

	specs := []AgentSpec{
		{AgentID: "req-ok-0001", Model: "m", InitialMessages: []types.Message{{Role: "user", Content: "x"}}, Tools: toolsOK, MaxIterations: 3},
		{AgentID: "req-bad-0001", Model: "m", InitialMessages: []types.Message{{Role: "user", Content: "x"}}, Tools: toolsFail, MaxIterations: 1},
	}

	b := New(llm, Config{MaxWorkers: 2})
	result := b.Run(context.Background(), specs)

	assert.Equal(t, 1, result.Successful)
	assert.Equal(t, 1, result.Failed)
	assert.False(t, result.Results["req-bad-0001"].Success)
	assert.True(t, result.Results["req-ok-0001"].Success)
}

func TestProgressTracker_TracksFoundAndNotFound(t *testing.T) {
	tr := NewProgressTracker(2, 0, 0)
	tr.Register("a1", 5)
	tr.Register("a2", 5)

	tr.OnEvent("a1", types.Event{Kind: types.EventAgentComplete})
	tr.OnEvent("a1", types.Event{Kind: types.EventAgentStatusFinal, Status: "found"})

	tr.OnEvent("a2", types.Event{Kind: types.EventAgentComplete})
	tr.OnEvent("a2", types.Event{Kind: types.EventAgentStatusFinal, Status: "not_found"})

	snap := tr.Snapshot()
	assert.Equal(t, 2, snap.Completed)
	assert.Equal(t, 1, snap.Found)
	assert.Equal(t, 1, snap.NotFound)
}

func TestProgressTracker_IgnoresEventForUnregisteredAgent(t *testing.T) {
	tr := NewProgressTracker(1, 0, 0)
	tr.OnEvent("ghost", types.Event{Kind: types.EventAgentComplete})

	snap := tr.Snapshot()
	assert.Equal(t, 0, snap.Completed)
}

func TestProgressTracker_VisibleAgentsCapsAtMaxVisible(t *testing.T) {
	tr := NewProgressTracker(5, 2, 3)
	for _, id := range []string{"a1", "a2", "a3", "a4", "a5"} {
		tr.Register(id, 5)
	}

	visible := tr.VisibleAgents()
	assert.Len(t, visible, 2)
}

func TestProgressTracker_VisibleAgentsSortsRunningBeforeCompleted(t *testing.T) {
	tr := NewProgressTracker(2, 10, 3)
	tr.Register("done", 5)
	tr.Register("running", 5)

	tr.OnEvent("done", types.Event{Kind: types.EventAgentComplete})
	tr.OnEvent("done", types.Event{Kind: types.EventAgentStatusFinal, Status: "found"})

	visible := tr.VisibleAgents()
	require.Len(t, visible, 2)
	assert.Equal(t, "running", visible[0].AgentID)
	assert.Equal(t, "done", visible[1].AgentID)
}

func TestProgressTracker_VisibleAgentsDropsCompletedAfterDisplayWindow(t *testing.T) {
	tr := NewProgressTracker(2, 10, 0.02)
	tr.Register("done", 5)
	tr.Register("running", 5)

	tr.OnEvent("done", types.Event{Kind: types.EventAgentComplete})
	tr.OnEvent("done", types.Event{Kind: types.EventAgentStatusFinal, Status: "found"})

	time.Sleep(40 * time.Millisecond)

	visible := tr.VisibleAgents()
	require.Len(t, visible, 1)
	assert.Equal(t, "running", visible[0].AgentID)
}

func TestProgressTracker_VisibleAgentsDefaultsWhenUnconfigured(t *testing.T) {
	tr := NewProgressTracker(1, 0, -1)
	assert.Equal(t, DefaultMaxVisibleAgents, tr.maxVisibleAgents)
	assert.Equal(t, DefaultCompletedAgentDisplaySeconds, tr.completedAgentDisplaySeconds)
}
