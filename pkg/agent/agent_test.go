// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/llmbatch/pkg/agent/testtools"
	"github.com/teradata-labs/llmbatch/pkg/types"
)

type scriptedLLM struct {
	results []*types.Result
	errs    []error
	call    int
}

func (s *scriptedLLM) Call(ctx context.Context, req *types.Request) (*types.Result, error) {
	return s.CallWithTools(ctx, req)
}

func (s *scriptedLLM) CallWithTools(ctx context.Context, req *types.Request) (*types.Result, error) {
	i := s.call
	s.call++
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return s.results[i], err
}

func TestConversation_Run_CompletesWithoutToolCalls(t *testing.T) {
	llm := &scriptedLLM{results: []*types.Result{
		{Success: true, Response: "done", Usage: types.Usage{PromptTokens: 10, CompletionTokens: 5}, CostUSD: 0.01},
	}}

	tools := testtools.NewMock()
	tools.CompleteFn = func() bool { return true }

	conv := New(Config{MaxIterations: 5})
	result := conv.Run(context.Background(), llm, "gpt-test",
		[]types.Message{{Role: "user", Content: "hello"}}, tools, nil, 0, 0)

	require.True(t, result.Success)
	assert.Equal(t, 1, result.Iterations)
	assert.Equal(t, 0.01, result.TotalCostUSD)
}

func TestConversation_Run_ExecutesToolCallsThenCompletes(t *testing.T) {
	llm := &scriptedLLM{results: []*types.Result{
		{Success: true, ToolCalls: []types.ToolCall{{ID: "t1", Name: "search", Arguments: `{"q":"x"}`}}},
		{Success: true, Response: "found it"},
	}}

	tools := testtools.NewMock()
	calls := 0
	tools.CompleteFn = func() bool { calls++; return calls >= 2 }
	tools.OnExecute("search", func(ctx context.Context, args map[string]any) (string, error) {
		assert.Equal(t, "x", args["q"])
		return `{"hits":1}`, nil
	})

	conv := New(Config{MaxIterations: 5})
	result := conv.Run(context.Background(), llm, "gpt-test",
		[]types.Message{{Role: "user", Content: "find x"}}, tools, nil, 0, 0)

	require.True(t, result.Success)
	assert.Equal(t, 2, result.Iterations)
	assert.Equal(t, 1, tools.ExecuteCount)
}

func TestConversation_Run_LLMFailureIsTerminal(t *testing.T) {
	llm := &scriptedLLM{
		results: []*types.Result{nil},
		errs:    []error{errors.New("connection reset")},
	}
	tools := testtools.NewMock()

	conv := New(Config{MaxIterations: 5})
	result := conv.Run(context.Background(), llm, "gpt-test",
		[]types.Message{{Role: "user", Content: "hello"}}, tools, nil, 0, 0)

	assert.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage, "connection reset")
}

func TestConversation_Run_HitsIterationCapWithoutCompleting(t *testing.T) {
	llm := &scriptedLLM{results: []*types.Result{{Success: true, Response: "still working"}}}
	tools := testtools.NewMock()
	tools.CompleteFn = func() bool { return false }

	conv := New(Config{MaxIterations: 3})
	result := conv.Run(context.Background(), llm, "gpt-test",
		[]types.Message{{Role: "user", Content: "keep going"}}, tools, nil, 0, 0)

	assert.False(t, result.Success)
	assert.Equal(t, 3, result.Iterations)
	assert.Contains(t, result.ErrorMessage, "did not complete within 3 iterations")
}

func TestConversation_Run_EmitsLifecycleEvents(t *testing.T) {
	llm := &scriptedLLM{results: []*types.Result{{Success: true, Response: "done"}}}
	tools := testtools.NewMock()
	tools.CompleteFn = func() bool { return true }

	var kinds []types.EventKind
	sink := func(e types.Event) { kinds = append(kinds, e.Kind) }

	conv := New(Config{MaxIterations: 5})
	conv.Run(context.Background(), llm, "gpt-test",
		[]types.Message{{Role: "user", Content: "hi"}}, tools, sink, 0, 0)

	assert.Contains(t, kinds, types.EventAgentStart)
	assert.Contains(t, kinds, types.EventIterationStart)
	assert.Contains(t, kinds, types.EventAgentComplete)
}
