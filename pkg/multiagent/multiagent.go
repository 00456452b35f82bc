// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package multiagent implements the multi-agent batch controller (C5): a
// fixed-size concurrent pool runs one pkg/agent.Conversation per entry and
// aggregates progress across the whole run.
package multiagent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teradata-labs/llmbatch/pkg/agent"
	"github.com/teradata-labs/llmbatch/pkg/types"
)

// AgentSpec is one agent to run as part of a batch.
type AgentSpec struct {
	AgentID         string
	Model           string
	InitialMessages []types.Message
	Tools           types.Tools
	Temperature     float64
	MaxTokens       int
	MaxIterations   int
}

// Config configures a Batch.
type Config struct {
	MaxWorkers int
	Logger     *zap.Logger
	Metrics    types.MetricsManager
	// LogDir, if set, is passed through to every Conversation so each
	// agent's run-log lands under LogDir/<agent_id>/.
	LogDir string

	// MaxVisibleAgents and CompletedAgentDisplaySeconds bound the
	// progress tracker's visible set; a zero/negative MaxVisibleAgents or a
	// negative CompletedAgentDisplaySeconds falls back to the tracker's own
	// defaults, and a zero CompletedAgentDisplaySeconds is used as is.
	MaxVisibleAgents             int
	CompletedAgentDisplaySeconds float64
}

// Result is the aggregate outcome of running a batch of agents.
type Result struct {
	Results               map[string]types.AgentResult
	TotalAgents           int
	Successful            int
	Failed                int
	TotalCostUSD          float64
	TotalTimeSeconds      float64
	TotalPromptTokens     int
	TotalCompletionTokens int
	TotalReasoningTokens  int
	AvgIterations         float64
	AvgCostPerAgent       float64
	AvgTimePerAgent       float64
}

// Batch runs a fixed-size concurrent pool of agent Conversations.
type Batch struct {
	cfg Config
	llm types.LLMClient

	progress *ProgressTracker
}

// New constructs a Batch. MaxWorkers defaults to 1 if unset.
func New(llm types.LLMClient, cfg Config) *Batch {
	if cfg.MaxWorkers < 1 {
		cfg.MaxWorkers = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Batch{cfg: cfg, llm: llm}
}

// Run executes every spec, bounded to cfg.MaxWorkers concurrent agents,
// and returns once all have produced a terminal AgentResult. A per-agent
// panic or unexpected error is converted into a failed AgentResult rather
// than aborting the rest of the batch.
func (b *Batch) Run(ctx context.Context, specs []AgentSpec) Result {
	start := time.Now()

	b.progress = NewProgressTracker(len(specs), b.cfg.MaxVisibleAgents, b.cfg.CompletedAgentDisplaySeconds)
	for _, s := range specs {
		b.progress.Register(s.AgentID, s.MaxIterations)
	}

	resultsCh := make(chan struct {
		id     string
		result types.AgentResult
	}, len(specs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.MaxWorkers)

	for _, spec := range specs {
		spec := spec
		g.Go(func() error {
			resultsCh <- struct {
				id     string
				result types.AgentResult
			}{spec.AgentID, b.runOne(gctx, spec)}
			return nil
		})
	}

	// errgroup.Go never returns a non-nil error here (runOne never
	// returns one to the caller), so Wait only blocks for completion.
	_ = g.Wait()
	close(resultsCh)

	results := make(map[string]types.AgentResult, len(specs))
	for r := range resultsCh {
		results[r.id] = r.result
	}

	return b.aggregate(results, time.Since(start))
}

func (b *Batch) runOne(ctx context.Context, spec AgentSpec) (result types.AgentResult) {
	defer func() {
		if r := recover(); r != nil {
			result = types.AgentResult{
				Success:      false,
				ErrorMessage: fmt.Sprintf("agent %s panicked: %v", spec.AgentID, r),
			}
		}
	}()

	logDir := ""
	if b.cfg.LogDir != "" {
		logDir = b.cfg.LogDir + "/" + spec.AgentID
	}

	conv := agent.New(agent.Config{
		MaxIterations:    spec.MaxIterations,
		LogDir:           logDir,
		Logger:           b.cfg.Logger,
		Metrics:          b.cfg.Metrics,
		MetricsKeyPrefix: spec.AgentID + "_",
	})

	sink := func(e types.Event) {
		e.AgentID = spec.AgentID
		b.progress.OnEvent(spec.AgentID, e)
	}

	result = conv.Run(ctx, b.llm, spec.Model, spec.InitialMessages, spec.Tools, sink, spec.Temperature, spec.MaxTokens)

	status := "not_found"
	if result.Success {
		status = "found"
	}
	b.progress.OnEvent(spec.AgentID, types.Event{
		Kind: types.EventAgentStatusFinal, Timestamp: time.Now(),
		Iteration: result.Iterations, Status: status, CostDeltaUSD: result.TotalCostUSD,
	})

	return result
}

func (b *Batch) aggregate(results map[string]types.AgentResult, elapsed time.Duration) Result {
	out := Result{Results: results, TotalAgents: len(results), TotalTimeSeconds: elapsed.Seconds()}
	if len(results) == 0 {
		return out
	}

	var totalIterations int
	for _, r := range results {
		if r.Success {
			out.Successful++
		} else {
			out.Failed++
		}
		out.TotalCostUSD += r.TotalCostUSD
		out.TotalPromptTokens += r.TotalPromptTokens
		out.TotalCompletionTokens += r.TotalCompletionTokens
		out.TotalReasoningTokens += r.TotalReasoningTokens
		totalIterations += r.Iterations
	}

	n := float64(len(results))
	out.AvgIterations = float64(totalIterations) / n
	out.AvgCostPerAgent = out.TotalCostUSD / n
	out.AvgTimePerAgent = out.TotalTimeSeconds / n
	return out
}
