// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package agent implements the iterative tool-calling loop (C4): call the
// model, execute any requested tools, feed results back, repeat until the
// task's own completion check passes or the iteration cap is hit.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/llmbatch/pkg/types"
)

// Config configures a Conversation.
type Config struct {
	MaxIterations int

	// LogDir, if set, receives one run-<timestamp>.json transcript per run.
	LogDir string

	Logger  *zap.Logger
	Metrics types.MetricsManager
	// MetricsKeyPrefix namespaces per-iteration metric keys when several
	// Conversations share one MetricsManager (see pkg/multiagent).
	MetricsKeyPrefix string
}

// Conversation drives one tool-calling loop against an LLMClient.
type Conversation struct {
	cfg Config

	iterationCount        int
	totalCostUSD           float64
	totalPromptTokens      int
	totalCompletionTokens  int
	totalReasoningTokens   int
	startTime              time.Time
	events                 types.EventSink
}

// New constructs a Conversation. Defaults MaxIterations to 25 and installs
// a no-op logger if none is given.
func New(cfg Config) *Conversation {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 25
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Conversation{cfg: cfg}
}

// Run executes the loop: call the model with the current messages and
// tool schemas, append its turn, execute any requested tools, and repeat
// until tools.IsComplete() is satisfied or the iteration cap is reached.
// The LLM call itself is never retried here — retry/backoff for transport
// failures belongs to the worker pool (C3) underneath llm; Run treats any
// error from llm as fatal to this run.
func (c *Conversation) Run(ctx context.Context, llm types.LLMClient, model string, initialMessages []types.Message, tools types.Tools, events types.EventSink, temperature float64, maxTokens int) types.AgentResult {
	c.startTime = time.Now()
	c.events = events
	messages := append([]types.Message(nil), initialMessages...)

	log := runLog{}
	log.Metadata.Model = model
	log.Metadata.Temperature = temperature
	log.Metadata.MaxTokens = maxTokens
	log.Metadata.MaxIterations = c.cfg.MaxIterations
	log.Metadata.StartTime = c.startTime
	log.InitialMessages = append([]types.Message(nil), initialMessages...)

	c.emit(events, types.EventAgentStart, 0, types.Event{})

	for iteration := 1; iteration <= c.cfg.MaxIterations; iteration++ {
		iterationStart := time.Now()
		var iterationToolTime time.Duration
		c.iterationCount = iteration

		il := iterationLog{
			Iteration:  iteration,
			LLMRequest: llmRequestLog{Model: model, Temperature: temperature, MaxTokens: maxTokens, Timestamp: iterationStart},
		}
		c.emit(events, types.EventIterationStart, iteration, types.Event{})

		req := &types.Request{
			ID:          fmt.Sprintf("iteration-%04d", iteration),
			Messages:    messages,
			Model:       model,
			Temperature: temperature,
			MaxTokens:   maxTokens,
			Tools:       tools.ListToolSchemas(),
			Images:      tools.CurrentImages(),
		}

		result, err := llm.CallWithTools(ctx, req)
		if err == nil && result != nil && !result.Success {
			err = fmt.Errorf("%s: %s", result.ErrorKind, result.ErrorMessage)
		}
		if err != nil {
			il.LLMResponse = &llmResponseLog{Error: err.Error(), Timestamp: time.Now()}
			log.Iterations = append(log.Iterations, il)
			return c.errorResult(log, messages, fmt.Sprintf("LLM call failed in iteration %d: %v", iteration, err))
		}

		c.totalCostUSD += result.CostUSD
		c.totalPromptTokens += result.Usage.PromptTokens
		c.totalCompletionTokens += result.Usage.CompletionTokens
		c.totalReasoningTokens += result.Usage.ReasoningTokens

		il.LLMResponse = &llmResponseLog{
			Content: result.Response, ToolCalls: result.ToolCalls,
			ReasoningDetails: result.ReasoningDetails, Usage: result.Usage,
			CostUSD: result.CostUSD, Timestamp: time.Now(),
		}

		assistantMsg := types.Message{Role: "assistant"}
		if result.Response != "" {
			assistantMsg.Content = result.Response
		}
		if len(result.ToolCalls) > 0 {
			assistantMsg.ToolCalls = result.ToolCalls
		}
		if len(result.ReasoningDetails) > 0 {
			assistantMsg.ReasoningDetails = result.ReasoningDetails
		}
		messages = append(messages, assistantMsg)

		if len(result.ToolCalls) == 0 {
			if tools.IsComplete() {
				log.Iterations = append(log.Iterations, il)
				return c.successResult(log, messages, iteration)
			}
			messages = append(messages, types.Message{
				Role:    "user",
				Content: "Please continue using the available tools to complete your task.",
			})
			log.Iterations = append(log.Iterations, il)
			continue
		}

		for _, tc := range result.ToolCalls {
			var args map[string]any
			_ = json.Unmarshal([]byte(tc.Arguments), &args)

			toolStart := time.Now()
			toolResult, terr := tools.Execute(ctx, tc.Name, args)
			if terr != nil {
				toolResult = fmt.Sprintf(`{"error":"tool execution failed: %s"}`, terr.Error())
			}
			toolElapsed := time.Since(toolStart)
			iterationToolTime += toolElapsed

			argsJSON, _ := json.Marshal(args)
			il.ToolExecutions = append(il.ToolExecutions, toolExecutionLog{
				ToolCallID: tc.ID, ToolName: tc.Name, Arguments: string(argsJSON),
				Result: toolResult, ExecutionTime: toolElapsed.Seconds(), Timestamp: time.Now(),
			})
			c.emit(events, types.EventToolCall, iteration, types.Event{ToolName: tc.Name, ToolExecTime: toolElapsed})

			messages = append(messages, types.Message{Role: "tool", ToolCallID: tc.ID, Content: toolResult})
		}

		log.Iterations = append(log.Iterations, il)

		if c.cfg.Metrics != nil {
			c.cfg.Metrics.Record(
				fmt.Sprintf("%siteration_%04d", c.cfg.MetricsKeyPrefix, iteration),
				result.CostUSD, time.Since(iterationStart).Seconds(),
				result.Usage.PromptTokens+result.Usage.CompletionTokens+result.Usage.ReasoningTokens,
				map[string]any{
					"iteration":         iteration,
					"prompt_tokens":     result.Usage.PromptTokens,
					"completion_tokens": result.Usage.CompletionTokens,
					"reasoning_tokens":  result.Usage.ReasoningTokens,
					"tool_calls":        len(result.ToolCalls),
				}, true)
		}

		c.emit(events, types.EventIterationDone, iteration, types.Event{
			CostDeltaUSD: result.CostUSD, PromptTokens: result.Usage.PromptTokens,
			CompletionTokens: result.Usage.CompletionTokens, ToolExecTime: iterationToolTime,
		})

		if tools.IsComplete() {
			return c.successResult(log, messages, iteration)
		}
	}

	return c.errorResult(log, messages, fmt.Sprintf("agent did not complete within %d iterations", c.cfg.MaxIterations))
}

func (c *Conversation) emit(events types.EventSink, kind types.EventKind, iteration int, e types.Event) {
	if events == nil {
		return
	}
	e.Kind = kind
	e.Timestamp = time.Now()
	e.Iteration = iteration
	events(e)
}

func (c *Conversation) successResult(log runLog, messages []types.Message, iteration int) types.AgentResult {
	elapsed := time.Since(c.startTime)

	c.emit(c.events, types.EventAgentComplete, iteration, types.Event{CostDeltaUSD: c.totalCostUSD})

	success := true
	log.Metadata.Success = &success
	log.Metadata.EndTime = time.Now()
	log.Metadata.TotalIterations = c.iterationCount
	log.Metadata.TotalCostUSD = c.totalCostUSD
	log.Metadata.ExecutionTime = elapsed.Seconds()

	path := saveRunLog(log, c.cfg.LogDir, c.startTime.Format("20060102_150405"), c.cfg.Logger)

	return types.AgentResult{
		Success: true, Iterations: c.iterationCount,
		TotalCostUSD: c.totalCostUSD, TotalPromptTokens: c.totalPromptTokens,
		TotalCompletionTokens: c.totalCompletionTokens, TotalReasoningTokens: c.totalReasoningTokens,
		ExecutionTime: elapsed, FinalMessages: messages, RunLogPath: path,
	}
}

func (c *Conversation) errorResult(log runLog, messages []types.Message, errMsg string) types.AgentResult {
	var elapsed time.Duration
	if !c.startTime.IsZero() {
		elapsed = time.Since(c.startTime)
	}
	success := false
	log.Metadata.Success = &success
	log.Metadata.EndTime = time.Now()
	log.Metadata.TotalIterations = c.iterationCount
	log.Metadata.TotalCostUSD = c.totalCostUSD
	log.Metadata.ExecutionTime = elapsed.Seconds()
	log.Metadata.ErrorMessage = errMsg

	path := saveRunLog(log, c.cfg.LogDir, c.startTime.Format("20060102_150405"), c.cfg.Logger)

	return types.AgentResult{
		Success: false, Iterations: c.iterationCount,
		TotalCostUSD: c.totalCostUSD, TotalPromptTokens: c.totalPromptTokens,
		TotalCompletionTokens: c.totalCompletionTokens, TotalReasoningTokens: c.totalReasoningTokens,
		ExecutionTime: elapsed, FinalMessages: messages, RunLogPath: path, ErrorMessage: errMsg,
	}
}
