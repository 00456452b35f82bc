// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/llmbatch/pkg/types"
)

// runLog is the JSON-serializable transcript of one Conversation run,
// written to disk for later debugging.
type runLog struct {
	Metadata struct {
		Model              string    `json:"model"`
		Temperature        float64   `json:"temperature"`
		MaxTokens          int       `json:"max_tokens,omitempty"`
		MaxIterations      int       `json:"max_iterations"`
		StartTime          time.Time `json:"start_time"`
		EndTime            time.Time `json:"end_time,omitzero"`
		Success            *bool     `json:"success,omitempty"`
		TotalIterations    int       `json:"total_iterations"`
		TotalCostUSD       float64   `json:"total_cost_usd"`
		ExecutionTime      float64   `json:"execution_time_seconds"`
		ErrorMessage       string    `json:"error_message,omitempty"`
	} `json:"metadata"`

	InitialMessages []types.Message `json:"initial_messages"`
	Iterations      []iterationLog  `json:"iterations"`
}

type llmRequestLog struct {
	Model       string    `json:"model"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

type llmResponseLog struct {
	Content          string                  `json:"content,omitempty"`
	ToolCalls        []types.ToolCall        `json:"tool_calls,omitempty"`
	ReasoningDetails []types.ReasoningDetail `json:"reasoning_details,omitempty"`
	Usage            types.Usage             `json:"usage"`
	CostUSD          float64                 `json:"cost_usd"`
	Timestamp        time.Time               `json:"timestamp"`
	Error            string                  `json:"error,omitempty"`
}

type toolExecutionLog struct {
	ToolCallID      string        `json:"tool_call_id"`
	ToolName        string        `json:"tool_name"`
	Arguments       string        `json:"arguments"`
	Result          string        `json:"result"`
	ExecutionTime   float64       `json:"execution_time_seconds"`
	Timestamp       time.Time     `json:"timestamp"`
}

type iterationLog struct {
	Iteration      int                `json:"iteration"`
	LLMRequest     llmRequestLog      `json:"llm_request"`
	LLMResponse    *llmResponseLog    `json:"llm_response,omitempty"`
	ToolExecutions []toolExecutionLog `json:"tool_executions,omitempty"`
}

// stripImages replaces inline image parts with a size marker so run logs
// stay small and never embed base64 payloads.
func stripImages(messages []types.Message) []types.Message {
	out := make([]types.Message, len(messages))
	for i, m := range messages {
		if len(m.Parts) == 0 {
			out[i] = m
			continue
		}
		parts := make([]types.ContentPart, len(m.Parts))
		for j, p := range m.Parts {
			if p.Type == "image" {
				parts[j] = types.ContentPart{
					Type:           "image",
					ImageMediaType: p.ImageMediaType,
					ImageData:      fmt.Sprintf("[IMAGE_DATA_REMOVED:%d_bytes]", len(p.ImageData)),
				}
			} else {
				parts[j] = p
			}
		}
		m.Parts = parts
		out[i] = m
	}
	return out
}

// summarizeReasoning replaces reasoning block text with a byte count, since
// extended-thinking transcripts can be large and are opaque to the engine.
func summarizeReasoning(details []types.ReasoningDetail) []types.ReasoningDetail {
	if len(details) == 0 {
		return details
	}
	out := make([]types.ReasoningDetail, len(details))
	for i, d := range details {
		out[i] = types.ReasoningDetail{Type: d.Type, Text: fmt.Sprintf("[%d_bytes]", len(d.Text))}
	}
	return out
}

func cleanRunLog(log runLog) runLog {
	log.InitialMessages = stripImages(log.InitialMessages)
	for i := range log.Iterations {
		resp := log.Iterations[i].LLMResponse
		if resp != nil && len(resp.ReasoningDetails) > 0 {
			resp.ReasoningDetails = summarizeReasoning(resp.ReasoningDetails)
		}
	}
	return log
}

// saveRunLog writes the cleaned log to logDir/run-<timestamp>.json. An empty
// logDir disables writing; a write failure is logged and swallowed: a run log is a debugging
// aid, never load-bearing for the result the caller receives.
func saveRunLog(log runLog, logDir string, runTimestamp string, logger *zap.Logger) string {
	if logDir == "" {
		return ""
	}

	if err := os.MkdirAll(logDir, 0o750); err != nil {
		logger.Error("failed to create run log directory", zap.String("log_dir", logDir), zap.Error(err))
		return ""
	}

	cleaned := cleanRunLog(log)
	path := filepath.Join(logDir, fmt.Sprintf("run-%s.json", runTimestamp))

	data, err := json.MarshalIndent(cleaned, "", "  ")
	if err != nil {
		logger.Error("failed to marshal run log", zap.String("path", path), zap.Error(err))
		return ""
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		logger.Error("failed to write run log file", zap.String("path", path), zap.Error(err))
		return ""
	}

	logger.Debug("saved run log", zap.String("path", path))
	return path
}
