// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package anthropic adapts github.com/anthropics/anthropic-sdk-go as an
// alternate types.LLMClient, used by the agent loop's tool-calling turns
// where structured tool_use blocks are easier to drive through the SDK
// than through the raw SSE executor in pkg/llm.
package anthropic

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/teradata-labs/llmbatch/pkg/costcalc"
	"github.com/teradata-labs/llmbatch/pkg/types"
)

const (
	DefaultModel     = "claude-sonnet-4-20250514"
	DefaultMaxTokens = 4096
)

// Config configures a Client.
type Config struct {
	APIKey    string
	Model     string
	MaxTokens int

	Cost   types.CostCalculator
	Logger *zap.Logger
}

// Client implements types.LLMClient against Anthropic's Messages API.
type Client struct {
	sdk       anthropicsdk.Client
	model     string
	maxTokens int64
	cost      types.CostCalculator
	logger    *zap.Logger
}

// New constructs a Client.
func New(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Cost == nil {
		cfg.Cost = costcalc.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{
		sdk:       anthropicsdk.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:     cfg.Model,
		maxTokens: int64(cfg.MaxTokens),
		cost:      cfg.Cost,
		logger:    cfg.Logger,
	}
}

// Call executes req with no tools.
func (c *Client) Call(ctx context.Context, req *types.Request) (*types.Result, error) {
	return c.call(ctx, req, false)
}

// CallWithTools executes req, advertising req.Tools and surfacing any
// tool_use blocks on the result.
func (c *Client) CallWithTools(ctx context.Context, req *types.Request) (*types.Result, error) {
	return c.call(ctx, req, true)
}

func (c *Client) call(ctx context.Context, req *types.Request, withTools bool) (*types.Result, error) {
	start := time.Now()

	system, messages := convertMessages(req.Messages)
	if len(messages) == 0 {
		return &types.Result{
			RequestID: req.ID, Request: req, Success: false,
			ErrorKind: types.ErrUnprocessable, ErrorMessage: "no valid messages to send",
		}, nil
	}

	model := c.model
	if req.Model != "" {
		model = req.Model
	}
	maxTokens := c.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}

	params := anthropicsdk.MessageNewParams{
		Model:       anthropicsdk.Model(model),
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: anthropicsdk.Float(req.Temperature),
	}
	if system != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: system}}
	}
	if withTools && len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}

	message, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return &types.Result{
			RequestID: req.ID, Request: req, Success: false,
			ErrorKind: classifyErr(err), ErrorMessage: err.Error(),
		}, nil
	}

	content, toolCalls := extractContent(message)
	usage := types.Usage{
		PromptTokens:     int(message.Usage.InputTokens),
		CompletionTokens: int(message.Usage.OutputTokens),
		TotalTokens:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
	}

	return &types.Result{
		RequestID: req.ID, Request: req, Success: true,
		Response: content, Usage: usage,
		CostUSD:       c.cost.Cost(string(params.Model), usage.PromptTokens, usage.CompletionTokens, 0),
		ExecutionTime: time.Since(start), SelectedModel: string(params.Model),
		ToolCalls: toolCalls,
	}, nil
}

func convertMessages(msgs []types.Message) (string, []anthropicsdk.MessageParam) {
	var systemPrompts []string
	var out []anthropicsdk.MessageParam

	for _, m := range msgs {
		switch m.Role {
		case "system":
			if m.Content != "" {
				systemPrompts = append(systemPrompts, m.Content)
			}

		case "user":
			if len(m.Parts) > 0 {
				var blocks []anthropicsdk.ContentBlockParamUnion
				for _, p := range m.Parts {
					switch p.Type {
					case "text":
						if p.Text != "" {
							blocks = append(blocks, anthropicsdk.NewTextBlock(p.Text))
						}
					case "image":
						if p.ImageData != "" {
							blocks = append(blocks, anthropicsdk.NewImageBlockBase64(p.ImageMediaType, p.ImageData))
						}
					}
				}
				if len(blocks) > 0 {
					out = append(out, anthropicsdk.NewUserMessage(blocks...))
				}
			} else if m.Content != "" {
				out = append(out, anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(m.Content)))
			}

		case "assistant":
			var blocks []anthropicsdk.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropicsdk.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input any
				if tc.Arguments != "" {
					_ = json.Unmarshal([]byte(tc.Arguments), &input)
				}
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropicsdk.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropicsdk.NewAssistantMessage(blocks...))
			}

		case "tool":
			out = append(out, anthropicsdk.NewUserMessage(anthropicsdk.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		}
	}

	return strings.Join(systemPrompts, "\n\n"), out
}

func convertTools(schemas []types.ToolSchema) []anthropicsdk.ToolUnionParam {
	out := make([]anthropicsdk.ToolUnionParam, 0, len(schemas))
	for _, s := range schemas {
		tool := anthropicsdk.ToolParam{
			Name:        s.Name,
			Description: anthropicsdk.String(s.Description),
		}
		schemaJSON, _ := json.Marshal(map[string]any{
			"type":       "object",
			"properties": s.Parameters,
		})
		var inputSchema anthropicsdk.ToolInputSchemaParam
		_ = json.Unmarshal(schemaJSON, &inputSchema)
		tool.InputSchema = inputSchema
		out = append(out, anthropicsdk.ToolUnionParam{OfTool: &tool})
	}
	return out
}

func extractContent(message *anthropicsdk.Message) (string, []types.ToolCall) {
	var content strings.Builder
	var toolCalls []types.ToolCall

	for _, block := range message.Content {
		switch block.Type {
		case "text":
			content.WriteString(block.Text)
		case "tool_use":
			args, _ := json.Marshal(block.Input)
			toolCalls = append(toolCalls, types.ToolCall{ID: block.ID, Name: block.Name, Arguments: string(args)})
		}
	}
	return content.String(), toolCalls
}

func classifyErr(err error) types.ErrorKind {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429"):
		return types.ErrRateLimit
	case strings.Contains(msg, "413"):
		return types.ErrPayloadTooLarge
	case strings.Contains(msg, "422"):
		return types.ErrUnprocessable
	case strings.Contains(msg, "500"), strings.Contains(msg, "502"), strings.Contains(msg, "503"):
		return types.ErrServerError
	case strings.Contains(msg, "context deadline exceeded"):
		return types.ErrTimeout
	default:
		return types.ErrUnknown
	}
}
