// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package bedrock adapts AWS Bedrock's Converse API as an alternate
// types.LLMClient, for hosts that run Claude models through Bedrock
// instead of calling Anthropic directly.
package bedrock

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"go.uber.org/zap"

	"github.com/teradata-labs/llmbatch/pkg/costcalc"
	"github.com/teradata-labs/llmbatch/pkg/types"
)

// Default Bedrock configuration values.
const (
	DefaultModelID     = "us.anthropic.claude-sonnet-4-5-20250929-v1:0"
	DefaultRegion      = "us-west-2"
	DefaultMaxTokens   = 4096
	DefaultTemperature = 1.0
)

// Config configures a Client.
type Config struct {
	// AWS credentials. Leave all three blank to use the default chain
	// (IAM role, env vars, shared config); set Profile to use a named
	// profile from ~/.aws/config; set the key pair for static creds.
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Profile         string

	ModelID     string
	MaxTokens   int
	Temperature float64

	Cost   types.CostCalculator
	Logger *zap.Logger
}

// Client implements types.LLMClient against AWS Bedrock's Converse API.
type Client struct {
	sdk         *bedrockruntime.Client
	modelID     string
	maxTokens   int32
	temperature float32
	cost        types.CostCalculator
	logger      *zap.Logger

	// toolNameMap recovers the caller's original tool name from the
	// Bedrock-safe sanitized one: Converse requires tool names to match
	// ^[a-zA-Z0-9_-]{1,64}$, which MCP-style "namespace:tool" names violate.
	toolNameMap map[string]string
}

// New builds a Client, loading AWS credentials per cfg.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ModelID == "" {
		cfg.ModelID = DefaultModelID
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.Cost == nil {
		cfg.Cost = costcalc.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	var awsCfg aws.Config
	var err error
	switch {
	case cfg.AccessKeyID != "" && cfg.SecretAccessKey != "":
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken,
			)),
		)
	case cfg.Profile != "":
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithSharedConfigProfile(cfg.Profile),
		)
	default:
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	}
	if err != nil {
		return nil, err
	}

	return &Client{
		sdk:         bedrockruntime.NewFromConfig(awsCfg),
		modelID:     cfg.ModelID,
		maxTokens:   int32(cfg.MaxTokens),
		temperature: float32(cfg.Temperature),
		cost:        cfg.Cost,
		logger:      cfg.Logger,
		toolNameMap: make(map[string]string),
	}, nil
}

// Call executes req with no tools advertised.
func (c *Client) Call(ctx context.Context, req *types.Request) (*types.Result, error) {
	return c.call(ctx, req, false)
}

// CallWithTools executes req, advertising req.Tools and surfacing any
// toolUse blocks on the result.
func (c *Client) CallWithTools(ctx context.Context, req *types.Request) (*types.Result, error) {
	return c.call(ctx, req, true)
}

func (c *Client) call(ctx context.Context, req *types.Request, withTools bool) (*types.Result, error) {
	start := time.Now()

	systemBlocks, messages := c.convertMessages(req.Messages)
	if len(messages) == 0 {
		return &types.Result{
			RequestID: req.ID, Request: req, Success: false,
			ErrorKind: types.ErrUnprocessable, ErrorMessage: "no valid messages to send",
		}, nil
	}

	modelID := c.modelID
	if req.Model != "" {
		modelID = req.Model
	}
	maxTokens := c.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = int32(req.MaxTokens)
	}
	temperature := c.temperature
	if req.Temperature > 0 {
		temperature = float32(req.Temperature)
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(modelID),
		Messages: messages,
		InferenceConfig: &bedrocktypes.InferenceConfiguration{
			MaxTokens:   aws.Int32(maxTokens),
			Temperature: aws.Float32(temperature),
		},
	}
	if len(systemBlocks) > 0 {
		input.System = systemBlocks
	}
	if withTools && len(req.Tools) > 0 {
		input.ToolConfig = c.convertTools(req.Tools)
	}

	output, err := c.sdk.Converse(ctx, input)
	if err != nil {
		return &types.Result{
			RequestID: req.ID, Request: req, Success: false,
			ErrorKind: classifyErr(err), ErrorMessage: err.Error(),
		}, nil
	}

	content, toolCalls := c.extractContent(output)
	usage := types.Usage{}
	if output.Usage != nil {
		usage.PromptTokens = int(aws.ToInt32(output.Usage.InputTokens))
		usage.CompletionTokens = int(aws.ToInt32(output.Usage.OutputTokens))
		usage.TotalTokens = int(aws.ToInt32(output.Usage.TotalTokens))
	}

	return &types.Result{
		RequestID: req.ID, Request: req, Success: true,
		Response: content, Usage: usage,
		CostUSD:       c.cost.Cost(modelID, usage.PromptTokens, usage.CompletionTokens, 0),
		ExecutionTime: time.Since(start), SelectedModel: modelID,
		ToolCalls: toolCalls,
	}, nil
}

// convertMessages mirrors Converse's requirement that every tool result
// produced in one turn land in a single user message: consecutive "tool"
// role messages are buffered and flushed as one message with multiple
// toolResult blocks, rather than emitted one message each.
func (c *Client) convertMessages(msgs []types.Message) ([]bedrocktypes.SystemContentBlock, []bedrocktypes.Message) {
	var systemBlocks []bedrocktypes.SystemContentBlock
	var out []bedrocktypes.Message
	var pendingResults []bedrocktypes.ContentBlock

	flush := func() {
		if len(pendingResults) > 0 {
			out = append(out, bedrocktypes.Message{Role: bedrocktypes.ConversationRoleUser, Content: pendingResults})
			pendingResults = nil
		}
	}

	for _, m := range msgs {
		switch m.Role {
		case "system":
			if m.Content != "" {
				systemBlocks = append(systemBlocks, &bedrocktypes.SystemContentBlockMemberText{Value: m.Content})
			}

		case "user":
			flush()
			var blocks []bedrocktypes.ContentBlock
			if len(m.Parts) > 0 {
				for _, p := range m.Parts {
					switch p.Type {
					case "text":
						if p.Text != "" {
							blocks = append(blocks, &bedrocktypes.ContentBlockMemberText{Value: p.Text})
						}
					case "image":
						if p.ImageData != "" {
							blocks = append(blocks, &bedrocktypes.ContentBlockMemberImage{
								Value: bedrocktypes.ImageBlock{
									Format: bedrocktypes.ImageFormat(strings.TrimPrefix(p.ImageMediaType, "image/")),
									Source: &bedrocktypes.ImageSourceMemberBytes{Value: []byte(p.ImageData)},
								},
							})
						}
					}
				}
			} else if m.Content != "" {
				blocks = append(blocks, &bedrocktypes.ContentBlockMemberText{Value: m.Content})
			}
			if len(blocks) > 0 {
				out = append(out, bedrocktypes.Message{Role: bedrocktypes.ConversationRoleUser, Content: blocks})
			}

		case "assistant":
			flush()
			var blocks []bedrocktypes.ContentBlock
			if m.Content != "" {
				blocks = append(blocks, &bedrocktypes.ContentBlockMemberText{Value: m.Content})
			}
			for _, tc := range m.ToolCalls {
				var input any
				if tc.Arguments != "" {
					_ = json.Unmarshal([]byte(tc.Arguments), &input)
				}
				if input == nil {
					input = map[string]any{}
				}
				sanitized := sanitizeToolName(tc.Name)
				c.toolNameMap[sanitized] = tc.Name
				blocks = append(blocks, &bedrocktypes.ContentBlockMemberToolUse{
					Value: bedrocktypes.ToolUseBlock{
						ToolUseId: aws.String(tc.ID), Name: aws.String(sanitized),
						Input: document.NewLazyDocument(input),
					},
				})
			}
			if len(blocks) > 0 {
				out = append(out, bedrocktypes.Message{Role: bedrocktypes.ConversationRoleAssistant, Content: blocks})
			}

		case "tool":
			var resultContent bedrocktypes.ToolResultContentBlock
			var parsed any
			if err := json.Unmarshal([]byte(m.Content), &parsed); err == nil {
				resultContent = &bedrocktypes.ToolResultContentBlockMemberJson{Value: document.NewLazyDocument(parsed)}
			} else {
				resultContent = &bedrocktypes.ToolResultContentBlockMemberText{Value: m.Content}
			}
			pendingResults = append(pendingResults, &bedrocktypes.ContentBlockMemberToolResult{
				Value: bedrocktypes.ToolResultBlock{
					ToolUseId: aws.String(m.ToolCallID),
					Content:   []bedrocktypes.ToolResultContentBlock{resultContent},
				},
			})
		}
	}
	flush()

	return systemBlocks, out
}

func (c *Client) convertTools(schemas []types.ToolSchema) *bedrocktypes.ToolConfiguration {
	c.toolNameMap = make(map[string]string, len(schemas))
	tools := make([]bedrocktypes.Tool, 0, len(schemas))
	for _, s := range schemas {
		sanitized := sanitizeToolName(s.Name)
		c.toolNameMap[sanitized] = s.Name

		schemaMap := map[string]any{"type": "object", "properties": s.Parameters}
		tools = append(tools, &bedrocktypes.ToolMemberToolSpec{
			Value: bedrocktypes.ToolSpecification{
				Name:        aws.String(sanitized),
				Description: aws.String(s.Description),
				InputSchema: &bedrocktypes.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schemaMap)},
			},
		})
	}
	return &bedrocktypes.ToolConfiguration{Tools: tools}
}

func (c *Client) extractContent(output *bedrockruntime.ConverseOutput) (string, []types.ToolCall) {
	var content strings.Builder
	var toolCalls []types.ToolCall

	msg, ok := output.Output.(*bedrocktypes.ConverseOutputMemberMessage)
	if !ok {
		return "", nil
	}

	for _, block := range msg.Value.Content {
		switch b := block.(type) {
		case *bedrocktypes.ContentBlockMemberText:
			content.WriteString(b.Value)

		case *bedrocktypes.ContentBlockMemberToolUse:
			name := aws.ToString(b.Value.Name)
			if original, found := c.toolNameMap[name]; found {
				name = original
			}
			var input map[string]any
			if b.Value.Input != nil {
				if inputBytes, err := json.Marshal(b.Value.Input); err == nil {
					_ = json.Unmarshal(inputBytes, &input)
				}
			}
			args, _ := json.Marshal(input)
			toolCalls = append(toolCalls, types.ToolCall{ID: aws.ToString(b.Value.ToolUseId), Name: name, Arguments: string(args)})
		}
	}
	return content.String(), toolCalls
}

// sanitizeToolName maps a possibly "namespace:tool"-shaped name to the
// character set Converse requires (^[a-zA-Z0-9_-]{1,64}$).
func sanitizeToolName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := b.String()
	if len(out) > 64 {
		out = out[:64]
	}
	return out
}

func classifyErr(err error) types.ErrorKind {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "ThrottlingException"), strings.Contains(msg, "TooManyRequestsException"):
		return types.ErrRateLimit
	case strings.Contains(msg, "ModelErrorException"), strings.Contains(msg, "InternalServerException"), strings.Contains(msg, "ServiceUnavailableException"):
		return types.ErrServerError
	case strings.Contains(msg, "ValidationException"):
		return types.ErrUnprocessable
	case strings.Contains(msg, "ModelTimeoutException"), strings.Contains(msg, "context deadline exceeded"):
		return types.ErrTimeout
	default:
		return types.ErrUnknown
	}
}
