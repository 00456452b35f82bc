// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package llm

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/teradata-labs/llmbatch/pkg/types"
)

type chatPayload struct {
	Model          string           `json:"model"`
	Messages       []wireMessage    `json:"messages"`
	Temperature    float64          `json:"temperature"`
	Stream         bool             `json:"stream"`
	MaxTokens      int              `json:"max_tokens,omitempty"`
	ResponseFormat map[string]any   `json:"response_format,omitempty"`
	Tools          []types.ToolSchema `json:"tools,omitempty"`
}

type wireMessage struct {
	Role       string             `json:"role"`
	Content    string             `json:"content,omitempty"`
	Parts      []types.ContentPart `json:"content_parts,omitempty"`
	ToolCallID string             `json:"tool_call_id,omitempty"`
}

func buildPayload(req *types.Request, model string, withTools bool) chatPayload {
	nonce := newNonce()
	messages := addNonceToMessages(req.Messages, nonce)

	p := chatPayload{
		Model:       model,
		Messages:    toWireMessages(messages),
		Temperature: req.Temperature,
		Stream:      true,
	}
	if req.MaxTokens > 0 {
		p.MaxTokens = req.MaxTokens
	}
	if req.ResponseFormat != nil {
		p.ResponseFormat = req.ResponseFormat
	}
	if withTools && len(req.Tools) > 0 {
		p.Tools = req.Tools
	}
	return p
}

func toWireMessages(msgs []types.Message) []wireMessage {
	out := make([]wireMessage, len(msgs))
	for i, m := range msgs {
		out[i] = wireMessage{
			Role:       m.Role,
			Content:    m.Content,
			Parts:      m.Parts,
			ToolCallID: m.ToolCallID,
		}
	}
	return out
}

func newNonce() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// addNonceToMessages appends a cache-busting comment to the last
// message's text, so retries aren't served a cached upstream response. It
// copies rather than mutates, and handles both the plain-string and
// multi-part content shapes.
func addNonceToMessages(messages []types.Message, nonce string) []types.Message {
	if len(messages) == 0 {
		return messages
	}
	out := make([]types.Message, len(messages))
	copy(out, messages)

	last := out[len(out)-1]
	suffix := "\n<!-- request_id: " + nonce + " -->"

	if len(last.Parts) > 0 {
		parts := make([]types.ContentPart, len(last.Parts))
		copy(parts, last.Parts)
		for i, p := range parts {
			if p.Type == "text" {
				parts[i].Text = p.Text + suffix
			}
		}
		last.Parts = parts
	} else {
		last.Content = last.Content + suffix
	}
	out[len(out)-1] = last
	return out
}
