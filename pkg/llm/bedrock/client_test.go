// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package bedrock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/teradata-labs/llmbatch/pkg/types"
)

func newTestClient() *Client {
	return &Client{modelID: DefaultModelID, toolNameMap: make(map[string]string)}
}

func TestConvertMessages_PlainTextTurns(t *testing.T) {
	c := newTestClient()
	msgs := []types.Message{
		{Role: "system", Content: "be terse"},
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi there"},
	}

	system, out := c.convertMessages(msgs)

	require.Len(t, system, 1)
	require.Len(t, out, 2)
	assert.Equal(t, bedrocktypes.ConversationRoleUser, out[0].Role)
	assert.Equal(t, bedrocktypes.ConversationRoleAssistant, out[1].Role)
}

func TestConvertMessages_ToolResultsFromSameTurnAggregateIntoOneMessage(t *testing.T) {
	c := newTestClient()
	msgs := []types.Message{
		{Role: "assistant", ToolCalls: []types.ToolCall{
			{ID: "call_1", Name: "lookup", Arguments: `{}`},
			{ID: "call_2", Name: "lookup", Arguments: `{}`},
		}},
		{Role: "tool", ToolCallID: "call_1", Content: `{"ok":true}`},
		{Role: "tool", ToolCallID: "call_2", Content: "plain text result"},
	}

	_, out := c.convertMessages(msgs)

	require.Len(t, out, 2)
	assert.Equal(t, bedrocktypes.ConversationRoleUser, out[1].Role)
	assert.Len(t, out[1].Content, 2)
}

func TestConvertMessages_AssistantToolCallSanitizesName(t *testing.T) {
	c := newTestClient()
	msgs := []types.Message{
		{Role: "assistant", ToolCalls: []types.ToolCall{
			{ID: "call_1", Name: "filesystem:read_file", Arguments: `{"path":"a"}`},
		}},
	}

	_, out := c.convertMessages(msgs)
	require.Len(t, out, 1)
	require.Len(t, out[0].Content, 1)

	block, ok := out[0].Content[0].(*bedrocktypes.ContentBlockMemberToolUse)
	require.True(t, ok)
	assert.NotEqual(t, "filesystem:read_file", *block.Value.Name)
	assert.Equal(t, "filesystem:read_file", c.toolNameMap[*block.Value.Name])
}

func TestSanitizeToolName_ReplacesDisallowedCharsAndTruncates(t *testing.T) {
	assert.Equal(t, "a_b", sanitizeToolName("a:b"))
	long := ""
	for i := 0; i < 100; i++ {
		long += "x"
	}
	assert.Len(t, sanitizeToolName(long), 64)
}

func TestConvertTools_BuildsToolSpecifications(t *testing.T) {
	c := newTestClient()
	schemas := []types.ToolSchema{
		{Name: "get_weather", Description: "fetch weather", Parameters: map[string]any{"city": map[string]any{"type": "string"}}},
	}

	cfg := c.convertTools(schemas)
	require.Len(t, cfg.Tools, 1)
	spec, ok := cfg.Tools[0].(*bedrocktypes.ToolMemberToolSpec)
	require.True(t, ok)
	assert.Equal(t, "get_weather", *spec.Value.Name)
}

func TestExtractContent_RecoversOriginalToolName(t *testing.T) {
	c := newTestClient()
	c.toolNameMap["filesystem_read_file"] = "filesystem:read_file"

	output := &bedrockruntime.ConverseOutput{
		Output: &bedrocktypes.ConverseOutputMemberMessage{
			Value: bedrocktypes.Message{
				Content: []bedrocktypes.ContentBlock{
					&bedrocktypes.ContentBlockMemberText{Value: "answer: "},
					&bedrocktypes.ContentBlockMemberToolUse{Value: bedrocktypes.ToolUseBlock{
						ToolUseId: aws.String("tu_1"),
						Name:      aws.String("filesystem_read_file"),
					}},
				},
			},
		},
	}

	text, toolCalls := c.extractContent(output)
	assert.Equal(t, "answer: ", text)
	require.Len(t, toolCalls, 1)
	assert.Equal(t, "tu_1", toolCalls[0].ID)
	assert.Equal(t, "filesystem:read_file", toolCalls[0].Name)
}

func TestClassifyErr_MapsBedrockExceptionNamesToErrorKinds(t *testing.T) {
	cases := map[string]types.ErrorKind{
		"ThrottlingException: rate exceeded":       types.ErrRateLimit,
		"ValidationException: bad input":           types.ErrUnprocessable,
		"InternalServerException: oops":            types.ErrServerError,
		"ModelTimeoutException: took too long":      types.ErrTimeout,
		"context deadline exceeded":                types.ErrTimeout,
		"something else entirely":                  types.ErrUnknown,
	}
	for msg, want := range cases {
		err := &fakeErr{msg: msg}
		assert.Equal(t, want, classifyErr(err), msg)
	}
}

type fakeErr struct{ msg string }

func (e *fakeErr) Error() string { return e.msg }
