// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package config

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/llmbatch/pkg/agent"
	"github.com/teradata-labs/llmbatch/pkg/batch"
	"github.com/teradata-labs/llmbatch/pkg/llm/anthropic"
	"github.com/teradata-labs/llmbatch/pkg/llm/bedrock"
	"github.com/teradata-labs/llmbatch/pkg/multiagent"
	"github.com/teradata-labs/llmbatch/pkg/ratelimit"
	"github.com/teradata-labs/llmbatch/pkg/types"
)

// RateLimiterConfig projects the loaded configuration onto
// pkg/ratelimit.Config.
func (c *Config) RateLimiterConfig(logger *zap.Logger) ratelimit.Config {
	return ratelimit.Config{
		RequestsPerMinute: c.RateLimit.RequestsPerMinute,
		Logger:            logger,
	}
}

// PoolConfig projects the loaded configuration onto pkg/batch.Config.
func (c *Config) PoolConfig(logger *zap.Logger, events types.EventSink) batch.Config {
	return batch.Config{
		MaxWorkers:          c.Workers.MaxWorkers,
		MaxRetries:          c.Workers.MaxRetries,
		JSONParseMaxRetries: c.Workers.JSONParseMaxRetries,
		RetryJitterMin:      time.Duration(c.Workers.RetryJitterMinMs) * time.Millisecond,
		RetryJitterMax:      time.Duration(c.Workers.RetryJitterMaxMs) * time.Millisecond,
		WatchdogInterval:    time.Duration(c.Workers.WatchdogIntervalSeconds) * time.Second,
		WatchdogLogInterval: time.Duration(c.Workers.WatchdogLogIntervalSeconds) * time.Second,
		Logger:              logger,
		Events:              events,
	}
}

// AgentConversationConfig projects the loaded configuration onto
// pkg/agent.Config.
func (c *Config) AgentConversationConfig(logger *zap.Logger, metrics types.MetricsManager) agent.Config {
	return agent.Config{
		MaxIterations: c.Agent.MaxIterations,
		LogDir:        c.Agent.LogDir,
		Logger:        logger,
		Metrics:       metrics,
	}
}

// MultiAgentConfig projects the loaded configuration onto
// pkg/multiagent.Config.
func (c *Config) MultiAgentConfig(logger *zap.Logger, metrics types.MetricsManager) multiagent.Config {
	return multiagent.Config{
		MaxWorkers:                   c.Workers.MaxWorkers,
		Logger:                       logger,
		Metrics:                      metrics,
		LogDir:                       c.Agent.LogDir,
		MaxVisibleAgents:             c.Agent.MaxVisibleAgents,
		CompletedAgentDisplaySeconds: c.Agent.CompletedAgentDisplaySeconds,
	}
}

// NewLLMClient constructs the types.LLMClient selected by LLM.Provider,
// wiring the matching provider-specific fields. cost and logger are
// supplied by the caller so the same CostCalculator/Logger instances are
// shared across every engine component.
func (c *Config) NewLLMClient(ctx context.Context, cost types.CostCalculator, logger *zap.Logger) (types.LLMClient, error) {
	switch c.LLM.Provider {
	case "anthropic":
		return anthropic.New(anthropic.Config{
			APIKey:    c.LLM.AnthropicAPIKey,
			Model:     c.LLM.AnthropicModel,
			MaxTokens: c.LLM.AnthropicMaxTokens,
			Cost:      cost,
			Logger:    logger,
		}), nil

	case "bedrock":
		return bedrock.New(ctx, bedrock.Config{
			Region:          c.LLM.BedrockRegion,
			AccessKeyID:     c.LLM.BedrockAccessKeyID,
			SecretAccessKey: c.LLM.BedrockSecretAccessKey,
			SessionToken:    c.LLM.BedrockSessionToken,
			Profile:         c.LLM.BedrockProfile,
			ModelID:         c.LLM.BedrockModelID,
			MaxTokens:       c.LLM.BedrockMaxTokens,
			Temperature:     c.LLM.BedrockTemperature,
			Cost:            cost,
			Logger:          logger,
		})

	default:
		return nil, fmt.Errorf("unsupported llm.provider: %q", c.LLM.Provider)
	}
}
