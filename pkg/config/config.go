// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package config loads engine tuning knobs (rate limits, worker counts,
// retry policy, agent iteration caps, provider credentials) from a layered
// source: defaults, an optional YAML file, then environment variables,
// via github.com/spf13/viper. Unlike the teacher's CLI config loader, this
// package never touches viper's package-level global state — each Load
// call owns its own *viper.Viper instance, so an engine embedded as a
// library never fights another component's config over shared globals.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides, e.g.
// LLMBATCH_RATE_LIMIT_REQUESTS_PER_MINUTE.
const EnvPrefix = "LLMBATCH"

// Config holds every tunable the engine's constructors need.
type Config struct {
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Workers   WorkersConfig   `mapstructure:"workers"`
	Agent     AgentConfig     `mapstructure:"agent"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// RateLimitConfig configures pkg/ratelimit.Limiter.
type RateLimitConfig struct {
	// RequestsPerMinute is the token bucket's capacity and refill rate.
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
}

// WorkersConfig configures pkg/batch.Pool.
type WorkersConfig struct {
	MaxWorkers int `mapstructure:"max_workers"`

	// MaxRetries is additional attempts after the first for most error
	// kinds; JSONParseMaxRetries overrides it for json_parse specifically
	// (zero means "use MaxRetries"), per the REDESIGN FLAG that gives
	// structured-output mismatches their own retry budget.
	MaxRetries          int `mapstructure:"max_retries"`
	JSONParseMaxRetries int `mapstructure:"json_parse_max_retries"`

	RetryJitterMinMs int `mapstructure:"retry_jitter_min_ms"`
	RetryJitterMaxMs int `mapstructure:"retry_jitter_max_ms"`

	WatchdogIntervalSeconds    int `mapstructure:"watchdog_interval_seconds"`
	WatchdogLogIntervalSeconds int `mapstructure:"watchdog_log_interval_seconds"`
}

// AgentConfig configures pkg/agent.Conversation and, for the multi-agent
// batch controller's progress display, pkg/multiagent.Batch.
type AgentConfig struct {
	MaxIterations int    `mapstructure:"max_iterations"`
	LogDir        string `mapstructure:"log_dir"`

	// MaxVisibleAgents and CompletedAgentDisplaySeconds bound a
	// multiagent.Batch's progress tracker: at most MaxVisibleAgents
	// agents are shown at once, and a completed agent remains visible
	// for CompletedAgentDisplaySeconds before being replaced by a
	// still-running one.
	MaxVisibleAgents             int     `mapstructure:"max_visible_agents"`
	CompletedAgentDisplaySeconds float64 `mapstructure:"completed_agent_display_seconds"`
}

// LLMConfig configures pkg/llm.Executor and the provider adapters.
// Exactly one of Provider's two supported values selects which
// provider-specific fields apply.
type LLMConfig struct {
	Provider       string `mapstructure:"provider"` // anthropic, bedrock
	Workers        int    `mapstructure:"workers"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`

	// Anthropic-specific. AnthropicAPIKey comes from the config file or
	// the LLMBATCH_LLM_ANTHROPIC_API_KEY environment variable.
	AnthropicAPIKey    string `mapstructure:"anthropic_api_key"`
	AnthropicModel     string `mapstructure:"anthropic_model"`
	AnthropicMaxTokens int    `mapstructure:"anthropic_max_tokens"`

	// Bedrock-specific.
	BedrockRegion          string  `mapstructure:"bedrock_region"`
	BedrockAccessKeyID     string  `mapstructure:"bedrock_access_key_id"`
	BedrockSecretAccessKey string  `mapstructure:"bedrock_secret_access_key"`
	BedrockSessionToken    string  `mapstructure:"bedrock_session_token"`
	BedrockProfile         string  `mapstructure:"bedrock_profile"`
	BedrockModelID         string  `mapstructure:"bedrock_model_id"`
	BedrockMaxTokens       int     `mapstructure:"bedrock_max_tokens"`
	BedrockTemperature     float64 `mapstructure:"bedrock_temperature"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console, json
}

// Load reads configuration from, in priority order: an explicit file (if
// cfgFile is non-empty) or the standard search path, then environment
// variables prefixed with LLMBATCH_, over defaults. A missing config file
// is not an error; missing env vars and file entries fall back to
// defaults.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("llmbatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/llmbatch/")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config file %s: %w", v.ConfigFileUsed(), err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("rate_limit.requests_per_minute", 150)

	v.SetDefault("workers.max_workers", 5)
	v.SetDefault("workers.max_retries", 5)
	v.SetDefault("workers.json_parse_max_retries", 0)
	v.SetDefault("workers.retry_jitter_min_ms", 1000)
	v.SetDefault("workers.retry_jitter_max_ms", 3000)
	v.SetDefault("workers.watchdog_interval_seconds", 30)
	v.SetDefault("workers.watchdog_log_interval_seconds", 60)

	v.SetDefault("agent.max_iterations", 25)
	v.SetDefault("agent.max_visible_agents", 10)
	v.SetDefault("agent.completed_agent_display_seconds", 3.0)

	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.workers", 5)
	v.SetDefault("llm.timeout_seconds", 60)
	v.SetDefault("llm.anthropic_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("llm.anthropic_max_tokens", 4096)
	v.SetDefault("llm.bedrock_region", "us-west-2")
	v.SetDefault("llm.bedrock_model_id", "us.anthropic.claude-sonnet-4-5-20250929-v1:0")
	v.SetDefault("llm.bedrock_max_tokens", 4096)
	v.SetDefault("llm.bedrock_temperature", 1.0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	// Empty defaults register keys that have no real default, so that
	// AutomaticEnv can still supply them through Unmarshal.
	v.SetDefault("agent.log_dir", "")
	v.SetDefault("llm.anthropic_api_key", "")
	v.SetDefault("llm.bedrock_access_key_id", "")
	v.SetDefault("llm.bedrock_secret_access_key", "")
	v.SetDefault("llm.bedrock_session_token", "")
	v.SetDefault("llm.bedrock_profile", "")
}

// Validate checks that the configuration is internally consistent and
// that the selected provider has what it needs to construct a client.
func (c *Config) Validate() error {
	if c.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("rate_limit.requests_per_minute must be positive, got %d", c.RateLimit.RequestsPerMinute)
	}
	if c.Workers.MaxWorkers <= 0 {
		return fmt.Errorf("workers.max_workers must be positive, got %d", c.Workers.MaxWorkers)
	}

	switch c.LLM.Provider {
	case "anthropic":
		if c.LLM.AnthropicAPIKey == "" {
			return fmt.Errorf("llm.anthropic_api_key is required (set via LLMBATCH_LLM_ANTHROPIC_API_KEY or config file) when llm.provider is anthropic")
		}
	case "bedrock":
		if c.LLM.BedrockRegion == "" {
			return fmt.Errorf("llm.bedrock_region is required when llm.provider is bedrock")
		}
		// Explicit credentials are optional: the caller may rely on a
		// named profile or the default AWS credential chain instead.
	default:
		return fmt.Errorf("unsupported llm.provider: %q (must be anthropic or bedrock)", c.LLM.Provider)
	}

	return nil
}
