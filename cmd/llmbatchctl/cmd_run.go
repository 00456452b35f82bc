// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/teradata-labs/llmbatch/pkg/batch"
	"github.com/teradata-labs/llmbatch/pkg/config"
	"github.com/teradata-labs/llmbatch/pkg/costcalc"
	"github.com/teradata-labs/llmbatch/pkg/ratelimit"
	"github.com/teradata-labs/llmbatch/pkg/types"
)

var (
	runInputPath string
	runJSONOut   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a batch of requests read from a JSON file",
	Long: `Reads a JSON array of requests (or {"requests": [...]}) from --input,
runs them through the rate limiter, LLM client, and worker pool, and
prints a final stats summary.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runInputPath, "input", "", "path to a JSON batch request file (required)")
	runCmd.Flags().BoolVar(&runJSONOut, "json", false, "print the stats summary as JSON instead of a table")
	_ = runCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(runCmd)
}

// batchFile is the on-disk shape accepted by --input: either a bare array
// of requests, or an object wrapping them under "requests".
type batchFile struct {
	Requests []*types.Request `json:"requests"`
}

func loadBatchFile(path string) ([]*types.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var asArray []*types.Request
	if err := json.Unmarshal(data, &asArray); err == nil {
		return asArray, nil
	}

	var wrapped batchFile
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("parse %s as a request array or {\"requests\": [...]}: %w", path, err)
	}
	return wrapped.Requests, nil
}

func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Logging.Level)); err == nil {
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}
	if cfg.Logging.Format == "console" {
		zapCfg.Encoding = "console"
		zapCfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	return zapCfg.Build()
}

func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetString("llm-provider"); v != "" {
		cfg.LLM.Provider = v
	}
	if v, _ := cmd.Flags().GetInt("max-workers"); v > 0 {
		cfg.Workers.MaxWorkers = v
	}
	if v, _ := cmd.Flags().GetInt("requests-per-minute"); v > 0 {
		cfg.RateLimit.RequestsPerMinute = v
	}
}

func runRun(cmd *cobra.Command, _ []string) error {
	requests, err := loadBatchFile(runInputPath)
	if err != nil {
		return err
	}
	for _, r := range requests {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyFlagOverrides(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	cost := costcalc.Default()
	client, err := cfg.NewLLMClient(ctx, cost, logger)
	if err != nil {
		return fmt.Errorf("build LLM client: %w", err)
	}

	limiter := ratelimit.New(cfg.RateLimiterConfig(logger))

	var events []types.Event
	pool := batch.New(client, limiter, cfg.PoolConfig(logger, func(e types.Event) {
		events = append(events, e)
	}))

	start := time.Now()
	results := pool.ProcessBatch(ctx, requests, nil)
	stats := summarize(results, time.Since(start), cfg.RateLimit.RequestsPerMinute, limiter)

	if runJSONOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}
	printStatsTable(cmd, stats)
	return nil
}

func summarize(results map[string]*types.Result, elapsed time.Duration, requestsPerMinute int, limiter *ratelimit.Limiter) types.BatchStats {
	var stats types.BatchStats
	for _, r := range results {
		if r.Success {
			stats.Completed++
		} else {
			stats.Failed++
		}
		stats.TotalCostUSD += r.CostUSD
		stats.TotalTokens += r.Usage.TotalTokens
	}
	if elapsed > 0 {
		stats.ThroughputPerSecond = float64(stats.Completed+stats.Failed) / elapsed.Seconds()
	}
	if requestsPerMinute > 0 {
		status := limiter.Status()
		stats.RateLimitUtilization = status.Utilization
	}
	return stats
}

func printStatsTable(cmd *cobra.Command, stats types.BatchStats) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Completed:             %d\n", stats.Completed)
	fmt.Fprintf(out, "Failed:                %d\n", stats.Failed)
	fmt.Fprintf(out, "Total cost (USD):      %.4f\n", stats.TotalCostUSD)
	fmt.Fprintf(out, "Total tokens:          %d\n", stats.TotalTokens)
	fmt.Fprintf(out, "Throughput (req/sec):  %.2f\n", stats.ThroughputPerSecond)
	fmt.Fprintf(out, "Rate limit utilization: %.1f%%\n", stats.RateLimitUtilization*100)
}

// sortedRequestIDs is used by cmd_stats.go to print results in a
// deterministic order.
func sortedRequestIDs(results map[string]*types.Result) []string {
	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
