// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/teradata-labs/llmbatch/pkg/batch"
	"github.com/teradata-labs/llmbatch/pkg/config"
	"github.com/teradata-labs/llmbatch/pkg/costcalc"
	"github.com/teradata-labs/llmbatch/pkg/ratelimit"
	"github.com/teradata-labs/llmbatch/pkg/types"
)

var statsInputPath string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Run a batch and print per-request results instead of just the summary",
	Long: `Like "run", but prints one line per request (ID, success, cost, tokens,
error kind) before the final summary — useful for spotting which requests
in a batch failed without re-running the whole thing under --json.`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().StringVar(&statsInputPath, "input", "", "path to a JSON batch request file (required)")
	_ = statsCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	requests, err := loadBatchFile(statsInputPath)
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
	pool := batch.New(client, limiter, cfg.PoolConfig(logger, nil))

	start := time.Now()
	results := pool.ProcessBatch(ctx, requests, nil)

	out := cmd.OutOrStdout()
	for _, id := range sortedRequestIDs(results) {
		r := results[id]
		if r.Success {
			fmt.Fprintf(out, "%s  ok    cost=%.4f tokens=%d\n", id, r.CostUSD, r.Usage.TotalTokens)
		} else {
			fmt.Fprintf(out, "%s  FAIL  kind=%s %s\n", id, r.ErrorKind, r.ErrorMessage)
		}
	}

	stats := summarize(results, time.Since(start), cfg.RateLimit.RequestsPerMinute, limiter)
	fmt.Fprintln(out, "---")
	printStatsTable(cmd, stats)
	return nil
}
