// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Command llmbatchctl is the thin, host-side exerciser of the batch
// execution engine: it reads a JSON batch-request file, wires pkg/config
// into pkg/ratelimit, pkg/llm (via a provider adapter), and pkg/batch, and
// prints a final stats summary. It stands in for the full external
// pipeline (payload construction, result persistence, UI rendering),
// which stays out of scope per the engine's port-based design.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teradata-labs/llmbatch/internal/version"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:     "llmbatchctl",
	Short:   "Drive the LLM batch execution engine against a JSON request file",
	Long:    `llmbatchctl wires the rate limiter, streaming executor, and worker pool together and runs a batch of requests read from a JSON file, printing a final stats summary.`,
	Version: version.Get(),
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: llmbatch.yaml in . or /etc/llmbatch/)")

	rootCmd.PersistentFlags().String("llm-provider", "", "LLM provider (anthropic, bedrock) — overrides config/env")
	rootCmd.PersistentFlags().Int("max-workers", 0, "worker pool size — overrides config/env")
	rootCmd.PersistentFlags().Int("requests-per-minute", 0, "rate limiter capacity — overrides config/env")
}
