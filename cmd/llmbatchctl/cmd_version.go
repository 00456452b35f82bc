// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teradata-labs/llmbatch/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the llmbatchctl version",
	RunE: func(cmd *cobra.Command, _ []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), version.Get())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
