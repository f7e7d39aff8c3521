// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var systemCmd = &cobra.Command{
	Use:   "system",
	Short: "Runtime health and history",
}

var systemStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print store health and run history as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.close()

		stats, err := rt.store.Stats(cmd.Context())
		if err != nil {
			return err
		}
		summary, err := rt.archive.Summarize(cmd.Context())
		if err != nil {
			return err
		}

		status := map[string]any{
			"memory": stats,
			"runs":   summary,
			"config": map[string]any{
				"memory_backend": rt.settings.Memory.Backend,
				"archive_type":   rt.settings.Archive.Type,
				"llm_provider":   rt.settings.LLM.Provider,
				"decay_enabled":  rt.settings.Decay.Enabled,
			},
		}
		encoded, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
		return nil
	},
}

func init() {
	systemCmd.AddCommand(systemStatusCmd)
	rootCmd.AddCommand(systemCmd)
}
