// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect and maintain the memory store",
}

var memoryStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print store population and health as JSON",
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
		encoded, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
		return nil
	},
}

var watchInterval time.Duration

var memoryWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll store stats until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := newRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.close()

		ticker := time.NewTicker(watchInterval)
		defer ticker.Stop()
		for {
			stats, err := rt.store.Stats(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"%s entries=%d degraded=%t pending=%d vector=%t\n",
				time.Now().Format(time.TimeOnly), stats.TotalEntries,
				stats.Degraded, stats.PendingWrites, stats.VectorCapable)

			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	},
}

var cleanupDryRun bool

var memoryCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove expired entries (or count them with --dry-run)",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.close()

		report, err := rt.store.CleanupExpired(cmd.Context(), cleanupDryRun)
		if err != nil {
			return err
		}
		encoded, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
		return nil
	},
}

var memoryConfigureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Print the effective memory configuration as YAML",
	Long: `Prints the effective memory and decay configuration, resolved from the
config file, ORKA_* environment variables, and defaults. Redirect the
output to orka.yaml to persist it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.close()

		effective := map[string]any{
			"memory": map[string]any{
				"backend":    rt.settings.Memory.Backend,
				"url":        rt.settings.Memory.URL,
				"index_name": rt.settings.Memory.IndexName,
			},
			"decay": map[string]any{
				"enabled":                rt.settings.Decay.Enabled,
				"short_term_hours":       rt.settings.Decay.ShortTermHours,
				"long_term_hours":        rt.settings.Decay.LongTermHours,
				"check_interval_minutes": rt.settings.Decay.CheckIntervalMinutes,
				"importance_threshold":   rt.settings.Decay.ImportanceThreshold,
			},
			"embedding": map[string]any{
				"endpoint":   rt.settings.Embedding.Endpoint,
				"dimension":  rt.settings.Embedding.Dimension,
				"cache_size": rt.settings.Embedding.CacheSize,
			},
		}
		encoded, err := yaml.Marshal(effective)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), string(encoded))
		return nil
	},
}

func init() {
	memoryWatchCmd.Flags().DurationVar(&watchInterval, "interval", 5*time.Second, "polling interval")
	memoryCleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "count expired entries without deleting")

	memoryCmd.AddCommand(memoryStatsCmd, memoryWatchCmd, memoryCleanupCmd, memoryConfigureCmd)
	rootCmd.AddCommand(memoryCmd)
}
