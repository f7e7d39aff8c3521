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

	"github.com/orka-ai/orka/pkg/run"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run <workflow.yaml> <input>",
	Short: "Execute a workflow and print the run report as JSON",
	Long: `Executes the workflow against the given input and writes the structured
run report to stdout. Exit codes: 0 success, 1 run failed, 2 invalid
workflow.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := newRuntime(ctx)
		if err != nil {
			return err
		}

		report, runErr := rt.coordinator.RunFile(ctx, args[0], args[1])
		if report != nil {
			encoded, encErr := json.MarshalIndent(report, "", "  ")
			if encErr != nil {
				rt.logger.Error("report encoding failed", zap.Error(encErr))
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
			}
		} else if runErr != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), runErr)
		}

		code := run.ExitCode(report, runErr)
		rt.close()
		if code != run.ExitSuccess {
			os.Exit(code)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
