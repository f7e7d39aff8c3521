// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper drives periodic decay sweeps against a Store. It runs on the
// policy's check interval and never overlaps its own runs.
type Sweeper struct {
	store  Store
	policy RetentionPolicy
	logger *zap.Logger
	cron   *cron.Cron
}

// NewSweeper creates a sweeper. Start must be called to schedule sweeps.
func NewSweeper(store Store, policy RetentionPolicy, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		store:  store,
		policy: policy,
		logger: logger,
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DiscardLogger),
		)),
	}
}

// Start schedules the sweep. A disabled policy is a no-op so callers can
// start unconditionally.
func (s *Sweeper) Start() error {
	if !s.policy.Enabled {
		s.logger.Info("memory decay disabled, sweeper idle")
		return nil
	}
	interval := s.policy.CheckInterval
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	spec := fmt.Sprintf("@every %s", interval)
	if _, err := s.cron.AddFunc(spec, s.sweep); err != nil {
		return fmt.Errorf("scheduling decay sweep: %w", err)
	}
	s.cron.Start()
	s.logger.Info("memory decay sweeper started", zap.Duration("interval", interval))
	return nil
}

func (s *Sweeper) sweep() {
	ctx := context.Background()
	if s.policy.MaxSweepDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.policy.MaxSweepDuration)
		defer cancel()
	}
	report, err := s.store.CleanupExpired(ctx, false)
	if err != nil {
		s.logger.Warn("decay sweep failed", zap.Error(err))
		return
	}
	if report.Deleted > 0 {
		s.logger.Info("decay sweep",
			zap.Int("scanned", report.Scanned),
			zap.Int("deleted", report.Deleted),
			zap.Duration("took", report.Took))
	}
}

// Stop halts scheduling and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
