// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	settings, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "inmemory", settings.Memory.Backend)
	assert.True(t, settings.Decay.Enabled)
	assert.Equal(t, 2.0, settings.Decay.ShortTermHours)
	assert.Equal(t, 168.0, settings.Decay.LongTermHours)
	assert.Equal(t, 30*time.Minute, settings.Decay.CheckInterval())
	assert.Equal(t, "memory", settings.Archive.Type)
	assert.Equal(t, 60*time.Second, settings.Engine.JoinTimeout())
	assert.Equal(t, "info", settings.Logging.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ORKA_MEMORY_BACKEND", "redis")
	t.Setenv("ORKA_MEMORY_URL", "redis://localhost:6379/0")
	t.Setenv("ORKA_DECAY_ENABLED", "false")
	t.Setenv("ORKA_LOGGING_LEVEL", "debug")

	settings, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "redis", settings.Memory.Backend)
	assert.Equal(t, "redis://localhost:6379/0", settings.Memory.URL)
	assert.False(t, settings.Decay.Enabled)
	assert.Equal(t, "debug", settings.Logging.Level)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orka.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
memory:
  backend: inmemory
decay:
  short_term_hours: 4
archive:
  type: sqlite
  path: /tmp/orka-audit.db
`), 0o600))

	settings, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4.0, settings.Decay.ShortTermHours)
	assert.Equal(t, "sqlite", settings.Archive.Type)
	// Unset keys keep defaults.
	assert.Equal(t, 168.0, settings.Decay.LongTermHours)
}

func TestLoad_RedisWithoutURLFails(t *testing.T) {
	t.Setenv("ORKA_MEMORY_BACKEND", "redis")
	t.Setenv("ORKA_MEMORY_URL", "")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ORKA_MEMORY_URL")
}

func TestValidate(t *testing.T) {
	base := func() *Settings {
		s, err := Load("")
		require.NoError(t, err)
		return s
	}

	s := base()
	s.Memory.Backend = "dynamo"
	assert.Error(t, s.Validate())

	s = base()
	s.Decay.ShortTermHours = 0
	assert.Error(t, s.Validate())

	s = base()
	s.Decay.ImportanceThreshold = 1.5
	assert.Error(t, s.Validate())

	s = base()
	s.Archive.Type = "sqlite"
	s.Archive.Path = ""
	assert.Error(t, s.Validate())

	s = base()
	s.Logging.Level = "loud"
	assert.Error(t, s.Validate())
}

func TestRetentionPolicyProjection(t *testing.T) {
	settings, err := Load("")
	require.NoError(t, err)
	settings.Decay.Enabled = false
	settings.Decay.ShortTermHours = 1
	settings.Decay.ImportanceThreshold = 0.75

	policy := settings.RetentionPolicy()
	assert.False(t, policy.Enabled)
	assert.Equal(t, 1.0, policy.ShortTermHours)
	assert.Equal(t, 0.75, policy.LongTermThreshold)
	// Importance rules carry over from the defaults.
	assert.Contains(t, policy.ImportanceRules, "critical")
}

func TestLogger(t *testing.T) {
	settings, err := Load("")
	require.NoError(t, err)
	logger, err := settings.Logger()
	require.NoError(t, err)
	logger.Sync()

	settings.Logging.Level = "nope"
	_, err = settings.Logger()
	assert.Error(t, err)
}
