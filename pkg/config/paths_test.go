// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataDir_EnvOverride(t *testing.T) {
	t.Setenv("ORKA_DATA_DIR", "/custom/orka")
	assert.Equal(t, "/custom/orka", DataDir())
}

func TestDataDir_TildeExpansion(t *testing.T) {
	t.Setenv("ORKA_DATA_DIR", "~/my-orka")
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "my-orka"), DataDir())
}

func TestDataDir_RelativeBecomesAbsolute(t *testing.T) {
	t.Setenv("ORKA_DATA_DIR", "relative/dir")
	assert.True(t, filepath.IsAbs(DataDir()))
}

func TestDataDir_Default(t *testing.T) {
	t.Setenv("ORKA_DATA_DIR", "")
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".orka"), DataDir())
}

func TestSubDir(t *testing.T) {
	t.Setenv("ORKA_DATA_DIR", "/custom/orka")
	assert.Equal(t, "/custom/orka/archive", SubDir("archive"))
}
