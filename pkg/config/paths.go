// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package config

import (
	"os"
	"path/filepath"
	"strings"
)

// DataDir returns the OrKa data directory: ORKA_DATA_DIR when set,
// otherwise ~/.orka. The result is always absolute; ~ and relative
// paths in the environment value are expanded. Reads the environment
// directly because it runs before the config file is located.
func DataDir() string {
	if dir := os.Getenv("ORKA_DATA_DIR"); dir != "" {
		return expandPath(dir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".orka"
	}
	return filepath.Join(home, ".orka")
}

// SubDir returns a subdirectory of the data directory, e.g.
// SubDir("archive") -> ~/.orka/archive.
func SubDir(name string) string {
	return filepath.Join(DataDir(), name)
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
