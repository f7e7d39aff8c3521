// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package config loads runtime settings with the priority: flags >
// config file > ORKA_* environment variables > defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/orka-ai/orka/pkg/memory"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultConfigName is the config file searched in the working directory
// and /etc/orka (orka.yaml).
const DefaultConfigName = "orka"

// Settings is the full runtime configuration.
type Settings struct {
	Memory    MemorySettings    `mapstructure:"memory"`
	Decay     DecaySettings     `mapstructure:"decay"`
	Embedding EmbeddingSettings `mapstructure:"embedding"`
	Archive   ArchiveSettings   `mapstructure:"archive"`
	Engine    EngineSettings    `mapstructure:"engine"`
	LLM       LLMSettings       `mapstructure:"llm"`
	Logging   LoggingSettings   `mapstructure:"logging"`
}

// MemorySettings selects and configures the memory store backend.
type MemorySettings struct {
	// Backend is "inmemory" or "redis".
	Backend string `mapstructure:"backend"`

	// URL is the Redis connection URL, required for the redis backend.
	URL string `mapstructure:"url"`

	// IndexName overrides the Redis vector index name.
	IndexName string `mapstructure:"index_name"`
}

// DecaySettings tunes the retention policy.
type DecaySettings struct {
	Enabled              bool    `mapstructure:"enabled"`
	ShortTermHours       float64 `mapstructure:"short_term_hours"`
	LongTermHours        float64 `mapstructure:"long_term_hours"`
	CheckIntervalMinutes int     `mapstructure:"check_interval_minutes"`
	ImportanceThreshold  float64 `mapstructure:"importance_threshold"`
}

// EmbeddingSettings configures vector embedding.
type EmbeddingSettings struct {
	// Endpoint is an HTTP embedding service; empty uses the local
	// deterministic embedder.
	Endpoint  string `mapstructure:"endpoint"`
	Dimension int    `mapstructure:"dimension"`
	CacheSize int    `mapstructure:"cache_size"`
}

// ArchiveSettings configures the audit archive.
type ArchiveSettings struct {
	// Type is "memory" or "sqlite".
	Type    string `mapstructure:"type"`
	Path    string `mapstructure:"path"`
	MaxRuns int    `mapstructure:"max_runs"`
}

// EngineSettings tunes execution.
type EngineSettings struct {
	JoinTimeoutSeconds int `mapstructure:"join_timeout_seconds"`
}

// LLMSettings configures the language-model provider.
type LLMSettings struct {
	// Provider is "mock" or "http"; concrete vendor clients plug in via
	// the agent.LLMProvider interface.
	Provider string `mapstructure:"provider"`
	Endpoint string `mapstructure:"endpoint"`
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
}

// LoggingSettings configures the zap logger.
type LoggingSettings struct {
	// Level is debug, info, warn, or error.
	Level string `mapstructure:"level"`

	// Format is "json" or "console".
	Format string `mapstructure:"format"`
}

// JoinTimeout returns the configured join barrier wait.
func (e EngineSettings) JoinTimeout() time.Duration {
	return time.Duration(e.JoinTimeoutSeconds) * time.Second
}

// CheckInterval returns the decay sweep cadence.
func (d DecaySettings) CheckInterval() time.Duration {
	return time.Duration(d.CheckIntervalMinutes) * time.Minute
}

// Load reads settings from the optional config file, the environment,
// and the defaults, then validates them.
func Load(cfgFile string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(DataDir())
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/orka/")
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			return nil, fmt.Errorf("reading config file %s: %w", cfgFile, err)
		}
	}

	v.SetEnvPrefix("ORKA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("memory.backend", "inmemory")
	v.SetDefault("memory.url", "")
	v.SetDefault("memory.index_name", "")

	v.SetDefault("decay.enabled", true)
	v.SetDefault("decay.short_term_hours", 2.0)
	v.SetDefault("decay.long_term_hours", 168.0)
	v.SetDefault("decay.check_interval_minutes", 30)
	v.SetDefault("decay.importance_threshold", 0.6)

	v.SetDefault("embedding.endpoint", "")
	v.SetDefault("embedding.dimension", 256)
	v.SetDefault("embedding.cache_size", 4096)

	v.SetDefault("archive.type", "memory")
	v.SetDefault("archive.path", "")
	v.SetDefault("archive.max_runs", 1000)

	v.SetDefault("engine.join_timeout_seconds", 60)

	v.SetDefault("llm.provider", "mock")
	v.SetDefault("llm.endpoint", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.api_key", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Validate reports the first configuration problem found.
func (s *Settings) Validate() error {
	switch s.Memory.Backend {
	case "inmemory":
	case "redis":
		if s.Memory.URL == "" {
			return fmt.Errorf("memory backend %q requires memory.url (ORKA_MEMORY_URL)", s.Memory.Backend)
		}
	default:
		return fmt.Errorf("unknown memory backend %q (supported: inmemory, redis)", s.Memory.Backend)
	}

	if s.Decay.ShortTermHours <= 0 || s.Decay.LongTermHours <= 0 {
		return fmt.Errorf("decay TTL hours must be positive")
	}
	if s.Decay.ImportanceThreshold < 0 || s.Decay.ImportanceThreshold > 1 {
		return fmt.Errorf("decay.importance_threshold must be in [0,1]")
	}
	if s.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be positive")
	}

	switch s.Archive.Type {
	case "memory":
	case "sqlite":
		if s.Archive.Path == "" {
			return fmt.Errorf("archive type %q requires archive.path", s.Archive.Type)
		}
	default:
		return fmt.Errorf("unknown archive type %q (supported: memory, sqlite)", s.Archive.Type)
	}

	switch s.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown logging level %q", s.Logging.Level)
	}
	switch s.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown logging format %q", s.Logging.Format)
	}
	return nil
}

// RetentionPolicy projects the decay settings onto the store policy,
// keeping the default importance rules and boost parameters.
func (s *Settings) RetentionPolicy() memory.RetentionPolicy {
	policy := memory.DefaultRetentionPolicy()
	policy.Enabled = s.Decay.Enabled
	policy.ShortTermHours = s.Decay.ShortTermHours
	policy.LongTermHours = s.Decay.LongTermHours
	policy.CheckInterval = s.Decay.CheckInterval()
	policy.LongTermThreshold = s.Decay.ImportanceThreshold
	return policy
}

// Logger builds a zap logger per the logging settings.
func (s *Settings) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(s.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing logging level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = s.Logging.Format
	if s.Logging.Format == "console" {
		cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}
