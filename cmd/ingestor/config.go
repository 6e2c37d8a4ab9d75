package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RuntimeConfig is the optional YAML tuning file for the ingestor binary.
// Queue locations and the model id stay in the environment; this file covers
// the knobs an operator adjusts between deployments.
type RuntimeConfig struct {
	// RunBudget is the total execution budget for one invocation.
	RunBudget time.Duration
	// PrettyLogs switches zerolog to console output for local runs.
	PrettyLogs bool
	// Redis, when configured, fronts the prompt store with a shared cache.
	Redis RedisRuntimeConfig
}

// RedisRuntimeConfig mirrors prompts.RedisConfig.
type RedisRuntimeConfig struct {
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
}

// runtimeConfigFile is the raw YAML shape. Durations arrive as strings
// ("14m", "1h") and are parsed during validation.
type runtimeConfigFile struct {
	RunBudget  string `yaml:"run_budget"`
	PrettyLogs bool   `yaml:"pretty_logs"`
	Redis      struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		CacheTTL string `yaml:"cache_ttl"`
	} `yaml:"redis"`
}

// defaultRuntimeConfig is used when no config file is given.
func defaultRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		RunBudget: 14 * time.Minute,
	}
}

// LoadAndValidateRuntimeConfig reads a YAML configuration file from the given
// path, unmarshals it into RuntimeConfig, and performs basic validation.
func LoadAndValidateRuntimeConfig(configPath string) (*RuntimeConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	var raw runtimeConfigFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML from '%s': %w", configPath, err)
	}

	config := defaultRuntimeConfig()
	config.PrettyLogs = raw.PrettyLogs
	config.Redis.Addr = raw.Redis.Addr
	config.Redis.Password = raw.Redis.Password
	config.Redis.DB = raw.Redis.DB

	if raw.RunBudget != "" {
		budget, err := time.ParseDuration(raw.RunBudget)
		if err != nil {
			return nil, fmt.Errorf("validation error: run_budget %q is not a duration: %w", raw.RunBudget, err)
		}
		if budget <= 0 {
			return nil, fmt.Errorf("validation error: run_budget must be positive, got %s", budget)
		}
		config.RunBudget = budget
	}

	if raw.Redis.CacheTTL != "" {
		ttl, err := time.ParseDuration(raw.Redis.CacheTTL)
		if err != nil {
			return nil, fmt.Errorf("validation error: redis cache_ttl %q is not a duration: %w", raw.Redis.CacheTTL, err)
		}
		config.Redis.CacheTTL = ttl
	}
	if config.Redis.Addr != "" && config.Redis.CacheTTL <= 0 {
		config.Redis.CacheTTL = 1 * time.Hour
	}

	return config, nil
}
