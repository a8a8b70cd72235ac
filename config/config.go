// Package config loads agent settings.
//
// Sources are applied in order, later ones winning:
//  1. built-in defaults
//  2. an optional YAML file
//  3. an optional .env file (never overriding variables already set)
//  4. the process environment
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/martinemde/repairagent/unifiedllm"
)

// DefaultEnvFile is read when present and no env file is named.
const DefaultEnvFile = ".env"

// Config is the resolved agent configuration.
type Config struct {
	// APIKey is only ever taken from the environment.
	APIKey string `yaml:"-" env:"GEMINI_API_KEY"`

	TaskID      string  `yaml:"task_id" env:"TASK_ID"`
	Provider    string  `yaml:"provider" env:"AGENT_PROVIDER"`
	Model       string  `yaml:"model" env:"AGENT_MODEL"`
	MaxTokens   int     `yaml:"max_tokens" env:"AGENT_MAX_TOKENS"`
	Temperature float64 `yaml:"temperature" env:"AGENT_TEMPERATURE"`

	LogFile     string `yaml:"log_file" env:"AGENT_LOG_FILE"`
	SandboxRoot string `yaml:"sandbox_root" env:"AGENT_SANDBOX_ROOT"`
	TargetFile  string `yaml:"target_file" env:"AGENT_TARGET_FILE"`
	Goal        string `yaml:"goal" env:"AGENT_GOAL"`

	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		TaskID:      "unknown",
		Provider:    "google-openai",
		Model:       "gemini-1.5-pro",
		MaxTokens:   8192,
		Temperature: 0.2,
		LogFile:     "agent.log",
		SandboxRoot: "/testbed",
		TargetFile:  "openlibrary/core/imports.py",
		LogLevel:    "info",
		LogFormat:   "text",
	}
}

// Options names the optional files Load reads.
type Options struct {
	File    string // YAML file; empty skips
	EnvFile string // .env file; empty tries DefaultEnvFile quietly
}

// Load resolves the configuration and validates it.
func Load(opts Options) (*Config, error) {
	cfg := Default()

	if opts.File != "" {
		data, err := os.ReadFile(opts.File)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", opts.File, err)
		}
	}

	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil {
			return nil, fmt.Errorf("loading env file: %w", err)
		}
	} else if err := godotenv.Load(DefaultEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", DefaultEnvFile, err)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first setting that makes a run impossible.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.APIKey) == "":
		return configError("GEMINI_API_KEY is not set")
	case c.SandboxRoot == "":
		return configError("sandbox root is empty")
	case c.TargetFile == "":
		return configError("target file is empty")
	case c.LogFile == "":
		return configError("log file is empty")
	case c.Model == "":
		return configError("model is empty")
	}
	return nil
}

func configError(msg string) error {
	return &unifiedllm.ConfigurationError{SDKError: unifiedllm.SDKError{Message: msg}}
}
