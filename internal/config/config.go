// Copyright 2026 The kernelBridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config provides configuration management for the kernelBridge
// server. It handles loading and parsing YAML configuration files,
// watches the file for changes, and overlays the user-entered remote
// server settings persisted in the settings store.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application's configuration, loaded from a
// YAML file.
type Config struct {
	// Host is the network host/interface the API server binds to.
	Host string `yaml:"host"`
	// Port is the network port the API server listens on.
	Port int `yaml:"port"`

	// Mode selects the operating mode: "hybrid" consults a true local
	// Jupyter server in addition to the engine, "remote" fills the
	// non-engine slot only with the user-configured remote server.
	// Fixed at process start; file reloads do not change it.
	Mode string `yaml:"mode"`

	// LocalServer is the base URL of a local Jupyter server consulted
	// in hybrid mode.
	LocalServer string `yaml:"local-server"`

	// Remote holds the static remote server defaults. Values entered
	// through the management API override these.
	Remote RemoteConfig `yaml:"remote"`

	// Polling tunes the backend refresh loops.
	Polling PollingConfig `yaml:"polling"`

	// EngineKernels declares the kernel types the in-process engine
	// serves. Empty means the built-in default set.
	EngineKernels []EngineKernel `yaml:"engine-kernels"`

	// Debug enables debug-level logging.
	Debug bool `yaml:"debug"`
	// LoggingToFile routes logs to rotating files instead of stdout.
	LoggingToFile bool `yaml:"logging-to-file"`
	// LogDir is the directory for rotating log files.
	LogDir string `yaml:"log-dir"`
}

// RemoteConfig is the static half of the remote server configuration.
type RemoteConfig struct {
	// BaseURL is the remote Jupyter server base URL.
	BaseURL string `yaml:"base-url"`
	// Token is the bearer token attached to outgoing requests.
	Token string `yaml:"token"`
}

// PollingConfig tunes the spec and running-list refresh loops.
type PollingConfig struct {
	// IntervalSeconds is the base polling interval.
	IntervalSeconds int `yaml:"interval-seconds"`
	// BackoffFactor multiplies the interval after no-op refreshes.
	BackoffFactor float64 `yaml:"backoff-factor"`
	// MaxIntervalSeconds caps the backed-off interval.
	MaxIntervalSeconds int `yaml:"max-interval-seconds"`
	// StandbySeconds suspends polling after this much client
	// inactivity. Zero disables standby.
	StandbySeconds int `yaml:"standby-seconds"`
}

// Interval returns the base polling interval as a duration.
func (p PollingConfig) Interval() time.Duration {
	return time.Duration(p.IntervalSeconds) * time.Second
}

// MaxInterval returns the interval ceiling as a duration.
func (p PollingConfig) MaxInterval() time.Duration {
	return time.Duration(p.MaxIntervalSeconds) * time.Second
}

// EngineKernel declares one in-process kernel type.
type EngineKernel struct {
	Name        string `yaml:"name"`
	DisplayName string `yaml:"display-name"`
	Language    string `yaml:"language"`
}

// Load reads and parses the YAML configuration file at path, applying
// defaults for absent fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with all defaults applied, used when
// no config file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8317
	}
	if c.Mode == "" {
		c.Mode = "remote"
	}
	if c.Polling.IntervalSeconds <= 0 {
		c.Polling.IntervalSeconds = 10
	}
	if c.Polling.BackoffFactor < 1 {
		c.Polling.BackoffFactor = 2
	}
	if c.Polling.MaxIntervalSeconds <= 0 {
		c.Polling.MaxIntervalSeconds = 300
	}
	if c.Polling.StandbySeconds < 0 {
		c.Polling.StandbySeconds = 0
	}
}
