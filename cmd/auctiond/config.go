// config.go - Configuration management for the settlement daemon
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the daemon configuration
type Config struct {
	// HTTP
	ListenAddr             string `json:"listen_addr"`
	ShutdownTimeoutSeconds int    `json:"shutdown_timeout_seconds"`

	// Coprocessor
	KeyDir   string `json:"key_dir"`
	Insecure bool   `json:"insecure"`

	// Ledger persistence
	LedgerPath          string `json:"ledger_path"`
	SnapshotIntervalSec int    `json:"snapshot_interval_seconds"`

	// Logging
	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file"`

	// Rate limiting
	RateLimitTokens   int `json:"rate_limit_tokens"`
	RateLimitRefillMs int `json:"rate_limit_refill_ms"`

	// Security
	EnableAudit  bool   `json:"enable_audit"`
	AuditLogPath string `json:"audit_log_path"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:             ":8080",
		ShutdownTimeoutSeconds: 10,
		KeyDir:                 "keys",
		Insecure:               false,
		LedgerPath:             "ledger.json",
		SnapshotIntervalSec:    60,
		LogLevel:               "info",
		LogFile:                "auctiond.log",
		RateLimitTokens:        100,
		RateLimitRefillMs:      100,
		EnableAudit:            true,
		AuditLogPath:           "audit.log",
	}
}

// LoadConfig loads configuration from file or creates default
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); err == nil {
		file, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer file.Close()

		var config Config
		if err := json.NewDecoder(file).Decode(&config); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}

		return &config, nil
	}

	// Create default config and save it
	config := DefaultConfig()
	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save default config: %w", err)
	}

	return config, nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must be set")
	}
	if c.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("shutdown_timeout_seconds must be positive")
	}
	if !c.Insecure && c.KeyDir == "" {
		return fmt.Errorf("key_dir must be set unless insecure mode is enabled")
	}
	if c.SnapshotIntervalSec <= 0 {
		return fmt.Errorf("snapshot_interval_seconds must be positive")
	}
	if c.RateLimitTokens <= 0 {
		return fmt.Errorf("rate_limit_tokens must be positive")
	}
	if c.RateLimitRefillMs <= 0 {
		return fmt.Errorf("rate_limit_refill_ms must be positive")
	}
	return nil
}
