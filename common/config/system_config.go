package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/event-admin-services/common/logger"
)

// SystemConfig holds the verification-gate policy and table defaults.
// It is read from config/system_config.json and can be changed by an admin at runtime.
type SystemConfig struct {
	// MaxAttempts: failed submissions before the gate blocks
	MaxAttempts int `json:"maxAttempts"`

	// BlockMinutes: how long a blocked identity waits
	BlockMinutes int `json:"blockMinutes"`

	// ResendCooldownSeconds: wait between "resend code" actions
	ResendCooldownSeconds int `json:"resendCooldownSeconds"`

	// SessionExpiryMinutes: lifetime of one verification flow
	SessionExpiryMinutes int `json:"sessionExpiryMinutes"`

	// AdvanceDelaySeconds: delay between success and the next step
	AdvanceDelaySeconds int `json:"advanceDelaySeconds"`

	// DefaultPageSize for paginated tables
	DefaultPageSize int `json:"defaultPageSize"`
}

var (
	globalConfig *SystemConfig
	configMutex  sync.RWMutex
	configPath   = "config/system_config.json"
)

// DefaultSystemConfig returns the built-in policy
func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		MaxAttempts:           3,
		BlockMinutes:          15,
		ResendCooldownSeconds: 60,
		SessionExpiryMinutes:  10,
		AdvanceDelaySeconds:   2,
		DefaultPageSize:       10,
	}
}

// SetConfigPath points the loader at another file and drops the cached value.
func SetConfigPath(path string) {
	configMutex.Lock()
	defer configMutex.Unlock()
	configPath = path
	globalConfig = nil
}

// LoadConfig reads system_config.json, falling back to defaults when missing or invalid.
func LoadConfig() *SystemConfig {
	configMutex.RLock()
	if globalConfig != nil {
		configMutex.RUnlock()
		return globalConfig
	}
	configMutex.RUnlock()

	configMutex.Lock()
	defer configMutex.Unlock()

	if globalConfig != nil {
		return globalConfig
	}

	cfg := DefaultSystemConfig()
	log := logger.Default()

	data, err := os.ReadFile(configPath)
	switch {
	case err != nil:
		log.Debug("system config not found, using defaults", "path", configPath)
	case json.Unmarshal(data, cfg) != nil:
		log.Warn("failed to parse system config, using defaults", "path", configPath)
		cfg = DefaultSystemConfig()
	default:
		log.Info("loaded system config", "path", configPath)
	}

	// out-of-range values fall back individually
	def := DefaultSystemConfig()
	if cfg.MaxAttempts < 1 || cfg.MaxAttempts > 10 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BlockMinutes < 1 || cfg.BlockMinutes > 1440 {
		cfg.BlockMinutes = def.BlockMinutes
	}
	if cfg.ResendCooldownSeconds < 0 || cfg.ResendCooldownSeconds > 3600 {
		cfg.ResendCooldownSeconds = def.ResendCooldownSeconds
	}
	if cfg.SessionExpiryMinutes < 1 || cfg.SessionExpiryMinutes > 120 {
		cfg.SessionExpiryMinutes = def.SessionExpiryMinutes
	}
	if cfg.AdvanceDelaySeconds < 0 || cfg.AdvanceDelaySeconds > 30 {
		cfg.AdvanceDelaySeconds = def.AdvanceDelaySeconds
	}
	if cfg.DefaultPageSize < 1 || cfg.DefaultPageSize > 100 {
		cfg.DefaultPageSize = def.DefaultPageSize
	}

	globalConfig = cfg
	return globalConfig
}

// Validate checks the bounds enforced by LoadConfig
func (c *SystemConfig) Validate() error {
	switch {
	case c.MaxAttempts < 1 || c.MaxAttempts > 10:
		return fmt.Errorf("maxAttempts must be between 1 and 10")
	case c.BlockMinutes < 1 || c.BlockMinutes > 1440:
		return fmt.Errorf("blockMinutes must be between 1 and 1440")
	case c.ResendCooldownSeconds < 0 || c.ResendCooldownSeconds > 3600:
		return fmt.Errorf("resendCooldownSeconds must be between 0 and 3600")
	case c.SessionExpiryMinutes < 1 || c.SessionExpiryMinutes > 120:
		return fmt.Errorf("sessionExpiryMinutes must be between 1 and 120")
	case c.AdvanceDelaySeconds < 0 || c.AdvanceDelaySeconds > 30:
		return fmt.Errorf("advanceDelaySeconds must be between 0 and 30")
	case c.DefaultPageSize < 1 || c.DefaultPageSize > 100:
		return fmt.Errorf("defaultPageSize must be between 1 and 100")
	}
	return nil
}

// SaveConfig validates and persists the config (admin only)
func SaveConfig(cfg *SystemConfig) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	configMutex.Lock()
	defer configMutex.Unlock()

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	globalConfig = cfg
	logger.Info("system config saved", "maxAttempts", cfg.MaxAttempts, "blockMinutes", cfg.BlockMinutes)
	return nil
}

// GetConfig returns the current config (thread-safe)
func GetConfig() *SystemConfig {
	return LoadConfig()
}

func (c *SystemConfig) BlockDuration() time.Duration {
	return time.Duration(c.BlockMinutes) * time.Minute
}

func (c *SystemConfig) ResendCooldown() time.Duration {
	return time.Duration(c.ResendCooldownSeconds) * time.Second
}

func (c *SystemConfig) SessionExpiry() time.Duration {
	return time.Duration(c.SessionExpiryMinutes) * time.Minute
}

func (c *SystemConfig) AdvanceDelay() time.Duration {
	return time.Duration(c.AdvanceDelaySeconds) * time.Second
}
