package gate

import (
	"strings"
	"time"

	"github.com/event-admin-services/common/config"
	"github.com/event-admin-services/common/validator"
)

// Kind identifies which verification screen a flow belongs to
type Kind string

const (
	KindOTP Kind = "otp"
	KindIP  Kind = "ip"
)

// Config describes one verification gate
type Config struct {
	Kind           Kind
	MaxAttempts    int
	BlockDuration  time.Duration
	ResendCooldown time.Duration
	SessionTTL     time.Duration
	AdvanceDelay   time.Duration

	// Normalize is applied to the raw input before Validate and submission.
	Normalize func(code string) string
	// Validate returns a user-facing message when the code must not be submitted.
	Validate func(code string) string

	NextStep     string
	PreviousStep string
}

// OTPConfig is the password-reset gate: 5 digits, forgot-password -> reset-password.
func OTPConfig() Config {
	return Config{
		Kind:           KindOTP,
		MaxAttempts:    3,
		BlockDuration:  15 * time.Minute,
		ResendCooldown: 60 * time.Second,
		SessionTTL:     10 * time.Minute,
		AdvanceDelay:   2 * time.Second,
		Normalize:      strings.TrimSpace,
		Validate:       validator.GetOTPError,
		NextStep:       "reset-password",
		PreviousStep:   "forgot-password",
	}
}

// IPConfig is the new-device login gate: 5-6 alphanumerics, login -> dashboard.
func IPConfig() Config {
	return Config{
		Kind:           KindIP,
		MaxAttempts:    3,
		BlockDuration:  15 * time.Minute,
		ResendCooldown: 60 * time.Second,
		SessionTTL:     10 * time.Minute,
		AdvanceDelay:   2 * time.Second,
		Normalize:      validator.NormalizeIPCode,
		Validate:       validator.GetIPCodeError,
		NextStep:       "dashboard",
		PreviousStep:   "login",
	}
}

// WithPolicy overrides limits and timings from the runtime system config
func (c Config) WithPolicy(p *config.SystemConfig) Config {
	if p == nil {
		return c
	}
	c.MaxAttempts = p.MaxAttempts
	c.BlockDuration = p.BlockDuration()
	c.ResendCooldown = p.ResendCooldown()
	c.SessionTTL = p.SessionExpiry()
	c.AdvanceDelay = p.AdvanceDelay()
	return c
}

func (c Config) normalize(code string) string {
	if c.Normalize == nil {
		return code
	}
	return c.Normalize(code)
}

func (c Config) validate(code string) string {
	if c.Validate == nil {
		return ""
	}
	return c.Validate(code)
}
