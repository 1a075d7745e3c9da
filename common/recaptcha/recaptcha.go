package recaptcha

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/event-admin-services/common/errors"
	"github.com/event-admin-services/common/logger"
)

// Config holds reCAPTCHA configuration
type Config struct {
	SecretKey  string  // Server-side secret key
	VerifyURL  string  // siteverify endpoint
	MinScore   float64 // Minimum score for v3 (0.0 - 1.0)
	Timeout    time.Duration
	SkipVerify bool // Skip verification in dev mode
}

// DefaultConfig returns reCAPTCHA config from environment variables
func DefaultConfig() *Config {
	minScore, err := strconv.ParseFloat(getEnv("RECAPTCHA_MIN_SCORE", "0.5"), 64)
	if err != nil {
		minScore = 0.5
	}
	return &Config{
		SecretKey:  getEnv("RECAPTCHA_SECRET_KEY", ""),
		VerifyURL:  getEnv("RECAPTCHA_VERIFY_URL", "https://www.google.com/recaptcha/api/siteverify"),
		MinScore:   minScore,
		Timeout:    10 * time.Second,
		SkipVerify: getEnv("RECAPTCHA_SKIP_VERIFY", "false") == "true",
	}
}

// VerifyResponse is the siteverify answer
type VerifyResponse struct {
	Success     bool      `json:"success"`
	Score       float64   `json:"score,omitempty"`  // v3 only
	Action      string    `json:"action,omitempty"` // v3 only
	ChallengeTS time.Time `json:"challenge_ts"`
	Hostname    string    `json:"hostname"`
	ErrorCodes  []string  `json:"error-codes,omitempty"`
}

// VerifyResult is the verification outcome with context
type VerifyResult struct {
	Valid        bool
	Score        float64
	Action       string
	ErrorMessage string
	RawResponse  *VerifyResponse
}

// Service verifies reCAPTCHA tokens on login and forgot-password
type Service struct {
	config *Config
	client *http.Client
	log    *logger.Logger
}

// NewService creates a reCAPTCHA service; nil config reads the environment.
func NewService(config *Config) *Service {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}

	return &Service{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		log:    logger.Default().With("component", "recaptcha"),
	}
}

// IsConfigured returns true if reCAPTCHA is properly configured
func (s *Service) IsConfigured() bool {
	return s.config.SecretKey != "" && !s.config.SkipVerify
}

// Verify verifies a token against siteverify
func (s *Service) Verify(ctx context.Context, token, remoteIP string) (*VerifyResult, error) {
	result := &VerifyResult{}

	if !s.IsConfigured() {
		result.Valid = true
		result.Score = 1.0
		result.ErrorMessage = "verification skipped"
		return result, nil
	}

	if token == "" {
		result.ErrorMessage = "reCAPTCHA token is required"
		return result, nil
	}

	data := url.Values{}
	data.Set("secret", s.config.SecretKey)
	data.Set("response", token)
	if remoteIP != "" {
		data.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.VerifyURL, strings.NewReader(data.Encode()))
	if err != nil {
		return result, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		result.ErrorMessage = fmt.Sprintf("failed to verify reCAPTCHA: %v", err)
		return result, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		result.ErrorMessage = fmt.Sprintf("failed to read response: %v", err)
		return result, err
	}

	var verifyResp VerifyResponse
	if err := json.Unmarshal(body, &verifyResp); err != nil {
		result.ErrorMessage = fmt.Sprintf("failed to parse response: %v", err)
		return result, err
	}

	result.RawResponse = &verifyResp
	result.Score = verifyResp.Score
	result.Action = verifyResp.Action

	if !verifyResp.Success {
		result.ErrorMessage = formatErrorCodes(verifyResp.ErrorCodes)
		return result, nil
	}

	// v3 only
	if verifyResp.Score > 0 && verifyResp.Score < s.config.MinScore {
		result.ErrorMessage = fmt.Sprintf("score too low: %.2f (minimum: %.2f)", verifyResp.Score, s.config.MinScore)
		return result, nil
	}

	result.Valid = true
	return result, nil
}

// VerifyWithAction also checks the v3 action name
func (s *Service) VerifyWithAction(ctx context.Context, token, expectedAction, remoteIP string) (*VerifyResult, error) {
	result, err := s.Verify(ctx, token, remoteIP)
	if err != nil {
		return result, err
	}

	if result.Valid && result.Action != "" && expectedAction != "" && result.Action != expectedAction {
		result.Valid = false
		result.ErrorMessage = fmt.Sprintf("action mismatch: expected '%s', got '%s'", expectedAction, result.Action)
	}

	return result, nil
}

// Check verifies token for action and maps the outcome onto an AppError:
// an unreachable provider is E5004, a failed challenge is 400.
func (s *Service) Check(ctx context.Context, token, action, remoteIP string) error {
	if !s.IsConfigured() {
		s.log.Debug("reCAPTCHA not configured, skipping verification")
		return nil
	}

	result, err := s.VerifyWithAction(ctx, token, action, remoteIP)
	if err != nil {
		s.log.WithError(err).Error("reCAPTCHA verification error")
		return apperrors.RecaptchaError("Could not verify reCAPTCHA, please try again").WithCause(err)
	}
	if !result.Valid {
		s.log.Warn("reCAPTCHA verification failed", "message", result.ErrorMessage, "score", result.Score)
		return apperrors.InvalidInput("recaptchaToken", "reCAPTCHA verification failed: "+result.ErrorMessage)
	}
	s.log.Debug("reCAPTCHA verified", "score", result.Score, "action", result.Action)
	return nil
}

func formatErrorCodes(codes []string) string {
	if len(codes) == 0 {
		return "unknown error"
	}

	messages := make([]string, 0, len(codes))
	for _, code := range codes {
		messages = append(messages, getErrorMessage(code))
	}
	return strings.Join(messages, "; ")
}

func getErrorMessage(code string) string {
	errorMessages := map[string]string{
		"missing-input-secret":   "Missing secret key",
		"invalid-input-secret":   "Invalid secret key",
		"missing-input-response": "Missing reCAPTCHA token",
		"invalid-input-response": "reCAPTCHA token is invalid or expired",
		"bad-request":            "Bad request",
		"timeout-or-duplicate":   "Token expired or already used",
	}

	if msg, ok := errorMessages[code]; ok {
		return msg
	}
	return code
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
