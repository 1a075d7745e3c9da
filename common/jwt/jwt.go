package jwt

import (
	"errors"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	PurposeSession       = "session"
	PurposePasswordReset = "password_reset"

	// ResetTokenTTL is the lifetime of the token issued after a verified OTP
	ResetTokenTTL = 10 * time.Minute
)

// Claims represents JWT claims structure
type Claims struct {
	SessionID string `json:"sid,omitempty"`
	UserID    string `json:"userId,omitempty"`
	Email     string `json:"email"`
	Role      string `json:"role,omitempty"`
	Purpose   string `json:"purpose"`
	jwt.RegisteredClaims
}

var (
	mu        sync.RWMutex
	secretKey = []byte(getEnv("JWT_SECRET", "change-me-in-production"))
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrWrongPurpose  = errors.New("token purpose mismatch")
	ErrNoExpiry      = errors.New("token has no expiry")
	ErrEmailMismatch = errors.New("token email mismatch")
)

// SetSecret replaces the signing key (config load, tests)
func SetSecret(secret string) {
	mu.Lock()
	defer mu.Unlock()
	secretKey = []byte(secret)
}

func key() []byte {
	mu.RLock()
	defer mu.RUnlock()
	return secretKey
}

func sign(claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(key())
}

// GenerateSessionToken signs the cookie value identifying a dashboard session
func GenerateSessionToken(sessionID, userID, email, role string, ttl time.Duration) (string, error) {
	return sign(Claims{
		SessionID: sessionID,
		UserID:    userID,
		Email:     email,
		Role:      role,
		Purpose:   PurposeSession,
	}, ttl)
}

// GenerateResetToken issues the short-lived token that unlocks the reset-password step
func GenerateResetToken(email string) (string, error) {
	return sign(Claims{Email: email, Purpose: PurposePasswordReset}, ResetTokenTTL)
}

// ValidateToken validates a JWT token and returns claims
func ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return key(), nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

// ValidateSessionToken returns the claims of a session cookie
func ValidateSessionToken(tokenString string) (*Claims, error) {
	claims, err := ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Purpose != PurposeSession || claims.SessionID == "" {
		return nil, ErrWrongPurpose
	}
	return claims, nil
}

// ValidateResetToken checks purpose and that the token belongs to email
func ValidateResetToken(tokenString, email string) error {
	claims, err := ValidateToken(tokenString)
	if err != nil {
		return err
	}
	if claims.Purpose != PurposePasswordReset {
		return ErrWrongPurpose
	}
	if claims.Email != email {
		return ErrEmailMismatch
	}
	return nil
}

// ExpiresAt reads the exp claim of a token signed by someone else (the backend).
// The signature is not verified; the result is only used to refresh early.
func ExpiresAt(tokenString string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return time.Time{}, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, err
	}
	if exp == nil {
		return time.Time{}, ErrNoExpiry
	}
	return exp.Time, nil
}

// ExpiresWithin reports whether an opaque backend token expires inside d.
// Tokens without a readable exp are never considered expiring.
func ExpiresWithin(tokenString string, d time.Duration) bool {
	exp, err := ExpiresAt(tokenString)
	if err != nil {
		return false
	}
	return time.Until(exp) < d
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
