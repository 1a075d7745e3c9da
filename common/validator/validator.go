package validator

import (
	"regexp"
	"strings"
)

// Regex patterns
var (
	// Email pattern - RFC 5322 simplified
	EmailPattern = regexp.MustCompile(`^[a-zA-Z0-9_+&*-]+(?:\.[a-zA-Z0-9_+&*-]+)*@(?:[a-zA-Z0-9-]+\.)+[a-zA-Z]{2,7}$`)

	// International phone: optional +, 8-15 digits, spaces and dashes allowed between groups
	PhonePattern = regexp.MustCompile(`^\+?[0-9][0-9 \-]{6,18}[0-9]$`)

	// Full name pattern: 2-100 chars, Unicode letters, spaces, dots, hyphens, apostrophes
	FullNamePattern = regexp.MustCompile(`^[\p{L} .'-]{2,100}$`)

	// Password pattern: min 8 chars, allowed characters only
	PasswordPattern = regexp.MustCompile(`^[A-Za-z\d@#$%^&+=!\-_.*]{8,}$`)

	letterPattern = regexp.MustCompile(`[A-Za-z]`)
	digitPattern  = regexp.MustCompile(`\d`)
)

// NormalizeEmail trims and lowercases an address; used as the identity key everywhere.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsValidEmail validates email format
func IsValidEmail(email string) bool {
	if email == "" {
		return false
	}
	return EmailPattern.MatchString(email)
}

// IsValidPhone validates a phone number
func IsValidPhone(phone string) bool {
	trimmed := strings.TrimSpace(phone)
	if trimmed == "" {
		return false
	}
	if !PhonePattern.MatchString(trimmed) {
		return false
	}
	digits := 0
	for _, r := range trimmed {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= 8 && digits <= 15
}

// IsValidFullName validates full name
func IsValidFullName(name string) bool {
	if name == "" {
		return false
	}
	trimmed := strings.TrimSpace(name)
	return FullNamePattern.MatchString(trimmed)
}

// IsValidPassword validates password strength
func IsValidPassword(password string) bool {
	if password == "" {
		return false
	}
	if !PasswordPattern.MatchString(password) {
		return false
	}
	return letterPattern.MatchString(password) && digitPattern.MatchString(password)
}

// GetEmailError returns user-friendly error message for email
func GetEmailError(email string) string {
	trimmed := strings.TrimSpace(email)
	if trimmed == "" {
		return "Email is required"
	}
	if !IsValidEmail(trimmed) {
		return "Invalid email address, e.g. user@example.com"
	}
	return ""
}

// GetPhoneError returns user-friendly error message for phone
func GetPhoneError(phone string) string {
	trimmed := strings.TrimSpace(phone)
	if trimmed == "" {
		return "Phone number is required"
	}
	if !IsValidPhone(trimmed) {
		return "Phone number must contain 8 to 15 digits"
	}
	return ""
}

// GetFullNameError returns user-friendly error message for full name
func GetFullNameError(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "Full name is required"
	}
	if len([]rune(trimmed)) < 2 {
		return "Full name must be at least 2 characters"
	}
	if len([]rune(trimmed)) > 100 {
		return "Full name must not exceed 100 characters"
	}
	if !IsValidFullName(trimmed) {
		return "Full name may only contain letters, spaces, dots, hyphens and apostrophes"
	}
	return ""
}

// GetPasswordError returns user-friendly error message for password
func GetPasswordError(password string) string {
	if password == "" {
		return "Password is required"
	}
	if len(password) < 8 {
		return "Password must be at least 8 characters"
	}
	if !letterPattern.MatchString(password) {
		return "Password must contain at least one letter"
	}
	if !digitPattern.MatchString(password) {
		return "Password must contain at least one digit"
	}
	if !IsValidPassword(password) {
		return "Password may only contain letters, digits and @#$%^&+=!-_.*"
	}
	return ""
}
