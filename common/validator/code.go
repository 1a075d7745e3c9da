package validator

import "strings"

const (
	OTPLength   = 5
	IPCodeMin   = 5
	IPCodeMax   = 6
	maxRepeated = 3
)

// GetOTPError checks a password-reset code locally. It returns "" when the
// code may be sent to the backend.
func GetOTPError(code string) string {
	if code == "" {
		return "Verification code is required"
	}
	if len(code) != OTPLength {
		return "Verification code must be exactly 5 digits"
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return "Verification code must contain digits only"
		}
	}
	if allIdentical(code) {
		return "Verification code cannot be the same digit repeated"
	}
	if hasRepeatedRun(code, maxRepeated) {
		return "Verification code cannot contain 3 or more identical digits in a row"
	}
	if isSequential(code) {
		return "Verification code cannot be a sequence such as 01234"
	}
	return ""
}

// IsValidOTP reports whether GetOTPError accepts code
func IsValidOTP(code string) bool {
	return GetOTPError(code) == ""
}

// NormalizeIPCode trims and uppercases a device verification code.
func NormalizeIPCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// GetIPCodeError checks an already normalized device verification code.
func GetIPCodeError(code string) string {
	if code == "" {
		return "Verification code is required"
	}
	if len(code) < IPCodeMin || len(code) > IPCodeMax {
		return "Verification code must be 5 or 6 characters"
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if !(c >= '0' && c <= '9') && !(c >= 'A' && c <= 'Z') {
			return "Verification code may only contain letters and digits"
		}
	}
	return ""
}

func allIdentical(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}

func hasRepeatedRun(s string, n int) bool {
	run := 1
	for i := 1; i < len(s); i++ {
		if s[i] == s[i-1] {
			run++
			if run >= n {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}

// isSequential matches whole-code ascending or descending runs (01234, 98765).
func isSequential(s string) bool {
	asc, desc := true, true
	for i := 1; i < len(s); i++ {
		d := int(s[i]) - int(s[i-1])
		if d != 1 {
			asc = false
		}
		if d != -1 {
			desc = false
		}
	}
	return asc || desc
}
