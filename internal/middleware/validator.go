package middleware

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	DefaultStatementTimeout = 60
	MaxStatementTimeout     = 60
)

var tenantRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}

// ValidateTenantID validates tenant ID format
func ValidateTenantID(tenant string) error {
	if tenant == "" {
		return fmt.Errorf("tenant ID cannot be empty")
	}
	if !tenantRe.MatchString(tenant) {
		return fmt.Errorf("invalid tenant ID format (alphanumeric, dash, underscore only, max 64 chars)")
	}
	return nil
}

// ClampTimeout maps a requested statement timeout in seconds onto 1..60;
// zero or negative means the default. Fractions are truncated.
func ClampTimeout(seconds float64) int {
	switch {
	case seconds <= 0:
		return DefaultStatementTimeout
	case seconds > MaxStatementTimeout:
		return MaxStatementTimeout
	case seconds < 1:
		return 1
	}
	return int(seconds)
}
