package sanitize

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ValidationError reports a rejected input. Field names the offending
// input, Reason is safe to surface to callers.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

const (
	minEmailLength  = 5
	maxEmailLength  = 254
	maxLocalLength  = 64
	maxDomainLength = 253

	minPasswordLength = 8
	maxPasswordLength = 128
)

var emailShape = regexp.MustCompile(`^[a-z0-9!#$%&'*+/=?^_` + "`" + `{|}~.-]+@[a-z0-9.-]+$`)

// Email normalizes and validates an email address: lowercases, trims,
// enforces RFC-shaped structure and length bounds, and rejects control
// characters, whitespace, double dots, angle brackets, and script
// injection patterns.
func Email(email string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(email))

	if len(s) < minEmailLength {
		return "", invalid("email", "too short (minimum 5 characters)")
	}
	if len(s) > maxEmailLength {
		return "", invalid("email", "too long (maximum 254 characters)")
	}

	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return "", invalid("email", "contains control characters")
		}
	}
	if strings.ContainsAny(s, " \t<>") {
		return "", invalid("email", "contains invalid characters or patterns")
	}
	if strings.Contains(s, "..") || strings.Contains(s, "javascript:") {
		return "", invalid("email", "contains invalid characters or patterns")
	}

	local, domain, ok := strings.Cut(s, "@")
	if !ok || strings.Contains(domain, "@") {
		return "", invalid("email", "malformed address")
	}
	if local == "" || len(local) > maxLocalLength {
		return "", invalid("email", "local part length is invalid")
	}
	if domain == "" || len(domain) > maxDomainLength {
		return "", invalid("email", "domain length is invalid")
	}
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return "", invalid("email", "malformed domain")
	}
	if !emailShape.MatchString(s) {
		return "", invalid("email", "malformed address")
	}

	return s, nil
}

var (
	lowerClass   = regexp.MustCompile(`[a-z]`)
	upperClass   = regexp.MustCompile(`[A-Z]`)
	digitClass   = regexp.MustCompile(`\d`)
	specialClass = regexp.MustCompile(`[!@#$%^&*(),.?":{}|<>]`)
	repeatedRun  = regexp.MustCompile(`(.)\1{2,}`)
)

// weakWords are substrings that disqualify a password outright, matched
// case-insensitively.
var weakWords = []string{"12345", "password", "qwerty", "admin"}

// Password validates a password against the engine's policy and returns
// it unchanged. Valid input is a fixed point: applying Password twice to
// an accepted value returns the same string.
func Password(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", invalid("password", "must be at least 8 characters long")
	}
	if len(password) > maxPasswordLength {
		return "", invalid("password", "too long (max 128 characters)")
	}
	if !lowerClass.MatchString(password) {
		return "", invalid("password", "must contain at least one lowercase letter")
	}
	if !upperClass.MatchString(password) {
		return "", invalid("password", "must contain at least one uppercase letter")
	}
	if !digitClass.MatchString(password) {
		return "", invalid("password", "must contain at least one number")
	}
	if !specialClass.MatchString(password) {
		return "", invalid("password", "must contain at least one special character")
	}
	if repeatedRun.MatchString(password) {
		return "", invalid("password", "contains weak patterns and is not secure")
	}
	folded := strings.ToLower(password)
	for _, w := range weakWords {
		if strings.Contains(folded, w) {
			return "", invalid("password", "contains weak patterns and is not secure")
		}
	}

	return password, nil
}

// Strength is the result of scoring a candidate password.
type Strength struct {
	Score    int
	Feedback []string
	Valid    bool
}

// PasswordStrength scores a password 0-100 with actionable feedback.
// A password is acceptable only when Score >= 60 and length >= 8; both
// conditions are required, neither alone is sufficient.
func PasswordStrength(password string) Strength {
	if password == "" {
		return Strength{Feedback: []string{"Password is required"}}
	}

	var feedback []string
	score := 0

	if len(password) >= 8 {
		score += 20
	}
	if len(password) >= 12 {
		score += 10
	}
	if len(password) >= 16 {
		score += 10
	}

	if lowerClass.MatchString(password) {
		score += 10
	} else {
		feedback = append(feedback, "Add lowercase letters")
	}
	if upperClass.MatchString(password) {
		score += 10
	} else {
		feedback = append(feedback, "Add uppercase letters")
	}
	if digitClass.MatchString(password) {
		score += 10
	} else {
		feedback = append(feedback, "Add numbers")
	}
	if specialClass.MatchString(password) {
		score += 15
	} else {
		feedback = append(feedback, "Add special characters")
	}

	if repeatedRun.MatchString(password) {
		score -= 10
		feedback = append(feedback, "Avoid repeating characters")
	}
	folded := strings.ToLower(password)
	if strings.Contains(folded, "12345") || strings.Contains(folded, "abcde") || strings.Contains(folded, "qwerty") {
		score -= 15
		feedback = append(feedback, "Avoid common patterns")
	}
	if strings.Contains(folded, "password") || strings.Contains(folded, "admin") || strings.Contains(folded, "user") {
		score -= 20
		feedback = append(feedback, "Avoid common words")
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	valid := score >= 60 && len(password) >= 8

	switch {
	case score < 40:
		feedback = append([]string{"Very weak password"}, feedback...)
	case score < 60:
		feedback = append([]string{"Weak password"}, feedback...)
	case score < 80:
		feedback = append([]string{"Good password"}, feedback...)
	default:
		feedback = append([]string{"Strong password"}, feedback...)
	}

	return Strength{Score: score, Feedback: feedback, Valid: valid}
}

// ForDatabase prepares an arbitrary string for storage or display: strips
// control bytes, trims whitespace, truncates to maxLength, and escapes
// HTML metacharacters.
func ForDatabase(input string, maxLength int) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}

	s := strings.TrimSpace(b.String())
	if maxLength > 0 && len(s) > maxLength {
		s = truncate(s, maxLength)
	}

	return html.EscapeString(s)
}

// truncate cuts s to at most max bytes without splitting a multi-byte
// rune, so the result stays valid UTF-8.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// TextOptions tunes Text.
type TextOptions struct {
	MaxLength      int
	KeepWhitespace bool
}

// Text sanitizes free-form text: trims (unless KeepWhitespace), applies
// the length limit, and escapes HTML.
func Text(input string, opts TextOptions) string {
	s := input
	if !opts.KeepWhitespace {
		s = strings.TrimSpace(s)
	}
	if opts.MaxLength > 0 && len(s) > opts.MaxLength {
		s = truncate(s, opts.MaxLength)
	}
	return html.EscapeString(s)
}
