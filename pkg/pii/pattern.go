// Package pii detects sensitive values in prompts, replaces them with
// reversible tokens, and restores them in responses. Detection state for a
// single request lives in a Context shared with the audit sink.
package pii

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Pattern describes one sensitive-value kind: a compiled regex plus a
// semantic validator applied to every regex hit.
type Pattern struct {
	Name             string
	Region           string
	EnabledByDefault bool

	regex     *regexp.Regexp
	validator func(string) bool
}

func alwaysValid(string) bool { return true }

// builtinPatterns returns the built-in kinds. Region-specific kinds ship
// disabled and are switched on per deployment.
func builtinPatterns() []Pattern {
	return []Pattern{
		{
			Name:             "EMAIL",
			Region:           "global",
			EnabledByDefault: true,
			regex:            regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
			validator:        validateEmail,
		},
		{
			Name:             "PHONE",
			Region:           "global",
			EnabledByDefault: true,
			regex:            regexp.MustCompile(`\+?[1-9]\d{1,14}`),
			validator:        validatePhone,
		},
		{
			Name:             "CREDIT_CARD",
			Region:           "global",
			EnabledByDefault: true,
			regex:            regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`),
			validator:        validateCreditCard,
		},
		{
			Name:             "API_KEY",
			Region:           "global",
			EnabledByDefault: true,
			regex:            regexp.MustCompile(`\b(sk|pk|api)[-_]?[a-zA-Z0-9]{20,}\b`),
			validator:        alwaysValid,
		},
		{
			Name:             "SSN",
			Region:           "us",
			EnabledByDefault: false,
			regex:            regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
			validator:        validateSSN,
		},
		{
			Name:             "AADHAAR",
			Region:           "in",
			EnabledByDefault: false,
			regex:            regexp.MustCompile(`\b\d{4}\s?\d{4}\s?\d{4}\b`),
			validator:        validateAadhaar,
		},
		{
			Name:             "PAN",
			Region:           "in",
			EnabledByDefault: false,
			regex:            regexp.MustCompile(`\b[A-Z]{5}[0-9]{4}[A-Z]\b`),
			validator:        alwaysValid,
		},
		{
			Name:             "NI_NUMBER",
			Region:           "uk",
			EnabledByDefault: false,
			regex:            regexp.MustCompile(`\b[A-Z]{2}\d{6}[A-Z]\b`),
			validator:        alwaysValid,
		},
		{
			Name:             "IP_ADDRESS",
			Region:           "global",
			EnabledByDefault: false,
			regex:            regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
			validator:        validateIPv4,
		},
	}
}

func validateEmail(value string) bool {
	lower := strings.ToLower(value)
	if strings.Contains(lower, "test@") || strings.Contains(lower, "fake@") {
		return false
	}
	dot := strings.LastIndex(lower, ".")
	return dot >= 0 && len(lower)-dot-1 >= 2
}

func validatePhone(value string) bool {
	digits := strings.TrimPrefix(value, "+")
	if len(digits) < 7 || len(digits) > 15 {
		return false
	}
	allSame := true
	sequential := true
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[0] {
			allSame = false
		}
		diff := int(digits[i]) - int(digits[i-1])
		if diff != 1 && diff != -1 {
			sequential = false
		}
	}
	return !allSame && !sequential
}

func validateCreditCard(value string) bool {
	stripped := strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, value)
	if len(stripped) < 13 || len(stripped) > 19 {
		return false
	}
	return luhnValid(stripped)
}

// luhnValid runs the Luhn checksum over a digits-only string.
func luhnValid(digits string) bool {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		c := digits[i]
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

func validateSSN(value string) bool {
	parts := strings.Split(value, "-")
	if len(parts) != 3 {
		return false
	}
	area, group, serial := parts[0], parts[1], parts[2]
	if area == "000" || area == "666" || strings.HasPrefix(area, "9") {
		return false
	}
	if group == "00" || serial == "0000" {
		return false
	}
	return true
}

func validateAadhaar(value string) bool {
	digits := strings.ReplaceAll(value, " ", "")
	if len(digits) != 12 {
		return false
	}
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[0] {
			return true
		}
	}
	return false
}

func validateIPv4(value string) bool {
	for _, octet := range strings.Split(value, ".") {
		n, err := strconv.Atoi(octet)
		if err != nil || n < 0 || n > 255 {
			return false
		}
	}
	return true
}

// Registry holds the compiled, enabled patterns for a deployment. It is
// built once at startup and read-only afterwards.
type Registry struct {
	patterns []Pattern
}

// NewRegistry compiles the built-in patterns with per-kind config overrides
// applied, plus any custom patterns. A custom pattern that fails to compile
// fails registration rather than surfacing at request time.
func NewRegistry(enabledOverrides map[string]bool, custom []CustomPattern) (*Registry, error) {
	var enabled []Pattern
	for _, p := range builtinPatterns() {
		on := p.EnabledByDefault
		if v, ok := enabledOverrides[p.Name]; ok {
			on = v
		}
		if on {
			enabled = append(enabled, p)
		}
	}
	for _, cp := range custom {
		if !cp.Enabled {
			continue
		}
		re, err := regexp.Compile(cp.Regex)
		if err != nil {
			return nil, fmt.Errorf("custom pattern %q: %w", cp.Name, err)
		}
		enabled = append(enabled, Pattern{
			Name:      cp.Name,
			Region:    cp.Region,
			regex:     re,
			validator: alwaysValid,
		})
	}
	return &Registry{patterns: enabled}, nil
}

// BuiltinKinds lists the names of every built-in pattern, enabled or not.
func BuiltinKinds() []string {
	pats := builtinPatterns()
	kinds := make([]string, 0, len(pats))
	for _, p := range pats {
		kinds = append(kinds, p.Name)
	}
	return kinds
}

// CustomPattern is a user-defined kind added alongside the built-ins.
type CustomPattern struct {
	Name    string
	Regex   string
	Region  string
	Enabled bool
}

// Patterns returns the enabled patterns in registration order.
func (r *Registry) Patterns() []Pattern {
	return r.patterns
}
