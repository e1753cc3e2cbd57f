// Package query provides identifier validation, injection-signature
// detection and a fluent, parameterized SQL builder. Identifiers are the only
// caller-supplied text that ever reaches SQL strings, and only after passing
// ValidateIdentifier; every literal value travels in the parameter list.
package query

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/talentsphere/securecore/internal/errs"
)

// identifierRegex validates SQL identifiers (column names, table names).
// Must start with a letter or underscore, followed by alphanumeric or underscore.
var identifierRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// injectionSignatures are matched against free text (never identifiers).
// Parameterization is the real protection; these reject obviously malicious
// input before it is bound.
var injectionSignatures = []*regexp.Regexp{
	// stacked statements
	regexp.MustCompile(`(?i);\s*(DROP|DELETE|TRUNCATE|ALTER|CREATE|INSERT|UPDATE|EXEC|EXECUTE|GRANT|REVOKE|SHUTDOWN)\b`),
	// boolean tautologies: OR 1=1, ' OR 'a'='a
	regexp.MustCompile(`(?i)\b(OR|AND)\s+(\d+)\s*=\s*(\d+)\b`),
	regexp.MustCompile(`(?i)'\s*(OR|AND)\s+'[^']*'\s*=\s*'`),
	// comment delimiters
	regexp.MustCompile(`--`),
	regexp.MustCompile(`/\*`),
	regexp.MustCompile(`\*/`),
	// keyword stacking
	regexp.MustCompile(`(?i)\bUNION\s+(ALL\s+)?SELECT\b`),
	regexp.MustCompile(`(?i)\b(EXEC|EXECUTE)\s+(xp_|sp_)\w*`),
	regexp.MustCompile(`(?i)\bWAITFOR\s+DELAY\b`),
	regexp.MustCompile(`(?i)\b(SLEEP|BENCHMARK|PG_SLEEP)\s*\(`),
	regexp.MustCompile(`(?i)\bINTO\s+(OUT|DUMP)FILE\b`),
}

// sensitiveAssignments masks credential-looking values in logged SQL.
var sensitiveAssignments = regexp.MustCompile(`(?i)\b(password|passwd|pwd|token|secret|api_key|apikey)(\s*(?:=|:)\s*)('[^']*'|"[^"]*"|\S+)`)

// logSampleLen caps every piece of untrusted text that reaches the logs.
const logSampleLen = 200

// ValidateIdentifier ensures a SQL identifier (column name, table name) is
// safe to concatenate. It returns name unchanged when it matches
// ^[A-Za-z_][A-Za-z0-9_]*$ and an INVALID_IDENTIFIER error otherwise.
func ValidateIdentifier(name string) (string, error) {
	if !identifierRegex.MatchString(name) {
		return "", errs.New(errs.CodeInvalidIdentifier, "invalid identifier")
	}
	return name, nil
}

// ValidateIdentifiers validates multiple identifiers, returning the first error found.
func ValidateIdentifiers(names []string) error {
	for _, name := range names {
		if _, err := ValidateIdentifier(name); err != nil {
			return err
		}
	}
	return nil
}

// DetectInjectionSignature reports whether text matches any known injection idiom.
func DetectInjectionSignature(text string) bool {
	return matchSignature(text) != nil
}

func matchSignature(text string) *regexp.Regexp {
	for _, re := range injectionSignatures {
		if re.MatchString(text) {
			return re
		}
	}
	return nil
}

// SanitizeForLog masks credential assignments and caps the length of text
// destined for log output.
func SanitizeForLog(text string) string {
	masked := sensitiveAssignments.ReplaceAllString(text, "$1$2***")
	masked = strings.ReplaceAll(masked, "\x00", "")
	return truncate(masked, logSampleLen)
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

// Validator wraps the pure checks with audit logging. Every rejected
// identifier and every detected signature is logged at warn level with a
// sanitized, truncated sample of the offending text.
type Validator struct {
	logger *slog.Logger
}

// NewValidator returns a Validator logging to logger. A nil logger
// discards audit events.
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Validator{logger: logger}
}

// Identifier validates name and audits rejections.
func (v *Validator) Identifier(name string) (string, error) {
	out, err := ValidateIdentifier(name)
	if err != nil {
		v.logger.Warn("rejected sql identifier", "sample", SanitizeForLog(name))
	}
	return out, err
}

// Identifiers validates each name in order, stopping at the first rejection.
func (v *Validator) Identifiers(names []string) error {
	for _, name := range names {
		if _, err := v.Identifier(name); err != nil {
			return err
		}
	}
	return nil
}

// CheckText returns INJECTION_DETECTED when text carries an injection signature.
func (v *Validator) CheckText(text string) error {
	if re := matchSignature(text); re != nil {
		v.logger.Warn("sql injection signature detected",
			"pattern", re.String(),
			"sample", SanitizeForLog(text),
		)
		return errs.New(errs.CodeInjectionDetected, "input rejected")
	}
	return nil
}
