package query

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/talentsphere/securecore/internal/errs"
)

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "name", false},
		{"valid underscore prefix", "_id", false},
		{"valid with numbers", "col123", false},
		{"valid mixed", "user_name_2", false},
		{"keyword shaped but valid", "select", false},
		{"long but valid", strings.Repeat("a", 300), false},
		{"empty", "", true},
		{"starts with number", "1col", true},
		{"contains space", "col name", true},
		{"contains dash", "col-name", true},
		{"contains semicolon", "col;name", true},
		{"contains quote", `col"name`, true},
		{"contains dot", "users.id", true},
		{"SQL injection attempt", "users; DROP TABLE users", true},
		{"comment marker", "name--", true},
		{"unicode letter", "naïve", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateIdentifier(tt.input)
			if tt.wantErr {
				if !errors.Is(err, errs.ErrInvalidIdentifier) {
					t.Errorf("expected INVALID_IDENTIFIER for %q, got %v", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error for %q: %v", tt.input, err)
			}
			if got != tt.input {
				t.Errorf("got %q, want input unchanged", got)
			}
		})
	}
}

func TestValidateIdentifierMatchesRegexExactly(t *testing.T) {
	alphabet := []byte("aZ_09;'\" -.*/()=")
	// Exhaustively check every string of length <= 3 over a mixed alphabet.
	var check func(prefix []byte, depth int)
	check = func(prefix []byte, depth int) {
		s := string(prefix)
		_, err := ValidateIdentifier(s)
		if identifierRegex.MatchString(s) != (err == nil) {
			t.Fatalf("ValidateIdentifier(%q) err=%v disagrees with regex", s, err)
		}
		if depth == 0 {
			return
		}
		for _, c := range alphabet {
			check(append(append([]byte(nil), prefix...), c), depth-1)
		}
	}
	check(nil, 3)
}

func TestValidateIdentifiers(t *testing.T) {
	if err := ValidateIdentifiers([]string{"id", "name", "email"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateIdentifiers([]string{"id", "na me", "email"}); err == nil {
		t.Error("expected error for invalid identifier, got nil")
	}
}

func TestDetectInjectionSignature(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"john%", false},
		{"O'Brien", false},
		{"select a nice chair", false},
		{"x'; DROP TABLE users", true},
		{"1; delete from accounts", true},
		{"a' OR 1=1", true},
		{"' or 'a'='a", true},
		{"admin'--", true},
		{"name /* hidden */", true},
		{"1 UNION SELECT password FROM users", true},
		{"1 union all select 1", true},
		{"'; EXEC xp_cmdshell 'dir'", true},
		{"1; WAITFOR DELAY '0:0:5'", true},
		{"sleep(5)", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := DetectInjectionSignature(tt.input); got != tt.want {
				t.Errorf("DetectInjectionSignature(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeForLog(t *testing.T) {
	got := SanitizeForLog("UPDATE users SET password='hunter2', token = abc123 WHERE id = 1")
	if strings.Contains(got, "hunter2") || strings.Contains(got, "abc123") {
		t.Errorf("secrets not masked: %q", got)
	}
	if !strings.Contains(got, "password=***") {
		t.Errorf("expected masked password assignment, got %q", got)
	}

	long := SanitizeForLog(strings.Repeat("x", 1000))
	if len(long) != logSampleLen+len("...") {
		t.Errorf("expected capped length, got %d", len(long))
	}
}

func TestTruncateKeepsRuneBoundary(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"ascii", strings.Repeat("a", logSampleLen+5), strings.Repeat("a", logSampleLen) + "..."},
		{"two-byte rune across cut", strings.Repeat("a", logSampleLen-1) + "é" + "tail", strings.Repeat("a", logSampleLen-1) + "..."},
		{"three-byte rune across cut", strings.Repeat("a", logSampleLen-2) + "€" + "tail", strings.Repeat("a", logSampleLen-2) + "..."},
		{"four-byte rune across cut", strings.Repeat("a", logSampleLen-1) + "😀" + "tail", strings.Repeat("a", logSampleLen-1) + "..."},
		{"rune ends at cut", strings.Repeat("a", logSampleLen-2) + "é" + "tail", strings.Repeat("a", logSampleLen-2) + "é..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeForLog(tt.in)
			if !utf8.ValidString(got) {
				t.Fatalf("invalid UTF-8 in %q", got)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidatorAuditsRejections(t *testing.T) {
	var buf bytes.Buffer
	v := NewValidator(slog.New(slog.NewTextHandler(&buf, nil)))

	if _, err := v.Identifier("users; DROP TABLE users"); err == nil {
		t.Fatal("expected rejection")
	}
	if err := v.CheckText("x' OR 1=1 -- password=secret"); !errors.Is(err, errs.ErrInjectionDetected) {
		t.Fatalf("expected INJECTION_DETECTED, got %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "rejected sql identifier") {
		t.Errorf("identifier rejection not logged: %s", out)
	}
	if !strings.Contains(out, "sql injection signature detected") {
		t.Errorf("signature detection not logged: %s", out)
	}
	if strings.Contains(out, "secret") {
		t.Errorf("logged sample leaked a credential: %s", out)
	}
}
