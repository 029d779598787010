package core

import (
	"regexp"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

var redactionFragments = []string{
	"alice@example.com", "https://example.com/x?y=1", "/home/bob/src/app/main.go",
	"192.168.1.20", "Alice Johnson", "123-45-6789", "4111-1111-1111-1111",
	"555-867-5309", "sk-ABCDEFGHIJKLMNOPqrstu", "fix", "the", "bug", "in", "handler",
	`C:\Users\bob\proj\x.ts`, "<EMAIL_REDACTED>", "42", "foo_bar", "\n",
}

// Feature: tracerung, Property: Redaction Idempotence
// Redacting already-redacted text changes nothing.
func TestProperty_RedactionIdempotent(t *testing.T) {
	r := NewRedactor(nil)
	rapid.Check(t, func(rt *rapid.T) {
		parts := rapid.SliceOfN(rapid.SampledFrom(redactionFragments), 0, 12).Draw(rt, "parts")
		text := strings.Join(parts, " ")
		once := r.Redact(text)
		if twice := r.Redact(once); twice != once {
			rt.Fatalf("not idempotent:\n in: %q\n once: %q\n twice: %q", text, once, twice)
		}
	})
}

// Feature: tracerung, Property: Redaction Idempotence On Arbitrary Text
func TestProperty_RedactionIdempotentArbitrary(t *testing.T) {
	r := NewRedactor(nil)
	rapid.Check(t, func(rt *rapid.T) {
		text := rapid.String().Draw(rt, "text")
		once := r.Redact(text)
		if twice := r.Redact(once); twice != once {
			rt.Fatalf("not idempotent: %q -> %q -> %q", text, once, twice)
		}
	})
}

// Feature: tracerung, Property: Redaction Determinism
func TestProperty_RedactionDeterministic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		parts := rapid.SliceOfN(rapid.SampledFrom(redactionFragments), 0, 12).Draw(rt, "parts")
		text := strings.Join(parts, " ")
		if a, b := NewRedactor(nil).Redact(text), NewRedactor(nil).Redact(text); a != b {
			rt.Fatalf("two redactors disagree: %q vs %q", a, b)
		}
	})
}

var pathSegments = []string{
	"home", "dev", "src", "main.go", "notes.md", "alice@example.com",
	"jane.doe@corp.io.md", "192.168.1.20", "10.0.0.7", "v1.2.3", "a-b_c",
}

// Feature: tracerung, Property: Redacted Paths Carry No Contact Details
// No email address or IP address survives RedactPath in any segment.
func TestProperty_RedactedPathHasNoEmailOrIP(t *testing.T) {
	r := NewRedactor(nil).WithRoot("/home/dev")
	email, ip := ruleFor(t, "email"), ruleFor(t, "ip")
	rapid.Check(t, func(rt *rapid.T) {
		segs := rapid.SliceOfN(rapid.SampledFrom(pathSegments), 1, 6).Draw(rt, "segments")
		p := strings.Join(segs, "/")
		if rapid.Bool().Draw(rt, "absolute") {
			p = "/" + p
		}
		got := r.RedactPath(p)
		if m := email.FindString(got); m != "" {
			rt.Fatalf("RedactPath(%q) = %q keeps email %q", p, got, m)
		}
		if m := ip.FindString(got); m != "" {
			rt.Fatalf("RedactPath(%q) = %q keeps address %q", p, got, m)
		}
	})
}

func ruleFor(t *testing.T, category string) *regexp.Regexp {
	t.Helper()
	for _, rule := range redactionRules {
		if rule.category == category {
			return rule.pattern
		}
	}
	t.Fatalf("no %s rule", category)
	return nil
}
