package core

import (
	"regexp"
	"strings"

	"github.com/valter-silva-au/tracerung/pkg/models"
)

// redactionRule is one category of personally identifying text.
type redactionRule struct {
	category    string
	pattern     *regexp.Regexp
	placeholder string
	accept      func(match string) bool
}

// Rules run in this order: URLs first since they embed hosts, emails and
// paths; names last since placeholders never match them.
var redactionRules = []redactionRule{
	{"url", regexp.MustCompile(`\b[a-zA-Z][a-zA-Z0-9+.\-]*://[^\s<>"'{}|\\^` + "`" + `\[\]]+`), "<URL_REDACTED>", nil},
	{"email", regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`), "<EMAIL_REDACTED>", nil},
	{"jwt", regexp.MustCompile(`\beyJ[A-Za-z0-9_\-]+\.eyJ[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]{20,}`), "<JWT_REDACTED>", nil},
	{"secret", regexp.MustCompile(`\b(?:sk|pk|rk|ghp|gho|ghs|xox[abpr])[-_][A-Za-z0-9_\-]{16,}|\bAKIA[0-9A-Z]{16}\b|\b[A-Za-z0-9+/]{32,}={0,2}`), "<SECRET_REDACTED>", looksLikeSecret},
	{"ssn", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "<SSN_REDACTED>", nil},
	{"credit_card", regexp.MustCompile(`\b\d{4}[ \-]?\d{4}[ \-]?\d{4}[ \-]?\d{4}\b`), "<CARD_REDACTED>", nil},
	{"phone", regexp.MustCompile(`(?:\+?1[\-. ]?)?\(?\b[0-9]{3}\)?[\-. ]?[0-9]{3}[\-. ][0-9]{4}\b`), "<PHONE_REDACTED>", nil},
	{"ip", regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`), "<IP_REDACTED>", nil},
	{"name", regexp.MustCompile(`\b[A-Z][a-z]+(?:[ \t]+[A-Z][a-z]+)+\b`), "<NAME_REDACTED>", looksLikeName},
}

// nameStopwords are capitalized words that commonly start titles and
// sentences rather than names.
var nameStopwords = map[string]bool{
	"add": true, "fix": true, "update": true, "refactor": true, "test": true, "please": true,
	"the": true, "this": true, "that": true, "remove": true, "create": true, "delete": true,
	"implement": true, "make": true, "use": true, "run": true, "write": true, "explain": true,
	"why": true, "what": true, "how": true, "when": true, "where": true, "can": true,
	"could": true, "should": true, "would": true, "let": true, "new": true, "error": true,
	"file": true, "function": true, "class": true, "page": true, "button": true, "login": true,
	"api": true, "user": true, "users": true, "data": true, "type": true, "todo": true,
	"note": true, "readme": true, "build": true, "deploy": true, "review": true,
}

func looksLikeName(match string) bool {
	for _, w := range strings.Fields(match) {
		if nameStopwords[strings.ToLower(w)] {
			return false
		}
	}
	return true
}

// looksLikeSecret accepts only mixed-case alphanumeric runs with digits, so
// long identifiers and slash-separated paths pass through.
func looksLikeSecret(match string) bool {
	if strings.ContainsAny(match, "-_") {
		return true
	}
	var upper, lower, digit bool
	for _, c := range match {
		switch {
		case c >= 'A' && c <= 'Z':
			upper = true
		case c >= 'a' && c <= 'z':
			lower = true
		case c >= '0' && c <= '9':
			digit = true
		}
	}
	return upper && lower && digit && strings.Count(match, "/") < 3
}

// absolutePath matches Unix absolute paths with at least two segments and
// Windows drive paths.
var absolutePath = regexp.MustCompile(`(?:^|[\s"'(=:,])((?:/[A-Za-z0-9._\-@+~]+){2,}/?|[A-Za-z]:\\(?:[A-Za-z0-9._\-@+~ ]+\\)*[A-Za-z0-9._\-@+~]+)`)

// stringLiteral matches single, double and backtick quoted literals.
var stringLiteral = regexp.MustCompile("\"(?:[^\"\\\\\\n]|\\\\.)*\"|'(?:[^'\\\\\\n]|\\\\.)*'|`[^`]*`")

// maxRedactionPasses bounds the fixed-point loop in Redact.
const maxRedactionPasses = 8

// Redactor strips personally identifying substrings from text.
type Redactor interface {
	Redact(text string) string
	RedactPath(p string) string
	RedactCode(code string) string
	WithRoot(root string) Redactor
	Enabled(category string) bool
}

type redactor struct {
	rules   []redactionRule
	paths   bool
	root    string
	enabled map[string]bool
}

// NewRedactor creates a Redactor for the given categories. An empty list
// enables every category.
func NewRedactor(categories []string) Redactor {
	if len(categories) == 0 {
		categories = models.AllRedactionCategories()
	}
	enabled := make(map[string]bool, len(categories))
	for _, c := range categories {
		enabled[strings.ToLower(strings.TrimSpace(c))] = true
	}
	r := &redactor{enabled: enabled, paths: enabled["path"]}
	for _, rule := range redactionRules {
		if enabled[rule.category] {
			r.rules = append(r.rules, rule)
		}
	}
	return r
}

// WithRoot returns a copy that shortens paths relative to root.
func (r *redactor) WithRoot(root string) Redactor {
	cp := *r
	cp.root = normalizeSlashes(strings.TrimRight(root, `/\`))
	return &cp
}

func (r *redactor) Enabled(category string) bool {
	return r.enabled[category]
}

// Redact replaces every active category with its placeholder. The result is
// a fixed point: redacting it again changes nothing.
func (r *redactor) Redact(text string) string {
	if text == "" {
		return text
	}
	out := text
	for i := 0; i < maxRedactionPasses; i++ {
		next := r.pass(out)
		if next == out {
			break
		}
		out = next
	}
	return out
}

func (r *redactor) pass(text string) string {
	for _, rule := range r.rules {
		if rule.accept == nil {
			text = rule.pattern.ReplaceAllString(text, rule.placeholder)
			continue
		}
		accept, placeholder := rule.accept, rule.placeholder
		text = rule.pattern.ReplaceAllStringFunc(text, func(m string) string {
			if accept(m) {
				return placeholder
			}
			return m
		})
	}
	if r.paths {
		text = absolutePath.ReplaceAllStringFunc(text, func(m string) string {
			sub := absolutePath.FindStringSubmatchIndex(m)
			if len(sub) < 4 || sub[2] < 0 {
				return m
			}
			return m[:sub[2]] + r.shorten(m[sub[2]:sub[3]])
		})
	}
	return text
}

// RedactPath shortens an absolute path to its project-relative suffix and
// redacts each remaining segment on its own, so a directory or file named
// after an email or address is replaced while the separators survive.
func (r *redactor) RedactPath(p string) string {
	if p == "" {
		return p
	}
	if r.paths && isAbsolute(p) {
		p = r.shorten(p)
	}
	segs := strings.Split(normalizeSlashes(p), "/")
	for i, seg := range segs {
		if seg != "" {
			segs[i] = r.Redact(seg)
		}
	}
	return strings.Join(segs, "/")
}

// RedactCode applies Redact and then folds every string literal to "<STR>".
func (r *redactor) RedactCode(code string) string {
	if code == "" {
		return code
	}
	return stringLiteral.ReplaceAllString(r.Redact(code), `"<STR>"`)
}

// shorten keeps the part of an absolute path below the workspace root, or
// the trailing two segments when the root is unknown or does not match.
func (r *redactor) shorten(p string) string {
	norm := normalizeSlashes(p)
	if r.root != "" && strings.HasPrefix(norm, r.root+"/") {
		return strings.TrimPrefix(norm, r.root+"/")
	}
	parts := strings.FieldsFunc(norm, func(c rune) bool { return c == '/' })
	if len(parts) > 0 && strings.HasSuffix(parts[0], ":") {
		parts = parts[1:]
	}
	if len(parts) > 2 {
		parts = parts[len(parts)-2:]
	}
	return strings.Join(parts, "/")
}

func isAbsolute(p string) bool {
	if strings.HasPrefix(p, "/") {
		return true
	}
	return len(p) > 2 && p[1] == ':' && (p[2] == '\\' || p[2] == '/')
}

func normalizeSlashes(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}

// RedactTrace returns a copy of trace with every text field redacted. Paths
// are shortened relative to the trace's workspace.
func RedactTrace(r Redactor, trace models.Trace) models.Trace {
	out, _ := RedactTraceReport(r, trace)
	return out
}

// RedactTraceReport is RedactTrace that also reports how many event fields
// the redaction changed. Zero means no pattern matched anywhere in the
// trace's events.
//
// The trace ID keeps a short hash of the original workspace, so sessions of
// two workspaces that shorten to the same suffix stay distinct.
func RedactTraceReport(r Redactor, trace models.Trace) (models.Trace, int) {
	rr := r.WithRoot(trace.WorkspacePath)
	out := trace
	out.WorkspacePath = rr.RedactPath(trace.WorkspacePath)
	out.ID = models.TraceID(redactedWorkspaceKey(out.WorkspacePath, trace.WorkspacePath), trace.SessionID)
	out.Events = make([]models.CanonicalEvent, len(trace.Events))

	changed := 0
	field := func(in string, fn func(string) string) string {
		o := fn(in)
		if o != in {
			changed++
		}
		return o
	}
	for i, e := range trace.Events {
		a := e.Attrs
		a.FilePath = field(a.FilePath, rr.RedactPath)
		a.Diff = field(a.Diff, rr.Redact)
		a.Before = field(a.Before, rr.Redact)
		a.After = field(a.After, rr.Redact)
		a.DiffSummary = field(a.DiffSummary, rr.Redact)
		a.Prompt = field(a.Prompt, rr.Redact)
		a.Command = field(a.Command, rr.Redact)
		if len(a.ContextFiles) > 0 {
			files := make([]string, len(a.ContextFiles))
			for j, f := range a.ContextFiles {
				files[j] = field(f, rr.RedactPath)
			}
			a.ContextFiles = files
		}
		out.Events[i] = models.CanonicalEvent{Symbol: e.Symbol, Timestamp: e.Timestamp, Attrs: a}
	}
	return out, changed
}

func redactedWorkspaceKey(redacted, original string) string {
	if original == "" {
		return redacted
	}
	return redacted + "@" + HashKey(original)[:8]
}
