package core

import (
	"regexp"
	"strings"

	"github.com/valter-silva-au/tracerung/pkg/models"
)

// IntentUnknown is the reserved label for empty or code-only prompts.
const IntentUnknown = "unknown"

// Intent is the classification of one prompt.
type Intent struct {
	Label string   `json:"label"`
	Path  []string `json:"path"`
	Score int      `json:"score"`
}

// specificIntent is a leaf of the hierarchy selected by its own keywords.
type specificIntent struct {
	name     string
	keywords *regexp.Regexp
}

// intentCategory is one flat label with its keyword scorer and hierarchy.
type intentCategory struct {
	label     string
	general   string
	keywords  *regexp.Regexp
	specifics []specificIntent
	fallback  string
}

func words(ws ...string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(ws, "|") + `)`)
}

// intentCategories is ordered; earlier categories win ties.
var intentCategories = []intentCategory{
	{
		label: "debugging", general: "fix",
		keywords: words("fix", "bug", "error", "exception", "crash", "fail", "broken", "debug", "issue", "traceback", "panic", "not working", "doesn't work", "wrong"),
		specifics: []specificIntent{
			{"fix_crash", words("crash", "panic", "segfault", "nil pointer", "null pointer")},
			{"fix_failing_test", words("failing test", "test fail", "tests fail")},
			{"fix_error", words("error", "exception", "traceback")},
		},
		fallback: "investigate_bug",
	},
	{
		label: "refactoring", general: "modify",
		keywords: words("refactor", "clean", "simplify", "restructure", "rename", "extract", "reorganize", "dedup", "move", "split"),
		specifics: []specificIntent{
			{"extract_function", words("extract")},
			{"rename", words("rename")},
			{"simplify", words("simplify", "clean")},
			{"split_module", words("split", "move")},
		},
		fallback: "restructure",
	},
	{
		label: "testing", general: "verify",
		keywords: words("test", "spec", "coverage", "assert", "mock", "unit test", "e2e"),
		specifics: []specificIntent{
			{"add_integration_test", words("integration", "e2e", "end-to-end")},
			{"improve_coverage", words("coverage")},
			{"add_unit_test", words("unit")},
		},
		fallback: "write_tests",
	},
	{
		label: "feature", general: "create",
		keywords: words("add", "implement", "create", "build", "new", "feature", "support", "introduce", "generate"),
		specifics: []specificIntent{
			{"add_api", words("endpoint", "api", "route", "handler")},
			{"add_ui", words("component", "page", "button", "ui", "view", "form")},
			{"add_function", words("function", "method", "helper")},
		},
		fallback: "implement_feature",
	},
	{
		label: "documentation", general: "communicate",
		keywords: words("document", "docs", "readme", "comment", "docstring", "changelog"),
		specifics: []specificIntent{
			{"update_readme", words("readme")},
			{"write_docstring", words("docstring", "comment")},
		},
		fallback: "write_docs",
	},
	{
		label: "explanation", general: "understand",
		keywords: words("explain", "what does", "why", "how does", "understand", "meaning", "difference"),
		specifics: []specificIntent{
			{"compare", words("difference", "compare", "versus", "vs")},
		},
		fallback: "explain_code",
	},
	{
		label: "navigation", general: "understand",
		keywords: words("where is", "find", "locate", "show me", "open", "navigate", "search", "look for"),
		specifics: []specificIntent{
			{"locate_definition", words("definition", "defined", "declaration")},
		},
		fallback: "locate_code",
	},
	{
		label: "configuration", general: "setup",
		keywords: words("config", "setup", "set up", "install", "dependency", "dependencies", "environment", "env", "settings", "webpack", "makefile"),
		specifics: []specificIntent{
			{"install_dependency", words("install", "dependency", "dependencies", "package")},
			{"configure_build", words("build", "webpack", "makefile", "compile")},
			{"configure_environment", words("env", "environment")},
		},
		fallback: "configure",
	},
	{
		label: "deployment", general: "ship",
		keywords: words("deploy", "release", "publish", "ship", "ci", "pipeline", "docker", "kubernetes", "k8s"),
		specifics: []specificIntent{
			{"containerize", words("docker", "kubernetes", "k8s", "container")},
			{"setup_ci", words("ci", "pipeline", "workflow")},
		},
		fallback: "deploy_release",
	},
	{
		label: "review", general: "verify",
		keywords: words("review", "audit", "check", "optimi[sz]e", "performance", "security", "vulnerab", "improve"),
		specifics: []specificIntent{
			{"security_review", words("security", "vulnerab", "audit")},
			{"performance_review", words("performance", "optimi[sz]e", "slow", "fast")},
		},
		fallback: "code_review",
	},
}

var (
	codeFence      = regexp.MustCompile("(?s)```.*?```")
	stackTrace     = regexp.MustCompile(`(?m)(Traceback \(most recent call last\)|^\s+at \S+:\d+|panic: |goroutine \d+ \[|Exception in thread)`)
	questionOpener = regexp.MustCompile(`(?i)^\s*(what|why|how|when|where|which|can you explain)\b`)
	naturalWord    = regexp.MustCompile(`\b[A-Za-z]{2,}\b`)
	codeLine       = regexp.MustCompile(`[{};=()\[\]<>]|^\s*(func|def|class|import|package|return|const|let|var|if|for)\b`)
)

// IntentExtractor classifies prompt text into flat and hierarchical
// intents. It is local and deterministic.
type IntentExtractor interface {
	Extract(prompt string) Intent
	FromEvent(attrs models.Attrs) Intent
}

type intentExtractor struct{}

// NewIntentExtractor creates the keyword-scoring IntentExtractor.
func NewIntentExtractor() IntentExtractor {
	return &intentExtractor{}
}

func unknownIntent() Intent {
	return Intent{Label: IntentUnknown, Path: []string{IntentUnknown}}
}

// Extract scores each category over the prose of prompt. Code blocks do not
// contribute; a prompt with no prose is unknown.
func (x *intentExtractor) Extract(prompt string) Intent {
	prose := proseOf(prompt)
	if prose == "" {
		return unknownIntent()
	}

	scores := make([]int, len(intentCategories))
	for i, cat := range intentCategories {
		scores[i] = len(cat.keywords.FindAllStringIndex(prose, -1))
	}
	if stackTrace.MatchString(prompt) {
		scores[0] += 2
	}
	if questionOpener.MatchString(prose) || strings.HasSuffix(strings.TrimSpace(prose), "?") {
		scores[indexOfCategory("explanation")]++
	}

	best := -1
	for i, s := range scores {
		if s > 0 && (best < 0 || s > scores[best]) {
			best = i
		}
	}
	if best < 0 {
		return unknownIntent()
	}

	cat := intentCategories[best]
	specific := cat.fallback
	for _, sp := range cat.specifics {
		if sp.keywords.MatchString(prose) {
			specific = sp.name
			break
		}
	}
	return Intent{
		Label: cat.label,
		Path:  []string{cat.general, cat.label, specific},
		Score: scores[best],
	}
}

// proseOf strips fenced code and code-looking lines, returning what remains
// if it contains any natural-language words.
func proseOf(prompt string) string {
	text := codeFence.ReplaceAllString(prompt, " ")
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if codeLine.MatchString(trimmed) && len(naturalWord.FindAllString(trimmed, -1)) < 4 {
			continue
		}
		kept = append(kept, trimmed)
	}
	prose := strings.Join(kept, " ")
	if len(naturalWord.FindAllString(prose, -1)) == 0 {
		return ""
	}
	return prose
}

func indexOfCategory(label string) int {
	for i, c := range intentCategories {
		if c.label == label {
			return i
		}
	}
	return 0
}

var (
	testPath   = regexp.MustCompile(`(?i)(_test\.|\.test\.|\.spec\.|(^|/)tests?/|test_[^/]*\.py$)`)
	docPath    = regexp.MustCompile(`(?i)(\.md$|\.rst$|\.txt$|(^|/)docs?/)`)
	configPath = regexp.MustCompile(`(?i)(\.ya?ml$|\.toml$|\.ini$|\.env|(^|/)(package\.json|go\.mod|makefile|dockerfile|tsconfig\.json|webpack\.config\.[jt]s)$)`)
	deployPath = regexp.MustCompile(`(?i)((^|/)\.github/workflows/|(^|/)(deploy|k8s|helm|terraform)/)`)
)

// FromEvent derives an intent for an event that carries no prompt, using its
// file path, diff summary and line counts.
func (x *intentExtractor) FromEvent(a models.Attrs) Intent {
	if a.Prompt != "" {
		return x.Extract(a.Prompt)
	}
	p := a.FilePath
	switch {
	case p != "" && testPath.MatchString(p):
		return Intent{Label: "testing", Path: []string{"verify", "testing", "write_tests"}, Score: 1}
	case p != "" && deployPath.MatchString(p):
		return Intent{Label: "deployment", Path: []string{"ship", "deployment", "setup_ci"}, Score: 1}
	case p != "" && configPath.MatchString(p):
		return Intent{Label: "configuration", Path: []string{"setup", "configuration", "configure"}, Score: 1}
	case p != "" && docPath.MatchString(p):
		return Intent{Label: "documentation", Path: []string{"communicate", "documentation", "write_docs"}, Score: 1}
	}
	if a.DiffSummary != "" {
		if in := x.Extract(a.DiffSummary); in.Label != IntentUnknown {
			return in
		}
	}
	switch {
	case a.LinesAdded > 0 && a.LinesRemoved == 0:
		return Intent{Label: "feature", Path: []string{"create", "feature", "implement_feature"}}
	case a.LinesRemoved > 0 && a.LinesAdded == 0:
		return Intent{Label: "refactoring", Path: []string{"modify", "refactoring", "restructure"}}
	}
	return unknownIntent()
}

// AnnotateIntents returns a copy of trace with intents set on every event.
// Prompts are classified from their text; other events inherit the intent
// of the most recent prompt in the session, falling back to FromEvent.
// With usePrompts false, prompt text is ignored and every intent comes from
// FromEvent.
func AnnotateIntents(x IntentExtractor, trace models.Trace, usePrompts bool) models.Trace {
	out := trace
	out.Events = make([]models.CanonicalEvent, len(trace.Events))
	var current *Intent
	for i, e := range trace.Events {
		a := e.Attrs
		var in Intent
		switch {
		case a.Kind == models.KindPrompt && !usePrompts:
			in = unknownIntent()
		case a.Kind == models.KindPrompt:
			in = x.Extract(a.Prompt)
			if in.Label != IntentUnknown {
				c := in
				current = &c
			}
		case current != nil:
			in = *current
		default:
			in = x.FromEvent(a)
		}
		a.Intent = in.Label
		a.IntentPath = append([]string(nil), in.Path...)
		out.Events[i] = models.CanonicalEvent{Symbol: e.Symbol, Timestamp: e.Timestamp, Attrs: a}
	}
	return out
}
