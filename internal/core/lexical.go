package core

import (
	"regexp"
	"sort"
	"strings"

	"github.com/valter-silva-au/tracerung/pkg/models"
)

var lexicalKeywords = map[string]bool{
	"func": true, "function": true, "def": true, "fn": true, "class": true, "struct": true,
	"interface": true, "type": true, "const": true, "let": true, "var": true, "if": true,
	"else": true, "for": true, "while": true, "return": true, "import": true, "export": true,
	"from": true, "package": true, "async": true, "await": true, "try": true, "catch": true,
	"except": true, "throw": true, "raise": true, "new": true, "this": true, "self": true,
	"super": true, "extends": true, "implements": true, "switch": true, "case": true,
	"default": true, "break": true, "continue": true, "go": true, "defer": true, "range": true,
	"map": true, "chan": true, "select": true, "pub": true, "impl": true, "match": true,
	"with": true, "as": true, "in": true, "not": true, "and": true, "or": true, "nil": true,
	"null": true, "none": true, "true": true, "false": true, "lambda": true, "yield": true,
}

// lexeme matches, in priority order: comments, strings, numbers, words and
// operator runs.
var lexeme = regexp.MustCompile(`(?m)(//[^\n]*|#[^\n]*|/\*(?s:.*?)\*/)|("(?:[^"\\\n]|\\.)*"|'(?:[^'\\\n]|\\.)*'|` + "`[^`]*`" + `)|(\b\d[\d_]*(?:\.\d+)?(?:[eE][+-]?\d+)?\b|\b0[xX][0-9a-fA-F]+\b)|([A-Za-z_][A-Za-z0-9_]*)|([{}()\[\].,;:]|[+\-*/%=<>!&|^?~]+)`)

// LexicalTokens splits code into classified tokens without a grammar. It
// is the fallback when no parser is available for the language.
func LexicalTokens(code string) []models.SyntaxToken {
	var out []models.SyntaxToken
	for _, m := range lexeme.FindAllStringSubmatch(code, -1) {
		switch {
		case m[1] != "":
			out = append(out, models.SyntaxToken{Class: models.TokenComment, Kind: "comment", Text: m[1]})
		case m[2] != "":
			out = append(out, models.SyntaxToken{Class: models.TokenString, Kind: "string", Text: m[2]})
		case m[3] != "":
			out = append(out, models.SyntaxToken{Class: models.TokenNumber, Kind: "number", Text: m[3]})
		case m[4] != "":
			if lexicalKeywords[strings.ToLower(m[4])] {
				out = append(out, models.SyntaxToken{Class: models.TokenKeyword, Kind: m[4], Text: m[4]})
			} else {
				out = append(out, models.SyntaxToken{Class: models.TokenIdentifier, Kind: "identifier", Text: m[4]})
			}
		case m[5] != "":
			out = append(out, models.SyntaxToken{Class: models.TokenOther, Kind: m[5], Text: m[5]})
		}
	}
	return out
}

// functionPatterns capture the function name in group 1 and the parameter
// list in group 2, keyed by language.
var functionPatterns = map[string][]*regexp.Regexp{
	"go": {
		regexp.MustCompile(`(?m)^func\s+(?:\([^)]*\)\s*)?([A-Za-z_][A-Za-z0-9_]*)\s*(?:\[[^\]]*\])?\s*(\([^)]*\))`),
	},
	"rust": {
		regexp.MustCompile(`(?m)^\s*(?:pub(?:\([^)]*\))?\s+)?(?:async\s+)?(?:unsafe\s+)?fn\s+([A-Za-z_][A-Za-z0-9_]*)\s*(?:<[^>]*>)?\s*(\([^)]*\))`),
	},
	"python": {
		regexp.MustCompile(`(?m)^\s*(?:async\s+)?def\s+([A-Za-z_][A-Za-z0-9_]*)\s*(\([^)]*\))`),
	},
	"javascript": {
		regexp.MustCompile(`(?m)^\s*(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s*([A-Za-z_$][A-Za-z0-9_$]*)\s*(\([^)]*\))`),
		regexp.MustCompile(`(?m)^\s*(?:export\s+)?(?:const|let|var)\s+([A-Za-z_$][A-Za-z0-9_$]*)\s*=\s*(?:async\s+)?(\([^)]*\)|[A-Za-z_$][A-Za-z0-9_$]*)\s*=>`),
		regexp.MustCompile(`(?m)^\s+(?:async\s+)?(?:static\s+)?([A-Za-z_$][A-Za-z0-9_$]*)\s*(\([^)]*\))\s*\{`),
	},
}

func init() {
	functionPatterns["typescript"] = functionPatterns["javascript"]
}

var controlWords = map[string]bool{"if": true, "for": true, "while": true, "switch": true, "catch": true, "return": true, "function": true}

// RegexFunctions extracts function declarations with per-language patterns.
// Unsupported languages yield nil.
func RegexFunctions(language, code string) []models.FunctionSignature {
	patterns := functionPatterns[language]
	if len(patterns) == 0 || code == "" {
		return nil
	}
	lineStarts := lineOffsets(code)
	seen := map[string]bool{}
	var out []models.FunctionSignature
	for _, re := range patterns {
		for _, loc := range re.FindAllStringSubmatchIndex(code, -1) {
			name := code[loc[2]:loc[3]]
			if controlWords[name] || seen[name] {
				continue
			}
			seen[name] = true
			params := ""
			if loc[4] >= 0 {
				params = code[loc[4]:loc[5]]
			}
			out = append(out, models.FunctionSignature{
				Name:      name,
				Signature: name + collapseSpace(params),
				StartLine: lineAt(lineStarts, loc[0]),
				EndLine:   lineAt(lineStarts, loc[1]),
			})
		}
	}
	// A declaration extends to the line before the next one.
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartLine < out[j].StartLine })
	last := len(lineStarts)
	for i := range out {
		end := last
		if i+1 < len(out) {
			end = max(out[i+1].StartLine-1, out[i].EndLine)
		}
		out[i].EndLine = max(end, out[i].EndLine)
	}
	return out
}

var importPatterns = map[string][]*regexp.Regexp{
	"go": {
		regexp.MustCompile(`(?m)^import\s+(?:[A-Za-z_.]+\s+)?"([^"]+)"`),
		regexp.MustCompile(`(?m)^\s+(?:[A-Za-z_.]+\s+)?"([^"]+)"\s*$`),
	},
	"python": {
		regexp.MustCompile(`(?m)^\s*import\s+([A-Za-z0-9_.]+)`),
		regexp.MustCompile(`(?m)^\s*from\s+([A-Za-z0-9_.]+)\s+import`),
	},
	"javascript": {
		regexp.MustCompile(`import\s+(?:[^'"]*?\s+from\s+)?['"]([^'"]+)['"]`),
		regexp.MustCompile(`require\(\s*['"]([^'"]+)['"]\s*\)`),
	},
	"rust": {
		regexp.MustCompile(`(?m)^\s*(?:pub\s+)?use\s+([A-Za-z0-9_:]+)`),
		regexp.MustCompile(`(?m)^\s*(?:pub\s+)?mod\s+([A-Za-z0-9_]+)\s*;`),
	},
}

func init() {
	importPatterns["typescript"] = importPatterns["javascript"]
}

// RegexImports extracts imported module paths, deduplicated in order of
// first appearance.
func RegexImports(language, code string) []string {
	var out []string
	seen := map[string]bool{}
	for _, re := range importPatterns[language] {
		for _, m := range re.FindAllStringSubmatch(code, -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				out = append(out, m[1])
			}
		}
	}
	return out
}

func lineOffsets(s string) []int {
	offs := []int{0}
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			offs = append(offs, i+1)
		}
	}
	return offs
}

// lineAt returns the 1-based line containing byte offset off.
func lineAt(offsets []int, off int) int {
	lo, hi := 0, len(offsets)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if offsets[mid] <= off {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo + 1
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
