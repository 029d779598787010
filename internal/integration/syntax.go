package integration

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/valter-silva-au/tracerung/pkg/models"
)

// SyntaxAnalyzer parses code fragments with tree-sitter. It satisfies
// core.SyntaxAnalyzer.
type SyntaxAnalyzer interface {
	Tokens(ctx context.Context, language, code string) ([]models.SyntaxToken, bool)
	Functions(ctx context.Context, language, code string) ([]models.FunctionSignature, bool)
	Imports(ctx context.Context, language, code string) ([]string, bool)
	Supports(language string) bool
}

// treeSitterAnalyzer implements SyntaxAnalyzer. A parser is created per
// call since sitter.Parser is not safe for concurrent use.
type treeSitterAnalyzer struct {
	languages map[string]*sitter.Language
}

// NewSyntaxAnalyzer creates a tree-sitter SyntaxAnalyzer for go, python,
// javascript, typescript and rust.
func NewSyntaxAnalyzer() SyntaxAnalyzer {
	return &treeSitterAnalyzer{
		languages: map[string]*sitter.Language{
			"go":         golang.GetLanguage(),
			"python":     python.GetLanguage(),
			"javascript": javascript.GetLanguage(),
			"typescript": typescript.GetLanguage(),
			"rust":       rust.GetLanguage(),
		},
	}
}

func (a *treeSitterAnalyzer) Supports(language string) bool {
	_, ok := a.languages[language]
	return ok
}

func (a *treeSitterAnalyzer) parse(ctx context.Context, language, code string) (*sitter.Tree, []byte, bool) {
	lang, ok := a.languages[language]
	if !ok || strings.TrimSpace(code) == "" {
		return nil, nil, false
	}
	src := []byte(code)
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil || tree == nil {
		return nil, nil, false
	}
	return tree, src, true
}

var stringNodes = map[string]bool{
	"interpreted_string_literal": true, "raw_string_literal": true, "rune_literal": true,
	"string": true, "template_string": true, "string_literal": true, "char_literal": true,
	"raw_string": true, "concatenated_string": true,
}

var numberNodes = map[string]bool{
	"int_literal": true, "float_literal": true, "imaginary_literal": true,
	"number": true, "integer": true, "float": true, "integer_literal": true,
}

var identifierNodes = map[string]bool{
	"identifier": true, "field_identifier": true, "type_identifier": true,
	"property_identifier": true, "package_identifier": true,
	"shorthand_property_identifier": true, "shorthand_property_identifier_pattern": true,
	"label_name": true, "private_property_identifier": true,
}

// Tokens returns the leaf tokens of code in source order. String and
// comment nodes are emitted whole.
func (a *treeSitterAnalyzer) Tokens(ctx context.Context, language, code string) ([]models.SyntaxToken, bool) {
	tree, src, ok := a.parse(ctx, language, code)
	if !ok {
		return nil, false
	}
	defer tree.Close()
	root := tree.RootNode()
	if root.Type() == "ERROR" {
		return nil, false
	}

	var out []models.SyntaxToken
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		t := n.Type()
		switch {
		case strings.Contains(t, "comment"):
			out = append(out, models.SyntaxToken{Class: models.TokenComment, Kind: t, Text: n.Content(src)})
			return
		case stringNodes[t]:
			out = append(out, models.SyntaxToken{Class: models.TokenString, Kind: t, Text: n.Content(src)})
			return
		case numberNodes[t]:
			out = append(out, models.SyntaxToken{Class: models.TokenNumber, Kind: t, Text: n.Content(src)})
			return
		}
		if n.ChildCount() == 0 {
			out = append(out, leafToken(n, src))
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
	return out, true
}

func leafToken(n *sitter.Node, src []byte) models.SyntaxToken {
	t := n.Type()
	text := n.Content(src)
	switch {
	case identifierNodes[t]:
		return models.SyntaxToken{Class: models.TokenIdentifier, Kind: t, Text: text}
	case isWord(t):
		return models.SyntaxToken{Class: models.TokenKeyword, Kind: t, Text: text}
	}
	return models.SyntaxToken{Class: models.TokenOther, Kind: t, Text: text}
}

func isWord(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') && c != '_' {
			return false
		}
	}
	return true
}

var functionNodes = map[string]bool{
	"function_declaration": true, "method_declaration": true, "function_definition": true,
	"method_definition": true, "function_item": true, "generator_function_declaration": true,
}

// Functions returns the declared functions and methods in code. Arrow
// functions bound to a variable are named after the variable.
func (a *treeSitterAnalyzer) Functions(ctx context.Context, language, code string) ([]models.FunctionSignature, bool) {
	tree, src, ok := a.parse(ctx, language, code)
	if !ok {
		return nil, false
	}
	defer tree.Close()
	root := tree.RootNode()

	var out []models.FunctionSignature
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		t := n.Type()
		if functionNodes[t] {
			if sig, ok := signatureOf(n, n.ChildByFieldName("name"), src); ok {
				out = append(out, sig)
			}
		}
		if t == "variable_declarator" {
			value := n.ChildByFieldName("value")
			if value != nil && (value.Type() == "arrow_function" || value.Type() == "function" || value.Type() == "function_expression") {
				if sig, ok := signatureOf(value, n.ChildByFieldName("name"), src); ok {
					out = append(out, sig)
				}
			}
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(root)

	if len(out) == 0 && root.HasError() {
		return nil, false
	}
	return out, true
}

func signatureOf(fn, name *sitter.Node, src []byte) (models.FunctionSignature, bool) {
	if name == nil {
		return models.FunctionSignature{}, false
	}
	sig := name.Content(src)
	if params := fn.ChildByFieldName("parameters"); params != nil {
		sig += collapse(params.Content(src))
	} else if param := fn.ChildByFieldName("parameter"); param != nil {
		sig += "(" + collapse(param.Content(src)) + ")"
	}
	if result := fn.ChildByFieldName("result"); result != nil {
		sig += " " + collapse(result.Content(src))
	} else if rt := fn.ChildByFieldName("return_type"); rt != nil {
		sig += " " + strings.TrimSpace(strings.TrimPrefix(collapse(rt.Content(src)), ":"))
	}
	return models.FunctionSignature{
		Name:      name.Content(src),
		Signature: sig,
		StartLine: int(fn.StartPoint().Row) + 1,
		EndLine:   int(fn.EndPoint().Row) + 1,
	}, true
}

// Imports returns the module paths imported by code, in order of first
// appearance.
func (a *treeSitterAnalyzer) Imports(ctx context.Context, language, code string) ([]string, bool) {
	tree, src, ok := a.parse(ctx, language, code)
	if !ok {
		return nil, false
	}
	defer tree.Close()

	seen := map[string]bool{}
	var out []string
	add := func(s string) {
		s = strings.Trim(strings.TrimSpace(s), "\"'`")
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "import_spec":
			if p := n.ChildByFieldName("path"); p != nil {
				add(p.Content(src))
			}
			return
		case "import_statement":
			if s := n.ChildByFieldName("source"); s != nil {
				add(s.Content(src))
				return
			}
			for i := 0; i < int(n.NamedChildCount()); i++ {
				c := n.NamedChild(i)
				switch c.Type() {
				case "dotted_name":
					add(c.Content(src))
				case "aliased_import":
					if nm := c.ChildByFieldName("name"); nm != nil {
						add(nm.Content(src))
					}
				}
			}
			return
		case "import_from_statement":
			if m := n.ChildByFieldName("module_name"); m != nil {
				add(m.Content(src))
			}
			return
		case "use_declaration":
			if arg := n.ChildByFieldName("argument"); arg != nil {
				add(arg.Content(src))
			}
			return
		case "call_expression":
			fn := n.ChildByFieldName("function")
			args := n.ChildByFieldName("arguments")
			if fn != nil && args != nil && fn.Content(src) == "require" && args.NamedChildCount() > 0 {
				add(args.NamedChild(0).Content(src))
			}
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(tree.RootNode())
	return out, true
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
