package core

import (
	"fmt"
	"path"
	"strings"

	"github.com/valter-silva-au/tracerung/pkg/models"
)

// encodeTokens emits one token line per event: the intent marker for
// prompts, the event symbol, then the event's code tokens with identifiers
// folded to per-event positional placeholders.
func (c *rungChain) encodeTokens(limit int) draft {
	var d draft
	var lines []string
	var weights []int
	var keys []string

	for _, ev := range c.trace.Events {
		if c.ctx.Err() != nil {
			d.degrade(models.RungTokens, "event_symbol", "cancelled")
			break
		}
		a := ev.Attrs
		if a.Kind == models.KindPrompt && !c.opts.IncludePrompts {
			continue
		}

		toks := make([]string, 0, 8)
		if a.Kind == models.KindPrompt {
			toks = append(toks, "INTENT_"+strings.ToUpper(intentOf(a)))
		}
		toks = append(toks, ev.Symbol)

		switch {
		case a.Kind == models.KindTerminal && a.Command != "":
			toks = append(toks, commandToken(a.Command))
		case a.HasCode():
			code := codeOf(a)
			syntax, unit := c.enc.tokensFor(c.ctx, a.Language, code)
			if unit == "lexical" && a.Language != "" {
				d.degrade(models.RungTokens, "lexical", fmt.Sprintf("no parse for %s", a.Language))
			}
			toks = append(toks, foldTokens(syntax, c.enc.cfg.MaxTokensPerEvent)...)
		}

		lines = append(lines, strings.Join(toks, " "))
		weights = append(weights, len(toks))
		keys = append(keys, seqKey(a.Seq))
	}

	kept, truncated := keepTop(weights, keys, limit)
	d.rep.Tokens = pick(lines, kept)
	d.truncated = truncated
	return d
}

// foldTokens maps syntax tokens to their placeholder form. The same
// identifier within one event folds to the same placeholder.
func foldTokens(toks []models.SyntaxToken, limit int) []string {
	ids := map[string]string{}
	out := make([]string, 0, min(len(toks), limit))
	for _, t := range toks {
		if len(out) >= limit {
			break
		}
		switch t.Class {
		case models.TokenComment:
			continue
		case models.TokenIdentifier:
			ph, ok := ids[t.Text]
			if !ok {
				ph = fmt.Sprintf("ID_%03d", len(ids)+1)
				ids[t.Text] = ph
			}
			out = append(out, ph)
		case models.TokenString:
			out = append(out, "STR")
		case models.TokenNumber:
			out = append(out, "NUM")
		case models.TokenKeyword:
			out = append(out, strings.ToUpper(t.Text))
		default:
			text := strings.TrimSpace(t.Text)
			if text == "" {
				continue
			}
			out = append(out, text)
		}
	}
	return out
}

// commandToken reduces a terminal command to its program name.
func commandToken(cmd string) string {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return "CMD"
	}
	prog := path.Base(strings.ReplaceAll(fields[0], `\`, "/"))
	return "CMD_" + strings.ToUpper(prog)
}
