package core

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestInferGrammar_RepeatedDigram(t *testing.T) {
	rules, complete := InferGrammar([][]string{{"a", "b", "a", "b"}}, nil)
	if !complete {
		t.Fatal("grammar incomplete without a stop function")
	}
	want := []GrammarRule{{Expansion: []string{"a", "b"}, Uses: 2}}
	if diff := cmp.Diff(want, rules); diff != "" {
		t.Errorf("rules mismatch (-want +got):\n%s", diff)
	}
}

func TestInferGrammar_AcrossSequences(t *testing.T) {
	rules, _ := InferGrammar([][]string{{"x", "y"}, {"x", "y"}}, nil)
	want := []GrammarRule{{Expansion: []string{"x", "y"}, Uses: 2}}
	if diff := cmp.Diff(want, rules); diff != "" {
		t.Errorf("rules mismatch (-want +got):\n%s", diff)
	}
}

func TestInferGrammar_NoRepeats(t *testing.T) {
	rules, _ := InferGrammar([][]string{{"a", "b", "c"}, {"d"}}, nil)
	if len(rules) != 0 {
		t.Errorf("rules = %+v, want none", rules)
	}
}

func TestInferGrammar_ExpansionsReconstructRepeats(t *testing.T) {
	seq := []string{"o", "e", "t", "o", "e", "t", "o", "e", "t"}
	rules, _ := InferGrammar([][]string{seq}, nil)
	if len(rules) == 0 {
		t.Fatal("expected rules for a repeated run")
	}
	for _, r := range rules {
		if len(r.Expansion) < 2 {
			t.Errorf("rule %+v expands to fewer than two symbols", r)
		}
		if n, _ := countRuns(seq, r.Expansion); n < 2 {
			t.Errorf("rule %v occurs %d times, want at least 2", r.Expansion, n)
		}
	}
}

func TestInferGrammar_StopImmediately(t *testing.T) {
	rules, complete := InferGrammar([][]string{{"a", "b", "a", "b"}}, func() bool { return true })
	if complete || len(rules) != 0 {
		t.Errorf("rules = %+v, complete = %v", rules, complete)
	}
}
