package core

// Sequitur builds a hierarchical grammar over a symbol stream in one pass,
// maintaining two constraints: no digram appears twice (digram uniqueness),
// and every rule is used more than once (rule utility).

const (
	guardValue       int64 = -1
	nonTerminalShift int64 = 1 << 40
)

type grammarSymbol struct {
	prev, next *grammarSymbol
	value      int64
	rule       *grammarRule // referenced rule for non-terminals, owner for guards
	guard      bool
}

type grammarRule struct {
	id    int
	guard *grammarSymbol
	count int
}

func (r *grammarRule) first() *grammarSymbol { return r.guard.next }
func (r *grammarRule) last() *grammarSymbol  { return r.guard.prev }

type digramKey [2]int64

type grammar struct {
	digrams map[digramKey]*grammarSymbol
	start   *grammarRule
	nextID  int
}

func newGrammar() *grammar {
	g := &grammar{digrams: make(map[digramKey]*grammarSymbol)}
	g.start = g.newRule()
	return g
}

func (g *grammar) newRule() *grammarRule {
	r := &grammarRule{id: g.nextID}
	g.nextID++
	gs := &grammarSymbol{value: guardValue, rule: r, guard: true}
	gs.prev, gs.next = gs, gs
	r.guard = gs
	return r
}

func (g *grammar) nonTerminal(r *grammarRule) *grammarSymbol {
	r.count++
	return &grammarSymbol{value: nonTerminalShift + int64(r.id), rule: r}
}

func (s *grammarSymbol) isNonTerminal() bool {
	return !s.guard && s.rule != nil
}

func key(s *grammarSymbol) digramKey {
	return digramKey{s.value, s.next.value}
}

func (g *grammar) join(left, right *grammarSymbol) {
	if left.next != nil {
		g.deleteDigram(left)
		// Overlapping triples such as "aaa" keep their surviving digram.
		if right.prev != nil && right.next != nil &&
			right.value == right.prev.value && right.value == right.next.value {
			g.digrams[key(right)] = right
		}
		if left.prev != nil && left.next != nil &&
			left.value == left.next.value && left.value == left.prev.value {
			g.digrams[key(left.prev)] = left.prev
		}
	}
	left.next = right
	right.prev = left
}

func (g *grammar) insertAfter(s, toInsert *grammarSymbol) {
	g.join(toInsert, s.next)
	g.join(s, toInsert)
}

func (g *grammar) deleteDigram(s *grammarSymbol) {
	if s.guard || s.next.guard {
		return
	}
	k := key(s)
	if g.digrams[k] == s {
		delete(g.digrams, k)
	}
}

// check enforces digram uniqueness for the digram starting at s. It
// reports whether the digram was already known.
func (g *grammar) check(s *grammarSymbol) bool {
	if s.guard || s.next.guard {
		return false
	}
	k := key(s)
	found, ok := g.digrams[k]
	if !ok {
		g.digrams[k] = s
		return false
	}
	if found.next != s {
		g.match(s, found)
	}
	return true
}

func (g *grammar) cleanUp(s *grammarSymbol) {
	g.join(s.prev, s.next)
	if s.guard {
		return
	}
	g.deleteDigram(s)
	if s.isNonTerminal() {
		s.rule.count--
	}
}

func (g *grammar) substitute(s *grammarSymbol, r *grammarRule) {
	prev := s.prev
	g.cleanUp(s)
	g.cleanUp(prev.next)
	g.insertAfter(prev, g.nonTerminal(r))
	if !g.check(prev) {
		g.check(prev.next)
	}
}

func (g *grammar) copySymbol(s *grammarSymbol) *grammarSymbol {
	if s.isNonTerminal() {
		return g.nonTerminal(s.rule)
	}
	return &grammarSymbol{value: s.value}
}

func (g *grammar) match(newDigram, matching *grammarSymbol) {
	var r *grammarRule
	if matching.prev.guard && matching.next.next.guard && matching.prev.rule != g.start {
		r = matching.prev.rule
		g.substitute(newDigram, r)
	} else {
		r = g.newRule()
		first := g.copySymbol(newDigram)
		second := g.copySymbol(newDigram.next)
		r.guard.next = first
		first.prev = r.guard
		first.next = second
		second.prev = first
		second.next = r.guard
		r.guard.prev = second
		g.substitute(matching, r)
		g.substitute(newDigram, r)
		g.digrams[key(first)] = first
	}
	if f := r.first(); f.isNonTerminal() && f.rule.count == 1 {
		g.expand(f)
	}
}

// expand inlines a non-terminal whose rule is referenced only once.
func (g *grammar) expand(s *grammarSymbol) {
	left, right := s.prev, s.next
	first, last := s.rule.first(), s.rule.last()
	g.deleteDigram(s)
	g.join(left, first)
	g.join(last, right)
	g.digrams[key(last)] = last
	s.rule.guard = nil
}

// push appends one terminal to the start rule.
func (g *grammar) push(value int64) {
	g.insertAfter(g.start.last(), &grammarSymbol{value: value})
	g.check(g.start.last().prev)
}

// rules returns every live rule reachable from the start rule, excluding
// the start rule itself, in order of first reference.
func (g *grammar) rules() []*grammarRule {
	var out []*grammarRule
	seen := map[*grammarRule]bool{g.start: true}
	queue := []*grammarRule{g.start}
	for len(queue) > 0 {
		r := queue[0]
		queue = queue[1:]
		for s := r.first(); !s.guard; s = s.next {
			if s.isNonTerminal() && !seen[s.rule] {
				seen[s.rule] = true
				out = append(out, s.rule)
				queue = append(queue, s.rule)
			}
		}
	}
	return out
}

// expansion returns the terminal values a rule derives.
func (g *grammar) expansion(r *grammarRule, memo map[*grammarRule][]int64) []int64 {
	if e, ok := memo[r]; ok {
		return e
	}
	var out []int64
	for s := r.first(); !s.guard; s = s.next {
		if s.isNonTerminal() {
			out = append(out, g.expansion(s.rule, memo)...)
		} else {
			out = append(out, s.value)
		}
	}
	memo[r] = out
	return out
}

// GrammarRule is one promoted Sequitur rule.
type GrammarRule struct {
	Expansion []string
	Uses      int
}

// InferGrammar runs Sequitur over the concatenation of sequences, separated
// by symbols unique to each sequence so that no rule spans two of them. It
// returns the expansion of every rule with its reference count. stop is
// polled between sequences; when it returns true the grammar built so far is
// used and complete is false.
func InferGrammar(sequences [][]string, stop func() bool) (rules []GrammarRule, complete bool) {
	g := newGrammar()
	alphabet := map[string]int64{}
	var names []string
	complete = true

	next := int64(0)
	for _, seq := range sequences {
		for _, sym := range seq {
			id, ok := alphabet[sym]
			if !ok {
				id = next
				next++
				alphabet[sym] = id
				names = append(names, sym)
			}
		}
	}
	separator := next
	for i, seq := range sequences {
		if stop != nil && stop() {
			complete = false
			break
		}
		for _, sym := range seq {
			g.push(alphabet[sym])
		}
		g.push(separator + int64(i))
	}

	memo := map[*grammarRule][]int64{}
	for _, r := range g.rules() {
		exp := g.expansion(r, memo)
		out := make([]string, 0, len(exp))
		for _, v := range exp {
			if v < separator {
				out = append(out, names[v])
			}
		}
		rules = append(rules, GrammarRule{Expansion: out, Uses: r.count})
	}
	return rules, complete
}
