package core

import (
	"context"
	"crypto/sha1" //nolint:gosec // G505: pattern IDs are identifiers
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/valter-silva-au/tracerung/pkg/models"
)

// minMotifLength is the shortest pattern reported by frequent-subsequence
// mining. Single symbols carry no workflow order.
const minMotifLength = 2

// MotifID returns the stable identifier of a pattern.
func MotifID(pattern []string) string {
	sum := sha1.Sum([]byte(strings.Join(pattern, " "))) //nolint:gosec // see import
	return "M_" + hex.EncodeToString(sum[:])[:10]
}

// MineOptions configures one mining run.
type MineOptions struct {
	models.MiningConfig
	Budget time.Duration
}

// MiningResult is the outcome of one mining run. Warnings never include a
// failure; an undersized corpus yields an empty catalog and a warning.
type MiningResult struct {
	Motifs   []models.Motif
	Complete bool
	Warnings []error
}

// MotifMiner discovers recurring subsequences in a corpus of symbol
// sequences.
type MotifMiner interface {
	Mine(ctx context.Context, sequences [][]string, opts MineOptions) MiningResult
}

type motifMiner struct {
	logger *zap.Logger
}

// NewMotifMiner creates a MotifMiner combining PrefixSpan with Sequitur.
func NewMotifMiner(logger *zap.Logger) MotifMiner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &motifMiner{logger: logger}
}

// Mine runs frequent-subsequence mining and grammar compression over a
// private copy of sequences and merges both into one catalog.
func (m *motifMiner) Mine(ctx context.Context, sequences [][]string, opts MineOptions) MiningResult {
	corpus := snapshotSequences(sequences)
	if opts.MinSupport < 1 {
		opts.MinSupport = 1
	}
	if opts.MaxPatternLength < minMotifLength {
		opts.MaxPatternLength = minMotifLength
	}

	nonEmpty := 0
	for _, s := range corpus {
		if len(s) > 0 {
			nonEmpty++
		}
	}
	if nonEmpty < opts.MinTraces || nonEmpty < opts.MinSupport {
		need := max(opts.MinTraces, opts.MinSupport)
		m.logger.Debug("corpus too small to mine", zap.Int("have", nonEmpty), zap.Int("need", need))
		return MiningResult{
			Complete: true,
			Warnings: []error{&InsufficientCorpusError{Stage: "mining", Have: nonEmpty, Need: need}},
		}
	}

	budget := NewBudget(ctx, "mining", opts.Budget)
	defer budget.Release()

	frequent, freqDone := mineFrequent(corpus, opts.MinSupport, opts.MaxPatternLength, budget.Expired)
	rules, grammarDone := InferGrammar(corpus, budget.Expired)

	byKey := map[string]models.Motif{}
	for _, p := range maximalPatterns(frequent) {
		k := strings.Join(p.items, "\x00")
		byKey[k] = newMotif(p.items, p.support, len(corpus), models.SourceFrequent)
	}
	for _, r := range rules {
		if len(r.Expansion) <= opts.SequiturMinLength {
			continue
		}
		support := contiguousSupport(corpus, r.Expansion)
		if support < opts.MinSupport {
			continue
		}
		k := strings.Join(r.Expansion, "\x00")
		if existing, ok := byKey[k]; ok && existing.SupportCount >= support {
			continue
		}
		byKey[k] = newMotif(r.Expansion, support, len(corpus), models.SourceGrammar)
	}

	motifs := make([]models.Motif, 0, len(byKey))
	for _, mt := range byKey {
		motifs = append(motifs, mt)
	}
	SortMotifs(motifs)

	res := MiningResult{Motifs: motifs, Complete: freqDone && grammarDone}
	if !res.Complete {
		res.Warnings = append(res.Warnings, budget.Warning(fmt.Sprintf("%d motifs", len(motifs))))
	}
	m.logger.Debug("mining finished",
		zap.Int("sequences", len(corpus)),
		zap.Int("motifs", len(motifs)),
		zap.Bool("complete", res.Complete))
	return res
}

func newMotif(pattern []string, support, total int, source string) models.Motif {
	p := append([]string(nil), pattern...)
	frac := 0.0
	if total > 0 {
		frac = float64(support) / float64(total)
	}
	return models.Motif{
		PatternID:    MotifID(p),
		Pattern:      p,
		SupportCount: support,
		Support:      frac,
		Category:     categorize(p, source),
		Source:       source,
	}
}

// categorize assigns a catalog category from the shape of a pattern.
func categorize(pattern []string, source string) string {
	for _, s := range pattern {
		if strings.HasPrefix(s, "INTENT_") {
			return models.CategoryIntent
		}
	}
	if len(pattern) >= 3 && pattern[0] == pattern[len(pattern)-1] {
		return models.CategoryIterative
	}
	switch source {
	case models.SourceGrammar:
		return models.CategoryCompression
	case models.SourceFrequent:
		if len(pattern) >= 3 {
			return models.CategoryFrequent
		}
		return models.CategorySequential
	}
	return models.CategoryOther
}

// SortMotifs orders motifs by support descending, then shorter pattern,
// then lexically by pattern.
func SortMotifs(motifs []models.Motif) {
	sort.SliceStable(motifs, func(i, j int) bool {
		a, b := motifs[i], motifs[j]
		if a.SupportCount != b.SupportCount {
			return a.SupportCount > b.SupportCount
		}
		if len(a.Pattern) != len(b.Pattern) {
			return len(a.Pattern) < len(b.Pattern)
		}
		return strings.Join(a.Pattern, " ") < strings.Join(b.Pattern, " ")
	})
}

type frequentPattern struct {
	items   []string
	support int
}

type projection struct {
	seq int
	pos int
}

// mineFrequent enumerates every gapped subsequence of length up to maxLen
// contained in at least minSupport sequences (PrefixSpan). stop is polled
// once per extension; on expiry the patterns found so far are returned with
// complete false.
func mineFrequent(corpus [][]string, minSupport, maxLen int, stop func() bool) ([]frequentPattern, bool) {
	var out []frequentPattern
	complete := true

	var grow func(prefix []string, db []projection)
	grow = func(prefix []string, db []projection) {
		if len(prefix) >= maxLen || !complete {
			return
		}
		counts := map[string]int{}
		for _, p := range db {
			seen := map[string]bool{}
			for _, item := range corpus[p.seq][p.pos:] {
				if !seen[item] {
					seen[item] = true
					counts[item]++
				}
			}
		}
		items := make([]string, 0, len(counts))
		for item, c := range counts {
			if c >= minSupport {
				items = append(items, item)
			}
		}
		sort.Strings(items)

		for _, item := range items {
			if stop != nil && stop() {
				complete = false
				return
			}
			next := make([]string, len(prefix)+1)
			copy(next, prefix)
			next[len(prefix)] = item
			out = append(out, frequentPattern{items: next, support: counts[item]})

			projected := make([]projection, 0, counts[item])
			for _, p := range db {
				s := corpus[p.seq]
				for i := p.pos; i < len(s); i++ {
					if s[i] == item {
						projected = append(projected, projection{seq: p.seq, pos: i + 1})
						break
					}
				}
			}
			grow(next, projected)
		}
	}

	db := make([]projection, 0, len(corpus))
	for i := range corpus {
		db = append(db, projection{seq: i})
	}
	grow(nil, db)
	return out, complete
}

// maximalPatterns keeps patterns of at least minMotifLength that are not a
// subsequence of another frequent pattern. Because every subsequence of a
// frequent pattern is itself frequent, checking supersequences one symbol
// longer is sufficient.
func maximalPatterns(patterns []frequentPattern) []frequentPattern {
	subsumed := map[string]bool{}
	for _, p := range patterns {
		if len(p.items) < 2 {
			continue
		}
		for drop := range p.items {
			sub := make([]string, 0, len(p.items)-1)
			sub = append(sub, p.items[:drop]...)
			sub = append(sub, p.items[drop+1:]...)
			subsumed[strings.Join(sub, "\x00")] = true
		}
	}
	var out []frequentPattern
	for _, p := range patterns {
		if len(p.items) >= minMotifLength && !subsumed[strings.Join(p.items, "\x00")] {
			out = append(out, p)
		}
	}
	return out
}

// contiguousSupport counts the sequences containing pattern as a
// contiguous run.
func contiguousSupport(corpus [][]string, pattern []string) int {
	n := 0
	for _, s := range corpus {
		if indexRun(s, pattern, 0) >= 0 {
			n++
		}
	}
	return n
}

func indexRun(s, pattern []string, from int) int {
	if len(pattern) == 0 {
		return -1
	}
outer:
	for i := from; i+len(pattern) <= len(s); i++ {
		for j, p := range pattern {
			if s[i+j] != p {
				continue outer
			}
		}
		return i
	}
	return -1
}

// CountOccurrences counts non-overlapping gapped occurrences of pattern in
// seq, matching greedily left to right. It also returns the start index of
// the first occurrence, or -1.
func CountOccurrences(seq, pattern []string) (count, first int) {
	first = -1
	if len(pattern) == 0 {
		return 0, -1
	}
	j, start := 0, -1
	for i, s := range seq {
		if s != pattern[j] {
			continue
		}
		if j == 0 {
			start = i
		}
		j++
		if j == len(pattern) {
			count++
			if first < 0 {
				first = start
			}
			j = 0
		}
	}
	return count, first
}

// IsSubsequence reports whether pattern occurs in seq in order, with gaps.
func IsSubsequence(pattern, seq []string) bool {
	c, _ := CountOccurrences(seq, pattern)
	return c > 0
}

func snapshotSequences(sequences [][]string) [][]string {
	out := make([][]string, len(sequences))
	for i, s := range sequences {
		out[i] = append([]string(nil), s...)
	}
	return out
}
