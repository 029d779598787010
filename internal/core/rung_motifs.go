package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/valter-silva-au/tracerung/pkg/models"
)

// Structural motif thresholds.
const (
	hotspotEdits        = 5
	dependencyChaseHops = 3
	highSwitchingRatio  = 0.7
)

// encodeMotifs emits one record per motif found in the trace: occurrences
// of corpus motifs (or, without a catalog, the trace's own grammar rules),
// structural file-switching motifs and intent transitions.
func (c *rungChain) encodeMotifs(limit int) draft {
	var d draft
	seq := c.get(models.RungTokens).Sequence()
	intents := headIntents(seq)
	dominant := traceIntent(c.trace)

	var found []models.MotifOccurrence
	add := func(o models.MotifOccurrence) {
		for i := range found {
			if found[i].PatternID == o.PatternID {
				found[i].Frequency += o.Frequency
				return
			}
		}
		found = append(found, o)
	}
	intentAt := func(i int) string {
		if i >= 0 && i < len(intents) && intents[i] != "" {
			return intents[i]
		}
		return dominant
	}

	if c.opts.UseStatisticalMining {
		if len(c.enc.catalog) > 0 {
			catSeq := seq
			at := intentAt
			if c.enc.level != models.RungTokens {
				catSeq = c.get(c.enc.level).Sequence()
				at = func(int) string { return dominant }
			}
			for _, m := range c.enc.catalog {
				if c.ctx.Err() != nil {
					d.degrade(models.RungMotifs, "structural", "cancelled")
					break
				}
				n, first := CountOccurrences(catSeq, m.Pattern)
				if n == 0 {
					continue
				}
				add(models.MotifOccurrence{
					PatternID: m.PatternID,
					Pattern:   append([]string(nil), m.Pattern...),
					Category:  m.Category,
					Intent:    at(first),
					Frequency: n,
					Support:   m.Support,
				})
			}
		} else {
			rules, _ := InferGrammar([][]string{seq}, func() bool { return c.ctx.Err() != nil })
			for _, r := range rules {
				if len(r.Expansion) < 2 {
					continue
				}
				n, first := countRuns(seq, r.Expansion)
				add(models.MotifOccurrence{
					PatternID: MotifID(r.Expansion),
					Pattern:   r.Expansion,
					Category:  models.CategoryCompression,
					Intent:    intentAt(first),
					Frequency: n,
				})
			}
		}
	}

	for _, o := range c.structuralMotifs(seq, dominant) {
		add(o)
	}
	if c.opts.IncludePrompts {
		for _, o := range intentTransitions(seq) {
			add(o)
		}
	}

	weights := make([]int, len(found))
	keys := make([]string, len(found))
	for i, o := range found {
		weights[i] = o.Frequency
		keys[i] = o.PatternID
	}
	kept, truncated := keepTop(weights, keys, limit)
	d.rep.Motifs = pick(found, kept)
	d.truncated = truncated
	return d
}

// headIntents maps each position of a token-head sequence to the intent of
// the most recent INTENT_ marker.
func headIntents(seq []string) []string {
	out := make([]string, len(seq))
	current := ""
	for i, s := range seq {
		if strings.HasPrefix(s, "INTENT_") {
			current = strings.ToLower(strings.TrimPrefix(s, "INTENT_"))
		}
		out[i] = current
	}
	return out
}

// countRuns counts non-overlapping contiguous runs of pattern in seq.
func countRuns(seq, pattern []string) (count, first int) {
	first = -1
	for i := indexRun(seq, pattern, 0); i >= 0; i = indexRun(seq, pattern, i+len(pattern)) {
		if first < 0 {
			first = i
		}
		count++
	}
	return count, first
}

func structural(pattern []string, category, intent string, freq int) models.MotifOccurrence {
	return models.MotifOccurrence{
		PatternID: MotifID(pattern),
		Pattern:   pattern,
		Category:  category,
		Intent:    intent,
		Frequency: freq,
	}
}

// structuralMotifs finds hotspots, dependency chasing, iterative
// refinement, A-B-A cycles and high switching.
func (c *rungChain) structuralMotifs(seq []string, intent string) []models.MotifOccurrence {
	var out []models.MotifOccurrence
	window := time.Duration(c.enc.cfg.GraphWindowSeconds) * time.Second

	var files []string
	var times []time.Time
	perFile := map[string]int{}
	for _, ev := range c.trace.Events {
		if ev.Attrs.FilePath == "" || ev.Attrs.Kind == models.KindPrompt {
			continue
		}
		files = append(files, ev.Attrs.FilePath)
		times = append(times, ev.Timestamp)
		if ev.Attrs.Kind == models.KindEdit {
			perFile[ev.Attrs.FilePath]++
		}
	}

	maxEdits := 0
	for _, n := range perFile {
		maxEdits = max(maxEdits, n)
	}
	if maxEdits > hotspotEdits {
		out = append(out, structural([]string{fmt.Sprintf("HOTSPOT_%d", maxEdits)}, models.CategoryHotspot, intent, 1))
	}

	quickSwitches := 0
	var switchedTo []string
	for i := 1; i < len(files); i++ {
		if files[i] == files[i-1] {
			continue
		}
		switchedTo = append(switchedTo, files[i])
		if times[i].Sub(times[i-1]) <= window {
			quickSwitches++
		}
	}
	if quickSwitches > dependencyChaseHops {
		out = append(out, structural([]string{"DEPENDENCY_CHASE"}, models.CategoryDependency, intent, 1))
	}
	refinements := 0
	for i := 2; i < len(switchedTo); i++ {
		if switchedTo[i] == switchedTo[i-2] {
			refinements++
		}
	}
	if refinements > 0 {
		out = append(out, structural([]string{"ITERATIVE_REFINE"}, models.CategoryIterative, intent, refinements))
	}

	cycles := map[string]int{}
	var order []string
	for i := 0; i+2 < len(seq); i++ {
		if seq[i] == seq[i+2] && seq[i] != seq[i+1] {
			k := "CYCLE_" + seq[i] + "_" + seq[i+1]
			if cycles[k] == 0 {
				order = append(order, k)
			}
			cycles[k]++
		}
	}
	for _, k := range order {
		out = append(out, structural([]string{k}, models.CategoryIterative, intent, cycles[k]))
	}

	if len(seq) >= 2 {
		distinct := map[string]bool{}
		for _, s := range seq {
			distinct[s] = true
		}
		if float64(len(distinct))/float64(len(seq)) > highSwitchingRatio {
			out = append(out, structural([]string{"HIGH_SWITCHING"}, models.CategoryDiversity, intent, 1))
		}
	}
	return out
}

// intentTransitions reports consecutive distinct prompt intents as
// INTENT_a_TO_b motifs.
func intentTransitions(seq []string) []models.MotifOccurrence {
	var markers []string
	for _, s := range seq {
		if strings.HasPrefix(s, "INTENT_") && s != "INTENT_"+strings.ToUpper(IntentUnknown) {
			markers = append(markers, strings.TrimPrefix(s, "INTENT_"))
		}
	}
	counts := map[string]int{}
	var order []string
	for i := 1; i < len(markers); i++ {
		if markers[i] == markers[i-1] {
			continue
		}
		k := "INTENT_" + markers[i-1] + "_TO_" + markers[i]
		if counts[k] == 0 {
			order = append(order, k)
		}
		counts[k]++
	}
	out := make([]models.MotifOccurrence, 0, len(order))
	for _, k := range order {
		to := k[strings.LastIndex(k, "_TO_")+4:]
		out = append(out, structural([]string{k}, models.CategoryIntent, strings.ToLower(to), counts[k]))
	}
	return out
}
