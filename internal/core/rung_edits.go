package core

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/valter-silva-au/tracerung/pkg/models"
)

// Size classes of an edit by changed line count.
const (
	mediumEditLines = 10
	largeEditLines  = 50
)

// encodeEdits emits one OP::target::SIZE::summary::intent record per edit
// event. Segment intents summarize every SegmentSize events.
func (c *rungChain) encodeEdits(limit int) draft {
	var d draft
	var records []string
	var weights []int
	var keys []string

	for _, ev := range c.trace.Events {
		a := ev.Attrs
		if a.Kind != models.KindEdit {
			continue
		}
		target := editTarget(ev)
		if a.HasCode() {
			fns := c.enc.functionsIn(c.ctx, a.Language, codeOf(a))
			if len(fns) > 0 {
				target += "::" + fns[0].Name
			} else if a.Language != "" {
				d.degrade(models.RungSemanticEdits, "file", fmt.Sprintf("no declarations found in %s", a.Language))
			}
		}
		rec := strings.Join([]string{
			editOp(a),
			target,
			editSize(a),
			summaryWords(a.DiffSummary),
			intentOf(a),
		}, "::")
		records = append(records, rec)
		weights = append(weights, a.LinesAdded+a.LinesRemoved)
		keys = append(keys, seqKey(a.Seq))
	}

	kept, truncated := keepTop(weights, keys, limit)
	d.rep.Edits = pick(records, kept)
	d.truncated = truncated
	d.segments = c.segmentIntents()
	return d
}

// editOp names the operation from the event type and line counts.
func editOp(a models.Attrs) string {
	t := normalizeType(a.Type)
	switch {
	case strings.Contains(t, "delete") || strings.Contains(t, "remove"):
		return "DELETE"
	case strings.Contains(t, "create") || strings.Contains(t, "new"):
		return "CREATE"
	case a.LinesAdded > 0 && a.LinesRemoved == 0:
		return "ADD"
	case a.LinesRemoved > 0 && a.LinesAdded == 0:
		return "REMOVE"
	}
	return "MODIFY"
}

func editTarget(ev models.CanonicalEvent) string {
	if ev.Attrs.FilePath == "" {
		return ev.Symbol
	}
	base := path.Base(ev.Attrs.FilePath)
	if stem := strings.TrimSuffix(base, path.Ext(base)); stem != "" {
		return stem
	}
	return base
}

func editSize(a models.Attrs) string {
	switch {
	case a.LinesAdded > largeEditLines || a.LinesRemoved > largeEditLines:
		return "LARGE"
	case a.LinesAdded > mediumEditLines || a.LinesRemoved > mediumEditLines:
		return "MEDIUM"
	}
	return "SMALL"
}

// summaryWords keeps the first two words of a diff summary.
func summaryWords(summary string) string {
	words := strings.Fields(strings.ReplaceAll(summary, "::", " "))
	if len(words) == 0 {
		return "-"
	}
	if len(words) > 2 {
		words = words[:2]
	}
	return strings.ToLower(strings.Join(words, "_"))
}

// segmentIntents lists the top three intents of each window of SegmentSize
// events as "<segment>:<intent>,<intent>".
func (c *rungChain) segmentIntents() []string {
	size := c.enc.cfg.SegmentSize
	var out []string
	events := c.trace.Events
	for start := 0; start < len(events); start += size {
		end := min(start+size, len(events))
		counts := map[string]int{}
		for _, ev := range events[start:end] {
			if in := intentOf(ev.Attrs); in != IntentUnknown {
				counts[in]++
			}
		}
		if len(counts) == 0 {
			continue
		}
		labels := make([]string, 0, len(counts))
		for l := range counts {
			labels = append(labels, l)
		}
		sort.Slice(labels, func(i, j int) bool {
			if counts[labels[i]] != counts[labels[j]] {
				return counts[labels[i]] > counts[labels[j]]
			}
			return labels[i] < labels[j]
		})
		if len(labels) > 3 {
			labels = labels[:3]
		}
		out = append(out, fmt.Sprintf("%d:%s", start/size, strings.Join(labels, ",")))
	}
	return out
}
