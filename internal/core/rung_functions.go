package core

import (
	"regexp"
	"strings"
	"time"

	"github.com/valter-silva-au/tracerung/pkg/models"
)

// Function change deltas.
const (
	DeltaAdded            = "added"
	DeltaRemoved          = "removed"
	DeltaSignatureChanged = "signature_changed"
	DeltaBodyChanged      = "body_changed"
	DeltaModified         = "modified"
)

// Units of a function record, finest first.
const (
	UnitFunction    = "function"
	UnitHunkSection = "hunk_section"
	UnitFile        = "file"
)

var unitRank = map[string]int{UnitFunction: 0, UnitHunkSection: 1, UnitFile: 2}

// sectionName pulls a plausible function name out of a hunk section header
// such as "func (s *Server) Start(ctx context.Context) error {".
var sectionName = regexp.MustCompile(`([A-Za-z_$][A-Za-z0-9_$]*)\s*(?:<[^>]*>)?\s*\(`)

type functionChange struct {
	name   string
	before string
	after  string
	delta  string
	unit   string
	reason string
}

// encodeFunctions emits one record per (file, function) changed. It falls
// back from parsed declarations to diff hunk sections to the whole file.
func (c *rungChain) encodeFunctions(limit int) draft {
	var d draft
	var records []models.FunctionRecord
	var edits []functionEdit
	index := map[string]int{}

	for _, ev := range c.trace.Events {
		a := ev.Attrs
		if a.Kind != models.KindEdit || (a.FilePath == "" && !a.HasCode()) {
			continue
		}
		file := a.FilePath
		if file == "" {
			file = ev.Symbol
		}
		changes := c.functionChanges(a)
		if len(changes) == 0 {
			changes = []functionChange{{name: "*", delta: DeltaModified, unit: UnitFile, reason: "no function information"}}
		}
		for _, ch := range changes {
			switch ch.unit {
			case UnitHunkSection:
				d.degrade(models.RungFunctions, UnitHunkSection, "declarations unavailable, using diff sections")
			case UnitFile:
				d.degrade(models.RungFunctions, UnitFile, ch.reason)
			}
			k := file + "::" + ch.name
			edits = append(edits, functionEdit{key: k, at: ev.Timestamp})
			if i, ok := index[k]; ok {
				r := &records[i]
				r.Changes++
				if ch.after != "" {
					r.SignatureAfter = ch.after
				}
				if r.SignatureBefore == "" {
					r.SignatureBefore = ch.before
				}
				r.Delta = mergeDelta(r.Delta, ch.delta)
				if unitRank[ch.unit] < unitRank[r.Unit] {
					r.Unit = ch.unit
				}
				continue
			}
			index[k] = len(records)
			records = append(records, models.FunctionRecord{
				File:            file,
				Function:        ch.name,
				Changes:         1,
				SignatureBefore: ch.before,
				SignatureAfter:  ch.after,
				Delta:           ch.delta,
				Unit:            ch.unit,
			})
		}
	}

	weights := make([]int, len(records))
	keys := make([]string, len(records))
	for i, r := range records {
		weights[i] = r.Changes
		keys[i] = r.File + "::" + r.Function
	}
	kept, truncated := keepTop(weights, keys, limit)
	d.rep.Functions = pick(records, kept)
	d.truncated = truncated
	window := time.Duration(c.enc.cfg.GraphWindowSeconds) * time.Second
	d.fgraph = functionEditGraph(edits, window, c.opts.RedactPIIEnabled)
	return d
}

// functionChanges compares the functions declared before and after an
// edit. With only one side available every declaration counts as changed.
func (c *rungChain) functionChanges(a models.Attrs) []functionChange {
	before, after := a.Before, a.After
	if before == "" && after == "" && a.Diff != "" {
		before, after = removedLines(a.Diff), addedLines(a.Diff)
	}
	bf := c.enc.functionsIn(c.ctx, a.Language, before)
	af := c.enc.functionsIn(c.ctx, a.Language, after)

	if len(bf) == 0 && len(af) == 0 {
		return diffSectionChanges(a.Diff)
	}

	created := editOp(a) == "CREATE"
	beforeByName := map[string]models.FunctionSignature{}
	for _, f := range bf {
		beforeByName[f.Name] = f
	}
	var out []functionChange
	seen := map[string]bool{}
	for _, f := range af {
		seen[f.Name] = true
		old, ok := beforeByName[f.Name]
		switch {
		case !ok && created:
			out = append(out, functionChange{name: f.Name, after: f.Signature, delta: DeltaAdded, unit: UnitFunction})
		case !ok && a.Before == "" && a.Diff == "":
			// After-only snapshot: the declaration may be unchanged.
			out = append(out, functionChange{name: f.Name, after: f.Signature, delta: DeltaModified, unit: UnitFunction})
		case !ok:
			out = append(out, functionChange{name: f.Name, after: f.Signature, delta: DeltaAdded, unit: UnitFunction})
		case old.Signature != f.Signature:
			out = append(out, functionChange{name: f.Name, before: old.Signature, after: f.Signature, delta: DeltaSignatureChanged, unit: UnitFunction})
		case a.Before != "" && a.After != "" && body(before, old) != body(after, f):
			out = append(out, functionChange{name: f.Name, before: old.Signature, after: f.Signature, delta: DeltaBodyChanged, unit: UnitFunction})
		case a.Diff != "":
			out = append(out, functionChange{name: f.Name, before: old.Signature, after: f.Signature, delta: DeltaModified, unit: UnitFunction})
		}
	}
	for _, f := range bf {
		if !seen[f.Name] {
			out = append(out, functionChange{name: f.Name, before: f.Signature, delta: DeltaRemoved, unit: UnitFunction})
		}
	}
	if len(out) == 0 {
		out = append(out, functionChange{name: "*", delta: DeltaModified, unit: UnitFile, reason: "change outside declarations"})
	}
	return out
}

func body(code string, f models.FunctionSignature) string {
	lines := strings.Split(code, "\n")
	start := max(f.StartLine-1, 0)
	end := min(f.EndLine, len(lines))
	if start >= end {
		return ""
	}
	return strings.Join(lines[start:end], "\n")
}

// diffSectionChanges names changes after the function context git writes
// into hunk headers.
func diffSectionChanges(diff string) []functionChange {
	var out []functionChange
	seen := map[string]bool{}
	for _, line := range strings.Split(diff, "\n") {
		if !strings.HasPrefix(line, "@@") {
			continue
		}
		parts := strings.SplitN(line, "@@", 3)
		if len(parts) < 3 {
			continue
		}
		for _, m := range sectionName.FindAllStringSubmatch(parts[2], -1) {
			name := m[1]
			if lexicalKeywords[strings.ToLower(name)] {
				continue
			}
			if !seen[name] {
				seen[name] = true
				out = append(out, functionChange{name: name, delta: DeltaModified, unit: UnitHunkSection})
			}
			break
		}
	}
	return out
}

func mergeDelta(prev, next string) string {
	switch {
	case prev == next:
		return prev
	case prev == DeltaAdded && next == DeltaRemoved:
		return DeltaModified
	case prev == DeltaAdded:
		return DeltaAdded
	}
	return next
}
