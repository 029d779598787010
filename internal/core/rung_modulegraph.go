package core

import (
	"path"
	"sort"
	"strings"
	"time"

	"github.com/valter-silva-au/tracerung/pkg/models"
)

var relationOrder = map[models.GraphRelation]int{
	models.RelationImport:   0,
	models.RelationCoEdit:   1,
	models.RelationSequence: 2,
	models.RelationSummary:  3,
}

type edgeKey struct {
	src, dst string
	rel      models.GraphRelation
}

type fileTouch struct {
	file string
	at   time.Time
	edit bool
}

// encodeModuleGraph emits one record per file-to-file relationship: import
// edges resolved against the files in the trace, co-edits within the
// graph window, and sequence edges to the next file touched. A trace that
// touches files but relates none of them yields one summary record.
func (c *rungChain) encodeModuleGraph(limit int) draft {
	var d draft
	var touches []fileTouch
	files := map[string]bool{}
	for _, ev := range c.trace.Events {
		a := ev.Attrs
		if a.FilePath == "" || a.Kind == models.KindPrompt {
			continue
		}
		touches = append(touches, fileTouch{file: a.FilePath, at: ev.Timestamp, edit: a.Kind == models.KindEdit})
		files[a.FilePath] = true
	}

	weights := map[edgeKey]int{}
	window := time.Duration(c.enc.cfg.GraphWindowSeconds) * time.Second

	for i := 1; i < len(touches); i++ {
		if prev, cur := touches[i-1].file, touches[i].file; prev != cur {
			weights[edgeKey{prev, cur, models.RelationSequence}]++
		}
	}

	for i, t1 := range touches {
		if !t1.edit {
			continue
		}
		for _, t2 := range touches[i+1:] {
			if t2.at.Sub(t1.at) > window {
				break
			}
			if !t2.edit || t2.file == t1.file {
				continue
			}
			a, b := t1.file, t2.file
			if b < a {
				a, b = b, a
			}
			weights[edgeKey{a, b, models.RelationCoEdit}]++
			break
		}
	}

	fileList := sortedKeys(files)
	for _, ev := range c.trace.Events {
		a := ev.Attrs
		if a.Kind != models.KindEdit || a.FilePath == "" || !a.HasCode() {
			continue
		}
		for _, imp := range c.enc.importsIn(c.ctx, a.Language, codeOf(a)) {
			if target := resolveImport(a.FilePath, imp, fileList); target != "" && target != a.FilePath {
				weights[edgeKey{a.FilePath, target, models.RelationImport}]++
			}
		}
	}

	records := make([]models.GraphRecord, 0, len(weights))
	for k, w := range weights {
		records = append(records, models.GraphRecord{Source: k.src, Target: k.dst, Relation: k.rel, Weight: w})
	}
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Relation != b.Relation {
			return relationOrder[a.Relation] < relationOrder[b.Relation]
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return a.Target < b.Target
	})
	d.stats = graphStats(records, len(files))

	if len(records) == 0 && len(files) > 0 {
		d.degrade(models.RungModuleGraph, "summary", "no file-to-file relationships")
		source := c.trace.WorkspacePath
		if source == "" {
			source = "."
		}
		records = []models.GraphRecord{{Source: source, Target: "*", Relation: models.RelationSummary, Weight: len(files)}}
	}

	ws := make([]int, len(records))
	keys := make([]string, len(records))
	for i, r := range records {
		ws[i] = r.Weight
		keys[i] = string(r.Relation) + ":" + r.Source + "->" + r.Target
	}
	kept, truncated := keepTop(ws, keys, limit)
	d.rep.ModuleGraph = pick(records, kept)
	d.truncated = truncated
	return d
}

// resolveImport maps an import path onto a file of the trace. Relative
// imports resolve against the importing file's directory; package paths
// match any file whose extension-less path ends with them.
func resolveImport(from, imp string, files []string) string {
	imp = strings.TrimSpace(imp)
	if imp == "" {
		return ""
	}
	var want string
	switch {
	case strings.HasPrefix(imp, "."):
		if strings.HasPrefix(imp, "./") || strings.HasPrefix(imp, "../") {
			want = path.Join(path.Dir(from), imp)
		} else {
			// Python relative module: .pkg.mod
			trimmed := strings.TrimLeft(imp, ".")
			want = path.Join(path.Dir(from), strings.ReplaceAll(trimmed, ".", "/"))
		}
	case strings.Contains(imp, "::"):
		want = strings.ReplaceAll(strings.TrimPrefix(strings.TrimPrefix(imp, "crate::"), "super::"), "::", "/")
	case !strings.Contains(imp, "/") && strings.Contains(imp, "."):
		want = strings.ReplaceAll(imp, ".", "/")
	default:
		want = imp
	}
	want = strings.TrimSuffix(want, path.Ext(want))
	for _, f := range files {
		stem := strings.TrimSuffix(f, path.Ext(f))
		if stem == want || strings.HasSuffix(stem, "/"+want) || strings.HasSuffix(want, "/"+stem) {
			return f
		}
		// Go imports name a package directory.
		if dir := path.Dir(f); dir != "." && (dir == want || strings.HasSuffix(want, "/"+dir)) {
			return f
		}
	}
	return ""
}

func graphStats(records []models.GraphRecord, nodes int) map[string]int {
	in := map[string]int{}
	out := map[string]int{}
	directed := map[[2]string]bool{}
	for _, r := range records {
		out[r.Source]++
		in[r.Target]++
		if r.Relation == models.RelationSequence {
			directed[[2]string{r.Source, r.Target}] = true
		}
	}
	cycles := 0
	for e := range directed {
		if e[0] < e[1] && directed[[2]string{e[1], e[0]}] {
			cycles++
		}
	}
	maxIn, maxOut := 0, 0
	for _, v := range in {
		maxIn = max(maxIn, v)
	}
	for _, v := range out {
		maxOut = max(maxOut, v)
	}
	return map[string]int{
		"nodes":          nodes,
		"edges":          len(records),
		"cycles":         cycles,
		"max_in_degree":  maxIn,
		"max_out_degree": maxOut,
	}
}
