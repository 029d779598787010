package core

import (
	"fmt"
	"sort"
	"time"

	"github.com/valter-silva-au/tracerung/pkg/models"
)

type functionEdit struct {
	key string
	at  time.Time
}

// functionEditGraph links each function edit to the next edit of a
// different function when it lands within window. Fewer than two edits
// yield no graph. With alias set, nodes are renamed FN000, FN001, ... in
// sorted key order so no file or function name survives.
func functionEditGraph(edits []functionEdit, window time.Duration, alias bool) *models.FunctionEditGraph {
	if len(edits) < 2 {
		return nil
	}
	keys := map[string]bool{}
	for _, e := range edits {
		keys[e.key] = true
	}
	names := map[string]string{}
	for i, k := range sortedKeys(keys) {
		names[k] = k
		if alias {
			names[k] = fmt.Sprintf("FN%03d", i)
		}
	}

	g := &models.FunctionEditGraph{
		Nodes:     len(keys),
		Edits:     map[string]int{},
		OutDegree: map[string]int{},
		InDegree:  map[string]int{},
	}
	edges := map[models.FunctionEdge]bool{}
	for i, e := range edits {
		g.Edits[names[e.key]]++
		for _, next := range edits[i+1:] {
			if next.key == e.key {
				continue
			}
			if next.at.Sub(e.at) <= window {
				edges[models.FunctionEdge{Source: names[e.key], Target: names[next.key]}] = true
			}
			break
		}
	}
	for e := range edges {
		g.Edges = append(g.Edges, e)
		g.OutDegree[e.Source]++
		g.InDegree[e.Target]++
		if e.Source < e.Target && edges[models.FunctionEdge{Source: e.Target, Target: e.Source}] {
			g.Cycles++
		}
	}
	sort.Slice(g.Edges, func(i, j int) bool {
		if g.Edges[i].Source != g.Edges[j].Source {
			return g.Edges[i].Source < g.Edges[j].Source
		}
		return g.Edges[i].Target < g.Edges[j].Target
	})
	return g
}
