package core

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/valter-silva-au/tracerung/pkg/models"
)

// DefaultSearchTopK caps a search that asks for no limit.
const DefaultSearchTopK = 20

var searchStopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true,
	"by": true, "for": true, "from": true, "in": true, "into": true, "is": true, "it": true,
	"of": true, "on": true, "or": true, "that": true, "the": true, "this": true, "to": true,
	"was": true, "were": true, "with": true,
}

// SearchTerms splits text into lowercase words, breaking identifiers at
// case changes, and appends the bigram of each adjacent pair. Stopwords and
// single characters are dropped.
func SearchTerms(text string) []string {
	var words []string
	for _, field := range strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		for _, w := range splitCamel(field) {
			w = strings.ToLower(w)
			if len(w) < 2 || searchStopwords[w] {
				continue
			}
			words = append(words, w)
		}
	}
	terms := append([]string(nil), words...)
	for i := 1; i < len(words); i++ {
		terms = append(terms, words[i-1]+" "+words[i])
	}
	return terms
}

func splitCamel(s string) []string {
	var out []string
	start := 0
	runes := []rune(s)
	for i := 1; i < len(runes); i++ {
		if unicode.IsUpper(runes[i]) && unicode.IsLower(runes[i-1]) {
			out = append(out, string(runes[start:i]))
			start = i
		}
	}
	return append(out, string(runes[start:]))
}

// searchText renders the payload of a representation as searchable text.
func searchText(rep models.RungRepresentation) string {
	var b strings.Builder
	add := func(parts ...string) {
		for _, p := range parts {
			if p != "" {
				b.WriteString(p)
				b.WriteByte(' ')
			}
		}
	}
	switch rep.Rung {
	case models.RungRaw:
		for _, r := range rep.Raw {
			add(string(r.Kind), r.FilePath, r.Language, r.Prompt, r.Command, r.Code, r.Intent)
		}
	case models.RungTokens:
		add(rep.Tokens...)
	case models.RungSemanticEdits:
		add(rep.Edits...)
	case models.RungFunctions:
		for _, f := range rep.Functions {
			add(f.File, f.Function, f.Delta, f.SignatureAfter)
		}
	case models.RungModuleGraph:
		for _, g := range rep.ModuleGraph {
			add(g.Source, g.Target, string(g.Relation))
		}
	case models.RungMotifs:
		for _, m := range rep.Motifs {
			add(m.Category, m.Intent)
			add(m.Pattern...)
		}
	}
	return b.String()
}

// tfidf weights term counts by smoothed inverse document frequency,
// idf = ln((1+n)/(1+df)) + 1.
type tfidf struct {
	idf map[string]float64
	n   int
}

func newTFIDF(docs [][]string) *tfidf {
	df := map[string]int{}
	for _, d := range docs {
		seen := map[string]bool{}
		for _, t := range d {
			if !seen[t] {
				seen[t] = true
				df[t]++
			}
		}
	}
	x := &tfidf{idf: make(map[string]float64, len(df)), n: len(docs)}
	for t, c := range df {
		x.idf[t] = math.Log(float64(1+x.n)/float64(1+c)) + 1
	}
	return x
}

func (x *tfidf) vector(terms []string) Vector {
	v := Vector{}
	for _, t := range terms {
		idf, ok := x.idf[t]
		if !ok {
			idf = math.Log(float64(1+x.n)) + 1
		}
		v[t] += idf
	}
	return v
}

func (e *engine) Search(ctx context.Context, workspace, rung string, q models.SearchQuery, opts models.QueryOptions) (models.SearchResult, error) {
	r, err := models.ParseRung(rung)
	if err != nil {
		return models.SearchResult{}, &ConfigError{Field: "rung", Message: err.Error()}
	}
	query := SearchTerms(q.Text)
	if len(query) == 0 {
		return models.SearchResult{}, &ConfigError{Field: "query", Message: "no searchable terms in " + strconv.Quote(q.Text)}
	}
	topK := q.TopK
	if topK <= 0 {
		topK = DefaultSearchTopK
	}

	traces, reps, err := e.encodeWorkspace(ctx, workspace, r, opts)
	if err != nil {
		return models.SearchResult{}, err
	}

	type doc struct {
		trace  string
		intent string
		terms  []string
	}
	var docs []doc
	for i, rep := range reps {
		if q.Intent != "" && !hasIntent(traces[i], q.Intent) {
			continue
		}
		terms := SearchTerms(searchText(rep))
		if len(terms) == 0 {
			continue
		}
		docs = append(docs, doc{trace: traces[i].ID, intent: traceIntent(traces[i]), terms: terms})
	}

	corpus := make([][]string, len(docs))
	for i, d := range docs {
		corpus[i] = d.terms
	}
	idx := newTFIDF(corpus)
	qv := idx.vector(query)

	res := models.SearchResult{Query: q.Text, Rung: r, Intent: q.Intent, Searched: len(docs), Hits: []models.SearchHit{}}
	for _, d := range docs {
		dv := idx.vector(d.terms)
		score := Cosine(qv, dv)
		if score <= 0 {
			continue
		}
		var matched []string
		for _, t := range qv.terms() {
			if dv[t] > 0 && !strings.Contains(t, " ") {
				matched = append(matched, t)
			}
		}
		res.Hits = append(res.Hits, models.SearchHit{TraceID: d.trace, Score: score, Intent: d.intent, Matched: matched})
	}
	sort.SliceStable(res.Hits, func(i, j int) bool {
		if res.Hits[i].Score != res.Hits[j].Score {
			return res.Hits[i].Score > res.Hits[j].Score
		}
		return res.Hits[i].TraceID < res.Hits[j].TraceID
	})
	if len(res.Hits) > topK {
		res.Hits = res.Hits[:topK]
	}
	for i := range res.Hits {
		res.Hits[i].Rank = i + 1
	}

	e.logEvent("search.ranked", map[string]any{
		"workspace": workspaceLabel(workspace),
		"rung":      r.String(),
		"searched":  res.Searched,
		"hits":      len(res.Hits),
	})
	return res, nil
}

func hasIntent(t models.Trace, intent string) bool {
	for _, ev := range t.Events {
		if intentOf(ev.Attrs) == intent {
			return true
		}
	}
	return false
}
