package core

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Vector is a sparse vector keyed by term.
type Vector map[string]float64

// TermFrequency returns the relative frequency of each symbol in seq.
func TermFrequency(seq []string) Vector {
	v := make(Vector, len(seq))
	if len(seq) == 0 {
		return v
	}
	for _, s := range seq {
		v[s]++
	}
	n := float64(len(seq))
	for k := range v {
		v[k] /= n
	}
	return v
}

// Cosine returns the cosine similarity of a and b, 0 when either is empty.
// Terms are summed in sorted order so the result is reproducible bit for
// bit.
func Cosine(a, b Vector) float64 {
	var dot, na, nb float64
	for _, k := range a.terms() {
		x := a[k]
		dot += x * b[k]
		na += x * x
	}
	for _, k := range b.terms() {
		nb += b[k] * b[k]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func (v Vector) terms() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CosineDistance is 1 - Cosine, clamped to [0, 1].
func CosineDistance(a, b Vector) float64 {
	return min(max(1-Cosine(a, b), 0), 1)
}

// DTW aligns two symbol sequences with unit mismatch cost and returns the
// alignment cost divided by the warping-path length, in [0, 1]. Among
// equal-cost paths the longest is preferred. DTW(x, x) is 0 and the
// distance is symmetric.
func DTW(a, b []string) float64 {
	n, m := len(a), len(b)
	switch {
	case n == 0 && m == 0:
		return 0
	case n == 0 || m == 0:
		return 1
	}

	type cell struct{ cost, length int }
	better := func(x, y cell) bool {
		if x.cost != y.cost {
			return x.cost < y.cost
		}
		return x.length > y.length
	}

	prev := make([]cell, m)
	cur := make([]cell, m)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			step := 0
			if a[i] != b[j] {
				step = 1
			}
			var best cell
			switch {
			case i == 0 && j == 0:
				best = cell{}
			case i == 0:
				best = cur[j-1]
			case j == 0:
				best = prev[j]
			default:
				best = prev[j-1]
				if better(prev[j], best) {
					best = prev[j]
				}
				if better(cur[j-1], best) {
					best = cur[j-1]
				}
			}
			cur[j] = cell{cost: best.cost + step, length: best.length + 1}
		}
		prev, cur = cur, prev
	}
	end := prev[m-1]
	return float64(end.cost) / float64(end.length)
}

// Vectorizer maps symbol sequences to vectors.
type Vectorizer interface {
	Vectorize(ctx context.Context, seq []string) (Vector, error)
}

type vectorizer struct {
	embedder Embedder
	cache    *TTLCache[Vector]
}

// NewVectorizer returns a term-frequency vectorizer, or one backed by
// embedder when it is non-nil. cache may be nil.
func NewVectorizer(embedder Embedder, cache *TTLCache[Vector]) Vectorizer {
	return &vectorizer{embedder: embedder, cache: cache}
}

func (v *vectorizer) Vectorize(ctx context.Context, seq []string) (Vector, error) {
	kind := "tf"
	if v.embedder != nil {
		kind = "embed"
	}
	key := HashKey(kind, strings.Join(seq, "\x1f"))
	if cached, ok := v.cache.Get(key); ok {
		return cached, nil
	}

	var out Vector
	if v.embedder == nil {
		out = TermFrequency(seq)
	} else {
		dense, err := v.embedder.Embed(ctx, seq)
		if err != nil {
			return nil, fmt.Errorf("embedding sequence: %w", err)
		}
		out = make(Vector, len(dense))
		for i, x := range dense {
			if x != 0 {
				out[fmt.Sprintf("#%d", i)] = x
			}
		}
	}
	v.cache.Set(key, out)
	return out, nil
}

// centroid averages vectors.
func centroid(vs []Vector) Vector {
	out := Vector{}
	if len(vs) == 0 {
		return out
	}
	for _, v := range vs {
		for k, x := range v {
			out[k] += x
		}
	}
	n := float64(len(vs))
	for k := range out {
		out[k] /= n
	}
	return out
}
