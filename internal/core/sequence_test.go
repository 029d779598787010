package core

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestDTW(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want float64
	}{
		{"identical", []string{"a", "b", "c"}, []string{"a", "b", "c"}, 0},
		{"both empty", nil, nil, 0},
		{"one empty", []string{"a"}, nil, 1},
		{"disjoint", []string{"a", "b"}, []string{"x", "y"}, 1},
		{"stretched", []string{"a", "b"}, []string{"a", "a", "b", "b"}, 0},
		{"one substitution", []string{"a", "b", "c", "d"}, []string{"a", "b", "x", "d"}, 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DTW(tt.a, tt.b); !approx(got, tt.want) {
				t.Errorf("DTW(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestTermFrequency(t *testing.T) {
	v := TermFrequency([]string{"a", "b", "a", "a"})
	if !approx(v["a"], 0.75) || !approx(v["b"], 0.25) || len(v) != 2 {
		t.Errorf("TermFrequency = %v", v)
	}
	if len(TermFrequency(nil)) != 0 {
		t.Error("empty sequence should give an empty vector")
	}
}

func TestCosine(t *testing.T) {
	a := Vector{"x": 1, "y": 1}
	if got := Cosine(a, a); !approx(got, 1) {
		t.Errorf("Cosine(a, a) = %v", got)
	}
	if got := Cosine(a, Vector{"z": 1}); got != 0 {
		t.Errorf("orthogonal cosine = %v", got)
	}
	if got := Cosine(a, Vector{}); got != 0 {
		t.Errorf("empty cosine = %v", got)
	}
	if got := CosineDistance(a, Vector{"x": 1}); !approx(got, 1-1/math.Sqrt2) {
		t.Errorf("CosineDistance = %v", got)
	}
}

func TestCentroid(t *testing.T) {
	c := centroid([]Vector{{"a": 1}, {"a": 0.5, "b": 1}})
	if !approx(c["a"], 0.75) || !approx(c["b"], 0.5) {
		t.Errorf("centroid = %v", c)
	}
}

type fixedEmbedder struct {
	calls int
	err   error
}

func (e *fixedEmbedder) Embed(_ context.Context, seq []string) ([]float64, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return []float64{float64(len(seq)), 0, 1}, nil
}

func TestVectorizer_TermFrequency(t *testing.T) {
	v, err := NewVectorizer(nil, nil).Vectorize(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !approx(v["a"], 0.5) || !approx(v["b"], 0.5) {
		t.Errorf("vector = %v", v)
	}
}

func TestVectorizer_EmbedderCached(t *testing.T) {
	cache, err := NewTTLCache[Vector](100, time.Minute)
	if err != nil {
		t.Fatalf("creating cache: %v", err)
	}
	defer cache.Close()

	emb := &fixedEmbedder{}
	vz := NewVectorizer(emb, cache)
	v, err := vz.Vectorize(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v["#0"] != 2 || v["#2"] != 1 {
		t.Errorf("vector = %v", v)
	}
	if _, zero := v["#1"]; zero {
		t.Error("zero components should be omitted")
	}

	cache.Wait()
	if _, err := vz.Vectorize(context.Background(), []string{"a", "b"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if emb.calls != 1 {
		t.Errorf("embedder called %d times, want 1", emb.calls)
	}
}

func TestVectorizer_EmbedderError(t *testing.T) {
	boom := errors.New("boom")
	_, err := NewVectorizer(&fixedEmbedder{err: boom}, nil).Vectorize(context.Background(), []string{"a"})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped boom", err)
	}
}
