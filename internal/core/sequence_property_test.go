package core

import (
	"testing"

	"pgregory.net/rapid"
)

func genSequence(t *rapid.T, label string) []string {
	return rapid.SliceOfN(rapid.SampledFrom([]string{"a", "b", "c", "d", "e"}), 0, 12).Draw(t, label)
}

// Feature: tracerung, Property: DTW of a sequence with itself is zero
func TestProperty_DTWSelfZero(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := genSequence(t, "s")
		if d := DTW(s, s); d != 0 {
			t.Fatalf("DTW(%v, itself) = %v", s, d)
		}
	})
}

// Feature: tracerung, Property: DTW is symmetric and bounded
func TestProperty_DTWSymmetricBounded(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := genSequence(t, "a")
		b := genSequence(t, "b")
		ab, ba := DTW(a, b), DTW(b, a)
		if ab != ba {
			t.Fatalf("DTW(a, b) = %v, DTW(b, a) = %v", ab, ba)
		}
		if ab < 0 || ab > 1 {
			t.Fatalf("DTW = %v out of [0, 1]", ab)
		}
	})
}

// Feature: tracerung, Property: cosine similarity is symmetric and bounded
func TestProperty_CosineSymmetricBounded(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := TermFrequency(genSequence(t, "a"))
		b := TermFrequency(genSequence(t, "b"))
		ab, ba := Cosine(a, b), Cosine(b, a)
		if !approx(ab, ba) {
			t.Fatalf("Cosine(a, b) = %v, Cosine(b, a) = %v", ab, ba)
		}
		if ab < -1e-9 || ab > 1+1e-9 {
			t.Fatalf("cosine %v out of range", ab)
		}
		if d := CosineDistance(a, b); d < 0 || d > 1 {
			t.Fatalf("distance %v out of range", d)
		}
	})
}

// Feature: tracerung, Property: the medoid minimizes total DTW over every member
func TestProperty_MedoidIsExact(t *testing.T) {
	c := NewClusterer(nil, nil, nil).(*clusterer)
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(2, 90).Draw(t, "n")
		items := make([]ClusterItem, n)
		members := make([]int, n)
		for i := range items {
			items[i] = ClusterItem{Sequence: genSequence(t, "seq")}
			members[i] = i
		}

		want, wantTotal := -1, 0.0
		for _, i := range members {
			total := 0.0
			for _, j := range members {
				if i != j {
					total += DTW(items[i].Sequence, items[j].Sequence)
				}
			}
			if want < 0 || total < wantTotal {
				want, wantTotal = i, total
			}
		}
		if got := c.medoid(items, members); got != want {
			t.Fatalf("medoid = %d, want %d of %d members", got, want, n)
		}
	})
}
