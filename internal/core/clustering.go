package core

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/valter-silva-au/tracerung/pkg/models"
)

// ClusterItem is one sequence to cluster.
type ClusterItem struct {
	ID        string
	Sequence  []string
	Workspace string
	Intent    string
}

// ClusterOptions configures one clustering run.
type ClusterOptions struct {
	models.ClusteringConfig
	Budget time.Duration
}

// Cluster is one group of items, by index into ClusterResult.Items.
type Cluster struct {
	ID      int
	Members []int
	Medoid  int
}

// ClusterResult is the outcome of one clustering run. Cluster IDs are
// ordered by size, then by the smallest member ID, and are only stable
// within the run.
type ClusterResult struct {
	Strategy    string
	Items       []ClusterItem
	Clusters    []Cluster
	Assignments []models.ClusterAssignment
	Complete    bool
	Warnings    []error
}

// Clusterer groups similar sequences and summarizes the groups as a
// behavioral library.
type Clusterer interface {
	Cluster(ctx context.Context, items []ClusterItem, opts ClusterOptions) ClusterResult
	BuildLibrary(result ClusterResult) []models.BehavioralLibraryEntry
}

type clusterer struct {
	vectorizer Vectorizer
	similarity *TTLCache[float64]
	logger     *zap.Logger
}

// NewClusterer creates a Clusterer. vectorizer defaults to term frequency;
// similarity caches DTW distances and may be nil.
func NewClusterer(vectorizer Vectorizer, similarity *TTLCache[float64], logger *zap.Logger) Clusterer {
	if vectorizer == nil {
		vectorizer = NewVectorizer(nil, nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &clusterer{vectorizer: vectorizer, similarity: similarity, logger: logger}
}

func (c *clusterer) Cluster(ctx context.Context, items []ClusterItem, opts ClusterOptions) ClusterResult {
	snapshot := make([]ClusterItem, len(items))
	for i, it := range items {
		it.Sequence = append([]string(nil), it.Sequence...)
		snapshot[i] = it
	}
	sort.SliceStable(snapshot, func(i, j int) bool { return snapshot[i].ID < snapshot[j].ID })

	strategy := opts.Strategy
	if strategy == "" || strategy == models.StrategyAuto {
		strategy = models.StrategyThreshold
		if opts.AutoKMeansAbove > 0 && len(snapshot) > opts.AutoKMeansAbove {
			strategy = models.StrategyKMeans
		}
	}
	res := ClusterResult{Strategy: strategy, Items: snapshot, Complete: true}
	if len(snapshot) < 2 {
		res.Items = nil
		res.Warnings = append(res.Warnings, &InsufficientCorpusError{Stage: "clustering", Have: len(snapshot), Need: 2})
		return res
	}

	budget := NewBudget(ctx, "clustering", opts.Budget)
	defer budget.Release()

	var groups [][]int
	var vectors []Vector
	switch strategy {
	case models.StrategyKMeans:
		vectors, res.Warnings = c.vectorize(budget.Context(), snapshot)
		groups = c.kmeans(budget, vectors, opts, &res)
	default:
		groups = c.threshold(budget, snapshot, opts.DTWThreshold, &res)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if len(groups[i]) != len(groups[j]) {
			return len(groups[i]) > len(groups[j])
		}
		return groups[i][0] < groups[j][0]
	})

	res.Assignments = make([]models.ClusterAssignment, 0, len(snapshot))
	for id, members := range groups {
		cl := Cluster{ID: id, Members: members}
		var dist func(i int) float64
		if strategy == models.StrategyKMeans {
			cent := centroid(pick(vectors, members))
			dist = func(i int) float64 { return CosineDistance(vectors[i], cent) }
		}
		cl.Medoid = c.medoid(snapshot, members)
		if dist == nil {
			med := snapshot[cl.Medoid].Sequence
			dist = func(i int) float64 { return c.dtw(snapshot[i].Sequence, med) }
		}
		for _, i := range members {
			res.Assignments = append(res.Assignments, models.ClusterAssignment{
				SequenceID:         snapshot[i].ID,
				ClusterID:          id,
				DistanceToCentroid: dist(i),
			})
		}
		res.Clusters = append(res.Clusters, cl)
	}
	sort.SliceStable(res.Assignments, func(i, j int) bool {
		return res.Assignments[i].SequenceID < res.Assignments[j].SequenceID
	})

	c.logger.Debug("clustering finished",
		zap.String("strategy", strategy),
		zap.Int("items", len(snapshot)),
		zap.Int("clusters", len(res.Clusters)),
		zap.Bool("complete", res.Complete))
	return res
}

// threshold links every pair within the DTW threshold and returns the
// connected components, members in ID order.
func (c *clusterer) threshold(b *Budget, items []ClusterItem, limit float64, res *ClusterResult) [][]int {
	parent := make([]int, len(items))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}

	for i := range items {
		if b.Expired() {
			res.Complete = false
			res.Warnings = append(res.Warnings, b.Warning(fmt.Sprintf("%d of %d items", i, len(items))))
			break
		}
		for j := i + 1; j < len(items); j++ {
			ri, rj := find(i), find(j)
			if ri == rj {
				continue
			}
			if c.dtw(items[i].Sequence, items[j].Sequence) <= limit {
				parent[max(ri, rj)] = min(ri, rj)
			}
		}
	}

	byRoot := map[int][]int{}
	var roots []int
	for i := range items {
		r := find(i)
		if _, ok := byRoot[r]; !ok {
			roots = append(roots, r)
		}
		byRoot[r] = append(byRoot[r], i)
	}
	groups := make([][]int, 0, len(roots))
	for _, r := range roots {
		groups = append(groups, byRoot[r])
	}
	return groups
}

func (c *clusterer) vectorize(ctx context.Context, items []ClusterItem) ([]Vector, []error) {
	var warnings []error
	vectors := make([]Vector, len(items))
	for i, it := range items {
		v, err := c.vectorizer.Vectorize(ctx, it.Sequence)
		if err != nil {
			if len(warnings) == 0 {
				warnings = append(warnings, fmt.Errorf("vectorizing %s, using term frequency: %w", it.ID, err))
			}
			v = TermFrequency(it.Sequence)
		}
		vectors[i] = v
	}
	return vectors, warnings
}

// kmeans partitions vectors by cosine distance from k-means++ seeds drawn
// from a generator seeded with opts.Seed.
func (c *clusterer) kmeans(b *Budget, vectors []Vector, opts ClusterOptions, res *ClusterResult) [][]int {
	n := len(vectors)
	k := min(max(opts.K, 1), n)
	rng := rand.New(rand.NewPCG(uint64(opts.Seed), uint64(opts.Seed)^0x9e3779b97f4a7c15))

	centers := []Vector{vectors[rng.IntN(n)]}
	dist := make([]float64, n)
	for len(centers) < k {
		total := 0.0
		for i, v := range vectors {
			d := math.Inf(1)
			for _, ct := range centers {
				d = min(d, CosineDistance(v, ct))
			}
			dist[i] = d * d
			total += dist[i]
		}
		if total == 0 {
			break
		}
		target := rng.Float64() * total
		next := n - 1
		for i, d := range dist {
			target -= d
			if target < 0 {
				next = i
				break
			}
		}
		centers = append(centers, vectors[next])
	}

	assign := make([]int, n)
	for i := range assign {
		assign[i] = -1
	}
	iterations := max(opts.MaxIterations, 1)
	for iter := 0; iter < iterations; iter++ {
		if b.Expired() {
			res.Complete = false
			res.Warnings = append(res.Warnings, b.Warning(fmt.Sprintf("%d iterations", iter)))
			break
		}
		changed := false
		for i, v := range vectors {
			best, bestD := 0, math.Inf(1)
			for ci, ct := range centers {
				if d := CosineDistance(v, ct); d < bestD {
					best, bestD = ci, d
				}
			}
			if assign[i] != best {
				assign[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}
		members := make([][]Vector, len(centers))
		for i, ci := range assign {
			members[ci] = append(members[ci], vectors[i])
		}
		for ci := range centers {
			if len(members[ci]) > 0 {
				centers[ci] = centroid(members[ci])
			}
		}
	}

	byCenter := make([][]int, len(centers))
	for i, ci := range assign {
		if ci < 0 {
			ci = 0
		}
		byCenter[ci] = append(byCenter[ci], i)
	}
	groups := make([][]int, 0, len(centers))
	for _, g := range byCenter {
		if len(g) > 0 {
			groups = append(groups, g)
		}
	}
	return groups
}

// medoid returns the member with the least total DTW distance to the rest
// of its cluster, ties to the smallest ID. Every member is a candidate; the
// pairwise distances are shared through the similarity cache.
func (c *clusterer) medoid(items []ClusterItem, members []int) int {
	best, bestTotal := members[0], math.Inf(1)
	for _, i := range members {
		total := 0.0
		for _, j := range members {
			if i != j {
				total += c.dtw(items[i].Sequence, items[j].Sequence)
			}
		}
		if total < bestTotal {
			best, bestTotal = i, total
		}
	}
	return best
}

// dtw memoizes DTW in the similarity cache under an order-independent key.
func (c *clusterer) dtw(a, b []string) float64 {
	ka, kb := strings.Join(a, "\x1f"), strings.Join(b, "\x1f")
	if kb < ka {
		ka, kb = kb, ka
	}
	key := HashKey("dtw", ka, kb)
	if d, ok := c.similarity.Get(key); ok {
		return d
	}
	d := DTW(a, b)
	c.similarity.Set(key, d)
	return d
}

func (c *clusterer) BuildLibrary(result ClusterResult) []models.BehavioralLibraryEntry {
	total := len(result.Items)
	entries := make([]models.BehavioralLibraryEntry, 0, len(result.Clusters))
	for _, cl := range result.Clusters {
		rep := result.Items[cl.Medoid]
		workspaces := map[string]bool{}
		intents := map[string]int{}
		for _, i := range cl.Members {
			it := result.Items[i]
			if it.Workspace != "" {
				workspaces[it.Workspace] = true
			}
			if it.Intent != "" && it.Intent != IntentUnknown {
				intents[it.Intent]++
			}
		}
		intent := IntentUnknown
		for in, n := range intents {
			if n > intents[intent] || (n == intents[intent] && in < intent) {
				intent = in
			}
		}
		entries = append(entries, models.BehavioralLibraryEntry{
			ClusterID:             cl.ID,
			Name:                  libraryName(intent, rep.Sequence),
			RepresentativeID:      rep.ID,
			RepresentativePattern: append([]string(nil), rep.Sequence...),
			Size:                  len(cl.Members),
			Frequency:             float64(len(cl.Members)) / float64(max(total, 1)),
			Workspaces:            sortedKeys(workspaces),
			DominantIntent:        intent,
		})
	}
	return entries
}

// libraryName names a workflow after its intent and its first distinct
// symbols, e.g. "debugging: EV_1a2b3c > EV_4d5e6f".
func libraryName(intent string, pattern []string) string {
	var head []string
	for _, s := range pattern {
		if len(head) > 0 && head[len(head)-1] == s {
			continue
		}
		head = append(head, s)
		if len(head) == 3 {
			break
		}
	}
	if len(head) == 0 {
		return intent
	}
	return intent + ": " + strings.Join(head, " > ")
}
