package core

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/valter-silva-au/tracerung/pkg/models"
)

func thresholdItems() []ClusterItem {
	return []ClusterItem{
		{ID: "t5", Sequence: []string{"q", "r", "s", "t"}, Workspace: "w2", Intent: "refactoring"},
		{ID: "t3", Sequence: []string{"a", "b", "c", "x"}, Workspace: "w1", Intent: "feature"},
		{ID: "t1", Sequence: []string{"a", "b", "c", "d"}, Workspace: "w1", Intent: "debugging"},
		{ID: "t4", Sequence: []string{"q", "r", "s", "t"}, Workspace: "w2", Intent: "refactoring"},
		{ID: "t2", Sequence: []string{"a", "b", "c", "d"}, Workspace: "w3", Intent: "debugging"},
	}
}

func clusterOpts(strategy string) ClusterOptions {
	return ClusterOptions{ClusteringConfig: models.ClusteringConfig{
		Strategy:        strategy,
		DTWThreshold:    0.3,
		K:               2,
		Seed:            42,
		MaxIterations:   20,
		AutoKMeansAbove: 1000,
	}}
}

func memberIDs(res ClusterResult, cl Cluster) []string {
	out := make([]string, len(cl.Members))
	for i, m := range cl.Members {
		out[i] = res.Items[m].ID
	}
	return out
}

func TestCluster_Threshold(t *testing.T) {
	res := NewClusterer(nil, nil, nil).Cluster(context.Background(), thresholdItems(), clusterOpts(models.StrategyThreshold))

	if !res.Complete || res.Strategy != models.StrategyThreshold {
		t.Fatalf("complete = %v, strategy = %q", res.Complete, res.Strategy)
	}
	if len(res.Clusters) != 2 {
		t.Fatalf("clusters = %+v", res.Clusters)
	}
	if diff := cmp.Diff([]string{"t1", "t2", "t3"}, memberIDs(res, res.Clusters[0])); diff != "" {
		t.Errorf("cluster 0 (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"t4", "t5"}, memberIDs(res, res.Clusters[1])); diff != "" {
		t.Errorf("cluster 1 (-want +got):\n%s", diff)
	}
	if got := res.Items[res.Clusters[0].Medoid].ID; got != "t1" {
		t.Errorf("medoid = %s, want t1", got)
	}

	want := []models.ClusterAssignment{
		{SequenceID: "t1", ClusterID: 0, DistanceToCentroid: 0},
		{SequenceID: "t2", ClusterID: 0, DistanceToCentroid: 0},
		{SequenceID: "t3", ClusterID: 0, DistanceToCentroid: 0.25},
		{SequenceID: "t4", ClusterID: 1, DistanceToCentroid: 0},
		{SequenceID: "t5", ClusterID: 1, DistanceToCentroid: 0},
	}
	if diff := cmp.Diff(want, res.Assignments); diff != "" {
		t.Errorf("assignments (-want +got):\n%s", diff)
	}
}

func TestCluster_ThresholdZeroSeparatesDistinct(t *testing.T) {
	opts := clusterOpts(models.StrategyThreshold)
	opts.DTWThreshold = 0
	res := NewClusterer(nil, nil, nil).Cluster(context.Background(), thresholdItems(), opts)
	if len(res.Clusters) != 3 {
		t.Fatalf("clusters = %d, want 3", len(res.Clusters))
	}
	if got := memberIDs(res, res.Clusters[2]); !cmp.Equal(got, []string{"t3"}) {
		t.Errorf("singleton cluster = %v", got)
	}
}

func kmeansItems() []ClusterItem {
	return []ClusterItem{
		{ID: "a1", Sequence: []string{"a", "b"}},
		{ID: "a2", Sequence: []string{"b", "a"}},
		{ID: "a3", Sequence: []string{"a", "b", "a", "b"}},
		{ID: "x1", Sequence: []string{"x", "y"}},
		{ID: "x2", Sequence: []string{"y", "x", "y", "x"}},
	}
}

func TestCluster_KMeans(t *testing.T) {
	res := NewClusterer(nil, nil, nil).Cluster(context.Background(), kmeansItems(), clusterOpts(models.StrategyKMeans))
	if res.Strategy != models.StrategyKMeans || len(res.Clusters) != 2 {
		t.Fatalf("strategy = %q, clusters = %+v", res.Strategy, res.Clusters)
	}
	if diff := cmp.Diff([]string{"a1", "a2", "a3"}, memberIDs(res, res.Clusters[0])); diff != "" {
		t.Errorf("cluster 0 (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"x1", "x2"}, memberIDs(res, res.Clusters[1])); diff != "" {
		t.Errorf("cluster 1 (-want +got):\n%s", diff)
	}
}

func TestCluster_KMeansDeterministicWithSeed(t *testing.T) {
	items := []ClusterItem{
		{ID: "1", Sequence: []string{"a", "b", "c"}},
		{ID: "2", Sequence: []string{"a", "c", "c"}},
		{ID: "3", Sequence: []string{"b", "b", "d"}},
		{ID: "4", Sequence: []string{"d", "e"}},
		{ID: "5", Sequence: []string{"e", "e", "a"}},
		{ID: "6", Sequence: []string{"c", "d", "e"}},
	}
	opts := clusterOpts(models.StrategyKMeans)
	opts.K = 3
	c := NewClusterer(nil, nil, nil)
	first := c.Cluster(context.Background(), items, opts)
	for i := 0; i < 5; i++ {
		again := c.Cluster(context.Background(), items, opts)
		if diff := cmp.Diff(first.Assignments, again.Assignments); diff != "" {
			t.Fatalf("run %d differs (-first +again):\n%s", i, diff)
		}
	}
}

func TestCluster_AutoSwitchesToKMeans(t *testing.T) {
	opts := clusterOpts(models.StrategyAuto)
	opts.AutoKMeansAbove = 3
	res := NewClusterer(nil, nil, nil).Cluster(context.Background(), kmeansItems(), opts)
	if res.Strategy != models.StrategyKMeans {
		t.Errorf("strategy = %q, want kmeans", res.Strategy)
	}
	opts.AutoKMeansAbove = 10
	res = NewClusterer(nil, nil, nil).Cluster(context.Background(), kmeansItems(), opts)
	if res.Strategy != models.StrategyThreshold {
		t.Errorf("strategy = %q, want threshold", res.Strategy)
	}
}

func TestCluster_Insufficient(t *testing.T) {
	res := NewClusterer(nil, nil, nil).Cluster(context.Background(), thresholdItems()[:1], clusterOpts(models.StrategyThreshold))
	var ice *InsufficientCorpusError
	if len(res.Warnings) != 1 || !errors.As(res.Warnings[0], &ice) || ice.Need != 2 {
		t.Fatalf("warnings = %v", res.Warnings)
	}
	if len(res.Clusters) != 0 || len(res.Assignments) != 0 {
		t.Errorf("result = %+v, want empty", res)
	}
}

func TestCluster_CancelledIsIncomplete(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := NewClusterer(nil, nil, nil).Cluster(ctx, thresholdItems(), clusterOpts(models.StrategyThreshold))
	if res.Complete {
		t.Fatal("cancelled run reported complete")
	}
	var bw *BudgetExceededWarning
	if len(res.Warnings) == 0 || !errors.As(res.Warnings[0], &bw) {
		t.Errorf("warnings = %v", res.Warnings)
	}
	if len(res.Assignments) != 5 {
		t.Errorf("partial result should still assign every item, got %d", len(res.Assignments))
	}
}

func TestCluster_DoesNotMutateInput(t *testing.T) {
	items := thresholdItems()
	NewClusterer(nil, nil, nil).Cluster(context.Background(), items, clusterOpts(models.StrategyThreshold))
	if diff := cmp.Diff(thresholdItems(), items); diff != "" {
		t.Errorf("input mutated (-want +got):\n%s", diff)
	}
}

func TestCluster_UsesSimilarityCache(t *testing.T) {
	caches, err := NewCaches(100, 0)
	if err != nil {
		t.Fatalf("creating caches: %v", err)
	}
	defer caches.Close()

	c := NewClusterer(nil, caches.Similarity, nil)
	first := c.Cluster(context.Background(), thresholdItems(), clusterOpts(models.StrategyThreshold))
	caches.Similarity.Wait()
	again := c.Cluster(context.Background(), thresholdItems(), clusterOpts(models.StrategyThreshold))
	if diff := cmp.Diff(first.Assignments, again.Assignments); diff != "" {
		t.Errorf("cached run differs (-first +again):\n%s", diff)
	}
}

func TestBuildLibrary(t *testing.T) {
	c := NewClusterer(nil, nil, nil)
	res := c.Cluster(context.Background(), thresholdItems(), clusterOpts(models.StrategyThreshold))
	lib := c.BuildLibrary(res)

	want := []models.BehavioralLibraryEntry{
		{
			ClusterID:             0,
			Name:                  "debugging: a > b > c",
			RepresentativeID:      "t1",
			RepresentativePattern: []string{"a", "b", "c", "d"},
			Size:                  3,
			Frequency:             0.6,
			Workspaces:            []string{"w1", "w3"},
			DominantIntent:        "debugging",
		},
		{
			ClusterID:             1,
			Name:                  "refactoring: q > r > s",
			RepresentativeID:      "t4",
			RepresentativePattern: []string{"q", "r", "s", "t"},
			Size:                  2,
			Frequency:             0.4,
			Workspaces:            []string{"w2"},
			DominantIntent:        "refactoring",
		},
	}
	if diff := cmp.Diff(want, lib); diff != "" {
		t.Errorf("library mismatch (-want +got):\n%s", diff)
	}
}

func TestLibraryName(t *testing.T) {
	if got := libraryName("testing", []string{"a", "a", "b", "b", "c", "d"}); got != "testing: a > b > c" {
		t.Errorf("libraryName = %q", got)
	}
	if got := libraryName("unknown", nil); got != "unknown" {
		t.Errorf("libraryName(empty) = %q", got)
	}
}
