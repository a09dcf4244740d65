package decision

import (
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/ShimantoKabir/ABTestingToolServer/internal/domain"
)

func twoVariations(a, b int) []domain.Variation {
	return []domain.Variation{
		{ID: 10, ExperimentID: 1, Title: "Control", Traffic: a},
		{ID: 11, ExperimentID: 1, Title: "Treatment", Traffic: b},
	}
}

func TestBucketValueRange(t *testing.T) {
	for i := 0; i < 10000; i++ {
		v := BucketValue(fmt.Sprintf("user-%d", i), int64(i%50))
		if v < 1 || v > trafficScale {
			t.Fatalf("BucketValue out of range: %d", v)
		}
	}
}

func TestBucketValueDeterministic(t *testing.T) {
	first := BucketValue("visitor-abc", 42)
	for i := 0; i < 100; i++ {
		if got := BucketValue("visitor-abc", 42); got != first {
			t.Fatalf("BucketValue not deterministic: %d != %d", got, first)
		}
	}
}

func TestBucketValueVariesAcrossExperiments(t *testing.T) {
	// The same visitor should land in independent buckets per experiment.
	// With 100 experiments the odds of all values colliding are nil.
	seen := make(map[int]bool)
	for exp := int64(1); exp <= 100; exp++ {
		seen[BucketValue("visitor-abc", exp)] = true
	}
	if len(seen) < 2 {
		t.Error("bucket values should differ across experiments for one visitor")
	}
}

func TestAssignVariationDeterministic(t *testing.T) {
	exp := &domain.Experiment{ID: 7, Variations: twoVariations(50, 50)}
	first := AssignVariation("visitor-xyz", exp)
	if first == nil {
		t.Fatal("50/50 split should always assign")
	}
	for i := 0; i < 100; i++ {
		got := AssignVariation("visitor-xyz", exp)
		if got == nil || got.ID != first.ID {
			t.Fatalf("assignment not stable: got %v, want variation %d", got, first.ID)
		}
	}
}

func TestVariationForBucketCutover(t *testing.T) {
	// 30/70 split: variation A owns [1, 3000], B owns [3001, 10000].
	variations := twoVariations(30, 70)

	tests := []struct {
		bucketVal int
		wantID    int64
	}{
		{1, 10},
		{3000, 10},
		{3001, 11},
		{10000, 11},
	}
	for _, tt := range tests {
		got := variationForBucket(variations, tt.bucketVal)
		if got == nil {
			t.Fatalf("bucketVal %d: no variation selected", tt.bucketVal)
		}
		if got.ID != tt.wantID {
			t.Errorf("bucketVal %d: got variation %d, want %d", tt.bucketVal, got.ID, tt.wantID)
		}
	}
}

func TestVariationForBucketAllocationGap(t *testing.T) {
	// Weights summing to 60% leave [6001, 10000] unreachable: no decision,
	// not an error.
	variations := twoVariations(30, 30)

	if got := variationForBucket(variations, 6000); got == nil {
		t.Error("bucketVal 6000 is inside the allocation, should select")
	}
	if got := variationForBucket(variations, 6001); got != nil {
		t.Errorf("bucketVal 6001 is past the allocation, got variation %d", got.ID)
	}
}

func TestVariationForBucketZeroWeight(t *testing.T) {
	variations := []domain.Variation{
		{ID: 20, Traffic: 0},
		{ID: 21, Traffic: 100},
	}
	for _, bucketVal := range []int{1, 5000, 10000} {
		got := variationForBucket(variations, bucketVal)
		if got == nil || got.ID != 21 {
			t.Errorf("bucketVal %d: zero-weight variation must never win", bucketVal)
		}
	}
}

func TestAssignVariationDistribution(t *testing.T) {
	if testing.Short() {
		t.Skip("distribution trial is slow")
	}

	exp := &domain.Experiment{ID: 99, Variations: twoVariations(50, 50)}

	const trials = 100000
	counts := make(map[int64]int)
	for i := 0; i < trials; i++ {
		v := AssignVariation(uuid.NewString(), exp)
		if v == nil {
			t.Fatal("full allocation must always assign")
		}
		counts[v.ID]++
	}

	for id, n := range counts {
		share := float64(n) / trials
		if share < 0.45 || share > 0.55 {
			t.Errorf("variation %d received %.2f%% of a 50/50 split", id, share*100)
		}
	}
}
