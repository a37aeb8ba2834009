package frameset

import (
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSample(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	tests := []struct {
		name      string
		total     int
		requested int
	}{
		{name: "fewer than total", total: 1000, requested: 10},
		{name: "equal to total", total: 25, requested: 25},
		{name: "more than total", total: 7, requested: 50},
		{name: "single frame video", total: 1, requested: 3},
		{name: "long video", total: 10_000_000, requested: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sample(rng, tt.total, tt.requested)

			want := min(tt.requested, tt.total)
			require.Len(t, got, want)
			assert.True(t, sort.IntsAreSorted(got))

			seen := make(map[int]bool, len(got))
			for i, idx := range got {
				assert.GreaterOrEqual(t, idx, 0)
				assert.Less(t, idx, tt.total)
				assert.False(t, seen[idx], "duplicate index %d", idx)
				seen[idx] = true
				if i > 0 {
					assert.Greater(t, idx, got[i-1])
				}
			}
		})
	}
}

func TestSample_FullRangeIsIdentity(t *testing.T) {
	got := Sample(rand.New(rand.NewPCG(3, 4)), 5, 5)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestSample_Degenerate(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	assert.Empty(t, Sample(rng, 0, 5))
	assert.Empty(t, Sample(rng, 10, 0))
	assert.Empty(t, Sample(rng, 10, -1))
}

func TestSample_Deterministic(t *testing.T) {
	a := Sample(rand.New(rand.NewPCG(42, 42)), 500, 20)
	b := Sample(rand.New(rand.NewPCG(42, 42)), 500, 20)
	assert.Equal(t, a, b)
}

func TestSample_Uniform(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 8))
	const total, n, rounds = 10, 3, 20000

	counts := make([]int, total)
	for i := 0; i < rounds; i++ {
		for _, idx := range Sample(rng, total, n) {
			counts[idx]++
		}
	}

	expected := float64(rounds*n) / total
	for idx, c := range counts {
		assert.InEpsilon(t, expected, float64(c), 0.08, "index %d drawn %d times", idx, c)
	}
}
