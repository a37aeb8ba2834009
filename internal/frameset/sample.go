package frameset

import (
	"math/rand/v2"
	"sort"
)

// Sample draws min(n, total) distinct indices uniformly at random from
// [0, total) and returns them in ascending order. It runs a partial
// Fisher-Yates shuffle over a sparse swap table, so memory is O(n) no
// matter how long the video is.
func Sample(rng *rand.Rand, total, n int) []int {
	if n > total {
		n = total
	}
	if n <= 0 {
		return nil
	}

	swapped := make(map[int]int, n)
	lookup := func(i int) int {
		if v, ok := swapped[i]; ok {
			return v
		}
		return i
	}

	out := make([]int, n)
	for i := 0; i < n; i++ {
		j := i + rng.IntN(total-i)
		out[i] = lookup(j)
		swapped[j] = lookup(i)
	}

	sort.Ints(out)
	return out
}
