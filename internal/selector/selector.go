// Package selector picks a random subset of image candidates.
package selector

import "math/rand/v2"

// Select returns min(n, len(candidates)) elements drawn uniformly at random
// without replacement. Each draw picks from the elements still remaining and
// removes the pick. candidates is not modified. A nil r uses the global source.
func Select[T any](r *rand.Rand, candidates []T, n int) []T {
	k := min(n, len(candidates))
	if k <= 0 {
		return []T{}
	}

	remaining := make([]T, len(candidates))
	copy(remaining, candidates)

	selected := make([]T, 0, k)
	for range k {
		i := intN(r, len(remaining))
		selected = append(selected, remaining[i])
		remaining[i] = remaining[len(remaining)-1]
		remaining = remaining[:len(remaining)-1]
	}
	return selected
}

func intN(r *rand.Rand, n int) int {
	if r == nil {
		return rand.IntN(n)
	}
	return r.IntN(n)
}
