package datasets

import (
	"fmt"
	"math/rand"
)

// IndexCycler hands out the indices of a fixed permutation of [0, N) in
// order, wrapping back to the start after N draws.
//
// An IndexCycler is not safe for concurrent use.
type IndexCycler struct {
	perm   []int
	cursor int

	// reshuffle, when set, permutes perm again every time the cursor wraps.
	reshuffle *rand.Rand
}

// NewIndexCycler creates a cycler over perm, which must be a permutation of
// [0, len(perm)). The slice is copied.
func NewIndexCycler(perm []int) (*IndexCycler, error) {
	n := len(perm)
	if n == 0 {
		return nil, ErrEmptyPartition
	}
	seen := make([]bool, n)
	for i, v := range perm {
		if v < 0 || v >= n {
			return nil, fmt.Errorf("index %d at position %d out of range [0, %d)", v, i, n)
		}
		if seen[v] {
			return nil, fmt.Errorf("index %d repeated at position %d", v, i)
		}
		seen[v] = true
	}
	c := &IndexCycler{perm: make([]int, n)}
	copy(c.perm, perm)
	return c, nil
}

// NewShuffledCycler creates a cycler over a uniformly random permutation of
// [0, n) drawn from rng.
func NewShuffledCycler(n int, rng *rand.Rand) (*IndexCycler, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: cycler size %d", ErrEmptyPartition, n)
	}
	return &IndexCycler{perm: rng.Perm(n)}, nil
}

// SetReshuffle makes the cycler draw a new permutation from rng every time
// it wraps. A nil rng restores the fixed order.
func (c *IndexCycler) SetReshuffle(rng *rand.Rand) {
	c.reshuffle = rng
}

// Next returns perm[cursor] and advances the cursor modulo N.
func (c *IndexCycler) Next() int {
	idx := c.perm[c.cursor]
	c.cursor++
	if c.cursor == len(c.perm) {
		c.cursor = 0
		if c.reshuffle != nil {
			c.reshuffle.Shuffle(len(c.perm), func(i, j int) {
				c.perm[i], c.perm[j] = c.perm[j], c.perm[i]
			})
		}
	}
	return idx
}

// Len returns N.
func (c *IndexCycler) Len() int {
	return len(c.perm)
}

// Cursor returns the position of the next draw, in [0, N).
func (c *IndexCycler) Cursor() int {
	return c.cursor
}

// Permutation returns a copy of the current permutation.
func (c *IndexCycler) Permutation() []int {
	out := make([]int, len(c.perm))
	copy(out, c.perm)
	return out
}
