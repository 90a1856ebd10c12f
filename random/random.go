// Package random provides the deterministic-but-unpredictable number source
// used to initialise hardware state that real silicon leaves undefined (SRAM
// power-on contents, uninitialised CPU registers, etc).
//
// A single Random is owned by the machine instance and shared by every
// component so that, given the same seed, two machines power on into
// identical "random" states -- which is what save-state round-trips and
// replay determinism require.
package random

import "math/rand"

// Random wraps a seeded PRNG. It is not safe for concurrent use; the machine
// is logically single-threaded so this is not a practical restriction.
type Random struct {
	src *rand.Rand
	seed int64
}

// NewRandom creates a Random seeded with the given value. A seed of zero
// is replaced by 1, so every Random is deterministic.
func NewRandom(seed int64) *Random {
	if seed == 0 {
		seed = 1
	}
	return &Random{src: rand.New(rand.NewSource(seed)), seed: seed}
}

// Seed returns the seed this Random was created with, so it can be recorded
// in a save-state or event-log header for exact replay.
func (r *Random) Seed() int64 {
	return r.seed
}

// NoRewind returns a random value in [0, limit) without affecting any replay
// log. Used for state that is genuinely unobservable by software (initial
// register contents) as opposed to state a replay must reproduce exactly.
func (r *Random) NoRewind(limit int) int {
	if limit <= 0 {
		return 0
	}
	return r.src.Intn(limit)
}
