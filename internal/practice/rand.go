// Package practice prepares and scores practice rounds: blank selection for
// the sentence game and distractor selection for the word game.
package practice

import (
	"math/rand/v2"
	"time"
)

// Rand is the random source used by the round preparation algorithms.
// *rand.Rand satisfies it.
type Rand interface {
	IntN(n int) int
	Shuffle(n int, swap func(i, j int))
}

// NewRand returns a PCG-backed source seeded with seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// NewTimeRand returns a source seeded from the clock.
func NewTimeRand() *rand.Rand {
	return NewRand(uint64(time.Now().UnixNano()))
}
