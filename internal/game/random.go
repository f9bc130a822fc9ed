package game

import (
	"golang.org/x/exp/rand"
)

// RandomSource supplies every random outcome the engine uses: event node
// placement at setup and coin flips when a token lands on an event node.
type RandomSource interface {
	Intn(n int) int
	// CoinFlip returns true for heads.
	CoinFlip() bool
}

type seededRandom struct {
	rng *rand.Rand
}

// NewSeededRandom returns a reproducible source for the given seed.
func NewSeededRandom(seed uint64) RandomSource {
	return &seededRandom{rng: rand.New(rand.NewSource(seed))}
}

func (s *seededRandom) Intn(n int) int {
	return s.rng.Intn(n)
}

func (s *seededRandom) CoinFlip() bool {
	return s.rng.Intn(2) == 0
}

// ScriptedRandom replays fixed outcomes. When a script runs out, Intn
// returns 0 and CoinFlip returns heads.
type ScriptedRandom struct {
	Flips []bool
	Ints  []int
}

// Intn implements RandomSource.
func (s *ScriptedRandom) Intn(n int) int {
	if len(s.Ints) == 0 || n <= 0 {
		return 0
	}
	v := s.Ints[0]
	s.Ints = s.Ints[1:]
	if v < 0 {
		v = -v
	}
	return v % n
}

// CoinFlip implements RandomSource.
func (s *ScriptedRandom) CoinFlip() bool {
	if len(s.Flips) == 0 {
		return true
	}
	v := s.Flips[0]
	s.Flips = s.Flips[1:]
	return v
}
