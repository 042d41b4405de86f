package game

import (
	"hash/fnv"
	"math/rand"
)

// SeedFor derives a per-player seed from the room seed and the player
// discriminator. Both clients and the server derive the same value, so
// piece sequences line up without exchanging piece data.
func SeedFor(roomSeed int64, discriminator string) int64 {
	h := fnv.New64a()
	h.Write([]byte(discriminator))
	return roomSeed ^ int64(h.Sum64())
}

// Stream is a deterministic random stream. Engines keep two: one for
// piece generation and one for ability randomness, so board mutators
// never disturb the piece sequence.
type Stream struct {
	rng *rand.Rand
}

// NewStream creates a stream from a seed.
func NewStream(seed int64) *Stream {
	return &Stream{rng: rand.New(rand.NewSource(seed))}
}

// Intn returns a uniform int in [0, n).
func (s *Stream) Intn(n int) int {
	return s.rng.Intn(n)
}

// Float64 returns a uniform float in [0, 1).
func (s *Stream) Float64() float64 {
	return s.rng.Float64()
}

// Perm returns a random permutation of [0, n).
func (s *Stream) Perm(n int) []int {
	return s.rng.Perm(n)
}

// PieceGenerator deals piece types with the seven-bag rule: every run
// of seven pieces contains each standard type exactly once.
type PieceGenerator struct {
	stream *Stream
	bag    []PieceType
}

// NewPieceGenerator creates a generator for the given seed.
func NewPieceGenerator(seed int64) *PieceGenerator {
	return &PieceGenerator{stream: NewStream(seed)}
}

// Next deals the next piece type, refilling and shuffling the bag when
// it empties.
func (g *PieceGenerator) Next() PieceType {
	if len(g.bag) == 0 {
		g.refill()
	}
	t := g.bag[0]
	g.bag = g.bag[1:]
	return t
}

func (g *PieceGenerator) refill() {
	g.bag = []PieceType{PieceI, PieceO, PieceT, PieceS, PieceZ, PieceJ, PieceL}
	for i := len(g.bag) - 1; i > 0; i-- {
		j := g.stream.Intn(i + 1)
		g.bag[i], g.bag[j] = g.bag[j], g.bag[i]
	}
}
