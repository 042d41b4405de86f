package ai

import (
	"math"

	"github.com/blockfall/blockfall-server-go/internal/game"
)

// Placement scoring weights. Lines won are worth height; holes are
// poison.
const (
	linesWeight     = 0.76
	holesWeight     = 0.36
	heightWeight    = 0.51
	bumpinessWeight = 0.18
)

// Plan enumerates every (rotation, column) placement of the current
// piece, scores the resulting board, and returns the move list
// steering the piece there: rotations first, then horizontal moves,
// then a hard drop. Enumeration order is fixed and ties keep the first
// candidate, so identical inputs always yield identical plans.
func Plan(b *game.Board, p *game.Piece) []game.Input {
	var (
		found         bool
		bestScore     = math.Inf(-1)
		bestRotations int
		bestX         int
	)

	work := p.Clone()
	for r := 0; r < 4; r++ {
		if r > 0 {
			work.Shape = work.RotatedShape()
		}
		for x := 0; x <= b.Width-work.Width(); x++ {
			if !b.Fits(work.Shape, x, p.Y) {
				continue
			}
			y := p.Y
			for b.Fits(work.Shape, x, y+1) {
				y++
			}
			score := scorePlacement(b, work, x, y)
			if !found || score > bestScore {
				found = true
				bestScore = score
				bestRotations = r
				bestX = x
			}
		}
	}
	if !found {
		return []game.Input{game.InputHardDrop}
	}

	moves := make([]game.Input, 0, bestRotations+4)
	for i := 0; i < bestRotations; i++ {
		moves = append(moves, game.InputRotate)
	}
	for dx := bestX - p.X; dx != 0; {
		if dx > 0 {
			moves = append(moves, game.InputMoveRight)
			dx--
		} else {
			moves = append(moves, game.InputMoveLeft)
			dx++
		}
	}
	return append(moves, game.InputHardDrop)
}

// scorePlacement locks the shape into a board copy and rates what is
// left.
func scorePlacement(b *game.Board, work *game.Piece, x, y int) float64 {
	sim := b.Clone()
	sim.Lock(&game.Piece{Type: work.Type, Shape: work.Shape, X: x, Y: y})
	lines, _ := sim.ClearFullRows()

	heights := sim.Heights()
	var aggregate, bumpiness int
	for i, h := range heights {
		aggregate += h
		if i > 0 {
			bumpiness += abs(h - heights[i-1])
		}
	}

	return linesWeight*float64(lines) -
		holesWeight*float64(sim.CountHoles()) -
		heightWeight*float64(aggregate) -
		bumpinessWeight*float64(bumpiness)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
