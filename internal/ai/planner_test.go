package ai

import (
	"testing"

	"github.com/blockfall/blockfall-server-go/internal/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanClearsCompletableRow(t *testing.T) {
	b := game.NewBoard(10, 20)
	for x := 0; x < 10; x++ {
		if x == 4 || x == 5 {
			continue
		}
		b.Set(x, 19, game.CellGarbage)
	}
	p := game.NewPiece(game.PieceO, nil)
	p.X = 4

	// The O already hangs over the gap; dropping in place clears the
	// row, every other column buries the gap.
	moves := Plan(b, p)
	assert.Equal(t, []game.Input{game.InputHardDrop}, moves)
}

func TestPlanAvoidsCreatingHoles(t *testing.T) {
	b := game.NewBoard(10, 20)
	for x := 1; x < 10; x++ {
		b.Set(x, 19, game.CellGarbage)
	}
	p := game.NewPiece(game.PieceI, nil)
	p.X = 3

	// Only the vertical I in column 0 completes the bottom row; laid
	// flat it either covers the gap or stacks on top.
	moves := Plan(b, p)
	require.Equal(t, 5, len(moves))
	assert.Equal(t, []game.Input{
		game.InputRotate,
		game.InputMoveLeft,
		game.InputMoveLeft,
		game.InputMoveLeft,
		game.InputHardDrop,
	}, moves)
}

func TestPlanFallsBackToHardDrop(t *testing.T) {
	b := game.NewBoard(10, 20)
	for x := 0; x < 10; x++ {
		b.Set(x, 0, game.CellGarbage)
	}
	p := game.NewPiece(game.PieceI, nil)
	p.X = 3

	// No placement fits a buried spawn row, so the plan degrades to
	// dropping where the piece stands.
	moves := Plan(b, p)
	assert.Equal(t, []game.Input{game.InputHardDrop}, moves)
}

func TestPlanIsDeterministic(t *testing.T) {
	b := game.NewBoard(10, 20)
	b.Set(2, 19, game.CellGarbage)
	b.Set(3, 19, game.CellGarbage)
	b.Set(7, 18, game.CellGarbage)
	b.Set(7, 19, game.CellGarbage)
	p := game.NewPiece(game.PieceT, nil)
	p.X = 4

	first := Plan(b, p)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Plan(b, p.Clone()))
	}
}

func TestPlanDoesNotMutateInputs(t *testing.T) {
	b := game.NewBoard(10, 20)
	b.Set(5, 19, game.CellGarbage)
	p := game.NewPiece(game.PieceS, nil)
	p.X = 4

	before := b.Clone()
	shape := p.Clone().Shape
	Plan(b, p)

	for y := 0; y < 20; y++ {
		for x := 0; x < 10; x++ {
			require.Equal(t, before.At(x, y), b.At(x, y))
		}
	}
	assert.Equal(t, shape, p.Shape)
}
