package game

import (
	"sort"
	"time"

	"github.com/blockfall/blockfall-server-go/internal/catalog"
)

// PieceView is the wire shape of a falling piece.
type PieceView struct {
	Type  string   `json:"type"`
	X     int      `json:"x"`
	Y     int      `json:"y"`
	Shape [][]bool `json:"shape"`
}

// TimedEffectView reports a running timed effect with its countdown.
type TimedEffectView struct {
	ID          string `json:"id"`
	RemainingMS int64  `json:"remainingMs"`
	DurationMS  int64  `json:"durationMs"`
}

// PieceEffectView reports a pending piece-count override.
type PieceEffectView struct {
	ID        string `json:"id"`
	Remaining int    `json:"remaining"`
	Total     int    `json:"total"`
}

// Snapshot is the sanitized engine state safe to broadcast to either
// player. It contains nothing the owner's client does not already
// show on screen.
type Snapshot struct {
	PlayerID      string            `json:"playerId"`
	Board         [][]int           `json:"board"`
	Current       *PieceView        `json:"currentPiece,omitempty"`
	Next          []string          `json:"nextPieces"`
	Score         int               `json:"score"`
	Stars         int               `json:"stars"`
	Lines         int               `json:"linesCleared"`
	Combo         int               `json:"comboCount"`
	Level         int               `json:"level"`
	GameOver      bool              `json:"isGameOver"`
	TickRateMS    int64             `json:"tickRateMs"`
	ActiveEffects []string          `json:"activeEffects"`
	TimedEffects  []TimedEffectView `json:"timedEffects"`
	PieceEffects  []PieceEffectView `json:"pieceCountEffects"`
}

// PublicState builds the broadcast snapshot, pruning expired effects
// first.
func (e *Engine) PublicState(now time.Time) Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pruneExpiredLocked(now)

	snap := Snapshot{
		PlayerID:      e.cfg.PlayerID,
		Board:         e.board.cellsCopy(),
		Next:          make([]string, 0, len(e.next)),
		Score:         e.score,
		Stars:         e.stars,
		Lines:         e.lines,
		Combo:         e.combo,
		Level:         e.level,
		GameOver:      e.gameOver,
		TickRateMS:    e.tickRateLocked().Milliseconds(),
		ActiveEffects: e.activeEffectsLocked(),
		TimedEffects:  make([]TimedEffectView, 0, len(e.timed)),
		PieceEffects:  make([]PieceEffectView, 0, len(e.pieceFx)),
	}

	if e.current != nil {
		snap.Current = &PieceView{
			Type:  e.current.Type.String(),
			X:     e.current.X,
			Y:     e.current.Y,
			Shape: copyShape(e.current.Shape),
		}
	}
	for _, t := range e.next {
		snap.Next = append(snap.Next, t.String())
	}

	for id, fx := range e.timed {
		remaining := fx.expiresAt.Sub(now)
		if remaining < 0 {
			remaining = 0
		}
		snap.TimedEffects = append(snap.TimedEffects, TimedEffectView{
			ID:          string(id),
			RemainingMS: remaining.Milliseconds(),
			DurationMS:  fx.duration.Milliseconds(),
		})
	}
	sort.Slice(snap.TimedEffects, func(i, j int) bool {
		return snap.TimedEffects[i].ID < snap.TimedEffects[j].ID
	})

	for _, fx := range e.pieceFx {
		snap.PieceEffects = append(snap.PieceEffects, PieceEffectView{
			ID:        string(fx.id),
			Remaining: fx.remaining,
			Total:     fx.total,
		})
	}

	return snap
}

// activeEffectsLocked lists every active effect id, sorted. Caller
// holds e.mu and must have pruned first.
func (e *Engine) activeEffectsLocked() []string {
	ids := make([]string, 0, len(e.timed)+len(e.pieceFx)+3)
	for id := range e.timed {
		ids = append(ids, string(id))
	}
	for _, fx := range e.pieceFx {
		ids = append(ids, string(fx.id))
	}
	if e.bomb != nil {
		ids = append(ids, string(e.bomb.id))
	}
	if e.blackholeActive {
		ids = append(ids, string(catalog.AbilityBlackhole))
	}
	if e.deflectArmed {
		ids = append(ids, string(catalog.AbilityDeflectShield))
	}
	sort.Strings(ids)
	return ids
}
