package game

import (
	"fmt"
	"time"

	"github.com/blockfall/blockfall-server-go/internal/catalog"
	"go.uber.org/zap"
)

// timedEffect is one active wall-clock effect. Expiry is checked
// lazily; nothing schedules per-effect timers.
type timedEffect struct {
	expiresAt time.Time
	duration  time.Duration
}

// pieceCountEffect overrides the next spawns with a special piece type.
// Entries queue FIFO and are consumed at spawn, not by wall clock.
type pieceCountEffect struct {
	id        catalog.AbilityID
	pieceType PieceType
	remaining int
	total     int
}

// pendingBomb is an armed detonation waiting for the next lock.
type pendingBomb struct {
	id catalog.AbilityID
}

// abilityHandler applies one engine-resolved ability and returns how
// many cells it touched.
type abilityHandler func(e *Engine, a catalog.Ability, now time.Time) int

// buildHandlers constructs the dispatch table for a catalog, failing
// when any engine-applicable entry lacks a handler. This keeps catalog
// and engine in lockstep: a new catalog entry without engine support
// cannot reach production silently.
func buildHandlers(cat *catalog.Catalog) (map[catalog.AbilityID]abilityHandler, error) {
	handlers := make(map[catalog.AbilityID]abilityHandler)

	for _, a := range cat.All() {
		switch a.Kind {
		case catalog.KindBoard:
			h, err := boardHandler(a.ID)
			if err != nil {
				return nil, err
			}
			handlers[a.ID] = h

		case catalog.KindBomb:
			handlers[a.ID] = func(e *Engine, a catalog.Ability, now time.Time) int {
				e.bomb = &pendingBomb{id: a.ID}
				return 0
			}

		case catalog.KindPieces:
			pieceType, err := overridePieceType(a.ID)
			if err != nil {
				return nil, err
			}
			handlers[a.ID] = func(e *Engine, a catalog.Ability, now time.Time) int {
				count := a.Param("count", 1)
				e.pieceFx = append(e.pieceFx, pieceCountEffect{
					id:        a.ID,
					pieceType: pieceType,
					remaining: count,
					total:     count,
				})
				return 0
			}

		case catalog.KindTimed:
			handlers[a.ID] = func(e *Engine, a catalog.Ability, now time.Time) int {
				e.timed[a.ID] = timedEffect{
					expiresAt: now.Add(a.Duration),
					duration:  a.Duration,
				}
				return 0
			}

		case catalog.KindSuspend:
			handlers[a.ID] = func(e *Engine, a catalog.Ability, now time.Time) int {
				e.blackholeActive = true
				e.blackholeSince = now
				return 0
			}

		case catalog.KindDeflect:
			handlers[a.ID] = func(e *Engine, a catalog.Ability, now time.Time) int {
				e.deflectArmed = true
				return 0
			}

		case catalog.KindPurge:
			handlers[a.ID] = func(e *Engine, a catalog.Ability, now time.Time) int {
				removed := len(e.timed)
				e.timed = make(map[catalog.AbilityID]timedEffect)
				return removed
			}

		case catalog.KindDefense, catalog.KindEconomy, catalog.KindClone:
			// Resolver-side kinds never reach an engine.

		default:
			return nil, fmt.Errorf("ability %q: kind %q has no engine dispatch", a.ID, a.Kind)
		}
	}
	return handlers, nil
}

// boardHandler maps a board-mutating ability id to its operation.
func boardHandler(id catalog.AbilityID) (abilityHandler, error) {
	switch id {
	case catalog.AbilityEarthquake:
		return func(e *Engine, a catalog.Ability, now time.Time) int {
			return e.board.Earthquake(e.fx, a.Param("density", 25))
		}, nil
	case catalog.AbilityClearRows:
		return func(e *Engine, a catalog.Ability, now time.Time) int {
			return e.board.RemoveBottomRows(a.Param("rows", 2))
		}, nil
	case catalog.AbilityRandomSpawner:
		return func(e *Engine, a catalog.Ability, now time.Time) int {
			return e.board.SpawnRandomCells(e.fx, a.Param("cells", 8))
		}, nil
	case catalog.AbilityRowRotate:
		return func(e *Engine, a catalog.Ability, now time.Time) int {
			return e.board.RotateRandomRow(e.fx)
		}, nil
	case catalog.AbilityDeathCross:
		return func(e *Engine, a catalog.Ability, now time.Time) int {
			return e.board.DeathCross(e.fx)
		}, nil
	case catalog.AbilityGoldDigger:
		return func(e *Engine, a catalog.Ability, now time.Time) int {
			e.goldBonus = a.Param("bonus", defaultGoldBonus)
			return e.board.TagGoldCells(e.fx, a.Param("cells", 6))
		}, nil
	case catalog.AbilityFillHoles:
		return func(e *Engine, a catalog.Ability, now time.Time) int {
			return e.board.FillSmallHoles(a.Param("max_region", 3))
		}, nil
	default:
		return nil, fmt.Errorf("ability %q: no board handler", id)
	}
}

// overridePieceType maps a piece-count ability to the piece it spawns.
func overridePieceType(id catalog.AbilityID) (PieceType, error) {
	switch id {
	case catalog.AbilityMiniBlocks:
		return PieceMini, nil
	case catalog.AbilityWeirdShapes:
		return PieceHollow, nil
	default:
		return 0, fmt.Errorf("ability %q: no piece override", id)
	}
}

// VerifyCatalog checks that every engine-applicable ability in the
// catalog has a dispatch handler. Call this when loading a custom
// catalog; the shipped catalog is verified at process start.
func VerifyCatalog(cat *catalog.Catalog) error {
	_, err := buildHandlers(cat)
	return err
}

func init() {
	if err := VerifyCatalog(catalog.Default()); err != nil {
		panic(fmt.Sprintf("shipped ability catalog out of sync with engine: %v", err))
	}
}

// pruneExpiredLocked drops lapsed timed effects and force-clears a
// blackhole that outlived its safety cap. Caller holds e.mu.
func (e *Engine) pruneExpiredLocked(now time.Time) {
	var expired []catalog.AbilityID
	for id, fx := range e.timed {
		if !fx.expiresAt.After(now) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(e.timed, id)
	}

	if e.blackholeActive && e.cfg.BlackholeCap > 0 && now.Sub(e.blackholeSince) > e.cfg.BlackholeCap {
		e.blackholeActive = false
		if e.logger != nil {
			e.logger.Warn("blackhole exceeded safety cap, force-cleared",
				zap.String("player_id", e.cfg.PlayerID),
				zap.Duration("cap", e.cfg.BlackholeCap),
			)
		}
	}
}

// hasTimedLocked reports an unexpired timed effect. Caller holds e.mu
// and must have pruned first.
func (e *Engine) hasTimedLocked(id catalog.AbilityID) bool {
	_, ok := e.timed[id]
	return ok
}
