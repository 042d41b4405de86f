package ai

import (
	"sync"
	"time"

	"github.com/blockfall/blockfall-server-go/internal/catalog"
	"github.com/blockfall/blockfall-server-go/internal/game"
	"go.uber.org/zap"
)

// CastFunc submits an ability cast on the AI's behalf. The room owns
// resolution and targeting.
type CastFunc func(id catalog.AbilityID)

// Config wires one controller to its engine and room.
type Config struct {
	Persona Persona
	Engine  *game.Engine
	Catalog *catalog.Catalog
	Cast    CastFunc
	// OnInput observes every input the controller feeds its engine,
	// after debuff transforms. Rooms use it for replay recording.
	OnInput func(in game.Input, now time.Time)
}

// Controller drives one AI-owned engine through the same input
// vocabulary a remote client uses. It plans piece placements, paces
// itself by persona reaction delay (inflated by vision debuffs),
// compensates for reversed controls, skips rotations while they are
// locked, and casts debuffs on line clears under a cooldown.
type Controller struct {
	logger  *zap.Logger
	persona Persona
	engine  *game.Engine
	cat     *catalog.Catalog
	cast    CastFunc
	onInput func(in game.Input, now time.Time)

	mu         sync.Mutex
	deciding   bool
	queue      []game.Input
	lastMoveAt time.Time
	lastCastAt time.Time
	hasCast    bool
}

// NewController creates a controller for one engine.
func NewController(cfg Config, logger *zap.Logger) *Controller {
	cat := cfg.Catalog
	if cat == nil {
		cat = catalog.Default()
	}
	return &Controller{
		logger:  logger,
		persona: cfg.Persona,
		engine:  cfg.Engine,
		cat:     cat,
		cast:    cfg.Cast,
		onInput: cfg.OnInput,
	}
}

// Persona returns the controller's difficulty settings.
func (c *Controller) Persona() Persona {
	return c.persona
}

// DecideStep runs one decision cycle. It is scheduled on a fixed short
// period; the reentrancy flag drops overlapping cycles instead of
// queueing them, so a slow cycle never stacks inputs.
func (c *Controller) DecideStep(now time.Time) {
	c.mu.Lock()
	if c.deciding {
		c.mu.Unlock()
		return
	}
	c.deciding = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.deciding = false
		c.mu.Unlock()
	}()

	if c.engine.GameOver() {
		return
	}

	c.mu.Lock()
	elapsed := now.Sub(c.lastMoveAt)
	c.mu.Unlock()
	if elapsed < c.moveDelay(now) {
		return
	}

	move, ok := c.nextMove(now)
	if !ok {
		return
	}
	if c.engine.ProcessInput(move, now) {
		c.mu.Lock()
		c.lastMoveAt = now
		c.mu.Unlock()
		if c.onInput != nil {
			c.onInput(move, now)
		}
	}
}

// InvalidatePlan discards queued moves. Rooms call this whenever an
// ability lands on this engine, since the board the plan was computed
// against no longer exists.
func (c *Controller) InvalidatePlan() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = nil
}

// nextMove pops the next planned move, replanning when the queue is
// empty and transforming the move through active debuffs.
func (c *Controller) nextMove(now time.Time) (game.Input, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.queue) == 0 {
		board, piece, ok := c.engine.PlanningView()
		if !ok {
			return "", false
		}
		c.queue = Plan(board, piece)
		if c.logger != nil {
			c.logger.Debug("move plan computed",
				zap.String("player_id", c.engine.PlayerID()),
				zap.Int("moves", len(c.queue)),
			)
		}
	}

	move := c.queue[0]
	c.queue = c.queue[1:]

	if move == game.InputRotate && c.engine.HasEffect(catalog.AbilityRotationLock, now) {
		for len(c.queue) > 0 && c.queue[0] == game.InputRotate {
			c.queue = c.queue[1:]
		}
		if len(c.queue) == 0 {
			return game.InputHardDrop, true
		}
		move = c.queue[0]
		c.queue = c.queue[1:]
	}

	// The engine swaps horizontal inputs while reverse_controls is
	// active; pre-swapping here makes the piece still land where the
	// plan wants it.
	if c.engine.HasEffect(catalog.AbilityReverseControls, now) {
		switch move {
		case game.InputMoveLeft:
			move = game.InputMoveRight
		case game.InputMoveRight:
			move = game.InputMoveLeft
		}
	}
	return move, true
}

// moveDelay returns the persona cadence inflated by active debuffs:
// 20% under blind_spot or screen_shake, another 10% under
// shrink_ceiling.
func (c *Controller) moveDelay(now time.Time) time.Duration {
	d := c.persona.ReactionDelay
	if c.engine.HasEffect(catalog.AbilityBlindSpot, now) ||
		c.engine.HasEffect(catalog.AbilityScreenShake, now) {
		d = d * 12 / 10
	}
	if c.engine.HasEffect(catalog.AbilityShrinkCeiling, now) {
		d = d * 11 / 10
	}
	return d
}

// OnLinesCleared is the engine lines-cleared hook: under the persona
// cast cooldown, cast the cheapest affordable debuff; when locked out
// by price and the board is dangerously tall, grant a star subsidy so
// the AI can eventually fight back.
func (c *Controller) OnLinesCleared(cleared int, now time.Time) {
	if c.cast == nil {
		return
	}

	c.mu.Lock()
	coolingDown := c.hasCast && now.Sub(c.lastCastAt) < c.persona.CastCooldown
	c.mu.Unlock()
	if coolingDown {
		return
	}

	choice, ok := c.cheapestAffordableDebuff()
	if !ok {
		c.maybeSubsidize(now)
		return
	}

	c.mu.Lock()
	c.lastCastAt = now
	c.hasCast = true
	c.mu.Unlock()

	if c.logger != nil {
		c.logger.Info("ai casting ability",
			zap.String("player_id", c.engine.PlayerID()),
			zap.String("ability", string(choice)),
			zap.Int("stars", c.engine.Stars()),
		)
	}
	c.cast(choice)
}

// cheapestAffordableDebuff scans the persona loadout for the lowest
// cost debuff the balance covers. Loadout order breaks cost ties, so
// the choice is deterministic.
func (c *Controller) cheapestAffordableDebuff() (catalog.AbilityID, bool) {
	stars := c.engine.Stars()

	var (
		best     catalog.AbilityID
		bestCost int
		found    bool
	)
	for _, id := range c.persona.Loadout {
		a, ok := c.cat.Get(id)
		if !ok || a.Category != catalog.CategoryDebuff || a.Cost > stars {
			continue
		}
		if !found || a.Cost < bestCost {
			found = true
			best = a.ID
			bestCost = a.Cost
		}
	}
	return best, found
}

// maybeSubsidize tops up the star balance when the board is above the
// persona danger height and nothing is affordable.
func (c *Controller) maybeSubsidize(now time.Time) {
	board, _, ok := c.engine.PlanningView()
	if !ok || board.MaxHeight() < c.persona.DangerHeight {
		return
	}

	balance := c.engine.GrantStars(c.persona.Subsidy)
	if c.logger != nil {
		c.logger.Info("ai star subsidy granted",
			zap.String("player_id", c.engine.PlayerID()),
			zap.Int("subsidy", c.persona.Subsidy),
			zap.Int("stars", balance),
		)
	}
}
