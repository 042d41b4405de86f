package ai

import (
	"testing"
	"time"

	"github.com/blockfall/blockfall-server-go/internal/catalog"
	"github.com/blockfall/blockfall-server-go/internal/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var ctrlBase = time.Unix(1700000000, 0)

func newTestController(t *testing.T, p Persona, cast CastFunc) (*Controller, *game.Engine) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	e := game.NewEngine(game.Config{PlayerID: "ai-1", RoomSeed: 42}, logger)
	c := NewController(Config{Persona: p, Engine: e, Cast: cast}, logger)
	return c, e
}

func boardCells(snap game.Snapshot) int {
	cells := 0
	for _, row := range snap.Board {
		for _, c := range row {
			if c != 0 {
				cells++
			}
		}
	}
	return cells
}

func TestControllerPlaysStandalone(t *testing.T) {
	c, e := newTestController(t, Easy(), nil)

	now := ctrlBase
	for i := 0; i < 400; i++ {
		now = now.Add(50 * time.Millisecond)
		if i%16 == 0 {
			e.Tick(now)
		}
		c.DecideStep(now)
		if e.GameOver() {
			break
		}
	}

	snap := e.PublicState(now)
	assert.Positive(t, snap.Score, "planned hard drops should have scored")
	assert.Positive(t, boardCells(snap), "pieces should have locked")
}

func TestControllerHonorsReactionDelay(t *testing.T) {
	c, e := newTestController(t, Easy(), nil)
	e.Tick(ctrlBase)
	c.queue = []game.Input{game.InputSoftDrop, game.InputSoftDrop, game.InputSoftDrop}

	c.DecideStep(ctrlBase)
	assert.Equal(t, 1, e.PublicState(ctrlBase).Score, "first move runs immediately")
	assert.Len(t, c.queue, 2)

	c.DecideStep(ctrlBase.Add(100 * time.Millisecond))
	assert.Equal(t, 1, e.PublicState(ctrlBase).Score, "second move must wait out the delay")
	assert.Len(t, c.queue, 2)

	c.DecideStep(ctrlBase.Add(Easy().ReactionDelay))
	assert.Equal(t, 2, e.PublicState(ctrlBase).Score)
	assert.Len(t, c.queue, 1)
}

func TestControllerSkipsRotationUnderRotationLock(t *testing.T) {
	c, e := newTestController(t, Easy(), nil)
	e.Tick(ctrlBase)
	e.ApplyAbility(catalog.AbilityRotationLock, ctrlBase)

	before := e.PublicState(ctrlBase)
	require.NotNil(t, before.Current)

	c.queue = []game.Input{game.InputRotate, game.InputMoveLeft}
	c.DecideStep(ctrlBase)

	after := e.PublicState(ctrlBase)
	require.NotNil(t, after.Current)
	assert.Equal(t, before.Current.X-1, after.Current.X, "lateral move should replace the doomed rotation")
	assert.Equal(t, before.Current.Shape, after.Current.Shape, "shape must be untouched")
	assert.Empty(t, c.queue)
}

func TestControllerHardDropsWhenOnlyRotationsRemain(t *testing.T) {
	c, e := newTestController(t, Easy(), nil)
	e.Tick(ctrlBase)
	e.ApplyAbility(catalog.AbilityRotationLock, ctrlBase)

	c.queue = []game.Input{game.InputRotate}
	c.DecideStep(ctrlBase)

	snap := e.PublicState(ctrlBase)
	assert.Positive(t, snap.Score, "hard drop distance should have scored")
	assert.Positive(t, boardCells(snap), "the piece should have locked")
}

func TestControllerCompensatesReversedControls(t *testing.T) {
	c, e := newTestController(t, Easy(), nil)
	e.Tick(ctrlBase)
	e.ApplyAbility(catalog.AbilityReverseControls, ctrlBase)

	before := e.PublicState(ctrlBase)
	require.NotNil(t, before.Current)

	// The plan wants the piece one column left. The controller sends
	// move_right so the engine's swap lands it there anyway.
	c.queue = []game.Input{game.InputMoveLeft}
	c.DecideStep(ctrlBase)

	after := e.PublicState(ctrlBase)
	require.NotNil(t, after.Current)
	assert.Equal(t, before.Current.X-1, after.Current.X)
}

func TestControllerDropsOverlappingCycles(t *testing.T) {
	c, e := newTestController(t, Easy(), nil)
	e.Tick(ctrlBase)
	c.queue = []game.Input{game.InputSoftDrop}

	c.deciding = true
	c.DecideStep(ctrlBase)
	assert.Len(t, c.queue, 1, "overlapping cycle must not consume moves")
	assert.Equal(t, 0, e.PublicState(ctrlBase).Score)

	c.deciding = false
	c.DecideStep(ctrlBase)
	assert.Empty(t, c.queue)
	assert.Equal(t, 1, e.PublicState(ctrlBase).Score)
}

func TestControllerInvalidatePlanForcesReplan(t *testing.T) {
	c, _ := newTestController(t, Easy(), nil)
	c.queue = []game.Input{game.InputMoveLeft, game.InputMoveLeft}

	c.InvalidatePlan()
	assert.Empty(t, c.queue)
}

func TestControllerCastsCheapestAffordableDebuff(t *testing.T) {
	var casts []catalog.AbilityID
	persona := Persona{
		Name:          "test",
		ReactionDelay: 100 * time.Millisecond,
		CastCooldown:  10 * time.Second,
		DangerHeight:  14,
		Subsidy:       8,
		Loadout: []catalog.AbilityID{
			catalog.AbilityEarthquake,
			catalog.AbilityRowRotate,
		},
	}
	c, e := newTestController(t, persona, func(id catalog.AbilityID) {
		casts = append(casts, id)
	})
	e.GrantStars(20)

	// 20 stars cover row_rotate (15) but not earthquake (30).
	c.OnLinesCleared(1, ctrlBase)
	require.Equal(t, []catalog.AbilityID{catalog.AbilityRowRotate}, casts)

	c.OnLinesCleared(1, ctrlBase.Add(5*time.Second))
	assert.Len(t, casts, 1, "cooldown must block the second cast")

	c.OnLinesCleared(1, ctrlBase.Add(10*time.Second))
	assert.Len(t, casts, 2)
}

func TestControllerSubsidizesWhenPricedOut(t *testing.T) {
	var casts []catalog.AbilityID
	persona := Persona{
		Name:          "test",
		ReactionDelay: 100 * time.Millisecond,
		CastCooldown:  10 * time.Second,
		DangerHeight:  1,
		Subsidy:       15,
		Loadout:       []catalog.AbilityID{catalog.AbilityEarthquake},
	}
	c, e := newTestController(t, persona, func(id catalog.AbilityID) {
		casts = append(casts, id)
	})
	e.GrantStars(5)
	e.Tick(ctrlBase)
	require.True(t, e.ProcessInput(game.InputHardDrop, ctrlBase))

	c.OnLinesCleared(1, ctrlBase)

	assert.Empty(t, casts)
	assert.Equal(t, 20, e.Stars(), "subsidy should top up the balance")
}

func TestControllerNoSubsidyBelowDangerHeight(t *testing.T) {
	persona := Persona{
		Name:          "test",
		ReactionDelay: 100 * time.Millisecond,
		CastCooldown:  10 * time.Second,
		DangerHeight:  19,
		Subsidy:       15,
		Loadout:       []catalog.AbilityID{catalog.AbilityEarthquake},
	}
	c, e := newTestController(t, persona, func(catalog.AbilityID) {})
	e.GrantStars(5)
	e.Tick(ctrlBase)
	require.True(t, e.ProcessInput(game.InputHardDrop, ctrlBase))

	c.OnLinesCleared(1, ctrlBase)
	assert.Equal(t, 5, e.Stars())
}

func TestControllerNilCastHookIsSafe(t *testing.T) {
	c, e := newTestController(t, Normal(), nil)
	e.GrantStars(100)
	c.OnLinesCleared(2, ctrlBase)
	assert.Equal(t, 100, e.Stars())
}

func TestControllerDelayInflation(t *testing.T) {
	persona := Persona{Name: "test", ReactionDelay: 100 * time.Millisecond}
	c, e := newTestController(t, persona, nil)

	assert.Equal(t, 100*time.Millisecond, c.moveDelay(ctrlBase))

	e.ApplyAbility(catalog.AbilityBlindSpot, ctrlBase)
	assert.Equal(t, 120*time.Millisecond, c.moveDelay(ctrlBase))

	e.ApplyAbility(catalog.AbilityScreenShake, ctrlBase)
	assert.Equal(t, 120*time.Millisecond, c.moveDelay(ctrlBase), "vision debuffs inflate once")

	e.ApplyAbility(catalog.AbilityShrinkCeiling, ctrlBase)
	assert.Equal(t, 132*time.Millisecond, c.moveDelay(ctrlBase))
}

func TestPersonaByName(t *testing.T) {
	p, ok := ByName("")
	require.True(t, ok)
	assert.Equal(t, "normal", p.Name)

	p, ok = ByName("hard")
	require.True(t, ok)
	assert.Equal(t, "hard", p.Name)

	_, ok = ByName("nightmare")
	assert.False(t, ok)
}
