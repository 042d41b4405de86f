package ai

import (
	"time"

	"github.com/blockfall/blockfall-server-go/internal/catalog"
)

// Persona tunes one AI difficulty: how fast it moves, how often it
// casts, when it panics, and which abilities it brings.
type Persona struct {
	Name          string
	ReactionDelay time.Duration
	CastCooldown  time.Duration
	DangerHeight  int
	Subsidy       int
	Loadout       []catalog.AbilityID
}

// Easy plays slowly and only knows the cheap nuisance debuffs.
func Easy() Persona {
	return Persona{
		Name:          "easy",
		ReactionDelay: 400 * time.Millisecond,
		CastCooldown:  16 * time.Second,
		DangerHeight:  14,
		Subsidy:       8,
		Loadout: []catalog.AbilityID{
			catalog.AbilityRowRotate,
			catalog.AbilityRandomSpawner,
		},
	}
}

// Normal is the default opponent.
func Normal() Persona {
	return Persona{
		Name:          "normal",
		ReactionDelay: 280 * time.Millisecond,
		CastCooldown:  12 * time.Second,
		DangerHeight:  12,
		Subsidy:       10,
		Loadout: []catalog.AbilityID{
			catalog.AbilityRowRotate,
			catalog.AbilityRandomSpawner,
			catalog.AbilityEarthquake,
			catalog.AbilitySpeedUpOpponent,
		},
	}
}

// Hard moves quickly and carries the expensive board wreckers.
func Hard() Persona {
	return Persona{
		Name:          "hard",
		ReactionDelay: 160 * time.Millisecond,
		CastCooldown:  9 * time.Second,
		DangerHeight:  10,
		Subsidy:       12,
		Loadout: []catalog.AbilityID{
			catalog.AbilityRowRotate,
			catalog.AbilityEarthquake,
			catalog.AbilityRotationLock,
			catalog.AbilityDeathCross,
			catalog.AbilitySpeedUpOpponent,
			catalog.AbilityBlackhole,
		},
	}
}

// Names lists every registered persona name.
func Names() []string {
	return []string{"easy", "normal", "hard"}
}

// ByName resolves a persona by its configured name.
func ByName(name string) (Persona, bool) {
	switch name {
	case "easy":
		return Easy(), true
	case "", "normal":
		return Normal(), true
	case "hard":
		return Hard(), true
	default:
		return Persona{}, false
	}
}
