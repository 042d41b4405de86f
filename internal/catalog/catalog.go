package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// AbilityID identifies one castable ability.
type AbilityID string

// Ability ids known to the shipped catalog. Kept as constants so call
// sites that special-case an ability are checked by the compiler.
const (
	AbilityEarthquake        AbilityID = "earthquake"
	AbilityClearRows         AbilityID = "clear_rows"
	AbilityRandomSpawner     AbilityID = "random_spawner"
	AbilityRowRotate         AbilityID = "row_rotate"
	AbilityDeathCross        AbilityID = "death_cross"
	AbilityGoldDigger        AbilityID = "gold_digger"
	AbilityFillHoles         AbilityID = "fill_holes"
	AbilityCircleBomb        AbilityID = "circle_bomb"
	AbilityCrossFirebomb     AbilityID = "cross_firebomb"
	AbilityMiniBlocks        AbilityID = "mini_blocks"
	AbilityWeirdShapes       AbilityID = "weird_shapes"
	AbilityReverseControls   AbilityID = "reverse_controls"
	AbilityRotationLock      AbilityID = "rotation_lock"
	AbilityBlindSpot         AbilityID = "blind_spot"
	AbilityScreenShake       AbilityID = "screen_shake"
	AbilityShrinkCeiling     AbilityID = "shrink_ceiling"
	AbilityCascadeMultiplier AbilityID = "cascade_multiplier"
	AbilityPiecePreviewPlus  AbilityID = "piece_preview_plus"
	AbilitySpeedUpOpponent   AbilityID = "speed_up_opponent"
	AbilityDeflectShield     AbilityID = "deflect_shield"
	AbilityBlackhole         AbilityID = "blackhole"
	AbilityShield            AbilityID = "shield"
	AbilityReflect           AbilityID = "reflect"
	AbilityClone             AbilityID = "clone"
	AbilityPurge             AbilityID = "purge"
	AbilityOvercharge        AbilityID = "overcharge"
)

// Target says whose board an ability resolves against.
type Target string

const (
	TargetSelf     Target = "self"
	TargetOpponent Target = "opponent"
)

// Category drives defensive interception: only debuffs can be
// shielded, reflected, or deflected.
type Category string

const (
	CategoryBuff   Category = "buff"
	CategoryDebuff Category = "debuff"
)

// Kind selects the resolution machinery for an ability.
type Kind string

const (
	// KindBoard mutates the target board immediately.
	KindBoard Kind = "board"
	// KindBomb arms a detonation that fires on the next piece lock.
	KindBomb Kind = "bomb"
	// KindPieces overrides the next N spawned pieces.
	KindPieces Kind = "pieces"
	// KindTimed applies for a wall-clock duration, pruned lazily.
	KindTimed Kind = "timed"
	// KindSuspend freezes the target simulation until an external
	// completion signal arrives.
	KindSuspend Kind = "suspend"
	// KindDeflect arms a single-use engine-local debuff eater.
	KindDeflect Kind = "deflect"
	// KindPurge wipes timed effects from both players.
	KindPurge Kind = "purge"
	// KindDefense registers shield/reflect with the defense tracker
	// instead of touching an engine.
	KindDefense Kind = "defense"
	// KindEconomy adjusts casting economy (overcharge).
	KindEconomy Kind = "economy"
	// KindClone re-casts the target's last non-clone ability.
	KindClone Kind = "clone"
)

// Ability is one catalog entry.
type Ability struct {
	ID       AbilityID
	Name     string
	Cost     int
	Target   Target
	Category Category
	Kind     Kind
	Duration time.Duration
	Params   map[string]int
}

// Param returns a tuning parameter with a fallback.
func (a Ability) Param(key string, def int) int {
	if v, ok := a.Params[key]; ok {
		return v
	}
	return def
}

// EngineApplicable reports whether the ability resolves inside a
// simulation engine (as opposed to resolver-side bookkeeping).
func (a Ability) EngineApplicable() bool {
	switch a.Kind {
	case KindBoard, KindBomb, KindPieces, KindTimed, KindSuspend, KindDeflect, KindPurge:
		return true
	default:
		return false
	}
}

// Catalog is an immutable ability table.
type Catalog struct {
	abilities map[AbilityID]Ability
	order     []AbilityID
}

// rawAbility mirrors the YAML document shape.
type rawAbility struct {
	ID       string         `yaml:"id"`
	Name     string         `yaml:"name"`
	Cost     int            `yaml:"cost"`
	Target   string         `yaml:"target"`
	Category string         `yaml:"category"`
	Kind     string         `yaml:"kind"`
	Duration string         `yaml:"duration"`
	Params   map[string]int `yaml:"params"`
}

type rawCatalog struct {
	Abilities []rawAbility `yaml:"abilities"`
}

//go:embed abilities.yaml
var embeddedCatalog []byte

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the catalog shipped with the server. Parsing happens
// once; a broken embedded document is a build defect and panics.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Parse(embeddedCatalog)
		if err != nil {
			panic(fmt.Sprintf("embedded ability catalog invalid: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Load reads a catalog from a YAML file on disk.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ability catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var raw rawCatalog
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode ability catalog: %w", err)
	}
	if len(raw.Abilities) == 0 {
		return nil, fmt.Errorf("ability catalog is empty")
	}

	c := &Catalog{
		abilities: make(map[AbilityID]Ability, len(raw.Abilities)),
		order:     make([]AbilityID, 0, len(raw.Abilities)),
	}
	for _, entry := range raw.Abilities {
		ability, err := entry.convert()
		if err != nil {
			return nil, err
		}
		if _, dup := c.abilities[ability.ID]; dup {
			return nil, fmt.Errorf("duplicate ability id %q", ability.ID)
		}
		c.abilities[ability.ID] = ability
		c.order = append(c.order, ability.ID)
	}
	return c, nil
}

func (r rawAbility) convert() (Ability, error) {
	if r.ID == "" {
		return Ability{}, fmt.Errorf("ability with empty id")
	}
	if r.Cost < 0 {
		return Ability{}, fmt.Errorf("ability %q: negative cost %d", r.ID, r.Cost)
	}

	target := Target(r.Target)
	if target != TargetSelf && target != TargetOpponent {
		return Ability{}, fmt.Errorf("ability %q: unknown target %q", r.ID, r.Target)
	}

	category := Category(r.Category)
	if category != CategoryBuff && category != CategoryDebuff {
		return Ability{}, fmt.Errorf("ability %q: unknown category %q", r.ID, r.Category)
	}

	kind := Kind(r.Kind)
	switch kind {
	case KindBoard, KindBomb, KindPieces, KindTimed, KindSuspend,
		KindDeflect, KindPurge, KindDefense, KindEconomy, KindClone:
	default:
		return Ability{}, fmt.Errorf("ability %q: unknown kind %q", r.ID, r.Kind)
	}

	var duration time.Duration
	if r.Duration != "" {
		d, err := time.ParseDuration(r.Duration)
		if err != nil {
			return Ability{}, fmt.Errorf("ability %q: bad duration: %w", r.ID, err)
		}
		if d <= 0 {
			return Ability{}, fmt.Errorf("ability %q: non-positive duration %s", r.ID, d)
		}
		duration = d
	}
	if (kind == KindTimed || kind == KindDefense) && duration == 0 {
		return Ability{}, fmt.Errorf("ability %q: kind %s requires a duration", r.ID, kind)
	}

	params := make(map[string]int, len(r.Params))
	for k, v := range r.Params {
		params[k] = v
	}

	return Ability{
		ID:       AbilityID(r.ID),
		Name:     r.Name,
		Cost:     r.Cost,
		Target:   target,
		Category: category,
		Kind:     kind,
		Duration: duration,
		Params:   params,
	}, nil
}

// Get looks up an ability by id.
func (c *Catalog) Get(id AbilityID) (Ability, bool) {
	a, ok := c.abilities[id]
	return a, ok
}

// Has reports whether the id exists in the catalog.
func (c *Catalog) Has(id AbilityID) bool {
	_, ok := c.abilities[id]
	return ok
}

// All returns every ability in document order.
func (c *Catalog) All() []Ability {
	out := make([]Ability, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.abilities[id])
	}
	return out
}

// EngineApplicable returns the ids resolved inside engines, sorted.
func (c *Catalog) EngineApplicable() []AbilityID {
	out := make([]AbilityID, 0, len(c.order))
	for _, id := range c.order {
		if c.abilities[id].EngineApplicable() {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Debuffs returns every debuff id in document order.
func (c *Catalog) Debuffs() []AbilityID {
	out := make([]AbilityID, 0, len(c.order))
	for _, id := range c.order {
		if c.abilities[id].Category == CategoryDebuff {
			out = append(out, id)
		}
	}
	return out
}
