package ability

import (
	"sort"
	"sync"
	"time"

	"github.com/blockfall/blockfall-server-go/internal/catalog"
	"go.uber.org/zap"
)

// Tracker holds per-player defensive entries: shield and reflect
// expiry timestamps, tracked independently. Each entry is single-use,
// consumed the instant it intercepts a debuff, in addition to expiring
// naturally. Entries come from two paths: server-resolved shield and
// reflect casts, and client-reported defensive effect updates.
type Tracker struct {
	logger *zap.Logger

	mu    sync.Mutex
	armed map[string]map[catalog.AbilityID]time.Time
}

// NewTracker creates an empty tracker.
func NewTracker(logger *zap.Logger) *Tracker {
	return &Tracker{
		logger: logger,
		armed:  make(map[string]map[catalog.AbilityID]time.Time),
	}
}

// Arm sets a defensive entry for the player. Only shield and reflect
// are defensive effects; anything else is refused.
func (t *Tracker) Arm(playerID string, id catalog.AbilityID, expiresAt time.Time) bool {
	if id != catalog.AbilityShield && id != catalog.AbilityReflect {
		if t.logger != nil {
			t.logger.Warn("refusing non-defensive entry",
				zap.String("player_id", playerID),
				zap.String("effect", string(id)),
			)
		}
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	entries, ok := t.armed[playerID]
	if !ok {
		entries = make(map[catalog.AbilityID]time.Time, 2)
		t.armed[playerID] = entries
	}
	entries[id] = expiresAt
	return true
}

// Has reports an unexpired entry without consuming it.
func (t *Tracker) Has(playerID string, id catalog.AbilityID, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneLocked(playerID, now)

	until, ok := t.armed[playerID][id]
	return ok && until.After(now)
}

// Consume removes and reports an unexpired entry. Interception calls
// this once per cast, so a defense never fires twice.
func (t *Tracker) Consume(playerID string, id catalog.AbilityID, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneLocked(playerID, now)

	entries := t.armed[playerID]
	until, ok := entries[id]
	if !ok || !until.After(now) {
		return false
	}
	delete(entries, id)
	if len(entries) == 0 {
		delete(t.armed, playerID)
	}

	if t.logger != nil {
		t.logger.Info("defensive entry consumed",
			zap.String("player_id", playerID),
			zap.String("effect", string(id)),
		)
	}
	return true
}

// Active returns the player's unexpired entries, sorted.
func (t *Tracker) Active(playerID string, now time.Time) []catalog.AbilityID {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneLocked(playerID, now)

	entries := t.armed[playerID]
	out := make([]catalog.AbilityID, 0, len(entries))
	for id := range entries {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clear drops all entries for a player.
func (t *Tracker) Clear(playerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.armed, playerID)
}

// pruneLocked drops the player's lapsed entries. Caller holds t.mu.
func (t *Tracker) pruneLocked(playerID string, now time.Time) {
	entries := t.armed[playerID]
	var expired []catalog.AbilityID
	for id, until := range entries {
		if !until.After(now) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(entries, id)
	}
	if len(entries) == 0 {
		delete(t.armed, playerID)
	}
}
