package ability

import (
	"sort"
	"sync"

	"github.com/blockfall/blockfall-server-go/internal/catalog"
)

// StarAccount is the star balance a cast is charged against. The
// simulation engine satisfies this; tests substitute fakes.
type StarAccount interface {
	Stars() int
	SpendStars(amount int) (int, bool)
	GrantStars(amount int) int
}

type playerRecord struct {
	loadout      map[catalog.AbilityID]struct{}
	account      StarAccount
	lastNonClone catalog.AbilityID
	hasLast      bool
	overcharge   int
}

// Roster tracks per-player resolution state for one room: loadout
// membership, the star account, clone memory, and remaining overcharge
// charges. A player joins with a loadout first; the account attaches
// once their simulation state exists.
type Roster struct {
	mu      sync.RWMutex
	players map[string]*playerRecord
}

// NewRoster creates an empty roster.
func NewRoster() *Roster {
	return &Roster{players: make(map[string]*playerRecord)}
}

// Add registers a player with their permitted abilities. An empty
// loadout means unrestricted. Re-adding replaces the loadout.
func (r *Roster) Add(playerID string, loadout []catalog.AbilityID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.players[playerID]
	if !ok {
		rec = &playerRecord{}
		r.players[playerID] = rec
	}
	rec.loadout = make(map[catalog.AbilityID]struct{}, len(loadout))
	for _, id := range loadout {
		rec.loadout[id] = struct{}{}
	}
}

// Attach binds the player's star account once their simulation state
// exists.
func (r *Roster) Attach(playerID string, account StarAccount) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.players[playerID]; ok {
		rec.account = account
	}
}

// Remove drops a player and all their resolution state.
func (r *Roster) Remove(playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.players, playerID)
}

// Has reports whether the player is registered.
func (r *Roster) Has(playerID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.players[playerID]
	return ok
}

// Account returns the player's star account, false while unattached.
func (r *Roster) Account(playerID string) (StarAccount, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.players[playerID]
	if !ok || rec.account == nil {
		return nil, false
	}
	return rec.account, true
}

// Allowed reports whether the player may cast the ability. An empty
// loadout permits everything.
func (r *Roster) Allowed(playerID string, id catalog.AbilityID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.players[playerID]
	if !ok {
		return false
	}
	if len(rec.loadout) == 0 {
		return true
	}
	_, ok = rec.loadout[id]
	return ok
}

// Loadout returns the player's permitted abilities, sorted. Empty means
// unrestricted.
func (r *Roster) Loadout(playerID string) []catalog.AbilityID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.players[playerID]
	if !ok {
		return nil
	}
	out := make([]catalog.AbilityID, 0, len(rec.loadout))
	for id := range rec.loadout {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// LastNonClone returns the last non-clone ability the player cast.
func (r *Roster) LastNonClone(playerID string) (catalog.AbilityID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.players[playerID]
	if !ok || !rec.hasLast {
		return "", false
	}
	return rec.lastNonClone, true
}

// SetLastNonClone records the player's clone-copyable ability.
func (r *Roster) SetLastNonClone(playerID string, id catalog.AbilityID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.players[playerID]; ok {
		rec.lastNonClone = id
		rec.hasLast = true
	}
}

// OverchargeCharges returns the player's remaining discount charges.
func (r *Roster) OverchargeCharges(playerID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if rec, ok := r.players[playerID]; ok {
		return rec.overcharge
	}
	return 0
}

// SetOvercharge resets the player's discount charge counter.
func (r *Roster) SetOvercharge(playerID string, charges int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.players[playerID]; ok {
		rec.overcharge = charges
	}
}

// ConsumeOverchargeCharge spends one discount charge if any remain.
func (r *Roster) ConsumeOverchargeCharge(playerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.players[playerID]
	if !ok || rec.overcharge <= 0 {
		return false
	}
	rec.overcharge--
	return true
}

// RestoreOverchargeCharge gives back a charge consumed by a cast that
// was later fully refunded.
func (r *Roster) RestoreOverchargeCharge(playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.players[playerID]; ok {
		rec.overcharge++
	}
}

// Opponent returns the other player of a two-player roster.
func (r *Roster) Opponent(playerID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for id := range r.players {
		if id != playerID {
			return id, true
		}
	}
	return "", false
}

// IDs returns all registered player ids, sorted.
func (r *Roster) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.players))
	for id := range r.players {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
