package ability

import (
	"testing"

	"github.com/blockfall/blockfall-server-go/internal/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAccount is a plain star balance with the engine's clamp
// behavior.
type fakeAccount struct {
	stars    int
	capacity int
}

func newFakeAccount(stars int) *fakeAccount {
	return &fakeAccount{stars: stars, capacity: 100}
}

func (a *fakeAccount) Stars() int { return a.stars }

func (a *fakeAccount) SpendStars(amount int) (int, bool) {
	if amount < 0 || a.stars < amount {
		return a.stars, false
	}
	a.stars -= amount
	return a.stars, true
}

func (a *fakeAccount) GrantStars(amount int) int {
	a.stars += amount
	if a.stars > a.capacity {
		a.stars = a.capacity
	}
	return a.stars
}

func TestRosterLoadoutMembership(t *testing.T) {
	r := NewRoster()
	r.Add("p1", []catalog.AbilityID{catalog.AbilityEarthquake, catalog.AbilityShield})
	r.Add("p2", nil)

	assert.True(t, r.Allowed("p1", catalog.AbilityEarthquake))
	assert.False(t, r.Allowed("p1", catalog.AbilityBlackhole))
	assert.True(t, r.Allowed("p2", catalog.AbilityBlackhole), "empty loadout is unrestricted")
	assert.False(t, r.Allowed("ghost", catalog.AbilityEarthquake))

	assert.Equal(t, []catalog.AbilityID{catalog.AbilityEarthquake, catalog.AbilityShield},
		r.Loadout("p1"))
}

func TestRosterAccountAttachment(t *testing.T) {
	r := NewRoster()
	r.Add("p1", nil)

	_, ok := r.Account("p1")
	assert.False(t, ok, "no account until attached")

	acct := newFakeAccount(50)
	r.Attach("p1", acct)

	got, ok := r.Account("p1")
	require.True(t, ok)
	assert.Equal(t, 50, got.Stars())
}

func TestRosterCloneMemory(t *testing.T) {
	r := NewRoster()
	r.Add("p1", nil)

	_, ok := r.LastNonClone("p1")
	assert.False(t, ok)

	r.SetLastNonClone("p1", catalog.AbilityEarthquake)
	got, ok := r.LastNonClone("p1")
	require.True(t, ok)
	assert.Equal(t, catalog.AbilityEarthquake, got)
}

func TestRosterOverchargeCharges(t *testing.T) {
	r := NewRoster()
	r.Add("p1", nil)

	assert.False(t, r.ConsumeOverchargeCharge("p1"), "no charges yet")

	r.SetOvercharge("p1", 2)
	assert.True(t, r.ConsumeOverchargeCharge("p1"))
	assert.True(t, r.ConsumeOverchargeCharge("p1"))
	assert.False(t, r.ConsumeOverchargeCharge("p1"))

	r.RestoreOverchargeCharge("p1")
	assert.Equal(t, 1, r.OverchargeCharges("p1"))
}

func TestRosterOpponent(t *testing.T) {
	r := NewRoster()
	r.Add("p1", nil)

	_, ok := r.Opponent("p1")
	assert.False(t, ok, "no opponent in a single-player roster")

	r.Add("p2", nil)
	opp, ok := r.Opponent("p1")
	require.True(t, ok)
	assert.Equal(t, "p2", opp)

	r.Remove("p2")
	_, ok = r.Opponent("p1")
	assert.False(t, ok)
}

func TestRosterRemoveDropsAllState(t *testing.T) {
	r := NewRoster()
	r.Add("p1", nil)
	r.Attach("p1", newFakeAccount(10))
	r.SetLastNonClone("p1", catalog.AbilityPurge)

	r.Remove("p1")

	assert.False(t, r.Has("p1"))
	_, ok := r.Account("p1")
	assert.False(t, ok)
	_, ok = r.LastNonClone("p1")
	assert.False(t, ok)
	assert.Equal(t, []string{}, r.IDs())
}
