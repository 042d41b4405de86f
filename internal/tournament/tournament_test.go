package tournament

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTournament(t *testing.T, entrants ...string) *Tournament {
	tour := New("test series", zaptest.NewLogger(t))
	for _, name := range entrants {
		require.NoError(t, tour.AddEntrant(name))
	}
	return tour
}

func TestAddEntrantRejectsDuplicates(t *testing.T) {
	tour := newTournament(t, "easy")

	err := tour.AddEntrant("easy")
	assert.ErrorContains(t, err, "already registered")
	assert.Equal(t, 1, tour.EntrantCount())
}

func TestStartRequiresTwoEntrants(t *testing.T) {
	tour := newTournament(t, "easy")
	assert.ErrorContains(t, tour.Start(1), "not enough entrants")

	require.NoError(t, tour.AddEntrant("normal"))
	require.NoError(t, tour.Start(1))
	assert.Equal(t, StateInProgress, tour.State())

	assert.ErrorContains(t, tour.Start(1), "already started")
	assert.ErrorContains(t, tour.AddEntrant("hard"), "already started")
}

// Three entrants need a bye slot: three rounds with one real pairing
// each, every pair meeting exactly once.
func TestScheduleThreeEntrants(t *testing.T) {
	tour := newTournament(t, "easy", "normal", "hard")
	require.NoError(t, tour.Start(1))

	snap := tour.Snapshot()
	require.Len(t, snap.Rounds, 3)

	seen := make(map[string]int)
	for _, round := range snap.Rounds {
		require.Len(t, round.Pairings, 1)
		p := round.Pairings[0]
		key := p.Home + "/" + p.Away
		if p.Away < p.Home {
			key = p.Away + "/" + p.Home
		}
		seen[key]++
	}
	assert.Equal(t, map[string]int{
		"hard/normal": 1,
		"easy/hard":   1,
		"easy/normal": 1,
	}, seen)
}

func TestScheduleFourEntrants(t *testing.T) {
	tour := newTournament(t, "a", "b", "c", "d")
	require.NoError(t, tour.Start(1))

	snap := tour.Snapshot()
	require.Len(t, snap.Rounds, 3)

	total := 0
	for _, round := range snap.Rounds {
		assert.Len(t, round.Pairings, 2)
		inRound := make(map[string]bool)
		for _, p := range round.Pairings {
			assert.False(t, inRound[p.Home], "%s paired twice in round %d", p.Home, round.Number)
			assert.False(t, inRound[p.Away], "%s paired twice in round %d", p.Away, round.Number)
			inRound[p.Home] = true
			inRound[p.Away] = true
			total++
		}
	}
	assert.Equal(t, 6, total, "four entrants meet in six pairings")
}

func TestSecondLegSwapsHomeAndAway(t *testing.T) {
	tour := newTournament(t, "easy", "hard")
	require.NoError(t, tour.Start(2))

	snap := tour.Snapshot()
	require.Len(t, snap.Rounds, 2)
	first := snap.Rounds[0].Pairings[0]
	second := snap.Rounds[1].Pairings[0]
	assert.Equal(t, first.Home, second.Away)
	assert.Equal(t, first.Away, second.Home)
}

func TestPlayThroughProducesStandings(t *testing.T) {
	tour := newTournament(t, "easy", "normal", "hard")
	require.NoError(t, tour.Start(1))

	// hard wins every fixture it plays, normal beats easy.
	winners := map[string]string{
		"easy/normal": "normal",
		"easy/hard":   "hard",
		"hard/normal": "hard",
	}
	for {
		fx, ok := tour.NextFixture()
		if !ok {
			break
		}
		key := fx.Home + "/" + fx.Away
		if fx.Away < fx.Home {
			key = fx.Away + "/" + fx.Home
		}
		err := tour.RecordResult(fx.Round, fx.Home, fx.Away, winners[key], "topped_out", 100, 200)
		require.NoError(t, err)
	}

	assert.Equal(t, StateFinished, tour.State())

	standings := tour.Standings()
	require.Len(t, standings, 3)
	assert.Equal(t, "hard", standings[0].Name)
	assert.Equal(t, 6, standings[0].Points)
	assert.Equal(t, 2, standings[0].Wins)
	assert.Equal(t, "normal", standings[1].Name)
	assert.Equal(t, 3, standings[1].Points)
	assert.Equal(t, "easy", standings[2].Name)
	assert.Equal(t, 0, standings[2].Points)
	assert.Equal(t, 2, standings[2].Losses)

	snap := tour.Snapshot()
	require.NotNil(t, snap.StartTime)
	require.NotNil(t, snap.EndTime)
}

func TestDrawScoresOnePointEach(t *testing.T) {
	tour := newTournament(t, "easy", "normal")
	require.NoError(t, tour.Start(1))

	fx, ok := tour.NextFixture()
	require.True(t, ok)
	require.NoError(t, tour.RecordResult(fx.Round, fx.Home, fx.Away, "", "timeout", 300, 300))

	for _, e := range tour.Standings() {
		assert.Equal(t, 1, e.Points)
		assert.Equal(t, 1, e.Draws)
		assert.Equal(t, 300, e.Score)
	}
	assert.Equal(t, StateFinished, tour.State())
}

func TestRecordResultValidation(t *testing.T) {
	tour := newTournament(t, "easy", "normal")
	require.NoError(t, tour.Start(1))

	fx, ok := tour.NextFixture()
	require.True(t, ok)

	assert.ErrorContains(t, tour.RecordResult(99, fx.Home, fx.Away, fx.Home, "topped_out", 0, 0), "invalid round")
	assert.ErrorContains(t, tour.RecordResult(fx.Round, "ghost", fx.Away, "ghost", "topped_out", 0, 0), "not found")
	assert.ErrorContains(t, tour.RecordResult(fx.Round, fx.Home, fx.Away, "ghost", "topped_out", 0, 0), "not part of pairing")

	require.NoError(t, tour.RecordResult(fx.Round, fx.Home, fx.Away, fx.Home, "topped_out", 0, 0))
	assert.ErrorContains(t, tour.RecordResult(fx.Round, fx.Home, fx.Away, fx.Home, "topped_out", 0, 0), "already recorded")
}

func TestNextFixtureFollowsScheduleOrder(t *testing.T) {
	tour := newTournament(t, "easy", "normal", "hard")
	require.NoError(t, tour.Start(1))

	var played []string
	for {
		fx, ok := tour.NextFixture()
		if !ok {
			break
		}
		played = append(played, fmt.Sprintf("%d:%s-%s", fx.Round, fx.Home, fx.Away))
		require.NoError(t, tour.RecordResult(fx.Round, fx.Home, fx.Away, fx.Home, "topped_out", 0, 0))
	}

	require.Len(t, played, 3)
	for i, entry := range played {
		assert.Equal(t, fmt.Sprintf("%d:", i+1), entry[:2], "fixtures run in round order")
	}

	_, ok := tour.NextFixture()
	assert.False(t, ok, "no fixtures after the tournament finishes")
}

func TestSnapshotIsACopy(t *testing.T) {
	tour := newTournament(t, "easy", "normal")
	require.NoError(t, tour.Start(1))

	snap := tour.Snapshot()
	assert.NotEmpty(t, snap.ID)
	assert.False(t, snap.CreateTime.IsZero())

	snap.Standings[0].Points = 999
	snap.Rounds[0].Pairings[0].Played = true

	assert.Equal(t, 0, tour.Standings()[0].Points)
	fx, ok := tour.NextFixture()
	require.True(t, ok)
	assert.Equal(t, 1, fx.Round)
}
