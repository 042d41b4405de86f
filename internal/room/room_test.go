package room

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/blockfall/blockfall-server-go/internal/ability"
	"github.com/blockfall/blockfall-server-go/internal/catalog"
	"github.com/blockfall/blockfall-server-go/internal/clock"
	"github.com/blockfall/blockfall-server-go/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// recordingSender captures every message by recipient.
type recordingSender struct {
	mu   sync.Mutex
	sent map[string][]any
}

func newRecordingSender() *recordingSender {
	return &recordingSender{sent: make(map[string][]any)}
}

func (s *recordingSender) Send(playerID string, message any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent[playerID] = append(s.sent[playerID], message)
}

func (s *recordingSender) count(playerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent[playerID])
}

// messagesOf returns the messages of one concrete type sent to a player.
func messagesOf[T any](s *recordingSender, playerID string) []T {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []T
	for _, m := range s.sent[playerID] {
		if v, ok := m.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

// lastOf returns the most recent message of one type sent to a player.
func lastOf[T any](t *testing.T, s *recordingSender, playerID string) T {
	t.Helper()
	msgs := messagesOf[T](s, playerID)
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1]
}

// fakeRecorder collects match records in memory.
type fakeRecorder struct {
	mu      sync.Mutex
	records []repository.MatchRecord
}

func (r *fakeRecorder) RecordMatch(_ context.Context, m repository.MatchRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, m)
	return nil
}

func (r *fakeRecorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func (r *fakeRecorder) last() repository.MatchRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[len(r.records)-1]
}

// roomFixture drives a room on a manual clock through a recording
// sender.
type roomFixture struct {
	t        *testing.T
	clk      *clock.Manual
	sender   *recordingSender
	recorder *fakeRecorder
	room     *Room
}

func newRoomFixture(t *testing.T, mutate ...func(*Config)) *roomFixture {
	t.Helper()

	f := &roomFixture{
		t:        t,
		clk:      clock.NewManual(time.Unix(1700000000, 0)),
		sender:   newRecordingSender(),
		recorder: &fakeRecorder{},
	}
	cfg := Config{
		ID:       "room-1",
		Seed:     42,
		Clock:    f.clk,
		Sender:   f.sender,
		Recorder: f.recorder,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	f.room = NewRoom(cfg, zaptest.NewLogger(t))
	return f
}

// advance moves virtual time forward and runs everything that came due.
func (f *roomFixture) advance(d time.Duration) {
	f.room.Advance(f.clk.Advance(d))
}

// joinPair seats two human players, starting the game.
func (f *roomFixture) joinPair() {
	require.NoError(f.t, f.room.Join("alice", JoinOptions{ConnectionID: "conn-a"}))
	require.NoError(f.t, f.room.Join("bob", JoinOptions{ConnectionID: "conn-b"}))
}

// fund mirrors a full star balance for a human player.
func (f *roomFixture) fund(playerID string) {
	f.room.HandleStarsUpdate(playerID, 100)
}

func TestJoinBroadcastsWaitingState(t *testing.T) {
	f := newRoomFixture(t)

	require.NoError(t, f.room.Join("alice", JoinOptions{ConnectionID: "conn-a"}))
	assert.Equal(t, StatusWaiting, f.room.Status())

	state := lastOf[RoomStateMessage](t, f.sender, "alice")
	assert.Equal(t, "waiting", state.Status)
	assert.Equal(t, 1, state.PlayerCount)
}

func TestSecondJoinStartsGame(t *testing.T) {
	f := newRoomFixture(t)
	f.joinPair()

	assert.Equal(t, StatusPlaying, f.room.Status())

	for _, id := range []string{"alice", "bob"} {
		state := lastOf[RoomStateMessage](t, f.sender, id)
		assert.Equal(t, "playing", state.Status)
		assert.Equal(t, 2, state.PlayerCount)

		start := lastOf[GameStartMessage](t, f.sender, id)
		assert.Equal(t, []string{"alice", "bob"}, start.Players)
		assert.Equal(t, int64(42), start.Seed, "both players receive the shared seed")
	}

	info := lastOf[OpponentInfoMessage](t, f.sender, "alice")
	assert.Equal(t, "bob", info.PlayerID)
	assert.False(t, info.AIControlled)
}

func TestJoinRejections(t *testing.T) {
	f := newRoomFixture(t)

	require.NoError(t, f.room.Join("alice", JoinOptions{}))
	assert.ErrorIs(t, f.room.Join("alice", JoinOptions{}), ErrAlreadyJoined)

	require.NoError(t, f.room.Join("bob", JoinOptions{}))
	assert.ErrorIs(t, f.room.Join("carol", JoinOptions{}), ErrAlreadyStarted)

	assert.Error(t, f.room.Join("", JoinOptions{}))
}

func TestJoinWithAIOpponentStartsImmediately(t *testing.T) {
	f := newRoomFixture(t)

	require.NoError(t, f.room.Join("alice", JoinOptions{AIOpponent: true, Persona: "hard"}))
	assert.Equal(t, StatusPlaying, f.room.Status())

	info := lastOf[OpponentInfoMessage](t, f.sender, "alice")
	assert.True(t, info.AIControlled)
	assert.Equal(t, "hard", info.Persona)

	eng, ok := f.room.EngineFor(info.PlayerID)
	require.True(t, ok)
	assert.Equal(t, info.PlayerID, eng.PlayerID())
}

func TestJoinUnknownPersonaFailsAtomically(t *testing.T) {
	f := newRoomFixture(t)

	err := f.room.Join("alice", JoinOptions{AIOpponent: true, Persona: "nightmare"})
	assert.ErrorIs(t, err, ErrUnknownPersona)
	assert.Equal(t, StatusWaiting, f.room.Status())
	assert.Empty(t, f.room.PlayerIDs(), "failed join leaves no half-seated player")
}

func TestStateSummaryRelaysToOpponent(t *testing.T) {
	f := newRoomFixture(t)
	f.joinPair()

	f.room.HandleStateSummary("alice", []byte(`{"score":120}`))

	relay := lastOf[OpponentStateMessage](t, f.sender, "bob")
	assert.Equal(t, "alice", relay.PlayerID)
	assert.JSONEq(t, `{"score":120}`, string(relay.Summary))
	assert.Empty(t, messagesOf[OpponentStateMessage](f.sender, "alice"), "summaries never echo back to the reporter")
}

func TestAbilityActivationChargesAndDelivers(t *testing.T) {
	f := newRoomFixture(t)
	f.joinPair()
	f.fund("alice")

	res, handled := f.room.HandleAbilityActivation("alice", "req-1", "earthquake", "bob")
	require.True(t, handled)
	require.True(t, res.Accepted)

	result := lastOf[AbilityActivationResultMessage](t, f.sender, "alice")
	assert.Equal(t, "req-1", result.RequestID)
	assert.True(t, result.Accepted)
	assert.Equal(t, "earthquake", result.AppliedAbilityType)
	assert.Equal(t, 30, result.ChargedCost)
	require.NotNil(t, result.RemainingStars)
	assert.Equal(t, 70, *result.RemainingStars)

	received := lastOf[AbilityReceivedMessage](t, f.sender, "bob")
	assert.Equal(t, "earthquake", received.AbilityType)
	assert.Equal(t, "alice", received.FromPlayerID)
}

func TestAbilityActivationInsufficientStars(t *testing.T) {
	f := newRoomFixture(t)
	f.joinPair()
	// No stars_update yet: the mirror balance is zero.

	res, handled := f.room.HandleAbilityActivation("alice", "req-1", "earthquake", "bob")
	require.True(t, handled)
	assert.False(t, res.Accepted)
	assert.Equal(t, ability.ReasonInsufficientStars, res.Reason)

	result := lastOf[AbilityActivationResultMessage](t, f.sender, "alice")
	assert.False(t, result.Accepted)
	assert.Equal(t, string(ability.ReasonInsufficientStars), result.Reason)
	assert.Empty(t, messagesOf[AbilityReceivedMessage](f.sender, "bob"))
}

func TestRejectedCastReportsUntouchedBalance(t *testing.T) {
	f := newRoomFixture(t)
	f.joinPair()
	f.fund("alice")

	res, handled := f.room.HandleAbilityActivation("alice", "req-1", "no_such_ability", "bob")
	require.True(t, handled)
	require.Equal(t, ability.ReasonUnknownAbility, res.Reason)

	result := lastOf[AbilityActivationResultMessage](t, f.sender, "alice")
	require.NotNil(t, result.RemainingStars)
	assert.Equal(t, 100, *result.RemainingStars, "rejection must not misreport a zeroed balance")
}

func TestAbilityActivationIgnoredBeforeStart(t *testing.T) {
	f := newRoomFixture(t)
	require.NoError(t, f.room.Join("alice", JoinOptions{}))

	_, handled := f.room.HandleAbilityActivation("alice", "req-1", "earthquake", "bob")
	assert.False(t, handled)
	assert.Empty(t, messagesOf[AbilityActivationResultMessage](f.sender, "alice"))
}

func TestServerResolvedShieldBlocksNextDebuff(t *testing.T) {
	f := newRoomFixture(t)
	f.joinPair()
	f.fund("alice")
	f.fund("bob")

	res, _ := f.room.HandleAbilityActivation("bob", "req-shield", "shield", "bob")
	require.True(t, res.Accepted, "shield cast arms server-side")

	res, _ = f.room.HandleAbilityActivation("alice", "req-quake", "earthquake", "bob")
	assert.False(t, res.Accepted)
	assert.Equal(t, ability.ReasonBlockedByShield, res.Reason)

	result := lastOf[AbilityActivationResultMessage](t, f.sender, "alice")
	assert.Equal(t, 30, result.ChargedCost, "blocked casts still charge")
	assert.Equal(t, "shield", result.InterceptedBy)

	blocked := lastOf[AbilityBlockedMessage](t, f.sender, "bob")
	assert.Equal(t, "earthquake", blocked.AbilityType)
	assert.Equal(t, "alice", blocked.FromPlayerID)
	assert.Empty(t, messagesOf[AbilityReceivedMessage](f.sender, "bob"), "blocked debuffs are not delivered")

	// The shield was consumed; the next debuff lands.
	res, _ = f.room.HandleAbilityActivation("alice", "req-quake-2", "earthquake", "bob")
	require.True(t, res.Accepted)
	received := lastOf[AbilityReceivedMessage](t, f.sender, "bob")
	assert.Equal(t, "earthquake", received.AbilityType)
}

func TestClientReportedShieldBlocks(t *testing.T) {
	f := newRoomFixture(t)
	f.joinPair()
	f.fund("alice")

	endTime := f.clk.Now().Add(10 * time.Second).UnixMilli()
	f.room.HandleDefensiveEffectUpdate("bob", "shield", endTime)

	res, _ := f.room.HandleAbilityActivation("alice", "req-1", "earthquake", "bob")
	assert.Equal(t, ability.ReasonBlockedByShield, res.Reason)
}

func TestDefensiveEffectUpdateRefusesNonDefensive(t *testing.T) {
	f := newRoomFixture(t)
	f.joinPair()
	f.fund("alice")

	endTime := f.clk.Now().Add(10 * time.Second).UnixMilli()
	f.room.HandleDefensiveEffectUpdate("bob", "earthquake", endTime)

	res, _ := f.room.HandleAbilityActivation("alice", "req-1", "earthquake", "bob")
	assert.True(t, res.Accepted, "a non-defensive report must not arm anything")
}

func TestBlackholeMarkerAndAck(t *testing.T) {
	f := newRoomFixture(t)
	f.joinPair()
	f.fund("alice")

	res, _ := f.room.HandleAbilityActivation("alice", "req-1", "blackhole", "bob")
	require.True(t, res.Accepted)
	assert.True(t, f.room.BlackholeActive("bob"))

	f.room.HandleBlackholeFinished("bob", "animation_complete")
	assert.False(t, f.room.BlackholeActive("bob"))

	ack := lastOf[BlackholeAckMessage](t, f.sender, "bob")
	assert.Equal(t, "bob", ack.PlayerID)
	assert.Equal(t, "animation_complete", ack.Reason)
}

func TestGameOverDeclaresOpponentWinner(t *testing.T) {
	f := newRoomFixture(t)
	f.joinPair()

	f.room.HandleGameOver("bob")

	assert.Equal(t, StatusFinished, f.room.Status())
	winner, loser, ok := f.room.Winner()
	require.True(t, ok)
	assert.Equal(t, "alice", winner)
	assert.Equal(t, "bob", loser)

	for _, id := range []string{"alice", "bob"} {
		fin := lastOf[GameFinishedMessage](t, f.sender, id)
		assert.Equal(t, "alice", fin.WinnerID)
		assert.Equal(t, "bob", fin.LoserID)
	}

	require.Eventually(t, func() bool { return f.recorder.len() == 1 }, time.Second, 10*time.Millisecond)
	rec := f.recorder.last()
	assert.Equal(t, "room-1", rec.RoomID)
	assert.Equal(t, "alice", rec.WinnerID)
	assert.Equal(t, EndReasonToppedOut, rec.EndReason)
}

func TestGameFinishesOnlyOnce(t *testing.T) {
	f := newRoomFixture(t)
	f.joinPair()

	f.room.HandleGameOver("bob")
	f.room.HandleGameOver("alice")

	winner, _, _ := f.room.Winner()
	assert.Equal(t, "alice", winner, "second report after finish changes nothing")
	assert.Len(t, messagesOf[GameFinishedMessage](f.sender, "alice"), 1)

	require.Eventually(t, func() bool { return f.recorder.len() == 1 }, time.Second, 10*time.Millisecond)
}

func TestDisconnectWhileWaitingFreesSeat(t *testing.T) {
	f := newRoomFixture(t)
	require.NoError(t, f.room.Join("alice", JoinOptions{ConnectionID: "conn-a"}))

	f.room.HandleDisconnect("conn-a")

	assert.Equal(t, StatusWaiting, f.room.Status())
	assert.Empty(t, f.room.PlayerIDs())

	// The freed seat can be taken again.
	require.NoError(t, f.room.Join("alice", JoinOptions{ConnectionID: "conn-a2"}))
}

func TestDisconnectMidGameEndsMatch(t *testing.T) {
	f := newRoomFixture(t)
	f.joinPair()

	f.room.HandleDisconnect("conn-b")

	assert.Equal(t, StatusFinished, f.room.Status())
	winner, loser, _ := f.room.Winner()
	assert.Equal(t, "alice", winner)
	assert.Equal(t, "bob", loser)

	gone := lastOf[OpponentDisconnectedMessage](t, f.sender, "alice")
	assert.Equal(t, "bob", gone.PlayerID)

	require.Eventually(t, func() bool { return f.recorder.len() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, EndReasonDisconnected, f.recorder.last().EndReason)
}

func TestUnknownConnectionDisconnectIgnored(t *testing.T) {
	f := newRoomFixture(t)
	f.joinPair()

	f.room.HandleDisconnect("conn-z")
	assert.Equal(t, StatusPlaying, f.room.Status())
}

func TestDebuffLandsOnAIEngine(t *testing.T) {
	f := newRoomFixture(t)
	require.NoError(t, f.room.Join("alice", JoinOptions{ConnectionID: "conn-a", AIOpponent: true}))
	f.fund("alice")

	info := lastOf[OpponentInfoMessage](t, f.sender, "alice")
	aiID := info.PlayerID

	res, _ := f.room.HandleAbilityActivation("alice", "req-1", "speed_up_opponent", aiID)
	require.True(t, res.Accepted)

	eng, ok := f.room.EngineFor(aiID)
	require.True(t, ok)
	assert.True(t, eng.HasEffect(catalog.AbilitySpeedUpOpponent, f.clk.Now()))

	// Landing on an engine pushes a fresh snapshot to the other player.
	relay := lastOf[OpponentStateMessage](t, f.sender, "alice")
	assert.Equal(t, aiID, relay.PlayerID)
	assert.Contains(t, string(relay.Summary), "speed_up_opponent")
}

func TestAIBlackholeResolvesAfterDelay(t *testing.T) {
	f := newRoomFixture(t, func(cfg *Config) {
		cfg.AIBlackholeDelay = 2 * time.Second
	})
	require.NoError(t, f.room.Join("alice", JoinOptions{ConnectionID: "conn-a", AIOpponent: true}))
	f.fund("alice")

	aiID := lastOf[OpponentInfoMessage](t, f.sender, "alice").PlayerID
	res, _ := f.room.HandleAbilityActivation("alice", "req-1", "blackhole", aiID)
	require.True(t, res.Accepted)

	eng, _ := f.room.EngineFor(aiID)
	assert.True(t, eng.HasEffect(catalog.AbilityBlackhole, f.clk.Now()))

	f.advance(2 * time.Second)
	assert.False(t, eng.HasEffect(catalog.AbilityBlackhole, f.clk.Now()),
		"the room reports termination for its AI after the delay")
}

func TestGravityTicksDriveAIBoard(t *testing.T) {
	f := newRoomFixture(t)
	require.NoError(t, f.room.Join("alice", JoinOptions{ConnectionID: "conn-a", AIOpponent: true}))

	aiID := lastOf[OpponentInfoMessage](t, f.sender, "alice").PlayerID
	before := f.sender.count("alice")

	f.advance(5 * time.Second)

	eng, _ := f.room.EngineFor(aiID)
	snap := eng.PublicState(f.clk.Now())
	assert.NotNil(t, snap.Current, "a piece is falling after five seconds")
	assert.Greater(t, f.sender.count("alice"), before, "ticks push opponent states")
}

func TestAIMatchRunsToCompletion(t *testing.T) {
	f := newRoomFixture(t, func(cfg *Config) {
		// A cramped board ends the match quickly.
		cfg.Engine.Width = 5
		cfg.Engine.Height = 6
	})

	a, err := f.room.JoinAI("easy")
	require.NoError(t, err)
	b, err := f.room.JoinAI("easy")
	require.NoError(t, err)
	require.Equal(t, StatusPlaying, f.room.Status())

	for i := 0; i < 3000 && f.room.Status() != StatusFinished; i++ {
		f.advance(100 * time.Millisecond)
	}

	require.Equal(t, StatusFinished, f.room.Status())
	winner, loser, ok := f.room.Winner()
	require.True(t, ok)
	assert.Contains(t, []string{a, b}, winner)
	assert.Contains(t, []string{a, b}, loser)
	assert.NotEqual(t, winner, loser)

	require.Eventually(t, func() bool { return f.recorder.len() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(42), f.recorder.last().Seed)
}

func TestShutdownStopsTasks(t *testing.T) {
	f := newRoomFixture(t)
	require.NoError(t, f.room.Join("alice", JoinOptions{ConnectionID: "conn-a", AIOpponent: true}))

	f.room.Shutdown()
	before := f.sender.count("alice")
	f.advance(5 * time.Second)
	assert.Equal(t, before, f.sender.count("alice"), "no task fires after shutdown")
}
