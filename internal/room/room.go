package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/blockfall/blockfall-server-go/internal/ability"
	"github.com/blockfall/blockfall-server-go/internal/ai"
	"github.com/blockfall/blockfall-server-go/internal/catalog"
	"github.com/blockfall/blockfall-server-go/internal/clock"
	"github.com/blockfall/blockfall-server-go/internal/game"
	"github.com/blockfall/blockfall-server-go/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Status is the room lifecycle state. Transitions are one-way:
// waiting → playing → finished.
type Status int

const (
	StatusWaiting Status = iota
	StatusPlaying
	StatusFinished
)

func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusPlaying:
		return "playing"
	case StatusFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Match end reasons, persisted with the match record.
const (
	EndReasonToppedOut    = "topped_out"
	EndReasonDisconnected = "opponent_disconnected"
)

// Join errors.
var (
	ErrRoomFull       = errors.New("room is full")
	ErrAlreadyStarted = errors.New("game already started")
	ErrAlreadyJoined  = errors.New("player already joined")
	ErrUnknownPersona = errors.New("unknown ai persona")
)

// Sender delivers one server message to a player's connection. Send
// must not block: transports buffer per client and drop the slow ones.
// A nil Sender runs the room headless.
type Sender interface {
	Send(playerID string, message any)
}

// MatchRecorder persists finished matches. Satisfied by
// repository.MatchRepository; nil disables persistence.
type MatchRecorder interface {
	RecordMatch(ctx context.Context, m repository.MatchRecord) error
}

const (
	maxPlayers = 2

	defaultDecisionPeriod   = 50 * time.Millisecond
	defaultAIBlackholeDelay = 8 * time.Second
	defaultStarCapacity     = 100

	recordTimeout = 5 * time.Second
)

// Config sets up one room.
type Config struct {
	ID   string
	Seed int64

	Catalog  *catalog.Catalog
	Clock    clock.Clock
	Sender   Sender
	Recorder MatchRecorder
	// Replays, when set, records every AI engine interaction for
	// deterministic re-runs and saves the log at match end.
	Replays *game.Recorder

	// Engine is the per-player engine template; PlayerID, RoomSeed and
	// Catalog are filled in by the room.
	Engine game.Config

	DefaultPersona string
	DecisionPeriod time.Duration
	// AIBlackholeDelay is how long an AI player stays suspended before
	// the room reports termination on its behalf, standing in for the
	// client-side animation a human would finish.
	AIBlackholeDelay time.Duration
}

// playerSlot is one seat in the room. Engine and ctrl are set for AI
// players only; account mirrors a human client's star economy.
type playerSlot struct {
	id           string
	connectionID string
	isAI         bool
	persona      string
	engine       *game.Engine
	ctrl         *ai.Controller
	account      *mirrorAccount

	summary         json.RawMessage
	blackholeActive bool
}

// mirrorAccount is the server's trusted copy of a human player's star
// balance: earned stars arrive via stars_update, spends happen here
// first. Implements ability.StarAccount.
type mirrorAccount struct {
	mu       sync.Mutex
	stars    int
	capacity int
}

func newMirrorAccount(capacity int) *mirrorAccount {
	return &mirrorAccount{capacity: capacity}
}

func (a *mirrorAccount) Stars() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stars
}

func (a *mirrorAccount) SpendStars(amount int) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if amount < 0 || a.stars < amount {
		return a.stars, false
	}
	a.stars -= amount
	return a.stars, true
}

func (a *mirrorAccount) GrantStars(amount int) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stars += amount
	a.clampLocked()
	return a.stars
}

// Set overwrites the mirrored balance from a stars_update report.
func (a *mirrorAccount) Set(stars int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stars = stars
	a.clampLocked()
}

func (a *mirrorAccount) clampLocked() {
	if a.stars > a.capacity {
		a.stars = a.capacity
	}
	if a.stars < 0 {
		a.stars = 0
	}
}

// Room is one match's isolated state container: players, engines,
// resolver state, and the two timer loops. All handlers receive the
// room explicitly; there is no ambient state.
type Room struct {
	logger *zap.Logger
	cfg    Config
	id     string
	seed   int64

	clk      clock.Clock
	sched    *clock.Scheduler
	sender   Sender
	recorder MatchRecorder
	replays  *game.Recorder

	cat      *catalog.Catalog
	roster   *ability.Roster
	defense  *ability.Tracker
	resolver *ability.Resolver

	mu        sync.Mutex
	status    Status
	players   map[string]*playerSlot
	order     []string
	startedAt time.Time
	winnerID  string
	loserID   string
	endReason string
}

// NewRoom creates an empty room in the waiting state.
func NewRoom(cfg Config, logger *zap.Logger) *Room {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Catalog == nil {
		cfg.Catalog = catalog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System()
	}
	if cfg.Seed == 0 {
		cfg.Seed = cfg.Clock.Now().UnixNano()
	}
	if cfg.DefaultPersona == "" {
		cfg.DefaultPersona = "normal"
	}
	if cfg.DecisionPeriod <= 0 {
		cfg.DecisionPeriod = defaultDecisionPeriod
	}
	if cfg.AIBlackholeDelay <= 0 {
		cfg.AIBlackholeDelay = defaultAIBlackholeDelay
	}

	r := &Room{
		logger:   logger,
		cfg:      cfg,
		id:       cfg.ID,
		seed:     cfg.Seed,
		clk:      cfg.Clock,
		sched:    clock.NewScheduler(cfg.Clock, logger),
		sender:   cfg.Sender,
		recorder: cfg.Recorder,
		replays:  cfg.Replays,
		cat:      cfg.Catalog,
		roster:   ability.NewRoster(),
		defense:  ability.NewTracker(logger),
		players:  make(map[string]*playerSlot, maxPlayers),
	}
	r.resolver = ability.NewResolver(r.cat, r.roster, r.defense, logger)
	return r
}

// ID returns the room id.
func (r *Room) ID() string { return r.id }

// Seed returns the shared piece-sequence seed.
func (r *Room) Seed() int64 { return r.seed }

// Status returns the current lifecycle state.
func (r *Room) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// PlayerIDs returns the seated players in join order.
func (r *Room) PlayerIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// Winner returns the declared winner and loser once finished.
func (r *Room) Winner() (winnerID, loserID string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.winnerID, r.loserID, r.status == StatusFinished
}

// EndReason returns why the match ended, empty while it is running.
func (r *Room) EndReason() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.endReason
}

// EngineFor returns the simulation engine of an AI-controlled player.
func (r *Room) EngineFor(playerID string) (*game.Engine, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, ok := r.players[playerID]
	if !ok || slot.engine == nil {
		return nil, false
	}
	return slot.engine, true
}

// Run drives the room's scheduler from the wall clock until Shutdown.
func (r *Room) Run() { r.sched.Run() }

// Advance drives the scheduler to now. Virtual-clock callers (tests,
// the headless arena) use this instead of Run.
func (r *Room) Advance(now time.Time) int { return r.sched.Advance(now) }

// Shutdown cancels both timer loops. Safe to call more than once.
func (r *Room) Shutdown() { r.sched.Stop() }

// JoinOptions carries the optional join_game fields.
type JoinOptions struct {
	ConnectionID string
	Loadout      []catalog.AbilityID
	AIOpponent   bool
	Persona      string
}

// Join seats a human player. The game starts once the second seat
// fills, whether by another player or by the requested AI opponent.
func (r *Room) Join(playerID string, opts JoinOptions) error {
	if playerID == "" {
		return errors.New("player id required")
	}

	r.mu.Lock()
	if r.status != StatusWaiting {
		r.mu.Unlock()
		return ErrAlreadyStarted
	}
	if _, dup := r.players[playerID]; dup {
		r.mu.Unlock()
		return ErrAlreadyJoined
	}
	if len(r.players) >= maxPlayers {
		r.mu.Unlock()
		return ErrRoomFull
	}

	slot := &playerSlot{
		id:           playerID,
		connectionID: opts.ConnectionID,
		account:      newMirrorAccount(r.starCapacity()),
	}
	r.players[playerID] = slot
	r.order = append(r.order, playerID)
	r.roster.Add(playerID, opts.Loadout)
	r.roster.Attach(playerID, slot.account)

	if r.logger != nil {
		r.logger.Info("player joined",
			zap.String("room_id", r.id),
			zap.String("player_id", playerID),
			zap.Int("loadout_size", len(opts.Loadout)),
			zap.Bool("ai_opponent", opts.AIOpponent),
		)
	}

	if opts.AIOpponent && len(r.players) < maxPlayers {
		if _, err := r.seatAILocked(opts.Persona); err != nil {
			// Roll the human seat back so the join fails atomically.
			delete(r.players, playerID)
			r.order = r.order[:len(r.order)-1]
			r.roster.Remove(playerID)
			r.mu.Unlock()
			return err
		}
	}

	fires := r.afterSeatingLocked()
	r.mu.Unlock()
	fires()
	return nil
}

// JoinAI seats an AI player directly. The headless arena uses this to
// run AI-versus-AI matches.
func (r *Room) JoinAI(persona string) (string, error) {
	r.mu.Lock()
	if r.status != StatusWaiting {
		r.mu.Unlock()
		return "", ErrAlreadyStarted
	}
	if len(r.players) >= maxPlayers {
		r.mu.Unlock()
		return "", ErrRoomFull
	}

	id, err := r.seatAILocked(persona)
	if err != nil {
		r.mu.Unlock()
		return "", err
	}
	fires := r.afterSeatingLocked()
	r.mu.Unlock()
	fires()
	return id, nil
}

// seatAILocked adds an AI slot. Caller holds r.mu.
func (r *Room) seatAILocked(personaName string) (string, error) {
	if personaName == "" {
		personaName = r.cfg.DefaultPersona
	}
	persona, ok := ai.ByName(personaName)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPersona, personaName)
	}

	id := "ai-" + uuid.NewString()[:8]
	slot := &playerSlot{
		id:      id,
		isAI:    true,
		persona: persona.Name,
	}
	r.players[id] = slot
	r.order = append(r.order, id)
	r.roster.Add(id, persona.Loadout)

	if r.logger != nil {
		r.logger.Info("ai player seated",
			zap.String("room_id", r.id),
			zap.String("player_id", id),
			zap.String("persona", persona.Name),
		)
	}
	return id, nil
}

// afterSeatingLocked broadcasts membership and starts the game when the
// room is full. Returns the deferred side effects to run after r.mu is
// released. Caller holds r.mu.
func (r *Room) afterSeatingLocked() func() {
	if len(r.players) == maxPlayers {
		return r.startLocked()
	}

	msg := RoomStateMessage{Type: TypeRoomState, Status: r.status.String(), PlayerCount: len(r.players)}
	members := append([]string(nil), r.order...)
	return func() {
		for _, id := range members {
			r.send(id, msg)
		}
	}
}

// startLocked transitions to playing: builds engines and controllers
// for AI seats, schedules the gravity and decision tasks, and prepares
// the start broadcasts. Caller holds r.mu.
func (r *Room) startLocked() func() {
	now := r.clk.Now()
	r.status = StatusPlaying
	r.startedAt = now

	for _, id := range r.order {
		slot := r.players[id]
		if !slot.isAI {
			continue
		}
		r.buildAILocked(slot)
	}

	players := append([]string(nil), r.order...)
	roomMsg := RoomStateMessage{Type: TypeRoomState, Status: r.status.String(), PlayerCount: len(players)}
	startMsg := GameStartMessage{Type: TypeGameStart, Players: players, Seed: r.seed}

	infos := make(map[string]OpponentInfoMessage, len(players))
	for _, id := range players {
		if opp, ok := r.opponentLocked(id); ok {
			infos[id] = OpponentInfoMessage{
				Type:         TypeOpponentInfo,
				PlayerID:     opp.id,
				AIControlled: opp.isAI,
				Persona:      opp.persona,
			}
		}
	}

	if r.logger != nil {
		r.logger.Info("game started",
			zap.String("room_id", r.id),
			zap.Strings("players", players),
			zap.Int64("seed", r.seed),
		)
	}

	return func() {
		for _, id := range players {
			r.send(id, roomMsg)
			r.send(id, startMsg)
			if info, ok := infos[id]; ok {
				r.send(id, info)
			}
		}
	}
}

// buildAILocked creates the engine and controller for one AI seat and
// schedules its two tasks. Caller holds r.mu.
func (r *Room) buildAILocked(slot *playerSlot) {
	persona, _ := ai.ByName(slot.persona)

	engCfg := r.cfg.Engine
	engCfg.PlayerID = slot.id
	engCfg.RoomSeed = r.seed
	engCfg.Catalog = r.cat
	slot.engine = game.NewEngine(engCfg, r.logger)
	r.roster.Attach(slot.id, slot.engine)

	var observe func(in game.Input, now time.Time)
	if r.replays != nil {
		width, height := slot.engine.BoardSize()
		r.replays.StartRecording(slot.id, r.seed, width, height, r.clk.Now())
		observe = func(in game.Input, now time.Time) {
			r.replays.RecordInput(slot.id, in, now)
		}
	}

	slot.ctrl = ai.NewController(ai.Config{
		Persona: persona,
		Engine:  slot.engine,
		Catalog: r.cat,
		Cast: func(id catalog.AbilityID) {
			r.castFromAI(slot.id, id)
		},
		OnInput: observe,
	}, r.logger)

	slot.engine.SetLinesClearedHook(slot.ctrl.OnLinesCleared)
	slot.engine.SetGameOverHook(func(now time.Time) {
		r.engineToppedOut(slot.id, now)
	})

	gravityName := "gravity:" + slot.id
	decisionName := "ai:" + slot.id
	eng, ctrl := slot.engine, slot.ctrl

	r.sched.Schedule(gravityName, func() time.Duration {
		return eng.EffectiveTickRate(r.clk.Now())
	}, func(now time.Time) {
		if r.Status() != StatusPlaying {
			return
		}
		if eng.Tick(now) {
			if r.replays != nil {
				r.replays.RecordTick(slot.id, now)
			}
			r.broadcastAIState(slot, now)
		}
	})

	r.sched.Schedule(decisionName, func() time.Duration {
		return r.cfg.DecisionPeriod
	}, func(now time.Time) {
		if r.Status() != StatusPlaying {
			return
		}
		ctrl.DecideStep(now)
	})
}

// starCapacity returns the configured star cap for mirror accounts.
func (r *Room) starCapacity() int {
	if r.cfg.Engine.StarCapacity > 0 {
		return r.cfg.Engine.StarCapacity
	}
	return defaultStarCapacity
}

// opponentLocked returns the other seat. Caller holds r.mu.
func (r *Room) opponentLocked(playerID string) (*playerSlot, bool) {
	for _, id := range r.order {
		if id != playerID {
			return r.players[id], true
		}
	}
	return nil, false
}

// slotFor looks up a seat by player id.
func (r *Room) slotFor(playerID string) (*playerSlot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, ok := r.players[playerID]
	return slot, ok
}

// HandleStateSummary stores a client's board summary and relays it to
// the opponent verbatim.
func (r *Room) HandleStateSummary(playerID string, summary json.RawMessage) {
	r.mu.Lock()
	slot, ok := r.players[playerID]
	if !ok {
		r.mu.Unlock()
		return
	}
	slot.summary = summary
	opp, hasOpp := r.opponentLocked(playerID)
	r.mu.Unlock()

	if hasOpp && !opp.isAI {
		r.send(opp.id, OpponentStateMessage{Type: TypeOpponentState, PlayerID: playerID, Summary: summary})
	}
}

// HandleStarsUpdate mirrors a human client's reported star balance.
func (r *Room) HandleStarsUpdate(playerID string, stars int) {
	slot, ok := r.slotFor(playerID)
	if !ok || slot.isAI {
		return
	}
	slot.account.Set(stars)
}

// HandleDefensiveEffectUpdate arms a client-reported shield or reflect.
// EndTime is unix milliseconds.
func (r *Room) HandleDefensiveEffectUpdate(playerID, effect string, endTimeMS int64) {
	if _, ok := r.slotFor(playerID); !ok {
		return
	}
	if !r.defense.Arm(playerID, catalog.AbilityID(effect), time.UnixMilli(endTimeMS)) && r.logger != nil {
		r.logger.Warn("defensive effect update refused",
			zap.String("room_id", r.id),
			zap.String("player_id", playerID),
			zap.String("effect", effect),
		)
	}
}

// HandleAbilityActivation resolves one cast and carries out its
// deliveries. The result message goes to the requester only. Returns
// the resolution for callers that inspect it directly; ok is false when
// the room is not in a playable state.
func (r *Room) HandleAbilityActivation(playerID, requestID, abilityType, targetPlayerID string) (ability.Result, bool) {
	if r.Status() != StatusPlaying {
		if r.logger != nil {
			r.logger.Debug("cast ignored outside play",
				zap.String("room_id", r.id),
				zap.String("player_id", playerID),
				zap.String("ability", abilityType),
			)
		}
		return ability.Result{}, false
	}

	now := r.clk.Now()
	res := r.resolver.Resolve(ability.Request{
		RequestID: requestID,
		CasterID:  playerID,
		Ability:   catalog.AbilityID(abilityType),
		TargetID:  targetPlayerID,
	}, now)

	r.send(playerID, r.activationResultMessage(res))
	r.applyDeliveries(res, now)
	return res, true
}

// activationResultMessage converts a resolution into its wire form.
func (r *Room) activationResultMessage(res ability.Result) AbilityActivationResultMessage {
	msg := AbilityActivationResultMessage{
		Type:                TypeAbilityActivationResult,
		RequestID:           res.RequestID,
		AbilityType:         string(res.Requested),
		AppliedAbilityType:  string(res.Applied),
		TargetPlayerID:      res.RequestedTarget,
		FinalTargetPlayerID: res.FinalTarget,
		Accepted:            res.Accepted,
		Reason:              string(res.Reason),
		InterceptedBy:       string(res.InterceptedBy),
		Message:             resultText(res),
		ChargedCost:         res.ChargedCost,
	}
	// Star balances are only meaningful once the caster's account was
	// found during validation.
	if _, ok := r.roster.Account(res.CasterID); ok {
		remaining := res.RemainingStars
		msg.RemainingStars = &remaining
	}
	return msg
}

func resultText(res ability.Result) string {
	switch {
	case res.Accepted:
		return fmt.Sprintf("%s resolved against %s", res.Applied, res.FinalTarget)
	case res.Reason == ability.ReasonBlockedByShield:
		return fmt.Sprintf("%s blocked by the opponent's shield", res.Applied)
	case res.Reason == ability.ReasonReflectedByOpponent:
		return fmt.Sprintf("%s reflected back at you", res.Applied)
	case res.Reason == ability.ReasonCloneNoAbility:
		return "nothing to clone, cost refunded"
	default:
		return "rejected: " + string(res.Reason)
	}
}

// applyDeliveries carries out a resolution: abilities land directly on
// AI engines and are forwarded to human clients for local application.
// Any landed ability invalidates the target AI's move plan.
func (r *Room) applyDeliveries(res ability.Result, now time.Time) {
	for _, d := range res.Deliveries {
		slot, ok := r.slotFor(d.TargetID)
		if !ok {
			continue
		}

		if !slot.isAI {
			if d.Ability == catalog.AbilityBlackhole {
				r.setBlackholeMarker(d.TargetID, true)
			}
			r.send(d.TargetID, AbilityReceivedMessage{
				Type:         TypeAbilityReceived,
				AbilityType:  string(d.Ability),
				FromPlayerID: d.FromID,
			})
			continue
		}

		applied := slot.engine.ApplyAbility(d.Ability, now)
		if !applied.Applied && !applied.Deflected {
			continue
		}
		slot.ctrl.InvalidatePlan()
		if applied.Applied {
			if r.replays != nil {
				r.replays.RecordAbility(slot.id, d.Ability, now)
			}
			if d.Ability == catalog.AbilityBlackhole {
				r.scheduleAIBlackholeEnd(slot)
			}
		}
		r.broadcastAIState(slot, now)
	}

	if res.Blocked != nil {
		r.send(res.Blocked.OwnerID, AbilityBlockedMessage{
			Type:         TypeAbilityBlocked,
			AbilityType:  string(res.Blocked.Ability),
			FromPlayerID: res.Blocked.FromID,
			BlockedBy:    string(res.Blocked.BlockedBy),
		})
	}
}

// scheduleAIBlackholeEnd reports blackhole termination on behalf of an
// AI player after the configured delay, the way a human client reports
// it once its animation completes.
func (r *Room) scheduleAIBlackholeEnd(slot *playerSlot) {
	name := "blackhole:" + slot.id
	r.sched.Schedule(name, func() time.Duration {
		return r.cfg.AIBlackholeDelay
	}, func(now time.Time) {
		r.sched.Cancel(name)
		if !slot.engine.ResolveBlackhole(now) {
			return
		}
		if r.replays != nil {
			r.replays.RecordBlackholeResolved(slot.id, now)
		}
		r.broadcastAIState(slot, now)
	})
}

// HandleBlackholeFinished resolves a client-reported blackhole
// termination and acknowledges it.
func (r *Room) HandleBlackholeFinished(playerID, reason string) {
	slot, ok := r.slotFor(playerID)
	if !ok || slot.isAI {
		return
	}
	r.setBlackholeMarker(playerID, false)
	r.send(playerID, BlackholeAckMessage{Type: TypeBlackholeAck, PlayerID: playerID, Reason: reason})

	if r.logger != nil {
		r.logger.Info("blackhole finished",
			zap.String("room_id", r.id),
			zap.String("player_id", playerID),
			zap.String("reason", reason),
		)
	}
}

func (r *Room) setBlackholeMarker(playerID string, active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if slot, ok := r.players[playerID]; ok {
		slot.blackholeActive = active
	}
}

// BlackholeActive reports the server-side suspend marker for a human
// player.
func (r *Room) BlackholeActive(playerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, ok := r.players[playerID]
	return ok && slot.blackholeActive
}

// HandleGameOver processes a client reporting its own topped-out board:
// the opponent wins.
func (r *Room) HandleGameOver(playerID string) {
	slot, ok := r.slotFor(playerID)
	if !ok || slot.isAI {
		return
	}
	r.mu.Lock()
	opp, hasOpp := r.opponentLocked(playerID)
	r.mu.Unlock()
	if !hasOpp {
		return
	}
	r.declareWinner(opp.id, playerID, EndReasonToppedOut)
}

// HandleDisconnect removes the player behind a dropped connection. Mid
// game this is room-fatal: the survivor wins and both loops stop.
func (r *Room) HandleDisconnect(connectionID string) {
	r.mu.Lock()
	var gone *playerSlot
	for _, slot := range r.players {
		if !slot.isAI && slot.connectionID == connectionID {
			gone = slot
			break
		}
	}
	if gone == nil {
		r.mu.Unlock()
		return
	}
	status := r.status
	opp, hasOpp := r.opponentLocked(gone.id)

	if status == StatusWaiting {
		delete(r.players, gone.id)
		for i, id := range r.order {
			if id == gone.id {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
		r.roster.Remove(gone.id)
		members := append([]string(nil), r.order...)
		count := len(r.players)
		r.mu.Unlock()

		for _, id := range members {
			r.send(id, RoomStateMessage{Type: TypeRoomState, Status: status.String(), PlayerCount: count})
		}
		return
	}
	r.mu.Unlock()

	if r.logger != nil {
		r.logger.Info("player disconnected",
			zap.String("room_id", r.id),
			zap.String("player_id", gone.id),
		)
	}

	if hasOpp {
		r.send(opp.id, OpponentDisconnectedMessage{Type: TypeOpponentDisconnected, PlayerID: gone.id})
		if status == StatusPlaying {
			r.declareWinner(opp.id, gone.id, EndReasonDisconnected)
		}
	}
}

// engineToppedOut is the AI engine game-over hook: the opponent wins.
func (r *Room) engineToppedOut(playerID string, now time.Time) {
	r.mu.Lock()
	opp, hasOpp := r.opponentLocked(playerID)
	r.mu.Unlock()
	if !hasOpp {
		return
	}
	r.declareWinner(opp.id, playerID, EndReasonToppedOut)
}

// declareWinner finishes the match exactly once: cancels both timer
// loops, broadcasts game_finished, saves replays, and records the
// match.
func (r *Room) declareWinner(winnerID, loserID, reason string) {
	r.mu.Lock()
	if r.status == StatusFinished {
		r.mu.Unlock()
		return
	}
	r.status = StatusFinished
	r.winnerID = winnerID
	r.loserID = loserID
	r.endReason = reason
	startedAt := r.startedAt
	members := append([]string(nil), r.order...)
	var aiIDs []string
	for _, id := range members {
		if r.players[id].isAI {
			aiIDs = append(aiIDs, id)
		}
	}
	r.mu.Unlock()

	r.sched.Stop()

	if r.logger != nil {
		r.logger.Info("game finished",
			zap.String("room_id", r.id),
			zap.String("winner_id", winnerID),
			zap.String("loser_id", loserID),
			zap.String("reason", reason),
		)
	}

	msg := GameFinishedMessage{Type: TypeGameFinished, WinnerID: winnerID, LoserID: loserID}
	for _, id := range members {
		r.send(id, msg)
	}

	if r.replays != nil {
		for _, id := range aiIDs {
			if err := r.replays.Save(id); err != nil && r.logger != nil {
				r.logger.Warn("replay save failed", zap.String("player_id", id), zap.Error(err))
			}
		}
	}

	if r.recorder != nil {
		record := repository.MatchRecord{
			RoomID:     r.id,
			Seed:       r.seed,
			WinnerID:   winnerID,
			LoserID:    loserID,
			EndReason:  reason,
			StartedAt:  startedAt,
			FinishedAt: r.clk.Now(),
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
			defer cancel()
			if err := r.recorder.RecordMatch(ctx, record); err != nil && r.logger != nil {
				r.logger.Error("match record failed",
					zap.String("room_id", r.id),
					zap.Error(err),
				)
			}
		}()
	}
}

// castFromAI submits an ability on the AI's behalf through the same
// resolution pipeline a client cast takes. Targets follow catalog
// targeting: self-abilities hit the caster, the rest hit the opponent.
func (r *Room) castFromAI(casterID string, id catalog.AbilityID) {
	if r.Status() != StatusPlaying {
		return
	}
	a, ok := r.cat.Get(id)
	if !ok {
		return
	}

	target := casterID
	if a.Target == catalog.TargetOpponent {
		opp, ok := r.roster.Opponent(casterID)
		if !ok {
			return
		}
		target = opp
	}

	now := r.clk.Now()
	res := r.resolver.Resolve(ability.Request{
		RequestID: uuid.NewString(),
		CasterID:  casterID,
		Ability:   id,
		TargetID:  target,
	}, now)
	r.applyDeliveries(res, now)
}

// broadcastAIState pushes an AI engine snapshot to the other players
// as an opponent_state, the same shape a human's summary relay uses.
func (r *Room) broadcastAIState(slot *playerSlot, now time.Time) {
	snap := slot.engine.PublicState(now)
	raw, err := json.Marshal(snap)
	if err != nil {
		if r.logger != nil {
			r.logger.Error("snapshot marshal failed", zap.Error(err))
		}
		return
	}

	r.mu.Lock()
	slot.summary = raw
	members := append([]string(nil), r.order...)
	r.mu.Unlock()

	msg := OpponentStateMessage{Type: TypeOpponentState, PlayerID: slot.id, Summary: raw}
	for _, id := range members {
		if id != slot.id {
			r.send(id, msg)
		}
	}
}

func (r *Room) send(playerID string, message any) {
	if r.sender != nil {
		r.sender.Send(playerID, message)
	}
}
