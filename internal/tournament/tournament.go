package tournament

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State represents the lifecycle of a tournament.
type State int

const (
	StateWaiting State = iota
	StateInProgress
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "WAITING"
	case StateInProgress:
		return "IN_PROGRESS"
	case StateFinished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

// Entrant is one competitor's standing. Wins score three points and
// draws one, scores accumulate as a tiebreaker.
type Entrant struct {
	Name   string
	Points int
	Wins   int
	Losses int
	Draws  int
	Score  int
}

// Pairing is one scheduled match between two entrants.
type Pairing struct {
	Home      string
	Away      string
	Played    bool
	WinnerID  string // empty on a draw
	EndReason string
	HomeScore int
	AwayScore int
}

// Round groups pairings in which no entrant appears twice.
type Round struct {
	Number   int
	Pairings []*Pairing
}

// Fixture identifies one unplayed pairing.
type Fixture struct {
	Round int
	Home  string
	Away  string
}

// PairingSnapshot captures pairing data for external use.
type PairingSnapshot struct {
	Home      string
	Away      string
	Played    bool
	WinnerID  string
	EndReason string
	HomeScore int
	AwayScore int
}

// RoundSnapshot captures round data for external use.
type RoundSnapshot struct {
	Number   int
	Pairings []PairingSnapshot
}

// Snapshot captures a consistent view of a tournament.
type Snapshot struct {
	ID         string
	Name       string
	State      State
	Standings  []Entrant
	Rounds     []RoundSnapshot
	CreateTime time.Time
	StartTime  *time.Time
	EndTime    *time.Time
}

// Tournament runs a round-robin series between entrants. Start builds
// the schedule with the circle method, results are recorded fixture by
// fixture, and the tournament finishes itself once every pairing has
// been played.
type Tournament struct {
	id     string
	name   string
	logger *zap.Logger

	mu         sync.RWMutex
	state      State
	entrants   map[string]*Entrant
	order      []string // insertion order
	rounds     []*Round
	createTime time.Time
	startTime  *time.Time
	endTime    *time.Time
}

// New creates an empty tournament in the waiting state.
func New(name string, logger *zap.Logger) *Tournament {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tournament{
		id:         uuid.NewString(),
		name:       name,
		logger:     logger,
		state:      StateWaiting,
		entrants:   make(map[string]*Entrant),
		createTime: time.Now(),
	}
}

// ID returns the tournament's generated id.
func (t *Tournament) ID() string {
	return t.id
}

// AddEntrant registers a competitor before the schedule is built.
func (t *Tournament) AddEntrant(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateWaiting {
		return fmt.Errorf("tournament already started")
	}
	if _, exists := t.entrants[name]; exists {
		return fmt.Errorf("entrant already registered")
	}

	t.entrants[name] = &Entrant{Name: name}
	t.order = append(t.order, name)
	return nil
}

// EntrantCount returns the number of registered entrants.
func (t *Tournament) EntrantCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entrants)
}

// State returns the current lifecycle state.
func (t *Tournament) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// byeSlot pads an odd entrant list so the circle method pairs evenly.
const byeSlot = ""

// Start freezes the entrant list and builds the round-robin schedule.
// Every pair meets once per leg; legs alternate home and away.
func (t *Tournament) Start(legs int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateWaiting {
		return fmt.Errorf("tournament already started")
	}
	if len(t.order) < 2 {
		return fmt.Errorf("not enough entrants")
	}
	if legs < 1 {
		legs = 1
	}

	ring := make([]string, len(t.order))
	copy(ring, t.order)
	if len(ring)%2 == 1 {
		ring = append(ring, byeSlot)
	}
	n := len(ring)

	number := 0
	for leg := 0; leg < legs; leg++ {
		rot := make([]string, n)
		copy(rot, ring)
		for r := 0; r < n-1; r++ {
			number++
			round := &Round{Number: number}
			for i := 0; i < n/2; i++ {
				home, away := rot[i], rot[n-1-i]
				if home == byeSlot || away == byeSlot {
					continue
				}
				if leg%2 == 1 {
					home, away = away, home
				}
				round.Pairings = append(round.Pairings, &Pairing{Home: home, Away: away})
			}
			t.rounds = append(t.rounds, round)
			rotateTail(rot)
		}
	}

	now := time.Now()
	t.startTime = &now
	t.state = StateInProgress

	t.logger.Info("tournament started",
		zap.String("tournament_id", t.id),
		zap.String("name", t.name),
		zap.Int("entrants", len(t.order)),
		zap.Int("rounds", len(t.rounds)),
		zap.Int("legs", legs),
	)
	return nil
}

// rotateTail moves everything except the first element one slot right,
// the circle-method rotation.
func rotateTail(rot []string) {
	n := len(rot)
	tail := make([]string, n-1)
	copy(tail, rot[1:])
	rot[1] = tail[n-2]
	copy(rot[2:], tail[:n-2])
}

// NextFixture returns the first unplayed pairing in schedule order.
func (t *Tournament) NextFixture() (Fixture, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.state != StateInProgress {
		return Fixture{}, false
	}
	for _, round := range t.rounds {
		for _, p := range round.Pairings {
			if !p.Played {
				return Fixture{Round: round.Number, Home: p.Home, Away: p.Away}, true
			}
		}
	}
	return Fixture{}, false
}

// RecordResult records the outcome of one fixture. An empty winnerID
// scores the match as a draw. The tournament finishes itself when the
// last fixture is recorded.
func (t *Tournament) RecordResult(roundNum int, home, away, winnerID, endReason string, homeScore, awayScore int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if roundNum <= 0 || roundNum > len(t.rounds) {
		return fmt.Errorf("invalid round number %d", roundNum)
	}
	round := t.rounds[roundNum-1]

	for _, p := range round.Pairings {
		if p.Home != home || p.Away != away {
			continue
		}
		if p.Played {
			return fmt.Errorf("pairing %s vs %s already recorded", home, away)
		}
		if winnerID != "" && winnerID != home && winnerID != away {
			return fmt.Errorf("winner %s is not part of pairing %s vs %s", winnerID, home, away)
		}

		p.Played = true
		p.WinnerID = winnerID
		p.EndReason = endReason
		p.HomeScore = homeScore
		p.AwayScore = awayScore

		h, a := t.entrants[home], t.entrants[away]
		h.Score += homeScore
		a.Score += awayScore
		switch winnerID {
		case home:
			h.Wins++
			h.Points += 3
			a.Losses++
		case away:
			a.Wins++
			a.Points += 3
			h.Losses++
		default:
			h.Draws++
			h.Points++
			a.Draws++
			a.Points++
		}

		if t.allPlayedLocked() {
			now := time.Now()
			t.endTime = &now
			t.state = StateFinished
			t.logger.Info("tournament finished",
				zap.String("tournament_id", t.id),
				zap.String("leader", t.standingsLocked()[0].Name),
			)
		}
		return nil
	}

	return fmt.Errorf("pairing %s vs %s not found in round %d", home, away, roundNum)
}

func (t *Tournament) allPlayedLocked() bool {
	for _, round := range t.rounds {
		for _, p := range round.Pairings {
			if !p.Played {
				return false
			}
		}
	}
	return true
}

// Standings returns the entrants ordered by points, wins, accumulated
// score, then name.
func (t *Tournament) Standings() []Entrant {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.standingsLocked()
}

func (t *Tournament) standingsLocked() []Entrant {
	out := make([]Entrant, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, *t.entrants[name])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Points != out[j].Points {
			return out[i].Points > out[j].Points
		}
		if out[i].Wins != out[j].Wins {
			return out[i].Wins > out[j].Wins
		}
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Snapshot returns a consistent copy of the tournament state.
func (t *Tournament) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rounds := make([]RoundSnapshot, 0, len(t.rounds))
	for _, r := range t.rounds {
		pairings := make([]PairingSnapshot, 0, len(r.Pairings))
		for _, p := range r.Pairings {
			pairings = append(pairings, PairingSnapshot{
				Home:      p.Home,
				Away:      p.Away,
				Played:    p.Played,
				WinnerID:  p.WinnerID,
				EndReason: p.EndReason,
				HomeScore: p.HomeScore,
				AwayScore: p.AwayScore,
			})
		}
		rounds = append(rounds, RoundSnapshot{Number: r.Number, Pairings: pairings})
	}

	return Snapshot{
		ID:         t.id,
		Name:       t.name,
		State:      t.state,
		Standings:  t.standingsLocked(),
		Rounds:     rounds,
		CreateTime: t.createTime,
		StartTime:  cloneTime(t.startTime),
		EndTime:    cloneTime(t.endTime),
	}
}

func cloneTime(src *time.Time) *time.Time {
	if src == nil {
		return nil
	}
	cp := *src
	return &cp
}
