package game

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/blockfall/blockfall-server-go/internal/catalog"
	"go.uber.org/zap"
)

// Replay event kinds.
const (
	ReplayEventTick      = "tick"
	ReplayEventInput     = "input"
	ReplayEventAbility   = "ability"
	ReplayEventBlackhole = "blackhole_resolved"
)

// ReplayEvent is one recorded engine interaction. Because the engine
// is deterministic, the event log plus the seed reproduces a full run.
type ReplayEvent struct {
	AtMS    int64
	Kind    string
	Input   string
	Ability string
}

// ReplayLog captures everything needed to re-run one player's game.
type ReplayLog struct {
	PlayerID string
	RoomSeed int64
	Width    int
	Height   int
	Events   []ReplayEvent
}

// Rerun replays the log into a fresh engine and returns the final
// public state.
func (l *ReplayLog) Rerun(logger *zap.Logger) Snapshot {
	e := NewEngine(Config{
		PlayerID: l.PlayerID,
		RoomSeed: l.RoomSeed,
		Width:    l.Width,
		Height:   l.Height,
	}, logger)

	base := time.Unix(0, 0)
	now := base
	for _, ev := range l.Events {
		now = base.Add(time.Duration(ev.AtMS) * time.Millisecond)
		switch ev.Kind {
		case ReplayEventTick:
			e.Tick(now)
		case ReplayEventInput:
			if in, ok := ParseInput(ev.Input); ok {
				e.ProcessInput(in, now)
			}
		case ReplayEventAbility:
			e.ApplyAbility(catalog.AbilityID(ev.Ability), now)
		case ReplayEventBlackhole:
			e.ResolveBlackhole(now)
		}
	}
	return e.PublicState(now)
}

// SaveToFile writes the log to a gzipped gob file named after the
// player.
func (l *ReplayLog) SaveToFile(directory string) error {
	if err := os.MkdirAll(directory, 0755); err != nil {
		return fmt.Errorf("create replay directory: %w", err)
	}

	filename := filepath.Join(directory, fmt.Sprintf("%s.replay", l.PlayerID))
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create replay file: %w", err)
	}
	defer file.Close()

	gz := gzip.NewWriter(file)
	defer gz.Close()

	if err := gob.NewEncoder(gz).Encode(l); err != nil {
		return fmt.Errorf("encode replay: %w", err)
	}
	return nil
}

// LoadReplayLog reads a log saved by SaveToFile.
func LoadReplayLog(directory, playerID string) (*ReplayLog, error) {
	filename := filepath.Join(directory, fmt.Sprintf("%s.replay", playerID))
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open replay file: %w", err)
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("read replay file: %w", err)
	}
	defer gz.Close()

	var log ReplayLog
	if err := gob.NewDecoder(gz).Decode(&log); err != nil {
		return nil, fmt.Errorf("decode replay: %w", err)
	}
	return &log, nil
}

// Recorder accumulates replay logs for the engines of a room. Rooms
// call the Record methods next to the matching engine calls; recording
// is per player and off until started.
type Recorder struct {
	logger *zap.Logger

	mu      sync.RWMutex
	logs    map[string]*ReplayLog
	starts  map[string]time.Time
	saveDir string
}

// NewRecorder creates a recorder that saves into saveDir.
func NewRecorder(saveDir string, logger *zap.Logger) *Recorder {
	return &Recorder{
		logger:  logger,
		logs:    make(map[string]*ReplayLog),
		starts:  make(map[string]time.Time),
		saveDir: saveDir,
	}
}

// StartRecording begins a log for one player's engine.
func (r *Recorder) StartRecording(playerID string, roomSeed int64, width, height int, start time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logs[playerID] = &ReplayLog{
		PlayerID: playerID,
		RoomSeed: roomSeed,
		Width:    width,
		Height:   height,
	}
	r.starts[playerID] = start

	if r.logger != nil {
		r.logger.Info("replay recording started", zap.String("player_id", playerID))
	}
}

// RecordTick appends a gravity tick.
func (r *Recorder) RecordTick(playerID string, now time.Time) {
	r.record(playerID, now, ReplayEvent{Kind: ReplayEventTick})
}

// RecordInput appends a control input.
func (r *Recorder) RecordInput(playerID string, in Input, now time.Time) {
	r.record(playerID, now, ReplayEvent{Kind: ReplayEventInput, Input: string(in)})
}

// RecordAbility appends an applied ability.
func (r *Recorder) RecordAbility(playerID string, id catalog.AbilityID, now time.Time) {
	r.record(playerID, now, ReplayEvent{Kind: ReplayEventAbility, Ability: string(id)})
}

// RecordBlackholeResolved appends a blackhole termination.
func (r *Recorder) RecordBlackholeResolved(playerID string, now time.Time) {
	r.record(playerID, now, ReplayEvent{Kind: ReplayEventBlackhole})
}

func (r *Recorder) record(playerID string, now time.Time, ev ReplayEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	log, ok := r.logs[playerID]
	if !ok {
		return
	}
	ev.AtMS = now.Sub(r.starts[playerID]).Milliseconds()
	log.Events = append(log.Events, ev)
}

// Log returns the in-memory log for a player.
func (r *Recorder) Log(playerID string) (*ReplayLog, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	log, ok := r.logs[playerID]
	return log, ok
}

// Save writes a player's log to disk and drops it from memory.
func (r *Recorder) Save(playerID string) error {
	r.mu.Lock()
	log, ok := r.logs[playerID]
	delete(r.logs, playerID)
	delete(r.starts, playerID)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("no replay log for player %s", playerID)
	}
	if err := log.SaveToFile(r.saveDir); err != nil {
		return err
	}

	if r.logger != nil {
		r.logger.Info("replay saved",
			zap.String("player_id", playerID),
			zap.Int("events", len(log.Events)),
			zap.String("directory", r.saveDir),
		)
	}
	return nil
}

// Discard drops a player's log without saving.
func (r *Recorder) Discard(playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.logs, playerID)
	delete(r.starts, playerID)
}
