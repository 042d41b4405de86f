package room

import (
	"sort"
	"sync"
	"time"

	"github.com/blockfall/blockfall-server-go/internal/catalog"
	"github.com/blockfall/blockfall-server-go/internal/clock"
	"github.com/blockfall/blockfall-server-go/internal/game"
	"go.uber.org/zap"
)

// ManagerConfig carries the shared pieces every room is built from.
type ManagerConfig struct {
	Catalog  *catalog.Catalog
	Clock    clock.Clock
	Recorder MatchRecorder
	Replays  *game.Recorder

	Engine           game.Config
	DefaultPersona   string
	DecisionPeriod   time.Duration
	AIBlackholeDelay time.Duration

	// Seed overrides per-room seed generation, used by deterministic
	// harnesses. Nil seeds each room from its clock.
	Seed func() int64
}

// Manager owns the live rooms. Rooms created through it run their
// timing loop on their own goroutine until removed.
type Manager struct {
	logger *zap.Logger
	cfg    ManagerConfig

	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewManager creates an empty room manager.
func NewManager(cfg ManagerConfig, logger *zap.Logger) *Manager {
	if cfg.Catalog == nil {
		cfg.Catalog = catalog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System()
	}
	return &Manager{
		logger: logger,
		cfg:    cfg,
		rooms:  make(map[string]*Room),
	}
}

// GetOrCreate returns the room with the given id, creating and starting
// it on first use. The sender is bound at creation; later callers for
// the same room keep the original sender.
func (m *Manager) GetOrCreate(roomID string, sender Sender) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.rooms[roomID]; ok {
		return r
	}

	var seed int64
	if m.cfg.Seed != nil {
		seed = m.cfg.Seed()
	}

	r := NewRoom(Config{
		ID:               roomID,
		Seed:             seed,
		Catalog:          m.cfg.Catalog,
		Clock:            m.cfg.Clock,
		Sender:           sender,
		Recorder:         m.cfg.Recorder,
		Replays:          m.cfg.Replays,
		Engine:           m.cfg.Engine,
		DefaultPersona:   m.cfg.DefaultPersona,
		DecisionPeriod:   m.cfg.DecisionPeriod,
		AIBlackholeDelay: m.cfg.AIBlackholeDelay,
	}, m.logger)
	m.rooms[roomID] = r
	go r.Run()

	if m.logger != nil {
		m.logger.Info("room created",
			zap.String("room_id", roomID),
			zap.Int64("seed", r.Seed()),
		)
	}
	return r
}

// Get returns an existing room.
func (m *Manager) Get(roomID string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[roomID]
	return r, ok
}

// Waiting returns a room still waiting for its second player, if any.
func (m *Manager) Waiting() (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.rooms {
		if r.Status() == StatusWaiting {
			return r, true
		}
	}
	return nil, false
}

// Remove shuts a room down and forgets it.
func (m *Manager) Remove(roomID string) {
	m.mu.Lock()
	r, ok := m.rooms[roomID]
	delete(m.rooms, roomID)
	m.mu.Unlock()

	if !ok {
		return
	}
	r.Shutdown()

	if m.logger != nil {
		m.logger.Info("room removed", zap.String("room_id", roomID))
	}
}

// RoomIDs lists the live rooms, sorted.
func (m *Manager) RoomIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of live rooms.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// CloseAll shuts every room down. Called on server shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.rooms = make(map[string]*Room)
	m.mu.Unlock()

	for _, r := range rooms {
		r.Shutdown()
	}
}
