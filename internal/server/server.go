package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/blockfall/blockfall-server-go/internal/catalog"
	"github.com/blockfall/blockfall-server-go/internal/config"
	"github.com/blockfall/blockfall-server-go/internal/room"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Server is the websocket front of the game: it upgrades connections,
// decodes the flat JSON message envelope, and routes every gameplay
// message to the client's room. It implements room.Sender, so rooms
// push outbound messages back through it by player id.
type Server struct {
	logger *zap.Logger
	cfg    *config.Config
	rooms  *room.Manager

	upgrader websocket.Upgrader
	httpSrv  *http.Server

	mu       sync.RWMutex
	clients  map[*Client]struct{}
	byPlayer map[string]*Client
}

// New creates the websocket server over the given room manager.
func New(cfg *config.Config, rooms *room.Manager, logger *zap.Logger) *Server {
	s := &Server{
		logger: logger,
		cfg:    cfg,
		rooms:  rooms,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Game clients connect from arbitrary origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:  make(map[*Client]struct{}),
		byPlayer: make(map[string]*Client),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	s.httpSrv = &http.Server{
		Addr:    cfg.Server.Address,
		Handler: mux,
	}
	return s
}

// Handler exposes the route mux, used by tests to serve over httptest.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Run serves until Shutdown. A closed-server return is reported as nil.
func (s *Server) Run() error {
	s.logger.Info("websocket server listening", zap.String("address", s.httpSrv.Addr))

	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections, then drops the live ones.
// Upgraded connections are not covered by http.Server.Shutdown and are
// closed explicitly.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpSrv.Shutdown(ctx)

	s.mu.Lock()
	open := make([]*Client, 0, len(s.clients))
	for c := range s.clients {
		open = append(open, c)
	}
	s.mu.Unlock()

	for _, c := range open {
		c.conn.Close()
	}
	return err
}

// Send routes one message to a player's connection. Unknown players
// (AI seats, departed clients) are dropped silently; slow consumers
// lose the message rather than stall the room's timing loop.
func (s *Server) Send(playerID string, message any) {
	raw, err := json.Marshal(message)
	if err != nil {
		s.logger.Error("outbound message marshal failed", zap.Error(err))
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.byPlayer[playerID]
	if !ok {
		return
	}
	select {
	case c.send <- raw:
	default:
		s.logger.Warn("dropping message for slow consumer",
			zap.String("player_id", playerID),
			zap.String("connection_id", c.id),
		)
	}
}

// handleWS upgrades the connection and starts the client's pumps. An
// optional ?room= query names the room to join; without it the server
// assigns one at join time.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed",
			zap.String("remote", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	c := newClient(s, conn, r.URL.Query().Get("room"))

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	s.logger.Info("client connected",
		zap.String("connection_id", c.id),
		zap.String("remote", r.RemoteAddr),
	)

	go c.writePump()
	go c.readPump()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"rooms":  s.rooms.Count(),
	})
}

// handleJoin seats the client in a room and binds the player identity
// to this connection. Binding happens before the join so the start
// broadcast the join may trigger reaches the joiner.
func (s *Server) handleJoin(c *Client, msg room.ClientMessage) {
	if msg.PlayerID == "" {
		c.sendError(room.ErrCodeJoinRejected, "playerId is required")
		return
	}
	if _, _, joined := c.session(); joined {
		c.sendError(room.ErrCodeJoinRejected, "connection already joined a game")
		return
	}

	loadout := make([]catalog.AbilityID, 0, len(msg.Loadout))
	for _, id := range msg.Loadout {
		loadout = append(loadout, catalog.AbilityID(id))
	}
	opts := room.JoinOptions{
		ConnectionID: c.id,
		Loadout:      loadout,
		AIOpponent:   msg.AIOpponent,
		Persona:      msg.Persona,
	}

	rm, assigned := s.roomFor(c)
	s.bind(c, msg.PlayerID, rm)

	err := rm.Join(msg.PlayerID, opts)
	if err != nil && assigned && (errors.Is(err, room.ErrRoomFull) || errors.Is(err, room.ErrAlreadyStarted)) {
		// The assigned room filled underneath us; take a fresh one.
		rm = s.rooms.GetOrCreate(uuid.NewString(), s)
		s.bind(c, msg.PlayerID, rm)
		err = rm.Join(msg.PlayerID, opts)
	}
	if err != nil {
		s.unbind(c)
		c.sendError(room.ErrCodeJoinRejected, err.Error())
		return
	}

	s.logger.Info("player joined room",
		zap.String("connection_id", c.id),
		zap.String("player_id", msg.PlayerID),
		zap.String("room_id", rm.ID()),
	)
}

// roomFor picks the client's room: the ?room= hint when present,
// otherwise a waiting room with a free seat, otherwise a fresh one.
// assigned reports that the server chose the room itself.
func (s *Server) roomFor(c *Client) (rm *room.Room, assigned bool) {
	if c.roomHint != "" {
		return s.rooms.GetOrCreate(c.roomHint, s), false
	}
	if rm, ok := s.rooms.Waiting(); ok {
		return rm, true
	}
	return s.rooms.GetOrCreate(uuid.NewString(), s), true
}

// bind associates the player id with this connection for routing.
func (s *Server) bind(c *Client, playerID string, rm *room.Room) {
	c.mu.Lock()
	c.playerID = playerID
	c.room = rm
	c.mu.Unlock()

	s.mu.Lock()
	s.byPlayer[playerID] = c
	s.mu.Unlock()
}

func (s *Server) unbind(c *Client) {
	c.mu.Lock()
	playerID := c.playerID
	c.playerID = ""
	c.room = nil
	c.mu.Unlock()

	if playerID == "" {
		return
	}
	s.mu.Lock()
	if s.byPlayer[playerID] == c {
		delete(s.byPlayer, playerID)
	}
	s.mu.Unlock()
}

// unregister removes a departed client, tells its room, and reaps the
// room once its match is over and no connection still looks at it.
func (s *Server) unregister(c *Client) {
	rm, playerID, joined := c.session()

	s.mu.Lock()
	if _, ok := s.clients[c]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.clients, c)
	if joined && s.byPlayer[playerID] == c {
		delete(s.byPlayer, playerID)
	}
	close(c.send)
	s.mu.Unlock()

	s.logger.Info("client disconnected",
		zap.String("connection_id", c.id),
		zap.String("player_id", playerID),
	)

	if !joined {
		return
	}
	rm.HandleDisconnect(c.id)

	if rm.Status() == room.StatusFinished && !s.roomWatched(rm) {
		s.rooms.Remove(rm.ID())
	}
}

// roomWatched reports whether any live connection is bound to the room.
func (s *Server) roomWatched(rm *room.Room) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for c := range s.clients {
		c.mu.Lock()
		same := c.room == rm
		c.mu.Unlock()
		if same {
			return true
		}
	}
	return false
}

func requestID(msg room.ClientMessage) string {
	if msg.RequestID != "" {
		return msg.RequestID
	}
	return uuid.NewString()
}

func unsupportedTypeText(t string) string {
	return fmt.Sprintf("unsupported message type %q", t)
}
