package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/blockfall/blockfall-server-go/internal/room"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// Client is one websocket connection. It starts anonymous; join_game
// binds a player identity and a room to it. The read pump is the only
// goroutine that routes inbound messages, so per-connection handling
// is naturally serialized.
type Client struct {
	id       string
	server   *Server
	logger   *zap.Logger
	conn     *websocket.Conn
	send     chan []byte
	roomHint string

	mu       sync.Mutex
	playerID string
	room     *room.Room
}

func newClient(s *Server, conn *websocket.Conn, roomHint string) *Client {
	return &Client{
		id:       uuid.NewString(),
		server:   s,
		logger:   s.logger,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		roomHint: roomHint,
	}
}

// session returns the bound room and player id once joined.
func (c *Client) session() (*room.Room, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room, c.playerID, c.room != nil
}

// readPump consumes the connection until it drops, then unregisters.
func (c *Client) readPump() {
	defer func() {
		c.server.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read failed",
					zap.String("connection_id", c.id),
					zap.Error(err),
				)
			}
			return
		}
		c.dispatch(raw)
	}
}

// dispatch routes one message, containing any handler panic to that
// message so a poisoned payload cannot take the connection's peers
// down with it.
func (c *Client) dispatch(raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("message handler panicked",
				zap.String("connection_id", c.id),
				zap.Any("panic", r),
			)
		}
	}()
	c.handleMessage(raw)
}

// writePump flushes outbound messages and keeps the connection alive
// with pings. It exits when the send channel closes on unregister or
// when a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case raw, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage decodes one envelope and routes it. Gameplay messages
// act on the connection's bound identity, never on the playerId field,
// so one client cannot speak for another.
func (c *Client) handleMessage(raw []byte) {
	var msg room.ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.logger.Debug("malformed client message",
			zap.String("connection_id", c.id),
			zap.Error(err),
		)
		c.sendError(room.ErrCodeInvalidJSON, "message is not valid JSON")
		return
	}

	if msg.Type == room.TypeJoinGame {
		c.server.handleJoin(c, msg)
		return
	}

	rm, playerID, joined := c.session()
	if !joined {
		c.logger.Debug("gameplay message before join dropped",
			zap.String("connection_id", c.id),
			zap.String("type", msg.Type),
		)
		return
	}
	if msg.PlayerID != "" && msg.PlayerID != playerID {
		c.logger.Warn("message player id mismatch",
			zap.String("connection_id", c.id),
			zap.String("bound_player_id", playerID),
			zap.String("claimed_player_id", msg.PlayerID),
		)
	}

	switch msg.Type {
	case room.TypeStateSummary:
		rm.HandleStateSummary(playerID, msg.Summary)
	case room.TypeStarsUpdate:
		rm.HandleStarsUpdate(playerID, msg.Stars)
	case room.TypeAbilityActivation:
		rm.HandleAbilityActivation(playerID, requestID(msg), msg.AbilityType, msg.TargetPlayerID)
	case room.TypeDefensiveEffectUpdate:
		rm.HandleDefensiveEffectUpdate(playerID, msg.Effect, msg.EndTime)
	case room.TypeGameOver:
		rm.HandleGameOver(playerID)
	case room.TypeBlackholeFinished:
		rm.HandleBlackholeFinished(playerID, msg.Reason)
	default:
		c.sendError(room.ErrCodeUnsupportedType, unsupportedTypeText(msg.Type))
	}
}

// sendError pushes a connection-local error; the connection stays up.
func (c *Client) sendError(code, message string) {
	raw, err := json.Marshal(room.ServerErrorMessage{
		Type:    room.TypeServerError,
		Code:    code,
		Message: message,
	})
	if err != nil {
		return
	}
	select {
	case c.send <- raw:
	default:
	}
}
