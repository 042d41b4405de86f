package room

import "encoding/json"

// Client → server message types.
const (
	TypeJoinGame              = "join_game"
	TypeStateSummary          = "state_summary"
	TypeStarsUpdate           = "stars_update"
	TypeAbilityActivation     = "ability_activation"
	TypeDefensiveEffectUpdate = "defensive_effect_update"
	TypeGameOver              = "game_over"
	TypeBlackholeFinished     = "blackhole_finished"
)

// Server → client message types.
const (
	TypeRoomState               = "room_state"
	TypeGameStart               = "game_start"
	TypeOpponentInfo            = "opponent_info"
	TypeOpponentState           = "opponent_state"
	TypeAbilityActivationResult = "ability_activation_result"
	TypeAbilityReceived         = "ability_received"
	TypeAbilityBlocked          = "ability_blocked"
	TypeBlackholeAck            = "blackhole_ack"
	TypeGameFinished            = "game_finished"
	TypeOpponentDisconnected    = "opponent_disconnected"
	TypeServerError             = "server_error"
)

// server_error codes. Both protocol errors are connection-local and
// never terminate the connection.
const (
	ErrCodeInvalidJSON     = "invalid_json"
	ErrCodeUnsupportedType = "unsupported_message_type"
	ErrCodeJoinRejected    = "join_rejected"
)

// ClientMessage is the union of every client → server message. Type
// discriminates; unrelated fields stay at their zero values.
type ClientMessage struct {
	Type string `json:"type"`

	// join_game, state_summary, stars_update, ability_activation,
	// defensive_effect_update, game_over, blackhole_finished
	PlayerID string `json:"playerId,omitempty"`

	// join_game
	Loadout    []string `json:"loadout,omitempty"`
	AIOpponent bool     `json:"aiOpponent,omitempty"`
	Persona    string   `json:"persona,omitempty"`

	// state_summary; relayed verbatim, never interpreted
	Summary json.RawMessage `json:"summary,omitempty"`

	// stars_update
	Stars int `json:"stars,omitempty"`

	// ability_activation
	AbilityType    string `json:"abilityType,omitempty"`
	TargetPlayerID string `json:"targetPlayerId,omitempty"`
	RequestID      string `json:"requestId,omitempty"`

	// defensive_effect_update; EndTime is unix milliseconds
	Effect  string `json:"effect,omitempty"`
	EndTime int64  `json:"endTime,omitempty"`

	// blackhole_finished
	Reason string `json:"reason,omitempty"`
}

// RoomStateMessage reports membership on every change.
type RoomStateMessage struct {
	Type        string `json:"type"`
	Status      string `json:"status"`
	PlayerCount int    `json:"playerCount"`
}

// GameStartMessage carries the shared seed both clients derive their
// piece sequences from.
type GameStartMessage struct {
	Type    string   `json:"type"`
	Players []string `json:"players"`
	Seed    int64    `json:"seed"`
}

// OpponentInfoMessage introduces the opponent at game start.
type OpponentInfoMessage struct {
	Type         string `json:"type"`
	PlayerID     string `json:"playerId"`
	AIControlled bool   `json:"aiControlled"`
	Persona      string `json:"persona,omitempty"`
}

// OpponentStateMessage relays one player's board summary to the other.
type OpponentStateMessage struct {
	Type     string          `json:"type"`
	PlayerID string          `json:"playerId"`
	Summary  json.RawMessage `json:"summary"`
}

// AbilityActivationResultMessage answers one cast. RequestID echoes the
// request verbatim. AppliedAbilityType may differ from AbilityType
// (clone); FinalTargetPlayerID may differ from TargetPlayerID (reflect,
// self-targeted clone copies).
type AbilityActivationResultMessage struct {
	Type                string `json:"type"`
	RequestID           string `json:"requestId"`
	AbilityType         string `json:"abilityType"`
	AppliedAbilityType  string `json:"appliedAbilityType"`
	TargetPlayerID      string `json:"targetPlayerId"`
	FinalTargetPlayerID string `json:"finalTargetPlayerId"`
	Accepted            bool   `json:"accepted"`
	Reason              string `json:"reason,omitempty"`
	InterceptedBy       string `json:"interceptedBy,omitempty"`
	Message             string `json:"message"`
	ChargedCost         int    `json:"chargedCost"`
	RemainingStars      *int   `json:"remainingStars,omitempty"`
}

// AbilityReceivedMessage forwards an ability for local application by
// the target client.
type AbilityReceivedMessage struct {
	Type         string `json:"type"`
	AbilityType  string `json:"abilityType"`
	FromPlayerID string `json:"fromPlayerId"`
}

// AbilityBlockedMessage tells a shield owner their defense fired.
type AbilityBlockedMessage struct {
	Type         string `json:"type"`
	AbilityType  string `json:"abilityType"`
	FromPlayerID string `json:"fromPlayerId"`
	BlockedBy    string `json:"blockedBy"`
}

// BlackholeAckMessage acknowledges a reported blackhole termination.
type BlackholeAckMessage struct {
	Type     string `json:"type"`
	PlayerID string `json:"playerId"`
	Reason   string `json:"reason,omitempty"`
}

// GameFinishedMessage declares the match outcome.
type GameFinishedMessage struct {
	Type     string `json:"type"`
	WinnerID string `json:"winnerId"`
	LoserID  string `json:"loserId"`
}

// OpponentDisconnectedMessage tells the survivor their opponent left.
type OpponentDisconnectedMessage struct {
	Type     string `json:"type"`
	PlayerID string `json:"playerId"`
}

// ServerErrorMessage reports a connection-local protocol error.
type ServerErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
