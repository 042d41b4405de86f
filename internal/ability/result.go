package ability

import "github.com/blockfall/blockfall-server-go/internal/catalog"

// Reason is the closed enum of cast rejection reasons. Every value is
// reported synchronously to the requester and never crosses a room
// boundary as an error.
type Reason string

const (
	ReasonUnknownAbility      Reason = "unknown_ability"
	ReasonInvalidTarget       Reason = "invalid_target"
	ReasonSourcePlayerMissing Reason = "source_player_missing"
	ReasonSourceStateMissing  Reason = "source_state_missing"
	ReasonAbilityNotInLoadout Reason = "ability_not_in_loadout"
	ReasonTargetPlayerMissing Reason = "target_player_missing"
	ReasonTargetStateMissing  Reason = "target_state_missing"
	ReasonInsufficientStars   Reason = "insufficient_stars"
	ReasonCloneNoAbility      Reason = "clone_no_ability"
	ReasonBlockedByShield     Reason = "blocked_by_shield"
	ReasonReflectedByOpponent Reason = "reflected_by_opponent"
)

// Request is one cast to resolve. RequestID is caller-supplied and
// echoed back verbatim on the result.
type Request struct {
	RequestID string
	CasterID  string
	Ability   catalog.AbilityID
	TargetID  string
}

// Delivery is one ability application the room must carry out: apply
// to the target's engine when AI-controlled, forward to the client
// otherwise. FromID is the attributed source, which is the original
// target when a reflect redirected the cast.
type Delivery struct {
	TargetID string
	FromID   string
	Ability  catalog.AbilityID
}

// BlockedNotice tells a shield owner their defense fired.
type BlockedNotice struct {
	OwnerID   string
	Ability   catalog.AbilityID
	FromID    string
	BlockedBy catalog.AbilityID
}

// Result reports one resolved cast. Applied may differ from Requested
// (clone substitution); FinalTarget may differ from RequestedTarget
// (reflect redirection, self-targeted clone copies). A reflected cast
// is reported as not accepted yet still carries a delivery.
type Result struct {
	RequestID       string
	CasterID        string
	Requested       catalog.AbilityID
	Applied         catalog.AbilityID
	RequestedTarget string
	FinalTarget     string
	Accepted        bool
	Reason          Reason
	InterceptedBy   catalog.AbilityID
	ChargedCost     int
	RemainingStars  int
	Deliveries      []Delivery
	Blocked         *BlockedNotice
}
