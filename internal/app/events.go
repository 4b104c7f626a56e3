package app

import "loteria/internal/domain"

// EventKind identifies emitted events. The set is closed.
type EventKind string

const (
	EventPlayerJoined  EventKind = "player_joined"
	EventPlayerLeft    EventKind = "player_left"
	EventMatchStarted  EventKind = "match_started"
	EventStateSnapshot EventKind = "state_snapshot"
	EventCardDrawn     EventKind = "card_drawn"
	EventMarkAccepted  EventKind = "mark_accepted"
	EventClaimAccepted EventKind = "claim_accepted"
	EventClaimRejected EventKind = "claim_rejected"
	EventError         EventKind = "error"
)

// Event is implemented only by the event types in this file.
type Event interface {
	Kind() EventKind
	isEvent()
}

type PlayerJoinedEvent struct {
	PlayerID string
	Name     string
}

type PlayerLeftEvent struct {
	PlayerID string
}

type MatchStartedEvent struct {
	State *domain.GameState
}

// StateSnapshotEvent carries a full replacement of the match state.
type StateSnapshotEvent struct {
	State *domain.GameState
}

type CardDrawnEvent struct {
	Card       domain.Card
	Remaining  int
	DrawnCards []int
}

type MarkAcceptedEvent struct {
	PlayerID string
	CardID   int
}

type ClaimAcceptedEvent struct {
	PlayerID  string
	Condition domain.WinCondition
	Cells     []int
	Winner    domain.Player
}

type ClaimRejectedEvent struct {
	PlayerID string
}

// Error codes carried by ErrorEvent.
const (
	ErrCodeNotEnoughPlayers = "not_enough_players"
	ErrCodeNotHost          = "not_host"
	ErrCodeBadRequest       = "bad_request"
)

// ErrorEvent reports a rejected precondition. Message is user facing.
type ErrorEvent struct {
	Code    string
	Message string
}

func (PlayerJoinedEvent) Kind() EventKind  { return EventPlayerJoined }
func (PlayerLeftEvent) Kind() EventKind    { return EventPlayerLeft }
func (MatchStartedEvent) Kind() EventKind  { return EventMatchStarted }
func (StateSnapshotEvent) Kind() EventKind { return EventStateSnapshot }
func (CardDrawnEvent) Kind() EventKind     { return EventCardDrawn }
func (MarkAcceptedEvent) Kind() EventKind  { return EventMarkAccepted }
func (ClaimAcceptedEvent) Kind() EventKind { return EventClaimAccepted }
func (ClaimRejectedEvent) Kind() EventKind { return EventClaimRejected }
func (ErrorEvent) Kind() EventKind         { return EventError }

func (PlayerJoinedEvent) isEvent()  {}
func (PlayerLeftEvent) isEvent()    {}
func (MatchStartedEvent) isEvent()  {}
func (StateSnapshotEvent) isEvent() {}
func (CardDrawnEvent) isEvent()     {}
func (MarkAcceptedEvent) isEvent()  {}
func (ClaimAcceptedEvent) isEvent() {}
func (ClaimRejectedEvent) isEvent() {}
func (ErrorEvent) isEvent()         {}
