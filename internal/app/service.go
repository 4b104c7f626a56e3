package app

import (
	"context"
	"errors"

	"loteria/internal/domain"
)

var (
	ErrNotConnected   = errors.New("service not connected")
	ErrNoMatch        = errors.New("no active match")
	ErrUnknownIntent  = errors.New("unknown intent")
	ErrAlreadyInMatch = errors.New("already in a match")
)

// Identity is what a client presents when connecting.
type Identity struct {
	DeviceID string
	Name     string
}

// MatchRequest selects a match. An empty MatchID creates a new one.
type MatchRequest struct {
	MatchID string
	Name    string
}

// Service is the intent surface shared by the offline simulator and the
// relay-backed host/peer client.
type Service interface {
	Connect(ctx context.Context, id Identity) error
	CreateOrJoinMatch(ctx context.Context, req MatchRequest) (string, error)
	SendIntent(ctx context.Context, intent Intent) error
	On(kind EventKind, h Handler) Subscription
	Off(sub Subscription)
	IsConnected() bool
	// State returns the latest known state, or nil before the first snapshot.
	State() *domain.GameState
	// LocalPlayerID is the id this client plays as.
	LocalPlayerID() string
	Close() error
}
