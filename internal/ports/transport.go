package ports

import (
	"context"
	"time"
)

// Session is an authenticated identity on the match transport.
type Session struct {
	Token     string
	UserID    string
	Username  string
	Created   bool
	ExpiresAt time.Time
}

// Expired reports whether the session token is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Presence is one connected member of a match.
type Presence struct {
	UserID    string
	SessionID string
	Username  string
}

// Match is the result of creating or joining a match.
type Match struct {
	ID        string
	Self      Presence
	Presences []Presence // other members at join time
}

// MatchMessage is an inbound payload relayed by the transport.
type MatchMessage struct {
	MatchID string
	OpCode  int64
	Data    []byte
	Sender  Presence
}

// TransportHandlers receive inbound traffic. Any field may be nil.
// Handlers may be invoked from transport-owned goroutines.
type TransportHandlers struct {
	OnMatchMessage   func(MatchMessage)
	OnPresenceChange func(matchID string, joins, leaves []Presence)
	OnDisconnect     func(err error)
}

// Transport is the session and relay service the match core runs on.
type Transport interface {
	// Authenticate logs in with a device identity. usernameHint is used when
	// a new account is created.
	Authenticate(ctx context.Context, deviceID, usernameHint string) (Session, error)
	CreateMatch(ctx context.Context) (Match, error)
	JoinMatch(ctx context.Context, matchID string) (Match, error)
	LeaveMatch(ctx context.Context, matchID string) error
	// SendToMatch delivers data to the given user ids, or to every other
	// member when to is empty.
	SendToMatch(ctx context.Context, matchID string, opCode int64, data []byte, to ...string) error
	SetHandlers(h TransportHandlers)
	Close() error
}
