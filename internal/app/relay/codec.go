package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"loteria/internal/domain"
)

// Op codes used on the match transport.
const (
	OpIntent int64 = 1 // peer to host
	OpEvent  int64 = 2 // host to everyone
)

// MessageType is the wire tag of a Message.
type MessageType string

const (
	MsgJoin          MessageType = "join"
	MsgStart         MessageType = "start"
	MsgMark          MessageType = "mark"
	MsgClaim         MessageType = "claim"
	MsgStateSnapshot MessageType = "state-snapshot"
	MsgCardDrawn     MessageType = "card-drawn"
	MsgClaimAccepted MessageType = "claim-accepted"
	MsgClaimRejected MessageType = "claim-rejected"
	MsgError         MessageType = "error"
)

// ErrMalformedMessage is returned for bytes that are not a valid Message.
var ErrMalformedMessage = errors.New("malformed relay message")

// IsIntent reports whether peers send this type to the host.
func (t MessageType) IsIntent() bool {
	switch t {
	case MsgJoin, MsgStart, MsgMark, MsgClaim:
		return true
	}
	return false
}

func (t MessageType) valid() bool {
	switch t {
	case MsgJoin, MsgStart, MsgMark, MsgClaim,
		MsgStateSnapshot, MsgCardDrawn, MsgClaimAccepted, MsgClaimRejected, MsgError:
		return true
	}
	return false
}

// Message is the envelope of every relayed payload.
type Message struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	SenderID  string          `json:"senderId"`
	Timestamp int64           `json:"timestamp"` // epoch milliseconds
}

type JoinPayload struct {
	Name string `json:"name"`
}

type StartPayload struct {
	TargetWin *domain.WinCondition `json:"targetWin,omitempty"`
}

type MarkPayload struct {
	PlayerID string `json:"playerId"`
	CardID   int    `json:"cardId"`
}

type ClaimPayload struct {
	PlayerID  string               `json:"playerId"`
	Condition *domain.WinCondition `json:"condition,omitempty"`
}

type SnapshotPayload struct {
	State *domain.GameState `json:"state"`
}

type CardDrawnPayload struct {
	Card       domain.Card `json:"card"`
	Remaining  int         `json:"remaining"`
	DrawnCards []int       `json:"drawnCards"`
}

type ClaimAcceptedPayload struct {
	PlayerID  string              `json:"playerId"`
	Condition domain.WinCondition `json:"condition"`
	Cells     []int               `json:"cells"`
	Winner    domain.Player       `json:"winner"`
}

type ClaimRejectedPayload struct {
	PlayerID string `json:"playerId"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`

	// PlayerID addresses the error when the transport cannot target a
	// single member. Empty means everyone.
	PlayerID string `json:"playerId,omitempty"`
}

// NewMessage wraps a payload in an envelope stamped with now.
func NewMessage(t MessageType, payload any, senderID string, now time.Time) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return Message{Type: t, Payload: raw, SenderID: senderID, Timestamp: now.UnixMilli()}, nil
}

// Encode serializes a message.
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses an envelope. Unknown types are malformed.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if !m.Type.valid() {
		return Message{}, fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, m.Type)
	}
	return m, nil
}

// DecodePayload unmarshals the payload into v.
func (m Message) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%w: %s without payload", ErrMalformedMessage, m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformedMessage, m.Type, err)
	}
	return nil
}
