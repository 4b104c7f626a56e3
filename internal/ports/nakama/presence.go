package nakama

import (
	"encoding/json"
	"fmt"

	"github.com/heroiclabs/nakama-common/runtime"

	"loteria/internal/ports"
)

// PresenceNotice is the op 3 payload the relay match sends when members join
// or leave.
type PresenceNotice struct {
	Joins  []NoticePresence `json:"joins,omitempty"`
	Leaves []NoticePresence `json:"leaves,omitempty"`
}

type NoticePresence struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
	Username  string `json:"username"`
}

func noticePresences(ps []runtime.Presence) []NoticePresence {
	out := make([]NoticePresence, 0, len(ps))
	for _, p := range ps {
		out = append(out, NoticePresence{UserID: p.GetUserId(), SessionID: p.GetSessionId(), Username: p.GetUsername()})
	}
	return out
}

// DecodePresenceNotice parses an op 3 payload into transport presences.
func DecodePresenceNotice(data []byte) (joins, leaves []ports.Presence, err error) {
	var n PresenceNotice
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, nil, fmt.Errorf("decode presence notice: %w", err)
	}
	return toPorts(n.Joins), toPorts(n.Leaves), nil
}

func toPorts(ps []NoticePresence) []ports.Presence {
	if len(ps) == 0 {
		return nil
	}
	out := make([]ports.Presence, len(ps))
	for i, p := range ps {
		out[i] = ports.Presence{UserID: p.UserID, SessionID: p.SessionID, Username: p.Username}
	}
	return out
}
