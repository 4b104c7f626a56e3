package relay

import (
	"errors"

	"loteria/internal/app"
	"loteria/internal/domain"
	"loteria/internal/ports"
)

// handleMatchMessage is the transport callback for relayed bytes.
func (s *Service) handleMatchMessage(in ports.MatchMessage) {
	s.mu.Lock()
	matchID, isHost, hostID, authority := s.matchID, s.isHost, s.hostID, s.authority
	s.mu.Unlock()
	if matchID == "" || in.MatchID != matchID {
		return
	}

	msg, err := Decode(in.Data)
	if err != nil {
		s.logger.Debug("Relay: dropped message from %s: %v", in.Sender.UserID, err)
		return
	}

	if isHost {
		if !msg.Type.IsIntent() || authority == nil {
			return
		}
		sender := in.Sender
		if err := authority.Submit(func() { s.applyRemote(sender, msg) }); err != nil {
			s.logger.Debug("Relay: dropped %s from %s: %v", msg.Type, sender.UserID, err)
		}
		return
	}

	if msg.Type.IsIntent() {
		return
	}
	if hostID != "" && in.Sender.UserID != hostID {
		s.logger.Debug("Relay: ignored %s from non-host %s", msg.Type, in.Sender.UserID)
		return
	}
	s.applyFromHost(in.Sender.UserID, hostID, msg)
}

// applyFromHost updates the peer mirror. Until the host is known only a
// snapshot naming its own sender as host is accepted.
func (s *Service) applyFromHost(senderID, hostID string, msg Message) {
	if hostID == "" && msg.Type != MsgStateSnapshot {
		return
	}

	switch msg.Type {
	case MsgStateSnapshot:
		var p SnapshotPayload
		if err := msg.DecodePayload(&p); err != nil || p.State == nil {
			s.logger.Debug("Relay: dropped snapshot: %v", err)
			return
		}
		if hostID == "" {
			if p.State.HostID != senderID {
				return
			}
			s.mu.Lock()
			s.hostID = senderID
			s.mu.Unlock()
		}
		prev := s.peerState.Swap(p.State)
		s.bus.Emit(app.StateSnapshotEvent{State: p.State})
		if p.State.Status == domain.StatusPlaying && (prev == nil || prev.Status != p.State.Status) {
			s.bus.Emit(app.MatchStartedEvent{State: p.State})
		}
	case MsgCardDrawn:
		var p CardDrawnPayload
		if err := msg.DecodePayload(&p); err != nil {
			s.logger.Debug("Relay: dropped card-drawn: %v", err)
			return
		}
		s.bus.Emit(app.CardDrawnEvent{Card: p.Card, Remaining: p.Remaining, DrawnCards: p.DrawnCards})
	case MsgClaimAccepted:
		var p ClaimAcceptedPayload
		if err := msg.DecodePayload(&p); err != nil {
			s.logger.Debug("Relay: dropped claim-accepted: %v", err)
			return
		}
		s.bus.Emit(app.ClaimAcceptedEvent{PlayerID: p.PlayerID, Condition: p.Condition, Cells: p.Cells, Winner: p.Winner})
	case MsgClaimRejected:
		var p ClaimRejectedPayload
		if err := msg.DecodePayload(&p); err != nil {
			s.logger.Debug("Relay: dropped claim-rejected: %v", err)
			return
		}
		s.bus.Emit(app.ClaimRejectedEvent{PlayerID: p.PlayerID})
	case MsgError:
		var p ErrorPayload
		if err := msg.DecodePayload(&p); err != nil {
			s.logger.Debug("Relay: dropped error: %v", err)
			return
		}
		if p.PlayerID != "" && p.PlayerID != s.LocalPlayerID() {
			return
		}
		s.bus.Emit(app.ErrorEvent{Code: p.Code, Message: p.Message})
	}
}

// handlePresenceChange is the transport callback for joins and leaves. The
// same presence may be reported more than once.
func (s *Service) handlePresenceChange(matchID string, joins, leaves []ports.Presence) {
	s.mu.Lock()
	if s.matchID == "" || matchID != s.matchID {
		s.mu.Unlock()
		return
	}
	self := s.session.UserID
	var joined, left []ports.Presence
	for _, p := range joins {
		if p.UserID != self && !s.present[p.UserID] {
			s.present[p.UserID] = true
			joined = append(joined, p)
		}
	}
	for _, p := range leaves {
		if p.UserID != self && s.present[p.UserID] {
			delete(s.present, p.UserID)
			left = append(left, p)
		}
	}
	isHost, authority := s.isHost, s.authority
	s.mu.Unlock()

	if len(joined) == 0 && len(left) == 0 {
		return
	}

	if isHost && authority != nil {
		if err := authority.Submit(func() {
			s.applyPresence(joined, left)
			for _, p := range joined {
				s.bus.Emit(app.PlayerJoinedEvent{PlayerID: p.UserID, Name: p.Username})
			}
			for _, p := range left {
				s.bus.Emit(app.PlayerLeftEvent{PlayerID: p.UserID})
			}
		}); err != nil && !errors.Is(err, app.ErrAuthorityStopped) {
			s.logger.Warn("Relay: presence update dropped: %v", err)
		}
		return
	}

	for _, p := range joined {
		s.bus.Emit(app.PlayerJoinedEvent{PlayerID: p.UserID, Name: p.Username})
	}
	for _, p := range left {
		s.bus.Emit(app.PlayerLeftEvent{PlayerID: p.UserID})
	}
}

func (s *Service) handleDisconnect(err error) {
	s.logger.Warn("Relay: transport disconnected: %v", err)
	s.connected.Store(false)
	msg := "Se perdió la conexión con el servidor."
	s.bus.Emit(app.ErrorEvent{Code: ErrCodeDisconnected, Message: msg})
}
