package relay

import (
	"context"
	"fmt"

	"loteria/internal/app"
	"loteria/internal/domain"
	"loteria/internal/ports"
)

// publishFromHost runs on the authority loop. It feeds local subscribers and
// mirrors match events to the peers.
func (s *Service) publishFromHost(ev app.Event) {
	s.bus.Emit(ev)

	var (
		t       MessageType
		payload any
	)
	switch e := ev.(type) {
	case app.StateSnapshotEvent:
		t, payload = MsgStateSnapshot, SnapshotPayload{State: e.State}
	case app.CardDrawnEvent:
		t, payload = MsgCardDrawn, CardDrawnPayload{Card: e.Card, Remaining: e.Remaining, DrawnCards: e.DrawnCards}
	case app.ClaimAcceptedEvent:
		t, payload = MsgClaimAccepted, ClaimAcceptedPayload{PlayerID: e.PlayerID, Condition: e.Condition, Cells: e.Cells, Winner: e.Winner}
	case app.ClaimRejectedEvent:
		t, payload = MsgClaimRejected, ClaimRejectedPayload{PlayerID: e.PlayerID}
	default:
		// Match started and mark accepted reach peers through the snapshot.
		return
	}
	s.broadcast(t, payload)
}

func (s *Service) broadcast(t MessageType, payload any, to ...string) {
	s.mu.Lock()
	matchID, self := s.matchID, s.session.UserID
	s.mu.Unlock()
	if matchID == "" {
		return
	}

	msg, err := NewMessage(t, payload, self, s.opts.Now())
	if err != nil {
		s.logger.Error("Relay: failed to build %s: %v", t, err)
		return
	}
	data, err := Encode(msg)
	if err != nil {
		s.logger.Error("Relay: failed to encode %s: %v", t, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := s.transport.SendToMatch(ctx, matchID, OpEvent, data, to...); err != nil {
		s.logger.Warn("Relay: failed to send %s: %v", t, err)
	}
}

// reject reports a precondition failure to whoever issued the intent.
func (s *Service) reject(requester, code, message string) {
	s.logger.Info("Relay: rejected intent from %s: %s", requester, code)
	if requester == s.LocalPlayerID() {
		s.bus.Emit(app.ErrorEvent{Code: code, Message: message})
		return
	}
	s.broadcast(MsgError, ErrorPayload{Code: code, Message: message, PlayerID: requester}, requester)
}

func (s *Service) currentAuthority() *app.Authority {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authority
}

// The apply methods run on the authority loop.

func (s *Service) applyJoin(senderID, username, name string) {
	authority := s.currentAuthority()
	if authority == nil {
		return
	}
	if name == "" {
		name = username
	}

	state := authority.State()
	if state.PlayerIndex(senderID) < 0 {
		next := authority.Update(func(st *domain.GameState) *domain.GameState {
			return s.engine.AddPlayer(st, s.engine.NewPlayer(senderID, name, true))
		})
		if next.PlayerIndex(senderID) < 0 {
			s.reject(senderID, ErrCodeMatchFull, "La partida está llena.")
			return
		}
		// The presence notice for this user may still be in flight.
		s.mu.Lock()
		seen := s.present[senderID]
		s.present[senderID] = true
		s.mu.Unlock()
		if !seen {
			s.bus.Emit(app.PlayerJoinedEvent{PlayerID: senderID, Name: name})
		}
		return
	}

	authority.Update(func(st *domain.GameState) *domain.GameState {
		return s.engine.RenamePlayer(s.engine.RestorePlayer(st, senderID), senderID, name)
	})
}

func (s *Service) applyStart(requester string, target *domain.WinCondition) {
	authority := s.currentAuthority()
	if authority == nil {
		return
	}
	if requester != s.LocalPlayerID() && authority.State().PlayerIndex(requester) < 0 {
		s.logger.Debug("Relay: ignored start from non-participant %s", requester)
		return
	}

	state := authority.State()
	if state.Status == domain.StatusPlaying {
		s.reject(requester, app.ErrCodeBadRequest, "La partida ya está en curso.")
		return
	}
	if n := state.ConnectedCount(); n < s.opts.MinPlayers {
		s.reject(requester, app.ErrCodeNotEnoughPlayers,
			fmt.Sprintf("Se necesitan al menos %d jugadores para empezar (hay %d).", s.opts.MinPlayers, n))
		return
	}
	authority.Start(target)
}

func (s *Service) applyMark(senderID, playerID string, cardID int) {
	authority := s.currentAuthority()
	if authority == nil {
		return
	}
	if playerID != "" && playerID != senderID {
		s.logger.Debug("Relay: ignored mark by %s for %s", senderID, playerID)
		return
	}
	authority.Mark(senderID, cardID)
}

func (s *Service) applyClaim(senderID, playerID string, condition *domain.WinCondition) {
	authority := s.currentAuthority()
	if authority == nil {
		return
	}
	if playerID != "" && playerID != senderID {
		s.logger.Debug("Relay: ignored claim by %s for %s", senderID, playerID)
		return
	}
	authority.Claim(senderID, app.ClaimCondition(authority.State().TargetWin, condition))
}

func (s *Service) applyPresence(joins, leaves []ports.Presence) {
	authority := s.currentAuthority()
	if authority == nil {
		return
	}
	self := s.LocalPlayerID()

	for _, p := range joins {
		if p.UserID == self {
			continue
		}
		if authority.State().PlayerIndex(p.UserID) >= 0 {
			authority.Update(func(st *domain.GameState) *domain.GameState {
				return s.engine.RestorePlayer(st, p.UserID)
			})
			continue
		}
		next := authority.Update(func(st *domain.GameState) *domain.GameState {
			return s.engine.AddPlayer(st, s.engine.NewPlayer(p.UserID, p.Username, true))
		})
		if next.PlayerIndex(p.UserID) < 0 {
			s.logger.Warn("Relay: match full, %s was not seated", p.UserID)
		}
	}

	for _, p := range leaves {
		if p.UserID == self {
			continue
		}
		authority.Update(func(st *domain.GameState) *domain.GameState {
			return s.engine.RemovePlayer(st, p.UserID)
		})
	}
}

// applyRemote dispatches a peer intent decoded from the wire.
func (s *Service) applyRemote(sender ports.Presence, msg Message) {
	switch msg.Type {
	case MsgJoin:
		var p JoinPayload
		if err := msg.DecodePayload(&p); err != nil {
			s.logger.Debug("Relay: dropped join from %s: %v", sender.UserID, err)
			return
		}
		s.applyJoin(sender.UserID, sender.Username, p.Name)
	case MsgStart:
		var p StartPayload
		if len(msg.Payload) > 0 {
			if err := msg.DecodePayload(&p); err != nil {
				s.logger.Debug("Relay: dropped start from %s: %v", sender.UserID, err)
				return
			}
		}
		s.applyStart(sender.UserID, p.TargetWin)
	case MsgMark:
		var p MarkPayload
		if err := msg.DecodePayload(&p); err != nil {
			s.logger.Debug("Relay: dropped mark from %s: %v", sender.UserID, err)
			return
		}
		s.applyMark(sender.UserID, p.PlayerID, p.CardID)
	case MsgClaim:
		var p ClaimPayload
		if len(msg.Payload) > 0 {
			if err := msg.DecodePayload(&p); err != nil {
				s.logger.Debug("Relay: dropped claim from %s: %v", sender.UserID, err)
				return
			}
		}
		s.applyClaim(sender.UserID, p.PlayerID, p.Condition)
	}
}
