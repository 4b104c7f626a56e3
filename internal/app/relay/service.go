// Package relay implements the host-authoritative networked match. The client
// that creates a match is its host and runs the authority loop; every other
// client is a peer that forwards intents and mirrors the host's snapshots.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/heroiclabs/nakama-common/runtime"

	"loteria/internal/app"
	"loteria/internal/domain"
	"loteria/internal/logging"
	"loteria/internal/ports"
)

const (
	// ErrCodeMatchFull is sent to a joiner when every seat is taken.
	ErrCodeMatchFull = "match_full"
	// ErrCodeDisconnected is published locally when the transport drops.
	ErrCodeDisconnected = "disconnected"

	sendTimeout  = 5 * time.Second
	leaveTimeout = 5 * time.Second
)

// ErrNotHost is returned for host-only operations on a peer.
var ErrNotHost = errors.New("client is not the match host")

// Options configures a Service. Zero values take the package defaults.
type Options struct {
	DrawInterval  time.Duration
	ReactionDelay time.Duration
	// MinPlayers gates match start on connected players. It never drops
	// below app.MinPlayersToStartGame.
	MinPlayers int
	// Preferences, when set, is read once after authentication.
	Preferences ports.PreferencesReader
	Logger      runtime.Logger
	Now         func() time.Time
}

// Service is the networked implementation of app.Service.
type Service struct {
	engine    *app.Engine
	transport ports.Transport
	opts      Options
	logger    runtime.Logger
	bus       app.Bus

	mu        sync.Mutex
	session   ports.Session
	prefs     ports.Preferences
	matchID   string
	hostID    string
	isHost    bool
	present   map[string]bool
	authority *app.Authority
	cancel    context.CancelFunc
	done      chan struct{}

	peerState atomic.Pointer[domain.GameState]
	connected atomic.Bool
}

var _ app.Service = (*Service)(nil)

// NewService builds a relay service over the given transport.
func NewService(engine *app.Engine, transport ports.Transport, opts Options) *Service {
	if opts.DrawInterval <= 0 {
		opts.DrawInterval = time.Duration(engine.Config().DrawIntervalMs) * time.Millisecond
	}
	if opts.ReactionDelay == 0 {
		opts.ReactionDelay = app.DefaultReactionDelay
	}
	if opts.ReactionDelay < 0 {
		opts.ReactionDelay = 0
	}
	if opts.MinPlayers < app.MinPlayersToStartGame {
		opts.MinPlayers = app.MinPlayersToStartGame
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		engine:    engine,
		transport: transport,
		opts:      opts,
		logger:    opts.Logger,
		prefs:     ports.DefaultPreferences(),
		present:   make(map[string]bool),
	}
}

// Connect authenticates with the transport and loads the user's preferences.
func (s *Service) Connect(ctx context.Context, id app.Identity) error {
	if s.connected.Load() {
		return nil
	}
	if err := app.ValidateTiming(s.opts.DrawInterval, s.opts.ReactionDelay); err != nil {
		return fmt.Errorf("relay: %w", err)
	}

	s.transport.SetHandlers(ports.TransportHandlers{
		OnMatchMessage:   s.handleMatchMessage,
		OnPresenceChange: s.handlePresenceChange,
		OnDisconnect:     s.handleDisconnect,
	})

	deviceID := id.DeviceID
	if deviceID == "" {
		deviceID = uuid.NewString()
	}
	session, err := s.transport.Authenticate(ctx, deviceID, id.Name)
	if err != nil {
		return fmt.Errorf("relay: authenticate: %w", err)
	}

	prefs := ports.DefaultPreferences()
	if s.opts.Preferences != nil {
		loaded, err := s.opts.Preferences.LoadPreferences(ctx, session.UserID)
		if err != nil {
			s.logger.Warn("Relay: failed to load preferences for %s, using defaults: %v", session.UserID, err)
		} else {
			prefs = loaded
		}
	}

	s.mu.Lock()
	s.session = session
	s.prefs = prefs
	s.mu.Unlock()
	s.connected.Store(true)

	s.logger.Info("Relay: authenticated as %s (%s)", session.UserID, session.Username)
	return nil
}

// Preferences returns the preferences loaded at Connect.
func (s *Service) Preferences() ports.Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs
}

// CreateOrJoinMatch creates a match and becomes its host when req.MatchID is
// empty, and otherwise joins the match as a peer.
func (s *Service) CreateOrJoinMatch(ctx context.Context, req app.MatchRequest) (string, error) {
	if !s.connected.Load() {
		return "", app.ErrNotConnected
	}
	s.mu.Lock()
	if s.matchID != "" {
		s.mu.Unlock()
		return "", app.ErrAlreadyInMatch
	}
	session, prefs := s.session, s.prefs
	s.mu.Unlock()

	name := req.Name
	if name == "" {
		name = prefs.DisplayName
	}
	if name == "" {
		name = session.Username
	}

	if req.MatchID == "" {
		return s.host(ctx, session, prefs, name)
	}
	return s.join(ctx, req.MatchID, name)
}

func (s *Service) host(ctx context.Context, session ports.Session, prefs ports.Preferences, name string) (string, error) {
	match, err := s.transport.CreateMatch(ctx)
	if err != nil {
		return "", fmt.Errorf("relay: create match: %w", err)
	}

	state := s.engine.CreateInitialState(session.UserID, name)
	if prefs.TargetWin != nil {
		state = s.engine.WithTargetWin(state, *prefs.TargetWin)
	}
	for _, p := range match.Presences {
		if p.UserID != session.UserID {
			state = s.engine.AddPlayer(state, s.engine.NewPlayer(p.UserID, p.Username, true))
		}
	}

	authority, err := app.NewAuthority(s.engine, state, app.AuthorityOptions{
		DrawInterval:  s.opts.DrawInterval,
		ReactionDelay: s.opts.ReactionDelay,
		Candidates:    peersOf(session.UserID),
		Publish:       s.publishFromHost,
		Logger:        s.logger.WithField("match_id", match.ID),
	})
	if err != nil {
		return "", fmt.Errorf("relay: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	s.matchID = match.ID
	s.hostID = session.UserID
	s.isHost = true
	s.authority = authority
	s.cancel = cancel
	s.done = done
	for _, p := range match.Presences {
		s.present[p.UserID] = true
	}
	s.mu.Unlock()

	go func() {
		defer close(done)
		_ = authority.Run(runCtx)
	}()

	s.logger.Info("Relay: hosting match %s", match.ID)
	if err := authority.Do(ctx, authority.PublishSnapshot); err != nil {
		return "", err
	}
	return match.ID, nil
}

func (s *Service) join(ctx context.Context, matchID, name string) (string, error) {
	s.mu.Lock()
	s.matchID = matchID
	s.isHost = false
	s.mu.Unlock()

	match, err := s.transport.JoinMatch(ctx, matchID)
	if err != nil {
		s.mu.Lock()
		s.matchID = ""
		s.mu.Unlock()
		return "", fmt.Errorf("relay: join match %s: %w", matchID, err)
	}

	s.mu.Lock()
	for _, p := range match.Presences {
		s.present[p.UserID] = true
	}
	s.mu.Unlock()

	s.logger.Info("Relay: joined match %s as peer", match.ID)
	if err := s.sendIntent(ctx, MsgJoin, JoinPayload{Name: name}); err != nil {
		return "", err
	}
	return match.ID, nil
}

// SendIntent applies an intent locally when hosting and forwards it to the
// host otherwise.
func (s *Service) SendIntent(ctx context.Context, intent app.Intent) error {
	if !s.connected.Load() {
		return app.ErrNotConnected
	}
	s.mu.Lock()
	matchID, isHost, authority, self := s.matchID, s.isHost, s.authority, s.session.UserID
	s.mu.Unlock()
	if matchID == "" {
		return app.ErrNoMatch
	}

	if isHost {
		var fn func()
		switch it := intent.(type) {
		case app.JoinIntent:
			fn = func() { s.applyJoin(self, "", it.Name) }
		case app.StartIntent:
			fn = func() { s.applyStart(self, it.TargetWin) }
		case app.MarkIntent:
			fn = func() { s.applyMark(self, it.PlayerID, it.CardID) }
		case app.ClaimIntent:
			fn = func() { s.applyClaim(self, it.PlayerID, it.Condition) }
		default:
			return fmt.Errorf("relay: %T: %w", intent, app.ErrUnknownIntent)
		}
		return authority.Do(ctx, fn)
	}

	switch it := intent.(type) {
	case app.JoinIntent:
		return s.sendIntent(ctx, MsgJoin, JoinPayload{Name: it.Name})
	case app.StartIntent:
		return s.sendIntent(ctx, MsgStart, StartPayload{TargetWin: it.TargetWin})
	case app.MarkIntent:
		return s.sendIntent(ctx, MsgMark, MarkPayload{PlayerID: self, CardID: it.CardID})
	case app.ClaimIntent:
		return s.sendIntent(ctx, MsgClaim, ClaimPayload{PlayerID: self, Condition: it.Condition})
	default:
		return fmt.Errorf("relay: %T: %w", intent, app.ErrUnknownIntent)
	}
}

// sendIntent forwards a peer intent to the host, or to every member while the
// host is not yet known.
func (s *Service) sendIntent(ctx context.Context, t MessageType, payload any) error {
	s.mu.Lock()
	matchID, hostID, self := s.matchID, s.hostID, s.session.UserID
	s.mu.Unlock()

	msg, err := NewMessage(t, payload, self, s.opts.Now())
	if err != nil {
		return err
	}
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	var to []string
	if hostID != "" {
		to = []string{hostID}
	}
	if err := s.transport.SendToMatch(ctx, matchID, OpIntent, data, to...); err != nil {
		return fmt.Errorf("relay: send %s: %w", t, err)
	}
	return nil
}

func (s *Service) On(kind app.EventKind, h app.Handler) app.Subscription { return s.bus.On(kind, h) }
func (s *Service) Off(sub app.Subscription)                          { s.bus.Off(sub) }
func (s *Service) IsConnected() bool                                   { return s.connected.Load() }

// State returns the authoritative state when hosting and the last received
// snapshot otherwise.
func (s *Service) State() *domain.GameState {
	s.mu.Lock()
	authority := s.authority
	s.mu.Unlock()
	if authority != nil {
		return authority.State()
	}
	return s.peerState.Load()
}

func (s *Service) LocalPlayerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.UserID
}

// IsHost reports whether this client owns the authoritative state.
func (s *Service) IsHost() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isHost
}

// MatchID returns the current match id, or "".
func (s *Service) MatchID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matchID
}

// HostID returns the known host user id, or "" while a peer waits for its
// first snapshot.
func (s *Service) HostID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hostID
}

// Close stops hosting, leaves the match and closes the transport. Peers of a
// closed host keep their last snapshot.
func (s *Service) Close() error {
	s.mu.Lock()
	cancel, done, matchID := s.cancel, s.done, s.matchID
	s.authority = nil
	s.cancel = nil
	s.done = nil
	s.matchID = ""
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	s.connected.Store(false)

	var errs []error
	if matchID != "" {
		ctx, cancelLeave := context.WithTimeout(context.Background(), leaveTimeout)
		if err := s.transport.LeaveMatch(ctx, matchID); err != nil {
			errs = append(errs, fmt.Errorf("leave match: %w", err))
		}
		cancelLeave()
	}
	if err := s.transport.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close transport: %w", err))
	}
	return errors.Join(errs...)
}

func peersOf(hostID string) func(*domain.GameState) []string {
	return func(state *domain.GameState) []string {
		ids := make([]string, 0, len(state.Players))
		for _, p := range state.Players {
			if p.ID != hostID {
				ids = append(ids, p.ID)
			}
		}
		return ids
	}
}
