// Package offline runs a complete match in-process against simulated opponents.
package offline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/heroiclabs/nakama-common/runtime"

	"loteria/internal/app"
	"loteria/internal/bot"
	"loteria/internal/domain"
	"loteria/internal/logging"
)

// DefaultHumanName is used when the caller does not provide a name.
const DefaultHumanName = "Tú (Jugador)"

// MsgMatchInProgress is the error shown when a start arrives mid-match.
const MsgMatchInProgress = "La partida ya está en curso."

// Options configures a Simulator. Zero values take the package defaults.
type Options struct {
	Opponents    int
	Roster       *bot.Roster
	DrawInterval time.Duration
	// ReactionDelay is the pause between a draw and the opponents marking it.
	// A negative value reacts immediately.
	ReactionDelay time.Duration
	Logger        runtime.Logger
}

// Simulator is the offline implementation of app.Service. It owns the only
// GameState of its match; resetting means constructing a new Simulator.
type Simulator struct {
	engine *app.Engine
	opts   Options
	bus    app.Bus
	logger runtime.Logger

	mu        sync.Mutex
	authority *app.Authority
	cancel    context.CancelFunc
	done      chan struct{}
	localID   string

	connected atomic.Bool
}

var _ app.Service = (*Simulator)(nil)

// NewSimulator builds a simulator using the engine's rules.
func NewSimulator(engine *app.Engine, opts Options) *Simulator {
	if opts.Opponents <= 0 {
		opts.Opponents = app.DefaultSimulatedOpponents
	}
	if opts.Roster == nil {
		opts.Roster = bot.DefaultRoster()
	}
	if opts.DrawInterval <= 0 {
		opts.DrawInterval = time.Duration(engine.Config().DrawIntervalMs) * time.Millisecond
	}
	if opts.ReactionDelay == 0 {
		opts.ReactionDelay = app.DefaultReactionDelay
	}
	if opts.ReactionDelay < 0 {
		opts.ReactionDelay = 0
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &Simulator{engine: engine, opts: opts, logger: opts.Logger}
}

// Connect deals the human plus the simulated opponents, starts the match
// loop and publishes the initial snapshot.
func (s *Simulator) Connect(ctx context.Context, id app.Identity) error {
	s.mu.Lock()
	if s.authority != nil {
		s.mu.Unlock()
		return nil
	}

	localID := id.DeviceID
	if localID == "" {
		localID = uuid.NewString()
	}
	name := id.Name
	if name == "" {
		name = DefaultHumanName
	}

	state := s.engine.CreateInitialState(localID, name)
	for i := 0; i < s.opts.Opponents; i++ {
		state = s.engine.AddPlayer(state, s.engine.NewPlayer(bot.NewID(), s.opts.Roster.Identity(i).Name(), false))
	}

	authority, err := app.NewAuthority(s.engine, state, app.AuthorityOptions{
		DrawInterval:  s.opts.DrawInterval,
		ReactionDelay: s.opts.ReactionDelay,
		Candidates:    opponents,
		Publish:       s.bus.Emit,
		Logger:        s.logger,
	})
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("offline: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = authority.Run(runCtx)
	}()

	s.authority = authority
	s.cancel = cancel
	s.done = done
	s.localID = localID
	s.connected.Store(true)
	s.mu.Unlock()

	s.logger.Info("Offline: dealt match %s for %s with %d opponents", state.GameID, localID, len(state.Players)-1)
	return authority.Do(ctx, authority.PublishSnapshot)
}

// CreateOrJoinMatch returns the id of the single local match. A name in the
// request renames the human player.
func (s *Simulator) CreateOrJoinMatch(ctx context.Context, req app.MatchRequest) (string, error) {
	authority, err := s.current()
	if err != nil {
		return "", err
	}
	gameID := authority.State().GameID
	if req.MatchID != "" && req.MatchID != gameID {
		return "", fmt.Errorf("offline match %s: %w", req.MatchID, app.ErrNoMatch)
	}
	if req.Name != "" {
		if err := s.SendIntent(ctx, app.JoinIntent{Name: req.Name}); err != nil {
			return "", err
		}
	}
	return gameID, nil
}

// SendIntent applies an intent on the match loop and returns once it has been processed.
func (s *Simulator) SendIntent(ctx context.Context, intent app.Intent) error {
	authority, err := s.current()
	if err != nil {
		return err
	}
	localID := s.LocalPlayerID()

	var fn func()
	switch it := intent.(type) {
	case app.JoinIntent:
		fn = func() {
			authority.Update(func(st *domain.GameState) *domain.GameState {
				return s.engine.RenamePlayer(st, localID, it.Name)
			})
		}
	case app.StartIntent:
		fn = func() {
			if err := authority.Start(it.TargetWin); err != nil {
				s.logger.Debug("Offline: ignored start: %v", err)
				s.bus.Emit(app.ErrorEvent{Code: app.ErrCodeBadRequest, Message: MsgMatchInProgress})
			}
		}
	case app.MarkIntent:
		fn = func() {
			if it.PlayerID != "" && it.PlayerID != localID {
				s.logger.Debug("Offline: ignored mark for foreign player %s", it.PlayerID)
				return
			}
			authority.Mark(localID, it.CardID)
		}
	case app.ClaimIntent:
		fn = func() {
			if it.PlayerID != "" && it.PlayerID != localID {
				s.logger.Debug("Offline: ignored claim for foreign player %s", it.PlayerID)
				return
			}
			authority.Claim(localID, app.ClaimCondition(authority.State().TargetWin, it.Condition))
		}
	default:
		return fmt.Errorf("offline: %T: %w", intent, app.ErrUnknownIntent)
	}
	return authority.Do(ctx, fn)
}

func (s *Simulator) On(kind app.EventKind, h app.Handler) app.Subscription { return s.bus.On(kind, h) }
func (s *Simulator) Off(sub app.Subscription)                          { s.bus.Off(sub) }
func (s *Simulator) IsConnected() bool                                   { return s.connected.Load() }

// State returns the latest match state, or nil before Connect.
func (s *Simulator) State() *domain.GameState {
	s.mu.Lock()
	authority := s.authority
	s.mu.Unlock()
	if authority == nil {
		return nil
	}
	return authority.State()
}

func (s *Simulator) LocalPlayerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localID
}

// Close stops the match loop and its timers. It is safe to call more than once.
func (s *Simulator) Close() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.authority = nil
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	s.connected.Store(false)
	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}

func (s *Simulator) current() (*app.Authority, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.authority == nil {
		return nil, app.ErrNotConnected
	}
	return s.authority, nil
}

// opponents lists simulated players in join order; that order is the tie-break
// when several complete a pattern on the same draw.
func opponents(state *domain.GameState) []string {
	var ids []string
	for _, p := range state.Players {
		if !p.IsHuman {
			ids = append(ids, p.ID)
		}
	}
	return ids
}
