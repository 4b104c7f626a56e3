package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"

	"loteria/internal/domain"
	"loteria/internal/logging"
)

var (
	ErrAuthorityStopped  = errors.New("authority loop stopped")
	ErrInvalidTiming     = errors.New("reaction delay must be shorter than the draw interval")
	ErrAuthorityNotReady = errors.New("authority has no state")
	ErrMatchInProgress   = errors.New("match already in progress")
)

// AuthorityOptions configures an Authority.
type AuthorityOptions struct {
	DrawInterval  time.Duration
	ReactionDelay time.Duration
	// Candidates lists, in evaluation order, the players swept for a win
	// after each draw.
	Candidates func(*domain.GameState) []string
	// Publish receives every event on the loop goroutine.
	Publish func(Event)
	Logger  runtime.Logger
}

// ValidateTiming checks the draw and reaction durations.
func ValidateTiming(drawInterval, reactionDelay time.Duration) error {
	if drawInterval <= 0 {
		return fmt.Errorf("draw interval %s: %w", drawInterval, ErrInvalidTiming)
	}
	if reactionDelay < 0 || reactionDelay >= drawInterval {
		return fmt.Errorf("reaction %s, interval %s: %w", reactionDelay, drawInterval, ErrInvalidTiming)
	}
	return nil
}

// Authority owns the canonical GameState of one match. All transitions run on
// the goroutine executing Run; other goroutines read the state through State
// and queue work with Submit or Do.
type Authority struct {
	engine *Engine
	opts   AuthorityOptions
	logger runtime.Logger

	state atomic.Pointer[domain.GameState]
	ops   chan func()
	done  chan struct{}

	ticker   *time.Ticker
	reaction *time.Timer

	// claim evaluates sweep candidates; replaced in tests.
	claim func(*domain.GameState, string, domain.WinCondition) (*domain.GameState, domain.WinResult)
}

// NewAuthority builds an authority around an initial state.
func NewAuthority(engine *Engine, initial *domain.GameState, opts AuthorityOptions) (*Authority, error) {
	if err := ValidateTiming(opts.DrawInterval, opts.ReactionDelay); err != nil {
		return nil, err
	}
	if initial == nil {
		return nil, ErrAuthorityNotReady
	}
	if opts.Publish == nil {
		opts.Publish = func(Event) {}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Candidates == nil {
		opts.Candidates = func(*domain.GameState) []string { return nil }
	}
	a := &Authority{
		engine: engine,
		opts:   opts,
		logger: opts.Logger,
		ops:    make(chan func(), 64),
		done:   make(chan struct{}),
		claim:  engine.ProcessClaim,
	}
	a.state.Store(initial)
	return a, nil
}

// State returns the latest state. The value must not be modified.
func (a *Authority) State() *domain.GameState {
	return a.state.Load()
}

// Run executes queued work and timer callbacks until ctx is cancelled.
func (a *Authority) Run(ctx context.Context) error {
	defer close(a.done)
	defer a.StopDrawing()

	for {
		var tick, react <-chan time.Time
		if a.ticker != nil {
			tick = a.ticker.C
		}
		if a.reaction != nil {
			react = a.reaction.C
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-a.ops:
			fn()
		case <-tick:
			a.Tick()
		case <-react:
			a.reaction = nil
			a.React()
		}
	}
}

// Submit queues fn for the loop goroutine without waiting for it to run.
func (a *Authority) Submit(fn func()) error {
	if a.stopped() {
		return ErrAuthorityStopped
	}
	select {
	case a.ops <- fn:
		return nil
	case <-a.done:
		return ErrAuthorityStopped
	}
}

// Do runs fn on the loop goroutine and waits for it. It must not be called
// from an event handler, since handlers already run on that goroutine.
func (a *Authority) Do(ctx context.Context, fn func()) error {
	if a.stopped() {
		return ErrAuthorityStopped
	}
	finished := make(chan struct{})
	wrapped := func() {
		defer close(finished)
		fn()
	}
	select {
	case a.ops <- wrapped:
	case <-a.done:
		return ErrAuthorityStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-a.done:
		return ErrAuthorityStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Authority) stopped() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}

// The methods below mutate authority state and must run on the loop
// goroutine, or on a goroutine that owns the Authority before Run starts.

// Update applies a transition and publishes a snapshot if anything changed.
func (a *Authority) Update(transition func(*domain.GameState) *domain.GameState) *domain.GameState {
	cur := a.State()
	next := transition(cur)
	if next == nil || next == cur {
		return cur
	}
	a.state.Store(next)
	a.opts.Publish(StateSnapshotEvent{State: next})
	return next
}

// PublishSnapshot re-sends the current state.
func (a *Authority) PublishSnapshot() {
	a.opts.Publish(StateSnapshotEvent{State: a.State()})
}

// Start deals a new match and arms the draw ticker. A non-nil target replaces
// the match win condition first. A running match is left untouched.
func (a *Authority) Start(target *domain.WinCondition) error {
	cur := a.State()
	if cur.Status == domain.StatusPlaying {
		return ErrMatchInProgress
	}
	if target != nil {
		cur = a.engine.WithTargetWin(cur, *target)
	}
	next := a.engine.StartGame(cur)
	a.state.Store(next)
	a.logger.Info("Authority: match %s started with %d players, target %s", next.GameID, len(next.Players), next.TargetWin)
	a.opts.Publish(StateSnapshotEvent{State: next})
	a.opts.Publish(MatchStartedEvent{State: next})
	a.StartDrawing()
	return nil
}

// Mark applies a mark and reports whether the board changed.
func (a *Authority) Mark(playerID string, cardID int) bool {
	cur := a.State()
	next := a.engine.MarkCard(cur, playerID, cardID)
	if next == cur {
		a.logger.Debug("Authority: ignored mark of card %d by %s", cardID, playerID)
		return false
	}
	a.state.Store(next)
	a.opts.Publish(MarkAcceptedEvent{PlayerID: playerID, CardID: cardID})
	a.opts.Publish(StateSnapshotEvent{State: next})
	return true
}

// Claim evaluates a claim made by a participant. Accepted claims stop drawing.
func (a *Authority) Claim(playerID string, condition domain.WinCondition) domain.WinResult {
	cur := a.State()
	next, res := a.engine.ProcessClaim(cur, playerID, condition)
	if !res.IsWin {
		a.logger.Info("Authority: rejected claim by %s", playerID)
		a.opts.Publish(ClaimRejectedEvent{PlayerID: playerID})
		return res
	}
	a.acceptWin(next, playerID, res)
	return res
}

// StartDrawing (re)arms the draw ticker.
func (a *Authority) StartDrawing() {
	a.StopDrawing()
	a.ticker = time.NewTicker(a.opts.DrawInterval)
}

// StopDrawing cancels the draw ticker and any pending reaction.
func (a *Authority) StopDrawing() {
	if a.ticker != nil {
		a.ticker.Stop()
		a.ticker = nil
	}
	if a.reaction != nil {
		a.reaction.Stop()
		a.reaction = nil
	}
}

// Drawing reports whether the draw ticker is armed.
func (a *Authority) Drawing() bool {
	return a.ticker != nil
}

// Tick draws one card. When the deck runs out the match finishes and drawing
// stops, but the last card is still marked and swept like any other.
func (a *Authority) Tick() {
	cur := a.State()
	next := a.engine.DrawNextCard(cur)
	if next == cur {
		a.StopDrawing()
		return
	}
	a.state.Store(next)

	drew := len(next.DrawnCards) > len(cur.DrawnCards)
	if drew {
		a.opts.Publish(CardDrawnEvent{
			Card:       *next.CurrentCard,
			Remaining:  len(next.Deck),
			DrawnCards: append([]int(nil), next.DrawnCards...),
		})
	}

	if next.Status == domain.StatusFinished {
		a.StopDrawing()
		a.logger.Info("Authority: match %s finished, deck exhausted", next.GameID)
		a.opts.Publish(StateSnapshotEvent{State: next})
		if !drew {
			return
		}
	}

	if a.opts.ReactionDelay == 0 {
		a.React()
		return
	}
	if a.reaction != nil {
		a.reaction.Stop()
	}
	a.reaction = time.NewTimer(a.opts.ReactionDelay)
}

// React auto-marks simulated boards and then sweeps the candidates in order.
// The first candidate whose board satisfies the match target wins; the rest
// are not evaluated.
func (a *Authority) React() {
	cur := a.State()
	if !cur.Claimable() {
		return
	}
	next := a.engine.AutoMarkAll(cur)
	a.state.Store(next)

	for _, id := range a.opts.Candidates(next) {
		p, ok := next.Player(id)
		if !ok || p.IsWinner {
			continue
		}
		won, res := a.claim(next, id, next.TargetWin)
		if res.IsWin {
			a.acceptWin(won, id, res)
			return
		}
	}
	a.opts.Publish(StateSnapshotEvent{State: next})
}

func (a *Authority) acceptWin(next *domain.GameState, playerID string, res domain.WinResult) {
	a.StopDrawing()
	a.state.Store(next)
	a.logger.Info("Authority: %s won match %s with %s", playerID, next.GameID, res.Matched)
	a.opts.Publish(ClaimAcceptedEvent{
		PlayerID:  playerID,
		Condition: res.Matched.Clone(),
		Cells:     append([]int(nil), res.Cells...),
		Winner:    *next.Winner,
	})
	a.opts.Publish(StateSnapshotEvent{State: next})
}
