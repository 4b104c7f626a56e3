package app

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"loteria/internal/domain"
)

// EngineConfig holds the per-match rules the engine applies.
type EngineConfig struct {
	MaxPlayers     int
	DrawIntervalMs int
	TargetWin      domain.WinCondition
}

// DefaultEngineConfig returns the standard six-player, three-second, any-line rules.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxPlayers:     DefaultMaxPlayers,
		DrawIntervalMs: DefaultDrawIntervalMs,
		TargetWin:      domain.Line(),
	}
}

// Engine contains the Lotería state transitions. Every method takes a state
// and returns a new one; inputs are never modified. A transition that changes
// nothing returns its input pointer, so callers can compare pointers to detect
// a no-op.
type Engine struct {
	cfg EngineConfig

	mu  sync.Mutex // guards rng
	rng *rand.Rand
}

// NewEngine constructs an Engine with provided rng or a time-seeded default.
func NewEngine(cfg EngineConfig, rng *rand.Rand) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.MaxPlayers <= 0 {
		cfg.MaxPlayers = DefaultMaxPlayers
	}
	if cfg.DrawIntervalMs <= 0 {
		cfg.DrawIntervalMs = DefaultDrawIntervalMs
	}
	cfg.TargetWin = cfg.TargetWin.Normalize()
	return &Engine{cfg: cfg, rng: rng}
}

// Config returns the engine rules.
func (e *Engine) Config() EngineConfig {
	cfg := e.cfg
	cfg.TargetWin = cfg.TargetWin.Clone()
	return cfg
}

// CreateInitialState builds a waiting match holding only the host.
func (e *Engine) CreateInitialState(hostID, hostName string) *domain.GameState {
	return &domain.GameState{
		GameID:         uuid.NewString(),
		Players:        []domain.Player{e.NewPlayer(hostID, hostName, true)},
		Deck:           e.shuffledDeck(),
		DrawnCards:     []int{},
		Status:         domain.StatusWaiting,
		DrawIntervalMs: e.cfg.DrawIntervalMs,
		TargetWin:      e.cfg.TargetWin.Clone(),
		HostID:         hostID,
	}
}

// NewPlayer returns a connected player with a freshly dealt board.
func (e *Engine) NewPlayer(id, name string, human bool) domain.Player {
	return domain.Player{
		ID:          id,
		Name:        name,
		Board:       e.dealBoard(),
		IsConnected: true,
		IsHuman:     human,
	}
}

// AddPlayer appends a player unless the id is already present or the match is full.
func (e *Engine) AddPlayer(state *domain.GameState, player domain.Player) *domain.GameState {
	if state.PlayerIndex(player.ID) >= 0 || len(state.Players) >= e.cfg.MaxPlayers {
		return state
	}
	next := state.Clone()
	next.Players = append(next.Players, player)
	return next
}

// RemovePlayer only clears the connection flag. The player and their board
// stay in the match for end-of-match display.
func (e *Engine) RemovePlayer(state *domain.GameState, playerID string) *domain.GameState {
	return e.setConnected(state, playerID, false)
}

// RestorePlayer marks a returning player as connected again.
func (e *Engine) RestorePlayer(state *domain.GameState, playerID string) *domain.GameState {
	return e.setConnected(state, playerID, true)
}

func (e *Engine) setConnected(state *domain.GameState, playerID string, connected bool) *domain.GameState {
	idx := state.PlayerIndex(playerID)
	if idx < 0 || state.Players[idx].IsConnected == connected {
		return state
	}
	next := state.Clone()
	next.Players[idx].IsConnected = connected
	return next
}

// RenamePlayer changes a display name. Empty names are ignored.
func (e *Engine) RenamePlayer(state *domain.GameState, playerID, name string) *domain.GameState {
	idx := state.PlayerIndex(playerID)
	if idx < 0 || name == "" || state.Players[idx].Name == name {
		return state
	}
	next := state.Clone()
	next.Players[idx].Name = name
	return next
}

// WithTargetWin replaces the match win condition. It is refused while a match is running.
func (e *Engine) WithTargetWin(state *domain.GameState, condition domain.WinCondition) *domain.GameState {
	if state.Status == domain.StatusPlaying {
		return state
	}
	next := state.Clone()
	next.TargetWin = condition.Normalize()
	return next
}

// StartGame reshuffles the deck, clears the draw history and winner, deals a
// new board to every player and moves the match to playing. Player identity
// and connection flags are kept.
func (e *Engine) StartGame(state *domain.GameState) *domain.GameState {
	next := state.Clone()
	next.Deck = e.shuffledDeck()
	next.DrawnCards = []int{}
	next.CurrentCard = nil
	next.Winner = nil
	next.Status = domain.StatusPlaying
	for i := range next.Players {
		next.Players[i].Board = e.dealBoard()
		next.Players[i].IsWinner = false
		next.Players[i].WinCondition = nil
	}
	return next
}

// DrawNextCard moves the head of the deck to the draw history. Drawing the
// last card, or drawing from an empty deck, finishes the match without a
// winner.
func (e *Engine) DrawNextCard(state *domain.GameState) *domain.GameState {
	if state.Status != domain.StatusPlaying {
		return state
	}
	next := state.Clone()
	if len(next.Deck) == 0 {
		next.Status = domain.StatusFinished
		return next
	}

	cardID := next.Deck[0]
	next.Deck = next.Deck[1:]
	next.DrawnCards = append(next.DrawnCards, cardID)
	if card, ok := domain.CardByID(cardID); ok {
		next.CurrentCard = &card
	} else {
		next.CurrentCard = &domain.Card{ID: cardID}
	}
	if len(next.Deck) == 0 {
		next.Status = domain.StatusFinished
	}
	return next
}

// MarkCard marks one cell on one player's board. Cards not yet drawn, cards
// not on the board and cells already marked are no-ops.
func (e *Engine) MarkCard(state *domain.GameState, playerID string, cardID int) *domain.GameState {
	if !state.IsDrawn(cardID) {
		return state
	}
	idx := state.PlayerIndex(playerID)
	if idx < 0 {
		return state
	}
	cell := state.Players[idx].Board.Index(cardID)
	if cell < 0 || state.Players[idx].Board[cell].Marked {
		return state
	}
	next := state.Clone()
	next.Players[idx].Board[cell].Marked = true
	return next
}

// AutoMarkAll marks the current card on every simulated player's board.
func (e *Engine) AutoMarkAll(state *domain.GameState) *domain.GameState {
	if state.CurrentCard == nil {
		return state
	}
	next := state
	for _, p := range state.Players {
		if p.IsHuman {
			continue
		}
		next = e.MarkCard(next, p.ID, state.CurrentCard.ID)
	}
	return next
}

// ProcessClaim validates a player's claim against the given condition. On a
// win the player is recorded as the winner with the pattern they actually
// completed and the match finishes. Claims on a match that is not claimable,
// from unknown players or after a winner exists leave the state unchanged.
func (e *Engine) ProcessClaim(state *domain.GameState, playerID string, condition domain.WinCondition) (*domain.GameState, domain.WinResult) {
	if !state.Claimable() {
		return state, domain.WinResult{}
	}
	idx := state.PlayerIndex(playerID)
	if idx < 0 {
		return state, domain.WinResult{}
	}

	res := domain.ValidateClaim(state.Players[idx].Board, state.DrawnCards, condition)
	if !res.IsWin {
		return state, res
	}

	next := state.Clone()
	matched := res.Matched.Clone()
	next.Players[idx].IsWinner = true
	next.Players[idx].WinCondition = &matched
	winner := next.Players[idx]
	winner.WinCondition = &matched
	next.Winner = &winner
	next.Status = domain.StatusFinished
	return next, res
}

// ClaimCondition resolves the condition a claim is checked against. A claim
// may narrow the match target to some of its subtypes but never widen it or
// switch variants; anything else falls back to the target.
func ClaimCondition(target domain.WinCondition, claimed *domain.WinCondition) domain.WinCondition {
	target = target.Normalize()
	if claimed == nil {
		return target
	}
	c := claimed.Normalize()
	if c.Type != target.Type {
		return target
	}

	out := domain.WinCondition{Type: target.Type}
	for _, p := range c.Lines {
		for _, t := range target.Lines {
			if p == t {
				out.Lines = append(out.Lines, p)
			}
		}
	}
	for _, p := range c.Squares {
		for _, t := range target.Squares {
			if p == t {
				out.Squares = append(out.Squares, p)
			}
		}
	}
	if len(out.Lines) == 0 && len(out.Squares) == 0 {
		return target
	}
	return out.Normalize()
}

func (e *Engine) shuffledDeck() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return domain.ShuffleDeck(domain.CatalogIDs(), e.rng)
}

func (e *Engine) dealBoard() domain.Board {
	e.mu.Lock()
	defer e.mu.Unlock()
	return domain.DealBoard(e.rng)
}
