package domain

// Status represents the lifecycle stage of a Lotería match.
type Status string

const (
	// StatusWaiting is the pre-game state where players can join.
	StatusWaiting Status = "waiting"
	// StatusPlaying is the active state where cards are drawn and marked.
	StatusPlaying Status = "playing"
	// StatusPaused is reserved for a host-initiated pause.
	StatusPaused Status = "paused"
	// StatusFinished is the state after a validated claim or deck exhaustion.
	StatusFinished Status = "finished"
)

// Player holds the domain state for a participant in a match.
type Player struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Board        Board         `json:"board"`
	IsWinner     bool          `json:"isWinner"`
	IsConnected  bool          `json:"isConnected"`
	IsHuman      bool          `json:"isHuman"`
	WinCondition *WinCondition `json:"winCondition,omitempty"`
}

// GameState is the single source of truth for one match. Transitions never
// mutate a GameState in place; they return a new value.
type GameState struct {
	GameID         string       `json:"gameId"`
	Players        []Player     `json:"players"` // join order, host first
	Deck           []int        `json:"deck"`
	DrawnCards     []int        `json:"drawnCards"`
	CurrentCard    *Card        `json:"currentCard"`
	Status         Status       `json:"status"`
	Winner         *Player      `json:"winner"`
	DrawIntervalMs int          `json:"drawIntervalMs"`
	TargetWin      WinCondition `json:"targetWin"`
	HostID         string       `json:"hostId"`
}

// Clone returns a deep copy of the state.
func (s *GameState) Clone() *GameState {
	if s == nil {
		return nil
	}
	out := *s
	out.Players = make([]Player, len(s.Players))
	for i, p := range s.Players {
		out.Players[i] = p.clone()
	}
	out.Deck = append([]int(nil), s.Deck...)
	out.DrawnCards = append([]int(nil), s.DrawnCards...)
	if s.CurrentCard != nil {
		card := *s.CurrentCard
		out.CurrentCard = &card
	}
	if s.Winner != nil {
		winner := s.Winner.clone()
		out.Winner = &winner
	}
	out.TargetWin = s.TargetWin.Clone()
	return &out
}

func (p Player) clone() Player {
	out := p
	if p.WinCondition != nil {
		wc := p.WinCondition.Clone()
		out.WinCondition = &wc
	}
	return out
}

// Player returns the player with the given id and whether it was found.
func (s *GameState) Player(id string) (Player, bool) {
	for _, p := range s.Players {
		if p.ID == id {
			return p, true
		}
	}
	return Player{}, false
}

// PlayerIndex returns the position of a player in join order, or -1.
func (s *GameState) PlayerIndex(id string) int {
	for i, p := range s.Players {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// ConnectedCount returns how many players are currently connected.
func (s *GameState) ConnectedCount() int {
	n := 0
	for _, p := range s.Players {
		if p.IsConnected {
			n++
		}
	}
	return n
}

// IsDrawn reports whether the card id has already been called in this match.
func (s *GameState) IsDrawn(cardID int) bool {
	for _, id := range s.DrawnCards {
		if id == cardID {
			return true
		}
	}
	return false
}

// Claimable reports whether a claim can still win the match. A match that
// ran out of cards without a winner stays claimable, so the last card drawn
// can complete a board.
func (s *GameState) Claimable() bool {
	if s.Winner != nil {
		return false
	}
	switch s.Status {
	case StatusPlaying:
		return true
	case StatusFinished:
		return len(s.Deck) == 0 && len(s.DrawnCards) > 0
	}
	return false
}
