package domain

import "testing"

func TestGameState_Clone(t *testing.T) {
	wc := Line(LineHorizontal)
	card := Catalog[0]
	s := &GameState{
		GameID:      "g",
		Players:     []Player{{ID: "a", Board: boardWithIDs(), WinCondition: &wc}},
		Deck:        []int{2, 3},
		DrawnCards:  []int{1},
		CurrentCard: &card,
		Status:      StatusPlaying,
		TargetWin:   Line(),
	}
	s.Winner = &s.Players[0]

	c := s.Clone()
	c.Players[0].Board[0].Marked = true
	c.Players[0].WinCondition.Lines[0] = LineVertical
	c.Deck[0] = 99
	c.DrawnCards[0] = 99
	c.CurrentCard.Name = "x"
	c.Winner.Name = "x"
	c.TargetWin.Lines[0] = LineDiagonal

	if s.Players[0].Board[0].Marked || s.Players[0].WinCondition.Lines[0] != LineHorizontal {
		t.Fatalf("player not deep-copied")
	}
	if s.Deck[0] != 2 || s.DrawnCards[0] != 1 {
		t.Fatalf("deck or history not copied")
	}
	if s.CurrentCard.Name == "x" || s.Winner.Name == "x" {
		t.Fatalf("pointers shared")
	}
	if s.TargetWin.Lines[0] != LineHorizontal {
		t.Fatalf("target win shared")
	}

	var nilState *GameState
	if nilState.Clone() != nil {
		t.Fatalf("nil Clone should stay nil")
	}
}

func TestGameState_Lookups(t *testing.T) {
	s := &GameState{
		Players:    []Player{{ID: "a", IsConnected: true}, {ID: "b"}, {ID: "c", IsConnected: true}},
		DrawnCards: []int{4, 8},
	}
	if p, ok := s.Player("b"); !ok || p.ID != "b" {
		t.Errorf("Player(b) = %+v, %t", p, ok)
	}
	if _, ok := s.Player("z"); ok {
		t.Errorf("Player(z) should not be found")
	}
	if got := s.PlayerIndex("c"); got != 2 {
		t.Errorf("PlayerIndex(c) = %d, want 2", got)
	}
	if got := s.ConnectedCount(); got != 2 {
		t.Errorf("ConnectedCount() = %d, want 2", got)
	}
	if !s.IsDrawn(8) || s.IsDrawn(5) {
		t.Errorf("IsDrawn mismatch")
	}
}

func TestGameState_Claimable(t *testing.T) {
	winner := Player{ID: "a"}
	tests := []struct {
		name  string
		state GameState
		want  bool
	}{
		{name: "waiting", state: GameState{Status: StatusWaiting, Deck: []int{1}}, want: false},
		{name: "playing", state: GameState{Status: StatusPlaying, Deck: []int{2}, DrawnCards: []int{1}}, want: true},
		{name: "deck exhausted without winner", state: GameState{Status: StatusFinished, DrawnCards: []int{1, 2}}, want: true},
		{name: "finished with winner", state: GameState{Status: StatusFinished, DrawnCards: []int{1}, Winner: &winner}, want: false},
		{name: "finished before any draw", state: GameState{Status: StatusFinished}, want: false},
		{name: "playing with winner", state: GameState{Status: StatusPlaying, Deck: []int{2}, Winner: &winner}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.Claimable(); got != tt.want {
				t.Fatalf("Claimable() = %t, want %t", got, tt.want)
			}
		})
	}
}
