package main

import (
	"bytes"
	"context"
	"reflect"
	"strings"
	"testing"

	"loteria/internal/app"
	"loteria/internal/domain"
)

type fakeService struct {
	app.Service
	local   string
	state   *domain.GameState
	intents []app.Intent
}

func (f *fakeService) LocalPlayerID() string     { return f.local }
func (f *fakeService) State() *domain.GameState { return f.state }
func (f *fakeService) SendIntent(_ context.Context, it app.Intent) error {
	f.intents = append(f.intents, it)
	return nil
}

func condition(w domain.WinCondition) *domain.WinCondition { return &w }

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line    string
		want    command
		wantErr bool
	}{
		{line: "start", want: command{intent: app.StartIntent{}}},
		{line: "start tabla", want: command{intent: app.StartIntent{TargetWin: condition(domain.FullBoard())}}},
		{line: "MARK 12", want: command{intent: app.MarkIntent{PlayerID: "p1", CardID: 12}}},
		{line: "claim", want: command{intent: app.ClaimIntent{PlayerID: "p1"}}},
		{line: "claim cuadro", want: command{intent: app.ClaimIntent{PlayerID: "p1", Condition: condition(domain.Square())}}},
		{line: "board", want: command{board: true}},
		{line: "salir", want: command{quit: true}},
		{line: "mark", wantErr: true},
		{line: "mark doce", wantErr: true},
		{line: "start bingo", wantErr: true},
		{line: "dance", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := parseCommand(tt.line, "p1")
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseCommand: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestConsoleLoopForwardsIntents(t *testing.T) {
	svc := &fakeService{local: "p1"}
	var out bytes.Buffer
	c := newConsole(svc, &out)

	in := strings.NewReader("start\n\nmark 3\nnope\nclaim\nquit\nmark 4\n")
	if err := c.loop(context.Background(), in); err != nil {
		t.Fatalf("loop: %v", err)
	}

	want := []app.Intent{
		app.StartIntent{},
		app.MarkIntent{PlayerID: "p1", CardID: 3},
		app.ClaimIntent{PlayerID: "p1"},
	}
	if !reflect.DeepEqual(svc.intents, want) {
		t.Fatalf("intents = %+v, want %+v", svc.intents, want)
	}
	if !strings.Contains(out.String(), "unknown command") {
		t.Errorf("expected unknown command notice, got %q", out.String())
	}
}

func TestConsoleRendersEvents(t *testing.T) {
	var board domain.Board
	for i := range board {
		board[i] = domain.BoardCell{CardID: i + 1, Marked: i == 0}
	}
	svc := &fakeService{local: "p1", state: &domain.GameState{
		Players: []domain.Player{{ID: "p1", Name: "Ana", Board: board}, {ID: "p2", Name: "Beto"}},
	}}
	var out bytes.Buffer
	c := newConsole(svc, &out)

	card, _ := domain.CardByID(1)
	c.onEvent(app.CardDrawnEvent{Card: card, Remaining: 40})
	c.onEvent(app.PlayerLeftEvent{PlayerID: "p2"})
	c.onEvent(app.ClaimRejectedEvent{PlayerID: "p2"})
	c.onEvent(app.ErrorEvent{Code: app.ErrCodeBadRequest, Message: "La partida ya comenzó."})
	c.printBoard()

	got := out.String()
	for _, want := range []string{card.Name, "quedan 40", "Beto salió", "La partida ya comenzó.", "[x]  1"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "rechazado") {
		t.Errorf("another player's rejected claim should not print")
	}
	if lines := strings.Count(renderBoard(board), "\n"); lines != domain.BoardSize {
		t.Errorf("board rows = %d, want %d", lines, domain.BoardSize)
	}
}

func TestParseFlags(t *testing.T) {
	o, err := parseFlags([]string{"-mode", "online", "-name", "Ana", "-match", "m1"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if o.mode != modeOnline || o.name != "Ana" || o.matchID != "m1" {
		t.Fatalf("options = %+v", o)
	}
	if _, err := parseFlags([]string{"-mode", "lan"}); err == nil {
		t.Fatalf("expected unknown mode error")
	}
}
