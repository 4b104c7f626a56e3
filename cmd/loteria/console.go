package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"loteria/internal/app"
	"loteria/internal/domain"
)

var (
	errQuit           = errors.New("quit")
	errUnknownCommand = errors.New("unknown command")
)

// command is one parsed stdin line. Exactly one of intent, board or quit is set.
type command struct {
	intent app.Intent
	board  bool
	quit   bool
}

// parseCommand understands start [target], mark <card id>, claim [condition],
// board and quit. playerID fills the player of mark and claim intents.
func parseCommand(line, playerID string) (command, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return command{}, errUnknownCommand
	}
	switch fields[0] {
	case "start", "iniciar":
		it := app.StartIntent{}
		if len(fields) > 1 {
			wc, err := parseCondition(fields[1])
			if err != nil {
				return command{}, err
			}
			it.TargetWin = &wc
		}
		return command{intent: it}, nil
	case "mark", "marcar":
		if len(fields) != 2 {
			return command{}, fmt.Errorf("%w: mark <card id>", errUnknownCommand)
		}
		id, err := strconv.Atoi(fields[1])
		if err != nil {
			return command{}, fmt.Errorf("%w: bad card id %q", errUnknownCommand, fields[1])
		}
		return command{intent: app.MarkIntent{PlayerID: playerID, CardID: id}}, nil
	case "claim", "loteria", "lotería":
		it := app.ClaimIntent{PlayerID: playerID}
		if len(fields) > 1 {
			wc, err := parseCondition(fields[1])
			if err != nil {
				return command{}, err
			}
			it.Condition = &wc
		}
		return command{intent: it}, nil
	case "board", "tabla":
		return command{board: true}, nil
	case "quit", "exit", "salir":
		return command{quit: true}, nil
	}
	return command{}, fmt.Errorf("%w: %s", errUnknownCommand, fields[0])
}

func parseCondition(name string) (domain.WinCondition, error) {
	return domain.ParseWinCondition([]byte(strconv.Quote(name)))
}

// console renders service events and forwards stdin commands.
type console struct {
	svc app.Service

	mu  sync.Mutex
	out io.Writer
}

func newConsole(svc app.Service, out io.Writer) *console {
	return &console{svc: svc, out: out}
}

func (c *console) printf(format string, v ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, v...)
}

func (c *console) subscribe() {
	for _, kind := range []app.EventKind{
		app.EventPlayerJoined, app.EventPlayerLeft, app.EventMatchStarted,
		app.EventCardDrawn, app.EventMarkAccepted, app.EventClaimAccepted,
		app.EventClaimRejected, app.EventError,
	} {
		c.svc.On(kind, c.onEvent)
	}
}

func (c *console) onEvent(ev app.Event) {
	switch e := ev.(type) {
	case app.PlayerJoinedEvent:
		c.printf("+ %s se unió\n", e.Name)
	case app.PlayerLeftEvent:
		c.printf("- %s salió\n", c.nameOf(e.PlayerID))
	case app.MatchStartedEvent:
		c.printf("¡Comienza la partida! Se gana con %s.\n", e.State.TargetWin)
		c.printBoard()
	case app.CardDrawnEvent:
		c.printf("» %d %s (quedan %d)\n", e.Card.ID, e.Card.Name, e.Remaining)
	case app.MarkAcceptedEvent:
		if e.PlayerID == c.svc.LocalPlayerID() {
			c.printf("  marcada %d\n", e.CardID)
		}
	case app.ClaimAcceptedEvent:
		c.printf("¡Lotería! Gana %s con %s %v\n", e.Winner.Name, e.Condition, e.Cells)
	case app.ClaimRejectedEvent:
		if e.PlayerID == c.svc.LocalPlayerID() {
			c.printf("Reclamo rechazado.\n")
		}
	case app.ErrorEvent:
		c.printf("! %s\n", e.Message)
	}
}

func (c *console) nameOf(playerID string) string {
	if state := c.svc.State(); state != nil {
		if p, ok := state.Player(playerID); ok {
			return p.Name
		}
	}
	return playerID
}

func (c *console) printBoard() {
	state := c.svc.State()
	if state == nil {
		c.printf("Sin partida.\n")
		return
	}
	p, ok := state.Player(c.svc.LocalPlayerID())
	if !ok {
		c.printf("No tienes tabla.\n")
		return
	}
	c.printf("%s", renderBoard(p.Board))
}

func renderBoard(b domain.Board) string {
	var sb strings.Builder
	for r := 0; r < domain.BoardSize; r++ {
		for col := 0; col < domain.BoardSize; col++ {
			cell := b[r*domain.BoardSize+col]
			mark := " "
			if cell.Marked {
				mark = "x"
			}
			name := ""
			if card, ok := domain.CardByID(cell.CardID); ok {
				name = card.Name
			}
			fmt.Fprintf(&sb, "[%s] %2d %-14.14s", mark, cell.CardID, name)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (c *console) help() {
	c.printf("Comandos: start [linea|cuadro|tabla], mark <id>, claim, board, quit\n")
}

// loop reads commands until quit, end of input or ctx cancellation.
func (c *console) loop(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := c.handle(ctx, line); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				c.printf("! %v\n", err)
			}
		}
	}
}

func (c *console) handle(ctx context.Context, line string) error {
	if strings.TrimSpace(line) == "" {
		return nil
	}
	cmd, err := parseCommand(line, c.svc.LocalPlayerID())
	if err != nil {
		return err
	}
	switch {
	case cmd.quit:
		return errQuit
	case cmd.board:
		c.printBoard()
		return nil
	}
	return c.svc.SendIntent(ctx, cmd.intent)
}
