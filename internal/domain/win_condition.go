package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// WinType tags the WinCondition variant.
type WinType string

const (
	WinLine      WinType = "line"
	WinSquare    WinType = "square"
	WinFullBoard WinType = "full_board"
)

// LinePattern is a Line subtype.
type LinePattern string

const (
	LineHorizontal LinePattern = "horizontal"
	LineVertical   LinePattern = "vertical"
	LineDiagonal   LinePattern = "diagonal"
)

// SquarePattern is a Square subtype.
type SquarePattern string

const (
	SquareCorners SquarePattern = "corners"
	SquareCenter  SquarePattern = "center"
)

// Evaluation order for subtypes. CheckWin always follows these regardless of
// the order the subtypes were configured in.
var (
	lineOrder   = []LinePattern{LineHorizontal, LineVertical, LineDiagonal}
	squareOrder = []SquarePattern{SquareCorners, SquareCenter}
)

// ErrUnknownWinCondition is returned when external input names no known variant.
var ErrUnknownWinCondition = errors.New("unknown win condition")

// WinCondition is a tagged variant: Line{Lines}, Square{Squares} or FullBoard.
// Only the subtype set matching Type is meaningful.
type WinCondition struct {
	Type    WinType         `json:"type"`
	Lines   []LinePattern   `json:"lines,omitempty"`
	Squares []SquarePattern `json:"squares,omitempty"`
}

// Line builds a Line condition. No patterns means every line direction.
func Line(patterns ...LinePattern) WinCondition {
	return WinCondition{Type: WinLine, Lines: patterns}.Normalize()
}

// Square builds a Square condition. No patterns means corners and center.
func Square(patterns ...SquarePattern) WinCondition {
	return WinCondition{Type: WinSquare, Squares: patterns}.Normalize()
}

// FullBoard builds the FullBoard condition.
func FullBoard() WinCondition {
	return WinCondition{Type: WinFullBoard}
}

// Normalize returns the canonical form: subtypes deduplicated and sorted into
// evaluation order, unknown subtypes dropped, and an empty set replaced by the
// variant default. A condition with an unknown type becomes a default Line.
func (w WinCondition) Normalize() WinCondition {
	switch w.Type {
	case WinLine:
		lines := make([]LinePattern, 0, len(lineOrder))
		for _, p := range lineOrder {
			if containsLine(w.Lines, p) {
				lines = append(lines, p)
			}
		}
		if len(lines) == 0 {
			lines = append(lines, lineOrder...)
		}
		return WinCondition{Type: WinLine, Lines: lines}
	case WinSquare:
		squares := make([]SquarePattern, 0, len(squareOrder))
		for _, p := range squareOrder {
			if containsSquare(w.Squares, p) {
				squares = append(squares, p)
			}
		}
		if len(squares) == 0 {
			squares = append(squares, squareOrder...)
		}
		return WinCondition{Type: WinSquare, Squares: squares}
	case WinFullBoard:
		return WinCondition{Type: WinFullBoard}
	default:
		return Line()
	}
}

// Clone returns a copy that shares no slices with w.
func (w WinCondition) Clone() WinCondition {
	return WinCondition{
		Type:    w.Type,
		Lines:   append([]LinePattern(nil), w.Lines...),
		Squares: append([]SquarePattern(nil), w.Squares...),
	}
}

// Equal reports whether both conditions have the same canonical form.
func (w WinCondition) Equal(o WinCondition) bool {
	a, b := w.Normalize(), o.Normalize()
	if a.Type != b.Type || len(a.Lines) != len(b.Lines) || len(a.Squares) != len(b.Squares) {
		return false
	}
	for i := range a.Lines {
		if a.Lines[i] != b.Lines[i] {
			return false
		}
	}
	for i := range a.Squares {
		if a.Squares[i] != b.Squares[i] {
			return false
		}
	}
	return true
}

func (w WinCondition) String() string {
	switch w.Type {
	case WinLine:
		parts := make([]string, len(w.Lines))
		for i, p := range w.Lines {
			parts[i] = string(p)
		}
		return "line(" + strings.Join(parts, ",") + ")"
	case WinSquare:
		parts := make([]string, len(w.Squares))
		for i, p := range w.Squares {
			parts[i] = string(p)
		}
		return "square(" + strings.Join(parts, ",") + ")"
	default:
		return string(w.Type)
	}
}

// MarshalJSON always emits the canonical object form.
func (w WinCondition) MarshalJSON() ([]byte, error) {
	type canonical WinCondition
	return json.Marshal(canonical(w.Normalize()))
}

// UnmarshalJSON accepts every representation seen at external edges: bare
// strings ("linea", "cuadro", "tabla", ...), canonical objects and the legacy
// {"type":"linea","lineTypes":[...]} shape.
func (w *WinCondition) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	parsed, err := ParseWinCondition(data)
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

type rawWinCondition struct {
	Type        string   `json:"type"`
	Lines       []string `json:"lines"`
	Squares     []string `json:"squares"`
	LineTypes   []string `json:"lineTypes"`
	SquareTypes []string `json:"squareTypes"`
}

// ParseWinCondition decodes any supported JSON representation into the
// canonical variant.
func ParseWinCondition(data []byte) (WinCondition, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return WinCondition{}, fmt.Errorf("%w: empty", ErrUnknownWinCondition)
	}

	if data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return WinCondition{}, fmt.Errorf("%w: %v", ErrUnknownWinCondition, err)
		}
		t, ok := parseWinType(name)
		if !ok {
			return WinCondition{}, fmt.Errorf("%w: %q", ErrUnknownWinCondition, name)
		}
		return WinCondition{Type: t}.Normalize(), nil
	}

	var raw rawWinCondition
	if err := json.Unmarshal(data, &raw); err != nil {
		return WinCondition{}, fmt.Errorf("%w: %v", ErrUnknownWinCondition, err)
	}
	t, ok := parseWinType(raw.Type)
	if !ok {
		return WinCondition{}, fmt.Errorf("%w: %q", ErrUnknownWinCondition, raw.Type)
	}

	out := WinCondition{Type: t}
	for _, s := range append(raw.Lines, raw.LineTypes...) {
		if p, ok := parseLinePattern(s); ok {
			out.Lines = append(out.Lines, p)
		}
	}
	for _, s := range append(raw.Squares, raw.SquareTypes...) {
		if p, ok := parseSquarePattern(s); ok {
			out.Squares = append(out.Squares, p)
		}
	}
	return out.Normalize(), nil
}

func parseWinType(s string) (WinType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "line", "linea", "línea":
		return WinLine, true
	case "square", "cuadro":
		return WinSquare, true
	case "full_board", "fullboard", "full", "tabla":
		return WinFullBoard, true
	default:
		return "", false
	}
}

func parseLinePattern(s string) (LinePattern, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "horizontal":
		return LineHorizontal, true
	case "vertical":
		return LineVertical, true
	case "diagonal":
		return LineDiagonal, true
	default:
		return "", false
	}
}

func parseSquarePattern(s string) (SquarePattern, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "corners", "esquinas":
		return SquareCorners, true
	case "center", "centro":
		return SquareCenter, true
	default:
		return "", false
	}
}

func containsLine(ps []LinePattern, p LinePattern) bool {
	for _, x := range ps {
		if x == p {
			return true
		}
	}
	return false
}

func containsSquare(ps []SquarePattern, p SquarePattern) bool {
	for _, x := range ps {
		if x == p {
			return true
		}
	}
	return false
}
