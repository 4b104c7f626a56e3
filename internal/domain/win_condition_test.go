package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestWinCondition_Normalize(t *testing.T) {
	tests := []struct {
		name string
		in   WinCondition
		want WinCondition
	}{
		{
			name: "empty line falls back to all directions",
			in:   WinCondition{Type: WinLine},
			want: WinCondition{Type: WinLine, Lines: []LinePattern{LineHorizontal, LineVertical, LineDiagonal}},
		},
		{
			name: "line subtypes sorted and deduplicated",
			in:   WinCondition{Type: WinLine, Lines: []LinePattern{LineDiagonal, LineHorizontal, LineDiagonal}},
			want: WinCondition{Type: WinLine, Lines: []LinePattern{LineHorizontal, LineDiagonal}},
		},
		{
			name: "empty square falls back to both",
			in:   WinCondition{Type: WinSquare},
			want: WinCondition{Type: WinSquare, Squares: []SquarePattern{SquareCorners, SquareCenter}},
		},
		{
			name: "full board drops stray subtypes",
			in:   WinCondition{Type: WinFullBoard, Lines: []LinePattern{LineVertical}},
			want: WinCondition{Type: WinFullBoard},
		},
		{
			name: "unknown type becomes default line",
			in:   WinCondition{Type: "zigzag"},
			want: Line(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Normalize()
			if !got.Equal(tt.want) || got.Type != tt.want.Type {
				t.Fatalf("Normalize() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseWinCondition(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want WinCondition
	}{
		{name: "bare linea", in: `"linea"`, want: Line()},
		{name: "bare cuadro", in: `"cuadro"`, want: Square()},
		{name: "bare tabla", in: `"tabla"`, want: FullBoard()},
		{name: "canonical line", in: `{"type":"line","lines":["vertical"]}`, want: Line(LineVertical)},
		{name: "legacy lineTypes", in: `{"type":"linea","lineTypes":["horizontal","diagonal"]}`, want: Line(LineHorizontal, LineDiagonal)},
		{name: "spanish square aliases", in: `{"type":"cuadro","squareTypes":["centro"]}`, want: Square(SquareCenter)},
		{name: "unknown subtypes dropped", in: `{"type":"line","lines":["spiral"]}`, want: Line()},
		{name: "full board object", in: `{"type":"full_board"}`, want: FullBoard()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWinCondition([]byte(tt.in))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("ParseWinCondition(%s) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseWinCondition_Errors(t *testing.T) {
	for _, in := range []string{``, `null`, `"bingo"`, `{"type":"bingo"}`, `42`, `{`} {
		if _, err := ParseWinCondition([]byte(in)); !errors.Is(err, ErrUnknownWinCondition) {
			t.Errorf("ParseWinCondition(%q) err = %v, want ErrUnknownWinCondition", in, err)
		}
	}
}

func TestWinCondition_JSON(t *testing.T) {
	data, err := json.Marshal(WinCondition{Type: WinSquare, Squares: []SquarePattern{SquareCenter, SquareCorners}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if want := `{"type":"square","squares":["corners","center"]}`; string(data) != want {
		t.Fatalf("marshal = %s, want %s", data, want)
	}

	var holder struct {
		Target WinCondition  `json:"target"`
		Claim  *WinCondition `json:"claim"`
	}
	if err := json.Unmarshal([]byte(`{"target":"cuadro","claim":null}`), &holder); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !holder.Target.Equal(Square()) {
		t.Fatalf("target = %v, want %v", holder.Target, Square())
	}
	if holder.Claim != nil {
		t.Fatalf("claim = %v, want nil", holder.Claim)
	}
}

func TestWinCondition_CloneIsIndependent(t *testing.T) {
	orig := Line(LineHorizontal, LineVertical)
	c := orig.Clone()
	c.Lines[0] = LineDiagonal
	if orig.Lines[0] != LineHorizontal {
		t.Fatalf("Clone shares the subtype slice")
	}
}
