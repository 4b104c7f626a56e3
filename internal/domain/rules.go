package domain

// WinResult is the outcome of testing a board against a win condition.
type WinResult struct {
	IsWin bool
	// Matched is the specific pattern that was completed, e.g. Line{horizontal}
	// even when the allowed set was Line{horizontal, vertical}.
	Matched *WinCondition
	// Cells holds the card ids of the completed pattern.
	Cells []int
}

// CheckWin tests a board against a win condition. Enabled subtypes are tried
// in a fixed order and the first complete pattern wins.
func CheckWin(board Board, condition WinCondition) WinResult {
	condition = condition.Normalize()

	switch condition.Type {
	case WinLine:
		return checkLine(board, condition.Lines)
	case WinSquare:
		return checkSquare(board, condition.Squares)
	case WinFullBoard:
		return checkFullBoard(board)
	}
	return WinResult{}
}

// ValidateClaim rejects a board that marks any card not yet drawn, then
// checks the pattern. A structurally complete pattern built on an undrawn
// card is still an invalid claim.
func ValidateClaim(board Board, drawnCardIDs []int, condition WinCondition) WinResult {
	drawn := make(map[int]struct{}, len(drawnCardIDs))
	for _, id := range drawnCardIDs {
		drawn[id] = struct{}{}
	}
	for _, id := range board.MarkedIDs() {
		if _, ok := drawn[id]; !ok {
			return WinResult{}
		}
	}
	return CheckWin(board, condition)
}

func checkLine(board Board, enabled []LinePattern) WinResult {
	if containsLine(enabled, LineHorizontal) {
		for r := 0; r < BoardSize; r++ {
			cells := board.row(r)
			if board.complete(cells[:]) {
				return lineResult(board, LineHorizontal, cells[:])
			}
		}
	}

	if containsLine(enabled, LineVertical) {
		for c := 0; c < BoardSize; c++ {
			cells := board.column(c)
			if board.complete(cells[:]) {
				return lineResult(board, LineVertical, cells[:])
			}
		}
	}

	if containsLine(enabled, LineDiagonal) {
		for _, cells := range board.diagonals() {
			if board.complete(cells[:]) {
				return lineResult(board, LineDiagonal, cells[:])
			}
		}
	}

	return WinResult{}
}

func checkSquare(board Board, enabled []SquarePattern) WinResult {
	for _, p := range squareOrder {
		if !containsSquare(enabled, p) {
			continue
		}
		cells := squareCells(p)
		if board.complete(cells) {
			matched := WinCondition{Type: WinSquare, Squares: []SquarePattern{p}}
			return WinResult{IsWin: true, Matched: &matched, Cells: board.cardIDs(cells)}
		}
	}
	return WinResult{}
}

func checkFullBoard(board Board) WinResult {
	all := make([]int, BoardCells)
	for i := range all {
		all[i] = i
	}
	if !board.complete(all) {
		return WinResult{}
	}
	matched := FullBoard()
	return WinResult{IsWin: true, Matched: &matched, Cells: board.cardIDs(all)}
}

func lineResult(board Board, p LinePattern, cells []int) WinResult {
	matched := WinCondition{Type: WinLine, Lines: []LinePattern{p}}
	return WinResult{IsWin: true, Matched: &matched, Cells: board.cardIDs(cells)}
}

func squareCells(p SquarePattern) []int {
	switch p {
	case SquareCorners:
		return cornerCells[:]
	case SquareCenter:
		return centerCells[:]
	}
	return nil
}

// CompletedLines lists the card ids of every complete row, column and
// diagonal, in scan order. Used for end-of-match display.
func CompletedLines(board Board) [][]int {
	var lines [][]int
	for r := 0; r < BoardSize; r++ {
		cells := board.row(r)
		if board.complete(cells[:]) {
			lines = append(lines, board.cardIDs(cells[:]))
		}
	}
	for c := 0; c < BoardSize; c++ {
		cells := board.column(c)
		if board.complete(cells[:]) {
			lines = append(lines, board.cardIDs(cells[:]))
		}
	}
	for _, cells := range board.diagonals() {
		if board.complete(cells[:]) {
			lines = append(lines, board.cardIDs(cells[:]))
		}
	}
	return lines
}
