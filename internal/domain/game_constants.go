package domain

const (
	// BoardSize is the width and height of a player board.
	BoardSize = 4
	// BoardCells is the number of cells on a board.
	BoardCells = BoardSize * BoardSize
)

// Square pattern cell positions on a 4x4 board.
var (
	cornerCells = [4]int{0, 3, 12, 15}
	centerCells = [4]int{5, 6, 9, 10}
)
