package domain

// BoardCell is one card reference on a player board plus its marked flag.
type BoardCell struct {
	CardID int  `json:"cardId"`
	Marked bool `json:"marked"`
}

// Board is a 4x4 grid of cells stored row-major. Cells are assigned once at
// deal time and never reordered.
type Board [BoardCells]BoardCell

// Index returns the position of a card on the board, or -1.
func (b Board) Index(cardID int) int {
	for i, c := range b {
		if c.CardID == cardID {
			return i
		}
	}
	return -1
}

// MarkedIDs returns the card ids of every marked cell in board order.
func (b Board) MarkedIDs() []int {
	var ids []int
	for _, c := range b {
		if c.Marked {
			ids = append(ids, c.CardID)
		}
	}
	return ids
}

func (b Board) row(r int) [BoardSize]int {
	var idx [BoardSize]int
	for c := 0; c < BoardSize; c++ {
		idx[c] = r*BoardSize + c
	}
	return idx
}

func (b Board) column(c int) [BoardSize]int {
	var idx [BoardSize]int
	for r := 0; r < BoardSize; r++ {
		idx[r] = r*BoardSize + c
	}
	return idx
}

// diagonals returns the main diagonal followed by the anti diagonal.
func (b Board) diagonals() [2][BoardSize]int {
	var main, anti [BoardSize]int
	for i := 0; i < BoardSize; i++ {
		main[i] = i*BoardSize + i
		anti[i] = i*BoardSize + (BoardSize - 1 - i)
	}
	return [2][BoardSize]int{main, anti}
}

// complete reports whether every listed cell is marked.
func (b Board) complete(positions []int) bool {
	for _, p := range positions {
		if !b[p].Marked {
			return false
		}
	}
	return true
}

func (b Board) cardIDs(positions []int) []int {
	ids := make([]int, len(positions))
	for i, p := range positions {
		ids[i] = b[p].CardID
	}
	return ids
}
