package model

// BoardSize is the width and height of the grid
const BoardSize = 3

// Symbol is a player's mark. The zero value is an empty cell.
type Symbol string

const (
	SymbolNone Symbol = ""
	SymbolX    Symbol = "X"
	SymbolO    Symbol = "O"
)

// Opponent returns the other player's symbol
func (s Symbol) Opponent() Symbol {
	switch s {
	case SymbolX:
		return SymbolO
	case SymbolO:
		return SymbolX
	default:
		return SymbolNone
	}
}

// IsValid returns true for X and O
func (s Symbol) IsValid() bool {
	return s == SymbolX || s == SymbolO
}

// Position identifies a cell on the board
type Position struct {
	Row int // 0-indexed from top
	Col int // 0-indexed from left
}

// IsValid returns true if the position is within bounds
func (p Position) IsValid() bool {
	return p.Row >= 0 && p.Row < BoardSize && p.Col >= 0 && p.Col < BoardSize
}

// Board is the 3x3 grid, row-major: Board[row][col]
// Being an array, assignment copies the whole grid.
type Board [BoardSize][BoardSize]Symbol

// Get returns the symbol at the given position, or SymbolNone if empty or out of bounds
func (b Board) Get(pos Position) Symbol {
	if !pos.IsValid() {
		return SymbolNone
	}
	return b[pos.Row][pos.Col]
}

// IsEmpty returns true if the cell at the given position is empty
func (b Board) IsEmpty(pos Position) bool {
	return b.Get(pos) == SymbolNone
}

// Filled returns the number of occupied cells
func (b Board) Filled() int {
	n := 0
	for row := 0; row < BoardSize; row++ {
		for col := 0; col < BoardSize; col++ {
			if b[row][col] != SymbolNone {
				n++
			}
		}
	}
	return n
}

// IsFull returns true if all cells are filled
func (b Board) IsFull() bool {
	return b.Filled() == BoardSize*BoardSize
}

// Outcome is the result of applying a move to a board
type Outcome string

const (
	OutcomeContinue Outcome = "continue"
	OutcomeWin      Outcome = "win"
	OutcomeDraw     Outcome = "draw"
)
