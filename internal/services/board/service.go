package board

import (
	"github.com/mcoot/tictactoe-go/internal/model"
)

// lines through a cell, as direction vectors
var directions = [...]model.Position{
	{Row: 0, Col: 1},  // row
	{Row: 1, Col: 0},  // column
	{Row: 1, Col: 1},  // main diagonal
	{Row: 1, Col: -1}, // anti-diagonal
}

// ValidatePlacement checks that a position is on the board and empty
func ValidatePlacement(b model.Board, pos model.Position) error {
	if !pos.IsValid() {
		return model.ErrInvalidCell
	}
	if !b.IsEmpty(pos) {
		return model.ErrCellOccupied
	}
	return nil
}

// Apply places symbol at pos and reports the outcome of the move.
// The input board is not modified; the updated board is returned.
func Apply(b model.Board, pos model.Position, symbol model.Symbol) (model.Board, model.Outcome, error) {
	if err := ValidatePlacement(b, pos); err != nil {
		return b, model.OutcomeContinue, err
	}

	next := b
	next[pos.Row][pos.Col] = symbol

	if IsWinningMove(next, pos) {
		return next, model.OutcomeWin, nil
	}
	if next.IsFull() {
		return next, model.OutcomeDraw, nil
	}
	return next, model.OutcomeContinue, nil
}

// IsWinningMove checks only the lines passing through pos for a full run of
// the symbol placed there
func IsWinningMove(b model.Board, pos model.Position) bool {
	symbol := b.Get(pos)
	if symbol == model.SymbolNone {
		return false
	}

	for _, d := range directions {
		if !onLine(pos, d) {
			continue
		}
		if lineComplete(b, pos, d, symbol) {
			return true
		}
	}
	return false
}

// onLine reports whether pos lies on the full-length line for direction d.
// Rows and columns always qualify; diagonals only for cells on them.
func onLine(pos model.Position, d model.Position) bool {
	switch {
	case d.Row == 1 && d.Col == 1:
		return pos.Row == pos.Col
	case d.Row == 1 && d.Col == -1:
		return pos.Row+pos.Col == model.BoardSize-1
	default:
		return true
	}
}

func lineComplete(b model.Board, pos model.Position, d model.Position, symbol model.Symbol) bool {
	// Walk back to the start of the line
	start := pos
	for {
		prev := model.Position{Row: start.Row - d.Row, Col: start.Col - d.Col}
		if !prev.IsValid() {
			break
		}
		start = prev
	}

	count := 0
	for p := start; p.IsValid(); p = (model.Position{Row: p.Row + d.Row, Col: p.Col + d.Col}) {
		if b.Get(p) != symbol {
			return false
		}
		count++
	}
	return count == model.BoardSize
}
