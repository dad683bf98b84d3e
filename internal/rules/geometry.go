package rules

import (
	chess "github.com/corentings/chess/v2"
)

// Board geometry shared by the heuristic selector and the mate classifier.

// Direction is a file/rank step for line tracing.
type Direction struct {
	DF int
	DR int
}

// Compass holds the eight ray directions from a square: orthogonals first,
// diagonals after, so callers can slice by slider kind.
var Compass = [8]Direction{
	{1, 0}, {-1, 0}, {0, 1}, {0, -1},
	{1, 1}, {1, -1}, {-1, 1}, {-1, -1},
}

// Orthogonal reports whether d is a rank or file direction.
func (d Direction) Orthogonal() bool { return d.DF == 0 || d.DR == 0 }

// Offset returns the square displaced from sq by (df, dr) files/ranks.
// ok is false when the result falls off the board.
func Offset(sq chess.Square, df, dr int) (chess.Square, bool) {
	f := int(sq.File()) + df
	r := int(sq.Rank()) + dr
	if f < 0 || f > 7 || r < 0 || r > 7 {
		return chess.NoSquare, false
	}
	return chess.NewSquare(chess.File(f), chess.Rank(r)), true
}

// Neighbors returns the up-to-eight squares adjacent to sq.
func Neighbors(sq chess.Square) []chess.Square {
	out := make([]chess.Square, 0, 8)
	for _, d := range Compass {
		if n, ok := Offset(sq, d.DF, d.DR); ok {
			out = append(out, n)
		}
	}
	return out
}

// CenterDistance returns the Chebyshev distance from sq to the nearest of
// the four central squares (d4, d5, e4, e5). Zero on the center itself.
func CenterDistance(sq chess.Square) int {
	f := int(sq.File())
	r := int(sq.Rank())
	df := 0
	switch {
	case f < 3:
		df = 3 - f
	case f > 4:
		df = f - 4
	}
	dr := 0
	switch {
	case r < 3:
		dr = 3 - r
	case r > 4:
		dr = r - 4
	}
	if df > dr {
		return df
	}
	return dr
}

// KingSquare locates color's king on the board, chess.NoSquare if absent.
func KingSquare(board *chess.Board, color chess.Color) chess.Square {
	want := chess.WhiteKing
	if color == chess.Black {
		want = chess.BlackKing
	}
	for sq := chess.A1; sq <= chess.H8; sq++ {
		if board.Piece(sq) == want {
			return sq
		}
	}
	return chess.NoSquare
}

// FirstAlong walks from sq in direction d and returns the first occupied
// square and its piece. ok is false when the ray exits the board empty.
func FirstAlong(board *chess.Board, sq chess.Square, d Direction) (chess.Square, chess.Piece, bool) {
	cur := sq
	for {
		next, inside := Offset(cur, d.DF, d.DR)
		if !inside {
			return chess.NoSquare, chess.NoPiece, false
		}
		if p := board.Piece(next); p != chess.NoPiece {
			return next, p, true
		}
		cur = next
	}
}
