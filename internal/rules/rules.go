package rules

import (
	"fmt"
	"strings"

	chess "github.com/corentings/chess/v2"
)

// Thin wrapper over the chess rules library. Everything here treats the
// library as the source of truth for legality and terminal detection; the
// match state machine never inspects positions directly.

// Rebuild replays a UCI move history from the standard starting position.
// Histories are stored as the authoritative record; FEN is derived.
func Rebuild(moves []string) (*chess.Game, error) {
	game := chess.NewGame()
	for i, mv := range moves {
		uci := strings.ToLower(strings.TrimSpace(mv))
		if err := game.PushNotationMove(uci, chess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("replay move %d %q: %w", i+1, mv, err)
		}
	}
	return game, nil
}

// RebuildFrom replays a history on top of an arbitrary FEN. Used by tests
// and by the classifier when only a position fragment is available.
func RebuildFrom(fen string, moves []string) (*chess.Game, error) {
	var game *chess.Game
	if strings.TrimSpace(fen) == "" || fen == "startpos" {
		game = chess.NewGame()
	} else {
		option, err := chess.FEN(fen)
		if err != nil {
			return nil, fmt.Errorf("parse fen %q: %w", fen, err)
		}
		game = chess.NewGame(option)
	}
	for i, mv := range moves {
		uci := strings.ToLower(strings.TrimSpace(mv))
		if err := game.PushNotationMove(uci, chess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("replay move %d %q: %w", i+1, mv, err)
		}
	}
	return game, nil
}

// Decode parses a UCI move against the current position without applying it.
func Decode(game *chess.Game, uci string) (*chess.Move, error) {
	return chess.UCINotation{}.Decode(game.Position(), strings.ToLower(strings.TrimSpace(uci)))
}

// Apply decodes, validates and applies a single UCI move. The returned SAN is
// encoded against the pre-move position. Illegal moves leave the game
// untouched and return an error.
func Apply(game *chess.Game, uci string) (*chess.Move, string, error) {
	pos := game.Position()
	mv, err := Decode(game, uci)
	if err != nil {
		return nil, "", fmt.Errorf("decode %q: %w", uci, err)
	}
	san := chess.AlgebraicNotation{}.Encode(pos, mv)
	if err := game.Move(mv, nil); err != nil {
		return nil, "", fmt.Errorf("apply %q: %w", uci, err)
	}
	return mv, san, nil
}

// Legal returns all legal moves in the current position.
func Legal(game *chess.Game) []chess.Move {
	return game.ValidMoves()
}

// LastMove returns the most recently applied move, nil for a fresh game.
func LastMove(game *chess.Game) *chess.Move {
	moves := game.Moves()
	if len(moves) == 0 {
		return nil
	}
	return moves[len(moves)-1]
}

// Terminal reports whether the game has ended by rule. result is the PGN
// result string when over is true.
func Terminal(game *chess.Game) (result string, method chess.Method, over bool) {
	switch game.Outcome() {
	case chess.WhiteWon:
		return "1-0", game.Method(), true
	case chess.BlackWon:
		return "0-1", game.Method(), true
	case chess.Draw:
		return "1/2-1/2", game.Method(), true
	default:
		return "", chess.NoMethod, false
	}
}

// IsMate reports whether applying mv to pos delivers checkmate.
func IsMate(pos *chess.Position, mv *chess.Move) bool {
	next := pos.Update(mv)
	return next != nil && next.Status() == chess.Checkmate
}

// ResultFor returns the PGN result crediting winner with the win.
func ResultFor(winner chess.Color) string {
	if winner == chess.White {
		return "1-0"
	}
	return "0-1"
}
