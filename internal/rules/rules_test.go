package rules

import (
	"strings"
	"testing"

	chess "github.com/corentings/chess/v2"
)

func TestApplyUpdatesGameAndSAN(t *testing.T) {
	game, err := Rebuild(nil)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	mv, san, err := Apply(game, "e2e4")
	if err != nil {
		t.Fatalf("Apply e2e4: %v", err)
	}
	if mv.String() != "e2e4" {
		t.Fatalf("unexpected move: %s", mv.String())
	}
	if san != "e4" {
		t.Fatalf("unexpected SAN: %q", san)
	}
	if game.Position().Turn() != chess.Black {
		t.Fatalf("expected black to move")
	}
}

func TestApplyIllegalLeavesGameUntouched(t *testing.T) {
	game, err := Rebuild([]string{"e2e4"})
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	before := game.FEN()

	if _, _, err := Apply(game, "e4e5"); err == nil {
		t.Fatalf("expected error for illegal move")
	}
	if _, _, err := Apply(game, "zz99"); err == nil {
		t.Fatalf("expected error for malformed move")
	}
	if game.FEN() != before {
		t.Fatalf("game mutated by rejected move: %s != %s", game.FEN(), before)
	}
}

func TestRebuildReplaysHistory(t *testing.T) {
	moves := []string{"e2e4", "e7e5", "g1f3"}
	game, err := Rebuild(moves)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if got := len(game.Moves()); got != 3 {
		t.Fatalf("expected 3 moves, got %d", got)
	}
	if game.Position().Turn() != chess.Black {
		t.Fatalf("expected black to move after 3 plies")
	}

	if _, err := Rebuild([]string{"e2e4", "e2e4"}); err == nil {
		t.Fatalf("expected error replaying illegal history")
	}
}

func TestTerminalFoolsMate(t *testing.T) {
	game, err := Rebuild([]string{"f2f3", "e7e5", "g2g4", "d8h4"})
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	result, method, over := Terminal(game)
	if !over {
		t.Fatalf("expected game over")
	}
	if method != chess.Checkmate {
		t.Fatalf("expected checkmate, got %v", method)
	}
	if result != "0-1" {
		t.Fatalf("expected 0-1, got %q", result)
	}
}

func TestTerminalOngoing(t *testing.T) {
	game, err := Rebuild([]string{"e2e4"})
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if _, _, over := Terminal(game); over {
		t.Fatalf("fresh game reported as over")
	}
}

func TestRebuildFromFEN(t *testing.T) {
	fen := "6k1/5ppp/8/8/8/8/8/R3K3 w - - 0 1"
	game, err := RebuildFrom(fen, nil)
	if err != nil {
		t.Fatalf("RebuildFrom: %v", err)
	}
	if !strings.HasPrefix(game.FEN(), "6k1/5ppp") {
		t.Fatalf("position not restored: %s", game.FEN())
	}
}

func TestLastMove(t *testing.T) {
	game, _ := Rebuild(nil)
	if LastMove(game) != nil {
		t.Fatalf("expected nil last move on fresh game")
	}
	game, _ = Rebuild([]string{"e2e4", "c7c5"})
	last := LastMove(game)
	if last == nil || last.String() != "c7c5" {
		t.Fatalf("unexpected last move: %v", last)
	}
}
