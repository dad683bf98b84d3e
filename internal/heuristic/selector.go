package heuristic

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	chess "github.com/corentings/chess/v2"

	"github.com/rookline/livematch/internal/rules"
)

// Style names a scoring personality for automated seats. Unknown strings
// normalize to StyleBalanced.
type Style string

const (
	StyleAggressive Style = "aggressive"
	StylePositional Style = "positional"
	StyleBalanced   Style = "balanced"
)

// Styles lists every selectable style, used when pairing random exhibitions.
var Styles = []Style{StyleAggressive, StylePositional, StyleBalanced}

func ParseStyle(s string) Style {
	switch Style(strings.ToLower(strings.TrimSpace(s))) {
	case StyleAggressive:
		return StyleAggressive
	case StylePositional:
		return StylePositional
	default:
		return StyleBalanced
	}
}

var pieceValues = map[chess.PieceType]float64{
	chess.Pawn:   1,
	chess.Knight: 3,
	chess.Bishop: 3,
	chess.Rook:   5,
	chess.Queen:  9,
}

const (
	// mateBonus dominates every other term combined.
	mateBonus       = 100000.0
	checkBonus      = 12.0
	queenPromoBonus = 45.0
	jitterSpan      = 0.5
)

// Selector picks one-ply moves for automated seats. It is intentionally
// myopic: the goal is fast, plausible play, not strength.
type Selector struct {
	randMu sync.Mutex
	rand   *rand.Rand
}

func NewSelector() *Selector {
	return &Selector{rand: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// SetSeed makes selection reproducible. Intended for tests.
func (s *Selector) SetSeed(seed int64) {
	s.randMu.Lock()
	s.rand = rand.New(rand.NewSource(seed))
	s.randMu.Unlock()
}

// PickMove scores every legal move and returns the best. ok is false only
// when legal is empty, in which case the position was already terminal.
func (s *Selector) PickMove(pos *chess.Position, legal []chess.Move, style Style) (chess.Move, bool) {
	if len(legal) == 0 {
		return chess.Move{}, false
	}

	bestIdx := 0
	bestScore := -1.0
	for i := range legal {
		mv := legal[i]
		score := s.jitter() + scoreMove(pos, &mv, style)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	return legal[bestIdx], true
}

func (s *Selector) jitter() float64 {
	s.randMu.Lock()
	defer s.randMu.Unlock()
	return s.rand.Float64() * jitterSpan
}

func scoreMove(pos *chess.Position, mv *chess.Move, style Style) float64 {
	board := pos.Board()
	score := 0.0

	if rules.IsMate(pos, mv) {
		score += mateBonus
	}
	if mv.HasTag(chess.Check) {
		score += checkBonus
	}
	if mv.Promo() == chess.Queen {
		score += queenPromoBonus
	}

	mover := board.Piece(mv.S1())
	victim := captureValue(board, mv)
	center := centerBonus(mv.S2())

	switch style {
	case StyleAggressive:
		if victim > 0 {
			score += victim*3 + 4
		}
		switch mover.Type() {
		case chess.Knight, chess.Bishop, chess.Queen:
			score += 2
		}
		score += center * 1.5
	case StylePositional:
		score += center * 2.5
		score += victim
		if isDevelopment(mover, mv) {
			score += 3
		}
		if mover.Type() == chess.Rook && isEdgeFile(mv.S2()) {
			score += 2
		}
	default:
		score += victim * 2
		score += center * 0.75
	}

	return score
}

// captureValue returns the captured piece's value, counting en passant as a
// pawn. Zero for quiet moves.
func captureValue(board *chess.Board, mv *chess.Move) float64 {
	if mv.HasTag(chess.EnPassant) {
		return pieceValues[chess.Pawn]
	}
	victim := board.Piece(mv.S2())
	if victim == chess.NoPiece {
		return 0
	}
	return pieceValues[victim.Type()]
}

// centerBonus peaks at 3 on d4/d5/e4/e5 and falls off toward the rim.
func centerBonus(sq chess.Square) float64 {
	return float64(3 - rules.CenterDistance(sq))
}

// isDevelopment reports a minor piece leaving its own back rank.
func isDevelopment(mover chess.Piece, mv *chess.Move) bool {
	if mover.Type() != chess.Knight && mover.Type() != chess.Bishop {
		return false
	}
	home := chess.Rank1
	if mover.Color() == chess.Black {
		home = chess.Rank8
	}
	return mv.S1().Rank() == home && mv.S2().Rank() != home
}

func isEdgeFile(sq chess.Square) bool {
	return sq.File() == chess.FileA || sq.File() == chess.FileH
}
