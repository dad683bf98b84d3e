package tactics

import (
	chess "github.com/corentings/chess/v2"

	"github.com/rookline/livematch/internal/rules"
)

// Best-effort labeling of checkmate positions for presentation. This is not
// a tactics solver; false positives are acceptable and expected.

// Pattern is the primary human-readable mate label.
type Pattern string

const (
	PatternSmothered Pattern = "Smothered mate"
	PatternBackRank  Pattern = "Back-rank mate"
	PatternQueen     Pattern = "Queen mate"
	PatternRook      Pattern = "Rook mate"
	PatternBishop    Pattern = "Bishop mate"
	PatternKnight    Pattern = "Knight mate"
	PatternGeneric   Pattern = "Checkmate"
)

// Tag is an auxiliary tactical motif; several may co-occur with one pattern.
type Tag string

const (
	TagPin        Tag = "Pin"
	TagDiscovered Tag = "Discovered attack"
	TagSkewer     Tag = "Skewer"
	TagDeflection Tag = "Deflection"
	TagDecoy      Tag = "Decoy"
	TagPromotion  Tag = "Promotion"
)

// Classification carries the primary pattern and deduplicated motif tags.
type Classification struct {
	Pattern Pattern
	Tags    []Tag
}

// Classify labels a checkmate position given the mating move. pos is the
// position after the move; the side to move in it is the mated side.
// Behavior on non-mate positions is undefined but safe.
func Classify(pos *chess.Position, lastMove *chess.Move) Classification {
	out := Classification{Pattern: PatternGeneric}
	if pos == nil || lastMove == nil {
		return out
	}

	board := pos.Board()
	mated := pos.Turn()
	kingSq := rules.KingSquare(board, mated)
	if kingSq == chess.NoSquare {
		return out
	}

	mover := board.Piece(lastMove.S2())

	ownNeighbors, blockedNeighbors := surveyKingField(board, kingSq, mated)

	switch {
	case mover.Type() == chess.Knight && ownNeighbors >= 5 && blockedNeighbors >= 7:
		out.Pattern = PatternSmothered
	case isBackRank(mated, kingSq, mover, lastMove):
		out.Pattern = PatternBackRank
	default:
		out.Pattern = patternForPiece(mover.Type())
	}

	tags := make([]Tag, 0, 4)
	tags = append(tags, lineTags(board, kingSq, mated, lastMove)...)
	if lastMove.HasTag(chess.Capture) || lastMove.HasTag(chess.EnPassant) {
		tags = append(tags, TagDeflection)
	}
	if isAdjacent(lastMove.S2(), kingSq) {
		tags = append(tags, TagDecoy)
	}
	if lastMove.Promo() == chess.Queen {
		tags = append(tags, TagPromotion)
	}
	out.Tags = dedupe(tags)
	return out
}

// surveyKingField counts the mated king's eight neighbor squares: how many
// hold the mated side's own pieces and how many are blocked at all.
// Off-board squares count as blocked.
func surveyKingField(board *chess.Board, kingSq chess.Square, mated chess.Color) (own, blocked int) {
	inside := 0
	for _, sq := range rules.Neighbors(kingSq) {
		inside++
		p := board.Piece(sq)
		if p == chess.NoPiece {
			continue
		}
		blocked++
		if p.Color() == mated {
			own++
		}
	}
	blocked += 8 - inside
	return own, blocked
}

func isBackRank(mated chess.Color, kingSq chess.Square, mover chess.Piece, mv *chess.Move) bool {
	if mover.Type() != chess.Queen && mover.Type() != chess.Rook {
		return false
	}
	backRank := chess.Rank1
	if mated == chess.Black {
		backRank = chess.Rank8
	}
	if kingSq.Rank() != backRank {
		return false
	}
	// The delivering move must travel along a single rank or file.
	return mv.S1().File() == mv.S2().File() || mv.S1().Rank() == mv.S2().Rank()
}

func patternForPiece(t chess.PieceType) Pattern {
	switch t {
	case chess.Queen:
		return PatternQueen
	case chess.Rook:
		return PatternRook
	case chess.Bishop:
		return PatternBishop
	case chess.Knight:
		return PatternKnight
	default:
		return PatternGeneric
	}
}

// lineTags traces the eight compass rays from the mated king looking for
// pins, discovered attacks and skewers involving enemy sliders.
func lineTags(board *chess.Board, kingSq chess.Square, mated chess.Color, lastMove *chess.Move) []Tag {
	var tags []Tag
	for _, dir := range rules.Compass {
		firstSq, firstPiece, ok := rules.FirstAlong(board, kingSq, dir)
		if !ok {
			continue
		}

		if firstPiece.Color() == mated {
			// Own piece shields the king; a slider behind it pins it.
			_, behind, found := rules.FirstAlong(board, firstSq, dir)
			if found && behind.Color() != mated && slidesAlong(behind.Type(), dir) {
				tags = append(tags, TagPin)
			}
			continue
		}

		if !slidesAlong(firstPiece.Type(), dir) {
			continue
		}
		// Enemy slider with a clear line to the king.
		if firstSq != lastMove.S2() {
			tags = append(tags, TagDiscovered)
		}
		// A valuable mated-side piece directly behind the king along the
		// same line makes the check a skewer.
		opposite := rules.Direction{DF: -dir.DF, DR: -dir.DR}
		if _, rear, found := rules.FirstAlong(board, kingSq, opposite); found {
			if rear.Color() == mated && (rear.Type() == chess.Queen || rear.Type() == chess.Rook) {
				tags = append(tags, TagSkewer)
			}
		}
	}
	return tags
}

func slidesAlong(t chess.PieceType, dir rules.Direction) bool {
	if t == chess.Queen {
		return true
	}
	if dir.Orthogonal() {
		return t == chess.Rook
	}
	return t == chess.Bishop
}

func isAdjacent(a, b chess.Square) bool {
	if a == b {
		return false
	}
	df := int(a.File()) - int(b.File())
	dr := int(a.Rank()) - int(b.Rank())
	if df < 0 {
		df = -df
	}
	if dr < 0 {
		dr = -dr
	}
	return df <= 1 && dr <= 1
}

func dedupe(tags []Tag) []Tag {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[Tag]struct{}, len(tags))
	out := make([]Tag, 0, len(tags))
	for _, tag := range tags {
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
