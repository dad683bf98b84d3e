// Package matchdto defines the wire shapes exposed to the web layer.
// Nothing here ever carries a seat capability token.
package matchdto

import (
	"errors"
	"time"

	"github.com/rookline/livematch/internal/match"
)

// Error codes the UI branches on.
const (
	CodeNotFound     = "not_found"
	CodeUnauthorized = "unauthorized"
	CodeInvalidTurn  = "invalid_turn"
	CodeGameOver     = "game_over"
	CodeIllegalMove  = "illegal_move"
	CodeConflict     = "conflict"
	CodeInternal     = "internal"
)

// CodeForError maps the match package's sentinels onto wire codes.
func CodeForError(err error) string {
	switch {
	case errors.Is(err, match.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, match.ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, match.ErrInvalidTurn):
		return CodeInvalidTurn
	case errors.Is(err, match.ErrGameOver):
		return CodeGameOver
	case errors.Is(err, match.ErrIllegalMove):
		return CodeIllegalMove
	case errors.Is(err, match.ErrConflict):
		return CodeConflict
	default:
		return CodeInternal
	}
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type SubmitMoveRequest struct {
	Capability string `json:"capability"`
	From       string `json:"from"`
	To         string `json:"to"`
	Promotion  string `json:"promotion,omitempty"`
}

type DrawRequest struct {
	Capability string `json:"capability"`
}

type ResignRequest struct {
	Capability string `json:"capability"`
}

type ForceEndRequest struct {
	Status string `json:"status"`
	Result string `json:"result"`
}

type CreateSeat struct {
	Automated bool   `json:"automated"`
	Level     int    `json:"level,omitempty"`
	Style     string `json:"style,omitempty"`
}

type CreateMatchRequest struct {
	White       CreateSeat `json:"white"`
	Black       CreateSeat `json:"black"`
	BaseMs      int64      `json:"base_ms,omitempty"`
	IncrementMs int64      `json:"increment_ms,omitempty"`
}

// CreateMatchResponse is the one place capability tokens travel over the
// wire: at creation, to the creator, so they can be handed to the players.
type CreateMatchResponse struct {
	State           *MatchState `json:"state"`
	WhiteCapability string      `json:"white_capability,omitempty"`
	BlackCapability string      `json:"black_capability,omitempty"`
}

type SeatState struct {
	Automated bool   `json:"automated"`
	Level     int    `json:"level,omitempty"`
	Style     string `json:"style,omitempty"`
}

type ClockState struct {
	BaseMs      int64 `json:"base_ms"`
	IncrementMs int64 `json:"increment_ms"`
	WhiteMs     int64 `json:"white_ms"`
	BlackMs     int64 `json:"black_ms"`
}

type MatchState struct {
	ID       string   `json:"id"`
	FEN      string   `json:"fen"`
	MovesUCI []string `json:"moves_uci"`
	MovesSAN []string `json:"moves_san"`
	Turn     string   `json:"turn"`

	White SeatState  `json:"white"`
	Black SeatState  `json:"black"`
	Clock ClockState `json:"clock"`

	Status      string `json:"status"`
	Result      string `json:"result,omitempty"`
	DrawOfferBy string `json:"draw_offer_by,omitempty"`

	LastMoveFrom string `json:"last_move_from,omitempty"`
	LastMoveTo   string `json:"last_move_to,omitempty"`

	Pattern string   `json:"pattern,omitempty"`
	Tags    []string `json:"tags,omitempty"`

	YourSide string `json:"your_side,omitempty"`
	Version  int64  `json:"version"`
}

type SpotlightEntry struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Kind      string    `json:"kind"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Link      string    `json:"link"`
}

type SpotlightResponse struct {
	Enabled bool             `json:"enabled"`
	Entries []SpotlightEntry `json:"entries"`
}

// FromMatch projects the authoritative record into the wire shape,
// stripping capabilities.
func FromMatch(m *match.Match) *MatchState {
	v := &MatchState{
		ID:          m.ID,
		FEN:         m.FEN,
		MovesUCI:    m.MovesUCI,
		MovesSAN:    m.MovesSAN,
		Turn:        string(m.Turn),
		White:       SeatState{Automated: m.WhiteSeat.Automated, Level: m.WhiteSeat.Level, Style: string(m.WhiteSeat.Style)},
		Black:       SeatState{Automated: m.BlackSeat.Automated, Level: m.BlackSeat.Level, Style: string(m.BlackSeat.Style)},
		Clock:       ClockState(m.Clock),
		Status:      string(m.Status),
		Result:      m.Result,
		DrawOfferBy: string(m.DrawOfferBy),
		Pattern:     m.Pattern,
		Tags:        m.Tags,
		Version:     m.Version,
	}
	if n := len(m.MovesUCI); n > 0 && len(m.MovesUCI[n-1]) >= 4 {
		v.LastMoveFrom = m.MovesUCI[n-1][:2]
		v.LastMoveTo = m.MovesUCI[n-1][2:4]
	}
	return v
}

// FromView projects a viewer-specific read result.
func FromView(v *match.View) *MatchState {
	return &MatchState{
		ID:           v.ID,
		FEN:          v.FEN,
		MovesUCI:     v.MovesUCI,
		MovesSAN:     v.MovesSAN,
		Turn:         string(v.Turn),
		White:        SeatState{Automated: v.White.Automated, Level: v.White.Level, Style: string(v.White.Style)},
		Black:        SeatState{Automated: v.Black.Automated, Level: v.Black.Level, Style: string(v.Black.Style)},
		Clock:        ClockState(v.Clock),
		Status:       string(v.Status),
		Result:       v.Result,
		DrawOfferBy:  string(v.DrawOfferBy),
		LastMoveFrom: v.LastMoveFrom,
		LastMoveTo:   v.LastMoveTo,
		Pattern:      v.Pattern,
		Tags:         v.Tags,
		YourSide:     string(v.YourSide),
		Version:      v.Version,
	}
}
