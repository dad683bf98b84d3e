package match

import (
	"time"

	"github.com/rookline/livematch/internal/heuristic"
)

type Color string

const (
	White Color = "white"
	Black Color = "black"
)

func (c Color) Other() Color {
	if c == White {
		return Black
	}
	return White
}

type Status string

const (
	StatusOngoing     Status = "ONGOING"
	StatusCheckmate   Status = "CHECKMATE"
	StatusDraw        Status = "DRAW"
	StatusResignation Status = "RESIGNATION"
	StatusTimeout     Status = "TIMEOUT"
)

func (s Status) Terminal() bool {
	return s != StatusOngoing
}

// Results use standard chess score notation.
const (
	ResultWhiteWins = "1-0"
	ResultBlackWins = "0-1"
	ResultDraw      = "1/2-1/2"
)

// ResultFor is the score string crediting winner with the win.
func ResultFor(winner Color) string {
	if winner == White {
		return ResultWhiteWins
	}
	return ResultBlackWins
}

// Seat describes one side of a match. A human seat carries an opaque
// capability token; an automated seat carries a strength level and a
// playing style instead. The token is write-once at creation and must
// never appear in any externally-visible view.
type Seat struct {
	Capability string          `json:"capability,omitempty"`
	Automated  bool            `json:"automated"`
	Level      int             `json:"level,omitempty"`
	Style      heuristic.Style `json:"style,omitempty"`
}

// Clock holds per-side remaining budgets in milliseconds. BaseMs == 0
// means the match is untimed and the budgets are ignored.
type Clock struct {
	BaseMs      int64 `json:"base_ms"`
	IncrementMs int64 `json:"increment_ms"`
	WhiteMs     int64 `json:"white_ms"`
	BlackMs     int64 `json:"black_ms"`
}

func (c *Clock) Timed() bool {
	return c != nil && c.BaseMs > 0
}

func (c *Clock) Remaining(side Color) int64 {
	if side == White {
		return c.WhiteMs
	}
	return c.BlackMs
}

func (c *Clock) SetRemaining(side Color, ms int64) {
	if side == White {
		c.WhiteMs = ms
	} else {
		c.BlackMs = ms
	}
}

// Match is the authoritative per-game record. Version increases by one on
// every successful write; stores reject writes whose expected version no
// longer matches (see Store).
type Match struct {
	ID       string   `json:"id"`
	FEN      string   `json:"fen"`
	MovesUCI []string `json:"moves_uci"`
	MovesSAN []string `json:"moves_san"`
	Turn     Color    `json:"turn"`

	WhiteSeat Seat  `json:"white_seat"`
	BlackSeat Seat  `json:"black_seat"`
	Clock     Clock `json:"clock"`

	Status      Status `json:"status"`
	Result      string `json:"result,omitempty"`
	DrawOfferBy Color  `json:"draw_offer_by,omitempty"`

	// Set once at the terminal transition when the game ends in mate.
	Pattern string   `json:"pattern,omitempty"`
	Tags    []string `json:"tags,omitempty"`

	Version    int64      `json:"version"`
	CreatedAt  time.Time  `json:"created_at"`
	LastMoveAt time.Time  `json:"last_move_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
}

func (m *Match) Seat(side Color) *Seat {
	if side == White {
		return &m.WhiteSeat
	}
	return &m.BlackSeat
}

// SeatByCapability resolves a capability token to the side it controls.
// Automated seats have no token and never match.
func (m *Match) SeatByCapability(capability string) (Color, bool) {
	if capability == "" {
		return "", false
	}
	if !m.WhiteSeat.Automated && m.WhiteSeat.Capability == capability {
		return White, true
	}
	if !m.BlackSeat.Automated && m.BlackSeat.Capability == capability {
		return Black, true
	}
	return "", false
}

// Exhibition reports whether both seats are automated.
func (m *Match) Exhibition() bool {
	return m.WhiteSeat.Automated && m.BlackSeat.Automated
}

// Clone returns a deep copy so speculative mutations never leak into a
// caller's snapshot.
func (m *Match) Clone() *Match {
	cp := *m
	cp.MovesUCI = append([]string(nil), m.MovesUCI...)
	cp.MovesSAN = append([]string(nil), m.MovesSAN...)
	cp.Tags = append([]string(nil), m.Tags...)
	if m.EndedAt != nil {
		t := *m.EndedAt
		cp.EndedAt = &t
	}
	return &cp
}
