package match

import (
	"time"

	"github.com/rookline/livematch/internal/heuristic"
)

// SeatView is the safe projection of a seat: automated seats reveal their
// level and style, human seats reveal nothing but their kind.
type SeatView struct {
	Automated bool            `json:"automated"`
	Level     int             `json:"level,omitempty"`
	Style     heuristic.Style `json:"style,omitempty"`
}

// View is what spectators and players see. It never contains a capability
// token; a viewer who presented a matching token learns only which side
// they control.
type View struct {
	ID       string   `json:"id"`
	FEN      string   `json:"fen"`
	MovesUCI []string `json:"moves_uci"`
	MovesSAN []string `json:"moves_san"`
	Turn     Color    `json:"turn"`

	White SeatView `json:"white"`
	Black SeatView `json:"black"`
	Clock Clock    `json:"clock"`

	Status      Status `json:"status"`
	Result      string `json:"result,omitempty"`
	DrawOfferBy Color  `json:"draw_offer_by,omitempty"`

	LastMoveFrom string `json:"last_move_from,omitempty"`
	LastMoveTo   string `json:"last_move_to,omitempty"`

	Pattern string   `json:"pattern,omitempty"`
	Tags    []string `json:"tags,omitempty"`

	// YourSide is set only when the viewer's capability matched a seat.
	YourSide Color `json:"your_side,omitempty"`

	CreatedAt  time.Time `json:"created_at"`
	LastMoveAt time.Time `json:"last_move_at"`
	Version    int64     `json:"version"`
}

func buildView(m *Match, viewerCapability string) *View {
	v := &View{
		ID:          m.ID,
		FEN:         m.FEN,
		MovesUCI:    append([]string(nil), m.MovesUCI...),
		MovesSAN:    append([]string(nil), m.MovesSAN...),
		Turn:        m.Turn,
		White:       seatView(m.WhiteSeat),
		Black:       seatView(m.BlackSeat),
		Clock:       m.Clock,
		Status:      m.Status,
		Result:      m.Result,
		DrawOfferBy: m.DrawOfferBy,
		Pattern:     m.Pattern,
		Tags:        append([]string(nil), m.Tags...),
		CreatedAt:   m.CreatedAt,
		LastMoveAt:  m.LastMoveAt,
		Version:     m.Version,
	}
	if n := len(m.MovesUCI); n > 0 {
		last := m.MovesUCI[n-1]
		if len(last) >= 4 {
			v.LastMoveFrom = last[:2]
			v.LastMoveTo = last[2:4]
		}
	}
	if side, ok := m.SeatByCapability(viewerCapability); ok {
		v.YourSide = side
	}
	return v
}

func seatView(s Seat) SeatView {
	return SeatView{Automated: s.Automated, Level: s.Level, Style: s.Style}
}
