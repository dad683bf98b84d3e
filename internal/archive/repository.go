// Package archive persists finished matches to Postgres and answers the
// tournament queries the spotlight selector needs. The live state itself
// lives in the match store; this is the durable record.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/rookline/livematch/internal/match"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveResult upserts a terminal match. Safe to call more than once for the
// same match; the last write wins on every column.
func (r *Repository) SaveResult(ctx context.Context, m *match.Match) error {
	if r == nil || r.db == nil || m == nil {
		return nil
	}
	if !m.Status.Terminal() {
		return nil
	}

	pgn := buildPGN(m)
	movesUCIRaw, _ := json.Marshal(m.MovesUCI)
	movesSANRaw, _ := json.Marshal(m.MovesSAN)

	endedAt := m.LastMoveAt
	if m.EndedAt != nil {
		endedAt = *m.EndedAt
	}
	duration := endedAt.Sub(m.CreatedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	q := `INSERT INTO match_results (
	    match_id, status, result, pattern, tags,
	    moves_uci, moves_san, pgn,
	    white_automated, black_automated,
	    started_at, ended_at, duration_ms
	  ) VALUES (
	    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
	  ) ON CONFLICT (match_id) DO UPDATE SET
	    status=EXCLUDED.status,
	    result=EXCLUDED.result,
	    pattern=EXCLUDED.pattern,
	    tags=EXCLUDED.tags,
	    moves_uci=EXCLUDED.moves_uci,
	    moves_san=EXCLUDED.moves_san,
	    pgn=EXCLUDED.pgn,
	    white_automated=EXCLUDED.white_automated,
	    black_automated=EXCLUDED.black_automated,
	    started_at=EXCLUDED.started_at,
	    ended_at=EXCLUDED.ended_at,
	    duration_ms=EXCLUDED.duration_ms`

	tagsRaw, _ := json.Marshal(m.Tags)
	_, err := r.db.ExecContext(ctx, q,
		m.ID, string(m.Status), m.Result, m.Pattern, string(tagsRaw),
		string(movesUCIRaw), string(movesSANRaw), pgn,
		m.WhiteSeat.Automated, m.BlackSeat.Automated,
		m.CreatedAt, endedAt, duration,
	)
	return err
}

func buildPGN(m *match.Match) string {
	var b strings.Builder
	date := m.LastMoveAt
	if m.EndedAt != nil {
		date = *m.EndedAt
	}
	if date.IsZero() {
		date = time.Now()
	}
	b.WriteString("[Event \"Live Match\"]\n")
	b.WriteString("[Site \"rookline\"]\n")
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", seatLabel(m.WhiteSeat)))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", seatLabel(m.BlackSeat)))
	if m.Clock.Timed() {
		b.WriteString(fmt.Sprintf("[TimeControl \"%d+%d\"]\n", m.Clock.BaseMs/1000, m.Clock.IncrementMs/1000))
	}
	if term := terminationLabel(m.Status); term != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", term))
	}
	result := m.Result
	if result == "" {
		result = "*"
	}
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", result))

	for i := 0; i < len(m.MovesSAN); i += 2 {
		turn := (i / 2) + 1
		b.WriteString(fmt.Sprintf("%d. %s", turn, strings.TrimSpace(m.MovesSAN[i])))
		if i+1 < len(m.MovesSAN) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(m.MovesSAN[i+1]))
		}
		b.WriteString(" ")
	}
	b.WriteString(result)
	return b.String()
}

func seatLabel(s match.Seat) string {
	if s.Automated {
		return fmt.Sprintf("Bot L%d (%s)", s.Level, s.Style)
	}
	return "Player"
}

func terminationLabel(s match.Status) string {
	switch s {
	case match.StatusCheckmate:
		return "checkmate"
	case match.StatusDraw:
		return "draw"
	case match.StatusResignation:
		return "resignation"
	case match.StatusTimeout:
		return "time forfeit"
	default:
		return ""
	}
}
