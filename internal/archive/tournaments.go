package archive

import (
	"context"
	"time"

	"github.com/lib/pq"
)

// TournamentGame is an ongoing human game inside a tournament, as recorded
// by the surrounding web application. Read-only from this side.
type TournamentGame struct {
	ID         string
	White      string
	Black      string
	Tournament string
	StartedAt  time.Time
	UpdatedAt  time.Time
}

// OngoingTournamentGames lists live tournament games, most recently updated
// first. An empty allowList means every tournament qualifies.
func (r *Repository) OngoingTournamentGames(ctx context.Context, allowList []string) ([]TournamentGame, error) {
	if r == nil || r.db == nil {
		return nil, nil
	}

	q := `SELECT game_id, white_name, black_name, tournament_slug, started_at, updated_at
	        FROM tournament_games
	       WHERE status = 'ongoing'`
	args := []any{}
	if len(allowList) > 0 {
		q += ` AND tournament_slug = ANY($1)`
		args = append(args, pq.Array(allowList))
	}
	q += ` ORDER BY updated_at DESC`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TournamentGame
	for rows.Next() {
		var g TournamentGame
		if err := rows.Scan(&g.ID, &g.White, &g.Black, &g.Tournament, &g.StartedAt, &g.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// AnyLiveTournament reports whether at least one tournament is currently
// running, optionally restricted to the allow-list.
func (r *Repository) AnyLiveTournament(ctx context.Context, allowList []string) (bool, error) {
	if r == nil || r.db == nil {
		return false, nil
	}

	q := `SELECT EXISTS (
	        SELECT 1 FROM tournaments
	         WHERE status = 'live'`
	args := []any{}
	if len(allowList) > 0 {
		q += ` AND slug = ANY($1)`
		args = append(args, pq.Array(allowList))
	}
	q += `)`

	var live bool
	if err := r.db.QueryRowContext(ctx, q, args...).Scan(&live); err != nil {
		return false, err
	}
	return live, nil
}
