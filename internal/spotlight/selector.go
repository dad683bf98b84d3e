// Package spotlight picks which live matches to surface to public viewers.
// Selection is keyed to a fixed time window so every viewer polling within
// the same window sees the same slice, and the slice rotates at window
// boundaries.
package spotlight

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rookline/livematch/internal/archive"
	"github.com/rookline/livematch/internal/heuristic"
	"github.com/rookline/livematch/internal/match"
	"github.com/rookline/livematch/internal/msgcat"
	"github.com/rookline/livematch/internal/obslog"
)

const (
	defaultWindowSeconds   = 300
	defaultCount           = 2
	defaultExhibitionLevel = 6
)

// TournamentSource answers the two read queries the selector needs. The
// archive repository satisfies it; tests substitute fakes.
type TournamentSource interface {
	OngoingTournamentGames(ctx context.Context, allowList []string) ([]archive.TournamentGame, error)
	AnyLiveTournament(ctx context.Context, allowList []string) (bool, error)
}

type Config struct {
	Enabled        bool
	WindowSeconds  int
	Count          int
	TournamentOnly bool
	AllowList      []string

	// ExhibitionLevel is the engine strength given to bootstrap matches.
	ExhibitionLevel int
}

// Entry is one display slot: enough for a viewer-facing card and a link.
type Entry struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Kind      string    `json:"kind"` // "tournament" or "exhibition"
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Link      string    `json:"link"`
}

type Selector struct {
	cfg         Config
	tournaments TournamentSource // may be nil
	matches     *match.Manager
	cat         *msgcat.Catalog
	now         func() time.Time

	randMu sync.Mutex
	rand   *rand.Rand
}

func NewSelector(cfg Config, tournaments TournamentSource, matches *match.Manager, cat *msgcat.Catalog) *Selector {
	if cfg.WindowSeconds <= 0 {
		cfg.WindowSeconds = defaultWindowSeconds
	}
	if cfg.Count <= 0 {
		cfg.Count = defaultCount
	}
	if cfg.ExhibitionLevel <= 0 {
		cfg.ExhibitionLevel = defaultExhibitionLevel
	}
	return &Selector{
		cfg:         cfg,
		tournaments: tournaments,
		matches:     matches,
		cat:         cat,
		now:         time.Now,
		rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SelectForDisplay returns the current window's slice. enabled=false means
// the feature is administratively off; it is the only case that yields an
// empty list while eligible human games exist.
func (s *Selector) SelectForDisplay(ctx context.Context) (entries []Entry, enabled bool) {
	if !s.cfg.Enabled {
		return nil, false
	}

	if games := s.eligibleTournamentGames(ctx); len(games) > 0 {
		return s.rotate(games), true
	}
	return s.rotate(s.exhibitionEntries(ctx)), true
}

func (s *Selector) eligibleTournamentGames(ctx context.Context) []Entry {
	if s.tournaments == nil {
		return nil
	}
	if s.cfg.TournamentOnly {
		live, err := s.tournaments.AnyLiveTournament(ctx, s.cfg.AllowList)
		if err != nil {
			obslog.L().Warn("spotlight_tournament_gate_failed", zap.Error(err))
			return nil
		}
		if !live {
			return nil
		}
	}
	games, err := s.tournaments.OngoingTournamentGames(ctx, s.cfg.AllowList)
	if err != nil {
		obslog.L().Warn("spotlight_tournament_query_failed", zap.Error(err))
		return nil
	}
	entries := make([]Entry, 0, len(games))
	for _, g := range games {
		entries = append(entries, Entry{
			ID:        g.ID,
			Title:     s.tournamentTitle(g),
			Kind:      "tournament",
			StartedAt: g.StartedAt,
			UpdatedAt: g.UpdatedAt,
			Link:      "/tournaments/" + g.Tournament + "/games/" + g.ID,
		})
	}
	return entries
}

// exhibitionEntries lists ongoing automated matches, creating one on the
// spot when none exist and nudging each listed match forward so the
// spotlight never shows a frozen board.
func (s *Selector) exhibitionEntries(ctx context.Context) []Entry {
	ms, err := s.matches.OngoingExhibition(ctx)
	if err != nil {
		obslog.L().Warn("spotlight_exhibition_query_failed", zap.Error(err))
		return nil
	}
	if len(ms) == 0 {
		created, err := s.matches.CreateExhibition(ctx, s.randomStyle(), s.randomStyle(), s.cfg.ExhibitionLevel)
		if err != nil {
			obslog.L().Warn("spotlight_exhibition_create_failed", zap.Error(err))
			return nil
		}
		ms = []*match.Match{created}
	}

	entries := make([]Entry, 0, len(ms))
	for _, m := range ms {
		// Nudge: the read path advances idle exhibition play by one ply.
		// The entry is built from the returned view so its timestamps
		// reflect the state the viewer will fetch.
		v, err := s.matches.Read(ctx, m.ID, "")
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			ID:        v.ID,
			Title:     s.exhibitionTitle(v.White.Style, v.Black.Style),
			Kind:      "exhibition",
			StartedAt: v.CreatedAt,
			UpdatedAt: v.LastMoveAt,
			Link:      "/matches/" + v.ID,
		})
	}
	return entries
}

// rotate picks count entries starting at an offset derived from the
// current window index, so the slice is stable within a window and shifts
// deterministically at each boundary. The offset indexes entries in ID
// order: source order shifts as games receive moves, and two viewers in
// the same window must see the same slice.
func (s *Selector) rotate(entries []Entry) []Entry {
	if len(entries) == 0 {
		return nil
	}
	stable := append([]Entry(nil), entries...)
	sort.Slice(stable, func(i, j int) bool { return stable[i].ID < stable[j].ID })

	count := s.cfg.Count
	if count > len(stable) {
		count = len(stable)
	}
	window := s.now().Unix() / int64(s.cfg.WindowSeconds)
	start := int(window % int64(len(stable)))

	out := make([]Entry, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, stable[(start+i)%len(stable)])
	}
	return out
}

func (s *Selector) randomStyle() heuristic.Style {
	s.randMu.Lock()
	defer s.randMu.Unlock()
	return heuristic.Styles[s.rand.Intn(len(heuristic.Styles))]
}

func (s *Selector) tournamentTitle(g archive.TournamentGame) string {
	if s.cat != nil {
		if title, err := s.cat.Render("spotlight.tournament_title", map[string]string{
			"White": g.White, "Black": g.Black, "Tournament": g.Tournament,
		}); err == nil {
			return title
		}
	}
	return g.White + " vs " + g.Black
}

func (s *Selector) exhibitionTitle(white, black heuristic.Style) string {
	if s.cat != nil {
		if title, err := s.cat.Render("spotlight.exhibition_title", map[string]string{
			"WhiteStyle": string(white), "BlackStyle": string(black),
		}); err == nil {
			return title
		}
	}
	return "Exhibition match"
}
