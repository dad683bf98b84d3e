package match

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	chess "github.com/corentings/chess/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rookline/livematch/internal/engine"
	"github.com/rookline/livematch/internal/heuristic"
	"github.com/rookline/livematch/internal/obslog"
	"github.com/rookline/livematch/internal/rules"
	"github.com/rookline/livematch/internal/tactics"
)

const (
	defaultAdvanceCadence = 800 * time.Millisecond
	defaultIdleCeiling    = 30 * time.Minute
	defaultGraceWindow    = 2 * time.Minute
	defaultThinkTimeMs    = 400

	// One internal retry against fresh state before a conflict surfaces.
	updateAttempts = 2
)

// Config tunes the manager's timing policies.
type Config struct {
	AdvanceCadence    time.Duration
	IdleCeiling       time.Duration
	GraceWindow       time.Duration
	EngineThinkTimeMs int
}

func (c Config) withDefaults() Config {
	if c.AdvanceCadence <= 0 {
		c.AdvanceCadence = defaultAdvanceCadence
	}
	if c.IdleCeiling <= 0 {
		c.IdleCeiling = defaultIdleCeiling
	}
	if c.GraceWindow <= 0 {
		c.GraceWindow = defaultGraceWindow
	}
	if c.EngineThinkTimeMs <= 0 {
		c.EngineThinkTimeMs = defaultThinkTimeMs
	}
	return c
}

// Manager owns every transition of match state. All writes go through the
// store's conditional update keyed on the version read, so concurrent
// submissions against the same match cannot both succeed against the same
// pre-move state.
type Manager struct {
	store    Store
	mover    engine.Source // nil when no engine binary is configured
	selector *heuristic.Selector
	archiver Archiver // nil when no database is configured
	cfg      Config
	now      func() time.Time
}

// Archiver receives terminal matches for durable storage. Failures are
// logged, never propagated: archiving must not fail a move.
type Archiver interface {
	SaveResult(ctx context.Context, m *Match) error
}

func NewManager(store Store, mover engine.Source, cfg Config) *Manager {
	return &Manager{
		store:    store,
		mover:    mover,
		selector: heuristic.NewSelector(),
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
}

// AttachArchiver wires a repository for persisting terminal results.
func (mgr *Manager) AttachArchiver(a Archiver) {
	if mgr != nil {
		mgr.archiver = a
	}
}

func (mgr *Manager) persistIfFinal(ctx context.Context, m *Match) {
	if mgr.archiver == nil || m == nil || !m.Status.Terminal() {
		return
	}
	if err := mgr.archiver.SaveResult(ctx, m); err != nil {
		obslog.L().Error("match_result_persist_failed",
			zap.String("match_id", m.ID), zap.Error(err))
		return
	}
	obslog.L().Info("match_result_persist",
		zap.String("match_id", m.ID),
		zap.String("status", string(m.Status)),
		zap.String("result", m.Result),
	)
}

// SeatSpec describes one side when creating a match.
type SeatSpec struct {
	Automated bool
	Level     int
	Style     heuristic.Style
}

type CreateParams struct {
	White       SeatSpec
	Black       SeatSpec
	BaseMs      int64
	IncrementMs int64
}

// CreateMatch sets up a fresh match at the starting position with full
// clocks. The returned record still carries the capability tokens so the
// caller can hand them to the players; views built later never do.
func (mgr *Manager) CreateMatch(ctx context.Context, p CreateParams) (*Match, error) {
	now := mgr.now()
	m := &Match{
		ID:         "m-" + uuid.NewString(),
		FEN:        chess.NewGame().FEN(),
		MovesUCI:   []string{},
		MovesSAN:   []string{},
		Turn:       White,
		WhiteSeat:  seatFromSpec(p.White),
		BlackSeat:  seatFromSpec(p.Black),
		Status:     StatusOngoing,
		Version:    0,
		CreatedAt:  now,
		LastMoveAt: now,
	}
	if p.BaseMs > 0 {
		m.Clock = Clock{
			BaseMs:      p.BaseMs,
			IncrementMs: p.IncrementMs,
			WhiteMs:     p.BaseMs,
			BlackMs:     p.BaseMs,
		}
	}

	if err := mgr.store.CreateMatch(ctx, m); err != nil {
		return nil, err
	}
	obslog.L().Info("match_create",
		zap.String("match_id", m.ID),
		zap.Bool("white_automated", m.WhiteSeat.Automated),
		zap.Bool("black_automated", m.BlackSeat.Automated),
		zap.Int64("base_ms", m.Clock.BaseMs),
	)
	return m.Clone(), nil
}

// CreateExhibition starts an automated-vs-automated match for display.
func (mgr *Manager) CreateExhibition(ctx context.Context, whiteStyle, blackStyle heuristic.Style, level int) (*Match, error) {
	return mgr.CreateMatch(ctx, CreateParams{
		White: SeatSpec{Automated: true, Level: level, Style: whiteStyle},
		Black: SeatSpec{Automated: true, Level: level, Style: blackStyle},
	})
}

func seatFromSpec(s SeatSpec) Seat {
	if s.Automated {
		style := heuristic.ParseStyle(string(s.Style))
		level := s.Level
		if level < 0 {
			level = 0
		}
		if level > 20 {
			level = 20
		}
		return Seat{Automated: true, Level: level, Style: style}
	}
	return Seat{Capability: uuid.NewString()}
}

// SubmitMove applies a human move identified by a capability token. If the
// opposing seat is automated and the match is still ongoing afterwards, a
// reply ply is obtained and applied before the result is returned, so the
// caller sees a single transition covering both plies.
func (mgr *Manager) SubmitMove(ctx context.Context, id, capability, from, to, promotion string) (*Match, error) {
	uci := buildUCI(from, to, promotion)
	if uci == "" {
		return nil, ErrIllegalMove
	}

	m, err := mgr.update(ctx, id, func(cur *Match) error {
		if cur.Status.Terminal() {
			return ErrGameOver
		}
		side, ok := cur.SeatByCapability(capability)
		if !ok {
			return ErrUnauthorized
		}
		if side != cur.Turn {
			return ErrInvalidTurn
		}

		now := mgr.now()
		if mgr.chargeClock(cur, side, now) {
			// Flag fell before the move could be considered. The submitted
			// move is discarded and the terminal state is stored.
			return nil
		}

		game, err := rules.Rebuild(cur.MovesUCI)
		if err != nil {
			return fmt.Errorf("rebuild match %s: %w", cur.ID, err)
		}
		if err := mgr.applyPly(cur, game, side, uci, now); err != nil {
			return err
		}

		if cur.Status == StatusOngoing && cur.Seat(cur.Turn).Automated {
			mgr.automatedReply(ctx, cur, game)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	obslog.L().Info("match_move",
		zap.String("match_id", m.ID),
		zap.String("uci", uci),
		zap.String("turn", string(m.Turn)),
		zap.String("status", string(m.Status)),
		zap.Int64("version", m.Version),
	)
	mgr.persistIfFinal(ctx, m)
	return m, nil
}

// Read returns the current state and, as a side effect, drives the policies
// that piggyback on reads: one heuristic ply when an idle automated side is
// to move, forced termination past the idle ceiling, and grace deletion of
// finished matches. Policy side effects are best-effort and never fail the
// read.
func (mgr *Manager) Read(ctx context.Context, id, viewerCapability string) (*View, error) {
	cur, err := mgr.store.GetMatch(ctx, id)
	if err != nil {
		return nil, err
	}
	now := mgr.now()

	if cur.Status.Terminal() && cur.EndedAt != nil && now.Sub(*cur.EndedAt) > mgr.cfg.GraceWindow {
		if err := mgr.store.DeleteMatch(ctx, id); err != nil {
			obslog.L().Warn("match_grace_delete_failed", zap.String("match_id", id), zap.Error(err))
		} else {
			obslog.L().Info("match_grace_delete", zap.String("match_id", id))
		}
		return nil, ErrNotFound
	}

	if cur.Status == StatusOngoing && now.Sub(cur.CreatedAt) > mgr.cfg.IdleCeiling {
		if updated, err := mgr.forceAge(ctx, cur, now); err == nil {
			cur = updated
		} else {
			obslog.L().Warn("match_age_failed", zap.String("match_id", id), zap.Error(err))
		}
	}

	if cur.Status == StatusOngoing && cur.Seat(cur.Turn).Automated && now.Sub(cur.LastMoveAt) > mgr.cfg.AdvanceCadence {
		if updated, err := mgr.advanceAutomated(ctx, cur); err == nil {
			cur = updated
		} else if errors.Is(err, ErrConflict) {
			// Another reader advanced it first; serve their result.
			if fresh, gerr := mgr.store.GetMatch(ctx, id); gerr == nil {
				cur = fresh
			}
		} else {
			obslog.L().Warn("match_advance_failed", zap.String("match_id", id), zap.Error(err))
		}
	}

	return buildView(cur, viewerCapability), nil
}

// OfferDraw records a standing draw offer from the caller's side. Any move
// by either side clears it.
func (mgr *Manager) OfferDraw(ctx context.Context, id, capability string) (*Match, error) {
	return mgr.update(ctx, id, func(cur *Match) error {
		side, ok := cur.SeatByCapability(capability)
		if !ok {
			return ErrUnauthorized
		}
		if cur.Status.Terminal() {
			return ErrGameOver
		}
		cur.DrawOfferBy = side
		return nil
	})
}

// AcceptDraw ends the match as agreed-drawn. Only the side opposite the
// standing offer may accept.
func (mgr *Manager) AcceptDraw(ctx context.Context, id, capability string) (*Match, error) {
	m, err := mgr.update(ctx, id, func(cur *Match) error {
		side, ok := cur.SeatByCapability(capability)
		if !ok {
			return ErrUnauthorized
		}
		if cur.Status.Terminal() {
			return ErrGameOver
		}
		if cur.DrawOfferBy == "" || cur.DrawOfferBy == side {
			return ErrInvalidTurn
		}
		now := mgr.now()
		cur.Status = StatusDraw
		cur.Result = ResultDraw
		cur.DrawOfferBy = ""
		cur.EndedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("match_draw_agreed", zap.String("match_id", m.ID))
	mgr.persistIfFinal(ctx, m)
	return m, nil
}

func (mgr *Manager) DeclineDraw(ctx context.Context, id, capability string) (*Match, error) {
	return mgr.update(ctx, id, func(cur *Match) error {
		side, ok := cur.SeatByCapability(capability)
		if !ok {
			return ErrUnauthorized
		}
		if cur.Status.Terminal() {
			return ErrGameOver
		}
		if cur.DrawOfferBy == side {
			return ErrInvalidTurn
		}
		cur.DrawOfferBy = ""
		return nil
	})
}

func (mgr *Manager) Resign(ctx context.Context, id, capability string) (*Match, error) {
	m, err := mgr.update(ctx, id, func(cur *Match) error {
		side, ok := cur.SeatByCapability(capability)
		if !ok {
			return ErrUnauthorized
		}
		if cur.Status.Terminal() {
			return ErrGameOver
		}
		now := mgr.now()
		cur.Status = StatusResignation
		cur.Result = ResultFor(side.Other())
		cur.DrawOfferBy = ""
		cur.EndedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("match_resign", zap.String("match_id", m.ID), zap.String("result", m.Result))
	mgr.persistIfFinal(ctx, m)
	return m, nil
}

// ForceEnd is the admin override. It bypasses legality and turn checks and
// stamps the given terminal status and result directly.
func (mgr *Manager) ForceEnd(ctx context.Context, id string, status Status, result string) (*Match, error) {
	if !status.Terminal() {
		return nil, fmt.Errorf("force end requires a terminal status, got %q", status)
	}
	switch result {
	case ResultWhiteWins, ResultBlackWins, ResultDraw:
	default:
		return nil, fmt.Errorf("unknown result %q", result)
	}
	m, err := mgr.update(ctx, id, func(cur *Match) error {
		if cur.Status.Terminal() {
			return ErrGameOver
		}
		now := mgr.now()
		cur.Status = status
		cur.Result = result
		cur.DrawOfferBy = ""
		cur.EndedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("match_force_end",
		zap.String("match_id", m.ID),
		zap.String("status", string(m.Status)),
		zap.String("result", m.Result),
	)
	mgr.persistIfFinal(ctx, m)
	return m, nil
}

// OngoingExhibition lists automated matches for the spotlight selector.
func (mgr *Manager) OngoingExhibition(ctx context.Context) ([]*Match, error) {
	return mgr.store.ListOngoingExhibition(ctx)
}

// update runs mutate against a fresh snapshot and writes the result back
// conditioned on the version read. A single conflict is retried against
// re-read state; a second conflict surfaces as ErrConflict.
func (mgr *Manager) update(ctx context.Context, id string, mutate func(cur *Match) error) (*Match, error) {
	var lastErr error
	for attempt := 0; attempt < updateAttempts; attempt++ {
		cur, err := mgr.store.GetMatch(ctx, id)
		if err != nil {
			return nil, err
		}
		readVersion := cur.Version

		next := cur.Clone()
		if err := mutate(next); err != nil {
			return nil, err
		}

		err = mgr.store.ConditionalUpdateMatch(ctx, id, readVersion, next)
		if errors.Is(err, ErrConflict) {
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}
		return next, nil
	}
	return nil, lastErr
}

// chargeClock bills elapsed wall time to side. Returns true when the flag
// fell, in which case the match has been transitioned to TIMEOUT and the
// pending move must be discarded.
func (mgr *Manager) chargeClock(m *Match, side Color, now time.Time) bool {
	if !m.Clock.Timed() {
		return false
	}
	elapsed := now.Sub(m.LastMoveAt).Milliseconds()
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := m.Clock.Remaining(side) - elapsed
	if remaining <= 0 {
		m.Clock.SetRemaining(side, 0)
		m.Status = StatusTimeout
		m.Result = ResultFor(side.Other())
		m.DrawOfferBy = ""
		m.EndedAt = &now
		obslog.L().Info("match_timeout",
			zap.String("match_id", m.ID),
			zap.String("flagged", string(side)),
			zap.String("result", m.Result),
		)
		return true
	}
	m.Clock.SetRemaining(side, remaining)
	return false
}

// applyPly pushes one validated move onto the match. The mover's clock must
// already have been charged; on success the configured increment is added
// back and the terminal check runs against the new position.
func (mgr *Manager) applyPly(m *Match, game *chess.Game, mover Color, uci string, now time.Time) error {
	mv, san, err := rules.Apply(game, uci)
	if err != nil {
		return ErrIllegalMove
	}

	m.MovesUCI = append(m.MovesUCI, mv.String())
	m.MovesSAN = append(m.MovesSAN, san)
	m.FEN = game.FEN()
	m.Turn = colorFrom(game.Position().Turn())
	m.DrawOfferBy = ""
	if m.Clock.Timed() {
		m.Clock.SetRemaining(mover, m.Clock.Remaining(mover)+m.Clock.IncrementMs)
	}
	m.LastMoveAt = now

	if result, method, over := rules.Terminal(game); over {
		m.Status = terminalStatus(method)
		m.Result = result
		m.EndedAt = &now
		if method == chess.Checkmate {
			c := tactics.Classify(game.Position(), rules.LastMove(game))
			m.Pattern = string(c.Pattern)
			m.Tags = tagStrings(c.Tags)
			obslog.L().Info("match_checkmate",
				zap.String("match_id", m.ID),
				zap.String("pattern", m.Pattern),
				zap.Strings("tags", m.Tags),
			)
		}
	}
	return nil
}

// automatedReply obtains and applies one ply for the automated side to
// move. The engine is preferred; any engine failure falls back to the
// heuristic selector, so a reply is produced whenever a legal move exists.
// Errors here are absorbed: they must never abort the already-applied
// human move.
func (mgr *Manager) automatedReply(ctx context.Context, m *Match, game *chess.Game) {
	side := m.Turn
	seat := m.Seat(side)

	uci, ok := mgr.engineMove(ctx, game, m.MovesUCI, seat.Level)
	now := mgr.now()
	if mgr.chargeClock(m, side, now) {
		return
	}
	if ok {
		if err := mgr.applyPly(m, game, side, uci, now); err == nil {
			return
		}
		obslog.L().Warn("engine_move_rejected",
			zap.String("match_id", m.ID), zap.String("uci", uci))
	}

	legal := rules.Legal(game)
	mv, ok := mgr.selector.PickMove(game.Position(), legal, seat.Style)
	if !ok {
		// No legal moves means the position was terminal, which the
		// previous ply's terminal check already handled.
		obslog.L().Warn("automated_reply_no_moves", zap.String("match_id", m.ID))
		return
	}
	if err := mgr.applyPly(m, game, side, mv.String(), mgr.now()); err != nil {
		obslog.L().Error("heuristic_move_rejected",
			zap.String("match_id", m.ID), zap.String("uci", mv.String()), zap.Error(err))
	}
}

func (mgr *Manager) engineMove(ctx context.Context, game *chess.Game, history []string, level int) (string, bool) {
	if mgr.mover == nil {
		return "", false
	}
	uci, ok := mgr.mover.BestMove(ctx, "startpos", history, engine.Config{
		ThinkTimeMs: mgr.cfg.EngineThinkTimeMs,
		Strength:    level,
	})
	if !ok {
		return "", false
	}
	if _, err := rules.Decode(game, uci); err != nil {
		return "", false
	}
	return uci, true
}

// advanceAutomated plays one heuristic ply for an automated seat left to
// move past the cadence. Exhibition matches progress this way between reads;
// it also covers an automated White waiting on its opening ply, so a
// human-vs-automated match never stalls from creation.
func (mgr *Manager) advanceAutomated(ctx context.Context, cur *Match) (*Match, error) {
	readVersion := cur.Version
	next := cur.Clone()

	side := next.Turn
	now := mgr.now()
	if next.Clock.Timed() && mgr.chargeClock(next, side, now) {
		return mgr.write(ctx, next, readVersion)
	}

	game, err := rules.Rebuild(next.MovesUCI)
	if err != nil {
		return nil, fmt.Errorf("rebuild match %s: %w", next.ID, err)
	}
	legal := rules.Legal(game)
	mv, ok := mgr.selector.PickMove(game.Position(), legal, next.Seat(side).Style)
	if !ok {
		return cur, nil
	}
	if err := mgr.applyPly(next, game, side, mv.String(), now); err != nil {
		return nil, err
	}
	m, err := mgr.write(ctx, next, readVersion)
	if err != nil {
		return nil, err
	}
	mgr.persistIfFinal(ctx, m)
	return m, nil
}

// forceAge terminates a match that outlived the idle ceiling. If the
// position already happens to be mate the proper result is credited,
// otherwise it is scored a draw.
func (mgr *Manager) forceAge(ctx context.Context, cur *Match, now time.Time) (*Match, error) {
	readVersion := cur.Version
	next := cur.Clone()

	next.Status = StatusDraw
	next.Result = ResultDraw
	if game, err := rules.Rebuild(next.MovesUCI); err == nil {
		if result, method, over := rules.Terminal(game); over {
			next.Status = terminalStatus(method)
			next.Result = result
		}
	}
	next.DrawOfferBy = ""
	next.EndedAt = &now

	m, err := mgr.write(ctx, next, readVersion)
	if err != nil {
		return nil, err
	}
	obslog.L().Info("match_aged_out",
		zap.String("match_id", m.ID),
		zap.String("status", string(m.Status)),
		zap.String("result", m.Result),
	)
	mgr.persistIfFinal(ctx, m)
	return m, nil
}

func (mgr *Manager) write(ctx context.Context, next *Match, readVersion int64) (*Match, error) {
	if err := mgr.store.ConditionalUpdateMatch(ctx, next.ID, readVersion, next); err != nil {
		return nil, err
	}
	return next, nil
}

func terminalStatus(method chess.Method) Status {
	if method == chess.Checkmate {
		return StatusCheckmate
	}
	return StatusDraw
}

func colorFrom(c chess.Color) Color {
	if c == chess.White {
		return White
	}
	return Black
}

func tagStrings(tags []tactics.Tag) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		out = append(out, string(t))
	}
	return out
}

func buildUCI(from, to, promotion string) string {
	from = strings.ToLower(strings.TrimSpace(from))
	to = strings.ToLower(strings.TrimSpace(to))
	promotion = strings.ToLower(strings.TrimSpace(promotion))
	if len(from) != 2 || len(to) != 2 {
		return ""
	}
	if len(promotion) > 1 {
		return ""
	}
	return from + to + promotion
}
