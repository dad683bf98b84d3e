package match

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rookline/livematch/internal/engine"
	"github.com/rookline/livematch/internal/heuristic"
)

var testEpoch = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// fakeClock drives the manager's time source so clock and cadence policies
// can be tested deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: testEpoch} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeSource returns a canned engine move.
type fakeSource struct {
	uci string
	ok  bool
}

func (f *fakeSource) BestMove(ctx context.Context, fen string, moves []string, cfg engine.Config) (string, bool) {
	return f.uci, f.ok
}

// flakyStore injects conflicts into the first n conditional updates.
type flakyStore struct {
	Store
	mu        sync.Mutex
	conflicts int
}

func (s *flakyStore) ConditionalUpdateMatch(ctx context.Context, id string, expectedVersion int64, m *Match) error {
	s.mu.Lock()
	inject := s.conflicts > 0
	if inject {
		s.conflicts--
	}
	s.mu.Unlock()
	if inject {
		return ErrConflict
	}
	return s.Store.ConditionalUpdateMatch(ctx, id, expectedVersion, m)
}

// recordingArchiver captures terminal matches handed to SaveResult.
type recordingArchiver struct {
	mu    sync.Mutex
	saved []*Match
}

func (a *recordingArchiver) SaveResult(ctx context.Context, m *Match) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.saved = append(a.saved, m.Clone())
	return nil
}

func newTestManager(t *testing.T, mover engine.Source, cfg Config) (*Manager, *fakeClock) {
	t.Helper()
	clk := newFakeClock()
	mgr := NewManager(NewMemoryStore(), mover, cfg)
	mgr.now = clk.Now
	return mgr, clk
}

func createHumanVsHuman(t *testing.T, mgr *Manager, baseMs, incMs int64) *Match {
	t.Helper()
	m, err := mgr.CreateMatch(context.Background(), CreateParams{
		White:       SeatSpec{},
		Black:       SeatSpec{},
		BaseMs:      baseMs,
		IncrementMs: incMs,
	})
	if err != nil {
		t.Fatalf("create match: %v", err)
	}
	return m
}

func TestCreateMatchInitialState(t *testing.T) {
	mgr, _ := newTestManager(t, nil, Config{})
	m := createHumanVsHuman(t, mgr, 60000, 1000)

	if m.Status != StatusOngoing {
		t.Fatalf("status = %q, want %q", m.Status, StatusOngoing)
	}
	if m.Turn != White {
		t.Fatalf("turn = %q, want white", m.Turn)
	}
	if m.Version != 0 {
		t.Fatalf("version = %d, want 0", m.Version)
	}
	if m.WhiteSeat.Capability == "" || m.BlackSeat.Capability == "" {
		t.Fatal("human seats must receive capability tokens")
	}
	if m.WhiteSeat.Capability == m.BlackSeat.Capability {
		t.Fatal("seat capabilities must differ")
	}
	if m.Clock.WhiteMs != 60000 || m.Clock.BlackMs != 60000 {
		t.Fatalf("clock = %+v, want both sides at base", m.Clock)
	}
}

func TestSubmitMoveAppliesAndCharges(t *testing.T) {
	mgr, clk := newTestManager(t, nil, Config{})
	m := createHumanVsHuman(t, mgr, 60000, 1000)

	clk.Advance(2 * time.Second)
	got, err := mgr.SubmitMove(context.Background(), m.ID, m.WhiteSeat.Capability, "e2", "e4", "")
	if err != nil {
		t.Fatalf("submit move: %v", err)
	}
	if len(got.MovesUCI) != 1 || got.MovesUCI[0] != "e2e4" {
		t.Fatalf("moves = %v, want [e2e4]", got.MovesUCI)
	}
	if got.MovesSAN[0] != "e4" {
		t.Fatalf("san = %q, want e4", got.MovesSAN[0])
	}
	if got.Turn != Black {
		t.Fatalf("turn = %q, want black", got.Turn)
	}
	// 2s charged, 1s increment returned.
	if got.Clock.WhiteMs != 59000 {
		t.Fatalf("white clock = %d, want 59000", got.Clock.WhiteMs)
	}
	if got.Clock.BlackMs != 60000 {
		t.Fatalf("black clock = %d, want untouched 60000", got.Clock.BlackMs)
	}
	if got.Version != 1 {
		t.Fatalf("version = %d, want 1", got.Version)
	}
	if got.DrawOfferBy != "" {
		t.Fatalf("draw offer = %q, want cleared", got.DrawOfferBy)
	}
}

func TestSubmitMoveAuthAndTurn(t *testing.T) {
	mgr, _ := newTestManager(t, nil, Config{})
	m := createHumanVsHuman(t, mgr, 0, 0)

	if _, err := mgr.SubmitMove(context.Background(), m.ID, "nope", "e2", "e4", ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if _, err := mgr.SubmitMove(context.Background(), m.ID, m.BlackSeat.Capability, "e7", "e5", ""); !errors.Is(err, ErrInvalidTurn) {
		t.Fatalf("err = %v, want ErrInvalidTurn", err)
	}
	if _, err := mgr.SubmitMove(context.Background(), "m-missing", m.WhiteSeat.Capability, "e2", "e4", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSubmitMoveIllegalLeavesMatchUntouched(t *testing.T) {
	mgr, _ := newTestManager(t, nil, Config{})
	m := createHumanVsHuman(t, mgr, 0, 0)

	if _, err := mgr.SubmitMove(context.Background(), m.ID, m.WhiteSeat.Capability, "e2", "e5", ""); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("err = %v, want ErrIllegalMove", err)
	}

	cur, err := mgr.store.GetMatch(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("get match: %v", err)
	}
	if len(cur.MovesUCI) != 0 {
		t.Fatalf("moves = %v, want none after rejected move", cur.MovesUCI)
	}
	if cur.Version != 0 {
		t.Fatalf("version = %d, want unchanged 0", cur.Version)
	}
}

func TestSubmitMoveMalformedSquares(t *testing.T) {
	mgr, _ := newTestManager(t, nil, Config{})
	m := createHumanVsHuman(t, mgr, 0, 0)

	for _, tc := range [][2]string{{"e2e4", ""}, {"e2", "e44"}, {"", "e4"}} {
		if _, err := mgr.SubmitMove(context.Background(), m.ID, m.WhiteSeat.Capability, tc[0], tc[1], ""); !errors.Is(err, ErrIllegalMove) {
			t.Fatalf("from=%q to=%q: err = %v, want ErrIllegalMove", tc[0], tc[1], err)
		}
	}
}

func TestSubmitMoveTimeoutPrecedesValidation(t *testing.T) {
	mgr, clk := newTestManager(t, nil, Config{})
	m := createHumanVsHuman(t, mgr, 5000, 0)

	// Even an illegal move submitted after the flag fell resolves as a
	// timeout, not an illegal-move rejection.
	clk.Advance(6 * time.Second)
	got, err := mgr.SubmitMove(context.Background(), m.ID, m.WhiteSeat.Capability, "e2", "e5", "")
	if err != nil {
		t.Fatalf("submit move: %v", err)
	}
	if got.Status != StatusTimeout {
		t.Fatalf("status = %q, want %q", got.Status, StatusTimeout)
	}
	if got.Result != ResultBlackWins {
		t.Fatalf("result = %q, want %q", got.Result, ResultBlackWins)
	}
	if len(got.MovesUCI) != 0 {
		t.Fatalf("moves = %v, want the flagged move discarded", got.MovesUCI)
	}
	if got.Clock.WhiteMs != 0 {
		t.Fatalf("white clock = %d, want 0", got.Clock.WhiteMs)
	}
	if got.EndedAt == nil {
		t.Fatal("EndedAt must be set on timeout")
	}

	// The match stays in the store in its terminal state.
	if _, err := mgr.SubmitMove(context.Background(), got.ID, m.BlackSeat.Capability, "e7", "e5", ""); !errors.Is(err, ErrGameOver) {
		t.Fatalf("err = %v, want ErrGameOver", err)
	}
}

func TestSubmitMoveHeuristicReply(t *testing.T) {
	mgr, _ := newTestManager(t, nil, Config{})
	m, err := mgr.CreateMatch(context.Background(), CreateParams{
		White: SeatSpec{},
		Black: SeatSpec{Automated: true, Level: 8, Style: heuristic.StyleAggressive},
	})
	if err != nil {
		t.Fatalf("create match: %v", err)
	}

	got, err := mgr.SubmitMove(context.Background(), m.ID, m.WhiteSeat.Capability, "e2", "e4", "")
	if err != nil {
		t.Fatalf("submit move: %v", err)
	}
	if len(got.MovesUCI) != 2 {
		t.Fatalf("moves = %v, want human ply plus automated reply", got.MovesUCI)
	}
	if got.Turn != White {
		t.Fatalf("turn = %q, want back to white", got.Turn)
	}
	if got.Status != StatusOngoing {
		t.Fatalf("status = %q, want ongoing", got.Status)
	}
	// Both plies land in a single conditional write.
	if got.Version != 1 {
		t.Fatalf("version = %d, want 1", got.Version)
	}
}

func TestSubmitMoveEngineReplyUsed(t *testing.T) {
	mgr, _ := newTestManager(t, &fakeSource{uci: "e7e5", ok: true}, Config{})
	m, err := mgr.CreateMatch(context.Background(), CreateParams{
		White: SeatSpec{},
		Black: SeatSpec{Automated: true, Level: 12},
	})
	if err != nil {
		t.Fatalf("create match: %v", err)
	}

	got, err := mgr.SubmitMove(context.Background(), m.ID, m.WhiteSeat.Capability, "e2", "e4", "")
	if err != nil {
		t.Fatalf("submit move: %v", err)
	}
	if len(got.MovesUCI) != 2 || got.MovesUCI[1] != "e7e5" {
		t.Fatalf("moves = %v, want engine reply e7e5", got.MovesUCI)
	}
}

func TestSubmitMoveEngineGarbageFallsBack(t *testing.T) {
	for _, bad := range []string{"zzzz", "e2e4", "(none)", ""} {
		mgr, _ := newTestManager(t, &fakeSource{uci: bad, ok: bad != ""}, Config{})
		m, err := mgr.CreateMatch(context.Background(), CreateParams{
			White: SeatSpec{},
			Black: SeatSpec{Automated: true, Level: 5},
		})
		if err != nil {
			t.Fatalf("create match: %v", err)
		}

		got, err := mgr.SubmitMove(context.Background(), m.ID, m.WhiteSeat.Capability, "e2", "e4", "")
		if err != nil {
			t.Fatalf("engine %q: submit move: %v", bad, err)
		}
		if len(got.MovesUCI) != 2 {
			t.Fatalf("engine %q: moves = %v, want heuristic fallback reply", bad, got.MovesUCI)
		}
		if got.MovesUCI[1] == "e2e4" {
			t.Fatalf("engine %q: reply %q is not legal for black", bad, got.MovesUCI[1])
		}
	}
}

func TestSubmitMoveRetriesOneConflict(t *testing.T) {
	clk := newFakeClock()
	flaky := &flakyStore{Store: NewMemoryStore(), conflicts: 1}
	mgr := NewManager(flaky, nil, Config{})
	mgr.now = clk.Now
	m := createHumanVsHuman(t, mgr, 0, 0)

	got, err := mgr.SubmitMove(context.Background(), m.ID, m.WhiteSeat.Capability, "e2", "e4", "")
	if err != nil {
		t.Fatalf("submit move after one conflict: %v", err)
	}
	if len(got.MovesUCI) != 1 {
		t.Fatalf("moves = %v, want one ply", got.MovesUCI)
	}
}

func TestSubmitMoveSurfacesRepeatedConflict(t *testing.T) {
	clk := newFakeClock()
	flaky := &flakyStore{Store: NewMemoryStore(), conflicts: 2}
	mgr := NewManager(flaky, nil, Config{})
	mgr.now = clk.Now
	m := createHumanVsHuman(t, mgr, 0, 0)

	if _, err := mgr.SubmitMove(context.Background(), m.ID, m.WhiteSeat.Capability, "e2", "e4", ""); !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestDrawOfferAcceptFlow(t *testing.T) {
	mgr, _ := newTestManager(t, nil, Config{})
	m := createHumanVsHuman(t, mgr, 0, 0)
	ctx := context.Background()

	// Nothing on the table yet: accepting is out of turn.
	if _, err := mgr.AcceptDraw(ctx, m.ID, m.BlackSeat.Capability); !errors.Is(err, ErrInvalidTurn) {
		t.Fatalf("accept without offer: err = %v, want ErrInvalidTurn", err)
	}

	offered, err := mgr.OfferDraw(ctx, m.ID, m.WhiteSeat.Capability)
	if err != nil {
		t.Fatalf("offer draw: %v", err)
	}
	if offered.DrawOfferBy != White {
		t.Fatalf("draw offer by %q, want white", offered.DrawOfferBy)
	}

	// The offerer cannot accept their own offer.
	if _, err := mgr.AcceptDraw(ctx, m.ID, m.WhiteSeat.Capability); !errors.Is(err, ErrInvalidTurn) {
		t.Fatalf("self accept: err = %v, want ErrInvalidTurn", err)
	}

	agreed, err := mgr.AcceptDraw(ctx, m.ID, m.BlackSeat.Capability)
	if err != nil {
		t.Fatalf("accept draw: %v", err)
	}
	if agreed.Status != StatusDraw || agreed.Result != ResultDraw {
		t.Fatalf("status=%q result=%q, want agreed draw", agreed.Status, agreed.Result)
	}
	if agreed.EndedAt == nil {
		t.Fatal("EndedAt must be set on agreement")
	}
}

func TestDrawOfferClearedByMoveAndDecline(t *testing.T) {
	mgr, _ := newTestManager(t, nil, Config{})
	m := createHumanVsHuman(t, mgr, 0, 0)
	ctx := context.Background()

	if _, err := mgr.OfferDraw(ctx, m.ID, m.BlackSeat.Capability); err != nil {
		t.Fatalf("offer draw: %v", err)
	}
	moved, err := mgr.SubmitMove(ctx, m.ID, m.WhiteSeat.Capability, "g1", "f3", "")
	if err != nil {
		t.Fatalf("submit move: %v", err)
	}
	if moved.DrawOfferBy != "" {
		t.Fatalf("draw offer = %q, want cleared by move", moved.DrawOfferBy)
	}

	if _, err := mgr.OfferDraw(ctx, m.ID, m.WhiteSeat.Capability); err != nil {
		t.Fatalf("offer draw: %v", err)
	}
	declined, err := mgr.DeclineDraw(ctx, m.ID, m.BlackSeat.Capability)
	if err != nil {
		t.Fatalf("decline draw: %v", err)
	}
	if declined.DrawOfferBy != "" {
		t.Fatalf("draw offer = %q, want cleared by decline", declined.DrawOfferBy)
	}
	if declined.Status != StatusOngoing {
		t.Fatalf("status = %q, want still ongoing", declined.Status)
	}
}

func TestResign(t *testing.T) {
	mgr, _ := newTestManager(t, nil, Config{})
	arch := &recordingArchiver{}
	mgr.AttachArchiver(arch)
	m := createHumanVsHuman(t, mgr, 0, 0)

	got, err := mgr.Resign(context.Background(), m.ID, m.BlackSeat.Capability)
	if err != nil {
		t.Fatalf("resign: %v", err)
	}
	if got.Status != StatusResignation {
		t.Fatalf("status = %q, want %q", got.Status, StatusResignation)
	}
	if got.Result != ResultWhiteWins {
		t.Fatalf("result = %q, want %q", got.Result, ResultWhiteWins)
	}
	if len(arch.saved) != 1 || arch.saved[0].ID != m.ID {
		t.Fatalf("archiver saw %d matches, want the resigned one", len(arch.saved))
	}

	if _, err := mgr.Resign(context.Background(), m.ID, m.WhiteSeat.Capability); !errors.Is(err, ErrGameOver) {
		t.Fatalf("second resign: err = %v, want ErrGameOver", err)
	}
}

func TestForceEndValidation(t *testing.T) {
	mgr, _ := newTestManager(t, nil, Config{})
	m := createHumanVsHuman(t, mgr, 0, 0)
	ctx := context.Background()

	if _, err := mgr.ForceEnd(ctx, m.ID, StatusOngoing, ResultDraw); err == nil {
		t.Fatal("expected error for non-terminal status")
	}
	if _, err := mgr.ForceEnd(ctx, m.ID, StatusDraw, "2-0"); err == nil {
		t.Fatal("expected error for unknown result")
	}

	got, err := mgr.ForceEnd(ctx, m.ID, StatusResignation, ResultBlackWins)
	if err != nil {
		t.Fatalf("force end: %v", err)
	}
	if got.Status != StatusResignation || got.Result != ResultBlackWins {
		t.Fatalf("status=%q result=%q, want forced values", got.Status, got.Result)
	}

	if _, err := mgr.ForceEnd(ctx, m.ID, StatusDraw, ResultDraw); !errors.Is(err, ErrGameOver) {
		t.Fatalf("force end twice: err = %v, want ErrGameOver", err)
	}
}

func TestReadAdvancesIdleExhibitionOnce(t *testing.T) {
	mgr, clk := newTestManager(t, nil, Config{AdvanceCadence: 500 * time.Millisecond})
	m, err := mgr.CreateExhibition(context.Background(), heuristic.StyleAggressive, heuristic.StylePositional, 6)
	if err != nil {
		t.Fatalf("create exhibition: %v", err)
	}

	clk.Advance(time.Second)
	v, err := mgr.Read(context.Background(), m.ID, "")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(v.MovesUCI) != 1 {
		t.Fatalf("moves = %v, want one cadence ply", v.MovesUCI)
	}

	// A second read inside the same cadence window observes, not advances.
	again, err := mgr.Read(context.Background(), m.ID, "")
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if len(again.MovesUCI) != 1 {
		t.Fatalf("moves = %v, want no further ply inside the window", again.MovesUCI)
	}

	clk.Advance(time.Second)
	third, err := mgr.Read(context.Background(), m.ID, "")
	if err != nil {
		t.Fatalf("third read: %v", err)
	}
	if len(third.MovesUCI) != 2 {
		t.Fatalf("moves = %v, want a second ply after the window", third.MovesUCI)
	}
}

func TestReadAdvancesAutomatedWhiteOpening(t *testing.T) {
	mgr, clk := newTestManager(t, nil, Config{AdvanceCadence: 500 * time.Millisecond})
	m, err := mgr.CreateMatch(context.Background(), CreateParams{
		White: SeatSpec{Automated: true, Level: 4, Style: heuristic.StyleBalanced},
		Black: SeatSpec{},
	})
	if err != nil {
		t.Fatalf("create match: %v", err)
	}

	// Nobody can submit for the automated White, so the read path must
	// play the opening ply once the cadence has elapsed.
	clk.Advance(time.Second)
	v, err := mgr.Read(context.Background(), m.ID, m.BlackSeat.Capability)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(v.MovesUCI) != 1 {
		t.Fatalf("moves = %v, want the automated opening ply", v.MovesUCI)
	}
	if v.Turn != Black {
		t.Fatalf("turn = %q, want black after White's opening", v.Turn)
	}

	again, err := mgr.Read(context.Background(), m.ID, "")
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if len(again.MovesUCI) != 1 {
		t.Fatalf("moves = %v, want no advance while the human is to move", again.MovesUCI)
	}
}

func TestReadDoesNotAdvanceHumanMatch(t *testing.T) {
	mgr, clk := newTestManager(t, nil, Config{AdvanceCadence: 100 * time.Millisecond})
	m := createHumanVsHuman(t, mgr, 0, 0)

	clk.Advance(time.Hour / 2)
	v, err := mgr.Read(context.Background(), m.ID, m.WhiteSeat.Capability)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(v.MovesUCI) != 0 {
		t.Fatalf("moves = %v, want none for a human match", v.MovesUCI)
	}
	if v.YourSide != White {
		t.Fatalf("your side = %q, want white for white's capability", v.YourSide)
	}
}

func TestReadForceAgesIdleMatch(t *testing.T) {
	mgr, clk := newTestManager(t, nil, Config{IdleCeiling: 30 * time.Minute})
	m := createHumanVsHuman(t, mgr, 0, 0)

	clk.Advance(31 * time.Minute)
	v, err := mgr.Read(context.Background(), m.ID, "")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if v.Status != StatusDraw {
		t.Fatalf("status = %q, want aged out to draw", v.Status)
	}
	if v.Result != ResultDraw {
		t.Fatalf("result = %q, want %q", v.Result, ResultDraw)
	}
}

func TestReadGraceDeletesFinishedMatch(t *testing.T) {
	mgr, clk := newTestManager(t, nil, Config{GraceWindow: 2 * time.Minute})
	m := createHumanVsHuman(t, mgr, 0, 0)
	ctx := context.Background()

	if _, err := mgr.Resign(ctx, m.ID, m.WhiteSeat.Capability); err != nil {
		t.Fatalf("resign: %v", err)
	}

	// Inside the grace window the terminal state is still served.
	clk.Advance(time.Minute)
	v, err := mgr.Read(ctx, m.ID, "")
	if err != nil {
		t.Fatalf("read inside grace: %v", err)
	}
	if v.Status != StatusResignation {
		t.Fatalf("status = %q, want resignation", v.Status)
	}

	clk.Advance(2 * time.Minute)
	if _, err := mgr.Read(ctx, m.ID, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("read past grace: err = %v, want ErrNotFound", err)
	}
	if _, err := mgr.store.GetMatch(ctx, m.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("store lookup: err = %v, want record gone", err)
	}
}

func TestViewNeverLeaksCapabilities(t *testing.T) {
	mgr, _ := newTestManager(t, nil, Config{})
	m := createHumanVsHuman(t, mgr, 0, 0)

	v, err := mgr.Read(context.Background(), m.ID, "")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if v.YourSide != "" {
		t.Fatalf("anonymous viewer got side %q", v.YourSide)
	}
	v2, err := mgr.Read(context.Background(), m.ID, m.BlackSeat.Capability)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if v2.YourSide != Black {
		t.Fatalf("your side = %q, want black", v2.YourSide)
	}
}
