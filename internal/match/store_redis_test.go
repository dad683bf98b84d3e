package match

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStoreFromClient(rdb)
}

func sampleMatch(id string, automated bool, lastMove time.Time) *Match {
	seat := Seat{Capability: "cap-" + id}
	if automated {
		seat = Seat{Automated: true, Level: 6}
	}
	return &Match{
		ID:         id,
		FEN:        "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1",
		MovesUCI:   []string{},
		MovesSAN:   []string{},
		Turn:       White,
		WhiteSeat:  seat,
		BlackSeat:  seat,
		Status:     StatusOngoing,
		CreatedAt:  lastMove,
		LastMoveAt: lastMove,
	}
}

func TestRedisStoreCreateGetRoundtrip(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	m := sampleMatch("m-rt", false, testEpoch)
	if err := s.CreateMatch(ctx, m); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.GetMatch(ctx, "m-rt")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != m.ID || got.FEN != m.FEN || got.Turn != White {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}
	if got.WhiteSeat.Capability != m.WhiteSeat.Capability {
		t.Fatalf("capability = %q, want %q", got.WhiteSeat.Capability, m.WhiteSeat.Capability)
	}

	if _, err := s.GetMatch(ctx, "m-absent"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRedisStoreConditionalUpdate(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	m := sampleMatch("m-cas", false, testEpoch)
	if err := s.CreateMatch(ctx, m); err != nil {
		t.Fatalf("create: %v", err)
	}

	next := m.Clone()
	next.MovesUCI = append(next.MovesUCI, "e2e4")
	if err := s.ConditionalUpdateMatch(ctx, m.ID, 0, next); err != nil {
		t.Fatalf("conditional update: %v", err)
	}
	if next.Version != 1 {
		t.Fatalf("version = %d, want bumped to 1", next.Version)
	}

	got, err := s.GetMatch(ctx, m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Version != 1 || len(got.MovesUCI) != 1 {
		t.Fatalf("stored version=%d moves=%v, want updated state", got.Version, got.MovesUCI)
	}

	// A writer still holding the old version loses.
	stale := m.Clone()
	stale.MovesUCI = append(stale.MovesUCI, "d2d4")
	if err := s.ConditionalUpdateMatch(ctx, m.ID, 0, stale); !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	got, err = s.GetMatch(ctx, m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.MovesUCI[0] != "e2e4" {
		t.Fatalf("moves = %v, stale write must not land", got.MovesUCI)
	}

	if err := s.ConditionalUpdateMatch(ctx, "m-absent", 0, next); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRedisStoreDelete(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	m := sampleMatch("m-del", true, testEpoch)
	if err := s.CreateMatch(ctx, m); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.DeleteMatch(ctx, m.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetMatch(ctx, m.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound after delete", err)
	}

	// The exhibition index forgets deleted matches.
	list, err := s.ListOngoingExhibition(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("list = %v, want empty", list)
	}
}

func TestRedisStoreListOngoingExhibition(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	older := sampleMatch("m-old", true, testEpoch)
	newer := sampleMatch("m-new", true, testEpoch.Add(time.Minute))
	human := sampleMatch("m-human", false, testEpoch.Add(time.Hour))
	done := sampleMatch("m-done", true, testEpoch.Add(2*time.Hour))
	done.Status = StatusCheckmate

	for _, m := range []*Match{older, newer, human, done} {
		if err := s.CreateMatch(ctx, m); err != nil {
			t.Fatalf("create %s: %v", m.ID, err)
		}
	}

	list, err := s.ListOngoingExhibition(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("list has %d entries, want the two ongoing exhibitions", len(list))
	}
	if list[0].ID != "m-new" || list[1].ID != "m-old" {
		t.Fatalf("order = [%s %s], want most recent first", list[0].ID, list[1].ID)
	}
}
