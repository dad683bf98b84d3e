// Package engine turns a pool of UCI processes into a best-effort move
// source. Every process failure is absorbed into "no move available" so
// callers can fall back to the heuristic selector instead of blocking a
// live match on a crashed binary.
package engine

import (
	"context"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/rookline/livematch/internal/engine/uci"
	"github.com/rookline/livematch/internal/obslog"
)

const (
	defaultThinkTimeMs = 400
	defaultHashMB      = 64
	maxRequestTimeout  = 10 * time.Second
)

// Config tunes a single move request.
type Config struct {
	ThinkTimeMs int
	Strength    int // 0 weakest .. 20 full strength
}

// Source produces moves for automated seats. Implementations never return
// an error: ok=false means the caller should pick a move some other way.
type Source interface {
	BestMove(ctx context.Context, fen string, moves []string, cfg Config) (string, bool)
}

// UCISource backs Source with pooled Stockfish-compatible processes.
type UCISource struct {
	pool *uci.Pool
}

func NewUCISource(binaryPath string) (*UCISource, error) {
	pool, err := uci.NewPool(uci.PoolConfig{BinaryPath: binaryPath})
	if err != nil {
		return nil, err
	}
	return &UCISource{pool: pool}, nil
}

// BestMove asks a pooled session for the best move in the given position.
// Any failure, from spawn errors to timeouts to garbage output, yields
// ok=false. The request is always bounded so a wedged engine cannot stall
// the match loop.
func (s *UCISource) BestMove(ctx context.Context, fen string, moves []string, cfg Config) (string, bool) {
	if cfg.ThinkTimeMs <= 0 {
		cfg.ThinkTimeMs = defaultThinkTimeMs
	}
	if cfg.Strength < 0 {
		cfg.Strength = 0
	}
	if cfg.Strength > 20 {
		cfg.Strength = 20
	}

	reqCtx, cancel := context.WithTimeout(ctx, maxRequestTimeout)
	defer cancel()

	opt := uci.Options{
		Threads:  threadsPerSession(),
		Strength: cfg.Strength,
		HashMB:   defaultHashMB,
	}

	session, err := s.pool.Acquire(reqCtx, opt)
	if err != nil {
		obslog.L().Warn("engine acquire failed", zap.Error(err))
		return "", false
	}
	var releaseErr error
	defer func() {
		s.pool.Release(session, releaseErr)
	}()

	if err := session.NewGame(reqCtx); err != nil {
		releaseErr = err
		obslog.L().Warn("engine new game failed", zap.Error(err))
		return "", false
	}

	move, err := session.BestMove(reqCtx, fen, moves, uci.Limits{MoveTimeMillis: cfg.ThinkTimeMs})
	if err != nil {
		releaseErr = err
		obslog.L().Warn("engine search failed", zap.Error(err))
		return "", false
	}
	if !looksLikeUCIMove(move) {
		releaseErr = nil
		obslog.L().Warn("engine returned malformed move", zap.String("move", move))
		return "", false
	}
	return move, true
}

func (s *UCISource) Close() error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Close()
}

func threadsPerSession() int {
	if runtime.NumCPU() >= 4 {
		return 2
	}
	return 1
}

// looksLikeUCIMove checks coordinate-notation shape, e.g. e2e4 or e7e8q.
// Legality is the rules layer's job.
func looksLikeUCIMove(move string) bool {
	if len(move) != 4 && len(move) != 5 {
		return false
	}
	if move[0] < 'a' || move[0] > 'h' || move[2] < 'a' || move[2] > 'h' {
		return false
	}
	if move[1] < '1' || move[1] > '8' || move[3] < '1' || move[3] > '8' {
		return false
	}
	if len(move) == 5 {
		switch move[4] {
		case 'q', 'r', 'b', 'n':
		default:
			return false
		}
	}
	return true
}
