package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Records carry a generous TTL as a safety net behind grace deletion, so
// an unread finished match cannot linger forever.
const redisMatchTTL = 48 * time.Hour

// RedisStore keeps match state in Redis and implements the conditional
// update with a WATCH transaction on the match key.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(redisURL string) (*RedisStore, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for match store")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

// NewRedisStoreFromClient wires an existing client, used by tests.
func NewRedisStoreFromClient(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func (s *RedisStore) GetMatch(ctx context.Context, id string) (*Match, error) {
	raw, err := s.rdb.Get(ctx, matchKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var m Match
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *RedisStore) CreateMatch(ctx context.Context, m *Match) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, matchKey(m.ID), raw, redisMatchTTL).Err(); err != nil {
		return err
	}
	if m.Exhibition() {
		if err := s.rdb.SAdd(ctx, idxExhibitionKey, m.ID).Err(); err != nil {
			return err
		}
		_ = s.rdb.Expire(ctx, idxExhibitionKey, redisMatchTTL).Err()
	}
	return nil
}

// ConditionalUpdateMatch writes m only if the stored version still equals
// expectedVersion. The version check runs inside a WATCH transaction so a
// concurrent writer aborts the pipeline rather than being overwritten.
func (s *RedisStore) ConditionalUpdateMatch(ctx context.Context, id string, expectedVersion int64, m *Match) error {
	key := matchKey(id)

	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var cur Match
		if err := json.Unmarshal(raw, &cur); err != nil {
			return err
		}
		if cur.Version != expectedVersion {
			return ErrConflict
		}

		next := m.Clone()
		next.Version = expectedVersion + 1
		newRaw, err := json.Marshal(next)
		if err != nil {
			return err
		}

		pipe := tx.TxPipeline()
		pipe.Set(ctx, key, newRaw, redisMatchTTL)
		_, err = pipe.Exec(ctx)
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return ErrConflict
	}
	if err != nil {
		return err
	}
	m.Version = expectedVersion + 1
	return nil
}

func (s *RedisStore) DeleteMatch(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, matchKey(id)).Err(); err != nil {
		return err
	}
	_ = s.rdb.SRem(ctx, idxExhibitionKey, id).Err()
	return nil
}

func (s *RedisStore) ListOngoingExhibition(ctx context.Context) ([]*Match, error) {
	ids, err := s.rdb.SMembers(ctx, idxExhibitionKey).Result()
	if err != nil {
		return nil, err
	}
	var out []*Match
	for _, id := range ids {
		m, err := s.GetMatch(ctx, id)
		if errors.Is(err, ErrNotFound) {
			_ = s.rdb.SRem(ctx, idxExhibitionKey, id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		if m.Status != StatusOngoing {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastMoveAt.After(out[j].LastMoveAt) })
	return out, nil
}

const idxExhibitionKey = "match:index:exhibition"

func matchKey(id string) string { return "match:state:" + strings.TrimSpace(id) }

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
