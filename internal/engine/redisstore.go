package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/celerix-dev/celerix-leads/pkg/schema"
)

// RedisStore keeps each lead as a JSON string and the insertion order in a list.
//
//	<prefix>:lead:<id>  -> lead JSON
//	<prefix>:order      -> [id, id, ...]
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	clock  *clock
	mu     sync.Mutex
}

// OpenRedis connects to the server named by url (redis://...).
func OpenRedis(ctx context.Context, url, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	return NewRedisStore(ctx, redis.NewClient(opts), prefix)
}

// NewRedisStore wraps an existing client. The store owns the client from now on.
func NewRedisStore(ctx context.Context, rdb *redis.Client, prefix string) (*RedisStore, error) {
	if prefix == "" {
		prefix = "celerix:leads"
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	s := &RedisStore{rdb: rdb, prefix: prefix, clock: newClock(nil)}

	lastID, err := rdb.LIndex(ctx, s.orderKey(), -1).Result()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		_ = rdb.Close()
		return nil, fmt.Errorf("read latest lead: %w", err)
	default:
		if last, err := s.GetByID(ctx, lastID); err == nil {
			s.clock.observe(last.Timestamp)
		}
	}
	return s, nil
}

func (s *RedisStore) orderKey() string        { return s.prefix + ":order" }
func (s *RedisStore) leadKey(id string) string { return s.prefix + ":lead:" + id }

func (s *RedisStore) Create(ctx context.Context, in schema.LeadInput) (schema.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lead := in.Lead(newID(), s.clock.next())
	data, err := json.Marshal(lead)
	if err != nil {
		return schema.Lead{}, err
	}
	// MULTI/EXEC: readers never see the id in the order list without its record.
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.leadKey(lead.ID), data, 0)
		pipe.RPush(ctx, s.orderKey(), lead.ID)
		return nil
	})
	if err != nil {
		return schema.Lead{}, fmt.Errorf("store lead: %w", err)
	}
	return lead, nil
}

func (s *RedisStore) ListAll(ctx context.Context) ([]schema.Lead, error) {
	ids, err := s.rdb.LRange(ctx, s.orderKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list lead ids: %w", err)
	}
	if len(ids) == 0 {
		return []schema.Lead{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.leadKey(id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load leads: %w", err)
	}

	out := make([]schema.Lead, 0, len(vals))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("lead %s is listed but missing", ids[i])
		}
		var l schema.Lead
		if err := json.Unmarshal([]byte(raw), &l); err != nil {
			return nil, fmt.Errorf("decode lead %s: %w", ids[i], err)
		}
		out = append(out, l)
	}
	return out, nil
}

func (s *RedisStore) GetByID(ctx context.Context, id string) (schema.Lead, error) {
	raw, err := s.rdb.Get(ctx, s.leadKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return schema.Lead{}, schema.ErrLeadNotFound
	}
	if err != nil {
		return schema.Lead{}, fmt.Errorf("get lead %s: %w", id, err)
	}
	var l schema.Lead
	if err := json.Unmarshal(raw, &l); err != nil {
		return schema.Lead{}, fmt.Errorf("decode lead %s: %w", id, err)
	}
	return l, nil
}

func (s *RedisStore) Count(ctx context.Context) (int, error) {
	n, err := s.rdb.LLen(ctx, s.orderKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("count leads: %w", err)
	}
	return int(n), nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
