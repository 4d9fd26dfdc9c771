package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	backend "github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces checkpoint keys.
const DefaultRedisPrefix = "turngraph:checkpoint:"

// RedisStore persists checkpoints in Redis. Each thread is one string key
// at prefix+"t:"+threadID; a sorted set at prefix+"threads" indexes threads
// by last update. Thread keys and the index never share a name, whatever
// the thread id.
type RedisStore struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisTTL expires idle threads after ttl. Zero keeps them forever.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithRedisPrefix sets the key prefix.
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore connects to the Redis server at address.
func NewRedisStore(address, password string, db int, opts ...RedisOption) *RedisStore {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewRedisStoreFromClient(client, opts...)
}

// NewRedisStoreFromClient wraps an existing client. Close closes it.
func NewRedisStoreFromClient(client *backend.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: DefaultRedisPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(threadID string) string {
	return s.prefix + "t:" + threadID
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "threads"
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, threadID string, data []byte) error {
	if threadID == "" {
		return ErrEmptyThreadID
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(threadID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{
		Score:  float64(time.Now().UTC().UnixMilli()),
		Member: threadID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return s.wrap("save checkpoint", err)
	}
	return nil
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, threadID string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(threadID)).Bytes()
	if errors.Is(err, backend.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, s.wrap("load checkpoint", err)
	}
	return data, nil
}

// List implements Store. Index entries whose key has expired are pruned.
func (s *RedisStore) List(ctx context.Context) ([]Info, error) {
	entries, err := s.client.ZRangeWithScores(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, s.wrap("list checkpoints", err)
	}

	pipe := s.client.Pipeline()
	sizes := make([]*backend.IntCmd, len(entries))
	for i, e := range entries {
		sizes[i] = pipe.StrLen(ctx, s.key(memberString(e.Member)))
	}
	if len(entries) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, s.wrap("list checkpoints", err)
		}
	}

	infos := []Info{}
	var expired []any
	for i, e := range entries {
		id := memberString(e.Member)
		size := sizes[i].Val()
		if size == 0 {
			expired = append(expired, id)
			continue
		}
		infos = append(infos, Info{
			ThreadID:  id,
			UpdatedAt: time.UnixMilli(int64(e.Score)).UTC(),
			Size:      size,
		})
	}
	if len(expired) > 0 {
		if err := s.client.ZRem(ctx, s.indexKey(), expired...).Err(); err != nil {
			return nil, s.wrap("prune index", err)
		}
	}
	return infos, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, threadID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(threadID))
	pipe.ZRem(ctx, s.indexKey(), threadID)
	if _, err := pipe.Exec(ctx); err != nil {
		return s.wrap("delete checkpoint", err)
	}
	return nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) wrap(op string, err error) error {
	if errors.Is(err, backend.ErrClosed) {
		return ErrStoreClosed
	}
	return fmt.Errorf("%s: %w", op, err)
}

func memberString(m any) string {
	switch v := m.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprint(v)
	}
}
