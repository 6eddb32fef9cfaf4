// Package redisstore backs the chat message cache with redis. Entries
// are JSON blobs keyed per thread; invalidation is a plain delete.
package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lifecoachhq/coachapi/internal/chat"
	"github.com/redis/go-redis/v9"
)

const messageCacheTTL = 5 * time.Minute

type Store struct {
	rdb *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

func (s *Store) Close() error { return s.rdb.Close() }

func messagesKey(threadID string) string { return "chat:msgs:" + threadID }

// Get returns the cached first page for a thread. Any redis or decode
// problem is treated as a miss.
func (s *Store) Get(ctx context.Context, threadID string) ([]chat.Message, bool) {
	raw, err := s.rdb.Get(ctx, messagesKey(threadID)).Bytes()
	if err != nil {
		return nil, false
	}
	var msgs []chat.Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, false
	}
	return msgs, true
}

func (s *Store) Set(ctx context.Context, threadID string, msgs []chat.Message) {
	raw, err := json.Marshal(msgs)
	if err != nil {
		return
	}
	_ = s.rdb.Set(ctx, messagesKey(threadID), raw, messageCacheTTL).Err()
}

func (s *Store) Invalidate(ctx context.Context, threadID string) {
	_ = s.rdb.Del(ctx, messagesKey(threadID)).Err()
}
