// Package conversation persists chat transcripts per user and degrades to
// empty results when the backing store is unreachable.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"harmoni/internal/models"
	"harmoni/internal/redis"

	goredis "github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound covers both missing conversations and conversations owned
	// by another user.
	ErrNotFound = errors.New("conversation not found")
	// ErrInvalidConversation is returned for requests missing required fields.
	ErrInvalidConversation = errors.New("invalid conversation")
)

// DefaultTTL is the rolling expiry applied on every save.
const DefaultTTL = 30 * 24 * time.Hour

// Store is the persistence contract for conversations.
type Store interface {
	Save(ctx context.Context, userID string, conv *models.Conversation) (*models.Conversation, error)
	Get(ctx context.Context, userID, id string) (*models.Conversation, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]*models.Conversation, error)
	Delete(ctx context.Context, userID, id string) (bool, error)
	Ping(ctx context.Context) error
}

// RedisStore keeps each conversation as JSON under chat:<id>, with a per-user
// membership set and a recency-ordered sorted set.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore builds a store with the given rolling TTL (DefaultTTL when <= 0).
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl, now: time.Now}
}

func chatKey(id string) string          { return "chat:" + id }
func userChatsKey(userID string) string { return "user_chats:" + userID }
func chatListKey(userID string) string  { return "chat_list:" + userID }

// Save upserts conv for userID, stamping owner and last-updated time.
func (s *RedisStore) Save(ctx context.Context, userID string, conv *models.Conversation) (*models.Conversation, error) {
	if conv == nil || conv.ID == "" || userID == "" {
		return nil, ErrInvalidConversation
	}
	rdb := s.client.Raw()
	if rdb == nil {
		return nil, redis.ErrNotInitialized
	}

	existing, err := s.load(ctx, conv.ID)
	switch {
	case err == nil:
		if existing.UserID != userID {
			return nil, ErrNotFound
		}
	case errors.Is(err, ErrNotFound):
	default:
		return nil, err
	}

	stored := *conv
	stored.UserID = userID
	stored.LastUpdated = s.now().UTC()
	if stored.CreatedAt.IsZero() {
		if existing != nil && !existing.CreatedAt.IsZero() {
			stored.CreatedAt = existing.CreatedAt
		} else {
			stored.CreatedAt = stored.LastUpdated
		}
	}
	if stored.Messages == nil {
		stored.Messages = []*models.Message{}
	}

	payload, err := json.Marshal(&stored)
	if err != nil {
		return nil, fmt.Errorf("encode conversation: %w", err)
	}

	_, err = rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, chatKey(stored.ID), payload, s.ttl)
		pipe.SAdd(ctx, userChatsKey(userID), stored.ID)
		pipe.Expire(ctx, userChatsKey(userID), s.ttl)
		pipe.ZAdd(ctx, chatListKey(userID), goredis.Z{
			Score:  float64(stored.LastUpdated.UnixMilli()),
			Member: stored.ID,
		})
		pipe.Expire(ctx, chatListKey(userID), s.ttl)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("save conversation: %w", err)
	}
	return &stored, nil
}

// Get returns the conversation only when userID owns it.
func (s *RedisStore) Get(ctx context.Context, userID, id string) (*models.Conversation, error) {
	if userID == "" || id == "" {
		return nil, ErrInvalidConversation
	}
	conv, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, ErrNotFound
	}
	return conv, nil
}

// ListForUser returns up to limit conversations, most recently updated first.
// Index entries whose record has expired are skipped.
func (s *RedisStore) ListForUser(ctx context.Context, userID string, limit int) ([]*models.Conversation, error) {
	if userID == "" {
		return nil, ErrInvalidConversation
	}
	if limit <= 0 {
		return []*models.Conversation{}, nil
	}
	rdb := s.client.Raw()
	if rdb == nil {
		return nil, redis.ErrNotInitialized
	}

	ids, err := rdb.ZRevRange(ctx, chatListKey(userID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list conversation ids: %w", err)
	}
	out := make([]*models.Conversation, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = chatKey(id)
	}
	values, err := rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load conversations: %w", err)
	}
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var conv models.Conversation
		if err := json.Unmarshal([]byte(raw), &conv); err != nil {
			continue
		}
		if conv.UserID != userID {
			continue
		}
		out = append(out, &conv)
	}
	return out, nil
}

// Delete removes an owned conversation and its index entries. It reports
// false when the conversation is missing or owned by someone else.
func (s *RedisStore) Delete(ctx context.Context, userID, id string) (bool, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidConversation) {
			return false, nil
		}
		return false, err
	}
	_, err := s.client.Raw().TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, chatKey(id))
		pipe.SRem(ctx, userChatsKey(userID), id)
		pipe.ZRem(ctx, chatListKey(userID), id)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete conversation: %w", err)
	}
	return true, nil
}

// Ping checks that redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *RedisStore) load(ctx context.Context, id string) (*models.Conversation, error) {
	raw, err := s.client.Get(ctx, chatKey(id))
	if err != nil {
		if errors.Is(err, redis.ErrCacheMiss) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	var conv models.Conversation
	if err := json.Unmarshal([]byte(raw), &conv); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}
	return &conv, nil
}
