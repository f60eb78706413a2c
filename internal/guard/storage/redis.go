package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisStore implements LiveStore on a redis client.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) LiveStore {
	return &RedisStore{client: client}
}

func liveKey(sessionID string) string {
	return "guard:session:" + sessionID
}

func (s *RedisStore) SaveLiveSession(ctx context.Context, session *GuardSession, ttl time.Duration) error {
	data, err := json.Marshal(session)
	if err != nil {
		return errors.Wrap(err, "failed to marshal session")
	}

	if ttl <= 0 {
		ttl = time.Minute
	}
	if err := s.client.Set(ctx, liveKey(session.SessionID), data, ttl).Err(); err != nil {
		return errors.Wrap(err, "failed to save live session")
	}
	return nil
}

func (s *RedisStore) GetLiveSession(ctx context.Context, sessionID string) (*GuardSession, error) {
	data, err := s.client.Get(ctx, liveKey(sessionID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrSessionNotFound
		}
		return nil, errors.Wrap(err, "failed to get live session")
	}

	var session GuardSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal live session")
	}
	return &session, nil
}

func (s *RedisStore) DeleteLiveSession(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, liveKey(sessionID)).Err(); err != nil {
		return errors.Wrap(err, "failed to delete live session")
	}
	return nil
}
