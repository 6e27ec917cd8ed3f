package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/tadcs/certportal/internal/domain"
)

const sessionKeyPrefix = "certportal:session:"

// RedisSessionStore keeps admin sessions in redis with a TTL matching the
// session expiry.
type RedisSessionStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisSessionStore(client redis.UniversalClient) *RedisSessionStore {
	return &RedisSessionStore{
		client: client,
		prefix: sessionKeyPrefix,
	}
}

func (s *RedisSessionStore) Save(ctx context.Context, session domain.AdminSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return errors.New("session already expired")
	}

	if err := s.client.Set(ctx, s.prefix+session.Token, data, ttl).Err(); err != nil {
		return storageError("save session", err)
	}
	return nil
}

func (s *RedisSessionStore) Get(ctx context.Context, token string) (domain.AdminSession, error) {
	data, err := s.client.Get(ctx, s.prefix+token).Bytes()
	if err == redis.Nil {
		return domain.AdminSession{}, domain.NotFoundError{Resource: "session"}
	}
	if err != nil {
		return domain.AdminSession{}, storageError("get session", err)
	}

	var session domain.AdminSession
	if err := json.Unmarshal(data, &session); err != nil {
		return domain.AdminSession{}, errors.Wrap(err, "decode session")
	}
	return session, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.prefix+token).Err(); err != nil {
		return storageError("delete session", err)
	}
	return nil
}

// MemorySessionStore is the single-instance fallback used when no redis is
// configured.
type MemorySessionStore struct {
	cache *cache.Cache
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		cache: cache.New(domain.SessionTTL, 10*time.Minute),
	}
}

func (s *MemorySessionStore) Save(_ context.Context, session domain.AdminSession) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return errors.New("session already expired")
	}
	s.cache.Set(session.Token, session, ttl)
	return nil
}

func (s *MemorySessionStore) Get(_ context.Context, token string) (domain.AdminSession, error) {
	v, ok := s.cache.Get(token)
	if !ok {
		return domain.AdminSession{}, domain.NotFoundError{Resource: "session"}
	}
	return v.(domain.AdminSession), nil
}

func (s *MemorySessionStore) Delete(_ context.Context, token string) error {
	s.cache.Delete(token)
	return nil
}
