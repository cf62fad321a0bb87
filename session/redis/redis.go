package redis_session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/briefer/session"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "briefer:mcp:session:"

// Store keeps sessions in Redis so several server replicas can share them.
type Store struct {
	client *redis.Client
}

func NewRedisSessionStore(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Create(ctx context.Context, tenant string, ttl time.Duration) (session.Session, error) {
	if ttl <= 0 {
		ttl = session.DefaultTTL
	}
	now := time.Now().UTC()
	sess := session.Session{ID: uuid.NewString(), Tenant: tenant, CreatedAt: now, ExpiresAt: now.Add(ttl)}
	data, err := json.Marshal(sess)
	if err != nil {
		return session.Session{}, err
	}
	if err := s.client.Set(ctx, keyPrefix+sess.ID, data, ttl).Err(); err != nil {
		return session.Session{}, err
	}
	return sess, nil
}

func (s *Store) Validate(ctx context.Context, id, tenant string, ttl time.Duration) (session.Session, error) {
	if ttl <= 0 {
		ttl = session.DefaultTTL
	}
	val, err := s.client.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return session.Session{}, session.ErrNotFound
	}
	if err != nil {
		return session.Session{}, err
	}
	var sess session.Session
	if err := json.Unmarshal(val, &sess); err != nil {
		return session.Session{}, err
	}
	if sess.Tenant != tenant {
		return session.Session{}, session.ErrNotFound
	}
	if err := s.client.Expire(ctx, keyPrefix+id, ttl).Err(); err != nil {
		return session.Session{}, err
	}
	sess.ExpiresAt = time.Now().UTC().Add(ttl)
	return sess, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, keyPrefix+id).Err()
}

var _ session.Store = (*Store)(nil)
