package inmemory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/briefer/session"
	"github.com/patrickmn/go-cache"
)

type Store struct {
	sessions *cache.Cache
	now      func() time.Time
}

func NewInMemorySessionStore() *Store {
	return &Store{sessions: cache.New(session.DefaultTTL, time.Minute), now: time.Now}
}

func (store *Store) Create(_ context.Context, tenant string, ttl time.Duration) (session.Session, error) {
	if ttl <= 0 {
		ttl = session.DefaultTTL
	}
	now := store.now()
	sess := session.Session{ID: uuid.NewString(), Tenant: tenant, CreatedAt: now, ExpiresAt: now.Add(ttl)}
	store.sessions.Set(sess.ID, sess, ttl)
	return sess, nil
}

func (store *Store) Validate(_ context.Context, id, tenant string, ttl time.Duration) (session.Session, error) {
	if ttl <= 0 {
		ttl = session.DefaultTTL
	}
	v, ok := store.sessions.Get(id)
	if !ok {
		return session.Session{}, session.ErrNotFound
	}
	sess := v.(session.Session)
	if sess.Tenant != tenant {
		return session.Session{}, session.ErrNotFound
	}
	sess.ExpiresAt = store.now().Add(ttl)
	store.sessions.Set(id, sess, ttl)
	return sess, nil
}

func (store *Store) Delete(_ context.Context, id string) error {
	store.sessions.Delete(id)
	return nil
}

var _ session.Store = (*Store)(nil)
