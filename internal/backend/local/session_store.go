package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/learnhub/internal/backend"
)

// SessionStore persists the current client's session between restarts, the
// way a browser keeps its auth token in local storage.
type SessionStore interface {
	// Load returns nil without error when nothing is stored.
	Load(ctx context.Context) (*backend.Session, error)
	Save(ctx context.Context, s *backend.Session) error
	Clear(ctx context.Context) error
}

type memorySessionStore struct {
	mu      sync.Mutex
	session *backend.Session
}

func NewMemorySessionStore() SessionStore { return &memorySessionStore{} }

func (m *memorySessionStore) Load(ctx context.Context) (*backend.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, nil
	}
	s := *m.session
	return &s, nil
}

func (m *memorySessionStore) Save(ctx context.Context, s *backend.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s == nil {
		m.session = nil
		return nil
	}
	cp := *s
	m.session = &cp
	return nil
}

func (m *memorySessionStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.session = nil
	m.mu.Unlock()
	return nil
}

type redisSessionStore struct {
	rdb *goredis.Client
	key string
	ttl time.Duration
}

// NewRedisSessionStore keeps the session under "learnhub:session:<clientKey>"
// and expires it together with the refresh token.
func NewRedisSessionStore(rdb *goredis.Client, clientKey string, ttl time.Duration) SessionStore {
	return &redisSessionStore{
		rdb: rdb,
		key: "learnhub:session:" + clientKey,
		ttl: ttl,
	}
}

func (r *redisSessionStore) Load(ctx context.Context) (*backend.Session, error) {
	raw, err := r.rdb.Get(ctx, r.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	var s backend.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		// A corrupt entry is as good as no session.
		_ = r.rdb.Del(ctx, r.key).Err()
		return nil, nil
	}
	return &s, nil
}

func (r *redisSessionStore) Save(ctx context.Context, s *backend.Session) error {
	if s == nil {
		return r.Clear(ctx)
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := r.rdb.Set(ctx, r.key, raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

func (r *redisSessionStore) Clear(ctx context.Context) error {
	if err := r.rdb.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("redis del session: %w", err)
	}
	return nil
}
