package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mordechaipotash/talmudic-study-app/models"
	"github.com/mordechaipotash/talmudic-study-app/session"
)

const keyPrefix = "nav:"

// Store keeps navigation sessions in redis as opaque JSON blobs, so sessions
// survive process restarts without any schema coupling to the rest of the
// system.
type Store struct {
	client *redis.Client
}

func NewStore(addr, password string, db int) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed (%s): %w", addr, err)
	}
	return &Store{client: rdb}, nil
}

// NewStoreWithClient wraps an existing client; used by tests.
func NewStoreWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

func sessionKey(id string) string { return keyPrefix + id }

func (store *Store) EnsureSession(id string, ttl time.Duration) (session.Session, error) {
	ctx := context.Background()
	if id != "" {
		exists, err := store.client.Exists(ctx, sessionKey(id)).Result()
		if err == nil && exists == 1 {
			_ = store.client.Expire(ctx, sessionKey(id), ttl).Err()
			return &Session{client: store.client, id: id, ttl: ttl}, nil
		}
	}
	newID := uuid.NewString()
	sess := &Session{client: store.client, id: newID, ttl: ttl}
	blob, _ := json.Marshal(models.NavigationState{})
	if err := store.client.Set(ctx, sessionKey(newID), blob, ttl).Err(); err != nil {
		return nil, err
	}
	return sess, nil
}

func (store *Store) GetSession(id string) (session.Session, error) {
	ctx := context.Background()
	exists, err := store.client.Exists(ctx, sessionKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, nil
	}
	return &Session{client: store.client, id: id}, nil
}

// Session reads and writes its state blob per operation.
type Session struct {
	client *redis.Client
	id     string
	ttl    time.Duration
}

func (s *Session) ID() string { return s.id }

func (s *Session) Expire(ttl time.Duration) {
	s.ttl = ttl
	_ = s.client.Expire(context.Background(), sessionKey(s.id), ttl).Err()
}

func (s *Session) State() (models.NavigationState, error) {
	ctx := context.Background()
	val, err := s.client.Get(ctx, sessionKey(s.id)).Result()
	if errors.Is(err, redis.Nil) {
		return models.NavigationState{}, nil
	}
	if err != nil {
		return models.NavigationState{}, err
	}
	var st models.NavigationState
	if err := json.Unmarshal([]byte(val), &st); err != nil {
		return models.NavigationState{}, err
	}
	return st, nil
}

func (s *Session) mutate(fn func(models.NavigationState) models.NavigationState) error {
	st, err := s.State()
	if err != nil {
		return err
	}
	blob, err := json.Marshal(fn(st))
	if err != nil {
		return err
	}
	ttl := s.ttl
	if ttl <= 0 {
		ttl = redis.KeepTTL
	}
	return s.client.Set(context.Background(), sessionKey(s.id), blob, ttl).Err()
}

func (s *Session) Append(ref string) error {
	return s.mutate(func(st models.NavigationState) models.NavigationState { return session.AppendRef(st, ref) })
}

func (s *Session) TruncateToParent() error {
	return s.mutate(session.TruncateToParent)
}

func (s *Session) Clear() error { return s.mutate(session.ClearPath) }

func (s *Session) ToggleExpanded(ref string) error {
	return s.mutate(func(st models.NavigationState) models.NavigationState { return session.ToggleExpanded(st, ref) })
}

func (s *Session) SetExpandedCommentary(sectionRef, commentaryRef string) error {
	return s.mutate(func(st models.NavigationState) models.NavigationState {
		return session.SetExpandedCommentary(st, sectionRef, commentaryRef)
	})
}
