package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mohammad-safakhou/pharmaverse/session"
)

// Store keeps sessions for the lifetime of the process.
type Store struct {
	sessions map[string]*session.Session
	mu       sync.RWMutex
}

func NewInMemorySessionStore() *Store {
	return &Store{sessions: make(map[string]*session.Session)}
}

func (store *Store) Create(_ context.Context, s *session.Session) error {
	if s == nil || s.ID == "" {
		return fmt.Errorf("session id required")
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if _, ok := store.sessions[s.ID]; ok {
		return session.ErrExists
	}
	store.sessions[s.ID] = s.Clone()
	return nil
}

func (store *Store) Get(_ context.Context, id string) (*session.Session, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	sess, ok := store.sessions[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	return sess.Clone(), nil
}

// Update holds the write lock across mutate so readers never observe a half-applied change.
func (store *Store) Update(_ context.Context, id string, mutate func(*session.Session) error) (*session.Session, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	current, ok := store.sessions[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.ID = id
	next.UpdatedAt = time.Now().UTC()
	store.sessions[id] = next
	return next.Clone(), nil
}

// List returns every session, newest first.
func (store *Store) List(_ context.Context) ([]*session.Session, error) {
	store.mu.RLock()
	out := make([]*session.Session, 0, len(store.sessions))
	for _, s := range store.sessions {
		out = append(out, s.Clone())
	}
	store.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
