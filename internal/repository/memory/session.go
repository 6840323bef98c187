package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jwalitptl/intake-api/internal/model"
	"github.com/jwalitptl/intake-api/internal/repository"
)

type sessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*model.IntakeSession
	locks    *repository.KeyedMutex
}

func NewSessionStore() repository.SessionStore {
	return &sessionStore{
		sessions: make(map[string]*model.IntakeSession),
		locks:    repository.NewKeyedMutex(),
	}
}

func (s *sessionStore) Create(ctx context.Context, session *model.IntakeSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; ok {
		return fmt.Errorf("session %s: %w", session.ID, repository.ErrAlreadyExists)
	}
	s.sessions[session.ID] = session.Clone()
	return nil
}

func (s *sessionStore) Get(ctx context.Context, id string) (*model.IntakeSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return session.Clone(), nil
}

func (s *sessionStore) Update(ctx context.Context, id string, fn func(*model.IntakeSession) error) (*model.IntakeSession, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	working, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(working); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sessions[id] = working.Clone()
	s.mu.Unlock()
	return working, nil
}

func (s *sessionStore) List(ctx context.Context) ([]model.SessionSummary, error) {
	s.mu.RLock()
	out := make([]model.SessionSummary, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session.Summary())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *sessionStore) Prune(ctx context.Context, before time.Time) (int, error) {
	s.mu.RLock()
	var stale []string
	for id, session := range s.sessions {
		if session.UpdatedAt.Before(before) {
			stale = append(stale, id)
		}
	}
	s.mu.RUnlock()

	removed := 0
	for _, id := range stale {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		unlock := s.locks.Lock(id)
		s.mu.Lock()
		if session, ok := s.sessions[id]; ok && session.UpdatedAt.Before(before) {
			delete(s.sessions, id)
			removed++
		}
		s.mu.Unlock()
		unlock()
	}
	return removed, nil
}
