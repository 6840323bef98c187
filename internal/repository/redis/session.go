package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/intake-api/internal/model"
	"github.com/jwalitptl/intake-api/internal/repository"
	"github.com/jwalitptl/intake-api/pkg/circuitbreaker"
)

const (
	sessionKeyPrefix = "intake:session:"
	sessionIndexKey  = "intake:sessions"
)

// ErrConflict is returned when another process changed the session mid-update.
var ErrConflict = errors.New("session modified concurrently")

type Config struct {
	KeyPrefix string
	TTL       time.Duration
}

// sessionStore keeps JSON snapshots of sessions in redis. Updates are
// serialized per id in-process and guarded with WATCH across processes.
type sessionStore struct {
	client *redis.Client
	cfg    Config
	locks  *repository.KeyedMutex
	cb     *circuitbreaker.CircuitBreaker
	logger *zerolog.Logger
}

func NewSessionStore(client *redis.Client, cfg Config, logger *zerolog.Logger) repository.SessionStore {
	if cfg.TTL == 0 {
		cfg.TTL = 24 * time.Hour
	}
	cb := circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
		Name:             "redis-session-store",
		MaxRequests:      1,
		Interval:         10 * time.Second,
		Timeout:          5 * time.Second,
		FailureThreshold: 5,
		IsSuccessful: func(err error) bool {
			return err == nil || !isInfraError(err)
		},
	})
	return &sessionStore{
		client: client,
		cfg:    cfg,
		locks:  repository.NewKeyedMutex(),
		cb:     cb,
		logger: logger,
	}
}

func (s *sessionStore) key(id string) string {
	return s.cfg.KeyPrefix + sessionKeyPrefix + id
}

func (s *sessionStore) indexKey() string {
	return s.cfg.KeyPrefix + sessionIndexKey
}

func (s *sessionStore) Create(ctx context.Context, session *model.IntakeSession) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	return s.cb.Execute(func() error {
		ok, err := s.client.SetNX(ctx, s.key(session.ID), payload, s.cfg.TTL).Result()
		if err != nil {
			return infraError{err}
		}
		if !ok {
			return fmt.Errorf("session %s: %w", session.ID, repository.ErrAlreadyExists)
		}
		if err := s.client.SAdd(ctx, s.indexKey(), session.ID).Err(); err != nil {
			return infraError{err}
		}
		return nil
	})
}

func (s *sessionStore) Get(ctx context.Context, id string) (*model.IntakeSession, error) {
	var session *model.IntakeSession
	err := s.cb.Execute(func() error {
		var err error
		session, err = s.load(ctx, s.client, id)
		return err
	})
	if err != nil {
		return nil, unwrapInfra(err)
	}
	return session, nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *sessionStore) load(ctx context.Context, c getter, id string) (*model.IntakeSession, error) {
	raw, err := c.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, infraError{err}
	}
	var session model.IntakeSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	return &session, nil
}

func (s *sessionStore) Update(ctx context.Context, id string, fn func(*model.IntakeSession) error) (*model.IntakeSession, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	var updated *model.IntakeSession
	err := s.cb.Execute(func() error {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			session, err := s.load(ctx, tx, id)
			if err != nil {
				return err
			}
			if err := fn(session); err != nil {
				return err
			}
			payload, err := json.Marshal(session)
			if err != nil {
				return fmt.Errorf("failed to marshal session: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, s.key(id), payload, s.cfg.TTL)
				return nil
			})
			if err != nil {
				return err
			}
			updated = session
			return nil
		}, s.key(id))
		if errors.Is(err, redis.TxFailedErr) {
			return ErrConflict
		}
		return err
	})
	if err != nil {
		return nil, unwrapInfra(err)
	}
	return updated, nil
}

func (s *sessionStore) List(ctx context.Context) ([]model.SessionSummary, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(ids) == 0 {
		return []model.SessionSummary{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}

	out := make([]model.SessionSummary, 0, len(values))
	var expired []interface{}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		var session model.IntakeSession
		if err := json.Unmarshal([]byte(raw), &session); err != nil {
			s.logger.Warn().Err(err).Str("session_id", ids[i]).Msg("skipping undecodable session")
			continue
		}
		out = append(out, session.Summary())
	}
	if len(expired) > 0 {
		s.client.SRem(ctx, s.indexKey(), expired...)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// Prune deletes sessions last updated before the cutoff and drops index
// entries whose snapshots already expired. Only the former are counted.
func (s *sessionStore) Prune(ctx context.Context, before time.Time) (int, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	removed := 0
	for _, id := range ids {
		unlock := s.locks.Lock(id)
		session, err := s.Get(ctx, id)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			err = s.client.SRem(ctx, s.indexKey(), id).Err()
		case err != nil:
		case session.UpdatedAt.Before(before):
			_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, s.key(id))
				pipe.SRem(ctx, s.indexKey(), id)
				return nil
			})
			if err == nil {
				removed++
			}
		}
		unlock()
		if err != nil {
			return removed, fmt.Errorf("failed to prune session %s: %w", id, err)
		}
	}
	return removed, nil
}

// infraError marks failures of redis itself, which count against the breaker.
type infraError struct{ err error }

func (e infraError) Error() string { return e.err.Error() }
func (e infraError) Unwrap() error { return e.err }

func isInfraError(err error) bool {
	var ie infraError
	return errors.As(err, &ie) || errors.Is(err, circuitbreaker.ErrOpen)
}

func unwrapInfra(err error) error {
	var ie infraError
	if errors.As(err, &ie) {
		return fmt.Errorf("session store unavailable: %w", ie.err)
	}
	return err
}
