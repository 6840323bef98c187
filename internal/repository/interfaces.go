package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jwalitptl/intake-api/internal/model"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
)

// All repository interfaces in one file
type (
	// SessionStore owns intake sessions. Update serializes callers per
	// session id; different ids never block each other.
	SessionStore interface {
		Create(ctx context.Context, session *model.IntakeSession) error
		Get(ctx context.Context, id string) (*model.IntakeSession, error)
		// Update loads the session, runs fn on a private copy while holding
		// the session's lock, and stores the copy if fn returns nil.
		Update(ctx context.Context, id string, fn func(session *model.IntakeSession) error) (*model.IntakeSession, error)
		List(ctx context.Context) ([]model.SessionSummary, error)
		// Prune drops sessions untouched since before and reports how many
		// were removed.
		Prune(ctx context.Context, before time.Time) (int, error)
	}

	// RosterStore holds the doctor roster. Replace swaps it atomically and
	// Snapshot never observes a partial roster.
	RosterStore interface {
		Replace(doctors []model.Doctor)
		Snapshot() []model.Doctor
	}

	// LearningStore is the append-only edit corpus with per-specialty metrics.
	LearningStore interface {
		Append(ctx context.Context, log model.EditLog) (model.SpecialtyMetrics, error)
		Edits(ctx context.Context, specialty string) ([]model.EditLog, error)
		Metrics(ctx context.Context, specialty string) (model.SpecialtyMetrics, bool, error)
		AllMetrics(ctx context.Context) (map[string]model.SpecialtyMetrics, error)
		// Import appends logs whose IDs are not stored yet, folding each
		// into its specialty's metrics, then merges the metrics aggregates.
		// It returns the number of logs appended.
		Import(ctx context.Context, logs []model.EditLog, metrics map[string]model.SpecialtyMetrics) (int, error)
	}
)
