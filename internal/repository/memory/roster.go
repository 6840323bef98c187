package memory

import (
	"sync/atomic"

	"github.com/jwalitptl/intake-api/internal/model"
	"github.com/jwalitptl/intake-api/internal/repository"
)

type rosterStore struct {
	current atomic.Pointer[[]model.Doctor]
}

func NewRosterStore() repository.RosterStore {
	r := &rosterStore{}
	empty := []model.Doctor{}
	r.current.Store(&empty)
	return r
}

func (r *rosterStore) Replace(doctors []model.Doctor) {
	next := append([]model.Doctor(nil), doctors...)
	r.current.Store(&next)
}

// Snapshot returns the roster as of the call. Callers must not mutate it.
func (r *rosterStore) Snapshot() []model.Doctor {
	return *r.current.Load()
}
