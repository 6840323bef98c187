package memory

import (
	"context"
	"sync"

	"github.com/jwalitptl/intake-api/internal/model"
	"github.com/jwalitptl/intake-api/internal/repository"
)

type learningStore struct {
	mu      sync.RWMutex
	logs    []model.EditLog
	ids     map[string]struct{}
	metrics map[string]*model.SpecialtyMetrics
}

func NewLearningStore() repository.LearningStore {
	return &learningStore{
		ids:     make(map[string]struct{}),
		metrics: make(map[string]*model.SpecialtyMetrics),
	}
}

func (s *learningStore) Append(ctx context.Context, log model.EditLog) (model.SpecialtyMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[log.ID]; ok && log.ID != "" {
		return model.SpecialtyMetrics{}, repository.ErrAlreadyExists
	}
	return s.appendLocked(log).Clone(), nil
}

func (s *learningStore) appendLocked(log model.EditLog) *model.SpecialtyMetrics {
	log = log.Clone()
	s.logs = append(s.logs, log)
	if log.ID != "" {
		s.ids[log.ID] = struct{}{}
	}
	m := s.specialtyLocked(log.Specialty)
	m.Observe(log.EditDistance, log.Timestamp)
	return m
}

func (s *learningStore) specialtyLocked(specialty string) *model.SpecialtyMetrics {
	m, ok := s.metrics[specialty]
	if !ok {
		m = &model.SpecialtyMetrics{Specialty: specialty}
		s.metrics[specialty] = m
	}
	return m
}

func (s *learningStore) Edits(ctx context.Context, specialty string) ([]model.EditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.EditLog, 0, len(s.logs))
	for _, l := range s.logs {
		if specialty == "" || l.Specialty == specialty {
			out = append(out, l.Clone())
		}
	}
	return out, nil
}

func (s *learningStore) Metrics(ctx context.Context, specialty string) (model.SpecialtyMetrics, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.metrics[specialty]
	if !ok {
		return model.SpecialtyMetrics{}, false, nil
	}
	return m.Clone(), true, nil
}

func (s *learningStore) AllMetrics(ctx context.Context) (map[string]model.SpecialtyMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.SpecialtyMetrics, len(s.metrics))
	for k, m := range s.metrics {
		out[k] = m.Clone()
	}
	return out, nil
}

func (s *learningStore) Import(ctx context.Context, logs []model.EditLog, metrics map[string]model.SpecialtyMetrics) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appended := 0
	for _, log := range logs {
		if _, ok := s.ids[log.ID]; ok && log.ID != "" {
			continue
		}
		s.appendLocked(log)
		appended++
	}
	for name, m := range metrics {
		s.specialtyLocked(name).Merge(m)
	}
	return appended, nil
}
