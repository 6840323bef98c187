// Package intake runs the patient intake conversation: a turn-bounded state
// machine that can be cut short by an emergency at any point.
package intake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/intake-api/internal/model"
	"github.com/jwalitptl/intake-api/internal/repository"
	"github.com/jwalitptl/intake-api/internal/service/notification"
	"github.com/jwalitptl/intake-api/internal/service/redflag"
	"github.com/jwalitptl/intake-api/internal/service/triage"
	apperrors "github.com/jwalitptl/intake-api/pkg/errors"
	"github.com/jwalitptl/intake-api/pkg/llm"
	"github.com/jwalitptl/intake-api/pkg/logger"
	"github.com/jwalitptl/intake-api/pkg/messaging"
	"github.com/jwalitptl/intake-api/pkg/metrics"
)

const (
	DefaultMaxTurns     = 8
	DefaultContextTurns = 6
)

type Config struct {
	MaxTurns     int
	ContextTurns int
}

type Service interface {
	StartSession(ctx context.Context, patientID string) (*model.IntakeResponse, error)
	ProcessMessage(ctx context.Context, sessionID, text string) (*model.IntakeResponse, error)
	GetSession(ctx context.Context, sessionID string) (*model.IntakeSession, error)
	ListSessions(ctx context.Context) ([]model.SessionSummary, error)
}

type Deps struct {
	Store     repository.SessionStore
	Detector  *redflag.Detector
	Scorer    *triage.Scorer
	Generator llm.TextGenerator
	Notifier  notification.Service
	Publisher messaging.Publisher
	Metrics   *metrics.Metrics
	Logger    *logger.Logger
}

type service struct {
	cfg       Config
	store     repository.SessionStore
	detector  *redflag.Detector
	scorer    *triage.Scorer
	gen       llm.TextGenerator
	notifier  notification.Service
	publisher messaging.Publisher
	metrics   *metrics.Metrics
	logger    *logger.Logger
	now       func() time.Time
}

func NewService(cfg Config, deps Deps) Service {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.ContextTurns <= 0 {
		cfg.ContextTurns = DefaultContextTurns
	}
	if deps.Publisher == nil {
		deps.Publisher = messaging.NopPublisher()
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if deps.Detector == nil {
		deps.Detector = redflag.NewDetector()
	}
	return &service{
		cfg:       cfg,
		store:     deps.Store,
		detector:  deps.Detector,
		scorer:    deps.Scorer,
		gen:       deps.Generator,
		notifier:  deps.Notifier,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		now:       time.Now,
	}
}

func (s *service) StartSession(ctx context.Context, patientID string) (*model.IntakeResponse, error) {
	now := s.now()
	session := model.NewIntakeSession(uuid.NewString(), patientID, s.cfg.MaxTurns, now)
	session.AddMessage(model.RoleAssistant, greeting, now)

	if err := s.store.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	if s.metrics != nil {
		s.metrics.SessionsStarted.Inc()
	}
	s.publish(ctx, model.EventIntakeStarted, session.Summary())
	s.logger.Info("intake session started", "session_id", session.ID)

	return &model.IntakeResponse{
		SessionID: session.ID,
		Response:  greeting,
		Stage:     session.Stage,
	}, nil
}

func (s *service) ProcessMessage(ctx context.Context, sessionID, text string) (*model.IntakeResponse, error) {
	var resp *model.IntakeResponse

	updated, err := s.store.Update(ctx, sessionID, func(session *model.IntakeSession) error {
		if session.Stage.Terminal() {
			return apperrors.NewSessionClosed(session.ID, string(session.Stage))
		}
		resp = s.advance(ctx, session, text)
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewSessionNotFound(sessionID)
		}
		return nil, err
	}

	switch updated.Stage {
	case model.StageEmergency:
		s.closed(ctx, updated, model.EventIntakeEmergency)
		if s.notifier != nil {
			s.notifier.NotifyEmergency(ctx, updated)
		}
	case model.StageComplete:
		s.closed(ctx, updated, model.EventIntakeCompleted)
	}
	return resp, nil
}

// advance applies one inbound message. It runs under the session's lock.
func (s *service) advance(ctx context.Context, session *model.IntakeSession, text string) *model.IntakeResponse {
	now := s.now()
	session.AddMessage(model.RoleUser, text, now)
	session.TurnCount++

	if flags := s.detector.Detect(text); len(flags) > 0 {
		return s.escalate(session, flags)
	}

	session.Apply(s.extract(ctx, session))

	if IsComplete(session) {
		return s.complete(ctx, session)
	}

	question := s.followUp(ctx, session)
	session.AddMessage(model.RoleAssistant, question, s.now())
	return &model.IntakeResponse{
		SessionID: session.ID,
		Response:  question,
		Stage:     session.Stage,
		TurnCount: session.TurnCount,
	}
}

// IsComplete is the intake completion predicate. From turn 3 a chief
// complaint with its duration is enough. Severity without a duration also
// needs associated symptoms or history, or turn 5. The turn budget forces
// completion.
func IsComplete(s *model.IntakeSession) bool {
	if s.MaxTurns > 0 && s.TurnCount >= s.MaxTurns {
		return true
	}
	c := s.Collected
	if s.TurnCount < 3 || c.ChiefComplaint == "" {
		return false
	}
	if c.Duration != "" {
		return true
	}
	if c.Severity == "" {
		return false
	}
	return len(c.AssociatedSymptoms) > 0 || c.MedicalHistory != "" || s.TurnCount >= 5
}

func (s *service) escalate(session *model.IntakeSession, flags []string) *model.IntakeResponse {
	result := model.EmergencyTriage(flags)
	session.Stage = model.StageEmergency
	session.Triage = &result
	session.RedFlags = model.UnionStrings(session.RedFlags, flags)
	session.AddMessage(model.RoleAssistant, emergencyMessage, s.now())

	s.logger.Warn("red flag detected, escalating session", "session_id", session.ID, "red_flags", flags)

	return &model.IntakeResponse{
		SessionID:      session.ID,
		Response:       emergencyMessage,
		Stage:          session.Stage,
		TurnCount:      session.TurnCount,
		IsEmergency:    true,
		ActionRequired: model.ActionEmergencyEscalation,
		RedFlags:       session.RedFlags,
		Triage:         &result,
	}
}

func (s *service) complete(ctx context.Context, session *model.IntakeSession) *model.IntakeResponse {
	result := s.scorer.Score(ctx, session)
	session.Triage = &result
	session.SuggestedSpecialties = append([]string(nil), result.Specialties...)
	session.RedFlags = model.UnionStrings(session.RedFlags, result.RedFlags)
	soap := s.preliminarySOAP(ctx, session)
	session.PreliminarySOAP = &soap
	session.Stage = model.StageComplete

	summary := completionMessage(session)
	session.AddMessage(model.RoleAssistant, summary, s.now())

	return &model.IntakeResponse{
		SessionID:            session.ID,
		Response:             summary,
		Stage:                session.Stage,
		TurnCount:            session.TurnCount,
		Triage:               &result,
		PreliminarySOAP:      &soap,
		SuggestedSpecialties: session.SuggestedSpecialties,
		SessionComplete:      true,
	}
}

func (s *service) GetSession(ctx context.Context, sessionID string) (*model.IntakeSession, error) {
	session, err := s.store.Get(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewSessionNotFound(sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

func (s *service) ListSessions(ctx context.Context) ([]model.SessionSummary, error) {
	list, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return list, nil
}

func (s *service) closed(ctx context.Context, session *model.IntakeSession, event string) {
	if s.metrics != nil {
		s.metrics.SessionsClosed.WithLabelValues(string(session.Stage)).Inc()
	}
	s.publish(ctx, event, session.Summary())
	s.logger.Info("intake session closed", "session_id", session.ID, "stage", string(session.Stage), "turns", session.TurnCount)
}

func (s *service) publish(ctx context.Context, event string, payload interface{}) {
	if err := s.publisher.Publish(ctx, event, payload); err != nil {
		s.logger.Error(err, "failed to publish event", "event", event)
	}
}

func (s *service) fallback(session *model.IntakeSession, component string, err error) {
	s.logger.Warn("intake fallback", "session_id", session.ID, "component", component, "error", err.Error())
	if s.metrics != nil {
		s.metrics.LLMFallbacks.WithLabelValues(component).Inc()
	}
}
