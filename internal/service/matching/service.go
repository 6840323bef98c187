// Package matching ranks the loaded doctor roster against a patient's
// specialty, priority and language.
package matching

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jwalitptl/intake-api/internal/model"
	"github.com/jwalitptl/intake-api/internal/repository"
	"github.com/jwalitptl/intake-api/internal/service/specialty"
	apperrors "github.com/jwalitptl/intake-api/pkg/errors"
	"github.com/jwalitptl/intake-api/pkg/llm"
	"github.com/jwalitptl/intake-api/pkg/logger"
	"github.com/jwalitptl/intake-api/pkg/messaging"
	"github.com/jwalitptl/intake-api/pkg/metrics"
	"github.com/jwalitptl/intake-api/pkg/validator"
)

const (
	DefaultMaxResults = 5
	maxAlternatives   = 3
	alternativeSlots  = 2

	noDoctorsMessage = "No available doctors found. Please try again later."
)

type Config struct {
	MaxResults int
}

type Service interface {
	// Load validates records and atomically replaces the roster.
	Load(ctx context.Context, records []model.DoctorRecord) (int, error)
	Specialties() []string
	ResolveSpecialties(ctx context.Context, symptoms []string, soap model.SOAPNote) specialty.Classification
	// Match ranks the roster for exactly q.Specialty, without fallbacks.
	Match(q model.MatchQuery) []model.MatchResult
	// Find matches with the secondary and General Medicine fallbacks.
	Find(ctx context.Context, q model.MatchQuery) model.MatchOutcome
	BestMatch(ctx context.Context, q model.MatchQuery) model.Recommendation
	Assign(ctx context.Context, req model.AssignRequest) (*model.Assignment, error)
}

type Deps struct {
	Roster     repository.RosterStore
	Classifier *specialty.Classifier
	Generator  llm.TextGenerator
	Validator  validator.Validator
	Publisher  messaging.Publisher
	Metrics    *metrics.Metrics
	Logger     *logger.Logger
}

type service struct {
	cfg        Config
	roster     repository.RosterStore
	classifier *specialty.Classifier
	gen        llm.TextGenerator
	validator  validator.Validator
	publisher  messaging.Publisher
	metrics    *metrics.Metrics
	logger     *logger.Logger
	now        func() time.Time
}

func NewService(cfg Config, deps Deps) Service {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Publisher == nil {
		deps.Publisher = messaging.NopPublisher()
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if deps.Generator == nil {
		deps.Generator = llm.Offline{}
	}
	if deps.Classifier == nil {
		deps.Classifier = specialty.NewClassifier(deps.Generator, 0, deps.Logger, deps.Metrics)
	}
	return &service{
		cfg:        cfg,
		roster:     deps.Roster,
		classifier: deps.Classifier,
		gen:        deps.Generator,
		validator:  deps.Validator,
		publisher:  deps.Publisher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		now:        time.Now,
	}
}

func (s *service) Load(ctx context.Context, records []model.DoctorRecord) (int, error) {
	doctors := make([]model.Doctor, 0, len(records))
	seen := make(map[string]bool, len(records))
	for i, r := range records {
		if err := s.validator.Validate(r); err != nil {
			return 0, apperrors.NewBadRequest(fmt.Sprintf("doctor %d is invalid", i), err)
		}
		if seen[r.ID] {
			return 0, apperrors.NewBadRequest(fmt.Sprintf("duplicate doctor id %q", r.ID), nil)
		}
		seen[r.ID] = true
		doctors = append(doctors, r.ToDoctor())
	}

	s.roster.Replace(doctors)
	if s.metrics != nil {
		s.metrics.RosterSize.Set(float64(len(doctors)))
	}
	s.logger.Info("doctor roster loaded", "doctors", len(doctors))
	return len(doctors), nil
}

// Specialties is the sorted union of specialties and subspecialties on the
// current roster.
func (s *service) Specialties() []string {
	var all []string
	for _, d := range s.roster.Snapshot() {
		all = append(all, d.Specialty, d.Subspecialty)
	}
	out := model.UnionStrings(nil, all)
	sort.Strings(out)
	return out
}

func (s *service) ResolveSpecialties(ctx context.Context, symptoms []string, soap model.SOAPNote) specialty.Classification {
	return s.classifier.Classify(ctx, symptoms, soap)
}

func (s *service) Match(q model.MatchQuery) []model.MatchResult {
	return Rank(s.roster.Snapshot(), s.normalize(q), s.now())
}

func (s *service) normalize(q model.MatchQuery) model.MatchQuery {
	if q.Priority == "" {
		q.Priority = model.PriorityGreen
	}
	if q.MaxResults <= 0 {
		q.MaxResults = s.cfg.MaxResults
	}
	return q
}

func (s *service) Find(ctx context.Context, q model.MatchQuery) model.MatchOutcome {
	q = s.normalize(q)
	if strings.TrimSpace(q.Specialty) == "" {
		cls := s.ResolveSpecialties(ctx, []string{q.Symptoms}, nil)
		q.Specialty = cls.Primary()
		if q.SecondarySpecialty == "" {
			q.SecondarySpecialty = cls.Secondary()
		}
	}

	// One snapshot serves every cascade step.
	doctors := s.roster.Snapshot()
	now := s.now()
	outcome := model.MatchOutcome{RequestedSpecialty: q.Specialty}

	steps := []struct{ name, specialty string }{
		{"primary", q.Specialty},
		{"secondary", q.SecondarySpecialty},
		{"general_medicine", model.GeneralMedicine},
	}
	tried := map[string]bool{}
	for _, step := range steps {
		key := strings.ToLower(strings.TrimSpace(step.specialty))
		if key == "" || tried[key] {
			continue
		}
		tried[key] = true
		if step.name != "primary" && s.metrics != nil {
			s.metrics.CascadeSteps.WithLabelValues(step.name).Inc()
		}

		attempt := q
		attempt.Specialty = step.specialty
		if matches := Rank(doctors, attempt, now); len(matches) > 0 {
			outcome.Matches = matches
			outcome.Found = true
			outcome.MatchedSpecialty = step.specialty
			outcome.Substituted = step.name != "primary"
			break
		}
	}

	switch {
	case !outcome.Found:
		outcome.Matches = []model.MatchResult{}
		outcome.Message = noDoctorsMessage
		s.countMatch("none")
		s.logger.Warn("no eligible doctor", "specialty", q.Specialty, "priority", string(q.Priority))
	case outcome.Substituted:
		s.countMatch("substituted")
		s.logger.Info("matched alternative specialty", "requested", q.Specialty, "matched", outcome.MatchedSpecialty)
	default:
		s.countMatch("matched")
	}
	return outcome
}

func (s *service) countMatch(outcome string) {
	if s.metrics != nil {
		s.metrics.MatchRequests.WithLabelValues(outcome).Inc()
	}
}

func (s *service) BestMatch(ctx context.Context, q model.MatchQuery) model.Recommendation {
	outcome := s.Find(ctx, q)
	rec := model.Recommendation{
		Alternatives:       []model.MatchResult{},
		Found:              outcome.Found,
		RequestedSpecialty: outcome.RequestedSpecialty,
		MatchedSpecialty:   outcome.MatchedSpecialty,
		Substituted:        outcome.Substituted,
		Message:            outcome.Message,
	}
	if !outcome.Found {
		return rec
	}

	best := outcome.Matches[0]
	rec.Recommended = &best
	for _, m := range outcome.Matches[1:] {
		if len(rec.Alternatives) == maxAlternatives {
			break
		}
		if len(m.AvailableSlots) > alternativeSlots {
			m.AvailableSlots = m.AvailableSlots[:alternativeSlots]
		}
		rec.Alternatives = append(rec.Alternatives, m)
	}
	return rec
}

func (s *service) Assign(ctx context.Context, req model.AssignRequest) (*model.Assignment, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, apperrors.NewBadRequest("invalid assignment", err)
	}

	var doctor *model.Doctor
	for _, d := range s.roster.Snapshot() {
		if d.ID == req.DoctorID {
			doctor = &d
			break
		}
	}
	if doctor == nil {
		return nil, apperrors.NewNotFound("doctor", fmt.Errorf("doctor %s is not on the roster", req.DoctorID))
	}

	assignment := &model.Assignment{
		DoctorID:        doctor.ID,
		DoctorName:      doctor.Name,
		Specialty:       doctor.Specialty,
		AppointmentSlot: req.Slot,
		ConsultationFee: doctor.ConsultationFee,
		Reasoning:       s.reasoning(ctx, *doctor, req),
		AssignedAt:      s.now(),
		Message:         "Successfully assigned to Dr. " + doctor.Name,
	}

	if err := s.publisher.Publish(ctx, model.EventDoctorAssigned, map[string]interface{}{
		"session_id": req.SessionID,
		"assignment": assignment,
	}); err != nil {
		s.logger.Error(err, "failed to publish event", "event", model.EventDoctorAssigned)
	}
	s.logger.Info("doctor assigned", "doctor_id", doctor.ID, "session_id", req.SessionID, "slot", req.Slot)
	return assignment, nil
}

// reasoning asks for a short clinical justification, falling back to the
// scoring reasons.
func (s *service) reasoning(ctx context.Context, d model.Doctor, req model.AssignRequest) string {
	raw, err := s.gen.Generate(ctx, assignmentPrompt(d, req))
	if err == nil {
		if text := strings.TrimSpace(raw); text != "" {
			return text
		}
		err = fmt.Errorf("%w: empty reasoning", llm.ErrMalformedResponse)
	}
	s.logger.Warn("assignment reasoning fallback", "doctor_id", d.ID, "error", err.Error())
	if s.metrics != nil {
		s.metrics.LLMFallbacks.WithLabelValues("assignment").Inc()
	}

	_, reasons := Score(d, weightSpecialty, "")
	reasons = append([]string{"Specialty: " + d.Specialty}, reasons...)
	return strings.Join(reasons, "; ") + "."
}

func assignmentPrompt(d model.Doctor, req model.AssignRequest) string {
	priority := string(req.Priority)
	if priority == "" {
		priority = "unknown"
	}
	sub := d.Subspecialty
	if sub == "" {
		sub = "N/A"
	}
	return fmt.Sprintf(`Generate a brief clinical reasoning for this doctor assignment.

PATIENT INFO:
- Symptoms: %s
- Triage Priority: %s

ASSIGNED DOCTOR:
- Name: %s
- Specialty: %s
- Subspecialty: %s
- Experience: %d years

Write 2-3 sentences explaining why this doctor is appropriate for this patient.
Be professional and clinical.`, strings.Join(req.Symptoms, ", "), priority, d.Name, d.Specialty, sub, d.ExperienceYears)
}
