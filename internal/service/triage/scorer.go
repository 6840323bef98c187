// Package triage assigns a priority band and score to a completed intake.
package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jwalitptl/intake-api/internal/model"
	"github.com/jwalitptl/intake-api/internal/service/specialty"
	"github.com/jwalitptl/intake-api/pkg/llm"
	"github.com/jwalitptl/intake-api/pkg/logger"
	"github.com/jwalitptl/intake-api/pkg/metrics"
)

type Scorer struct {
	gen     llm.TextGenerator
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewScorer(gen llm.TextGenerator, log *logger.Logger, m *metrics.Metrics) *Scorer {
	if log == nil {
		log = logger.Nop()
	}
	return &Scorer{gen: gen, logger: log, metrics: m}
}

type answer struct {
	Priority        string   `json:"priority"`
	Score           *int     `json:"score"`
	Reasoning       string   `json:"reasoning"`
	Specialties     []string `json:"specialties"`
	RedFlags        []string `json:"red_flags_detected"`
	Recommendations []string `json:"recommendations"`
}

// Score classifies the session. It never fails: anything unusable from the
// model yields FallbackTriage.
func (s *Scorer) Score(ctx context.Context, session *model.IntakeSession) model.TriageResult {
	result := s.score(ctx, session)
	if s.metrics != nil {
		s.metrics.TriageResults.WithLabelValues(string(result.Priority)).Inc()
	}
	return result
}

func (s *Scorer) score(ctx context.Context, session *model.IntakeSession) model.TriageResult {
	log := s.logger.With("session_id", session.ID)

	raw, err := s.gen.Generate(ctx, prompt(session))
	if err != nil {
		s.fallback(log, err)
		return model.FallbackTriage()
	}
	ans, err := llm.ParseJSON[answer](raw)
	if err != nil {
		s.fallback(log, err)
		return model.FallbackTriage()
	}
	priority, ok := model.ParsePriority(ans.Priority)
	if !ok {
		s.fallback(log, fmt.Errorf("%w: unknown priority %q", llm.ErrMalformedResponse, ans.Priority))
		return model.FallbackTriage()
	}

	lo, hi := priority.Band()
	score := (lo + hi) / 2
	if ans.Score != nil {
		score = priority.ClampScore(*ans.Score)
	}

	specialties := model.UnionStrings(nil, ans.Specialties)
	if len(specialties) == 0 {
		specialties = specialty.MatchKeywords(strings.Join(session.Symptoms(), " "))
		if len(specialties) == 0 || len(specialties) > specialty.MaxSpecialties {
			specialties = []string{model.GeneralMedicine}
		}
	}

	return model.TriageResult{
		Priority:        priority,
		Score:           score,
		Reasoning:       ans.Reasoning,
		Specialties:     specialties,
		RedFlags:        model.UnionStrings(nil, ans.RedFlags),
		Recommendations: ans.Recommendations,
	}
}

func (s *Scorer) fallback(log *logger.Logger, err error) {
	log.Warn("triage fallback to default band", "error", err.Error())
	if s.metrics != nil {
		s.metrics.LLMFallbacks.WithLabelValues("triage").Inc()
	}
}

func prompt(session *model.IntakeSession) string {
	summary, _ := json.MarshalIndent(map[string]interface{}{
		"symptoms":       session.Symptoms(),
		"collected_info": session.Collected,
		"vitals":         session.Vitals,
		"allergies":      session.Allergies,
		"medications":    session.Medications,
	}, "", "  ")

	return fmt.Sprintf(`You are a clinical triage specialist. Assess this patient intake and provide triage priority.

PATIENT INFORMATION:
%s

TRIAGE CRITERIA:
- RED (Emergency): Life-threatening, needs immediate attention. Score 9-10.
- ORANGE (Urgent): Serious but not immediately life-threatening. Score 7-8.
- YELLOW (Semi-Urgent): Needs attention within hours. Score 4-6.
- GREEN (Routine): Can wait for scheduled appointment. Score 1-3.

Return as JSON:
{"priority": "red|orange|yellow|green", "score": 1-10, "reasoning": "...", "specialties": ["primary", "alternative"], "red_flags_detected": [], "recommendations": []}

Return ONLY valid JSON.`, summary)
}
