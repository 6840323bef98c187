package triage

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/intake-api/internal/model"
	"github.com/jwalitptl/intake-api/pkg/llm"
	"github.com/jwalitptl/intake-api/pkg/metrics"
)

func fixed(out string, err error) llm.TextGenerator {
	return llm.GeneratorFunc(func(context.Context, string) (string, error) { return out, err })
}

func session() *model.IntakeSession {
	s := model.NewIntakeSession("s1", "", 8, time.Now())
	s.Collected.ChiefComplaint = "persistent cough"
	s.Collected.Duration = "2 weeks"
	return s
}

func TestScore_ParsesModelAnswer(t *testing.T) {
	m := metrics.NewNop()
	sc := NewScorer(fixed(`{"priority":"Orange","score":8,"reasoning":"worsening","specialties":["Pulmonology","General Medicine"],"red_flags_detected":["fever"],"recommendations":["see today"]}`, nil), nil, m)

	got := sc.Score(context.Background(), session())
	assert.Equal(t, model.PriorityOrange, got.Priority)
	assert.Equal(t, 8, got.Score)
	assert.Equal(t, []string{"Pulmonology", "General Medicine"}, got.Specialties)
	assert.Equal(t, []string{"fever"}, got.RedFlags)
	assert.False(t, got.Fallback)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TriageResults.WithLabelValues("orange")))
}

func TestScore_ClampsScoreIntoBand(t *testing.T) {
	sc := NewScorer(fixed(`{"priority":"green","score":9}`, nil), nil, nil)
	got := sc.Score(context.Background(), session())
	assert.Equal(t, model.PriorityGreen, got.Priority)
	assert.Equal(t, 3, got.Score)
}

func TestScore_MissingScoreUsesBandMidpoint(t *testing.T) {
	sc := NewScorer(fixed(`{"priority":"yellow"}`, nil), nil, nil)
	got := sc.Score(context.Background(), session())
	assert.Equal(t, 5, got.Score)
	assert.Equal(t, []string{"Pulmonology"}, got.Specialties)
}

func TestScore_Fallbacks(t *testing.T) {
	tests := []struct {
		name string
		gen  llm.TextGenerator
	}{
		{"rate limited", fixed("", &llm.RateLimitError{})},
		{"unavailable", fixed("", llm.ErrModelUnavailable)},
		{"malformed", fixed("{priority: red", nil)},
		{"unknown band", fixed(`{"priority":"purple","score":5}`, nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.NewNop()
			got := NewScorer(tt.gen, nil, m).Score(context.Background(), session())
			assert.Equal(t, model.PriorityYellow, got.Priority)
			assert.Equal(t, 5, got.Score)
			assert.Equal(t, []string{"General Medicine"}, got.Specialties)
			assert.True(t, got.Fallback)
			assert.Equal(t, float64(1), testutil.ToFloat64(m.LLMFallbacks.WithLabelValues("triage")))
		})
	}
}
