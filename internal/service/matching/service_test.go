package matching

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/intake-api/internal/model"
	"github.com/jwalitptl/intake-api/internal/repository/memory"
	apperrors "github.com/jwalitptl/intake-api/pkg/errors"
	"github.com/jwalitptl/intake-api/pkg/llm"
)

// Saturday 10:30.
var fixedNow = time.Date(2026, time.October, 17, 10, 30, 0, 0, time.UTC)

type capturePublisher struct {
	mu     sync.Mutex
	events []string
}

func (c *capturePublisher) Publish(ctx context.Context, eventType string, payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, eventType)
	return nil
}

func newTestService(gen llm.TextGenerator, doctors ...model.Doctor) (*service, *capturePublisher) {
	pub := &capturePublisher{}
	roster := memory.NewRosterStore()
	roster.Replace(doctors)
	svc := NewService(Config{}, Deps{Roster: roster, Generator: gen, Publisher: pub}).(*service)
	svc.now = func() time.Time { return fixedNow }
	return svc, pub
}

func doctor(id, specialty string, load, maxLoad int) model.Doctor {
	return model.Doctor{
		ID:          id,
		Name:        "Doctor " + id,
		Specialty:   specialty,
		Languages:   []string{"English"},
		CurrentLoad: load,
		MaxLoad:     maxLoad,
		IsAvailable: true,
		Rating:      4.0,
	}
}

func cardiologist() model.Doctor {
	d := doctor("cardio", "Cardiology", 5, 20)
	d.Rating = 4.8
	d.ExperienceYears = 15
	d.IsOnline = true
	return d
}

func generalist() model.Doctor {
	d := doctor("gm", model.GeneralMedicine, 3, 25)
	d.Rating = 4.7
	return d
}

func TestRank_ExampleScore(t *testing.T) {
	results := Rank([]model.Doctor{cardiologist(), generalist()}, model.MatchQuery{
		Specialty: "Cardiology",
		Priority:  model.PriorityGreen,
	}, fixedNow)

	require.Len(t, results, 1)
	assert.Equal(t, "cardio", results[0].Doctor.ID)
	assert.InDelta(t, 88.35, results[0].MatchScore, 1e-9)
	assert.Equal(t, []string{
		"Specialty match: Cardiology",
		"Low current workload",
		"Highly experienced (15 years)",
		"Excellent rating (4.8/5)",
		"Currently online",
	}, results[0].MatchReasons)
	assert.Equal(t, "~1 day(s)", results[0].EstimatedWaitTime)
}

func TestRank_SpecialtyIsHardFilter(t *testing.T) {
	sub := doctor("sub", "Internal Medicine", 0, 10)
	sub.Subspecialty = "Interventional Cardiology"

	results := Rank([]model.Doctor{doctor("derm", "Dermatology", 0, 10), sub}, model.MatchQuery{
		Specialty: "cardiology",
		Priority:  model.PriorityGreen,
	}, fixedNow)

	require.Len(t, results, 1)
	assert.Equal(t, "sub", results[0].Doctor.ID)
	assert.Equal(t, "Subspecialty match: Interventional Cardiology", results[0].MatchReasons[0])
	// 35 + 25 + 0 + 8
	assert.InDelta(t, 68.0, results[0].MatchScore, 1e-9)
}

func TestRank_Eligibility(t *testing.T) {
	full := doctor("full", "Cardiology", 20, 20)
	away := doctor("away", "Cardiology", 0, 20)
	away.IsAvailable = false
	over := doctor("over", "Cardiology", 25, 20)

	green := Rank([]model.Doctor{full, away, over}, model.MatchQuery{Specialty: "Cardiology", Priority: model.PriorityGreen}, fixedNow)
	assert.Empty(t, green)

	red := Rank([]model.Doctor{full, away, over}, model.MatchQuery{Specialty: "Cardiology", Priority: model.PriorityRed}, fixedNow)
	require.Len(t, red, 2)
	for _, r := range red {
		assert.GreaterOrEqual(t, r.MatchScore, 0.0)
		assert.Equal(t, "Immediate", r.EstimatedWaitTime)
		assert.Equal(t, []string{"Immediate", "Within 15 minutes"}, r.AvailableSlots)
	}
	// Load points are zero for both, so ties keep roster order.
	assert.Equal(t, "full", red[0].Doctor.ID)
	assert.Equal(t, "over", red[1].Doctor.ID)
}

func TestRank_DeterministicAndStable(t *testing.T) {
	var doctors []model.Doctor
	for i := 0; i < 6; i++ {
		doctors = append(doctors, doctor(fmt.Sprintf("d%d", i), "Neurology", 4, 20))
	}
	better := doctor("best", "Neurology", 0, 20)
	doctors = append(doctors, better)

	q := model.MatchQuery{Specialty: "Neurology", Priority: model.PriorityYellow}
	first := Rank(doctors, q, fixedNow)
	second := Rank(doctors, q, fixedNow)
	assert.Equal(t, first, second)

	require.Len(t, first, 7)
	assert.Equal(t, "best", first[0].Doctor.ID)
	for i := 1; i < 7; i++ {
		assert.Equal(t, fmt.Sprintf("d%d", i-1), first[i].Doctor.ID)
	}

	q.MaxResults = 3
	assert.Len(t, Rank(doctors, q, fixedNow), 3)
}

func TestScore_LanguageAndBounds(t *testing.T) {
	d := doctor("x", "Cardiology", 0, 10)
	d.Languages = []string{"English", "Hindi"}
	d.ExperienceYears = 30
	d.Rating = 5
	d.IsOnline = true

	score, reasons := Score(d, weightSpecialty, "hindi")
	assert.InDelta(t, 100.0, score, 1e-9)
	assert.Contains(t, reasons, "Speaks hindi")

	score, _ = Score(d, weightSpecialty, "Tamil")
	assert.InDelta(t, 95.0, score, 1e-9)

	noCapacity := doctor("y", "Cardiology", 3, 0)
	noCapacity.Rating = 0
	score, reasons = Score(noCapacity, weightSpecialty, "")
	assert.InDelta(t, 40.0, score, 1e-9)
	assert.NotContains(t, reasons, "Low current workload")
}

func TestSlots(t *testing.T) {
	assert.Equal(t, []string{"Immediate", "Within 15 minutes"}, Slots(model.PriorityRed, fixedNow))
	assert.Equal(t, []string{"Today at 11:00", "Today at 12:00", "Today at 13:00"}, Slots(model.PriorityOrange, fixedNow))
	assert.Equal(t, []string{"Today at 12:00", "Today at 13:00", "Tomorrow at 09:00", "Tomorrow at 11:00"}, Slots(model.PriorityYellow, fixedNow))
	assert.Equal(t, []string{
		"Sunday at 10:00", "Sunday at 14:00",
		"Monday at 10:00", "Monday at 14:00",
		"Tuesday at 10:00",
	}, Slots(model.PriorityGreen, fixedNow))

	evening := time.Date(2026, time.October, 17, 16, 45, 0, 0, time.UTC)
	assert.Equal(t, []string{"Today at 17:00"}, Slots(model.PriorityOrange, evening))
	assert.Equal(t, []string{"Tomorrow at 09:00", "Tomorrow at 11:00"}, Slots(model.PriorityYellow, evening))
}

func TestWaitTime(t *testing.T) {
	tests := []struct {
		load     int
		priority model.Priority
		want     string
	}{
		{5, model.PriorityRed, "Immediate"},
		{0, model.PriorityOrange, "~15 minutes"},
		{5, model.PriorityOrange, "~37 minutes"},
		{30, model.PriorityOrange, "~225 minutes"},
		{3, model.PriorityYellow, "~1 hour(s)"},
		{12, model.PriorityYellow, "~3 hour(s)"},
		{5, model.PriorityGreen, "~1 day(s)"},
		{30, model.PriorityGreen, "~3 day(s)"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%d", tt.priority, tt.load), func(t *testing.T) {
			assert.Equal(t, tt.want, WaitTime(doctor("d", "x", tt.load, 40), tt.priority))
		})
	}
}

func TestFind_CascadeToGeneralMedicine(t *testing.T) {
	svc, _ := newTestService(llm.Offline{}, cardiologist(), generalist())

	outcome := svc.Find(context.Background(), model.MatchQuery{Specialty: "Dermatology", Priority: model.PriorityGreen})

	assert.True(t, outcome.Found)
	assert.True(t, outcome.Substituted)
	assert.Equal(t, "Dermatology", outcome.RequestedSpecialty)
	assert.Equal(t, model.GeneralMedicine, outcome.MatchedSpecialty)
	require.Len(t, outcome.Matches, 1)
	assert.Equal(t, "gm", outcome.Matches[0].Doctor.ID)
}

func TestFind_CascadeToSecondary(t *testing.T) {
	svc, _ := newTestService(llm.Offline{}, doctor("neuro", "Neurology", 1, 10), generalist())

	outcome := svc.Find(context.Background(), model.MatchQuery{
		Specialty:          "Dermatology",
		SecondarySpecialty: "Neurology",
	})

	assert.True(t, outcome.Found)
	assert.Equal(t, "Neurology", outcome.MatchedSpecialty)
	assert.Equal(t, "neuro", outcome.Matches[0].Doctor.ID)
}

func TestFind_NoEligibleDoctor(t *testing.T) {
	svc, _ := newTestService(llm.Offline{}, cardiologist())

	outcome := svc.Find(context.Background(), model.MatchQuery{Specialty: "Dermatology"})

	assert.False(t, outcome.Found)
	assert.NotNil(t, outcome.Matches)
	assert.Empty(t, outcome.Matches)
	assert.Equal(t, "Dermatology", outcome.RequestedSpecialty)
	assert.Equal(t, noDoctorsMessage, outcome.Message)
}

func TestFind_ResolvesSpecialtyFromSymptoms(t *testing.T) {
	svc, _ := newTestService(llm.Offline{}, doctor("derm", "Dermatology", 0, 10), generalist())

	outcome := svc.Find(context.Background(), model.MatchQuery{Symptoms: "itchy rash on my arm"})

	assert.True(t, outcome.Found)
	assert.False(t, outcome.Substituted)
	assert.Equal(t, "Dermatology", outcome.RequestedSpecialty)
	assert.Equal(t, "derm", outcome.Matches[0].Doctor.ID)
}

func TestBestMatch_Alternatives(t *testing.T) {
	var doctors []model.Doctor
	for i := 0; i < 5; i++ {
		doctors = append(doctors, doctor(fmt.Sprintf("c%d", i), "Cardiology", i, 20))
	}
	svc, _ := newTestService(llm.Offline{}, doctors...)

	rec := svc.BestMatch(context.Background(), model.MatchQuery{Specialty: "Cardiology", Priority: model.PriorityGreen})

	require.True(t, rec.Found)
	require.NotNil(t, rec.Recommended)
	assert.Equal(t, "c0", rec.Recommended.Doctor.ID)
	assert.Len(t, rec.Recommended.AvailableSlots, 5)
	require.Len(t, rec.Alternatives, 3)
	for i, alt := range rec.Alternatives {
		assert.Equal(t, fmt.Sprintf("c%d", i+1), alt.Doctor.ID)
		assert.Len(t, alt.AvailableSlots, 2)
	}
}

func TestBestMatch_NotFound(t *testing.T) {
	svc, _ := newTestService(llm.Offline{})
	rec := svc.BestMatch(context.Background(), model.MatchQuery{Specialty: "Cardiology"})
	assert.False(t, rec.Found)
	assert.Nil(t, rec.Recommended)
	assert.Empty(t, rec.Alternatives)
	assert.Equal(t, "Cardiology", rec.RequestedSpecialty)
}

func TestLoad(t *testing.T) {
	svc, _ := newTestService(llm.Offline{})
	ctx := context.Background()
	badRating := 6.0
	sub := "Electrophysiology"

	_, err := svc.Load(ctx, []model.DoctorRecord{{ID: "1", Name: "A", Rating: &badRating}})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrBadRequest))

	_, err = svc.Load(ctx, []model.DoctorRecord{{ID: "1", Name: "A"}, {ID: "1", Name: "B"}})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrBadRequest))

	n, err := svc.Load(ctx, []model.DoctorRecord{
		{ID: "1", Name: "A"},
		{ID: "2", Name: "B", Specialty: "Cardiology", Subspecialty: sub},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	snap := svc.roster.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, model.GeneralMedicine, snap[0].Specialty)
	assert.Equal(t, []string{"English"}, snap[0].Languages)
	assert.Equal(t, 20, snap[0].MaxLoad)
	assert.True(t, snap[0].IsAvailable)
	assert.Equal(t, 4.0, snap[0].Rating)

	assert.Equal(t, []string{"Cardiology", "Electrophysiology", model.GeneralMedicine}, svc.Specialties())
}

func TestAssign(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown doctor", func(t *testing.T) {
		svc, _ := newTestService(llm.Offline{}, cardiologist())
		_, err := svc.Assign(ctx, model.AssignRequest{DoctorID: "nobody", Slot: "Immediate"})
		assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))
	})

	t.Run("missing slot", func(t *testing.T) {
		svc, _ := newTestService(llm.Offline{}, cardiologist())
		_, err := svc.Assign(ctx, model.AssignRequest{DoctorID: "cardio"})
		assert.True(t, apperrors.HasCode(err, apperrors.ErrBadRequest))
	})

	t.Run("generated reasoning", func(t *testing.T) {
		gen := llm.GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
			assert.Contains(t, prompt, "Specialty: Cardiology")
			return "  Cardiology fits the chest symptoms.  ", nil
		})
		svc, pub := newTestService(gen, cardiologist())

		a, err := svc.Assign(ctx, model.AssignRequest{DoctorID: "cardio", Slot: "Sunday at 10:00", Symptoms: []string{"palpitations"}})
		require.NoError(t, err)
		assert.Equal(t, "Cardiology fits the chest symptoms.", a.Reasoning)
		assert.Equal(t, "Successfully assigned to Dr. Doctor cardio", a.Message)
		assert.Equal(t, fixedNow, a.AssignedAt)
		assert.Equal(t, []string{model.EventDoctorAssigned}, pub.events)
	})

	t.Run("fallback reasoning", func(t *testing.T) {
		svc, _ := newTestService(llm.Offline{}, cardiologist())
		a, err := svc.Assign(ctx, model.AssignRequest{DoctorID: "cardio", Slot: "Immediate"})
		require.NoError(t, err)
		assert.Contains(t, a.Reasoning, "Specialty: Cardiology")
		assert.Contains(t, a.Reasoning, "Highly experienced (15 years)")
	})
}
