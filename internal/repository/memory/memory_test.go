package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/intake-api/internal/model"
	"github.com/jwalitptl/intake-api/internal/repository"
)

func TestSessionStore_CRUD(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()

	s := model.NewIntakeSession("s1", "p1", 8, time.Now())
	require.NoError(t, store.Create(ctx, s))
	assert.ErrorIs(t, store.Create(ctx, s), repository.ErrAlreadyExists)

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "p1", got.PatientID)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = store.Update(ctx, "missing", func(*model.IntakeSession) error { return nil })
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSessionStore_UpdateDiscardsOnError(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()
	require.NoError(t, store.Create(ctx, model.NewIntakeSession("s1", "", 8, time.Now())))

	boom := errors.New("boom")
	_, err := store.Update(ctx, "s1", func(s *model.IntakeSession) error {
		s.TurnCount = 99
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, _ := store.Get(ctx, "s1")
	assert.Equal(t, 0, got.TurnCount)
}

func TestSessionStore_ConcurrentUpdatesSameSession(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()
	require.NoError(t, store.Create(ctx, model.NewIntakeSession("s1", "", 8, time.Now())))

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Update(ctx, "s1", func(s *model.IntakeSession) error {
				s.TurnCount++
				s.AddMessage(model.RoleUser, "x", time.Now())
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, _ := store.Get(ctx, "s1")
	assert.Equal(t, 100, got.TurnCount)
	assert.Len(t, got.Messages, 100)
}

func TestSessionStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()
	base := time.Now()
	require.NoError(t, store.Create(ctx, model.NewIntakeSession("old", "", 8, base)))
	require.NoError(t, store.Create(ctx, model.NewIntakeSession("new", "", 8, base.Add(time.Minute))))

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].ID)
}

func TestRosterStore_ReplaceIsolatesSnapshots(t *testing.T) {
	r := NewRosterStore()
	assert.Empty(t, r.Snapshot())

	input := []model.Doctor{{ID: "d1"}}
	r.Replace(input)
	snap := r.Snapshot()
	input[0].ID = "mutated"

	assert.Equal(t, "d1", snap[0].ID)
	r.Replace([]model.Doctor{{ID: "d2"}, {ID: "d3"}})
	assert.Equal(t, "d1", snap[0].ID)
	assert.Len(t, r.Snapshot(), 2)
}

func TestLearningStore_AppendAndFilter(t *testing.T) {
	ctx := context.Background()
	store := NewLearningStore()
	now := time.Now()

	_, err := store.Append(ctx, model.EditLog{ID: "1", Specialty: "Cardiology", EditDistance: 0.2, Timestamp: now})
	require.NoError(t, err)
	m, err := store.Append(ctx, model.EditLog{ID: "2", Specialty: "Cardiology", EditDistance: 0.4, Timestamp: now})
	require.NoError(t, err)
	_, err = store.Append(ctx, model.EditLog{ID: "3", Specialty: "Neurology", EditDistance: 0.9, Timestamp: now})
	require.NoError(t, err)

	assert.Equal(t, 2, m.TotalEdits)
	assert.InDelta(t, 0.3, m.AvgEditDistance, 1e-9)

	cardio, _ := store.Edits(ctx, "Cardiology")
	assert.Len(t, cardio, 2)
	all, _ := store.Edits(ctx, "")
	assert.Len(t, all, 3)

	_, ok, _ := store.Metrics(ctx, "Dermatology")
	assert.False(t, ok)

	_, err = store.Append(ctx, model.EditLog{ID: "1", Specialty: "Cardiology"})
	assert.ErrorIs(t, err, repository.ErrAlreadyExists)
}

func TestLearningStore_ImportKeepsExistingCorpus(t *testing.T) {
	ctx := context.Background()
	store := NewLearningStore()
	now := time.Date(2026, time.October, 17, 9, 0, 0, 0, time.UTC)

	_, err := store.Append(ctx, model.EditLog{ID: "1", Specialty: "Cardiology", EditDistance: 0.2, Timestamp: now})
	require.NoError(t, err)

	n, err := store.Import(ctx, []model.EditLog{
		{ID: "1", Specialty: "Cardiology", EditDistance: 0.2, Timestamp: now},
		{ID: "2", Specialty: "Cardiology", EditDistance: 0.4, Timestamp: now.Add(time.Minute)},
	}, map[string]model.SpecialtyMetrics{
		"Neurology": {Specialty: "Neurology", TotalEdits: 2, AvgEditDistance: 0.5},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all, _ := store.Edits(ctx, "")
	require.Len(t, all, 2)
	assert.Equal(t, "1", all[0].ID)
	assert.Equal(t, "2", all[1].ID)

	cardio, ok, _ := store.Metrics(ctx, "Cardiology")
	require.True(t, ok)
	assert.Equal(t, 2, cardio.TotalEdits)
	assert.InDelta(t, 0.3, cardio.AvgEditDistance, 1e-9)
	assert.Len(t, cardio.Trend, 2)

	neuro, ok, _ := store.Metrics(ctx, "Neurology")
	require.True(t, ok)
	assert.Equal(t, 2, neuro.TotalEdits)

	n, err = store.Import(ctx, nil, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	all, _ = store.Edits(ctx, "")
	assert.Len(t, all, 2)
}

func TestLearningStore_EditsAreCopies(t *testing.T) {
	ctx := context.Background()
	store := NewLearningStore()
	_, err := store.Append(ctx, model.EditLog{
		ID:             "1",
		Specialty:      "Cardiology",
		OriginalSOAP:   model.SOAPNote{"assessment": "angina"},
		EditedSOAP:     model.SOAPNote{"assessment": "unstable angina"},
		SectionsEdited: []string{"assessment"},
	})
	require.NoError(t, err)

	first, _ := store.Edits(ctx, "")
	first[0].OriginalSOAP["assessment"] = "mutated"
	first[0].EditedSOAP["plan"] = "mutated"
	first[0].SectionsEdited[0] = "mutated"

	second, _ := store.Edits(ctx, "Cardiology")
	assert.Equal(t, model.SOAPNote{"assessment": "angina"}, second[0].OriginalSOAP)
	assert.Equal(t, model.SOAPNote{"assessment": "unstable angina"}, second[0].EditedSOAP)
	assert.Equal(t, []string{"assessment"}, second[0].SectionsEdited)
}

func TestSessionStore_Prune(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()
	base := time.Date(2026, time.October, 17, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.Create(ctx, model.NewIntakeSession("old", "", 8, base)))
	require.NoError(t, store.Create(ctx, model.NewIntakeSession("new", "", 8, base.Add(2*time.Hour))))

	n, err := store.Prune(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = store.Get(ctx, "old")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = store.Get(ctx, "new")
	assert.NoError(t, err)
}
