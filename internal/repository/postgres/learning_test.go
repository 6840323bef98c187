package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/intake-api/internal/model"
	"github.com/jwalitptl/intake-api/internal/repository"
)

var (
	editLogCols = []string{"id", "encounter_id", "doctor_id", "specialty", "original_soap", "edited_soap",
		"sections_edited", "edit_distance", "edit_category", "edit_severity", "created_at"}
	metricsCols = []string{"specialty", "total_edits", "avg_edit_distance", "trend", "updated_at"}
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func sampleEdit(distance float64, at time.Time) model.EditLog {
	return model.EditLog{
		ID:             "edit-1",
		EncounterID:    "enc-1",
		DoctorID:       "doc-1",
		Specialty:      "Cardiology",
		OriginalSOAP:   model.SOAPNote{"Plan": "rest"},
		EditedSOAP:     model.SOAPNote{"Plan": "rest and review"},
		SectionsEdited: []string{"Plan"},
		EditDistance:   distance,
		EditCategory:   model.EditAddition,
		EditSeverity:   model.SeverityMinor,
		Timestamp:      at,
	}
}

func TestMigrate(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS edit_logs").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, Migrate(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLearningStore_AppendFirstEdit(t *testing.T) {
	db, mock := newMock(t)
	store := NewLearningStore(db)
	at := time.Date(2026, time.October, 17, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO edit_logs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM specialty_metrics WHERE specialty = \\$1 FOR UPDATE").
		WithArgs("Cardiology").
		WillReturnRows(sqlmock.NewRows(metricsCols))
	mock.ExpectExec("INSERT INTO specialty_metrics").
		WithArgs("Cardiology", 1, 0.25, sqlmock.AnyArg(), at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	m, err := store.Append(context.Background(), sampleEdit(0.25, at))
	require.NoError(t, err)
	assert.Equal(t, 1, m.TotalEdits)
	assert.Equal(t, 0.25, m.AvgEditDistance)
	require.Len(t, m.Trend, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLearningStore_AppendFoldsIntoExistingMetrics(t *testing.T) {
	db, mock := newMock(t)
	store := NewLearningStore(db)
	at := time.Date(2026, time.October, 17, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO edit_logs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM specialty_metrics WHERE specialty = \\$1 FOR UPDATE").
		WillReturnRows(sqlmock.NewRows(metricsCols).
			AddRow("Cardiology", 1, 0.2, []byte(`[{"timestamp":"2026-10-17T09:00:00Z","edit_distance":0.2}]`), at))
	mock.ExpectExec("INSERT INTO specialty_metrics").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	m, err := store.Append(context.Background(), sampleEdit(0.4, at))
	require.NoError(t, err)
	assert.Equal(t, 2, m.TotalEdits)
	assert.InDelta(t, 0.3, m.AvgEditDistance, 1e-9)
	assert.Len(t, m.Trend, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLearningStore_AppendRollsBackOnFailure(t *testing.T) {
	db, mock := newMock(t)
	store := NewLearningStore(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO edit_logs").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := store.Append(context.Background(), sampleEdit(0.1, time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLearningStore_EditsDecodesRows(t *testing.T) {
	db, mock := newMock(t)
	store := NewLearningStore(db)
	at := time.Date(2026, time.October, 17, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM edit_logs WHERE specialty = \\$1").
		WithArgs("Cardiology").
		WillReturnRows(sqlmock.NewRows(editLogCols).AddRow(
			"edit-1", "enc-1", "doc-1", "Cardiology",
			[]byte(`{"Plan":"rest"}`), []byte(`{"Plan":"rest and review"}`), []byte(`["Plan"]`),
			0.25, "addition", "minor", at,
		))

	logs, err := store.Edits(context.Background(), "Cardiology")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "rest and review", logs[0].EditedSOAP["Plan"])
	assert.Equal(t, []string{"Plan"}, logs[0].SectionsEdited)
	assert.Equal(t, model.EditAddition, logs[0].EditCategory)
	assert.Equal(t, at, logs[0].Timestamp)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLearningStore_MetricsNotFound(t *testing.T) {
	db, mock := newMock(t)
	store := NewLearningStore(db)

	mock.ExpectQuery("FROM specialty_metrics WHERE specialty = \\$1").
		WithArgs("Neurology").
		WillReturnRows(sqlmock.NewRows(metricsCols))

	_, ok, err := store.Metrics(context.Background(), "Neurology")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLearningStore_AllMetrics(t *testing.T) {
	db, mock := newMock(t)
	store := NewLearningStore(db)
	at := time.Now()

	mock.ExpectQuery("FROM specialty_metrics").
		WillReturnRows(sqlmock.NewRows(metricsCols).
			AddRow("Cardiology", 2, 0.3, []byte(`[]`), at).
			AddRow("Neurology", 1, 0.1, []byte(`[]`), at))

	all, err := store.AllMetrics(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, 2, all["Cardiology"].TotalEdits)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLearningStore_AppendDuplicateID(t *testing.T) {
	db, mock := newMock(t)
	store := NewLearningStore(db)

	mock.ExpectBegin()
	mock.ExpectExec("(?s)INSERT INTO edit_logs.*ON CONFLICT \\(id\\) DO NOTHING").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := store.Append(context.Background(), sampleEdit(0.1, time.Now()))
	assert.ErrorIs(t, err, repository.ErrAlreadyExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLearningStore_ImportAppendsToExistingCorpus(t *testing.T) {
	db, mock := newMock(t)
	store := NewLearningStore(db)
	at := time.Date(2026, time.October, 17, 10, 0, 0, 0, time.UTC)

	known := sampleEdit(0.2, at.Add(-time.Hour))
	fresh := sampleEdit(0.4, at)
	fresh.ID = "edit-2"

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO edit_logs").
		WithArgs("edit-1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO edit_logs").
		WithArgs("edit-2", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM specialty_metrics WHERE specialty = \\$1 FOR UPDATE").
		WithArgs("Cardiology").
		WillReturnRows(sqlmock.NewRows(metricsCols).
			AddRow("Cardiology", 1, 0.2, []byte(`[{"timestamp":"2026-10-17T09:00:00Z","edit_distance":0.2}]`), at))
	mock.ExpectQuery("FROM specialty_metrics WHERE specialty = \\$1 FOR UPDATE").
		WithArgs("Neurology").
		WillReturnRows(sqlmock.NewRows(metricsCols))
	mock.ExpectExec("INSERT INTO specialty_metrics").
		WithArgs("Cardiology", 2, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO specialty_metrics").
		WithArgs("Neurology", 3, 0.5, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := store.Import(context.Background(),
		[]model.EditLog{known, fresh},
		map[string]model.SpecialtyMetrics{"Neurology": {Specialty: "Neurology", TotalEdits: 3, AvgEditDistance: 0.5}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLearningStore_ImportEmptyTouchesNothing(t *testing.T) {
	db, mock := newMock(t)
	store := NewLearningStore(db)

	mock.ExpectBegin()
	mock.ExpectCommit()

	n, err := store.Import(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
