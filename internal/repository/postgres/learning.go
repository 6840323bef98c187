package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/intake-api/internal/model"
	"github.com/jwalitptl/intake-api/internal/repository"
)

type learningRepository struct {
	db *sqlx.DB
}

// NewLearningStore persists the edit corpus and per-specialty metrics.
// Run Migrate first.
func NewLearningStore(db *sqlx.DB) repository.LearningStore {
	return &learningRepository{db: db}
}

type editLogRow struct {
	ID             string    `db:"id"`
	EncounterID    string    `db:"encounter_id"`
	DoctorID       string    `db:"doctor_id"`
	Specialty      string    `db:"specialty"`
	OriginalSOAP   []byte    `db:"original_soap"`
	EditedSOAP     []byte    `db:"edited_soap"`
	SectionsEdited []byte    `db:"sections_edited"`
	EditDistance   float64   `db:"edit_distance"`
	EditCategory   string    `db:"edit_category"`
	EditSeverity   string    `db:"edit_severity"`
	CreatedAt      time.Time `db:"created_at"`
}

func (r editLogRow) toModel() (model.EditLog, error) {
	log := model.EditLog{
		ID:           r.ID,
		EncounterID:  r.EncounterID,
		DoctorID:     r.DoctorID,
		Specialty:    r.Specialty,
		EditDistance: r.EditDistance,
		EditCategory: model.EditCategory(r.EditCategory),
		EditSeverity: model.EditSeverity(r.EditSeverity),
		Timestamp:    r.CreatedAt,
	}
	if err := json.Unmarshal(r.OriginalSOAP, &log.OriginalSOAP); err != nil {
		return log, fmt.Errorf("failed to decode original note for edit %s: %w", r.ID, err)
	}
	if err := json.Unmarshal(r.EditedSOAP, &log.EditedSOAP); err != nil {
		return log, fmt.Errorf("failed to decode edited note for edit %s: %w", r.ID, err)
	}
	if err := json.Unmarshal(r.SectionsEdited, &log.SectionsEdited); err != nil {
		return log, fmt.Errorf("failed to decode sections for edit %s: %w", r.ID, err)
	}
	return log, nil
}

type metricsRow struct {
	Specialty       string    `db:"specialty"`
	TotalEdits      int       `db:"total_edits"`
	AvgEditDistance float64   `db:"avg_edit_distance"`
	Trend           []byte    `db:"trend"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (r metricsRow) toModel() (model.SpecialtyMetrics, error) {
	m := model.SpecialtyMetrics{
		Specialty:       r.Specialty,
		TotalEdits:      r.TotalEdits,
		AvgEditDistance: r.AvgEditDistance,
	}
	if err := json.Unmarshal(r.Trend, &m.Trend); err != nil {
		return m, fmt.Errorf("failed to decode trend for %s: %w", r.Specialty, err)
	}
	return m, nil
}

const (
	editLogColumns = `id, encounter_id, doctor_id, specialty, original_soap, edited_soap,
		sections_edited, edit_distance, edit_category, edit_severity, created_at`
	metricsColumns = `specialty, total_edits, avg_edit_distance, trend, updated_at`
)

func (r *learningRepository) Append(ctx context.Context, log model.EditLog) (model.SpecialtyMetrics, error) {
	var out model.SpecialtyMetrics
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		inserted, err := insertEditLog(ctx, tx, log)
		if err != nil {
			return err
		}
		if !inserted {
			return repository.ErrAlreadyExists
		}

		if out, err = lockMetrics(ctx, tx, log.Specialty); err != nil {
			return err
		}
		out.Observe(log.EditDistance, log.Timestamp)
		return upsertMetrics(ctx, tx, out, log.Timestamp)
	})
	if err != nil {
		return model.SpecialtyMetrics{}, err
	}
	return out, nil
}

func (r *learningRepository) Edits(ctx context.Context, specialty string) ([]model.EditLog, error) {
	query := `SELECT ` + editLogColumns + ` FROM edit_logs`
	var args []interface{}
	if specialty != "" {
		query += ` WHERE specialty = $1`
		args = append(args, specialty)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	var rows []editLogRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list edit logs: %w", err)
	}

	out := make([]model.EditLog, 0, len(rows))
	for _, row := range rows {
		log, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, log)
	}
	return out, nil
}

func (r *learningRepository) Metrics(ctx context.Context, specialty string) (model.SpecialtyMetrics, bool, error) {
	var row metricsRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+metricsColumns+` FROM specialty_metrics WHERE specialty = $1`, specialty)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SpecialtyMetrics{}, false, nil
	}
	if err != nil {
		return model.SpecialtyMetrics{}, false, fmt.Errorf("failed to get metrics for %s: %w", specialty, err)
	}
	m, err := row.toModel()
	if err != nil {
		return model.SpecialtyMetrics{}, false, err
	}
	return m, true, nil
}

func (r *learningRepository) AllMetrics(ctx context.Context) (map[string]model.SpecialtyMetrics, error) {
	var rows []metricsRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT `+metricsColumns+` FROM specialty_metrics`); err != nil {
		return nil, fmt.Errorf("failed to list metrics: %w", err)
	}

	out := make(map[string]model.SpecialtyMetrics, len(rows))
	for _, row := range rows {
		m, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out[m.Specialty] = m
	}
	return out, nil
}

func (r *learningRepository) Import(ctx context.Context, logs []model.EditLog, metrics map[string]model.SpecialtyMetrics) (int, error) {
	var appended int
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		appended = 0
		touched := map[string]*model.SpecialtyMetrics{}
		load := func(specialty string) (*model.SpecialtyMetrics, error) {
			if m, ok := touched[specialty]; ok {
				return m, nil
			}
			m, err := lockMetrics(ctx, tx, specialty)
			if err != nil {
				return nil, err
			}
			touched[specialty] = &m
			return &m, nil
		}

		for _, log := range logs {
			inserted, err := insertEditLog(ctx, tx, log)
			if err != nil {
				return err
			}
			if !inserted {
				continue
			}
			m, err := load(log.Specialty)
			if err != nil {
				return err
			}
			m.Observe(log.EditDistance, log.Timestamp)
			appended++
		}
		for _, name := range slices.Sorted(maps.Keys(metrics)) {
			m, err := load(name)
			if err != nil {
				return err
			}
			m.Merge(metrics[name])
		}

		now := time.Now().UTC()
		for _, name := range slices.Sorted(maps.Keys(touched)) {
			if m := touched[name]; m.TotalEdits > 0 {
				if err := upsertMetrics(ctx, tx, *m, now); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return appended, nil
}

// lockMetrics reads a specialty's metrics row FOR UPDATE, or a zero
// aggregate when the specialty has none yet.
func lockMetrics(ctx context.Context, tx *sqlx.Tx, specialty string) (model.SpecialtyMetrics, error) {
	var row metricsRow
	err := tx.GetContext(ctx, &row,
		`SELECT `+metricsColumns+` FROM specialty_metrics WHERE specialty = $1 FOR UPDATE`,
		specialty)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return model.SpecialtyMetrics{Specialty: specialty}, nil
	case err != nil:
		return model.SpecialtyMetrics{}, fmt.Errorf("failed to load metrics for %s: %w", specialty, err)
	}
	return row.toModel()
}

// insertEditLog reports false when a log with the same id is already stored.
func insertEditLog(ctx context.Context, tx sqlx.ExecerContext, log model.EditLog) (bool, error) {
	original, err := json.Marshal(log.OriginalSOAP)
	if err != nil {
		return false, fmt.Errorf("failed to encode original note: %w", err)
	}
	edited, err := json.Marshal(log.EditedSOAP)
	if err != nil {
		return false, fmt.Errorf("failed to encode edited note: %w", err)
	}
	sections := log.SectionsEdited
	if sections == nil {
		sections = []string{}
	}
	sectionsJSON, err := json.Marshal(sections)
	if err != nil {
		return false, fmt.Errorf("failed to encode sections: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO edit_logs (`+editLogColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING`,
		log.ID,
		log.EncounterID,
		log.DoctorID,
		log.Specialty,
		original,
		edited,
		sectionsJSON,
		log.EditDistance,
		string(log.EditCategory),
		string(log.EditSeverity),
		log.Timestamp,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert edit log %s: %w", log.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to insert edit log %s: %w", log.ID, err)
	}
	return n > 0, nil
}

func upsertMetrics(ctx context.Context, tx sqlx.ExecerContext, m model.SpecialtyMetrics, at time.Time) error {
	trend := m.Trend
	if trend == nil {
		trend = []model.TrendPoint{}
	}
	trendJSON, err := json.Marshal(trend)
	if err != nil {
		return fmt.Errorf("failed to encode trend: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO specialty_metrics (`+metricsColumns+`)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (specialty) DO UPDATE SET
			total_edits = EXCLUDED.total_edits,
			avg_edit_distance = EXCLUDED.avg_edit_distance,
			trend = EXCLUDED.trend,
			updated_at = EXCLUDED.updated_at`,
		m.Specialty,
		m.TotalEdits,
		m.AvgEditDistance,
		trendJSON,
		at,
	)
	if err != nil {
		return fmt.Errorf("failed to save metrics for %s: %w", m.Specialty, err)
	}
	return nil
}
