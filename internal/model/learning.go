package model

import (
	"sort"
	"time"
)

type EditCategory string

const (
	EditCorrection       EditCategory = "correction"
	EditAddition         EditCategory = "addition"
	EditRemoval          EditCategory = "removal"
	EditClarification    EditCategory = "clarification"
	EditStyle            EditCategory = "style"
	EditClinicalJudgment EditCategory = "clinical_judgment"
)

// ParseEditCategory accepts only the known categories.
func ParseEditCategory(s string) (EditCategory, bool) {
	switch c := EditCategory(s); c {
	case EditCorrection, EditAddition, EditRemoval, EditClarification, EditStyle, EditClinicalJudgment:
		return c, true
	default:
		return "", false
	}
}

type EditSeverity string

const (
	SeverityMinor    EditSeverity = "minor"
	SeverityModerate EditSeverity = "moderate"
	SeverityMajor    EditSeverity = "major"
)

// EditLog records one clinician edit to a drafted note. Append-only.
type EditLog struct {
	ID             string       `json:"id"`
	EncounterID    string       `json:"encounter_id"`
	DoctorID       string       `json:"doctor_id"`
	Specialty      string       `json:"specialty"`
	OriginalSOAP   SOAPNote     `json:"original_soap"`
	EditedSOAP     SOAPNote     `json:"edited_soap"`
	SectionsEdited []string     `json:"sections_edited"`
	EditDistance   float64      `json:"edit_distance"`
	EditCategory   EditCategory `json:"edit_category"`
	EditSeverity   EditSeverity `json:"edit_severity"`
	Timestamp      time.Time    `json:"timestamp"`
}

// Clone copies the notes and section list so the result shares no state.
func (l EditLog) Clone() EditLog {
	l.OriginalSOAP = l.OriginalSOAP.Clone()
	l.EditedSOAP = l.EditedSOAP.Clone()
	if l.SectionsEdited != nil {
		l.SectionsEdited = append([]string(nil), l.SectionsEdited...)
	}
	return l
}

type TrendPoint struct {
	Timestamp    time.Time `json:"timestamp"`
	EditDistance float64   `json:"edit_distance"`
}

// MaxTrendPoints bounds the per-specialty trend list.
const MaxTrendPoints = 100

type SpecialtyMetrics struct {
	Specialty       string       `json:"specialty"`
	TotalEdits      int          `json:"total_edits"`
	AvgEditDistance float64      `json:"avg_edit_distance"`
	Trend           []TrendPoint `json:"improvement_trend"`
}

// Observe folds one edit distance into the running mean and trend.
func (m *SpecialtyMetrics) Observe(distance float64, at time.Time) {
	m.TotalEdits++
	m.AvgEditDistance += (distance - m.AvgEditDistance) / float64(m.TotalEdits)
	m.Trend = append(m.Trend, TrendPoint{Timestamp: at, EditDistance: distance})
	if len(m.Trend) > MaxTrendPoints {
		m.Trend = append([]TrendPoint(nil), m.Trend[len(m.Trend)-MaxTrendPoints:]...)
	}
}

// Merge folds another aggregate into m. Means are weighted by edit count
// and the trend keeps the newest points.
func (m *SpecialtyMetrics) Merge(other SpecialtyMetrics) {
	total := m.TotalEdits + other.TotalEdits
	if total == 0 {
		return
	}
	m.AvgEditDistance = (m.AvgEditDistance*float64(m.TotalEdits) + other.AvgEditDistance*float64(other.TotalEdits)) / float64(total)
	m.TotalEdits = total

	trend := make([]TrendPoint, 0, len(m.Trend)+len(other.Trend))
	trend = append(append(trend, m.Trend...), other.Trend...)
	sort.SliceStable(trend, func(i, j int) bool { return trend[i].Timestamp.Before(trend[j].Timestamp) })
	if len(trend) > MaxTrendPoints {
		trend = trend[len(trend)-MaxTrendPoints:]
	}
	m.Trend = trend
}

func (m SpecialtyMetrics) Clone() SpecialtyMetrics {
	m.Trend = append([]TrendPoint(nil), m.Trend...)
	return m
}

type LearningInsight struct {
	Category              string  `json:"category"`
	Insight               string  `json:"insight"`
	Frequency             int     `json:"frequency"`
	Specialty             string  `json:"specialty,omitempty"`
	SuggestedPromptUpdate string  `json:"suggested_prompt_update"`
	Confidence            float64 `json:"confidence"`
}

// InsufficientDataCategory marks the placeholder insight for small corpora.
const InsufficientDataCategory = "insufficient_data"

type Share struct {
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type PatternAnalysis struct {
	Specialty            string           `json:"specialty"`
	TotalEditsAnalyzed   int              `json:"total_edits_analyzed"`
	SectionsMostEdited   map[string]int   `json:"sections_most_edited"`
	EditCategories       map[string]Share `json:"edit_categories"`
	SeverityDistribution map[string]Share `json:"severity_distribution"`
	AvgEditDistance      float64          `json:"avg_edit_distance"`
	Message              string           `json:"message,omitempty"`
}

type SpecialtyBreakdown struct {
	Edits           int     `json:"edits"`
	AvgEditDistance float64 `json:"avg_edit_distance"`
}

type PerformanceMetrics struct {
	Specialty              string                        `json:"specialty,omitempty"`
	TotalEdits             int                           `json:"total_edits"`
	CurrentAvgEditDistance float64                       `json:"current_avg_edit_distance"`
	FirstHalfAvg           float64                       `json:"first_half_avg,omitempty"`
	SecondHalfAvg          float64                       `json:"second_half_avg,omitempty"`
	ImprovementPercentage  float64                       `json:"improvement_percentage"`
	TrendData              []TrendPoint                  `json:"trend_data,omitempty"`
	SpecialtiesTracked     []string                      `json:"specialties_tracked,omitempty"`
	SpecialtyBreakdown     map[string]SpecialtyBreakdown `json:"specialty_breakdown,omitempty"`
	Message                string                        `json:"message,omitempty"`
}

type PromptImprovement struct {
	Issue              string `json:"issue"`
	PromptModification string `json:"prompt_modification"`
}

type PromptImprovements struct {
	BaseImprovements      []PromptImprovement            `json:"base_improvements"`
	SpecialtyImprovements map[string][]PromptImprovement `json:"specialty_improvements"`
	ConsolidatedAddition  string                         `json:"consolidated_prompt_addition,omitempty"`
	Message               string                         `json:"message,omitempty"`
}

// LearningExport is the portable form of the learning corpus.
type LearningExport struct {
	EditLogs         []EditLog                   `json:"edit_logs"`
	SpecialtyMetrics map[string]SpecialtyMetrics `json:"specialty_metrics"`
	ExportedAt       time.Time                   `json:"exported_at"`
}

// EncounterUpdate carries a clinician's edit of a drafted note.
type EncounterUpdate struct {
	DoctorID     string    `json:"doctor_id" validate:"required"`
	Specialty    string    `json:"specialty"`
	OriginalSOAP SOAPNote  `json:"original_soap" validate:"required"`
	EditedSOAP   SOAPNote  `json:"edited_soap" validate:"required"`
	Symptoms     []string  `json:"symptoms,omitempty"`
	Conversation []Message `json:"conversation,omitempty"`
}

type EncounterUpdateResult struct {
	EncounterID string           `json:"encounter_id"`
	Edit        EditLog          `json:"edit"`
	Validation  ValidationResult `json:"validation"`
}

type FinalizeResult struct {
	EncounterID string           `json:"encounter_id"`
	Finalized   bool             `json:"finalized"`
	Validation  ValidationResult `json:"validation"`
	Message     string           `json:"message"`
}
