package model

import "time"

type IssueLevel string

const (
	LevelPass    IssueLevel = "pass"
	LevelWarning IssueLevel = "warning"
	LevelError   IssueLevel = "error"
)

type IssueCategory string

const (
	CategoryStructural IssueCategory = "structural"
	CategoryClinical   IssueCategory = "clinical"
)

type ValidationIssue struct {
	Level      IssueLevel    `json:"level"`
	Category   IssueCategory `json:"category"`
	Section    string        `json:"section"`
	Message    string        `json:"message"`
	Suggestion string        `json:"suggestion,omitempty"`
}

type ValidationResult struct {
	IsValid           bool              `json:"is_valid"`
	StructuralScore   float64           `json:"structural_score"`
	ClinicalScore     float64           `json:"clinical_score"`
	CompletenessScore float64           `json:"completeness_score"`
	OverallScore      float64           `json:"overall_score"`
	Issues            []ValidationIssue `json:"issues"`
	Suggestions       []string          `json:"suggestions"`
	ConceptCoverage   map[string]bool   `json:"concept_coverage"`
	ValidatedAt       time.Time         `json:"validated_at"`
}

// Count returns the number of issues at level.
func (r ValidationResult) Count(level IssueLevel) int {
	n := 0
	for _, i := range r.Issues {
		if i.Level == level {
			n++
		}
	}
	return n
}

// ValidationRequest is the input to note validation.
type ValidationRequest struct {
	Note         SOAPNote  `json:"soap_note" validate:"required"`
	Symptoms     []string  `json:"symptoms,omitempty"`
	Conversation []Message `json:"conversation,omitempty"`
	Specialty    string    `json:"specialty,omitempty"`
}

// ValidationSummary is the human-facing digest of a result.
type ValidationSummary struct {
	Status       string            `json:"status"`
	Scores       map[string]string `json:"scores"`
	ErrorCount   int               `json:"error_count"`
	WarningCount int               `json:"warning_count"`
	TopIssues    []string          `json:"top_issues"`
	Suggestions  []string          `json:"suggestions"`
	Report       string            `json:"report"`
}
