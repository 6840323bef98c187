// Package validation scores SOAP notes on two levels: structural integrity
// and clinical consistency.
package validation

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jwalitptl/intake-api/internal/model"
	"github.com/jwalitptl/intake-api/pkg/llm"
	"github.com/jwalitptl/intake-api/pkg/logger"
	"github.com/jwalitptl/intake-api/pkg/metrics"
)

// Minimum expected length of each section, in characters.
var minSectionLength = map[string]int{
	model.SectionSubjective: 50,
	model.SectionObjective:  30,
	model.SectionAssessment: 20,
	model.SectionPlan:       20,
}

// Score deductions.
const (
	penaltyEmptySection     = 0.25
	penaltyShortSection     = 0.10
	penaltyUntracedComplain = 0.05
	penaltyUnindicatedMed   = 0.05
	penaltyOrphanPlan       = 0.15

	penaltyContradiction    = 0.15
	penaltyUncoveredSymptom = 0.05
	penaltyUncoveredFact    = 0.03
	penaltyAlignment        = 0.05

	validThreshold = 0.7
	maxSuggestions = 5

	DefaultConcurrency = 3
)

type Config struct {
	// Concurrency bounds parallel model calls per validation.
	Concurrency int
}

type Service interface {
	Validate(ctx context.Context, req model.ValidationRequest) model.ValidationResult
	Summary(result model.ValidationResult) model.ValidationSummary
}

type Deps struct {
	Generator llm.TextGenerator
	Metrics   *metrics.Metrics
	Logger    *logger.Logger
}

type service struct {
	cfg     Config
	gen     llm.TextGenerator
	metrics *metrics.Metrics
	logger  *logger.Logger
	now     func() time.Time
}

func NewService(cfg Config, deps Deps) Service {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if deps.Generator == nil {
		deps.Generator = llm.Offline{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	return &service{
		cfg:     cfg,
		gen:     deps.Generator,
		metrics: deps.Metrics,
		logger:  deps.Logger,
		now:     time.Now,
	}
}

// sections holds the four canonical sections, trimmed.
type sections struct {
	subjective, objective, assessment, plan string
}

func splitNote(n model.SOAPNote) sections {
	return sections{
		subjective: strings.TrimSpace(n.Section(model.SectionSubjective)),
		objective:  strings.TrimSpace(n.Section(model.SectionObjective)),
		assessment: strings.TrimSpace(n.Section(model.SectionAssessment)),
		plan:       strings.TrimSpace(n.Section(model.SectionPlan)),
	}
}

func (s sections) get(name string) string {
	switch name {
	case model.SectionSubjective:
		return s.subjective
	case model.SectionObjective:
		return s.objective
	case model.SectionAssessment:
		return s.assessment
	default:
		return s.plan
	}
}

func (s sections) filled() int {
	n := 0
	for _, name := range model.SOAPSections {
		if s.get(name) != "" {
			n++
		}
	}
	return n
}

func (s sections) render() string {
	var sb strings.Builder
	for _, name := range model.SOAPSections {
		text := s.get(name)
		if text == "" {
			text = "N/A"
		}
		fmt.Fprintf(&sb, "%s: %s\n", name, text)
	}
	return sb.String()
}

func (s *service) Validate(ctx context.Context, req model.ValidationRequest) model.ValidationResult {
	note := splitNote(req.Note)
	f := s.collect(ctx, note, req)

	structural, issues := structuralScore(note, f)
	clinical, clinicalIssues, coverage := clinicalScore(note, req.Note.Text(), req.Symptoms, f)
	issues = append(issues, clinicalIssues...)
	completeness := completenessScore(note)

	result := model.ValidationResult{
		StructuralScore:   structural,
		ClinicalScore:     clinical,
		CompletenessScore: completeness,
		OverallScore:      overall(structural, clinical, completeness),
		Issues:            issues,
		Suggestions:       suggestions(issues),
		ConceptCoverage:   coverage,
		ValidatedAt:       s.now(),
	}
	if result.Issues == nil {
		result.Issues = []model.ValidationIssue{}
	}
	if result.Suggestions == nil {
		result.Suggestions = []string{}
	}
	result.IsValid = result.OverallScore >= validThreshold && result.Count(model.LevelError) == 0

	if s.metrics != nil {
		s.metrics.Validations.WithLabelValues(strconv.FormatBool(result.IsValid)).Inc()
		s.metrics.OverallScore.Observe(result.OverallScore)
	}
	s.logger.Debug("note validated",
		"specialty", req.Specialty,
		"valid", result.IsValid,
		"overall", result.OverallScore,
		"issues", len(result.Issues))
	return result
}

func overall(structural, clinical, completeness float64) float64 {
	return 0.4*structural + 0.4*clinical + 0.2*completeness
}

func structuralScore(note sections, f findings) (float64, []model.ValidationIssue) {
	score := 1.0
	var issues []model.ValidationIssue

	for _, name := range model.SOAPSections {
		text := note.get(name)
		if text == "" {
			issues = append(issues, structural(model.LevelError, name,
				name+" section is missing or empty",
				"Add content to the "+name+" section"))
			score -= penaltyEmptySection
			continue
		}
		if n := utf8.RuneCountInString(text); n < minSectionLength[name] {
			issues = append(issues, structural(model.LevelWarning, name,
				fmt.Sprintf("%s section seems incomplete (%d chars)", name, n),
				"Expand the "+name+" section with more detail"))
			score -= penaltyShortSection
		}
	}

	assessment := strings.ToLower(note.assessment)
	plan := strings.ToLower(note.plan)
	for _, c := range f.complaints {
		if covers(assessment, c) || covers(plan, c) {
			continue
		}
		issues = append(issues, structural(model.LevelWarning, model.SectionAssessment,
			fmt.Sprintf("Chief complaint '%s' not addressed in Assessment/Plan", c),
			fmt.Sprintf("Ensure '%s' is addressed in Assessment or Plan", c)))
		score -= penaltyUntracedComplain
	}

	for _, med := range f.medications {
		if anyWordIn(assessment, med) {
			continue
		}
		issues = append(issues, structural(model.LevelWarning, model.SectionPlan,
			fmt.Sprintf("Medication '%s' has no clear indication in Assessment", med),
			fmt.Sprintf("Add diagnosis/indication for '%s' in Assessment", med)))
		score -= penaltyUnindicatedMed
	}

	if note.plan != "" && note.assessment == "" {
		issues = append(issues, structural(model.LevelError, model.SectionAssessment,
			"Plan exists but Assessment is missing",
			"Add Assessment before creating a Plan"))
		score -= penaltyOrphanPlan
	}

	return model.Clamp01(score), issues
}

func clinicalScore(note sections, fullText string, symptoms []string, f findings) (float64, []model.ValidationIssue, map[string]bool) {
	score := 1.0
	var issues []model.ValidationIssue
	coverage := make(map[string]bool)

	for _, c := range f.contradictions {
		section := strings.TrimSpace(string(c.Sections))
		if section == "" {
			section = "Multiple"
		}
		issues = append(issues, clinical(model.LevelError, section,
			orDefault(c.Description, "Clinical contradiction detected"),
			orDefault(c.Suggestion, "Review and correct the contradiction")))
		score -= penaltyContradiction
	}

	text := strings.ToLower(fullText)
	for _, symptom := range clean(symptoms) {
		covered := covers(text, symptom)
		coverage[symptom] = covered
		if covered {
			continue
		}
		issues = append(issues, clinical(model.LevelWarning, model.SectionSubjective,
			fmt.Sprintf("Reported symptom '%s' not found in SOAP note", symptom),
			fmt.Sprintf("Include '%s' in the Subjective section", symptom)))
		score -= penaltyUncoveredSymptom
	}

	for _, fact := range f.keyInfo {
		if covers(text, fact) {
			continue
		}
		issues = append(issues, clinical(model.LevelWarning, model.SectionSubjective,
			fmt.Sprintf("Patient-reported information not captured: '%s...'", truncate(fact, 50)),
			"Ensure all relevant patient information is documented"))
		score -= penaltyUncoveredFact
	}

	if note.plan != "" && note.assessment != "" {
		for _, a := range f.alignment {
			issues = append(issues, clinical(model.LevelWarning, model.SectionPlan,
				fmt.Sprintf("%s: %s - %s", orDefault(a.Type, "Issue"), a.Item, a.Concern),
				"Review medication-diagnosis alignment"))
			score -= penaltyAlignment
		}
	}

	return model.Clamp01(score), issues, coverage
}

// completenessScore credits each section up to twice its minimum length.
func completenessScore(note sections) float64 {
	score := 0.0
	for _, name := range model.SOAPSections {
		n := utf8.RuneCountInString(note.get(name))
		if n == 0 {
			continue
		}
		ratio := float64(n) / float64(2*minSectionLength[name])
		if ratio > 1 {
			ratio = 1
		}
		score += ratio * 0.25
	}
	return model.Clamp01(score)
}

// suggestions leads with summary lines, then distinct issue suggestions.
func suggestions(issues []model.ValidationIssue) []string {
	var structuralCount, clinicalCount, errorCount int
	for _, i := range issues {
		switch i.Category {
		case model.CategoryStructural:
			structuralCount++
		case model.CategoryClinical:
			clinicalCount++
		}
		if i.Level == model.LevelError {
			errorCount++
		}
	}

	var out []string
	if errorCount > 0 {
		out = append(out, fmt.Sprintf("%d critical issue(s) need immediate attention", errorCount))
	}
	if structuralCount > 2 {
		out = append(out, "Review SOAP structure - ensure all sections are complete and connected")
	}
	if clinicalCount > 2 {
		out = append(out, "Review clinical content - ensure all patient information is accurately captured")
	}

	seen := make(map[string]bool)
	for _, i := range issues {
		if len(out) >= maxSuggestions {
			break
		}
		if i.Suggestion == "" || seen[i.Suggestion] {
			continue
		}
		seen[i.Suggestion] = true
		out = append(out, i.Suggestion)
	}
	if len(out) > maxSuggestions {
		out = out[:maxSuggestions]
	}
	return out
}

// covers reports whether text (lower case) mentions phrase outright or
// shares a word longer than three characters with it.
func covers(text, phrase string) bool {
	p := strings.ToLower(strings.TrimSpace(phrase))
	if p == "" || strings.Contains(text, p) {
		return true
	}
	for _, w := range strings.Fields(p) {
		if utf8.RuneCountInString(w) > 3 && strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func anyWordIn(text, phrase string) bool {
	for _, w := range strings.Fields(strings.ToLower(phrase)) {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func structural(level model.IssueLevel, section, message, suggestion string) model.ValidationIssue {
	return model.ValidationIssue{Level: level, Category: model.CategoryStructural, Section: section, Message: message, Suggestion: suggestion}
}

func clinical(level model.IssueLevel, section, message, suggestion string) model.ValidationIssue {
	return model.ValidationIssue{Level: level, Category: model.CategoryClinical, Section: section, Message: message, Suggestion: suggestion}
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
