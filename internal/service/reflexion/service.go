// Package reflexion learns from clinician edits to drafted notes: it logs
// each edit, tracks per-specialty edit distance over time and turns the
// corpus into prompt guidance.
package reflexion

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/intake-api/internal/model"
	"github.com/jwalitptl/intake-api/internal/repository"
	"github.com/jwalitptl/intake-api/pkg/llm"
	"github.com/jwalitptl/intake-api/pkg/logger"
	"github.com/jwalitptl/intake-api/pkg/messaging"
	"github.com/jwalitptl/intake-api/pkg/metrics"
)

const (
	minLogsForInsights   = 5
	insightSampleSize    = 10
	actionableConfidence = 0.6
	trendDataPoints      = 20
)

type Service interface {
	LogEdit(ctx context.Context, encounterID, doctorID, specialty string, original, edited model.SOAPNote) (model.EditLog, error)
	AnalyzePatterns(ctx context.Context, specialty string) (model.PatternAnalysis, error)
	GenerateInsights(ctx context.Context, specialty string) ([]model.LearningInsight, error)
	PromptImprovements(ctx context.Context, specialty string) (model.PromptImprovements, error)
	// PerformanceMetrics reports one specialty, or all of them when
	// specialty is empty.
	PerformanceMetrics(ctx context.Context, specialty string) (model.PerformanceMetrics, error)
	Export(ctx context.Context) (model.LearningExport, error)
	// Import adds an export to the corpus without dropping existing data
	// and returns the number of edit logs appended.
	Import(ctx context.Context, data model.LearningExport) (int, error)
}

type Deps struct {
	Store     repository.LearningStore
	Generator llm.TextGenerator
	Publisher messaging.Publisher
	Metrics   *metrics.Metrics
	Logger    *logger.Logger
}

type service struct {
	store     repository.LearningStore
	gen       llm.TextGenerator
	publisher messaging.Publisher
	metrics   *metrics.Metrics
	logger    *logger.Logger
	now       func() time.Time
}

func NewService(deps Deps) Service {
	if deps.Generator == nil {
		deps.Generator = llm.Offline{}
	}
	if deps.Publisher == nil {
		deps.Publisher = messaging.NopPublisher()
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	return &service{
		store:     deps.Store,
		gen:       deps.Generator,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		now:       time.Now,
	}
}

func (s *service) LogEdit(ctx context.Context, encounterID, doctorID, specialty string, original, edited model.SOAPNote) (model.EditLog, error) {
	if strings.TrimSpace(specialty) == "" {
		specialty = model.GeneralMedicine
	}
	sections := SectionsEdited(original, edited)

	log := model.EditLog{
		ID:             uuid.NewString(),
		EncounterID:    encounterID,
		DoctorID:       doctorID,
		Specialty:      specialty,
		OriginalSOAP:   original.Clone(),
		EditedSOAP:     edited.Clone(),
		SectionsEdited: sections,
		EditDistance:   EditDistance(original, edited),
		EditCategory:   s.categorize(ctx, original, edited, sections),
		EditSeverity:   Severity(original, edited, len(sections)),
		Timestamp:      s.now(),
	}

	m, err := s.store.Append(ctx, log)
	if err != nil {
		return model.EditLog{}, fmt.Errorf("failed to append edit log: %w", err)
	}

	if s.metrics != nil {
		s.metrics.EditsLogged.WithLabelValues(string(log.EditSeverity)).Inc()
		s.metrics.EditDistance.Observe(log.EditDistance)
	}
	if err := s.publisher.Publish(ctx, model.EventNoteEdited, map[string]interface{}{
		"edit_id":         log.ID,
		"encounter_id":    log.EncounterID,
		"specialty":       log.Specialty,
		"edit_distance":   log.EditDistance,
		"edit_category":   log.EditCategory,
		"edit_severity":   log.EditSeverity,
		"sections_edited": log.SectionsEdited,
	}); err != nil {
		s.logger.Error(err, "failed to publish event", "event", model.EventNoteEdited)
	}
	s.logger.Info("edit logged",
		"encounter_id", encounterID,
		"specialty", specialty,
		"edit_distance", log.EditDistance,
		"severity", string(log.EditSeverity),
		"specialty_avg", m.AvgEditDistance)
	return log, nil
}

type categoryAnswer struct {
	Category string `json:"category"`
	Reason   string `json:"reason"`
}

// categorize asks the model what kind of edit this was; anything unusable
// counts as a correction.
func (s *service) categorize(ctx context.Context, original, edited model.SOAPNote, sections []string) model.EditCategory {
	raw, err := s.gen.Generate(ctx, categoryPrompt(original, edited, sections))
	if err == nil {
		var ans categoryAnswer
		if ans, err = llm.ParseJSON[categoryAnswer](raw); err == nil {
			if c, ok := model.ParseEditCategory(strings.ToLower(strings.TrimSpace(ans.Category))); ok {
				return c
			}
			err = fmt.Errorf("%w: unknown category %q", llm.ErrMalformedResponse, ans.Category)
		}
	}
	s.fallback("edit_category", err)
	return model.EditCorrection
}

func (s *service) fallback(component string, err error) {
	s.logger.Warn("reflexion fallback", "component", component, "error", err.Error())
	if s.metrics != nil {
		s.metrics.LLMFallbacks.WithLabelValues(component).Inc()
	}
}

func (s *service) AnalyzePatterns(ctx context.Context, specialty string) (model.PatternAnalysis, error) {
	logs, err := s.store.Edits(ctx, specialty)
	if err != nil {
		return model.PatternAnalysis{}, fmt.Errorf("failed to load edit logs: %w", err)
	}
	return analyze(logs, specialty), nil
}

func analyze(logs []model.EditLog, specialty string) model.PatternAnalysis {
	scope := specialty
	if scope == "" {
		scope = "all"
	}
	if len(logs) == 0 {
		return model.PatternAnalysis{Specialty: scope, Message: "No edit logs available for analysis"}
	}

	sections := map[string]int{}
	categories := map[string]int{}
	severities := map[string]int{}
	total := 0.0
	for _, l := range logs {
		for _, sec := range l.SectionsEdited {
			sections[sec]++
		}
		categories[string(l.EditCategory)]++
		severities[string(l.EditSeverity)]++
		total += l.EditDistance
	}

	n := len(logs)
	return model.PatternAnalysis{
		Specialty:            scope,
		TotalEditsAnalyzed:   n,
		SectionsMostEdited:   sections,
		EditCategories:       shares(categories, n),
		SeverityDistribution: shares(severities, n),
		AvgEditDistance:      round(total/float64(n), 3),
	}
}

func shares(counts map[string]int, total int) map[string]model.Share {
	out := make(map[string]model.Share, len(counts))
	for k, v := range counts {
		out[k] = model.Share{Count: v, Percentage: round(float64(v)/float64(total)*100, 1)}
	}
	return out
}

func (s *service) PerformanceMetrics(ctx context.Context, specialty string) (model.PerformanceMetrics, error) {
	if specialty != "" {
		m, ok, err := s.store.Metrics(ctx, specialty)
		if err != nil {
			return model.PerformanceMetrics{}, fmt.Errorf("failed to load metrics: %w", err)
		}
		if !ok {
			return model.PerformanceMetrics{Specialty: specialty, Message: "No data for specialty: " + specialty}, nil
		}
		return specialtyPerformance(m), nil
	}

	all, err := s.store.AllMetrics(ctx)
	if err != nil {
		return model.PerformanceMetrics{}, fmt.Errorf("failed to load metrics: %w", err)
	}
	return aggregatePerformance(all), nil
}

// specialtyPerformance compares the older and newer halves of the trend;
// a positive improvement means edits are shrinking.
func specialtyPerformance(m model.SpecialtyMetrics) model.PerformanceMetrics {
	out := model.PerformanceMetrics{
		Specialty:              m.Specialty,
		TotalEdits:             m.TotalEdits,
		CurrentAvgEditDistance: round(m.AvgEditDistance, 3),
		TrendData:              lastPoints(m.Trend, trendDataPoints),
	}
	if len(m.Trend) >= 2 {
		half := len(m.Trend) / 2
		first, second := meanDistance(m.Trend[:half]), meanDistance(m.Trend[half:])
		out.FirstHalfAvg = round(first, 3)
		out.SecondHalfAvg = round(second, 3)
		if first > 0 {
			out.ImprovementPercentage = round((first-second)/first*100, 1)
		}
	}
	return out
}

func aggregatePerformance(all map[string]model.SpecialtyMetrics) model.PerformanceMetrics {
	total := 0
	weighted := 0.0
	names := make([]string, 0, len(all))
	breakdown := make(map[string]model.SpecialtyBreakdown, len(all))
	for name, m := range all {
		total += m.TotalEdits
		weighted += m.AvgEditDistance * float64(m.TotalEdits)
		names = append(names, name)
		breakdown[name] = model.SpecialtyBreakdown{Edits: m.TotalEdits, AvgEditDistance: round(m.AvgEditDistance, 3)}
	}
	if total == 0 {
		return model.PerformanceMetrics{Message: "No edit data available"}
	}
	sort.Strings(names)
	return model.PerformanceMetrics{
		TotalEdits:             total,
		CurrentAvgEditDistance: round(weighted/float64(total), 3),
		SpecialtiesTracked:     names,
		SpecialtyBreakdown:     breakdown,
	}
}

func meanDistance(points []model.TrendPoint) float64 {
	if len(points) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range points {
		sum += p.EditDistance
	}
	return sum / float64(len(points))
}

func lastPoints(points []model.TrendPoint, n int) []model.TrendPoint {
	if len(points) > n {
		points = points[len(points)-n:]
	}
	return append([]model.TrendPoint{}, points...)
}

func (s *service) Export(ctx context.Context) (model.LearningExport, error) {
	logs, err := s.store.Edits(ctx, "")
	if err != nil {
		return model.LearningExport{}, fmt.Errorf("failed to load edit logs: %w", err)
	}
	all, err := s.store.AllMetrics(ctx)
	if err != nil {
		return model.LearningExport{}, fmt.Errorf("failed to load metrics: %w", err)
	}
	return model.LearningExport{EditLogs: logs, SpecialtyMetrics: all, ExportedAt: s.now()}, nil
}

// Import appends the export's logs, skipping ids already stored, and folds
// each into its specialty's metrics. Exported aggregates are merged only for
// specialties the export carries no logs for, so a round trip never counts
// an edit twice.
func (s *service) Import(ctx context.Context, data model.LearningExport) (int, error) {
	logged := make(map[string]struct{}, len(data.SpecialtyMetrics))
	for _, l := range data.EditLogs {
		logged[l.Specialty] = struct{}{}
	}
	aggregates := make(map[string]model.SpecialtyMetrics, len(data.SpecialtyMetrics))
	for name, m := range data.SpecialtyMetrics {
		if _, ok := logged[name]; !ok {
			aggregates[name] = m
		}
	}

	n, err := s.store.Import(ctx, data.EditLogs, aggregates)
	if err != nil {
		return 0, fmt.Errorf("failed to import learning data: %w", err)
	}
	s.logger.Info("learning data imported",
		"edit_logs", n,
		"skipped", len(data.EditLogs)-n,
		"merged_specialties", len(aggregates))
	return n, nil
}

func categoryPrompt(original, edited model.SOAPNote, sections []string) string {
	orig, _ := json.MarshalIndent(original, "", "  ")
	edit, _ := json.MarshalIndent(edited, "", "  ")
	return fmt.Sprintf(`Categorize this doctor's edit to an AI-generated SOAP note.

ORIGINAL:
%s

EDITED:
%s

SECTIONS CHANGED: %s

Categories:
- correction: Fixing factual errors or misinterpretations
- addition: Adding missing information
- removal: Removing incorrect or irrelevant information
- clarification: Rewording for clarity without changing meaning
- style: Formatting or stylistic preferences
- clinical_judgment: Changes based on clinical expertise

Return as JSON:
{"category": "category_name", "reason": "brief explanation"}

Return ONLY valid JSON.`, orig, edit, strings.Join(sections, ", "))
}
