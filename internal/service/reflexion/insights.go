package reflexion

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jwalitptl/intake-api/internal/model"
	"github.com/jwalitptl/intake-api/pkg/llm"
)

type insightsAnswer struct {
	Insights []insightItem `json:"insights"`
}

type insightItem struct {
	Category              string   `json:"category"`
	Insight               string   `json:"insight"`
	Frequency             flexInt  `json:"frequency"`
	SpecialtySpecific     *string  `json:"specialty_specific"`
	SuggestedPromptUpdate string   `json:"suggested_prompt_update"`
	Confidence            *float64 `json:"confidence"`
}

// flexInt accepts 3, 3.0 or "3".
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexInt(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		*f = 1
		return nil
	}
	*f = flexInt(n)
	return nil
}

func (s *service) GenerateInsights(ctx context.Context, specialty string) ([]model.LearningInsight, error) {
	logs, err := s.store.Edits(ctx, specialty)
	if err != nil {
		return nil, fmt.Errorf("failed to load edit logs: %w", err)
	}
	if len(logs) < minLogsForInsights {
		return []model.LearningInsight{{
			Category:   model.InsufficientDataCategory,
			Insight:    fmt.Sprintf("Need more edit logs to generate insights (minimum %d)", minLogsForInsights),
			Specialty:  specialty,
			Confidence: 0,
		}}, nil
	}

	sample := logs
	if len(sample) > insightSampleSize {
		sample = sample[len(sample)-insightSampleSize:]
	}

	insights, err := s.modelInsights(ctx, sample)
	if err != nil {
		s.fallback("insights", err)
		return statisticalInsights(logs, specialty), nil
	}
	return insights, nil
}

func (s *service) modelInsights(ctx context.Context, sample []model.EditLog) ([]model.LearningInsight, error) {
	raw, err := s.gen.Generate(ctx, insightsPrompt(sample))
	if err != nil {
		return nil, err
	}
	ans, err := llm.ParseJSON[insightsAnswer](raw)
	if err != nil {
		return nil, err
	}

	out := make([]model.LearningInsight, 0, len(ans.Insights))
	for _, item := range ans.Insights {
		if strings.TrimSpace(item.Insight) == "" {
			continue
		}
		confidence := 0.5
		if item.Confidence != nil {
			confidence = model.Clamp01(*item.Confidence)
		}
		category := item.Category
		if category == "" {
			category = "general"
		}
		out = append(out, model.LearningInsight{
			Category:              category,
			Insight:               item.Insight,
			Frequency:             int(item.Frequency),
			Specialty:             specialtyName(item.SpecialtySpecific),
			SuggestedPromptUpdate: item.SuggestedPromptUpdate,
			Confidence:            confidence,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no insights", llm.ErrMalformedResponse)
	}
	return out, nil
}

func specialtyName(s *string) string {
	if s == nil {
		return ""
	}
	v := strings.TrimSpace(*s)
	switch strings.ToLower(v) {
	case "", "null", "none", "n/a":
		return ""
	}
	return v
}

var categoryGuidance = map[model.EditCategory]string{
	model.EditCorrection:       "Check every stated fact against the patient's own words before writing it.",
	model.EditAddition:         "Include every symptom, duration and history item the patient reported.",
	model.EditRemoval:          "Leave out anything the patient did not report or that is not clinically relevant.",
	model.EditClarification:    "Use precise, unambiguous clinical wording.",
	model.EditStyle:            "Follow standard SOAP formatting with concise clinical phrasing.",
	model.EditClinicalJudgment: "Keep the Assessment preliminary and list differentials rather than a single diagnosis.",
}

// statisticalInsights derives insights from the corpus itself, for use when
// the model cannot be reached.
func statisticalInsights(logs []model.EditLog, specialty string) []model.LearningInsight {
	a := analyze(logs, specialty)
	n := float64(a.TotalEditsAnalyzed)
	var out []model.LearningInsight

	if section, count := topKey(a.SectionsMostEdited); section != "" {
		share := float64(count) / n
		out = append(out, model.LearningInsight{
			Category:              "structure",
			Insight:               fmt.Sprintf("The %s section is edited in %d of %d notes", section, count, a.TotalEditsAnalyzed),
			Frequency:             frequency(share),
			Specialty:             specialty,
			SuggestedPromptUpdate: fmt.Sprintf("Pay particular attention to the %s section and ground it only in reported information.", section),
			Confidence:            round(share, 2),
		})
	}

	counts := make(map[string]int, len(a.EditCategories))
	for k, v := range a.EditCategories {
		counts[k] = v.Count
	}
	if category, count := topKey(counts); category != "" {
		share := float64(count) / n
		out = append(out, model.LearningInsight{
			Category:              "content",
			Insight:               fmt.Sprintf("Most edits are %s (%.1f%%)", strings.ReplaceAll(category, "_", " "), share*100),
			Frequency:             frequency(share),
			Specialty:             specialty,
			SuggestedPromptUpdate: categoryGuidance[model.EditCategory(category)],
			Confidence:            round(share, 2),
		})
	}
	return out
}

// topKey returns the key with the highest count, breaking ties by name.
func topKey(counts map[string]int) (string, int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	best, bestCount := "", 0
	for _, k := range keys {
		if counts[k] > bestCount {
			best, bestCount = k, counts[k]
		}
	}
	return best, bestCount
}

// frequency maps a share in [0,1] onto the 1-10 scale.
func frequency(share float64) int {
	f := int(share*10 + 0.5)
	if f < 1 {
		return 1
	}
	if f > 10 {
		return 10
	}
	return f
}

func (s *service) PromptImprovements(ctx context.Context, specialty string) (model.PromptImprovements, error) {
	insights, err := s.GenerateInsights(ctx, specialty)
	if err != nil {
		return model.PromptImprovements{}, err
	}

	out := model.PromptImprovements{
		BaseImprovements:      []model.PromptImprovement{},
		SpecialtyImprovements: map[string][]model.PromptImprovement{},
	}
	for _, in := range insights {
		if in.Confidence < actionableConfidence || in.SuggestedPromptUpdate == "" {
			continue
		}
		imp := model.PromptImprovement{Issue: in.Insight, PromptModification: in.SuggestedPromptUpdate}
		if in.Specialty != "" {
			out.SpecialtyImprovements[in.Specialty] = append(out.SpecialtyImprovements[in.Specialty], imp)
		} else {
			out.BaseImprovements = append(out.BaseImprovements, imp)
		}
	}

	if len(out.BaseImprovements) == 0 && len(out.SpecialtyImprovements) == 0 {
		out.Message = "No improvements available yet"
		return out, nil
	}
	if len(out.BaseImprovements) > 0 {
		out.ConsolidatedAddition = s.consolidate(ctx, out.BaseImprovements)
	}
	return out, nil
}

// consolidate turns base improvements into prompt rules, falling back to
// listing the modifications verbatim.
func (s *service) consolidate(ctx context.Context, improvements []model.PromptImprovement) string {
	data, _ := json.MarshalIndent(improvements, "", "  ")
	raw, err := s.gen.Generate(ctx, fmt.Sprintf(`Based on these identified issues with SOAP note generation:

%s

Generate a set of additional instructions to add to the SOAP generation prompt.
Format as a bullet list of rules/guidelines.
Be specific and actionable.
Return ONLY the bullet list, no explanation.`, data))
	if err == nil && strings.TrimSpace(raw) != "" {
		return strings.TrimSpace(raw)
	}
	if err == nil {
		err = fmt.Errorf("%w: empty rule list", llm.ErrMalformedResponse)
	}
	s.fallback("prompt_rules", err)

	lines := make([]string, 0, len(improvements))
	for _, imp := range improvements {
		lines = append(lines, "- "+imp.PromptModification)
	}
	return strings.Join(lines, "\n")
}

func insightsPrompt(sample []model.EditLog) string {
	var sb strings.Builder
	for i, l := range sample {
		orig, _ := json.Marshal(l.OriginalSOAP)
		edit, _ := json.Marshal(l.EditedSOAP)
		fmt.Fprintf(&sb, "Edit %d:\nSpecialty: %s\nSections Changed: %s\nCategory: %s\nOriginal: %s\nEdited: %s\n\n",
			i+1, l.Specialty, strings.Join(l.SectionsEdited, ", "), l.EditCategory, orig, edit)
	}
	return `Analyze these doctor edits to AI-generated SOAP notes and identify patterns.

EDIT SAMPLES:
` + sb.String() + `Identify:
1. Common patterns in what doctors are changing
2. Recurring issues in AI-generated content
3. Specialty-specific patterns (if applicable)
4. Suggestions for improving the AI prompts

Return as JSON:
{"insights": [{"category": "content|structure|terminology|completeness|accuracy", "insight": "...", "frequency": 1, "specialty_specific": null, "suggested_prompt_update": "...", "confidence": 0.0}], "overall_recommendation": "..."}

Return ONLY valid JSON.`
}
