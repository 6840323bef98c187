package validation

import (
	"context"
	"encoding/json"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/jwalitptl/intake-api/internal/model"
	"github.com/jwalitptl/intake-api/pkg/llm"
)

// keyInfoMessages is how many patient messages are mined for key facts.
const keyInfoMessages = 5

// findings are the model-derived inputs to scoring. Each list is empty when
// its call fails.
type findings struct {
	complaints     []string
	medications    []string
	contradictions []contradiction
	keyInfo        []string
	alignment      []alignmentIssue
}

type contradiction struct {
	Description string   `json:"description"`
	Sections    flexText `json:"sections"`
	Severity    string   `json:"severity"`
	Suggestion  string   `json:"suggestion"`
}

type alignmentIssue struct {
	Type    string `json:"type"`
	Item    string `json:"item"`
	Concern string `json:"concern"`
}

// flexText accepts a JSON string or a list of strings.
type flexText string

func (f *flexText) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexText(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*f = flexText(strings.Join(list, ", "))
	return nil
}

// collect issues the independent model calls concurrently, bounded by the
// configured limit.
func (s *service) collect(ctx context.Context, note sections, req model.ValidationRequest) findings {
	var (
		f findings
		g errgroup.Group
	)
	g.SetLimit(s.cfg.Concurrency)

	if note.subjective != "" {
		g.Go(func() error {
			ans, ok := ask[struct {
				Complaints []string `json:"complaints"`
			}](ctx, s, "chief_complaints", complaintsPrompt(note.subjective))
			if ok {
				f.complaints = clean(ans.Complaints)
			}
			return nil
		})
	}
	if note.plan != "" {
		g.Go(func() error {
			ans, ok := ask[struct {
				Medications []string `json:"medications"`
			}](ctx, s, "plan_items", planItemsPrompt(note.plan))
			if ok {
				f.medications = clean(ans.Medications)
			}
			return nil
		})
	}
	if note.filled() >= 2 {
		g.Go(func() error {
			ans, ok := ask[struct {
				Contradictions []contradiction `json:"contradictions"`
			}](ctx, s, "contradictions", contradictionsPrompt(note))
			if ok {
				f.contradictions = ans.Contradictions
			}
			return nil
		})
	}
	if msgs := patientMessages(req.Conversation, keyInfoMessages); len(msgs) > 0 {
		g.Go(func() error {
			ans, ok := ask[struct {
				KeyInfo []string `json:"key_info"`
			}](ctx, s, "key_info", keyInfoPrompt(msgs))
			if ok {
				f.keyInfo = clean(ans.KeyInfo)
			}
			return nil
		})
	}
	if note.plan != "" && note.assessment != "" {
		g.Go(func() error {
			ans, ok := ask[struct {
				Issues []alignmentIssue `json:"issues"`
			}](ctx, s, "alignment", alignmentPrompt(note))
			if ok {
				f.alignment = ans.Issues
			}
			return nil
		})
	}

	_ = g.Wait()
	return f
}

// ask generates and parses one structured answer. Failures are logged and
// reported as !ok so the caller keeps its empty default.
func ask[T any](ctx context.Context, s *service, component, prompt string) (T, bool) {
	var zero T
	raw, err := s.gen.Generate(ctx, prompt)
	if err == nil {
		var ans T
		if ans, err = llm.ParseJSON[T](raw); err == nil {
			return ans, true
		}
	}
	s.logger.Warn("validation check skipped", "check", component, "error", err.Error())
	if s.metrics != nil {
		s.metrics.LLMFallbacks.WithLabelValues("validation_" + component).Inc()
	}
	return zero, false
}

func clean(items []string) []string {
	return model.UnionStrings(nil, items)
}

func patientMessages(conversation []model.Message, n int) []string {
	var out []string
	for _, m := range conversation {
		if m.Role != model.RoleUser || strings.TrimSpace(m.Content) == "" {
			continue
		}
		out = append(out, m.Content)
		if len(out) == n {
			break
		}
	}
	return out
}

func complaintsPrompt(subjective string) string {
	return `Extract the main chief complaints/symptoms from this Subjective text.

TEXT: ` + subjective + `

Return as JSON:
{"complaints": ["complaint1", "complaint2"]}

Return ONLY the main symptoms/complaints as a list.
Return ONLY valid JSON.`
}

func planItemsPrompt(plan string) string {
	return `Extract plan items from this Plan text.

TEXT: ` + plan + `

Return as JSON:
{"medications": ["medication names"], "tests": ["ordered tests"], "follow_ups": ["follow up instructions"]}

Return ONLY valid JSON.`
}

func contradictionsPrompt(note sections) string {
	return `Analyze this SOAP note for clinical contradictions or inconsistencies.

SOAP NOTE:
` + note.render() + `
Look for:
1. Contradictions between sections (e.g. "denies pain" in S but "pain management" in P)
2. Assessment not supported by Subjective/Objective findings
3. Plan items that contradict the Assessment
4. Medication contraindications mentioned
5. Vital signs that don't match described clinical status

Return as JSON:
{"contradictions": [{"description": "...", "sections": "...", "severity": "low|medium|high", "suggestion": "..."}], "no_issues": true}

If no contradictions found, return {"contradictions": [], "no_issues": true}
Return ONLY valid JSON.`
}

func keyInfoPrompt(messages []string) string {
	return `Extract key clinical information from these patient messages.

MESSAGES: ` + strings.Join(messages, " | ") + `

Return as JSON:
{"key_info": ["important fact 1", "important fact 2"]}

Focus on symptoms, duration, severity, medical history mentioned.
Return ONLY valid JSON.`
}

func alignmentPrompt(note sections) string {
	return `Check if medications in the Plan align with diagnoses in Assessment.

ASSESSMENT: ` + note.assessment + `
PLAN: ` + note.plan + `

Check for:
1. Medications without clear indication in the diagnosis
2. Diagnoses without corresponding treatment in plan
3. Potential contraindications

Return as JSON:
{"issues": [{"type": "unindicated_medication|untreated_diagnosis|contraindication", "item": "...", "concern": "..."}], "alignment_ok": true}

Return ONLY valid JSON.`
}
