// Package specialty maps free-text symptoms to medical specialties.
package specialty

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/intake-api/internal/model"
	"github.com/jwalitptl/intake-api/pkg/llm"
	"github.com/jwalitptl/intake-api/pkg/logger"
	"github.com/jwalitptl/intake-api/pkg/metrics"
)

type keyword struct {
	phrase    string
	specialty string
}

// table is scanned in order; the first specialty matched ranks first.
var table = []keyword{
	{"chest pain", "Cardiology"},
	{"heart", "Cardiology"},
	{"palpitations", "Cardiology"},
	{"blood pressure", "Cardiology"},
	{"hypertension", "Cardiology"},

	{"breathing", "Pulmonology"},
	{"cough", "Pulmonology"},
	{"asthma", "Pulmonology"},
	{"wheezing", "Pulmonology"},
	{"shortness of breath", "Pulmonology"},

	{"headache", "Neurology"},
	{"migraine", "Neurology"},
	{"seizure", "Neurology"},
	{"numbness", "Neurology"},
	{"dizziness", "Neurology"},
	{"stroke", "Neurology"},

	{"joint pain", "Orthopedics"},
	{"back pain", "Orthopedics"},
	{"fracture", "Orthopedics"},
	{"spine", "Orthopedics"},
	{"knee", "Orthopedics"},
	{"shoulder", "Orthopedics"},

	{"stomach", "Gastroenterology"},
	{"abdominal pain", "Gastroenterology"},
	{"nausea", "Gastroenterology"},
	{"vomiting", "Gastroenterology"},
	{"diarrhea", "Gastroenterology"},
	{"liver", "Gastroenterology"},

	{"skin", "Dermatology"},
	{"rash", "Dermatology"},
	{"acne", "Dermatology"},
	{"itching", "Dermatology"},

	{"diabetes", "Endocrinology"},
	{"thyroid", "Endocrinology"},
	{"hormone", "Endocrinology"},

	{"depression", "Psychiatry"},
	{"anxiety", "Psychiatry"},
	{"stress", "Psychiatry"},
	{"mental", "Psychiatry"},
	{"sleep", "Psychiatry"},

	{"fever", model.GeneralMedicine},
	{"cold", model.GeneralMedicine},
	{"flu", model.GeneralMedicine},
	{"fatigue", model.GeneralMedicine},
}

// MaxSpecialties is the most a classification ever returns.
const MaxSpecialties = 2

type Source string

const (
	SourceKeyword  Source = "keyword"
	SourceModel    Source = "model"
	SourceCache    Source = "cache"
	SourceFallback Source = "fallback"
)

type Classification struct {
	Specialties  []string `json:"specialties"`
	Source       Source   `json:"source"`
	Reasoning    string   `json:"reasoning,omitempty"`
	UrgencyLevel string   `json:"urgency_level,omitempty"`
}

// Primary is the top-ranked specialty.
func (c Classification) Primary() string {
	if len(c.Specialties) == 0 {
		return model.GeneralMedicine
	}
	return c.Specialties[0]
}

// Secondary is the runner-up, or "".
func (c Classification) Secondary() string {
	if len(c.Specialties) < 2 {
		return ""
	}
	return c.Specialties[1]
}

type Classifier struct {
	gen     llm.TextGenerator
	cache   *cache.Cache
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewClassifier(gen llm.TextGenerator, cacheTTL time.Duration, log *logger.Logger, m *metrics.Metrics) *Classifier {
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Minute
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Classifier{
		gen:     gen,
		cache:   cache.New(cacheTTL, 2*cacheTTL),
		logger:  log,
		metrics: m,
	}
}

// MatchKeywords returns the distinct specialties whose keywords occur in text.
func MatchKeywords(text string) []string {
	lower := strings.ToLower(text)
	var out []string
	seen := map[string]bool{}
	for _, k := range table {
		if strings.Contains(lower, k.phrase) && !seen[k.specialty] {
			seen[k.specialty] = true
			out = append(out, k.specialty)
		}
	}
	return out
}

type modelAnswer struct {
	PrimarySpecialty   string `json:"primary_specialty"`
	SecondarySpecialty string `json:"secondary_specialty"`
	Reasoning          string `json:"reasoning"`
	UrgencyLevel       string `json:"urgency_level"`
}

// Classify resolves symptoms to at most two specialties. The keyword table
// decides when it yields one or two; otherwise the model is asked, and
// General Medicine is used if that fails.
func (c *Classifier) Classify(ctx context.Context, symptoms []string, soap model.SOAPNote) Classification {
	text := strings.Join(symptoms, " ")
	if matched := MatchKeywords(text); len(matched) > 0 && len(matched) <= MaxSpecialties {
		return Classification{Specialties: matched, Source: SourceKeyword}
	}

	key := cacheKey(text, soap)
	if v, ok := c.cache.Get(key); ok {
		cls := v.(Classification)
		cls.Specialties = append([]string(nil), cls.Specialties...)
		cls.Source = SourceCache
		return cls
	}

	raw, err := c.gen.Generate(ctx, classifyPrompt(symptoms, soap))
	if err != nil {
		c.fallback("generation failed", err)
		return fallbackClassification()
	}
	ans, err := llm.ParseJSON[modelAnswer](raw)
	if err != nil || strings.TrimSpace(ans.PrimarySpecialty) == "" {
		c.fallback("unusable classification", err)
		return fallbackClassification()
	}

	specialties := model.UnionStrings([]string{ans.PrimarySpecialty}, []string{ans.SecondarySpecialty})
	if len(specialties) > MaxSpecialties {
		specialties = specialties[:MaxSpecialties]
	}
	cls := Classification{
		Specialties:  specialties,
		Source:       SourceModel,
		Reasoning:    ans.Reasoning,
		UrgencyLevel: ans.UrgencyLevel,
	}
	c.cache.Set(key, cls, cache.DefaultExpiration)
	return cls
}

func (c *Classifier) fallback(reason string, err error) {
	if err != nil {
		c.logger.Warn("specialty classification fallback", "reason", reason, "error", err.Error())
	} else {
		c.logger.Warn("specialty classification fallback", "reason", reason)
	}
	if c.metrics != nil {
		c.metrics.LLMFallbacks.WithLabelValues("specialty").Inc()
	}
}

func fallbackClassification() Classification {
	return Classification{Specialties: []string{model.GeneralMedicine}, Source: SourceFallback}
}

func cacheKey(text string, soap model.SOAPNote) string {
	return strings.ToLower(strings.TrimSpace(text)) + "\x00" + soap.Text()
}

func classifyPrompt(symptoms []string, soap model.SOAPNote) string {
	soapText := "Not available"
	if len(soap) > 0 {
		if b, err := json.Marshal(soap); err == nil {
			soapText = string(b)
		}
	}
	return fmt.Sprintf(`Based on the patient's symptoms and preliminary assessment, determine the most appropriate medical specialty.

SYMPTOMS: %s
PRELIMINARY SOAP: %s

Consider these specialties:
- Cardiology (heart, blood pressure, chest issues)
- Pulmonology (breathing, lungs, respiratory)
- Neurology (brain, nerves, headaches, dizziness)
- Orthopedics (bones, joints, muscles, spine)
- Gastroenterology (stomach, digestive, liver)
- Dermatology (skin conditions)
- Endocrinology (hormones, diabetes, thyroid)
- Psychiatry (mental health, anxiety, depression)
- General Medicine (general symptoms, fever, infections)
- Emergency Medicine (life-threatening conditions)

Return as JSON:
{"primary_specialty": "...", "secondary_specialty": "... or empty", "reasoning": "...", "urgency_level": "routine|same-day|urgent|emergency"}

Return ONLY valid JSON.`, strings.Join(symptoms, "; "), soapText)
}
