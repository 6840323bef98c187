package model

import (
	"sort"
	"strings"
	"time"
)

const (
	SectionSubjective = "Subjective"
	SectionObjective  = "Objective"
	SectionAssessment = "Assessment"
	SectionPlan       = "Plan"
)

// SOAPSections is the canonical section order.
var SOAPSections = []string{SectionSubjective, SectionObjective, SectionAssessment, SectionPlan}

// SOAPNote maps section names to text. Extra sections are allowed.
type SOAPNote map[string]string

// Section looks a section up by exact name, then case-insensitively.
func (n SOAPNote) Section(name string) string {
	if v, ok := n[name]; ok {
		return v
	}
	for k, v := range n {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Keys returns the canonical sections present, followed by any extra keys sorted.
func (n SOAPNote) Keys() []string {
	keys := make([]string, 0, len(n))
	canonical := make(map[string]bool, len(SOAPSections))
	for _, s := range SOAPSections {
		canonical[s] = true
		if _, ok := n[s]; ok {
			keys = append(keys, s)
		}
	}
	var extra []string
	for k := range n {
		if !canonical[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(keys, extra...)
}

// Text concatenates every section, space separated.
func (n SOAPNote) Text() string {
	parts := make([]string, 0, len(n))
	for _, k := range n.Keys() {
		parts = append(parts, n[k])
	}
	return strings.Join(parts, " ")
}

// Len is the total character count across sections.
func (n SOAPNote) Len() int {
	total := 0
	for _, v := range n {
		total += len([]rune(v))
	}
	return total
}

func (n SOAPNote) Clone() SOAPNote {
	if n == nil {
		return nil
	}
	cp := make(SOAPNote, len(n))
	for k, v := range n {
		cp[k] = v
	}
	return cp
}

// PreliminarySOAP is a pre-visit draft produced at the end of intake.
type PreliminarySOAP struct {
	Note          SOAPNote  `json:"note"`
	IsPreliminary bool      `json:"is_preliminary"`
	Fallback      bool      `json:"fallback,omitempty"`
	GeneratedAt   time.Time `json:"generated_at"`
}
