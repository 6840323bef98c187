package model

import "strings"

type Priority string

const (
	PriorityRed    Priority = "red"
	PriorityOrange Priority = "orange"
	PriorityYellow Priority = "yellow"
	PriorityGreen  Priority = "green"
)

// ParsePriority normalizes p, reporting whether it names a known band.
func ParsePriority(p string) (Priority, bool) {
	switch pr := Priority(strings.ToLower(strings.TrimSpace(p))); pr {
	case PriorityRed, PriorityOrange, PriorityYellow, PriorityGreen:
		return pr, true
	default:
		return "", false
	}
}

// Band returns the inclusive score range of the priority.
func (p Priority) Band() (lo, hi int) {
	switch p {
	case PriorityRed:
		return 9, 10
	case PriorityOrange:
		return 7, 8
	case PriorityYellow:
		return 4, 6
	default:
		return 1, 3
	}
}

// ClampScore pulls score into the band's range.
func (p Priority) ClampScore(score int) int {
	lo, hi := p.Band()
	if score < lo {
		return lo
	}
	if score > hi {
		return hi
	}
	return score
}

const GeneralMedicine = "General Medicine"

type TriageResult struct {
	Priority        Priority `json:"priority"`
	Score           int      `json:"score"`
	Reasoning       string   `json:"reasoning,omitempty"`
	Specialties     []string `json:"specialties"`
	RedFlags        []string `json:"red_flags"`
	Recommendations []string `json:"recommendations,omitempty"`
	Fallback        bool     `json:"fallback,omitempty"`
}

// FallbackTriage is used whenever classification cannot be obtained.
func FallbackTriage() TriageResult {
	return TriageResult{
		Priority:    PriorityYellow,
		Score:       5,
		Reasoning:   "Default assessment - please review",
		Specialties: []string{GeneralMedicine},
		RedFlags:    []string{},
		Fallback:    true,
	}
}

// EmergencyTriage is assigned when a red flag is detected.
func EmergencyTriage(flags []string) TriageResult {
	return TriageResult{
		Priority:    PriorityRed,
		Score:       10,
		Reasoning:   "Red-flag symptoms reported",
		Specialties: []string{},
		RedFlags:    append([]string{}, flags...),
	}
}

func (t TriageResult) Clone() TriageResult {
	t.Specialties = append([]string(nil), t.Specialties...)
	t.RedFlags = append([]string(nil), t.RedFlags...)
	t.Recommendations = append([]string(nil), t.Recommendations...)
	return t
}
