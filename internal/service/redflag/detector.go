// Package redflag spots phrases in patient text that signal a possible
// medical emergency.
package redflag

import "strings"

// Phrases is the fixed red-flag vocabulary, lower case.
var Phrases = []string{
	"chest pain",
	"crushing",
	"can't breathe",
	"cannot breathe",
	"difficulty breathing",
	"severe bleeding",
	"unconscious",
	"seizure",
	"stroke",
	"paralysis",
	"suicidal",
	"overdose",
	"poisoning",
	"severe allergic",
	"anaphylaxis",
	"worst headache",
	"sudden weakness",
	"vision loss",
	"facial droop",
}

// Detector is safe for concurrent use.
type Detector struct {
	phrases []string
}

func NewDetector() *Detector {
	return &Detector{phrases: Phrases}
}

// IsEmergency reports whether text contains any red-flag phrase, ignoring case.
func (d *Detector) IsEmergency(text string) bool {
	lower := normalize(text)
	for _, p := range d.phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Detect returns every red-flag phrase present in text, in vocabulary order.
func (d *Detector) Detect(text string) []string {
	lower := normalize(text)
	var found []string
	for _, p := range d.phrases {
		if strings.Contains(lower, p) {
			found = append(found, p)
		}
	}
	return found
}

// normalize lowercases and folds typographic apostrophes so "can’t" matches.
func normalize(text string) string {
	return strings.ReplaceAll(strings.ToLower(text), "’", "'")
}
