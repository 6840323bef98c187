package reflexion

import (
	"math"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/jwalitptl/intake-api/internal/model"
)

// EditDistance is 1 minus the Ratcliff/Obershelp similarity of the two notes'
// concatenated text, rounded to three places. Identical notes score 0 and
// notes sharing no characters score 1.
func EditDistance(original, edited model.SOAPNote) float64 {
	a := characters(noteText(original))
	b := characters(noteText(edited))
	m := difflib.NewMatcherWithJunk(a, b, false, nil)
	return round(1-m.Ratio(), 3)
}

// noteText joins sections in canonical order with no separator, so the
// joiner never counts as shared text.
func noteText(n model.SOAPNote) string {
	var sb strings.Builder
	for _, k := range n.Keys() {
		sb.WriteString(n[k])
	}
	return sb.String()
}

func characters(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// SectionsEdited lists the canonical sections whose text changed at all.
func SectionsEdited(original, edited model.SOAPNote) []string {
	out := []string{}
	for _, s := range model.SOAPSections {
		if original.Section(s) != edited.Section(s) {
			out = append(out, s)
		}
	}
	return out
}

// Severity grades an edit by how much the note length moved and how many
// sections were touched.
func Severity(original, edited model.SOAPNote, sectionsEdited int) model.EditSeverity {
	origLen := original.Len()
	diff := edited.Len() - origLen
	if diff < 0 {
		diff = -diff
	}
	ratio := float64(diff) / float64(max(origLen, 1))

	switch {
	case ratio < 0.1 && sectionsEdited <= 1:
		return model.SeverityMinor
	case ratio < 0.3 && sectionsEdited <= 2:
		return model.SeverityModerate
	default:
		return model.SeverityMajor
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
