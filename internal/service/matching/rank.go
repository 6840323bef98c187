package matching

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jwalitptl/intake-api/internal/model"
)

// Score weights. A perfect candidate reaches 100.
const (
	weightSpecialty    = 40.0
	weightSubspecialty = 35.0
	weightLoad         = 25.0
	maxExperience      = 15
	weightRating       = 10.0
	bonusLanguage      = 5.0
	bonusOnline        = 5.0

	MaxSlots = 5
)

// Eligible reports whether d may be offered at all for priority. Red
// priority bypasses the capacity cap.
func Eligible(d model.Doctor, priority model.Priority) bool {
	if !d.IsAvailable {
		return false
	}
	return priority == model.PriorityRed || d.HasCapacity()
}

// specialtyScore is the hard specialty filter: ok is false when neither the
// specialty nor the subspecialty matches.
func specialtyScore(d model.Doctor, specialty string) (score float64, reason string, ok bool) {
	want := strings.ToLower(strings.TrimSpace(specialty))
	if want == "" {
		return 0, "", false
	}
	if strings.ToLower(d.Specialty) == want {
		return weightSpecialty, "Specialty match: " + d.Specialty, true
	}
	if d.Subspecialty != "" && strings.Contains(strings.ToLower(d.Subspecialty), want) {
		return weightSubspecialty, "Subspecialty match: " + d.Subspecialty, true
	}
	return 0, "", false
}

// Score computes the match score and reasons for a doctor already known to
// match the specialty. It is a pure function of its arguments.
func Score(d model.Doctor, specialtyPoints float64, preferredLanguage string) (float64, []string) {
	score := specialtyPoints
	var reasons []string

	// No capacity and over-capacity both earn nothing for load.
	if d.MaxLoad > 0 {
		if f := weightLoad * (1 - float64(d.CurrentLoad)/float64(d.MaxLoad)); f > 0 {
			score += f
		}
	}
	if d.LoadPercentage() < 50 {
		reasons = append(reasons, "Low current workload")
	}

	exp := d.ExperienceYears
	if exp > maxExperience {
		exp = maxExperience
	}
	if exp > 0 {
		score += float64(exp)
	}
	if d.ExperienceYears >= 10 {
		reasons = append(reasons, fmt.Sprintf("Highly experienced (%d years)", d.ExperienceYears))
	}

	score += d.Rating / 5 * weightRating
	if d.Rating >= 4.5 {
		reasons = append(reasons, fmt.Sprintf("Excellent rating (%s/5)", strconv.FormatFloat(d.Rating, 'f', -1, 64)))
	}

	if preferredLanguage != "" && speaks(d, preferredLanguage) {
		score += bonusLanguage
		reasons = append(reasons, "Speaks "+preferredLanguage)
	}
	if d.IsOnline {
		score += bonusOnline
		reasons = append(reasons, "Currently online")
	}

	if score > 100 {
		score = 100
	}
	return score, reasons
}

func speaks(d model.Doctor, language string) bool {
	for _, l := range d.Languages {
		if strings.EqualFold(strings.TrimSpace(l), strings.TrimSpace(language)) {
			return true
		}
	}
	return false
}

// Rank filters doctors for q.Specialty and orders them by descending score.
// Ties keep roster order.
func Rank(doctors []model.Doctor, q model.MatchQuery, now time.Time) []model.MatchResult {
	var out []model.MatchResult
	for _, d := range doctors {
		if !Eligible(d, q.Priority) {
			continue
		}
		points, reason, ok := specialtyScore(d, q.Specialty)
		if !ok {
			continue
		}
		score, reasons := Score(d, points, q.PreferredLanguage)
		out = append(out, model.MatchResult{
			Doctor:            d,
			MatchScore:        score,
			MatchReasons:      append([]string{reason}, reasons...),
			AvailableSlots:    Slots(q.Priority, now),
			EstimatedWaitTime: WaitTime(d, q.Priority),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].MatchScore > out[j].MatchScore
	})
	if q.MaxResults > 0 && len(out) > q.MaxResults {
		out = out[:q.MaxResults]
	}
	return out
}

// Slots lists display slots for a priority relative to now.
func Slots(priority model.Priority, now time.Time) []string {
	var slots []string
	switch priority {
	case model.PriorityRed:
		slots = []string{"Immediate", "Within 15 minutes"}
	case model.PriorityOrange:
		slots = sameDay(now.Hour()+1, 3)
	case model.PriorityYellow:
		slots = append(sameDay(now.Hour()+2, 2), "Tomorrow at 09:00", "Tomorrow at 11:00")
	default:
		for i := 1; i <= 3; i++ {
			day := now.AddDate(0, 0, i).Weekday().String()
			slots = append(slots, day+" at 10:00", day+" at 14:00")
		}
	}
	if len(slots) > MaxSlots {
		slots = slots[:MaxSlots]
	}
	return slots
}

// sameDay returns up to n hourly slots from hour start, ending before 18:00.
func sameDay(start, n int) []string {
	var slots []string
	for h := start; h < 18 && len(slots) < n; h++ {
		slots = append(slots, fmt.Sprintf("Today at %d:00", h))
	}
	return slots
}

// WaitTime estimates the wait at 15 minutes per patient already queued.
func WaitTime(d model.Doctor, priority model.Priority) string {
	base := d.CurrentLoad * 15
	switch priority {
	case model.PriorityRed:
		return "Immediate"
	case model.PriorityOrange:
		return fmt.Sprintf("~%d minutes", max(15, base/2))
	case model.PriorityYellow:
		return fmt.Sprintf("~%d hour(s)", max(1, base/60))
	default:
		return fmt.Sprintf("~%d day(s)", max(1, d.CurrentLoad/10))
	}
}
