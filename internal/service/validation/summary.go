package validation

import (
	"fmt"
	"strings"

	"github.com/jwalitptl/intake-api/internal/model"
)

const maxTopIssues = 5

func percent(v float64) string {
	return fmt.Sprintf("%.0f%%", v*100)
}

// Summary condenses a result for display: errors are listed before warnings.
func (s *service) Summary(result model.ValidationResult) model.ValidationSummary {
	status := "NEEDS REVIEW"
	if result.IsValid {
		status = "VALID"
	}

	sum := model.ValidationSummary{
		Status: status,
		Scores: map[string]string{
			"overall":      percent(result.OverallScore),
			"structural":   percent(result.StructuralScore),
			"clinical":     percent(result.ClinicalScore),
			"completeness": percent(result.CompletenessScore),
		},
		ErrorCount:   result.Count(model.LevelError),
		WarningCount: result.Count(model.LevelWarning),
		TopIssues:    []string{},
		Suggestions:  append([]string{}, result.Suggestions...),
	}

	for _, level := range []model.IssueLevel{model.LevelError, model.LevelWarning} {
		for _, i := range result.Issues {
			if i.Level == level && len(sum.TopIssues) < maxTopIssues {
				sum.TopIssues = append(sum.TopIssues, fmt.Sprintf("[%s] %s: %s", strings.ToUpper(string(i.Level)), i.Section, i.Message))
			}
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Status: %s\n", status)
	fmt.Fprintf(&sb, "Overall %s (structural %s, clinical %s, completeness %s)\n",
		sum.Scores["overall"], sum.Scores["structural"], sum.Scores["clinical"], sum.Scores["completeness"])
	fmt.Fprintf(&sb, "Errors: %d, warnings: %d\n", sum.ErrorCount, sum.WarningCount)
	for _, line := range sum.TopIssues {
		fmt.Fprintf(&sb, "- %s\n", line)
	}
	if len(sum.Suggestions) > 0 {
		sb.WriteString("Suggestions:\n")
		for _, line := range sum.Suggestions {
			fmt.Fprintf(&sb, "- %s\n", line)
		}
	}
	sum.Report = sb.String()
	return sum
}
