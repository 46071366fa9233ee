package domain

import (
	"fmt"
	"math"
	"strings"
)

// PreviewScore converts answers into a 0-100 score for live display. It never fails: answers beyond
// the catalog are ignored, non-finite values count as zero, and overseas answers are only considered
// for overseas partners. Use ScoreForSave for anything that is persisted.
func PreviewScore(scope PartnerScope, answersCommon []float64, answersOverseas []float64) float64 {
	used := truncateFloats(answersCommon, len(commonQuestions))
	itemCount := len(commonQuestions)
	if scope == ScopeOverseas {
		used = append(used, truncateFloats(answersOverseas, len(overseasQuestions))...)
		itemCount += len(overseasQuestions)
	}

	var sum float64
	for _, value := range used {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			continue
		}
		sum += value
	}

	maxTotal := float64(itemCount * MaxPerItem)
	if maxTotal == 0 {
		return 0
	}
	return roundTenths(sum / maxTotal * 100)
}

// CheckPreviewRange rejects answered values outside [0, MaxPerItem]. NaN marks an unanswered
// question and passes.
func CheckPreviewRange(answersCommon []float64, answersOverseas []float64) error {
	var issues []AnswerIssue
	for _, set := range []struct {
		field  string
		values []float64
	}{{"answersCommon", answersCommon}, {"answersOverseas", answersOverseas}} {
		for i, v := range set.values {
			if math.IsNaN(v) || (v >= 0 && v <= MaxPerItem) {
				continue
			}
			issues = append(issues, AnswerIssue{
				Field:   fmt.Sprintf("%s[%d]", set.field, i),
				Message: fmt.Sprintf("must be between 0 and %d", MaxPerItem),
			})
		}
	}
	if len(issues) == 0 {
		return nil
	}
	return &AnswerValidationError{Issues: issues}
}

// ScoreForSave validates an answer set and returns its score. Answers beyond the catalog are
// ignored, as are overseas answers for domestic partners; everything else must be present and in range.
func ScoreForSave(scope PartnerScope, answersCommon []int, answersOverseas []int) (float64, error) {
	if err := ValidateAnswers(scope, answersCommon, answersOverseas); err != nil {
		return 0, err
	}
	common, overseas := NormalizeAnswers(scope, answersCommon, answersOverseas)
	return PreviewScore(scope, intsToFloats(common), intsToFloats(overseas)), nil
}

// NormalizeAnswers truncates answer sets to the catalog length for the scope. Overseas answers are
// dropped entirely for domestic partners.
func NormalizeAnswers(scope PartnerScope, answersCommon []int, answersOverseas []int) ([]int, []int) {
	common := truncateInts(answersCommon, len(commonQuestions))
	if scope != ScopeOverseas {
		return common, nil
	}
	return common, truncateInts(answersOverseas, len(overseasQuestions))
}

// Unanswered marks a blank question in an answer set submitted for saving.
const Unanswered = math.MinInt

// AnswersFromNullable converts decoded answers in which null means the question was left blank.
func AnswersFromNullable(values []*int) []int {
	if values == nil {
		return nil
	}
	out := make([]int, len(values))
	for i, v := range values {
		if v == nil {
			out[i] = Unanswered
			continue
		}
		out[i] = *v
	}
	return out
}

// AnswerIssue describes one problem with a submitted answer set.
type AnswerIssue struct {
	Field   string
	Message string
}

// AnswerValidationError lists every problem found in a submitted answer set.
type AnswerValidationError struct {
	Issues []AnswerIssue
}

func (e *AnswerValidationError) Error() string {
	if e == nil || len(e.Issues) == 0 {
		return "answers invalid"
	}
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, fmt.Sprintf("%s: %s", issue.Field, issue.Message))
	}
	return "answers invalid: " + strings.Join(parts, "; ")
}

// Fields maps each offending field to its message.
func (e *AnswerValidationError) Fields() map[string]string {
	out := make(map[string]string, len(e.Issues))
	for _, issue := range e.Issues {
		out[issue.Field] = issue.Message
	}
	return out
}

// ValidateAnswers is the strict save-time gate. It rejects unknown scopes, missing answers and
// values outside [0, MaxPerItem].
func ValidateAnswers(scope PartnerScope, answersCommon []int, answersOverseas []int) error {
	var issues []AnswerIssue
	if !scope.Valid() {
		issues = append(issues, AnswerIssue{Field: "scope", Message: fmt.Sprintf("unknown scope %q", scope)})
	}
	issues = append(issues, checkAnswerSet("answersCommon", commonQuestions, answersCommon)...)
	if scope == ScopeOverseas {
		issues = append(issues, checkAnswerSet("answersOverseas", overseasQuestions, answersOverseas)...)
	}
	if len(issues) == 0 {
		return nil
	}
	return &AnswerValidationError{Issues: issues}
}

func checkAnswerSet(field string, questions []Question, answers []int) []AnswerIssue {
	var issues []AnswerIssue
	for i, q := range questions {
		name := field + "." + q.ID
		if i >= len(answers) || answers[i] == Unanswered {
			issues = append(issues, AnswerIssue{Field: name, Message: "answer required"})
			continue
		}
		if v := answers[i]; v < 0 || v > MaxPerItem {
			issues = append(issues, AnswerIssue{Field: name, Message: fmt.Sprintf("must be between 0 and %d", MaxPerItem)})
		}
	}
	return issues
}

// roundTenths rounds half up at the first decimal place.
func roundTenths(v float64) float64 {
	return math.Floor(v*10+0.5) / 10
}

func truncateFloats(values []float64, limit int) []float64 {
	if len(values) > limit {
		values = values[:limit]
	}
	return append([]float64(nil), values...)
}

func truncateInts(values []int, limit int) []int {
	if len(values) > limit {
		values = values[:limit]
	}
	return append([]int(nil), values...)
}

func intsToFloats(values []int) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out
}
