package domain

import (
	"strings"

	"golang.org/x/text/language"
)

// Rating is the ordinal band a score falls into.
type Rating string

const (
	RatingGood          Rating = "GOOD"
	RatingOK            Rating = "OK"
	RatingCaution       Rating = "CAUTION"
	RatingUntrustworthy Rating = "UNTRUSTWORTHY"
)

// Classify maps a score to its band. Boundaries belong to the higher band and no clamping is applied.
func Classify(score float64) Rating {
	switch {
	case score >= 80:
		return RatingGood
	case score >= 60:
		return RatingOK
	case score >= 40:
		return RatingCaution
	default:
		return RatingUntrustworthy
	}
}

// Rank orders bands from UNTRUSTWORTHY (0) to GOOD (3). Unknown values rank -1.
func (r Rating) Rank() int {
	switch r {
	case RatingUntrustworthy:
		return 0
	case RatingCaution:
		return 1
	case RatingOK:
		return 2
	case RatingGood:
		return 3
	default:
		return -1
	}
}

// Valid reports whether the rating is one of the four bands.
func (r Rating) Valid() bool { return r.Rank() >= 0 }

// ParseRating accepts any casing of a band name.
func ParseRating(raw string) (Rating, bool) {
	r := Rating(strings.ToUpper(strings.TrimSpace(raw)))
	return r, r.Valid()
}

// RatingLabel holds the display strings for a band.
type RatingLabel struct {
	Long  string
	Short string
}

// RatingLabels resolves display strings for a language.
type RatingLabels struct {
	Tag    language.Tag
	labels map[Rating]RatingLabel
}

var (
	labelLanguages = []language.Tag{language.Korean, language.English}
	labelMatcher   = language.NewMatcher(labelLanguages)

	ratingLabelsByLanguage = map[language.Tag]map[Rating]RatingLabel{
		language.Korean: {
			RatingGood:          {Long: "굿파트너 (80~100)", Short: "굿파트너"},
			RatingOK:            {Long: "그럭저럭 파트너 (60~80)", Short: "그럭저럭 파트너"},
			RatingCaution:       {Long: "주의필요 파트너 (40~60)", Short: "주의필요 파트너"},
			RatingUntrustworthy: {Long: "믿을 수 없는 파트너 (<40)", Short: "믿을 수 없는 파트너"},
		},
		language.English: {
			RatingGood:          {Long: "Good partner (80-100)", Short: "Good partner"},
			RatingOK:            {Long: "Fair partner (60-80)", Short: "Fair partner"},
			RatingCaution:       {Long: "Caution required (40-60)", Short: "Caution required"},
			RatingUntrustworthy: {Long: "Untrustworthy (<40)", Short: "Untrustworthy"},
		},
	}
)

// LabelsFor picks the label set best matching an Accept-Language style preference list. Korean is
// the default.
func LabelsFor(preferences ...string) RatingLabels {
	var tags []language.Tag
	for _, pref := range preferences {
		parsed, _, err := language.ParseAcceptLanguage(pref)
		if err != nil {
			continue
		}
		tags = append(tags, parsed...)
	}
	tag := language.Korean
	if _, idx, conf := labelMatcher.Match(tags...); conf != language.No {
		tag = labelLanguages[idx]
	}
	return RatingLabels{Tag: tag, labels: ratingLabelsByLanguage[tag]}
}

// Long returns the descriptive label including the score range. Unknown ratings render as-is.
func (l RatingLabels) Long(r Rating) string {
	if label, ok := l.lookup(r); ok {
		return label.Long
	}
	return string(r)
}

// Short returns the compact label used in tables and exports.
func (l RatingLabels) Short(r Rating) string {
	if label, ok := l.lookup(r); ok {
		return label.Short
	}
	return string(r)
}

func (l RatingLabels) lookup(r Rating) (RatingLabel, bool) {
	labels := l.labels
	if labels == nil {
		labels = ratingLabelsByLanguage[language.Korean]
	}
	label, ok := labels[r]
	return label, ok
}
