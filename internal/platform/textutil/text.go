package textutil

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var strictPolicy = bluemonday.StrictPolicy()

// PlainText strips every tag from user-supplied input and returns trimmed text. Entities produced
// by the sanitizer are decoded again so stored values read naturally in exports.
func PlainText(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	cleaned := strictPolicy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}

// SingleLine is PlainText with every run of whitespace, including newlines, collapsed to one space.
func SingleLine(raw string) string {
	return strings.Join(strings.FieldsFunc(PlainText(raw), unicode.IsSpace), " ")
}

// Fold returns a case-folded, NFKC-normalised form of s for case-insensitive matching.
func Fold(s string) string {
	return cases.Fold().String(norm.NFKC.String(s))
}

// ContainsFold reports whether needle occurs in any of the haystacks, ignoring case. An empty needle
// matches everything.
func ContainsFold(needle string, haystacks ...string) bool {
	folded := Fold(strings.TrimSpace(needle))
	if folded == "" {
		return true
	}
	for _, h := range haystacks {
		if strings.Contains(Fold(h), folded) {
			return true
		}
	}
	return false
}
