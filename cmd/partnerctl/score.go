package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/partner-scorecard/api/internal/domain"
)

var (
	previewScope    string
	previewCommon   string
	previewOverseas string
	previewLanguage string
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Scoring utilities",
}

var scorePreviewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Compute the score and rating for an answer set without saving it",
	Example: `  partnerctl score preview --scope domestic --common 5,5,4,4,3,3,5,5,4,4,3,3,5,5,4
  partnerctl score preview --scope overseas --common 5,5,5,5,5,5,5,5,5,5,5,5,5,5,5 --overseas 3,3,3,3,3,3,3,3 --lang en`,
	RunE: runScorePreview,
}

func init() {
	scorePreviewCmd.Flags().StringVar(&previewScope, "scope", string(domain.ScopeDomestic), "Partner scope (domestic or overseas)")
	scorePreviewCmd.Flags().StringVar(&previewCommon, "common", "", "Comma-separated common answers (0-5)")
	scorePreviewCmd.Flags().StringVar(&previewOverseas, "overseas", "", "Comma-separated overseas answers (0-5)")
	scorePreviewCmd.Flags().StringVar(&previewLanguage, "lang", "ko", "Label language preference, Accept-Language syntax")

	scoreCmd.AddCommand(scorePreviewCmd)
	rootCmd.AddCommand(scoreCmd)
}

func runScorePreview(cmd *cobra.Command, _ []string) error {
	scope, ok := domain.ParsePartnerScope(previewScope)
	if !ok {
		return fmt.Errorf("invalid scope %q: must be domestic or overseas", previewScope)
	}
	common, err := parseAnswers(previewCommon)
	if err != nil {
		return fmt.Errorf("--common: %w", err)
	}
	overseas, err := parseAnswers(previewOverseas)
	if err != nil {
		return fmt.Errorf("--overseas: %w", err)
	}
	if err := domain.CheckPreviewRange(common, overseas); err != nil {
		return err
	}
	writePreview(cmd.OutOrStdout(), scope, common, overseas, domain.LabelsFor(previewLanguage))
	return nil
}

// parseAnswers reads a comma-separated list of numbers. Blank input yields no answers.
func parseAnswers(raw string) ([]float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	answers := make([]float64, 0, len(parts))
	for i, part := range parts {
		value, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("answer %d: %q is not a number", i+1, strings.TrimSpace(part))
		}
		answers = append(answers, value)
	}
	return answers, nil
}

func writePreview(w io.Writer, scope domain.PartnerScope, common, overseas []float64, labels domain.RatingLabels) {
	score := domain.PreviewScore(scope, common, overseas)
	rating := domain.Classify(score)

	answered := min(len(common), domain.CommonQuestionCount())
	total := domain.CommonQuestionCount()
	if scope == domain.ScopeOverseas {
		answered += min(len(overseas), domain.OverseasQuestionCount())
		total += domain.OverseasQuestionCount()
	}

	fmt.Fprintf(w, "scope:    %s\n", scope)
	fmt.Fprintf(w, "answered: %d/%d\n", answered, total)
	fmt.Fprintf(w, "score:    %s\n", domain.FormatScore(score))
	fmt.Fprintf(w, "rating:   %s (%s)\n", rating, labels.Long(rating))
}
