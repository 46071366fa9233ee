package domain

import (
	"strconv"
	"strings"
	"time"
)

// PartnerCSVHeader lists the columns of the partner export in order.
var PartnerCSVHeader = []string{
	"id", "scope", "country", "name", "org", "email", "phone",
	"createdAt", "latestScore", "latestRating", "latestMemo",
}

const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// PartnersCSV renders partners and their latest evaluation as CSV text. Every data field is quoted,
// rows are joined with "\n" and follow the input order. Partners without an evaluation get empty
// score, rating and memo columns.
func PartnersCSV(partners []Partner, latestByPartnerID map[string]Evaluation, labels RatingLabels) string {
	lines := make([]string, 0, len(partners)+1)
	lines = append(lines, strings.Join(PartnerCSVHeader, ","))
	for _, p := range partners {
		score, rating, memo := "", "", ""
		if latest, ok := latestByPartnerID[p.ID]; ok {
			score = FormatScore(latest.TotalScore)
			if latest.Rating != "" {
				rating = labels.Short(latest.Rating)
			}
			memo = latest.Note
		}
		lines = append(lines, quoteRow(
			p.ID,
			string(p.Scope),
			p.Country,
			p.Name,
			p.Org,
			p.Email,
			p.Phone,
			FormatTimestamp(p.CreatedAt),
			score,
			rating,
			memo,
		))
	}
	return strings.Join(lines, "\n")
}

// Backup is the full JSON dump handed to administrators.
type Backup struct {
	Partners    []BackupPartner    `json:"partners"`
	Evaluations []BackupEvaluation `json:"evaluations"`
	ExportedAt  string             `json:"exportedAt"`
	ExportedBy  string             `json:"exportedBy"`
}

// BackupPartner is the serialised form of a partner inside a backup.
type BackupPartner struct {
	ID        string `json:"id"`
	Scope     string `json:"scope"`
	Country   string `json:"country"`
	Name      string `json:"name"`
	Org       string `json:"org"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Archived  bool   `json:"archived"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// BackupEvaluation is the serialised form of an evaluation inside a backup.
type BackupEvaluation struct {
	ID              string  `json:"id"`
	PartnerID       string  `json:"partnerId"`
	Version         int     `json:"version"`
	Scope           string  `json:"scope"`
	AnswersCommon   []int   `json:"answersCommon"`
	AnswersOverseas []int   `json:"answersOverseas,omitempty"`
	TotalScore      float64 `json:"totalScore"`
	Rating          string  `json:"rating"`
	Note            string  `json:"note,omitempty"`
	CreatedAt       string  `json:"createdAt,omitempty"`
	CreatedBy       string  `json:"createdBy,omitempty"`
}

// NewBackup assembles the backup document. Nil inputs become empty arrays so the JSON shape is stable.
func NewBackup(partners []Partner, evaluations []Evaluation, exportedAt time.Time, exportedBy string) Backup {
	backup := Backup{
		Partners:    make([]BackupPartner, 0, len(partners)),
		Evaluations: make([]BackupEvaluation, 0, len(evaluations)),
		ExportedAt:  FormatTimestamp(exportedAt),
		ExportedBy:  exportedBy,
	}
	for _, p := range partners {
		backup.Partners = append(backup.Partners, BackupPartner{
			ID:        p.ID,
			Scope:     string(p.Scope),
			Country:   p.Country,
			Name:      p.Name,
			Org:       p.Org,
			Email:     p.Email,
			Phone:     p.Phone,
			Archived:  p.Archived,
			CreatedAt: FormatTimestamp(p.CreatedAt),
			UpdatedAt: FormatTimestamp(p.UpdatedAt),
		})
	}
	for _, e := range evaluations {
		common := e.AnswersCommon
		if common == nil {
			common = []int{}
		}
		backup.Evaluations = append(backup.Evaluations, BackupEvaluation{
			ID:              e.ID,
			PartnerID:       e.PartnerID,
			Version:         e.Version,
			Scope:           string(e.Scope),
			AnswersCommon:   common,
			AnswersOverseas: e.AnswersOverseas,
			TotalScore:      e.TotalScore,
			Rating:          string(e.Rating),
			Note:            e.Note,
			CreatedAt:       FormatTimestamp(e.CreatedAt),
			CreatedBy:       e.CreatedBy,
		})
	}
	return backup
}

var (
	backupPartnerColumns    = []string{"id", "scope", "country", "name", "org", "email", "phone", "archived", "createdAt", "updatedAt"}
	backupEvaluationColumns = []string{"id", "partnerId", "version", "scope", "answersCommon", "answersOverseas", "totalScore", "rating", "note", "createdAt", "createdBy"}
)

// BackupCSV renders a backup as a sectioned CSV document: partners, then evaluations, then export
// metadata.
func BackupCSV(b Backup) string {
	lines := []string{"=== PARTNERS ===", strings.Join(backupPartnerColumns, ",")}
	for _, p := range b.Partners {
		lines = append(lines, quoteRow(
			p.ID, p.Scope, p.Country, p.Name, p.Org, p.Email, p.Phone,
			strconv.FormatBool(p.Archived), p.CreatedAt, p.UpdatedAt,
		))
	}
	lines = append(lines, "", "=== EVALUATIONS ===", strings.Join(backupEvaluationColumns, ","))
	for _, e := range b.Evaluations {
		lines = append(lines, quoteRow(
			e.ID, e.PartnerID, strconv.Itoa(e.Version), e.Scope,
			joinInts(e.AnswersCommon), joinInts(e.AnswersOverseas),
			FormatScore(e.TotalScore), e.Rating, e.Note, e.CreatedAt, e.CreatedBy,
		))
	}
	lines = append(lines, "", "Exported at: "+b.ExportedAt, "Exported by: "+b.ExportedBy)
	return strings.Join(lines, "\n")
}

// FormatScore renders a score without trailing zeros (72.5, 100).
func FormatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}

// FormatTimestamp renders an instant as UTC ISO-8601 with millisecond precision. The zero time
// renders as an empty string.
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(isoMillis)
}

func quoteRow(fields ...string) string {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}
	return strings.Join(quoted, ",")
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}
