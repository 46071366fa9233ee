package schemas

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partner-scorecard/api/internal/domain"
)

func sampleBackup() domain.Backup {
	created := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	partners := []domain.Partner{{
		ID: "p1", Scope: domain.ScopeOverseas, Country: "VN", Name: "Saigon Works", Org: "Saigon Works Ltd",
		CreatedAt: created, UpdatedAt: created,
	}}
	evaluations := []domain.Evaluation{{
		ID: "p1_v1", PartnerID: "p1", Scope: domain.ScopeOverseas, Version: 1,
		AnswersCommon:   []int{5, 5, 5, 5, 5, 4, 4, 4, 4, 4, 3, 3, 3, 3, 3},
		AnswersOverseas: []int{2, 2, 2, 2, 1, 1, 1, 1},
		TotalScore:      67.8, Rating: domain.RatingOK, CreatedAt: created, CreatedBy: "kim@example.com",
	}}
	return domain.NewBackup(partners, evaluations, created, "admin@example.com")
}

func TestValidateBackup_Valid(t *testing.T) {
	data, err := json.Marshal(sampleBackup())
	require.NoError(t, err)
	assert.NoError(t, ValidateBackup(data))
}

func TestValidateBackup_EmptyCollections(t *testing.T) {
	data, err := json.Marshal(domain.NewBackup(nil, nil, time.Now(), "admin@example.com"))
	require.NoError(t, err)
	assert.NoError(t, ValidateBackup(data))
}

func TestValidateBackup_RejectsOutOfRangeAnswer(t *testing.T) {
	backup := sampleBackup()
	backup.Evaluations[0].AnswersCommon[0] = 7
	backup.Evaluations[0].Rating = "EXCELLENT"
	data, err := json.Marshal(backup)
	require.NoError(t, err)

	err = ValidateBackup(data)
	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.GreaterOrEqual(t, len(validationErr.Errors), 2)
}

func TestValidateBackup_RejectsMissingFields(t *testing.T) {
	err := ValidateBackup([]byte(`{"partners":[]}`))
	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Contains(t, err.Error(), "evaluations")
}

func TestValidateBackup_MalformedDocument(t *testing.T) {
	err := ValidateBackup([]byte(`{not json`))
	var loadErr *SchemaLoadError
	assert.True(t, errors.As(err, &loadErr))
}

func TestValidateJSONString(t *testing.T) {
	schema := `{"type":"object","required":["name"]}`
	assert.NoError(t, ValidateJSONString(schema, `{"name":"x"}`))
	assert.Error(t, ValidateJSONString(schema, `{}`))
}
