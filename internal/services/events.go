package services

import (
	"context"
	"time"

	"github.com/partner-scorecard/api/internal/domain"
)

// Event types carried in the "eventType" message attribute.
const (
	EventEvaluationSaved = "evaluation.saved"
	EventBackupCompleted = "backup.completed"
)

// EvaluationSavedEvent is published after an evaluation has been stored.
type EvaluationSavedEvent struct {
	EvaluationID string              `json:"evaluationId"`
	PartnerID    string              `json:"partnerId"`
	Scope        domain.PartnerScope `json:"scope"`
	Version      int                 `json:"version"`
	TotalScore   float64             `json:"totalScore"`
	Rating       domain.Rating       `json:"rating"`
	CreatedBy    string              `json:"createdBy"`
	CreatedAt    time.Time           `json:"createdAt"`
}

// BackupCompletedEvent is published after a scheduled backup has been uploaded.
type BackupCompletedEvent struct {
	RunID       string    `json:"runId"`
	Trigger     string    `json:"trigger"`
	Bucket      string    `json:"bucket"`
	Object      string    `json:"object"`
	Partners    int       `json:"partners"`
	Evaluations int       `json:"evaluations"`
	ExportedBy  string    `json:"exportedBy"`
	ExportedAt  time.Time `json:"exportedAt"`
}

// EventPublisher delivers domain events to downstream consumers.
type EventPublisher interface {
	PublishEvaluationSaved(ctx context.Context, event EvaluationSavedEvent) (string, error)
	PublishBackupCompleted(ctx context.Context, event BackupCompletedEvent) (string, error)
}
