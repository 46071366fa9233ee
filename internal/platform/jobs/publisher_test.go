package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/partner-scorecard/api/internal/domain"
	"github.com/partner-scorecard/api/internal/services"
)

func newTestPublisher(t *testing.T) (*PubSubEventPublisher, *pstest.Server) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, "partner-evaluations")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	t.Cleanup(topic.Stop)

	publisher, err := NewPubSubEventPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubEventPublisher: %v", err)
	}
	return publisher, srv
}

func TestPublishEvaluationSaved(t *testing.T) {
	publisher, srv := newTestPublisher(t)

	event := services.EvaluationSavedEvent{
		EvaluationID: "p1_v3",
		PartnerID:    "p1",
		Scope:        domain.ScopeOverseas,
		Version:      3,
		TotalScore:   72.5,
		Rating:       domain.RatingOK,
		CreatedBy:    "manager@example.com",
		CreatedAt:    time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC),
	}
	if _, err := publisher.PublishEvaluationSaved(context.Background(), event); err != nil {
		t.Fatalf("PublishEvaluationSaved: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	attrs := messages[0].Attributes
	if attrs["eventType"] != services.EventEvaluationSaved || attrs["partnerId"] != "p1" || attrs["version"] != "3" || attrs["rating"] != "OK" {
		t.Fatalf("unexpected attributes %v", attrs)
	}

	var payload services.EvaluationSavedEvent
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.EvaluationID != "p1_v3" || payload.TotalScore != 72.5 || payload.Scope != domain.ScopeOverseas {
		t.Fatalf("unexpected payload %#v", payload)
	}
}

func TestPublishBackupCompleted(t *testing.T) {
	publisher, srv := newTestPublisher(t)

	event := services.BackupCompletedEvent{
		RunID:       "01HZY",
		Trigger:     "scheduler",
		Bucket:      "exports",
		Object:      "backups/2025/05/06/01HZY.json",
		Partners:    4,
		Evaluations: 9,
	}
	if _, err := publisher.PublishBackupCompleted(context.Background(), event); err != nil {
		t.Fatalf("PublishBackupCompleted: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	attrs := messages[0].Attributes
	if attrs["eventType"] != services.EventBackupCompleted || attrs["object"] != event.Object || attrs["trigger"] != "scheduler" {
		t.Fatalf("unexpected attributes %v", attrs)
	}
	if _, ok := attrs["partnerId"]; ok {
		t.Fatalf("backup events must not carry partner attributes")
	}
}

func TestNewPubSubEventPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubEventPublisher(nil); err == nil {
		t.Fatalf("expected error for nil topic")
	}
}
