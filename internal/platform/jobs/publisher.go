package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/partner-scorecard/api/internal/services"
)

// PubSubEventPublisher publishes scorecard events to a single Pub/Sub topic. Consumers filter on the
// eventType attribute.
type PubSubEventPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubEventPublisher constructs a Pub/Sub backed event publisher.
func NewPubSubEventPublisher(topic *pubsub.Topic) (*PubSubEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub event publisher: topic is required")
	}
	return &PubSubEventPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishEvaluationSaved announces a stored evaluation.
func (p *PubSubEventPublisher) PublishEvaluationSaved(ctx context.Context, event services.EvaluationSavedEvent) (string, error) {
	attrs := map[string]string{}
	setAttr(attrs, "partnerId", event.PartnerID)
	setAttr(attrs, "evaluationId", event.EvaluationID)
	setAttr(attrs, "rating", string(event.Rating))
	if event.Version > 0 {
		attrs["version"] = strconv.Itoa(event.Version)
	}
	return p.publish(ctx, services.EventEvaluationSaved, event, attrs)
}

// PublishBackupCompleted announces an uploaded backup.
func (p *PubSubEventPublisher) PublishBackupCompleted(ctx context.Context, event services.BackupCompletedEvent) (string, error) {
	attrs := map[string]string{}
	setAttr(attrs, "runId", event.RunID)
	setAttr(attrs, "trigger", event.Trigger)
	setAttr(attrs, "object", event.Object)
	return p.publish(ctx, services.EventBackupCompleted, event, attrs)
}

func (p *PubSubEventPublisher) publish(ctx context.Context, eventType string, payload any, attrs map[string]string) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub event publisher: not initialised")
	}

	data, err := p.marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", eventType, err)
	}
	attrs["eventType"] = eventType

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish %s: %w", eventType, err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
