package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"order-analytics/internal/models"
	"order-analytics/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher publishes pipeline lifecycle events. Publishing is
// best-effort: failures are logged and never propagate, and a nil publisher
// is safe to call, so pipelines run unchanged without a broker.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer, logger: util.GetLogger()}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

// PublishIngestCompleted publishes an IngestCompleted event
func (ep *EventPublisher) PublishIngestCompleted(ctx context.Context, event *models.IngestCompletedEvent) {
	if ep == nil {
		return
	}
	event.BaseEvent = newBaseEvent(models.EventTypeIngestCompleted)
	ep.publish(ctx, "run-"+event.RunID, event)
}

// PublishPipelineCompleted publishes a PipelineCompleted event
func (ep *EventPublisher) PublishPipelineCompleted(ctx context.Context, event *models.PipelineCompletedEvent) {
	if ep == nil {
		return
	}
	event.BaseEvent = newBaseEvent(models.EventTypePipelineCompleted)
	ep.publish(ctx, "run-"+event.RunID, event)
}

// PublishRetentionApplied publishes a RetentionApplied event
func (ep *EventPublisher) PublishRetentionApplied(ctx context.Context, event *models.RetentionAppliedEvent) {
	if ep == nil {
		return
	}
	event.BaseEvent = newBaseEvent(models.EventTypeRetentionApplied)
	ep.publish(ctx, "retention", event)
}

func (ep *EventPublisher) publish(ctx context.Context, key string, event interface{}) {
	if err := ep.producer.PublishEvent(ctx, key, event); err != nil {
		ep.logger.Warn("Event publish failed", zap.String("key", key), zap.Error(err))
	}
}

// EventHandler routes consumed events to registered callbacks.
type EventHandler struct {
	logger              *zap.Logger
	onPipelineCompleted func(context.Context, *models.PipelineCompletedEvent) error
	onRetentionApplied  func(context.Context, *models.RetentionAppliedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnPipelineCompleted registers a handler for PipelineCompleted events
func (eh *EventHandler) OnPipelineCompleted(handler func(context.Context, *models.PipelineCompletedEvent) error) {
	eh.onPipelineCompleted = handler
}

// OnRetentionApplied registers a handler for RetentionApplied events
func (eh *EventHandler) OnRetentionApplied(handler func(context.Context, *models.RetentionAppliedEvent) error) {
	eh.onRetentionApplied = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypePipelineCompleted:
		if eh.onPipelineCompleted != nil {
			var event models.PipelineCompletedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PipelineCompleted event: %w", err)
			}
			return eh.onPipelineCompleted(ctx, &event)
		}

	case models.EventTypeRetentionApplied:
		if eh.onRetentionApplied != nil {
			var event models.RetentionAppliedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal RetentionApplied event: %w", err)
			}
			return eh.onRetentionApplied(ctx, &event)
		}

	default:
		eh.logger.Debug("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
