package application

import (
	"context"

	"go.uber.org/zap"

	"github.com/techbridge/service-tutoring/internal/events"
	"github.com/techbridge/service-tutoring/internal/platform/kafka"
)

// EventPublisher publishes CloudEvents. *kafka.Producer satisfies it.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, ce kafka.CloudEvent) error
}

// publishEvent wraps data in a CloudEvent and publishes it on the tutoring
// topic. Failures are logged and never reach the caller.
func publishEvent(ctx context.Context, publisher EventPublisher, logger *zap.Logger, eventType, subject string, data interface{}) {
	if publisher == nil {
		return
	}

	cloudEvent, err := kafka.NewCloudEvent(events.Source, eventType, data)
	if err != nil {
		logger.Error("failed to create cloud event",
			zap.String("event_type", eventType),
			zap.Error(err),
		)
		return
	}

	if err := publisher.PublishEvent(ctx, events.TopicTutoringEvents, cloudEvent.WithSubject(subject)); err != nil {
		logger.Error("failed to publish event",
			zap.String("topic", events.TopicTutoringEvents),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
}
