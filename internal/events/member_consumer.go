package events

import (
	"context"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/techbridge/service-tutoring/internal/platform/kafka"
)

// RoleCache is the part of the member role cache the consumer drives.
type RoleCache interface {
	Evict(ctx context.Context, memberID uuid.UUID) error
}

// MemberEventConsumer listens to member events and evicts cached roles so
// listings pick up role changes and deletions.
type MemberEventConsumer struct {
	consumer *kafka.Consumer
	cache    RoleCache
	logger   *zap.Logger
}

// NewMemberEventConsumer creates a new MemberEventConsumer.
func NewMemberEventConsumer(
	brokers []string,
	groupID string,
	cache RoleCache,
	logger *zap.Logger,
) *MemberEventConsumer {
	consumer := kafka.NewConsumer(brokers, groupID, TopicMemberEvents, logger)
	return &MemberEventConsumer{
		consumer: consumer,
		cache:    cache,
		logger:   logger,
	}
}

// Start begins consuming member events. This blocks until the context is cancelled.
func (c *MemberEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Consume(ctx, c.HandleMessage)
}

// Close closes the underlying Kafka consumer.
func (c *MemberEventConsumer) Close() error {
	return c.consumer.Close()
}

// HandleMessage processes one member.events message.
func (c *MemberEventConsumer) HandleMessage(ctx context.Context, msg kafkago.Message) error {
	cloudEvent, err := kafka.ParseCloudEvent(msg.Value)
	if err != nil {
		c.logger.Error("failed to parse cloud event from member topic",
			zap.Error(err),
			zap.String("raw", string(msg.Value)),
		)
		return nil // Don't retry malformed messages
	}

	switch cloudEvent.Type {
	case MemberUpdated, MemberRoleChanged, MemberDeleted:
		return c.handleMemberChanged(ctx, cloudEvent)
	default:
		c.logger.Debug("ignoring unhandled member event type",
			zap.String("type", cloudEvent.Type),
		)
		return nil
	}
}

func (c *MemberEventConsumer) handleMemberChanged(ctx context.Context, cloudEvent kafka.CloudEvent) error {
	var evt MemberEvent
	if err := cloudEvent.ParseData(&evt); err != nil {
		c.logger.Error("failed to parse MemberEvent data",
			zap.String("type", cloudEvent.Type),
			zap.Error(err),
		)
		return nil // Don't retry malformed data
	}
	if evt.MemberID == uuid.Nil {
		c.logger.Warn("member event without member_id", zap.String("type", cloudEvent.Type))
		return nil
	}

	if err := c.cache.Evict(ctx, evt.MemberID); err != nil {
		c.logger.Error("failed to evict member role",
			zap.String("member_id", evt.MemberID.String()),
			zap.Error(err),
		)
		return err
	}

	c.logger.Info("member role evicted",
		zap.String("type", cloudEvent.Type),
		zap.String("member_id", evt.MemberID.String()),
	)
	return nil
}
