package workers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/taskdeck/taskdeck-api/internal/logger"
	"github.com/taskdeck/taskdeck-api/internal/queue"
	"go.uber.org/zap"
)

// ActivityRecorder persists per-owner activity counters.
type ActivityRecorder interface {
	RecordEvent(ctx context.Context, ownerID uuid.UUID, eventType string, at time.Time) error
}

// ActivityConsumer drains task lifecycle events off the bus and folds them
// into per-owner activity stats.
type ActivityConsumer struct {
	bus      queue.EventQueue
	activity ActivityRecorder
	prefetch int
	log      *zap.Logger
}

// NewActivityConsumer creates the consumer.
func NewActivityConsumer(bus queue.EventQueue, activity ActivityRecorder, prefetch int, log *zap.Logger) *ActivityConsumer {
	return &ActivityConsumer{bus: bus, activity: activity, prefetch: prefetch, log: log}
}

// Start consumes events until the context is cancelled or the bus connection
// fails, in which case the error is returned so the caller can reconnect.
func (c *ActivityConsumer) Start(ctx context.Context) error {
	messages, errs, err := c.bus.Consume(ctx, c.prefetch)
	if err != nil {
		return err
	}

	c.log.Info("activity_consumer_started", zap.Int("prefetch", c.prefetch))

	for {
		select {
		case <-ctx.Done():
			c.log.Info("activity_consumer_stopped")
			return nil
		case err, ok := <-errs:
			if !ok {
				return nil
			}
			return err
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			c.handle(ctx, msg)
		}
	}
}

func (c *ActivityConsumer) handle(ctx context.Context, msg queue.MessageInterface) {
	event := msg.GetEvent()
	if event == nil {
		// Malformed payload, do not requeue.
		if err := msg.Nack(false); err != nil {
			c.log.Warn("failed_to_nack_message", zap.String("error", logger.SanitizeError(err)))
		}
		return
	}

	if err := c.activity.RecordEvent(ctx, event.OwnerID, string(event.Type), event.CreatedAt); err != nil {
		c.log.Error("failed_to_record_activity",
			zap.String("event_type", string(event.Type)),
			zap.String("owner_id", logger.SanitizeOwnerID(event.OwnerID.String())),
			zap.String("error", logger.SanitizeError(err)),
		)
		// Transient store failure, requeue for another attempt.
		if err := msg.Nack(true); err != nil {
			c.log.Warn("failed_to_nack_message", zap.String("error", logger.SanitizeError(err)))
		}
		return
	}

	if err := msg.Ack(); err != nil {
		c.log.Warn("failed_to_ack_message", zap.String("error", logger.SanitizeError(err)))
		return
	}

	c.log.Debug("activity_recorded",
		zap.String("event_type", string(event.Type)),
		zap.String("owner_id", logger.SanitizeOwnerID(event.OwnerID.String())),
	)
}
