package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"storefront/internal/models"
	"storefront/internal/util"
)

// DefaultPublishTimeout bounds how long Dispatch waits on the broker.
const DefaultPublishTimeout = 15 * time.Second

type eventWriter interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer       eventWriter
	publishTimeout time.Duration
	logger         *zap.Logger
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return newEventPublisher(producer)
}

func newEventPublisher(producer eventWriter) *EventPublisher {
	return &EventPublisher{
		producer:       producer,
		publishTimeout: DefaultPublishTimeout,
		logger:         util.GetLogger(),
	}
}

// PublishOrderEvent publishes an order event keyed by order id, so events for
// one order stay on one partition
func (ep *EventPublisher) PublishOrderEvent(ctx context.Context, event *models.OrderEvent) error {
	key := "order-" + strconv.FormatInt(event.Order.ID, 10)
	return ep.producer.PublishEvent(ctx, key, event)
}

// Dispatch publishes the event, logging instead of returning failures. The
// order it describes has already been committed, so the publish outlives a
// cancelled request but gives up after publishTimeout.
func (ep *EventPublisher) Dispatch(ctx context.Context, event *models.OrderEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ep.publishTimeout)
	defer cancel()

	if err := ep.PublishOrderEvent(ctx, event); err != nil {
		util.NotificationsDroppedTotal.Inc()
		ep.logger.Error("Failed to publish order event",
			zap.String("event_type", event.EventType),
			zap.Int64("order_id", event.Order.ID),
			zap.Error(err))
	}
}

// EventHandler handles incoming events
type EventHandler struct {
	onOrderEvent func(context.Context, *models.OrderEvent) error
	logger       *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnOrderEvent registers a handler for order created and status changed events
func (eh *EventHandler) OnOrderEvent(handler func(context.Context, *models.OrderEvent) error) {
	eh.onOrderEvent = handler
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
	case models.EventTypeOrderCreated, models.EventTypeOrderStatusChanged:
		if eh.onOrderEvent != nil {
			var event models.OrderEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal %s event: %w", baseEvent.EventType, err)
			}
			return eh.onOrderEvent(ctx, &event)
		}

	default:
		eh.logger.Warn("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
