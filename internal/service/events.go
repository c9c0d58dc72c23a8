package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"storefront/internal/models"
)

// EventDispatcher hands a committed order event to the notification path.
// Implementations must not block on delivery and must not fail the caller.
type EventDispatcher interface {
	Dispatch(ctx context.Context, event *models.OrderEvent)
}

type discardDispatcher struct{}

func (discardDispatcher) Dispatch(context.Context, *models.OrderEvent) {}

func newOrderEvent(eventType string, order *models.Order, customer *models.Customer) *models.OrderEvent {
	return &models.OrderEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: eventType,
			Timestamp: time.Now().UTC(),
		},
		Order:    *order,
		Customer: *customer,
	}
}
