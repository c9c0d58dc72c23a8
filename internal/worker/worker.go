package worker

import (
	"context"

	"go.uber.org/zap"

	"storefront/internal/broker"
	"storefront/internal/notify"
	"storefront/internal/util"
)

// NotificationWorker consumes order events from Kafka and sends the SMS and
// email they call for
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer, handler notify.Handler) *NotificationWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderEvent(handler.Handle)

	return &NotificationWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start blocks consuming events until ctx is cancelled
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.consumer.Close()
}
