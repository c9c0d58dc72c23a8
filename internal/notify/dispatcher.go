package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"storefront/internal/models"
	"storefront/internal/util"
)

// Handler consumes order events.
type Handler interface {
	Handle(ctx context.Context, event *models.OrderEvent) error
}

// AsyncDispatcher hands order events to a fixed pool of goroutines so the
// request that committed the order never waits on SMS or email. Events that
// do not fit in the queue are dropped.
type AsyncDispatcher struct {
	handler Handler
	queue   chan *models.OrderEvent
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewAsyncDispatcher starts workers goroutines reading from a queue of the
// given size.
func NewAsyncDispatcher(handler Handler, workers, queueSize int, timeout time.Duration) *AsyncDispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	d := &AsyncDispatcher{
		handler: handler,
		queue:   make(chan *models.OrderEvent, queueSize),
		timeout: timeout,
		logger:  util.GetLogger(),
	}

	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.run()
	}
	return d
}

// Dispatch enqueues event without blocking.
func (d *AsyncDispatcher) Dispatch(ctx context.Context, event *models.OrderEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(event, "dispatcher closed")
		return
	}

	select {
	case d.queue <- event:
	default:
		d.drop(event, "queue full")
	}
}

// Close stops accepting events and waits for queued ones to finish or for
// ctx to expire.
func (d *AsyncDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *AsyncDispatcher) run() {
	defer d.wg.Done()
	for event := range d.queue {
		d.handle(event)
	}
}

func (d *AsyncDispatcher) handle(event *models.OrderEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Notification handler panicked",
				zap.Int64("order_id", event.Order.ID),
				zap.Any("panic", r))
		}
	}()

	if err := d.handler.Handle(ctx, event); err != nil {
		d.logger.Error("Failed to handle order event",
			zap.String("event_id", event.EventID),
			zap.Int64("order_id", event.Order.ID),
			zap.Error(err))
	}
}

func (d *AsyncDispatcher) drop(event *models.OrderEvent, reason string) {
	util.NotificationsDroppedTotal.Inc()
	d.logger.Warn("Dropping order event",
		zap.String("reason", reason),
		zap.String("event_type", event.EventType),
		zap.Int64("order_id", event.Order.ID))
}
