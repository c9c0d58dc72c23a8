package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/models"
)

type countingHandler struct {
	handled int32
	block   chan struct{}
}

func (h *countingHandler) Handle(ctx context.Context, event *models.OrderEvent) error {
	if h.block != nil {
		<-h.block
	}
	atomic.AddInt32(&h.handled, 1)
	return nil
}

func TestAsyncDispatcherDeliversAndDrains(t *testing.T) {
	h := &countingHandler{}
	d := NewAsyncDispatcher(h, 2, 10, time.Second)

	for i := 0; i < 5; i++ {
		d.Dispatch(context.Background(), sampleEvent(models.EventTypeOrderCreated, models.OrderStatusPending, ""))
	}

	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, int32(5), atomic.LoadInt32(&h.handled))
}

func TestAsyncDispatcherDropsWhenFull(t *testing.T) {
	h := &countingHandler{block: make(chan struct{})}
	d := NewAsyncDispatcher(h, 1, 1, time.Second)

	// first event occupies the worker, second fills the queue, the rest drop
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Dispatch(context.Background(), sampleEvent(models.EventTypeOrderCreated, models.OrderStatusPending, ""))
		}()
	}
	wg.Wait()

	close(h.block)
	require.NoError(t, d.Close(context.Background()))
	handled := atomic.LoadInt32(&h.handled)
	assert.GreaterOrEqual(t, handled, int32(1))
	assert.LessOrEqual(t, handled, int32(2))
}

func TestAsyncDispatcherIgnoresEventsAfterClose(t *testing.T) {
	h := &countingHandler{}
	d := NewAsyncDispatcher(h, 1, 1, time.Second)
	require.NoError(t, d.Close(context.Background()))

	d.Dispatch(context.Background(), sampleEvent(models.EventTypeOrderCreated, models.OrderStatusPending, ""))
	assert.Zero(t, atomic.LoadInt32(&h.handled))
	assert.NoError(t, d.Close(context.Background()))
}
