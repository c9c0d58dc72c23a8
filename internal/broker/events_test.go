package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/models"
)

func TestHandleMessageRoutesOrderEvents(t *testing.T) {
	event := models.OrderEvent{
		BaseEvent: models.BaseEvent{EventID: "e-1", EventType: models.EventTypeOrderStatusChanged, Timestamp: time.Now().UTC()},
		Order: models.Order{
			ID:          9,
			Status:      models.OrderStatusShipped,
			TotalAmount: decimal.RequireFromString("12.30"),
		},
		Customer: models.Customer{ID: 3, Phone: "+254700000001", Username: "ada"},
	}
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	var got *models.OrderEvent
	h := NewEventHandler()
	h.OnOrderEvent(func(ctx context.Context, e *models.OrderEvent) error {
		got = e
		return nil
	})

	require.NoError(t, h.HandleMessage(context.Background(), kafka.Message{Value: payload}))
	require.NotNil(t, got)
	assert.Equal(t, int64(9), got.Order.ID)
	assert.Equal(t, models.OrderStatusShipped, got.Order.Status)
	assert.True(t, decimal.RequireFromString("12.3").Equal(got.Order.TotalAmount))
	assert.Equal(t, "+254700000001", got.Customer.Phone)
	assert.Equal(t, "ada", got.Customer.Username)
}

func TestHandleMessageIgnoresUnknownTypes(t *testing.T) {
	called := false
	h := NewEventHandler()
	h.OnOrderEvent(func(ctx context.Context, e *models.OrderEvent) error {
		called = true
		return nil
	})

	err := h.HandleMessage(context.Background(), kafka.Message{Value: []byte(`{"event_type":"PAYMENT_SUCCESS"}`)})
	assert.NoError(t, err)
	assert.False(t, called)
}

func TestHandleMessageRejectsGarbage(t *testing.T) {
	h := NewEventHandler()
	assert.Error(t, h.HandleMessage(context.Background(), kafka.Message{Value: []byte("not json")}))
}

type capturingWriter struct {
	key      string
	ctxErr   error
	deadline bool
	err      error
}

func (w *capturingWriter) PublishEvent(ctx context.Context, key string, event interface{}) error {
	w.key = key
	w.ctxErr = ctx.Err()
	_, w.deadline = ctx.Deadline()
	return w.err
}

func TestDispatchOutlivesCancelledRequest(t *testing.T) {
	writer := &capturingWriter{}
	publisher := newEventPublisher(writer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	publisher.Dispatch(ctx, &models.OrderEvent{
		BaseEvent: models.BaseEvent{EventType: models.EventTypeOrderCreated},
		Order:     models.Order{ID: 42},
	})

	assert.Equal(t, "order-42", writer.key)
	assert.NoError(t, writer.ctxErr)
	assert.True(t, writer.deadline)
}

func TestDispatchSwallowsPublishErrors(t *testing.T) {
	writer := &capturingWriter{err: errors.New("broker unavailable")}
	publisher := newEventPublisher(writer)

	assert.NotPanics(t, func() {
		publisher.Dispatch(context.Background(), &models.OrderEvent{Order: models.Order{ID: 7}})
	})
	assert.Equal(t, "order-7", writer.key)
}
