package models

import "time"

// Event types
const (
	EventTypeOrderCreated       = "ORDER_CREATED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderEvent is published after an order write has committed. It carries
// everything needed to notify the customer and the shop admin without
// reading the database again.
type OrderEvent struct {
	BaseEvent
	Order    Order    `json:"order"`
	Customer Customer `json:"customer"`
}
