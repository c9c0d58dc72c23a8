// Package notify turns committed order events into customer SMS and admin
// email. Delivery is best effort: failures are logged and counted, never
// returned to the code that placed or updated the order.
package notify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"storefront/internal/models"
	"storefront/internal/util"
)

// SMSSender delivers a text message to one phone number.
type SMSSender interface {
	SendSMS(ctx context.Context, phone, message string) error
}

// EmailSender delivers a plain-text email to the shop administrator.
type EmailSender interface {
	SendAdminEmail(ctx context.Context, subject, body string) error
}

// Notifier composes and sends the messages for an order event.
type Notifier struct {
	sms    SMSSender
	email  EmailSender
	logger *zap.Logger
}

// NewNotifier creates a notifier
func NewNotifier(sms SMSSender, email EmailSender) *Notifier {
	return &Notifier{
		sms:    sms,
		email:  email,
		logger: util.GetLogger(),
	}
}

// Handle sends whatever the event calls for. Only an unknown event type is
// reported as an error; delivery failures are logged.
func (n *Notifier) Handle(ctx context.Context, event *models.OrderEvent) error {
	ctx, span := util.StartSpan(ctx, "Notifier.Handle")
	defer span.End()

	switch event.EventType {
	case models.EventTypeOrderCreated:
		n.sendSMS(ctx, event, OrderCreatedSMS(event))
		n.sendEmail(ctx, event, OrderCreatedSubject(&event.Order), OrderCreatedEmail(event))
	case models.EventTypeOrderStatusChanged:
		if event.Order.Status.NotifiesCustomer() {
			n.sendSMS(ctx, event, StatusChangedSMS(&event.Order))
		}
	default:
		return fmt.Errorf("unknown event type %q", event.EventType)
	}
	return nil
}

func (n *Notifier) sendSMS(ctx context.Context, event *models.OrderEvent, message string) {
	phone := event.Customer.Phone
	if phone == "" {
		n.logger.Debug("Customer has no phone, skipping SMS", zap.Int64("order_id", event.Order.ID))
		return
	}

	if err := n.sms.SendSMS(ctx, phone, message); err != nil {
		util.NotificationsFailedTotal.WithLabelValues("sms").Inc()
		n.logger.Error("SMS notification failed",
			zap.Int64("order_id", event.Order.ID),
			zap.String("event_type", event.EventType),
			zap.Error(err))
		return
	}
	util.NotificationsSentTotal.WithLabelValues("sms").Inc()
}

func (n *Notifier) sendEmail(ctx context.Context, event *models.OrderEvent, subject, body string) {
	if err := n.email.SendAdminEmail(ctx, subject, body); err != nil {
		util.NotificationsFailedTotal.WithLabelValues("email").Inc()
		n.logger.Error("Admin email failed",
			zap.Int64("order_id", event.Order.ID),
			zap.Error(err))
		return
	}
	util.NotificationsSentTotal.WithLabelValues("email").Inc()
}

// OrderCreatedSMS is the text sent to the customer when an order is placed.
func OrderCreatedSMS(event *models.OrderEvent) string {
	name := event.Customer.Username
	if name == "" {
		name = event.Customer.DisplayName()
	}
	summary := fmt.Sprintf("Order #%d confirmed! Total:%s", event.Order.ID, event.Order.TotalAmount.StringFixed(2))
	return fmt.Sprintf("Hello %s, Your Order %s has been received please be patient while it's being processed", name, summary)
}

// OrderCreatedSubject is the admin email subject for a new order.
func OrderCreatedSubject(order *models.Order) string {
	return fmt.Sprintf("New Order #%d", order.ID)
}

// OrderCreatedEmail is the admin email body for a new order.
func OrderCreatedEmail(event *models.OrderEvent) string {
	order := &event.Order
	customer := &event.Customer

	var b strings.Builder
	b.WriteString("New Order Placed!\n\n")
	fmt.Fprintf(&b, "Order ID: #%d\n", order.ID)
	fmt.Fprintf(&b, "Customer: %s %s\n", customer.FirstName, customer.LastName)
	fmt.Fprintf(&b, "Email: %s\n", customer.Email)
	fmt.Fprintf(&b, "Phone: %s\n", customer.Phone)
	fmt.Fprintf(&b, "Total Amount: $%s\n", order.TotalAmount.StringFixed(2))
	fmt.Fprintf(&b, "Order Date: %s\n\n", order.OrderDate.Format("2006-01-02 15:04:05 MST"))
	b.WriteString("Items:\n")
	for _, item := range order.Items {
		fmt.Fprintf(&b, "- %dx %s @ $%s = $%s\n",
			item.Quantity, item.ProductName, item.UnitPrice.StringFixed(2), item.TotalPrice.StringFixed(2))
	}
	if order.Notes != "" {
		fmt.Fprintf(&b, "\nNotes: %s\n", order.Notes)
	}
	return b.String()
}

// StatusChangedSMS is the text sent when an order ships or is delivered.
func StatusChangedSMS(order *models.Order) string {
	return fmt.Sprintf("Order #%d status updated: %s", order.ID, order.Status.Title())
}
