package ports

import "context"

// NotificationKind classifies the messages sent to the chat channel of a
// ticket.
type NotificationKind string

const (
	NotificationTicketUpdate     NotificationKind = "ticket_update"
	NotificationPaymentDetected  NotificationKind = "payment_detected"
	NotificationPaymentConfirmed NotificationKind = "payment_confirmed"
	NotificationAddressRequest   NotificationKind = "address_request"
	NotificationSettlement       NotificationKind = "settlement"
	NotificationMonitorTimeout   NotificationKind = "monitor_timeout"
	NotificationAdminAlert       NotificationKind = "admin_alert"
)

// Notification is a message addressed to the channel of a ticket.
type Notification struct {
	TicketID string           `json:"ticketId"`
	Kind     NotificationKind `json:"kind"`
	Status   string           `json:"status"`
	Message  string           `json:"message"`
	// Recipients are the participants expected to act, if any.
	Recipients []string `json:"recipients,omitempty"`
	Timestamp  int64    `json:"timestamp"`
}

// Notifier delivers notifications to the chat platform.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
	Close() error
}
