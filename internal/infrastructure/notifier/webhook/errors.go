package webhooknotifier

import "errors"

var (
	// ErrNoWebhooks is returned when the notifier is created without any
	// endpoint.
	ErrNoWebhooks = errors.New("at least one webhook endpoint is required")
	// ErrInvalidEndpoint ...
	ErrInvalidEndpoint = errors.New("webhook endpoint must be a valid URI")
	// ErrUnknownKind is returned when a webhook subscribes to a notification
	// kind that doesn't exist.
	ErrUnknownKind = errors.New("notification kind is unknown")
	// ErrClosed ...
	ErrClosed = errors.New("notifier is closed")
)
