package webhooknotifier

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/tdex-network/escrowd/internal/core/ports"
)

// Webhook is an endpoint receiving the notifications of the given kinds, or
// all of them if none is set.
type Webhook struct {
	ID       string                   `json:"id"`
	Kinds    []ports.NotificationKind `json:"kinds,omitempty"`
	Endpoint string                   `json:"endpoint"`
	Secret   string                   `json:"-"`
}

func NewWebhook(
	endpoint, secret string, kinds ...ports.NotificationKind,
) (*Webhook, error) {
	u, err := url.ParseRequestURI(endpoint)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidEndpoint, endpoint)
	}
	for _, k := range kinds {
		if _, ok := knownKinds[k]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownKind, k)
		}
	}
	return &Webhook{uuid.New().String(), kinds, endpoint, secret}, nil
}

// ParseWebhook parses endpoints in the form "url" or "kind1+kind2=url".
func ParseWebhook(def, secret string) (*Webhook, error) {
	def = strings.TrimSpace(def)
	prefix, endpoint, found := strings.Cut(def, "=")
	if !found || strings.Contains(prefix, "://") {
		return NewWebhook(def, secret)
	}

	kinds := make([]ports.NotificationKind, 0)
	for _, k := range strings.Split(prefix, "+") {
		if k = strings.TrimSpace(k); k != "" {
			kinds = append(kinds, ports.NotificationKind(k))
		}
	}
	return NewWebhook(endpoint, secret, kinds...)
}

func (h *Webhook) Accepts(kind ports.NotificationKind) bool {
	if len(h.Kinds) <= 0 {
		return true
	}
	for _, k := range h.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func (h *Webhook) IsSecured() bool {
	return len(h.Secret) > 0
}

var knownKinds = map[ports.NotificationKind]struct{}{
	ports.NotificationTicketUpdate:     {},
	ports.NotificationPaymentDetected:  {},
	ports.NotificationPaymentConfirmed: {},
	ports.NotificationAddressRequest:   {},
	ports.NotificationSettlement:       {},
	ports.NotificationMonitorTimeout:   {},
	ports.NotificationAdminAlert:       {},
}
