package webhooknotifier

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/tdex-network/escrowd/internal/core/ports"
	"github.com/tdex-network/escrowd/pkg/stats"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultRequestTimeout ...
	DefaultRequestTimeout = 10 * time.Second

	tokenTTL = 5 * time.Minute
	issuer   = "escrowd"
)

type webhookService struct {
	hooks      []*Webhook
	httpClient *client

	lock     sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	closed   bool
}

// NewService returns a notifier POSTing every notification to the webhooks
// subscribed to its kind. Every endpoint has its own circuit breaker so that
// a dead bot doesn't hold back the others.
func NewService(
	hooks []*Webhook, requestTimeout time.Duration,
) (ports.Notifier, error) {
	if len(hooks) <= 0 {
		return nil, ErrNoWebhooks
	}
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}

	breakers := make(map[string]*gobreaker.CircuitBreaker)
	for _, h := range hooks {
		breakers[h.ID] = newCircuitBreaker(h.Endpoint)
	}
	return &webhookService{
		hooks:      hooks,
		httpClient: newHTTPClient(requestTimeout),
		breakers:   breakers,
	}, nil
}

// Notify invokes the subscribed webhooks concurrently and returns the first
// error encountered, if any.
func (ws *webhookService) Notify(ctx context.Context, n ports.Notification) error {
	ws.lock.Lock()
	closed := ws.closed
	ws.lock.Unlock()
	if closed {
		return ErrClosed
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}

	eg, ctx := errgroup.WithContext(ctx)
	for i := range ws.hooks {
		hook := ws.hooks[i]
		if !hook.Accepts(n.Kind) {
			continue
		}
		eg.Go(func() error {
			err := ws.doRequest(ctx, hook, n.TicketID, payload)
			result := "ok"
			if err != nil {
				result = "error"
			}
			stats.NotificationsTotal.WithLabelValues("webhook", result).Inc()
			return err
		})
	}
	return eg.Wait()
}

func (ws *webhookService) Close() error {
	ws.lock.Lock()
	defer ws.lock.Unlock()

	ws.closed = true
	ws.httpClient.CloseIdleConnections()
	return nil
}

func (ws *webhookService) doRequest(
	ctx context.Context, hook *Webhook, ticketID string, payload []byte,
) error {
	_, err := ws.breakers[hook.ID].Execute(func() (interface{}, error) {
		headers := map[string]string{
			"Content-Type": "application/json",
		}
		if hook.IsSecured() {
			token, err := signToken(hook.Secret, ticketID)
			if err != nil {
				return nil, err
			}
			headers["Authorization"] = fmt.Sprintf("Bearer %s", token)
		}
		return nil, ws.httpClient.post(ctx, hook.Endpoint, payload, headers)
	})
	return err
}

func signToken(secret, ticketID string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.StandardClaims{
		Issuer:    issuer,
		Subject:   ticketID,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(tokenTTL).Unix(),
	})
	return token.SignedString([]byte(secret))
}

func newCircuitBreaker(endpoint string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: endpoint,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests > 20 && failureRatio >= 0.7
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger := log.WithField("endpoint", name)
			if to == gobreaker.StateOpen {
				logger.Warn("webhook seems down, stop allowing requests")
			}
			if from == gobreaker.StateOpen && to == gobreaker.StateHalfOpen {
				logger.Info("checking webhook status")
			}
			if from == gobreaker.StateHalfOpen && to == gobreaker.StateClosed {
				logger.Info("webhook seems ok, restart allowing requests")
			}
		},
	})
}
