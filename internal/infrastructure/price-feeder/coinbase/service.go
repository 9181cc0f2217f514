package coinbasefeeder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/tdex-network/escrowd/internal/core/ports"
	"github.com/tdex-network/escrowd/pkg/circuitbreaker"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultBaseURL is the root of the public Coinbase REST API.
	DefaultBaseURL = "https://api.coinbase.com"
	// DefaultCacheTTL is how long a fetched rate is served before being
	// refreshed.
	DefaultCacheTTL = 60 * time.Second
	// DefaultRequestTimeout ...
	DefaultRequestTimeout = 10 * time.Second

	baseAsset = "LTC"
)

var (
	// DefaultCurrencies are the fiat currencies quoted when none is given.
	DefaultCurrencies = []string{"USD", "EUR"}

	// ErrUnsupportedCurrency ...
	ErrUnsupportedCurrency = errors.New("unsupported fiat currency")
	// ErrInvalidURL ...
	ErrInvalidURL = errors.New("price feed url is invalid")
	// ErrBadResponse is returned when the source answers with an error status
	// or a body that can't be parsed.
	ErrBadResponse = errors.New("bad response from price source")
)

// Opts is the struct given to NewService.
type Opts struct {
	BaseURL        string
	Currencies     []string
	CacheTTL       time.Duration
	RequestTimeout time.Duration
}

type cachedRate struct {
	rate      decimal.Decimal
	fetchedAt time.Time
}

type service struct {
	client     *http.Client
	baseURL    string
	currencies []string
	supported  map[string]struct{}
	ttl        time.Duration
	cb         *gobreaker.CircuitBreaker
	group      singleflight.Group

	lock  sync.RWMutex
	cache map[string]cachedRate
}

// NewService returns a price feeder fetching LTC spot rates from Coinbase.
func NewService(opts Opts) (ports.PriceFeeder, error) {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, ErrInvalidURL
	}

	currencies := opts.Currencies
	if len(currencies) <= 0 {
		currencies = DefaultCurrencies
	}
	supported := make(map[string]struct{})
	list := make([]string, 0, len(currencies))
	for _, c := range currencies {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if _, ok := supported[c]; ok {
			continue
		}
		supported[c] = struct{}{}
		list = append(list, c)
	}
	if len(list) <= 0 {
		return nil, fmt.Errorf("missing fiat currencies")
	}

	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return &service{
		client:     &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		currencies: list,
		supported:  supported,
		ttl:        ttl,
		cb:         circuitbreaker.NewCircuitBreaker("coinbase"),
		cache:      make(map[string]cachedRate),
	}, nil
}

func (s *service) Currencies() []string {
	return append([]string{}, s.currencies...)
}

func (s *service) GetRate(
	ctx context.Context, currency string,
) (decimal.Decimal, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if _, ok := s.supported[currency]; !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, currency)
	}

	if rate, ok := s.cached(currency); ok {
		return rate, nil
	}

	// Concurrent misses for the same currency share one request.
	res, err, _ := s.group.Do(currency, func() (interface{}, error) {
		if rate, ok := s.cached(currency); ok {
			return rate, nil
		}
		rate, err := circuitbreaker.Execute(s.cb, func() (decimal.Decimal, error) {
			return s.fetch(ctx, currency)
		}, isFailure)
		if err != nil {
			return nil, err
		}

		s.lock.Lock()
		s.cache[currency] = cachedRate{rate, time.Now()}
		s.lock.Unlock()

		log.WithFields(log.Fields{
			"currency": currency,
			"rate":     rate.String(),
		}).Debug("refreshed exchange rate")
		return rate, nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return res.(decimal.Decimal), nil
}

func (s *service) cached(currency string) (decimal.Decimal, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	entry, ok := s.cache[currency]
	if !ok || time.Since(entry.fetchedAt) > s.ttl {
		return decimal.Zero, false
	}
	return entry.rate, true
}

func (s *service) fetch(
	ctx context.Context, currency string,
) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf(
		"%s/v2/prices/%s-%s/spot", s.baseURL, baseAsset, url.PathEscape(currency),
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("Accept", "application/json")

	rs, err := s.client.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer rs.Body.Close()

	body, err := io.ReadAll(rs.Body)
	if err != nil {
		return decimal.Zero, err
	}
	if rs.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf(
			"%w: status %d: %s", ErrBadResponse, rs.StatusCode, strings.TrimSpace(string(body)),
		)
	}

	var resp spotResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrBadResponse, err)
	}
	return resp.rate(currency)
}

// isFailure keeps cancellations of the caller out of the breaker counts.
func isFailure(err error) bool {
	return !errors.Is(err, context.Canceled)
}
