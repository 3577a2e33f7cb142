package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/patyfb04/play-inventory/internal/core/domain"
	"github.com/patyfb04/play-inventory/internal/observability"
	"github.com/patyfb04/play-inventory/internal/retry"
)

const (
	itemsPath = "/items"

	DefaultAttemptTimeout = time.Second
	DefaultRetries        = 5
	DefaultBaseBackoff    = 2 * time.Second
	DefaultMaxBackoff     = 30 * time.Second
	DefaultJitter         = 0.5

	DefaultBreakerThreshold = 3
	DefaultBreakerCooldown  = 15 * time.Second
)

// errCallerGone marks a fetch abandoned by its caller. It says nothing about
// upstream health and is not counted by the breaker.
var errCallerGone = errors.New("catalog fetch abandoned by caller")

type Config struct {
	BaseURL        string
	AttemptTimeout time.Duration
	Retries        int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
	// Jitter is the randomization factor in (0, 1] applied to every backoff
	// delay.
	Jitter float64

	// BreakerThreshold consecutive failed fetches open the circuit for
	// BreakerCooldown; further fetches degrade without calling upstream.
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// HTTPClient reads the upstream catalog over HTTP. It implements
// port.CatalogSource and never returns an error: any failure is reported as
// a degraded listing.
type HTTPClient struct {
	cfg        Config
	httpClient *http.Client
	logger     observability.Logger
	policy     retry.Policy
	breaker    *gobreaker.CircuitBreaker
}

type itemDTO struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       json.RawMessage `json:"price"`
}

func NewHTTPClient(cfg Config, logger observability.Logger) *HTTPClient {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = DefaultBaseBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	if cfg.Jitter <= 0 || cfg.Jitter > 1 {
		cfg.Jitter = DefaultJitter
	}
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = DefaultBreakerThreshold
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = DefaultBreakerCooldown
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &HTTPClient{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     logger,
		policy: retry.Policy{
			Initial:    cfg.BaseBackoff,
			Max:        cfg.MaxBackoff,
			MaxRetries: cfg.Retries,
			Jitter:     cfg.Jitter,
		},
	}

	threshold := uint32(cfg.BreakerThreshold)
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "catalog",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errCallerGone)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("catalog circuit changed state",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return c
}

func (c *HTTPClient) ListAll(ctx context.Context) domain.CatalogListing {
	v, err := c.breaker.Execute(func() (interface{}, error) {
		items, err := c.fetchWithRetry(ctx)
		if err != nil && ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", errCallerGone, err)
		}
		return items, err
	})
	if err != nil {
		return c.degraded(err)
	}
	items, _ := v.([]domain.CatalogItem)
	return domain.CatalogListing{Items: items}
}

func (c *HTTPClient) degraded(err error) domain.CatalogListing {
	c.logger.Warn("catalog unavailable, returning degraded listing", zap.Error(err))
	return domain.CatalogListing{
		Items:      []domain.CatalogItem{},
		Degraded:   true,
		Diagnostic: fmt.Errorf("%w: %w", domain.ErrUpstreamUnavailable, err),
	}
}

func (c *HTTPClient) fetchWithRetry(ctx context.Context) ([]domain.CatalogItem, error) {
	var retries int
	return backoff.RetryNotifyWithData(func() ([]domain.CatalogItem, error) {
		items, retryable, err := c.fetch(ctx)
		if err != nil && !retryable {
			return nil, backoff.Permanent(err)
		}
		return items, err
	}, c.policy.BackOff(ctx), func(err error, delay time.Duration) {
		retries++
		c.logger.Warn("delaying catalog retry",
			zap.Duration("delay", delay),
			zap.Int("retry", retries),
			zap.Error(err),
		)
	})
}

func (c *HTTPClient) fetch(ctx context.Context) (items []domain.CatalogItem, retryable bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+itemsPath, nil)
	if err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("get %s: %w", itemsPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		transient := resp.StatusCode >= 500 || resp.StatusCode == http.StatusRequestTimeout
		return nil, transient, fmt.Errorf("get %s: unexpected status %d", itemsPath, resp.StatusCode)
	}

	var dtos []itemDTO
	if err := json.NewDecoder(resp.Body).Decode(&dtos); err != nil {
		return nil, false, fmt.Errorf("decode catalog items: %w", err)
	}

	items = make([]domain.CatalogItem, 0, len(dtos))
	for _, dto := range dtos {
		item, err := dto.toDomain()
		if err != nil {
			return nil, false, err
		}
		items = append(items, item)
	}
	return items, false, nil
}

func (d itemDTO) toDomain() (domain.CatalogItem, error) {
	item := domain.CatalogItem{ID: d.ID, Name: d.Name, Description: d.Description}
	if d.ID == "" {
		return item, errors.New("catalog item without id")
	}
	if len(d.Price) > 0 && string(d.Price) != "null" {
		if err := item.Price.UnmarshalJSON(d.Price); err != nil {
			return item, fmt.Errorf("catalog item %s: invalid price: %w", d.ID, err)
		}
	}
	return item, nil
}
