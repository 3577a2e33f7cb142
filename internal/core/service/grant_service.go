package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/patyfb04/play-inventory/internal/clock"
	"github.com/patyfb04/play-inventory/internal/core/domain"
	"github.com/patyfb04/play-inventory/internal/observability"
	"github.com/patyfb04/play-inventory/internal/port"
	"github.com/patyfb04/play-inventory/internal/retry"
)

const (
	DefaultMaxAttempts  = 5
	DefaultRetryBackoff = 10 * time.Millisecond

	maxRetryBackoff = time.Second
	retryJitter     = 0.5
)

type GrantService struct {
	inventory port.InventoryRepository
	catalog   port.CatalogRepository
	publisher port.EventPublisher
	clock     clock.Clock
	logger    observability.Logger
	metrics   *observability.Metrics
	tracer    trace.Tracer

	maxAttempts       int
	retryBackoff      time.Duration
	reemitOnDuplicate bool
}

type GrantOption func(*GrantService)

func WithMaxAttempts(n int) GrantOption {
	return func(s *GrantService) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func WithRetryBackoff(d time.Duration) GrantOption {
	return func(s *GrantService) { s.retryBackoff = d }
}

// WithReemitOnDuplicate makes redeliveries publish InventoryUpdated with the
// current quantity in addition to GrantsAcknowledged.
func WithReemitOnDuplicate(on bool) GrantOption {
	return func(s *GrantService) { s.reemitOnDuplicate = on }
}

func WithGrantMetrics(m *observability.Metrics) GrantOption {
	return func(s *GrantService) { s.metrics = m }
}

func WithGrantClock(c clock.Clock) GrantOption {
	return func(s *GrantService) { s.clock = c }
}

func NewGrantService(
	inventory port.InventoryRepository,
	catalog port.CatalogRepository,
	publisher port.EventPublisher,
	logger observability.Logger,
	opts ...GrantOption,
) *GrantService {
	s := &GrantService{
		inventory:    inventory,
		catalog:      catalog,
		publisher:    publisher,
		clock:        clock.NewSystem(),
		logger:       logger,
		tracer:       otel.Tracer("github.com/patyfb04/play-inventory/grant"),
		maxAttempts:  DefaultMaxAttempts,
		retryBackoff: DefaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observability.NewMetrics(prometheus.NewRegistry())
	}
	return s
}

// Consume applies one GrantItems delivery. Repeated deliveries of the same
// MessageID leave the stored quantity untouched and only acknowledge again.
// The returned error is transient unless it wraps domain.ErrInvalidCommand.
func (s *GrantService) Consume(ctx context.Context, cmd domain.GrantItems) (domain.GrantOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "GrantService.Consume", trace.WithAttributes(
		attribute.String("inventory.user_id", cmd.UserID),
		attribute.String("inventory.catalog_item_id", cmd.CatalogItemID),
		attribute.String("messaging.message_id", cmd.MessageID),
	))
	defer span.End()

	outcome, err := s.consume(ctx, cmd)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return outcome, err
	}
	span.SetAttributes(attribute.String("inventory.grant_result", string(outcome.Result)))
	s.metrics.Grants.WithLabelValues(string(outcome.Result)).Inc()
	return outcome, nil
}

func (s *GrantService) consume(ctx context.Context, cmd domain.GrantItems) (domain.GrantOutcome, error) {
	if err := cmd.Validate(); err != nil {
		return domain.GrantOutcome{}, err
	}

	log := s.logger.With(
		zap.String("message_id", cmd.MessageID),
		zap.String("correlation_id", cmd.CorrelationID),
		zap.String("user_id", cmd.UserID),
		zap.String("catalog_item_id", cmd.CatalogItemID),
	)

	item, err := s.catalog.GetByID(ctx, cmd.CatalogItemID)
	if err != nil {
		return domain.GrantOutcome{}, fmt.Errorf("catalog lookup failed: %w", err)
	}
	if item == nil {
		log.Warn("grant references unknown catalog item")
		return domain.GrantOutcome{Result: domain.ResultItemUnknown}, nil
	}

	outcome, err := s.applyWithRetry(ctx, cmd, log)
	if err != nil {
		return domain.GrantOutcome{}, err
	}

	events := []domain.Event{domain.GrantsAcknowledged{CorrelationID: cmd.CorrelationID}}
	if outcome.Result == domain.ResultApplied || s.reemitOnDuplicate {
		events = append(events, domain.InventoryUpdated{
			UserID:        outcome.Record.UserID,
			CatalogItemID: outcome.Record.CatalogItemID,
			NewQuantity:   outcome.Record.Quantity,
		})
	}

	if err := s.publish(ctx, events); err != nil {
		s.metrics.PublishFailures.Inc()
		log.Error("grant stored but events not published", zap.String("result", string(outcome.Result)), zap.Error(err))
		return outcome, err
	}

	log.Info("grant consumed",
		zap.String("result", string(outcome.Result)),
		zap.Int("quantity", outcome.Record.Quantity),
	)
	return outcome, nil
}

func (s *GrantService) applyWithRetry(ctx context.Context, cmd domain.GrantItems, log *zap.Logger) (domain.GrantOutcome, error) {
	policy := retry.Policy{
		Initial:    s.retryBackoff,
		Max:        maxRetryBackoff,
		MaxRetries: s.maxAttempts - 1,
		Jitter:     retryJitter,
	}

	attempts := 0
	outcome, err := backoff.RetryNotifyWithData(func() (domain.GrantOutcome, error) {
		attempts++
		outcome, err := s.apply(ctx, cmd)
		if err != nil && !errors.Is(err, domain.ErrConcurrentModification) {
			return outcome, backoff.Permanent(err)
		}
		return outcome, err
	}, policy.BackOff(ctx), func(err error, delay time.Duration) {
		s.metrics.ConcurrencyRetries.Inc()
		log.Debug("concurrent modification, retrying", zap.Int("attempt", attempts), zap.Duration("delay", delay))
	})
	if err == nil {
		return outcome, nil
	}
	if errors.Is(err, domain.ErrConcurrentModification) {
		return domain.GrantOutcome{}, fmt.Errorf("grant gave up after %d attempts: %w", attempts, err)
	}
	return domain.GrantOutcome{}, err
}

func (s *GrantService) apply(ctx context.Context, cmd domain.GrantItems) (domain.GrantOutcome, error) {
	existing, err := s.inventory.GetSingle(ctx, domain.InventoryFilter{
		UserID:        cmd.UserID,
		CatalogItemID: cmd.CatalogItemID,
	})
	if err != nil {
		return domain.GrantOutcome{}, fmt.Errorf("failed to load inventory record: %w", err)
	}

	if existing == nil {
		created, err := s.inventory.Create(ctx, domain.InventoryRecord{
			ID:                  uuid.NewString(),
			UserID:              cmd.UserID,
			CatalogItemID:       cmd.CatalogItemID,
			Quantity:            cmd.Quantity,
			AcquiredDate:        s.clock.Now(),
			ProcessedMessageIDs: []string{cmd.MessageID},
		})
		if err != nil {
			return domain.GrantOutcome{}, fmt.Errorf("failed to create inventory record: %w", err)
		}
		return domain.GrantOutcome{Result: domain.ResultApplied, Record: &created}, nil
	}

	if !existing.Grant(cmd.Quantity, cmd.MessageID) {
		return domain.GrantOutcome{Result: domain.ResultDuplicate, Record: existing}, nil
	}

	updated, err := s.inventory.Update(ctx, *existing)
	if err != nil {
		return domain.GrantOutcome{}, fmt.Errorf("failed to update inventory record: %w", err)
	}
	return domain.GrantOutcome{Result: domain.ResultApplied, Record: &updated}, nil
}

func (s *GrantService) publish(ctx context.Context, events []domain.Event) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, event := range events {
		event := event
		g.Go(func() error {
			if err := s.publisher.Publish(gctx, event); err != nil {
				return fmt.Errorf("%s: %w", event.EventType(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrPublishFailure, err)
	}
	return nil
}
