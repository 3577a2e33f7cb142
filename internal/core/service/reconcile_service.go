package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/patyfb04/play-inventory/internal/clock"
	"github.com/patyfb04/play-inventory/internal/core/domain"
	"github.com/patyfb04/play-inventory/internal/observability"
	"github.com/patyfb04/play-inventory/internal/port"
)

const (
	ReconcileLockKey        = "inventory:lock:catalog-reconcile"
	DefaultReconcileLockTTL = 2 * time.Minute
	DefaultReconcileTimeout = 2 * time.Minute
)

type ReconcileService struct {
	source  port.CatalogSource
	catalog port.CatalogRepository
	locker  port.Locker
	lockTTL time.Duration
	clock   clock.Clock
	logger  observability.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
	timeout time.Duration

	group   singleflight.Group
	mu      sync.Mutex
	current *pass
}

// pass is the context of the shared in-flight reconciliation. It is detached
// from the caller that started it and cancelled once no caller waits on it.
type pass struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

type ReconcileOption func(*ReconcileService)

// WithLocker guards every pass with a lock shared between instances.
func WithLocker(l port.Locker, ttl time.Duration) ReconcileOption {
	return func(s *ReconcileService) {
		s.locker = l
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithReconcileTimeout bounds a single pass regardless of who waits on it.
func WithReconcileTimeout(d time.Duration) ReconcileOption {
	return func(s *ReconcileService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithReconcileMetrics(m *observability.Metrics) ReconcileOption {
	return func(s *ReconcileService) { s.metrics = m }
}

func WithReconcileClock(c clock.Clock) ReconcileOption {
	return func(s *ReconcileService) { s.clock = c }
}

func NewReconcileService(
	source port.CatalogSource,
	catalog port.CatalogRepository,
	logger observability.Logger,
	opts ...ReconcileOption,
) *ReconcileService {
	s := &ReconcileService{
		source:  source,
		catalog: catalog,
		lockTTL: DefaultReconcileLockTTL,
		timeout: DefaultReconcileTimeout,
		clock:   clock.NewSystem(),
		logger:  logger,
		tracer:  otel.Tracer("github.com/patyfb04/play-inventory/reconcile"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observability.NewMetrics(prometheus.NewRegistry())
	}
	return s
}

// Reconcile brings the local catalog projection in line with the upstream
// catalog. Callers that arrive while a pass is running in this process
// share its result; a caller whose ctx ends stops waiting without failing
// the others. A degraded upstream or a pass held by another instance yields
// a Skipped report and no error.
func (s *ReconcileService) Reconcile(ctx context.Context) (domain.ReconcileReport, error) {
	if err := ctx.Err(); err != nil {
		return domain.ReconcileReport{}, err
	}

	p := s.join(ctx)
	defer s.leave(p)

	ch := s.group.DoChan("reconcile", func() (any, error) {
		defer s.finish(p)
		return s.run(p.ctx)
	})

	select {
	case <-ctx.Done():
		s.logger.Debug("stopped waiting for reconciliation", zap.Error(ctx.Err()))
		return domain.ReconcileReport{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			s.logger.Debug("joined in-flight reconciliation")
		}
		report, _ := res.Val.(domain.ReconcileReport)
		return report, res.Err
	}
}

func (s *ReconcileService) join(ctx context.Context) *pass {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		passCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		s.current = &pass{ctx: passCtx, cancel: cancel}
	}
	s.current.waiters++
	return s.current
}

// leave cancels the pass when its last waiter is gone.
func (s *ReconcileService) leave(p *pass) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.waiters--
	if p.waiters > 0 {
		return
	}
	p.cancel()
	if s.current == p {
		s.current = nil
	}
}

func (s *ReconcileService) finish(p *pass) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == p {
		s.current = nil
	}
}

func (s *ReconcileService) run(ctx context.Context) (report domain.ReconcileReport, err error) {
	ctx, span := s.tracer.Start(ctx, "ReconcileService.Reconcile")
	defer span.End()

	report.StartedAt = s.clock.Now()
	defer func() {
		report.Duration = s.clock.Now().Sub(report.StartedAt)
		span.SetAttributes(
			attribute.Int("reconcile.created", len(report.Created)),
			attribute.Int("reconcile.updated", len(report.Updated)),
			attribute.Int("reconcile.deleted", len(report.Deleted)),
			attribute.Bool("reconcile.skipped", report.Skipped),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if s.locker != nil {
		release, ok, err := s.locker.TryLock(ctx, ReconcileLockKey, s.lockTTL)
		if err != nil {
			return report, fmt.Errorf("failed to acquire reconcile lock: %w", err)
		}
		if !ok {
			s.skip(&report, "locked", domain.ErrReconcileInProgress)
			return report, nil
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("failed to release reconcile lock", zap.Error(err))
			}
		}()
	}

	listing := s.source.ListAll(ctx)
	if listing.Degraded {
		s.skip(&report, "upstream_unavailable", fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, listing.Diagnostic))
		return report, nil
	}

	local, err := s.catalog.GetAll(ctx, domain.CatalogFilter{})
	if err != nil {
		return report, fmt.Errorf("failed to load catalog projection: %w", err)
	}

	localByID := make(map[string]domain.CatalogItem, len(local))
	for _, item := range local {
		localByID[item.ID] = item
	}
	upstreamIDs := make(map[string]struct{}, len(listing.Items))

	for _, item := range listing.Items {
		if _, seen := upstreamIDs[item.ID]; seen {
			continue
		}
		upstreamIDs[item.ID] = struct{}{}

		if err := ctx.Err(); err != nil {
			return report, err
		}

		current, exists := localByID[item.ID]
		switch {
		case !exists:
			if _, err := s.catalog.Create(ctx, item); err != nil {
				return report, fmt.Errorf("failed to create catalog item %s: %w", item.ID, err)
			}
			report.Created = append(report.Created, item.ID)
			s.metrics.ReconcileItems.WithLabelValues("create").Inc()
		case !current.Equal(item):
			if _, err := s.catalog.Update(ctx, item); err != nil {
				return report, fmt.Errorf("failed to update catalog item %s: %w", item.ID, err)
			}
			report.Updated = append(report.Updated, item.ID)
			s.metrics.ReconcileItems.WithLabelValues("update").Inc()
		default:
			report.Unchanged++
		}
	}

	for _, item := range local {
		if _, ok := upstreamIDs[item.ID]; ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := s.catalog.Remove(ctx, item.ID); err != nil {
			return report, fmt.Errorf("failed to remove catalog item %s: %w", item.ID, err)
		}
		report.Deleted = append(report.Deleted, item.ID)
		s.metrics.ReconcileItems.WithLabelValues("delete").Inc()
	}

	s.metrics.ReconcileDuration.Observe(s.clock.Now().Sub(report.StartedAt).Seconds())
	s.logger.Info("catalog reconciled",
		zap.Int("created", len(report.Created)),
		zap.Int("updated", len(report.Updated)),
		zap.Int("deleted", len(report.Deleted)),
		zap.Int("unchanged", report.Unchanged),
	)
	return report, nil
}

func (s *ReconcileService) skip(report *domain.ReconcileReport, reason string, cause error) {
	report.Skipped = true
	report.Reason = cause
	s.metrics.ReconcileSkipped.WithLabelValues(reason).Inc()
	s.logger.Warn("catalog reconciliation skipped", zap.String("reason", reason), zap.Error(cause))
}

// Run reconciles once every interval until ctx is done.
func (s *ReconcileService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Reconcile(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("scheduled reconciliation failed", zap.Error(err))
			}
		}
	}
}
