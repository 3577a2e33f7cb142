package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/patyfb04/play-inventory/internal/adapter/catalog"
	"github.com/patyfb04/play-inventory/internal/adapter/handler"
	"github.com/patyfb04/play-inventory/internal/adapter/handler/pb"
	"github.com/patyfb04/play-inventory/internal/adapter/messaging"
	"github.com/patyfb04/play-inventory/internal/adapter/storage"
	"github.com/patyfb04/play-inventory/internal/config"
	"github.com/patyfb04/play-inventory/internal/core/service"
	"github.com/patyfb04/play-inventory/internal/observability"
	"github.com/patyfb04/play-inventory/internal/port"
	"github.com/patyfb04/play-inventory/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(config.ServiceName, cfg.Telemetry.LogLevel)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited with error", zap.Error(err))
	}
}

// closer is run in reverse order during shutdown.
type closer struct {
	name string
	fn   func() error
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var closers []closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].fn(); err != nil {
				logger.Warn("close failed", zap.String("resource", closers[i].name), zap.Error(err))
			}
		}
		logger.Info("connections closed")
	}()

	shutdownTracing, err := observability.SetupTracing(ctx, config.ServiceName, config.ServiceVersion, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	closers = append(closers, closer{"tracing", func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdownTracing(shutdownCtx)
	}})

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	// Storage
	inventory, catalogRepo, err := openStorage(ctx, cfg.Storage, logger, &closers)
	if err != nil {
		return err
	}

	// Events
	publisher, amqpConn, err := openPublisher(cfg.Broker, logger, &closers)
	if err != nil {
		return err
	}

	// Services
	grantService := service.NewGrantService(inventory, catalogRepo, publisher, logger,
		service.WithMaxAttempts(cfg.Grant.MaxAttempts),
		service.WithRetryBackoff(cfg.Grant.RetryBackoff),
		service.WithReemitOnDuplicate(cfg.Grant.ReemitOnDuplicate),
		service.WithGrantMetrics(metrics),
	)

	catalogClient := catalog.NewHTTPClient(catalog.Config{
		BaseURL:        cfg.Catalog.BaseURL,
		AttemptTimeout: cfg.Catalog.Timeout,
		Retries:        cfg.Catalog.Retries,
		BaseBackoff:    cfg.Catalog.BaseBackoff,
	}, logger)

	reconcileOpts := []service.ReconcileOption{
		service.WithReconcileMetrics(metrics),
		service.WithReconcileTimeout(cfg.Reconcile.Timeout),
	}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect redis: %w", err)
		}
		closers = append(closers, closer{"redis", rdb.Close})
		reconcileOpts = append(reconcileOpts, service.WithLocker(storage.NewRedisLocker(rdb), cfg.Reconcile.LockTTL))
		logger.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
	}
	reconcileService := service.NewReconcileService(catalogClient, catalogRepo, logger, reconcileOpts...)
	queryService := service.NewInventoryQueryService(inventory, catalogRepo)

	// Transports
	grpcServer := grpc.NewServer()
	pb.RegisterInventoryServiceServer(grpcServer, handler.NewGRPCHandler(grantService, queryService, reconcileService, logger))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.GRPC.Addr, err)
	}

	mux := http.NewServeMux()
	handler.NewHTTPHandler(grantService, queryService, reconcileService, logger).Register(mux)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPC.Addr))
		return grpcServer.Serve(lis)
	})

	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	switch cfg.Broker.Kind {
	case config.BrokerKafka:
		k := cfg.Broker.Kafka
		dlt := messaging.NewKafkaWriter(k.Brokers, k.DeadLetterTopic)
		consumer := messaging.NewKafkaConsumer(
			messaging.NewKafkaReader(k.Brokers, k.GrantsTopic, k.GroupID),
			dlt, grantService, logger, metrics,
			messaging.KafkaConsumerConfig{
				MaxRedeliveries:   k.MaxRedeliveries,
				RedeliveryBackoff: k.RedeliveryBackoff,
			},
		)
		closers = append(closers, closer{"kafka dead-letter writer", dlt.Close}, closer{"kafka consumer", consumer.Close})
		g.Go(func() error { return consumer.Run(gctx) })
	case config.BrokerRabbitMQ:
		consumer := messaging.NewAMQPConsumer(amqpConn, amqpConfig(cfg.Broker.RabbitMQ), grantService, logger, metrics)
		g.Go(func() error { return consumer.Run(gctx) })
	}

	g.Go(func() error {
		if cfg.Reconcile.OnStartup {
			report, err := reconcileService.Reconcile(gctx)
			if err != nil && gctx.Err() == nil {
				logger.Error("startup reconciliation failed", zap.Error(err))
			} else if err == nil {
				logger.Info("startup reconciliation finished",
					zap.Bool("skipped", report.Skipped),
					zap.Int("created", len(report.Created)),
					zap.Int("updated", len(report.Updated)),
					zap.Int("removed", len(report.Deleted)),
				)
			}
		}
		if cfg.Reconcile.Interval > 0 {
			reconcileService.Run(gctx, cfg.Reconcile.Interval)
		}
		return nil
	})

	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")
		healthServer.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP shutdown incomplete", zap.Error(err))
		}
		logger.Info("HTTP server stopped")

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")
		return nil
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func openStorage(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger, closers *[]closer) (port.InventoryRepository, port.CatalogRepository, error) {
	if cfg.Driver == config.StorageMemory {
		logger.Warn("using in-memory storage; state is lost on restart")
		return storage.NewMemoryInventoryRepository(), storage.NewMemoryCatalogRepository(), nil
	}

	var err error
	dsn := cfg.DSN
	if cfg.Driver == config.StorageMySQL {
		if dsn, err = storage.MySQLDSN(dsn); err != nil {
			return nil, nil, err
		}
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", cfg.Driver, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnLifetime)
	*closers = append(*closers, closer{cfg.Driver, db.Close})

	if err := db.PingContext(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to ping %s: %w", cfg.Driver, err)
	}
	logger.Info("connected to database", zap.String("driver", cfg.Driver))

	if cfg.Migrate {
		if err := migrations.Apply(ctx, db, cfg.Driver); err != nil {
			return nil, nil, fmt.Errorf("failed to migrate: %w", err)
		}
		logger.Info("migrations applied")
	}

	adapter, err := storage.NewSQLAdapter(db, storage.Dialect(cfg.Driver))
	if err != nil {
		return nil, nil, err
	}
	return adapter.Inventory(), adapter.Catalog(), nil
}

func openPublisher(cfg config.BrokerConfig, logger *zap.Logger, closers *[]closer) (port.EventPublisher, *amqp.Connection, error) {
	switch cfg.Kind {
	case config.BrokerKafka:
		writer := messaging.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic)
		publisher := messaging.NewKafkaPublisher(writer)
		*closers = append(*closers, closer{"kafka publisher", publisher.Close})
		return publisher, nil, nil
	case config.BrokerRabbitMQ:
		conn, err := messaging.DialAMQP(amqpConfig(cfg.RabbitMQ))
		if err != nil {
			return nil, nil, err
		}
		*closers = append(*closers, closer{"rabbitmq", conn.Close})
		publisher, err := messaging.NewAMQPPublisher(conn, cfg.RabbitMQ.Exchange)
		if err != nil {
			return nil, nil, err
		}
		*closers = append(*closers, closer{"rabbitmq publisher", publisher.Close})
		logger.Info("connected to rabbitmq", zap.String("exchange", cfg.RabbitMQ.Exchange))
		return publisher, conn, nil
	default:
		logger.Warn("no broker configured; events are only logged")
		return messaging.NewLogPublisher(logger), nil, nil
	}
}

func amqpConfig(c config.RabbitMQConfig) messaging.AMQPConfig {
	return messaging.AMQPConfig{
		URL:        c.URL,
		Exchange:   c.Exchange,
		Queue:      c.Queue,
		RoutingKey: c.RoutingKey,
		Prefetch:   c.Prefetch,
	}
}
