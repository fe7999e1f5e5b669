package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/hts/authsvc"
	"github.com/hts/authsvc/accountstore/memstore"
	"github.com/hts/authsvc/accountstore/postgres"
	"github.com/hts/authsvc/internal/events"
	"github.com/hts/authsvc/internal/grpcapi"
	"github.com/hts/authsvc/internal/httpapi"
	otelexport "github.com/hts/authsvc/metrics/export/otel"
	promexport "github.com/hts/authsvc/metrics/export/prometheus"
)

const meterName = "github.com/hts/authsvc"

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	engine     *authsvc.Engine
	httpServer *http.Server
	grpcServer *grpc.Server
	grpcLis    net.Listener
	health     *health.Server
	worker     *events.Worker
	cleanupFn  func(context.Context)
}

// NewRuntime loads configuration from configPath and wires every component.
// Resources opened before a failure are released before returning.
func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := newLogger(os.Stdout, cfg)
	slog.SetDefault(logger)
	logger.Info("bootstrapping authentication service",
		"service", cfg.ServiceID,
		"http_port", cfg.HTTPPort,
		"grpc_port", cfg.GRPCPort,
	)

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	redisClient, err := connectRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	builder := authsvc.New().
		WithConfig(cfg.Engine).
		WithRedis(redisClient).
		WithLogger(logger)

	if cfg.DatabaseURL != "" {
		db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
		if err != nil {
			cleanup()
			return nil, err
		}
		closers = append(closers, func() { _ = postgres.Close(db) })
		if err := postgres.RunMigrations(ctx, db); err != nil {
			cleanup()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		builder.WithAccountStore(postgres.New(db))
		if cfg.PersistLoginHistory {
			builder.WithAuditSink(postgres.NewLoginHistorySink(db, logger))
		}
	} else {
		logger.Warn("DB_URL not set; using in-process account store")
		builder.WithAccountStore(memstore.New())
	}
	if !cfg.PersistLoginHistory || cfg.DatabaseURL == "" {
		builder.WithAuditSink(authsvc.NewJSONWriterSink(os.Stdout))
	}

	engine, err := builder.Build()
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("build engine: %w", err)
	}
	closers = append(closers, engine.Close)

	var consumer events.Consumer
	if len(cfg.KafkaBrokers) > 0 {
		topics := events.Topics{Created: cfg.CreatedTopic, Deleted: cfg.DeletedTopic}
		kc, err := events.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, topics.Names())
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("kafka consumer: %w", err)
		}
		closers = append(closers, func() { _ = kc.Close() })
		consumer = kc
	} else {
		logger.Warn("KAFKA_BROKERS not set; account lifecycle events are not consumed")
		consumer = events.NewNoopConsumer()
	}
	worker := events.NewWorker(logger, consumer, engine,
		events.Topics{Created: cfg.CreatedTopic, Deleted: cfg.DeletedTopic},
		cfg.ConsumerPollInterval,
	)

	otelExporter, err := otelexport.NewExporter(otel.GetMeterProvider().Meter(meterName), engine)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("otel exporter: %w", err)
	}
	closers = append(closers, func() { _ = otelExporter.Close() })

	prom := promexport.NewExporter(engine).
		WithCounter("authsvc_lifecycle_handled_total", "Lifecycle messages applied.", func() uint64 { return worker.Stats().Handled }).
		WithCounter("authsvc_lifecycle_failed_total", "Lifecycle messages acknowledged after handler failure.", func() uint64 { return worker.Stats().Failed }).
		WithCounter("authsvc_lifecycle_malformed_total", "Lifecycle messages with undecodable payloads.", func() uint64 { return worker.Stats().Malformed })

	router := httpapi.NewRouter(httpapi.NewHandler(engine, prom.Handler(), logger))
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(grpcapi.UnaryServerInterceptor(logger)))
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthSrv.SetServingStatus(grpcapi.ServiceName, healthpb.HealthCheckResponse_SERVING)
	grpcapi.Register(grpcServer, grpcapi.NewAuthServer(engine))

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("listen grpc: %w", err)
	}

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		engine:     engine,
		httpServer: httpServer,
		grpcServer: grpcServer,
		grpcLis:    lis,
		health:     healthSrv,
		worker:     worker,
		cleanupFn:  func(context.Context) { cleanup() },
	}, nil
}

// Run serves gRPC and HTTP and consumes lifecycle events until a signal
// arrives or a server fails, then shuts everything down in order.
func (r *Runtime) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 3)
	go func() {
		r.logger.Info("http server started", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		r.logger.Info("grpc server started", "addr", r.grpcLis.Addr().String())
		if err := r.grpcServer.Serve(r.grpcLis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	workerCtx, cancelWorker := context.WithCancel(ctx)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		r.logger.Info("lifecycle worker started", "topics", []string{r.cfg.CreatedTopic, r.cfg.DeletedTopic})
		if err := r.worker.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("lifecycle worker: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		r.logger.Error("server failure", "error", runErr)
	}

	r.health.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.grpcServer.GracefulStop()
	cancelWorker()
	<-workerDone
	r.cleanupFn(shutdownCtx)
	r.logger.Info("shutdown complete")
	return runErr
}

func newLogger(w io.Writer, cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	var handler slog.Handler
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler).With("service", cfg.ServiceID)
}
