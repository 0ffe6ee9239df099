package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"saascore/access"
	"saascore/auth"
	"saascore/billing"
	"saascore/config"
	"saascore/database"
	"saascore/handlers"
	"saascore/ledger"
	"saascore/metrics"
	"saascore/notify"
	"saascore/observability"
	"saascore/scheduler"

	tracer "github.com/dhawal-pandya/aeonis/packages/tracer-sdk/go"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	seedOnly := flag.Bool("seed", false, "Create the demo user, organization and invoice, then exit")
	reset := flag.Bool("reset", false, "Drop and recreate all tables before starting")
	runOnce := flag.Bool("run-once", false, "Run the billing cycle once and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := observability.NewLogger(!cfg.IsProduction())
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint, logger)
	if err != nil {
		logger.Fatal("failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	db, err := database.Open(cfg.Database, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	if *reset {
		if err := database.Reset(db); err != nil {
			logger.Fatal("database reset", zap.Error(err))
		}
		logger.Warn("database reset")
	} else if err := database.Migrate(db); err != nil {
		logger.Fatal("database migration", zap.Error(err))
	}

	store := ledger.New(db)
	guard := access.NewGuard(store, ledger.ErrNotFound, cfg.Billing.AdminEmails)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	sink, worker, closeSink := notificationSink(cfg, store, logger)
	defer closeSink()
	dispatcher := notify.NewDispatcher(sink, logger, m)

	engine := billing.NewEngine(store, guard, billing.ConfigFrom(cfg.Billing),
		billing.WithLogger(logger),
		billing.WithMetrics(m),
		billing.WithDispatcher(dispatcher),
	)

	if *seedOnly {
		err := seed(ctx, store, guard, engine, logger)
		dispatcher.Wait()
		if err != nil {
			logger.Fatal("seed failed", zap.Error(err))
		}
		return
	}

	sched, err := scheduler.New(cfg.Billing.Schedule, engine, logger)
	if err != nil {
		logger.Fatal("scheduler", zap.Error(err))
	}
	if *runOnce {
		err := sched.RunOnce(ctx)
		dispatcher.Wait()
		if err != nil {
			logger.Fatal("billing cycle failed", zap.Error(err))
		}
		return
	}

	if worker != nil {
		go worker.Run(ctx)
	}
	sched.Start()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	spans, shutdownAeonis := aeonisSpans(cfg.Telemetry, logger)
	defer shutdownAeonis()
	api := handlers.NewAPI(handlers.Deps{
		Engine:   engine,
		Store:    store,
		Guard:    guard,
		Tokens:   auth.NewTokenService(cfg.JWT.Secret, cfg.JWT.ExpireHours),
		Logger:   logger,
		Metrics:  m,
		Gatherer: reg,
		Spans:    spans,
	})
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      api.Router(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Warn("billing cycle interrupted", zap.Error(err))
	}
	dispatcher.Wait()
}

// notificationSink delivers events through Redis when it is configured and
// directly otherwise. The worker is nil without Redis.
func notificationSink(cfg *config.Config, store *ledger.Store, logger *zap.Logger) (notify.Sink, *notify.Worker, func()) {
	deliverer := notify.NewDeliverer(store, notify.LogMailer{Logger: logger}, cfg.Email.FromAddress, cfg.Email.ProductName, logger)
	logSink := notify.LogSink{Logger: logger}

	if cfg.Redis.Addr == "" {
		return notify.Fanout{logSink, notify.DirectSink{Deliverer: deliverer}}, nil, func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	queue := notify.NewRedisQueue(client, logger)
	logger.Info("notifications queued through redis", zap.String("addr", cfg.Redis.Addr))
	return notify.Fanout{logSink, queue}, notify.NewWorker(queue, deliverer, logger), func() {
		if err := client.Close(); err != nil {
			logger.Warn("redis close", zap.Error(err))
		}
	}
}

// aeonisSpans starts the Aeonis tracer when an API key is configured. Request
// and handler spans are then sent to it as well as to OpenTelemetry.
func aeonisSpans(cfg config.TelemetryConfig, logger *zap.Logger) (handlers.SpanStarter, func()) {
	if cfg.AeonisAPIKey == "" {
		return nil, func() {}
	}
	t := tracer.NewTracer(cfg.ServiceName, cfg.AeonisEndpoint, cfg.AeonisAPIKey, tracer.NewPIISanitizer())
	logger.Info("aeonis tracing enabled", zap.String("endpoint", cfg.AeonisEndpoint))
	start := func(ctx context.Context, name string) (context.Context, handlers.Span) {
		return t.StartSpan(ctx, name)
	}
	return start, func() { t.Shutdown() }
}
