package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	jwttoken "dictkeys/internal/jwt_token"
	"dictkeys/internal/key/callback"
	"dictkeys/internal/key/events"
	"dictkeys/internal/key/gateway"
	"dictkeys/internal/key/handler"
	keymetrics "dictkeys/internal/key/metrics"
	"dictkeys/internal/key/service"
	"dictkeys/internal/key/store/claim"
	"dictkeys/internal/key/store/key"
	"dictkeys/internal/key/store/verification"
	"dictkeys/internal/key/sweeper"
	"dictkeys/internal/platform/config"
	"dictkeys/internal/platform/httpserver"
	"dictkeys/internal/platform/kafka"
	"dictkeys/internal/platform/lock"
	"dictkeys/internal/platform/logger"
	"dictkeys/internal/platform/metrics"
	"dictkeys/internal/platform/postgres"
	"dictkeys/internal/platform/redis"
	"dictkeys/migrations"
	"dictkeys/pkg/platform/audit"
	auditpublisher "dictkeys/pkg/platform/audit/publisher"
	auditmemory "dictkeys/pkg/platform/audit/store/memory"
	auditpostgres "dictkeys/pkg/platform/audit/store/postgres"
	"dictkeys/pkg/platform/circuit"
	"dictkeys/pkg/platform/httputil"
	"dictkeys/pkg/platform/middleware/request"
	"dictkeys/pkg/platform/middleware/requesttime"
	txcontext "dictkeys/pkg/platform/tx"
)

// main loads configuration and runs every component until SIGINT or
// SIGTERM. Business logic lives in internal/key.
func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("dictkeys stopped", "error", err)
		os.Exit(1)
	}
}

// storage is the set of persistence adapters for one backend.
type storage struct {
	keys          keyStore
	claims        service.ClaimStore
	verifications service.VerificationStore
	tx            txcontext.Runner
	outbox        outbox
	audit         audit.Store
	ping          func(context.Context) error
	close         func()
}

// keyStore is satisfied by both key store implementations.
type keyStore interface {
	service.KeyStore
	sweeper.KeyLister
}

type outbox interface {
	events.Notifier
	events.Outbox
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	keyMetrics := keymetrics.New(reg)
	httpMetrics := metrics.New(reg)

	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.close()

	locker, closeLocker, err := openLocker(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeLocker()

	auditPublisher := auditpublisher.NewPublisher(store.audit,
		auditpublisher.WithAsyncBuffer(1024),
		auditpublisher.WithLogger(log),
	)
	defer auditPublisher.Close()

	breaker := circuit.New("directory",
		circuit.WithFailureThreshold(cfg.Directory.FailureThreshold),
		circuit.WithSuccessThreshold(cfg.Directory.SuccessThreshold),
		circuit.WithCooldown(cfg.Directory.Cooldown),
	)
	directory := gateway.NewHTTPClient(cfg.Directory.BaseURL, cfg.Directory.ParticipantISPB,
		gateway.WithTimeout(cfg.Directory.Timeout),
		gateway.WithBreaker(breaker),
		gateway.WithLogger(log),
		gateway.WithObserver(func(call string, elapsed time.Duration, err error) {
			category := ""
			if err != nil {
				category = string(gateway.CategoryOf(err))
			}
			keyMetrics.ObserveGatewayCall(call, elapsed, category)
		}),
	)

	svc, err := service.New(store.keys, store.claims, store.verifications, store.tx, directory, store.outbox,
		service.WithLogger(log),
		service.WithAuditPublisher(auditPublisher),
		service.WithMetrics(keyMetrics),
		service.WithCodeSender(service.LogCodeSender{Logger: log}),
		service.WithMaxAttempts(cfg.Verification.MaxAttempts),
		service.WithCodeTTL(cfg.Verification.CodeTTL),
		service.WithParticipant(cfg.Directory.ParticipantISPB),
	)
	if err != nil {
		return fmt.Errorf("build key service: %w", err)
	}

	jwt := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience,
		jwttoken.WithLeeway(cfg.Server.JWTLeeway),
	)
	r := chi.NewRouter()
	r.Use(request.Recovery(log))
	r.Use(request.RequestID)
	r.Use(request.Logger(log))
	r.Use(requesttime.Middleware)
	r.Use(httpMetrics.Middleware)
	r.Handle("/metrics", metrics.Handler(reg))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := store.ping(r.Context()); err != nil {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	handler.New(svc, jwt, cfg.Server.CallbackToken, log, keyMetrics).Register(r)
	if cfg.Server.CallbackToken == "" {
		log.Warn("DIRECTORY_CALLBACK_TOKEN is empty, HTTP callbacks are disabled")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.New(cfg.Server.Addr, r).Run(gctx, log)
	})

	if cfg.Sweeper.Enabled {
		sweep := sweeper.New(store.keys, svc, locker,
			sweeper.WithLogger(log),
			sweeper.WithMetrics(keyMetrics),
			sweeper.WithLease(cfg.Sweeper.LockLease),
			sweeper.WithItemTimeout(cfg.Sweeper.ItemTimeout),
			sweeper.WithBatchSize(cfg.Sweeper.BatchSize),
		)
		jobs := sweeper.Jobs(cfg.Sweeper.RegistrationTimeout, cfg.Sweeper.ClaimTimeout,
			cfg.Sweeper.PortabilityRequestTimeout, cfg.Sweeper.PortabilityAutoConfirm)
		g.Go(func() error {
			return ignoreCanceled(sweep.Run(gctx, jobs, cfg.Sweeper.Interval))
		})
	}

	if cfg.Kafka.Enabled() {
		if err := startKafka(gctx, g, cfg, log, store, svc, keyMetrics); err != nil {
			return err
		}
	} else {
		log.Warn("KAFKA_BROKERS is empty, outbox relay and callback consumer are disabled")
	}

	return g.Wait()
}

func startKafka(ctx context.Context, g *errgroup.Group, cfg config.Config, log *slog.Logger, store *storage, svc *service.Service, m *keymetrics.Metrics) error {
	producer, err := kafka.NewProducer(cfg.Kafka.Brokers)
	if err != nil {
		return fmt.Errorf("create kafka producer: %w", err)
	}
	if err := kafka.EnsureTopics(ctx, producer.Client(), cfg.Kafka.Partitions, cfg.Kafka.EventsTopic, cfg.Kafka.CallbacksTopic); err != nil {
		producer.Close()
		return fmt.Errorf("ensure kafka topics: %w", err)
	}
	consumer, err := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, []string{cfg.Kafka.CallbacksTopic}, log)
	if err != nil {
		producer.Close()
		return fmt.Errorf("create kafka consumer: %w", err)
	}

	relay := events.NewRelay(store.outbox, store.tx, producer, cfg.Kafka.EventsTopic,
		events.WithRelayInterval(cfg.Kafka.RelayInterval),
		events.WithRelayBatchSize(cfg.Kafka.RelayBatchSize),
		events.WithRelayLogger(log),
	)
	callbacks := callback.NewHandler(svc, log, m)

	g.Go(func() error {
		defer producer.Close()
		return ignoreCanceled(relay.Run(ctx))
	})
	g.Go(func() error {
		defer consumer.Close()
		return consumer.Run(ctx, callbacks.Handle)
	})
	return nil
}

func openStorage(ctx context.Context, cfg config.Config, log *slog.Logger) (*storage, error) {
	if cfg.Server.Storage == config.StorageMemory {
		log.Warn("using in-memory storage, state is lost on restart")
		return &storage{
			keys:          key.NewInMemory(),
			claims:        claim.NewInMemory(),
			verifications: verification.NewInMemory(),
			tx:            txcontext.NewMemoryRunner(),
			outbox:        events.NewMemoryOutbox(),
			audit:         auditmemory.NewInMemoryStore(),
			ping:          func(context.Context) error { return nil },
			close:         func() {},
		}, nil
	}

	db, err := postgres.Connect(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := migrations.Apply(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return &storage{
		keys:          key.NewPostgres(db),
		claims:        claim.NewPostgres(db),
		verifications: verification.NewPostgres(db),
		tx:            txcontext.NewPostgresRunner(db, cfg.Postgres.TxTimeout),
		outbox:        events.NewPostgresOutbox(db),
		audit:         auditpostgres.New(db),
		ping:          db.PingContext,
		close:         func() { closeDB(db, log) },
	}, nil
}

func closeDB(db *sql.DB, log *slog.Logger) {
	if err := db.Close(); err != nil {
		log.Warn("failed to close postgres", "error", err)
	}
}

// openLocker uses redis when configured. Without redis the sweep lock only
// excludes sweeps inside this process.
func openLocker(ctx context.Context, cfg config.Config, log *slog.Logger) (lock.Locker, func(), error) {
	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	if client == nil {
		log.Warn("REDIS_URL is empty, sweep lock is process-local")
		return lock.NewMemoryLocker(), func() {}, nil
	}
	return client.Locker(), func() { _ = client.Close() }, nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
