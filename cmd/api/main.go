package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/intake-api/internal/config"
	"github.com/jwalitptl/intake-api/internal/email"
	"github.com/jwalitptl/intake-api/internal/handler"
	doctorHandler "github.com/jwalitptl/intake-api/internal/handler/doctor"
	intakeHandler "github.com/jwalitptl/intake-api/internal/handler/intake"
	learningHandler "github.com/jwalitptl/intake-api/internal/handler/learning"
	validationHandler "github.com/jwalitptl/intake-api/internal/handler/validation"
	"github.com/jwalitptl/intake-api/internal/repository"
	"github.com/jwalitptl/intake-api/internal/repository/memory"
	"github.com/jwalitptl/intake-api/internal/repository/postgres"
	redisstore "github.com/jwalitptl/intake-api/internal/repository/redis"
	"github.com/jwalitptl/intake-api/internal/router"
	"github.com/jwalitptl/intake-api/internal/service/encounter"
	"github.com/jwalitptl/intake-api/internal/service/intake"
	"github.com/jwalitptl/intake-api/internal/service/matching"
	"github.com/jwalitptl/intake-api/internal/service/notification"
	"github.com/jwalitptl/intake-api/internal/service/redflag"
	"github.com/jwalitptl/intake-api/internal/service/reflexion"
	"github.com/jwalitptl/intake-api/internal/service/specialty"
	"github.com/jwalitptl/intake-api/internal/service/triage"
	"github.com/jwalitptl/intake-api/internal/service/validation"
	"github.com/jwalitptl/intake-api/internal/worker"
	"github.com/jwalitptl/intake-api/pkg/circuitbreaker"
	"github.com/jwalitptl/intake-api/pkg/llm"
	"github.com/jwalitptl/intake-api/pkg/logger"
	"github.com/jwalitptl/intake-api/pkg/messaging"
	redisbroker "github.com/jwalitptl/intake-api/pkg/messaging/redis"
	"github.com/jwalitptl/intake-api/pkg/metrics"
	"github.com/jwalitptl/intake-api/pkg/validator"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg.ToLoggerConfig())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg, cfg.Metrics.Namespace)

	// Storage and event transport
	var (
		sessions repository.SessionStore
		learning repository.LearningStore
		broker   messaging.Broker
		checks   = map[string]handler.Check{}
	)
	switch cfg.Store.Backend {
	case config.BackendRedis:
		client, err := redisbroker.NewClient(ctx, cfg.Redis.ToBrokerConfig())
		if err != nil {
			log.Fatal(err, "failed to connect to Redis")
		}
		defer client.Close()

		sessions = redisstore.NewSessionStore(client, cfg.Store.ToSessionStoreConfig(), log.Zerolog())
		broker = redisbroker.NewRedisBroker(client, log.Zerolog())
		checks["redis"] = redisCheck(client)
	default:
		sessions = memory.NewSessionStore()
		broker = messaging.NewMemoryBroker(0)
	}
	defer broker.Close()

	switch cfg.Store.LearningBackend {
	case config.BackendPostgres:
		db, err := postgres.NewDB(ctx, cfg.ToPostgresConfig())
		if err != nil {
			log.Fatal(err, "failed to connect to database")
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Fatal(err, "failed to prepare database")
		}
		learning = postgres.NewLearningStore(db)
		checks["postgres"] = db.PingContext
	default:
		learning = memory.NewLearningStore()
	}

	publisher := messaging.NewPublisher(broker, cfg.Redis.Channel)

	gen, err := newGenerator(cfg, m, log)
	if err != nil {
		log.Fatal(err, "failed to configure text generation")
	}

	// Services
	var mailer email.Service = email.NewLogService(log)
	if cfg.EmailEnabled() {
		mailer = email.NewSMTPService(cfg.ToEmailConfig())
	}
	notifier := notification.NewService(cfg.Notification.ToNotificationConfig(), mailer, publisher, log)

	intakeSvc := intake.NewService(intake.Config{
		MaxTurns:     cfg.Intake.MaxTurns,
		ContextTurns: cfg.Intake.ContextTurns,
	}, intake.Deps{
		Store:     sessions,
		Detector:  redflag.NewDetector(),
		Scorer:    triage.NewScorer(gen, log, m),
		Generator: gen,
		Notifier:  notifier,
		Publisher: publisher,
		Metrics:   m,
		Logger:    log,
	})

	v := validator.New()
	matchingSvc := matching.NewService(matching.Config{MaxResults: cfg.Matching.MaxResults}, matching.Deps{
		Roster:     memory.NewRosterStore(),
		Classifier: specialty.NewClassifier(gen, cfg.LLM.ClassifierCache, log, m),
		Generator:  gen,
		Validator:  v,
		Publisher:  publisher,
		Metrics:    m,
		Logger:     log,
	})

	validationSvc := validation.NewService(validation.Config{Concurrency: cfg.Validation.Concurrency}, validation.Deps{
		Generator: gen,
		Metrics:   m,
		Logger:    log,
	})

	learner := reflexion.NewService(reflexion.Deps{
		Store:     learning,
		Generator: gen,
		Publisher: publisher,
		Metrics:   m,
		Logger:    log,
	})
	encounterSvc := encounter.NewService(learner, validationSvc, publisher, log)

	// Background workers
	cleanup := worker.NewSessionCleanupWorker(sessions, cfg.Store.ToCleanupConfig(), log, m)
	go cleanup.Start(ctx)

	consumer := worker.NewEventConsumer(broker, cfg.Redis.Channel, log, m)
	go func() {
		if err := consumer.Start(ctx); err != nil {
			log.Error(err, "event consumer stopped")
		}
	}()

	r := router.NewRouter(router.RouterConfig{
		Mode:             cfg.Server.Mode,
		RateLimitEnabled: cfg.RateLimit.Enabled,
		RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
		RateBurst:        cfg.RateLimit.Burst,
		CORSConfig:       cfg.CORS.ToMiddlewareConfig(),
		Security:         cfg.Server.ToSecurityConfig(),
		RequestTimeout:   cfg.Server.RequestTimeout,
		MetricsPath:      cfg.Metrics.Path,
		MetricsNamespace: cfg.Metrics.Namespace,
		Registerer:       reg,
		Logger:           log,
	},
		handler.NewHandler(reg, checks),
		intakeHandler.NewHandler(intakeSvc),
		doctorHandler.NewHandler(matchingSvc, v),
		validationHandler.NewHandler(validationSvc, encounterSvc),
		learningHandler.NewHandler(learner),
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("starting server", "addr", srv.Addr, "offline", cfg.Offline(), "store", cfg.Store.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err, "failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "server forced to shutdown")
	}
	notifier.Wait()

	log.Info("server exited properly")
}

// newGenerator returns the offline generator when no API key is set,
// otherwise the primary model behind retry, rate limiting, a circuit
// breaker and a fallback model.
func newGenerator(cfg *config.Config, m *metrics.Metrics, log *logger.Logger) (llm.TextGenerator, error) {
	if cfg.Offline() {
		log.Warn("no model API key configured, running on deterministic fallbacks")
		return llm.Offline{}, nil
	}

	primary, err := llm.NewGemini(cfg.ToGeminiConfig(cfg.LLM.Model), nil)
	if err != nil {
		return nil, err
	}

	var fallback llm.TextGenerator
	if cfg.LLM.FallbackModel != "" && cfg.LLM.FallbackModel != cfg.LLM.Model {
		fb, err := llm.NewGemini(cfg.ToGeminiConfig(cfg.LLM.FallbackModel), nil)
		if err != nil {
			return nil, err
		}
		fallback = fb
	}

	var limiter *rate.Limiter
	if cfg.LLM.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.LLM.RequestsPerMinute)/60), cfg.LLM.Burst)
	}

	breaker := circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
		Name:             "llm",
		Timeout:          cfg.LLM.BreakerTimeout,
		FailureThreshold: cfg.LLM.BreakerThreshold,
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, llm.ErrMalformedResponse)
		},
		OnStateChange: func(name, from, to string) {
			log.Warn("circuit breaker state changed", "breaker", name, "from", from, "to", to)
		},
	})

	return llm.NewResilient(primary, llm.Options{
		Retry:    cfg.LLM.ToRetryConfig(),
		Fallback: fallback,
		Limiter:  limiter,
		Breaker:  breaker,
		Metrics:  m,
		Logger:   log,
	}), nil
}

func redisCheck(client *goredis.Client) handler.Check {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
