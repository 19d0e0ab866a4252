package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/triage-portal/internal/api/http"
	"github.com/spec-kit/triage-portal/internal/api/http/handlers"
	"github.com/spec-kit/triage-portal/internal/auth"
	"github.com/spec-kit/triage-portal/internal/classifier"
	"github.com/spec-kit/triage-portal/internal/config"
	"github.com/spec-kit/triage-portal/internal/events"
	"github.com/spec-kit/triage-portal/internal/observability"
	"github.com/spec-kit/triage-portal/internal/persistence"
	"github.com/spec-kit/triage-portal/internal/service"
	"github.com/spec-kit/triage-portal/internal/worker"
)

const eventQueueSize = 512

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (default)",
	RunE:  runServe,
}

type languageModel interface {
	classifier.Classifier
	classifier.Responder
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}
	if !pg.Enabled() {
		logger.Warn("using in-memory store; data is lost on restart")
	}
	store := pg.Store()

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	dispatcher := events.NewInMemoryDispatcher()
	sinks := eventSinks(cfg, redis, logger)
	notifier := service.NewNotificationService(sinks, logger, cfg.Notification)
	notifications := worker.StartNotificationWorker(dispatcher, notifier, logger, eventQueueSize)

	var model languageModel = classifier.Unavailable{}
	if cfg.Classifier.Enabled() {
		model = classifier.NewOpenAIClassifier(cfg.Classifier, logger)
	} else {
		logger.Warn("OPENAI_API_KEY not set; every request goes to manual triage")
	}

	metrics := observability.NewMetrics()
	tokens := service.NewTokenAssignmentService(service.TokenAssignmentDependencies{
		UserRepo:       store.Users(),
		Dispatcher:     dispatcher,
		Logger:         logger,
		CacheTTL:       cfg.Triage.RosterCacheTTL,
		PresenceWindow: cfg.Triage.PresenceWindow,
	})
	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		UserRepo: store.Users(),
		Roster:   tokens,
		Logger:   logger,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		Store:              store,
		Classifier:         model,
		Automation:         service.NewAutomationService(),
		Tokens:             tokens,
		Dispatcher:         dispatcher,
		Outcomes:           metrics,
		Logger:             logger,
		EscalationTokenTTL: cfg.Triage.EscalationTokenTTL,
	})

	app := fiber.New(fiber.Config{AppName: cfg.App.Name, DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, store, redis),
		Auth:           handlers.NewAuthHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Admin:          handlers.NewAdminHandler(ticketService, tokens, authService, metrics),
		LLM:            handlers.NewLLMHandler(model, model),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), store.Users()),
	})

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	drainCtx, drainCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer drainCancel()
	notifications.Stop(drainCtx)
	for _, sink := range sinks {
		if closer, ok := sink.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
	}
	return nil
}

// eventSinks returns only the configured sinks; the constructors return nil pointers otherwise.
func eventSinks(cfg *config.Config, redis *persistence.Redis, logger *zap.Logger) []events.Sink {
	var sinks []events.Sink
	if kafka := events.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic); kafka != nil {
		sinks = append(sinks, kafka)
	}
	if redis.Client != nil {
		if sink := events.NewRedisSink(redis, cfg.Redis.EventsChannel); sink != nil {
			sinks = append(sinks, sink)
		}
	}
	for _, sink := range sinks {
		logger.Info("event sink enabled", zap.String("sink", sink.Name()))
	}
	return sinks
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
