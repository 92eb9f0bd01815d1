package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/pulsekeeper/pulsekeeper/internal/api"
	"github.com/pulsekeeper/pulsekeeper/internal/budget"
	"github.com/pulsekeeper/pulsekeeper/internal/clock"
	"github.com/pulsekeeper/pulsekeeper/internal/config"
	"github.com/pulsekeeper/pulsekeeper/internal/httpserver"
	"github.com/pulsekeeper/pulsekeeper/internal/llm"
	"github.com/pulsekeeper/pulsekeeper/internal/notify"
	"github.com/pulsekeeper/pulsekeeper/internal/orchestrator"
	"github.com/pulsekeeper/pulsekeeper/internal/platform"
	"github.com/pulsekeeper/pulsekeeper/internal/pulse"
	"github.com/pulsekeeper/pulsekeeper/internal/rules"
	"github.com/pulsekeeper/pulsekeeper/internal/store"
	"github.com/pulsekeeper/pulsekeeper/internal/telemetry"
	"github.com/pulsekeeper/pulsekeeper/internal/usage"
)

// Run is the main application entry point. It reads config, connects to
// infrastructure, and starts the appropriate mode (api or worker).
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting pulsekeeper", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := telemetry.NewMetricsRegistry()

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg)
	case "worker":
		return runWorker(ctx, cfg, logger, db, rdb)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	srv := httpserver.NewServer(cfg, logger, db, rdb, metricsReg)

	repo := pulse.NewRepository(db)
	streamProducer := store.NewStream(rdb, cfg.StreamName, cfg.StreamGroup, "api")

	apiHandler := api.NewHandler(repo, streamProducer, logger)
	srv.APIRouter.Mount("/", apiHandler.Routes())

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client) error {
	logger.Info("worker started")

	repo := pulse.NewRepository(db)
	stream := store.NewStream(rdb, cfg.StreamName, cfg.StreamGroup, consumerID())

	ruleEnricher, err := rules.NewEnricher()
	if err != nil {
		return fmt.Errorf("loading rule dictionaries: %w", err)
	}

	var modelCaller llm.ModelCaller = llm.NoopCaller{}
	if cfg.AIEnabled {
		modelCaller = llm.NewBedrockCaller(cfg.AWSRegion, cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, cfg.AWSSessionToken, cfg.BedrockEndpoint)
	}
	llmEnricher := llm.NewEnricher(modelCaller, logger)

	var notifier budget.Notifier = budget.NoopNotifier{}
	slackNotifier := notify.NewSlack(cfg.SlackBotToken, cfg.SlackAlertChannel, logger)
	if slackNotifier.IsEnabled() {
		notifier = slackNotifier
		logger.Info("slack budget-exhaustion notifications enabled", "channel", cfg.SlackAlertChannel)
	}

	budgetCtrl := budget.New(repo, clock.System{}, notifier, logger, cfg.AIEnabled, float64(cfg.AIMaxCostPerPulseCents))

	usageWriter := usage.NewWriter(repo, logger)
	usageWriter.Start(ctx)
	defer usageWriter.Close()

	engine := orchestrator.NewEngine(
		stream, repo, budgetCtrl, ruleEnricher, llmEnricher, modelCaller, usageWriter,
		clock.System{}, clock.UUIDGen{}, logger, cfg.AIBedrockModelID,
	)
	return engine.Run(ctx)
}

func consumerID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "worker"
	}
	return fmt.Sprintf("%s:%d", host, os.Getpid())
}
