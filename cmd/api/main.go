package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"soothe/internal/api"
	"soothe/internal/assignment"
	"soothe/internal/config"
	"soothe/internal/database"
	"soothe/internal/domain"
	"soothe/internal/events"
	"soothe/internal/google"
	"soothe/internal/logging"
	"soothe/internal/metrics"
	"soothe/internal/models"
	"soothe/internal/notify"
	"soothe/internal/repository"
	"soothe/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	roster, err := loadRoster(cfg, &logger)
	if err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	snapshots := initSnapshots(cfg, redisClient, &logger)
	sheetsService := initGoogleSheets(cfg, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	retry := worker.RetryPolicy{
		MaxRetries:    3,
		InitialDelay:  2 * time.Second,
		MaxDelay:      time.Minute,
		BackoffFactor: 2,
	}

	mailer := worker.NewMailer(initEmailSender(cfg, &logger), retry, &logger)
	go mailer.Start(ctx)

	var syncWorker domain.SyncWorker
	if sheetsService != nil {
		sheetsWorker := worker.NewSheetsWorker(db, sheetsService, redisClient, retry, &logger)
		go sheetsWorker.Start(ctx)
		syncWorker = sheetsWorker
	}

	admin := initTelegram(cfg, &logger)
	dispatcher := notify.NewDispatcher(mailer, admin, &logger)

	bus := events.NewEventBus()
	subscribeEvents(bus, admin, &logger)

	svc := assignment.NewService(db, roster, dispatcher, snapshots, bus, syncWorker, assignment.Config{
		ResponseWindow: time.Duration(cfg.Assignment.ResponseWindowSec) * time.Second,
		RadiusKm:       cfg.Assignment.RadiusKm,
		PublicBaseURL:  cfg.Assignment.PublicBaseURL,
	}, &logger)
	defer svc.Stop()

	if err := svc.RecoverPending(ctx); err != nil {
		logger.Warn().Err(err).Msg("pending recovery failed")
	}

	httpServer := api.NewHTTPServer(cfg.API, svc, snapshots, &logger)

	startMetrics(ctx, cfg, &logger)

	return startServer(ctx, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func loadRoster(cfg *config.Config, logger *zerolog.Logger) ([]models.Therapist, error) {
	rosterPath := cfg.Therapists.Path
	if env := os.Getenv("THERAPISTS_PATH"); env != "" {
		rosterPath = env
	}

	data, err := os.ReadFile(rosterPath)
	if err != nil {
		logger.Error().Err(err).Str("roster_path", rosterPath).Msg("read roster")
		return nil, err
	}

	var rosterConfig struct {
		Therapists []models.Therapist `yaml:"therapists"`
	}
	if err := yaml.Unmarshal(data, &rosterConfig); err != nil {
		logger.Error().Err(err).Str("roster_path", rosterPath).Msg("parse roster")
		return nil, err
	}

	logger.Info().Int("therapists", len(rosterConfig.Therapists)).Msg("roster loaded")
	return rosterConfig.Therapists, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if !cfg.Redis.Enabled || cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)

	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initSnapshots picks the snapshot cache: Redis with an in-memory fallback
// when Redis is up, plain in-memory otherwise.
func initSnapshots(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) domain.SnapshotRepository {
	ttl := time.Duration(cfg.Assignment.SnapshotTTLSec) * time.Second
	memory := repository.NewMemorySnapshotRepository(ttl)

	if redisClient == nil {
		return memory
	}

	primary := repository.NewRedisSnapshotRepository(redisClient, ttl)
	return repository.NewFailoverSnapshotRepository(primary, memory, logger)
}

func initGoogleSheets(cfg *config.Config, logger *zerolog.Logger) *google.SheetsService {
	if cfg.Google.GoogleCredentialsFile == "" || cfg.Google.BookingSpreadSheetID == "" {
		return nil
	}

	sheetsService, err := google.NewSheetsService(
		cfg.Google.GoogleCredentialsFile,
		cfg.Google.BookingSpreadSheetID,
	)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sheetsService.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets unreachable, continuing without sheets")
		return nil
	}

	logger.Info().Msg("google sheets connected")
	return sheetsService
}

func initEmailSender(cfg *config.Config, logger *zerolog.Logger) notify.EmailSender {
	if sender := notify.NewSendGridSender(cfg.Email.SendGridAPIKey, cfg.Email.FromAddress, cfg.Email.FromName, logger); sender != nil {
		return sender
	}
	logger.Warn().Msg("sendgrid api key missing, emails will be logged only")
	return notify.NewStubEmailSender(logger)
}

func initTelegram(cfg *config.Config, logger *zerolog.Logger) notify.AdminNotifier {
	if !cfg.Telegram.Enabled {
		return nil
	}

	notifier, err := notify.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.Debug, cfg.Telegram.Admins, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, continuing without admin notices")
		return nil
	}

	logger.Info().Int("admins", len(cfg.Telegram.Admins)).Msg("telegram notifier ready")
	return notifier
}

// subscribeEvents attaches the operational consumers: every lifecycle event is
// logged, delivery failures additionally go to the admin channel.
func subscribeEvents(bus *events.EventBus, admin notify.AdminNotifier, logger *zerolog.Logger) {
	lifecycle := []string{
		events.EventBookingCreated,
		events.EventRequestDispatched,
		events.EventBookingConfirmed,
		events.EventBookingDeclined,
		events.EventBookingExpired,
		events.EventBookingCancelled,
	}
	for _, eventType := range lifecycle {
		bus.Subscribe(eventType, func(event *events.Event) error {
			logger.Info().Str("event", event.Type).RawJSON("payload", event.Payload).Msg("booking event")
			return nil
		})
	}

	bus.Subscribe(events.EventDispatchFailed, func(event *events.Event) error {
		logger.Error().RawJSON("payload", event.Payload).Msg("dispatch failed")
		if admin != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			admin.Notify(ctx, fmt.Sprintf("dispatch failed: %s", event.Payload))
		}
		return nil
	})
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServer(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
