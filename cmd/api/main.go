// Command api runs the channel sync engine: the HTTP surface (webhook
// receiver plus ops API), the outbox and webhook workers, the booking
// lifecycle job, and the scheduled price pushes.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mnamhq/channelsync/internal/channex"
	"github.com/mnamhq/channelsync/internal/config"
	"github.com/mnamhq/channelsync/internal/database"
	"github.com/mnamhq/channelsync/internal/handler"
	"github.com/mnamhq/channelsync/internal/metrics"
	"github.com/mnamhq/channelsync/internal/model"
	"github.com/mnamhq/channelsync/internal/pricing"
	"github.com/mnamhq/channelsync/internal/ratelimit"
	"github.com/mnamhq/channelsync/internal/repository"
	"github.com/mnamhq/channelsync/internal/scheduler"
	"github.com/mnamhq/channelsync/internal/service"
	"github.com/mnamhq/channelsync/internal/worker"
)

const (
	priceCacheTTL   = 15 * time.Minute
	shutdownTimeout = 30 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("load config")
	}
	logger := config.SetupLogger(cfg)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("api exited")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	db, err := database.Open(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := database.Migrate(db); err != nil {
		return err
	}
	logger.Info().
		Bool("skip_locked", database.SupportsSkipLocked(db)).
		Msg("database ready")

	repos := repository.New(db, logger)
	rates := ratelimit.NewStore(db, logger, time.Now)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	set := metrics.New(registry)
	registry.MustRegister(metrics.NewQueueCollector(repos, rates, logger))
	recorder := metrics.NewRequestObserver(set, repos.Audit)

	clients := service.ClientFactoryFunc(func(conn *model.Connection) service.ChannelClient {
		return channex.NewClient(channex.Options{
			BaseURL:      cfg.ChannexBaseURL,
			APIKey:       conn.APIKey,
			Provider:     conn.Provider,
			ConnectionID: conn.ID.String(),
			Timeout:      cfg.ChannexAPITimeout,
			Gate:         rates,
			Recorder:     recorder,
			Logger:       logger,
		})
	})

	var priceCache *redis.Client
	if cfg.RedisAddr != "" {
		priceCache = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer priceCache.Close()
	}
	engine := pricing.NewEngine(logger, time.Now, priceCache, priceCacheTTL)

	loc := cfg.Location()

	customers := service.NewCustomerService(repos.Customers, logger)
	bookings := service.NewBookingService(db, repos, customers, engine, loc, logger, time.Now)
	processor := service.NewProcessorService(db, repos, customers, logger, time.Now)
	syncSvc := service.NewSyncService(repos, engine, clients, loc, logger, time.Now)
	connections := service.NewConnectionService(repos, clients, logger, time.Now)
	unmatched := service.NewUnmatchedService(repos, processor, logger, time.Now)
	settings := service.NewSettingsService(repos, logger)
	health := service.NewHealthService(repos, rates, logger, time.Now)
	receiver := service.NewWebhookReceiver(repos.WebhookLogs, repos.Connections, cfg.WebhookSecret, logger, time.Now)
	auth := service.NewAuthService(repos.Tokens, cfg.JWTSecret, cfg.ServiceAPIKey,
		cfg.AccessTokenTTL, cfg.RefreshTokenTTL, logger, time.Now)

	router := handler.NewRouter(handler.RouterConfig{
		Auth:        handler.NewAuthHandler(auth),
		Bookings:    handler.NewBookingHandler(bookings),
		Connections: handler.NewConnectionHandler(connections),
		Unmatched:   handler.NewUnmatchedHandler(unmatched),
		Settings:    handler.NewSettingsHandler(settings),
		Admin:       handler.NewAdminHandler(repos, time.Now),
		Health:      handler.NewHealthHandler(health),
		Webhook:     handler.NewWebhookHandler(receiver, handler.DefaultWebhookTokenHeader, cfg.WebhookMaxBodyBytes),
		Verifier:    auth,
		Logger:      logger,
		Metrics:     registry,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	worker.RecoverStale(ctx, repos, logger)

	runners := []worker.Runner{
		worker.NewWebhookWorker(processor, set, logger, cfg.WebhookPollInterval, cfg.WebhookBatchSize),
		worker.NewLifecycleWorker(bookings, settings, set, logger, cfg.LifecycleInterval, cfg.NoShowCancelEnabled),
	}
	if cfg.ChannelEnabled {
		runners = append(runners,
			worker.NewOutboxWorker(repos, syncSvc, set, logger, cfg.OutboxPollInterval, cfg.OutboxBatchSize, time.Now))
	} else {
		logger.Warn().Msg("channel sync disabled; outbox worker not started")
	}
	manager := worker.NewManager(runners...)
	manager.Start(ctx)

	var sched *scheduler.Scheduler
	if cfg.ChannelEnabled {
		sched = scheduler.New(repos, auth, set, loc, logger, time.Now)
		if err := sched.Start(); err != nil {
			stop()
			manager.Wait()
			return err
		}
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-serveErr:
		stop()
		manager.Wait()
		if sched != nil {
			sched.Stop()
		}
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("http shutdown")
	}
	if sched != nil {
		sched.Stop()
	}
	manager.Wait()
	logger.Info().Msg("shutdown complete")
	return nil
}
