package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/knightclub/tournament-app/internal/api"
	"github.com/knightclub/tournament-app/internal/config"
	"github.com/knightclub/tournament-app/pkg/auth"
	"github.com/knightclub/tournament-app/pkg/cache"
	"github.com/knightclub/tournament-app/pkg/calendar"
	"github.com/knightclub/tournament-app/pkg/client"
	"github.com/knightclub/tournament-app/pkg/logging"
	"github.com/knightclub/tournament-app/pkg/metrics"
	"github.com/knightclub/tournament-app/pkg/ratelimit"
	"github.com/knightclub/tournament-app/pkg/store"
	"github.com/knightclub/tournament-app/pkg/telegram"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(logging.Config{
		Level:   logging.LogLevel(cfg.Log.Level),
		Pretty:  cfg.Log.Pretty,
		Service: "tournament-app",
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

// app is the assembled server with the resources it must release.
type app struct {
	handler http.Handler
	bot     *telegram.Bot
	closers []io.Closer
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to release resource")
		}
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.bot != nil && cfg.Telegram.WebhookURL != "" {
		if err := a.bot.SetWebhook(ctx, cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret); err != nil {
			// The API still serves the Mini App without bot commands.
			log.Error().Err(err).Msg("Failed to register Telegram webhook")
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Starting tournament server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// buildApp wires every component from cfg. Optional dependencies (database,
// Redis, Telegram) are skipped when unconfigured.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	provider, err := newProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}

	calClient, err := client.New(provider, client.Config{
		Cache: cache.Config{
			TTL:            cfg.Calendar.CacheTTL,
			StaleRetention: cfg.Calendar.StaleRetention,
			MaxEntries:     cfg.Calendar.MaxEntries,
		},
		BucketWidth:     cfg.Calendar.BucketWidth,
		UpstreamTimeout: cfg.Calendar.UpstreamTimeout,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("create calendar client: %w", err)
	}

	registry := metrics.NewRegistry()
	registry.MustRegister(calClient.Metrics())

	deps := api.Deps{
		Calendar: calClient,
		Metrics:  registry.Handler(),
		Checks:   map[string]api.Pinger{},
	}

	var users telegram.UserStore
	if cfg.DatabaseURL != "" {
		st, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, st)
		deps.Store = st
		users = st
		log.Info().Msg("Connected to database")
	} else {
		log.Warn().Msg("DATABASE_URL not set, tournament routes disabled")
	}

	if cfg.RedisURL != "" {
		redisClient, err := newRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, redisClient)
		limiter := ratelimit.NewRedisLimiter(redisClient, cfg.RateLimit.PerMinute, time.Minute, logging.NewLogger("ratelimit"))
		if err := limiter.Ping(ctx); err != nil {
			// Allow fails open, so startup proceeds with a degraded limiter.
			log.Warn().Err(err).Msg("Redis unreachable at startup")
		}
		deps.Limiter = limiter
		deps.Checks["redis"] = limiter
	} else {
		deps.Limiter = ratelimit.NewLocalLimiter(cfg.RateLimit.PerMinute, time.Minute)
	}

	if cfg.Telegram.BotToken != "" {
		deps.Auth = auth.NewAuthenticator(cfg.Telegram.BotToken, cfg.Telegram.InitDataMaxAge, cfg.Telegram.AdminIDs)

		bot, err := telegram.NewBot(telegram.BotConfig{Token: cfg.Telegram.BotToken})
		if err != nil {
			return nil, err
		}
		a.bot = bot
		deps.Webhook = telegram.NewWebhookHandler(bot, users, telegram.WebhookConfig{
			Secret:    cfg.Telegram.WebhookSecret,
			WebAppURL: cfg.Telegram.WebAppURL,
		})
	} else {
		log.Warn().Msg("TELEGRAM_BOT_TOKEN not set, admin routes and bot disabled")
	}

	a.handler = api.New(deps).Router()
	ok = true
	return a, nil
}

// newProvider picks the calendar source: one or more Google calendars, or
// the built-in sample schedule when none are configured.
func newProvider(ctx context.Context, cfg *config.Config) (calendar.Provider, error) {
	if len(cfg.Calendar.IDs) == 0 {
		log.Warn().Msg("CALENDAR_IDS not set, serving sample events")
		return calendar.NewStaticProvider(calendar.SampleEvents(time.Now())), nil
	}

	creds, err := cfg.GoogleCredentialsJSON()
	if err != nil {
		return nil, err
	}

	providers := make([]calendar.Provider, 0, len(cfg.Calendar.IDs))
	for _, id := range cfg.Calendar.IDs {
		p, err := calendar.NewGoogleProvider(ctx, calendar.GoogleConfig{
			CalendarID:      id,
			CredentialsJSON: creds,
			APIKey:          cfg.Calendar.GoogleAPIKey,
			Location:        cfg.Location(),
		})
		if err != nil {
			return nil, fmt.Errorf("calendar %s: %w", id, err)
		}
		providers = append(providers, p)
	}

	if len(providers) == 1 {
		return providers[0], nil
	}
	multiCfg := calendar.DefaultMultiConfig()
	multiCfg.Timeout = cfg.Calendar.UpstreamTimeout
	return calendar.NewMultiProvider(multiCfg, providers...), nil
}

// newRedisClient accepts a redis:// URL or a bare host:port.
func newRedisClient(redisURL string) (*redis.Client, error) {
	if !strings.Contains(redisURL, "://") {
		return redis.NewClient(&redis.Options{Addr: redisURL}), nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	return redis.NewClient(opts), nil
}
