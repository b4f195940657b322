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

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/LeventeLantos/notification-dispatcher/internal/api"
	"github.com/LeventeLantos/notification-dispatcher/internal/cache"
	"github.com/LeventeLantos/notification-dispatcher/internal/client"
	"github.com/LeventeLantos/notification-dispatcher/internal/config"
	"github.com/LeventeLantos/notification-dispatcher/internal/dispatcher"
	"github.com/LeventeLantos/notification-dispatcher/internal/metrics"
	"github.com/LeventeLantos/notification-dispatcher/internal/queue"
	"github.com/LeventeLantos/notification-dispatcher/internal/ratelimit"
	"github.com/LeventeLantos/notification-dispatcher/internal/repo"
	"github.com/LeventeLantos/notification-dispatcher/internal/service"
	"github.com/LeventeLantos/notification-dispatcher/internal/stats"
)

const storeConnectTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dispatcher and its HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}

	cfg, err := config.LoadAll()
	if err != nil {
		return err
	}
	setupLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	q := queue.New(cfg.Dispatcher.QueueMaxDepth)
	lim, err := ratelimit.NewFixedWindow(cfg.RateLimit.Limit, cfg.RateLimit.Window)
	if err != nil {
		return err
	}
	st := stats.New(cfg.Stats.RecentSize)
	m := metrics.New(q.Len)

	gw := client.NewBreakerGateway(newWebhookClient(cfg.Gateway), client.BreakerSettings{
		FailureThreshold: uint32(cfg.Breaker.FailureThreshold),
		Timeout:          cfg.Breaker.OpenTimeout,
	})

	d, err := dispatcher.New(q, lim, gw, st, dispatcher.Config{
		MaxAttempts: cfg.Dispatcher.MaxAttempts,
		BackoffBase: cfg.Dispatcher.BackoffBase,
		BackoffMax:  cfg.Dispatcher.BackoffMax,
		SendTimeout: cfg.Gateway.Timeout,
	})
	if err != nil {
		return err
	}
	d.WithObserver(m)

	history, outcomes, closeStores, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStores()

	sink := service.NewHistory(history, outcomes)
	if sink.Enabled() {
		d.WithHooks(sink.OnSent, sink.OnFailed)
	}

	bulk := service.NewBulk(d, service.BulkConfig{
		Wait:          cfg.Bulk.Wait,
		ContentMax:    cfg.Dispatcher.ContentMax,
		MaxRecipients: cfg.Bulk.MaxRecipients,
		MaxBatches:    cfg.Bulk.MaxBatches,
		BatchTTL:      cfg.Bulk.BatchTTL,
	})
	admin, err := service.NewAdmin(service.AdminDeps{
		Dispatcher: d,
		Queue:      q,
		Limiter:    lim,
		Stats:      st,
		Gateway:    gw,
		Bulk:       bulk,
		ContentMax: cfg.Dispatcher.ContentMax,
	})
	if err != nil {
		return err
	}

	opts := []api.Option{api.WithInboundObserver(m)}
	if history != nil {
		opts = append(opts, api.WithRepo(history))
	}
	if outcomes != nil {
		opts = append(opts, api.WithCache(outcomes))
	}
	inbound := rate.NewLimiter(rate.Limit(cfg.Inbound.RatePerSecond), cfg.Inbound.Burst)
	handler := api.Router(api.NewHandler(admin, opts...), inbound, m.Handler())

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           loggingMiddleware(handler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if cfg.Dispatcher.AutoStart {
		d.Start()
	}
	defer d.Stop()

	slog.Info("notification dispatcher starting",
		"addr", cfg.Server.Address,
		"rate_limit", cfg.RateLimit.Limit,
		"rate_window", cfg.RateLimit.Window.String(),
		"queue_max_depth", cfg.Dispatcher.QueueMaxDepth,
		"postgres", cfg.Database.Enabled,
		"redis", cfg.Redis.Enabled,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func newWebhookClient(cfg config.GatewayConfig) *client.WebhookClient {
	opts := []client.Option{client.WithTimeout(cfg.Timeout)}
	if cfg.Token != "" {
		opts = append(opts, client.WithToken(cfg.Token))
	}
	if cfg.WebhookEndpoint != "" {
		opts = append(opts, client.WithWebhookEndpoint(cfg.WebhookEndpoint))
	}
	return client.NewWebhookClient(cfg.URL, opts...)
}

// openStores connects the optional postgres history and redis outcome cache.
// The returned close func is always safe to call.
func openStores(ctx context.Context, cfg *config.Config) (repo.MessageRepository, cache.OutcomeCache, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var history repo.MessageRepository
	if cfg.Database.Enabled {
		db, err := sql.Open("pgx", cfg.Database.PostgresURL)
		if err != nil {
			return nil, nil, closeAll, fmt.Errorf("open postgres: %w", err)
		}
		closers = append(closers, func() { _ = db.Close() })

		pingCtx, cancel := context.WithTimeout(ctx, storeConnectTimeout)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			closeAll()
			return nil, nil, func() {}, fmt.Errorf("ping postgres: %w", err)
		}

		pr := repo.NewPostgresMessageRepo(db)
		if err := pr.EnsureSchema(pingCtx); err != nil {
			closeAll()
			return nil, nil, func() {}, fmt.Errorf("postgres schema: %w", err)
		}
		history = pr
	}

	var outcomes cache.OutcomeCache
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func() { _ = rdb.Close() })

		pingCtx, cancel := context.WithTimeout(ctx, storeConnectTimeout)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			closeAll()
			return nil, nil, func() {}, fmt.Errorf("ping redis: %w", err)
		}
		outcomes = cache.NewRedisCache(rdb, cfg.Redis.TTL)
	}

	return history, outcomes, closeAll, nil
}

func setupLogger(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{Level: cfg.Level}

	var h slog.Handler
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(h))
}
