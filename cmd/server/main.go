// The server binary serves the booking API: cached reads, rate-limited
// mutations, and enqueueing of notification jobs. Job execution lives in the
// worker binary.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	retry "github.com/sethvargo/go-retry"

	"github.com/clinio/clinio/booking"
	"github.com/clinio/clinio/cache"
	"github.com/clinio/clinio/config"
	"github.com/clinio/clinio/db/sql/postgres"
	"github.com/clinio/clinio/httpx"
	"github.com/clinio/clinio/internal/bootstrap"
	"github.com/clinio/clinio/jobqueue"
	"github.com/clinio/clinio/kv"
	kvredis "github.com/clinio/clinio/kv/redis"
	"github.com/clinio/clinio/ratelimit"
	"github.com/clinio/clinio/stats"
)

func main() {
	if err := run(); err != nil && err != context.Canceled {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := bootstrap.InitLogger(cfg.AppEnv, cfg.LogLevel)
	logger.Info("starting server", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := stats.NewCollector()
	collector.StartDailyReset(ctx)

	store := kvredis.NewStore(kvredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, kvredis.WithStats(collector))
	defer store.Close()

	if err := waitForStore(ctx, store); err != nil {
		return fmt.Errorf("server: store unreachable: %w", err)
	}

	db, err := postgres.Connect(postgres.WithDSN(cfg.DSN()))
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db, postgres.BookingSchema...); err != nil {
		return err
	}

	svc := booking.NewService(
		postgres.NewBookingRepository(db),
		cache.New(store, cache.WithLogger(logger)),
		jobqueue.NewProducer(store, jobqueue.WithProducerLogger(logger)),
		booking.WithServiceLogger(logger),
	)

	apiLimiter := ratelimit.New(
		newAlgorithm(cfg, store, "rate_limit:api", cfg.APILimitWindow, cfg.APILimitMax),
		ratelimit.WithLogger(logger),
	)
	bookingLimiter := ratelimit.New(
		newAlgorithm(cfg, store, "rate_limit:booking", cfg.BookingLimitWindow, cfg.BookingLimitMax),
		ratelimit.WithKeyFunc(ratelimit.BySubject),
		ratelimit.WithLogger(logger),
	)

	srv := httpx.NewServer(
		httpx.WithAddress(cfg.AppAddr),
		httpx.WithCORS(nil),
		httpx.AppendMiddlewares(httpx.TimeoutMiddleware(cfg.RequestTimeout)),
	)
	srv.RegisterRoutes(func(a *httpx.App) {
		booking.RegisterRoutes(a, svc, collector, apiLimiter, bookingLimiter)
	})

	logger.Info("listening", "addr", cfg.AppAddr)
	return srv.Start(ctx)
}

// waitForStore pings the shared store with Fibonacci backoff so a booting
// Redis does not kill the process.
func waitForStore(ctx context.Context, store kv.Store) error {
	b := retry.NewFibonacci(500 * time.Millisecond)
	return retry.Do(ctx, retry.WithMaxRetries(5, b), func(ctx context.Context) error {
		if err := store.Ping(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

func newAlgorithm(cfg *config.Config, store kv.Store, prefix string, window time.Duration, max int) ratelimit.Algorithm {
	if cfg.LimitAlgorithm == "sliding" {
		return ratelimit.NewSlidingLog(store, prefix, window, max)
	}
	return ratelimit.NewFixedWindow(store, prefix, window, max)
}
