// The worker binary drains the notification queues. It shares nothing with
// the server but the store and the job encoding, so either side can be
// restarted or scaled on its own.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	retry "github.com/sethvargo/go-retry"

	"github.com/clinio/clinio/config"
	"github.com/clinio/clinio/internal/bootstrap"
	"github.com/clinio/clinio/jobqueue"
	kvredis "github.com/clinio/clinio/kv/redis"
	"github.com/clinio/clinio/notify"
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
	logger.Info("starting worker", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := kvredis.NewStore(kvredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer store.Close()

	// The worker is useless without the store, so an unreachable broker at
	// startup is fatal after the retry budget.
	b := retry.NewFibonacci(500 * time.Millisecond)
	if err := retry.Do(ctx, retry.WithMaxRetries(5, b), func(ctx context.Context) error {
		if err := store.Ping(ctx); err != nil {
			logger.Warn("store not ready", "err", err)
			return retry.RetryableError(err)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("worker: store unreachable: %w", err)
	}

	mailer := notify.NewSMTPMailer(notify.SMTPOptions{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	push := notify.NewPushClient(notify.PushOptions{
		BaseURL: cfg.PushBaseURL,
		AppID:   cfg.PushAppID,
		Key:     cfg.PushKey,
		Secret:  cfg.PushSecret,
	})

	worker := jobqueue.NewWorker(store,
		jobqueue.WithWorkerLogger(logger),
		jobqueue.WithPollInterval(cfg.JobPollInterval),
	)
	handlers := notify.NewHandlers(store, mailer, push, notify.WithHandlersLogger(logger))
	handlers.Register(worker, notify.DefaultEmailConfig(), notify.DefaultPushConfig())

	logger.Info("worker running", "poll", cfg.JobPollInterval)
	return worker.Run(ctx)
}
