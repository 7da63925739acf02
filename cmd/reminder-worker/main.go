package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"subtrack/internal/amqp"
	"subtrack/internal/cli"
	applog "subtrack/internal/log"
	"subtrack/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)

	logger.Info("Starting reminder-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	// Pending reminders always live in SQLite so they survive restarts.
	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPScheduleQueue, cfg.AMQPCancelQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	w := worker.NewReminderWorker(repo, worker.LogNotifier{}, cfg.DispatchBatchSize, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return amqpClient.ConsumeSchedules(ctx, func(msg *amqp.ReminderScheduleMessage) error {
			return w.HandleScheduleMessage(ctx, msg)
		})
	})

	g.Go(func() error {
		return amqpClient.ConsumeCancels(ctx, func(msg *amqp.ReminderCancelMessage) error {
			return w.HandleCancelMessage(ctx, msg)
		})
	})

	g.Go(func() error {
		return w.Run(ctx, cfg.DispatchInterval)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}

	logger.Info("Worker stopped gracefully")
}
