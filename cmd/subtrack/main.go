package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"subtrack/internal/amqp"
	"subtrack/internal/cli"
	apphttp "subtrack/internal/http"
	applog "subtrack/internal/log"
	"subtrack/internal/notify"
	notifymem "subtrack/internal/notify/memory"
	"subtrack/internal/services"
	"subtrack/internal/store"
	storemem "subtrack/internal/store/memory"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	var (
		subs     store.SubscriptionStore
		prefs    store.PreferencesStore
		cleanups []func()
	)

	switch cfg.DataBackend {
	case "sqlite":
		repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
		cleanups = append(cleanups, func() { _ = repo.Close() })
		subs, prefs = repo, repo
		logger.Info("Initialized SQLite backend", "path", cfg.SQLiteDBPath)
	default:
		mem := storemem.New()
		subs, prefs = mem, mem
		logger.Info("Initialized memory backend")
	}

	// Reminder delivery runs over AMQP when a broker is reachable; otherwise
	// reminders are handled in-process and die with the server.
	var port notify.Port
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPScheduleQueue, cfg.AMQPCancelQueue)
		if err != nil {
			logger.Warn("AMQP broker unreachable, falling back to in-process reminders", "error", err)
			port = notifymem.New()
		} else {
			cleanups = append(cleanups, func() { _ = client.Close() })
			port = amqp.NewNotifyPort(client)
			logger.Info("Initialized AMQP notification port",
				"exchange", cfg.AMQPExchange,
				"schedule_queue", cfg.AMQPScheduleQueue,
				"cancel_queue", cfg.AMQPCancelQueue)
		}
	} else {
		port = notifymem.New()
	}

	svc := services.NewSubscriptionService(subs, prefs, notify.NewScheduler(port), nil)

	srv := apphttp.NewServer(":"+cfg.Port, svc)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		for _, cleanup := range cleanups {
			cleanup()
		}
	})

	logger.Info("Starting subtrack server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
