package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/clock"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/db"
	"github.com/hackgods/clinic-booking/internal/logs"
	"github.com/hackgods/clinic-booking/internal/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load error", "err", err)
		os.Exit(1)
	}

	log := logs.New(cfg, "completion-worker")
	slog.SetDefault(log)
	log.Info("completion worker starting up", "interval", cfg.WorkerInterval)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.PostgresConns)
	cancelPg()
	if err != nil {
		log.Error("postgres connection error", "err", err)
		os.Exit(1)
	}
	defer pgPool.Close()
	log.Info("connected to Postgres")

	dispatcher := notify.NewDispatcher(notify.NewLogSink(log), cfg.NotifyQueueSize, log, nil)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := dispatcher.Close(ctx); err != nil {
			log.Warn("notification queue not drained", "err", err)
		}
	}()

	svc := appointment.NewService(appointment.NewPgRepository(pgPool), appointment.Options{
		Clock:    clock.System(cfg.Location()),
		Logger:   log,
		Notifier: dispatcher,
	})

	// Run once at startup
	runOnce(rootCtx, log, svc)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info("shutdown signal received, stopping completion worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, log, svc)
		}
	}
}

func runOnce(ctx context.Context, log *slog.Logger, svc *appointment.Service) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := svc.Booking.CompleteElapsed(runCtx)
	if err != nil {
		log.Error("completion run error", "err", err)
		return
	}
	log.Info("completion run finished", "completed", n, "took", time.Since(start))
}
