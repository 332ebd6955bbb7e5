package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hackgods/clinic-booking/internal/api"
	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/clock"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/db"
	"github.com/hackgods/clinic-booking/internal/logs"
	"github.com/hackgods/clinic-booking/internal/metrics"
	"github.com/hackgods/clinic-booking/internal/notify"
	redisclient "github.com/hackgods/clinic-booking/internal/redis"
)

var version = "dev"

const notifyStreamMaxLen = 10000

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load error", "err", err)
		os.Exit(1)
	}

	log := logs.New(cfg, "api-server")
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("api-server stopped with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	log.Info("api-server starting up", "http_port", cfg.HTTPPort, "version", version)

	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mp, err := metrics.Setup()
	if err != nil {
		return err
	}

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.PostgresConns)
	if err != nil {
		cancelPg()
		return err
	}
	defer pgPool.Close()
	err = db.Migrate(pgCtx, pgPool)
	cancelPg()
	if err != nil {
		return err
	}
	log.Info("connected to Postgres")

	sinks := []notify.Sink{notify.NewLogSink(log)}
	guard := redisclient.NoGuard()

	// Redis is optional: without it bookings rely on the database constraint alone.
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		redisCtx, cancelRedis := context.WithTimeout(rootCtx, 5*time.Second)
		rdb, err = redisclient.NewRedisClient(redisCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		cancelRedis()
		if err != nil {
			return err
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Warn("error closing redis", "err", err)
			}
		}()
		log.Info("connected to Redis", "addr", cfg.RedisAddr)

		guard = redisclient.NewBookingGuard(rdb, cfg.GuardTTL, log)
		if cfg.NotifyStream != "" {
			sinks = append(sinks, notify.NewRedisStreamSink(rdb, cfg.NotifyStream, notifyStreamMaxLen))
		}
	}

	if cfg.NatsURL != "" {
		nc, err := notify.ConnectNATS(cfg.NatsURL, log)
		if err != nil {
			return err
		}
		defer func() {
			if err := nc.Drain(); err != nil {
				log.Warn("error draining nats", "err", err)
			}
		}()
		log.Info("connected to NATS", "url", cfg.NatsURL)
		sinks = append(sinks, notify.NewNATSSink(nc, "clinic.events"))
	}

	dispatcher := notify.NewDispatcher(notify.NewFanout(mp.Metrics, sinks...), cfg.NotifyQueueSize, log, mp.Metrics)

	svc := appointment.NewService(appointment.NewPgRepository(pgPool), appointment.Options{
		Clock:    clock.System(cfg.Location()),
		Logger:   log,
		Metrics:  mp.Metrics,
		Notifier: dispatcher,
		Guard:    guard,
	})

	var redisPing api.PingFunc
	if rdb != nil {
		redisPing = api.RedisPing(rdb)
	}
	health := api.NewHealthHandler(pgPool.Ping, redisPing, cfg.Env, version)

	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: api.NewRouter(api.RouterConfig{
			Service:        svc,
			Health:         health,
			Logger:         log,
			Metrics:        mp.Metrics,
			MetricsHandler: mp.Handler,
			JWTSecret:      cfg.JWTSecret,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-rootCtx.Done():
		log.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown error", "err", err)
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		log.Warn("notification queue not drained", "err", err)
	}
	if err := mp.Shutdown(shutdownCtx); err != nil {
		log.Warn("metrics shutdown error", "err", err)
	}

	log.Info("api-server stopped")
	return nil
}
