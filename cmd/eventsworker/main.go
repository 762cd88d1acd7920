// The events worker: reads the shared game-event stream under consumer
// groups and materializes durable state in PostgreSQL. One group writes
// match history, another credits tower XP; each keeps its own cursor, so a
// slow or failing effect never stalls the other.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/udisondev/towerwars/internal/config"
	"github.com/udisondev/towerwars/internal/consumers"
	"github.com/udisondev/towerwars/internal/db"
	"github.com/udisondev/towerwars/internal/events"
)

const defaultConfigPath = "config/eventsworker.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfgPath := defaultConfigPath
	if p := os.Getenv(config.EnvConfigPath); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadEventsWorker(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	setupLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("events worker starting", "stream", cfg.Stream)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("pinging redis at %s: %w", cfg.Redis.Addr, err)
	}
	slog.Info("redis connected", "addr", cfg.Redis.Addr)

	database, err := db.New(ctx, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()
	slog.Info("database connected")

	if err := db.RunMigrations(ctx, cfg.Database.DSN()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database migrations applied")

	stream := events.NewRedisStream(rdb, cfg.Stream, 0)
	matchStore := db.NewMatchStore(database)
	xpStore := db.NewProgressionStore(database)

	handlers := []events.Handler{
		consumers.NewPersistence(slog.Default(), matchStore),
		consumers.NewProgression(slog.Default(), xpStore),
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, h := range handlers {
		consumer, err := events.NewConsumer(events.ConsumerConfig{
			Logger:        slog.Default(),
			Stream:        stream,
			Handler:       h,
			BatchSize:     cfg.BatchSize,
			BlockTime:     cfg.BlockTime,
			ClaimMinIdle:  cfg.ClaimMinIdle,
			MaxDeliveries: cfg.MaxDeliveries,
		})
		if err != nil {
			return fmt.Errorf("creating %s consumer: %w", h.Group(), err)
		}
		g.Go(func() error {
			if err := consumer.Run(gctx); err != nil {
				return fmt.Errorf("%s consumer: %w", h.Group(), err)
			}
			return nil
		})
	}

	g.Go(func() error {
		return serveMetrics(gctx, cfg.MetricsAddr)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("worker error: %w", err)
	}
	return nil
}

// serveMetrics exposes the Prometheus endpoint until ctx is canceled.
func serveMetrics(ctx context.Context, addr string) error {
	if addr == "" {
		<-ctx.Done()
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("metrics listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	}
}

// setupLogger installs the default slog handler per config.
func setupLogger(level, format string) {
	lvl := parseLogLevel(level)
	var h slog.Handler
	if format == "pretty" {
		h = tint.NewHandler(os.Stdout, &tint.Options{Level: lvl, TimeFormat: time.Kitchen})
	} else {
		h = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(h))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
