// The zone server: authoritative simulation host for TowerWars matches.
// Clients connect over reliable UDP, authenticate with a connection token
// minted by the auth service, and play matches simulated at a fixed tick
// rate. Domain events flow to the shared Redis stream for the events worker.
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

	"github.com/udisondev/towerwars/internal/bonus"
	"github.com/udisondev/towerwars/internal/config"
	"github.com/udisondev/towerwars/internal/events"
	"github.com/udisondev/towerwars/internal/game"
	"github.com/udisondev/towerwars/internal/metrics"
	"github.com/udisondev/towerwars/internal/token"
	"github.com/udisondev/towerwars/internal/transport"
	"github.com/udisondev/towerwars/internal/zone"
)

const defaultConfigPath = "config/zoneserver.yaml"

var version = "dev"

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
	cfg, err := config.LoadZoneServer(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	setupLogger(cfg.LogLevel, cfg.LogFormat)
	metrics.BuildInfo.WithLabelValues(version).Set(1)
	slog.Info("zone server starting",
		"bind", cfg.BindAddress, "port", cfg.Port, "tick_rate", cfg.Game.TickRate)

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

	validator := token.NewRedisValidator(rdb, cfg.AuthService.Timeout)

	var provider bonus.Provider
	if cfg.AuthService.URL != "" {
		provider = bonus.NewHTTP(cfg.AuthService.URL, cfg.AuthService.Timeout)
	} else {
		slog.Warn("no auth service url configured, using static bonus provider")
		provider = &bonus.Static{}
	}
	cached := bonus.NewCached(provider, cfg.AuthService.CacheTTL)
	cached.Run()
	defer cached.Stop()
	resolver := bonus.NewResolver(cached, cfg.AuthService.LookupWorkers, cfg.AuthService.Timeout)
	defer resolver.Close()

	conn, err := transport.Listen(fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.Port))
	if err != nil {
		return fmt.Errorf("binding udp socket: %w", err)
	}
	endpoint, err := transport.New(&transport.Config{
		Logger: slog.Default(),
		Conn:   conn,
	})
	if err != nil {
		return fmt.Errorf("creating transport: %w", err)
	}

	stream := events.NewRedisStream(rdb, cfg.Events.Stream, cfg.Events.MaxLen)
	publisher := events.NewPublisher(slog.Default(), stream, cfg.Events.QueueSize)

	rules := game.DefaultRules()
	if cfg.Game.VictoryWave > 0 {
		rules.VictoryWave = cfg.Game.VictoryWave
	}
	if cfg.Game.PreparationDelay > 0 {
		rules.PreparationDelay = cfg.Game.PreparationDelay.Seconds()
	}
	if cfg.Game.PauseGrace > 0 {
		rules.PauseGrace = cfg.Game.PauseGrace.Seconds()
	}
	if cfg.Game.DropExpiry > 0 {
		rules.DropExpiry = cfg.Game.DropExpiry.Seconds()
	}

	srv, err := zone.NewServer(zone.Config{
		Logger:    slog.Default(),
		Transport: endpoint,
		Tokens:    validator,
		Resolver:  resolver,
		Events:    publisher,
		Rules:     rules,
		TickRate:  cfg.Game.TickRate,
	})
	if err != nil {
		return fmt.Errorf("creating zone server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting transport", "addr", endpoint.LocalAddr())
		if err := endpoint.Run(gctx); err != nil {
			return fmt.Errorf("transport: %w", err)
		}
		return nil
	})

	// The publisher outlives the zone loop: session shutdown enqueues the
	// final match.ended events, so its flush may only start after srv.Run
	// has returned.
	pubCtx, pubCancel := context.WithCancel(context.Background())
	defer pubCancel()
	g.Go(func() error {
		if err := publisher.Run(pubCtx); err != nil {
			return fmt.Errorf("event publisher: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		defer pubCancel()
		if err := srv.Run(gctx); err != nil {
			return fmt.Errorf("zone server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return serveMetrics(gctx, cfg.MetricsAddr)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
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

// setupLogger installs the default slog handler per config. The pretty format
// is for terminals during development.
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

// parseLogLevel converts string log level to slog.Level.
// Defaults to Info if invalid or empty.
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
