// Package app holds the process wiring every bridge binary shares: flag and
// config loading, logging, store connections, the metrics and health
// servers, and running the scheduler until shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/scheduler"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/resilience"
)

// App is one running bridge process.
type App struct {
	Name    string
	Config  *config.Config
	Metrics *metrics.Metrics
	Health  *health.Checker
	Logger  *slog.Logger

	shutdowns []func(context.Context) error
	closers   []func() error
}

// Init parses the command line, loads the configuration and sets up
// logging. It exits the process when the configuration is unusable.
func Init(name string) *App {
	flags := pflag.NewFlagSet(name, pflag.ExitOnError)
	configPath := flags.StringP("config", "c", "configs/development.yaml", "path to config file")
	flags.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	a := &App{
		Name:    name,
		Config:  cfg,
		Metrics: metrics.New(),
		Health:  health.NewChecker(),
		Logger:  logger.WithComponent(name),
	}
	a.Logger.Info("starting", "config", *configPath)
	return a
}

// Context returns a context cancelled on SIGINT or SIGTERM.
func (a *App) Context() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// Location loads a configured time zone; Validate already checked it.
func (a *App) Location(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		a.Fatal("loading time zone", err)
	}
	return loc
}

// Postgres connects with startup retries, registers a ping health check and
// closes the pool on Shutdown.
func (a *App) Postgres(ctx context.Context) *postgres.Client {
	db, err := resilience.Connect(ctx, "postgres", resilience.StartupRetry(), func() (*postgres.Client, error) {
		return postgres.New(a.Config.Postgres)
	})
	if err != nil {
		a.Fatal("connecting to postgres", err)
	}
	a.closers = append(a.closers, db.Close)
	a.Health.Register("postgres", health.PingCheck(db))
	a.Logger.Info("connected to postgres", "host", a.Config.Postgres.Host, "database", a.Config.Postgres.Database)
	return db
}

// Redis connects with startup retries, registers a ping health check and
// closes the client on Shutdown.
func (a *App) Redis(ctx context.Context) *redis.Client {
	rc, err := resilience.Connect(ctx, "redis", resilience.StartupRetry(), func() (*redis.Client, error) {
		return redis.NewClient(a.Config.Redis)
	})
	if err != nil {
		a.Fatal("connecting to redis", err)
	}
	a.closers = append(a.closers, rc.Close)
	a.Health.Register("redis", health.PingCheck(rc))
	a.Logger.Info("connected to redis", "addr", a.Config.Redis.Addr)
	return rc
}

// OnClose registers fn to run on Shutdown, after the servers stop.
func (a *App) OnClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Serve starts the metrics and health servers that are enabled.
func (a *App) Serve() {
	if a.Config.Metrics.Enabled {
		a.shutdowns = append(a.shutdowns, metrics.StartServer(a.Config.Metrics.Port, prometheus.DefaultGatherer))
	}
	if a.Config.Health.Enabled {
		a.shutdowns = append(a.shutdowns, health.StartServer(a.Config.Health.Port, a.Config.Health.Endpoint, a.Health))
	}
}

// Run drives sched until ctx ends or a cycle fails fatally, then shuts the
// process down. A fatal failure exits with status 1 so the supervisor
// restarts the bridge.
func (a *App) Run(ctx context.Context, sched *scheduler.Scheduler) {
	err := sched.Run(ctx)
	a.Shutdown()
	if err != nil {
		a.Logger.Error("bridge stopped on fatal error", "error", err)
		os.Exit(1)
	}
	a.Logger.Info("bridge stopped")
}

// Shutdown stops the servers and closes every registered resource.
func (a *App) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, shutdown := range a.shutdowns {
		if err := shutdown(ctx); err != nil {
			a.Logger.Error("server shutdown failed", "error", err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Error("close failed", "error", err)
		}
	}
	a.shutdowns, a.closers = nil, nil
}

// Fatal logs err, releases what was opened so far and exits.
func (a *App) Fatal(msg string, err error) {
	a.Logger.Error(msg, "error", err)
	a.Shutdown()
	os.Exit(1)
}
