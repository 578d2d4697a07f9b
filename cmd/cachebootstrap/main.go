package main

import (
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/app"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/bootstrap"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/scheduler"
)

const name = "cache-bootstrap"

func main() {
	a := app.Init(name)
	cfg := a.Config
	loc := a.Location(cfg.Bootstrap.Timezone)

	ctx, stop := a.Context()
	defer stop()

	db := a.Postgres(ctx)
	cache := a.Redis(ctx)
	job := bootstrap.NewJob(bootstrap.NewPostgresSchedule(db), cache, cfg.Bootstrap, loc, a.Metrics)

	liveness := scheduler.NewLiveness()
	a.Health.Register("cycle", liveness.Check(cfg.Bootstrap.Interval+cfg.Health.UnhealthyAfter))
	a.Serve()

	a.Logger.Info("bootstrap ready",
		"history_days", cfg.Bootstrap.HistoryDays,
		"future_days", cfg.Bootstrap.FutureDays,
		"ttl_days", cfg.Bootstrap.TTLDays,
		"interval", cfg.Bootstrap.Interval,
	)
	a.Run(ctx, scheduler.New(name, cfg.Bootstrap.Interval, job.RunCycle, a.Metrics, scheduler.WithLiveness(liveness)))
}
