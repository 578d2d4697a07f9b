package main

import (
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/alerts"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/app"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/publisher"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/scheduler"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/kafka"
)

const name = "omm-alerts"

func main() {
	a := app.Init(name)
	cfg := a.Config
	loc := a.Location(cfg.Alerts.Timezone)

	ctx, stop := a.Context()
	defer stop()

	db := a.Postgres(ctx)
	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ServiceAlert)
	a.OnClose(producer.Close)

	bridge := alerts.NewBridge(
		name,
		alerts.NewOMMStore(db, loc, cfg.Alerts.Interval, cfg.Alerts.QueryAllModified),
		publisher.New(producer, name, a.Metrics),
		loc,
		a.Metrics,
	)

	liveness := scheduler.NewLiveness()
	a.Health.Register("cycle", liveness.Check(cfg.Health.UnhealthyAfter))
	a.Serve()

	a.Logger.Info("bridge ready",
		"topic", cfg.Kafka.Topics.ServiceAlert,
		"interval", cfg.Alerts.Interval,
		"queryAllModified", cfg.Alerts.QueryAllModified,
	)
	a.Run(ctx, scheduler.New(name, cfg.Alerts.Interval, bridge.RunCycle, a.Metrics, scheduler.WithLiveness(liveness)))
}
