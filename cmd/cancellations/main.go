package main

import (
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/app"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/cancellation"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/publisher"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/scheduler"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/kafka"
)

const name = "omm-cancellations"

func main() {
	a := app.Init(name)
	cfg := a.Config

	window, err := cancellation.ParseWindow(cfg.OMM.CancellationsFrom)
	if err != nil {
		a.Fatal("invalid cancellation window", err)
	}
	loc := a.Location(cfg.OMM.Timezone)

	ctx, stop := a.Context()
	defer stop()

	db := a.Postgres(ctx)
	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.Cancellation)
	a.OnClose(producer.Close)

	bridge := cancellation.NewBridge(
		name,
		cancellation.NewOMMStore(db, window, loc, cfg.OMM.Interval),
		publisher.New(producer, name, a.Metrics),
		a.Metrics,
	)

	liveness := scheduler.NewLiveness()
	a.Health.Register("cycle", liveness.Check(cfg.Health.UnhealthyAfter))
	a.Serve()

	a.Logger.Info("bridge ready",
		"window", cfg.OMM.CancellationsFrom,
		"topic", cfg.Kafka.Topics.Cancellation,
		"interval", cfg.OMM.Interval,
	)
	a.Run(ctx, scheduler.New(name, cfg.OMM.Interval, bridge.RunCycle, a.Metrics, scheduler.WithLiveness(liveness)))
}
