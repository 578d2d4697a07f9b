package main

import (
	"errors"

	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/app"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/gtfsrt"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/publisher"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/scheduler"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/kafka"
)

const name = "rail-trip-updates"

func main() {
	a := app.Init(name)
	cfg := a.Config
	if cfg.Rail.URL == "" {
		a.Fatal("no feed configured", errors.New("rail.url is empty"))
	}

	ctx, stop := a.Context()
	defer stop()

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.TripUpdate)
	a.OnClose(producer.Close)

	// Only cycles that sent at least one entity count as alive, so the
	// bridge touches liveness itself instead of the scheduler.
	liveness := scheduler.NewLiveness()
	bridge := gtfsrt.NewRailBridge(
		gtfsrt.NewFetcher(cfg.Rail.URL, cfg.Rail.Timeout),
		publisher.New(producer, name, a.Metrics),
		liveness,
	)
	a.Health.Register("feed", liveness.Check(cfg.Rail.UnhealthyAfter))
	a.Serve()

	a.Logger.Info("bridge ready",
		"url", cfg.Rail.URL,
		"topic", cfg.Kafka.Topics.TripUpdate,
		"interval", cfg.Rail.Interval,
	)
	a.Run(ctx, scheduler.New(name, cfg.Rail.Interval, bridge.RunCycle, a.Metrics))
}
