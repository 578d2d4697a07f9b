package main

import (
	"errors"

	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/app"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/cancellation"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/enrichment"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/gtfsrt"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/publisher"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/scheduler"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/kafka"
)

const name = "trip-update-cancellations"

func main() {
	a := app.Init(name)
	cfg := a.Config
	if cfg.Poller.URL == "" {
		a.Fatal("no feed configured", errors.New("poller.url is empty"))
	}

	ctx, stop := a.Context()
	defer stop()

	resolver := enrichment.NewClient(a.Redis(ctx))
	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.Cancellation)
	a.OnClose(producer.Close)

	source := gtfsrt.NewCancellationSource(
		gtfsrt.NewFetcher(cfg.Poller.URL, cfg.Poller.Timeout),
		resolver,
		cfg.Poller.ServiceDayStartTime,
	)
	bridge := cancellation.NewBridge(name, source, publisher.New(producer, name, a.Metrics), a.Metrics)

	liveness := scheduler.NewLiveness()
	a.Health.Register("cycle", liveness.Check(cfg.Health.UnhealthyAfter))
	a.Serve()

	a.Logger.Info("poller ready",
		"url", cfg.Poller.URL,
		"topic", cfg.Kafka.Topics.Cancellation,
		"interval", cfg.Poller.Interval,
	)
	a.Run(ctx, scheduler.New(name, cfg.Poller.Interval, bridge.RunCycle, a.Metrics, scheduler.WithLiveness(liveness)))
}
