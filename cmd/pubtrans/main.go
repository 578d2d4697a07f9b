package main

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/app"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/enrichment"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/publisher"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/pubtrans"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/scheduler"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/watermark"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/kafka"
)

func main() {
	a := app.Init("pubtrans")
	cfg := a.Config

	handler, err := pubtrans.HandlerFor(cfg.Pubtrans.Table)
	if err != nil {
		a.Fatal("unsupported table", err)
	}
	topic := cfg.Kafka.Topics.Arrival
	if handler.Table() == pubtrans.TableDeparture {
		topic = cfg.Kafka.Topics.Departure
	}
	loc := a.Location(cfg.Pubtrans.Timezone)

	ctx, stop := a.Context()
	defer stop()

	db := a.Postgres(ctx)
	cache := enrichment.NewClient(a.Redis(ctx))
	producer := kafka.NewProducer(cfg.Kafka, topic)
	a.OnClose(producer.Close)

	name := "pubtrans-" + handler.Table()
	bridge := pubtrans.NewBridge(
		name,
		enrichment.NewGate(cache, cfg.Cache),
		pubtrans.NewExtractor(db, handler, loc),
		pubtrans.NewMapper(cache, handler),
		publisher.New(producer, name, a.Metrics),
		watermark.New(time.Now(), cfg.Pubtrans.WatermarkGrace),
		a.Metrics,
	)

	liveness := scheduler.NewLiveness()
	a.Health.Register("cycle", liveness.Check(cfg.Health.UnhealthyAfter))
	a.Serve()

	a.Logger.Info("bridge ready",
		"table", handler.Table(),
		"topic", topic,
		"interval", cfg.Pubtrans.Interval,
	)
	a.Run(ctx, scheduler.New(name, cfg.Pubtrans.Interval, bridge.RunCycle, a.Metrics, scheduler.WithLiveness(liveness)))
}
