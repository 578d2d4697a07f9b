package main

import (
	"os"

	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/app"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/enrichment"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/metro"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/publisher"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/scheduler"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/kafka"
)

const name = "metro"

func main() {
	a := app.Init(name)
	cfg := a.Config

	stops, err := metro.NewStops(cfg.Metro.Stops)
	if err != nil {
		a.Fatal("loading metro stop table", err)
	}
	ats := a.Location(cfg.Metro.ATSTimezone)

	ctx, stop := a.Context()
	defer stop()

	rc := a.Redis(ctx)
	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.MetroOut)
	a.OnClose(producer.Close)

	liveness := scheduler.NewLiveness()
	svc := metro.NewService(
		metro.NewEstimator(stops, enrichment.NewClient(rc), ats),
		publisher.New(producer, name, a.Metrics),
		liveness,
		a.Metrics,
	)
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.MetroIn, svc.Handle)
	a.Health.Register("consumer", liveness.Check(cfg.Health.UnhealthyAfter))
	a.Serve()

	a.Logger.Info("bridge ready, consuming from kafka",
		"in", cfg.Kafka.Topics.MetroIn,
		"out", cfg.Kafka.Topics.MetroOut,
		"stations", stops.Len(),
	)
	err = consumer.Start(ctx)
	a.Shutdown()
	if err != nil {
		a.Logger.Error("bridge stopped on error", "error", err)
		os.Exit(1)
	}
	a.Logger.Info("bridge stopped")
}
