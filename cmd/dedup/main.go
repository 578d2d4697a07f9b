package main

import (
	"os"

	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/app"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/dedup"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/kafka"
)

func main() {
	a := app.Init("dedup")
	cfg := a.Config

	d, err := dedup.NewDeduplicator(cfg.Dedup.CacheCapacity, cfg.Dedup.Analytics.AlertOnDuplicate, a.Metrics)
	if err != nil {
		a.Fatal("creating deduplicator", err)
	}
	if cfg.Dedup.CacheTTL > 0 {
		a.Logger.Warn("cacheTTL is not applied, the cache is bounded by capacity only", "cache_ttl", cfg.Dedup.CacheTTL)
	}

	ctx, stop := a.Context()
	defer stop()

	forwarder := kafka.NewAsyncProducer(cfg.Kafka, cfg.Kafka.Topics.DedupOut)
	a.OnClose(forwarder.Close)
	svc := dedup.NewService(d, dedup.NewAnalytics(d, cfg.Dedup.Analytics, a.Metrics), forwarder)
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DedupIn, svc.Handle)
	a.Serve()

	a.Logger.Info("dedup ready, consuming from kafka",
		"in", cfg.Kafka.Topics.DedupIn,
		"out", cfg.Kafka.Topics.DedupOut,
		"group", cfg.Kafka.ConsumerGroup,
		"capacity", cfg.Dedup.CacheCapacity,
	)
	err = svc.Run(ctx, consumer)
	a.Shutdown()
	if err != nil {
		a.Logger.Error("dedup stopped on error", "error", err)
		os.Exit(1)
	}
	a.Logger.Info("dedup stopped")
}
