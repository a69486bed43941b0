// Command signalforge consumes the signal stream as a member of a consumer
// group and enriches each address with AbuseIPDB reputation data.
//
// Enriched reports go to PostgreSQL and to a Kafka topic when those sinks are
// enabled. The loop runs until SIGINT/SIGTERM. A store failure, a sink
// failure or a lookup the API did not answer stops it with a non-zero exit so
// the supervisor can restart it, and unfinished entries are replayed on the
// next start.
//
// Usage:
//
//	go run ./cmd/signalforge [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/attack-radar/internal/forge"
	"github.com/Adithya-Monish-Kumar-K/attack-radar/internal/forge/abuseipdb"
	"github.com/Adithya-Monish-Kumar-K/attack-radar/internal/forge/reportstore"
	"github.com/Adithya-Monish-Kumar-K/attack-radar/internal/forge/sink"
	"github.com/Adithya-Monish-Kumar-K/attack-radar/internal/stream"
	"github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Service.Name == config.DefaultServiceName {
		cfg.Service.Name = "signal-forge"
	}
	log := logger.Setup(logger.Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Service: cfg.Service.Name,
		Dir:     cfg.Logging.Dir,
	})

	if err := run(cfg, log); err != nil {
		log.Error("signal forge stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("signal forge stopped")
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Enrichment.AbuseIPDB.APIKey == "" {
		log.Warn("IPDB_API_KEY is not set, reputation lookups will be rejected")
	}

	rdb, err := redis.NewClient(cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()
	log.Info("connected to redis", "addr", cfg.Redis.Addr(), "db", cfg.Redis.DB)

	var m *metrics.Metrics
	checker := health.NewChecker(log)
	checker.Register("redis", health.PingCheck(rdb))
	if cfg.Metrics.Enabled {
		m = metrics.New(nil)
	}

	var sinks []forge.Sink
	if cfg.Postgres.Enabled {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return err
		}
		defer db.Close()
		store := reportstore.New(db, log)
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		checker.Register("postgres", health.PingCheck(db))
		sinks = append(sinks, store)
		log.Info("connected to postgres", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, log)
		defer producer.Close()
		collector := sink.NewBatchCollector(producer, cfg.Kafka.BatchSize, cfg.Kafka.FlushInterval, log)
		collectorCtx, stopCollector := context.WithCancel(context.Background())
		collector.Start(collectorCtx)
		defer func() {
			stopCollector()
			collector.Close()
		}()
		sinks = append(sinks, collector)
		log.Info("kafka report sink enabled", "topic", cfg.Kafka.ReportsTopic)
	}

	if cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(cfg.Metrics.Port, log, map[string]http.Handler{
			"/healthz": checker.LiveHandler(),
			"/readyz":  checker.ReadyHandler(),
		})
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdown(shutdownCtx)
		}()
	}

	client := abuseipdb.New(&http.Client{}, cfg.Enrichment, log, m)
	processor := forge.NewProcessor(client, sinks, log)
	consumer := stream.NewConsumer(stream.NewRedisStore(rdb), stream.ConsumerConfig{
		Stream:       cfg.Stream.Stream,
		Group:        cfg.Stream.Group,
		Consumer:     cfg.Stream.Consumer,
		BatchSize:    cfg.Stream.BatchSize,
		BlockTimeout: cfg.Stream.BlockTimeout,
		CreateStream: cfg.Stream.CreateStream,
		Ack:          cfg.Stream.Ack,
	}, processor.Handle, log, m)

	return consumer.Run(ctx)
}
