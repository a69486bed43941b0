// Command signalsweep runs one sweep of the configured threat feeds.
//
// Every source listed in the sources file is fetched and parsed for IPv4
// addresses, and each address not seen before is published to the signal
// stream. The process exits non-zero when publishing hits a fatal store
// error; sources that fail to fetch or parse are logged and skipped.
//
// Usage:
//
//	go run ./cmd/signalsweep [-config configs/development.yaml] [-sources configs/sources.yaml]
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

	"github.com/Adithya-Monish-Kumar-K/attack-radar/internal/stream"
	"github.com/Adithya-Monish-Kumar-K/attack-radar/internal/sweep"
	"github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	sourcesPath := flag.String("sources", "", "path to sources file (overrides sweep.sourcesFile)")
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *sourcesPath != "" {
		cfg.Sweep.SourcesFile = *sourcesPath
	}
	if cfg.Service.Name == config.DefaultServiceName {
		cfg.Service.Name = "signal-sweep"
	}
	log := logger.Setup(logger.Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Service: cfg.Service.Name,
		Dir:     cfg.Logging.Dir,
	})

	if err := run(cfg, log); err != nil {
		log.Error("signal sweep failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sources, err := sweep.LoadSources(cfg.Sweep.SourcesFile)
	if err != nil {
		return err
	}
	log.Info("sources loaded", "count", len(sources), "file", cfg.Sweep.SourcesFile)

	rdb, err := redis.NewClient(cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()
	log.Info("connected to redis", "addr", cfg.Redis.Addr(), "db", cfg.Redis.DB)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(nil)
		checker := health.NewChecker(log)
		checker.Register("redis", health.PingCheck(rdb))
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

	retry := resilience.RetryConfigFrom(cfg.Publisher.Retry)
	publisher := stream.NewPublisher(stream.NewRedisStore(rdb), stream.PublisherConfig{
		Ledger: cfg.Stream.Ledger,
		Stream: cfg.Stream.Stream,
		Retry:  retry,
	}, log, m)

	fetcher := sweep.NewFetcher(&http.Client{}, cfg.Sweep.HTTPTimeout, log)
	registry := sweep.NewRegistry(fetcher, sweep.NewParsePool(cfg.Sweep.ParseWorkers))
	runner := sweep.NewRunner(registry, publisher, sweep.RunnerConfig{
		SourceConcurrency:  cfg.Sweep.Concurrency,
		PublishConcurrency: cfg.Publisher.Concurrency,
	}, log, m)

	sum, err := runner.Run(ctx, sources)
	if err != nil {
		return err
	}
	log.Info("signal sweep complete",
		"run_id", sum.RunID,
		"published", sum.Published,
		"duplicates", sum.Duplicates,
		"unavailable", sum.Unavailable,
		"failed_sources", sum.FailedSources,
	)
	return nil
}
