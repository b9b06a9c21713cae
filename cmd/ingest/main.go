// Package main mirrors a running token service's journal into local
// storage. Operations come from Kafka or from the server's websocket feed;
// seq gaps are filled from the upstream journal when one is configured.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"reflection-token-lab/internal/config"
	"reflection-token-lab/internal/feed"
	"reflection-token-lab/internal/ingestion"
	"reflection-token-lab/internal/observability"
	"reflection-token-lab/internal/queue"
	"reflection-token-lab/internal/storage"
	chstore "reflection-token-lab/internal/storage/clickhouse"
	"reflection-token-lab/internal/storage/memory"
	"reflection-token-lab/internal/storage/migrations"
	pgstore "reflection-token-lab/internal/storage/postgres"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	source := flag.String("source", "kafka", "Operation source: kafka or ws")
	feedURL := flag.String("feed-url", cfg.FeedURL, "Websocket feed URL for --source=ws")
	kafkaBrokers := flag.String("kafka-brokers", strings.Join(cfg.KafkaBrokers, ","), "Comma-separated Kafka brokers for --source=kafka")
	postgresDSN := flag.String("postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string for the mirror journal")
	clickhouseDSN := flag.String("clickhouse-dsn", cfg.ClickHouseDSN, "ClickHouse connection string for tax events")
	upstreamDSN := flag.String("upstream-dsn", cfg.UpstreamDSN, "PostgreSQL journal to backfill seq gaps from (optional)")
	flushInterval := flag.Duration("flush-interval", 5*time.Second, "How often to backfill a pending seq gap")
	useMemory := flag.Bool("use-memory", false, "Keep the mirror in memory")
	metricsAddr := flag.String("metrics-addr", ":9091", "Prometheus metrics HTTP address (empty to disable)")
	flag.Parse()

	logger := log.New(os.Stdout, "[ingest] ", log.LstdFlags|log.Lshortfile)

	ledgerCfg, err := cfg.LedgerConfig()
	if err != nil {
		logger.Fatalf("ledger config: %v", err)
	}
	router, err := cfg.RouterAddress()
	if err != nil {
		logger.Fatalf("router address: %v", err)
	}

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Handle shutdown signals with graceful timeout
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()
	go observability.TrackUptime(ctx)

	stores, err := openStores(ctx, *postgresDSN, *clickhouseDSN, *upstreamDSN, *useMemory, logger)
	if err != nil {
		logger.Fatalf("Failed to open storage: %v", err)
	}
	defer stores.close()

	src, closeSrc, err := openSource(ctx, *source, *feedURL, splitList(*kafkaBrokers), cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to open source: %v", err)
	}
	defer closeSrc()

	opts := ingestion.RunnerOptions{
		Source:        src,
		Operations:    stores.operations,
		TaxEvents:     stores.taxEvents,
		LedgerConfig:  ledgerCfg,
		Router:        router,
		FlushInterval: *flushInterval,
		Logger:        logger,
	}
	if stores.upstream != nil {
		opts.Upstream = stores.upstream
	}
	runner, err := ingestion.NewRunner(ctx, opts)
	if err != nil {
		logger.Fatalf("Failed to create runner: %v", err)
	}
	logger.Printf("Restored %d operations from the mirror journal", runner.Stats().Restored)

	err = runner.Run(ctx)

	done <- err
	cancel()

	stats := runner.Stats()
	logger.Printf("Applied %d, duplicates %d, backfilled %d, last seq %d",
		stats.Applied, stats.Duplicates, stats.Backfilled, runner.LastSeq())

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Error: %v", err)
	}
	logger.Println("Shutdown complete")
}

type stores struct {
	operations storage.OperationStore
	taxEvents  storage.TaxEventStore
	upstream   storage.OperationStore
	cleanup    []func()
}

func (s *stores) close() {
	for i := len(s.cleanup) - 1; i >= 0; i-- {
		s.cleanup[i]()
	}
}

func openStores(ctx context.Context, postgresDSN, clickhouseDSN, upstreamDSN string, useMemory bool, logger *log.Logger) (*stores, error) {
	s := &stores{}

	if useMemory || postgresDSN == "" {
		logger.Println("Mirror journal is in memory")
		s.operations = memory.NewOperationStore()
	} else {
		pool, err := pgstore.NewPool(ctx, postgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		s.cleanup = append(s.cleanup, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			s.close()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		s.operations = pgstore.NewOperationStore(pool)
	}

	if useMemory || clickhouseDSN == "" {
		s.taxEvents = memory.NewTaxEventStore()
	} else {
		conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("clickhouse: %w", err)
		}
		s.cleanup = append(s.cleanup, func() { conn.Close() })
		s.taxEvents = chstore.NewTaxEventStore(conn)
	}

	if upstreamDSN != "" {
		pool, err := pgstore.NewPool(ctx, upstreamDSN)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("connect to upstream postgres: %w", err)
		}
		s.cleanup = append(s.cleanup, pool.Close)
		s.upstream = pgstore.NewOperationStore(pool)
	}

	return s, nil
}

func openSource(ctx context.Context, kind, feedURL string, brokers []string, cfg *config.Config, logger *log.Logger) (ingestion.OperationSource, func(), error) {
	switch kind {
	case "kafka":
		if len(brokers) == 0 {
			return nil, nil, errors.New("--kafka-brokers is required for --source=kafka")
		}
		c := queue.NewKafkaConsumer(queue.ConsumerConfig{
			Brokers: brokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
		}, log.New(os.Stdout, "[kafka] ", log.LstdFlags|log.Lshortfile))
		logger.Printf("Consuming %s as group %s", cfg.KafkaTopic, cfg.KafkaGroupID)
		return c, func() { c.Close() }, nil

	case "ws":
		client, err := feed.Dial(ctx, feedURL, nil, log.New(os.Stdout, "[feed] ", log.LstdFlags|log.Lshortfile))
		if err != nil {
			return nil, nil, err
		}
		logger.Printf("Subscribed to feed %s", feedURL)
		return ingestion.NewFeedSource(client, logger), func() { client.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown source %q", kind)
	}
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
