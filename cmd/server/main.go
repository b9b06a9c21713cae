// Package main runs the token ledger as a long-lived service:
// - HTTP JSON API for transfers, launch and owner settings
// - Websocket feed of committed operations
// - Journal in PostgreSQL, tax analytics in ClickHouse, balance cache in
//   Redis and an operation stream in Kafka, each optional
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

	"reflection-token-lab/internal/cache"
	"reflection-token-lab/internal/config"
	"reflection-token-lab/internal/feed"
	"reflection-token-lab/internal/observability"
	"reflection-token-lab/internal/queue"
	"reflection-token-lab/internal/service"
	"reflection-token-lab/internal/storage"
	chstore "reflection-token-lab/internal/storage/clickhouse"
	"reflection-token-lab/internal/storage/memory"
	"reflection-token-lab/internal/storage/migrations"
	pgstore "reflection-token-lab/internal/storage/postgres"
)

// sinks holds the optional backends behind the service.
type sinks struct {
	operations storage.OperationStore
	taxEvents  storage.TaxEventStore
	publisher  queue.Publisher
	cache      *cache.BalanceCache
	cleanup    []func()
}

func (s *sinks) close() {
	for i := len(s.cleanup) - 1; i >= 0; i-- {
		s.cleanup[i]()
	}
}

func main() {
	// Load config (.env first, so flags below default from it)
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	httpAddr := flag.String("http-addr", cfg.HTTPAddr, "HTTP listen address")
	postgresDSN := flag.String("postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", cfg.ClickHouseDSN, "ClickHouse connection string")
	redisAddr := flag.String("redis-addr", cfg.RedisAddr, "Redis address")
	kafkaBrokers := flag.String("kafka-brokers", strings.Join(cfg.KafkaBrokers, ","), "Comma-separated Kafka brokers")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage and no external sinks")
	flag.Parse()

	cfg.HTTPAddr = *httpAddr
	cfg.PostgresDSN = *postgresDSN
	cfg.ClickHouseDSN = *clickhouseDSN
	cfg.RedisAddr = *redisAddr
	cfg.KafkaBrokers = splitList(*kafkaBrokers)
	if *useMemory {
		cfg.PostgresDSN, cfg.ClickHouseDSN, cfg.RedisAddr, cfg.KafkaBrokers = "", "", "", nil
	}

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	ledgerCfg, err := cfg.LedgerConfig()
	if err != nil {
		logger.Fatalf("ledger config: %v", err)
	}
	router, err := cfg.RouterAddress()
	if err != nil {
		logger.Fatalf("router address: %v", err)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backends, err := createSinks(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to create sinks: %v", err)
	}
	defer backends.close()

	// Rebuild ledger state from the journal
	restored, err := restore(ctx, backends.operations, ledgerCfg, router)
	if err != nil {
		logger.Fatalf("Failed to restore ledger: %v", err)
	}
	logger.Printf("Restored %d operations (owner %s, token %s)", restored.applied, ledgerCfg.Owner, ledgerCfg.Self)

	hub := feed.NewHub(nil, log.New(os.Stdout, "[feed] ", log.LstdFlags|log.Lshortfile), observability.DefaultMetrics)
	defer hub.Close()

	opts := service.Options{
		Ledger:          restored.ledger,
		Tracker:         restored.tracker,
		AttachedTracker: true,
		Operations:      backends.operations,
		TaxEvents:       backends.taxEvents,
		Publisher:       backends.publisher,
		Feed:            hub,
		Logger:          log.New(os.Stdout, "[service] ", log.LstdFlags|log.Lshortfile),
	}
	if backends.cache != nil {
		opts.Cache = backends.cache
	}
	svc, err := service.New(ctx, opts)
	if err != nil {
		logger.Fatalf("Failed to create service: %v", err)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           newAPI(svc, hub, logger).routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to signal completion
	done := make(chan struct{})

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go watchSignals(sigCh, cancel, done, 30*time.Second, os.Exit, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("Starting HTTP server on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go observability.TrackUptime(ctx)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Printf("HTTP server error: %v", err)
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("Graceful shutdown failed: %v", err)
	}
	if err := svc.Flush(shutdownCtx); err != nil {
		logger.Printf("%d operations not journaled: %v", svc.Unjournaled(), err)
	}
	close(done)

	logger.Println("Shutdown complete")
}

// createSinks connects every configured backend. Unset DSNs fall back to
// memory for the journal and disable the rest.
func createSinks(ctx context.Context, cfg *config.Config, logger *log.Logger) (*sinks, error) {
	s := &sinks{}

	if cfg.PostgresDSN == "" {
		logger.Println("POSTGRES_DSN not set, journal is in memory")
		s.operations = memory.NewOperationStore()
		s.taxEvents = memory.NewTaxEventStore()
	} else {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
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

	if cfg.ClickHouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("clickhouse: %w", err)
		}
		s.cleanup = append(s.cleanup, func() { conn.Close() })
		s.taxEvents = chstore.NewTaxEventStore(conn)
	}

	if cfg.RedisAddr != "" {
		c := cache.NewBalanceCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTTL)
		if err := c.Ping(ctx); err != nil {
			s.close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		s.cleanup = append(s.cleanup, func() { c.Close() })
		s.cache = c
	}

	if len(cfg.KafkaBrokers) > 0 {
		p := queue.NewKafkaProducer(queue.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		})
		s.cleanup = append(s.cleanup, func() { p.Close() })
		s.publisher = p
	}

	return s, nil
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
