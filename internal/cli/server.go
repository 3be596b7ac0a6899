package cli

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/relaymint/tokend/internal/config"
	"github.com/relaymint/tokend/internal/core/engine"
	"github.com/relaymint/tokend/internal/ingest"
	"github.com/relaymint/tokend/internal/relay"
	"github.com/relaymint/tokend/internal/storage/ledgerdb"
	"github.com/relaymint/tokend/internal/storage/ledgerdb/postgres"
)

const shutdownGrace = 10 * time.Second

// serverCmd runs the ledger daemon: relay subscriptions, the transaction
// engine, and the HTTP health/metrics listener.
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the ledger daemon",
	Long: `Run the ledger daemon. Connects to the configured relays, subscribes to
transaction requests addressed to the ledger identity, and processes them
against the PostgreSQL store. Serves /health and /metrics over HTTP.`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	// server is the default action
	rootCmd.RunE = serverCmd.RunE
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewRepositoryManager(ledgerdb.NewConfig(cfg.DatabaseURL))
	if err != nil {
		return err
	}
	if err := store.Open(ctx); err != nil {
		return err
	}
	defer store.Close(context.Background())

	descriptors := make([]string, 0, len(engine.Variants()))
	for _, v := range engine.Variants() {
		descriptors = append(descriptors, v.Descriptor())
	}
	if err := store.TransactionTypes().Seed(ctx, descriptors); err != nil {
		return fmt.Errorf("seed transaction types: %w", err)
	}

	pool, err := relay.NewPool(relay.Config{
		URLs:       cfg.Relays,
		PrivateKey: cfg.LedgerPrivateKey,
	}, log.Named("relay"))
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	eng := engine.New(store, pool, engine.Config{
		LedgerPubKey:      cfg.LedgerPublicKey,
		MinterPubKey:      cfg.MinterPublicKey,
		MaxRetries:        cfg.MaxRetries,
		RepublishInterval: cfg.RepublishInterval,
	}, log.Named("engine"), engine.NewMetrics(registry))

	ing := ingest.New(eng, cfg.LedgerPublicKey, log.Named("ingest"))
	ing.Attach(ctx, pool)

	httpServer := newHTTPServer(cfg.Port, store, pool, registry)

	log.Info("starting ledger daemon",
		zap.String("ledger", cfg.LedgerPublicKey),
		zap.Strings("relays", cfg.Relays),
		zap.Int("port", cfg.Port))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return pool.Run(gctx)
	})
	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	err = g.Wait()

	log.Info("draining in-flight requests")
	ing.Drain()
	eng.Close()

	if err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func newHTTPServer(port int, store ledgerdb.RepositoryManager, pool *relay.Pool, registry *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, `{"status":"degraded","database":"unreachable","relays":%d}`, pool.Connected())
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok","relays":%d}`, pool.Connected())
	})

	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
