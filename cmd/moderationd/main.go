// Moderationd hosts the chat moderation decision and audit pipeline: it
// polls the live message feed, applies automated verdicts, maintains the
// flagged and deleted sets, and keeps the append-only moderation history.
// A small read-only HTTP surface exposes the derived review queue, the
// merged history, and prometheus metrics.
//
// Configuration is loaded from environment variables. See internal/config.
//
// Usage:
//
//	# Start with defaults
//	moderationd
//
//	# Configure via environment
//	MODERATIOND_BACKEND_BASE_URL=http://localhost:8000 MODERATIOND_AUTOMOD_ENABLED=true moderationd
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/bloomlabs/moderationd/internal/backend"
	"github.com/bloomlabs/moderationd/internal/config"
	"github.com/bloomlabs/moderationd/internal/flagging"
	"github.com/bloomlabs/moderationd/internal/history"
	"github.com/bloomlabs/moderationd/internal/ingest"
	"github.com/bloomlabs/moderationd/internal/logging"
	"github.com/bloomlabs/moderationd/internal/metrics"
	"github.com/bloomlabs/moderationd/internal/moderation"
	"github.com/bloomlabs/moderationd/internal/server"
	"github.com/bloomlabs/moderationd/internal/services"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  moderationd           Start the moderation daemon\n")
			fmt.Fprintf(os.Stderr, "  moderationd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("moderationd by Bloom Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run wires the pipeline and blocks until the context is cancelled.
//
// Wiring order:
//  1. Configuration and logger
//  2. Prometheus registry and pipeline counters
//  3. Backend client (live feed, fallback moderation, flag store)
//  4. Stores: history ledger, flag manager, moderation processor
//  5. Live ingestion loop
//  6. Ops HTTP surface
//
// All stores are constructed here, once per session, and passed down
// explicitly; there are no package-level singletons.
func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	promRegistry := prometheus.NewRegistry()
	pm := metrics.New(promRegistry)

	client, err := backend.NewClient(backend.Config{
		BaseURL:       cfg.Backend.BaseURL,
		Timeout:       cfg.Backend.Timeout,
		FallbackRPS:   cfg.Backend.FallbackRPS,
		FallbackBurst: cfg.Backend.FallbackBurst,
	}, logger.Named("backend"))
	if err != nil {
		return fmt.Errorf("create backend client: %w", err)
	}

	ledger := history.NewLedger(logger.Named("history"))
	flags := flagging.NewManager(client, pm, logger.Named("flagging"))
	processor := moderation.NewProcessor(client, ledger, flags, pm, logger.Named("moderation"))
	if cfg.AutoMod.Enabled {
		processor.Enable()
	}

	poller := ingest.NewPoller(client, processor, &ingest.Config{
		Interval: cfg.Ingest.Interval,
		Limit:    cfg.Ingest.Limit,
	}, pm, logger.Named("ingest"))

	registry := services.NewRegistry(services.Options{
		Processor: processor,
		Flags:     flags,
		History:   ledger,
		Backend:   client,
		Poller:    poller,
	})

	srv := server.NewServer(cfg, registry, promRegistry, logger.Named("server"))

	poller.Start(ctx)
	defer poller.Stop()

	logger.Info("moderationd started",
		zap.Int("port", cfg.Server.Port),
		zap.String("backend", cfg.Backend.BaseURL),
		zap.Bool("automod", cfg.AutoMod.Enabled),
		zap.String("version", version))

	return srv.Start(ctx)
}
