package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/meshgate/meshgate/internal/admission"
	"github.com/meshgate/meshgate/internal/config"
	gwrouter "github.com/meshgate/meshgate/internal/gateway"
	"github.com/meshgate/meshgate/internal/httpapi"
	"github.com/meshgate/meshgate/internal/mesh"
	"github.com/meshgate/meshgate/internal/metrics"
	"github.com/meshgate/meshgate/internal/permissions"
	"github.com/meshgate/meshgate/internal/subscriptions"
	"github.com/meshgate/meshgate/pkg/schema"
)

const (
	// Application info
	appName    = "MeshGate"
	appVersion = "0.1.0"
)

func main() {
	// Command-line flags
	var (
		configPath  = flag.String("config", "meshgate.yaml", "Path to YAML configuration file")
		listenAddr  = flag.String("listen", "", "Listen address override (e.g. :8080)")
		noAuth      = flag.Bool("no-auth", false, "Disable authentication (development only)")
		logLevel    = flag.String("log-level", "info", "Log level: debug, info, warn, error")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	// Handle version flag
	if *showVersion {
		fmt.Printf("%s v%s\n", appName, appVersion)
		os.Exit(0)
	}

	// Configure logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	logger := newLogger(*logLevel)
	slog.SetDefault(logger)

	log.Printf("🚀 Starting %s v%s", appName, appVersion)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}
	if *listenAddr != "" {
		cfg.Gateway.Listen = *listenAddr
	}
	if *noAuth {
		cfg.Gateway.NoAuth = true
	}

	log.Printf("📋 Gateway: %s", cfg.Gateway.Name)
	log.Printf("🔌 Listen: %s", cfg.Gateway.Listen)
	if cfg.Gateway.NoAuth {
		log.Printf("⚠️  Authentication disabled (development mode)")
	}

	// Build the schema registry from configured topics
	descriptors, err := cfg.Descriptors()
	if err != nil {
		log.Fatalf("❌ Invalid topic configuration: %v", err)
	}
	registry, err := schema.NewRegistry(descriptors)
	if err != nil {
		log.Fatalf("❌ Failed to build schema registry: %v", err)
	}
	log.Printf("📚 Topics: %d", registry.Len())

	// Prometheus registry with process and Go runtime collectors
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	sink := metrics.NewPrometheusSink(promReg)

	// Assemble the gateway components
	perms := permissions.NewStore(cfg.Grants())
	limiter := admission.NewController(cfg.AdmissionConfig(), logger)

	participant := mesh.NewLoopbackParticipant()
	adapter := mesh.NewAdapter(participant, sink, logger)
	adapter.SetOpTimeout(cfg.OpTimeout())
	defer func() {
		log.Printf("🛑 Closing mesh adapter...")
		if err := adapter.Close(); err != nil {
			log.Printf("⚠️  Error closing mesh adapter: %v", err)
		}
	}()

	subs := subscriptions.NewRegistry(adapter, registry, sink, logger)
	defer subs.Shutdown()

	router := gwrouter.NewRouter(perms, limiter, adapter, subs, registry, sink, logger,
		gwrouter.WithMaxSamplesPerRead(cfg.Performance.MaxSamplesPerRead))

	// HTTP API server
	server := httpapi.NewServer(router, limiter, subs, registry, httpapi.Config{
		Listen:    cfg.Gateway.Listen,
		SecretKey: cfg.Gateway.SecretKey,
		NoAuth:    cfg.Gateway.NoAuth,
		Metrics:   promReg,
		Logger:    logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		log.Printf("▶️  HTTP API listening on %s", cfg.Gateway.Listen)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			log.Printf("❌ HTTP server error: %v", err)
			cancel()
		}
	}()

	// Set up graceful shutdown
	setupGracefulShutdown(cancel, server)

	log.Printf("✅ %s started successfully!", appName)
	log.Printf("💡 Use Ctrl+C to shutdown gracefully")

	// Wait for shutdown signal
	<-ctx.Done()
	log.Printf("👋 %s stopped", appName)
}

// newLogger builds the process-wide structured logger
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// setupGracefulShutdown configures signal handling for graceful shutdown
func setupGracefulShutdown(cancel context.CancelFunc, server *httpapi.Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	go func() {
		sig := <-sigChan
		log.Printf("🛑 Received signal %v, shutting down gracefully...", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Stop(shutdownCtx); err != nil {
			log.Printf("⚠️  Error during graceful stop: %v", err)
		}

		cancel()
	}()
}
