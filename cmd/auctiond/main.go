package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"auctionhouse/config"
	"auctionhouse/core"
	"auctionhouse/core/events"
	"auctionhouse/crypto"
	"auctionhouse/observability/logging"
	"auctionhouse/observability/metrics"
	telemetry "auctionhouse/observability/otel"
	"auctionhouse/rpc"
	"auctionhouse/storage"
)

const envOverride = "AUCTION_ENV"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	allowMigrate := flag.Bool("allow-migrate", false, "Allow starting with a mismatched state schema (manual migrations only)")
	flag.Parse()

	if err := run(*configFile, *allowMigrate); err != nil {
		fmt.Fprintf(os.Stderr, "auctiond: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile string, allowMigrate bool) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	env := cfg.Log.Env
	if override := strings.TrimSpace(os.Getenv(envOverride)); override != "" {
		env = override
	}
	logger, logCloser := logging.Setup("auctiond", env, logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer logCloser.Close()

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "auctiond",
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Traces:      cfg.Telemetry.Traces,
		Metrics:     cfg.Telemetry.Metrics,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	recorder := events.NewRecorder(cfg.RPC.EventHistory)
	auctionMetrics := metrics.Auction()
	exec := core.NewExecutor(db, core.Options{
		ProgramID:      []byte(cfg.ProgramID),
		RecordDeposit:  cfg.RecordDeposit,
		AccountDeposit: cfg.AccountDeposit,
		Logger:         logger,
		Emitter:        recorder,
		Metrics:        auctionMetrics,
	})

	if err := exec.EnsureSchema(allowMigrate); err != nil {
		return err
	}
	reserves, err := cfg.GenesisReserves()
	if err != nil {
		return err
	}
	applied, err := exec.InitGenesis(reserves)
	if err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	if applied {
		logger.Info("genesis reserves applied", slog.Int("allocations", len(reserves)))
	}

	control := crypto.AddressFromRaw(crypto.IdentityPrefix, exec.ControlIdentity())
	logger.Info("auction program ready",
		slog.String("programId", cfg.ProgramID),
		slog.String("control", control.String()),
		slog.String("dataDir", cfg.DataDir))

	server := rpc.NewServer(exec, rpc.ServerConfig{
		RateLimitPerSecond: cfg.RPC.RateLimitPerSecond,
		RateLimitBurst:     cfg.RPC.RateLimitBurst,
		MaxBodyBytes:       cfg.RPC.MaxBodyBytes,
		TrustedProxies:     append([]string{}, cfg.RPC.TrustedProxies...),
		TrustProxyHeaders:  cfg.RPC.TrustProxyHeaders,
		Events:             recorder,
		Logger:             logger,
		Metrics:            auctionMetrics,
	})
	httpServer := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           telemetry.Middleware(server.Handler(), "auction-rpc"),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Duration(cfg.RPC.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.RPC.WriteTimeoutSeconds) * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rpc.Serve(ctx, httpServer, logger)
}
