package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/element-scan/holders-indexer/internal/adapter"
	"github.com/element-scan/holders-indexer/internal/api/server"
	"github.com/element-scan/holders-indexer/internal/block"
	"github.com/element-scan/holders-indexer/internal/cache"
	"github.com/element-scan/holders-indexer/internal/config"
	"github.com/element-scan/holders-indexer/internal/holders"
	"github.com/element-scan/holders-indexer/internal/logger"
	"github.com/element-scan/holders-indexer/internal/registry"
	"github.com/element-scan/holders-indexer/internal/rpc"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadAPIConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:     cfg.Debug,
		SentryDSN: cfg.SentryDSN,
		Tags: map[string]string{
			"service": "holders-api",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting holders indexer API")

	// Build the contract registry
	reg, err := registry.New(cfg.Contracts)
	if err != nil {
		logger.Fatal("Failed to build contract registry", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Loaded contract registry", zap.Strings("contracts", reg.Keys()))

	// Connect to the Ethereum RPC provider
	ethClient, err := adapter.NewEthClient(ctx, cfg.Ethereum.RPCURL)
	if err != nil {
		logger.Fatal("Failed to connect to Ethereum RPC", zap.Error(err))
	}

	gateway := rpc.NewGateway(rpc.Config{
		MaxWorkers:         cfg.RPC.MaxWorkers,
		MulticallBatchSize: cfg.RPC.MulticallBatchSize,
		LogChunkSize:       cfg.RPC.LogChunkSize,
		MaxRetries:         cfg.RPC.MaxRetries,
		InitialBackoff:     cfg.RPC.InitialBackoff,
		RequestsPerSecond:  cfg.RPC.RequestsPerSecond,
		Burst:              cfg.RPC.Burst,
		MulticallAddress:   cfg.Ethereum.MulticallAddress,
	}, ethClient)
	defer gateway.Close()

	clock := adapter.NewClock()

	head := block.NewHeadProvider(gateway, block.Config{
		TTL:         cfg.Ethereum.BlockHeadTTL,
		StaleWindow: cfg.Ethereum.BlockHeadStaleWindow,
	}, clock)

	// Pick the cache backend: Redis when configured, in-process otherwise
	var store cache.Store
	if cfg.Cache.RedisAddr != "" {
		redisClient := adapter.NewRedisClient(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		store, err = cache.NewRedisStore(ctx, redisClient)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err), zap.String("addr", cfg.Cache.RedisAddr))
		}
		logger.InfoCtx(ctx, "Connected to Redis", zap.String("addr", cfg.Cache.RedisAddr))
	} else {
		store, err = cache.NewMemoryStore(cfg.Cache.MaxEntries)
		if err != nil {
			logger.Fatal("Failed to create memory cache", zap.Error(err))
		}
		logger.WarnCtx(ctx, "Redis not configured, using in-process cache")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error(err)
		}
	}()

	populator := holders.NewPopulator(holders.Config{
		Timeout:    cfg.Population.Timeout,
		HoldersTTL: cfg.Cache.HoldersTTL,
		StateTTL:   cfg.Cache.StateTTL,
		ChunkSize:  cfg.Population.ChunkSize,
	}, reg, gateway, head, store, clock)

	service := holders.NewService(populator, reg, clock, cfg.Population.StaleAfter)

	// Create and start server
	srv := server.New(server.Config{
		Debug:        cfg.Debug,
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
		APIKeys:      cfg.Auth.APIKeys,
	}, service)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	case err := <-errCh:
		logger.ErrorCtx(ctx, err, zap.String("component", "server"))
		cancel()
	}

	// Create shutdown context with timeout (don't use canceled ctx)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	logger.InfoCtx(shutdownCtx, "Shutting down server...")

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	// Use non-context logger for final message since original ctx is canceled
	logger.Info("API server stopped")
}
