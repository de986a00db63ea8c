package block

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/element-scan/holders-indexer/internal/adapter"
	"github.com/element-scan/holders-indexer/internal/logger"
)

// headInfo represents a cached block head observation
type headInfo struct {
	Number    uint64
	FetchedAt time.Time
}

// HeadProvider provides cached access to the latest block number.
// It reduces RPC calls to the provider by caching the head for a
// configurable TTL period.
type HeadProvider interface {
	// GetLatestBlock returns the latest block number, potentially from cache
	GetLatestBlock(ctx context.Context) (uint64, error)
}

// HeadFetcher fetches the latest block from the chain
type HeadFetcher interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// Config holds configuration for the HeadProvider
type Config struct {
	// TTL is how long to cache the block number
	TTL time.Duration

	// StaleWindow is how long to keep serving stale data if fetching fails.
	// If the cached data is older than this and the fetch fails, return error.
	StaleWindow time.Duration
}

type headProvider struct {
	fetcher HeadFetcher
	config  Config
	clock   adapter.Clock

	mu   sync.RWMutex
	head *headInfo
}

// NewHeadProvider creates a new HeadProvider with TTL-based caching
func NewHeadProvider(fetcher HeadFetcher, config Config, clock adapter.Clock) HeadProvider {
	return &headProvider{
		fetcher: fetcher,
		config:  config,
		clock:   clock,
	}
}

// GetLatestBlock returns the latest block number, using cache if valid
func (p *headProvider) GetLatestBlock(ctx context.Context) (uint64, error) {
	p.mu.RLock()
	cached := p.head
	p.mu.RUnlock()

	now := p.clock.Now()

	if cached != nil && now.Sub(cached.FetchedAt) < p.config.TTL {
		return cached.Number, nil
	}

	number, err := p.fetcher.BlockNumber(ctx)
	if err != nil {
		if cached != nil && now.Sub(cached.FetchedAt) < p.config.StaleWindow {
			logger.DebugCtx(ctx, "using stale block head", zap.Uint64("block_number", cached.Number))
			return cached.Number, nil
		}
		return 0, fmt.Errorf("fetch latest block with no valid cache: %w", err)
	}

	p.mu.Lock()
	p.head = &headInfo{Number: number, FetchedAt: now}
	p.mu.Unlock()

	return number, nil
}
