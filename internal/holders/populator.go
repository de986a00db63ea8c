package holders

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/element-scan/holders-indexer/internal/adapter"
	"github.com/element-scan/holders-indexer/internal/block"
	"github.com/element-scan/holders-indexer/internal/cache"
	"github.com/element-scan/holders-indexer/internal/domain"
	"github.com/element-scan/holders-indexer/internal/logger"
	"github.com/element-scan/holders-indexer/internal/registry"
	"github.com/element-scan/holders-indexer/internal/rpc"
)

// Config holds population pipeline settings shared by all contracts
type Config struct {
	// Timeout is the wall-clock bound for one population run
	Timeout time.Duration

	// HoldersTTL bounds how long a holders snapshot stays cached
	HoldersTTL time.Duration

	// StateTTL bounds how long population state stays cached
	StateTTL time.Duration

	// ChunkSize is the number of tokens or wallets processed per batch
	ChunkSize int
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = time.Minute
	}
	if c.HoldersTTL <= 0 {
		c.HoldersTTL = time.Hour
	}
	if c.StateTTL <= 0 {
		c.StateTTL = 24 * time.Hour
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 500
	}
}

// Snapshot is the cached result of a completed population run
type Snapshot struct {
	Holders            []domain.Holder      `json:"holders"`
	Metrics            domain.GlobalMetrics `json:"metrics"`
	LastProcessedBlock uint64               `json:"last_processed_block"`
	UpdatedAt          time.Time            `json:"updated_at"`
}

// contractRuntime is the in-memory state for one contract: the population
// guard, the last good snapshot, and the ledgers incremental runs build on
type contractRuntime struct {
	mu         sync.Mutex
	populating bool
	done       chan struct{}
	hydrated   bool

	tracker  *Tracker
	book     *Book
	attrs    *TokenAttributes
	snapshot *Snapshot
}

// Populator orchestrates population runs across all registered contracts.
// At most one run per contract is in flight; a second request while one
// is running returns ErrPopulationInProgress instead of starting another.
type Populator struct {
	cfg      Config
	registry *registry.Registry
	gw       rpc.Gateway
	head     block.HeadProvider
	store    cache.Store
	clock    adapter.Clock

	mu       sync.Mutex
	runtimes map[string]*contractRuntime
}

// NewPopulator creates the orchestrator
func NewPopulator(cfg Config, reg *registry.Registry, gw rpc.Gateway, head block.HeadProvider, store cache.Store, clock adapter.Clock) *Populator {
	cfg.applyDefaults()
	return &Populator{
		cfg:      cfg,
		registry: reg,
		gw:       gw,
		head:     head,
		store:    store,
		clock:    clock,
		runtimes: make(map[string]*contractRuntime),
	}
}

func (p *Populator) runtime(key string) (*contractRuntime, *registry.ContractConfig, error) {
	cfg, err := p.registry.Get(key)
	if err != nil {
		return nil, nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	rt, ok := p.runtimes[key]
	if !ok {
		rt = &contractRuntime{tracker: NewTracker(key, p.store, p.clock, p.cfg.StateTTL)}
		p.runtimes[key] = rt
	}
	return rt, cfg, nil
}

// hydrate loads persisted state for a contract once per process lifetime
// so restarts resume incremental scans instead of rescanning from scratch
func (p *Populator) hydrate(ctx context.Context, rt *contractRuntime, key string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.hydrated {
		return
	}
	rt.hydrated = true

	rt.tracker.Load(ctx)

	var book Book
	if found, err := p.store.Get(ctx, cache.NamespaceBook, key, &book); err != nil {
		logger.WarnCtx(ctx, "load ownership book failed", zap.String("contract", key), zap.Error(err))
	} else if found {
		rt.book = &book
	}

	var snapshot Snapshot
	if found, err := p.store.Get(ctx, cache.NamespaceHolders, key, &snapshot); err != nil {
		logger.WarnCtx(ctx, "load holders snapshot failed", zap.String("contract", key), zap.Error(err))
	} else if found {
		rt.snapshot = &snapshot
	}
}

// Populate runs the full pipeline for a contract: resolve ownership,
// fetch attributes and rewards, aggregate, and cache the result. force
// discards the existing ownership book and rescans from scratch. The
// in-flight guard makes concurrent calls fail fast with
// ErrPopulationInProgress; the guard is cleared on every exit path.
func (p *Populator) Populate(ctx context.Context, key string, force bool) error {
	rt, contractCfg, err := p.runtime(key)
	if err != nil {
		return err
	}
	p.hydrate(ctx, rt, key)

	rt.mu.Lock()
	if rt.populating {
		rt.mu.Unlock()
		return domain.ErrPopulationInProgress
	}
	rt.populating = true
	done := make(chan struct{})
	rt.done = done
	rt.mu.Unlock()

	defer func() {
		rt.mu.Lock()
		rt.populating = false
		rt.mu.Unlock()
		close(done)
	}()

	runCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	runID := uuid.NewString()
	runCtx = logger.WithFields(runCtx,
		zap.String("run_id", runID),
		zap.String("contract", key))

	started := p.clock.Now()
	logger.InfoCtx(runCtx, "population run started", zap.Bool("force", force))

	if err := p.run(runCtx, rt, contractCfg, key, force); err != nil {
		// the run context may already be dead here, persistence of the
		// failure state must still go through
		rt.tracker.Fail(context.WithoutCancel(runCtx), err)
		logger.ErrorCtx(runCtx, err,
			zap.Duration("elapsed", p.clock.Since(started)))
		return err
	}

	logger.InfoCtx(runCtx, "population run completed",
		zap.Duration("elapsed", p.clock.Since(started)))
	return nil
}

func (p *Populator) run(ctx context.Context, rt *contractRuntime, cfg *registry.ContractConfig, key string, force bool) error {
	tracker := rt.tracker
	tracker.Begin(ctx)

	head, err := p.head.GetLatestBlock(ctx)
	if err != nil {
		return fmt.Errorf("resolve head block: %w", err)
	}

	rt.mu.Lock()
	prevBook := rt.book
	prevAttrs := rt.attrs
	rt.mu.Unlock()

	resolver := NewResolver(p.gw, cfg, tracker, p.cfg.ChunkSize)

	var book *Book
	switch {
	case force || prevBook == nil || prevBook.LastProcessedBlock == 0:
		book, err = resolver.FullScan(ctx, head)
		if err != nil {
			return err
		}
		prevAttrs = nil
	case head <= prevBook.LastProcessedBlock:
		book = prevBook.Clone()
	default:
		book = prevBook.Clone()
		if err := resolver.ApplyTransfers(ctx, book, prevBook.LastProcessedBlock+1, head); err != nil {
			return err
		}
	}

	tracker.StartPhase(ctx, domain.StepInitializingHolders, book.LiveCount())
	walletTokens := book.WalletTokens()
	tokens := book.TokenIDs()

	fetcher := NewAttributeFetcher(p.gw, cfg, tracker, p.cfg.ChunkSize)
	attrs, err := fetcher.Fetch(ctx, tokens, prevAttrs)
	if err != nil {
		return err
	}

	rewardFetcher := NewRewardFetcher(p.gw, cfg, tracker, p.cfg.ChunkSize)
	rewards, err := rewardFetcher.Fetch(ctx, walletTokens)
	if err != nil {
		return err
	}

	tracker.StartPhase(ctx, domain.StepCalculatingMetrics, len(walletTokens))
	holders, metrics := Aggregate(cfg, book, attrs, rewards)

	snapshot := &Snapshot{
		Holders:            holders,
		Metrics:            metrics,
		LastProcessedBlock: book.LastProcessedBlock,
		UpdatedAt:          p.clock.Now(),
	}

	if err := p.store.Set(ctx, cache.NamespaceHolders, key, snapshot, p.cfg.HoldersTTL); err != nil {
		logger.WarnCtx(ctx, "persist holders snapshot failed", zap.Error(err))
	}
	// the book outlives the snapshot TTL so incremental scans survive
	// a cache expiry of the serving payload
	if err := p.store.Set(ctx, cache.NamespaceBook, key, book, 0); err != nil {
		logger.WarnCtx(ctx, "persist ownership book failed", zap.Error(err))
	}

	rt.mu.Lock()
	rt.book = book
	rt.attrs = attrs
	rt.snapshot = snapshot
	rt.mu.Unlock()

	tracker.Complete(ctx, metrics, book.LastProcessedBlock, len(holders))
	return nil
}

// Snapshot returns the last good snapshot for a contract, if any
func (p *Populator) Snapshot(ctx context.Context, key string) (*Snapshot, error) {
	rt, _, err := p.runtime(key)
	if err != nil {
		return nil, err
	}
	p.hydrate(ctx, rt, key)

	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.snapshot, nil
}

// Progress returns the current population state for a contract
func (p *Populator) Progress(ctx context.Context, key string) (domain.CacheState, error) {
	rt, _, err := p.runtime(key)
	if err != nil {
		return domain.CacheState{}, err
	}
	p.hydrate(ctx, rt, key)
	return rt.tracker.State(), nil
}

// IsPopulating reports whether a run is in flight for a contract
func (p *Populator) IsPopulating(key string) bool {
	p.mu.Lock()
	rt, ok := p.runtimes[key]
	p.mu.Unlock()
	if !ok {
		return false
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.populating
}

// Wait blocks until the in-flight run for a contract finishes, or the
// context expires. It returns immediately when no run is in flight.
func (p *Populator) Wait(ctx context.Context, key string) error {
	p.mu.Lock()
	rt, ok := p.runtimes[key]
	p.mu.Unlock()
	if !ok {
		return nil
	}

	rt.mu.Lock()
	done := rt.done
	populating := rt.populating
	rt.mu.Unlock()

	if !populating || done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
