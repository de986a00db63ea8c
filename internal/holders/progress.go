package holders

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/element-scan/holders-indexer/internal/adapter"
	"github.com/element-scan/holders-indexer/internal/cache"
	"github.com/element-scan/holders-indexer/internal/domain"
	"github.com/element-scan/holders-indexer/internal/logger"
)

// Tracker owns the per-contract population state and mirrors every change
// to the cache store so pollers see progress across process restarts.
// Persistence is best effort: a failed write is logged, never fatal.
type Tracker struct {
	mu    sync.Mutex
	key   string
	store cache.Store
	clock adapter.Clock
	ttl   time.Duration
	state domain.CacheState
}

// NewTracker creates a tracker for one contract key
func NewTracker(key string, store cache.Store, clock adapter.Clock, ttl time.Duration) *Tracker {
	return &Tracker{
		key:   key,
		store: store,
		clock: clock,
		ttl:   ttl,
		state: domain.CacheState{Progress: domain.ProgressState{Step: domain.StepIdle}},
	}
}

// Load hydrates the tracker from the store, if a prior state exists.
// A stale in-flight flag from a crashed process is cleared on load.
func (t *Tracker) Load(ctx context.Context) {
	var state domain.CacheState
	found, err := t.store.Get(ctx, cache.NamespaceState, t.key, &state)
	if err != nil {
		logger.WarnCtx(ctx, "load population state failed", zap.String("contract", t.key), zap.Error(err))
		return
	}
	if !found {
		return
	}
	if state.IsPopulating {
		state.IsPopulating = false
		state.Progress.Step = domain.StepError
		state.Progress.Error = "population interrupted by restart"
	}

	t.mu.Lock()
	t.state = state
	t.mu.Unlock()
}

// State returns a copy of the current state
func (t *Tracker) State() domain.CacheState {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.state
	if len(t.state.Progress.ErrorLog) > 0 {
		state.Progress.ErrorLog = append([]domain.ErrorEntry(nil), t.state.Progress.ErrorLog...)
	}
	return state
}

// Begin marks the start of a population run, resetting progress and the
// error log from any previous run
func (t *Tracker) Begin(ctx context.Context) {
	t.mu.Lock()
	t.state.IsPopulating = true
	t.state.Progress = domain.ProgressState{Step: domain.StepFetchingSupply}
	t.state.LastUpdated = t.clock.Now()
	t.mu.Unlock()
	t.persist(ctx)
}

// StartPhase moves the run to a new step and resets the progress counters
// against that phase's total
func (t *Tracker) StartPhase(ctx context.Context, step domain.PopulationStep, total int) {
	t.mu.Lock()
	t.state.Progress.Step = step
	t.state.Progress.ProcessedNFTs = 0
	t.state.Progress.TotalNFTs = total
	t.state.LastUpdated = t.clock.Now()
	t.mu.Unlock()
	t.persist(ctx)
}

// AddProcessed advances the progress counter after a processed chunk
func (t *Tracker) AddProcessed(ctx context.Context, n int) {
	t.mu.Lock()
	t.state.Progress.ProcessedNFTs += n
	t.state.LastUpdated = t.clock.Now()
	t.mu.Unlock()
	t.persist(ctx)
}

// RecordError appends a recoverable failure to the run's error log
func (t *Tracker) RecordError(ctx context.Context, phase string, tokenID *uint64, wallet string, err error) {
	entry := domain.ErrorEntry{
		Timestamp: t.clock.Now(),
		Phase:     phase,
		TokenID:   tokenID,
		Wallet:    wallet,
		Error:     err.Error(),
	}

	t.mu.Lock()
	t.state.Progress.ErrorLog = append(t.state.Progress.ErrorLog, entry)
	t.mu.Unlock()

	logger.WarnCtx(ctx, "recoverable population error",
		zap.String("contract", t.key),
		zap.String("phase", phase),
		zap.Any("token_id", tokenID),
		zap.String("wallet", wallet),
		zap.Error(err))
}

// Complete marks the run successful and records the result summary
func (t *Tracker) Complete(ctx context.Context, metrics domain.GlobalMetrics, lastBlock uint64, totalOwners int) {
	t.mu.Lock()
	t.state.IsPopulating = false
	t.state.Progress.Step = domain.StepCompleted
	t.state.Progress.Error = ""
	t.state.LastProcessedBlock = lastBlock
	t.state.TotalOwners = totalOwners
	t.state.Metrics = metrics
	t.state.LastUpdated = t.clock.Now()
	t.mu.Unlock()
	t.persist(ctx)
}

// Fail marks the run failed. Result fields from the last good run are
// left untouched so pollers still see the previous snapshot's summary.
func (t *Tracker) Fail(ctx context.Context, err error) {
	t.mu.Lock()
	t.state.IsPopulating = false
	t.state.Progress.Step = domain.StepError
	t.state.Progress.Error = err.Error()
	t.state.LastUpdated = t.clock.Now()
	t.mu.Unlock()
	t.persist(ctx)
}

func (t *Tracker) persist(ctx context.Context) {
	state := t.State()
	if err := t.store.Set(ctx, cache.NamespaceState, t.key, &state, t.ttl); err != nil {
		logger.WarnCtx(ctx, "persist population state failed", zap.String("contract", t.key), zap.Error(err))
	}
}
