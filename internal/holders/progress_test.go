package holders_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/element-scan/holders-indexer/internal/adapter"
	"github.com/element-scan/holders-indexer/internal/cache"
	"github.com/element-scan/holders-indexer/internal/domain"
	"github.com/element-scan/holders-indexer/internal/holders"
)

func TestTracker_RunLifecycle(t *testing.T) {
	store, err := cache.NewMemoryStore(16)
	require.NoError(t, err)
	tracker := holders.NewTracker("genesis", store, adapter.NewClock(), time.Hour)
	ctx := context.Background()

	tracker.Begin(ctx)
	state := tracker.State()
	assert.True(t, state.IsPopulating)
	assert.Equal(t, domain.StepFetchingSupply, state.Progress.Step)

	tracker.StartPhase(ctx, domain.StepFetchingOwnership, 100)
	tracker.AddProcessed(ctx, 40)
	state = tracker.State()
	assert.Equal(t, domain.StepFetchingOwnership, state.Progress.Step)
	assert.Equal(t, 40, state.Progress.ProcessedNFTs)
	assert.InDelta(t, 40.0, state.Progress.Percentage(), 1e-9)

	// starting the next phase resets the counters
	tracker.StartPhase(ctx, domain.StepFetchingTiers, 50)
	state = tracker.State()
	assert.Zero(t, state.Progress.ProcessedNFTs)
	assert.Equal(t, 50, state.Progress.TotalNFTs)

	tokenID := uint64(7)
	tracker.RecordError(ctx, domain.PhaseFetchTiers, &tokenID, "", errors.New("tier call failed"))

	tracker.Complete(ctx, domain.GlobalMetrics{TotalLive: 5}, 1234, 3)
	state = tracker.State()
	assert.False(t, state.IsPopulating)
	assert.Equal(t, domain.StepCompleted, state.Progress.Step)
	assert.Equal(t, uint64(1234), state.LastProcessedBlock)
	assert.Equal(t, 3, state.TotalOwners)
	assert.Equal(t, 5, state.Metrics.TotalLive)
	require.Len(t, state.Progress.ErrorLog, 1)
}

func TestTracker_FailClearsFlag(t *testing.T) {
	store, err := cache.NewMemoryStore(16)
	require.NoError(t, err)
	tracker := holders.NewTracker("genesis", store, adapter.NewClock(), time.Hour)
	ctx := context.Background()

	tracker.Begin(ctx)
	tracker.Fail(ctx, errors.New("head fetch failed"))

	state := tracker.State()
	assert.False(t, state.IsPopulating)
	assert.Equal(t, domain.StepError, state.Progress.Step)
	assert.Equal(t, "head fetch failed", state.Progress.Error)
}

func TestTracker_BeginResetsPreviousRun(t *testing.T) {
	store, err := cache.NewMemoryStore(16)
	require.NoError(t, err)
	tracker := holders.NewTracker("genesis", store, adapter.NewClock(), time.Hour)
	ctx := context.Background()

	tracker.Begin(ctx)
	tracker.RecordError(ctx, domain.PhaseFetchRewards, nil, addrA, errors.New("boom"))
	tracker.Fail(ctx, errors.New("boom"))

	tracker.Begin(ctx)
	state := tracker.State()
	assert.Empty(t, state.Progress.ErrorLog)
	assert.Empty(t, state.Progress.Error)
}

func TestTracker_LoadPersistedState(t *testing.T) {
	store, err := cache.NewMemoryStore(16)
	require.NoError(t, err)
	ctx := context.Background()
	clock := adapter.NewClock()

	tracker := holders.NewTracker("genesis", store, clock, time.Hour)
	tracker.Begin(ctx)
	tracker.Complete(ctx, domain.GlobalMetrics{TotalLive: 9}, 500, 4)

	restored := holders.NewTracker("genesis", store, clock, time.Hour)
	restored.Load(ctx)
	state := restored.State()
	assert.Equal(t, domain.StepCompleted, state.Progress.Step)
	assert.Equal(t, 9, state.Metrics.TotalLive)
	assert.Equal(t, 4, state.TotalOwners)
}

func TestTracker_LoadClearsInterruptedRun(t *testing.T) {
	store, err := cache.NewMemoryStore(16)
	require.NoError(t, err)
	ctx := context.Background()
	clock := adapter.NewClock()

	// a crashed process leaves IsPopulating set in the store
	interrupted := holders.NewTracker("genesis", store, clock, time.Hour)
	interrupted.Begin(ctx)

	restored := holders.NewTracker("genesis", store, clock, time.Hour)
	restored.Load(ctx)
	state := restored.State()
	assert.False(t, state.IsPopulating)
	assert.Equal(t, domain.StepError, state.Progress.Step)
	assert.NotEmpty(t, state.Progress.Error)
}
