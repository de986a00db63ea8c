package holders_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/element-scan/holders-indexer/internal/adapter"
	"github.com/element-scan/holders-indexer/internal/block"
	"github.com/element-scan/holders-indexer/internal/cache"
	"github.com/element-scan/holders-indexer/internal/domain"
	"github.com/element-scan/holders-indexer/internal/holders"
	"github.com/element-scan/holders-indexer/internal/logger"
	"github.com/element-scan/holders-indexer/internal/registry"
)

func TestMain(m *testing.M) {
	// Initialize logger for tests
	if err := logger.Initialize(logger.Config{Debug: false}); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// populatorFixture wires a populator over the chain simulator
type populatorFixture struct {
	sim   *chainSim
	store cache.Store
	pop   *holders.Populator
}

func setupPopulator(t *testing.T) *populatorFixture {
	t.Helper()

	sim := newChainSim()
	sim.supply = 3
	sim.owners[1] = walletA
	sim.owners[2] = walletB
	sim.owners[3] = walletB
	sim.tiers[1] = 1
	sim.tiers[2] = 2
	sim.tiers[3] = 1
	sim.rewards[walletA] = eth(2)
	sim.rewards[walletB] = eth(5)

	reg, err := registry.New([]registry.ContractConfig{simContract()})
	require.NoError(t, err)

	store, err := cache.NewMemoryStore(64)
	require.NoError(t, err)

	clock := adapter.NewClock()
	head := block.NewHeadProvider(sim, block.Config{TTL: 0, StaleWindow: time.Minute}, clock)

	pop := holders.NewPopulator(holders.Config{
		Timeout:   5 * time.Second,
		ChunkSize: 2,
	}, reg, sim, head, store, clock)

	return &populatorFixture{sim: sim, store: store, pop: pop}
}

func TestPopulator_FullRun(t *testing.T) {
	f := setupPopulator(t)
	ctx := context.Background()

	require.NoError(t, f.pop.Populate(ctx, "genesis", false))

	snapshot, err := f.pop.Snapshot(ctx, "genesis")
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	require.Len(t, snapshot.Holders, 2)

	b := snapshot.Holders[0]
	assert.Equal(t, addrB, b.Wallet)
	assert.Equal(t, 1, b.Rank)
	assert.InDelta(t, 110, b.MultiplierSum, 1e-9)
	assert.InDelta(t, 5.0, b.ClaimableRewards, 1e-9)

	a := snapshot.Holders[1]
	assert.Equal(t, addrA, a.Wallet)
	assert.Equal(t, 2, a.Rank)
	assert.InDelta(t, 2.0, a.ClaimableRewards, 1e-9)

	assert.Equal(t, uint64(200), snapshot.LastProcessedBlock)

	state, err := f.pop.Progress(ctx, "genesis")
	require.NoError(t, err)
	assert.False(t, state.IsPopulating)
	assert.Equal(t, domain.StepCompleted, state.Progress.Step)
	assert.Equal(t, 2, state.TotalOwners)
	assert.Empty(t, state.Progress.ErrorLog)
}

func TestPopulator_ConcurrentRunsRejected(t *testing.T) {
	f := setupPopulator(t)
	ctx := context.Background()

	gate := make(chan struct{})
	f.sim.headGate = gate

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- f.pop.Populate(ctx, "genesis", false)
	}()

	// wait for the first run to take the guard
	require.Eventually(t, func() bool {
		return f.pop.IsPopulating("genesis")
	}, time.Second, time.Millisecond)

	err := f.pop.Populate(ctx, "genesis", false)
	assert.ErrorIs(t, err, domain.ErrPopulationInProgress)

	close(gate)
	require.NoError(t, <-firstDone)
	assert.False(t, f.pop.IsPopulating("genesis"))
}

func TestPopulator_FailureClearsGuardAndKeepsSnapshot(t *testing.T) {
	f := setupPopulator(t)
	ctx := context.Background()

	require.NoError(t, f.pop.Populate(ctx, "genesis", false))

	f.sim.supplyErr = errors.New("execution reverted")
	err := f.pop.Populate(ctx, "genesis", true)
	require.Error(t, err)

	// the guard is released and the last good snapshot survives
	assert.False(t, f.pop.IsPopulating("genesis"))

	snapshot, err := f.pop.Snapshot(ctx, "genesis")
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Len(t, snapshot.Holders, 2)

	state, err := f.pop.Progress(ctx, "genesis")
	require.NoError(t, err)
	assert.Equal(t, domain.StepError, state.Progress.Step)
	assert.NotEmpty(t, state.Progress.Error)
}

func TestPopulator_IncrementalRun(t *testing.T) {
	f := setupPopulator(t)
	ctx := context.Background()

	require.NoError(t, f.pop.Populate(ctx, "genesis", false))
	require.Equal(t, 1, f.sim.supplyCalls)

	// token 1 moves to a fresh wallet after the first snapshot
	f.sim.mu.Lock()
	f.sim.logs = append(f.sim.logs, transferLog(205, 0, walletA, walletC, 1))
	f.sim.head = 210
	f.sim.mu.Unlock()

	require.NoError(t, f.pop.Populate(ctx, "genesis", false))

	// the second run replayed events instead of rescanning ownership
	assert.Equal(t, 1, f.sim.supplyCalls)

	snapshot, err := f.pop.Snapshot(ctx, "genesis")
	require.NoError(t, err)
	require.Len(t, snapshot.Holders, 2)
	assert.Equal(t, uint64(210), snapshot.LastProcessedBlock)

	wallets := []string{snapshot.Holders[0].Wallet, snapshot.Holders[1].Wallet}
	assert.Contains(t, wallets, addrB)
	assert.Contains(t, wallets, addrC)
	assert.NotContains(t, wallets, addrA)
}

func TestPopulator_RewardFailureIsRecoverable(t *testing.T) {
	f := setupPopulator(t)
	ctx := context.Background()

	f.sim.rewardFail[walletB] = true

	require.NoError(t, f.pop.Populate(ctx, "genesis", false))

	snapshot, err := f.pop.Snapshot(ctx, "genesis")
	require.NoError(t, err)
	require.Len(t, snapshot.Holders, 2)
	assert.Zero(t, snapshot.Holders[0].ClaimableRewards)

	state, err := f.pop.Progress(ctx, "genesis")
	require.NoError(t, err)
	assert.Equal(t, domain.StepCompleted, state.Progress.Step)
	require.NotEmpty(t, state.Progress.ErrorLog)
	assert.Equal(t, domain.PhaseFetchRewards, state.Progress.ErrorLog[0].Phase)
	assert.Equal(t, addrB, state.Progress.ErrorLog[0].Wallet)
}

func TestPopulator_HydratesFromStore(t *testing.T) {
	f := setupPopulator(t)
	ctx := context.Background()

	require.NoError(t, f.pop.Populate(ctx, "genesis", false))

	// a fresh populator over the same store serves the persisted snapshot
	reg, err := registry.New([]registry.ContractConfig{simContract()})
	require.NoError(t, err)
	clock := adapter.NewClock()
	head := block.NewHeadProvider(f.sim, block.Config{TTL: 0, StaleWindow: time.Minute}, clock)
	fresh := holders.NewPopulator(holders.Config{Timeout: 5 * time.Second, ChunkSize: 2},
		reg, f.sim, head, f.store, clock)

	snapshot, err := fresh.Snapshot(ctx, "genesis")
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Len(t, snapshot.Holders, 2)
}

func TestPopulator_UnknownContract(t *testing.T) {
	f := setupPopulator(t)
	err := f.pop.Populate(context.Background(), "unknown", false)
	assert.ErrorIs(t, err, domain.ErrContractNotFound)
}
