package holders_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/element-scan/holders-indexer/internal/adapter"
	"github.com/element-scan/holders-indexer/internal/domain"
	"github.com/element-scan/holders-indexer/internal/holders"
	"github.com/element-scan/holders-indexer/internal/registry"
)

func setupService(t *testing.T) (*populatorFixture, *holders.Service) {
	t.Helper()
	f := setupPopulator(t)

	reg, err := registry.New([]registry.ContractConfig{simContract()})
	require.NoError(t, err)

	return f, holders.NewService(f.pop, reg, adapter.NewClock(), 0)
}

func TestService_ListHolders_PopulatesOnMiss(t *testing.T) {
	_, svc := setupService(t)

	page, err := svc.ListHolders(context.Background(), "genesis", 1, 10, false)
	require.NoError(t, err)

	assert.Equal(t, "genesis", page.Contract)
	require.Len(t, page.Holders, 2)
	assert.Equal(t, addrB, page.Holders[0].Wallet)
	assert.Equal(t, 2, page.TotalHolders)
	assert.Equal(t, 1, page.TotalPages)
	assert.Equal(t, 3, page.TotalTokens)
	assert.Equal(t, 3, page.Summary.TotalLive)
}

func TestService_ListHolders_Pagination(t *testing.T) {
	_, svc := setupService(t)
	ctx := context.Background()

	page, err := svc.ListHolders(ctx, "genesis", 1, 1, false)
	require.NoError(t, err)
	require.Len(t, page.Holders, 1)
	assert.Equal(t, addrB, page.Holders[0].Wallet)
	assert.Equal(t, 2, page.TotalPages)

	page, err = svc.ListHolders(ctx, "genesis", 2, 1, false)
	require.NoError(t, err)
	require.Len(t, page.Holders, 1)
	assert.Equal(t, addrA, page.Holders[0].Wallet)

	// a page past the end is empty, not an error
	page, err = svc.ListHolders(ctx, "genesis", 5, 1, false)
	require.NoError(t, err)
	assert.Empty(t, page.Holders)
}

func TestService_ListHolders_UnknownContract(t *testing.T) {
	_, svc := setupService(t)

	_, err := svc.ListHolders(context.Background(), "unknown", 1, 10, false)
	assert.ErrorIs(t, err, domain.ErrContractNotFound)
}

func TestService_GetHolder(t *testing.T) {
	_, svc := setupService(t)
	ctx := context.Background()

	// lookup is case-insensitive on the wallet address
	holder, err := svc.GetHolder(ctx, "genesis", "0xBBBB00000000000000000000000000000000BBBB", false)
	require.NoError(t, err)
	assert.Equal(t, addrB, holder.Wallet)
	assert.Equal(t, 1, holder.Rank)

	_, err = svc.GetHolder(ctx, "genesis", "0xdddd00000000000000000000000000000000dddd", false)
	assert.ErrorIs(t, err, domain.ErrHolderNotFound)

	_, err = svc.GetHolder(ctx, "genesis", "not-an-address", false)
	assert.ErrorIs(t, err, domain.ErrHolderNotFound)
}

func TestService_Progress(t *testing.T) {
	_, svc := setupService(t)
	ctx := context.Background()

	_, err := svc.ListHolders(ctx, "genesis", 1, 10, false)
	require.NoError(t, err)

	progress, err := svc.Progress(ctx, "genesis")
	require.NoError(t, err)
	assert.Equal(t, "genesis", progress.Contract)
	assert.False(t, progress.IsPopulating)
	assert.Equal(t, domain.StepCompleted, progress.Step)
	assert.Equal(t, 2, progress.TotalOwners)
}

func TestService_Trigger(t *testing.T) {
	f, svc := setupService(t)

	gate := make(chan struct{})
	f.sim.headGate = gate

	started, err := svc.Trigger("genesis", false)
	require.NoError(t, err)
	assert.True(t, started)

	require.Eventually(t, func() bool {
		return f.pop.IsPopulating("genesis")
	}, time.Second, time.Millisecond)

	// a second trigger while the run is in flight reports it
	started, err = svc.Trigger("genesis", false)
	require.NoError(t, err)
	assert.False(t, started)

	close(gate)
	require.NoError(t, f.pop.Wait(context.Background(), "genesis"))

	_, err = svc.Trigger("unknown", false)
	assert.ErrorIs(t, err, domain.ErrContractNotFound)
}

func TestService_RefreshServesLatestData(t *testing.T) {
	f, svc := setupService(t)
	ctx := context.Background()

	_, err := svc.ListHolders(ctx, "genesis", 1, 10, false)
	require.NoError(t, err)

	// a transfer lands after the first snapshot
	f.sim.mu.Lock()
	f.sim.logs = append(f.sim.logs, transferLog(205, 0, walletA, walletC, 1))
	f.sim.head = 210
	f.sim.mu.Unlock()

	page, err := svc.ListHolders(ctx, "genesis", 1, 10, true)
	require.NoError(t, err)

	wallets := make([]string, 0, len(page.Holders))
	for _, holder := range page.Holders {
		wallets = append(wallets, holder.Wallet)
	}
	assert.Contains(t, wallets, addrC)
	assert.NotContains(t, wallets, addrA)
}
