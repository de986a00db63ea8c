package holders

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/element-scan/holders-indexer/internal/domain"
	"github.com/element-scan/holders-indexer/internal/registry"
	"github.com/element-scan/holders-indexer/internal/rpc"
)

// TokenAttributes holds per-token on-chain attributes. A token with no
// Tiers entry failed tier resolution and is excluded from aggregation.
// Shares and Locked stay in base units until the aggregation boundary.
type TokenAttributes struct {
	Tiers  map[uint64]int
	Shares map[uint64]*big.Int
	Locked map[uint64]*big.Int
}

// NewTokenAttributes returns an empty attribute set
func NewTokenAttributes() *TokenAttributes {
	return &TokenAttributes{
		Tiers:  make(map[uint64]int),
		Shares: make(map[uint64]*big.Int),
		Locked: make(map[uint64]*big.Int),
	}
}

// AttributeFetcher reads per-token attributes (tier, and optionally
// shares and locked amounts) through the contract's configured getters
type AttributeFetcher struct {
	gw        rpc.Gateway
	cfg       *registry.ContractConfig
	tracker   *Tracker
	chunkSize int
}

// NewAttributeFetcher creates a fetcher for one contract
func NewAttributeFetcher(gw rpc.Gateway, cfg *registry.ContractConfig, tracker *Tracker, chunkSize int) *AttributeFetcher {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	return &AttributeFetcher{gw: gw, cfg: cfg, tracker: tracker, chunkSize: chunkSize}
}

// Fetch resolves attributes for the given live tokens. Tiers are immutable
// on-chain, so tokens already present in prev keep their tier without a
// refetch; shares and locked amounts can change between runs and are
// always re-read. A token whose tier call fails or returns a value outside
// the configured range gets an error entry and no tier, which excludes it
// downstream.
func (f *AttributeFetcher) Fetch(ctx context.Context, tokens []uint64, prev *TokenAttributes) (*TokenAttributes, error) {
	attrs := NewTokenAttributes()

	var missingTiers []uint64
	for _, id := range tokens {
		if prev != nil {
			if tier, ok := prev.Tiers[id]; ok {
				attrs.Tiers[id] = tier
				continue
			}
		}
		missingTiers = append(missingTiers, id)
	}

	phaseTotal := len(missingTiers)
	if f.cfg.SharesFunction != "" {
		phaseTotal += len(tokens)
	}
	if f.cfg.LockedFunction != "" {
		phaseTotal += len(tokens)
	}
	f.tracker.StartPhase(ctx, domain.StepFetchingTiers, phaseTotal)

	if len(missingTiers) > 0 {
		tierABI, err := rpc.UintGetterABI(f.cfg.TierFunction)
		if err != nil {
			return nil, err
		}
		err = f.fetchUintPerToken(ctx, tierABI, f.cfg.TierFunction, missingTiers, func(ctx context.Context, id uint64, value *big.Int) {
			tier := int(value.Int64())
			if !value.IsInt64() || !f.cfg.TierValid(tier) {
				f.tracker.RecordError(ctx, domain.PhaseFetchTiers, &id, "",
					fmt.Errorf("tier %s outside range [%d, %d], token excluded", value, f.cfg.MinTier, f.cfg.MaxTier))
				return
			}
			attrs.Tiers[id] = tier
		})
		if err != nil {
			return nil, err
		}
	}

	if f.cfg.SharesFunction != "" {
		sharesABI, err := rpc.UintGetterABI(f.cfg.SharesFunction)
		if err != nil {
			return nil, err
		}
		err = f.fetchUintPerToken(ctx, sharesABI, f.cfg.SharesFunction, tokens, func(_ context.Context, id uint64, value *big.Int) {
			attrs.Shares[id] = value
		})
		if err != nil {
			return nil, err
		}
	}

	if f.cfg.LockedFunction != "" {
		lockedABI, err := rpc.UintGetterABI(f.cfg.LockedFunction)
		if err != nil {
			return nil, err
		}
		err = f.fetchUintPerToken(ctx, lockedABI, f.cfg.LockedFunction, tokens, func(_ context.Context, id uint64, value *big.Int) {
			attrs.Locked[id] = value
		})
		if err != nil {
			return nil, err
		}
	}

	return attrs, nil
}

// fetchUintPerToken batches method(tokenId) reads and feeds decoded values
// to apply. Per-token failures become error entries; only batch-level
// errors abort the fetch.
func (f *AttributeFetcher) fetchUintPerToken(
	ctx context.Context,
	parsed abi.ABI,
	method string,
	tokens []uint64,
	apply func(ctx context.Context, id uint64, value *big.Int),
) error {
	target := common.HexToAddress(f.cfg.Address)

	for offset := 0; offset < len(tokens); offset += f.chunkSize {
		end := min(offset+f.chunkSize, len(tokens))
		chunk := tokens[offset:end]

		calls := make([]rpc.Call, len(chunk))
		for i, id := range chunk {
			callData, err := parsed.Pack(method, new(big.Int).SetUint64(id))
			if err != nil {
				return fmt.Errorf("pack %s(%d): %w", method, id, err)
			}
			calls[i] = rpc.Call{Target: target, CallData: callData}
		}

		results, err := f.gw.Multicall(ctx, calls)
		if err != nil {
			return fmt.Errorf("%s batch at %d: %w", method, chunk[0], err)
		}

		for i, result := range results {
			id := chunk[i]
			if !result.Success {
				f.tracker.RecordError(ctx, domain.PhaseFetchTiers, &id, "",
					fmt.Errorf("%s call failed", method))
				continue
			}
			value, err := rpc.UnpackUint(parsed, method, result.ReturnData)
			if err != nil {
				f.tracker.RecordError(ctx, domain.PhaseFetchTiers, &id, "", err)
				continue
			}
			apply(ctx, id, value)
		}

		f.tracker.AddProcessed(ctx, len(chunk))
	}

	return nil
}
