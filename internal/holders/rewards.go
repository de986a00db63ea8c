package holders

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/element-scan/holders-indexer/internal/domain"
	"github.com/element-scan/holders-indexer/internal/registry"
	"github.com/element-scan/holders-indexer/internal/rpc"
)

// RewardFetcher reads claimable rewards through the contract's configured
// reward function. The three call shapes map to the ways staking vaults
// expose pending rewards: keyed by wallet, by a wallet's token id array,
// or by individual token.
type RewardFetcher struct {
	gw        rpc.Gateway
	cfg       *registry.ContractConfig
	tracker   *Tracker
	chunkSize int
}

// NewRewardFetcher creates a fetcher for one contract
func NewRewardFetcher(gw rpc.Gateway, cfg *registry.ContractConfig, tracker *Tracker, chunkSize int) *RewardFetcher {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	return &RewardFetcher{gw: gw, cfg: cfg, tracker: tracker, chunkSize: chunkSize}
}

// Fetch returns claimable rewards in base units keyed by wallet. A failed
// read never aborts the run: the wallet gets zero and an error entry.
func (f *RewardFetcher) Fetch(ctx context.Context, walletTokens map[string][]uint64) (map[string]*big.Int, error) {
	rewards := make(map[string]*big.Int, len(walletTokens))
	if f.cfg.RewardMode == registry.RewardModeNone || len(walletTokens) == 0 {
		f.tracker.StartPhase(ctx, domain.StepFetchingRewards, 0)
		return rewards, nil
	}

	wallets := make([]string, 0, len(walletTokens))
	for wallet := range walletTokens {
		wallets = append(wallets, wallet)
	}
	sort.Strings(wallets)

	switch f.cfg.RewardMode {
	case registry.RewardModeWallet:
		return rewards, f.fetchByWallet(ctx, wallets, rewards)
	case registry.RewardModeTokenArray:
		return rewards, f.fetchByTokenArray(ctx, wallets, walletTokens, rewards)
	case registry.RewardModePerToken:
		return rewards, f.fetchPerToken(ctx, walletTokens, rewards)
	default:
		return nil, fmt.Errorf("unknown reward mode %q", f.cfg.RewardMode)
	}
}

func (f *RewardFetcher) fetchByWallet(ctx context.Context, wallets []string, rewards map[string]*big.Int) error {
	parsed, err := rpc.AddressGetterABI(f.cfg.RewardFunction)
	if err != nil {
		return err
	}

	f.tracker.StartPhase(ctx, domain.StepFetchingRewards, len(wallets))
	target := common.HexToAddress(f.cfg.RewardTarget())

	for offset := 0; offset < len(wallets); offset += f.chunkSize {
		end := min(offset+f.chunkSize, len(wallets))
		chunk := wallets[offset:end]

		calls := make([]rpc.Call, len(chunk))
		for i, wallet := range chunk {
			callData, err := parsed.Pack(f.cfg.RewardFunction, common.HexToAddress(wallet))
			if err != nil {
				return fmt.Errorf("pack %s(%s): %w", f.cfg.RewardFunction, wallet, err)
			}
			calls[i] = rpc.Call{Target: target, CallData: callData}
		}

		results, err := f.gw.Multicall(ctx, calls)
		if err != nil {
			return fmt.Errorf("reward batch: %w", err)
		}
		for i, result := range results {
			f.applyWalletResult(ctx, parsed, chunk[i], result, rewards)
		}

		f.tracker.AddProcessed(ctx, len(chunk))
	}
	return nil
}

func (f *RewardFetcher) fetchByTokenArray(ctx context.Context, wallets []string, walletTokens map[string][]uint64, rewards map[string]*big.Int) error {
	parsed, err := rpc.ArrayGetterABI(f.cfg.RewardFunction)
	if err != nil {
		return err
	}

	f.tracker.StartPhase(ctx, domain.StepFetchingRewards, len(wallets))
	target := common.HexToAddress(f.cfg.RewardTarget())

	for offset := 0; offset < len(wallets); offset += f.chunkSize {
		end := min(offset+f.chunkSize, len(wallets))
		chunk := wallets[offset:end]

		calls := make([]rpc.Call, len(chunk))
		for i, wallet := range chunk {
			ids := walletTokens[wallet]
			args := make([]*big.Int, len(ids))
			for j, id := range ids {
				args[j] = new(big.Int).SetUint64(id)
			}
			callData, err := parsed.Pack(f.cfg.RewardFunction, args)
			if err != nil {
				return fmt.Errorf("pack %s for %s: %w", f.cfg.RewardFunction, wallet, err)
			}
			calls[i] = rpc.Call{Target: target, CallData: callData}
		}

		results, err := f.gw.Multicall(ctx, calls)
		if err != nil {
			return fmt.Errorf("reward batch: %w", err)
		}
		for i, result := range results {
			f.applyWalletResult(ctx, parsed, chunk[i], result, rewards)
		}

		f.tracker.AddProcessed(ctx, len(chunk))
	}
	return nil
}

func (f *RewardFetcher) fetchPerToken(ctx context.Context, walletTokens map[string][]uint64, rewards map[string]*big.Int) error {
	parsed, err := rpc.UintGetterABI(f.cfg.RewardFunction)
	if err != nil {
		return err
	}

	owners := make(map[uint64]string)
	var tokens []uint64
	for wallet, ids := range walletTokens {
		for _, id := range ids {
			owners[id] = wallet
			tokens = append(tokens, id)
		}
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i] < tokens[j] })

	f.tracker.StartPhase(ctx, domain.StepFetchingRewards, len(tokens))
	target := common.HexToAddress(f.cfg.RewardTarget())

	for offset := 0; offset < len(tokens); offset += f.chunkSize {
		end := min(offset+f.chunkSize, len(tokens))
		chunk := tokens[offset:end]

		calls := make([]rpc.Call, len(chunk))
		for i, id := range chunk {
			callData, err := parsed.Pack(f.cfg.RewardFunction, new(big.Int).SetUint64(id))
			if err != nil {
				return fmt.Errorf("pack %s(%d): %w", f.cfg.RewardFunction, id, err)
			}
			calls[i] = rpc.Call{Target: target, CallData: callData}
		}

		results, err := f.gw.Multicall(ctx, calls)
		if err != nil {
			return fmt.Errorf("reward batch: %w", err)
		}

		for i, result := range results {
			id := chunk[i]
			wallet := owners[id]
			if !result.Success {
				f.tracker.RecordError(ctx, domain.PhaseFetchRewards, &id, wallet,
					fmt.Errorf("%s call failed, counted as zero", f.cfg.RewardFunction))
				continue
			}
			value, err := rpc.UnpackUint(parsed, f.cfg.RewardFunction, result.ReturnData)
			if err != nil {
				f.tracker.RecordError(ctx, domain.PhaseFetchRewards, &id, wallet, err)
				continue
			}
			current := rewards[wallet]
			if current == nil {
				current = new(big.Int)
			}
			rewards[wallet] = current.Add(current, value)
		}

		f.tracker.AddProcessed(ctx, len(chunk))
	}
	return nil
}

func (f *RewardFetcher) applyWalletResult(ctx context.Context, parsed abi.ABI, wallet string, result rpc.Result, rewards map[string]*big.Int) {
	if !result.Success {
		f.tracker.RecordError(ctx, domain.PhaseFetchRewards, nil, wallet,
			fmt.Errorf("%s call failed, counted as zero", f.cfg.RewardFunction))
		return
	}
	out, err := parsed.Unpack(f.cfg.RewardFunction, result.ReturnData)
	if err != nil {
		f.tracker.RecordError(ctx, domain.PhaseFetchRewards, nil, wallet, err)
		return
	}
	if len(out) != 1 {
		f.tracker.RecordError(ctx, domain.PhaseFetchRewards, nil, wallet,
			fmt.Errorf("unexpected %s output shape", f.cfg.RewardFunction))
		return
	}
	value, ok := out[0].(*big.Int)
	if !ok {
		f.tracker.RecordError(ctx, domain.PhaseFetchRewards, nil, wallet,
			fmt.Errorf("%s output is not uint256", f.cfg.RewardFunction))
		return
	}
	rewards[wallet] = value
}
