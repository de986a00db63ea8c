package holders

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/element-scan/holders-indexer/internal/domain"
	"github.com/element-scan/holders-indexer/internal/registry"
	"github.com/element-scan/holders-indexer/internal/rpc"
)

// Resolver builds and maintains the ownership book for one contract,
// either by scanning every token id with ownerOf or by replaying
// Transfer events on top of an existing book.
type Resolver struct {
	gw        rpc.Gateway
	cfg       *registry.ContractConfig
	tracker   *Tracker
	chunkSize int
}

// NewResolver creates a resolver for one contract
func NewResolver(gw rpc.Gateway, cfg *registry.ContractConfig, tracker *Tracker, chunkSize int) *Resolver {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	return &Resolver{gw: gw, cfg: cfg, tracker: tracker, chunkSize: chunkSize}
}

// TotalSupply reads the contract's current totalSupply
func (r *Resolver) TotalSupply(ctx context.Context) (uint64, error) {
	raw, err := r.gw.ReadContract(ctx, common.HexToAddress(r.cfg.Address), rpc.ERC721ABI, "totalSupply")
	if err != nil {
		return 0, fmt.Errorf("read totalSupply: %w", err)
	}
	supply, err := rpc.UnpackUint(rpc.ERC721ABI, "totalSupply", raw)
	if err != nil {
		return 0, err
	}
	if !supply.IsUint64() {
		return 0, fmt.Errorf("totalSupply out of range: %s", supply)
	}
	return supply.Uint64(), nil
}

// FullScan resolves ownership from scratch: it enumerates token ids from
// the contract's start id up to totalSupply and reads ownerOf for each.
// Tokens whose ownerOf call fails (burned ids revert) or that resolve to
// the zero address are counted as burned. headBlock anchors the book so
// a follow-up incremental scan starts where this snapshot was taken.
func (r *Resolver) FullScan(ctx context.Context, headBlock uint64) (*Book, error) {
	r.tracker.StartPhase(ctx, domain.StepFetchingSupply, 0)

	supply, err := r.TotalSupply(ctx)
	if err != nil {
		return nil, err
	}
	if supply == 0 {
		return nil, fmt.Errorf("%w: totalSupply is zero", domain.ErrEmptyOwnership)
	}

	total := int(supply)
	r.tracker.StartPhase(ctx, domain.StepFetchingOwnership, total)

	book := NewBook()
	book.LastProcessedBlock = headBlock
	contract := common.HexToAddress(r.cfg.Address)

	for offset := 0; offset < total; offset += r.chunkSize {
		count := min(r.chunkSize, total-offset)

		ids := make([]uint64, count)
		calls := make([]rpc.Call, count)
		for i := 0; i < count; i++ {
			ids[i] = r.cfg.StartTokenID + uint64(offset+i)
			callData, err := rpc.ERC721ABI.Pack("ownerOf", new(big.Int).SetUint64(ids[i]))
			if err != nil {
				return nil, fmt.Errorf("pack ownerOf(%d): %w", ids[i], err)
			}
			calls[i] = rpc.Call{Target: contract, CallData: callData}
		}

		results, err := r.gw.Multicall(ctx, calls)
		if err != nil {
			return nil, fmt.Errorf("ownerOf batch at %d: %w", ids[0], err)
		}

		for i, result := range results {
			id := ids[i]
			if !result.Success {
				book.TotalBurned++
				r.tracker.RecordError(ctx, domain.PhaseFetchOwnership, &id, "",
					fmt.Errorf("ownerOf reverted, token treated as burned"))
				continue
			}
			owner, err := rpc.UnpackAddress(rpc.ERC721ABI, "ownerOf", result.ReturnData)
			if err != nil {
				book.TotalBurned++
				r.tracker.RecordError(ctx, domain.PhaseFetchOwnership, &id, "", err)
				continue
			}
			wallet := domain.NormalizeAddress(owner.Hex())
			if domain.IsZeroAddress(wallet) {
				book.TotalBurned++
				continue
			}
			book.Owners[id] = wallet
		}

		r.tracker.AddProcessed(ctx, count)
	}

	book.TotalMinted = total
	if book.LiveCount() == 0 {
		return nil, fmt.Errorf("%w: all %d tokens resolved as burned", domain.ErrEmptyOwnership, total)
	}

	return book, nil
}

// ApplyTransfers replays Transfer events over [fromBlock, toBlock] onto
// the book, in chain order. Mints add tokens, burns remove them, moves
// reassign the owner. Inconsistencies against the existing book are
// recorded in the run's error log and resolved in favor of the later event.
func (r *Resolver) ApplyTransfers(ctx context.Context, book *Book, fromBlock, toBlock uint64) error {
	logs, err := r.gw.TransferLogs(ctx, common.HexToAddress(r.cfg.Address), fromBlock, toBlock)
	if err != nil {
		return fmt.Errorf("fetch transfer logs: %w", err)
	}

	r.tracker.StartPhase(ctx, domain.StepFetchingOwnership, len(logs))

	for _, entry := range logs {
		r.applyLog(ctx, book, entry)
		r.tracker.AddProcessed(ctx, 1)
	}

	book.LastProcessedBlock = toBlock
	return nil
}

func (r *Resolver) applyLog(ctx context.Context, book *Book, entry types.Log) {
	// ERC-721 Transfer has all three arguments indexed; ERC-20 transfers
	// on hybrid contracts carry only two indexed topics
	if len(entry.Topics) != 4 {
		return
	}

	from := domain.NormalizeAddress(common.BytesToAddress(entry.Topics[1].Bytes()).Hex())
	to := domain.NormalizeAddress(common.BytesToAddress(entry.Topics[2].Bytes()).Hex())
	tokenID := new(big.Int).SetBytes(entry.Topics[3].Bytes())
	if !tokenID.IsUint64() {
		id := uint64(0)
		r.tracker.RecordError(ctx, domain.PhaseFetchOwnership, &id, "",
			fmt.Errorf("token id out of range: %s", tokenID))
		return
	}
	id := tokenID.Uint64()

	switch {
	case domain.IsZeroAddress(from) && domain.IsZeroAddress(to):
		// mint-and-burn in one event, nothing to track

	case domain.IsZeroAddress(from):
		if current, exists := book.Owners[id]; exists {
			r.tracker.RecordError(ctx, domain.PhaseFetchOwnership, &id, to,
				fmt.Errorf("mint for token already owned by %s, later event wins", current))
		} else {
			book.TotalMinted++
		}
		book.Owners[id] = to

	case domain.IsZeroAddress(to):
		if _, exists := book.Owners[id]; exists {
			delete(book.Owners, id)
			book.TotalBurned++
		} else {
			r.tracker.RecordError(ctx, domain.PhaseFetchOwnership, &id, "",
				fmt.Errorf("burn for token missing from the book"))
		}

	default:
		if current, exists := book.Owners[id]; !exists {
			r.tracker.RecordError(ctx, domain.PhaseFetchOwnership, &id, to,
				fmt.Errorf("transfer for token missing from the book, adopting new owner"))
			book.TotalMinted++
		} else if current != from {
			r.tracker.RecordError(ctx, domain.PhaseFetchOwnership, &id, to,
				fmt.Errorf("transfer sender %s does not match book owner %s, later event wins", from, current))
		}
		book.Owners[id] = to
	}
}
