package holders_test

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/element-scan/holders-indexer/internal/registry"
	"github.com/element-scan/holders-indexer/internal/rpc"
)

const (
	simContractAddr = "0x1111111111111111111111111111111111111111"
	simTierFn       = "tokenTier"
	simRewardFn     = "claimable"
)

var (
	walletA = common.HexToAddress("0xaaaa00000000000000000000000000000000aaaa")
	walletB = common.HexToAddress("0xbbbb00000000000000000000000000000000bbbb")
	walletC = common.HexToAddress("0xcccc00000000000000000000000000000000cccc")
)

func simContract() registry.ContractConfig {
	return registry.ContractConfig{
		Key:             "genesis",
		Name:            "Genesis Collection",
		Address:         simContractAddr,
		StartBlock:      100,
		StartTokenID:    1,
		MinTier:         1,
		MaxTier:         2,
		TierMultipliers: []float64{0, 10, 100},
		DisplayScale:    1,
		RankBy:          registry.RankByMultiplier,
		TierFunction:    simTierFn,
		RewardMode:      registry.RewardModeWallet,
		RewardFunction:  simRewardFn,
		RewardDecimals:  18,
	}
}

// chainSim is a scripted stand-in for the RPC gateway: it answers
// totalSupply, ownerOf, tier, and reward reads from in-memory maps and
// serves Transfer logs from a fixed list
type chainSim struct {
	mu sync.Mutex

	head      uint64
	supply    uint64
	supplyErr error

	owners     map[uint64]common.Address
	tiers      map[uint64]int64
	tierFail   map[uint64]bool
	rewards    map[common.Address]*big.Int
	rewardFail map[common.Address]bool
	logs       []types.Log

	// when set, BlockNumber blocks until the channel is closed
	headGate chan struct{}

	supplyCalls int
}

func newChainSim() *chainSim {
	return &chainSim{
		head:       200,
		owners:     make(map[uint64]common.Address),
		tiers:      make(map[uint64]int64),
		tierFail:   make(map[uint64]bool),
		rewards:    make(map[common.Address]*big.Int),
		rewardFail: make(map[common.Address]bool),
	}
}

func (s *chainSim) BlockNumber(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	gate := s.headGate
	head := s.head
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return head, nil
}

func (s *chainSim) TransferLogs(_ context.Context, _ common.Address, fromBlock, toBlock uint64) ([]types.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []types.Log
	for _, entry := range s.logs {
		if entry.BlockNumber >= fromBlock && entry.BlockNumber <= toBlock {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *chainSim) Multicall(_ context.Context, calls []rpc.Call) ([]rpc.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]rpc.Result, len(calls))
	for i, call := range calls {
		results[i] = s.handle(call.CallData)
	}
	return results, nil
}

func (s *chainSim) ReadContract(_ context.Context, _ common.Address, parsed abi.ABI, method string, args ...interface{}) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if method == "totalSupply" {
		s.supplyCalls++
		if s.supplyErr != nil {
			return nil, s.supplyErr
		}
	}

	callData, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	result := s.handle(callData)
	if !result.Success {
		return nil, errors.New("execution reverted")
	}
	return result.ReturnData, nil
}

func (s *chainSim) Close() {}

func (s *chainSim) handle(data []byte) rpc.Result {
	tierABI, _ := rpc.UintGetterABI(simTierFn)
	rewardABI, _ := rpc.AddressGetterABI(simRewardFn)

	switch {
	case matchesMethod(rpc.ERC721ABI, "totalSupply", data):
		return packUint(rpc.ERC721ABI, "totalSupply", new(big.Int).SetUint64(s.supply))

	case matchesMethod(rpc.ERC721ABI, "ownerOf", data):
		id := unpackTokenArg(rpc.ERC721ABI, "ownerOf", data)
		owner, ok := s.owners[id]
		if !ok {
			return rpc.Result{Success: false}
		}
		packed, err := rpc.ERC721ABI.Methods["ownerOf"].Outputs.Pack(owner)
		if err != nil {
			return rpc.Result{Success: false}
		}
		return rpc.Result{Success: true, ReturnData: packed}

	case matchesMethod(tierABI, simTierFn, data):
		id := unpackTokenArg(tierABI, simTierFn, data)
		if s.tierFail[id] {
			return rpc.Result{Success: false}
		}
		return packUint(tierABI, simTierFn, big.NewInt(s.tiers[id]))

	case matchesMethod(rewardABI, simRewardFn, data):
		args, err := rewardABI.Methods[simRewardFn].Inputs.Unpack(data[4:])
		if err != nil {
			return rpc.Result{Success: false}
		}
		wallet := args[0].(common.Address)
		if s.rewardFail[wallet] {
			return rpc.Result{Success: false}
		}
		amount := s.rewards[wallet]
		if amount == nil {
			amount = new(big.Int)
		}
		return packUint(rewardABI, simRewardFn, amount)
	}

	return rpc.Result{Success: false}
}

func matchesMethod(parsed abi.ABI, method string, data []byte) bool {
	id := parsed.Methods[method].ID
	return len(data) >= 4 && string(data[:4]) == string(id)
}

func unpackTokenArg(parsed abi.ABI, method string, data []byte) uint64 {
	args, err := parsed.Methods[method].Inputs.Unpack(data[4:])
	if err != nil {
		return 0
	}
	return args[0].(*big.Int).Uint64()
}

func packUint(parsed abi.ABI, method string, value *big.Int) rpc.Result {
	packed, err := parsed.Methods[method].Outputs.Pack(value)
	if err != nil {
		return rpc.Result{Success: false}
	}
	return rpc.Result{Success: true, ReturnData: packed}
}

// transferLog builds an ERC-721 Transfer log with indexed from/to/tokenId
func transferLog(block uint64, index uint, from, to common.Address, tokenID uint64) types.Log {
	fromTopic := common.BytesToHash(from.Bytes())
	toTopic := common.BytesToHash(to.Bytes())
	idTopic := common.BigToHash(new(big.Int).SetUint64(tokenID))

	return types.Log{
		BlockNumber: block,
		Index:       index,
		Topics:      []common.Hash{rpc.TransferTopic, fromTopic, toTopic, idTopic},
	}
}

// eth converts a whole-unit amount into 18-decimal base units
func eth(amount int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(amount), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}
