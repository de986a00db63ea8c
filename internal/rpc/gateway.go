package rpc

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/element-scan/holders-indexer/internal/adapter"
	"github.com/element-scan/holders-indexer/internal/domain"
	"github.com/element-scan/holders-indexer/internal/logger"
)

// Config holds the gateway's batching, concurrency, and retry settings
type Config struct {
	// MaxWorkers bounds concurrent in-flight RPC requests
	MaxWorkers int

	// MulticallBatchSize is the number of calls packed into one aggregate3
	MulticallBatchSize int

	// LogChunkSize is the max block span of a single getLogs query
	LogChunkSize uint64

	// MaxRetries caps retry attempts for a single request
	MaxRetries uint64

	// InitialBackoff is the base delay for exponential retry backoff
	InitialBackoff time.Duration

	// RequestsPerSecond and Burst configure the local token-bucket limiter
	RequestsPerSecond float64
	Burst             int

	// MulticallAddress overrides the standard Multicall3 deployment
	MulticallAddress string
}

func (c *Config) applyDefaults() {
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 8
	}
	if c.MulticallBatchSize <= 0 {
		c.MulticallBatchSize = 100
	}
	if c.LogChunkSize == 0 {
		c.LogChunkSize = 2000
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 25
	}
	if c.Burst <= 0 {
		c.Burst = 50
	}
	if c.MulticallAddress == "" {
		c.MulticallAddress = domain.DEFAULT_MULTICALL3_ADDRESS
	}
}

// Call is a single read packed for batching
type Call struct {
	Target   common.Address
	CallData []byte
}

// Result mirrors Multicall3's per-call result: a failed call carries
// Success=false instead of failing the whole batch
type Result struct {
	Success    bool
	ReturnData []byte
}

// Gateway wraps batched contract calls and log queries with bounded
// concurrency, rate limiting, and retry with exponential backoff
type Gateway interface {
	// BlockNumber returns the latest block number
	BlockNumber(ctx context.Context) (uint64, error)

	// TransferLogs fetches ERC-721 Transfer logs for a contract over an
	// inclusive block range, chunked to respect provider limits, and
	// returns them sorted by (block, txIndex, logIndex)
	TransferLogs(ctx context.Context, contract common.Address, fromBlock, toBlock uint64) ([]types.Log, error)

	// Multicall executes a batch of reads via Multicall3 aggregate3.
	// Partial failure within a batch never returns an error; each failed
	// call yields Result{Success: false}.
	Multicall(ctx context.Context, calls []Call) ([]Result, error)

	// ReadContract performs a single eth_call and returns the raw bytes
	ReadContract(ctx context.Context, target common.Address, parsed abi.ABI, method string, args ...interface{}) ([]byte, error)

	// Close releases the worker pool and the underlying client
	Close()
}

type gateway struct {
	cfg           Config
	client        adapter.EthClient
	pool          pond.Pool
	limiter       *rate.Limiter
	multicallAddr common.Address
}

// NewGateway builds a Gateway on top of an Ethereum client
func NewGateway(cfg Config, client adapter.EthClient) Gateway {
	cfg.applyDefaults()
	return &gateway{
		cfg:           cfg,
		client:        client,
		pool:          pond.NewPool(cfg.MaxWorkers),
		limiter:       rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		multicallAddr: common.HexToAddress(cfg.MulticallAddress),
	}
}

// do executes an RPC operation with rate limiting and retry/backoff.
// Every attempt, retries included, takes a token from the limiter.
// Permanent errors (reverts, cancellation) are surfaced immediately.
func (g *gateway) do(ctx context.Context, op func(context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.cfg.InitialBackoff
	b.MaxInterval = 10 * time.Second
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.5

	policy := backoff.WithContext(backoff.WithMaxRetries(b, g.cfg.MaxRetries), ctx)

	return backoff.Retry(func() error {
		if err := g.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		err := op(ctx)
		if err == nil {
			return nil
		}
		if isRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}

// BlockNumber returns the latest block number
func (g *gateway) BlockNumber(ctx context.Context) (uint64, error) {
	var number uint64
	err := g.do(ctx, func(ctx context.Context) error {
		header, err := g.client.HeaderByNumber(ctx, nil)
		if err != nil {
			return err
		}
		number = header.Number.Uint64()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("get latest block: %w", err)
	}
	return number, nil
}

// TransferLogs fetches Transfer logs chunked into bounded block ranges,
// executed with bounded concurrency
func (g *gateway) TransferLogs(ctx context.Context, contract common.Address, fromBlock, toBlock uint64) ([]types.Log, error) {
	ranges, err := SplitRange(fromBlock, toBlock, g.cfg.LogChunkSize)
	if err != nil {
		return nil, err
	}

	chunked := make([][]types.Log, len(ranges))
	group := g.pool.NewGroup()
	for i, blockRange := range ranges {
		group.SubmitErr(func() error {
			logs, err := g.filterLogsAdaptive(ctx, contract, blockRange)
			if err != nil {
				return fmt.Errorf("filter logs %d-%d: %w", blockRange.From, blockRange.To, err)
			}
			chunked[i] = logs
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	var all []types.Log
	for _, logs := range chunked {
		all = append(all, logs...)
	}

	// Events must be applied in chain order
	sort.Slice(all, func(i, j int) bool {
		if all[i].BlockNumber != all[j].BlockNumber {
			return all[i].BlockNumber < all[j].BlockNumber
		}
		if all[i].TxIndex != all[j].TxIndex {
			return all[i].TxIndex < all[j].TxIndex
		}
		return all[i].Index < all[j].Index
	})

	return all, nil
}

// filterLogsAdaptive fetches one range, halving the step whenever the
// provider reports too many results
func (g *gateway) filterLogsAdaptive(ctx context.Context, contract common.Address, blockRange BlockRange) ([]types.Log, error) {
	var all []types.Log
	step := blockRange.To - blockRange.From + 1
	current := blockRange.From

	for current <= blockRange.To {
		end := current + step - 1
		if end > blockRange.To || end < current {
			end = blockRange.To
		}

		query := ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(current),
			ToBlock:   new(big.Int).SetUint64(end),
			Addresses: []common.Address{contract},
			Topics:    [][]common.Hash{{TransferTopic}},
		}

		var logs []types.Log
		err := g.do(ctx, func(ctx context.Context) error {
			var err error
			logs, err = g.client.FilterLogs(ctx, query)
			return err
		})
		if err == nil {
			all = append(all, logs...)
			current = end + 1
			continue
		}

		if !isTooManyResultsError(err) {
			return nil, err
		}
		if step <= 1 {
			return nil, fmt.Errorf("single-block log query still too large at %d: %w", current, err)
		}

		step /= 2
		logger.Warn("too many log results, reducing step size",
			zap.Uint64("new_step", step),
			zap.Uint64("from", current),
			zap.Uint64("to", end))
	}

	return all, nil
}

// aggregate3 argument/result tuples
type call3 struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

type call3Result struct {
	Success    bool
	ReturnData []byte
}

// Multicall executes reads in aggregate3 batches. If a whole batch fails
// after retries it degrades to per-call reads so one bad call cannot sink
// its batch-mates.
func (g *gateway) Multicall(ctx context.Context, calls []Call) ([]Result, error) {
	if len(calls) == 0 {
		return nil, nil
	}

	results := make([]Result, len(calls))
	group := g.pool.NewGroup()

	for start := 0; start < len(calls); start += g.cfg.MulticallBatchSize {
		end := min(start+g.cfg.MulticallBatchSize, len(calls))
		group.SubmitErr(func() error {
			return g.multicallBatch(ctx, calls[start:end], results[start:end])
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (g *gateway) multicallBatch(ctx context.Context, calls []Call, out []Result) error {
	packed := make([]call3, len(calls))
	for i, call := range calls {
		packed[i] = call3{Target: call.Target, AllowFailure: true, CallData: call.CallData}
	}

	callData, err := multicall3ABI.Pack("aggregate3", packed)
	if err != nil {
		return fmt.Errorf("pack aggregate3: %w", err)
	}

	var raw []byte
	err = g.do(ctx, func(ctx context.Context) error {
		var err error
		raw, err = g.client.CallContract(ctx, ethereum.CallMsg{
			To:   &g.multicallAddr,
			Data: callData,
		}, nil)
		return err
	})
	if err != nil {
		logger.Warn("aggregate3 batch failed, degrading to single calls",
			zap.Int("batch_size", len(calls)), zap.Error(err))
		return g.singleCallFallback(ctx, calls, out)
	}

	unpacked, err := multicall3ABI.Unpack("aggregate3", raw)
	if err != nil {
		return fmt.Errorf("unpack aggregate3: %w", err)
	}
	decoded, ok := unpacked[0].([]struct {
		Success    bool   `json:"success"`
		ReturnData []byte `json:"returnData"`
	})
	if !ok || len(decoded) != len(calls) {
		return fmt.Errorf("unexpected aggregate3 result shape")
	}

	for i, r := range decoded {
		out[i] = Result{Success: r.Success, ReturnData: r.ReturnData}
	}
	return nil
}

// singleCallFallback reads each call individually; failures become
// unsuccessful results instead of errors
func (g *gateway) singleCallFallback(ctx context.Context, calls []Call, out []Result) error {
	for i, call := range calls {
		var raw []byte
		err := g.do(ctx, func(ctx context.Context) error {
			var err error
			raw, err = g.client.CallContract(ctx, ethereum.CallMsg{
				To:   &calls[i].Target,
				Data: call.CallData,
			}, nil)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			out[i] = Result{Success: false}
			continue
		}
		out[i] = Result{Success: true, ReturnData: raw}
	}
	return nil
}

// ReadContract performs a single eth_call
func (g *gateway) ReadContract(ctx context.Context, target common.Address, parsed abi.ABI, method string, args ...interface{}) ([]byte, error) {
	callData, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	var raw []byte
	err = g.do(ctx, func(ctx context.Context) error {
		var err error
		raw, err = g.client.CallContract(ctx, ethereum.CallMsg{
			To:   &target,
			Data: callData,
		}, nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	return raw, nil
}

// Close releases the worker pool and the underlying client
func (g *gateway) Close() {
	g.pool.StopAndWait()
	g.client.Close()
}
