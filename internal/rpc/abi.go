package rpc

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// TransferTopic is the event signature hash of Transfer(address,address,uint256),
// shared by ERC-20 and ERC-721. Consumers distinguish the two by topic count.
var TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

const erc721ReadABIJSON = `[
	{"constant":true,"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"tokenId","type":"uint256"}],"name":"ownerOf","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

const multicall3ABIJSON = `[
	{"inputs":[{"components":[{"internalType":"address","name":"target","type":"address"},{"internalType":"bool","name":"allowFailure","type":"bool"},{"internalType":"bytes","name":"callData","type":"bytes"}],"internalType":"struct Multicall3.Call3[]","name":"calls","type":"tuple[]"}],"name":"aggregate3","outputs":[{"components":[{"internalType":"bool","name":"success","type":"bool"},{"internalType":"bytes","name":"returnData","type":"bytes"}],"internalType":"struct Multicall3.Result[]","name":"returnData","type":"tuple[]"}],"stateMutability":"payable","type":"function"}
]`

var (
	// ERC721ABI covers the reads every NFT contract in the registry supports
	ERC721ABI = mustParseABI(erc721ReadABIJSON)

	multicall3ABI = mustParseABI(multicall3ABIJSON)
)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Contract read functions are configured by name per contract, so their ABIs
// are built dynamically from the function shape and cached by signature.
var fnABICache sync.Map // signature string -> abi.ABI

func cachedABI(signature, abiJSON string) (abi.ABI, error) {
	if cached, ok := fnABICache.Load(signature); ok {
		return cached.(abi.ABI), nil
	}
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse ABI for %s: %w", signature, err)
	}
	fnABICache.Store(signature, parsed)
	return parsed, nil
}

// UintGetterABI returns an ABI for name(uint256) returns (uint256)
func UintGetterABI(name string) (abi.ABI, error) {
	return cachedABI(name+"(uint256)", fmt.Sprintf(
		`[{"constant":true,"inputs":[{"name":"tokenId","type":"uint256"}],"name":%q,"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`,
		name))
}

// AddressGetterABI returns an ABI for name(address) returns (uint256)
func AddressGetterABI(name string) (abi.ABI, error) {
	return cachedABI(name+"(address)", fmt.Sprintf(
		`[{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":%q,"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`,
		name))
}

// ArrayGetterABI returns an ABI for name(uint256[]) returns (uint256)
func ArrayGetterABI(name string) (abi.ABI, error) {
	return cachedABI(name+"(uint256[])", fmt.Sprintf(
		`[{"constant":true,"inputs":[{"name":"tokenIds","type":"uint256[]"}],"name":%q,"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`,
		name))
}

// UnpackUint decodes a single uint256 return value
func UnpackUint(parsed abi.ABI, method string, data []byte) (*big.Int, error) {
	out, err := parsed.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("unpack %s: expected 1 output, got %d", method, len(out))
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack %s: output is not uint256", method)
	}
	return v, nil
}

// UnpackAddress decodes a single address return value
func UnpackAddress(parsed abi.ABI, method string, data []byte) (common.Address, error) {
	out, err := parsed.Unpack(method, data)
	if err != nil {
		return common.Address{}, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(out) != 1 {
		return common.Address{}, fmt.Errorf("unpack %s: expected 1 output, got %d", method, len(out))
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unpack %s: output is not address", method)
	}
	return addr, nil
}
