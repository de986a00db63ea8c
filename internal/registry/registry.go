package registry

import (
	"fmt"

	"github.com/element-scan/holders-indexer/internal/domain"
)

// RankKey selects the primary ranking key for a contract's holders
type RankKey string

const (
	RankByMultiplier RankKey = "multiplier"
	RankByShares     RankKey = "shares"
)

// RewardMode describes the shape of a contract's claimable-rewards function
type RewardMode string

const (
	// RewardModeWallet calls rewardFunction(address) once per wallet
	RewardModeWallet RewardMode = "wallet"
	// RewardModeTokenArray calls rewardFunction(uint256[]) with the wallet's token ids
	RewardModeTokenArray RewardMode = "token_array"
	// RewardModePerToken calls rewardFunction(uint256) per token and sums per wallet
	RewardModePerToken RewardMode = "per_token"
	// RewardModeNone disables reward fetching for the contract
	RewardModeNone RewardMode = "none"
)

// ContractConfig is the per-contract parameterization of the canonical
// holder pipeline. One record replaces what used to be a per-contract copy
// of the whole fetch/aggregate flow.
type ContractConfig struct {
	Key          string `mapstructure:"key"`
	Name         string `mapstructure:"name"`
	Address      string `mapstructure:"address"`
	VaultAddress string `mapstructure:"vault_address"`

	// StartBlock is the contract deployment block, the lower bound for
	// incremental Transfer scans
	StartBlock uint64 `mapstructure:"start_block"`

	// StartTokenID is the first minted token id (1 for most contracts,
	// a contract-specific offset otherwise)
	StartTokenID uint64 `mapstructure:"start_token_id"`

	// MinTier/MaxTier bound the valid tier range; MinTier is 0 or 1
	// depending on the contract's indexing scheme
	MinTier int `mapstructure:"min_tier"`
	MaxTier int `mapstructure:"max_tier"`

	// TierMultipliers is indexed by tier number, length MaxTier+1.
	// Entries below MinTier are unused and must be 0.
	TierMultipliers []float64 `mapstructure:"tier_multipliers"`

	// DisplayScale converts multiplierSum into the contract's display units
	DisplayScale float64 `mapstructure:"display_scale"`

	RankBy RankKey `mapstructure:"rank_by"`

	TierFunction   string `mapstructure:"tier_function"`
	SharesFunction string `mapstructure:"shares_function"`
	LockedFunction string `mapstructure:"locked_function"`

	RewardMode     RewardMode `mapstructure:"reward_mode"`
	RewardFunction string     `mapstructure:"reward_function"`
	RewardDecimals int        `mapstructure:"reward_decimals"`
}

// Validate checks the configuration record. Missing address, ABI function
// names, or tier table are configuration errors and are never defaulted.
func (c *ContractConfig) Validate() error {
	if c.Key == "" {
		return fmt.Errorf("contract key is required")
	}
	if !domain.ValidAddress(c.Address) {
		return fmt.Errorf("contract %q: invalid address %q", c.Key, c.Address)
	}
	if c.VaultAddress != "" && !domain.ValidAddress(c.VaultAddress) {
		return fmt.Errorf("contract %q: invalid vault address %q", c.Key, c.VaultAddress)
	}
	if c.MinTier != 0 && c.MinTier != 1 {
		return fmt.Errorf("contract %q: min_tier must be 0 or 1, got %d", c.Key, c.MinTier)
	}
	if c.MaxTier < c.MinTier {
		return fmt.Errorf("contract %q: max_tier %d below min_tier %d", c.Key, c.MaxTier, c.MinTier)
	}
	if len(c.TierMultipliers) != c.MaxTier+1 {
		return fmt.Errorf("contract %q: tier_multipliers must have %d entries, got %d",
			c.Key, c.MaxTier+1, len(c.TierMultipliers))
	}
	if c.TierFunction == "" {
		return fmt.Errorf("contract %q: tier_function is required", c.Key)
	}
	switch c.RankBy {
	case RankByMultiplier:
	case RankByShares:
		if c.SharesFunction == "" {
			return fmt.Errorf("contract %q: rank_by shares requires shares_function", c.Key)
		}
	default:
		return fmt.Errorf("contract %q: unknown rank_by %q", c.Key, c.RankBy)
	}
	switch c.RewardMode {
	case RewardModeNone:
	case RewardModeWallet, RewardModeTokenArray, RewardModePerToken:
		if c.RewardFunction == "" {
			return fmt.Errorf("contract %q: reward_mode %q requires reward_function", c.Key, c.RewardMode)
		}
	default:
		return fmt.Errorf("contract %q: unknown reward_mode %q", c.Key, c.RewardMode)
	}
	return nil
}

// TierValid reports whether a fetched tier value is inside the configured range
func (c *ContractConfig) TierValid(tier int) bool {
	return tier >= c.MinTier && tier <= c.MaxTier
}

// MultiplierFor returns the static multiplier for a tier (0 for invalid tiers)
func (c *ContractConfig) MultiplierFor(tier int) float64 {
	if !c.TierValid(tier) {
		return 0
	}
	return c.TierMultipliers[tier]
}

// RewardTarget returns the address the reward function lives on: the vault
// contract when configured, the NFT contract otherwise
func (c *ContractConfig) RewardTarget() string {
	if c.VaultAddress != "" {
		return c.VaultAddress
	}
	return c.Address
}

// Registry resolves contract keys to their configuration records
type Registry struct {
	contracts map[string]*ContractConfig
	keys      []string
}

// New builds a registry from validated contract configurations
func New(configs []ContractConfig) (*Registry, error) {
	r := &Registry{contracts: make(map[string]*ContractConfig, len(configs))}
	for i := range configs {
		cfg := configs[i]
		if cfg.StartTokenID == 0 {
			cfg.StartTokenID = 1
		}
		if cfg.DisplayScale == 0 {
			cfg.DisplayScale = 1
		}
		if cfg.RewardDecimals == 0 {
			cfg.RewardDecimals = domain.DEFAULT_REWARD_DECIMALS
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.contracts[cfg.Key]; dup {
			return nil, fmt.Errorf("duplicate contract key %q", cfg.Key)
		}
		r.contracts[cfg.Key] = &cfg
		r.keys = append(r.keys, cfg.Key)
	}
	return r, nil
}

// Get returns the configuration for a contract key
func (r *Registry) Get(key string) (*ContractConfig, error) {
	cfg, ok := r.contracts[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrContractNotFound, key)
	}
	return cfg, nil
}

// Keys returns the registered contract keys in declaration order
func (r *Registry) Keys() []string {
	return r.keys
}
