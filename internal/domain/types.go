package domain

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PopulationStep represents a phase of the holder population pipeline
type PopulationStep string

const (
	StepIdle                PopulationStep = "idle"
	StepFetchingSupply      PopulationStep = "fetching_supply"
	StepFetchingOwnership   PopulationStep = "fetching_ownership"
	StepInitializingHolders PopulationStep = "initializing_holders"
	StepFetchingTiers       PopulationStep = "fetching_tiers"
	StepFetchingRewards     PopulationStep = "fetching_rewards"
	StepCalculatingMetrics  PopulationStep = "calculating_metrics"
	StepCompleted           PopulationStep = "completed"
	StepError               PopulationStep = "error"
)

// Active reports whether the step corresponds to an in-flight population run
func (s PopulationStep) Active() bool {
	switch s {
	case StepIdle, StepCompleted, StepError, "":
		return false
	}
	return true
}

// Phase names used in error entries; they match the pipeline steps but are
// plain strings because error entries also carry sub-phase context
const (
	PhaseFetchSupply    = "fetch_supply"
	PhaseFetchOwnership = "fetch_ownership"
	PhaseFetchTiers     = "fetch_tiers"
	PhaseFetchRewards   = "fetch_rewards"
	PhaseAggregate      = "aggregate"
)

// Holder is the aggregate record for a single wallet within one contract.
// All on-chain amounts have been converted to decimal at this point; raw
// base-unit values never leave the aggregation boundary.
type Holder struct {
	Wallet   string   `json:"wallet"`
	TokenIDs []uint64 `json:"token_ids"`
	// Tiers counts owned tokens per tier index, length maxTier+1;
	// Total == sum(Tiers) == len(TokenIDs)
	Tiers                []int   `json:"tiers"`
	Total                int     `json:"total"`
	MultiplierSum        float64 `json:"multiplier_sum"`
	DisplayMultiplierSum float64 `json:"display_multiplier_sum"`
	ClaimableRewards     float64 `json:"claimable_rewards"`
	Shares               float64 `json:"shares,omitempty"`
	LockedAmount         float64 `json:"locked_amount,omitempty"`
	Percentage           float64 `json:"percentage"`
	Rank                 int     `json:"rank"`
}

// ErrorEntry records a single recoverable failure during a population run.
// Entries are append-only for the run and surfaced through the progress API.
type ErrorEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Phase     string    `json:"phase"`
	TokenID   *uint64   `json:"token_id,omitempty"`
	Wallet    string    `json:"wallet,omitempty"`
	Error     string    `json:"error"`
}

// ProgressState is the poller-visible view of an in-flight population run
type ProgressState struct {
	Step          PopulationStep `json:"step"`
	ProcessedNFTs int            `json:"processed_nfts"`
	TotalNFTs     int            `json:"total_nfts"`
	Error         string         `json:"error,omitempty"`
	ErrorLog      []ErrorEntry   `json:"error_log,omitempty"`
}

// Percentage returns the estimated completion percentage. It is an estimate:
// batch-boundary rounding may make it lag or briefly exceed 100.
func (p ProgressState) Percentage() float64 {
	if p.TotalNFTs <= 0 {
		return 0
	}
	return float64(p.ProcessedNFTs) / float64(p.TotalNFTs) * 100
}

// GlobalMetrics holds contract-wide aggregates computed alongside holders
type GlobalMetrics struct {
	TotalLive        int     `json:"total_live"`
	TotalBurned      int     `json:"total_burned"`
	TotalMinted      int     `json:"total_minted"`
	TierDistribution []int   `json:"tier_distribution"`
	MultiplierPool   float64 `json:"multiplier_pool"`
}

// CacheState is the per-contract population state persisted next to the
// holders snapshot. IsPopulating must be cleared on every exit path.
type CacheState struct {
	IsPopulating       bool          `json:"is_populating"`
	LastProcessedBlock uint64        `json:"last_processed_block"`
	TotalOwners        int           `json:"total_owners"`
	Progress           ProgressState `json:"progress"`
	Metrics            GlobalMetrics `json:"metrics"`
	LastUpdated        time.Time     `json:"last_updated"`
}

// NormalizeAddress lowercases a hex address so it can be used as a canonical
// holder map key
func NormalizeAddress(addr string) string {
	return strings.ToLower(addr)
}

// IsZeroAddress reports whether the address is the burn/zero sentinel
func IsZeroAddress(addr string) bool {
	return NormalizeAddress(addr) == ETHEREUM_ZERO_ADDRESS || addr == ""
}

// ValidAddress reports whether the string is a well-formed hex address
func ValidAddress(addr string) bool {
	return common.IsHexAddress(addr)
}
