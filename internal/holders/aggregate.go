package holders

import (
	"math"
	"math/big"
	"sort"

	"github.com/element-scan/holders-indexer/internal/domain"
	"github.com/element-scan/holders-indexer/internal/registry"
)

// Aggregate folds the ownership book, token attributes, and rewards into
// ranked holder records plus contract-wide metrics. Tokens without a
// resolved tier are excluded; a wallet whose tokens are all excluded does
// not appear in the result. All base-unit amounts are converted to
// decimal here and nowhere else.
func Aggregate(cfg *registry.ContractConfig, book *Book, attrs *TokenAttributes, rewards map[string]*big.Int) ([]domain.Holder, domain.GlobalMetrics) {
	metrics := domain.GlobalMetrics{
		TotalLive:        book.LiveCount(),
		TotalBurned:      book.TotalBurned,
		TotalMinted:      book.TotalMinted,
		TierDistribution: make([]int, cfg.MaxTier+1),
	}

	walletTokens := book.WalletTokens()
	wallets := make([]string, 0, len(walletTokens))
	for wallet := range walletTokens {
		wallets = append(wallets, wallet)
	}
	sort.Strings(wallets)

	result := make([]domain.Holder, 0, len(wallets))
	for _, wallet := range wallets {
		var holder domain.Holder
		holder.Wallet = wallet
		holder.Tiers = make([]int, cfg.MaxTier+1)

		sharesSum := new(big.Int)
		lockedSum := new(big.Int)
		for _, id := range walletTokens[wallet] {
			tier, ok := attrs.Tiers[id]
			if !ok {
				continue
			}
			holder.TokenIDs = append(holder.TokenIDs, id)
			holder.Tiers[tier]++
			holder.MultiplierSum += cfg.MultiplierFor(tier)
			metrics.TierDistribution[tier]++
			if shares := attrs.Shares[id]; shares != nil {
				sharesSum.Add(sharesSum, shares)
			}
			if locked := attrs.Locked[id]; locked != nil {
				lockedSum.Add(lockedSum, locked)
			}
		}
		if len(holder.TokenIDs) == 0 {
			continue
		}

		holder.Total = len(holder.TokenIDs)
		holder.DisplayMultiplierSum = sanitize(holder.MultiplierSum * cfg.DisplayScale)
		holder.ClaimableRewards = baseToDecimal(rewards[wallet], cfg.RewardDecimals)
		holder.Shares = baseToDecimal(sharesSum, cfg.RewardDecimals)
		holder.LockedAmount = baseToDecimal(lockedSum, cfg.RewardDecimals)

		metrics.MultiplierPool += holder.MultiplierSum
		result = append(result, holder)
	}
	metrics.MultiplierPool = sanitize(metrics.MultiplierPool)

	rankAndShare(cfg, result)
	return result, metrics
}

// rankAndShare orders holders and assigns pool percentages and ranks.
// Percentage is always the holder's share of the multiplier pool; the
// configured rank key only changes the sort order. Ordering is total:
// rank key descending, then token count descending, then wallet
// ascending, so repeated runs over identical data produce identical
// output and ranks are a contiguous 1..N permutation.
func rankAndShare(cfg *registry.ContractConfig, holders []domain.Holder) {
	var pool float64
	for i := range holders {
		pool += holders[i].MultiplierSum
	}

	for i := range holders {
		if pool > 0 {
			holders[i].Percentage = sanitize(holders[i].MultiplierSum / pool * 100)
		}
	}

	sort.Slice(holders, func(i, j int) bool {
		vi, vj := rankValue(cfg, &holders[i]), rankValue(cfg, &holders[j])
		if vi != vj {
			return vi > vj
		}
		if holders[i].Total != holders[j].Total {
			return holders[i].Total > holders[j].Total
		}
		return holders[i].Wallet < holders[j].Wallet
	})

	for i := range holders {
		holders[i].Rank = i + 1
	}
}

func rankValue(cfg *registry.ContractConfig, h *domain.Holder) float64 {
	if cfg.RankBy == registry.RankByShares {
		return h.Shares
	}
	return h.MultiplierSum
}

// baseToDecimal converts a base-unit amount to a decimal float. Precision
// loss past float64's 15 significant digits is accepted for display.
func baseToDecimal(x *big.Int, decimals int) float64 {
	if x == nil || x.Sign() == 0 {
		return 0
	}
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	out, _ := new(big.Float).Quo(new(big.Float).SetInt(x), scale).Float64()
	return sanitize(out)
}

// sanitize coerces NaN and infinities to zero so they never reach JSON
func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
