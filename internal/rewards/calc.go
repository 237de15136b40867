// Package rewards computes and issues reward-token amounts for savings
// activity. Calculation is pure; issuance goes through the minter
// allow-list and the record store.
package rewards

import (
	sdkmath "cosmossdk.io/math"

	"github.com/stellarsave/savings-engine/internal/apperr"
	"github.com/stellarsave/savings-engine/internal/model"
)

// BasisPointsDenominator converts basis-point multipliers to ratios.
const BasisPointsDenominator = 10_000

// Contribution-size tiers, in basis points applied to the base reward.
var (
	tierHighThreshold = model.Units(100)
	tierMidThreshold  = model.Units(50)
)

// TierBasisPoints returns the contribution-size multiplier: 1.2x at 100
// whole units or more, 1.1x at 50, 1.0x below.
func TierBasisPoints(amount sdkmath.Int) int64 {
	switch {
	case amount.GTE(tierHighThreshold):
		return 12_000
	case amount.GTE(tierMidThreshold):
		return 11_000
	default:
		return 10_000
	}
}

// Calculate returns the reward amount for a contribution.
//
// Contributions below the configured minimum earn nothing. The base amount
// depends on the reward type; the contribution-size tier then scales it,
// floor-divided by the basis-points denominator.
func Calculate(cfg *model.RewardConfig, amount sdkmath.Int, rt model.RewardType, streakWeeks int64) (sdkmath.Int, error) {
	if amount.LT(cfg.MinContributionForReward) {
		return sdkmath.ZeroInt(), nil
	}

	var base sdkmath.Int
	switch rt {
	case model.RewardWeeklyContribution:
		base = cfg.BaseWeeklyReward
	case model.RewardMilestoneReached:
		base = cfg.BaseWeeklyReward.MulRaw(cfg.MilestoneMultiplier).QuoRaw(BasisPointsDenominator)
	case model.RewardChallengeCompleted:
		base = cfg.BaseWeeklyReward.MulRaw(cfg.CompletionMultiplier).QuoRaw(BasisPointsDenominator)
	case model.RewardStreakBonus:
		base = cfg.StreakBonusPerWeek.MulRaw(streakWeeks)
		if base.GT(cfg.MaxStreakBonus) {
			base = cfg.MaxStreakBonus
		}
	case model.RewardReferralBonus:
		base = cfg.ReferralReward
	default:
		return sdkmath.Int{}, apperr.Ef(apperr.KindValidation, "InvalidRewardType",
			"unknown reward type %d", rt)
	}

	return base.MulRaw(TierBasisPoints(amount)).QuoRaw(BasisPointsDenominator), nil
}
