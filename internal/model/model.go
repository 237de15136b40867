// Package model defines the core domain records shared across the savings
// engine. All monetary values use cosmossdk.io/math Int — never float64 or
// int64 for money; intermediate products exceed 64 bits.
//
// Timestamps are unix seconds supplied by the caller-visible clock, never
// sampled mid-operation.
package model

import (
	sdkmath "cosmossdk.io/math"
)

// AmountScale is the number of raw units per whole token (7 decimals).
const AmountScale = 10_000_000

// SecondsPerWeek is the contribution week length.
const SecondsPerWeek = 7 * 24 * 60 * 60

// Units returns n whole tokens as a raw amount.
func Units(n int64) sdkmath.Int {
	return sdkmath.NewInt(n).MulRaw(AmountScale)
}

// Pool is a shared deposit vehicle accruing yield, split proportionally
// among participants. Invariant: TotalDeposited equals the sum of open
// position principals referencing this pool.
type Pool struct {
	ID               int64       `json:"id" db:"id"`
	Name             string      `json:"name" db:"name"`
	BaseCurrency     string      `json:"base_currency" db:"base_currency"`
	TargetCurrency   string      `json:"target_currency" db:"target_currency"`
	Corridor         string      `json:"corridor" db:"corridor"` // e.g. "US-NG"
	TotalDeposited   sdkmath.Int `json:"total_deposited" db:"total_deposited"`
	TotalYieldEarned sdkmath.Int `json:"total_yield_earned" db:"total_yield_earned"`
	APYBasisPoints   int64       `json:"apy_basis_points" db:"apy_basis_points"`
	Participants     []string    `json:"participants" db:"participants"` // set semantics, insertion order
	IsActive         bool        `json:"is_active" db:"is_active"`
	MinDeposit       sdkmath.Int `json:"min_deposit" db:"min_deposit"`
	MaxDeposit       sdkmath.Int `json:"max_deposit" db:"max_deposit"`
	LockDuration     int64       `json:"lock_duration" db:"lock_duration"` // seconds
	CreatedAt        int64       `json:"created_at" db:"created_at"`
}

// HasParticipant reports membership in the pool's participant set.
func (p *Pool) HasParticipant(user string) bool {
	for _, u := range p.Participants {
		if u == user {
			return true
		}
	}
	return false
}

// Position is one participant's stake in a pool. A user holds at most one
// position per pool; re-deposits extend the same stake. Positions are never
// physically deleted — a withdrawn position is zeroed and marked closed.
type Position struct {
	User             string      `json:"user" db:"user_id"`
	PoolID           int64       `json:"pool_id" db:"pool_id"`
	Principal        sdkmath.Int `json:"principal" db:"principal"`
	YieldEarned      sdkmath.Int `json:"yield_earned" db:"yield_earned"`
	DepositTimestamp int64       `json:"deposit_timestamp" db:"deposit_timestamp"`
	LastClaim        int64       `json:"last_claim_timestamp" db:"last_claim_timestamp"`
	LockUntil        int64       `json:"lock_until" db:"lock_until"`
	AutoCompound     bool        `json:"auto_compound" db:"auto_compound"`
	Closed           bool        `json:"closed" db:"closed"`
}

// Challenge is a time-boxed, goal-targeted group savings activity.
// State machine: Active → Finalized, terminal. IsActive may additionally be
// toggled by the administrator to pause contributions; finalization is the
// only terminal transition. Invariant: CurrentAmount equals the sum of all
// contributions.
type Challenge struct {
	ID                   int64       `json:"id" db:"id"`
	Creator              string      `json:"creator" db:"creator"`
	Name                 string      `json:"name" db:"name"`
	Description          string      `json:"description" db:"description"`
	GoalAmount           sdkmath.Int `json:"goal_amount" db:"goal_amount"`
	WeeklyAmount         sdkmath.Int `json:"weekly_amount" db:"weekly_amount"`
	CurrentAmount        sdkmath.Int `json:"current_amount" db:"current_amount"`
	Participants         []string    `json:"participants" db:"participants"`
	CreatedAt            int64       `json:"created_at" db:"created_at"`
	Deadline             int64       `json:"deadline" db:"deadline"`
	IsActive             bool        `json:"is_active" db:"is_active"`
	Finalized            bool        `json:"finalized" db:"finalized"`
	MinWeeklyRequired    bool        `json:"min_weekly_required" db:"min_weekly_required"`
	AllowEarlyWithdrawal bool        `json:"allow_early_withdrawal" db:"allow_early_withdrawal"`
}

// HasParticipant reports membership in the challenge's participant set.
func (c *Challenge) HasParticipant(user string) bool {
	for _, u := range c.Participants {
		if u == user {
			return true
		}
	}
	return false
}

// WeekNumber returns the 1-based contribution week for a timestamp.
func (c *Challenge) WeekNumber(ts int64) int64 {
	return (ts-c.CreatedAt)/SecondsPerWeek + 1
}

// Contribution is one append-only entry in a challenge's contribution log.
// Once recorded, these are never modified or deleted.
type Contribution struct {
	Contributor string      `json:"contributor" db:"contributor"`
	Amount      sdkmath.Int `json:"amount" db:"amount"`
	Timestamp   int64       `json:"timestamp" db:"timestamp"`
	WeekNumber  int64       `json:"week_number" db:"week_number"` // 1-based
}

// ParticipantStats is the materialized per-(challenge, participant)
// accumulator derived from the contribution log.
type ParticipantStats struct {
	TotalContributed  sdkmath.Int `json:"total_contributed" db:"total_contributed"`
	ContributionCount int64       `json:"contribution_count" db:"contribution_count"`
	LastContribution  int64       `json:"last_contribution" db:"last_contribution"`
	CurrentStreak     int64       `json:"current_streak" db:"current_streak"`
}

// NewParticipantStats returns zeroed stats.
func NewParticipantStats() *ParticipantStats {
	return &ParticipantStats{
		TotalContributed: sdkmath.ZeroInt(),
	}
}

// Milestone is a progress threshold. Reached is monotonic: once set it is
// never cleared, and reached milestones are never re-evaluated.
type Milestone struct {
	Description      string      `json:"description" db:"description"`
	TargetAmount     sdkmath.Int `json:"target_amount" db:"target_amount"`
	Reached          bool        `json:"reached" db:"reached"`
	ReachedAt        int64       `json:"reached_at" db:"reached_at"`
	BonusBasisPoints int64       `json:"bonus_basis_points" db:"bonus_basis_points"`
}

// DefaultMilestones returns the standard 25/50/75% milestone ladder for a
// goal amount.
func DefaultMilestones(goal sdkmath.Int) []Milestone {
	return []Milestone{
		{Description: "25% Complete", TargetAmount: goal.QuoRaw(4), BonusBasisPoints: 50},
		{Description: "50% Complete", TargetAmount: goal.QuoRaw(2), BonusBasisPoints: 100},
		{Description: "75% Complete", TargetAmount: goal.MulRaw(3).QuoRaw(4), BonusBasisPoints: 150},
	}
}

// RewardConfig holds reward issuance parameters. Multipliers are basis
// points (10000 = 1x).
type RewardConfig struct {
	BaseWeeklyReward         sdkmath.Int `json:"base_weekly_reward" db:"base_weekly_reward"`
	MilestoneMultiplier      int64       `json:"milestone_multiplier" db:"milestone_multiplier"`
	CompletionMultiplier     int64       `json:"completion_multiplier" db:"completion_multiplier"`
	StreakBonusPerWeek       sdkmath.Int `json:"streak_bonus_per_week" db:"streak_bonus_per_week"`
	MaxStreakBonus           sdkmath.Int `json:"max_streak_bonus" db:"max_streak_bonus"`
	ReferralReward           sdkmath.Int `json:"referral_reward" db:"referral_reward"`
	MinContributionForReward sdkmath.Int `json:"min_contribution_for_reward" db:"min_contribution_for_reward"`
}

// DefaultRewardConfig returns the launch reward parameters.
func DefaultRewardConfig() *RewardConfig {
	return &RewardConfig{
		BaseWeeklyReward:         Units(10),
		MilestoneMultiplier:      15000, // 1.5x
		CompletionMultiplier:     20000, // 2.0x
		StreakBonusPerWeek:       Units(1),
		MaxStreakBonus:           Units(50),
		ReferralReward:           Units(25),
		MinContributionForReward: Units(10),
	}
}

// RewardRecord is an immutable record of one reward issuance.
type RewardRecord struct {
	ID            string      `json:"id" db:"id"`
	Recipient     string      `json:"recipient" db:"recipient"`
	Amount        sdkmath.Int `json:"amount" db:"amount"`
	Type          RewardType  `json:"reward_type" db:"reward_type"`
	ChallengeID   int64       `json:"challenge_id" db:"challenge_id"`
	Timestamp     int64       `json:"timestamp" db:"timestamp"`
	MultiplierBps int64       `json:"multiplier" db:"multiplier"`
}

// DefaultCorridors are the remittance corridors seeded at initialization.
var DefaultCorridors = []string{
	"US-MX", "US-PH", "US-NG", "US-KE", "US-IN", "EU-NG", "CA-JM",
}

// DefaultExchangeRate is the 1:1 rate (scaled by 1e7) substituted when no
// rate record exists for a currency pair.
var DefaultExchangeRate = sdkmath.NewInt(100_0000000)
