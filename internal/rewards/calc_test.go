package rewards

import (
	"testing"

	sdkmath "cosmossdk.io/math"

	"github.com/stellarsave/savings-engine/internal/model"
)

func TestCalculate_WeeklyContributionTiers(t *testing.T) {
	cfg := model.DefaultRewardConfig()

	tests := []struct {
		name   string
		amount sdkmath.Int
		want   sdkmath.Int
	}{
		// 60 units sits in the 50-unit tier: 10 * 1.1 = 11.
		{"mid tier", model.Units(60), model.Units(11)},
		{"high tier", model.Units(100), model.Units(12)},
		{"no tier", model.Units(49), model.Units(10)},
		{"mid tier boundary", model.Units(50), model.Units(11)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Calculate(cfg, tt.amount, model.RewardWeeklyContribution, 0)
			if err != nil {
				t.Fatalf("Calculate: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("amount %s: reward = %s, want %s", tt.amount, got, tt.want)
			}
		})
	}
}

func TestCalculate_BelowMinimumEarnsNothing(t *testing.T) {
	cfg := model.DefaultRewardConfig()
	got, err := Calculate(cfg, model.Units(9), model.RewardWeeklyContribution, 0)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if !got.IsZero() {
		t.Errorf("reward below minimum contribution = %s, want 0", got)
	}
}

func TestCalculate_MilestoneAndCompletion(t *testing.T) {
	cfg := model.DefaultRewardConfig()

	got, err := Calculate(cfg, model.Units(20), model.RewardMilestoneReached, 0)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if !got.Equal(model.Units(15)) {
		t.Errorf("milestone reward = %s, want 15 units", got)
	}

	got, err = Calculate(cfg, model.Units(20), model.RewardChallengeCompleted, 0)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if !got.Equal(model.Units(20)) {
		t.Errorf("completion reward = %s, want 20 units", got)
	}
}

func TestCalculate_StreakBonusCapped(t *testing.T) {
	cfg := model.DefaultRewardConfig()

	got, err := Calculate(cfg, model.Units(20), model.RewardStreakBonus, 12)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if !got.Equal(model.Units(12)) {
		t.Errorf("streak reward = %s, want 12 units", got)
	}

	// 80 weeks exceeds the 50-unit cap.
	got, err = Calculate(cfg, model.Units(20), model.RewardStreakBonus, 80)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if !got.Equal(model.Units(50)) {
		t.Errorf("capped streak reward = %s, want 50 units", got)
	}
}

func TestCalculate_ReferralScaledByTier(t *testing.T) {
	cfg := model.DefaultRewardConfig()
	got, err := Calculate(cfg, model.Units(100), model.RewardReferralBonus, 0)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	// 25 * 1.2 = 30.
	if !got.Equal(model.Units(30)) {
		t.Errorf("referral reward = %s, want 30 units", got)
	}
}

func TestCalculate_UnknownTypeRejected(t *testing.T) {
	cfg := model.DefaultRewardConfig()
	if _, err := Calculate(cfg, model.Units(60), model.RewardType(99), 0); err == nil {
		t.Error("expected error for unknown reward type")
	}
}

func TestTierBasisPoints(t *testing.T) {
	tests := []struct {
		amount sdkmath.Int
		want   int64
	}{
		{model.Units(100), 12_000},
		{model.Units(150), 12_000},
		{model.Units(50), 11_000},
		{model.Units(99), 11_000},
		{model.Units(10), 10_000},
		{sdkmath.ZeroInt(), 10_000},
	}
	for _, tt := range tests {
		if got := TierBasisPoints(tt.amount); got != tt.want {
			t.Errorf("TierBasisPoints(%s) = %d, want %d", tt.amount, got, tt.want)
		}
	}
}
