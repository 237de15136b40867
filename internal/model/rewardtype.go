package model

import (
	"encoding/json"
	"fmt"
)

// RewardType is the closed set of reward issuance reasons. Every switch
// over RewardType must enumerate all variants and reject anything else;
// there is no catch-all behavior.
type RewardType uint8

const (
	RewardWeeklyContribution RewardType = iota + 1
	RewardMilestoneReached
	RewardChallengeCompleted
	RewardStreakBonus
	RewardReferralBonus
)

// RewardTypes lists every valid variant, for iteration and validation.
var RewardTypes = []RewardType{
	RewardWeeklyContribution,
	RewardMilestoneReached,
	RewardChallengeCompleted,
	RewardStreakBonus,
	RewardReferralBonus,
}

var rewardTypeNames = map[RewardType]string{
	RewardWeeklyContribution: "weekly_contribution",
	RewardMilestoneReached:   "milestone_reached",
	RewardChallengeCompleted: "challenge_completed",
	RewardStreakBonus:        "streak_bonus",
	RewardReferralBonus:      "referral_bonus",
}

// Valid reports whether t is a known variant.
func (t RewardType) Valid() bool {
	_, ok := rewardTypeNames[t]
	return ok
}

func (t RewardType) String() string {
	if name, ok := rewardTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("reward_type(%d)", uint8(t))
}

// ParseRewardType resolves a wire name to a variant.
func ParseRewardType(s string) (RewardType, error) {
	for t, name := range rewardTypeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown reward type %q", s)
}

// MarshalJSON encodes the variant by name.
func (t RewardType) MarshalJSON() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("cannot marshal %s", t)
	}
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes a variant name.
func (t *RewardType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRewardType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
