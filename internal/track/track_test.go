package track

import (
	"testing"

	sdkmath "cosmossdk.io/math"

	"github.com/stellarsave/savings-engine/internal/model"
)

const day = 24 * 60 * 60

func i(n int64) sdkmath.Int { return sdkmath.NewInt(n) }

func TestNextStreak_FirstContribution(t *testing.T) {
	if got := NextStreak(0, 1000, 0); got != 1 {
		t.Errorf("first contribution should start streak at 1, got %d", got)
	}
}

func TestNextStreak_WithinGrace(t *testing.T) {
	tests := []struct {
		name    string
		gap     int64
		current int64
		want    int64
	}{
		{"next day", 1 * day, 1, 2},
		{"exactly one week", 7 * day, 3, 4},
		{"at grace boundary", 8 * day, 5, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := int64(100_000)
			if got := NextStreak(prev, prev+tt.gap, tt.current); got != tt.want {
				t.Errorf("gap %dd: got %d, want %d", tt.gap/day, got, tt.want)
			}
		})
	}
}

func TestNextStreak_GapResets(t *testing.T) {
	// Contribute in week 1, then again three weeks later: the gap exceeds
	// the 8-day grace window, so the streak resets to 1.
	week1 := int64(1_000_000)
	week4 := week1 + 21*day

	if got := NextStreak(week1, week4, 1); got != 1 {
		t.Errorf("streak should reset to 1 after 3-week gap, got %d", got)
	}

	// One second past the boundary also resets.
	if got := NextStreak(week1, week1+8*day+1, 4); got != 1 {
		t.Errorf("streak should reset just past the grace window, got %d", got)
	}
}

func TestEvaluate_MarksReachedAscending(t *testing.T) {
	// Deliberately out of order to confirm ascending-target evaluation.
	ms := []model.Milestone{
		{Description: "50% Complete", TargetAmount: i(500)},
		{Description: "25% Complete", TargetAmount: i(250)},
		{Description: "75% Complete", TargetAmount: i(750)},
	}

	reached := Evaluate(ms, i(600), 42)

	if len(reached) != 2 {
		t.Fatalf("expected 2 milestones reached, got %d", len(reached))
	}
	// 25% (index 1) crosses before 50% (index 0).
	if reached[0] != 1 || reached[1] != 0 {
		t.Errorf("expected ascending-order indices [1 0], got %v", reached)
	}
	for _, idx := range reached {
		if !ms[idx].Reached || ms[idx].ReachedAt != 42 {
			t.Errorf("milestone %q not marked correctly: %+v", ms[idx].Description, ms[idx])
		}
	}
	if ms[2].Reached {
		t.Error("75% milestone should not be reached at 600")
	}
}

func TestEvaluate_Monotonic(t *testing.T) {
	ms := []model.Milestone{
		{Description: "25% Complete", TargetAmount: i(250)},
	}

	if reached := Evaluate(ms, i(300), 10); len(reached) != 1 {
		t.Fatalf("expected milestone reached, got %v", reached)
	}

	// A later evaluation with a lower amount must not clear the flag or
	// touch the timestamp, and must not report it again.
	if reached := Evaluate(ms, i(0), 99); len(reached) != 0 {
		t.Errorf("reached milestone re-reported: %v", reached)
	}
	if !ms[0].Reached {
		t.Error("reached flag was cleared")
	}
	if ms[0].ReachedAt != 10 {
		t.Errorf("reached_at changed from 10 to %d", ms[0].ReachedAt)
	}
}

func TestEvaluate_ExactTarget(t *testing.T) {
	ms := []model.Milestone{{Description: "25% Complete", TargetAmount: i(250)}}
	if reached := Evaluate(ms, i(250), 1); len(reached) != 1 {
		t.Error("milestone at exactly the target amount should be reached")
	}
}

func TestGroupAmount(t *testing.T) {
	stats := map[string]*model.ParticipantStats{
		"alice": {TotalContributed: i(300)},
		"bob":   {TotalContributed: i(700)},
		"carol": nil,
	}
	if got := GroupAmount(stats); !got.Equal(i(1000)) {
		t.Errorf("group amount = %s, want 1000", got)
	}
}

func TestDefaultMilestones(t *testing.T) {
	ms := model.DefaultMilestones(model.Units(1000))
	if len(ms) != 3 {
		t.Fatalf("expected 3 default milestones, got %d", len(ms))
	}
	if !ms[0].TargetAmount.Equal(model.Units(250)) {
		t.Errorf("25%% target = %s", ms[0].TargetAmount)
	}
	if !ms[1].TargetAmount.Equal(model.Units(500)) {
		t.Errorf("50%% target = %s", ms[1].TargetAmount)
	}
	if !ms[2].TargetAmount.Equal(model.Units(750)) {
		t.Errorf("75%% target = %s", ms[2].TargetAmount)
	}
}
