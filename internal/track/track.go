// Package track evaluates contribution streaks and progress milestones.
// Pure functions: callers load the records, run the evaluation, and persist
// the results inside the same atomic operation.
package track

import (
	"sort"

	sdkmath "cosmossdk.io/math"

	"github.com/stellarsave/savings-engine/internal/model"
)

// GraceWindow is the maximum gap, in seconds, between contributions that
// still extends a streak. One week plus a one-day grace period.
const GraceWindow = 8 * 24 * 60 * 60

// NextStreak returns the streak value after a contribution at now.
// prev is the participant's previous last-contribution timestamp (zero for
// a first-ever contribution); current is the streak before this
// contribution.
func NextStreak(prev, now, current int64) int64 {
	if prev == 0 {
		return 1
	}
	if now-prev <= GraceWindow {
		return current + 1
	}
	return 1
}

// Evaluate marks every unreached milestone whose target is covered by
// currentAmount, in ascending target order. Reached milestones are
// write-once: they are never revisited or cleared. The slice is updated in
// place; the returned indices identify the milestones newly reached by this
// evaluation, in the order they were crossed.
func Evaluate(milestones []model.Milestone, currentAmount sdkmath.Int, now int64) []int {
	order := make([]int, len(milestones))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return milestones[order[a]].TargetAmount.LT(milestones[order[b]].TargetAmount)
	})

	var reached []int
	for _, idx := range order {
		m := &milestones[idx]
		if m.Reached {
			continue
		}
		if currentAmount.GTE(m.TargetAmount) {
			m.Reached = true
			m.ReachedAt = now
			reached = append(reached, idx)
		}
	}
	return reached
}

// GroupAmount sums per-participant contribution totals for group milestone
// evaluation.
func GroupAmount(stats map[string]*model.ParticipantStats) sdkmath.Int {
	total := sdkmath.ZeroInt()
	for _, s := range stats {
		if s != nil {
			total = total.Add(s.TotalContributed)
		}
	}
	return total
}
