// Package events publishes engine lifecycle events to subscribers.
package events

// Event is a notification emitted after a state change commits.
type Event struct {
	Type        string `json:"type"`
	PoolID      int64  `json:"pool_id,omitempty"`
	ChallengeID int64  `json:"challenge_id,omitempty"`
	User        string `json:"user,omitempty"`
	Amount      string `json:"amount,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// Event types emitted by the engine.
const (
	TypePoolCreated      = "pool_created"
	TypeDeposit          = "deposit"
	TypeWithdrawal       = "withdrawal"
	TypeYieldDistributed = "yield_distributed"
	TypeChallengeCreated = "challenge_created"
	TypeContribution     = "contribution"
	TypeMilestoneReached = "milestone_reached"
	TypeGoalReached      = "goal_reached"
	TypeFinalized        = "challenge_finalized"
	TypeRewardMinted     = "reward_minted"
)

// Emitter delivers events to interested subscribers. Delivery is best
// effort; emission never blocks or fails the originating operation.
type Emitter interface {
	Emit(ev Event)
}

// Noop discards every event. Used in tests and when no hub is wired.
type Noop struct{}

func (Noop) Emit(Event) {}
