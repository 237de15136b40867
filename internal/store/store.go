// Package store defines the persistence boundary for the savings engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
//
// Records are replaced whole on every mutation: callers read, modify, and
// re-persist the full record. Writes performed inside Atomic become visible
// all together or not at all.
package store

import (
	"context"

	sdkmath "cosmossdk.io/math"

	"github.com/stellarsave/savings-engine/internal/model"
)

// Store is the persistence interface.
//
// Get methods return an apperr.KindNotFound error when the record is
// absent, except where a documented default is noted (balances, counters,
// stats), which return the zero value.
type Store interface {
	// Atomic runs fn against a store whose writes commit only if fn
	// returns nil. The engine performs every mutating operation inside one
	// Atomic scope.
	Atomic(ctx context.Context, fn func(Store) error) error

	// --- Singletons ---

	GetAdmin(ctx context.Context) (string, error)
	SetAdmin(ctx context.Context, principal string) error

	// AllocatePoolID returns the next pool identifier and advances the
	// counter. Identifiers start at 1 and increase monotonically.
	AllocatePoolID(ctx context.Context) (int64, error)
	AllocateChallengeID(ctx context.Context) (int64, error)

	// GetTotalValueLocked defaults to zero.
	GetTotalValueLocked(ctx context.Context) (sdkmath.Int, error)
	SetTotalValueLocked(ctx context.Context, tvl sdkmath.Int) error

	// --- Pools & positions ---

	SetPool(ctx context.Context, p *model.Pool) error
	GetPool(ctx context.Context, id int64) (*model.Pool, error)
	ListPools(ctx context.Context) ([]model.Pool, error)

	SetPosition(ctx context.Context, p *model.Position) error
	GetPosition(ctx context.Context, user string, poolID int64) (*model.Position, error)
	ListUserPositions(ctx context.Context, user string) ([]model.Position, error)
	ListPoolPositions(ctx context.Context, poolID int64) ([]model.Position, error)

	// GetExchangeRate returns an apperr.KindNotFound error when no rate is
	// stored; callers substitute the documented 1:1 default.
	GetExchangeRate(ctx context.Context, pair string) (sdkmath.Int, error)
	SetExchangeRate(ctx context.Context, pair string, rate sdkmath.Int) error

	// --- Challenges ---

	SetChallenge(ctx context.Context, c *model.Challenge) error
	GetChallenge(ctx context.Context, id int64) (*model.Challenge, error)
	ListChallenges(ctx context.Context) ([]model.Challenge, error)

	AppendContribution(ctx context.Context, challengeID int64, c model.Contribution) error
	ListContributions(ctx context.Context, challengeID int64) ([]model.Contribution, error)

	// GetParticipantStats defaults to zeroed stats.
	GetParticipantStats(ctx context.Context, challengeID int64, user string) (*model.ParticipantStats, error)
	SetParticipantStats(ctx context.Context, challengeID int64, user string, s *model.ParticipantStats) error

	GetGroupMilestones(ctx context.Context, challengeID int64) ([]model.Milestone, error)
	SetGroupMilestones(ctx context.Context, challengeID int64, ms []model.Milestone) error
	GetUserMilestones(ctx context.Context, challengeID int64, user string) ([]model.Milestone, error)
	SetUserMilestones(ctx context.Context, challengeID int64, user string, ms []model.Milestone) error

	AddUserChallenge(ctx context.Context, user string, challengeID int64) error
	ListUserChallenges(ctx context.Context, user string) ([]int64, error)

	// --- Rewards & token ---

	GetRewardConfig(ctx context.Context) (*model.RewardConfig, error)
	SetRewardConfig(ctx context.Context, cfg *model.RewardConfig) error

	GetMinters(ctx context.Context) ([]string, error)
	SetMinters(ctx context.Context, minters []string) error

	// GetBalance defaults to zero.
	GetBalance(ctx context.Context, user string) (sdkmath.Int, error)
	SetBalance(ctx context.Context, user string, balance sdkmath.Int) error

	// GetTotalSupply defaults to zero.
	GetTotalSupply(ctx context.Context) (sdkmath.Int, error)
	SetTotalSupply(ctx context.Context, supply sdkmath.Int) error

	// GetTotalRewards defaults to zero.
	GetTotalRewards(ctx context.Context) (sdkmath.Int, error)
	SetTotalRewards(ctx context.Context, total sdkmath.Int) error

	// GetRewardStats defaults to zero.
	GetRewardStats(ctx context.Context, rt model.RewardType) (sdkmath.Int, error)
	SetRewardStats(ctx context.Context, rt model.RewardType, total sdkmath.Int) error

	AppendRewardRecord(ctx context.Context, rec model.RewardRecord) error
	ListRewardHistory(ctx context.Context, user string) ([]model.RewardRecord, error)
}
