package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/redis/go-redis/v9"

	"github.com/stellarsave/savings-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary. Pools, challenges, and
// the reward config are cached; everything else passes through.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
	inTx    bool
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// Atomic delegates to the primary store's transaction. Inside the
// transaction the cache is invalidate-only: uncommitted state must never be
// cached.
func (s *CachedStore) Atomic(ctx context.Context, fn func(Store) error) error {
	return s.primary.Atomic(ctx, func(tx Store) error {
		return fn(&CachedStore{primary: tx, rdb: s.rdb, ttl: s.ttl, inTx: true})
	})
}

func poolKey(id int64) string      { return fmt.Sprintf("pool:%d", id) }
func challengeKey(id int64) string { return fmt.Sprintf("challenge:%d", id) }

const rewardConfigKey = "reward_config"

func (s *CachedStore) cacheSet(ctx context.Context, key string, v any) {
	if s.inTx {
		s.rdb.Del(ctx, key)
		return
	}
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

// --- Cached records ---

func (s *CachedStore) SetPool(ctx context.Context, p *model.Pool) error {
	if err := s.primary.SetPool(ctx, p); err != nil {
		return err
	}
	s.cacheSet(ctx, poolKey(p.ID), p)
	return nil
}

func (s *CachedStore) GetPool(ctx context.Context, id int64) (*model.Pool, error) {
	if !s.inTx {
		if data, err := s.rdb.Get(ctx, poolKey(id)).Bytes(); err == nil {
			var p model.Pool
			if json.Unmarshal(data, &p) == nil {
				return &p, nil
			}
		}
	}

	p, err := s.primary.GetPool(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, poolKey(id), p)
	return p, nil
}

func (s *CachedStore) SetChallenge(ctx context.Context, c *model.Challenge) error {
	if err := s.primary.SetChallenge(ctx, c); err != nil {
		return err
	}
	s.cacheSet(ctx, challengeKey(c.ID), c)
	return nil
}

func (s *CachedStore) GetChallenge(ctx context.Context, id int64) (*model.Challenge, error) {
	if !s.inTx {
		if data, err := s.rdb.Get(ctx, challengeKey(id)).Bytes(); err == nil {
			var c model.Challenge
			if json.Unmarshal(data, &c) == nil {
				return &c, nil
			}
		}
	}

	c, err := s.primary.GetChallenge(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, challengeKey(id), c)
	return c, nil
}

func (s *CachedStore) SetRewardConfig(ctx context.Context, cfg *model.RewardConfig) error {
	if err := s.primary.SetRewardConfig(ctx, cfg); err != nil {
		return err
	}
	s.cacheSet(ctx, rewardConfigKey, cfg)
	return nil
}

func (s *CachedStore) GetRewardConfig(ctx context.Context) (*model.RewardConfig, error) {
	if !s.inTx {
		if data, err := s.rdb.Get(ctx, rewardConfigKey).Bytes(); err == nil {
			var cfg model.RewardConfig
			if json.Unmarshal(data, &cfg) == nil {
				return &cfg, nil
			}
		}
	}

	cfg, err := s.primary.GetRewardConfig(ctx)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, rewardConfigKey, cfg)
	return cfg, nil
}

// --- Passthrough ---

func (s *CachedStore) GetAdmin(ctx context.Context) (string, error) { return s.primary.GetAdmin(ctx) }
func (s *CachedStore) SetAdmin(ctx context.Context, principal string) error {
	return s.primary.SetAdmin(ctx, principal)
}

func (s *CachedStore) AllocatePoolID(ctx context.Context) (int64, error) {
	return s.primary.AllocatePoolID(ctx)
}

func (s *CachedStore) AllocateChallengeID(ctx context.Context) (int64, error) {
	return s.primary.AllocateChallengeID(ctx)
}

func (s *CachedStore) GetTotalValueLocked(ctx context.Context) (sdkmath.Int, error) {
	return s.primary.GetTotalValueLocked(ctx)
}

func (s *CachedStore) SetTotalValueLocked(ctx context.Context, tvl sdkmath.Int) error {
	return s.primary.SetTotalValueLocked(ctx, tvl)
}

func (s *CachedStore) ListPools(ctx context.Context) ([]model.Pool, error) {
	return s.primary.ListPools(ctx)
}

func (s *CachedStore) SetPosition(ctx context.Context, p *model.Position) error {
	return s.primary.SetPosition(ctx, p)
}

func (s *CachedStore) GetPosition(ctx context.Context, user string, poolID int64) (*model.Position, error) {
	return s.primary.GetPosition(ctx, user, poolID)
}

func (s *CachedStore) ListUserPositions(ctx context.Context, user string) ([]model.Position, error) {
	return s.primary.ListUserPositions(ctx, user)
}

func (s *CachedStore) ListPoolPositions(ctx context.Context, poolID int64) ([]model.Position, error) {
	return s.primary.ListPoolPositions(ctx, poolID)
}

func (s *CachedStore) GetExchangeRate(ctx context.Context, pair string) (sdkmath.Int, error) {
	return s.primary.GetExchangeRate(ctx, pair)
}

func (s *CachedStore) SetExchangeRate(ctx context.Context, pair string, rate sdkmath.Int) error {
	return s.primary.SetExchangeRate(ctx, pair, rate)
}

func (s *CachedStore) ListChallenges(ctx context.Context) ([]model.Challenge, error) {
	return s.primary.ListChallenges(ctx)
}

func (s *CachedStore) AppendContribution(ctx context.Context, challengeID int64, c model.Contribution) error {
	return s.primary.AppendContribution(ctx, challengeID, c)
}

func (s *CachedStore) ListContributions(ctx context.Context, challengeID int64) ([]model.Contribution, error) {
	return s.primary.ListContributions(ctx, challengeID)
}

func (s *CachedStore) GetParticipantStats(ctx context.Context, challengeID int64, user string) (*model.ParticipantStats, error) {
	return s.primary.GetParticipantStats(ctx, challengeID, user)
}

func (s *CachedStore) SetParticipantStats(ctx context.Context, challengeID int64, user string, st *model.ParticipantStats) error {
	return s.primary.SetParticipantStats(ctx, challengeID, user, st)
}

func (s *CachedStore) GetGroupMilestones(ctx context.Context, challengeID int64) ([]model.Milestone, error) {
	return s.primary.GetGroupMilestones(ctx, challengeID)
}

func (s *CachedStore) SetGroupMilestones(ctx context.Context, challengeID int64, ms []model.Milestone) error {
	return s.primary.SetGroupMilestones(ctx, challengeID, ms)
}

func (s *CachedStore) GetUserMilestones(ctx context.Context, challengeID int64, user string) ([]model.Milestone, error) {
	return s.primary.GetUserMilestones(ctx, challengeID, user)
}

func (s *CachedStore) SetUserMilestones(ctx context.Context, challengeID int64, user string, ms []model.Milestone) error {
	return s.primary.SetUserMilestones(ctx, challengeID, user, ms)
}

func (s *CachedStore) AddUserChallenge(ctx context.Context, user string, challengeID int64) error {
	return s.primary.AddUserChallenge(ctx, user, challengeID)
}

func (s *CachedStore) ListUserChallenges(ctx context.Context, user string) ([]int64, error) {
	return s.primary.ListUserChallenges(ctx, user)
}

func (s *CachedStore) GetMinters(ctx context.Context) ([]string, error) {
	return s.primary.GetMinters(ctx)
}

func (s *CachedStore) SetMinters(ctx context.Context, minters []string) error {
	return s.primary.SetMinters(ctx, minters)
}

func (s *CachedStore) GetBalance(ctx context.Context, user string) (sdkmath.Int, error) {
	return s.primary.GetBalance(ctx, user)
}

func (s *CachedStore) SetBalance(ctx context.Context, user string, balance sdkmath.Int) error {
	return s.primary.SetBalance(ctx, user, balance)
}

func (s *CachedStore) GetTotalSupply(ctx context.Context) (sdkmath.Int, error) {
	return s.primary.GetTotalSupply(ctx)
}

func (s *CachedStore) SetTotalSupply(ctx context.Context, supply sdkmath.Int) error {
	return s.primary.SetTotalSupply(ctx, supply)
}

func (s *CachedStore) GetTotalRewards(ctx context.Context) (sdkmath.Int, error) {
	return s.primary.GetTotalRewards(ctx)
}

func (s *CachedStore) SetTotalRewards(ctx context.Context, total sdkmath.Int) error {
	return s.primary.SetTotalRewards(ctx, total)
}

func (s *CachedStore) GetRewardStats(ctx context.Context, rt model.RewardType) (sdkmath.Int, error) {
	return s.primary.GetRewardStats(ctx, rt)
}

func (s *CachedStore) SetRewardStats(ctx context.Context, rt model.RewardType, total sdkmath.Int) error {
	return s.primary.SetRewardStats(ctx, rt, total)
}

func (s *CachedStore) AppendRewardRecord(ctx context.Context, rec model.RewardRecord) error {
	return s.primary.AppendRewardRecord(ctx, rec)
}

func (s *CachedStore) ListRewardHistory(ctx context.Context, user string) ([]model.RewardRecord, error) {
	return s.primary.ListRewardHistory(ctx, user)
}
