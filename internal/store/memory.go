package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/stellarsave/savings-engine/internal/apperr"
	"github.com/stellarsave/savings-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Atomic takes a full snapshot and restores it on failure;
// the engine serializes mutating operations, so a mutation never races
// another mutation's rollback.
type MemoryStore struct {
	txMu sync.Mutex // one Atomic scope at a time
	mu   sync.RWMutex
	s    memState
}

type memState struct {
	admin           string
	hasAdmin        bool
	nextPoolID      int64
	nextChallengeID int64
	tvl             sdkmath.Int

	pools     map[int64]*model.Pool
	positions map[string]*model.Position // user|pool
	rates     map[string]sdkmath.Int

	challenges      map[int64]*model.Challenge
	contributions   map[int64][]model.Contribution
	stats           map[string]*model.ParticipantStats // challenge|user
	groupMilestones map[int64][]model.Milestone
	userMilestones  map[string][]model.Milestone // challenge|user
	userChallenges  map[string][]int64

	rewardCfg     *model.RewardConfig
	minters       []string
	balances      map[string]sdkmath.Int
	totalSupply   sdkmath.Int
	totalRewards  sdkmath.Int
	rewardStats   map[model.RewardType]sdkmath.Int
	rewardHistory map[string][]model.RewardRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{s: newMemState()}
}

func newMemState() memState {
	return memState{
		tvl:             sdkmath.ZeroInt(),
		totalSupply:     sdkmath.ZeroInt(),
		totalRewards:    sdkmath.ZeroInt(),
		pools:           make(map[int64]*model.Pool),
		positions:       make(map[string]*model.Position),
		rates:           make(map[string]sdkmath.Int),
		challenges:      make(map[int64]*model.Challenge),
		contributions:   make(map[int64][]model.Contribution),
		stats:           make(map[string]*model.ParticipantStats),
		groupMilestones: make(map[int64][]model.Milestone),
		userMilestones:  make(map[string][]model.Milestone),
		userChallenges:  make(map[string][]int64),
		balances:        make(map[string]sdkmath.Int),
		rewardStats:     make(map[model.RewardType]sdkmath.Int),
		rewardHistory:   make(map[string][]model.RewardRecord),
	}
}

func posKey(user string, poolID int64) string      { return fmt.Sprintf("%s|%d", user, poolID) }
func statsKey(challengeID int64, user string) string { return fmt.Sprintf("%d|%s", challengeID, user) }

// Atomic snapshots the full state and restores it if fn fails.
func (m *MemoryStore) Atomic(_ context.Context, fn func(Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snap := m.s.clone()
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.s = snap
		m.mu.Unlock()
		return err
	}
	return nil
}

// --- Singletons ---

func (m *MemoryStore) GetAdmin(_ context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.s.hasAdmin {
		return "", apperr.E(apperr.KindNotFound, "NotInitialized", "administrator not set")
	}
	return m.s.admin, nil
}

func (m *MemoryStore) SetAdmin(_ context.Context, principal string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.admin = principal
	m.s.hasAdmin = true
	return nil
}

func (m *MemoryStore) AllocatePoolID(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.s.nextPoolID == 0 {
		m.s.nextPoolID = 1
	}
	id := m.s.nextPoolID
	m.s.nextPoolID++
	return id, nil
}

func (m *MemoryStore) AllocateChallengeID(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.s.nextChallengeID == 0 {
		m.s.nextChallengeID = 1
	}
	id := m.s.nextChallengeID
	m.s.nextChallengeID++
	return id, nil
}

func (m *MemoryStore) GetTotalValueLocked(_ context.Context) (sdkmath.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.tvl, nil
}

func (m *MemoryStore) SetTotalValueLocked(_ context.Context, tvl sdkmath.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.tvl = tvl
	return nil
}

// --- Pools & positions ---

func (m *MemoryStore) SetPool(_ context.Context, p *model.Pool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := clonePool(p)
	m.s.pools[p.ID] = cp
	return nil
}

func (m *MemoryStore) GetPool(_ context.Context, id int64) (*model.Pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.s.pools[id]
	if !ok {
		return nil, apperr.Ef(apperr.KindNotFound, "PoolNotFound", "pool %d not found", id)
	}
	return clonePool(p), nil
}

func (m *MemoryStore) ListPools(_ context.Context) ([]model.Pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pools := make([]model.Pool, 0, len(m.s.pools))
	for _, p := range m.s.pools {
		pools = append(pools, *clonePool(p))
	}
	sort.Slice(pools, func(i, j int) bool { return pools[i].ID < pools[j].ID })
	return pools, nil
}

func (m *MemoryStore) SetPosition(_ context.Context, p *model.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.s.positions[posKey(p.User, p.PoolID)] = &cp
	return nil
}

func (m *MemoryStore) GetPosition(_ context.Context, user string, poolID int64) (*model.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.s.positions[posKey(user, poolID)]
	if !ok {
		return nil, apperr.Ef(apperr.KindNotFound, "PositionNotFound",
			"no position for %s in pool %d", user, poolID)
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) ListUserPositions(_ context.Context, user string) ([]model.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var positions []model.Position
	for _, p := range m.s.positions {
		if p.User == user {
			positions = append(positions, *p)
		}
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].PoolID < positions[j].PoolID })
	return positions, nil
}

func (m *MemoryStore) ListPoolPositions(_ context.Context, poolID int64) ([]model.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var positions []model.Position
	for _, p := range m.s.positions {
		if p.PoolID == poolID {
			positions = append(positions, *p)
		}
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].User < positions[j].User })
	return positions, nil
}

func (m *MemoryStore) GetExchangeRate(_ context.Context, pair string) (sdkmath.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rate, ok := m.s.rates[pair]
	if !ok {
		return sdkmath.Int{}, apperr.Ef(apperr.KindNotFound, "ExchangeRateNotFound",
			"no rate for pair %s", pair)
	}
	return rate, nil
}

func (m *MemoryStore) SetExchangeRate(_ context.Context, pair string, rate sdkmath.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.rates[pair] = rate
	return nil
}

// --- Challenges ---

func (m *MemoryStore) SetChallenge(_ context.Context, c *model.Challenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.challenges[c.ID] = cloneChallenge(c)
	return nil
}

func (m *MemoryStore) GetChallenge(_ context.Context, id int64) (*model.Challenge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.s.challenges[id]
	if !ok {
		return nil, apperr.Ef(apperr.KindNotFound, "ChallengeNotFound", "challenge %d not found", id)
	}
	return cloneChallenge(c), nil
}

func (m *MemoryStore) ListChallenges(_ context.Context) ([]model.Challenge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	challenges := make([]model.Challenge, 0, len(m.s.challenges))
	for _, c := range m.s.challenges {
		challenges = append(challenges, *cloneChallenge(c))
	}
	sort.Slice(challenges, func(i, j int) bool { return challenges[i].ID < challenges[j].ID })
	return challenges, nil
}

func (m *MemoryStore) AppendContribution(_ context.Context, challengeID int64, c model.Contribution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.contributions[challengeID] = append(m.s.contributions[challengeID], c)
	return nil
}

func (m *MemoryStore) ListContributions(_ context.Context, challengeID int64) ([]model.Contribution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	contribs := m.s.contributions[challengeID]
	out := make([]model.Contribution, len(contribs))
	copy(out, contribs)
	return out, nil
}

func (m *MemoryStore) GetParticipantStats(_ context.Context, challengeID int64, user string) (*model.ParticipantStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.s.stats[statsKey(challengeID, user)]
	if !ok {
		return model.NewParticipantStats(), nil
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) SetParticipantStats(_ context.Context, challengeID int64, user string, s *model.ParticipantStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.s.stats[statsKey(challengeID, user)] = &cp
	return nil
}

func (m *MemoryStore) GetGroupMilestones(_ context.Context, challengeID int64) ([]model.Milestone, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ms := m.s.groupMilestones[challengeID]
	out := make([]model.Milestone, len(ms))
	copy(out, ms)
	return out, nil
}

func (m *MemoryStore) SetGroupMilestones(_ context.Context, challengeID int64, ms []model.Milestone) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]model.Milestone, len(ms))
	copy(cp, ms)
	m.s.groupMilestones[challengeID] = cp
	return nil
}

func (m *MemoryStore) GetUserMilestones(_ context.Context, challengeID int64, user string) ([]model.Milestone, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ms := m.s.userMilestones[statsKey(challengeID, user)]
	out := make([]model.Milestone, len(ms))
	copy(out, ms)
	return out, nil
}

func (m *MemoryStore) SetUserMilestones(_ context.Context, challengeID int64, user string, ms []model.Milestone) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]model.Milestone, len(ms))
	copy(cp, ms)
	m.s.userMilestones[statsKey(challengeID, user)] = cp
	return nil
}

func (m *MemoryStore) AddUserChallenge(_ context.Context, user string, challengeID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.s.userChallenges[user] {
		if id == challengeID {
			return nil
		}
	}
	m.s.userChallenges[user] = append(m.s.userChallenges[user], challengeID)
	return nil
}

func (m *MemoryStore) ListUserChallenges(_ context.Context, user string) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.s.userChallenges[user]
	out := make([]int64, len(ids))
	copy(out, ids)
	return out, nil
}

// --- Rewards & token ---

func (m *MemoryStore) GetRewardConfig(_ context.Context) (*model.RewardConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.s.rewardCfg == nil {
		return nil, apperr.E(apperr.KindNotFound, "RewardConfigNotSet", "reward config not set")
	}
	cp := *m.s.rewardCfg
	return &cp, nil
}

func (m *MemoryStore) SetRewardConfig(_ context.Context, cfg *model.RewardConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *cfg
	m.s.rewardCfg = &cp
	return nil
}

func (m *MemoryStore) GetMinters(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.s.minters))
	copy(out, m.s.minters)
	return out, nil
}

func (m *MemoryStore) SetMinters(_ context.Context, minters []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]string, len(minters))
	copy(cp, minters)
	m.s.minters = cp
	return nil
}

func (m *MemoryStore) GetBalance(_ context.Context, user string) (sdkmath.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if b, ok := m.s.balances[user]; ok {
		return b, nil
	}
	return sdkmath.ZeroInt(), nil
}

func (m *MemoryStore) SetBalance(_ context.Context, user string, balance sdkmath.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.balances[user] = balance
	return nil
}

func (m *MemoryStore) GetTotalSupply(_ context.Context) (sdkmath.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.totalSupply, nil
}

func (m *MemoryStore) SetTotalSupply(_ context.Context, supply sdkmath.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.totalSupply = supply
	return nil
}

func (m *MemoryStore) GetTotalRewards(_ context.Context) (sdkmath.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.totalRewards, nil
}

func (m *MemoryStore) SetTotalRewards(_ context.Context, total sdkmath.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.totalRewards = total
	return nil
}

func (m *MemoryStore) GetRewardStats(_ context.Context, rt model.RewardType) (sdkmath.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.s.rewardStats[rt]; ok {
		return v, nil
	}
	return sdkmath.ZeroInt(), nil
}

func (m *MemoryStore) SetRewardStats(_ context.Context, rt model.RewardType, total sdkmath.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.rewardStats[rt] = total
	return nil
}

func (m *MemoryStore) AppendRewardRecord(_ context.Context, rec model.RewardRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.rewardHistory[rec.Recipient] = append(m.s.rewardHistory[rec.Recipient], rec)
	return nil
}

func (m *MemoryStore) ListRewardHistory(_ context.Context, user string) ([]model.RewardRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := m.s.rewardHistory[user]
	out := make([]model.RewardRecord, len(recs))
	copy(out, recs)
	return out, nil
}

// --- Cloning (sdkmath.Int has value semantics; only slices need copying) ---

func clonePool(p *model.Pool) *model.Pool {
	cp := *p
	cp.Participants = append([]string(nil), p.Participants...)
	return &cp
}

func cloneChallenge(c *model.Challenge) *model.Challenge {
	cp := *c
	cp.Participants = append([]string(nil), c.Participants...)
	return &cp
}

func (s memState) clone() memState {
	out := s

	out.pools = make(map[int64]*model.Pool, len(s.pools))
	for k, v := range s.pools {
		out.pools[k] = clonePool(v)
	}
	out.positions = make(map[string]*model.Position, len(s.positions))
	for k, v := range s.positions {
		cp := *v
		out.positions[k] = &cp
	}
	out.rates = make(map[string]sdkmath.Int, len(s.rates))
	for k, v := range s.rates {
		out.rates[k] = v
	}
	out.challenges = make(map[int64]*model.Challenge, len(s.challenges))
	for k, v := range s.challenges {
		out.challenges[k] = cloneChallenge(v)
	}
	out.contributions = make(map[int64][]model.Contribution, len(s.contributions))
	for k, v := range s.contributions {
		out.contributions[k] = append([]model.Contribution(nil), v...)
	}
	out.stats = make(map[string]*model.ParticipantStats, len(s.stats))
	for k, v := range s.stats {
		cp := *v
		out.stats[k] = &cp
	}
	out.groupMilestones = make(map[int64][]model.Milestone, len(s.groupMilestones))
	for k, v := range s.groupMilestones {
		out.groupMilestones[k] = append([]model.Milestone(nil), v...)
	}
	out.userMilestones = make(map[string][]model.Milestone, len(s.userMilestones))
	for k, v := range s.userMilestones {
		out.userMilestones[k] = append([]model.Milestone(nil), v...)
	}
	out.userChallenges = make(map[string][]int64, len(s.userChallenges))
	for k, v := range s.userChallenges {
		out.userChallenges[k] = append([]int64(nil), v...)
	}
	if s.rewardCfg != nil {
		cp := *s.rewardCfg
		out.rewardCfg = &cp
	}
	out.minters = append([]string(nil), s.minters...)
	out.balances = make(map[string]sdkmath.Int, len(s.balances))
	for k, v := range s.balances {
		out.balances[k] = v
	}
	out.rewardStats = make(map[model.RewardType]sdkmath.Int, len(s.rewardStats))
	for k, v := range s.rewardStats {
		out.rewardStats[k] = v
	}
	out.rewardHistory = make(map[string][]model.RewardRecord, len(s.rewardHistory))
	for k, v := range s.rewardHistory {
		out.rewardHistory[k] = append([]model.RewardRecord(nil), v...)
	}
	return out
}
