package store

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stellarsave/savings-engine/internal/apperr"
	"github.com/stellarsave/savings-engine/internal/model"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so the same store
// code runs inside and outside Atomic.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact precision.
type PostgresStore struct {
	pool *pgxpool.Pool // nil when bound to a transaction
	q    querier
}

// NewPostgresStore creates a PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, q: pool}
}

// Atomic runs fn inside a transaction. Nested calls join the enclosing
// transaction.
func (s *PostgresStore) Atomic(ctx context.Context, fn func(Store) error) error {
	if s.pool == nil {
		return fn(s)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "StorageError", "begin transaction", err)
	}
	txStore := &PostgresStore{q: tx}
	if err := fn(txStore); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return apperr.Wrap(apperr.KindInternal, "StorageError", "commit transaction", err)
	}
	return nil
}

// EnsureSchema applies the DDL. Safe to run repeatedly.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.q.Exec(ctx, schemaSQL)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS singletons (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS counters (
	name  TEXT PRIMARY KEY,
	value BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS pools (
	id                 BIGINT PRIMARY KEY,
	name               TEXT NOT NULL,
	base_currency      TEXT NOT NULL,
	target_currency    TEXT NOT NULL,
	corridor           TEXT NOT NULL,
	total_deposited    NUMERIC NOT NULL,
	total_yield_earned NUMERIC NOT NULL,
	apy_basis_points   BIGINT NOT NULL,
	participants       TEXT[] NOT NULL DEFAULT '{}',
	is_active          BOOLEAN NOT NULL,
	min_deposit        NUMERIC NOT NULL,
	max_deposit        NUMERIC NOT NULL,
	lock_duration      BIGINT NOT NULL,
	created_at         BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS positions (
	user_id              TEXT NOT NULL,
	pool_id              BIGINT NOT NULL,
	principal            NUMERIC NOT NULL,
	yield_earned         NUMERIC NOT NULL,
	deposit_timestamp    BIGINT NOT NULL,
	last_claim_timestamp BIGINT NOT NULL,
	lock_until           BIGINT NOT NULL,
	auto_compound        BOOLEAN NOT NULL,
	closed               BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (user_id, pool_id)
);
CREATE TABLE IF NOT EXISTS exchange_rates (
	pair TEXT PRIMARY KEY,
	rate NUMERIC NOT NULL
);
CREATE TABLE IF NOT EXISTS challenges (
	id                     BIGINT PRIMARY KEY,
	creator                TEXT NOT NULL,
	name                   TEXT NOT NULL,
	description            TEXT NOT NULL,
	goal_amount            NUMERIC NOT NULL,
	weekly_amount          NUMERIC NOT NULL,
	current_amount         NUMERIC NOT NULL,
	participants           TEXT[] NOT NULL DEFAULT '{}',
	created_at             BIGINT NOT NULL,
	deadline               BIGINT NOT NULL,
	is_active              BOOLEAN NOT NULL,
	finalized              BOOLEAN NOT NULL,
	min_weekly_required    BOOLEAN NOT NULL,
	allow_early_withdrawal BOOLEAN NOT NULL
);
CREATE TABLE IF NOT EXISTS contributions (
	seq          BIGSERIAL PRIMARY KEY,
	challenge_id BIGINT NOT NULL,
	contributor  TEXT NOT NULL,
	amount       NUMERIC NOT NULL,
	ts           BIGINT NOT NULL,
	week_number  BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS contributions_challenge_idx ON contributions (challenge_id, seq);
CREATE TABLE IF NOT EXISTS participant_stats (
	challenge_id       BIGINT NOT NULL,
	user_id            TEXT NOT NULL,
	total_contributed  NUMERIC NOT NULL,
	contribution_count BIGINT NOT NULL,
	last_contribution  BIGINT NOT NULL,
	current_streak     BIGINT NOT NULL,
	PRIMARY KEY (challenge_id, user_id)
);
CREATE TABLE IF NOT EXISTS milestones (
	challenge_id       BIGINT NOT NULL,
	user_id            TEXT NOT NULL DEFAULT '',
	idx                INT NOT NULL,
	description        TEXT NOT NULL,
	target_amount      NUMERIC NOT NULL,
	reached            BOOLEAN NOT NULL,
	reached_at         BIGINT NOT NULL,
	bonus_basis_points BIGINT NOT NULL,
	PRIMARY KEY (challenge_id, user_id, idx)
);
CREATE TABLE IF NOT EXISTS user_challenges (
	user_id      TEXT NOT NULL,
	challenge_id BIGINT NOT NULL,
	PRIMARY KEY (user_id, challenge_id)
);
CREATE TABLE IF NOT EXISTS reward_config (
	id                          BOOLEAN PRIMARY KEY DEFAULT TRUE,
	base_weekly_reward          NUMERIC NOT NULL,
	milestone_multiplier        BIGINT NOT NULL,
	completion_multiplier       BIGINT NOT NULL,
	streak_bonus_per_week       NUMERIC NOT NULL,
	max_streak_bonus            NUMERIC NOT NULL,
	referral_reward             NUMERIC NOT NULL,
	min_contribution_for_reward NUMERIC NOT NULL
);
CREATE TABLE IF NOT EXISTS minters (
	principal TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS balances (
	user_id TEXT PRIMARY KEY,
	balance NUMERIC NOT NULL
);
CREATE TABLE IF NOT EXISTS reward_stats (
	reward_type TEXT PRIMARY KEY,
	total       NUMERIC NOT NULL
);
CREATE TABLE IF NOT EXISTS reward_records (
	id           TEXT PRIMARY KEY,
	recipient    TEXT NOT NULL,
	amount       NUMERIC NOT NULL,
	reward_type  TEXT NOT NULL,
	challenge_id BIGINT NOT NULL,
	ts           BIGINT NOT NULL,
	multiplier   BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS reward_records_recipient_idx ON reward_records (recipient, ts);
`

func parseInt(s string) sdkmath.Int {
	v, ok := sdkmath.NewIntFromString(s)
	if !ok {
		return sdkmath.ZeroInt()
	}
	return v
}

// --- Singletons ---

func (s *PostgresStore) getSingleton(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.q.QueryRow(ctx, `SELECT value FROM singletons WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperr.Wrap(apperr.KindInternal, "StorageError", "get "+key, err)
	}
	return value, true, nil
}

func (s *PostgresStore) setSingleton(ctx context.Context, key, value string) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO singletons (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "StorageError", "set "+key, err)
	}
	return nil
}

func (s *PostgresStore) getAmountSingleton(ctx context.Context, key string) (sdkmath.Int, error) {
	value, ok, err := s.getSingleton(ctx, key)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if !ok {
		return sdkmath.ZeroInt(), nil
	}
	return parseInt(value), nil
}

func (s *PostgresStore) GetAdmin(ctx context.Context) (string, error) {
	admin, ok, err := s.getSingleton(ctx, "admin")
	if err != nil {
		return "", err
	}
	if !ok {
		return "", apperr.E(apperr.KindNotFound, "NotInitialized", "administrator not set")
	}
	return admin, nil
}

func (s *PostgresStore) SetAdmin(ctx context.Context, principal string) error {
	return s.setSingleton(ctx, "admin", principal)
}

func (s *PostgresStore) allocateID(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.q.QueryRow(ctx,
		`INSERT INTO counters (name, value) VALUES ($1, 1)
		 ON CONFLICT (name) DO UPDATE SET value = counters.value + 1
		 RETURNING value`, name).Scan(&id)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "StorageError", "allocate "+name, err)
	}
	return id, nil
}

func (s *PostgresStore) AllocatePoolID(ctx context.Context) (int64, error) {
	return s.allocateID(ctx, "pool_id")
}

func (s *PostgresStore) AllocateChallengeID(ctx context.Context) (int64, error) {
	return s.allocateID(ctx, "challenge_id")
}

func (s *PostgresStore) GetTotalValueLocked(ctx context.Context) (sdkmath.Int, error) {
	return s.getAmountSingleton(ctx, "tvl")
}

func (s *PostgresStore) SetTotalValueLocked(ctx context.Context, tvl sdkmath.Int) error {
	return s.setSingleton(ctx, "tvl", tvl.String())
}

// --- Pools & positions ---

func (s *PostgresStore) SetPool(ctx context.Context, p *model.Pool) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO pools (id, name, base_currency, target_currency, corridor,
		        total_deposited, total_yield_earned, apy_basis_points, participants,
		        is_active, min_deposit, max_deposit, lock_duration, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8, $9, $10, $11::NUMERIC, $12::NUMERIC, $13, $14)
		 ON CONFLICT (id) DO UPDATE SET
		        name = EXCLUDED.name,
		        base_currency = EXCLUDED.base_currency,
		        target_currency = EXCLUDED.target_currency,
		        corridor = EXCLUDED.corridor,
		        total_deposited = EXCLUDED.total_deposited,
		        total_yield_earned = EXCLUDED.total_yield_earned,
		        apy_basis_points = EXCLUDED.apy_basis_points,
		        participants = EXCLUDED.participants,
		        is_active = EXCLUDED.is_active,
		        min_deposit = EXCLUDED.min_deposit,
		        max_deposit = EXCLUDED.max_deposit,
		        lock_duration = EXCLUDED.lock_duration,
		        created_at = EXCLUDED.created_at`,
		p.ID, p.Name, p.BaseCurrency, p.TargetCurrency, p.Corridor,
		p.TotalDeposited.String(), p.TotalYieldEarned.String(), p.APYBasisPoints, p.Participants,
		p.IsActive, p.MinDeposit.String(), p.MaxDeposit.String(), p.LockDuration, p.CreatedAt)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "StorageError", "set pool", err)
	}
	return nil
}

const poolColumns = `id, name, base_currency, target_currency, corridor,
	total_deposited::TEXT, total_yield_earned::TEXT, apy_basis_points, participants,
	is_active, min_deposit::TEXT, max_deposit::TEXT, lock_duration, created_at`

func scanPool(row pgx.Row) (*model.Pool, error) {
	var p model.Pool
	var totalDeposited, totalYield, minDeposit, maxDeposit string
	err := row.Scan(&p.ID, &p.Name, &p.BaseCurrency, &p.TargetCurrency, &p.Corridor,
		&totalDeposited, &totalYield, &p.APYBasisPoints, &p.Participants,
		&p.IsActive, &minDeposit, &maxDeposit, &p.LockDuration, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.TotalDeposited = parseInt(totalDeposited)
	p.TotalYieldEarned = parseInt(totalYield)
	p.MinDeposit = parseInt(minDeposit)
	p.MaxDeposit = parseInt(maxDeposit)
	return &p, nil
}

func (s *PostgresStore) GetPool(ctx context.Context, id int64) (*model.Pool, error) {
	p, err := scanPool(s.q.QueryRow(ctx, `SELECT `+poolColumns+` FROM pools WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Ef(apperr.KindNotFound, "PoolNotFound", "pool %d not found", id)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "StorageError", "get pool", err)
	}
	return p, nil
}

func (s *PostgresStore) ListPools(ctx context.Context) ([]model.Pool, error) {
	rows, err := s.q.Query(ctx, `SELECT `+poolColumns+` FROM pools ORDER BY id`)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "StorageError", "list pools", err)
	}
	defer rows.Close()

	var pools []model.Pool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "StorageError", "scan pool", err)
		}
		pools = append(pools, *p)
	}
	return pools, rows.Err()
}

func (s *PostgresStore) SetPosition(ctx context.Context, p *model.Position) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO positions (user_id, pool_id, principal, yield_earned,
		        deposit_timestamp, last_claim_timestamp, lock_until, auto_compound, closed)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5, $6, $7, $8, $9)
		 ON CONFLICT (user_id, pool_id) DO UPDATE SET
		        principal = EXCLUDED.principal,
		        yield_earned = EXCLUDED.yield_earned,
		        deposit_timestamp = EXCLUDED.deposit_timestamp,
		        last_claim_timestamp = EXCLUDED.last_claim_timestamp,
		        lock_until = EXCLUDED.lock_until,
		        auto_compound = EXCLUDED.auto_compound,
		        closed = EXCLUDED.closed`,
		p.User, p.PoolID, p.Principal.String(), p.YieldEarned.String(),
		p.DepositTimestamp, p.LastClaim, p.LockUntil, p.AutoCompound, p.Closed)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "StorageError", "set position", err)
	}
	return nil
}

const positionColumns = `user_id, pool_id, principal::TEXT, yield_earned::TEXT,
	deposit_timestamp, last_claim_timestamp, lock_until, auto_compound, closed`

func scanPosition(row pgx.Row) (*model.Position, error) {
	var p model.Position
	var principal, yield string
	err := row.Scan(&p.User, &p.PoolID, &principal, &yield,
		&p.DepositTimestamp, &p.LastClaim, &p.LockUntil, &p.AutoCompound, &p.Closed)
	if err != nil {
		return nil, err
	}
	p.Principal = parseInt(principal)
	p.YieldEarned = parseInt(yield)
	return &p, nil
}

func (s *PostgresStore) GetPosition(ctx context.Context, user string, poolID int64) (*model.Position, error) {
	p, err := scanPosition(s.q.QueryRow(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE user_id = $1 AND pool_id = $2`, user, poolID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Ef(apperr.KindNotFound, "PositionNotFound",
			"no position for %s in pool %d", user, poolID)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "StorageError", "get position", err)
	}
	return p, nil
}

func (s *PostgresStore) listPositions(ctx context.Context, where string, arg any) ([]model.Position, error) {
	rows, err := s.q.Query(ctx, `SELECT `+positionColumns+` FROM positions WHERE `+where, arg)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "StorageError", "list positions", err)
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "StorageError", "scan position", err)
		}
		positions = append(positions, *p)
	}
	return positions, rows.Err()
}

func (s *PostgresStore) ListUserPositions(ctx context.Context, user string) ([]model.Position, error) {
	return s.listPositions(ctx, `user_id = $1 ORDER BY pool_id`, user)
}

func (s *PostgresStore) ListPoolPositions(ctx context.Context, poolID int64) ([]model.Position, error) {
	return s.listPositions(ctx, `pool_id = $1 ORDER BY user_id`, poolID)
}

func (s *PostgresStore) GetExchangeRate(ctx context.Context, pair string) (sdkmath.Int, error) {
	var rate string
	err := s.q.QueryRow(ctx, `SELECT rate::TEXT FROM exchange_rates WHERE pair = $1`, pair).Scan(&rate)
	if errors.Is(err, pgx.ErrNoRows) {
		return sdkmath.Int{}, apperr.Ef(apperr.KindNotFound, "ExchangeRateNotFound", "no rate for pair %s", pair)
	}
	if err != nil {
		return sdkmath.Int{}, apperr.Wrap(apperr.KindInternal, "StorageError", "get rate", err)
	}
	return parseInt(rate), nil
}

func (s *PostgresStore) SetExchangeRate(ctx context.Context, pair string, rate sdkmath.Int) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO exchange_rates (pair, rate) VALUES ($1, $2::NUMERIC)
		 ON CONFLICT (pair) DO UPDATE SET rate = EXCLUDED.rate`, pair, rate.String())
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "StorageError", "set rate", err)
	}
	return nil
}

// --- Challenges ---

func (s *PostgresStore) SetChallenge(ctx context.Context, c *model.Challenge) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO challenges (id, creator, name, description, goal_amount, weekly_amount,
		        current_amount, participants, created_at, deadline, is_active, finalized,
		        min_weekly_required, allow_early_withdrawal)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (id) DO UPDATE SET
		        creator = EXCLUDED.creator,
		        name = EXCLUDED.name,
		        description = EXCLUDED.description,
		        goal_amount = EXCLUDED.goal_amount,
		        weekly_amount = EXCLUDED.weekly_amount,
		        current_amount = EXCLUDED.current_amount,
		        participants = EXCLUDED.participants,
		        created_at = EXCLUDED.created_at,
		        deadline = EXCLUDED.deadline,
		        is_active = EXCLUDED.is_active,
		        finalized = EXCLUDED.finalized,
		        min_weekly_required = EXCLUDED.min_weekly_required,
		        allow_early_withdrawal = EXCLUDED.allow_early_withdrawal`,
		c.ID, c.Creator, c.Name, c.Description, c.GoalAmount.String(), c.WeeklyAmount.String(),
		c.CurrentAmount.String(), c.Participants, c.CreatedAt, c.Deadline, c.IsActive, c.Finalized,
		c.MinWeeklyRequired, c.AllowEarlyWithdrawal)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "StorageError", "set challenge", err)
	}
	return nil
}

const challengeColumns = `id, creator, name, description, goal_amount::TEXT, weekly_amount::TEXT,
	current_amount::TEXT, participants, created_at, deadline, is_active, finalized,
	min_weekly_required, allow_early_withdrawal`

func scanChallenge(row pgx.Row) (*model.Challenge, error) {
	var c model.Challenge
	var goal, weekly, current string
	err := row.Scan(&c.ID, &c.Creator, &c.Name, &c.Description, &goal, &weekly,
		&current, &c.Participants, &c.CreatedAt, &c.Deadline, &c.IsActive, &c.Finalized,
		&c.MinWeeklyRequired, &c.AllowEarlyWithdrawal)
	if err != nil {
		return nil, err
	}
	c.GoalAmount = parseInt(goal)
	c.WeeklyAmount = parseInt(weekly)
	c.CurrentAmount = parseInt(current)
	return &c, nil
}

func (s *PostgresStore) GetChallenge(ctx context.Context, id int64) (*model.Challenge, error) {
	c, err := scanChallenge(s.q.QueryRow(ctx, `SELECT `+challengeColumns+` FROM challenges WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Ef(apperr.KindNotFound, "ChallengeNotFound", "challenge %d not found", id)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "StorageError", "get challenge", err)
	}
	return c, nil
}

func (s *PostgresStore) ListChallenges(ctx context.Context) ([]model.Challenge, error) {
	rows, err := s.q.Query(ctx, `SELECT `+challengeColumns+` FROM challenges ORDER BY id`)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "StorageError", "list challenges", err)
	}
	defer rows.Close()

	var challenges []model.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "StorageError", "scan challenge", err)
		}
		challenges = append(challenges, *c)
	}
	return challenges, rows.Err()
}

func (s *PostgresStore) AppendContribution(ctx context.Context, challengeID int64, c model.Contribution) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO contributions (challenge_id, contributor, amount, ts, week_number)
		 VALUES ($1, $2, $3::NUMERIC, $4, $5)`,
		challengeID, c.Contributor, c.Amount.String(), c.Timestamp, c.WeekNumber)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "StorageError", "append contribution", err)
	}
	return nil
}

func (s *PostgresStore) ListContributions(ctx context.Context, challengeID int64) ([]model.Contribution, error) {
	rows, err := s.q.Query(ctx,
		`SELECT contributor, amount::TEXT, ts, week_number
		 FROM contributions WHERE challenge_id = $1 ORDER BY seq`, challengeID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "StorageError", "list contributions", err)
	}
	defer rows.Close()

	var contribs []model.Contribution
	for rows.Next() {
		var c model.Contribution
		var amount string
		if err := rows.Scan(&c.Contributor, &amount, &c.Timestamp, &c.WeekNumber); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "StorageError", "scan contribution", err)
		}
		c.Amount = parseInt(amount)
		contribs = append(contribs, c)
	}
	return contribs, rows.Err()
}

func (s *PostgresStore) GetParticipantStats(ctx context.Context, challengeID int64, user string) (*model.ParticipantStats, error) {
	var st model.ParticipantStats
	var total string
	err := s.q.QueryRow(ctx,
		`SELECT total_contributed::TEXT, contribution_count, last_contribution, current_streak
		 FROM participant_stats WHERE challenge_id = $1 AND user_id = $2`, challengeID, user).
		Scan(&total, &st.ContributionCount, &st.LastContribution, &st.CurrentStreak)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.NewParticipantStats(), nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "StorageError", "get participant stats", err)
	}
	st.TotalContributed = parseInt(total)
	return &st, nil
}

func (s *PostgresStore) SetParticipantStats(ctx context.Context, challengeID int64, user string, st *model.ParticipantStats) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO participant_stats (challenge_id, user_id, total_contributed,
		        contribution_count, last_contribution, current_streak)
		 VALUES ($1, $2, $3::NUMERIC, $4, $5, $6)
		 ON CONFLICT (challenge_id, user_id) DO UPDATE SET
		        total_contributed = EXCLUDED.total_contributed,
		        contribution_count = EXCLUDED.contribution_count,
		        last_contribution = EXCLUDED.last_contribution,
		        current_streak = EXCLUDED.current_streak`,
		challengeID, user, st.TotalContributed.String(),
		st.ContributionCount, st.LastContribution, st.CurrentStreak)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "StorageError", "set participant stats", err)
	}
	return nil
}

func (s *PostgresStore) getMilestones(ctx context.Context, challengeID int64, user string) ([]model.Milestone, error) {
	rows, err := s.q.Query(ctx,
		`SELECT description, target_amount::TEXT, reached, reached_at, bonus_basis_points
		 FROM milestones WHERE challenge_id = $1 AND user_id = $2 ORDER BY idx`, challengeID, user)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "StorageError", "get milestones", err)
	}
	defer rows.Close()

	var ms []model.Milestone
	for rows.Next() {
		var m model.Milestone
		var target string
		if err := rows.Scan(&m.Description, &target, &m.Reached, &m.ReachedAt, &m.BonusBasisPoints); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "StorageError", "scan milestone", err)
		}
		m.TargetAmount = parseInt(target)
		ms = append(ms, m)
	}
	return ms, rows.Err()
}

func (s *PostgresStore) setMilestones(ctx context.Context, challengeID int64, user string, ms []model.Milestone) error {
	// Full-record replace: delete and re-insert the set.
	if _, err := s.q.Exec(ctx,
		`DELETE FROM milestones WHERE challenge_id = $1 AND user_id = $2`, challengeID, user); err != nil {
		return apperr.Wrap(apperr.KindInternal, "StorageError", "clear milestones", err)
	}
	for i, m := range ms {
		if _, err := s.q.Exec(ctx,
			`INSERT INTO milestones (challenge_id, user_id, idx, description, target_amount,
			        reached, reached_at, bonus_basis_points)
			 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, $7, $8)`,
			challengeID, user, i, m.Description, m.TargetAmount.String(),
			m.Reached, m.ReachedAt, m.BonusBasisPoints); err != nil {
			return apperr.Wrap(apperr.KindInternal, "StorageError", "insert milestone", err)
		}
	}
	return nil
}

func (s *PostgresStore) GetGroupMilestones(ctx context.Context, challengeID int64) ([]model.Milestone, error) {
	return s.getMilestones(ctx, challengeID, "")
}

func (s *PostgresStore) SetGroupMilestones(ctx context.Context, challengeID int64, ms []model.Milestone) error {
	return s.setMilestones(ctx, challengeID, "", ms)
}

func (s *PostgresStore) GetUserMilestones(ctx context.Context, challengeID int64, user string) ([]model.Milestone, error) {
	return s.getMilestones(ctx, challengeID, user)
}

func (s *PostgresStore) SetUserMilestones(ctx context.Context, challengeID int64, user string, ms []model.Milestone) error {
	return s.setMilestones(ctx, challengeID, user, ms)
}

func (s *PostgresStore) AddUserChallenge(ctx context.Context, user string, challengeID int64) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO user_challenges (user_id, challenge_id) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`, user, challengeID)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "StorageError", "add user challenge", err)
	}
	return nil
}

func (s *PostgresStore) ListUserChallenges(ctx context.Context, user string) ([]int64, error) {
	rows, err := s.q.Query(ctx,
		`SELECT challenge_id FROM user_challenges WHERE user_id = $1 ORDER BY challenge_id`, user)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "StorageError", "list user challenges", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "StorageError", "scan challenge id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- Rewards & token ---

func (s *PostgresStore) GetRewardConfig(ctx context.Context) (*model.RewardConfig, error) {
	var cfg model.RewardConfig
	var base, streakBonus, maxStreak, referral, minContribution string
	err := s.q.QueryRow(ctx,
		`SELECT base_weekly_reward::TEXT, milestone_multiplier, completion_multiplier,
		        streak_bonus_per_week::TEXT, max_streak_bonus::TEXT, referral_reward::TEXT,
		        min_contribution_for_reward::TEXT
		 FROM reward_config WHERE id = TRUE`).
		Scan(&base, &cfg.MilestoneMultiplier, &cfg.CompletionMultiplier,
			&streakBonus, &maxStreak, &referral, &minContribution)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.E(apperr.KindNotFound, "RewardConfigNotSet", "reward config not set")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "StorageError", "get reward config", err)
	}
	cfg.BaseWeeklyReward = parseInt(base)
	cfg.StreakBonusPerWeek = parseInt(streakBonus)
	cfg.MaxStreakBonus = parseInt(maxStreak)
	cfg.ReferralReward = parseInt(referral)
	cfg.MinContributionForReward = parseInt(minContribution)
	return &cfg, nil
}

func (s *PostgresStore) SetRewardConfig(ctx context.Context, cfg *model.RewardConfig) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO reward_config (id, base_weekly_reward, milestone_multiplier,
		        completion_multiplier, streak_bonus_per_week, max_streak_bonus,
		        referral_reward, min_contribution_for_reward)
		 VALUES (TRUE, $1::NUMERIC, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC)
		 ON CONFLICT (id) DO UPDATE SET
		        base_weekly_reward = EXCLUDED.base_weekly_reward,
		        milestone_multiplier = EXCLUDED.milestone_multiplier,
		        completion_multiplier = EXCLUDED.completion_multiplier,
		        streak_bonus_per_week = EXCLUDED.streak_bonus_per_week,
		        max_streak_bonus = EXCLUDED.max_streak_bonus,
		        referral_reward = EXCLUDED.referral_reward,
		        min_contribution_for_reward = EXCLUDED.min_contribution_for_reward`,
		cfg.BaseWeeklyReward.String(), cfg.MilestoneMultiplier, cfg.CompletionMultiplier,
		cfg.StreakBonusPerWeek.String(), cfg.MaxStreakBonus.String(),
		cfg.ReferralReward.String(), cfg.MinContributionForReward.String())
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "StorageError", "set reward config", err)
	}
	return nil
}

func (s *PostgresStore) GetMinters(ctx context.Context) ([]string, error) {
	rows, err := s.q.Query(ctx, `SELECT principal FROM minters ORDER BY principal`)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "StorageError", "get minters", err)
	}
	defer rows.Close()

	var minters []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "StorageError", "scan minter", err)
		}
		minters = append(minters, p)
	}
	return minters, rows.Err()
}

func (s *PostgresStore) SetMinters(ctx context.Context, minters []string) error {
	if _, err := s.q.Exec(ctx, `DELETE FROM minters`); err != nil {
		return apperr.Wrap(apperr.KindInternal, "StorageError", "clear minters", err)
	}
	for _, p := range minters {
		if _, err := s.q.Exec(ctx,
			`INSERT INTO minters (principal) VALUES ($1) ON CONFLICT DO NOTHING`, p); err != nil {
			return apperr.Wrap(apperr.KindInternal, "StorageError", "insert minter", err)
		}
	}
	return nil
}

func (s *PostgresStore) GetBalance(ctx context.Context, user string) (sdkmath.Int, error) {
	var balance string
	err := s.q.QueryRow(ctx, `SELECT balance::TEXT FROM balances WHERE user_id = $1`, user).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return sdkmath.ZeroInt(), nil
	}
	if err != nil {
		return sdkmath.Int{}, apperr.Wrap(apperr.KindInternal, "StorageError", "get balance", err)
	}
	return parseInt(balance), nil
}

func (s *PostgresStore) SetBalance(ctx context.Context, user string, balance sdkmath.Int) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO balances (user_id, balance) VALUES ($1, $2::NUMERIC)
		 ON CONFLICT (user_id) DO UPDATE SET balance = EXCLUDED.balance`, user, balance.String())
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "StorageError", "set balance", err)
	}
	return nil
}

func (s *PostgresStore) GetTotalSupply(ctx context.Context) (sdkmath.Int, error) {
	return s.getAmountSingleton(ctx, "total_supply")
}

func (s *PostgresStore) SetTotalSupply(ctx context.Context, supply sdkmath.Int) error {
	return s.setSingleton(ctx, "total_supply", supply.String())
}

func (s *PostgresStore) GetTotalRewards(ctx context.Context) (sdkmath.Int, error) {
	return s.getAmountSingleton(ctx, "total_rewards")
}

func (s *PostgresStore) SetTotalRewards(ctx context.Context, total sdkmath.Int) error {
	return s.setSingleton(ctx, "total_rewards", total.String())
}

func (s *PostgresStore) GetRewardStats(ctx context.Context, rt model.RewardType) (sdkmath.Int, error) {
	var total string
	err := s.q.QueryRow(ctx, `SELECT total::TEXT FROM reward_stats WHERE reward_type = $1`, rt.String()).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return sdkmath.ZeroInt(), nil
	}
	if err != nil {
		return sdkmath.Int{}, apperr.Wrap(apperr.KindInternal, "StorageError", "get reward stats", err)
	}
	return parseInt(total), nil
}

func (s *PostgresStore) SetRewardStats(ctx context.Context, rt model.RewardType, total sdkmath.Int) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO reward_stats (reward_type, total) VALUES ($1, $2::NUMERIC)
		 ON CONFLICT (reward_type) DO UPDATE SET total = EXCLUDED.total`, rt.String(), total.String())
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "StorageError", "set reward stats", err)
	}
	return nil
}

func (s *PostgresStore) AppendRewardRecord(ctx context.Context, rec model.RewardRecord) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO reward_records (id, recipient, amount, reward_type, challenge_id, ts, multiplier)
		 VALUES ($1, $2, $3::NUMERIC, $4, $5, $6, $7)`,
		rec.ID, rec.Recipient, rec.Amount.String(), rec.Type.String(),
		rec.ChallengeID, rec.Timestamp, rec.MultiplierBps)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "StorageError", "append reward record", err)
	}
	return nil
}

func (s *PostgresStore) ListRewardHistory(ctx context.Context, user string) ([]model.RewardRecord, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, recipient, amount::TEXT, reward_type, challenge_id, ts, multiplier
		 FROM reward_records WHERE recipient = $1 ORDER BY ts`, user)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "StorageError", "list reward history", err)
	}
	defer rows.Close()

	var recs []model.RewardRecord
	for rows.Next() {
		var rec model.RewardRecord
		var amount, rtName string
		if err := rows.Scan(&rec.ID, &rec.Recipient, &amount, &rtName,
			&rec.ChallengeID, &rec.Timestamp, &rec.MultiplierBps); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "StorageError", "scan reward record", err)
		}
		rec.Amount = parseInt(amount)
		if rt, err := model.ParseRewardType(rtName); err == nil {
			rec.Type = rt
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
