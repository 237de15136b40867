// Package pool provides the HTTP handlers and business logic for the pool
// and position ledger: deposits, withdrawals, yield distribution, and
// exchange rates.
//
// All monetary values use cosmossdk.io/math Int — never float64 for money.
package pool

import (
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/go-chi/chi/v5"

	"github.com/stellarsave/savings-engine/internal/apperr"
	"github.com/stellarsave/savings-engine/internal/auth"
	"github.com/stellarsave/savings-engine/internal/events"
	"github.com/stellarsave/savings-engine/internal/metrics"
	"github.com/stellarsave/savings-engine/internal/model"
	"github.com/stellarsave/savings-engine/internal/split"
	"github.com/stellarsave/savings-engine/internal/store"
)

// DaysPerYear is the projection horizon divisor for simple-interest yield
// estimates.
const DaysPerYear = 365

// Service handles pool operations. Uses a mutex for serialized mutation
// (single-instance). For horizontal scaling, replace with distributed
// locking or database-level optimistic concurrency.
type Service struct {
	store   store.Store
	gate    auth.Gate
	emitter events.Emitter
	mu      sync.Mutex
	now     func() int64
}

// NewService creates a pool service. Pass nil emitter to disable
// notifications.
func NewService(st store.Store, gate auth.Gate, emitter events.Emitter) *Service {
	if emitter == nil {
		emitter = events.Noop{}
	}
	return &Service{
		store:   st,
		gate:    gate,
		emitter: emitter,
		now:     func() int64 { return time.Now().Unix() },
	}
}

// SetClock overrides the time source. Test hook.
func (s *Service) SetClock(now func() int64) { s.now = now }

func (s *Service) requireAdmin(r *http.Request) error {
	admin, err := s.store.GetAdmin(r.Context())
	if err != nil {
		return err
	}
	return s.gate.Require(r, admin)
}

// --- Request/Response types ---

// InitializeRequest is the JSON body for POST /api/v1/initialize.
type InitializeRequest struct {
	Admin string `json:"admin"`
}

// CreatePoolRequest is the JSON body for POST /api/v1/pools.
type CreatePoolRequest struct {
	Name           string      `json:"name"`
	BaseCurrency   string      `json:"base_currency"`
	TargetCurrency string      `json:"target_currency"`
	Corridor       string      `json:"corridor"`
	APYBasisPoints int64       `json:"apy_basis_points"`
	MinDeposit     sdkmath.Int `json:"min_deposit"`
	MaxDeposit     sdkmath.Int `json:"max_deposit"`
	LockDuration   int64       `json:"lock_duration"`
}

// DepositRequest is the JSON body for POST /api/v1/pools/{poolID}/deposit.
type DepositRequest struct {
	User         string      `json:"user"`
	Amount       sdkmath.Int `json:"amount"`
	AutoCompound bool        `json:"auto_compound"`
}

// WithdrawRequest is the JSON body for withdrawal endpoints.
type WithdrawRequest struct {
	User string `json:"user"`
}

// DistributeRequest is the JSON body for POST /api/v1/pools/{poolID}/distribute.
type DistributeRequest struct {
	TotalYield sdkmath.Int `json:"total_yield"`
}

// RateRequest is the JSON body for PUT /api/v1/rates/{pair}.
type RateRequest struct {
	Rate sdkmath.Int `json:"rate"`
}

// WithdrawResponse reports the settled amounts.
type WithdrawResponse struct {
	User      string      `json:"user"`
	PoolID    int64       `json:"pool_id"`
	Principal sdkmath.Int `json:"principal"`
	Yield     sdkmath.Int `json:"yield"`
	Total     sdkmath.Int `json:"total"`
}

// --- HTTP Handlers ---

// Initialize handles POST /api/v1/initialize.
// One-time setup: records the administrator, seeds the default reward
// config and the 1:1 exchange rates for the launch corridors.
func (s *Service) Initialize(w http.ResponseWriter, r *http.Request) {
	var req InitializeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Admin == "" {
		writeError(w, apperr.E(apperr.KindValidation, "InvalidRequest", "admin is required"))
		return
	}
	if err := s.gate.Require(r, req.Admin); err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.store.Atomic(ctx, func(tx store.Store) error {
		if _, err := tx.GetAdmin(ctx); err == nil {
			return apperr.E(apperr.KindState, "AlreadyInitialized", "engine already initialized")
		}
		if err := tx.SetAdmin(ctx, req.Admin); err != nil {
			return err
		}
		if err := tx.SetTotalValueLocked(ctx, sdkmath.ZeroInt()); err != nil {
			return err
		}
		if err := tx.SetRewardConfig(ctx, model.DefaultRewardConfig()); err != nil {
			return err
		}
		for _, corridor := range model.DefaultCorridors {
			if err := tx.SetExchangeRate(ctx, corridor, model.DefaultExchangeRate); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}

	slog.Info("engine initialized", "admin", req.Admin)
	writeJSON(w, http.StatusCreated, map[string]string{"admin": req.Admin})
}

// CreatePool handles POST /api/v1/pools (administrator only).
func (s *Service) CreatePool(w http.ResponseWriter, r *http.Request) {
	if err := s.requireAdmin(r); err != nil {
		writeError(w, err)
		return
	}

	var req CreatePoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.E(apperr.KindValidation, "InvalidRequest", "invalid request body"))
		return
	}
	if req.Name == "" {
		writeError(w, apperr.E(apperr.KindValidation, "InvalidRequest", "name is required"))
		return
	}
	if req.MinDeposit.IsNil() || req.MaxDeposit.IsNil() ||
		!req.MinDeposit.IsPositive() || !req.MaxDeposit.IsPositive() {
		writeError(w, apperr.E(apperr.KindValidation, "InvalidAmount", "deposit bounds must be positive"))
		return
	}
	if req.MinDeposit.GT(req.MaxDeposit) {
		writeError(w, apperr.E(apperr.KindValidation, "InvalidAmount", "min_deposit exceeds max_deposit"))
		return
	}
	if req.APYBasisPoints < 0 {
		writeError(w, apperr.E(apperr.KindValidation, "InvalidRequest", "apy_basis_points must be non-negative"))
		return
	}
	if req.LockDuration < 0 {
		writeError(w, apperr.E(apperr.KindValidation, "InvalidRequest", "lock_duration must be non-negative"))
		return
	}

	ctx := r.Context()

	s.mu.Lock()
	defer s.mu.Unlock()

	var created *model.Pool
	err := s.store.Atomic(ctx, func(tx store.Store) error {
		id, err := tx.AllocatePoolID(ctx)
		if err != nil {
			return err
		}
		created = &model.Pool{
			ID:               id,
			Name:             req.Name,
			BaseCurrency:     req.BaseCurrency,
			TargetCurrency:   req.TargetCurrency,
			Corridor:         req.Corridor,
			TotalDeposited:   sdkmath.ZeroInt(),
			TotalYieldEarned: sdkmath.ZeroInt(),
			APYBasisPoints:   req.APYBasisPoints,
			Participants:     []string{},
			IsActive:         true,
			MinDeposit:       req.MinDeposit,
			MaxDeposit:       req.MaxDeposit,
			LockDuration:     req.LockDuration,
			CreatedAt:        s.now(),
		}
		return tx.SetPool(ctx, created)
	})
	if err != nil {
		writeError(w, err)
		return
	}

	slog.Info("pool created",
		"id", created.ID,
		"name", created.Name,
		"corridor", created.Corridor,
		"apy_bps", created.APYBasisPoints,
	)
	s.emitter.Emit(events.Event{Type: events.TypePoolCreated, PoolID: created.ID, Detail: created.Name})

	writeJSON(w, http.StatusCreated, created)
}

// Deposit handles POST /api/v1/pools/{poolID}/deposit.
func (s *Service) Deposit(w http.ResponseWriter, r *http.Request) {
	poolID, err := parseID(chi.URLParam(r, "poolID"))
	if err != nil {
		writeError(w, err)
		return
	}

	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.E(apperr.KindValidation, "InvalidRequest", "invalid request body"))
		return
	}
	if err := s.gate.Require(r, req.User); err != nil {
		writeError(w, err)
		return
	}
	if req.Amount.IsNil() || !req.Amount.IsPositive() {
		writeError(w, apperr.E(apperr.KindValidation, "InvalidAmount", "amount must be positive"))
		return
	}

	ctx := r.Context()
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var position *model.Position
	err = s.store.Atomic(ctx, func(tx store.Store) error {
		p, err := tx.GetPool(ctx, poolID)
		if err != nil {
			return err
		}
		if !p.IsActive {
			return apperr.Ef(apperr.KindState, "PoolInactive", "pool %d is not active", poolID)
		}
		if req.Amount.LT(p.MinDeposit) {
			return apperr.Ef(apperr.KindValidation, "MinDepositNotMet",
				"deposit %s below pool minimum %s", req.Amount, p.MinDeposit)
		}
		if req.Amount.GT(p.MaxDeposit) {
			return apperr.Ef(apperr.KindValidation, "MaxDepositExceeded",
				"deposit %s above pool maximum %s", req.Amount, p.MaxDeposit)
		}

		position, err = tx.GetPosition(ctx, req.User, poolID)
		if err != nil {
			if apperr.KindOf(err) != apperr.KindNotFound {
				return err
			}
			position = &model.Position{
				User:             req.User,
				PoolID:           poolID,
				Principal:        sdkmath.ZeroInt(),
				YieldEarned:      sdkmath.ZeroInt(),
				DepositTimestamp: now,
				LastClaim:        now,
			}
		}

		// Re-deposit extends the stake and refreshes the lock.
		position.Principal = position.Principal.Add(req.Amount)
		position.LockUntil = now + p.LockDuration
		position.AutoCompound = req.AutoCompound
		position.Closed = false
		if err := tx.SetPosition(ctx, position); err != nil {
			return err
		}

		if !p.HasParticipant(req.User) {
			p.Participants = append(p.Participants, req.User)
		}
		p.TotalDeposited = p.TotalDeposited.Add(req.Amount)
		if err := tx.SetPool(ctx, p); err != nil {
			return err
		}

		tvl, err := tx.GetTotalValueLocked(ctx)
		if err != nil {
			return err
		}
		return tx.SetTotalValueLocked(ctx, tvl.Add(req.Amount))
	})
	if err != nil {
		writeError(w, err)
		return
	}

	metrics.DepositsTotal.WithLabelValues(strconv.FormatInt(poolID, 10)).Inc()
	slog.Info("deposit",
		"pool", poolID,
		"user", req.User,
		"amount", req.Amount.String(),
		"auto_compound", req.AutoCompound,
	)
	s.emitter.Emit(events.Event{
		Type:   events.TypeDeposit,
		PoolID: poolID,
		User:   req.User,
		Amount: req.Amount.String(),
	})

	writeJSON(w, http.StatusOK, position)
}

// Withdraw handles POST /api/v1/pools/{poolID}/withdraw.
// Pays out principal plus accumulated yield; rejected while the lock is in
// force.
func (s *Service) Withdraw(w http.ResponseWriter, r *http.Request) {
	poolID, err := parseID(chi.URLParam(r, "poolID"))
	if err != nil {
		writeError(w, err)
		return
	}

	var req WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.E(apperr.KindValidation, "InvalidRequest", "invalid request body"))
		return
	}
	if err := s.gate.Require(r, req.User); err != nil {
		writeError(w, err)
		return
	}

	s.settleWithdrawal(w, r, poolID, req.User, false)
}

// EmergencyWithdraw handles POST /api/v1/pools/{poolID}/emergency-withdraw.
// Administrator-authorized lock bypass; settlement is otherwise identical
// to a normal withdrawal.
func (s *Service) EmergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	poolID, err := parseID(chi.URLParam(r, "poolID"))
	if err != nil {
		writeError(w, err)
		return
	}

	var req WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.User == "" {
		writeError(w, apperr.E(apperr.KindValidation, "InvalidRequest", "user is required"))
		return
	}
	if err := s.requireAdmin(r); err != nil {
		writeError(w, err)
		return
	}

	s.settleWithdrawal(w, r, poolID, req.User, true)
}

func (s *Service) settleWithdrawal(w http.ResponseWriter, r *http.Request, poolID int64, user string, bypassLock bool) {
	ctx := r.Context()
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var resp WithdrawResponse
	err := s.store.Atomic(ctx, func(tx store.Store) error {
		p, err := tx.GetPool(ctx, poolID)
		if err != nil {
			return err
		}
		position, err := tx.GetPosition(ctx, user, poolID)
		if err != nil {
			return err
		}
		if position.Closed || position.Principal.IsZero() {
			return apperr.Ef(apperr.KindState, "PositionClosed",
				"no open position for %s in pool %d", user, poolID)
		}
		if !bypassLock && now < position.LockUntil {
			return apperr.Ef(apperr.KindState, "PositionLocked",
				"position locked until %d", position.LockUntil)
		}

		principal := position.Principal
		yield := position.YieldEarned
		resp = WithdrawResponse{
			User:      user,
			PoolID:    poolID,
			Principal: principal,
			Yield:     yield,
			Total:     principal.Add(yield),
		}

		// Zero the position but keep the record for history.
		position.Principal = sdkmath.ZeroInt()
		position.YieldEarned = sdkmath.ZeroInt()
		position.LastClaim = now
		position.Closed = true
		if err := tx.SetPosition(ctx, position); err != nil {
			return err
		}

		p.TotalDeposited = p.TotalDeposited.Sub(principal)
		kept := make([]string, 0, len(p.Participants))
		for _, u := range p.Participants {
			if u != user {
				kept = append(kept, u)
			}
		}
		p.Participants = kept
		if err := tx.SetPool(ctx, p); err != nil {
			return err
		}

		tvl, err := tx.GetTotalValueLocked(ctx)
		if err != nil {
			return err
		}
		return tx.SetTotalValueLocked(ctx, tvl.Sub(principal))
	})
	if err != nil {
		writeError(w, err)
		return
	}

	kind := "normal"
	if bypassLock {
		kind = "emergency"
	}
	metrics.WithdrawalsTotal.WithLabelValues(kind).Inc()
	slog.Info("withdrawal",
		"pool", poolID,
		"user", user,
		"principal", resp.Principal.String(),
		"yield", resp.Yield.String(),
		"kind", kind,
	)
	s.emitter.Emit(events.Event{
		Type:   events.TypeWithdrawal,
		PoolID: poolID,
		User:   user,
		Amount: resp.Total.String(),
		Detail: kind,
	})

	writeJSON(w, http.StatusOK, resp)
}

// DistributeYield handles POST /api/v1/pools/{poolID}/distribute
// (administrator only).
//
// Each participant receives floor(principal * total_yield /
// total_deposited). Auto-compounding positions fold their share back into
// principal and the pool total immediately, which enlarges the denominator
// for participants evaluated later in the same call. The floor remainder
// stays with the pool.
func (s *Service) DistributeYield(w http.ResponseWriter, r *http.Request) {
	poolID, err := parseID(chi.URLParam(r, "poolID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.requireAdmin(r); err != nil {
		writeError(w, err)
		return
	}

	var req DistributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.E(apperr.KindValidation, "InvalidRequest", "invalid request body"))
		return
	}
	if req.TotalYield.IsNil() || !req.TotalYield.IsPositive() {
		writeError(w, apperr.E(apperr.KindValidation, "InvalidAmount", "total_yield must be positive"))
		return
	}

	ctx := r.Context()

	s.mu.Lock()
	defer s.mu.Unlock()

	var allocated sdkmath.Int
	err = s.store.Atomic(ctx, func(tx store.Store) error {
		p, err := tx.GetPool(ctx, poolID)
		if err != nil {
			return err
		}
		if !p.TotalDeposited.IsPositive() {
			return apperr.Ef(apperr.KindArithmetic, "ZeroTotalDeposits",
				"pool %d has no deposits to distribute against", poolID)
		}

		stakes := make([]split.Stake, 0, len(p.Participants))
		positions := make(map[string]*model.Position, len(p.Participants))
		for _, user := range p.Participants {
			position, err := tx.GetPosition(ctx, user, poolID)
			if err != nil {
				return err
			}
			positions[user] = position
			stakes = append(stakes, split.Stake{
				User:      user,
				Principal: position.Principal,
				Compound:  position.AutoCompound,
			})
		}

		allocations, newTotal, err := split.Distribute(stakes, req.TotalYield, p.TotalDeposited)
		if err != nil {
			return apperr.Wrap(apperr.KindArithmetic, "ZeroTotalDeposits", "distribute", err)
		}

		growth := newTotal.Sub(p.TotalDeposited)
		for _, a := range allocations {
			position := positions[a.User]
			position.YieldEarned = position.YieldEarned.Add(a.Share)
			if a.Compounded {
				position.Principal = position.Principal.Add(a.Share)
			}
			if err := tx.SetPosition(ctx, position); err != nil {
				return err
			}
		}

		p.TotalDeposited = newTotal
		p.TotalYieldEarned = p.TotalYieldEarned.Add(req.TotalYield)
		if err := tx.SetPool(ctx, p); err != nil {
			return err
		}

		// Compounded shares become principal, so they count toward TVL.
		tvl, err := tx.GetTotalValueLocked(ctx)
		if err != nil {
			return err
		}
		if err := tx.SetTotalValueLocked(ctx, tvl.Add(growth)); err != nil {
			return err
		}

		allocated = split.Allocated(allocations)
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}

	metrics.YieldDistributionsTotal.Inc()
	slog.Info("yield distributed",
		"pool", poolID,
		"total_yield", req.TotalYield.String(),
		"allocated", allocated.String(),
	)
	s.emitter.Emit(events.Event{
		Type:   events.TypeYieldDistributed,
		PoolID: poolID,
		Amount: req.TotalYield.String(),
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"pool_id":     poolID,
		"total_yield": req.TotalYield,
		"allocated":   allocated,
		"retained":    req.TotalYield.Sub(allocated),
	})
}

// GetPool handles GET /api/v1/pools/{poolID}
func (s *Service) GetPool(w http.ResponseWriter, r *http.Request) {
	poolID, err := parseID(chi.URLParam(r, "poolID"))
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := s.store.GetPool(r.Context(), poolID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ListPools handles GET /api/v1/pools
func (s *Service) ListPools(w http.ResponseWriter, r *http.Request) {
	pools, err := s.store.ListPools(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if pools == nil {
		pools = []model.Pool{}
	}
	writeJSON(w, http.StatusOK, pools)
}

// GetPositions handles GET /api/v1/positions/{user}
func (s *Service) GetPositions(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	positions, err := s.store.ListUserPositions(r.Context(), user)
	if err != nil {
		writeError(w, err)
		return
	}
	if positions == nil {
		positions = []model.Position{}
	}
	writeJSON(w, http.StatusOK, positions)
}

// GetTVL handles GET /api/v1/tvl
func (s *Service) GetTVL(w http.ResponseWriter, r *http.Request) {
	tvl, err := s.store.GetTotalValueLocked(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	f, _ := new(big.Float).SetInt(tvl.BigInt()).Float64()
	metrics.TotalValueLocked.Set(f)
	writeJSON(w, http.StatusOK, map[string]any{"total_value_locked": tvl})
}

// ProjectedYield handles GET /api/v1/pools/{poolID}/projected-yield.
// Query parameters: amount, days. Simple interest:
// apy_bps * amount * days / (10000 * 365).
func (s *Service) ProjectedYield(w http.ResponseWriter, r *http.Request) {
	poolID, err := parseID(chi.URLParam(r, "poolID"))
	if err != nil {
		writeError(w, err)
		return
	}
	amount, ok := sdkmath.NewIntFromString(r.URL.Query().Get("amount"))
	if !ok || !amount.IsPositive() {
		writeError(w, apperr.E(apperr.KindValidation, "InvalidAmount", "amount must be a positive integer"))
		return
	}
	days, err := strconv.ParseInt(r.URL.Query().Get("days"), 10, 64)
	if err != nil || days <= 0 {
		writeError(w, apperr.E(apperr.KindValidation, "InvalidRequest", "days must be a positive integer"))
		return
	}

	p, err := s.store.GetPool(r.Context(), poolID)
	if err != nil {
		writeError(w, err)
		return
	}

	projected := amount.MulRaw(p.APYBasisPoints).MulRaw(days).
		QuoRaw(10_000).QuoRaw(DaysPerYear)

	writeJSON(w, http.StatusOK, map[string]any{
		"pool_id":         poolID,
		"amount":          amount,
		"days":            days,
		"apy_bps":         p.APYBasisPoints,
		"projected_yield": projected,
	})
}

// UpdateExchangeRate handles PUT /api/v1/rates/{pair} (administrator only).
// Rates are scaled by 1e7.
func (s *Service) UpdateExchangeRate(w http.ResponseWriter, r *http.Request) {
	if err := s.requireAdmin(r); err != nil {
		writeError(w, err)
		return
	}
	pair := chi.URLParam(r, "pair")

	var req RateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.E(apperr.KindValidation, "InvalidRequest", "invalid request body"))
		return
	}
	if req.Rate.IsNil() || !req.Rate.IsPositive() {
		writeError(w, apperr.E(apperr.KindValidation, "InvalidAmount", "rate must be positive"))
		return
	}

	if err := s.store.SetExchangeRate(r.Context(), pair, req.Rate); err != nil {
		writeError(w, err)
		return
	}

	slog.Info("exchange rate updated", "pair", pair, "rate", req.Rate.String())
	writeJSON(w, http.StatusOK, map[string]any{"pair": pair, "rate": req.Rate})
}

// GetExchangeRate handles GET /api/v1/rates/{pair}.
// Unknown pairs report the 1:1 default rather than an error.
func (s *Service) GetExchangeRate(w http.ResponseWriter, r *http.Request) {
	pair := chi.URLParam(r, "pair")
	rate, err := s.store.GetExchangeRate(r.Context(), pair)
	if err != nil {
		if apperr.KindOf(err) != apperr.KindNotFound {
			writeError(w, err)
			return
		}
		rate = model.DefaultExchangeRate
	}
	writeJSON(w, http.StatusOK, map[string]any{"pair": pair, "rate": rate})
}

// parseID parses a positive int64 path parameter.
func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Ef(apperr.KindValidation, "InvalidRequest", "invalid identifier %q", raw)
	}
	return id, nil
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response with the mapped status.
func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperr.HTTPStatus(err))
	json.NewEncoder(w).Encode(map[string]string{
		"code":  apperr.CodeOf(err),
		"error": err.Error(),
	})
}
