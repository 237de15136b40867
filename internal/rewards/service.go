package rewards

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stellarsave/savings-engine/internal/apperr"
	"github.com/stellarsave/savings-engine/internal/auth"
	"github.com/stellarsave/savings-engine/internal/events"
	"github.com/stellarsave/savings-engine/internal/metrics"
	"github.com/stellarsave/savings-engine/internal/model"
	"github.com/stellarsave/savings-engine/internal/store"
)

// Service handles reward calculation, token issuance, and minter
// administration. Uses a mutex for serialized mutation (single-instance).
type Service struct {
	store   store.Store
	gate    auth.Gate
	emitter events.Emitter
	mu      sync.Mutex
	now     func() int64
}

// NewService creates a rewards service. Pass nil emitter to disable
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

// requireAdmin checks that the request is authorized by the stored
// administrator principal.
func (s *Service) requireAdmin(r *http.Request) error {
	admin, err := s.store.GetAdmin(r.Context())
	if err != nil {
		return err
	}
	return s.gate.Require(r, admin)
}

// --- Request/Response types ---

// MintRequest is the JSON body for POST /api/v1/rewards/mint.
type MintRequest struct {
	Minter        string           `json:"minter"`
	To            string           `json:"to"`
	Amount        sdkmath.Int      `json:"amount"`
	Type          model.RewardType `json:"reward_type"`
	ChallengeID   int64            `json:"challenge_id"`
	MultiplierBps int64            `json:"multiplier_bps"`
}

// TransferRequest is the JSON body for POST /api/v1/rewards/transfer.
type TransferRequest struct {
	From   string      `json:"from"`
	To     string      `json:"to"`
	Amount sdkmath.Int `json:"amount"`
}

// MinterRequest is the JSON body for POST /api/v1/rewards/minters.
type MinterRequest struct {
	Minter string `json:"minter"`
}

// --- HTTP Handlers ---

// GetConfig handles GET /api/v1/rewards/config
func (s *Service) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.store.GetRewardConfig(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// UpdateConfig handles PUT /api/v1/rewards/config (administrator only).
func (s *Service) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	if err := s.requireAdmin(r); err != nil {
		writeError(w, err)
		return
	}

	var cfg model.RewardConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, apperr.E(apperr.KindValidation, "InvalidRequest", "invalid request body"))
		return
	}
	if cfg.BaseWeeklyReward.IsNil() || cfg.BaseWeeklyReward.IsNegative() {
		writeError(w, apperr.E(apperr.KindValidation, "InvalidAmount", "base_weekly_reward must be non-negative"))
		return
	}

	if err := s.store.SetRewardConfig(r.Context(), &cfg); err != nil {
		writeError(w, err)
		return
	}

	slog.Info("reward config updated", "base_weekly_reward", cfg.BaseWeeklyReward.String())
	writeJSON(w, http.StatusOK, &cfg)
}

// CalculateReward handles GET /api/v1/rewards/calculate.
// Query parameters: amount, type, streak_weeks.
func (s *Service) CalculateReward(w http.ResponseWriter, r *http.Request) {
	amount, ok := sdkmath.NewIntFromString(r.URL.Query().Get("amount"))
	if !ok {
		writeError(w, apperr.E(apperr.KindValidation, "InvalidAmount", "amount must be an integer"))
		return
	}
	rt, err := model.ParseRewardType(r.URL.Query().Get("type"))
	if err != nil {
		writeError(w, apperr.Wrap(apperr.KindValidation, "InvalidRewardType", "parse reward type", err))
		return
	}
	var streakWeeks int64
	if raw := r.URL.Query().Get("streak_weeks"); raw != "" {
		streakWeeks, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || streakWeeks < 0 {
			writeError(w, apperr.E(apperr.KindValidation, "InvalidRequest", "streak_weeks must be a non-negative integer"))
			return
		}
	}

	cfg, err := s.store.GetRewardConfig(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	reward, err := Calculate(cfg, amount, rt, streakWeeks)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"amount":       amount,
		"reward_type":  rt,
		"streak_weeks": streakWeeks,
		"reward":       reward,
	})
}

// Mint handles POST /api/v1/rewards/mint.
// Allow-listed minters only; the requested amount is scaled by the supplied
// basis-points multiplier.
func (s *Service) Mint(w http.ResponseWriter, r *http.Request) {
	var req MintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.E(apperr.KindValidation, "InvalidRequest", "invalid request body"))
		return
	}
	if err := s.gate.Require(r, req.Minter); err != nil {
		writeError(w, err)
		return
	}
	if req.Amount.IsNil() || !req.Amount.IsPositive() {
		writeError(w, apperr.E(apperr.KindValidation, "InvalidAmount", "amount must be positive"))
		return
	}
	if !req.Type.Valid() {
		writeError(w, apperr.Ef(apperr.KindValidation, "InvalidRewardType", "unknown reward type %d", req.Type))
		return
	}
	if req.MultiplierBps < 0 {
		writeError(w, apperr.E(apperr.KindValidation, "InvalidAmount", "multiplier_bps must be non-negative"))
		return
	}
	multiplier := req.MultiplierBps
	if multiplier == 0 {
		multiplier = BasisPointsDenominator
	}

	ctx := r.Context()

	s.mu.Lock()
	defer s.mu.Unlock()

	var rec model.RewardRecord
	err := s.store.Atomic(ctx, func(tx store.Store) error {
		minters, err := tx.GetMinters(ctx)
		if err != nil {
			return err
		}
		allowed := false
		for _, m := range minters {
			if m == req.Minter {
				allowed = true
				break
			}
		}
		if !allowed {
			return apperr.Ef(apperr.KindAuthorization, "NotMinter",
				"%s is not an authorized minter", req.Minter)
		}

		final := req.Amount.MulRaw(multiplier).QuoRaw(BasisPointsDenominator)

		balance, err := tx.GetBalance(ctx, req.To)
		if err != nil {
			return err
		}
		if err := tx.SetBalance(ctx, req.To, balance.Add(final)); err != nil {
			return err
		}

		supply, err := tx.GetTotalSupply(ctx)
		if err != nil {
			return err
		}
		if err := tx.SetTotalSupply(ctx, supply.Add(final)); err != nil {
			return err
		}

		total, err := tx.GetTotalRewards(ctx)
		if err != nil {
			return err
		}
		if err := tx.SetTotalRewards(ctx, total.Add(final)); err != nil {
			return err
		}

		typeTotal, err := tx.GetRewardStats(ctx, req.Type)
		if err != nil {
			return err
		}
		if err := tx.SetRewardStats(ctx, req.Type, typeTotal.Add(final)); err != nil {
			return err
		}

		rec = model.RewardRecord{
			ID:            uuid.New().String(),
			Recipient:     req.To,
			Amount:        final,
			Type:          req.Type,
			ChallengeID:   req.ChallengeID,
			Timestamp:     s.now(),
			MultiplierBps: multiplier,
		}
		return tx.AppendRewardRecord(ctx, rec)
	})
	if err != nil {
		writeError(w, err)
		return
	}

	metrics.RewardsMinted.WithLabelValues(req.Type.String()).Inc()
	slog.Info("reward minted",
		"id", rec.ID,
		"minter", req.Minter,
		"to", req.To,
		"amount", rec.Amount.String(),
		"reward_type", req.Type.String(),
		"multiplier_bps", multiplier,
	)
	s.emitter.Emit(events.Event{
		Type:        events.TypeRewardMinted,
		ChallengeID: req.ChallengeID,
		User:        req.To,
		Amount:      rec.Amount.String(),
		Detail:      req.Type.String(),
	})

	writeJSON(w, http.StatusCreated, rec)
}

// Transfer handles POST /api/v1/rewards/transfer.
func (s *Service) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.E(apperr.KindValidation, "InvalidRequest", "invalid request body"))
		return
	}
	if err := s.gate.Require(r, req.From); err != nil {
		writeError(w, err)
		return
	}
	if req.Amount.IsNil() || !req.Amount.IsPositive() {
		writeError(w, apperr.E(apperr.KindValidation, "InvalidAmount", "amount must be positive"))
		return
	}
	if req.To == "" || req.To == req.From {
		writeError(w, apperr.E(apperr.KindValidation, "InvalidRequest", "to must name a different principal"))
		return
	}

	ctx := r.Context()

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.store.Atomic(ctx, func(tx store.Store) error {
		from, err := tx.GetBalance(ctx, req.From)
		if err != nil {
			return err
		}
		if from.LT(req.Amount) {
			return apperr.Ef(apperr.KindValidation, "InsufficientBalance",
				"balance %s below transfer amount %s", from, req.Amount)
		}
		to, err := tx.GetBalance(ctx, req.To)
		if err != nil {
			return err
		}
		if err := tx.SetBalance(ctx, req.From, from.Sub(req.Amount)); err != nil {
			return err
		}
		return tx.SetBalance(ctx, req.To, to.Add(req.Amount))
	})
	if err != nil {
		writeError(w, err)
		return
	}

	slog.Info("reward transfer", "from", req.From, "to", req.To, "amount", req.Amount.String())
	writeJSON(w, http.StatusOK, map[string]string{
		"from":   req.From,
		"to":     req.To,
		"amount": req.Amount.String(),
	})
}

// AddMinter handles POST /api/v1/rewards/minters (administrator only).
func (s *Service) AddMinter(w http.ResponseWriter, r *http.Request) {
	if err := s.requireAdmin(r); err != nil {
		writeError(w, err)
		return
	}
	var req MinterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Minter == "" {
		writeError(w, apperr.E(apperr.KindValidation, "InvalidRequest", "minter is required"))
		return
	}

	ctx := r.Context()

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.store.Atomic(ctx, func(tx store.Store) error {
		minters, err := tx.GetMinters(ctx)
		if err != nil {
			return err
		}
		for _, m := range minters {
			if m == req.Minter {
				return nil // already present; set semantics
			}
		}
		return tx.SetMinters(ctx, append(minters, req.Minter))
	})
	if err != nil {
		writeError(w, err)
		return
	}

	slog.Info("minter added", "minter", req.Minter)
	writeJSON(w, http.StatusOK, map[string]string{"minter": req.Minter})
}

// RemoveMinter handles DELETE /api/v1/rewards/minters/{principal}
// (administrator only).
func (s *Service) RemoveMinter(w http.ResponseWriter, r *http.Request) {
	if err := s.requireAdmin(r); err != nil {
		writeError(w, err)
		return
	}
	principal := chi.URLParam(r, "principal")

	ctx := r.Context()

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.store.Atomic(ctx, func(tx store.Store) error {
		minters, err := tx.GetMinters(ctx)
		if err != nil {
			return err
		}
		kept := minters[:0]
		for _, m := range minters {
			if m != principal {
				kept = append(kept, m)
			}
		}
		return tx.SetMinters(ctx, kept)
	})
	if err != nil {
		writeError(w, err)
		return
	}

	slog.Info("minter removed", "minter", principal)
	w.WriteHeader(http.StatusNoContent)
}

// ListMinters handles GET /api/v1/rewards/minters
func (s *Service) ListMinters(w http.ResponseWriter, r *http.Request) {
	minters, err := s.store.GetMinters(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if minters == nil {
		minters = []string{}
	}
	writeJSON(w, http.StatusOK, minters)
}

// IsMinter handles GET /api/v1/rewards/minters/{principal}
func (s *Service) IsMinter(w http.ResponseWriter, r *http.Request) {
	principal := chi.URLParam(r, "principal")
	minters, err := s.store.GetMinters(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	isMinter := false
	for _, m := range minters {
		if m == principal {
			isMinter = true
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"minter":    principal,
		"is_minter": isMinter,
	})
}

// GetBalance handles GET /api/v1/rewards/balance/{user}
func (s *Service) GetBalance(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	balance, err := s.store.GetBalance(r.Context(), user)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":    user,
		"balance": balance,
	})
}

// GetSupply handles GET /api/v1/rewards/supply
func (s *Service) GetSupply(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	supply, err := s.store.GetTotalSupply(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	total, err := s.store.GetTotalRewards(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_supply":  supply,
		"total_rewards": total,
	})
}

// GetStats handles GET /api/v1/rewards/stats/{type}
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	rt, err := model.ParseRewardType(chi.URLParam(r, "type"))
	if err != nil {
		writeError(w, apperr.Wrap(apperr.KindValidation, "InvalidRewardType", "parse reward type", err))
		return
	}
	total, err := s.store.GetRewardStats(r.Context(), rt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reward_type": rt,
		"total":       total,
	})
}

// GetHistory handles GET /api/v1/rewards/history/{user}
func (s *Service) GetHistory(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	recs, err := s.store.ListRewardHistory(r.Context(), user)
	if err != nil {
		writeError(w, err)
		return
	}
	if recs == nil {
		recs = []model.RewardRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
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
