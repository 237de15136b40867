// Package challenge provides the HTTP handlers and business logic for
// group savings challenges: creation, contributions, milestone and streak
// tracking, and finalization.
package challenge

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/stellarsave/savings-engine/internal/apperr"
	"github.com/stellarsave/savings-engine/internal/auth"
	"github.com/stellarsave/savings-engine/internal/events"
	"github.com/stellarsave/savings-engine/internal/metrics"
	"github.com/stellarsave/savings-engine/internal/model"
	"github.com/stellarsave/savings-engine/internal/store"
	"github.com/stellarsave/savings-engine/internal/track"
)

// Challenge duration bounds, in weeks.
const (
	MinDurationWeeks = 1
	MaxDurationWeeks = 104
)

// MinNameLength is the shortest accepted challenge name.
const MinNameLength = 3

// Service handles challenge operations. Uses a mutex for serialized
// mutation (single-instance).
type Service struct {
	store   store.Store
	gate    auth.Gate
	emitter events.Emitter
	mu      sync.Mutex
	now     func() int64
}

// NewService creates a challenge service. Pass nil emitter to disable
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

// CreateChallengeRequest is the JSON body for POST /api/v1/challenges.
type CreateChallengeRequest struct {
	Creator              string      `json:"creator"`
	Name                 string      `json:"name"`
	Description          string      `json:"description"`
	GoalAmount           sdkmath.Int `json:"goal_amount"`
	WeeklyAmount         sdkmath.Int `json:"weekly_amount"`
	DurationWeeks        int64       `json:"duration_weeks"`
	Participants         []string    `json:"participants"`
	MinWeeklyRequired    bool        `json:"min_weekly_required"`
	AllowEarlyWithdrawal bool        `json:"allow_early_withdrawal"`
}

// ContributeRequest is the JSON body for POST /api/v1/challenges/{id}/contribute.
type ContributeRequest struct {
	Contributor string      `json:"contributor"`
	Amount      sdkmath.Int `json:"amount"`
}

// FinalizeRequest is the JSON body for POST /api/v1/challenges/{id}/finalize.
type FinalizeRequest struct {
	Caller string `json:"caller"`
}

// SetActiveRequest is the JSON body for PUT /api/v1/challenges/{id}/active.
type SetActiveRequest struct {
	Active bool `json:"active"`
}

// AddMilestoneRequest is the JSON body for POST /api/v1/challenges/{id}/milestones.
type AddMilestoneRequest struct {
	Creator          string      `json:"creator"`
	Description      string      `json:"description"`
	TargetAmount     sdkmath.Int `json:"target_amount"`
	BonusBasisPoints int64       `json:"bonus_basis_points"`
}

// ContributeResponse reports the post-contribution state.
type ContributeResponse struct {
	ChallengeID   int64       `json:"challenge_id"`
	Contributor   string      `json:"contributor"`
	Amount        sdkmath.Int `json:"amount"`
	WeekNumber    int64       `json:"week_number"`
	CurrentAmount sdkmath.Int `json:"current_amount"`
	CurrentStreak int64       `json:"current_streak"`
	GoalReached   bool        `json:"goal_reached"`
}

// --- HTTP Handlers ---

// CreateChallenge handles POST /api/v1/challenges.
func (s *Service) CreateChallenge(w http.ResponseWriter, r *http.Request) {
	var req CreateChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.E(apperr.KindValidation, "InvalidRequest", "invalid request body"))
		return
	}
	if err := s.gate.Require(r, req.Creator); err != nil {
		writeError(w, err)
		return
	}
	if len(req.Name) < MinNameLength {
		writeError(w, apperr.Ef(apperr.KindValidation, "InvalidName",
			"name must be at least %d characters", MinNameLength))
		return
	}
	if req.GoalAmount.IsNil() || !req.GoalAmount.IsPositive() {
		writeError(w, apperr.E(apperr.KindValidation, "InvalidAmount", "goal_amount must be positive"))
		return
	}
	if req.WeeklyAmount.IsNil() || !req.WeeklyAmount.IsPositive() {
		writeError(w, apperr.E(apperr.KindValidation, "InvalidAmount", "weekly_amount must be positive"))
		return
	}
	if req.DurationWeeks < MinDurationWeeks || req.DurationWeeks > MaxDurationWeeks {
		writeError(w, apperr.Ef(apperr.KindValidation, "InvalidDuration",
			"duration_weeks must be between %d and %d", MinDurationWeeks, MaxDurationWeeks))
		return
	}
	if len(req.Participants) == 0 {
		writeError(w, apperr.E(apperr.KindValidation, "NoParticipants", "participant set must not be empty"))
		return
	}

	ctx := r.Context()
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var created *model.Challenge
	err := s.store.Atomic(ctx, func(tx store.Store) error {
		id, err := tx.AllocateChallengeID(ctx)
		if err != nil {
			return err
		}

		// De-duplicate while preserving order; participant sets have set
		// semantics.
		seen := make(map[string]bool, len(req.Participants))
		participants := make([]string, 0, len(req.Participants))
		for _, u := range req.Participants {
			if u == "" || seen[u] {
				continue
			}
			seen[u] = true
			participants = append(participants, u)
		}
		if len(participants) == 0 {
			return apperr.E(apperr.KindValidation, "NoParticipants", "participant set must not be empty")
		}

		created = &model.Challenge{
			ID:                   id,
			Creator:              req.Creator,
			Name:                 req.Name,
			Description:          req.Description,
			GoalAmount:           req.GoalAmount,
			WeeklyAmount:         req.WeeklyAmount,
			CurrentAmount:        sdkmath.ZeroInt(),
			Participants:         participants,
			CreatedAt:            now,
			Deadline:             now + req.DurationWeeks*model.SecondsPerWeek,
			IsActive:             true,
			MinWeeklyRequired:    req.MinWeeklyRequired,
			AllowEarlyWithdrawal: req.AllowEarlyWithdrawal,
		}
		if err := tx.SetChallenge(ctx, created); err != nil {
			return err
		}

		if err := tx.SetGroupMilestones(ctx, id, model.DefaultMilestones(req.GoalAmount)); err != nil {
			return err
		}
		for _, u := range participants {
			if err := tx.SetParticipantStats(ctx, id, u, model.NewParticipantStats()); err != nil {
				return err
			}
			if err := tx.SetUserMilestones(ctx, id, u, model.DefaultMilestones(req.GoalAmount)); err != nil {
				return err
			}
			if err := tx.AddUserChallenge(ctx, u, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}

	metrics.ActiveChallenges.Inc()
	slog.Info("challenge created",
		"id", created.ID,
		"creator", created.Creator,
		"name", created.Name,
		"goal", created.GoalAmount.String(),
		"weeks", req.DurationWeeks,
		"participants", len(created.Participants),
	)
	s.emitter.Emit(events.Event{
		Type:        events.TypeChallengeCreated,
		ChallengeID: created.ID,
		User:        created.Creator,
		Amount:      created.GoalAmount.String(),
		Detail:      created.Name,
	})

	writeJSON(w, http.StatusCreated, created)
}

// AddMilestone handles POST /api/v1/challenges/{id}/milestones.
// Creator-only custom group milestone.
func (s *Service) AddMilestone(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "challengeID"))
	if err != nil {
		writeError(w, err)
		return
	}

	var req AddMilestoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.E(apperr.KindValidation, "InvalidRequest", "invalid request body"))
		return
	}
	if err := s.gate.Require(r, req.Creator); err != nil {
		writeError(w, err)
		return
	}
	if req.Description == "" {
		writeError(w, apperr.E(apperr.KindValidation, "InvalidRequest", "description is required"))
		return
	}
	if req.TargetAmount.IsNil() || !req.TargetAmount.IsPositive() {
		writeError(w, apperr.E(apperr.KindValidation, "InvalidAmount", "target_amount must be positive"))
		return
	}

	ctx := r.Context()

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.store.Atomic(ctx, func(tx store.Store) error {
		c, err := tx.GetChallenge(ctx, id)
		if err != nil {
			return err
		}
		if c.Creator != req.Creator {
			return apperr.E(apperr.KindAuthorization, "NotAuthorized", "only the creator may add milestones")
		}
		ms, err := tx.GetGroupMilestones(ctx, id)
		if err != nil {
			return err
		}
		ms = append(ms, model.Milestone{
			Description:      req.Description,
			TargetAmount:     req.TargetAmount,
			BonusBasisPoints: req.BonusBasisPoints,
		})
		return tx.SetGroupMilestones(ctx, id, ms)
	})
	if err != nil {
		writeError(w, err)
		return
	}

	slog.Info("milestone added", "challenge", id, "description", req.Description,
		"target", req.TargetAmount.String())
	writeJSON(w, http.StatusCreated, map[string]any{
		"challenge_id": id,
		"description":  req.Description,
	})
}

// Contribute handles POST /api/v1/challenges/{id}/contribute.
func (s *Service) Contribute(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "challengeID"))
	if err != nil {
		writeError(w, err)
		return
	}

	var req ContributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.E(apperr.KindValidation, "InvalidRequest", "invalid request body"))
		return
	}
	if err := s.gate.Require(r, req.Contributor); err != nil {
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

	var resp ContributeResponse
	var userReached, groupReached int
	err = s.store.Atomic(ctx, func(tx store.Store) error {
		c, err := tx.GetChallenge(ctx, id)
		if err != nil {
			return err
		}
		if c.Finalized {
			return apperr.Ef(apperr.KindState, "AlreadyFinalized", "challenge %d is finalized", id)
		}
		if !c.IsActive {
			return apperr.Ef(apperr.KindState, "ChallengeInactive", "challenge %d is paused", id)
		}
		if now > c.Deadline {
			return apperr.Ef(apperr.KindState, "ChallengeExpired", "challenge %d deadline has passed", id)
		}
		if !c.HasParticipant(req.Contributor) {
			return apperr.Ef(apperr.KindAuthorization, "NotParticipant",
				"%s is not a participant of challenge %d", req.Contributor, id)
		}

		goalBefore := c.CurrentAmount.GTE(c.GoalAmount)

		contribution := model.Contribution{
			Contributor: req.Contributor,
			Amount:      req.Amount,
			Timestamp:   now,
			WeekNumber:  c.WeekNumber(now),
		}
		if err := tx.AppendContribution(ctx, id, contribution); err != nil {
			return err
		}

		c.CurrentAmount = c.CurrentAmount.Add(req.Amount)
		if err := tx.SetChallenge(ctx, c); err != nil {
			return err
		}

		stats, err := tx.GetParticipantStats(ctx, id, req.Contributor)
		if err != nil {
			return err
		}
		// The previous timestamp must be read before the update; the streak
		// rule compares against the contribution before this one.
		prev := stats.LastContribution
		stats.CurrentStreak = track.NextStreak(prev, now, stats.CurrentStreak)
		stats.TotalContributed = stats.TotalContributed.Add(req.Amount)
		stats.ContributionCount++
		stats.LastContribution = now
		if err := tx.SetParticipantStats(ctx, id, req.Contributor, stats); err != nil {
			return err
		}

		// Personal milestones first, then the group set over the summed
		// participant totals.
		userMs, err := tx.GetUserMilestones(ctx, id, req.Contributor)
		if err != nil {
			return err
		}
		if idxs := track.Evaluate(userMs, stats.TotalContributed, now); len(idxs) > 0 {
			userReached = len(idxs)
			if err := tx.SetUserMilestones(ctx, id, req.Contributor, userMs); err != nil {
				return err
			}
			for _, i := range idxs {
				s.emitter.Emit(events.Event{
					Type:        events.TypeMilestoneReached,
					ChallengeID: id,
					User:        req.Contributor,
					Detail:      userMs[i].Description,
				})
			}
		}

		allStats := make(map[string]*model.ParticipantStats, len(c.Participants))
		for _, u := range c.Participants {
			st, err := tx.GetParticipantStats(ctx, id, u)
			if err != nil {
				return err
			}
			allStats[u] = st
		}
		groupMs, err := tx.GetGroupMilestones(ctx, id)
		if err != nil {
			return err
		}
		if idxs := track.Evaluate(groupMs, track.GroupAmount(allStats), now); len(idxs) > 0 {
			groupReached = len(idxs)
			if err := tx.SetGroupMilestones(ctx, id, groupMs); err != nil {
				return err
			}
			for _, i := range idxs {
				s.emitter.Emit(events.Event{
					Type:        events.TypeMilestoneReached,
					ChallengeID: id,
					Detail:      groupMs[i].Description,
				})
			}
		}

		resp = ContributeResponse{
			ChallengeID:   id,
			Contributor:   req.Contributor,
			Amount:        req.Amount,
			WeekNumber:    contribution.WeekNumber,
			CurrentAmount: c.CurrentAmount,
			CurrentStreak: stats.CurrentStreak,
			GoalReached:   c.CurrentAmount.GTE(c.GoalAmount),
		}
		// Fire once, on the contribution that crosses the goal.
		if resp.GoalReached && !goalBefore {
			s.emitter.Emit(events.Event{
				Type:        events.TypeGoalReached,
				ChallengeID: id,
				Amount:      c.CurrentAmount.String(),
			})
		}
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}

	metrics.ContributionsTotal.WithLabelValues(strconv.FormatInt(id, 10)).Inc()
	for i := 0; i < userReached; i++ {
		metrics.MilestonesReached.WithLabelValues("user").Inc()
	}
	for i := 0; i < groupReached; i++ {
		metrics.MilestonesReached.WithLabelValues("group").Inc()
	}
	slog.Info("contribution",
		"challenge", id,
		"contributor", req.Contributor,
		"amount", req.Amount.String(),
		"week", resp.WeekNumber,
		"streak", resp.CurrentStreak,
		"goal_reached", resp.GoalReached,
	)
	s.emitter.Emit(events.Event{
		Type:        events.TypeContribution,
		ChallengeID: id,
		User:        req.Contributor,
		Amount:      req.Amount.String(),
	})

	writeJSON(w, http.StatusOK, resp)
}

// Finalize handles POST /api/v1/challenges/{id}/finalize.
// Terminal transition; permitted once the goal is met or the deadline has
// passed.
func (s *Service) Finalize(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "challengeID"))
	if err != nil {
		writeError(w, err)
		return
	}

	var req FinalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.E(apperr.KindValidation, "InvalidRequest", "invalid request body"))
		return
	}
	if err := s.gate.Require(r, req.Caller); err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var finalized *model.Challenge
	err = s.store.Atomic(ctx, func(tx store.Store) error {
		c, err := tx.GetChallenge(ctx, id)
		if err != nil {
			return err
		}
		if c.Creator != req.Caller && !c.HasParticipant(req.Caller) {
			return apperr.E(apperr.KindAuthorization, "NotAuthorized",
				"only the creator or a participant may finalize")
		}
		if c.Finalized {
			return apperr.Ef(apperr.KindState, "AlreadyFinalized", "challenge %d already finalized", id)
		}
		if c.CurrentAmount.LT(c.GoalAmount) && now <= c.Deadline {
			return apperr.E(apperr.KindValidation, "GoalNotReached",
				"goal not reached and deadline not passed")
		}

		c.Finalized = true
		c.IsActive = false
		finalized = c
		return tx.SetChallenge(ctx, c)
	})
	if err != nil {
		writeError(w, err)
		return
	}

	metrics.ActiveChallenges.Dec()
	slog.Info("challenge finalized",
		"challenge", id,
		"caller", req.Caller,
		"current", finalized.CurrentAmount.String(),
		"goal", finalized.GoalAmount.String(),
	)
	s.emitter.Emit(events.Event{
		Type:        events.TypeFinalized,
		ChallengeID: id,
		User:        req.Caller,
		Amount:      finalized.CurrentAmount.String(),
	})

	writeJSON(w, http.StatusOK, finalized)
}

// SetActive handles PUT /api/v1/challenges/{id}/active (administrator
// only). Pauses or unpauses contributions; a finalized challenge stays
// finalized.
func (s *Service) SetActive(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "challengeID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.requireAdmin(r); err != nil {
		writeError(w, err)
		return
	}

	var req SetActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.E(apperr.KindValidation, "InvalidRequest", "invalid request body"))
		return
	}

	ctx := r.Context()

	s.mu.Lock()
	defer s.mu.Unlock()

	var updated *model.Challenge
	err = s.store.Atomic(ctx, func(tx store.Store) error {
		c, err := tx.GetChallenge(ctx, id)
		if err != nil {
			return err
		}
		if c.Finalized {
			return apperr.Ef(apperr.KindState, "AlreadyFinalized",
				"challenge %d is finalized", id)
		}
		c.IsActive = req.Active
		updated = c
		return tx.SetChallenge(ctx, c)
	})
	if err != nil {
		writeError(w, err)
		return
	}

	slog.Info("challenge active flag set", "challenge", id, "active", req.Active)
	writeJSON(w, http.StatusOK, updated)
}

// --- Queries ---

// GetChallenge handles GET /api/v1/challenges/{id}
func (s *Service) GetChallenge(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "challengeID"))
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := s.store.GetChallenge(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// ListChallenges handles GET /api/v1/challenges
func (s *Service) ListChallenges(w http.ResponseWriter, r *http.Request) {
	challenges, err := s.store.ListChallenges(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if challenges == nil {
		challenges = []model.Challenge{}
	}
	writeJSON(w, http.StatusOK, challenges)
}

// GetContributions handles GET /api/v1/challenges/{id}/contributions
func (s *Service) GetContributions(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "challengeID"))
	if err != nil {
		writeError(w, err)
		return
	}
	contribs, err := s.store.ListContributions(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if contribs == nil {
		contribs = []model.Contribution{}
	}
	writeJSON(w, http.StatusOK, contribs)
}

// GetParticipantStats handles GET /api/v1/challenges/{id}/stats/{user}
func (s *Service) GetParticipantStats(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "challengeID"))
	if err != nil {
		writeError(w, err)
		return
	}
	user := chi.URLParam(r, "user")
	stats, err := s.store.GetParticipantStats(r.Context(), id, user)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GetUserChallenges handles GET /api/v1/users/{user}/challenges
func (s *Service) GetUserChallenges(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	ids, err := s.store.ListUserChallenges(r.Context(), user)
	if err != nil {
		writeError(w, err)
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	writeJSON(w, http.StatusOK, ids)
}

// GetProgress handles GET /api/v1/challenges/{id}/progress.
// Reports amount, goal, elapsed weeks, expiry, and percent complete.
func (s *Service) GetProgress(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "challengeID"))
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := s.store.GetChallenge(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	now := s.now()

	percent := decimal.Zero
	if c.GoalAmount.IsPositive() {
		percent = decimal.NewFromBigInt(c.CurrentAmount.BigInt(), 0).
			Div(decimal.NewFromBigInt(c.GoalAmount.BigInt(), 0)).
			Mul(decimal.NewFromInt(100)).Round(2)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"challenge_id":     id,
		"current_amount":   c.CurrentAmount,
		"goal_amount":      c.GoalAmount,
		"percent_complete": percent,
		"week_number":      c.WeekNumber(now),
		"expired":          now > c.Deadline,
		"goal_reached":     c.CurrentAmount.GTE(c.GoalAmount),
	})
}

// GetExpectedAmount handles GET /api/v1/challenges/{id}/expected.
// Pacing: elapsed weeks times the weekly target, capped at the goal.
func (s *Service) GetExpectedAmount(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "challengeID"))
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := s.store.GetChallenge(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	now := s.now()

	weeks := c.WeekNumber(now)
	if now > c.Deadline {
		weeks = (c.Deadline - c.CreatedAt) / model.SecondsPerWeek
	}
	expected := c.WeeklyAmount.MulRaw(weeks)
	if expected.GT(c.GoalAmount) {
		expected = c.GoalAmount
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"challenge_id":    id,
		"week_number":     weeks,
		"expected_amount": expected,
		"current_amount":  c.CurrentAmount,
		"on_track":        c.CurrentAmount.GTE(expected),
	})
}

// GetStats handles GET /api/v1/challenges/{id}/stats.
// Aggregate figures: participants, total, contribution count, average.
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "challengeID"))
	if err != nil {
		writeError(w, err)
		return
	}
	ctx := r.Context()

	c, err := s.store.GetChallenge(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	contribs, err := s.store.ListContributions(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}

	average := decimal.Zero
	if len(contribs) > 0 {
		average = decimal.NewFromBigInt(c.CurrentAmount.BigInt(), 0).
			Div(decimal.NewFromInt(int64(len(contribs)))).Round(2)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"challenge_id":         id,
		"participants":         len(c.Participants),
		"total_contributed":    c.CurrentAmount,
		"contribution_count":   len(contribs),
		"average_contribution": average,
	})
}

// GetMilestones handles GET /api/v1/challenges/{id}/milestones with an
// optional ?user= parameter for the per-participant set.
func (s *Service) GetMilestones(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "challengeID"))
	if err != nil {
		writeError(w, err)
		return
	}

	var ms []model.Milestone
	if user := r.URL.Query().Get("user"); user != "" {
		ms, err = s.store.GetUserMilestones(r.Context(), id, user)
	} else {
		ms, err = s.store.GetGroupMilestones(r.Context(), id)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if ms == nil {
		ms = []model.Milestone{}
	}
	writeJSON(w, http.StatusOK, ms)
}

// IsParticipant handles GET /api/v1/challenges/{id}/participants/{user}
func (s *Service) IsParticipant(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "challengeID"))
	if err != nil {
		writeError(w, err)
		return
	}
	user := chi.URLParam(r, "user")
	c, err := s.store.GetChallenge(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"challenge_id":   id,
		"user":           user,
		"is_participant": c.HasParticipant(user),
	})
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
