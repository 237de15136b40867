package rewards_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/go-chi/chi/v5"

	"github.com/stellarsave/savings-engine/internal/auth"
	"github.com/stellarsave/savings-engine/internal/model"
	"github.com/stellarsave/savings-engine/internal/rewards"
	"github.com/stellarsave/savings-engine/internal/store"
)

func newTestEnv(t *testing.T) (*rewards.Service, *store.MemoryStore, chi.Router) {
	t.Helper()
	ms := store.NewMemoryStore()
	svc := rewards.NewService(ms, auth.NewHeaderGate(""), nil)
	svc.SetClock(func() int64 { return 1_700_000_000 })

	ctx := context.Background()
	if err := ms.SetAdmin(ctx, "admin"); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	if err := ms.SetRewardConfig(ctx, model.DefaultRewardConfig()); err != nil {
		t.Fatalf("seed config: %v", err)
	}

	r := chi.NewRouter()
	r.Get("/api/v1/rewards/config", svc.GetConfig)
	r.Put("/api/v1/rewards/config", svc.UpdateConfig)
	r.Get("/api/v1/rewards/calculate", svc.CalculateReward)
	r.Post("/api/v1/rewards/mint", svc.Mint)
	r.Post("/api/v1/rewards/transfer", svc.Transfer)
	r.Get("/api/v1/rewards/minters", svc.ListMinters)
	r.Post("/api/v1/rewards/minters", svc.AddMinter)
	r.Get("/api/v1/rewards/minters/{principal}", svc.IsMinter)
	r.Delete("/api/v1/rewards/minters/{principal}", svc.RemoveMinter)
	r.Get("/api/v1/rewards/balance/{user}", svc.GetBalance)
	r.Get("/api/v1/rewards/supply", svc.GetSupply)
	r.Get("/api/v1/rewards/stats/{type}", svc.GetStats)
	r.Get("/api/v1/rewards/history/{user}", svc.GetHistory)

	return svc, ms, r
}

func doReq(t *testing.T, router chi.Router, method, path, principal string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if principal != "" {
		req.Header.Set(auth.PrincipalHeader, principal)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func seedMinter(t *testing.T, ms *store.MemoryStore, minter string) {
	t.Helper()
	if err := ms.SetMinters(context.Background(), []string{minter}); err != nil {
		t.Fatalf("seed minter: %v", err)
	}
}

// --- Calculation over HTTP ---

func TestCalculateReward_MidTier(t *testing.T) {
	// 60 whole units with the default config: base 10 scaled by the 50-unit
	// tier gives 11.
	_, _, router := newTestEnv(t)

	amount := model.Units(60).String()
	w := doReq(t, router, "GET",
		"/api/v1/rewards/calculate?amount="+amount+"&type=weekly_contribution&streak_weeks=0", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Reward sdkmath.Int `json:"reward"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Reward.Equal(model.Units(11)) {
		t.Errorf("reward = %s, want 11 units", resp.Reward)
	}
}

func TestCalculateReward_UnknownType(t *testing.T) {
	_, _, router := newTestEnv(t)
	w := doReq(t, router, "GET", "/api/v1/rewards/calculate?amount=100&type=bogus", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown type: expected 400, got %d", w.Code)
	}
}

// --- Minting ---

func TestMint_AllowListEnforced(t *testing.T) {
	_, ms, router := newTestEnv(t)
	seedMinter(t, ms, "issuer")

	req := rewards.MintRequest{
		Minter: "mallory", To: "alice", Amount: model.Units(10),
		Type: model.RewardWeeklyContribution,
	}
	w := doReq(t, router, "POST", "/api/v1/rewards/mint", "mallory", req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("unlisted minter: expected 403, got %d: %s", w.Code, w.Body.String())
	}
	var errBody map[string]string
	json.Unmarshal(w.Body.Bytes(), &errBody)
	if errBody["code"] != "NotMinter" {
		t.Errorf("code = %q, want NotMinter", errBody["code"])
	}

	// Nothing was credited.
	balance, _ := ms.GetBalance(context.Background(), "alice")
	if !balance.IsZero() {
		t.Errorf("balance after failed mint = %s, want 0", balance)
	}
}

func TestMint_CreditsAndRecords(t *testing.T) {
	_, ms, router := newTestEnv(t)
	seedMinter(t, ms, "issuer")

	w := doReq(t, router, "POST", "/api/v1/rewards/mint", "issuer", rewards.MintRequest{
		Minter: "issuer", To: "alice", Amount: model.Units(10),
		Type: model.RewardMilestoneReached, ChallengeID: 7, MultiplierBps: 15_000,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var rec model.RewardRecord
	json.Unmarshal(w.Body.Bytes(), &rec)
	if rec.ID == "" {
		t.Error("expected non-empty record id")
	}
	// 10 units at 1.5x.
	if !rec.Amount.Equal(model.Units(15)) {
		t.Errorf("minted = %s, want 15 units", rec.Amount)
	}

	ctx := context.Background()
	balance, _ := ms.GetBalance(ctx, "alice")
	if !balance.Equal(model.Units(15)) {
		t.Errorf("balance = %s, want 15 units", balance)
	}
	supply, _ := ms.GetTotalSupply(ctx)
	if !supply.Equal(model.Units(15)) {
		t.Errorf("total supply = %s, want 15 units", supply)
	}
	typeTotal, _ := ms.GetRewardStats(ctx, model.RewardMilestoneReached)
	if !typeTotal.Equal(model.Units(15)) {
		t.Errorf("per-type total = %s, want 15 units", typeTotal)
	}
	history, _ := ms.ListRewardHistory(ctx, "alice")
	if len(history) != 1 || history[0].ChallengeID != 7 {
		t.Errorf("history = %+v", history)
	}
}

func TestMint_RejectsNonPositiveAmount(t *testing.T) {
	_, ms, router := newTestEnv(t)
	seedMinter(t, ms, "issuer")

	w := doReq(t, router, "POST", "/api/v1/rewards/mint", "issuer", rewards.MintRequest{
		Minter: "issuer", To: "alice", Amount: sdkmath.ZeroInt(),
		Type: model.RewardWeeklyContribution,
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("zero amount: expected 400, got %d", w.Code)
	}
}

// --- Transfers ---

func TestTransfer_MovesBalance(t *testing.T) {
	_, ms, router := newTestEnv(t)
	ctx := context.Background()
	ms.SetBalance(ctx, "alice", model.Units(20))

	w := doReq(t, router, "POST", "/api/v1/rewards/transfer", "alice", rewards.TransferRequest{
		From: "alice", To: "bob", Amount: model.Units(5),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	alice, _ := ms.GetBalance(ctx, "alice")
	bob, _ := ms.GetBalance(ctx, "bob")
	if !alice.Equal(model.Units(15)) || !bob.Equal(model.Units(5)) {
		t.Errorf("balances alice=%s bob=%s", alice, bob)
	}
}

func TestTransfer_InsufficientBalance(t *testing.T) {
	_, ms, router := newTestEnv(t)
	ms.SetBalance(context.Background(), "alice", model.Units(2))

	w := doReq(t, router, "POST", "/api/v1/rewards/transfer", "alice", rewards.TransferRequest{
		From: "alice", To: "bob", Amount: model.Units(5),
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	// Failed transfer leaves both balances untouched.
	alice, _ := ms.GetBalance(context.Background(), "alice")
	if !alice.Equal(model.Units(2)) {
		t.Errorf("alice balance = %s, want 2 units", alice)
	}
}

// --- Minter administration ---

func TestMinterAdministration(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := doReq(t, router, "POST", "/api/v1/rewards/minters", "mallory", rewards.MinterRequest{Minter: "issuer"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("non-admin add: expected 403, got %d", w.Code)
	}

	w = doReq(t, router, "POST", "/api/v1/rewards/minters", "admin", rewards.MinterRequest{Minter: "issuer"})
	if w.Code != http.StatusOK {
		t.Fatalf("add minter: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	// Adding again is a no-op, not a duplicate.
	doReq(t, router, "POST", "/api/v1/rewards/minters", "admin", rewards.MinterRequest{Minter: "issuer"})

	w = doReq(t, router, "GET", "/api/v1/rewards/minters", "", nil)
	var minters []string
	json.Unmarshal(w.Body.Bytes(), &minters)
	if len(minters) != 1 || minters[0] != "issuer" {
		t.Errorf("minters = %v, want [issuer]", minters)
	}

	w = doReq(t, router, "GET", "/api/v1/rewards/minters/issuer", "", nil)
	var check struct {
		IsMinter bool `json:"is_minter"`
	}
	json.Unmarshal(w.Body.Bytes(), &check)
	if !check.IsMinter {
		t.Error("issuer should be reported as a minter")
	}

	w = doReq(t, router, "DELETE", "/api/v1/rewards/minters/issuer", "admin", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("remove minter: expected 204, got %d", w.Code)
	}
	w = doReq(t, router, "GET", "/api/v1/rewards/minters/issuer", "", nil)
	json.Unmarshal(w.Body.Bytes(), &check)
	if check.IsMinter {
		t.Error("issuer should no longer be a minter")
	}
}

// --- Config ---

func TestUpdateConfig_AdminOnly(t *testing.T) {
	_, ms, router := newTestEnv(t)

	cfg := model.DefaultRewardConfig()
	cfg.BaseWeeklyReward = model.Units(20)

	w := doReq(t, router, "PUT", "/api/v1/rewards/config", "mallory", cfg)
	if w.Code != http.StatusForbidden {
		t.Fatalf("non-admin config: expected 403, got %d", w.Code)
	}

	w = doReq(t, router, "PUT", "/api/v1/rewards/config", "admin", cfg)
	if w.Code != http.StatusOK {
		t.Fatalf("admin config: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	stored, _ := ms.GetRewardConfig(context.Background())
	if !stored.BaseWeeklyReward.Equal(model.Units(20)) {
		t.Errorf("base reward = %s, want 20 units", stored.BaseWeeklyReward)
	}
}
