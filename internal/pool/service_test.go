package pool_test

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
	"github.com/stellarsave/savings-engine/internal/pool"
	"github.com/stellarsave/savings-engine/internal/store"
)

func i(n int64) sdkmath.Int { return sdkmath.NewInt(n) }

// newTestEnv creates a test Service with in-memory store and chi router.
// The clock starts at a fixed instant and can be advanced through the
// returned pointer.
func newTestEnv(t *testing.T) (*pool.Service, *store.MemoryStore, chi.Router, *int64) {
	t.Helper()
	ms := store.NewMemoryStore()
	svc := pool.NewService(ms, auth.NewHeaderGate(""), nil)

	now := int64(1_700_000_000)
	svc.SetClock(func() int64 { return now })

	r := chi.NewRouter()
	r.Post("/api/v1/initialize", svc.Initialize)
	r.Post("/api/v1/pools", svc.CreatePool)
	r.Get("/api/v1/pools", svc.ListPools)
	r.Get("/api/v1/pools/{poolID}", svc.GetPool)
	r.Post("/api/v1/pools/{poolID}/deposit", svc.Deposit)
	r.Post("/api/v1/pools/{poolID}/withdraw", svc.Withdraw)
	r.Post("/api/v1/pools/{poolID}/emergency-withdraw", svc.EmergencyWithdraw)
	r.Post("/api/v1/pools/{poolID}/distribute", svc.DistributeYield)
	r.Get("/api/v1/pools/{poolID}/projected-yield", svc.ProjectedYield)
	r.Get("/api/v1/positions/{user}", svc.GetPositions)
	r.Get("/api/v1/tvl", svc.GetTVL)
	r.Get("/api/v1/rates/{pair}", svc.GetExchangeRate)
	r.Put("/api/v1/rates/{pair}", svc.UpdateExchangeRate)

	return svc, ms, r, &now
}

// seedAdmin stores the administrator principal directly.
func seedAdmin(t *testing.T, ms *store.MemoryStore) {
	t.Helper()
	if err := ms.SetAdmin(context.Background(), "admin"); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
}

// seedPool creates a pool directly in the store.
func seedPool(t *testing.T, ms *store.MemoryStore, id int64, min, max, lockDuration int64) *model.Pool {
	t.Helper()
	p := &model.Pool{
		ID:               id,
		Name:             "US-MX Savings",
		BaseCurrency:     "USD",
		TargetCurrency:   "MXN",
		Corridor:         "US-MX",
		TotalDeposited:   sdkmath.ZeroInt(),
		TotalYieldEarned: sdkmath.ZeroInt(),
		APYBasisPoints:   500,
		Participants:     []string{},
		IsActive:         true,
		MinDeposit:       i(min),
		MaxDeposit:       i(max),
		LockDuration:     lockDuration,
	}
	if err := ms.SetPool(context.Background(), p); err != nil {
		t.Fatalf("seed pool: %v", err)
	}
	return p
}

// doReq performs a request with the principal header stamped.
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

func deposit(t *testing.T, router chi.Router, user string, amount int64, compound bool) *httptest.ResponseRecorder {
	t.Helper()
	return doReq(t, router, "POST", "/api/v1/pools/1/deposit", user, pool.DepositRequest{
		User: user, Amount: i(amount), AutoCompound: compound,
	})
}

// --- Initialization ---

func TestInitialize_OnceOnly(t *testing.T) {
	_, ms, router, _ := newTestEnv(t)

	w := doReq(t, router, "POST", "/api/v1/initialize", "admin", pool.InitializeRequest{Admin: "admin"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	admin, err := ms.GetAdmin(context.Background())
	if err != nil || admin != "admin" {
		t.Errorf("admin = %q, err = %v", admin, err)
	}
	// Default reward config and corridor rates are seeded.
	if _, err := ms.GetRewardConfig(context.Background()); err != nil {
		t.Errorf("reward config not seeded: %v", err)
	}
	rate, err := ms.GetExchangeRate(context.Background(), "US-MX")
	if err != nil || !rate.Equal(model.DefaultExchangeRate) {
		t.Errorf("US-MX rate = %v, err = %v", rate, err)
	}

	w = doReq(t, router, "POST", "/api/v1/initialize", "admin", pool.InitializeRequest{Admin: "admin"})
	if w.Code != http.StatusConflict {
		t.Errorf("second initialize: expected 409, got %d", w.Code)
	}
}

// --- Pool creation ---

func TestCreatePool_AdminOnly(t *testing.T) {
	_, ms, router, _ := newTestEnv(t)
	seedAdmin(t, ms)

	req := pool.CreatePoolRequest{
		Name: "US-PH Savings", Corridor: "US-PH", APYBasisPoints: 400,
		MinDeposit: i(10), MaxDeposit: i(1000), LockDuration: 3600,
	}

	w := doReq(t, router, "POST", "/api/v1/pools", "mallory", req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("non-admin create: expected 403, got %d", w.Code)
	}

	w = doReq(t, router, "POST", "/api/v1/pools", "admin", req)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var created model.Pool
	json.Unmarshal(w.Body.Bytes(), &created)
	if created.ID != 1 {
		t.Errorf("first pool id = %d, want 1", created.ID)
	}
	if !created.IsActive {
		t.Error("new pool should be active")
	}
}

func TestCreatePool_InvalidBounds(t *testing.T) {
	_, ms, router, _ := newTestEnv(t)
	seedAdmin(t, ms)

	w := doReq(t, router, "POST", "/api/v1/pools", "admin", pool.CreatePoolRequest{
		Name: "Bad", MinDeposit: i(1000), MaxDeposit: i(10), LockDuration: 0,
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("min > max: expected 400, got %d", w.Code)
	}
}

// --- Deposits ---

func TestDeposit_Bounds(t *testing.T) {
	// Pool with min 10, max 1000: 5 fails low, 1500 fails high, 100 lands.
	_, ms, router, _ := newTestEnv(t)
	seedAdmin(t, ms)
	seedPool(t, ms, 1, 10, 1000, 0)

	w := deposit(t, router, "alice", 5, false)
	if w.Code != http.StatusBadRequest {
		t.Errorf("below minimum: expected 400, got %d", w.Code)
	}
	var errBody map[string]string
	json.Unmarshal(w.Body.Bytes(), &errBody)
	if errBody["code"] != "MinDepositNotMet" {
		t.Errorf("code = %q, want MinDepositNotMet", errBody["code"])
	}

	w = deposit(t, router, "alice", 1500, false)
	if w.Code != http.StatusBadRequest {
		t.Errorf("above maximum: expected 400, got %d", w.Code)
	}
	json.Unmarshal(w.Body.Bytes(), &errBody)
	if errBody["code"] != "MaxDepositExceeded" {
		t.Errorf("code = %q, want MaxDepositExceeded", errBody["code"])
	}

	w = deposit(t, router, "alice", 100, false)
	if w.Code != http.StatusOK {
		t.Fatalf("valid deposit: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	p, _ := ms.GetPool(context.Background(), 1)
	if !p.TotalDeposited.Equal(i(100)) {
		t.Errorf("total_deposited = %s, want 100", p.TotalDeposited)
	}
	if !p.HasParticipant("alice") {
		t.Error("alice should be a participant")
	}
}

func TestDeposit_InactivePool(t *testing.T) {
	_, ms, router, _ := newTestEnv(t)
	seedAdmin(t, ms)
	p := seedPool(t, ms, 1, 10, 1000, 0)
	p.IsActive = false
	ms.SetPool(context.Background(), p)

	w := deposit(t, router, "alice", 100, false)
	if w.Code != http.StatusConflict {
		t.Errorf("inactive pool: expected 409, got %d", w.Code)
	}
}

func TestDeposit_ExtendsPositionAndRefreshesLock(t *testing.T) {
	_, ms, router, now := newTestEnv(t)
	seedAdmin(t, ms)
	seedPool(t, ms, 1, 10, 1000, 3600)

	deposit(t, router, "alice", 100, false)
	*now += 1000
	deposit(t, router, "alice", 200, false)

	position, err := ms.GetPosition(context.Background(), "alice", 1)
	if err != nil {
		t.Fatalf("get position: %v", err)
	}
	if !position.Principal.Equal(i(300)) {
		t.Errorf("principal = %s, want 300", position.Principal)
	}
	if position.LockUntil != *now+3600 {
		t.Errorf("lock_until = %d, want %d", position.LockUntil, *now+3600)
	}

	p, _ := ms.GetPool(context.Background(), 1)
	if len(p.Participants) != 1 {
		t.Errorf("participant set grew on re-deposit: %v", p.Participants)
	}
}

// --- Withdrawals ---

func TestWithdraw_LockedThenFree(t *testing.T) {
	_, ms, router, now := newTestEnv(t)
	seedAdmin(t, ms)
	seedPool(t, ms, 1, 10, 1000, 3600)
	deposit(t, router, "alice", 100, false)

	w := doReq(t, router, "POST", "/api/v1/pools/1/withdraw", "alice", pool.WithdrawRequest{User: "alice"})
	if w.Code != http.StatusConflict {
		t.Fatalf("locked withdraw: expected 409, got %d: %s", w.Code, w.Body.String())
	}
	var errBody map[string]string
	json.Unmarshal(w.Body.Bytes(), &errBody)
	if errBody["code"] != "PositionLocked" {
		t.Errorf("code = %q, want PositionLocked", errBody["code"])
	}

	*now += 3601
	w = doReq(t, router, "POST", "/api/v1/pools/1/withdraw", "alice", pool.WithdrawRequest{User: "alice"})
	if w.Code != http.StatusOK {
		t.Fatalf("unlocked withdraw: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp pool.WithdrawResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Total.Equal(i(100)) {
		t.Errorf("payout = %s, want 100", resp.Total)
	}

	// Record kept, zeroed and closed.
	position, err := ms.GetPosition(context.Background(), "alice", 1)
	if err != nil {
		t.Fatalf("position record should survive withdrawal: %v", err)
	}
	if !position.Closed || !position.Principal.IsZero() {
		t.Errorf("position not settled: %+v", position)
	}

	p, _ := ms.GetPool(context.Background(), 1)
	if !p.TotalDeposited.IsZero() {
		t.Errorf("total_deposited = %s, want 0", p.TotalDeposited)
	}
}

func TestEmergencyWithdraw_BypassesLockButNeedsAdmin(t *testing.T) {
	_, ms, router, _ := newTestEnv(t)
	seedAdmin(t, ms)
	seedPool(t, ms, 1, 10, 1000, 86400)
	deposit(t, router, "alice", 100, false)

	// Still locked: a non-admin principal cannot use the emergency path.
	w := doReq(t, router, "POST", "/api/v1/pools/1/emergency-withdraw", "alice", pool.WithdrawRequest{User: "alice"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("non-admin emergency: expected 403, got %d", w.Code)
	}

	w = doReq(t, router, "POST", "/api/v1/pools/1/emergency-withdraw", "admin", pool.WithdrawRequest{User: "alice"})
	if w.Code != http.StatusOK {
		t.Fatalf("admin emergency: expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

// --- Yield distribution ---

func TestDistributeYield_Proportional(t *testing.T) {
	// Principals 300 and 700 of a 1000 pool: 100 yield splits 30/70 with no
	// rounding loss.
	_, ms, router, _ := newTestEnv(t)
	seedAdmin(t, ms)
	seedPool(t, ms, 1, 10, 1000, 0)
	deposit(t, router, "alice", 300, false)
	deposit(t, router, "bob", 700, false)

	w := doReq(t, router, "POST", "/api/v1/pools/1/distribute", "admin", pool.DistributeRequest{TotalYield: i(100)})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	ctx := context.Background()
	alice, _ := ms.GetPosition(ctx, "alice", 1)
	bob, _ := ms.GetPosition(ctx, "bob", 1)
	if !alice.YieldEarned.Equal(i(30)) {
		t.Errorf("alice yield = %s, want 30", alice.YieldEarned)
	}
	if !bob.YieldEarned.Equal(i(70)) {
		t.Errorf("bob yield = %s, want 70", bob.YieldEarned)
	}

	p, _ := ms.GetPool(ctx, 1)
	if !p.TotalYieldEarned.Equal(i(100)) {
		t.Errorf("total_yield_earned = %s, want 100", p.TotalYieldEarned)
	}
	if !p.TotalDeposited.Equal(i(1000)) {
		t.Errorf("total_deposited changed without compounding: %s", p.TotalDeposited)
	}
}

func TestDistributeYield_ZeroDeposits(t *testing.T) {
	_, ms, router, _ := newTestEnv(t)
	seedAdmin(t, ms)
	seedPool(t, ms, 1, 10, 1000, 0)

	w := doReq(t, router, "POST", "/api/v1/pools/1/distribute", "admin", pool.DistributeRequest{TotalYield: i(100)})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("empty pool: expected 422, got %d: %s", w.Code, w.Body.String())
	}
	var errBody map[string]string
	json.Unmarshal(w.Body.Bytes(), &errBody)
	if errBody["code"] != "ZeroTotalDeposits" {
		t.Errorf("code = %q, want ZeroTotalDeposits", errBody["code"])
	}
}

func TestDistributeYield_AdminOnly(t *testing.T) {
	_, ms, router, _ := newTestEnv(t)
	seedAdmin(t, ms)
	seedPool(t, ms, 1, 10, 1000, 0)
	deposit(t, router, "alice", 100, false)

	w := doReq(t, router, "POST", "/api/v1/pools/1/distribute", "alice", pool.DistributeRequest{TotalYield: i(100)})
	if w.Code != http.StatusForbidden {
		t.Errorf("non-admin distribute: expected 403, got %d", w.Code)
	}
}

func TestDistributeYield_CompoundingGrowsPoolAndInvariantHolds(t *testing.T) {
	_, ms, router, _ := newTestEnv(t)
	seedAdmin(t, ms)
	seedPool(t, ms, 1, 10, 1000, 0)
	deposit(t, router, "alice", 500, true)
	deposit(t, router, "bob", 500, false)

	w := doReq(t, router, "POST", "/api/v1/pools/1/distribute", "admin", pool.DistributeRequest{TotalYield: i(100)})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	ctx := context.Background()
	alice, _ := ms.GetPosition(ctx, "alice", 1)
	bob, _ := ms.GetPosition(ctx, "bob", 1)
	p, _ := ms.GetPool(ctx, 1)

	// alice: 500*100/1000 = 50, compounded into principal; bob then divides
	// by the enlarged 1050: 500*100/1050 = 47.
	if !alice.Principal.Equal(i(550)) {
		t.Errorf("alice principal = %s, want 550", alice.Principal)
	}
	if !bob.YieldEarned.Equal(i(47)) {
		t.Errorf("bob yield = %s, want 47", bob.YieldEarned)
	}

	// Pool sum invariant: total_deposited equals the sum of open position
	// principals after the distribution.
	sum := alice.Principal.Add(bob.Principal)
	if !p.TotalDeposited.Equal(sum) {
		t.Errorf("total_deposited = %s, sum of principals = %s", p.TotalDeposited, sum)
	}
}

// --- Queries ---

func TestProjectedYield(t *testing.T) {
	_, ms, router, _ := newTestEnv(t)
	seedAdmin(t, ms)
	seedPool(t, ms, 1, 10, 1000, 0) // 500 bps APY

	w := doReq(t, router, "GET", "/api/v1/pools/1/projected-yield?amount=10000&days=365", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		ProjectedYield sdkmath.Int `json:"projected_yield"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	// 10000 * 500 / 10000 over a full year = 500.
	if !resp.ProjectedYield.Equal(i(500)) {
		t.Errorf("projected yield = %s, want 500", resp.ProjectedYield)
	}
}

func TestExchangeRate_DefaultAndUpdate(t *testing.T) {
	_, ms, router, _ := newTestEnv(t)
	seedAdmin(t, ms)

	w := doReq(t, router, "GET", "/api/v1/rates/US-BR", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Rate sdkmath.Int `json:"rate"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Rate.Equal(model.DefaultExchangeRate) {
		t.Errorf("unknown pair rate = %s, want 1:1 default", resp.Rate)
	}

	w = doReq(t, router, "PUT", "/api/v1/rates/US-BR", "admin", pool.RateRequest{Rate: i(52_0000000)})
	if w.Code != http.StatusOK {
		t.Fatalf("update rate: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doReq(t, router, "GET", "/api/v1/rates/US-BR", "", nil)
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Rate.Equal(i(52_0000000)) {
		t.Errorf("rate = %s, want 520000000", resp.Rate)
	}
}

func TestTVL_TracksDepositsAndWithdrawals(t *testing.T) {
	_, ms, router, now := newTestEnv(t)
	seedAdmin(t, ms)
	seedPool(t, ms, 1, 10, 1000, 0)
	deposit(t, router, "alice", 300, false)
	deposit(t, router, "bob", 200, false)

	tvl, _ := ms.GetTotalValueLocked(context.Background())
	if !tvl.Equal(i(500)) {
		t.Fatalf("tvl = %s, want 500", tvl)
	}

	*now += 1
	doReq(t, router, "POST", "/api/v1/pools/1/withdraw", "bob", pool.WithdrawRequest{User: "bob"})
	tvl, _ = ms.GetTotalValueLocked(context.Background())
	if !tvl.Equal(i(300)) {
		t.Errorf("tvl after withdrawal = %s, want 300", tvl)
	}
}
