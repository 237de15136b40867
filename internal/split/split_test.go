package split

import (
	"errors"
	"testing"

	sdkmath "cosmossdk.io/math"
)

func i(n int64) sdkmath.Int { return sdkmath.NewInt(n) }

func TestShare_Proportional(t *testing.T) {
	// Two participants with principals 300 and 700 in a 1000 pool splitting
	// 100 units of yield: shares are exactly 30 and 70, no rounding loss.
	s1, err := Share(i(300), i(100), i(1000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s2, err := Share(i(700), i(100), i(1000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s1.Equal(i(30)) {
		t.Errorf("expected share 30, got %s", s1)
	}
	if !s2.Equal(i(70)) {
		t.Errorf("expected share 70, got %s", s2)
	}
	if !s1.Add(s2).Equal(i(100)) {
		t.Errorf("shares should sum to 100, got %s", s1.Add(s2))
	}
}

func TestShare_FloorsDown(t *testing.T) {
	// 1 * 100 / 3 = 33.33… → 33.
	s, err := Share(i(1), i(100), i(3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.Equal(i(33)) {
		t.Errorf("expected 33, got %s", s)
	}
}

func TestShare_ZeroDeposits(t *testing.T) {
	_, err := Share(i(100), i(100), i(0))
	if !errors.Is(err, ErrZeroDeposits) {
		t.Errorf("expected ErrZeroDeposits, got %v", err)
	}
	_, err = Share(i(100), i(100), i(-5))
	if !errors.Is(err, ErrZeroDeposits) {
		t.Errorf("expected ErrZeroDeposits for negative denominator, got %v", err)
	}
}

func TestDistribute_RemainderRetained(t *testing.T) {
	// Three equal non-compounding participants splitting 100: each gets
	// floor(100/3) = 33 and the remaining 1 is never allocated.
	stakes := []Stake{
		{User: "a", Principal: i(500)},
		{User: "b", Principal: i(500)},
		{User: "c", Principal: i(500)},
	}
	allocs, newTotal, err := Distribute(stakes, i(100), i(1500))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, a := range allocs {
		if !a.Share.Equal(i(33)) {
			t.Errorf("participant %s: expected share 33, got %s", a.User, a.Share)
		}
	}

	totalYield := i(100)
	n := i(int64(len(stakes)))
	want := totalYield.Sub(totalYield.Mod(n))
	if got := Allocated(allocs); !got.Equal(want) {
		t.Errorf("allocated = %s, want totalYield - (totalYield mod N) = %s", got, want)
	}
	if !newTotal.Equal(i(1500)) {
		t.Errorf("total deposited should be unchanged without compounding, got %s", newTotal)
	}
}

func TestDistribute_AutoCompoundGrowsDenominator(t *testing.T) {
	// The compounding stake's share enters the denominator before the next
	// stake is evaluated.
	stakes := []Stake{
		{User: "a", Principal: i(500), Compound: true},
		{User: "b", Principal: i(500)},
	}
	allocs, newTotal, err := Distribute(stakes, i(100), i(1000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// a: 500*100/1000 = 50, compounds → denominator becomes 1050.
	// b: 500*100/1050 = 47 (floored).
	if !allocs[0].Share.Equal(i(50)) {
		t.Errorf("a share = %s, want 50", allocs[0].Share)
	}
	if !allocs[1].Share.Equal(i(47)) {
		t.Errorf("b share = %s, want 47", allocs[1].Share)
	}
	if !newTotal.Equal(i(1050)) {
		t.Errorf("new total = %s, want 1050", newTotal)
	}
}

func TestDistribute_OrderSensitivityWithCompounding(t *testing.T) {
	forward := []Stake{
		{User: "a", Principal: i(500), Compound: true},
		{User: "b", Principal: i(500)},
	}
	reverse := []Stake{
		{User: "b", Principal: i(500)},
		{User: "a", Principal: i(500), Compound: true},
	}

	fa, _, err := Distribute(forward, i(100), i(1000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ra, _, err := Distribute(reverse, i(100), i(1000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// b is diluted when evaluated after the compounding stake.
	var fb, rb sdkmath.Int
	for _, a := range fa {
		if a.User == "b" {
			fb = a.Share
		}
	}
	for _, a := range ra {
		if a.User == "b" {
			rb = a.Share
		}
	}
	if !fb.LT(rb) {
		t.Errorf("expected b's share to shrink when compounding runs first: forward=%s reverse=%s", fb, rb)
	}
}

func TestDistribute_LargeAmountsExact(t *testing.T) {
	// Products beyond int64 range must stay exact.
	principal, ok := sdkmath.NewIntFromString("900000000000000000")
	if !ok {
		t.Fatal("bad literal")
	}
	total := principal.MulRaw(3)
	yield, ok := sdkmath.NewIntFromString("600000000000000000")
	if !ok {
		t.Fatal("bad literal")
	}

	s, err := Share(principal, yield, total)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.Equal(yield.QuoRaw(3)) {
		t.Errorf("expected exact third of yield, got %s", s)
	}
}

func TestDistribute_ZeroDeposits(t *testing.T) {
	_, _, err := Distribute([]Stake{{User: "a", Principal: i(0)}}, i(100), i(0))
	if !errors.Is(err, ErrZeroDeposits) {
		t.Errorf("expected ErrZeroDeposits, got %v", err)
	}
}
