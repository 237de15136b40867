// Package split implements the floor-division proportional yield split.
// All arithmetic is exact big-integer math; shares round down and the
// remainder is retained by the pool, not redistributed.
package split

import (
	"errors"

	sdkmath "cosmossdk.io/math"
)

// ErrZeroDeposits is returned when a split is requested against a pool
// with no deposits. The quotient would be undefined; callers must treat
// this as an arithmetic failure, not a no-op.
var ErrZeroDeposits = errors.New("split: total deposited is zero")

// Stake is one participant's principal entering a distribution.
type Stake struct {
	User      string
	Principal sdkmath.Int
	Compound  bool
}

// Allocation is the computed share for one stake.
type Allocation struct {
	User       string
	Share      sdkmath.Int
	Compounded bool
}

// Share computes floor(principal * totalYield / totalDeposited).
func Share(principal, totalYield, totalDeposited sdkmath.Int) (sdkmath.Int, error) {
	if !totalDeposited.IsPositive() {
		return sdkmath.Int{}, ErrZeroDeposits
	}
	// Int.Quo truncates toward zero, which is floor for non-negative
	// operands.
	return principal.Mul(totalYield).Quo(totalDeposited), nil
}

// Distribute allocates totalYield across stakes in order.
//
// A compounding stake folds its share back into the running denominator
// immediately, so stakes evaluated later in the same distribution divide by
// the enlarged total. This makes mixed compounding/non-compounding splits
// sensitive to participant order. With no compounding stakes the
// denominator is constant; for N equal principals the allocated total is
// exactly totalYield - (totalYield mod N).
//
// Returns the allocations and the updated total deposited.
func Distribute(stakes []Stake, totalYield, totalDeposited sdkmath.Int) ([]Allocation, sdkmath.Int, error) {
	if !totalDeposited.IsPositive() {
		return nil, sdkmath.Int{}, ErrZeroDeposits
	}

	allocations := make([]Allocation, 0, len(stakes))
	denominator := totalDeposited

	for _, st := range stakes {
		share := st.Principal.Mul(totalYield).Quo(denominator)
		if st.Compound {
			denominator = denominator.Add(share)
		}
		allocations = append(allocations, Allocation{
			User:       st.User,
			Share:      share,
			Compounded: st.Compound,
		})
	}

	return allocations, denominator, nil
}

// Allocated sums the shares in a set of allocations.
func Allocated(allocations []Allocation) sdkmath.Int {
	total := sdkmath.ZeroInt()
	for _, a := range allocations {
		total = total.Add(a.Share)
	}
	return total
}
