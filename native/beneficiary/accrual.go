package beneficiary

import "math/big"

// Continuous compounding at ray (1e27) fixed-point precision. The owed
// amount after elapsed seconds is lastAmount * e^(rate/RateBase *
// elapsed/SecondsPerYear). The exponential is evaluated with a fixed 1/128
// argument reduction followed by a Taylor expansion and seven squarings, all
// with half-up rounding, which keeps the result deterministic, monotonic in
// the elapsed time and within 1e-9 relative error across the safe range.
var (
	ray     = mustBigInt("1000000000000000000000000000")
	halfRay = new(big.Int).Rsh(ray, 1)

	// maxExpInput bounds the exponent at 50 ray, i.e. 50 rate-years.
	// Beyond it the factor exceeds e^50 and the call is rejected rather
	// than silently clamped.
	maxExpInput = new(big.Int).Mul(ray, big.NewInt(50))

	secondsPerRateYear = new(big.Int).Mul(big.NewInt(RateBase), big.NewInt(SecondsPerYear))
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

func rayMul(a, b *big.Int) *big.Int {
	if a == nil || b == nil {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(a, b)
	product.Add(product, halfRay)
	product.Quo(product, ray)
	return product
}

// accrueAmount projects lastAmount forward by elapsed seconds of continuous
// compounding at annualRate over RateBase. elapsed == 0 or a zero rate is the
// identity. The input is rejected with ErrAccrualOverflow once
// rate/RateBase * elapsed/SecondsPerYear exceeds 50.
func accrueAmount(lastAmount *big.Int, annualRate uint64, elapsed int64) (*big.Int, error) {
	if lastAmount == nil || lastAmount.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if elapsed < 0 {
		return nil, ErrAccrualOverflow
	}
	if elapsed == 0 || annualRate == 0 {
		return new(big.Int).Set(lastAmount), nil
	}

	// x = ray * rate * elapsed / (RateBase * SecondsPerYear)
	x := new(big.Int).SetUint64(annualRate)
	x.Mul(x, big.NewInt(elapsed))
	x.Mul(x, ray)
	x.Quo(x, secondsPerRateYear)

	factor, err := expRay(x)
	if err != nil {
		return nil, err
	}
	next := rayMul(lastAmount, factor)
	// Rounding must never let the owed amount shrink.
	if next.Cmp(lastAmount) < 0 {
		next.Set(lastAmount)
	}
	return next, nil
}

// expRay computes e^(x/ray) in ray fixed point.
func expRay(x *big.Int) (*big.Int, error) {
	if x == nil || x.Sign() == 0 {
		return new(big.Int).Set(ray), nil
	}
	if x.Sign() < 0 || x.Cmp(maxExpInput) > 0 {
		return nil, ErrAccrualOverflow
	}

	// Fixed reduction keeps the Taylor argument below 0.4 ray so the
	// series converges within a handful of terms for every valid input.
	const reductions = 7
	y := new(big.Int).Rsh(x, reductions)

	sum := new(big.Int).Set(ray)
	term := new(big.Int).Set(ray)
	for n := int64(1); n <= 40; n++ {
		term = rayMul(term, y)
		term.Quo(term, big.NewInt(n))
		if term.Sign() == 0 {
			break
		}
		sum.Add(sum, term)
	}

	for i := 0; i < reductions; i++ {
		sum = rayMul(sum, sum)
	}
	return sum, nil
}
