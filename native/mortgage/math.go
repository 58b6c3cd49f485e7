package mortgage

import (
	"math/big"

	"stablemortgage/native/common"
)

const (
	// PaymentPeriod is the length of one repayment period in seconds.
	PaymentPeriod = 30 * 24 * 60 * 60
	// periodsPerYear converts an annual rate into a per-period rate.
	periodsPerYear = 12
	basisPoints    = 10_000
)

// paymentCount derives how many installments retire a loan of the given
// duration. A duration shorter than one period still takes one payment.
func paymentCount(duration uint64) uint64 {
	n := duration / PaymentPeriod
	if n == 0 {
		return 1
	}
	return n
}

// periodicRate returns the per-period interest rate as an exact rational.
func periodicRate(rateBps uint64) *big.Rat {
	return big.NewRat(int64(rateBps), basisPoints*periodsPerYear)
}

// amortizedPayment computes the fixed installment that retires principal plus
// interest over n periods: M = P*r*(1+r)^n / ((1+r)^n - 1), rounded up so the
// final payment never undershoots. A zero rate degrades to straight-line
// repayment.
func amortizedPayment(principal, rateBps, duration uint64) (uint64, error) {
	n := paymentCount(duration)
	rate := periodicRate(rateBps)
	p := new(big.Rat).SetUint64(principal)

	if rate.Sign() == 0 {
		return ratCeilU64(new(big.Rat).Quo(p, new(big.Rat).SetUint64(n)))
	}

	onePlus := new(big.Rat).Add(big.NewRat(1, 1), rate)
	compounded := ratPow(onePlus, n)

	numerator := new(big.Rat).Mul(p, rate)
	numerator.Mul(numerator, compounded)
	denominator := new(big.Rat).Sub(compounded, big.NewRat(1, 1))
	if denominator.Sign() == 0 {
		return ratCeilU64(new(big.Rat).Quo(p, new(big.Rat).SetUint64(n)))
	}
	return ratCeilU64(numerator.Quo(numerator, denominator))
}

// periodInterest returns the interest accruing on the outstanding balance
// over one period, rounded down.
func periodInterest(balance, rateBps uint64) (uint64, error) {
	interest := new(big.Int).SetUint64(balance)
	interest.Mul(interest, new(big.Int).SetUint64(rateBps))
	interest.Quo(interest, big.NewInt(basisPoints*periodsPerYear))
	if !interest.IsUint64() {
		return 0, common.ErrOverflow
	}
	return interest.Uint64(), nil
}

func ratPow(base *big.Rat, exp uint64) *big.Rat {
	result := big.NewRat(1, 1)
	factor := new(big.Rat).Set(base)
	for exp > 0 {
		if exp&1 == 1 {
			result.Mul(result, factor)
		}
		factor.Mul(factor, factor)
		exp >>= 1
	}
	return result
}

func ratCeilU64(r *big.Rat) (uint64, error) {
	num := new(big.Int).Set(r.Num())
	den := r.Denom()
	quo, rem := new(big.Int).QuoRem(num, den, new(big.Int))
	if rem.Sign() > 0 {
		quo.Add(quo, big.NewInt(1))
	}
	if !quo.IsUint64() {
		return 0, common.ErrOverflow
	}
	return quo.Uint64(), nil
}
