package params

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParameter = errors.New("params: invalid parameter")
	ErrInvalidBounds    = errors.New("params: min exceeds max")
)

// Parameters holds the process-wide risk and loan limits consulted by the
// mortgage and lending pool engines. It is mutated only through Apply, which
// governance invokes after a proposal passes.
type Parameters struct {
	MinLoanAmount           uint64 `json:"minLoanAmount" toml:"min_loan_amount"`
	MaxLoanAmount           uint64 `json:"maxLoanAmount" toml:"max_loan_amount"`
	MinLoanDuration         uint64 `json:"minLoanDuration" toml:"min_loan_duration"`
	MaxLoanDuration         uint64 `json:"maxLoanDuration" toml:"max_loan_duration"`
	MinInterestRateBps      uint64 `json:"minInterestRateBps" toml:"min_interest_rate"`
	MaxInterestRateBps      uint64 `json:"maxInterestRateBps" toml:"max_interest_rate"`
	LiquidationThresholdPct uint64 `json:"liquidationThresholdPct" toml:"liquidation_threshold"`
}

// Validate enforces the paired-bound invariants: every min must not exceed
// its max and the liquidation threshold must be a usable percentage.
func (p Parameters) Validate() error {
	if p.MinLoanAmount > p.MaxLoanAmount {
		return fmt.Errorf("%w: loan amount bounds", ErrInvalidBounds)
	}
	if p.MinLoanDuration > p.MaxLoanDuration {
		return fmt.Errorf("%w: loan duration bounds", ErrInvalidBounds)
	}
	if p.MinInterestRateBps > p.MaxInterestRateBps {
		return fmt.Errorf("%w: interest rate bounds", ErrInvalidBounds)
	}
	if p.LiquidationThresholdPct == 0 || p.LiquidationThresholdPct > 100 {
		return fmt.Errorf("%w: liquidation threshold must be within 1..100", ErrInvalidParameter)
	}
	return nil
}

// Key identifies a single governance-updatable parameter. The enumeration is
// closed: ParseKey rejects anything outside the seven canonical names, so an
// unknown key fails before a proposal is even admitted.
type Key uint8

const (
	KeyUnspecified Key = iota
	KeyMinLoanAmount
	KeyMaxLoanAmount
	KeyMinLoanDuration
	KeyMaxLoanDuration
	KeyMinInterestRate
	KeyMaxInterestRate
	KeyLiquidationThreshold
)

var keyNames = map[Key]string{
	KeyMinLoanAmount:        "min_loan_amount",
	KeyMaxLoanAmount:        "max_loan_amount",
	KeyMinLoanDuration:      "min_loan_duration",
	KeyMaxLoanDuration:      "max_loan_duration",
	KeyMinInterestRate:      "min_interest_rate",
	KeyMaxInterestRate:      "max_interest_rate",
	KeyLiquidationThreshold: "liquidation_threshold",
}

// String returns the canonical wire name for the key.
func (k Key) String() string {
	if name, ok := keyNames[k]; ok {
		return name
	}
	return fmt.Sprintf("params.Key(%d)", uint8(k))
}

// Valid reports whether the key is one of the canonical parameters.
func (k Key) Valid() bool {
	_, ok := keyNames[k]
	return ok
}

// ParseKey maps a canonical parameter name onto its typed key.
func ParseKey(name string) (Key, error) {
	for key, candidate := range keyNames {
		if candidate == name {
			return key, nil
		}
	}
	return KeyUnspecified, fmt.Errorf("%w: unknown key %q", ErrInvalidParameter, name)
}

// Keys lists every updatable parameter in declaration order.
func Keys() []Key {
	return []Key{
		KeyMinLoanAmount,
		KeyMaxLoanAmount,
		KeyMinLoanDuration,
		KeyMaxLoanDuration,
		KeyMinInterestRate,
		KeyMaxInterestRate,
		KeyLiquidationThreshold,
	}
}

// Apply returns a copy of the parameters with the keyed field set to value.
// The result is re-validated so a governance update can never leave the
// bounds inconsistent.
func (p Parameters) Apply(key Key, value uint64) (Parameters, error) {
	updated := p
	switch key {
	case KeyMinLoanAmount:
		updated.MinLoanAmount = value
	case KeyMaxLoanAmount:
		updated.MaxLoanAmount = value
	case KeyMinLoanDuration:
		updated.MinLoanDuration = value
	case KeyMaxLoanDuration:
		updated.MaxLoanDuration = value
	case KeyMinInterestRate:
		updated.MinInterestRateBps = value
	case KeyMaxInterestRate:
		updated.MaxInterestRateBps = value
	case KeyLiquidationThreshold:
		updated.LiquidationThresholdPct = value
	default:
		return p, ErrInvalidParameter
	}
	if err := updated.Validate(); err != nil {
		return p, err
	}
	return updated, nil
}

// MaxLTVBps derives the maximum loan-to-value ratio permitted at mortgage
// creation from the liquidation threshold percentage, expressed in basis
// points.
func (p Parameters) MaxLTVBps() uint64 {
	return p.LiquidationThresholdPct * 100
}
