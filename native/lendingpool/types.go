package lendingpool

import (
	"stablemortgage/crypto"
)

// Pool tracks the aggregate liquidity of one lending pool. The invariant
// TotalBorrowed <= TotalDeposited holds at every observable state; the
// difference is the liquidity available for new loans and withdrawals.
type Pool struct {
	ID              string         `json:"id"`
	Authority       crypto.Address `json:"authority"`
	Vault           crypto.Address `json:"vault"`
	InterestRateBps uint64         `json:"interestRateBps"`
	LoanDuration    uint64         `json:"loanDuration"`
	TotalDeposited  uint64         `json:"totalDeposited"`
	TotalBorrowed   uint64         `json:"totalBorrowed"`
	InterestIndex   uint64         `json:"interestIndex"`
	Active          bool           `json:"active"`
	UpdatedAt       int64          `json:"updatedAt"`
}

// AvailableLiquidity returns the stablecoin amount not currently lent out.
func (p *Pool) AvailableLiquidity() uint64 {
	if p == nil || p.TotalBorrowed > p.TotalDeposited {
		return 0
	}
	return p.TotalDeposited - p.TotalBorrowed
}

// Clone returns a copy of the pool record.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// LenderPosition records one lender's stake in one pool. A position is
// created on first deposit and updated on every deposit, withdrawal and
// interest accrual.
type LenderPosition struct {
	Owner          crypto.Address `json:"owner"`
	PoolID         string         `json:"poolId"`
	Deposited      uint64         `json:"deposited"`
	EarnedInterest uint64         `json:"earnedInterest"`
	IndexSnapshot  uint64         `json:"indexSnapshot"`
	UpdatedAt      int64          `json:"updatedAt"`
}

// Clone returns a copy of the position record.
func (p *LenderPosition) Clone() *LenderPosition {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}
