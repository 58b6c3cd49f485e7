package mortgage

import (
	"stablemortgage/crypto"
)

// Status describes where a mortgage sits in its lifecycle. The stored record
// keeps the raw flags; Status is derived for callers and events.
type Status string

const (
	StatusCreated   Status = "created"
	StatusActive    Status = "active"
	StatusPaidOff   Status = "paid_off"
	StatusDefaulted Status = "defaulted"
	StatusClosed    Status = "closed"
)

// Mortgage is the full loan record. Created inactive, activated at funding,
// and closed exactly once, either by retiring the balance or by liquidation.
// The referenced collateral stays locked for the entire active span and is
// unlocked (or seized) at close.
type Mortgage struct {
	ID               [32]byte       `json:"id"`
	Borrower         crypto.Address `json:"borrower"`
	PoolID           string         `json:"poolId"`
	PropertyID       [32]byte       `json:"propertyId"`
	LoanAmount       uint64         `json:"loanAmount"`
	PropertyValue    uint64         `json:"propertyValue"`
	LoanDuration     uint64         `json:"loanDuration"`
	InterestRateBps  uint64         `json:"interestRateBps"`
	PeriodicPayment  uint64         `json:"periodicPayment"`
	RemainingBalance uint64         `json:"remainingBalance"`
	NextPaymentDue   int64          `json:"nextPaymentDue"`
	PaymentsMade     uint64         `json:"paymentsMade"`
	Active           bool           `json:"active"`
	Defaulted        bool           `json:"defaulted"`
	FundedAt         int64          `json:"fundedAt"`
	ClosedAt         *int64         `json:"closedAt,omitempty"`
}

// Status derives the lifecycle phase from the stored flags.
func (m *Mortgage) Status() Status {
	switch {
	case m == nil:
		return StatusCreated
	case m.Defaulted:
		return StatusDefaulted
	case m.ClosedAt != nil:
		if m.RemainingBalance == 0 {
			return StatusPaidOff
		}
		return StatusClosed
	case m.Active:
		return StatusActive
	default:
		return StatusCreated
	}
}

// Closed reports whether the mortgage has reached a terminal state.
func (m *Mortgage) Closed() bool {
	return m != nil && m.ClosedAt != nil
}

// Clone returns a deep copy of the mortgage record.
func (m *Mortgage) Clone() *Mortgage {
	if m == nil {
		return nil
	}
	clone := *m
	if m.ClosedAt != nil {
		closed := *m.ClosedAt
		clone.ClosedAt = &closed
	}
	return &clone
}
