package mortgage

import (
	"encoding/binary"
	"errors"
	"time"

	"stablemortgage/core/events"
	"stablemortgage/core/types"
	"stablemortgage/crypto"
	"stablemortgage/native/bank"
	"stablemortgage/native/collateral"
	"stablemortgage/native/common"
	"stablemortgage/native/lendingpool"
	"stablemortgage/native/params"
	"stablemortgage/native/rewards"
	"stablemortgage/native/risk"
)

const moduleName = "mortgage"

var (
	ErrNilState             = errors.New("mortgage: state not configured")
	ErrNilCollaborator      = errors.New("mortgage: collaborating engine not configured")
	ErrNilParams            = errors.New("mortgage: parameters not configured")
	ErrNotFound             = errors.New("mortgage: mortgage not found")
	ErrAlreadyExists        = errors.New("mortgage: mortgage already exists")
	ErrInvalidLoanAmount    = errors.New("mortgage: loan amount outside allowed range")
	ErrInvalidPropertyValue = errors.New("mortgage: property value must be positive")
	ErrLoanToValueTooHigh   = errors.New("mortgage: loan-to-value ratio too high")
	ErrAlreadyFunded        = errors.New("mortgage: mortgage already funded")
	ErrInactive             = errors.New("mortgage: mortgage is not active")
	ErrDefaulted            = errors.New("mortgage: mortgage is in default")
	ErrInsufficientPayment  = errors.New("mortgage: payment amount too low")
	ErrNoPaymentDue         = errors.New("mortgage: payment is not overdue")
	ErrOutstandingBalance   = errors.New("mortgage: balance not fully repaid")
	ErrNotBorrower          = errors.New("mortgage: caller is not the borrower")
)

type engineState interface {
	MortgageGet(id [32]byte) (*Mortgage, bool, error)
	MortgagePut(mortgage *Mortgage) error
	GetAccount(addr crypto.Address) (*types.Account, error)
	PutAccount(addr crypto.Address, account *types.Account) error
}

// Engine owns the mortgage state machine. Pool accounting, collateral locks,
// risk lookups and reward accrual are delegated to the collaborating engines;
// all calls are synchronous and a failure anywhere aborts the operation.
type Engine struct {
	state      engineState
	pools      *lendingpool.Engine
	registry   *collateral.Engine
	assessor   *risk.Engine
	ledger     *rewards.Engine
	parameters func() (params.Parameters, error)
	emitter    events.Emitter
	pauses     common.PauseView
	nowFn      func() time.Time
}

// NewEngine constructs a mortgage engine with default no-op dependencies.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetPoolEngine wires the lending pool collaborator.
func (e *Engine) SetPoolEngine(pools *lendingpool.Engine) { e.pools = pools }

// SetCollateralEngine wires the collateral registry collaborator.
func (e *Engine) SetCollateralEngine(registry *collateral.Engine) { e.registry = registry }

// SetRiskEngine wires the risk assessment collaborator.
func (e *Engine) SetRiskEngine(assessor *risk.Engine) { e.assessor = assessor }

// SetRewardsEngine wires the rewards ledger collaborator.
func (e *Engine) SetRewardsEngine(ledger *rewards.Engine) { e.ledger = ledger }

// SetParameters configures the source of the global loan parameters.
func (e *Engine) SetParameters(source func() (params.Parameters, error)) {
	if e == nil {
		return
	}
	e.parameters = source
}

// SetPauses wires the module pause switchboard.
func (e *Engine) SetPauses(p common.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the event emitter. Nil restores the no-op emitter.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		e.nowFn = func() time.Time { return time.Now().UTC() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn().Unix()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if e.pools == nil || e.registry == nil || e.ledger == nil {
		return ErrNilCollaborator
	}
	if e.parameters == nil {
		return ErrNilParams
	}
	return nil
}

func (e *Engine) load(id [32]byte) (*Mortgage, error) {
	record, ok, err := e.state.MortgageGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return record, nil
}

// valuation resolves the collateral value used for the LTV check. A valid
// risk assessment wins; an invalidated one falls back to the value recorded
// at registration; with no assessment on file the caller-supplied figure is
// used as-is.
func (e *Engine) valuation(propertyID [32]byte, declared uint64) (uint64, error) {
	if e.assessor != nil {
		assessment, err := e.assessor.Lookup(propertyID)
		switch {
		case err == nil && assessment.Valid:
			return assessment.AppraisedValue, nil
		case err == nil:
			property, perr := e.registry.Get(propertyID)
			if perr != nil {
				return 0, perr
			}
			return property.Value, nil
		case !errors.Is(err, risk.ErrNotFound):
			return 0, err
		}
	}
	return declared, nil
}

// Create validates the loan request against the global parameters and the
// collateral valuation, computes the fixed installment, and records the
// mortgage in its dormant pre-funding state.
func (e *Engine) Create(borrower crypto.Address, poolID string, propertyID [32]byte, nonce, loanAmount, propertyValue uint64) (*Mortgage, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	globals, err := e.parameters()
	if err != nil {
		return nil, err
	}
	if loanAmount < globals.MinLoanAmount || loanAmount > globals.MaxLoanAmount {
		return nil, ErrInvalidLoanAmount
	}

	pool, err := e.pools.Get(poolID)
	if err != nil {
		return nil, err
	}
	if !pool.Active {
		return nil, lendingpool.ErrPoolInactive
	}
	if _, err := e.registry.Get(propertyID); err != nil {
		return nil, err
	}

	value, err := e.valuation(propertyID, propertyValue)
	if err != nil {
		return nil, err
	}
	if value == 0 {
		return nil, ErrInvalidPropertyValue
	}

	// LTV in basis points, computed without truncation loss:
	// loan * 10_000 / value <= maxLTV.
	ltvNumerator, err := common.MulU64(loanAmount, basisPoints)
	if err != nil {
		return nil, err
	}
	if ltvNumerator/value > globals.MaxLTVBps() {
		return nil, ErrLoanToValueTooHigh
	}

	payment, err := amortizedPayment(loanAmount, pool.InterestRateBps, pool.LoanDuration)
	if err != nil {
		return nil, err
	}

	var nonceBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], nonce)
	id := crypto.RecordID(borrower.Bytes(), propertyID[:], []byte(pool.ID), nonceBytes[:])
	if _, exists, err := e.state.MortgageGet(id); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrAlreadyExists
	}

	record := &Mortgage{
		ID:               id,
		Borrower:         borrower,
		PoolID:           pool.ID,
		PropertyID:       propertyID,
		LoanAmount:       loanAmount,
		PropertyValue:    value,
		LoanDuration:     pool.LoanDuration,
		InterestRateBps:  pool.InterestRateBps,
		PeriodicPayment:  payment,
		RemainingBalance: loanAmount,
	}
	if err := e.state.MortgagePut(record); err != nil {
		return nil, err
	}
	e.emit(createdEvent(record))
	return record.Clone(), nil
}

// Fund draws the principal from the pool, disburses it to the borrower, and
// locks the collateral with this mortgage as holder. Only the borrower can
// fund, and only once.
func (e *Engine) Fund(caller crypto.Address, id [32]byte) (*Mortgage, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	record, err := e.load(id)
	if err != nil {
		return nil, err
	}
	if record.Closed() {
		return nil, ErrInactive
	}
	if record.Active {
		return nil, ErrAlreadyFunded
	}
	if !record.Borrower.Equal(caller) {
		return nil, ErrNotBorrower
	}

	property, err := e.registry.Get(record.PropertyID)
	if err != nil {
		return nil, err
	}
	if property.Locked {
		return nil, collateral.ErrAlreadyLocked
	}
	if !property.Owner.Equal(record.Borrower) {
		return nil, collateral.ErrNotOwner
	}

	pool, err := e.pools.Reserve(record.PoolID, record.LoanAmount)
	if err != nil {
		return nil, err
	}
	if err := bank.Transfer(e.state, pool.Vault, record.Borrower, record.LoanAmount, bank.TokenStable); err != nil {
		return nil, err
	}
	if err := e.registry.Lock(record.PropertyID, record.ID); err != nil {
		return nil, err
	}

	now := e.now()
	record.Active = true
	record.FundedAt = now
	record.NextPaymentDue = now + PaymentPeriod
	if err := e.state.MortgagePut(record); err != nil {
		return nil, err
	}
	e.emit(fundedEvent(record))
	return record.Clone(), nil
}

// requiredInstallment is the minimum acceptable payment: the fixed periodic
// payment, except on the final installment where balance plus interest may be
// smaller than the annuity amount.
func requiredInstallment(record *Mortgage, interestDue uint64) (uint64, error) {
	payoff, err := common.AddU64(record.RemainingBalance, interestDue)
	if err != nil {
		return 0, err
	}
	if payoff < record.PeriodicPayment {
		return payoff, nil
	}
	return record.PeriodicPayment, nil
}

// MakePayment applies one installment: interest first, remainder against
// principal. An amount below the required installment is rejected in full.
// Every successful payment credits the borrower's reward balance; retiring
// the balance closes the mortgage and releases the collateral.
func (e *Engine) MakePayment(caller crypto.Address, id [32]byte, amount uint64) (*Mortgage, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	record, err := e.load(id)
	if err != nil {
		return nil, err
	}
	if record.Closed() || !record.Active {
		return nil, ErrInactive
	}
	if record.Defaulted {
		return nil, ErrDefaulted
	}
	if !record.Borrower.Equal(caller) {
		return nil, ErrNotBorrower
	}

	interestDue, err := periodInterest(record.RemainingBalance, record.InterestRateBps)
	if err != nil {
		return nil, err
	}
	required, err := requiredInstallment(record, interestDue)
	if err != nil {
		return nil, err
	}
	if amount < required {
		return nil, ErrInsufficientPayment
	}

	pool, err := e.pools.Get(record.PoolID)
	if err != nil {
		return nil, err
	}
	if err := bank.Transfer(e.state, record.Borrower, pool.Vault, amount, bank.TokenStable); err != nil {
		return nil, err
	}

	principal := common.SaturatingSubU64(amount, interestDue)
	if principal > record.RemainingBalance {
		principal = record.RemainingBalance
	}
	interestRetained := amount - principal

	if _, err := e.pools.Release(record.PoolID, principal); err != nil {
		return nil, err
	}
	if _, err := e.pools.CreditInterest(record.PoolID, interestRetained); err != nil {
		return nil, err
	}

	now := e.now()
	record.RemainingBalance -= principal
	record.PaymentsMade++
	record.NextPaymentDue += PaymentPeriod

	paidOff := record.RemainingBalance == 0
	if paidOff {
		if err := e.registry.Unlock(record.PropertyID); err != nil {
			return nil, err
		}
		record.Active = false
		record.ClosedAt = &now
	}
	if err := e.state.MortgagePut(record); err != nil {
		return nil, err
	}

	// Reward accrual is best-effort: a failed credit is surfaced through
	// events, never by failing the repayment that triggered it.
	if _, err := e.ledger.Credit(record.Borrower); err != nil &&
		!errors.Is(err, rewards.ErrNotInitialized) && !errors.Is(err, rewards.ErrInactive) {
		return nil, err
	}

	e.emit(paymentEvent(record, amount, principal, interestRetained))
	if paidOff {
		e.emit(paidOffEvent(record))
	}
	return record.Clone(), nil
}

// Liquidate force-closes an overdue mortgage: the borrower defaults, the
// collateral is seized for the pool authority, and the pool absorbs the
// unpaid balance. Liquidation is only permitted once the wall clock has
// reached the next due timestamp.
func (e *Engine) Liquidate(caller crypto.Address, id [32]byte) (*Mortgage, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	record, err := e.load(id)
	if err != nil {
		return nil, err
	}
	if record.Closed() || !record.Active {
		return nil, ErrInactive
	}
	if record.Defaulted {
		return nil, ErrDefaulted
	}
	now := e.now()
	if now < record.NextPaymentDue {
		return nil, ErrNoPaymentDue
	}

	pool, err := e.pools.Get(record.PoolID)
	if err != nil {
		return nil, err
	}
	if !pool.Authority.Equal(caller) {
		return nil, lendingpool.ErrUnauthorized
	}

	if err := e.registry.Seize(record.PropertyID, record.ID, pool.Authority); err != nil {
		return nil, err
	}
	if _, err := e.pools.Release(record.PoolID, record.RemainingBalance); err != nil {
		return nil, err
	}

	record.Defaulted = true
	record.Active = false
	record.ClosedAt = &now
	if err := e.state.MortgagePut(record); err != nil {
		return nil, err
	}
	e.emit(liquidatedEvent(record))
	return record.Clone(), nil
}

// Close finalises a fully repaid mortgage that is still open. Payments that
// retire the balance close the record automatically, so Close mainly guards
// hosts that re-drive the transition: closing a closed mortgage is a state
// error, as is closing one with an outstanding balance.
func (e *Engine) Close(caller crypto.Address, id [32]byte) (*Mortgage, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	record, err := e.load(id)
	if err != nil {
		return nil, err
	}
	if record.Closed() {
		return nil, ErrInactive
	}
	if !record.Borrower.Equal(caller) {
		return nil, ErrNotBorrower
	}
	if record.RemainingBalance != 0 {
		return nil, ErrOutstandingBalance
	}

	if record.Active {
		if err := e.registry.Unlock(record.PropertyID); err != nil {
			return nil, err
		}
	}
	now := e.now()
	record.Active = false
	record.ClosedAt = &now
	if err := e.state.MortgagePut(record); err != nil {
		return nil, err
	}
	e.emit(closedEvent(record))
	return record.Clone(), nil
}

// Get loads a mortgage snapshot by identifier.
func (e *Engine) Get(id [32]byte) (*Mortgage, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	record, err := e.load(id)
	if err != nil {
		return nil, err
	}
	return record.Clone(), nil
}
