package lendingpool

import (
	"errors"
	"math/big"
	"strings"
	"time"

	"stablemortgage/core/events"
	"stablemortgage/core/types"
	"stablemortgage/crypto"
	"stablemortgage/native/bank"
	"stablemortgage/native/common"
	"stablemortgage/native/params"
)

const moduleName = "lendingpool"

// interestIndexScale fixes the precision of the pool interest index: the
// index advances by this many units for one whole token of interest per
// deposited token.
const interestIndexScale = 1_000_000_000_000

var (
	ErrNilState              = errors.New("lendingpool: state not configured")
	ErrNilParams             = errors.New("lendingpool: parameters not configured")
	ErrNotFound              = errors.New("lendingpool: pool not found")
	ErrPoolExists            = errors.New("lendingpool: pool already exists")
	ErrPoolInactive          = errors.New("lendingpool: pool is not active")
	ErrInvalidPoolID         = errors.New("lendingpool: pool id required")
	ErrInvalidAmount         = errors.New("lendingpool: amount must be positive")
	ErrInvalidInterestRate   = errors.New("lendingpool: interest rate outside allowed range")
	ErrInvalidLoanDuration   = errors.New("lendingpool: loan duration outside allowed range")
	ErrInsufficientLiquidity = errors.New("lendingpool: insufficient liquidity")
	ErrInsufficientDeposit   = errors.New("lendingpool: withdrawal exceeds deposited amount")
	ErrUnauthorized          = errors.New("lendingpool: caller is not the pool authority")
)

type engineState interface {
	PoolGet(id string) (*Pool, bool, error)
	PoolPut(pool *Pool) error
	PositionGet(poolID string, owner crypto.Address) (*LenderPosition, bool, error)
	PositionPut(position *LenderPosition) error
	GetAccount(addr crypto.Address) (*types.Account, error)
	PutAccount(addr crypto.Address, account *types.Account) error
}

// Engine manages pool balances and per-lender positions. It is the only
// source of mortgage principal and the only destination of repayments.
type Engine struct {
	state      engineState
	parameters func() (params.Parameters, error)
	emitter    events.Emitter
	pauses     common.PauseView
	nowFn      func() time.Time
}

// NewEngine constructs a pool engine with default no-op dependencies.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetParameters configures the source of the global loan parameters the
// engine validates against.
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

// SetEmitter configures the event emitter. Passing nil restores the no-op
// emitter.
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

func (e *Engine) loadParams() (params.Parameters, error) {
	if e == nil || e.parameters == nil {
		return params.Parameters{}, ErrNilParams
	}
	return e.parameters()
}

func (e *Engine) loadPool(id string) (*Pool, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return nil, ErrInvalidPoolID
	}
	pool, ok, err := e.state.PoolGet(trimmed)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return pool, nil
}

func indexDelta(interest, depositedBase uint64) (uint64, error) {
	product := new(big.Int).Mul(new(big.Int).SetUint64(interest), big.NewInt(interestIndexScale))
	product.Quo(product, new(big.Int).SetUint64(depositedBase))
	if !product.IsUint64() {
		return 0, common.ErrOverflow
	}
	return product.Uint64(), nil
}

// settleInterest folds the interest accrued since the position's last touch
// into EarnedInterest and fast-forwards the snapshot. A position with no
// deposit only advances its snapshot, so late joiners earn nothing from
// interest credited before they entered.
func settleInterest(pool *Pool, position *LenderPosition) error {
	if pool.InterestIndex <= position.IndexSnapshot {
		position.IndexSnapshot = pool.InterestIndex
		return nil
	}
	delta := pool.InterestIndex - position.IndexSnapshot
	owed := new(big.Int).Mul(new(big.Int).SetUint64(position.Deposited), new(big.Int).SetUint64(delta))
	owed.Quo(owed, big.NewInt(interestIndexScale))
	if !owed.IsUint64() {
		return common.ErrOverflow
	}
	earned, err := common.AddU64(position.EarnedInterest, owed.Uint64())
	if err != nil {
		return err
	}
	position.EarnedInterest = earned
	position.IndexSnapshot = pool.InterestIndex
	return nil
}

func (e *Engine) ensurePosition(poolID string, owner crypto.Address) (*LenderPosition, error) {
	position, ok, err := e.state.PositionGet(poolID, owner)
	if err != nil {
		return nil, err
	}
	if !ok {
		position = &LenderPosition{Owner: owner, PoolID: poolID}
	}
	return position, nil
}

// CreatePool registers a new pool owned by the caller. The interest rate and
// loan duration must fall inside the governance-controlled bounds.
func (e *Engine) CreatePool(authority crypto.Address, id string, vault crypto.Address, interestRateBps, loanDuration uint64) (*Pool, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return nil, ErrInvalidPoolID
	}
	globals, err := e.loadParams()
	if err != nil {
		return nil, err
	}
	if interestRateBps < globals.MinInterestRateBps || interestRateBps > globals.MaxInterestRateBps {
		return nil, ErrInvalidInterestRate
	}
	if loanDuration < globals.MinLoanDuration || loanDuration > globals.MaxLoanDuration {
		return nil, ErrInvalidLoanDuration
	}
	if _, exists, err := e.state.PoolGet(trimmed); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrPoolExists
	}

	pool := &Pool{
		ID:              trimmed,
		Authority:       authority,
		Vault:           vault,
		InterestRateBps: interestRateBps,
		LoanDuration:    loanDuration,
		Active:          true,
		UpdatedAt:       e.now(),
	}
	if err := e.state.PoolPut(pool); err != nil {
		return nil, err
	}
	e.emit(poolCreatedEvent(pool))
	return pool.Clone(), nil
}

// Deposit moves stablecoin from the lender into the pool vault and grows the
// pool totals and the lender's position by the same amount.
func (e *Engine) Deposit(lender crypto.Address, poolID string, amount uint64) (*LenderPosition, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	pool, err := e.loadPool(poolID)
	if err != nil {
		return nil, err
	}
	if !pool.Active {
		return nil, ErrPoolInactive
	}

	newDeposited, err := common.AddU64(pool.TotalDeposited, amount)
	if err != nil {
		return nil, err
	}
	position, err := e.ensurePosition(pool.ID, lender)
	if err != nil {
		return nil, err
	}
	if err := settleInterest(pool, position); err != nil {
		return nil, err
	}
	newPositionAmount, err := common.AddU64(position.Deposited, amount)
	if err != nil {
		return nil, err
	}

	if err := bank.Transfer(e.state, lender, pool.Vault, amount, bank.TokenStable); err != nil {
		return nil, err
	}

	now := e.now()
	pool.TotalDeposited = newDeposited
	pool.UpdatedAt = now
	position.Deposited = newPositionAmount
	position.UpdatedAt = now

	if err := e.state.PositionPut(position); err != nil {
		return nil, err
	}
	if err := e.state.PoolPut(pool); err != nil {
		return nil, err
	}
	e.emit(poolDepositEvent(pool, lender, amount))
	return position.Clone(), nil
}

// Withdraw returns stablecoin from the vault to the lender. A withdrawal is
// bounded by the lender's own deposit and by pool-wide available liquidity;
// funds currently lent out cannot be withdrawn by anyone.
func (e *Engine) Withdraw(lender crypto.Address, poolID string, amount uint64) (*LenderPosition, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	pool, err := e.loadPool(poolID)
	if err != nil {
		return nil, err
	}
	if pool.AvailableLiquidity() < amount {
		return nil, ErrInsufficientLiquidity
	}
	position, ok, err := e.state.PositionGet(pool.ID, lender)
	if err != nil {
		return nil, err
	}
	if !ok || position.Deposited < amount {
		return nil, ErrInsufficientDeposit
	}
	if err := settleInterest(pool, position); err != nil {
		return nil, err
	}

	if err := bank.Transfer(e.state, pool.Vault, lender, amount, bank.TokenStable); err != nil {
		return nil, err
	}

	now := e.now()
	pool.TotalDeposited -= amount
	pool.UpdatedAt = now
	position.Deposited -= amount
	position.UpdatedAt = now

	if err := e.state.PositionPut(position); err != nil {
		return nil, err
	}
	if err := e.state.PoolPut(pool); err != nil {
		return nil, err
	}
	e.emit(poolWithdrawEvent(pool, lender, amount))
	return position.Clone(), nil
}

// Reserve earmarks loan principal at mortgage funding time by growing
// TotalBorrowed. It never moves funds; the mortgage engine performs the
// actual disbursement.
func (e *Engine) Reserve(poolID string, amount uint64) (*Pool, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	pool, err := e.loadPool(poolID)
	if err != nil {
		return nil, err
	}
	if !pool.Active {
		return nil, ErrPoolInactive
	}
	if pool.AvailableLiquidity() < amount {
		return nil, ErrInsufficientLiquidity
	}
	newBorrowed, err := common.AddU64(pool.TotalBorrowed, amount)
	if err != nil {
		return nil, err
	}
	pool.TotalBorrowed = newBorrowed
	pool.UpdatedAt = e.now()
	if err := e.state.PoolPut(pool); err != nil {
		return nil, err
	}
	return pool.Clone(), nil
}

// Release shrinks TotalBorrowed by the principal portion of a repayment or
// by the written-off balance of a liquidated mortgage. The release is capped
// at the outstanding borrowed total.
func (e *Engine) Release(poolID string, principal uint64) (*Pool, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	pool, err := e.loadPool(poolID)
	if err != nil {
		return nil, err
	}
	pool.TotalBorrowed = common.SaturatingSubU64(pool.TotalBorrowed, principal)
	pool.UpdatedAt = e.now()
	if err := e.state.PoolPut(pool); err != nil {
		return nil, err
	}
	return pool.Clone(), nil
}

// CreditInterest records the interest portion of a repayment. The funds have
// already landed in the vault; the pool total grows so lenders can later
// withdraw their share, and the interest index advances so each position
// picks up its pro-rata portion the next time it is touched.
func (e *Engine) CreditInterest(poolID string, interest uint64) (*Pool, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	pool, err := e.loadPool(poolID)
	if err != nil {
		return nil, err
	}
	if interest == 0 {
		return pool.Clone(), nil
	}
	if pool.TotalDeposited > 0 {
		delta, err := indexDelta(interest, pool.TotalDeposited)
		if err != nil {
			return nil, err
		}
		newIndex, err := common.AddU64(pool.InterestIndex, delta)
		if err != nil {
			return nil, err
		}
		pool.InterestIndex = newIndex
	}
	newDeposited, err := common.AddU64(pool.TotalDeposited, interest)
	if err != nil {
		return nil, err
	}
	pool.TotalDeposited = newDeposited
	pool.UpdatedAt = e.now()
	if err := e.state.PoolPut(pool); err != nil {
		return nil, err
	}
	return pool.Clone(), nil
}

// Deactivate disables a pool. Pools are never deleted; a deactivated pool
// rejects deposits and new loans but still accepts repayments.
func (e *Engine) Deactivate(caller crypto.Address, poolID string) (*Pool, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	pool, err := e.loadPool(poolID)
	if err != nil {
		return nil, err
	}
	if !pool.Authority.Equal(caller) {
		return nil, ErrUnauthorized
	}
	pool.Active = false
	pool.UpdatedAt = e.now()
	if err := e.state.PoolPut(pool); err != nil {
		return nil, err
	}
	e.emit(poolDeactivatedEvent(pool))
	return pool.Clone(), nil
}

// Get loads a pool snapshot by identifier.
func (e *Engine) Get(poolID string) (*Pool, error) {
	pool, err := e.loadPool(poolID)
	if err != nil {
		return nil, err
	}
	return pool.Clone(), nil
}

// Position loads a lender position snapshot.
func (e *Engine) Position(poolID string, owner crypto.Address) (*LenderPosition, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	position, ok, err := e.state.PositionGet(strings.TrimSpace(poolID), owner)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return position.Clone(), nil
}
