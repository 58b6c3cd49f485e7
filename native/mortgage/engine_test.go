package mortgage

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"stablemortgage/core/types"
	"stablemortgage/crypto"
	"stablemortgage/native/collateral"
	"stablemortgage/native/lendingpool"
	"stablemortgage/native/params"
	"stablemortgage/native/rewards"
	"stablemortgage/native/risk"
)

// mockState backs every engine in the harness so a lifecycle test observes
// the same records the collaborators mutate.
type mockState struct {
	mortgages   map[[32]byte]*Mortgage
	accounts    map[string]*types.Account
	pools       map[string]*lendingpool.Pool
	positions   map[string]*lendingpool.LenderPosition
	properties  map[[32]byte]*collateral.Property
	assessments map[[32]byte]*risk.Assessment
	rewardsCfg  *rewards.LedgerConfig
	userRewards map[string]*rewards.UserRewards
}

func newMockState() *mockState {
	return &mockState{
		mortgages:   make(map[[32]byte]*Mortgage),
		accounts:    make(map[string]*types.Account),
		pools:       make(map[string]*lendingpool.Pool),
		positions:   make(map[string]*lendingpool.LenderPosition),
		properties:  make(map[[32]byte]*collateral.Property),
		assessments: make(map[[32]byte]*risk.Assessment),
		userRewards: make(map[string]*rewards.UserRewards),
	}
}

func (m *mockState) MortgageGet(id [32]byte) (*Mortgage, bool, error) {
	record, ok := m.mortgages[id]
	if !ok {
		return nil, false, nil
	}
	return record.Clone(), true, nil
}

func (m *mockState) MortgagePut(record *Mortgage) error {
	m.mortgages[record.ID] = record.Clone()
	return nil
}

func (m *mockState) GetAccount(addr crypto.Address) (*types.Account, error) {
	if acc, ok := m.accounts[addr.String()]; ok {
		return acc.Clone(), nil
	}
	return &types.Account{}, nil
}

func (m *mockState) PutAccount(addr crypto.Address, account *types.Account) error {
	m.accounts[addr.String()] = account.Clone()
	return nil
}

func (m *mockState) PoolGet(id string) (*lendingpool.Pool, bool, error) {
	pool, ok := m.pools[id]
	if !ok {
		return nil, false, nil
	}
	return pool.Clone(), true, nil
}

func (m *mockState) PoolPut(pool *lendingpool.Pool) error {
	m.pools[pool.ID] = pool.Clone()
	return nil
}

func (m *mockState) PositionGet(poolID string, owner crypto.Address) (*lendingpool.LenderPosition, bool, error) {
	position, ok := m.positions[poolID+"/"+owner.String()]
	if !ok {
		return nil, false, nil
	}
	return position.Clone(), true, nil
}

func (m *mockState) PositionPut(position *lendingpool.LenderPosition) error {
	m.positions[position.PoolID+"/"+position.Owner.String()] = position.Clone()
	return nil
}

func (m *mockState) CollateralGet(id [32]byte) (*collateral.Property, bool, error) {
	property, ok := m.properties[id]
	if !ok {
		return nil, false, nil
	}
	return property.Clone(), true, nil
}

func (m *mockState) CollateralPut(property *collateral.Property) error {
	m.properties[property.ID] = property.Clone()
	return nil
}

func (m *mockState) RiskAssessmentGet(propertyID [32]byte) (*risk.Assessment, bool, error) {
	assessment, ok := m.assessments[propertyID]
	if !ok {
		return nil, false, nil
	}
	return assessment.Clone(), true, nil
}

func (m *mockState) RiskAssessmentPut(assessment *risk.Assessment) error {
	m.assessments[assessment.PropertyID] = assessment.Clone()
	return nil
}

func (m *mockState) RewardsConfigGet() (*rewards.LedgerConfig, bool, error) {
	if m.rewardsCfg == nil {
		return nil, false, nil
	}
	return m.rewardsCfg.Clone(), true, nil
}

func (m *mockState) RewardsConfigPut(config *rewards.LedgerConfig) error {
	m.rewardsCfg = config.Clone()
	return nil
}

func (m *mockState) UserRewardsGet(user crypto.Address) (*rewards.UserRewards, bool, error) {
	record, ok := m.userRewards[user.String()]
	if !ok {
		return nil, false, nil
	}
	return record.Clone(), true, nil
}

func (m *mockState) UserRewardsPut(record *rewards.UserRewards) error {
	m.userRewards[record.User.String()] = record.Clone()
	return nil
}

func testAddr(seed byte) crypto.Address {
	return crypto.NewAddress(crypto.AccountPrefix, bytes.Repeat([]byte{seed}, 20))
}

func vaultAddr(seed byte) crypto.Address {
	return crypto.NewAddress(crypto.VaultPrefix, bytes.Repeat([]byte{seed}, 20))
}

type harness struct {
	state     *mockState
	clock     *time.Time
	engine    *Engine
	pools     *lendingpool.Engine
	registry  *collateral.Engine
	assessor  *risk.Engine
	ledger    *rewards.Engine
	authority crypto.Address
	borrower  crypto.Address
	lender    crypto.Address
	vault     crypto.Address
	pool      *lendingpool.Pool
	property  *collateral.Property
}

func testParameters() params.Parameters {
	return params.Parameters{
		MinLoanAmount:           1_000,
		MaxLoanAmount:           10_000_000,
		MinLoanDuration:         2_592_000,
		MaxLoanDuration:         946_080_000,
		MinInterestRateBps:      100,
		MaxInterestRateBps:      2_000,
		LiquidationThresholdPct: 80,
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	state := newMockState()
	now := time.Unix(1_700_000_000, 0)
	clock := &now
	nowFn := func() time.Time { return *clock }
	paramSource := func() (params.Parameters, error) { return testParameters(), nil }

	pools := lendingpool.NewEngine()
	pools.SetState(state)
	pools.SetParameters(paramSource)
	pools.SetNowFunc(nowFn)

	registry := collateral.NewEngine()
	registry.SetState(state)
	registry.SetNowFunc(nowFn)

	assessor := risk.NewEngine()
	assessor.SetState(state)
	assessor.SetNowFunc(nowFn)

	ledger := rewards.NewEngine()
	ledger.SetState(state)
	ledger.SetNowFunc(nowFn)

	engine := NewEngine()
	engine.SetState(state)
	engine.SetPoolEngine(pools)
	engine.SetCollateralEngine(registry)
	engine.SetRiskEngine(assessor)
	engine.SetRewardsEngine(ledger)
	engine.SetParameters(paramSource)
	engine.SetNowFunc(nowFn)

	h := &harness{
		state:     state,
		clock:     clock,
		engine:    engine,
		pools:     pools,
		registry:  registry,
		assessor:  assessor,
		ledger:    ledger,
		authority: testAddr(0xA0),
		borrower:  testAddr(0x01),
		lender:    testAddr(0x02),
		vault:     vaultAddr(0xF0),
	}

	pool, err := pools.CreatePool(h.authority, "main", h.vault, 500, 31_536_000)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	h.pool = pool

	state.accounts[h.lender.String()] = &types.Account{BalanceStable: 1_000_000}
	if _, err := pools.Deposit(h.lender, pool.ID, 1_000_000); err != nil {
		t.Fatalf("seed deposit: %v", err)
	}

	property, err := registry.Register(h.borrower, 1, 150_000, "12 Harbor Lane")
	if err != nil {
		t.Fatalf("register property: %v", err)
	}
	h.property = property

	rewardSource := vaultAddr(0xE0)
	state.accounts[rewardSource.String()] = &types.Account{BalanceReward: 1_000_000}
	if _, err := ledger.Initialize(h.authority, rewardSource, 10); err != nil {
		t.Fatalf("init rewards: %v", err)
	}

	return h
}

func (h *harness) advance(d time.Duration) {
	*h.clock = h.clock.Add(d)
}

func (h *harness) createMortgage(t *testing.T, loanAmount, propertyValue uint64) *Mortgage {
	t.Helper()
	record, err := h.engine.Create(h.borrower, h.pool.ID, h.property.ID, 1, loanAmount, propertyValue)
	if err != nil {
		t.Fatalf("create mortgage: %v", err)
	}
	return record
}

func (h *harness) fundedMortgage(t *testing.T, loanAmount uint64) *Mortgage {
	t.Helper()
	record := h.createMortgage(t, loanAmount, 150_000)
	funded, err := h.engine.Fund(h.borrower, record.ID)
	if err != nil {
		t.Fatalf("fund mortgage: %v", err)
	}
	return funded
}

func TestCreateEnforcesLoanToValue(t *testing.T) {
	h := newHarness(t)

	// 100k against a 150k valuation is 66.7% LTV, under the 80% threshold.
	record := h.createMortgage(t, 100_000, 150_000)
	if record.PeriodicPayment == 0 || record.RemainingBalance != 100_000 {
		t.Fatalf("unexpected mortgage: %+v", record)
	}
	if record.Active {
		t.Fatalf("mortgage active before funding")
	}

	// 100k against 110k is 90.9% LTV and must be rejected. The property has
	// no assessment, so the declared value drives the check.
	if _, err := h.engine.Create(h.borrower, h.pool.ID, h.property.ID, 2, 100_000, 110_000); !errors.Is(err, ErrLoanToValueTooHigh) {
		t.Fatalf("expected ErrLoanToValueTooHigh, got %v", err)
	}
}

func TestCreateEnforcesLoanBounds(t *testing.T) {
	h := newHarness(t)
	if _, err := h.engine.Create(h.borrower, h.pool.ID, h.property.ID, 1, 999, 150_000); !errors.Is(err, ErrInvalidLoanAmount) {
		t.Fatalf("below min: expected ErrInvalidLoanAmount, got %v", err)
	}
	if _, err := h.engine.Create(h.borrower, h.pool.ID, h.property.ID, 1, 10_000_001, 150_000_000); !errors.Is(err, ErrInvalidLoanAmount) {
		t.Fatalf("above max: expected ErrInvalidLoanAmount, got %v", err)
	}
}

func TestCreateUsesValidAssessmentForValuation(t *testing.T) {
	h := newHarness(t)
	if _, err := h.assessor.Create(h.authority, h.property.ID, 110_000, 50); err != nil {
		t.Fatalf("create assessment: %v", err)
	}

	// The declared 150k is ignored in favour of the 110k appraisal, so the
	// 100k loan is over the 80% limit.
	if _, err := h.engine.Create(h.borrower, h.pool.ID, h.property.ID, 1, 100_000, 150_000); !errors.Is(err, ErrLoanToValueTooHigh) {
		t.Fatalf("expected ErrLoanToValueTooHigh, got %v", err)
	}

	// Once invalidated, the registered property value (150k) applies again.
	if err := h.assessor.Invalidate(h.authority, h.property.ID); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := h.engine.Create(h.borrower, h.pool.ID, h.property.ID, 1, 100_000, 1); err != nil {
		t.Fatalf("create with fallback valuation: %v", err)
	}
}

func TestFundDisbursesAndLocks(t *testing.T) {
	h := newHarness(t)
	record := h.fundedMortgage(t, 100_000)

	if !record.Active || record.FundedAt == 0 {
		t.Fatalf("mortgage not activated: %+v", record)
	}
	if record.NextPaymentDue != record.FundedAt+PaymentPeriod {
		t.Fatalf("first due date: got %d want %d", record.NextPaymentDue, record.FundedAt+PaymentPeriod)
	}

	borrowerAcc, _ := h.state.GetAccount(h.borrower)
	if borrowerAcc.BalanceStable != 100_000 {
		t.Fatalf("borrower did not receive principal: %d", borrowerAcc.BalanceStable)
	}
	pool, _ := h.pools.Get(h.pool.ID)
	if pool.TotalBorrowed != 100_000 {
		t.Fatalf("pool borrowed: %d", pool.TotalBorrowed)
	}
	property, _ := h.registry.Get(h.property.ID)
	if !property.Locked || property.LockedBy != record.ID {
		t.Fatalf("collateral not locked by mortgage: %+v", property)
	}

	if _, err := h.engine.Fund(h.borrower, record.ID); !errors.Is(err, ErrAlreadyFunded) {
		t.Fatalf("double fund: expected ErrAlreadyFunded, got %v", err)
	}
}

func TestFundRequiresBorrowerOwnedCollateral(t *testing.T) {
	h := newHarness(t)
	stranger := testAddr(0x77)
	property, err := h.registry.Register(stranger, 9, 150_000, "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	record, err := h.engine.Create(h.borrower, h.pool.ID, property.ID, 1, 100_000, 150_000)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := h.engine.Fund(h.borrower, record.ID); !errors.Is(err, collateral.ErrNotOwner) {
		t.Fatalf("expected collateral.ErrNotOwner, got %v", err)
	}
}

func TestMakePaymentReducesBalanceMonotonically(t *testing.T) {
	h := newHarness(t)
	record := h.fundedMortgage(t, 100_000)

	previous := record.RemainingBalance
	dueBefore := record.NextPaymentDue
	h.advance(time.Duration(PaymentPeriod) * time.Second)

	paid, err := h.engine.MakePayment(h.borrower, record.ID, record.PeriodicPayment)
	if err != nil {
		t.Fatalf("payment: %v", err)
	}
	if paid.RemainingBalance >= previous {
		t.Fatalf("balance did not decrease: %d -> %d", previous, paid.RemainingBalance)
	}
	if paid.PaymentsMade != 1 {
		t.Fatalf("payments made: %d", paid.PaymentsMade)
	}
	if paid.NextPaymentDue != dueBefore+PaymentPeriod {
		t.Fatalf("due date not advanced: %d", paid.NextPaymentDue)
	}

	balance, err := h.ledger.Balance(h.borrower)
	if err != nil {
		t.Fatalf("rewards balance: %v", err)
	}
	if balance.Earned != 10 {
		t.Fatalf("reward not credited: %d", balance.Earned)
	}

	pool, _ := h.pools.Get(h.pool.ID)
	if pool.TotalBorrowed >= 100_000 {
		t.Fatalf("principal not released: %d", pool.TotalBorrowed)
	}
	if pool.TotalBorrowed > pool.TotalDeposited {
		t.Fatalf("pool invariant violated")
	}
}

func TestMakePaymentRejectsShortPayment(t *testing.T) {
	h := newHarness(t)
	record := h.fundedMortgage(t, 100_000)

	_, err := h.engine.MakePayment(h.borrower, record.ID, record.PeriodicPayment-1)
	if !errors.Is(err, ErrInsufficientPayment) {
		t.Fatalf("expected ErrInsufficientPayment, got %v", err)
	}
	loaded, _ := h.engine.Get(record.ID)
	if loaded.RemainingBalance != 100_000 {
		t.Fatalf("failed payment mutated balance: %d", loaded.RemainingBalance)
	}
	if loaded.PaymentsMade != 0 {
		t.Fatalf("failed payment counted: %d", loaded.PaymentsMade)
	}
}

func TestPayoffClosesAndUnlocks(t *testing.T) {
	h := newHarness(t)
	record := h.fundedMortgage(t, 100_000)

	// Give the borrower enough to retire the loan with interest.
	acc, _ := h.state.GetAccount(h.borrower)
	acc.BalanceStable += 20_000
	if err := h.state.PutAccount(h.borrower, acc); err != nil {
		t.Fatalf("seed borrower: %v", err)
	}

	current := record
	for i := 0; i < 13 && current.RemainingBalance > 0; i++ {
		h.advance(time.Duration(PaymentPeriod) * time.Second)
		next, err := h.engine.MakePayment(h.borrower, current.ID, current.PeriodicPayment)
		if err != nil {
			t.Fatalf("payment %d: %v", i+1, err)
		}
		if next.RemainingBalance > current.RemainingBalance {
			t.Fatalf("balance increased on payment %d", i+1)
		}
		current = next
	}
	if current.RemainingBalance != 0 {
		t.Fatalf("loan not retired: %d remaining after %d payments", current.RemainingBalance, current.PaymentsMade)
	}
	if current.Active || current.ClosedAt == nil {
		t.Fatalf("mortgage not closed at payoff: %+v", current)
	}
	if current.Status() != StatusPaidOff {
		t.Fatalf("status: %s", current.Status())
	}

	property, _ := h.registry.Get(h.property.ID)
	if property.Locked {
		t.Fatalf("collateral still locked after payoff")
	}
	if _, err := h.engine.MakePayment(h.borrower, current.ID, current.PeriodicPayment); !errors.Is(err, ErrInactive) {
		t.Fatalf("payment on closed mortgage: expected ErrInactive, got %v", err)
	}
}

func TestLiquidateRequiresOverdue(t *testing.T) {
	h := newHarness(t)
	record := h.fundedMortgage(t, 100_000)

	// One second before the due instant liquidation must fail.
	h.advance(time.Duration(PaymentPeriod)*time.Second - time.Second)
	if _, err := h.engine.Liquidate(h.authority, record.ID); !errors.Is(err, ErrNoPaymentDue) {
		t.Fatalf("expected ErrNoPaymentDue, got %v", err)
	}

	h.advance(time.Second)
	liquidated, err := h.engine.Liquidate(h.authority, record.ID)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if !liquidated.Defaulted || liquidated.Active || liquidated.ClosedAt == nil {
		t.Fatalf("liquidation state: %+v", liquidated)
	}
	if liquidated.Status() != StatusDefaulted {
		t.Fatalf("status: %s", liquidated.Status())
	}

	property, _ := h.registry.Get(h.property.ID)
	if !property.Owner.Equal(h.authority) {
		t.Fatalf("collateral not seized for pool authority")
	}
	if property.Locked {
		t.Fatalf("seized collateral still locked")
	}
	pool, _ := h.pools.Get(h.pool.ID)
	if pool.TotalBorrowed != 0 {
		t.Fatalf("written-off balance not released: %d", pool.TotalBorrowed)
	}

	if _, err := h.engine.Liquidate(h.authority, record.ID); !errors.Is(err, ErrInactive) {
		t.Fatalf("double liquidation: expected ErrInactive, got %v", err)
	}
}

func TestLiquidateRequiresPoolAuthority(t *testing.T) {
	h := newHarness(t)
	record := h.fundedMortgage(t, 100_000)
	h.advance(time.Duration(PaymentPeriod) * time.Second)
	if _, err := h.engine.Liquidate(h.borrower, record.ID); !errors.Is(err, lendingpool.ErrUnauthorized) {
		t.Fatalf("expected lendingpool.ErrUnauthorized, got %v", err)
	}
}

func TestCloseRejectsOutstandingBalance(t *testing.T) {
	h := newHarness(t)
	record := h.fundedMortgage(t, 100_000)
	if _, err := h.engine.Close(h.borrower, record.ID); !errors.Is(err, ErrOutstandingBalance) {
		t.Fatalf("expected ErrOutstandingBalance, got %v", err)
	}
}
