package rewards

import (
	"bytes"
	"errors"
	"math"
	"testing"
	"time"

	"stablemortgage/core/types"
	"stablemortgage/crypto"
)

type mockState struct {
	config   *LedgerConfig
	users    map[string]*UserRewards
	accounts map[string]*types.Account
}

func newMockState() *mockState {
	return &mockState{
		users:    make(map[string]*UserRewards),
		accounts: make(map[string]*types.Account),
	}
}

func (m *mockState) RewardsConfigGet() (*LedgerConfig, bool, error) {
	if m.config == nil {
		return nil, false, nil
	}
	return m.config.Clone(), true, nil
}

func (m *mockState) RewardsConfigPut(config *LedgerConfig) error {
	m.config = config.Clone()
	return nil
}

func (m *mockState) UserRewardsGet(user crypto.Address) (*UserRewards, bool, error) {
	record, ok := m.users[user.String()]
	if !ok {
		return nil, false, nil
	}
	return record.Clone(), true, nil
}

func (m *mockState) UserRewardsPut(record *UserRewards) error {
	m.users[record.User.String()] = record.Clone()
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

func testAddr(seed byte) crypto.Address {
	return crypto.NewAddress(crypto.AccountPrefix, bytes.Repeat([]byte{seed}, 20))
}

func newTestEngine(t *testing.T) (*Engine, *mockState) {
	t.Helper()
	state := newMockState()
	engine := NewEngine()
	engine.SetState(state)
	engine.SetNowFunc(func() time.Time { return time.Unix(1_700_000_000, 0) })

	source := crypto.NewAddress(crypto.VaultPrefix, bytes.Repeat([]byte{0xE0}, 20))
	state.accounts[source.String()] = &types.Account{BalanceReward: 10_000}
	if _, err := engine.Initialize(testAddr(0xA0), source, 10); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return engine, state
}

func TestInitializeOnce(t *testing.T) {
	engine, _ := newTestEngine(t)
	source := crypto.NewAddress(crypto.VaultPrefix, bytes.Repeat([]byte{0xE0}, 20))
	if _, err := engine.Initialize(testAddr(0xA0), source, 10); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
}

func TestCreditAndClaim(t *testing.T) {
	engine, state := newTestEngine(t)
	user := testAddr(0x01)

	for i := 0; i < 3; i++ {
		credited, err := engine.Credit(user)
		if err != nil {
			t.Fatalf("credit %d: %v", i, err)
		}
		if !credited {
			t.Fatalf("credit %d skipped", i)
		}
	}

	balance, err := engine.Balance(user)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Earned != 30 || balance.Claimed != 0 {
		t.Fatalf("unexpected balance: %+v", balance)
	}

	claimed, err := engine.Claim(user)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed != 30 {
		t.Fatalf("claimed: got %d want 30", claimed)
	}

	balance, _ = engine.Balance(user)
	if balance.Claimed > balance.Earned {
		t.Fatalf("claimed %d exceeds earned %d", balance.Claimed, balance.Earned)
	}
	if balance.Claimable() != 0 {
		t.Fatalf("claimable after full claim: %d", balance.Claimable())
	}
	userAcc, _ := state.GetAccount(user)
	if userAcc.BalanceReward != 30 {
		t.Fatalf("reward tokens not delivered: %d", userAcc.BalanceReward)
	}
}

func TestClaimWithoutBalanceFails(t *testing.T) {
	engine, _ := newTestEngine(t)
	user := testAddr(0x01)

	if _, err := engine.Claim(user); !errors.Is(err, ErrNoRewardsToClaim) {
		t.Fatalf("expected ErrNoRewardsToClaim, got %v", err)
	}

	// A second claim after draining the balance behaves the same and leaves
	// no state behind.
	if _, err := engine.Credit(user); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := engine.Claim(user); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := engine.Claim(user); !errors.Is(err, ErrNoRewardsToClaim) {
		t.Fatalf("expected ErrNoRewardsToClaim on empty claim, got %v", err)
	}
}

func TestClaimFailsWhenSourceEmpty(t *testing.T) {
	engine, state := newTestEngine(t)
	user := testAddr(0x01)
	if _, err := engine.Credit(user); err != nil {
		t.Fatalf("credit: %v", err)
	}
	source := crypto.NewAddress(crypto.VaultPrefix, bytes.Repeat([]byte{0xE0}, 20))
	state.accounts[source.String()] = &types.Account{}

	if _, err := engine.Claim(user); !errors.Is(err, ErrPoolEmpty) {
		t.Fatalf("expected ErrPoolEmpty, got %v", err)
	}
	balance, _ := engine.Balance(user)
	if balance.Claimed != 0 {
		t.Fatalf("failed claim mutated counters: %+v", balance)
	}
}

func TestCreditOverflowIsSkipped(t *testing.T) {
	engine, state := newTestEngine(t)
	user := testAddr(0x01)
	state.users[user.String()] = &UserRewards{User: user, Earned: math.MaxUint64 - 5}

	credited, err := engine.Credit(user)
	if err != nil {
		t.Fatalf("credit returned error on overflow: %v", err)
	}
	if credited {
		t.Fatalf("overflowing credit reported as applied")
	}
	balance, _ := engine.Balance(user)
	if balance.Earned != math.MaxUint64-5 {
		t.Fatalf("earned changed on skipped credit: %d", balance.Earned)
	}
}
