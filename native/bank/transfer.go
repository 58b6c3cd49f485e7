package bank

import (
	"errors"
	"fmt"
	"strings"

	"stablemortgage/core/types"
	"stablemortgage/crypto"
	"stablemortgage/native/common"
)

// Token identifies which balance on an account a transfer moves.
type Token string

const (
	// TokenStable is the stablecoin every loan, deposit and repayment is
	// denominated in.
	TokenStable Token = "SUSD"
	// TokenReward is the incentive token paid out by the rewards ledger.
	TokenReward Token = "SMRT"
)

var (
	ErrInvalidAmount     = errors.New("bank: amount must be positive")
	ErrInsufficientFunds = errors.New("bank: insufficient funds")
	ErrUnknownToken      = errors.New("bank: unsupported token")
	ErrNilState          = errors.New("bank: state not configured")
)

// AccountState is the minimal persistence surface value transfers require.
type AccountState interface {
	GetAccount(addr crypto.Address) (*types.Account, error)
	PutAccount(addr crypto.Address, account *types.Account) error
}

// NormalizeToken validates a token symbol and returns its canonical form.
func NormalizeToken(symbol string) (Token, error) {
	trimmed := Token(strings.ToUpper(strings.TrimSpace(symbol)))
	switch trimmed {
	case TokenStable, TokenReward:
		return trimmed, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownToken, symbol)
	}
}

func balance(acc *types.Account, token Token) uint64 {
	if token == TokenReward {
		return acc.BalanceReward
	}
	return acc.BalanceStable
}

func setBalance(acc *types.Account, token Token, value uint64) {
	if token == TokenReward {
		acc.BalanceReward = value
		return
	}
	acc.BalanceStable = value
}

// Transfer atomically moves amount of token from one account to another.
// Both accounts are loaded, validated and written back; nothing is persisted
// when any step fails, so a failed transfer leaves no partial state.
func Transfer(state AccountState, from, to crypto.Address, amount uint64, token Token) error {
	if state == nil {
		return ErrNilState
	}
	if amount == 0 {
		return ErrInvalidAmount
	}
	if _, err := NormalizeToken(string(token)); err != nil {
		return err
	}

	fromAcc, err := state.GetAccount(from)
	if err != nil {
		return err
	}
	if balance(fromAcc, token) < amount {
		return ErrInsufficientFunds
	}
	// Self transfers are a funded no-op; loading the account twice would
	// otherwise let the credit overwrite the debit.
	if from.Equal(to) {
		return nil
	}
	toAcc, err := state.GetAccount(to)
	if err != nil {
		return err
	}

	debited, err := common.SubU64(balance(fromAcc, token), amount)
	if err != nil {
		return err
	}
	credited, err := common.AddU64(balance(toAcc, token), amount)
	if err != nil {
		return err
	}

	setBalance(fromAcc, token, debited)
	setBalance(toAcc, token, credited)

	if err := state.PutAccount(from, fromAcc); err != nil {
		return err
	}
	return state.PutAccount(to, toAcc)
}
