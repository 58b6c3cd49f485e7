package types

// Account holds the fungible balances for a single ledger participant.
// Balances are fixed-width unsigned integers in the smallest token unit;
// every mutation goes through the checked helpers in native/bank so an
// overflowing operation aborts instead of wrapping.
type Account struct {
	Nonce uint64 `json:"nonce"`
	// BalanceStable is the stablecoin balance used for deposits, loan
	// principal and repayments.
	BalanceStable uint64 `json:"balanceStable"`
	// BalanceReward is the incentive token balance paid out by the rewards
	// ledger.
	BalanceReward uint64 `json:"balanceReward"`
}

// Clone returns a copy of the account so callers can mutate it without
// affecting the stored instance.
func (a *Account) Clone() *Account {
	if a == nil {
		return &Account{}
	}
	clone := *a
	return &clone
}
