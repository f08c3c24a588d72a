package types

import "math/big"

// Account holds the FIL balance tracked by the ledger for a participant
// address. Balances are denominated in attoFIL and stored as big integers to
// match on-chain precision.
type Account struct {
	Balance *big.Int `json:"balance"`
}

// EnsureAccount normalises a possibly-nil account into one with a non-nil
// balance so callers can mutate it without nil checks.
func EnsureAccount(acc *Account) *Account {
	if acc == nil {
		return &Account{Balance: big.NewInt(0)}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}
