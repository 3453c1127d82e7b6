package types

import "math/big"

// Account tracks the native pay-currency balance held by an address. Amounts
// are denominated in the smallest pay-token unit and expressed as big integers
// to match on-chain precision.
type Account struct {
	// Balance is the freely spendable native pay-currency amount.
	Balance *big.Int
}

// Clone returns a deep copy so callers can mutate the result without touching
// the stored instance.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	if a.Balance != nil {
		clone.Balance = new(big.Int).Set(a.Balance)
	} else {
		clone.Balance = big.NewInt(0)
	}
	return &clone
}
