package paytoken

import (
	"errors"
	"math/big"
)

var (
	ErrInvalidAmount         = errors.New("pay token: amount must be non-negative")
	ErrInsufficientBalance   = errors.New("pay token: insufficient balance")
	ErrInsufficientAllowance = errors.New("pay token: insufficient allowance")
)

// PayToken is the settlement collaborator the market engine moves value
// through. A market is created against exactly one pay token: either the
// native currency or an ERC-20 style token with allowances. The engine only
// uses TransferFrom on the allowance-gated kind.
type PayToken interface {
	// Native reports whether the token is the native pay currency, i.e.
	// operations carry an attached value instead of relying on allowances.
	Native() bool
	BalanceOf(addr [20]byte) (*big.Int, error)
	// Transfer moves amount between addresses. Zero amounts are no-ops.
	Transfer(from, to [20]byte, amount *big.Int) error
	// TransferFrom moves amount out of from on behalf of spender, consuming
	// allowance on allowance-gated tokens.
	TransferFrom(spender, from, to [20]byte, amount *big.Int) error
}

func checkAmount(amount *big.Int) (skip bool, err error) {
	if amount == nil || amount.Sign() == 0 {
		return true, nil
	}
	if amount.Sign() < 0 {
		return false, ErrInvalidAmount
	}
	return false, nil
}
