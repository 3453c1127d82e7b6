package paytoken

import (
	"encoding/hex"
	"fmt"
	"math/big"
)

var (
	erc20BalancePrefix   = []byte("paytoken/erc20/balance/")
	erc20AllowancePrefix = []byte("paytoken/erc20/allowance/")
)

// ERC20Token is a minimal allowance-gated pay token. The market engine treats
// it as an external collaborator: balance and allowance shortfalls surface as
// this package's errors, unchanged.
type ERC20Token struct {
	store Storage
}

// NewERC20 constructs the token over the storage backend.
func NewERC20(store Storage) *ERC20Token {
	return &ERC20Token{store: store}
}

// Native implements PayToken.
func (t *ERC20Token) Native() bool { return false }

// BalanceOf implements PayToken.
func (t *ERC20Token) BalanceOf(addr [20]byte) (*big.Int, error) {
	return t.getAmount(balanceKey(addr))
}

// Mint credits freshly issued tokens; used to fund accounts at genesis and in
// tests.
func (t *ERC20Token) Mint(to [20]byte, amount *big.Int) error {
	skip, err := checkAmount(amount)
	if err != nil || skip {
		return err
	}
	balance, err := t.getAmount(balanceKey(to))
	if err != nil {
		return err
	}
	return t.putAmount(balanceKey(to), new(big.Int).Add(balance, amount))
}

// Approve sets the spender's allowance over the owner's balance.
func (t *ERC20Token) Approve(owner, spender [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return t.putAmount(allowanceKey(owner, spender), amount)
}

// Allowance returns the spender's remaining allowance over the owner.
func (t *ERC20Token) Allowance(owner, spender [20]byte) (*big.Int, error) {
	return t.getAmount(allowanceKey(owner, spender))
}

// Transfer implements PayToken.
func (t *ERC20Token) Transfer(from, to [20]byte, amount *big.Int) error {
	skip, err := checkAmount(amount)
	if err != nil || skip {
		return err
	}
	fromBalance, err := t.getAmount(balanceKey(from))
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if from == to {
		return nil
	}
	toBalance, err := t.getAmount(balanceKey(to))
	if err != nil {
		return err
	}
	if err := t.putAmount(balanceKey(from), new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return t.putAmount(balanceKey(to), new(big.Int).Add(toBalance, amount))
}

// TransferFrom implements PayToken, consuming allowance unless the spender is
// moving their own funds.
func (t *ERC20Token) TransferFrom(spender, from, to [20]byte, amount *big.Int) error {
	skip, err := checkAmount(amount)
	if err != nil || skip {
		return err
	}
	if spender != from {
		allowance, err := t.getAmount(allowanceKey(from, spender))
		if err != nil {
			return err
		}
		if allowance.Cmp(amount) < 0 {
			return ErrInsufficientAllowance
		}
		if err := t.putAmount(allowanceKey(from, spender), new(big.Int).Sub(allowance, amount)); err != nil {
			return err
		}
	}
	return t.Transfer(from, to, amount)
}

func (t *ERC20Token) getAmount(key []byte) (*big.Int, error) {
	if t == nil || t.store == nil {
		return nil, fmt.Errorf("erc20 pay token not initialised")
	}
	var stored storedAccount
	ok, err := t.store.KVGet(key, &stored)
	if err != nil {
		return nil, err
	}
	if !ok || stored.Balance == "" {
		return big.NewInt(0), nil
	}
	amount, parsed := new(big.Int).SetString(stored.Balance, 10)
	if !parsed {
		return nil, fmt.Errorf("erc20 pay token: invalid amount %q", stored.Balance)
	}
	return amount, nil
}

func (t *ERC20Token) putAmount(key []byte, amount *big.Int) error {
	if t == nil || t.store == nil {
		return fmt.Errorf("erc20 pay token not initialised")
	}
	return t.store.KVPut(key, &storedAccount{Balance: amount.String()})
}

func balanceKey(addr [20]byte) []byte {
	return append(append([]byte(nil), erc20BalancePrefix...), hex.EncodeToString(addr[:])...)
}

func allowanceKey(owner, spender [20]byte) []byte {
	buf := append([]byte(nil), erc20AllowancePrefix...)
	buf = append(buf, hex.EncodeToString(owner[:])...)
	buf = append(buf, '/')
	buf = append(buf, hex.EncodeToString(spender[:])...)
	return buf
}
