package paytoken

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"curvemarket/core/types"
)

// AccountState abstracts the native pay-currency account store.
type AccountState interface {
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, account *types.Account) error
}

// NativeToken settles in the native pay currency held in plain accounts.
type NativeToken struct {
	state AccountState
}

// NewNative constructs the native settlement path over the account store.
func NewNative(state AccountState) *NativeToken {
	return &NativeToken{state: state}
}

// Native implements PayToken.
func (n *NativeToken) Native() bool { return true }

// BalanceOf implements PayToken.
func (n *NativeToken) BalanceOf(addr [20]byte) (*big.Int, error) {
	acc, err := n.loadAccount(addr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(acc.Balance), nil
}

// Transfer implements PayToken.
func (n *NativeToken) Transfer(from, to [20]byte, amount *big.Int) error {
	skip, err := checkAmount(amount)
	if err != nil || skip {
		return err
	}
	fromAcc, err := n.loadAccount(from)
	if err != nil {
		return err
	}
	if fromAcc.Balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if from == to {
		return nil
	}
	toAcc, err := n.loadAccount(to)
	if err != nil {
		return err
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amount)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amount)
	if err := n.state.PutAccount(from, fromAcc); err != nil {
		return err
	}
	return n.state.PutAccount(to, toAcc)
}

// TransferFrom implements PayToken. The native currency has no allowances, so
// only self-spends are permitted.
func (n *NativeToken) TransferFrom(spender, from, to [20]byte, amount *big.Int) error {
	if spender != from {
		return ErrInsufficientAllowance
	}
	return n.Transfer(from, to, amount)
}

func (n *NativeToken) loadAccount(addr [20]byte) (*types.Account, error) {
	if n == nil || n.state == nil {
		return nil, fmt.Errorf("native pay token not initialised")
	}
	acc, err := n.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		acc = &types.Account{}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc, nil
}

// Storage abstracts the subset of state manager functionality required by the
// persistent account store.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var nativeAccountPrefix = []byte("paytoken/native/")

type storedAccount struct {
	Balance string
}

// StoreAccounts persists native pay-currency accounts in the key-value store,
// satisfying AccountState.
type StoreAccounts struct {
	store Storage
}

// NewStoreAccounts constructs an account store over the storage backend.
func NewStoreAccounts(store Storage) *StoreAccounts {
	return &StoreAccounts{store: store}
}

// GetAccount implements AccountState. Unknown addresses resolve to a zero
// balance account.
func (s *StoreAccounts) GetAccount(addr [20]byte) (*types.Account, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("account store not initialised")
	}
	var stored storedAccount
	ok, err := s.store.KVGet(accountKey(addr), &stored)
	if err != nil {
		return nil, err
	}
	if !ok || stored.Balance == "" {
		return &types.Account{Balance: big.NewInt(0)}, nil
	}
	balance, parsed := new(big.Int).SetString(stored.Balance, 10)
	if !parsed {
		return nil, fmt.Errorf("account store: invalid balance %q", stored.Balance)
	}
	return &types.Account{Balance: balance}, nil
}

// PutAccount implements AccountState.
func (s *StoreAccounts) PutAccount(addr [20]byte, account *types.Account) error {
	if s == nil || s.store == nil {
		return fmt.Errorf("account store not initialised")
	}
	balance := "0"
	if account != nil && account.Balance != nil {
		if account.Balance.Sign() < 0 {
			return ErrInvalidAmount
		}
		balance = account.Balance.String()
	}
	return s.store.KVPut(accountKey(addr), &storedAccount{Balance: balance})
}

func accountKey(addr [20]byte) []byte {
	return append(append([]byte(nil), nativeAccountPrefix...), hex.EncodeToString(addr[:])...)
}
