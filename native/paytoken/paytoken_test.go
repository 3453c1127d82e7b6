package paytoken

import (
	"errors"
	"math/big"
	"testing"

	"curvemarket/state"
	"curvemarket/storage"
)

func addr(b byte) [20]byte {
	var a [20]byte
	a[19] = b
	return a
}

func newNative(t *testing.T) (*NativeToken, *StoreAccounts) {
	t.Helper()
	accounts := NewStoreAccounts(state.NewKVStore(storage.NewMemDB()))
	return NewNative(accounts), accounts
}

func fund(t *testing.T, accounts *StoreAccounts, owner [20]byte, amount int64) {
	t.Helper()
	acc, err := accounts.GetAccount(owner)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	acc.Balance = new(big.Int).Add(acc.Balance, big.NewInt(amount))
	if err := accounts.PutAccount(owner, acc); err != nil {
		t.Fatalf("put account: %v", err)
	}
}

func TestNativeTransfer(t *testing.T) {
	native, accounts := newNative(t)
	fund(t, accounts, addr(1), 1000)

	if err := native.Transfer(addr(1), addr(2), big.NewInt(400)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	balance, err := native.BalanceOf(addr(2))
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("expected 400, got %s", balance)
	}

	if err := native.Transfer(addr(1), addr(2), big.NewInt(601)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	// Zero transfers are no-ops.
	if err := native.Transfer(addr(1), addr(2), nil); err != nil {
		t.Fatalf("nil amount: %v", err)
	}

	// Self-transfers still enforce the balance check.
	if err := native.Transfer(addr(1), addr(1), big.NewInt(601)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance on self overdraw, got %v", err)
	}
	if err := native.Transfer(addr(1), addr(1), big.NewInt(600)); err != nil {
		t.Fatalf("self transfer: %v", err)
	}
}

func TestNativeTransferFromRejectsThirdParty(t *testing.T) {
	native, accounts := newNative(t)
	fund(t, accounts, addr(1), 100)

	if err := native.TransferFrom(addr(3), addr(1), addr(2), big.NewInt(1)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance, got %v", err)
	}
	if err := native.TransferFrom(addr(1), addr(1), addr(2), big.NewInt(1)); err != nil {
		t.Fatalf("self spend: %v", err)
	}
}

func TestERC20AllowanceFlow(t *testing.T) {
	token := NewERC20(state.NewKVStore(storage.NewMemDB()))
	owner := addr(1)
	market := addr(9)

	if err := token.Mint(owner, big.NewInt(1000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := token.TransferFrom(market, owner, market, big.NewInt(100)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance, got %v", err)
	}

	if err := token.Approve(owner, market, big.NewInt(250)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := token.TransferFrom(market, owner, market, big.NewInt(100)); err != nil {
		t.Fatalf("transfer from: %v", err)
	}

	remaining, err := token.Allowance(owner, market)
	if err != nil {
		t.Fatalf("allowance: %v", err)
	}
	if remaining.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("expected allowance 150, got %s", remaining)
	}

	if err := token.TransferFrom(market, owner, market, big.NewInt(151)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance, got %v", err)
	}

	balance, err := token.BalanceOf(market)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected market balance 100, got %s", balance)
	}
}

func TestERC20BalanceShortfall(t *testing.T) {
	token := NewERC20(state.NewKVStore(storage.NewMemDB()))
	if err := token.Transfer(addr(1), addr(2), big.NewInt(1)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}
