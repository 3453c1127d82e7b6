package token

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrEmptyTID            = errors.New("token ledger: tid required")
	ErrExists              = errors.New("token ledger: token already exists")
	ErrUnknown             = errors.New("token ledger: unknown token")
	ErrInvalidAmount       = errors.New("token ledger: amount must be positive")
	ErrInsufficientBalance = errors.New("token ledger: insufficient balance")
	ErrInsufficientSupply  = errors.New("token ledger: amount exceeds total supply")
)

// Storage abstracts the subset of state manager functionality required by the
// token ledger.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	tokenMetaPrefix    = []byte("token/meta/")
	tokenSupplyPrefix  = []byte("token/supply/")
	tokenBalancePrefix = []byte("token/balance/")
)

// Metadata describes one topic token issued by a market.
type Metadata struct {
	TID       string
	Address   [20]byte
	CreatedAt int64
}

type storedMetadata struct {
	TID       string
	Address   [20]byte
	CreatedAt uint64
}

type storedAmount struct {
	Value string
}

// Ledger persists per-tid circulating supply and per-holder balances of the
// curve-priced topic tokens.
type Ledger struct {
	store Storage
	clock func() time.Time
}

// NewLedger constructs a ledger bound to the provided storage backend.
func NewLedger(store Storage) *Ledger {
	return &Ledger{store: store, clock: time.Now}
}

// SetClock overrides the time source (primarily for deterministic testing).
func (l *Ledger) SetClock(clock func() time.Time) {
	if l == nil || clock == nil {
		return
	}
	l.clock = clock
}

// NormalizeTID canonicalises topic identifiers for consistent lookups.
func NormalizeTID(tid string) string {
	return strings.TrimSpace(tid)
}

// Create registers a new topic token with zero supply. The token address is
// derived deterministically from the tid so external observers can reference
// the topic before any trade happens.
func (l *Ledger) Create(tid string) (*Metadata, error) {
	if l == nil || l.store == nil {
		return nil, fmt.Errorf("token ledger not initialised")
	}
	normalized := NormalizeTID(tid)
	if normalized == "" {
		return nil, ErrEmptyTID
	}
	key := metaKey(normalized)
	var existing storedMetadata
	ok, err := l.store.KVGet(key, &existing)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, ErrExists
	}
	meta := &Metadata{
		TID:       normalized,
		Address:   deriveAddress(normalized),
		CreatedAt: l.clock().UTC().Unix(),
	}
	stored := storedMetadata{TID: meta.TID, Address: meta.Address}
	if meta.CreatedAt > 0 {
		stored.CreatedAt = uint64(meta.CreatedAt)
	}
	if err := l.store.KVPut(key, &stored); err != nil {
		return nil, err
	}
	if err := l.putAmount(supplyKey(normalized), big.NewInt(0)); err != nil {
		return nil, err
	}
	return meta, nil
}

// Exists reports whether the topic token has been created.
func (l *Ledger) Exists(tid string) (bool, error) {
	if l == nil || l.store == nil {
		return false, fmt.Errorf("token ledger not initialised")
	}
	var stored storedMetadata
	return l.store.KVGet(metaKey(NormalizeTID(tid)), &stored)
}

// Metadata returns the stored metadata for a topic token.
func (l *Ledger) Metadata(tid string) (*Metadata, error) {
	if l == nil || l.store == nil {
		return nil, fmt.Errorf("token ledger not initialised")
	}
	var stored storedMetadata
	ok, err := l.store.KVGet(metaKey(NormalizeTID(tid)), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnknown
	}
	meta := &Metadata{TID: stored.TID, Address: stored.Address}
	if stored.CreatedAt > 0 {
		meta.CreatedAt = int64(stored.CreatedAt)
	}
	return meta, nil
}

// TotalSupply returns the circulating supply for the topic.
func (l *Ledger) TotalSupply(tid string) (*big.Int, error) {
	if err := l.ensureExists(tid); err != nil {
		return nil, err
	}
	return l.getAmount(supplyKey(NormalizeTID(tid)))
}

// BalanceOf returns the holder's balance for the topic.
func (l *Ledger) BalanceOf(tid string, addr [20]byte) (*big.Int, error) {
	if err := l.ensureExists(tid); err != nil {
		return nil, err
	}
	return l.getAmount(balanceKey(NormalizeTID(tid), addr))
}

// Mint credits newly issued tokens to the recipient and grows the circulating
// supply. Only the market engine calls this.
func (l *Ledger) Mint(tid string, to [20]byte, amount *big.Int) error {
	if err := l.ensureExists(tid); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	normalized := NormalizeTID(tid)
	supply, err := l.getAmount(supplyKey(normalized))
	if err != nil {
		return err
	}
	balance, err := l.getAmount(balanceKey(normalized, to))
	if err != nil {
		return err
	}
	if err := l.putAmount(supplyKey(normalized), new(big.Int).Add(supply, amount)); err != nil {
		return err
	}
	return l.putAmount(balanceKey(normalized, to), new(big.Int).Add(balance, amount))
}

// Burn removes tokens from the holder and shrinks the circulating supply.
func (l *Ledger) Burn(tid string, from [20]byte, amount *big.Int) error {
	if err := l.ensureExists(tid); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	normalized := NormalizeTID(tid)
	supply, err := l.getAmount(supplyKey(normalized))
	if err != nil {
		return err
	}
	if supply.Cmp(amount) < 0 {
		return ErrInsufficientSupply
	}
	balance, err := l.getAmount(balanceKey(normalized, from))
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if err := l.putAmount(supplyKey(normalized), new(big.Int).Sub(supply, amount)); err != nil {
		return err
	}
	return l.putAmount(balanceKey(normalized, from), new(big.Int).Sub(balance, amount))
}

// Transfer moves tokens between holders without touching the supply.
func (l *Ledger) Transfer(tid string, from, to [20]byte, amount *big.Int) error {
	if err := l.ensureExists(tid); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	normalized := NormalizeTID(tid)
	fromBalance, err := l.getAmount(balanceKey(normalized, from))
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	// Self-transfers are no-ops, but only after the sufficiency check so the
	// error contract does not depend on the recipient.
	if from == to {
		return nil
	}
	toBalance, err := l.getAmount(balanceKey(normalized, to))
	if err != nil {
		return err
	}
	if err := l.putAmount(balanceKey(normalized, from), new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return l.putAmount(balanceKey(normalized, to), new(big.Int).Add(toBalance, amount))
}

func (l *Ledger) ensureExists(tid string) error {
	if l == nil || l.store == nil {
		return fmt.Errorf("token ledger not initialised")
	}
	ok, err := l.Exists(tid)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnknown
	}
	return nil
}

func (l *Ledger) getAmount(key []byte) (*big.Int, error) {
	var stored storedAmount
	ok, err := l.store.KVGet(key, &stored)
	if err != nil {
		return nil, err
	}
	if !ok || strings.TrimSpace(stored.Value) == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(stored.Value, 10)
	if !ok {
		return nil, fmt.Errorf("token ledger: invalid amount %q", stored.Value)
	}
	return amount, nil
}

func (l *Ledger) putAmount(key []byte, amount *big.Int) error {
	value := "0"
	if amount != nil {
		if amount.Sign() < 0 {
			return ErrInvalidAmount
		}
		value = amount.String()
	}
	return l.store.KVPut(key, &storedAmount{Value: value})
}

func deriveAddress(tid string) [20]byte {
	digest := ethcrypto.Keccak256([]byte("curvemarket/token/"), []byte(tid))
	var addr [20]byte
	copy(addr[:], digest[12:])
	return addr
}

func metaKey(tid string) []byte {
	return joinKey(tokenMetaPrefix, tid)
}

func supplyKey(tid string) []byte {
	return joinKey(tokenSupplyPrefix, tid)
}

func balanceKey(tid string, addr [20]byte) []byte {
	base := joinKey(tokenBalancePrefix, tid)
	buf := make([]byte, 0, len(base)+1+40)
	buf = append(buf, base...)
	buf = append(buf, '/')
	buf = append(buf, hex.EncodeToString(addr[:])...)
	return buf
}

func joinKey(prefix []byte, tid string) []byte {
	buf := make([]byte, 0, len(prefix)+len(tid))
	buf = append(buf, prefix...)
	buf = append(buf, tid...)
	return buf
}
