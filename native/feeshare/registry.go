package feeshare

import (
	"errors"
	"fmt"
	"math/big"
)

// TotalPercent is the denominator the per-tid share percentages must sum to.
const TotalPercent = 100_000

var (
	ErrExists       = errors.New("feeshare registry: shares already configured")
	ErrUnknown      = errors.New("feeshare registry: no shares for tid")
	ErrEmptyShares  = errors.New("feeshare registry: at least one share required")
	ErrZeroPercent  = errors.New("feeshare registry: share percent must be positive")
	ErrPercentSum   = errors.New("feeshare registry: share percents must sum to the total")
	ErrIndexRange   = errors.New("feeshare registry: share index out of range")
	ErrZeroOwner    = errors.New("feeshare registry: share owner required")
	ErrInvalidShare = errors.New("feeshare registry: invalid share list")
)

// Storage abstracts the subset of state manager functionality required by the
// fee-share registry.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var feeSharePrefix = []byte("feeshare/")

// Entry grants an owner a fixed percentage of the NFT-owner trading fees for
// one tid. The percent is immutable after topic creation; only the owner may
// change hands.
type Entry struct {
	Owner   [20]byte
	Percent uint64
}

type storedEntry struct {
	Owner   [20]byte
	Percent uint64
}

type storedShareList struct {
	Entries []storedEntry
}

// Registry persists the ordered per-tid fee-share lists. The explicit ordered
// list keeps fee fan-out bounded and deterministic; expected holder counts
// are small (a handful per topic).
type Registry struct {
	store Storage
}

// NewRegistry constructs a registry bound to the provided storage backend.
func NewRegistry(store Storage) *Registry {
	return &Registry{store: store}
}

// ValidateEntries checks the share list invariants enforced at topic creation.
func ValidateEntries(entries []Entry) error {
	if len(entries) == 0 {
		return ErrEmptyShares
	}
	var sum uint64
	for _, entry := range entries {
		if entry.Owner == ([20]byte{}) {
			return ErrZeroOwner
		}
		if entry.Percent == 0 {
			return ErrZeroPercent
		}
		sum += entry.Percent
		if sum > TotalPercent {
			return ErrPercentSum
		}
	}
	if sum != TotalPercent {
		return ErrPercentSum
	}
	return nil
}

// Create stores the share list for a tid. The list is immutable afterwards
// except for ownership transfers via SetOwner.
func (r *Registry) Create(tid string, entries []Entry) error {
	if r == nil || r.store == nil {
		return fmt.Errorf("feeshare registry not initialised")
	}
	if err := ValidateEntries(entries); err != nil {
		return err
	}
	key := shareKey(tid)
	var existing storedShareList
	ok, err := r.store.KVGet(key, &existing)
	if err != nil {
		return err
	}
	if ok {
		return ErrExists
	}
	stored := storedShareList{Entries: make([]storedEntry, len(entries))}
	for i, entry := range entries {
		stored.Entries[i] = storedEntry{Owner: entry.Owner, Percent: entry.Percent}
	}
	return r.store.KVPut(key, &stored)
}

// Shares returns the ordered share list for a tid.
func (r *Registry) Shares(tid string) ([]Entry, error) {
	if r == nil || r.store == nil {
		return nil, fmt.Errorf("feeshare registry not initialised")
	}
	var stored storedShareList
	ok, err := r.store.KVGet(shareKey(tid), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnknown
	}
	entries := make([]Entry, len(stored.Entries))
	for i, entry := range stored.Entries {
		entries[i] = Entry{Owner: entry.Owner, Percent: entry.Percent}
	}
	return entries, nil
}

// SetOwner transfers one share to a new owner. The percent stays fixed.
func (r *Registry) SetOwner(tid string, index int, newOwner [20]byte) error {
	if r == nil || r.store == nil {
		return fmt.Errorf("feeshare registry not initialised")
	}
	if newOwner == ([20]byte{}) {
		return ErrZeroOwner
	}
	var stored storedShareList
	ok, err := r.store.KVGet(shareKey(tid), &stored)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnknown
	}
	if index < 0 || index >= len(stored.Entries) {
		return ErrIndexRange
	}
	stored.Entries[index].Owner = newOwner
	return r.store.KVPut(shareKey(tid), &stored)
}

// SplitFee fans a fee amount out across the share list by floor division.
// The integer-division dust is added to the last entry so the split always
// sums to exactly the input fee.
func SplitFee(entries []Entry, fee *big.Int) ([]*big.Int, error) {
	if len(entries) == 0 {
		return nil, ErrEmptyShares
	}
	amounts := make([]*big.Int, len(entries))
	if fee == nil || fee.Sign() <= 0 {
		for i := range amounts {
			amounts[i] = big.NewInt(0)
		}
		return amounts, nil
	}
	total := big.NewInt(TotalPercent)
	paid := big.NewInt(0)
	for i, entry := range entries {
		share := new(big.Int).Mul(fee, new(big.Int).SetUint64(entry.Percent))
		share.Quo(share, total)
		amounts[i] = share
		paid.Add(paid, share)
	}
	if dust := new(big.Int).Sub(fee, paid); dust.Sign() > 0 {
		last := len(amounts) - 1
		amounts[last] = new(big.Int).Add(amounts[last], dust)
	}
	return amounts, nil
}

func shareKey(tid string) []byte {
	return append(append([]byte(nil), feeSharePrefix...), tid...)
}
