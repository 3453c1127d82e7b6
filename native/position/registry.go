package position

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strconv"
)

var (
	ErrNotFound      = errors.New("position registry: position not found")
	ErrNotOwner      = errors.New("position registry: caller is not the owner")
	ErrInvalidAmount = errors.New("position registry: amount must be positive")
	ErrOverdraw      = errors.New("position registry: amount exceeds position")
)

// Storage abstracts the subset of state manager functionality required by the
// position registry.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

var (
	positionSeqKey        = []byte("position/seq")
	positionItemPrefix    = []byte("position/item/")
	positionOwnerPrefix   = []byte("position/owner/")
	positionApprovePrefix = []byte("position/approval/")
)

// Position is an NFT-backed collateral record. Amount is the running
// collateral base the market values mortgages against; it is strictly
// positive for every live position.
type Position struct {
	ID     uint64
	Owner  [20]byte
	TID    string
	Amount *big.Int
}

// Clone returns a deep copy so callers can mutate the result freely.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := *p
	if p.Amount != nil {
		clone.Amount = new(big.Int).Set(p.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

type storedPosition struct {
	ID     uint64
	Owner  [20]byte
	TID    string
	Amount string
}

type storedSeq struct {
	Next uint64
}

type storedIDList struct {
	IDs []uint64
}

type storedApproval struct {
	Operator [20]byte
}

// Registry owns the collateral position records. Mint, Add, Remove and Burn
// are reserved for the market engine; ownership and approval queries are open
// to anyone.
type Registry struct {
	store Storage
}

// NewRegistry constructs a registry bound to the provided storage backend.
func NewRegistry(store Storage) *Registry {
	return &Registry{store: store}
}

// Mint allocates a fresh position id and stores the record. Identifiers are
// sequential and never reused, so a closed position cannot be resurrected.
func (r *Registry) Mint(owner [20]byte, tid string, amount *big.Int) (uint64, error) {
	if r == nil || r.store == nil {
		return 0, fmt.Errorf("position registry not initialised")
	}
	if amount == nil || amount.Sign() <= 0 {
		return 0, ErrInvalidAmount
	}
	var seq storedSeq
	if _, err := r.store.KVGet(positionSeqKey, &seq); err != nil {
		return 0, err
	}
	id := seq.Next + 1
	if err := r.store.KVPut(positionSeqKey, &storedSeq{Next: id}); err != nil {
		return 0, err
	}
	stored := storedPosition{ID: id, Owner: owner, TID: tid, Amount: amount.String()}
	if err := r.store.KVPut(itemKey(id), &stored); err != nil {
		return 0, err
	}
	if err := r.appendOwnerIndex(owner, id); err != nil {
		return 0, err
	}
	return id, nil
}

// Get retrieves a position by id.
func (r *Registry) Get(id uint64) (*Position, bool, error) {
	if r == nil || r.store == nil {
		return nil, false, fmt.Errorf("position registry not initialised")
	}
	var stored storedPosition
	ok, err := r.store.KVGet(itemKey(id), &stored)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	pos, err := fromStored(&stored)
	if err != nil {
		return nil, false, err
	}
	return pos, true, nil
}

// OwnerOf returns the owner of a live position.
func (r *Registry) OwnerOf(id uint64) ([20]byte, error) {
	pos, ok, err := r.Get(id)
	if err != nil {
		return [20]byte{}, err
	}
	if !ok {
		return [20]byte{}, ErrNotFound
	}
	return pos.Owner, nil
}

// Add grows the position's collateral amount in place.
func (r *Registry) Add(id uint64, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	pos, ok, err := r.Get(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	pos.Amount = new(big.Int).Add(pos.Amount, amount)
	return r.put(pos)
}

// Remove shrinks the position's collateral amount and burns the record when
// the amount reaches zero. The remaining amount is returned.
func (r *Registry) Remove(id uint64, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	pos, ok, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	if pos.Amount.Cmp(amount) < 0 {
		return nil, ErrOverdraw
	}
	remaining := new(big.Int).Sub(pos.Amount, amount)
	if remaining.Sign() == 0 {
		if err := r.burn(pos); err != nil {
			return nil, err
		}
		return remaining, nil
	}
	pos.Amount = remaining
	if err := r.put(pos); err != nil {
		return nil, err
	}
	return remaining, nil
}

// Approve grants the operator settlement rights over the position. Only the
// current owner may approve; the zero operator clears the approval.
func (r *Registry) Approve(caller [20]byte, id uint64, operator [20]byte) error {
	pos, ok, err := r.Get(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if pos.Owner != caller {
		return ErrNotOwner
	}
	if operator == ([20]byte{}) {
		return r.store.KVDelete(approvalKey(id))
	}
	return r.store.KVPut(approvalKey(id), &storedApproval{Operator: operator})
}

// IsApprovedOrOwner reports whether the operator owns or is approved on the
// position. Unknown positions resolve to ErrNotFound.
func (r *Registry) IsApprovedOrOwner(operator [20]byte, id uint64) (bool, error) {
	pos, ok, err := r.Get(id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrNotFound
	}
	if pos.Owner == operator {
		return true, nil
	}
	var approval storedApproval
	ok, err = r.store.KVGet(approvalKey(id), &approval)
	if err != nil {
		return false, err
	}
	return ok && approval.Operator == operator, nil
}

// PositionsOf enumerates the live position ids owned by the address.
func (r *Registry) PositionsOf(owner [20]byte) ([]uint64, error) {
	if r == nil || r.store == nil {
		return nil, fmt.Errorf("position registry not initialised")
	}
	var index storedIDList
	if _, err := r.store.KVGet(ownerKey(owner), &index); err != nil {
		return nil, err
	}
	return append([]uint64(nil), index.IDs...), nil
}

func (r *Registry) put(pos *Position) error {
	stored := storedPosition{ID: pos.ID, Owner: pos.Owner, TID: pos.TID, Amount: pos.Amount.String()}
	return r.store.KVPut(itemKey(pos.ID), &stored)
}

func (r *Registry) burn(pos *Position) error {
	if err := r.store.KVDelete(itemKey(pos.ID)); err != nil {
		return err
	}
	if err := r.store.KVDelete(approvalKey(pos.ID)); err != nil {
		return err
	}
	return r.removeOwnerIndex(pos.Owner, pos.ID)
}

func (r *Registry) appendOwnerIndex(owner [20]byte, id uint64) error {
	var index storedIDList
	if _, err := r.store.KVGet(ownerKey(owner), &index); err != nil {
		return err
	}
	index.IDs = append(index.IDs, id)
	return r.store.KVPut(ownerKey(owner), &index)
}

func (r *Registry) removeOwnerIndex(owner [20]byte, id uint64) error {
	var index storedIDList
	ok, err := r.store.KVGet(ownerKey(owner), &index)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	kept := index.IDs[:0]
	for _, existing := range index.IDs {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	if len(kept) == 0 {
		return r.store.KVDelete(ownerKey(owner))
	}
	index.IDs = kept
	return r.store.KVPut(ownerKey(owner), &index)
}

func fromStored(stored *storedPosition) (*Position, error) {
	amount, ok := new(big.Int).SetString(stored.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("position registry: invalid amount %q", stored.Amount)
	}
	return &Position{ID: stored.ID, Owner: stored.Owner, TID: stored.TID, Amount: amount}, nil
}

func itemKey(id uint64) []byte {
	return append(append([]byte(nil), positionItemPrefix...), strconv.FormatUint(id, 10)...)
}

func approvalKey(id uint64) []byte {
	return append(append([]byte(nil), positionApprovePrefix...), strconv.FormatUint(id, 10)...)
}

func ownerKey(owner [20]byte) []byte {
	return append(append([]byte(nil), positionOwnerPrefix...), hex.EncodeToString(owner[:])...)
}
