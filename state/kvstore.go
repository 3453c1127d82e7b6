package state

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"curvemarket/storage"
)

// KVStore adapts a raw storage.Database into the typed key-value interface the
// market ledgers are written against. Values are RLP encoded so records stay
// byte-stable across backends.
type KVStore struct {
	db storage.Database
}

// NewKVStore wraps the provided database.
func NewKVStore(db storage.Database) *KVStore {
	return &KVStore{db: db}
}

// KVGet decodes the stored value into out, reporting whether the key existed.
func (s *KVStore) KVGet(key []byte, out interface{}) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("kvstore not initialised")
	}
	raw, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("kvstore: decode %q: %w", key, err)
	}
	return true, nil
}

// KVPut encodes the value with RLP and stores it under key.
func (s *KVStore) KVPut(key []byte, value interface{}) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("kvstore not initialised")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("kvstore: encode %q: %w", key, err)
	}
	return s.db.Put(key, encoded)
}

// KVDelete removes the key if present.
func (s *KVStore) KVDelete(key []byte) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("kvstore not initialised")
	}
	return s.db.Delete(key)
}

// KVHas reports whether the key exists without decoding the value.
func (s *KVStore) KVHas(key []byte) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("kvstore not initialised")
	}
	return s.db.Has(key)
}
