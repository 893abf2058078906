package storage

import (
	"errors"

	"github.com/ethereum/go-ethereum/rlp"
)

// KVStore layers an RLP codec over a raw Database so callers can persist
// typed records without touching byte slices. It satisfies the storage
// boundary the conversion engine's registry, policy store and supply tracker
// are written against.
type KVStore struct {
	db Database
}

// NewKVStore wraps the provided backend.
func NewKVStore(db Database) *KVStore {
	return &KVStore{db: db}
}

// KVGet decodes the record stored under key into out. It reports false with a
// nil error when the key is absent.
func (s *KVStore) KVGet(key []byte, out interface{}) (bool, error) {
	if s == nil || s.db == nil {
		return false, errors.New("storage: kv store not initialised")
	}
	raw, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVPut encodes the record and stores it under key.
func (s *KVStore) KVPut(key []byte, value interface{}) error {
	if s == nil || s.db == nil {
		return errors.New("storage: kv store not initialised")
	}
	raw, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return s.db.Put(key, raw)
}

// KVDelete removes the record stored under key. Deleting an absent key is not
// an error.
func (s *KVStore) KVDelete(key []byte) error {
	if s == nil || s.db == nil {
		return errors.New("storage: kv store not initialised")
	}
	return s.db.Delete(key)
}
