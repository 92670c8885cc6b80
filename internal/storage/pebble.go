// Package storage is the node-local value store backing a server node.
// Values carry an 8-byte expiry header so TTLs survive restarts.
package storage

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/rs/zerolog"
)

// expiryHeaderLen prefixes every stored value: big-endian unix
// nanoseconds of expiry, zero meaning no expiry.
const expiryHeaderLen = 8

type PebbleStore struct {
	db *pebble.DB

	logger zerolog.Logger
}

func NewPebbleStore(path string, logger zerolog.Logger) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{
		db:     db,
		logger: logger.With().Str("layer", "storage").Logger(),
	}, nil
}

// Get returns the value for key, or (nil, false) when the key is absent
// or its TTL has elapsed. Expired entries are deleted lazily.
func (s *PebbleStore) Get(key []byte) ([]byte, bool, error) {
	raw, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}

	value, live := decodeValue(raw)
	// Copy before closing, raw is only valid while closer is open.
	var result []byte
	if live {
		result = make([]byte, len(value))
		copy(result, value)
	}

	if err := closer.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to close pebble value")
	}

	if !live {
		if err := s.db.Delete(key, pebble.NoSync); err != nil {
			s.logger.Warn().Err(err).Msg("failed to delete expired key")
		}
		return nil, false, nil
	}
	return result, true, nil
}

// Exists reports whether key holds a live value, without copying it.
func (s *PebbleStore) Exists(key []byte) (bool, error) {
	raw, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	_, live := decodeValue(raw)
	if err := closer.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to close pebble value")
	}
	return live, nil
}

// Set stores value under key. A zero ttl stores without expiry.
func (s *PebbleStore) Set(key, value []byte, ttl time.Duration) error {
	return s.db.Set(key, encodeValue(value, ttl), pebble.Sync)
}

func (s *PebbleStore) Delete(key []byte) error {
	return s.db.Delete(key, pebble.Sync)
}

// Batch groups writes so a bulk set commits with a single sync.
type Batch struct {
	batch *pebble.Batch
}

func (s *PebbleStore) NewBatch() *Batch {
	return &Batch{batch: s.db.NewBatch()}
}

func (b *Batch) Set(key, value []byte, ttl time.Duration) error {
	return b.batch.Set(key, encodeValue(value, ttl), nil)
}

func (b *Batch) Delete(key []byte) error {
	return b.batch.Delete(key, nil)
}

func (b *Batch) Commit() error {
	return b.batch.Commit(pebble.Sync)
}

func (b *Batch) Close() error {
	return b.batch.Close()
}

// GetAllKeys lists every stored key, including expired ones awaiting
// lazy deletion.
func (s *PebbleStore) GetAllKeys() ([][]byte, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var keys [][]byte
	for iter.First(); iter.Valid(); iter.Next() {
		key := make([]byte, len(iter.Key()))
		copy(key, iter.Key())
		keys = append(keys, key)
	}
	return keys, nil
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}

func encodeValue(value []byte, ttl time.Duration) []byte {
	buf := make([]byte, expiryHeaderLen+len(value))
	if ttl > 0 {
		binary.BigEndian.PutUint64(buf, uint64(time.Now().Add(ttl).UnixNano()))
	}
	copy(buf[expiryHeaderLen:], value)
	return buf
}

// decodeValue strips the expiry header; live is false for expired or
// malformed entries.
func decodeValue(raw []byte) (value []byte, live bool) {
	if len(raw) < expiryHeaderLen {
		return nil, false
	}
	expiry := binary.BigEndian.Uint64(raw)
	if expiry != 0 && time.Now().UnixNano() >= int64(expiry) {
		return nil, false
	}
	return raw[expiryHeaderLen:], true
}
