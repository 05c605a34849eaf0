// Package programstore keeps encoded program images in a Pebble database,
// addressed by the blake2b hash of their encoding.
package programstore

import (
	"encoding/hex"
	"errors"
	"fmt"

	"jsjit/pkg/bytecode"

	"github.com/cockroachdb/pebble"
	"golang.org/x/crypto/blake2b"
)

// ErrNotFound is returned by Get for a key that was never stored.
var ErrNotFound = errors.New("program not found")

var keyPrefix = []byte("program/")

// Key identifies a program image.
type Key [32]byte

func (k Key) String() string { return hex.EncodeToString(k[:]) }

// ParseKey reads the hex form produced by Key.String.
func ParseKey(s string) (Key, error) {
	var k Key
	b, err := hex.DecodeString(s)
	if err != nil {
		return k, fmt.Errorf("parse key: %w", err)
	}
	if len(b) != len(k) {
		return k, fmt.Errorf("parse key: want %d bytes, got %d", len(k), len(b))
	}
	copy(k[:], b)
	return k, nil
}

// KeyOf returns the key code is stored under.
func KeyOf(code *bytecode.Code) Key {
	return blake2b.Sum256(bytecode.Encode(code))
}

func dbKey(k Key) []byte {
	return append(append([]byte{}, keyPrefix...), k[:]...)
}

// Store is a Pebble-backed program store.
type Store struct {
	db *pebble.DB
}

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open program store %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Put stores code and its nested codes. Storing the same program twice is
// a no-op that returns the same key.
func (s *Store) Put(code *bytecode.Code) (Key, error) {
	image := bytecode.Encode(code)
	k := Key(blake2b.Sum256(image))
	if err := s.db.Set(dbKey(k), image, pebble.Sync); err != nil {
		return k, fmt.Errorf("put %s: %w", k, err)
	}
	return k, nil
}

// Get decodes the program stored under k.
func (s *Store) Get(k Key) (*bytecode.Code, error) {
	image, closer, err := s.db.Get(dbKey(k))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, fmt.Errorf("get %s: %w", k, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", k, err)
	}
	defer closer.Close()
	if Key(blake2b.Sum256(image)) != k {
		return nil, fmt.Errorf("get %s: stored image does not match its key", k)
	}
	return bytecode.Decode(image)
}

// Delete removes the program stored under k, if any.
func (s *Store) Delete(k Key) error {
	if err := s.db.Delete(dbKey(k), pebble.Sync); err != nil {
		return fmt.Errorf("delete %s: %w", k, err)
	}
	return nil
}

// List returns every stored key in key order.
func (s *Store) List() ([]Key, error) {
	upper := append([]byte{}, keyPrefix...)
	upper[len(upper)-1]++
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: keyPrefix, UpperBound: upper})
	if err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}
	var keys []Key
	for iter.First(); iter.Valid(); iter.Next() {
		var k Key
		copy(k[:], iter.Key()[len(keyPrefix):])
		keys = append(keys, k)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}
	return keys, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
