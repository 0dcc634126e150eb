// Package storage implements the storage sub-surface: a bytes key/value
// store with big-endian unsigned integer helpers. Grounded on
// original_source/vm_py/runtime/storage_api.py.
package storage

import (
	"math/big"
	"sync"

	"github.com/animica-labs/pyvm/core/vmerrors"
)

const (
	MaxKeyBytes   = 64
	MaxValueBytes = 128 * 1024
)

// Backend is the host-pluggable storage interface contracts ultimately
// reach. Hosts may install an alternate implementation over their own
// execution state.
type Backend interface {
	Get(key []byte) ([]byte, bool, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	Exists(key []byte) (bool, error)
}

// MemoryBackend is the default in-process backend, safe for concurrent use.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryBackend constructs an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

func (m *MemoryBackend) Get(key []byte) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *MemoryBackend) Set(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	m.data[string(key)] = cp
	return nil
}

func (m *MemoryBackend) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key))
	return nil
}

func (m *MemoryBackend) Exists(key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[string(key)]
	return ok, nil
}

// Surface wraps a Backend with the key/value size validation contracts see.
type Surface struct {
	backend Backend
}

// New constructs a storage Surface over the given backend.
func New(backend Backend) *Surface {
	return &Surface{backend: backend}
}

func checkKey(k []byte) error {
	if len(k) < 1 || len(k) > MaxKeyBytes {
		return vmerrors.New(vmerrors.CodeValidationSize, "storage key out of bounds", map[string]any{
			"length": len(k), "max": MaxKeyBytes,
		})
	}
	return nil
}

func checkValue(v []byte) error {
	if len(v) > MaxValueBytes {
		return vmerrors.New(vmerrors.CodeValidationSize, "storage value too large", map[string]any{
			"length": len(v), "max": MaxValueBytes,
		})
	}
	return nil
}

// Get returns (value, found, error).
func (s *Surface) Get(key []byte) ([]byte, bool, error) {
	if err := checkKey(key); err != nil {
		return nil, false, err
	}
	return s.backend.Get(key)
}

// Set writes a value under key.
func (s *Surface) Set(key, value []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := checkValue(value); err != nil {
		return err
	}
	return s.backend.Set(key, value)
}

// Delete removes a key.
func (s *Surface) Delete(key []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	return s.backend.Delete(key)
}

// Exists reports whether key is present.
func (s *Surface) Exists(key []byte) (bool, error) {
	if err := checkKey(key); err != nil {
		return false, err
	}
	return s.backend.Exists(key)
}

// GetInt reads a big-endian unsigned integer (0..2^256-1), 0 if absent.
func (s *Surface) GetInt(key []byte) (*big.Int, error) {
	v, found, err := s.Get(key)
	if err != nil {
		return nil, err
	}
	if !found {
		return big.NewInt(0), nil
	}
	return new(big.Int).SetBytes(v), nil
}

// SetInt writes n as a minimal-byte big-endian unsigned integer; zero is
// encoded as a single 0x00 byte, matching storage_api.py's set_int.
func (s *Surface) SetInt(key []byte, n *big.Int) error {
	if n.Sign() < 0 {
		return vmerrors.New(vmerrors.CodeVMError, "negative value not representable", nil)
	}
	b := n.Bytes()
	if len(b) == 0 {
		b = []byte{0x00}
	}
	return s.Set(key, b)
}
