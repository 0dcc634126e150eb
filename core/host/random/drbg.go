// Package random implements the deterministic PRNG exposed to contracts:
// SHA3-256 counter-mode with domain separation. Grounded on
// original_source/vm_py/runtime/random_api.py.
package random

import (
	"encoding/binary"
	"math/big"

	"github.com/animica-labs/pyvm/core/hashapi"
	"github.com/animica-labs/pyvm/core/vmerrors"
)

var (
	domainInit  = []byte("vm/random/init/v1")
	domainBlock = []byte("vm/random/block/v1")
)

// MaxRequest caps a single read() call, matching random_api.py's _MAX_REQUEST.
const MaxRequest = 1 << 24

// DRBG is a deterministic random-bit generator. Its entire state is a
// function of (seed, nonce, info); two DRBGs constructed with the same
// inputs produce identical output streams.
type DRBG struct {
	state   [32]byte
	counter uint64
	buf     []byte
}

// New seeds a DRBG from (seed, nonce, info), all plain byte strings.
func New(seed, nonce, info []byte) *DRBG {
	payload := make([]byte, 0, len(seed)+1+len(nonce)+1+len(info))
	payload = append(payload, seed...)
	payload = append(payload, '|')
	payload = append(payload, nonce...)
	payload = append(payload, '|')
	payload = append(payload, info...)
	return &DRBG{state: hashapi.Sha3_256(payload, domainInit)}
}

func (d *DRBG) refill() {
	var ctr [8]byte
	binary.LittleEndian.PutUint64(ctr[:], d.counter)
	payload := make([]byte, 0, 32+8)
	payload = append(payload, d.state[:]...)
	payload = append(payload, ctr[:]...)
	block := hashapi.Sha3_256(payload, domainBlock)
	d.buf = append(d.buf, block[:]...)
	d.counter++
}

// Read returns n deterministic bytes drawn from the stream.
func (d *DRBG) Read(n int) ([]byte, error) {
	if n < 0 || n > MaxRequest {
		return nil, vmerrors.New(vmerrors.CodeVMError, "random read size out of bounds", map[string]any{"n": n, "max": MaxRequest})
	}
	for len(d.buf) < n {
		d.refill()
	}
	out := make([]byte, n)
	copy(out, d.buf[:n])
	d.buf = d.buf[n:]
	return out, nil
}

// U64 returns the next 8 bytes of the stream as a big-endian uint64.
func (d *DRBG) U64() (uint64, error) {
	b, err := d.Read(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// RandRange returns a value in [0, n) via unbiased rejection sampling
// against threshold = floor(2^64/n) * n.
func (d *DRBG) RandRange(n uint64) (uint64, error) {
	if n == 0 {
		return 0, vmerrors.New(vmerrors.CodeVMError, "randrange bound must be positive", nil)
	}
	if n == 1 {
		return 0, nil
	}
	// rem is 2^64 mod n, so the threshold is 2^64 - rem; when n divides 2^64
	// the threshold is 2^64 itself and every draw is kept.
	rem := (^uint64(0)%n + 1) % n
	for {
		v, err := d.U64()
		if err != nil {
			return 0, err
		}
		if rem == 0 || v < -rem {
			return v % n, nil
		}
	}
}

// Fork derives an independent child DRBG via
// sha3_256(state + "|fork|" + label, domain="vm/random/init/v1").
func (d *DRBG) Fork(label []byte) *DRBG {
	payload := make([]byte, 0, 32+6+len(label))
	payload = append(payload, d.state[:]...)
	payload = append(payload, []byte("|fork|")...)
	payload = append(payload, label...)
	return &DRBG{state: hashapi.Sha3_256(payload, domainInit)}
}

// FromTxSeed builds a DRBG seeded from a transaction hash, mirroring
// random_api.py's from_tx_seed. tx_hash must be non-empty.
func FromTxSeed(txHash, caller, salt []byte) (*DRBG, error) {
	if len(txHash) == 0 {
		return nil, vmerrors.New(vmerrors.CodeVMError, "tx_hash must be non-empty", nil)
	}
	return New(txHash, caller, salt), nil
}

// RandomBytes is a convenience one-shot: seed a DRBG and read n bytes.
func RandomBytes(n int, seed, nonce, info []byte) ([]byte, error) {
	return New(seed, nonce, info).Read(n)
}

// bigFromUint64 is a small helper kept for callers that need *big.Int results
// from RandRange without re-deriving the conversion inline.
func bigFromUint64(v uint64) *big.Int {
	return new(big.Int).SetUint64(v)
}
