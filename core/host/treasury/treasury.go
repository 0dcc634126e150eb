// Package treasury implements the treasury ledger host surface: balances
// keyed by fixed-length address bytes, with overflow-checked transfers.
// Grounded on original_source/vm_py/runtime/treasury_api.go and the
// teacher's account/balance style (core/account_and_balance_operations.go).
package treasury

import (
	"math/big"
	"sync"

	"github.com/animica-labs/pyvm/core/vmerrors"
)

const (
	AddressLen     = 32
	MaxBalanceBits = 256
)

// ZeroAddress is the all-zero address of AddressLen bytes (mirrors
// treasury_api.py's _DEFAULT_SELF); nothing in this module passes it as a
// default.
var ZeroAddress = make([]byte, AddressLen)

var maxBalance = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), MaxBalanceBits), big.NewInt(1))

// Backend is the host-pluggable treasury interface. The default is an
// in-process ledger; hosts may forward to their own execution state.
type Backend interface {
	Balance(addr []byte) (*big.Int, error)
	Transfer(from, to []byte, amount *big.Int) error
	Credit(addr []byte, amount *big.Int) error
	Debit(addr []byte, amount *big.Int) error
}

// Ledger is the default in-process treasury backend.
type Ledger struct {
	mu       sync.Mutex
	balances map[string]*big.Int
}

// NewLedger constructs an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[string]*big.Int)}
}

func checkAddr(addr []byte) error {
	if len(addr) != AddressLen {
		return vmerrors.New(vmerrors.CodeVMError, "address must be exactly 32 bytes", map[string]any{"length": len(addr)})
	}
	return nil
}

func checkAmount(amount *big.Int) error {
	if amount.Sign() < 0 {
		return vmerrors.New(vmerrors.CodeVMError, "amount must be non-negative", nil)
	}
	if amount.BitLen() > MaxBalanceBits {
		return vmerrors.New(vmerrors.CodeVMError, "amount exceeds max balance bits", map[string]any{"bits": amount.BitLen()})
	}
	return nil
}

func addChecked(a, b *big.Int) (*big.Int, error) {
	sum := new(big.Int).Add(a, b)
	if sum.Cmp(maxBalance) > 0 {
		return nil, vmerrors.New(vmerrors.CodeVMError, "treasury balance overflow", nil)
	}
	return sum, nil
}

// Balance returns the balance for addr, zero if never credited.
func (l *Ledger) Balance(addr []byte) (*big.Int, error) {
	if err := checkAddr(addr); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.balances[string(addr)]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

// Credit is a host/test-only helper that increases addr's balance without
// debiting anywhere (mirrors treasury_api.py's credit()).
func (l *Ledger) Credit(addr []byte, amount *big.Int) error {
	if err := checkAddr(addr); err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	cur := l.balances[string(addr)]
	if cur == nil {
		cur = big.NewInt(0)
	}
	newBal, err := addChecked(cur, amount)
	if err != nil {
		return err
	}
	l.balances[string(addr)] = newBal
	return nil
}

// Debit is a host/test-only helper that decreases addr's balance without
// crediting anywhere (mirrors treasury_api.py's debit()).
func (l *Ledger) Debit(addr []byte, amount *big.Int) error {
	if err := checkAddr(addr); err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	cur := l.balances[string(addr)]
	if cur == nil {
		cur = big.NewInt(0)
	}
	if cur.Cmp(amount) < 0 {
		return vmerrors.New(vmerrors.CodeVMError, "insufficient balance", map[string]any{"balance": cur.String(), "amount": amount.String()})
	}
	l.balances[string(addr)] = new(big.Int).Sub(cur, amount)
	return nil
}

// Transfer atomically debits from and credits to within the call. A
// zero-amount transfer is a no-op.
func (l *Ledger) Transfer(from, to []byte, amount *big.Int) error {
	if err := checkAddr(from); err != nil {
		return err
	}
	if err := checkAddr(to); err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fromBal := l.balances[string(from)]
	if fromBal == nil {
		fromBal = big.NewInt(0)
	}
	if fromBal.Cmp(amount) < 0 {
		return vmerrors.New(vmerrors.CodeVMError, "insufficient balance", map[string]any{"balance": fromBal.String(), "amount": amount.String()})
	}
	toBal := l.balances[string(to)]
	if toBal == nil {
		toBal = big.NewInt(0)
	}
	newTo, err := addChecked(toBal, amount)
	if err != nil {
		return err
	}
	l.balances[string(from)] = new(big.Int).Sub(fromBal, amount)
	l.balances[string(to)] = newTo
	return nil
}

// Reset clears all balances. A test hook mirroring treasury_api.py's
// _reset_ledger.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances = make(map[string]*big.Int)
}

// SetBalance force-sets a balance for test fixtures, mirroring
// treasury_api.py's _set_balance.
func (l *Ledger) SetBalance(addr []byte, amount *big.Int) error {
	if err := checkAddr(addr); err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[string(addr)] = new(big.Int).Set(amount)
	return nil
}
