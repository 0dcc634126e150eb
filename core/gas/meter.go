package gas

import (
	"github.com/animica-labs/pyvm/core/vmerrors"
)

// Meter tracks gas consumption for a single call. Fields mirror
// original_source/vm_py/runtime/gasmeter.py's GasMeter exactly.
type Meter struct {
	limit      uint64
	used       uint64
	refundPool uint64
}

// NewMeter constructs a Meter with the given gas limit.
func NewMeter(limit uint64) *Meter {
	return &Meter{limit: limit}
}

// Limit returns the configured gas limit.
func (m *Meter) Limit() uint64 { return m.limit }

// Used returns gas consumed so far.
func (m *Meter) Used() uint64 { return m.used }

// RefundPool returns the accumulated, not-yet-applied refund pool.
func (m *Meter) RefundPool() uint64 { return m.refundPool }

// Remaining returns limit - used.
func (m *Meter) Remaining() uint64 { return m.limit - m.used }

// Consume charges n gas. On insufficient gas it raises out_of_gas and
// leaves (used, refundPool) unchanged — consume never partially applies.
func (m *Meter) Consume(n uint64) error {
	if m.used+n > m.limit {
		return vmerrors.New(vmerrors.CodeOutOfGas, "out of gas", map[string]any{
			"used": m.used, "requested": n, "limit": m.limit,
		})
	}
	m.used += n
	return nil
}

// Refund adds n to the refund pool. It never reduces used; refunds are only
// realized at Finalize (SPEC_FULL.md §9 open question, resolved finalize-only).
func (m *Meter) Refund(n uint64) {
	m.refundPool += n
}

// Finalize computes the effective gas used after applying at most
// floor(used*ratio) of the refund pool. ratio must be in [0,1].
func (m *Meter) Finalize(maxRefundRatio float64) uint64 {
	if maxRefundRatio < 0 {
		maxRefundRatio = 0
	}
	if maxRefundRatio > 1 {
		maxRefundRatio = 1
	}
	cap := uint64(float64(m.used) * maxRefundRatio)
	applied := m.refundPool
	if applied > cap {
		applied = cap
	}
	if applied > m.used {
		applied = m.used
	}
	return m.used - applied
}

// Snapshot captures (used, refundPool) for a speculative region.
type Snapshot struct {
	Used       uint64
	RefundPool uint64
}

// Snapshot returns the current state for later Restore.
func (m *Meter) Snapshot() Snapshot {
	return Snapshot{Used: m.used, RefundPool: m.refundPool}
}

// Restore resets the meter to a previously captured Snapshot.
func (m *Meter) Restore(s Snapshot) {
	m.used = s.Used
	m.refundPool = s.RefundPool
}

// Checkpoint runs fn under a snapshot, rolling back automatically if fn
// returns a non-nil error. Mirrors gasmeter.py's checkpoint() contextmanager.
func (m *Meter) Checkpoint(fn func() error) error {
	snap := m.Snapshot()
	if err := fn(); err != nil {
		m.Restore(snap)
		return err
	}
	return nil
}
