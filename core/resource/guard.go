// Package resource implements the capability & resource mediator: a
// manifest-declared capability set plus numeric usage counters consulted by
// every host-surface operation. Grounded on
// original_source/vm_py/runtime/resource_caps.py.
package resource

import "github.com/animica-labs/pyvm/core/vmerrors"

// Capability string constants, matching resource_caps.py exactly.
const (
	CapBlobPin            = "blob.pin"
	CapComputeAIEnqueue   = "compute.ai.enqueue"
	CapComputeQuantum     = "compute.quantum.enqueue"
	CapComputeResultRead  = "compute.result.read"
	CapZKVerify           = "zk.verify"
	CapRandomRead         = "random.read"
	CapTreasuryTransfer   = "treasury.transfer"
)

// Limits holds the per-resource numeric budgets declared by a manifest.
// Each defaults to 0 (nothing allowed) absent explicit configuration.
type Limits struct {
	MaxBlobBytes         uint64
	MaxAIUnits           uint64
	MaxQuantumUnits      uint64
	MaxZKProofs          uint64
	MaxRandomBytes       uint64
	MaxTreasuryTransfers uint64
}

// Usage holds the running counters, one per resource kind.
type Usage struct {
	BlobBytes         uint64
	AIUnits           uint64
	QuantumUnits      uint64
	ZKProofs          uint64
	RandomBytes       uint64
	TreasuryTransfers uint64
}

// Guard mediates every host-surface call that maps to a declared capability.
type Guard struct {
	caps   map[string]bool
	limits Limits
	usage  Usage
}

// New constructs a Guard from an explicit capability set and limits.
func New(caps []string, limits Limits) *Guard {
	m := make(map[string]bool, len(caps))
	for _, c := range caps {
		m[c] = true
	}
	return &Guard{caps: m, limits: limits}
}

// Usage returns a snapshot of the current usage counters.
func (g *Guard) Usage() Usage { return g.usage }

func (g *Guard) requireCap(cap string) error {
	if !g.caps[cap] {
		return vmerrors.New(vmerrors.CodeCapabilityDenied, "capability not declared", map[string]any{"cap": cap})
	}
	return nil
}

func exhausted(kind string, used, limit uint64) error {
	return vmerrors.New(vmerrors.CodeResourceExhausted, "resource limit exceeded", map[string]any{
		"kind": kind, "used": used, "limit": limit,
	})
}

// UseBlobPin accounts amount bytes against the blob.pin capability. A
// zero-byte request is a no-op that does not even require the capability,
// matching resource_caps.py's early return.
func (g *Guard) UseBlobPin(amount uint64) error {
	if amount == 0 {
		return nil
	}
	if err := g.requireCap(CapBlobPin); err != nil {
		return err
	}
	newUsed := g.usage.BlobBytes + amount
	if newUsed > g.limits.MaxBlobBytes {
		return exhausted(CapBlobPin, newUsed, g.limits.MaxBlobBytes)
	}
	g.usage.BlobBytes = newUsed
	return nil
}

// UseAIUnits accounts amount AI compute units against compute.ai.enqueue.
func (g *Guard) UseAIUnits(amount uint64) error {
	if amount == 0 {
		return nil
	}
	if err := g.requireCap(CapComputeAIEnqueue); err != nil {
		return err
	}
	newUsed := g.usage.AIUnits + amount
	if newUsed > g.limits.MaxAIUnits {
		return exhausted(CapComputeAIEnqueue, newUsed, g.limits.MaxAIUnits)
	}
	g.usage.AIUnits = newUsed
	return nil
}

// UseQuantumUnits accounts amount quantum compute units.
func (g *Guard) UseQuantumUnits(amount uint64) error {
	if amount == 0 {
		return nil
	}
	if err := g.requireCap(CapComputeQuantum); err != nil {
		return err
	}
	newUsed := g.usage.QuantumUnits + amount
	if newUsed > g.limits.MaxQuantumUnits {
		return exhausted(CapComputeQuantum, newUsed, g.limits.MaxQuantumUnits)
	}
	g.usage.QuantumUnits = newUsed
	return nil
}

// UseZKVerify accounts one ZK proof verification.
func (g *Guard) UseZKVerify() error {
	if err := g.requireCap(CapZKVerify); err != nil {
		return err
	}
	newUsed := g.usage.ZKProofs + 1
	if newUsed > g.limits.MaxZKProofs {
		return exhausted(CapZKVerify, newUsed, g.limits.MaxZKProofs)
	}
	g.usage.ZKProofs = newUsed
	return nil
}

// UseRandomBytes accounts amount bytes read from the DRBG against random.read.
func (g *Guard) UseRandomBytes(amount uint64) error {
	if amount == 0 {
		return nil
	}
	if err := g.requireCap(CapRandomRead); err != nil {
		return err
	}
	newUsed := g.usage.RandomBytes + amount
	if newUsed > g.limits.MaxRandomBytes {
		return exhausted(CapRandomRead, newUsed, g.limits.MaxRandomBytes)
	}
	g.usage.RandomBytes = newUsed
	return nil
}

// UseTreasuryTransfer accounts one treasury transfer. Unlike the byte/unit
// counters, a transfer always counts 1 regardless of amount transferred.
func (g *Guard) UseTreasuryTransfer() error {
	if err := g.requireCap(CapTreasuryTransfer); err != nil {
		return err
	}
	newUsed := g.usage.TreasuryTransfers + 1
	if newUsed > g.limits.MaxTreasuryTransfers {
		return exhausted(CapTreasuryTransfer, newUsed, g.limits.MaxTreasuryTransfers)
	}
	g.usage.TreasuryTransfers = newUsed
	return nil
}

// FromManifest builds a Guard from a manifest's "resources" section.
func FromManifest(caps []string, limits map[string]uint64) *Guard {
	l := Limits{
		MaxBlobBytes:         limits["max_blob_bytes"],
		MaxAIUnits:           limits["max_ai_units"],
		MaxQuantumUnits:      limits["max_quantum_units"],
		MaxZKProofs:          limits["max_zk_proofs"],
		MaxRandomBytes:       limits["max_random_bytes"],
		MaxTreasuryTransfers: limits["max_treasury_transfers"],
	}
	return New(caps, l)
}
