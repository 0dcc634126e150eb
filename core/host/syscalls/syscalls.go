// Package syscalls implements the asynchronous capability surface:
// blob_pin, ai_enqueue, quantum_enqueue, read_result, zk_verify. Grounded on
// original_source/vm_py/runtime/syscalls_api.py; the default provider is the
// deterministic "local no-op" placeholder described there.
package syscalls

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/animica-labs/pyvm/core/hashapi"
	"github.com/animica-labs/pyvm/core/vmerrors"
)

const (
	InputMax = 1 << 20
	QueueMax = 1024
)

// BlobPinResult is returned by blob_pin.
type BlobPinResult struct {
	Commitment string
	Size       int
	Namespace  int
}

// EnqueueResult is returned by ai_enqueue/quantum_enqueue.
type EnqueueResult struct {
	TaskID   string
	Accepted bool
}

// ReadResult is returned by read_result.
type ReadResult struct {
	Found  bool
	Ready  bool
	Result []byte
}

// VerifyResult is returned by zk_verify.
type VerifyResult struct {
	OK    bool
	Units uint64
}

// Provider is the host-pluggable capability backend.
type Provider interface {
	BlobPin(namespace int, data []byte) (BlobPinResult, error)
	AIEnqueue(model, prompt []byte) (EnqueueResult, error)
	QuantumEnqueue(circuit []byte, shots int) (EnqueueResult, error)
	ReadResult(taskID string) (ReadResult, error)
	ZKVerify(circuit, proof, publicInput []byte) (VerifyResult, error)
}

// LocalNoOpProvider never actually dispatches any async work: it validates
// inputs, derives deterministic placeholder task IDs, and never reports
// ready=true. It exists so a standalone node can run contracts that declare
// these capabilities without a real co-processor attached.
type LocalNoOpProvider struct {
	mu       sync.Mutex
	pending  int
	identity uuid.UUID
}

// NewLocalNoOpProvider constructs the default provider. identity is a
// UUID drawn once per provider instance and exposed only through
// Identity(); nothing logs it and it never reaches deterministic output (see SPEC_FULL.md's google/uuid wiring note).
func NewLocalNoOpProvider() *LocalNoOpProvider {
	return &LocalNoOpProvider{identity: uuid.New()}
}

// Identity returns this provider instance's own process-local identifier.
func (p *LocalNoOpProvider) Identity() uuid.UUID { return p.identity }

func taskID(kind string, parts ...[]byte) string {
	joined := []byte(kind)
	for _, part := range parts {
		joined = append(joined, '|')
		joined = append(joined, part...)
	}
	h := hashapi.Sha3_256(joined, []byte("cap/task_id/v0"))
	return hashapi.HexPrefixed(h[:])
}

func checkInput(data []byte) error {
	if len(data) > InputMax {
		return vmerrors.New(vmerrors.CodeVMError, "syscall input too large", map[string]any{"length": len(data), "max": InputMax})
	}
	return nil
}

func (p *LocalNoOpProvider) BlobPin(namespace int, data []byte) (BlobPinResult, error) {
	if err := checkInput(data); err != nil {
		return BlobPinResult{}, err
	}
	domain := []byte(fmt.Sprintf("cap/blob_pin/local_stub/ns:%d", namespace))
	h := hashapi.Sha3_256(data, domain)
	return BlobPinResult{
		Commitment: hashapi.HexPrefixed(h[:]),
		Size:       len(data),
		Namespace:  namespace,
	}, nil
}

func (p *LocalNoOpProvider) enqueue(kind string, parts ...[]byte) (EnqueueResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending >= QueueMax {
		return EnqueueResult{}, vmerrors.New(vmerrors.CodeVMError, "syscall pending queue full", map[string]any{"max": QueueMax})
	}
	p.pending++
	return EnqueueResult{TaskID: taskID(kind, parts...), Accepted: true}, nil
}

func (p *LocalNoOpProvider) AIEnqueue(model, prompt []byte) (EnqueueResult, error) {
	if err := checkInput(prompt); err != nil {
		return EnqueueResult{}, err
	}
	return p.enqueue("ai_enqueue", model, prompt)
}

func (p *LocalNoOpProvider) QuantumEnqueue(circuit []byte, shots int) (EnqueueResult, error) {
	if err := checkInput(circuit); err != nil {
		return EnqueueResult{}, err
	}
	return p.enqueue("quantum_enqueue", circuit, []byte(fmt.Sprintf("%d", shots)))
}

func (p *LocalNoOpProvider) ReadResult(taskID string) (ReadResult, error) {
	return ReadResult{Found: false, Ready: false, Result: nil}, nil
}

func (p *LocalNoOpProvider) ZKVerify(circuit, proof, publicInput []byte) (VerifyResult, error) {
	if err := checkInput(proof); err != nil {
		return VerifyResult{}, err
	}
	return VerifyResult{OK: false, Units: 0}, nil
}
