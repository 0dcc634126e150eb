package engine_test

import (
	"context"
	"math/big"
	"testing"

	"github.com/animica-labs/pyvm/core/engine"
	"github.com/animica-labs/pyvm/core/gas"
	"github.com/animica-labs/pyvm/core/host/storage"
	"github.com/animica-labs/pyvm/core/instr"
	"github.com/animica-labs/pyvm/core/resource"
	"github.com/animica-labs/pyvm/core/vmerrors"
	"github.com/animica-labs/pyvm/core/vmtypes"
)

func newSession(limit uint64) *engine.Session {
	sess := engine.NewSession()
	sess.Meter = gas.NewMeter(limit)
	sess.Guard = resource.New(
		[]string{resource.CapBlobPin, resource.CapComputeAIEnqueue, resource.CapComputeQuantum, resource.CapZKVerify, resource.CapRandomRead, resource.CapTreasuryTransfer},
		resource.Limits{MaxBlobBytes: 1 << 20, MaxAIUnits: 10, MaxQuantumUnits: 10, MaxZKProofs: 10, MaxRandomBytes: 1 << 20, MaxTreasuryTransfers: 10},
	)
	sess.Storage = storage.New(storage.NewMemoryBackend())
	return sess
}

func constInt(n int64) instr.Instr {
	s := big.NewInt(n).String()
	return instr.Instr{Op: instr.ILoadConst, ConstInt: &s}
}

// addProg builds a single-block Prog returning the sum of its two parameters,
// grounded on the "Counter" scenario from spec.md's testable properties:
// a function body that loads names, applies a binop, and returns.
func addProg() *instr.Prog {
	blk := &instr.Block{
		Label: "entry",
		Instrs: []instr.Instr{
			{Op: instr.ILoadName, Name: "a"},
			{Op: instr.ILoadName, Name: "b"},
			{Op: instr.IBinOp, OpName: "add"},
			{Op: instr.IReturn},
		},
	}
	return &instr.Prog{EntryLabel: "entry", Blocks: []instr.NamedBlock{{Label: "entry", Blk: blk}}}
}

func TestRunAddReturnsSum(t *testing.T) {
	sess := newSession(10_000)
	res, err := engine.Run(context.Background(), addProg(), []string{"a", "b"}, []vmtypes.Value{vmtypes.NewIntFromInt64(2), vmtypes.NewIntFromInt64(3)}, sess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ReturnValue.Kind != vmtypes.KindInt || res.ReturnValue.Int.Int64() != 5 {
		t.Fatalf("return = %+v, want int 5", res.ReturnValue)
	}
	if res.GasUsed == 0 {
		t.Fatalf("expected nonzero gas used")
	}
	if res.Steps != 4 {
		t.Fatalf("steps = %d, want 4", res.Steps)
	}
}

func TestRunOutOfGas(t *testing.T) {
	sess := newSession(1)
	_, err := engine.Run(context.Background(), addProg(), []string{"a", "b"}, []vmtypes.Value{vmtypes.NewIntFromInt64(1), vmtypes.NewIntFromInt64(1)}, sess)
	if err == nil {
		t.Fatalf("expected out of gas error")
	}
	if !vmerrors.IsCode(err, vmerrors.CodeOutOfGas) {
		t.Fatalf("wrong error code: %v", err)
	}
}

func TestRunStepLimitExceeded(t *testing.T) {
	// entry jumps to itself forever; the step limit must cut it short rather
	// than the gas meter, since the cost of a bare jump can be cheap.
	blk := &instr.Block{
		Label:  "entry",
		Instrs: []instr.Instr{{Op: instr.IJump, Label: "entry"}},
	}
	prog := &instr.Prog{EntryLabel: "entry", Blocks: []instr.NamedBlock{{Label: "entry", Blk: blk}}}

	sess := newSession(1_000_000_000)
	sess.StepLimit = 5
	_, err := engine.Run(context.Background(), prog, nil, nil, sess)
	if err == nil {
		t.Fatalf("expected step limit error")
	}
}

func TestArgumentCountMismatch(t *testing.T) {
	sess := newSession(10_000)
	_, err := engine.Run(context.Background(), addProg(), []string{"a", "b"}, []vmtypes.Value{vmtypes.NewIntFromInt64(1)}, sess)
	if err == nil {
		t.Fatalf("expected argument count mismatch error")
	}
}

func TestStackUnderflowOnBareReturn(t *testing.T) {
	blk := &instr.Block{Label: "entry", Instrs: []instr.Instr{{Op: instr.IReturn}}}
	prog := &instr.Prog{EntryLabel: "entry", Blocks: []instr.NamedBlock{{Label: "entry", Blk: blk}}}
	sess := newSession(10_000)
	_, err := engine.Run(context.Background(), prog, nil, nil, sess)
	if err == nil {
		t.Fatalf("expected stack underflow error")
	}
}

func TestStorageRoundTripThroughCall(t *testing.T) {
	// VALUE := 7; return VALUE -- via storage.set_int/storage.get_int calls,
	// the Counter contract's init/get shape from spec.md §8.
	key := instr.Instr{Op: instr.ILoadConst, ConstBytes: []byte("VALUE")}
	blk := &instr.Block{
		Label: "entry",
		Instrs: []instr.Instr{
			key,
			constInt(7),
			{Op: instr.ICall, Name: "storage.set_int", NPos: 2},
			{Op: instr.IPop},
			{Op: instr.ILoadConst, ConstBytes: []byte("VALUE")},
			{Op: instr.ICall, Name: "storage.get_int", NPos: 1},
			{Op: instr.IReturn},
		},
	}
	prog := &instr.Prog{EntryLabel: "entry", Blocks: []instr.NamedBlock{{Label: "entry", Blk: blk}}}

	sess := newSession(100_000)
	res, err := engine.Run(context.Background(), prog, nil, nil, sess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ReturnValue.Kind != vmtypes.KindInt || res.ReturnValue.Int.Int64() != 7 {
		t.Fatalf("return = %+v, want int 7", res.ReturnValue)
	}
}

func TestTreasuryTransferRequiresCapability(t *testing.T) {
	blk := &instr.Block{
		Label: "entry",
		Instrs: []instr.Instr{
			{Op: instr.ILoadConst, ConstBytes: []byte("from")},
			{Op: instr.ILoadConst, ConstBytes: []byte("to")},
			constInt(1),
			{Op: instr.ICall, Name: "treasury.transfer", NPos: 3},
			{Op: instr.IReturn},
		},
	}
	prog := &instr.Prog{EntryLabel: "entry", Blocks: []instr.NamedBlock{{Label: "entry", Blk: blk}}}

	sess := newSession(100_000)
	sess.Guard = resource.New(nil, resource.Limits{}) // no capabilities declared
	_, err := engine.Run(context.Background(), prog, nil, nil, sess)
	if err == nil {
		t.Fatalf("expected capability denied error")
	}
}

func TestDivisionByZeroYieldsZero(t *testing.T) {
	blk := &instr.Block{
		Label: "entry",
		Instrs: []instr.Instr{
			constInt(10),
			constInt(0),
			{Op: instr.IBinOp, OpName: "floordiv"},
			{Op: instr.IReturn},
		},
	}
	prog := &instr.Prog{EntryLabel: "entry", Blocks: []instr.NamedBlock{{Label: "entry", Blk: blk}}}
	sess := newSession(10_000)
	res, err := engine.Run(context.Background(), prog, nil, nil, sess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ReturnValue.Int.Int64() != 0 {
		t.Fatalf("return = %v, want 0", res.ReturnValue.Int)
	}
}

func TestBytesConcatenationViaAdd(t *testing.T) {
	blk := &instr.Block{
		Label: "entry",
		Instrs: []instr.Instr{
			{Op: instr.ILoadConst, ConstBytes: []byte("foo")},
			{Op: instr.ILoadConst, ConstBytes: []byte("bar")},
			{Op: instr.IBinOp, OpName: "add"},
			{Op: instr.IReturn},
		},
	}
	prog := &instr.Prog{EntryLabel: "entry", Blocks: []instr.NamedBlock{{Label: "entry", Blk: blk}}}
	sess := newSession(10_000)
	res, err := engine.Run(context.Background(), prog, nil, nil, sess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(res.ReturnValue.Bytes) != "foobar" {
		t.Fatalf("return = %q, want %q", res.ReturnValue.Bytes, "foobar")
	}
}

func TestConditionalJump(t *testing.T) {
	// if 1 < 2: return 1 else return 0
	thenBlk := &instr.Block{Label: "then", Instrs: []instr.Instr{constInt(1), {Op: instr.IReturn}}}
	elseBlk := &instr.Block{Label: "else", Instrs: []instr.Instr{constInt(0), {Op: instr.IReturn}}}
	entry := &instr.Block{
		Label: "entry",
		Instrs: []instr.Instr{
			constInt(1),
			constInt(2),
			{Op: instr.ICompare, OpName: "lt"},
			{Op: instr.IJumpIfTrue, Label: "then"},
			{Op: instr.IJump, Label: "else"},
		},
	}
	prog := &instr.Prog{EntryLabel: "entry", Blocks: []instr.NamedBlock{
		{Label: "entry", Blk: entry},
		{Label: "then", Blk: thenBlk},
		{Label: "else", Blk: elseBlk},
	}}
	sess := newSession(10_000)
	res, err := engine.Run(context.Background(), prog, nil, nil, sess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ReturnValue.Int.Int64() != 1 {
		t.Fatalf("return = %v, want 1", res.ReturnValue.Int)
	}
}

func TestCallUnknownTargetFails(t *testing.T) {
	blk := &instr.Block{
		Label: "entry",
		Instrs: []instr.Instr{{Op: instr.ICall, Name: "nope.nope", NPos: 0}, {Op: instr.IReturn}},
	}
	prog := &instr.Prog{EntryLabel: "entry", Blocks: []instr.NamedBlock{{Label: "entry", Blk: blk}}}
	sess := newSession(10_000)
	_, err := engine.Run(context.Background(), prog, nil, nil, sess)
	if err == nil {
		t.Fatalf("expected unknown call target error")
	}
}
