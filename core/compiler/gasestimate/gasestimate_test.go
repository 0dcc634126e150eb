package gasestimate_test

import (
	"testing"

	"github.com/animica-labs/pyvm/core/compiler/gasestimate"
	"github.com/animica-labs/pyvm/core/gas"
	"github.com/animica-labs/pyvm/core/instr"
)

func strProg() (*instr.Prog, gas.Table) {
	blk := &instr.Block{
		Label: "entry",
		Instrs: []instr.Instr{
			{Op: instr.ILoadConst, ConstBytes: []byte("a")},
			{Op: instr.IReturn},
		},
	}
	return &instr.Prog{EntryLabel: "entry", Blocks: []instr.NamedBlock{{Label: "entry", Blk: blk}}}, gas.DefaultTable()
}

func TestEstimateStraightLineProgram(t *testing.T) {
	prog, table := strProg()
	res, err := gasestimate.Estimate(prog, table, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := table.Cost("load_const") + table.Cost("return")
	if res.TotalUpperBound != want {
		t.Fatalf("total = %d, want %d", res.TotalUpperBound, want)
	}
}

func TestEstimateBranchTakesWorstCase(t *testing.T) {
	// entry jumps to either cheap or expensive depending on a runtime value
	// the estimator can't resolve statically, so it must take the max.
	cheap := &instr.Block{Label: "cheap", Instrs: []instr.Instr{{Op: instr.IReturn}}}
	expensive := &instr.Block{Label: "expensive", Instrs: []instr.Instr{
		{Op: instr.ILoadConst, ConstBytes: []byte("x")},
		{Op: instr.ILoadConst, ConstBytes: []byte("y")},
		{Op: instr.IBinOp, OpName: "add"},
		{Op: instr.IReturn},
	}}
	entry := &instr.Block{
		Label:  "entry",
		Instrs: []instr.Instr{{Op: instr.IJumpIfTrue, Label: "cheap"}},
		Fallthrough: strPtr("expensive"),
	}
	prog := &instr.Prog{EntryLabel: "entry", Blocks: []instr.NamedBlock{
		{Label: "entry", Blk: entry},
		{Label: "cheap", Blk: cheap},
		{Label: "expensive", Blk: expensive},
	}}
	table := gas.DefaultTable()
	res, err := gasestimate.Estimate(prog, table, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entryCost := table.Cost("jump_if_true")
	cheapCost := table.Cost("return")
	expensiveCost := 2*table.Cost("load_const") + table.Cost("binop_add") + table.Cost("bytes_cat") + table.Cost("return")
	want := entryCost + expensiveCost
	if cheapCost > expensiveCost {
		want = entryCost + cheapCost
	}
	if res.TotalUpperBound != want {
		t.Fatalf("total = %d, want %d", res.TotalUpperBound, want)
	}
}

func TestEstimateLoopStopsAtUnrollBound(t *testing.T) {
	// a block that jumps to itself: without the loop_unroll cap this would
	// recurse forever.
	blk := &instr.Block{Label: "loop", Instrs: []instr.Instr{
		{Op: instr.ILoadConst, ConstBytes: []byte("x")},
		{Op: instr.IJump, Label: "loop"},
	}}
	prog := &instr.Prog{EntryLabel: "loop", Blocks: []instr.NamedBlock{{Label: "loop", Blk: blk}}}
	table := gas.DefaultTable()
	res, err := gasestimate.Estimate(prog, table, 3, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TotalUpperBound == 0 {
		t.Fatalf("expected a nonzero bound even though the loop never returns")
	}
}

func TestEstimateFailsWhenStatesCapExceeded(t *testing.T) {
	blk := &instr.Block{Label: "loop", Instrs: []instr.Instr{
		{Op: instr.ILoadConst, ConstBytes: []byte("x")},
		{Op: instr.IJump, Label: "loop"},
	}}
	prog := &instr.Prog{EntryLabel: "loop", Blocks: []instr.NamedBlock{{Label: "loop", Blk: blk}}}
	table := gas.DefaultTable()
	_, err := gasestimate.Estimate(prog, table, 1000, 5)
	if err == nil {
		t.Fatalf("expected the max_states cap to trip")
	}
}

func strPtr(s string) *string { return &s }
