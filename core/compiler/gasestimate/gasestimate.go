// Package gasestimate computes a static gas upper bound for a compiled
// instruction program by walking its control-flow graph and taking the
// worst-case cost over every path reachable from the entry block (a
// backtracking depth-first search bounded by loop_unroll and max_states;
// nothing is memoized). Grounded on
// original_source/vm_py/compiler/gas_estimator.py's `_build_cfg` successor
// rules (recorded in DESIGN.md) and its loop_unroll/max_states defaults.
package gasestimate

import (
	"github.com/animica-labs/pyvm/core/gas"
	"github.com/animica-labs/pyvm/core/instr"
	"github.com/animica-labs/pyvm/core/vmerrors"
)

const (
	DefaultLoopUnroll = 8
	DefaultMaxStates  = 200_000
)

// BlockCost is the per-block instruction cost sum, for diagnostics.
type BlockCost struct {
	Label string
	Cost  uint64
}

// Result is the estimator's output shape.
type Result struct {
	TotalUpperBound uint64
	PerBlockCosts   []BlockCost
	LoopUnroll      int
	MaxStates       int
}

var errStatesCap = vmerrors.New(vmerrors.CodeCompileGeneric, "gas estimation exceeded max_states", nil)

// Estimate computes prog's static gas upper bound using table for
// per-instruction costs. loopUnroll/maxStates of 0 fall back to their
// package defaults.
func Estimate(prog *instr.Prog, table gas.Table, loopUnroll, maxStates int) (*Result, error) {
	if loopUnroll <= 0 {
		loopUnroll = DefaultLoopUnroll
	}
	if maxStates <= 0 {
		maxStates = DefaultMaxStates
	}
	e := &estimator{
		blockCost: map[string]uint64{},
		succ:      map[string][]string{},
		table:     table,
		loopUnroll: loopUnroll,
		maxStates:  maxStates,
	}
	for _, nb := range prog.Blocks {
		e.blockCost[nb.Label] = blockCost(nb.Blk, table)
		e.succ[nb.Label] = successors(nb.Blk)
	}
	total, err := e.worst(prog.EntryLabel, map[string]int{})
	if err != nil {
		return nil, err
	}
	res := &Result{TotalUpperBound: total, LoopUnroll: loopUnroll, MaxStates: maxStates}
	for _, nb := range prog.SortedBlocks() {
		res.PerBlockCosts = append(res.PerBlockCosts, BlockCost{Label: nb.Label, Cost: e.blockCost[nb.Label]})
	}
	return res, nil
}

type estimator struct {
	blockCost  map[string]uint64
	succ       map[string][]string
	table      gas.Table
	loopUnroll int
	maxStates  int
	states     int
}

func (e *estimator) worst(label string, visits map[string]int) (uint64, error) {
	visits[label]++
	defer func() { visits[label]-- }()

	e.states++
	if e.states > e.maxStates {
		return 0, errStatesCap
	}
	if visits[label] > e.loopUnroll+1 {
		return 0, nil
	}

	cost := e.blockCost[label]
	succs := e.succ[label]
	if len(succs) == 0 {
		return cost, nil
	}
	var best uint64
	for _, s := range succs {
		v, err := e.worst(s, visits)
		if err != nil {
			return 0, err
		}
		if v > best {
			best = v
		}
	}
	return cost + best, nil
}

// successors implements the CFG edge rules: a block ending in IReturn has
// none; IJump has its target; IJumpIfTrue/IJumpIfFalse have their target
// plus the block Fallthrough names (if any); anything else has the block
// Fallthrough names, if any. A conditional jump earlier in the block adds
// its target as well.
func successors(b *instr.Block) (out []string) {
	// irgen places the conditional jump of an if/else, an and/or or a
	// ternary before the end of a block; its target is a successor too.
	defer func() {
		for i := 0; i+1 < len(b.Instrs); i++ {
			if op := b.Instrs[i].Op; op == instr.IJumpIfTrue || op == instr.IJumpIfFalse {
				out = append(out, b.Instrs[i].Label)
			}
		}
	}()
	if len(b.Instrs) == 0 {
		if b.Fallthrough != nil {
			return []string{*b.Fallthrough}
		}
		return nil
	}
	last := b.Instrs[len(b.Instrs)-1]
	switch last.Op {
	case instr.IReturn:
		return nil
	case instr.IJump:
		return []string{last.Label}
	case instr.IJumpIfTrue, instr.IJumpIfFalse:
		out := []string{last.Label}
		if b.Fallthrough != nil {
			out = append(out, *b.Fallthrough)
		}
		return out
	default:
		if b.Fallthrough != nil {
			return []string{*b.Fallthrough}
		}
		return nil
	}
}

// blockCost sums per-instruction costs. Call cost follows
// call_base + n_pos*call_arg + n_kw*call_kwarg; storage and bytes-length
// host calls add the sload/sstore/bytes_len surcharge on top, mirroring the
// extra charge core/engine applies at those same call sites so the static
// bound never underestimates the metered run.
func blockCost(b *instr.Block, table gas.Table) uint64 {
	var total uint64
	for _, ins := range b.Instrs {
		total += instrCost(ins, table)
	}
	return total
}

func instrCost(ins instr.Instr, table gas.Table) uint64 {
	switch ins.Op {
	case instr.ILoadConst:
		return table.Cost("load_const")
	case instr.ILoadName:
		return table.Cost("load_name")
	case instr.IStoreName:
		return table.Cost("store_name")
	case instr.IAttrGet:
		return table.Cost("attr_get")
	case instr.ISubscriptGet:
		return table.Cost("subscript_get")
	case instr.IBinOp:
		c := table.Cost("binop_" + ins.OpName)
		if ins.OpName == "add" {
			c += table.Cost("bytes_cat")
		}
		return c
	case instr.IUnaryOp:
		return table.Cost("unary_" + ins.OpName)
	case instr.ICompare:
		return table.Cost("compare")
	case instr.ICall:
		c := table.Cost(gas.KeyCallBase) + uint64(ins.NPos)*table.Cost(gas.KeyCallArg) + uint64(len(ins.KwNames))*table.Cost(gas.KeyCallKwarg)
		switch ins.Name {
		case "storage.get", "storage.get_int", "storage.exists":
			c += table.Cost("sload")
		case "storage.set", "storage.set_int", "storage.delete":
			c += table.Cost("sstore")
		case "__builtin__.len":
			c += table.Cost("bytes_len")
		}
		return c
	case instr.IPop:
		return table.Cost("pop")
	case instr.IDup:
		return table.Cost("dup")
	case instr.IReturn:
		return table.Cost("return")
	case instr.IJump:
		return table.Cost("jump")
	case instr.IJumpIfTrue:
		return table.Cost("jump_if_true")
	case instr.IJumpIfFalse:
		return table.Cost("jump_if_false")
	case instr.INop:
		return table.Cost("nop")
	default:
		return gas.DefaultCost
	}
}
