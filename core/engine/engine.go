// Package engine implements the deterministic stack-machine interpreter:
// operand stack, local-name environment, gas-charge-before-dispatch
// instruction cycle, and the static host dispatch table. Grounded on
// original_source/vm_py/runtime/engine.py's run loop and opcode handlers.
package engine

import (
	"context"
	"math/big"

	"github.com/animica-labs/pyvm/core/gas"
	"github.com/animica-labs/pyvm/core/host/abi"
	"github.com/animica-labs/pyvm/core/host/events"
	"github.com/animica-labs/pyvm/core/host/random"
	"github.com/animica-labs/pyvm/core/host/storage"
	"github.com/animica-labs/pyvm/core/host/syscalls"
	"github.com/animica-labs/pyvm/core/host/treasury"
	"github.com/animica-labs/pyvm/core/hashapi"
	"github.com/animica-labs/pyvm/core/instr"
	"github.com/animica-labs/pyvm/core/resource"
	"github.com/animica-labs/pyvm/core/vmerrors"
	"github.com/animica-labs/pyvm/core/vmtypes"
)

// DefaultStepLimit matches spec.md's STEP_LIMIT default.
const DefaultStepLimit = 1_000_000

// DefaultMaxCallDepth caps user-function call recursion within one session.
const DefaultMaxCallDepth = 64

// Session bundles everything one contract call shares across the whole
// recursive call tree: the gas meter, resource guard, host surfaces, the
// sibling function registry for bare-name CALLs, and the step counter.
type Session struct {
	Meter     *gas.Meter
	Guard     *resource.Guard
	Table     gas.Table
	Storage   *storage.Surface
	Events    *events.Sink
	Treasury  *treasury.Ledger
	Random    *random.DRBG
	Syscalls  syscalls.Provider
	Functions map[string]*instr.Prog
	Params    map[string][]string

	StepLimit   uint64
	MaxCallDepth int
	Steps       uint64
}

// NewSession builds a Session with the package defaults filled in for any
// zero-valued field the caller didn't set.
func NewSession() *Session {
	return &Session{
		Table:        gas.DefaultTable(),
		Events:       events.NewSink(),
		Treasury:     treasury.NewLedger(),
		Syscalls:     syscalls.NewLocalNoOpProvider(),
		Functions:    map[string]*instr.Prog{},
		Params:       map[string][]string{},
		StepLimit:    DefaultStepLimit,
		MaxCallDepth: DefaultMaxCallDepth,
	}
}

// Result is the call's result envelope.
type Result struct {
	ReturnValue vmtypes.Value
	GasUsed     uint64
	Steps       uint64
	Logs        []events.Receipt
}

// Run executes prog's entry block with args bound to params, returning the
// whole-call result envelope. ctx is honored only for cancellation between
// instruction-cycle boundaries (never for in-VM suspension).
func Run(ctx context.Context, prog *instr.Prog, params []string, args []vmtypes.Value, sess *Session) (*Result, error) {
	ret, err := sess.call(ctx, prog, params, args, 0)
	if err != nil {
		return nil, err
	}
	return &Result{
		ReturnValue: ret,
		GasUsed:     sess.Meter.Used(),
		Steps:       sess.Steps,
		Logs:        sess.Events.EventsForReceipt(),
	}, nil
}

func vmErr(msg string, ctx map[string]any) error {
	return vmerrors.New(vmerrors.CodeVMError, msg, ctx)
}

func (sess *Session) call(ctx context.Context, prog *instr.Prog, params []string, args []vmtypes.Value, depth int) (vmtypes.Value, error) {
	if depth > sess.MaxCallDepth {
		return vmtypes.Value{}, vmErr("max call depth exceeded", map[string]any{"depth": depth})
	}
	if len(params) != len(args) {
		return vmtypes.Value{}, vmErr("argument count mismatch", map[string]any{"want": len(params), "got": len(args)})
	}
	env := make(map[string]vmtypes.Value, len(params))
	for i, p := range params {
		env[p] = args[i]
	}
	var stack []vmtypes.Value
	push := func(v vmtypes.Value) { stack = append(stack, v) }
	pop := func() (vmtypes.Value, error) {
		if len(stack) == 0 {
			return vmtypes.Value{}, vmErr("stack underflow", nil)
		}
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v, nil
	}

	cur := prog.Lookup(prog.EntryLabel)
	if cur == nil {
		return vmtypes.Value{}, vmErr("unknown entry label", map[string]any{"label": prog.EntryLabel})
	}
	ip := 0
	for {
		select {
		case <-ctx.Done():
			return vmtypes.Value{}, vmErr("call cancelled", nil)
		default:
		}

		if ip >= len(cur.Instrs) {
			if cur.Fallthrough != nil {
				nb := prog.Lookup(*cur.Fallthrough)
				if nb == nil {
					return vmtypes.Value{}, vmErr("unknown fallthrough label", map[string]any{"label": *cur.Fallthrough})
				}
				cur, ip = nb, 0
				continue
			}
			return vmtypes.Null, nil
		}

		sess.Steps++
		if sess.Steps > sess.StepLimit {
			return vmtypes.Value{}, vmErr("step limit exceeded", map[string]any{"limit": sess.StepLimit})
		}

		ins := cur.Instrs[ip]
		if err := sess.Meter.Consume(instrCost(ins, sess.Table)); err != nil {
			return vmtypes.Value{}, err
		}

		switch ins.Op {
		case instr.ILoadConst:
			v, err := loadConst(ins)
			if err != nil {
				return vmtypes.Value{}, err
			}
			push(v)
		case instr.ILoadName:
			v, ok := env[ins.Name]
			if !ok {
				return vmtypes.Value{}, vmErr("undefined name", map[string]any{"name": ins.Name})
			}
			push(v)
		case instr.IStoreName:
			v, err := pop()
			if err != nil {
				return vmtypes.Value{}, err
			}
			env[ins.Name] = v
		case instr.IAttrGet:
			return vmtypes.Value{}, vmErr("malformed instruction: bare attribute access", nil)
		case instr.ISubscriptGet:
			idx, err := pop()
			if err != nil {
				return vmtypes.Value{}, err
			}
			base, err := pop()
			if err != nil {
				return vmtypes.Value{}, err
			}
			v, err := subscriptGet(base, idx)
			if err != nil {
				return vmtypes.Value{}, err
			}
			push(v)
		case instr.IBinOp:
			r, err := pop()
			if err != nil {
				return vmtypes.Value{}, err
			}
			l, err := pop()
			if err != nil {
				return vmtypes.Value{}, err
			}
			v, err := binOp(ins.OpName, l, r)
			if err != nil {
				return vmtypes.Value{}, err
			}
			push(v)
		case instr.IUnaryOp:
			o, err := pop()
			if err != nil {
				return vmtypes.Value{}, err
			}
			v, err := unaryOp(ins.OpName, o)
			if err != nil {
				return vmtypes.Value{}, err
			}
			push(v)
		case instr.ICompare:
			r, err := pop()
			if err != nil {
				return vmtypes.Value{}, err
			}
			l, err := pop()
			if err != nil {
				return vmtypes.Value{}, err
			}
			v, err := compareOp(ins.OpName, l, r)
			if err != nil {
				return vmtypes.Value{}, err
			}
			push(v)
		case instr.ICall:
			n := ins.NPos + len(ins.KwNames)
			if n > len(stack) {
				return vmtypes.Value{}, vmErr("stack underflow in call", nil)
			}
			raw := append([]vmtypes.Value(nil), stack[len(stack)-n:]...)
			stack = stack[:len(stack)-n]
			posArgs := raw[:ins.NPos]
			kwArgs := map[string]vmtypes.Value{}
			for i, name := range ins.KwNames {
				kwArgs[name] = raw[ins.NPos+i]
			}
			v, err := sess.dispatchCall(ctx, ins.Name, posArgs, kwArgs, depth)
			if err != nil {
				return vmtypes.Value{}, err
			}
			push(v)
		case instr.IPop:
			if _, err := pop(); err != nil {
				return vmtypes.Value{}, err
			}
		case instr.IDup:
			if len(stack) == 0 {
				return vmtypes.Value{}, vmErr("stack underflow on dup", nil)
			}
			push(stack[len(stack)-1])
		case instr.IReturn:
			v, err := pop()
			if err != nil {
				return vmtypes.Value{}, err
			}
			return v, nil
		case instr.IJump:
			nb := prog.Lookup(ins.Label)
			if nb == nil {
				return vmtypes.Value{}, vmErr("unknown jump target", map[string]any{"label": ins.Label})
			}
			cur, ip = nb, 0
			continue
		case instr.IJumpIfTrue:
			v, err := pop()
			if err != nil {
				return vmtypes.Value{}, err
			}
			if v.IsTruthy() {
				nb := prog.Lookup(ins.Label)
				if nb == nil {
					return vmtypes.Value{}, vmErr("unknown jump target", map[string]any{"label": ins.Label})
				}
				cur, ip = nb, 0
				continue
			}
		case instr.IJumpIfFalse:
			v, err := pop()
			if err != nil {
				return vmtypes.Value{}, err
			}
			if !v.IsTruthy() {
				nb := prog.Lookup(ins.Label)
				if nb == nil {
					return vmtypes.Value{}, vmErr("unknown jump target", map[string]any{"label": ins.Label})
				}
				cur, ip = nb, 0
				continue
			}
		case instr.INop:
			// no-op
		default:
			return vmtypes.Value{}, vmErr("unknown opcode", map[string]any{"op": int(ins.Op)})
		}
		ip++
	}
}

func loadConst(ins instr.Instr) (vmtypes.Value, error) {
	switch {
	case ins.ConstInt != nil:
		n, ok := new(big.Int).SetString(*ins.ConstInt, 10)
		if !ok {
			return vmtypes.Value{}, vmErr("malformed integer constant", map[string]any{"text": *ins.ConstInt})
		}
		return vmtypes.NewInt(n), nil
	case ins.ConstBytes != nil:
		return vmtypes.NewBytes(ins.ConstBytes), nil
	case ins.ConstBool != nil:
		return vmtypes.NewBool(*ins.ConstBool), nil
	case ins.ConstNull:
		return vmtypes.Null, nil
	default:
		return vmtypes.Null, nil
	}
}

func subscriptGet(base, idx vmtypes.Value) (vmtypes.Value, error) {
	if base.Kind != vmtypes.KindBytes {
		return vmtypes.Value{}, vmErr("subscript requires a bytes value", map[string]any{"kind": base.Kind.String()})
	}
	if idx.Kind != vmtypes.KindInt {
		return vmtypes.Value{}, vmErr("subscript index must be an int", nil)
	}
	i := idx.Int.Int64()
	if i < 0 || i >= int64(len(base.Bytes)) {
		return vmtypes.Value{}, vmErr("subscript index out of range", map[string]any{"index": i, "length": len(base.Bytes)})
	}
	return vmtypes.NewIntFromInt64(int64(base.Bytes[i])), nil
}

func binOp(op string, l, r vmtypes.Value) (vmtypes.Value, error) {
	if op == "add" && l.Kind == vmtypes.KindBytes && r.Kind == vmtypes.KindBytes {
		out := make([]byte, 0, len(l.Bytes)+len(r.Bytes))
		out = append(out, l.Bytes...)
		out = append(out, r.Bytes...)
		return vmtypes.NewBytes(out), nil
	}
	if l.Kind != vmtypes.KindInt || r.Kind != vmtypes.KindInt {
		return vmtypes.Value{}, vmErr("arithmetic/bitwise operator requires int operands", map[string]any{"op": op})
	}
	a, b := l.Int, r.Int
	switch op {
	case "add":
		return vmtypes.NewInt(new(big.Int).Add(a, b)), nil
	case "sub":
		return vmtypes.NewInt(new(big.Int).Sub(a, b)), nil
	case "mul":
		return vmtypes.NewInt(new(big.Int).Mul(a, b)), nil
	case "floordiv":
		if b.Sign() == 0 {
			return vmtypes.NewIntFromInt64(0), nil
		}
		q := new(big.Int)
		m := new(big.Int)
		q.DivMod(a, b, m)
		return vmtypes.NewInt(q), nil
	case "mod":
		if b.Sign() == 0 {
			return vmtypes.NewIntFromInt64(0), nil
		}
		return vmtypes.NewInt(new(big.Int).Mod(a, b)), nil
	case "and":
		return vmtypes.NewInt(new(big.Int).And(a, b)), nil
	case "or":
		return vmtypes.NewInt(new(big.Int).Or(a, b)), nil
	case "xor":
		return vmtypes.NewInt(new(big.Int).Xor(a, b)), nil
	case "lshift":
		return vmtypes.NewInt(new(big.Int).Lsh(a, uint(b.Uint64()))), nil
	case "rshift":
		return vmtypes.NewInt(new(big.Int).Rsh(a, uint(b.Uint64()))), nil
	default:
		return vmtypes.Value{}, vmErr("unknown binary operator", map[string]any{"op": op})
	}
}

func unaryOp(op string, v vmtypes.Value) (vmtypes.Value, error) {
	if op == "not" {
		return vmtypes.NewBool(!v.IsTruthy()), nil
	}
	if v.Kind != vmtypes.KindInt {
		return vmtypes.Value{}, vmErr("unary arithmetic operator requires an int operand", map[string]any{"op": op})
	}
	switch op {
	case "pos":
		return vmtypes.NewInt(new(big.Int).Set(v.Int)), nil
	case "neg":
		return vmtypes.NewInt(new(big.Int).Neg(v.Int)), nil
	case "invert":
		return vmtypes.NewInt(new(big.Int).Not(v.Int)), nil
	default:
		return vmtypes.Value{}, vmErr("unknown unary operator", map[string]any{"op": op})
	}
}

func compareOp(op string, l, r vmtypes.Value) (vmtypes.Value, error) {
	switch op {
	case "eq":
		return vmtypes.NewBool(l.Equal(r)), nil
	case "ne":
		return vmtypes.NewBool(!l.Equal(r)), nil
	case "is":
		return vmtypes.NewBool(l.Equal(r)), nil
	case "is_not":
		return vmtypes.NewBool(!l.Equal(r)), nil
	case "lt", "le", "gt", "ge":
		if l.Kind != vmtypes.KindInt || r.Kind != vmtypes.KindInt {
			return vmtypes.Value{}, vmErr("ordered comparison requires int operands", map[string]any{"op": op})
		}
		cmp := l.Int.Cmp(r.Int)
		switch op {
		case "lt":
			return vmtypes.NewBool(cmp < 0), nil
		case "le":
			return vmtypes.NewBool(cmp <= 0), nil
		case "gt":
			return vmtypes.NewBool(cmp > 0), nil
		default:
			return vmtypes.NewBool(cmp >= 0), nil
		}
	default:
		return vmtypes.Value{}, vmErr("unsupported comparison operator", map[string]any{"op": op})
	}
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

// dispatchCall resolves one CALL by its flat name against, in order: the
// __builtin__ pseudo-namespace, the static stdlib host
// table, and finally the sibling function registry for bare-name calls to
// another function in the same contract.
func (sess *Session) dispatchCall(ctx context.Context, name string, args []vmtypes.Value, kwargs map[string]vmtypes.Value, depth int) (vmtypes.Value, error) {
	switch name {
	case "__builtin__.len":
		if len(args) != 1 || args[0].Kind != vmtypes.KindBytes {
			return vmtypes.Value{}, vmErr("len() requires a single bytes argument", nil)
		}
		return vmtypes.NewIntFromInt64(int64(len(args[0].Bytes))), nil
	case "__builtin__.abs":
		if len(args) != 1 || args[0].Kind != vmtypes.KindInt {
			return vmtypes.Value{}, vmErr("abs() requires a single int argument", nil)
		}
		return vmtypes.NewInt(new(big.Int).Abs(args[0].Int)), nil
	case "__builtin__.bool":
		if len(args) != 1 {
			return vmtypes.Value{}, vmErr("bool() requires exactly one argument", nil)
		}
		return vmtypes.NewBool(args[0].IsTruthy()), nil
	case "__builtin__.int":
		if len(args) < 1 || args[0].Kind != vmtypes.KindInt {
			return vmtypes.Value{}, vmErr("int() requires a single int argument", nil)
		}
		return vmtypes.NewInt(new(big.Int).Set(args[0].Int)), nil
	case "__builtin__.bytes":
		if len(args) != 1 || args[0].Kind != vmtypes.KindBytes {
			return vmtypes.Value{}, vmErr("bytes() requires a single bytes argument", nil)
		}
		return vmtypes.NewBytes(args[0].Bytes), nil

	case "storage.get":
		v, _, err := sess.Storage.Get(argBytes(args, 0))
		if err != nil {
			return vmtypes.Value{}, err
		}
		return vmtypes.NewBytes(v), nil
	case "storage.set":
		if err := sess.Storage.Set(argBytes(args, 0), argBytes(args, 1)); err != nil {
			return vmtypes.Value{}, err
		}
		return vmtypes.Null, nil
	case "storage.get_int":
		n, err := sess.Storage.GetInt(argBytes(args, 0))
		if err != nil {
			return vmtypes.Value{}, err
		}
		return vmtypes.NewInt(n), nil
	case "storage.set_int":
		if err := sess.Storage.SetInt(argBytes(args, 0), argInt(args, 1)); err != nil {
			return vmtypes.Value{}, err
		}
		return vmtypes.Null, nil
	case "storage.exists":
		ok, err := sess.Storage.Exists(argBytes(args, 0))
		if err != nil {
			return vmtypes.Value{}, err
		}
		return vmtypes.NewBool(ok), nil
	case "storage.delete":
		if err := sess.Storage.Delete(argBytes(args, 0)); err != nil {
			return vmtypes.Value{}, err
		}
		return vmtypes.Null, nil

	case "events.emit":
		if len(args) != 3 {
			return vmtypes.Value{}, vmErr("events.emit requires (name, key, value) arguments", nil)
		}
		arg := events.Arg{Key: string(argBytes(args, 1)), Kind: events.ArgBytes, Bytes: argBytes(args, 2)}
		if err := sess.Events.Emit(argBytes(args, 0), []events.Arg{arg}); err != nil {
			return vmtypes.Value{}, err
		}
		return vmtypes.Null, nil

	case "hash.sha3_256":
		d := hashapi.Sha3_256(argBytes(args, 0), nil)
		return vmtypes.NewBytes(d[:]), nil
	case "hash.sha3_512":
		d := hashapi.Sha3_512(argBytes(args, 0), nil)
		return vmtypes.NewBytes(d[:]), nil
	case "hash.keccak256":
		d := hashapi.Keccak256(argBytes(args, 0), nil)
		return vmtypes.NewBytes(d[:]), nil

	case "random.bytes":
		n := int(argInt(args, 0).Int64())
		if err := sess.Guard.UseRandomBytes(uint64(n)); err != nil {
			return vmtypes.Value{}, err
		}
		b, err := sess.Random.Read(n)
		if err != nil {
			return vmtypes.Value{}, err
		}
		return vmtypes.NewBytes(b), nil
	case "random.u64":
		if err := sess.Guard.UseRandomBytes(8); err != nil {
			return vmtypes.Value{}, err
		}
		v, err := sess.Random.U64()
		if err != nil {
			return vmtypes.Value{}, err
		}
		return vmtypes.NewInt(new(big.Int).SetUint64(v)), nil
	case "random.rand_range":
		n := argInt(args, 0).Uint64()
		if err := sess.Guard.UseRandomBytes(8); err != nil {
			return vmtypes.Value{}, err
		}
		v, err := sess.Random.RandRange(n)
		if err != nil {
			return vmtypes.Value{}, err
		}
		return vmtypes.NewInt(new(big.Int).SetUint64(v)), nil

	case "treasury.balance":
		b, err := sess.Treasury.Balance(argBytes(args, 0))
		if err != nil {
			return vmtypes.Value{}, err
		}
		return vmtypes.NewInt(b), nil
	case "treasury.transfer":
		if err := sess.Guard.UseTreasuryTransfer(); err != nil {
			return vmtypes.Value{}, err
		}
		if err := sess.Treasury.Transfer(argBytes(args, 0), argBytes(args, 1), argInt(args, 2)); err != nil {
			return vmtypes.Value{}, err
		}
		return vmtypes.Null, nil

	case "syscalls.blob_pin":
		if err := sess.Guard.UseBlobPin(uint64(len(argBytes(args, 1)))); err != nil {
			return vmtypes.Value{}, err
		}
		res, err := sess.Syscalls.BlobPin(int(argInt(args, 0).Int64()), argBytes(args, 1))
		if err != nil {
			return vmtypes.Value{}, err
		}
		return vmtypes.NewBytes([]byte(res.Commitment)), nil
	case "syscalls.ai_enqueue":
		if err := sess.Guard.UseAIUnits(1); err != nil {
			return vmtypes.Value{}, err
		}
		res, err := sess.Syscalls.AIEnqueue(argBytes(args, 0), argBytes(args, 1))
		if err != nil {
			return vmtypes.Value{}, err
		}
		return vmtypes.NewBytes([]byte(res.TaskID)), nil
	case "syscalls.quantum_enqueue":
		if err := sess.Guard.UseQuantumUnits(1); err != nil {
			return vmtypes.Value{}, err
		}
		res, err := sess.Syscalls.QuantumEnqueue(argBytes(args, 0), int(argInt(args, 1).Int64()))
		if err != nil {
			return vmtypes.Value{}, err
		}
		return vmtypes.NewBytes([]byte(res.TaskID)), nil
	case "syscalls.zk_verify":
		if err := sess.Guard.UseZKVerify(); err != nil {
			return vmtypes.Value{}, err
		}
		res, err := sess.Syscalls.ZKVerify(argBytes(args, 0), argBytes(args, 1), argBytes(args, 2))
		if err != nil {
			return vmtypes.Value{}, err
		}
		return vmtypes.NewBool(res.OK), nil

	case "abi.require":
		cond := len(args) > 0 && args[0].IsTruthy()
		msg := ""
		if len(args) > 1 {
			msg = string(args[1].Bytes)
		}
		if err := abi.Require(cond, msg, "contract"); err != nil {
			return vmtypes.Value{}, err
		}
		return vmtypes.Null, nil

	default:
		prog, ok := sess.Functions[name]
		if !ok {
			return vmtypes.Value{}, vmErr("unknown call target", map[string]any{"name": name})
		}
		return sess.call(ctx, prog, sess.Params[name], args, depth+1)
	}
}

func argBytes(args []vmtypes.Value, i int) []byte {
	if i >= len(args) {
		return nil
	}
	return args[i].Bytes
}

func argInt(args []vmtypes.Value, i int) *big.Int {
	if i >= len(args) || args[i].Int == nil {
		return big.NewInt(0)
	}
	return args[i].Int
}
