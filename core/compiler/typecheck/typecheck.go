// Package typecheck walks the structured IR (core/ir) and checks it against
// the BaseType scalar lattice {int, bytes, bool, address, void}. Grounded on
// original_source/vm_py/compiler/typecheck.py's op-rule table; adapted to
// Go's single-pass forward-inference style since the IR carries no
// parameter/return type annotations of its own (the contract language omits
// them, unlike the original's PEP 526 annotation use).
package typecheck

import (
	"github.com/animica-labs/pyvm/core/ir"
	"github.com/animica-labs/pyvm/core/vmerrors"
)

// BaseType is one element of the VM's scalar type lattice.
type BaseType string

const (
	TInt     BaseType = "int"
	TBytes   BaseType = "bytes"
	TBool    BaseType = "bool"
	TAddress BaseType = "address"
	TVoid    BaseType = "void"
	// TUnknown marks a value whose type could not be statically pinned down
	// (an unannotated parameter, or the result of a call to a function the
	// checker has not yet visited). Operations against TUnknown are not
	// flagged; this keeps the checker a narrowing pass rather than a strict
	// gate, matching typecheck.py's "best effort" framing.
	TUnknown BaseType = ""
)

func tErr(msg string, ctx map[string]any) error {
	return vmerrors.New(vmerrors.CodeCompileGeneric, msg, ctx)
}

// hostReturnTypes approximates the return type of the stdlib surfaces that
// produce a value, grounded on each core/host/* package's exported method
// signatures.
var hostReturnTypes = map[string]BaseType{
	"storage.get":        TBytes,
	"storage.get_int":    TInt,
	"storage.exists":     TBool,
	"treasury.balance":   TInt,
	"random.u64":         TInt,
	"random.rand_range":  TInt,
	"random.bytes":       TBytes,
	"hash.sha3_256":      TBytes,
	"hash.sha3_512":      TBytes,
	"hash.keccak256":     TBytes,
	"syscalls.blob_pin":  TBytes,
	"syscalls.zk_verify": TBool,
}

var builtinReturnTypes = map[string]BaseType{
	"__builtin__.len":   TInt,
	"__builtin__.abs":   TInt,
	"__builtin__.bool":  TBool,
	"__builtin__.int":   TInt,
	"__builtin__.bytes": TBytes,
}

// Module typechecks every function in m, in name-sorted order for
// deterministic error reporting.
func Module(m *ir.Module) error {
	sigs := map[string]BaseType{}
	for _, nf := range m.SortedFunctions() {
		sigs[nf.Name] = TUnknown
	}
	for _, nf := range m.SortedFunctions() {
		c := &checker{env: map[string]BaseType{}, funcs: sigs}
		ret, err := c.function(nf.Fn)
		if err != nil {
			return err
		}
		sigs[nf.Name] = ret
	}
	return nil
}

type checker struct {
	env      map[string]BaseType
	funcs    map[string]BaseType
	retType  BaseType
	retSeen  bool
}

func (c *checker) function(fn *ir.Function) (BaseType, error) {
	for _, p := range fn.Params {
		c.env[p] = TUnknown
	}
	if err := c.block(fn.Body); err != nil {
		return TUnknown, err
	}
	if !c.retSeen {
		return TVoid, nil
	}
	return c.retType, nil
}

func (c *checker) block(stmts []ir.Stmt) error {
	for _, s := range stmts {
		if err := c.stmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (c *checker) stmt(s ir.Stmt) error {
	switch s.Kind {
	case ir.SAssign:
		t, err := c.expr(s.Value)
		if err != nil {
			return err
		}
		for _, tgt := range s.Targets {
			if tgt.Name != "" {
				c.env[tgt.Name] = t
			}
			for _, g := range tgt.Group {
				c.env[g] = TUnknown
			}
		}
		return nil
	case ir.SExprStmt:
		_, err := c.expr(s.Expr)
		return err
	case ir.SReturn:
		var t BaseType = TVoid
		if s.Value != nil {
			var err error
			t, err = c.expr(s.Value)
			if err != nil {
				return err
			}
		}
		if c.retSeen && c.retType != TUnknown && t != TUnknown && c.retType != t {
			return tErr("function has inconsistent return types", map[string]any{"first": string(c.retType), "second": string(t)})
		}
		if !c.retSeen || c.retType == TUnknown {
			c.retType = t
		}
		c.retSeen = true
		return nil
	case ir.SIf:
		if _, err := c.expr(s.Cond); err != nil {
			return err
		}
		if err := c.block(s.Body); err != nil {
			return err
		}
		return c.block(s.OrElse)
	case ir.SWhile:
		if _, err := c.expr(s.Cond); err != nil {
			return err
		}
		return c.block(s.Body)
	default:
		return tErr("unsupported statement kind", nil)
	}
}

func (c *checker) expr(e *ir.Expr) (BaseType, error) {
	switch e.Kind {
	case ir.EConst:
		return constType(e.ConstVal), nil
	case ir.EName:
		if t, ok := c.env[e.Name]; ok {
			return t, nil
		}
		return TUnknown, nil
	case ir.EBinOp:
		return c.binOp(e)
	case ir.EBoolOp:
		var last BaseType = TUnknown
		for _, v := range e.Values {
			t, err := c.expr(v)
			if err != nil {
				return TUnknown, err
			}
			last = t
		}
		return last, nil
	case ir.EUnaryOp:
		t, err := c.expr(e.Operand)
		if err != nil {
			return TUnknown, err
		}
		switch e.Op {
		case ir.UnaryNot:
			return TBool, nil
		default:
			if t != TUnknown && t != TInt {
				return TUnknown, tErr("unary arithmetic operator requires an int operand", map[string]any{"op": e.Op, "type": string(t)})
			}
			return TInt, nil
		}
	case ir.ECompare:
		l, err := c.expr(e.Left)
		if err != nil {
			return TUnknown, err
		}
		r, err := c.expr(e.Right)
		if err != nil {
			return TUnknown, err
		}
		if l != TUnknown && r != TUnknown && l != r {
			return TUnknown, tErr("comparison between mismatched types", map[string]any{"left": string(l), "right": string(r)})
		}
		return TBool, nil
	case ir.ESubscript:
		base, err := c.expr(e.Value)
		if err != nil {
			return TUnknown, err
		}
		if base != TUnknown && base != TBytes {
			return TUnknown, tErr("subscript requires a bytes value", map[string]any{"type": string(base)})
		}
		if _, err := c.expr(e.Index); err != nil {
			return TUnknown, err
		}
		return TInt, nil
	case ir.EAttribute:
		return TUnknown, nil
	case ir.ECall:
		return c.call(e)
	default:
		return TUnknown, tErr("unsupported expression kind", nil)
	}
}

func (c *checker) binOp(e *ir.Expr) (BaseType, error) {
	l, err := c.expr(e.Left)
	if err != nil {
		return TUnknown, err
	}
	r, err := c.expr(e.Right)
	if err != nil {
		return TUnknown, err
	}
	if e.Op == ir.OpAdd && l == TBytes && r == TBytes {
		return TBytes, nil
	}
	if l != TUnknown && l != TInt {
		return TUnknown, tErr("arithmetic/bitwise operator requires int operands", map[string]any{"op": e.Op, "type": string(l)})
	}
	if r != TUnknown && r != TInt {
		return TUnknown, tErr("arithmetic/bitwise operator requires int operands", map[string]any{"op": e.Op, "type": string(r)})
	}
	return TInt, nil
}

func (c *checker) call(e *ir.Expr) (BaseType, error) {
	for _, a := range e.Args {
		if _, err := c.expr(a); err != nil {
			return TUnknown, err
		}
	}
	for _, kw := range e.Kwargs {
		if _, err := c.expr(kw.Value); err != nil {
			return TUnknown, err
		}
	}
	if e.Func.Kind == ir.EName {
		if e.Func.Name == ir.TernarySentinel {
			if len(e.Args) != 3 {
				return TUnknown, tErr("ternary requires exactly 3 arguments", nil)
			}
			bt, err := c.expr(e.Args[1])
			if err != nil {
				return TUnknown, err
			}
			ot, err := c.expr(e.Args[2])
			if err != nil {
				return TUnknown, err
			}
			if bt != TUnknown && ot != TUnknown && bt != ot {
				return TUnknown, nil
			}
			return bt, nil
		}
		if t, ok := builtinReturnTypes["__builtin__."+e.Func.Name]; ok {
			return t, nil
		}
		if t, ok := c.funcs[e.Func.Name]; ok {
			return t, nil
		}
		return TUnknown, nil
	}
	if e.Func.Kind == ir.EAttribute {
		name, err := dottedName(e.Func)
		if err == nil {
			if t, ok := hostReturnTypes[name]; ok {
				return t, nil
			}
		}
		return TUnknown, nil
	}
	return TUnknown, nil
}

func dottedName(e *ir.Expr) (string, error) {
	switch e.Kind {
	case ir.EName:
		return e.Name, nil
	case ir.EAttribute:
		base, err := dottedName(e.Value)
		if err != nil {
			return "", err
		}
		return base + "." + e.Attr, nil
	default:
		return "", tErr("unsupported attribute base", nil)
	}
}

func constType(c ir.Const) BaseType {
	switch {
	case c.Int != nil:
		return TInt
	case c.Bytes != nil:
		return TBytes
	case c.Bool != nil:
		return TBool
	default:
		return TUnknown
	}
}
