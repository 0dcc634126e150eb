// Package lower turns a validated internal/pyast.Module into the structured
// intermediate representation (core/ir), and then into the instruction IR
// (core/instr) consumed by core/engine. Grounded on
// original_source/vm_py/compiler/ast_lower.py: the canonical operator name
// tables, chained-assignment splitting, augmented-assign desugaring,
// tuple-target lowering and ternary-to-sentinel-call lowering all mirror
// that file's behavior, adapted to Go's explicit-error-return style instead
// of Python exceptions.
package lower

import (
	"fmt"

	"github.com/animica-labs/pyvm/core/instr"
	"github.com/animica-labs/pyvm/core/ir"
	"github.com/animica-labs/pyvm/core/vmerrors"
	"github.com/animica-labs/pyvm/internal/pyast"
)

func cErr(msg string, ctx map[string]any) error {
	return vmerrors.New(vmerrors.CodeCompileGeneric, msg, ctx)
}

// Module lowers a validated AST module to the structured IR.
func Module(mod *pyast.Module, filename string) (*ir.Module, error) {
	l := &lowerer{consts: map[string]ir.Const{}}
	var fns []ir.NamedFunction

	for _, st := range mod.Body {
		switch s := st.(type) {
		case *pyast.Assign:
			name, val, err := l.moduleConst(s)
			if err != nil {
				return nil, err
			}
			l.consts[name] = val
		case *pyast.AnnAssign:
			name, val, err := l.moduleConst(&pyast.Assign{Base: s.Base, Targets: []pyast.Expr{s.Target}, Value: s.Value})
			if err != nil {
				return nil, err
			}
			l.consts[name] = val
		case *pyast.FunctionDef:
			fn, err := l.function(s)
			if err != nil {
				return nil, err
			}
			fns = append(fns, ir.NamedFunction{Name: s.Name, Fn: fn})
			if err := l.flattenNested(s, &fns); err != nil {
				return nil, err
			}
		default:
			// Import statements and the leading docstring carry no runtime
			// shape; every other module statement kind was already rejected
			// by the validator.
		}
	}
	return &ir.Module{Filename: filename, Functions: fns}, nil
}

type lowerer struct {
	consts map[string]ir.Const
}

// flattenNested promotes nested function defs (allowed up to the validator's
// nesting cap) into additional top-level functions, keyed by their own
// simple name. Cross-calls between module functions are dispatched by the
// engine's function registry, not the host-call table, so nested functions
// need no name mangling to stay addressable.
func (l *lowerer) flattenNested(fn *pyast.FunctionDef, out *[]ir.NamedFunction) error {
	for _, st := range fn.Body {
		if nested, ok := st.(*pyast.FunctionDef); ok {
			nfn, err := l.function(nested)
			if err != nil {
				return err
			}
			*out = append(*out, ir.NamedFunction{Name: nested.Name, Fn: nfn})
			if err := l.flattenNested(nested, out); err != nil {
				return err
			}
		}
	}
	return nil
}

func (l *lowerer) moduleConst(s *pyast.Assign) (string, ir.Const, error) {
	if len(s.Targets) != 1 {
		return "", ir.Const{}, cErr("module-level constant must have a single target", nil)
	}
	name, ok := s.Targets[0].(*pyast.NameExpr)
	if !ok {
		return "", ir.Const{}, cErr("module-level constant target must be a name", nil)
	}
	c, ok := asConstExpr(s.Value)
	if !ok {
		return "", ir.Const{}, cErr("module-level constant value must be a literal", map[string]any{"name": name.ID})
	}
	return name.ID, c, nil
}

func (l *lowerer) function(fn *pyast.FunctionDef) (*ir.Function, error) {
	params := make([]string, 0, len(fn.Args.Args))
	for _, a := range fn.Args.Args {
		params = append(params, a.Name)
	}
	body, err := l.block(fn.Body)
	if err != nil {
		return nil, err
	}
	return &ir.Function{Name: fn.Name, Params: params, Body: body}, nil
}

func (l *lowerer) block(stmts []pyast.Stmt) ([]ir.Stmt, error) {
	out := make([]ir.Stmt, 0, len(stmts))
	for _, st := range stmts {
		lowered, err := l.stmt(st)
		if err != nil {
			return nil, err
		}
		out = append(out, lowered...)
	}
	return out, nil
}

// stmt lowers one AST statement to zero or more IR statements (chained and
// tuple assignment desugar to several SAssign nodes).
func (l *lowerer) stmt(st pyast.Stmt) ([]ir.Stmt, error) {
	switch s := st.(type) {
	case *pyast.FunctionDef:
		// Handled by flattenNested at the module pass; nothing to emit here.
		return nil, nil
	case *pyast.Pass:
		return nil, nil
	case *pyast.ExprStmt:
		if c, ok := s.Value.(*pyast.Constant); ok && c.Kind == pyast.ConstStr {
			return nil, nil // docstring
		}
		e, err := l.expr(s.Value)
		if err != nil {
			return nil, err
		}
		return []ir.Stmt{{Kind: ir.SExprStmt, Expr: e}}, nil
	case *pyast.Return:
		if s.Value == nil {
			return []ir.Stmt{{Kind: ir.SReturn}}, nil
		}
		e, err := l.expr(s.Value)
		if err != nil {
			return nil, err
		}
		return []ir.Stmt{{Kind: ir.SReturn, Value: e}}, nil
	case *pyast.If:
		cond, err := l.expr(s.Test)
		if err != nil {
			return nil, err
		}
		body, err := l.block(s.Body)
		if err != nil {
			return nil, err
		}
		orelse, err := l.block(s.Orelse)
		if err != nil {
			return nil, err
		}
		return []ir.Stmt{{Kind: ir.SIf, Cond: cond, Body: body, OrElse: orelse}}, nil
	case *pyast.While:
		cond, err := l.expr(s.Test)
		if err != nil {
			return nil, err
		}
		body, err := l.block(s.Body)
		if err != nil {
			return nil, err
		}
		return []ir.Stmt{{Kind: ir.SWhile, Cond: cond, Body: body}}, nil
	case *pyast.Assign:
		return l.assign(s.Targets, s.Value)
	case *pyast.AugAssign:
		name, ok := s.Target.(*pyast.NameExpr)
		if !ok {
			return nil, cErr("augmented assignment target must be a simple name", nil)
		}
		rhs, err := l.expr(s.Value)
		if err != nil {
			return nil, err
		}
		combined := &ir.Expr{Kind: ir.EBinOp, Op: s.Op, Left: &ir.Expr{Kind: ir.EName, Name: name.ID}, Right: rhs}
		return []ir.Stmt{{Kind: ir.SAssign, Targets: []ir.AssignTarget{{Name: name.ID}}, Value: combined}}, nil
	default:
		return nil, cErr("statement kind not supported by lowering", nil)
	}
}

// assign implements chained- and tuple-target desugaring: `a = b = 1`
// becomes two SAssign nodes sharing the lowered value; `a, b = 1, 2` becomes
// one SAssign per unpacked pair when the right-hand side is a literal
// tuple/list of matching arity.
func (l *lowerer) assign(targets []pyast.Expr, value pyast.Expr) ([]ir.Stmt, error) {
	var out []ir.Stmt
	for _, t := range targets {
		switch tgt := t.(type) {
		case *pyast.NameExpr:
			v, err := l.expr(value)
			if err != nil {
				return nil, err
			}
			out = append(out, ir.Stmt{Kind: ir.SAssign, Targets: []ir.AssignTarget{{Name: tgt.ID}}, Value: v})
		case *pyast.TupleLit:
			stmts, err := l.unpackAssign(tgt.Elts, value)
			if err != nil {
				return nil, err
			}
			out = append(out, stmts...)
		case *pyast.ListLit:
			stmts, err := l.unpackAssign(tgt.Elts, value)
			if err != nil {
				return nil, err
			}
			out = append(out, stmts...)
		default:
			return nil, cErr("unsupported assignment target", nil)
		}
	}
	return out, nil
}

func (l *lowerer) unpackAssign(names []pyast.Expr, value pyast.Expr) ([]ir.Stmt, error) {
	var elts []pyast.Expr
	switch v := value.(type) {
	case *pyast.TupleLit:
		elts = v.Elts
	case *pyast.ListLit:
		elts = v.Elts
	default:
		return nil, cErr("tuple/list assignment target requires a literal tuple/list value", nil)
	}
	if len(elts) != len(names) {
		return nil, cErr("tuple/list assignment arity mismatch", map[string]any{"targets": len(names), "values": len(elts)})
	}
	out := make([]ir.Stmt, 0, len(names))
	for i, n := range names {
		name, ok := n.(*pyast.NameExpr)
		if !ok {
			return nil, cErr("tuple/list assignment target must be a simple name", nil)
		}
		ev, err := l.expr(elts[i])
		if err != nil {
			return nil, err
		}
		out = append(out, ir.Stmt{Kind: ir.SAssign, Targets: []ir.AssignTarget{{Name: name.ID}}, Value: ev})
	}
	return out, nil
}

func (l *lowerer) expr(e pyast.Expr) (*ir.Expr, error) {
	switch ex := e.(type) {
	case *pyast.Constant:
		c, ok := asConstExpr(ex)
		if !ok {
			return nil, cErr("unsupported constant", nil)
		}
		return &ir.Expr{Kind: ir.EConst, ConstVal: c}, nil
	case *pyast.NameExpr:
		if c, ok := l.consts[ex.ID]; ok {
			return &ir.Expr{Kind: ir.EConst, ConstVal: c}, nil
		}
		return &ir.Expr{Kind: ir.EName, Name: ex.ID}, nil
	case *pyast.BinOp:
		left, err := l.expr(ex.Left)
		if err != nil {
			return nil, err
		}
		right, err := l.expr(ex.Right)
		if err != nil {
			return nil, err
		}
		return &ir.Expr{Kind: ir.EBinOp, Op: ex.Op, Left: left, Right: right}, nil
	case *pyast.BoolOp:
		vals := make([]*ir.Expr, 0, len(ex.Values))
		for _, v := range ex.Values {
			lv, err := l.expr(v)
			if err != nil {
				return nil, err
			}
			vals = append(vals, lv)
		}
		return &ir.Expr{Kind: ir.EBoolOp, Op: ex.Op, Values: vals}, nil
	case *pyast.UnaryOp:
		operand, err := l.expr(ex.Operand)
		if err != nil {
			return nil, err
		}
		return &ir.Expr{Kind: ir.EUnaryOp, Op: ex.Op, Operand: operand}, nil
	case *pyast.Compare:
		left, err := l.expr(ex.Left)
		if err != nil {
			return nil, err
		}
		right, err := l.expr(ex.Comparators[0])
		if err != nil {
			return nil, err
		}
		return &ir.Expr{Kind: ir.ECompare, Op: ex.Ops[0], Left: left, Right: right}, nil
	case *pyast.IfExp:
		cond, err := l.expr(ex.Test)
		if err != nil {
			return nil, err
		}
		body, err := l.expr(ex.Body)
		if err != nil {
			return nil, err
		}
		orelse, err := l.expr(ex.Orelse)
		if err != nil {
			return nil, err
		}
		return &ir.Expr{Kind: ir.ECall, Func: &ir.Expr{Kind: ir.EName, Name: ir.TernarySentinel}, Args: []*ir.Expr{cond, body, orelse}}, nil
	case *pyast.Attribute:
		base, err := l.expr(ex.Value)
		if err != nil {
			return nil, err
		}
		return &ir.Expr{Kind: ir.EAttribute, Value: base, Attr: ex.Attr}, nil
	case *pyast.Subscript:
		base, err := l.expr(ex.Value)
		if err != nil {
			return nil, err
		}
		idx, err := l.expr(ex.Index)
		if err != nil {
			return nil, err
		}
		return &ir.Expr{Kind: ir.ESubscript, Value: base, Index: idx}, nil
	case *pyast.Call:
		fn, err := l.expr(ex.Func)
		if err != nil {
			return nil, err
		}
		args := make([]*ir.Expr, 0, len(ex.Args))
		for _, a := range ex.Args {
			la, err := l.expr(a)
			if err != nil {
				return nil, err
			}
			args = append(args, la)
		}
		kwargs := make([]ir.KwArg, 0, len(ex.Keywords))
		for _, kw := range ex.Keywords {
			lv, err := l.expr(kw.Value)
			if err != nil {
				return nil, err
			}
			kwargs = append(kwargs, ir.KwArg{Name: kw.Name, Value: lv})
		}
		return &ir.Expr{Kind: ir.ECall, Func: fn, Args: args, Kwargs: kwargs}, nil
	case *pyast.ListLit, *pyast.TupleLit, *pyast.DictLit:
		c, ok := asConstExpr(e)
		if !ok {
			return nil, cErr("non-constant list/tuple/dict literal is not supported outside assignment unpacking", nil)
		}
		return &ir.Expr{Kind: ir.EConst, ConstVal: c}, nil
	default:
		return nil, cErr(fmt.Sprintf("expression kind not supported by lowering: %T", e), nil)
	}
}

// asConstExpr folds a literal AST expression (scalar or a constant-only
// container) into an ir.Const, failing if any non-constant subexpression
// appears.
func asConstExpr(e pyast.Expr) (ir.Const, bool) {
	switch ex := e.(type) {
	case *pyast.Constant:
		switch ex.Kind {
		case pyast.ConstInt:
			s := ex.Int
			return ir.Const{Int: &s}, true
		case pyast.ConstBytes:
			return ir.Const{Bytes: ex.Bytes}, true
		case pyast.ConstBool:
			b := ex.Bool
			return ir.Const{Bool: &b}, true
		case pyast.ConstNone:
			return ir.Const{IsNull: true}, true
		default:
			return ir.Const{}, false
		}
	case *pyast.ListLit:
		list := make([]ir.Const, 0, len(ex.Elts))
		for _, el := range ex.Elts {
			c, ok := asConstExpr(el)
			if !ok {
				return ir.Const{}, false
			}
			list = append(list, c)
		}
		return ir.Const{List: list}, true
	case *pyast.TupleLit:
		tup := make([]ir.Const, 0, len(ex.Elts))
		for _, el := range ex.Elts {
			c, ok := asConstExpr(el)
			if !ok {
				return ir.Const{}, false
			}
			tup = append(tup, c)
		}
		return ir.Const{Tuple: tup}, true
	case *pyast.DictLit:
		keys := make([]ir.Const, 0, len(ex.Keys))
		vals := make([]ir.Const, 0, len(ex.Values))
		for i := range ex.Keys {
			if ex.Keys[i] == nil {
				return ir.Const{}, false
			}
			kc, ok := asConstExpr(ex.Keys[i])
			if !ok {
				return ir.Const{}, false
			}
			vc, ok := asConstExpr(ex.Values[i])
			if !ok {
				return ir.Const{}, false
			}
			keys = append(keys, kc)
			vals = append(vals, vc)
		}
		return ir.Const{DictKeys: keys, DictVals: vals}, true
	default:
		return ir.Const{}, false
	}
}

// Prog is an alias of instr.Prog, the type ToProg returns.
type Prog = instr.Prog
