package lower

import (
	"fmt"

	"github.com/animica-labs/pyvm/core/instr"
	"github.com/animica-labs/pyvm/core/ir"
)

// ToProg lowers one structured-IR function body into the instruction IR the
// engine interprets. Grounded on
// original_source/vm_py/compiler/ast_lower.py's second pass (`_lower_to_instr`)
// and the CFG-successor rules recorded in DESIGN.md's gas-estimator entry.
func ToProg(fn *ir.Function) (*instr.Prog, error) {
	g := &gen{}
	g.startBlock(instr.DefaultEntryLabel)
	if err := g.stmts(fn.Body); err != nil {
		return nil, err
	}
	if !terminated(g.cur) {
		g.emit(instr.Instr{Op: instr.ILoadConst, ConstNull: true})
		g.emit(instr.Instr{Op: instr.IReturn})
	}
	p := &instr.Prog{EntryLabel: instr.DefaultEntryLabel}
	for _, b := range g.blocks {
		p.Blocks = append(p.Blocks, instr.NamedBlock{Label: b.Label, Blk: b})
	}
	return p, nil
}

type gen struct {
	blocks []*instr.Block
	cur    *instr.Block
	n      int
}

func (g *gen) newLabel(prefix string) string {
	g.n++
	return fmt.Sprintf("%s_%d", prefix, g.n)
}

func (g *gen) startBlock(label string) {
	b := &instr.Block{Label: label}
	g.blocks = append(g.blocks, b)
	g.cur = b
}

func (g *gen) emit(i instr.Instr) { g.cur.Instrs = append(g.cur.Instrs, i) }

func (g *gen) setFallthrough(label string) {
	l := label
	g.cur.Fallthrough = &l
}

func terminated(b *instr.Block) bool {
	if len(b.Instrs) == 0 {
		return false
	}
	last := b.Instrs[len(b.Instrs)-1].Op
	return last == instr.IReturn || last == instr.IJump
}

func (g *gen) stmts(stmts []ir.Stmt) error {
	for _, s := range stmts {
		if err := g.stmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (g *gen) stmt(s ir.Stmt) error {
	switch s.Kind {
	case ir.SAssign:
		if err := g.expr(s.Value); err != nil {
			return err
		}
		for i, t := range s.Targets {
			if len(t.Group) > 0 {
				return cErr("tuple-target store is not supported by instruction lowering", nil)
			}
			if i < len(s.Targets)-1 {
				g.emit(instr.Instr{Op: instr.IDup})
			}
			g.emit(instr.Instr{Op: instr.IStoreName, Name: t.Name})
		}
		return nil
	case ir.SExprStmt:
		if err := g.expr(s.Expr); err != nil {
			return err
		}
		g.emit(instr.Instr{Op: instr.IPop})
		return nil
	case ir.SReturn:
		if s.Value != nil {
			if err := g.expr(s.Value); err != nil {
				return err
			}
		} else {
			g.emit(instr.Instr{Op: instr.ILoadConst, ConstNull: true})
		}
		g.emit(instr.Instr{Op: instr.IReturn})
		return nil
	case ir.SIf:
		return g.ifStmt(s)
	case ir.SWhile:
		return g.whileStmt(s)
	default:
		return cErr("statement kind not supported by instruction lowering", nil)
	}
}

func (g *gen) ifStmt(s ir.Stmt) error {
	hasElse := len(s.OrElse) > 0
	joinLabel := g.newLabel("endif")
	elseLabel := joinLabel
	if hasElse {
		elseLabel = g.newLabel("else")
	}
	if err := g.expr(s.Cond); err != nil {
		return err
	}
	g.emit(instr.Instr{Op: instr.IJumpIfFalse, Label: elseLabel})
	if err := g.stmts(s.Body); err != nil {
		return err
	}
	if hasElse {
		if !terminated(g.cur) {
			g.emit(instr.Instr{Op: instr.IJump, Label: joinLabel})
		}
		g.startBlock(elseLabel)
		if err := g.stmts(s.OrElse); err != nil {
			return err
		}
	}
	if !terminated(g.cur) {
		g.setFallthrough(joinLabel)
	}
	g.startBlock(joinLabel)
	return nil
}

func (g *gen) whileStmt(s ir.Stmt) error {
	headLabel := g.newLabel("whead")
	bodyLabel := g.newLabel("wbody")
	joinLabel := g.newLabel("wend")

	if !terminated(g.cur) {
		g.setFallthrough(headLabel)
	}
	g.startBlock(headLabel)
	if err := g.expr(s.Cond); err != nil {
		return err
	}
	g.emit(instr.Instr{Op: instr.IJumpIfFalse, Label: joinLabel})
	g.setFallthrough(bodyLabel)
	g.startBlock(bodyLabel)
	if err := g.stmts(s.Body); err != nil {
		return err
	}
	if !terminated(g.cur) {
		g.emit(instr.Instr{Op: instr.IJump, Label: headLabel})
	}
	g.startBlock(joinLabel)
	return nil
}

// builtinOpcode maps the small set of allowlisted builtins that have a
// direct instruction-level meaning. Container-producing/iterating builtins
// (range, enumerate, sorted, ...) are allowed by the validator as plain
// Python syntax but have no entry here or in the engine's dispatch table:
// a call to one lowers like any other bare-name call and fails at run time
// with an unknown-call-target error, since the instruction set has no
// container value kind for them to produce.
var builtinOpcode = map[string]bool{
	"len": true, "abs": true, "bool": true, "int": true, "bytes": true,
}

func (g *gen) expr(e *ir.Expr) error {
	switch e.Kind {
	case ir.EConst:
		return g.constExpr(e.ConstVal)
	case ir.EName:
		g.emit(instr.Instr{Op: instr.ILoadName, Name: e.Name})
		return nil
	case ir.EBinOp:
		if err := g.expr(e.Left); err != nil {
			return err
		}
		if err := g.expr(e.Right); err != nil {
			return err
		}
		g.emit(instr.Instr{Op: instr.IBinOp, OpName: e.Op})
		return nil
	case ir.EBoolOp:
		return g.boolOp(e.Values, e.Op)
	case ir.EUnaryOp:
		if err := g.expr(e.Operand); err != nil {
			return err
		}
		g.emit(instr.Instr{Op: instr.IUnaryOp, OpName: e.Op})
		return nil
	case ir.ECompare:
		if err := g.expr(e.Left); err != nil {
			return err
		}
		if err := g.expr(e.Right); err != nil {
			return err
		}
		g.emit(instr.Instr{Op: instr.ICompare, OpName: e.Op})
		return nil
	case ir.ESubscript:
		if err := g.expr(e.Value); err != nil {
			return err
		}
		if err := g.expr(e.Index); err != nil {
			return err
		}
		g.emit(instr.Instr{Op: instr.ISubscriptGet})
		return nil
	case ir.EAttribute:
		return cErr("stdlib attribute reference used outside of a call", nil)
	case ir.ECall:
		return g.call(e)
	default:
		return cErr("expression kind not supported by instruction lowering", nil)
	}
}

func (g *gen) boolOp(values []*ir.Expr, op string) error {
	if len(values) == 1 {
		return g.expr(values[0])
	}
	if err := g.expr(values[0]); err != nil {
		return err
	}
	g.emit(instr.Instr{Op: instr.IDup})
	skipLabel := g.newLabel("boolshort")
	contLabel := g.newLabel("boolend")
	if op == ir.BoolAnd {
		g.emit(instr.Instr{Op: instr.IJumpIfFalse, Label: skipLabel})
	} else {
		g.emit(instr.Instr{Op: instr.IJumpIfTrue, Label: skipLabel})
	}
	g.emit(instr.Instr{Op: instr.IPop})
	if err := g.boolOp(values[1:], op); err != nil {
		return err
	}
	g.emit(instr.Instr{Op: instr.IJump, Label: contLabel})
	g.startBlock(skipLabel)
	g.setFallthrough(contLabel)
	g.startBlock(contLabel)
	return nil
}

func (g *gen) constExpr(c ir.Const) error {
	switch {
	case c.Int != nil:
		g.emit(instr.Instr{Op: instr.ILoadConst, ConstInt: c.Int})
	case c.Bytes != nil:
		g.emit(instr.Instr{Op: instr.ILoadConst, ConstBytes: c.Bytes})
	case c.Bool != nil:
		g.emit(instr.Instr{Op: instr.ILoadConst, ConstBool: c.Bool})
	case c.IsNull:
		g.emit(instr.Instr{Op: instr.ILoadConst, ConstNull: true})
	default:
		return cErr("compound constant literals cannot be loaded as a runtime value", nil)
	}
	return nil
}

func (g *gen) call(e *ir.Expr) error {
	if e.Func.Kind == ir.EName && e.Func.Name == ir.TernarySentinel {
		return g.ternary(e.Args)
	}
	if e.Func.Kind == ir.EName && builtinOpcode[e.Func.Name] {
		for _, a := range e.Args {
			if err := g.expr(a); err != nil {
				return err
			}
		}
		g.emit(instr.Instr{Op: instr.ICall, Name: "__builtin__." + e.Func.Name, NPos: len(e.Args)})
		return nil
	}
	name, err := callName(e.Func)
	if err != nil {
		return err
	}
	for _, a := range e.Args {
		if err := g.expr(a); err != nil {
			return err
		}
	}
	kwNames := make([]string, 0, len(e.Kwargs))
	for _, kw := range e.Kwargs {
		if err := g.expr(kw.Value); err != nil {
			return err
		}
		kwNames = append(kwNames, kw.Name)
	}
	g.emit(instr.Instr{Op: instr.ICall, Name: name, NPos: len(e.Args), KwNames: kwNames})
	return nil
}

func (g *gen) ternary(args []*ir.Expr) error {
	if len(args) != 3 {
		return cErr("ternary lowering requires exactly 3 arguments", nil)
	}
	cond, body, orelse := args[0], args[1], args[2]
	elseLabel := g.newLabel("ternelse")
	endLabel := g.newLabel("ternend")
	if err := g.expr(cond); err != nil {
		return err
	}
	g.emit(instr.Instr{Op: instr.IJumpIfFalse, Label: elseLabel})
	if err := g.expr(body); err != nil {
		return err
	}
	g.emit(instr.Instr{Op: instr.IJump, Label: endLabel})
	g.startBlock(elseLabel)
	if err := g.expr(orelse); err != nil {
		return err
	}
	g.setFallthrough(endLabel)
	g.startBlock(endLabel)
	return nil
}

// callName resolves a Call's callee expression to the flat name the engine
// dispatches on: a "module.func" string for stdlib host calls (the leading
// "stdlib" name is stripped when present), or a bare identifier for a call
// to another function defined in the same contract.
func callName(fn *ir.Expr) (string, error) {
	switch fn.Kind {
	case ir.EName:
		return fn.Name, nil
	case ir.EAttribute:
		parts, err := attrChain(fn)
		if err != nil {
			return "", err
		}
		if len(parts) > 0 && parts[0] == "stdlib" {
			parts = parts[1:]
		}
		if len(parts) < 2 {
			return "", cErr("unsupported stdlib call shape", nil)
		}
		name := parts[0]
		for _, p := range parts[1:] {
			name += "." + p
		}
		return name, nil
	default:
		return "", cErr("unsupported call target", nil)
	}
}

func attrChain(e *ir.Expr) ([]string, error) {
	switch e.Kind {
	case ir.EName:
		return []string{e.Name}, nil
	case ir.EAttribute:
		base, err := attrChain(e.Value)
		if err != nil {
			return nil, err
		}
		return append(base, e.Attr), nil
	default:
		return nil, cErr("unsupported attribute base", nil)
	}
}
