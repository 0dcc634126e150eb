// Package codec implements the canonical binary encoding for both IR
// layers: a 6-byte header (magic, version, format) followed by a tagged-list
// payload. Grounded on original_source/vm_py/compiler/encode.py, whose
// I_TAGS/E_*/S_*/F_FUNCTION/M_MODULE tag tables are reproduced verbatim
// below so Go-encoded blobs are byte-shape-compatible with that layout.
//
// Two codecs are supported, selected by the header's format byte: canonical
// CBOR (github.com/fxamacker/cbor/v2) and canonical MsgPack
// (github.com/vmihailenco/msgpack/v5) — both already present in the
// retrieval pack's manifest tooling.
package codec

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/animica-labs/pyvm/core/instr"
	"github.com/animica-labs/pyvm/core/ir"
	"github.com/animica-labs/pyvm/core/vmerrors"
)

// Format identifies the wire codec chosen for a blob's payload.
type Format byte

const (
	FmtCBOR    Format = 0x01
	FmtMsgPack Format = 0x02
)

var magic = [4]byte{'A', 'C', 'I', 'R'}

const version byte = 0x01

var cborEncMode, _ = cbor.CanonicalEncOptions().EncMode()

// wrapHeader prepends the 6-byte ACIR header to an already-serialized payload.
func wrapHeader(payload []byte, format Format) []byte {
	out := make([]byte, 0, 6+len(payload))
	out = append(out, magic[:]...)
	out = append(out, version, byte(format))
	out = append(out, payload...)
	return out
}

// unwrapHeader validates/strips the header, or (legacy path) probes CBOR
// then MsgPack for blobs with no recognizable header.
func unwrapHeader(blob []byte) (Format, []byte, error) {
	if len(blob) >= 6 && bytes.Equal(blob[:4], magic[:]) {
		ver := blob[4]
		if ver != version {
			return 0, nil, vmerrors.New(vmerrors.CodeCodec,
				fmt.Sprintf("unsupported IR version: %d (expected %d)", ver, version), nil)
		}
		return Format(blob[5]), blob[6:], nil
	}
	for _, f := range []Format{FmtCBOR, FmtMsgPack} {
		if err := dumbProbe(blob, f); err == nil {
			return f, blob, nil
		}
	}
	return 0, nil, vmerrors.New(vmerrors.CodeCodec, "unrecognized IR blob (bad header and decode attempts failed)", nil)
}

func dumbProbe(blob []byte, f Format) error {
	var v any
	switch f {
	case FmtCBOR:
		return cbor.Unmarshal(blob, &v)
	case FmtMsgPack:
		return msgpack.Unmarshal(blob, &v)
	default:
		return fmt.Errorf("unknown format")
	}
}

func dumpPayload(v any, f Format) ([]byte, error) {
	switch f {
	case FmtCBOR:
		return cborEncMode.Marshal(v)
	case FmtMsgPack:
		return msgpack.Marshal(v)
	default:
		return nil, vmerrors.New(vmerrors.CodeCodec, fmt.Sprintf("unknown format byte: %v", f), nil)
	}
}

func loadPayload(data []byte, f Format, out any) error {
	switch f {
	case FmtCBOR:
		return cbor.Unmarshal(data, out)
	case FmtMsgPack:
		return msgpack.Unmarshal(data, out)
	default:
		return vmerrors.New(vmerrors.CodeCodec, fmt.Sprintf("unknown format byte: %v", f), nil)
	}
}

// IsCBORAvailable / IsMsgPackAvailable always report true: unlike the Python
// original (which probes optional third-party installs at import time), both
// codecs are compiled-in dependencies of this module.
func IsCBORAvailable() bool    { return true }
func IsMsgPackAvailable() bool { return true }

// ---------------------------------------------------------------------------
// Instruction-IR tags (I_TAGS), exactly instr.Op's iota ordering.
// ---------------------------------------------------------------------------

func encInstr(in instr.Instr) []any {
	tag := int(in.Op)
	switch in.Op {
	case instr.ILoadConst:
		return []any{tag, encConstValue(in.ConstInt, in.ConstBytes, in.ConstBool, in.ConstNull)}
	case instr.ILoadName, instr.IStoreName:
		return []any{tag, in.Name}
	case instr.IAttrGet:
		return []any{tag, in.Name}
	case instr.ISubscriptGet, instr.IPop, instr.IDup, instr.IReturn, instr.INop:
		return []any{tag}
	case instr.IBinOp, instr.IUnaryOp, instr.ICompare:
		return []any{tag, in.OpName}
	case instr.ICall:
		kws := make([]any, len(in.KwNames))
		for i, k := range in.KwNames {
			kws[i] = k
		}
		return []any{tag, in.NPos, kws}
	case instr.IJump, instr.IJumpIfTrue, instr.IJumpIfFalse:
		return []any{tag, in.Label}
	default:
		return []any{tag}
	}
}

func decInstr(item []any) (instr.Instr, error) {
	if len(item) == 0 {
		return instr.Instr{}, vmerrors.New(vmerrors.CodeCodec, "bad instruction payload", nil)
	}
	tag, err := asInt(item[0])
	if err != nil {
		return instr.Instr{}, err
	}
	op := instr.Op(tag)
	switch op {
	case instr.ILoadConst:
		ci, cb, cbool, cnull, err := decConstValue(item[1])
		if err != nil {
			return instr.Instr{}, err
		}
		return instr.Instr{Op: op, ConstInt: ci, ConstBytes: cb, ConstBool: cbool, ConstNull: cnull}, nil
	case instr.ILoadName, instr.IStoreName, instr.IAttrGet:
		s, err := asString(item[1])
		if err != nil {
			return instr.Instr{}, err
		}
		return instr.Instr{Op: op, Name: s}, nil
	case instr.ISubscriptGet, instr.IPop, instr.IDup, instr.IReturn, instr.INop:
		return instr.Instr{Op: op}, nil
	case instr.IBinOp, instr.IUnaryOp, instr.ICompare:
		s, err := asString(item[1])
		if err != nil {
			return instr.Instr{}, err
		}
		return instr.Instr{Op: op, OpName: s}, nil
	case instr.ICall:
		nPos, err := asInt(item[1])
		if err != nil {
			return instr.Instr{}, err
		}
		raw, ok := item[2].([]any)
		if !ok {
			return instr.Instr{}, vmerrors.New(vmerrors.CodeCodec, "bad ICall kw_names", nil)
		}
		kws := make([]string, len(raw))
		for i, r := range raw {
			s, err := asString(r)
			if err != nil {
				return instr.Instr{}, err
			}
			kws[i] = s
		}
		return instr.Instr{Op: op, NPos: nPos, KwNames: kws}, nil
	case instr.IJump, instr.IJumpIfTrue, instr.IJumpIfFalse:
		s, err := asString(item[1])
		if err != nil {
			return instr.Instr{}, err
		}
		return instr.Instr{Op: op, Label: s}, nil
	default:
		return instr.Instr{}, vmerrors.New(vmerrors.CodeCodec, fmt.Sprintf("unknown instruction tag: %d", tag), nil)
	}
}

func encBlock(b *instr.Block) []any {
	instrs := make([]any, len(b.Instrs))
	for i, in := range b.Instrs {
		instrs[i] = encInstr(in)
	}
	var ft any
	if b.Fallthrough != nil {
		ft = *b.Fallthrough
	}
	return []any{b.Label, instrs, ft}
}

func decBlock(item []any) (*instr.Block, error) {
	if len(item) != 3 {
		return nil, vmerrors.New(vmerrors.CodeCodec, "bad block payload", nil)
	}
	label, err := asString(item[0])
	if err != nil {
		return nil, err
	}
	rawInstrs, ok := item[1].([]any)
	if !ok {
		return nil, vmerrors.New(vmerrors.CodeCodec, "bad block instrs", nil)
	}
	instrs := make([]instr.Instr, len(rawInstrs))
	for i, ri := range rawInstrs {
		lst, ok := ri.([]any)
		if !ok {
			return nil, vmerrors.New(vmerrors.CodeCodec, "bad instr entry", nil)
		}
		in, err := decInstr(lst)
		if err != nil {
			return nil, err
		}
		instrs[i] = in
	}
	var ft *string
	if item[2] != nil {
		s, err := asString(item[2])
		if err != nil {
			return nil, err
		}
		ft = &s
	}
	return &instr.Block{Label: label, Instrs: instrs, Fallthrough: ft}, nil
}

// EncodeProg renders an instruction-IR program into a header-wrapped blob.
// prefer selects the wire codec (FmtCBOR or FmtMsgPack); there is no
// default, and any other value fails with a codec error.
func EncodeProg(p *instr.Prog, prefer Format) ([]byte, error) {
	blocks := p.SortedBlocks()
	encBlocks := make([]any, len(blocks))
	for i, nb := range blocks {
		encBlocks[i] = encBlock(nb.Blk)
	}
	payload := []any{"IR1", p.EntryLabel, encBlocks}
	body, err := dumpPayload(payload, prefer)
	if err != nil {
		return nil, err
	}
	return wrapHeader(body, prefer), nil
}

// DecodeProg parses a header-wrapped (or legacy) blob into an instruction-IR
// program.
func DecodeProg(blob []byte) (*instr.Prog, error) {
	f, payload, err := unwrapHeader(blob)
	if err != nil {
		return nil, err
	}
	var data []any
	if err := loadPayload(payload, f, &data); err != nil {
		return nil, vmerrors.Wrap(vmerrors.CodeCodec, "decode prog payload", err)
	}
	if len(data) != 3 {
		return nil, vmerrors.New(vmerrors.CodeCodec, "invalid Prog payload", nil)
	}
	schema, err := asString(data[0])
	if err != nil || schema != "IR1" {
		return nil, vmerrors.New(vmerrors.CodeCodec, "invalid Prog payload", nil)
	}
	entry, err := asString(data[1])
	if err != nil {
		return nil, err
	}
	rawBlocks, ok := data[2].([]any)
	if !ok {
		return nil, vmerrors.New(vmerrors.CodeCodec, "invalid Prog blocks", nil)
	}
	blocks := make([]instr.NamedBlock, 0, len(rawBlocks))
	for _, rb := range rawBlocks {
		lst, ok := rb.([]any)
		if !ok {
			return nil, vmerrors.New(vmerrors.CodeCodec, "invalid block entry", nil)
		}
		b, err := decBlock(lst)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, instr.NamedBlock{Label: b.Label, Blk: b})
	}
	return &instr.Prog{EntryLabel: entry, Blocks: blocks}, nil
}

// ---------------------------------------------------------------------------
// Structured-IR tags (E_*/S_*/F_FUNCTION/M_MODULE).
// ---------------------------------------------------------------------------

const (
	eConst  = 100
	eName   = 101
	eBinOp  = 102
	eBoolOp = 103
	eUnary  = 104
	eCmp    = 105
	eAttr   = 106
	eSub    = 107
	eCall   = 108

	sAssign = 200
	sExpr   = 201
	sReturn = 202
	sIf     = 203
	sWhile  = 204

	fFunction = 210
	mModule   = 211
)

func encConstValue(intStr *string, b []byte, boolean *bool, isNull bool) any {
	switch {
	case intStr != nil:
		bi, ok := new(big.Int).SetString(*intStr, 10)
		if !ok {
			return *intStr
		}
		return bi
	case b != nil:
		return b
	case boolean != nil:
		return *boolean
	case isNull:
		return nil
	default:
		return nil
	}
}

func decConstValue(v any) (intStr *string, b []byte, boolean *bool, isNull bool, err error) {
	switch t := v.(type) {
	case nil:
		return nil, nil, nil, true, nil
	case bool:
		bb := t
		return nil, nil, &bb, false, nil
	case []byte:
		return nil, t, nil, false, nil
	case *big.Int:
		s := t.String()
		return &s, nil, nil, false, nil
	case int64:
		s := fmt.Sprintf("%d", t)
		return &s, nil, nil, false, nil
	case uint64:
		s := fmt.Sprintf("%d", t)
		return &s, nil, nil, false, nil
	default:
		return nil, nil, nil, false, vmerrors.New(vmerrors.CodeCodec, fmt.Sprintf("unsupported const value type %T", v), nil)
	}
}

func encConst(c ir.Const) any {
	switch {
	case c.IsNull:
		return nil
	case c.Bool != nil:
		return *c.Bool
	case c.Int != nil:
		bi, ok := new(big.Int).SetString(*c.Int, 10)
		if ok {
			return bi
		}
		return *c.Int
	case c.Bytes != nil:
		return c.Bytes
	case c.List != nil:
		lst := make([]any, len(c.List))
		for i, v := range c.List {
			lst[i] = encConst(v)
		}
		return lst
	case c.Tuple != nil:
		lst := make([]any, len(c.Tuple))
		for i, v := range c.Tuple {
			lst[i] = encConst(v)
		}
		return lst
	default:
		return nil
	}
}

func encExpr(e *ir.Expr) []any {
	switch e.Kind {
	case ir.EConst:
		return []any{eConst, encConst(e.ConstVal)}
	case ir.EName:
		return []any{eName, e.Name}
	case ir.EBinOp:
		return []any{eBinOp, e.Op, encExpr(e.Left), encExpr(e.Right)}
	case ir.EBoolOp:
		vals := make([]any, len(e.Values))
		for i, v := range e.Values {
			vals[i] = encExpr(v)
		}
		return []any{eBoolOp, e.Op, vals}
	case ir.EUnaryOp:
		return []any{eUnary, e.Op, encExpr(e.Operand)}
	case ir.ECompare:
		return []any{eCmp, e.Op, encExpr(e.Left), encExpr(e.Right)}
	case ir.EAttribute:
		return []any{eAttr, encExpr(e.Value), e.Attr}
	case ir.ESubscript:
		return []any{eSub, encExpr(e.Value), encExpr(e.Index)}
	case ir.ECall:
		args := make([]any, len(e.Args))
		for i, a := range e.Args {
			args[i] = encExpr(a)
		}
		kwargs := make([]any, len(e.Kwargs))
		for i, kw := range e.Kwargs {
			kwargs[i] = []any{kw.Name, encExpr(kw.Value)}
		}
		return []any{eCall, encExpr(e.Func), args, kwargs}
	default:
		return []any{eConst, nil}
	}
}

func encStmt(s ir.Stmt) []any {
	switch s.Kind {
	case ir.SAssign:
		targets := make([]any, len(s.Targets))
		for i, t := range s.Targets {
			if t.Group != nil {
				grp := make([]any, len(t.Group))
				for j, n := range t.Group {
					grp[j] = n
				}
				targets[i] = grp
			} else {
				targets[i] = t.Name
			}
		}
		return []any{sAssign, targets, encExpr(s.Value)}
	case ir.SExprStmt:
		return []any{sExpr, encExpr(s.Expr)}
	case ir.SReturn:
		if s.Value == nil {
			return []any{sReturn, nil}
		}
		return []any{sReturn, encExpr(s.Value)}
	case ir.SIf:
		body := make([]any, len(s.Body))
		for i, st := range s.Body {
			body[i] = encStmt(st)
		}
		orelse := make([]any, len(s.OrElse))
		for i, st := range s.OrElse {
			orelse[i] = encStmt(st)
		}
		return []any{sIf, encExpr(s.Cond), body, orelse}
	case ir.SWhile:
		body := make([]any, len(s.Body))
		for i, st := range s.Body {
			body[i] = encStmt(st)
		}
		return []any{sWhile, encExpr(s.Cond), body}
	default:
		return []any{sExpr, nil}
	}
}

func encFunction(fn *ir.Function) []any {
	params := make([]any, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = p
	}
	body := make([]any, len(fn.Body))
	for i, s := range fn.Body {
		body[i] = encStmt(s)
	}
	return []any{fFunction, fn.Name, params, body}
}

// EncodeModule renders a structured-IR module into a header-wrapped blob.
func EncodeModule(m *ir.Module, prefer Format) ([]byte, error) {
	fns := m.SortedFunctions()
	encFns := make([]any, len(fns))
	for i, nf := range fns {
		encFns[i] = []any{nf.Name, encFunction(nf.Fn)}
	}
	payload := []any{mModule, m.Filename, encFns}
	body, err := dumpPayload(payload, prefer)
	if err != nil {
		return nil, err
	}
	return wrapHeader(body, prefer), nil
}

func decConst(v any) (ir.Const, error) {
	switch t := v.(type) {
	case nil:
		return ir.Const{IsNull: true}, nil
	case bool:
		b := t
		return ir.Const{Bool: &b}, nil
	case []byte:
		return ir.Const{Bytes: t}, nil
	case *big.Int:
		s := t.String()
		return ir.Const{Int: &s}, nil
	case int64:
		s := fmt.Sprintf("%d", t)
		return ir.Const{Int: &s}, nil
	case uint64:
		s := fmt.Sprintf("%d", t)
		return ir.Const{Int: &s}, nil
	case []any:
		lst := make([]ir.Const, len(t))
		for i, item := range t {
			c, err := decConst(item)
			if err != nil {
				return ir.Const{}, err
			}
			lst[i] = c
		}
		return ir.Const{List: lst}, nil
	default:
		return ir.Const{}, vmerrors.New(vmerrors.CodeCodec, fmt.Sprintf("unsupported const wire value %T", v), nil)
	}
}

func decExpr(n []any) (*ir.Expr, error) {
	if len(n) == 0 {
		return nil, vmerrors.New(vmerrors.CodeCodec, "empty expr node", nil)
	}
	tag, err := asInt(n[0])
	if err != nil {
		return nil, err
	}
	switch tag {
	case eConst:
		c, err := decConst(n[1])
		if err != nil {
			return nil, err
		}
		return &ir.Expr{Kind: ir.EConst, ConstVal: c}, nil
	case eName:
		s, err := asString(n[1])
		if err != nil {
			return nil, err
		}
		return &ir.Expr{Kind: ir.EName, Name: s}, nil
	case eBinOp:
		op, err := asString(n[1])
		if err != nil {
			return nil, err
		}
		l, err := decExprList(n[2])
		if err != nil {
			return nil, err
		}
		r, err := decExprList(n[3])
		if err != nil {
			return nil, err
		}
		return &ir.Expr{Kind: ir.EBinOp, Op: op, Left: l, Right: r}, nil
	case eBoolOp:
		op, err := asString(n[1])
		if err != nil {
			return nil, err
		}
		rawVals, ok := n[2].([]any)
		if !ok {
			return nil, vmerrors.New(vmerrors.CodeCodec, "bad BoolOp values", nil)
		}
		vals := make([]*ir.Expr, len(rawVals))
		for i, rv := range rawVals {
			v, err := decExprList(rv)
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		return &ir.Expr{Kind: ir.EBoolOp, Op: op, Values: vals}, nil
	case eUnary:
		op, err := asString(n[1])
		if err != nil {
			return nil, err
		}
		operand, err := decExprList(n[2])
		if err != nil {
			return nil, err
		}
		return &ir.Expr{Kind: ir.EUnaryOp, Op: op, Operand: operand}, nil
	case eCmp:
		op, err := asString(n[1])
		if err != nil {
			return nil, err
		}
		l, err := decExprList(n[2])
		if err != nil {
			return nil, err
		}
		r, err := decExprList(n[3])
		if err != nil {
			return nil, err
		}
		return &ir.Expr{Kind: ir.ECompare, Op: op, Left: l, Right: r}, nil
	case eAttr:
		val, err := decExprList(n[1])
		if err != nil {
			return nil, err
		}
		attr, err := asString(n[2])
		if err != nil {
			return nil, err
		}
		return &ir.Expr{Kind: ir.EAttribute, Value: val, Attr: attr}, nil
	case eSub:
		val, err := decExprList(n[1])
		if err != nil {
			return nil, err
		}
		idx, err := decExprList(n[2])
		if err != nil {
			return nil, err
		}
		return &ir.Expr{Kind: ir.ESubscript, Value: val, Index: idx}, nil
	case eCall:
		fn, err := decExprList(n[1])
		if err != nil {
			return nil, err
		}
		rawArgs, ok := n[2].([]any)
		if !ok {
			return nil, vmerrors.New(vmerrors.CodeCodec, "bad Call args", nil)
		}
		args := make([]*ir.Expr, len(rawArgs))
		for i, ra := range rawArgs {
			a, err := decExprList(ra)
			if err != nil {
				return nil, err
			}
			args[i] = a
		}
		rawKwargs, ok := n[3].([]any)
		if !ok {
			return nil, vmerrors.New(vmerrors.CodeCodec, "bad Call kwargs", nil)
		}
		kwargs := make([]ir.KwArg, len(rawKwargs))
		for i, rk := range rawKwargs {
			pair, ok := rk.([]any)
			if !ok || len(pair) != 2 {
				return nil, vmerrors.New(vmerrors.CodeCodec, "bad kwarg pair", nil)
			}
			name, err := asString(pair[0])
			if err != nil {
				return nil, err
			}
			v, err := decExprList(pair[1])
			if err != nil {
				return nil, err
			}
			kwargs[i] = ir.KwArg{Name: name, Value: v}
		}
		return &ir.Expr{Kind: ir.ECall, Func: fn, Args: args, Kwargs: kwargs}, nil
	default:
		return nil, vmerrors.New(vmerrors.CodeCodec, fmt.Sprintf("unknown Expr tag: %d", tag), nil)
	}
}

func decExprList(v any) (*ir.Expr, error) {
	lst, ok := v.([]any)
	if !ok {
		return nil, vmerrors.New(vmerrors.CodeCodec, "expected expr node list", nil)
	}
	return decExpr(lst)
}

func decStmt(n []any) (ir.Stmt, error) {
	tag, err := asInt(n[0])
	if err != nil {
		return ir.Stmt{}, err
	}
	switch tag {
	case sAssign:
		rawTargets, ok := n[1].([]any)
		if !ok {
			return ir.Stmt{}, vmerrors.New(vmerrors.CodeCodec, "bad Assign targets", nil)
		}
		targets := make([]ir.AssignTarget, len(rawTargets))
		for i, rt := range rawTargets {
			if grp, ok := rt.([]any); ok {
				names := make([]string, len(grp))
				for j, g := range grp {
					s, err := asString(g)
					if err != nil {
						return ir.Stmt{}, err
					}
					names[j] = s
				}
				targets[i] = ir.AssignTarget{Group: names}
			} else {
				s, err := asString(rt)
				if err != nil {
					return ir.Stmt{}, err
				}
				targets[i] = ir.AssignTarget{Name: s}
			}
		}
		val, err := decExprList(n[2])
		if err != nil {
			return ir.Stmt{}, err
		}
		return ir.Stmt{Kind: ir.SAssign, Targets: targets, Value: val}, nil
	case sExpr:
		e, err := decExprList(n[1])
		if err != nil {
			return ir.Stmt{}, err
		}
		return ir.Stmt{Kind: ir.SExprStmt, Expr: e}, nil
	case sReturn:
		if n[1] == nil {
			return ir.Stmt{Kind: ir.SReturn}, nil
		}
		v, err := decExprList(n[1])
		if err != nil {
			return ir.Stmt{}, err
		}
		return ir.Stmt{Kind: ir.SReturn, Value: v}, nil
	case sIf:
		cond, err := decExprList(n[1])
		if err != nil {
			return ir.Stmt{}, err
		}
		body, err := decStmtList(n[2])
		if err != nil {
			return ir.Stmt{}, err
		}
		orelse, err := decStmtList(n[3])
		if err != nil {
			return ir.Stmt{}, err
		}
		return ir.Stmt{Kind: ir.SIf, Cond: cond, Body: body, OrElse: orelse}, nil
	case sWhile:
		cond, err := decExprList(n[1])
		if err != nil {
			return ir.Stmt{}, err
		}
		body, err := decStmtList(n[2])
		if err != nil {
			return ir.Stmt{}, err
		}
		return ir.Stmt{Kind: ir.SWhile, Cond: cond, Body: body}, nil
	default:
		return ir.Stmt{}, vmerrors.New(vmerrors.CodeCodec, fmt.Sprintf("unknown Stmt tag: %d", tag), nil)
	}
}

func decStmtList(v any) ([]ir.Stmt, error) {
	raw, ok := v.([]any)
	if !ok {
		return nil, vmerrors.New(vmerrors.CodeCodec, "expected stmt list", nil)
	}
	out := make([]ir.Stmt, len(raw))
	for i, r := range raw {
		lst, ok := r.([]any)
		if !ok {
			return nil, vmerrors.New(vmerrors.CodeCodec, "bad stmt entry", nil)
		}
		s, err := decStmt(lst)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func decFunction(n []any) (*ir.Function, error) {
	tag, err := asInt(n[0])
	if err != nil || tag != fFunction {
		return nil, vmerrors.New(vmerrors.CodeCodec, "function tag mismatch", nil)
	}
	name, err := asString(n[1])
	if err != nil {
		return nil, err
	}
	rawParams, ok := n[2].([]any)
	if !ok {
		return nil, vmerrors.New(vmerrors.CodeCodec, "bad function params", nil)
	}
	params := make([]string, len(rawParams))
	for i, p := range rawParams {
		s, err := asString(p)
		if err != nil {
			return nil, err
		}
		params[i] = s
	}
	body, err := decStmtList(n[3])
	if err != nil {
		return nil, err
	}
	return &ir.Function{Name: name, Params: params, Body: body}, nil
}

// DecodeModule parses a header-wrapped (or legacy) blob into a structured-IR
// module.
func DecodeModule(blob []byte) (*ir.Module, error) {
	f, payload, err := unwrapHeader(blob)
	if err != nil {
		return nil, err
	}
	var data []any
	if err := loadPayload(payload, f, &data); err != nil {
		return nil, vmerrors.Wrap(vmerrors.CodeCodec, "decode module payload", err)
	}
	if len(data) != 3 {
		return nil, vmerrors.New(vmerrors.CodeCodec, "invalid Module payload", nil)
	}
	tag, err := asInt(data[0])
	if err != nil || tag != mModule {
		return nil, vmerrors.New(vmerrors.CodeCodec, "invalid Module payload", nil)
	}
	filename, err := asString(data[1])
	if err != nil {
		return nil, err
	}
	rawFns, ok := data[2].([]any)
	if !ok {
		return nil, vmerrors.New(vmerrors.CodeCodec, "invalid Module functions", nil)
	}
	fns := make([]ir.NamedFunction, 0, len(rawFns))
	for _, rf := range rawFns {
		pair, ok := rf.([]any)
		if !ok || len(pair) != 2 {
			return nil, vmerrors.New(vmerrors.CodeCodec, "bad function pair", nil)
		}
		name, err := asString(pair[0])
		if err != nil {
			return nil, err
		}
		fnNode, ok := pair[1].([]any)
		if !ok {
			return nil, vmerrors.New(vmerrors.CodeCodec, "bad function node", nil)
		}
		fn, err := decFunction(fnNode)
		if err != nil {
			return nil, err
		}
		fns = append(fns, ir.NamedFunction{Name: name, Fn: fn})
	}
	return &ir.Module{Filename: filename, Functions: fns}, nil
}

// ---------------------------------------------------------------------------
// small coercion helpers over the any-typed CBOR/MsgPack decode tree.
// ---------------------------------------------------------------------------

func asInt(v any) (int, error) {
	switch t := v.(type) {
	case int64:
		return int(t), nil
	case uint64:
		return int(t), nil
	case int:
		return t, nil
	case *big.Int:
		return int(t.Int64()), nil
	default:
		return 0, vmerrors.New(vmerrors.CodeCodec, fmt.Sprintf("expected int, got %T", v), nil)
	}
}

func asString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	default:
		return "", vmerrors.New(vmerrors.CodeCodec, fmt.Sprintf("expected string, got %T", v), nil)
	}
}
