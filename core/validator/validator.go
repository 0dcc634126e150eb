// Package validator implements the source validator: it parses a
// Python-subset contract source into an internal/pyast tree and rejects
// anything outside the deterministic subset, returning either a validated
// *pyast.Module or a structured *vmerrors.VmError. Grounded on
// original_source/vm_py/validate.py's _Validator(ast.NodeVisitor), with the
// supplementary per-builtin arity/kwarg rules folded in from
// original_source/vm_py/compiler/builtins_allowlist.py.
package validator

import (
	"strings"

	"github.com/animica-labs/pyvm/core/vmerrors"
	"github.com/animica-labs/pyvm/internal/pyast"
	"github.com/animica-labs/pyvm/internal/pyparse"
)

// Caps, matching validate.py's module-level constants.
const (
	MaxSourceBytes     = 64 * 1024
	MaxASTNodes        = 5000
	MaxFuncArgs        = 8
	MaxNestedFuncDepth = 4
	MaxLiteralBytes    = 16 * 1024
)

// AllowedStdlibNames are the only importable `stdlib` submodules.
var AllowedStdlibNames = map[string]bool{
	"storage":  true,
	"events":   true,
	"abi":      true,
	"hash":     true,
	"treasury": true,
	"syscalls": true,
	"random":   true,
}

type builtinRule struct {
	min, max int // max == -1 means unbounded
	kwargs   map[string]bool
}

// allowedBuiltins carries both membership and the arity/kwarg shape each
// allowed builtin call must satisfy, grounded on builtins_allowlist.py's
// BuiltinRule table.
var allowedBuiltins = map[string]builtinRule{
	"len":       {min: 1, max: 1},
	"range":     {min: 1, max: 3},
	"enumerate": {min: 1, max: 2, kwargs: map[string]bool{"start": true}},
	"reversed":  {min: 1, max: 1},
	"min":       {min: 1, max: -1},
	"max":       {min: 1, max: -1},
	"abs":       {min: 1, max: 1},
	"all":       {min: 1, max: 1},
	"any":       {min: 1, max: 1},
	"sum":       {min: 1, max: 2},
	"bool":      {min: 1, max: 1},
	"int":       {min: 1, max: 2, kwargs: map[string]bool{"base": true}},
	"bytes":     {min: 1, max: 1},
	"sorted":    {min: 1, max: -1, kwargs: map[string]bool{"reverse": true}},
}

// blockedBuiltins are Python builtins explicitly never allowed, even
// without the arity table — `hash` in particular is flagged nondeterministic
// across process hash-seeds in builtins_allowlist.py.
var blockedBuiltins = map[string]bool{
	"hash": true, "memoryview": true, "format": true, "type": true,
	"getattr": true, "setattr": true, "delattr": true, "exec": true,
	"eval": true, "compile": true, "open": true, "input": true,
	"print": true, "vars": true, "globals": true, "locals": true,
	"dir": true, "id": true, "super": true, "issubclass": true,
	"isinstance": true, "callable": true, "staticmethod": true,
	"classmethod": true, "property": true, "__import__": true,
	"iter": true, "next": true, "map": true, "filter": true, "zip": true,
	"frozenset": true, "set": true, "dict": true, "list": true,
	"tuple": true, "str": true, "float": true, "complex": true,
	"divmod": true, "pow": true, "round": true, "oct": true, "hex": true,
	"bin": true, "chr": true, "ord": true, "repr": true, "ascii": true,
	"bytearray": true, "slice": true, "object": true, "hasattr": true,
}

func vErr(code, msg string, ctx map[string]any) *vmerrors.VmError {
	return vmerrors.New(code, msg, ctx)
}

// v holds traversal state for a single Validate call.
type v struct {
	nodeCount      int
	importedStdlib map[string]bool
}

// Validate parses and validates src, returning the validated module or a
// structured VmError describing the first rule violated.
func Validate(src string) (*pyast.Module, error) {
	if len(src) > MaxSourceBytes {
		return nil, vErr(vmerrors.CodeValidationSize, "source exceeds max size", map[string]any{
			"length": len(src), "max": MaxSourceBytes,
		})
	}
	mod, err := pyparse.Parse(src)
	if err != nil {
		return nil, vErr(vmerrors.CodeValidationGeneric, err.Error(), nil)
	}
	vv := &v{importedStdlib: map[string]bool{}}
	if err := vv.visitModule(mod); err != nil {
		return nil, err
	}
	return mod, nil
}

func (vv *v) bump() error {
	vv.nodeCount++
	if vv.nodeCount > MaxASTNodes {
		return vErr(vmerrors.CodeValidationNodeCap, "too many AST nodes", map[string]any{
			"count": vv.nodeCount, "max": MaxASTNodes,
		})
	}
	return nil
}

func isPrivateName(name string) bool {
	return strings.HasPrefix(name, "_")
}

// ---- module level ---------------------------------------------------------

func (vv *v) visitModule(m *pyast.Module) error {
	if err := vv.bump(); err != nil {
		return err
	}
	seenFuncs := map[string]bool{}
	for i, st := range m.Body {
		// A leading bare string-literal expression statement is a docstring.
		if i == 0 {
			if es, ok := st.(*pyast.ExprStmt); ok {
				if c, ok := es.Value.(*pyast.Constant); ok && c.Kind == pyast.ConstStr {
					continue
				}
			}
		}
		switch s := st.(type) {
		case *pyast.Import:
			if err := vv.checkImport(s); err != nil {
				return err
			}
		case *pyast.ImportFrom:
			if err := vv.checkImportFrom(s); err != nil {
				return err
			}
		case *pyast.Assign:
			if err := vv.checkModuleAssign(s); err != nil {
				return err
			}
		case *pyast.AnnAssign:
			if err := vv.checkModuleAssign(&pyast.Assign{Base: s.Base, Targets: []pyast.Expr{s.Target}, Value: s.Value}); err != nil {
				return err
			}
		case *pyast.FunctionDef:
			if isPrivateName(s.Name) {
				return vErr(vmerrors.CodeValidationPrivate, "private function name at module scope", map[string]any{"name": s.Name})
			}
			if seenFuncs[s.Name] {
				return vErr(vmerrors.CodeValidationNode, "duplicate function definition", map[string]any{"name": s.Name})
			}
			seenFuncs[s.Name] = true
			if err := vv.visitFunctionDef(s, 1); err != nil {
				return err
			}
		case *pyast.ExprStmt:
			if _, ok := s.Value.(*pyast.Constant); !ok {
				return vErr(vmerrors.CodeValidationNode, "module-level statement not supported", map[string]any{"kind": "ExprStmt"})
			}
		default:
			return vErr(vmerrors.CodeValidationNode, "module-level statement not supported", map[string]any{"kind": kindOfStmt(st)})
		}
	}
	return nil
}

func (vv *v) checkImport(s *pyast.Import) error {
	if err := vv.bump(); err != nil {
		return err
	}
	for _, al := range s.Names {
		if al.Name != "stdlib" {
			return vErr(vmerrors.CodeForbiddenImport, "only the stdlib module may be imported", map[string]any{"module": al.Name})
		}
		if al.AsName != "" {
			return vErr(vmerrors.CodeValidationNode, "import aliasing is forbidden", map[string]any{"module": al.Name})
		}
		vv.importedStdlib["stdlib"] = true
	}
	return nil
}

func (vv *v) checkImportFrom(s *pyast.ImportFrom) error {
	if err := vv.bump(); err != nil {
		return err
	}
	if s.Level != 0 {
		return vErr(vmerrors.CodeForbiddenImport, "relative imports are forbidden", nil)
	}
	if s.Module != "stdlib" {
		return vErr(vmerrors.CodeForbiddenImport, "only imports from stdlib are allowed", map[string]any{"module": s.Module})
	}
	for _, al := range s.Names {
		if al.Name == "*" {
			return vErr(vmerrors.CodeValidationWildcard, "wildcard import is forbidden", nil)
		}
		if al.AsName != "" {
			return vErr(vmerrors.CodeValidationNode, "import aliasing is forbidden", map[string]any{"name": al.Name})
		}
		if !AllowedStdlibNames[al.Name] {
			return vErr(vmerrors.CodeForbiddenImport, "stdlib submodule not allowed", map[string]any{"name": al.Name})
		}
		vv.importedStdlib[al.Name] = true
	}
	return nil
}

func (vv *v) checkModuleAssign(s *pyast.Assign) error {
	if err := vv.bump(); err != nil {
		return err
	}
	for _, t := range s.Targets {
		name, ok := t.(*pyast.NameExpr)
		if !ok {
			return vErr(vmerrors.CodeValidationNode, "module-level assignment target must be a simple name", nil)
		}
		if isPrivateName(name.ID) {
			return vErr(vmerrors.CodeValidationPrivate, "private name at module scope", map[string]any{"name": name.ID})
		}
	}
	if s.Value != nil {
		if err := vv.checkConstantLike(s.Value, 0); err != nil {
			return err
		}
	}
	return nil
}

func (vv *v) checkConstantLike(e pyast.Expr, depth int) error {
	if depth > MaxNestedFuncDepth {
		return vErr(vmerrors.CodeValidationDepth, "module-level constant literal nested too deeply", map[string]any{"depth": depth})
	}
	switch ex := e.(type) {
	case *pyast.Constant:
		return vv.checkLiteralSize(ex)
	case *pyast.ListLit:
		for _, el := range ex.Elts {
			if err := vv.checkConstantLike(el, depth+1); err != nil {
				return err
			}
		}
		return nil
	case *pyast.TupleLit:
		for _, el := range ex.Elts {
			if err := vv.checkConstantLike(el, depth+1); err != nil {
				return err
			}
		}
		return nil
	case *pyast.DictLit:
		for i := range ex.Keys {
			if ex.Keys[i] != nil {
				if err := vv.checkConstantLike(ex.Keys[i], depth+1); err != nil {
					return err
				}
			}
			if err := vv.checkConstantLike(ex.Values[i], depth+1); err != nil {
				return err
			}
		}
		return nil
	default:
		return vErr(vmerrors.CodeValidationNode, "module-level assignment value must be a constant literal", nil)
	}
}

func (vv *v) checkLiteralSize(c *pyast.Constant) error {
	n := len(c.Bytes) + len(c.Str)
	if n > MaxLiteralBytes {
		return vErr(vmerrors.CodeValidationSize, "literal exceeds max size", map[string]any{"length": n, "max": MaxLiteralBytes})
	}
	if c.Kind == pyast.ConstFloat {
		return vErr(vmerrors.CodeValidationNode, "float literals are not supported (DET003)", nil)
	}
	return nil
}

// ---- functions --------------------------------------------------------

func (vv *v) visitFunctionDef(fn *pyast.FunctionDef, depth int) error {
	if err := vv.bump(); err != nil {
		return err
	}
	if depth > MaxNestedFuncDepth {
		return vErr(vmerrors.CodeValidationDepth, "function nesting too deep", map[string]any{"depth": depth, "max": MaxNestedFuncDepth})
	}
	if len(fn.Decorator) > 0 {
		return vErr(vmerrors.CodeValidationNode, "decorators are forbidden", nil)
	}
	a := fn.Args
	if a == nil {
		a = &pyast.Arguments{}
	}
	if a.Vararg != nil || a.Kwarg != nil || len(a.KwOnlyArgs) > 0 || len(a.PosOnly) > 0 {
		return vErr(vmerrors.CodeValidationArgs, "variadic/keyword-only/positional-only parameters are forbidden", nil)
	}
	if len(a.Args) > MaxFuncArgs {
		return vErr(vmerrors.CodeValidationArgs, "too many parameters", map[string]any{"count": len(a.Args), "max": MaxFuncArgs})
	}
	for _, p := range a.Args {
		if isPrivateName(p.Name) {
			return vErr(vmerrors.CodeValidationPrivate, "private parameter name", map[string]any{"name": p.Name})
		}
	}
	seenFuncs := map[string]bool{}
	for i, st := range fn.Body {
		if i == 0 {
			if es, ok := st.(*pyast.ExprStmt); ok {
				if c, ok := es.Value.(*pyast.Constant); ok && c.Kind == pyast.ConstStr {
					continue
				}
			}
		}
		if nested, ok := st.(*pyast.FunctionDef); ok {
			if isPrivateName(nested.Name) {
				return vErr(vmerrors.CodeValidationPrivate, "private function name", map[string]any{"name": nested.Name})
			}
			if seenFuncs[nested.Name] {
				return vErr(vmerrors.CodeValidationNode, "duplicate function definition", map[string]any{"name": nested.Name})
			}
			seenFuncs[nested.Name] = true
			if err := vv.visitFunctionDef(nested, depth+1); err != nil {
				return err
			}
			continue
		}
		if err := vv.visitStmt(st); err != nil {
			return err
		}
	}
	return nil
}

// ---- statements ---------------------------------------------------------

func (vv *v) visitStmt(st pyast.Stmt) error {
	if err := vv.bump(); err != nil {
		return err
	}
	switch s := st.(type) {
	case *pyast.Assign:
		for _, t := range s.Targets {
			if err := vv.checkAssignTarget(t); err != nil {
				return err
			}
		}
		return vv.visitExpr(s.Value)
	case *pyast.AugAssign:
		if _, ok := s.Target.(*pyast.NameExpr); !ok {
			return vErr(vmerrors.CodeValidationNode, "augmented assignment target must be a simple name", nil)
		}
		if err := vv.checkAssignTarget(s.Target); err != nil {
			return err
		}
		return vv.visitExpr(s.Value)
	case *pyast.If:
		if err := vv.visitExpr(s.Test); err != nil {
			return err
		}
		for _, b := range s.Body {
			if err := vv.visitStmt(b); err != nil {
				return err
			}
		}
		for _, b := range s.Orelse {
			if err := vv.visitStmt(b); err != nil {
				return err
			}
		}
		return nil
	case *pyast.While:
		if len(s.Orelse) > 0 {
			return vErr(vmerrors.CodeValidationNode, "while/else is forbidden", nil)
		}
		if err := vv.visitExpr(s.Test); err != nil {
			return err
		}
		for _, b := range s.Body {
			if err := vv.visitStmt(b); err != nil {
				return err
			}
		}
		return nil
	case *pyast.Return:
		if s.Value == nil {
			return nil
		}
		return vv.visitExpr(s.Value)
	case *pyast.Pass:
		return nil
	case *pyast.ExprStmt:
		if c, ok := s.Value.(*pyast.Constant); ok && c.Kind == pyast.ConstStr {
			return nil
		}
		return vv.visitExpr(s.Value)
	default:
		return vErr(vmerrors.CodeValidationNode, "statement not supported", map[string]any{"kind": kindOfStmt(st)})
	}
}

func (vv *v) checkAssignTarget(e pyast.Expr) error {
	switch t := e.(type) {
	case *pyast.NameExpr:
		if isPrivateName(t.ID) {
			return vErr(vmerrors.CodeValidationPrivate, "private name assignment target", map[string]any{"name": t.ID})
		}
		return nil
	case *pyast.TupleLit:
		for _, el := range t.Elts {
			if err := vv.checkAssignTarget(el); err != nil {
				return err
			}
		}
		return nil
	case *pyast.ListLit:
		for _, el := range t.Elts {
			if err := vv.checkAssignTarget(el); err != nil {
				return err
			}
		}
		return nil
	default:
		return vErr(vmerrors.CodeValidationNode, "assignment target must be a simple name or tuple/list of names", nil)
	}
}

// ---- expressions --------------------------------------------------------

func (vv *v) visitExpr(e pyast.Expr) error {
	if e == nil {
		return nil
	}
	if err := vv.bump(); err != nil {
		return err
	}
	switch ex := e.(type) {
	case *pyast.Constant:
		return vv.checkLiteralSize(ex)
	case *pyast.NameExpr:
		if ex.ID == "__builtins__" {
			return vErr(vmerrors.CodeValidationNode, "__builtins__ access is forbidden", nil)
		}
		return nil
	case *pyast.BinOp:
		if err := vv.visitExpr(ex.Left); err != nil {
			return err
		}
		return vv.visitExpr(ex.Right)
	case *pyast.BoolOp:
		if len(ex.Values) < 2 {
			return vErr(vmerrors.CodeValidationNode, "boolean operation requires at least two operands", nil)
		}
		for _, v2 := range ex.Values {
			if err := vv.visitExpr(v2); err != nil {
				return err
			}
		}
		return nil
	case *pyast.UnaryOp:
		return vv.visitExpr(ex.Operand)
	case *pyast.Compare:
		if len(ex.Ops) != 1 || len(ex.Comparators) != 1 {
			return vErr(vmerrors.CodeValidationNode, "chained comparisons are forbidden", nil)
		}
		if err := vv.visitExpr(ex.Left); err != nil {
			return err
		}
		return vv.visitExpr(ex.Comparators[0])
	case *pyast.IfExp:
		if err := vv.visitExpr(ex.Test); err != nil {
			return err
		}
		if err := vv.visitExpr(ex.Body); err != nil {
			return err
		}
		return vv.visitExpr(ex.Orelse)
	case *pyast.ListLit:
		for _, el := range ex.Elts {
			if err := vv.visitExpr(el); err != nil {
				return err
			}
		}
		return nil
	case *pyast.TupleLit:
		for _, el := range ex.Elts {
			if err := vv.visitExpr(el); err != nil {
				return err
			}
		}
		return nil
	case *pyast.DictLit:
		for i := range ex.Values {
			if ex.Keys[i] == nil {
				return vErr(vmerrors.CodeValidationNode, "dict unpacking is forbidden", nil)
			}
			if err := vv.visitExpr(ex.Keys[i]); err != nil {
				return err
			}
			if err := vv.visitExpr(ex.Values[i]); err != nil {
				return err
			}
		}
		return nil
	case *pyast.Attribute:
		if isPrivateName(ex.Attr) {
			return vErr(vmerrors.CodeValidationPrivate, "private/dunder attribute access is forbidden", map[string]any{"attr": ex.Attr})
		}
		return vv.visitExpr(ex.Value)
	case *pyast.Subscript:
		if _, ok := ex.Index.(*pyast.SliceExpr); ok {
			return vErr(vmerrors.CodeValidationNode, "slice objects are forbidden", nil)
		}
		if err := vv.visitExpr(ex.Value); err != nil {
			return err
		}
		return vv.visitExpr(ex.Index)
	case *pyast.Call:
		return vv.visitCall(ex)
	default:
		return vErr(vmerrors.CodeValidationNode, "expression kind not supported", map[string]any{"kind": kindOfExpr(e)})
	}
}

func (vv *v) visitCall(c *pyast.Call) error {
	for _, a := range c.Args {
		if _, ok := a.(*pyast.Starred); ok {
			return vErr(vmerrors.CodeValidationNode, "*-unpacking in a call is forbidden", nil)
		}
		if err := vv.visitExpr(a); err != nil {
			return err
		}
	}
	kwNames := make(map[string]bool, len(c.Keywords))
	for _, kw := range c.Keywords {
		if kw.Name == "" {
			return vErr(vmerrors.CodeValidationNode, "**-unpacking in a call is forbidden", nil)
		}
		kwNames[kw.Name] = true
		if err := vv.visitExpr(kw.Value); err != nil {
			return err
		}
	}

	switch fn := c.Func.(type) {
	case *pyast.NameExpr:
		return vv.checkNameCallShape(fn.ID, len(c.Args), kwNames)
	case *pyast.Attribute:
		return vv.checkAttributeCallShape(fn, len(c.Args), kwNames)
	default:
		return vErr(vmerrors.CodeValidationNode, "unsupported call target", nil)
	}
}

func (vv *v) checkNameCallShape(name string, nArgs int, kwNames map[string]bool) error {
	if blockedBuiltins[name] {
		return vErr(vmerrors.CodeValidationBuiltin, "builtin is not allowed", map[string]any{"name": name})
	}
	if rule, ok := allowedBuiltins[name]; ok {
		if nArgs < rule.min || (rule.max >= 0 && nArgs > rule.max) {
			return vErr(vmerrors.CodeValidationBuiltin, "builtin called with wrong number of arguments", map[string]any{
				"name": name, "args": nArgs, "min": rule.min, "max": rule.max,
			})
		}
		for kw := range kwNames {
			if rule.kwargs == nil || !rule.kwargs[kw] {
				return vErr(vmerrors.CodeValidationBuiltin, "builtin called with unsupported keyword argument", map[string]any{
					"name": name, "kwarg": kw,
				})
			}
		}
		return nil
	}
	// Not a known builtin: treated as a call to a user-defined function,
	// which the lowerer/typechecker resolves later by name.
	if isPrivateName(name) {
		return vErr(vmerrors.CodeValidationPrivate, "call to a private name", map[string]any{"name": name})
	}
	return nil
}

func (vv *v) checkAttributeCallShape(attr *pyast.Attribute, nArgs int, kwNames map[string]bool) error {
	if isPrivateName(attr.Attr) {
		return vErr(vmerrors.CodeValidationPrivate, "private/dunder attribute access is forbidden", map[string]any{"attr": attr.Attr})
	}
	switch base := attr.Value.(type) {
	case *pyast.Attribute:
		// stdlib.<module>.<func>(...) — exactly three levels.
		rootName, ok := base.Value.(*pyast.NameExpr)
		if !ok || rootName.ID != "stdlib" || !vv.importedStdlib["stdlib"] {
			return vErr(vmerrors.CodeValidationCallShpe, "unsupported stdlib call shape", nil)
		}
		if !AllowedStdlibNames[base.Attr] {
			return vErr(vmerrors.CodeValidationCallShpe, "unknown stdlib submodule", map[string]any{"module": base.Attr})
		}
		return nil
	case *pyast.NameExpr:
		// <module>.<func>(...) — module must be an imported stdlib submodule.
		if !vv.importedStdlib[base.ID] || !AllowedStdlibNames[base.ID] {
			return vErr(vmerrors.CodeValidationCallShpe, "stdlib submodule not imported", map[string]any{"module": base.ID})
		}
		return nil
	default:
		return vErr(vmerrors.CodeValidationCallShpe, "unsupported call shape", nil)
	}
}

// ---- small diagnostics helpers -------------------------------------------

func kindOfStmt(s pyast.Stmt) string {
	switch s.(type) {
	case *pyast.ClassDef:
		return "ClassDef"
	case *pyast.Try:
		return "Try"
	case *pyast.Raise:
		return "Raise"
	case *pyast.With:
		return "With"
	case *pyast.Global:
		return "Global"
	case *pyast.Nonlocal:
		return "Nonlocal"
	case *pyast.Delete:
		return "Delete"
	case *pyast.For:
		return "For"
	case *pyast.Assert:
		return "Assert"
	case *pyast.AsyncFunctionDef:
		return "AsyncFunctionDef"
	case *pyast.Import:
		return "Import"
	case *pyast.ImportFrom:
		return "ImportFrom"
	default:
		return "unknown"
	}
}

func kindOfExpr(e pyast.Expr) string {
	switch e.(type) {
	case *pyast.Lambda:
		return "Lambda"
	case *pyast.ListComp:
		return "ListComp"
	case *pyast.SetComp:
		return "SetComp"
	case *pyast.DictComp:
		return "DictComp"
	case *pyast.GeneratorExp:
		return "GeneratorExp"
	case *pyast.Await:
		return "Await"
	case *pyast.Yield:
		return "Yield"
	case *pyast.YieldFrom:
		return "YieldFrom"
	case *pyast.SetLit:
		return "SetLit"
	case *pyast.Starred:
		return "Starred"
	case *pyast.SliceExpr:
		return "SliceExpr"
	default:
		return "unknown"
	}
}
