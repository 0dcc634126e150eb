// Package pyparse implements a hand-written recursive-descent parser over
// internal/pytoken's token stream, producing an internal/pyast tree.
//
// No example repo in the corpus ships a Python front end, so this parser
// (like internal/pytoken) has no direct teacher/example grounding beyond
// "write it the way go/parser reads a go/scanner token stream": a single
// Parser struct holding a token slice and a cursor, one method per grammar
// production, explicit error returns instead of panics. Logged in
// DESIGN.md as the one mostly-original component.
//
// The parser accepts more syntax than the contract language allows
// (comprehensions, try/except, classes, lambdas, ...) on purpose: rejecting
// those forms is core/validator's job, not the parser's, so the validator
// can report a precise "node kind X is not supported" error instead of the
// parser failing with a generic syntax error.
package pyparse

import (
	"fmt"

	"github.com/animica-labs/pyvm/internal/pyast"
	"github.com/animica-labs/pyvm/internal/pytoken"
)

// Parser consumes a flat token stream and builds a pyast.Module.
type Parser struct {
	toks []pytoken.Token
	pos  int
}

// Parse tokenizes and parses source into a Module.
func Parse(src string) (*pyast.Module, error) {
	lx := pytoken.New(src)
	toks, err := lx.Tokenize()
	if err != nil {
		return nil, fmt.Errorf("pyparse: %w", err)
	}
	p := &Parser{toks: toks}
	return p.parseModule()
}

func (p *Parser) cur() pytoken.Token  { return p.toks[p.pos] }
func (p *Parser) atEOF() bool         { return p.cur().Kind == pytoken.EOF }
func (p *Parser) advance() pytoken.Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) posOf(t pytoken.Token) pyast.Pos { return pyast.NewPos(t.Line, t.Col) }

func (p *Parser) isOp(v string) bool {
	t := p.cur()
	return t.Kind == pytoken.OP && t.Value == v
}

func (p *Parser) isKeyword(v string) bool {
	t := p.cur()
	return t.Kind == pytoken.KEYWORD && t.Value == v
}

func (p *Parser) expectOp(v string) (pytoken.Token, error) {
	if !p.isOp(v) {
		return pytoken.Token{}, p.errf("expected %q", v)
	}
	return p.advance(), nil
}

func (p *Parser) expectKeyword(v string) (pytoken.Token, error) {
	if !p.isKeyword(v) {
		return pytoken.Token{}, p.errf("expected keyword %q", v)
	}
	return p.advance(), nil
}

func (p *Parser) expectKind(k pytoken.Kind, what string) (pytoken.Token, error) {
	if p.cur().Kind != k {
		return pytoken.Token{}, p.errf("expected %s", what)
	}
	return p.advance(), nil
}

func (p *Parser) errf(format string, args ...any) error {
	t := p.cur()
	msg := fmt.Sprintf(format, args...)
	return fmt.Errorf("pyparse: %s at %d:%d (got %s %q)", msg, t.Line, t.Col, kindName(t.Kind), t.Value)
}

func kindName(k pytoken.Kind) string {
	switch k {
	case pytoken.EOF:
		return "EOF"
	case pytoken.NEWLINE:
		return "NEWLINE"
	case pytoken.INDENT:
		return "INDENT"
	case pytoken.DEDENT:
		return "DEDENT"
	case pytoken.NAME:
		return "NAME"
	case pytoken.NUMBER:
		return "NUMBER"
	case pytoken.STRING:
		return "STRING"
	case pytoken.KEYWORD:
		return "KEYWORD"
	case pytoken.OP:
		return "OP"
	default:
		return "?"
	}
}

// skipNewlines consumes zero or more blank NEWLINE tokens (blank lines
// between statements).
func (p *Parser) skipNewlines() {
	for p.cur().Kind == pytoken.NEWLINE {
		p.advance()
	}
}

// ---- Module / blocks ----------------------------------------------------

func (p *Parser) parseModule() (*pyast.Module, error) {
	start := p.posOf(p.cur())
	var body []pyast.Stmt
	p.skipNewlines()
	for !p.atEOF() {
		st, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		body = append(body, st...)
		p.skipNewlines()
	}
	return &pyast.Module{Base: pyast.Base{P: start}, Body: body}, nil
}

// parseBlock parses an indented `:` suite: NEWLINE INDENT stmt+ DEDENT.
func (p *Parser) parseBlock() ([]pyast.Stmt, error) {
	if _, err := p.expectOp(":"); err != nil {
		return nil, err
	}
	if p.cur().Kind == pytoken.NEWLINE {
		p.advance()
		p.skipNewlines()
		if _, err := p.expectKind(pytoken.INDENT, "indented block"); err != nil {
			return nil, err
		}
		var out []pyast.Stmt
		for p.cur().Kind != pytoken.DEDENT {
			st, err := p.parseStmt()
			if err != nil {
				return nil, err
			}
			out = append(out, st...)
			p.skipNewlines()
		}
		p.advance() // consume DEDENT
		return out, nil
	}
	// single-line suite: `if x: return y`
	st, err := p.parseSimpleStmtLine()
	if err != nil {
		return nil, err
	}
	return st, nil
}

// parseSimpleStmtLine parses one or more `;`-separated simple statements
// terminated by NEWLINE (or EOF), used for single-line suites.
func (p *Parser) parseSimpleStmtLine() ([]pyast.Stmt, error) {
	var out []pyast.Stmt
	for {
		st, err := p.parseSimpleStmt()
		if err != nil {
			return nil, err
		}
		out = append(out, st)
		if p.isOp(";") {
			p.advance()
			continue
		}
		break
	}
	if p.cur().Kind == pytoken.NEWLINE {
		p.advance()
	}
	return out, nil
}

// ---- Statements -----------------------------------------------------------

func (p *Parser) parseStmt() ([]pyast.Stmt, error) {
	t := p.cur()
	if t.Kind == pytoken.KEYWORD {
		switch t.Value {
		case "def":
			s, err := p.parseFunctionDef(nil)
			return []pyast.Stmt{s}, err
		case "async":
			return p.parseAsync()
		case "class":
			s, err := p.parseClassDef()
			return []pyast.Stmt{s}, err
		case "if":
			s, err := p.parseIf()
			return []pyast.Stmt{s}, err
		case "while":
			s, err := p.parseWhile()
			return []pyast.Stmt{s}, err
		case "for":
			s, err := p.parseFor()
			return []pyast.Stmt{s}, err
		case "with":
			s, err := p.parseWith()
			return []pyast.Stmt{s}, err
		case "try":
			s, err := p.parseTry()
			return []pyast.Stmt{s}, err
		}
	}
	if t.Kind == pytoken.OP && t.Value == "@" {
		return p.parseDecorated()
	}
	return p.parseSimpleStmtLine()
}

func (p *Parser) parseAsync() ([]pyast.Stmt, error) {
	p.advance() // "async"
	if p.isKeyword("def") {
		s, err := p.parseFunctionDef(nil)
		if err != nil {
			return nil, err
		}
		fd := s.(*pyast.FunctionDef)
		return []pyast.Stmt{&pyast.AsyncFunctionDef{Base: fd.Base, Name: fd.Name, Args: fd.Args, Body: fd.Body}}, nil
	}
	if p.isKeyword("with") {
		s, err := p.parseWith()
		return []pyast.Stmt{s}, err
	}
	if p.isKeyword("for") {
		s, err := p.parseFor()
		return []pyast.Stmt{s}, err
	}
	return nil, p.errf("unsupported 'async' form")
}

func (p *Parser) parseDecorated() ([]pyast.Stmt, error) {
	var decos []pyast.Expr
	for p.isOp("@") {
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		decos = append(decos, e)
		if p.cur().Kind == pytoken.NEWLINE {
			p.advance()
		}
	}
	if p.isKeyword("class") {
		s, err := p.parseClassDef()
		return []pyast.Stmt{s}, err
	}
	s, err := p.parseFunctionDef(decos)
	return []pyast.Stmt{s}, err
}

func (p *Parser) parseFunctionDef(decos []pyast.Expr) (pyast.Stmt, error) {
	kw, err := p.expectKeyword("def")
	if err != nil {
		return nil, err
	}
	nameTok, err := p.expectKind(pytoken.NAME, "function name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expectOp("("); err != nil {
		return nil, err
	}
	args, err := p.parseParams()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectOp(")"); err != nil {
		return nil, err
	}
	var returns pyast.Expr
	if p.isOp("->") {
		p.advance()
		returns, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &pyast.FunctionDef{
		Base:      pyast.Base{P: p.posOf(kw)},
		Name:      nameTok.Value,
		Args:      args,
		Body:      body,
		Decorator: decos,
		Returns:   returns,
	}, nil
}

func (p *Parser) parseParams() (*pyast.Arguments, error) {
	a := &pyast.Arguments{}
	for !p.isOp(")") {
		if p.isOp("*") {
			p.advance()
			if p.cur().Kind == pytoken.NAME {
				name := p.advance().Value
				a.Vararg = &pyast.Arg{Name: name}
			}
		} else if p.isOp("**") {
			p.advance()
			name := p.advance().Value
			a.Kwarg = &pyast.Arg{Name: name}
		} else if p.isOp("/") {
			p.advance()
			a.PosOnly = append(a.PosOnly, a.Args...)
			a.Args = nil
		} else {
			nameTok, err := p.expectKind(pytoken.NAME, "parameter name")
			if err != nil {
				return nil, err
			}
			var anno pyast.Expr
			if p.isOp(":") {
				p.advance()
				anno, err = p.parseExpr()
				if err != nil {
					return nil, err
				}
			}
			if p.isOp("=") {
				p.advance()
				def, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				a.Defaults = append(a.Defaults, def)
			}
			a.Args = append(a.Args, pyast.Arg{Name: nameTok.Value, Annotation: anno})
		}
		if p.isOp(",") {
			p.advance()
			continue
		}
		break
	}
	return a, nil
}

func (p *Parser) parseClassDef() (pyast.Stmt, error) {
	kw, err := p.expectKeyword("class")
	if err != nil {
		return nil, err
	}
	nameTok, err := p.expectKind(pytoken.NAME, "class name")
	if err != nil {
		return nil, err
	}
	if p.isOp("(") {
		p.advance()
		for !p.isOp(")") {
			if _, err := p.parseExpr(); err != nil {
				return nil, err
			}
			if p.isOp(",") {
				p.advance()
				continue
			}
			break
		}
		if _, err := p.expectOp(")"); err != nil {
			return nil, err
		}
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &pyast.ClassDef{Base: pyast.Base{P: p.posOf(kw)}, Name: nameTok.Value, Body: body}, nil
}

func (p *Parser) parseIf() (pyast.Stmt, error) {
	kw, err := p.expectKeyword("if")
	if err != nil {
		return nil, err
	}
	test, err := p.parseNamedExpr()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	var orelse []pyast.Stmt
	if p.isKeyword("elif") {
		s, err := p.parseElif()
		if err != nil {
			return nil, err
		}
		orelse = []pyast.Stmt{s}
	} else if p.isKeyword("else") {
		p.advance()
		orelse, err = p.parseBlock()
		if err != nil {
			return nil, err
		}
	}
	return &pyast.If{Base: pyast.Base{P: p.posOf(kw)}, Test: test, Body: body, Orelse: orelse}, nil
}

func (p *Parser) parseElif() (pyast.Stmt, error) {
	kw := p.advance() // "elif"
	test, err := p.parseNamedExpr()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	var orelse []pyast.Stmt
	if p.isKeyword("elif") {
		s, err := p.parseElif()
		if err != nil {
			return nil, err
		}
		orelse = []pyast.Stmt{s}
	} else if p.isKeyword("else") {
		p.advance()
		orelse, err = p.parseBlock()
		if err != nil {
			return nil, err
		}
	}
	return &pyast.If{Base: pyast.Base{P: p.posOf(kw)}, Test: test, Body: body, Orelse: orelse}, nil
}

func (p *Parser) parseWhile() (pyast.Stmt, error) {
	kw, err := p.expectKeyword("while")
	if err != nil {
		return nil, err
	}
	test, err := p.parseNamedExpr()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	var orelse []pyast.Stmt
	if p.isKeyword("else") {
		p.advance()
		orelse, err = p.parseBlock()
		if err != nil {
			return nil, err
		}
	}
	return &pyast.While{Base: pyast.Base{P: p.posOf(kw)}, Test: test, Body: body, Orelse: orelse}, nil
}

func (p *Parser) parseFor() (pyast.Stmt, error) {
	kw, err := p.expectKeyword("for")
	if err != nil {
		return nil, err
	}
	target, err := p.parseTargetList()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectKeyword("in"); err != nil {
		return nil, err
	}
	iter, err := p.parseExprList()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	var orelse []pyast.Stmt
	if p.isKeyword("else") {
		p.advance()
		orelse, err = p.parseBlock()
		if err != nil {
			return nil, err
		}
	}
	return &pyast.For{Base: pyast.Base{P: p.posOf(kw)}, Target: target, Iter: iter, Body: body, Orelse: orelse}, nil
}

func (p *Parser) parseWith() (pyast.Stmt, error) {
	kw, err := p.expectKeyword("with")
	if err != nil {
		return nil, err
	}
	var items []pyast.WithItem
	for {
		ctx, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		item := pyast.WithItem{ContextExpr: ctx}
		if p.isKeyword("as") {
			p.advance()
			v, err := p.parseTarget()
			if err != nil {
				return nil, err
			}
			item.OptionalVar = v
		}
		items = append(items, item)
		if p.isOp(",") {
			p.advance()
			continue
		}
		break
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &pyast.With{Base: pyast.Base{P: p.posOf(kw)}, Items: items, Body: body}, nil
}

func (p *Parser) parseTry() (pyast.Stmt, error) {
	kw, err := p.expectKeyword("try")
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	var handlers []pyast.ExceptHandler
	for p.isKeyword("except") {
		hkw := p.advance()
		h := pyast.ExceptHandler{Pos: p.posOf(hkw)}
		if !p.isOp(":") {
			h.Type, err = p.parseExpr()
			if err != nil {
				return nil, err
			}
			if p.isKeyword("as") {
				p.advance()
				nameTok, err := p.expectKind(pytoken.NAME, "exception name")
				if err != nil {
					return nil, err
				}
				h.Name = nameTok.Value
			}
		}
		h.Body, err = p.parseBlock()
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, h)
	}
	var orelse, finalbody []pyast.Stmt
	if p.isKeyword("else") {
		p.advance()
		orelse, err = p.parseBlock()
		if err != nil {
			return nil, err
		}
	}
	if p.isKeyword("finally") {
		p.advance()
		finalbody, err = p.parseBlock()
		if err != nil {
			return nil, err
		}
	}
	return &pyast.Try{Base: pyast.Base{P: p.posOf(kw)}, Body: body, Handlers: handlers, Orelse: orelse, Finalbody: finalbody}, nil
}

// parseSimpleStmt parses exactly one non-compound statement (no trailing
// NEWLINE/`;` consumption — the caller handles line structure).
func (p *Parser) parseSimpleStmt() (pyast.Stmt, error) {
	t := p.cur()
	if t.Kind == pytoken.KEYWORD {
		switch t.Value {
		case "return":
			p.advance()
			if p.cur().Kind == pytoken.NEWLINE || p.isOp(";") {
				return &pyast.Return{Base: pyast.Base{P: p.posOf(t)}}, nil
			}
			v, err := p.parseExprList()
			if err != nil {
				return nil, err
			}
			return &pyast.Return{Base: pyast.Base{P: p.posOf(t)}, Value: v}, nil
		case "pass":
			p.advance()
			return &pyast.Pass{Base: pyast.Base{P: p.posOf(t)}}, nil
		case "break":
			p.advance()
			return &pyast.Break{Base: pyast.Base{P: p.posOf(t)}}, nil
		case "continue":
			p.advance()
			return &pyast.Continue{Base: pyast.Base{P: p.posOf(t)}}, nil
		case "import":
			return p.parseImport()
		case "from":
			return p.parseImportFrom()
		case "global":
			return p.parseGlobalNonlocal(true)
		case "nonlocal":
			return p.parseGlobalNonlocal(false)
		case "raise":
			p.advance()
			r := &pyast.Raise{Base: pyast.Base{P: p.posOf(t)}}
			if p.cur().Kind != pytoken.NEWLINE && !p.isOp(";") {
				exc, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				r.Exc = exc
				if p.isKeyword("from") {
					p.advance()
					cause, err := p.parseExpr()
					if err != nil {
						return nil, err
					}
					r.Cause = cause
				}
			}
			return r, nil
		case "del":
			p.advance()
			var targets []pyast.Expr
			for {
				tgt, err := p.parseTarget()
				if err != nil {
					return nil, err
				}
				targets = append(targets, tgt)
				if p.isOp(",") {
					p.advance()
					continue
				}
				break
			}
			return &pyast.Delete{Base: pyast.Base{P: p.posOf(t)}, Targets: targets}, nil
		case "assert":
			p.advance()
			test, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			a := &pyast.Assert{Base: pyast.Base{P: p.posOf(t)}, Test: test}
			if p.isOp(",") {
				p.advance()
				msg, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				a.Msg = msg
			}
			return a, nil
		case "yield":
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			return &pyast.ExprStmt{Base: pyast.Base{P: p.posOf(t)}, Value: e}, nil
		}
	}
	return p.parseExprOrAssignStmt()
}

func (p *Parser) parseImport() (pyast.Stmt, error) {
	kw, err := p.expectKeyword("import")
	if err != nil {
		return nil, err
	}
	var names []pyast.Alias
	for {
		nameTok, err := p.expectKind(pytoken.NAME, "module name")
		if err != nil {
			return nil, err
		}
		al := pyast.Alias{Name: nameTok.Value}
		if p.isKeyword("as") {
			p.advance()
			asTok, err := p.expectKind(pytoken.NAME, "alias")
			if err != nil {
				return nil, err
			}
			al.AsName = asTok.Value
		}
		names = append(names, al)
		if p.isOp(",") {
			p.advance()
			continue
		}
		break
	}
	return &pyast.Import{Base: pyast.Base{P: p.posOf(kw)}, Names: names}, nil
}

func (p *Parser) parseImportFrom() (pyast.Stmt, error) {
	kw, err := p.expectKeyword("from")
	if err != nil {
		return nil, err
	}
	level := 0
	for p.isOp(".") {
		level++
		p.advance()
	}
	module := ""
	if p.cur().Kind == pytoken.NAME {
		module = p.advance().Value
		for p.isOp(".") {
			p.advance()
			nt, err := p.expectKind(pytoken.NAME, "module path component")
			if err != nil {
				return nil, err
			}
			module += "." + nt.Value
		}
	}
	if _, err := p.expectKeyword("import"); err != nil {
		return nil, err
	}
	var names []pyast.Alias
	paren := p.isOp("(")
	if paren {
		p.advance()
	}
	if p.isOp("*") {
		p.advance()
		names = append(names, pyast.Alias{Name: "*"})
	} else {
		for {
			nameTok, err := p.expectKind(pytoken.NAME, "imported name")
			if err != nil {
				return nil, err
			}
			al := pyast.Alias{Name: nameTok.Value}
			if p.isKeyword("as") {
				p.advance()
				asTok, err := p.expectKind(pytoken.NAME, "alias")
				if err != nil {
					return nil, err
				}
				al.AsName = asTok.Value
			}
			names = append(names, al)
			if p.isOp(",") {
				p.advance()
				continue
			}
			break
		}
	}
	if paren {
		if _, err := p.expectOp(")"); err != nil {
			return nil, err
		}
	}
	return &pyast.ImportFrom{Base: pyast.Base{P: p.posOf(kw)}, Module: module, Names: names, Level: level}, nil
}

func (p *Parser) parseGlobalNonlocal(isGlobal bool) (pyast.Stmt, error) {
	kw := p.advance()
	var names []string
	for {
		nt, err := p.expectKind(pytoken.NAME, "name")
		if err != nil {
			return nil, err
		}
		names = append(names, nt.Value)
		if p.isOp(",") {
			p.advance()
			continue
		}
		break
	}
	if isGlobal {
		return &pyast.Global{Base: pyast.Base{P: p.posOf(kw)}, Names: names}, nil
	}
	return &pyast.Nonlocal{Base: pyast.Base{P: p.posOf(kw)}, Names: names}, nil
}

// parseExprOrAssignStmt handles expression statements and (possibly
// chained/augmented) assignments, since both start with an expression.
func (p *Parser) parseExprOrAssignStmt() (pyast.Stmt, error) {
	start := p.posOf(p.cur())
	first, err := p.parseExprList()
	if err != nil {
		return nil, err
	}
	if p.isOp(":") {
		p.advance()
		anno, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		var val pyast.Expr
		if p.isOp("=") {
			p.advance()
			val, err = p.parseExprList()
			if err != nil {
				return nil, err
			}
		}
		return &pyast.AnnAssign{Base: pyast.Base{P: start}, Target: first, Annotation: anno, Value: val}, nil
	}
	if augOp, ok := p.matchAugAssignOp(); ok {
		val, err := p.parseExprList()
		if err != nil {
			return nil, err
		}
		return &pyast.AugAssign{Base: pyast.Base{P: start}, Target: first, Op: augOp, Value: val}, nil
	}
	if p.isOp("=") {
		targets := []pyast.Expr{first}
		var value pyast.Expr
		for p.isOp("=") {
			p.advance()
			next, err := p.parseExprList()
			if err != nil {
				return nil, err
			}
			value = next
			targets = append(targets, next)
		}
		// Last parsed value is the RHS; everything before it is a target.
		value = targets[len(targets)-1]
		targets = targets[:len(targets)-1]
		return &pyast.Assign{Base: pyast.Base{P: start}, Targets: targets, Value: value}, nil
	}
	return &pyast.ExprStmt{Base: pyast.Base{P: start}, Value: first}, nil
}

var augOps = map[string]string{
	"+=": "add", "-=": "sub", "*=": "mul", "/=": "truediv", "//=": "floordiv",
	"%=": "mod", "**=": "pow", "&=": "and", "|=": "or", "^=": "xor",
	"<<=": "lshift", ">>=": "rshift",
}

func (p *Parser) matchAugAssignOp() (string, bool) {
	if p.cur().Kind != pytoken.OP {
		return "", false
	}
	if op, ok := augOps[p.cur().Value]; ok {
		p.advance()
		return op, true
	}
	return "", false
}

// parseTargetList parses a comma-separated target list for `for` and
// comprehension targets, collapsing a single target to itself and multiple targets
// into a Tuple.
func (p *Parser) parseTargetList() (pyast.Expr, error) {
	first, err := p.parseTarget()
	if err != nil {
		return nil, err
	}
	if !p.isOp(",") {
		return first, nil
	}
	elts := []pyast.Expr{first}
	for p.isOp(",") {
		p.advance()
		if p.isKeyword("in") || p.isOp(":") {
			break
		}
		e, err := p.parseTarget()
		if err != nil {
			return nil, err
		}
		elts = append(elts, e)
	}
	return &pyast.TupleLit{Base: first.Position().AsBase(), Elts: elts}, nil
}

func (p *Parser) parseTarget() (pyast.Expr, error) {
	if p.isOp("(") || p.isOp("[") {
		return p.parseAtom()
	}
	return p.parsePostfix()
}

// ---- Expressions ----------------------------------------------------------

// parseExprList parses `expr (',' expr)*`, collapsing multiples into a
// Tuple the same way Python's comma-expression does (used for `return`
// and assignment RHS positions).
func (p *Parser) parseExprList() (pyast.Expr, error) {
	first, err := p.parseStarExpr()
	if err != nil {
		return nil, err
	}
	if !p.isOp(",") {
		return first, nil
	}
	elts := []pyast.Expr{first}
	for p.isOp(",") {
		p.advance()
		if p.cur().Kind == pytoken.NEWLINE || p.isOp("=") || p.isOp(":") {
			break
		}
		e, err := p.parseStarExpr()
		if err != nil {
			return nil, err
		}
		elts = append(elts, e)
	}
	return &pyast.TupleLit{Base: first.Position().AsBase(), Elts: elts}, nil
}

func (p *Parser) parseStarExpr() (pyast.Expr, error) {
	if p.isOp("*") {
		t := p.advance()
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &pyast.Starred{Base: pyast.Base{P: p.posOf(t)}, Value: v}, nil
	}
	return p.parseNamedExpr()
}

// parseNamedExpr parses one expression; the walrus form `name := expr` is
// not parsed, and its `:=` is left for the caller to reject.
func (p *Parser) parseNamedExpr() (pyast.Expr, error) {
	return p.parseTernary()
}

func (p *Parser) parseExpr() (pyast.Expr, error) { return p.parseNamedExpr() }

func (p *Parser) parseTernary() (pyast.Expr, error) {
	if p.isKeyword("lambda") {
		return p.parseLambda()
	}
	body, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.isKeyword("if") {
		p.advance()
		test, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectKeyword("else"); err != nil {
			return nil, err
		}
		orelse, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		return &pyast.IfExp{Base: body.Position().AsBase(), Test: test, Body: body, Orelse: orelse}, nil
	}
	return body, nil
}

func (p *Parser) parseLambda() (pyast.Expr, error) {
	kw := p.advance()
	a := &pyast.Arguments{}
	for !p.isOp(":") {
		nameTok, err := p.expectKind(pytoken.NAME, "lambda parameter")
		if err != nil {
			return nil, err
		}
		if p.isOp("=") {
			p.advance()
			def, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			a.Defaults = append(a.Defaults, def)
		}
		a.Args = append(a.Args, pyast.Arg{Name: nameTok.Value})
		if p.isOp(",") {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expectOp(":"); err != nil {
		return nil, err
	}
	body, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &pyast.Lambda{Base: pyast.Base{P: p.posOf(kw)}, Args: a, Body: body}, nil
}

func (p *Parser) parseOr() (pyast.Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	if !p.isKeyword("or") {
		return left, nil
	}
	values := []pyast.Expr{left}
	for p.isKeyword("or") {
		p.advance()
		v, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return &pyast.BoolOp{Base: left.Position().AsBase(), Op: "or", Values: values}, nil
}

func (p *Parser) parseAnd() (pyast.Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	if !p.isKeyword("and") {
		return left, nil
	}
	values := []pyast.Expr{left}
	for p.isKeyword("and") {
		p.advance()
		v, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return &pyast.BoolOp{Base: left.Position().AsBase(), Op: "and", Values: values}, nil
}

func (p *Parser) parseNot() (pyast.Expr, error) {
	if p.isKeyword("not") {
		t := p.advance()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &pyast.UnaryOp{Base: pyast.Base{P: p.posOf(t)}, Op: "not", Operand: operand}, nil
	}
	return p.parseComparison()
}

var cmpOps = map[string]string{
	"==": "eq", "!=": "ne", "<": "lt", "<=": "le", ">": "gt", ">=": "ge",
}

func (p *Parser) parseComparison() (pyast.Expr, error) {
	left, err := p.parseBitOr()
	if err != nil {
		return nil, err
	}
	var ops []string
	var comparators []pyast.Expr
	for {
		if p.cur().Kind == pytoken.OP {
			if op, ok := cmpOps[p.cur().Value]; ok {
				p.advance()
				right, err := p.parseBitOr()
				if err != nil {
					return nil, err
				}
				ops = append(ops, op)
				comparators = append(comparators, right)
				continue
			}
		}
		if p.isKeyword("in") {
			p.advance()
			right, err := p.parseBitOr()
			if err != nil {
				return nil, err
			}
			ops = append(ops, "in")
			comparators = append(comparators, right)
			continue
		}
		if p.isKeyword("not") {
			// lookahead for `not in`
			save := p.pos
			p.advance()
			if p.isKeyword("in") {
				p.advance()
				right, err := p.parseBitOr()
				if err != nil {
					return nil, err
				}
				ops = append(ops, "not_in")
				comparators = append(comparators, right)
				continue
			}
			p.pos = save
		}
		if p.isKeyword("is") {
			p.advance()
			op := "is"
			if p.isKeyword("not") {
				p.advance()
				op = "is_not"
			}
			right, err := p.parseBitOr()
			if err != nil {
				return nil, err
			}
			ops = append(ops, op)
			comparators = append(comparators, right)
			continue
		}
		break
	}
	if len(ops) == 0 {
		return left, nil
	}
	return &pyast.Compare{Base: left.Position().AsBase(), Left: left, Ops: ops, Comparators: comparators}, nil
}

func (p *Parser) parseBitOr() (pyast.Expr, error) { return p.parseBinLevel(p.parseBitXor, "|") }
func (p *Parser) parseBitXor() (pyast.Expr, error) { return p.parseBinLevel(p.parseBitAnd, "^") }
func (p *Parser) parseBitAnd() (pyast.Expr, error) { return p.parseBinLevel(p.parseShift, "&") }
func (p *Parser) parseShift() (pyast.Expr, error) {
	return p.parseBinLevel2(p.parseAddSub, "<<", ">>")
}
func (p *Parser) parseAddSub() (pyast.Expr, error) {
	return p.parseBinLevel2(p.parseMulDiv, "+", "-")
}
func (p *Parser) parseMulDiv() (pyast.Expr, error) {
	return p.parseBinLevelN(p.parseUnary, []string{"*", "/", "//", "%", "@"})
}

var binOpNames = map[string]string{
	"+": "add", "-": "sub", "*": "mul", "/": "truediv", "//": "floordiv",
	"%": "mod", "&": "and", "|": "or", "^": "xor", "<<": "lshift", ">>": "rshift",
	"@": "matmul",
}

func (p *Parser) parseBinLevel(next func() (pyast.Expr, error), op string) (pyast.Expr, error) {
	return p.parseBinLevelN(next, []string{op})
}
func (p *Parser) parseBinLevel2(next func() (pyast.Expr, error), op1, op2 string) (pyast.Expr, error) {
	return p.parseBinLevelN(next, []string{op1, op2})
}

func (p *Parser) parseBinLevelN(next func() (pyast.Expr, error), ops []string) (pyast.Expr, error) {
	left, err := next()
	if err != nil {
		return nil, err
	}
	for p.cur().Kind == pytoken.OP {
		matched := ""
		for _, o := range ops {
			if p.cur().Value == o {
				matched = o
				break
			}
		}
		if matched == "" {
			break
		}
		p.advance()
		right, err := next()
		if err != nil {
			return nil, err
		}
		left = &pyast.BinOp{Base: left.Position().AsBase(), Op: binOpNames[matched], Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseUnary() (pyast.Expr, error) {
	if p.cur().Kind == pytoken.OP && (p.cur().Value == "+" || p.cur().Value == "-" || p.cur().Value == "~") {
		t := p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		names := map[string]string{"+": "pos", "-": "neg", "~": "invert"}
		return &pyast.UnaryOp{Base: pyast.Base{P: p.posOf(t)}, Op: names[t.Value], Operand: operand}, nil
	}
	return p.parsePower()
}

func (p *Parser) parsePower() (pyast.Expr, error) {
	base, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	if p.isOp("**") {
		p.advance()
		exp, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &pyast.BinOp{Base: base.Position().AsBase(), Op: "pow", Left: base, Right: exp}, nil
	}
	return base, nil
}

func (p *Parser) parsePostfix() (pyast.Expr, error) {
	e, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.isOp("."):
			p.advance()
			nameTok, err := p.expectKind(pytoken.NAME, "attribute name")
			if err != nil {
				return nil, err
			}
			e = &pyast.Attribute{Base: e.Position().AsBase(), Value: e, Attr: nameTok.Value}
		case p.isOp("("):
			p.advance()
			args, kwargs, err := p.parseCallArgs()
			if err != nil {
				return nil, err
			}
			if _, err := p.expectOp(")"); err != nil {
				return nil, err
			}
			e = &pyast.Call{Base: e.Position().AsBase(), Func: e, Args: args, Keywords: kwargs}
		case p.isOp("["):
			p.advance()
			idx, err := p.parseSubscript()
			if err != nil {
				return nil, err
			}
			if _, err := p.expectOp("]"); err != nil {
				return nil, err
			}
			e = &pyast.Subscript{Base: e.Position().AsBase(), Value: e, Index: idx}
		default:
			return e, nil
		}
	}
}

func (p *Parser) parseSubscript() (pyast.Expr, error) {
	var lower, upper, step pyast.Expr
	var err error
	isSlice := false
	if !p.isOp(":") {
		lower, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	if p.isOp(":") {
		isSlice = true
		p.advance()
		if !p.isOp(":") && !p.isOp("]") {
			upper, err = p.parseExpr()
			if err != nil {
				return nil, err
			}
		}
		if p.isOp(":") {
			p.advance()
			if !p.isOp("]") {
				step, err = p.parseExpr()
				if err != nil {
					return nil, err
				}
			}
		}
	}
	if isSlice {
		return &pyast.SliceExpr{Base: pyast.Base{P: p.posOf(p.cur())}, Lower: lower, Upper: upper, Step: step}, nil
	}
	return lower, nil
}

func (p *Parser) parseCallArgs() ([]pyast.Expr, []pyast.Keyword, error) {
	var args []pyast.Expr
	var kwargs []pyast.Keyword
	for !p.isOp(")") {
		if p.isOp("**") {
			p.advance()
			v, err := p.parseExpr()
			if err != nil {
				return nil, nil, err
			}
			kwargs = append(kwargs, pyast.Keyword{Name: "", Value: v})
		} else if p.isOp("*") {
			p.advance()
			v, err := p.parseExpr()
			if err != nil {
				return nil, nil, err
			}
			args = append(args, &pyast.Starred{Base: v.Position().AsBase(), Value: v})
		} else if p.cur().Kind == pytoken.NAME && p.peekAheadIsAssign() {
			nameTok := p.advance()
			p.advance() // "="
			v, err := p.parseExpr()
			if err != nil {
				return nil, nil, err
			}
			kwargs = append(kwargs, pyast.Keyword{Name: nameTok.Value, Value: v})
		} else {
			v, err := p.parseNamedExpr()
			if err != nil {
				return nil, nil, err
			}
			args = append(args, v)
		}
		if p.isOp(",") {
			p.advance()
			continue
		}
		break
	}
	return args, kwargs, nil
}

func (p *Parser) peekAheadIsAssign() bool {
	if p.pos+1 >= len(p.toks) {
		return false
	}
	nxt := p.toks[p.pos+1]
	return nxt.Kind == pytoken.OP && nxt.Value == "="
}

// ---- Atoms ------------------------------------------------------------

func (p *Parser) parseAtom() (pyast.Expr, error) {
	t := p.cur()
	switch {
	case t.Kind == pytoken.NAME:
		// Bytes literal: NAME "b"/"B" immediately followed by STRING.
		if (t.Value == "b" || t.Value == "B") && p.pos+1 < len(p.toks) {
			nxt := p.toks[p.pos+1]
			if nxt.Kind == pytoken.STRING && nxt.Line == t.Line {
				p.advance()
				strTok := p.advance()
				return &pyast.Constant{Base: pyast.Base{P: p.posOf(t)}, Kind: pyast.ConstBytes, Bytes: []byte(strTok.Value)}, nil
			}
		}
		p.advance()
		return &pyast.NameExpr{Base: pyast.Base{P: p.posOf(t)}, ID: t.Value}, nil
	case t.Kind == pytoken.NUMBER:
		p.advance()
		if len(t.Value) > 0 && t.Value[0] == '.' {
			return &pyast.Constant{Base: pyast.Base{P: p.posOf(t)}, Kind: pyast.ConstFloat, Int: t.Value[1:]}, nil
		}
		return &pyast.Constant{Base: pyast.Base{P: p.posOf(t)}, Kind: pyast.ConstInt, Int: t.Value}, nil
	case t.Kind == pytoken.STRING:
		p.advance()
		val := t.Value
		for p.cur().Kind == pytoken.STRING {
			val += p.advance().Value
		}
		return &pyast.Constant{Base: pyast.Base{P: p.posOf(t)}, Kind: pyast.ConstStr, Str: val}, nil
	case t.Kind == pytoken.KEYWORD && t.Value == "True":
		p.advance()
		return &pyast.Constant{Base: pyast.Base{P: p.posOf(t)}, Kind: pyast.ConstBool, Bool: true}, nil
	case t.Kind == pytoken.KEYWORD && t.Value == "False":
		p.advance()
		return &pyast.Constant{Base: pyast.Base{P: p.posOf(t)}, Kind: pyast.ConstBool, Bool: false}, nil
	case t.Kind == pytoken.KEYWORD && t.Value == "None":
		p.advance()
		return &pyast.Constant{Base: pyast.Base{P: p.posOf(t)}, Kind: pyast.ConstNone}, nil
	case t.Kind == pytoken.KEYWORD && t.Value == "lambda":
		return p.parseLambda()
	case t.Kind == pytoken.KEYWORD && t.Value == "yield":
		p.advance()
		if p.isKeyword("from") {
			p.advance()
			v, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			return &pyast.YieldFrom{Base: pyast.Base{P: p.posOf(t)}, Value: v}, nil
		}
		if p.cur().Kind == pytoken.NEWLINE || p.isOp(")") {
			return &pyast.Yield{Base: pyast.Base{P: p.posOf(t)}}, nil
		}
		v, err := p.parseExprList()
		if err != nil {
			return nil, err
		}
		return &pyast.Yield{Base: pyast.Base{P: p.posOf(t)}, Value: v}, nil
	case t.Kind == pytoken.KEYWORD && t.Value == "await":
		p.advance()
		v, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &pyast.Await{Base: pyast.Base{P: p.posOf(t)}, Value: v}, nil
	case p.isOp("("):
		return p.parseParenForm()
	case p.isOp("["):
		return p.parseListForm()
	case p.isOp("{"):
		return p.parseDictOrSetForm()
	}
	return nil, p.errf("unexpected token in expression")
}

func (p *Parser) parseParenForm() (pyast.Expr, error) {
	open := p.advance() // "("
	if p.isOp(")") {
		p.advance()
		return &pyast.TupleLit{Base: pyast.Base{P: p.posOf(open)}}, nil
	}
	first, err := p.parseStarExpr()
	if err != nil {
		return nil, err
	}
	if gens, ok, err := p.tryParseComprehensionTail(); err != nil {
		return nil, err
	} else if ok {
		if _, err := p.expectOp(")"); err != nil {
			return nil, err
		}
		return &pyast.GeneratorExp{Base: pyast.Base{P: p.posOf(open)}, Elt: first, Gens: gens}, nil
	}
	if p.isOp(",") {
		elts := []pyast.Expr{first}
		for p.isOp(",") {
			p.advance()
			if p.isOp(")") {
				break
			}
			e, err := p.parseStarExpr()
			if err != nil {
				return nil, err
			}
			elts = append(elts, e)
		}
		if _, err := p.expectOp(")"); err != nil {
			return nil, err
		}
		return &pyast.TupleLit{Base: pyast.Base{P: p.posOf(open)}, Elts: elts}, nil
	}
	if _, err := p.expectOp(")"); err != nil {
		return nil, err
	}
	return first, nil
}

func (p *Parser) parseListForm() (pyast.Expr, error) {
	open := p.advance() // "["
	if p.isOp("]") {
		p.advance()
		return &pyast.ListLit{Base: pyast.Base{P: p.posOf(open)}}, nil
	}
	first, err := p.parseStarExpr()
	if err != nil {
		return nil, err
	}
	if gens, ok, err := p.tryParseComprehensionTail(); err != nil {
		return nil, err
	} else if ok {
		if _, err := p.expectOp("]"); err != nil {
			return nil, err
		}
		return &pyast.ListComp{Base: pyast.Base{P: p.posOf(open)}, Elt: first, Gens: gens}, nil
	}
	elts := []pyast.Expr{first}
	for p.isOp(",") {
		p.advance()
		if p.isOp("]") {
			break
		}
		e, err := p.parseStarExpr()
		if err != nil {
			return nil, err
		}
		elts = append(elts, e)
	}
	if _, err := p.expectOp("]"); err != nil {
		return nil, err
	}
	return &pyast.ListLit{Base: pyast.Base{P: p.posOf(open)}, Elts: elts}, nil
}

func (p *Parser) parseDictOrSetForm() (pyast.Expr, error) {
	open := p.advance() // "{"
	if p.isOp("}") {
		p.advance()
		return &pyast.DictLit{Base: pyast.Base{P: p.posOf(open)}}, nil
	}
	if p.isOp("**") {
		p.advance()
		v, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		d := &pyast.DictLit{Base: pyast.Base{P: p.posOf(open)}, Keys: []pyast.Expr{nil}, Values: []pyast.Expr{v}}
		for p.isOp(",") {
			p.advance()
			if p.isOp("}") {
				break
			}
			if p.isOp("**") {
				p.advance()
				vv, err := p.parseOr()
				if err != nil {
					return nil, err
				}
				d.Keys = append(d.Keys, nil)
				d.Values = append(d.Values, vv)
				continue
			}
			k, v, err := p.parseDictPair()
			if err != nil {
				return nil, err
			}
			d.Keys = append(d.Keys, k)
			d.Values = append(d.Values, v)
		}
		if _, err := p.expectOp("}"); err != nil {
			return nil, err
		}
		return d, nil
	}
	first, err := p.parseStarExpr()
	if err != nil {
		return nil, err
	}
	if p.isOp(":") {
		p.advance()
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if gens, ok, err := p.tryParseComprehensionTail(); err != nil {
			return nil, err
		} else if ok {
			if _, err := p.expectOp("}"); err != nil {
				return nil, err
			}
			return &pyast.DictComp{Base: pyast.Base{P: p.posOf(open)}, Key: first, Value: v, Gens: gens}, nil
		}
		d := &pyast.DictLit{Base: pyast.Base{P: p.posOf(open)}, Keys: []pyast.Expr{first}, Values: []pyast.Expr{v}}
		for p.isOp(",") {
			p.advance()
			if p.isOp("}") {
				break
			}
			k, vv, err := p.parseDictPair()
			if err != nil {
				return nil, err
			}
			d.Keys = append(d.Keys, k)
			d.Values = append(d.Values, vv)
		}
		if _, err := p.expectOp("}"); err != nil {
			return nil, err
		}
		return d, nil
	}
	if gens, ok, err := p.tryParseComprehensionTail(); err != nil {
		return nil, err
	} else if ok {
		if _, err := p.expectOp("}"); err != nil {
			return nil, err
		}
		return &pyast.SetComp{Base: pyast.Base{P: p.posOf(open)}, Elt: first, Gens: gens}, nil
	}
	s := &pyast.SetLit{Base: pyast.Base{P: p.posOf(open)}, Elts: []pyast.Expr{first}}
	for p.isOp(",") {
		p.advance()
		if p.isOp("}") {
			break
		}
		e, err := p.parseStarExpr()
		if err != nil {
			return nil, err
		}
		s.Elts = append(s.Elts, e)
	}
	if _, err := p.expectOp("}"); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *Parser) parseDictPair() (pyast.Expr, pyast.Expr, error) {
	k, err := p.parseExpr()
	if err != nil {
		return nil, nil, err
	}
	if _, err := p.expectOp(":"); err != nil {
		return nil, nil, err
	}
	v, err := p.parseExpr()
	if err != nil {
		return nil, nil, err
	}
	return k, v, nil
}

// tryParseComprehensionTail looks for ` for target in iter [if cond]*`
// repeated, used by list/set/dict/generator literal parsing.
func (p *Parser) tryParseComprehensionTail() ([]pyast.Comprehension, bool, error) {
	if !p.isKeyword("for") {
		return nil, false, nil
	}
	var gens []pyast.Comprehension
	for p.isKeyword("for") {
		p.advance()
		target, err := p.parseTargetList()
		if err != nil {
			return nil, false, err
		}
		if _, err := p.expectKeyword("in"); err != nil {
			return nil, false, err
		}
		iter, err := p.parseOr()
		if err != nil {
			return nil, false, err
		}
		comp := pyast.Comprehension{Target: target, Iter: iter}
		for p.isKeyword("if") {
			p.advance()
			cond, err := p.parseOr()
			if err != nil {
				return nil, false, err
			}
			comp.Ifs = append(comp.Ifs, cond)
		}
		gens = append(gens, comp)
	}
	return gens, true, nil
}
