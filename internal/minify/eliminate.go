package minify

import (
	"bytes"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/js"
)

// Eliminate drops variable and function declarations inside functions that
// nothing reads and whose initialisers have no side effects. Unless
// pass.KeepFargs is set it also trims unused trailing parameters from
// functions that never touch arguments. Rounds repeat until one removes
// nothing, so a binding only read by another dead binding goes too.
//
// Side-effect free means: literals, declared variables, function
// expressions, calls to pass.PureFuncs, and array, object, logical and
// strict-equality expressions built from those. PureGetters adds property
// reads, UnsafeComps the coercing comparisons and Unsafe the remaining
// arithmetic and bitwise operators.
//
// Sources using with or eval, and sources the parser rejects, are returned
// unchanged. When nothing is removed src is returned as is; otherwise the
// result is reprinted from the syntax tree and carries no comments.
func Eliminate(src []byte, pass SemanticPass) []byte {
	ast, err := js.Parse(parse.NewInputBytes(src), js.Options{})
	if err != nil {
		return src
	}
	e := &eliminator{pass: pass, pure: make(map[string]bool, len(pass.PureFuncs))}
	for _, name := range pass.PureFuncs {
		e.pure[name] = true
	}

	changed := false
	for {
		e.reset()
		js.Walk(e, ast)
		if e.dynamic {
			return src
		}
		if !e.sweep() {
			break
		}
		changed = true
	}
	if !changed {
		return src
	}
	return []byte(ast.JSString())
}

type function struct {
	params    *js.Params // nil for methods, whose arity may be observable
	arrow     bool
	arguments bool
}

type stmtList struct {
	stmts *[]js.IStmt
	local bool
}

// eliminator collects one round of use counts and removal candidates.
type eliminator struct {
	pass SemanticPass
	pure map[string]bool

	uses       map[*js.Var]int
	listed     map[*js.VarDecl]bool
	candidates []*js.VarDecl
	lists      []stmtList
	funcs      []*function
	stack      []*function
	dynamic    bool
}

func (e *eliminator) reset() {
	e.uses = make(map[*js.Var]int)
	e.listed = make(map[*js.VarDecl]bool)
	e.candidates = e.candidates[:0]
	e.lists = e.lists[:0]
	e.funcs = e.funcs[:0]
	e.stack = e.stack[:0]
	e.dynamic = false
}

func resolve(v *js.Var) *js.Var {
	for v.Link != nil {
		v = v.Link
	}
	return v
}

// unused reports whether v's only occurrence is its own declaration.
func (e *eliminator) unused(v *js.Var) bool {
	v = resolve(v)
	return v.Decl != js.NoDecl && e.uses[v] == 1
}

func (e *eliminator) Enter(n js.INode) js.IVisitor {
	switch n := n.(type) {
	case *js.Var:
		v := resolve(n)
		e.uses[v]++
		if v.Decl == js.NoDecl {
			switch string(v.Data) {
			case "eval":
				e.dynamic = true
			case "arguments":
				for i := len(e.stack) - 1; i >= 0; i-- {
					if !e.stack[i].arrow {
						e.stack[i].arguments = true
						break
					}
				}
			}
		}
	case *js.WithStmt:
		e.dynamic = true
	case *js.FuncDecl:
		e.push(&function{params: &n.Params})
	case *js.ArrowFunc:
		e.push(&function{params: &n.Params, arrow: true})
	case *js.MethodDecl:
		e.push(&function{})
	case *js.BlockStmt:
		e.addList(&n.List)
	case *js.CaseClause:
		e.addList(&n.List)
	case *js.VarDecl:
		if len(e.stack) > 0 && e.listed[n] && !n.InFor && !n.InForInOf {
			e.candidates = append(e.candidates, n)
		}
	}
	return e
}

func (e *eliminator) Exit(n js.INode) {
	switch n.(type) {
	case *js.FuncDecl, *js.ArrowFunc, *js.MethodDecl:
		e.stack = e.stack[:len(e.stack)-1]
	}
}

func (e *eliminator) push(f *function) {
	e.stack = append(e.stack, f)
	e.funcs = append(e.funcs, f)
}

func (e *eliminator) addList(stmts *[]js.IStmt) {
	e.lists = append(e.lists, stmtList{stmts: stmts, local: len(e.stack) > 0})
	for _, s := range *stmts {
		if d, ok := s.(*js.VarDecl); ok {
			e.listed[d] = true
		}
	}
}

// sweep removes everything this round found dead and reports whether
// anything went.
func (e *eliminator) sweep() bool {
	removed := false
	for _, d := range e.candidates {
		kept := d.List[:0]
		for _, b := range d.List {
			if v, ok := b.Binding.(*js.Var); ok && e.unused(v) && e.removable(b.Default) {
				removed = true
				continue
			}
			kept = append(kept, b)
		}
		d.List = kept
	}

	for _, l := range e.lists {
		kept := (*l.stmts)[:0]
		for _, s := range *l.stmts {
			switch s := s.(type) {
			case *js.VarDecl:
				if len(s.List) == 0 {
					continue
				}
			case *js.FuncDecl:
				if l.local && s.Name != nil && e.unused(s.Name) {
					removed = true
					continue
				}
			}
			kept = append(kept, s)
		}
		*l.stmts = kept
	}

	if !e.pass.KeepFargs {
		for _, f := range e.funcs {
			if f.params == nil || f.arguments || f.params.Rest != nil {
				continue
			}
			n := len(f.params.List)
			for n > 0 {
				b := f.params.List[n-1]
				v, ok := b.Binding.(*js.Var)
				if !ok || b.Default != nil || !e.unused(v) {
					break
				}
				n--
			}
			if n < len(f.params.List) {
				f.params.List = f.params.List[:n]
				removed = true
			}
		}
	}
	return removed
}

// removable reports whether evaluating x can be skipped without changing
// behaviour.
func (e *eliminator) removable(x js.IExpr) bool {
	switch x := x.(type) {
	case nil:
		return true
	case *js.LiteralExpr, *js.FuncDecl, *js.ArrowFunc:
		return true
	case *js.Var:
		return resolve(x).Decl != js.NoDecl
	case *js.GroupExpr:
		return e.removable(x.X)
	case *js.CallExpr:
		callee, ok := x.X.(*js.Var)
		if !ok || x.Optional || !e.pure[string(callee.Data)] {
			return false
		}
		for _, a := range x.Args.List {
			if a.Rest || !e.removable(a.Value) {
				return false
			}
		}
		return true
	case *js.DotExpr:
		return e.pass.PureGetters && !x.Optional && e.removable(x.X)
	case *js.IndexExpr:
		return e.pass.PureGetters && !x.Optional && e.removable(x.X) && e.removable(x.Y)
	case *js.ArrayExpr:
		for _, el := range x.List {
			if el.Spread || !e.removable(el.Value) {
				return false
			}
		}
		return true
	case *js.ObjectExpr:
		for _, p := range x.List {
			if p.Spread || p.Init != nil || !e.removable(p.Value) {
				return false
			}
			if p.Name != nil && p.Name.IsComputed() && !e.removable(p.Name.Computed) {
				return false
			}
		}
		return true
	case *js.CondExpr:
		return e.removable(x.Cond) && e.removable(x.X) && e.removable(x.Y)
	case *js.UnaryExpr:
		switch x.Op {
		case js.NotToken, js.VoidToken:
			return e.removable(x.X)
		case js.NegToken, js.PosToken, js.BitNotToken:
			// Numeric conversion runs valueOf on objects.
			return constant(x.X) || e.pass.Unsafe && e.removable(x.X)
		}
		return false
	case *js.BinaryExpr:
		if !e.removable(x.X) || !e.removable(x.Y) {
			return false
		}
		switch x.Op {
		case js.EqEqEqToken, js.NotEqEqToken, js.AndToken, js.OrToken, js.NullishToken:
			return true
		case js.EqEqToken, js.NotEqToken, js.LtToken, js.LtEqToken, js.GtToken, js.GtEqToken:
			return constant(x.X) && constant(x.Y) || e.pass.UnsafeComps
		case js.AddToken, js.SubToken, js.MulToken, js.DivToken, js.ModToken, js.ExpToken,
			js.BitAndToken, js.BitOrToken, js.BitXorToken, js.LtLtToken, js.GtGtToken, js.GtGtGtToken:
			return constant(x.X) && constant(x.Y) || e.pass.Unsafe
		}
		return false
	}
	return false
}

// constant reports whether x is a literal other than this or a BigInt,
// which throws when mixed with numbers.
func constant(x js.IExpr) bool {
	switch x := x.(type) {
	case *js.LiteralExpr:
		return x.TokenType != js.ThisToken && !bytes.HasSuffix(x.Data, []byte("n"))
	case *js.GroupExpr:
		return constant(x.X)
	}
	return false
}
