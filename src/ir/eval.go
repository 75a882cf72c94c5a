package ir

import "vslc/src/ast"

// Eval performs constant folding over an expression tree, returning a
// (possibly unchanged) replacement tree: any subtree whose value is fully
// determined at compile time collapses to an *ast.Lit. Folding an *ast.Lit
// is idempotent (Eval(Eval(e)) == Eval(e), spec §8 invariant 3) since a
// literal input always returns itself unchanged — there is no mutable state
// for a second pass to disturb.
//
// This is a pure function rather than the original's in-place AST mutation:
// Go's ast.Exp is an interface over immutable-by-convention value types, so
// "fold in place" isn't available the way it is for a tagged C++ class with
// an optional `value` field — returning a replacement tree is the idiomatic
// equivalent (Design Notes §9).
func Eval(e ast.Exp, info *Info) ast.Exp {
	switch v := e.(type) {
	case *ast.Lit:
		return v

	case *ast.Ident:
		name := info.GetVarName(v.Name)
		if c, ok := info.GetConst(name); ok && IsNum(c) {
			return &ast.Lit{Value: MustAtoi(c)}
		}
		return v

	case *ast.Unary:
		x := Eval(v.X, info)
		if lit, ok := x.(*ast.Lit); ok {
			switch v.Op {
			case "-":
				return &ast.Lit{Value: -lit.Value}
			case "!":
				return &ast.Lit{Value: boolInt(lit.Value == 0)}
			}
		}
		return &ast.Unary{Op: v.Op, X: x}

	case *ast.Binary:
		l := Eval(v.L, info)
		r := Eval(v.R, info)
		if llit, lok := l.(*ast.Lit); lok {
			if rlit, rok := r.(*ast.Lit); rok {
				if val, ok := foldBinary(v.Op, llit.Value, rlit.Value); ok {
					return &ast.Lit{Value: val}
				}
			}
		}
		return &ast.Binary{Op: v.Op, L: l, R: r}

	case *ast.Call:
		// A call's own value is never foldable, but its arguments are
		// independently evaluated — matching the original's try_eval, which
		// recurses into every arg before bailing out on the "func" prefix.
		args := make([]ast.Exp, len(v.Args))
		for i, a := range v.Args {
			args[i] = Eval(a, info)
		}
		return &ast.Call{Func: v.Func, Args: args}

	case *ast.Index:
		idx := make([]ast.Exp, len(v.Idx))
		for i, a := range v.Idx {
			idx[i] = Eval(a, info)
		}
		return &ast.Index{Array: v.Array, Idx: idx, NoLoad: v.NoLoad}
	}
	panic("ir: unreachable exp type in Eval")
}

// foldBinary evaluates a binary operator over two known operands, matching
// the exact operator set (and C truthiness semantics for and/or) of the
// original's ExpAST::try_eval. A false second return means the operator
// cannot be folded (division/modulo by zero), deferring the error to
// runtime like the source language does.
func foldBinary(op string, l, r int) (int, bool) {
	switch op {
	case "add":
		return l + r, true
	case "sub":
		return l - r, true
	case "mul":
		return l * r, true
	case "div":
		if r == 0 {
			return 0, false
		}
		return l / r, true
	case "mod":
		if r == 0 {
			return 0, false
		}
		return l % r, true
	case "and":
		return boolInt(l != 0 && r != 0), true
	case "or":
		return boolInt(l != 0 || r != 0), true
	case "eq":
		return boolInt(l == r), true
	case "ne":
		return boolInt(l != r), true
	case "lt":
		return boolInt(l < r), true
	case "gt":
		return boolInt(l > r), true
	case "le":
		return boolInt(l <= r), true
	case "ge":
		return boolInt(l >= r), true
	}
	return 0, false
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// hasSideEffect reports whether evaluating e can have a runtime effect
// beyond producing its value — true for any call or array load, and for any
// expression containing one. Used to decide whether `&&`/`||` need
// short-circuit block structure (spec §4.3): a right-hand side without side
// effects is cheaper to always evaluate than to branch around.
func hasSideEffect(e ast.Exp) bool {
	switch v := e.(type) {
	case *ast.Lit, *ast.Ident:
		return false
	case *ast.Unary:
		return hasSideEffect(v.X)
	case *ast.Binary:
		return hasSideEffect(v.L) || hasSideEffect(v.R)
	case *ast.Call:
		return true
	case *ast.Index:
		return true
	}
	return false
}
