package ir

import (
	"fmt"
	"strconv"
	"strings"

	"vslc/src/ast"
)

// Lower compiles a parsed translation unit into IR (spec §4.1-§4.3). It
// recovers from any internal panic (an unresolved identifier, a malformed
// AST from a collaborator) into an error rather than crashing the caller —
// the AST is assumed well-formed input here; recover() is a backstop, not
// part of the intended control flow (spec §7).
func Lower(prog *ast.Program) (p *Program, err error) {
	defer func() {
		if r := recover(); r != nil {
			p = nil
			err = fmt.Errorf("ir: lowering failed: %v", r)
		}
	}()

	info := NewInfo()
	defer info.Close()
	info.CurrentState = "global def"

	part := NewPartIR()
	for _, g := range prog.Globals {
		sub := lowerDecl(g, info)
		part.Merge(sub, info)
	}
	info.CurrentState = ""
	globals := part.Values()

	for _, fd := range prog.Funcs {
		info.SetFunc(fd.Name, funcType(fd))
	}

	functions := make([]*Function, 0, len(prog.Funcs))
	for _, fd := range prog.Funcs {
		functions = append(functions, lowerFuncDef(fd, info))
	}

	return &Program{Globals: globals, Functions: functions}, nil
}

func funcType(fd *ast.FuncDef) string {
	if fd.IsVoid {
		return "void"
	}
	return "int"
}

// lowerFuncDef compiles one function: bind parameters, lower the body,
// prepend the accumulated local/temporary allocations, seal the entry
// block, and append the canonical `%labelexit_<name>` trailer (spec §4.1
// "FunctionIR", §4.3 "return").
func lowerFuncDef(fd *ast.FuncDef, info *Info) *Function {
	info.IncLevel()
	info.FuncName = fd.Name

	args := make([]FuncArg, len(fd.Params))
	for i, p := range fd.Params {
		args[i] = FuncArg{Name: p.Name, Dims: p.Dims}
	}

	preallocIR, formattedArgs := info.StartFunc(args)
	bodyIR := lowerStmt(fd.Body, info)

	ft := funcType(fd)
	allocIR := info.GetAlloc()
	allocIR.Merge(preallocIR, info)
	allocIR.Merge(bodyIR, info)

	allocIR.SealPrev("%entry", ft)
	allocIR.SealNext(info)
	allocIR.CreateNewBlock("%labelexit_" + fd.Name)
	if ft == "int" {
		allocIR.AppendOp(info, "ret", "0")
	} else {
		allocIR.AppendOp(info, "ret")
	}

	fn := &Function{
		Name:       fd.Name,
		ReturnType: ft,
		Args:       formattedArgs,
		Blocks:     allocIR.Blocks(),
	}

	info.EndFunc()
	info.DecLevel()
	return fn
}

// ---------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------

func lowerStmt(s ast.Stmt, info *Info) *PartIR {
	switch v := s.(type) {
	case *ast.Block:
		return lowerBlock(v, info)
	case *ast.ExpStmt:
		return lowerExpStmt(v, info)
	case *ast.Return:
		return lowerReturn(v, info)
	case *ast.Assign:
		return lowerAssign(v, info)
	case *ast.Decl:
		return lowerDecl(v, info)
	case *ast.If:
		return lowerIf(v, info)
	case *ast.While:
		return lowerWhile(v, info)
	case *ast.Control:
		return lowerControl(v, info)
	}
	panic("ir: unreachable stmt type")
}

func lowerBlock(v *ast.Block, info *Info) *PartIR {
	info.IncLevel()
	result := NewPartIR()
	for _, st := range v.Stmts {
		result.Merge(lowerStmt(st, info), info)
	}
	info.DecLevel()
	return result
}

func lowerExpStmt(v *ast.ExpStmt, info *Info) *PartIR {
	result := NewPartIR()
	if v.Exp == nil {
		return result
	}
	folded := Eval(v.Exp, info)
	switch folded.(type) {
	case *ast.Lit, *ast.Ident:
		// A bare literal or variable name has no side effect worth keeping.
		return result
	}
	sub, _ := lowerExp(folded, info)
	result.Merge(sub, info)
	return result
}

func lowerReturn(v *ast.Return, info *Info) *PartIR {
	result := NewPartIR()
	if v.Exp == nil {
		result.AppendOp(info, "ret")
		return result
	}
	sub, arg := lowerExp(Eval(v.Exp, info), info)
	result.Merge(sub, info)
	result.AppendOp(info, "ret", arg)
	return result
}

func lowerAssign(v *ast.Assign, info *Info) *PartIR {
	result := NewPartIR()

	sub, val := lowerExp(Eval(v.Exp, info), info)
	result.Merge(sub, info)

	var target string
	if len(v.Dims) == 0 {
		target = info.GetVarName(v.Ident)
	} else {
		idxSub, ptr := lowerIndex(&ast.Index{Array: v.Ident, Idx: v.Dims, NoLoad: true}, info)
		result.Merge(idxSub, info)
		target = ptr
	}
	result.AppendOp(info, "store", val, target)
	return result
}

// lowerDecl compiles a `const`/plain, scalar/array declaration (spec §4.1
// "DefAST"). Constants that fold to a literal are recorded in the symbol
// table and emit no instruction at all — later references substitute the
// literal directly (spec §8 invariant, constant propagation).
func lowerDecl(v *ast.Decl, info *Info) *PartIR {
	result := NewPartIR()

	numDims := make([]*int, len(v.Dims))
	for i, d := range v.Dims {
		lit, ok := Eval(d, info).(*ast.Lit)
		if !ok {
			panic("ir: array dimension is not a compile-time constant")
		}
		val := lit.Value
		numDims[i] = &val
	}

	name := info.AllocateVar(v.Ident, false, true, false, numDims)

	if v.IsConst && v.Exp != nil {
		if lit, ok := Eval(v.Exp, info).(*ast.Lit); ok {
			info.SetConst(v.Ident, strconv.Itoa(lit.Value))
			return result
		}
	}

	switch {
	case v.Exp != nil:
		sub, val := lowerExp(Eval(v.Exp, info), info)
		result.Merge(sub, info)
		if info.CurrentState == "global def" {
			result.AppendOp(info, "global alloc", name, "i32", val)
		} else {
			result.AppendOp(info, "store", val, name)
		}

	case len(numDims) == 0:
		if info.CurrentState == "global def" {
			result.AppendOp(info, "global alloc", name, "i32", "undef")
		}

	default:
		size := 1
		for _, d := range numDims {
			size *= *d
		}
		typ := fmt.Sprintf("[i32, %d]", size)

		var flat []ast.Exp
		initStr := "undef"
		if v.Init != nil {
			flat = flattenInit(v.Init, numDims, info)
			initStr = initToString(flat)
		}

		if info.CurrentState == "global def" {
			result.AppendOp(info, "global alloc", name, typ, initStr)
		} else if v.Init != nil {
			result.AppendOp(info, "store", initStr, name)
			for i, e := range flat {
				if _, ok := e.(*ast.Lit); ok {
					continue
				}
				sub, val := lowerExp(e, info)
				result.Merge(sub, info)
				temp := info.AllocateVar("getelemptr", true, false, false, nil)
				result.AppendOp(info, "getelemptr", temp, name, strconv.Itoa(i))
				result.AppendOp(info, "store", val, temp)
			}
		}
	}
	return result
}

// flattenInit expands a (possibly nested) initializer tree into one flat
// per-element expression list matching row-major storage order, padding
// missing trailing elements with zero (spec §4.1 "InitAST::try_eval"). A
// nested sub-initializer's own dimensions are inferred by greedily absorbing
// as many of the declared array's trailing dimensions as evenly divide the
// elements already consumed — the original's bracket-elision rule for
// under-nested initializers (`{1, 2, 3, 4}` for `int a[2][2]`).
func flattenInit(init *ast.Init, dims []*int, info *Info) []ast.Exp {
	if init.Exp != nil {
		return []ast.Exp{Eval(init.Exp, info)}
	}

	total := 1
	for _, d := range dims {
		total *= *d
	}

	var out []ast.Exp
	cur := 0
	for _, sub := range init.Nested {
		var subDims []*int
		if sub.Exp == nil {
			subDims = reduceDims(cur, dims)
		}
		vals := flattenInit(sub, subDims, info)
		out = append(out, vals...)
		cur += len(vals)
	}
	for len(out) < total {
		out = append(out, &ast.Lit{Value: 0})
	}
	return out
}

// reduceDims computes the dimension list a nested initializer at element
// offset cur should be flattened against: the longest suffix of dims whose
// product evenly divides cur, one dimension short of the full rank.
func reduceDims(cur int, dims []*int) []*int {
	temp := cur
	var newDims []*int
	for i := len(dims) - 1; i >= 0; i-- {
		d := dims[i]
		if d == nil || *d == 0 {
			break
		}
		if len(newDims) == len(dims)-1 {
			break
		}
		if temp%(*d) != 0 {
			break
		}
		newDims = append([]*int{d}, newDims...)
		temp /= *d
	}
	return newDims
}

// initToString renders a flattened initializer as the IR's literal-vector
// text form, `undef` standing in for any element that didn't fold to a
// compile-time constant (spec §6).
func initToString(flat []ast.Exp) string {
	parts := make([]string, len(flat))
	for i, e := range flat {
		if lit, ok := e.(*ast.Lit); ok {
			parts[i] = strconv.Itoa(lit.Value)
		} else {
			parts[i] = "undef"
		}
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func lowerIf(v *ast.If, info *Info) *PartIR {
	result := NewPartIR()
	sub, arg := lowerExp(Eval(v.Cond, info), info)
	result.Merge(sub, info)

	thenName := info.AllocateLabel("if_then")
	elseName := info.AllocateLabel("if_else")
	nextName := info.AllocateLabel("if_next")

	branchElse := nextName
	if v.Else != nil {
		branchElse = elseName
	}
	result.AppendOp(info, "br", arg, thenName, branchElse)

	result.CreateNewBlock(thenName)
	result.Merge(lowerStmt(v.Then, info), info)
	result.AppendOp(info, "jump", nextName)

	if v.Else != nil {
		result.CreateNewBlock(elseName)
		result.Merge(lowerStmt(v.Else, info), info)
		result.AppendOp(info, "jump", nextName)
	}

	result.CreateNewBlock(nextName)
	return result
}

// lowerWhile lowers a loop to the canonical cond/then/next three-block
// shape and back-patches any `break`/`continue` placeholders left by nested
// ControlAST statements (spec §4.3 "WhileAST", §9 Design Notes).
func lowerWhile(v *ast.While, info *Info) *PartIR {
	condName := info.AllocateLabel("while_cond")
	thenName := info.AllocateLabel("while_then")
	nextName := info.AllocateLabel("while_next")

	result := NewPartIR()
	result.AppendOp(info, "jump", condName)
	result.CreateNewBlock(condName)

	sub, arg := lowerExp(Eval(v.Cond, info), info)
	result.Merge(sub, info)
	result.AppendOp(info, "br", arg, thenName, nextName)

	result.CreateNewBlock(thenName)
	result.Merge(lowerStmt(v.Body, info), info)
	result.AppendOp(info, "jump", condName)

	result.CreateNewBlock(nextName)

	result.Substitute("continue", condName)
	result.Substitute("break", nextName)

	return result
}

// lowerControl emits a placeholder jump on the literal string "break" or
// "continue"; the enclosing lowerWhile substitutes it for the real label
// once known, so a break/continue can be lowered before its loop's
// boundaries exist.
func lowerControl(v *ast.Control, info *Info) *PartIR {
	part := NewPartIR()
	part.AppendOp(info, "jump", v.Kind)
	return part
}

// ---------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------

// lowerExp lowers an already-folded (Eval'd) expression tree, returning the
// fragment of instructions needed to compute it and the name (or literal)
// holding its value.
func lowerExp(e ast.Exp, info *Info) (*PartIR, string) {
	switch v := e.(type) {
	case *ast.Lit:
		return NewPartIR(), strconv.Itoa(v.Value)
	case *ast.Ident:
		return lowerIdent(v, info)
	case *ast.Unary:
		return lowerUnary(v, info)
	case *ast.Binary:
		return lowerBinary(v, info)
	case *ast.Call:
		return lowerCall(v, info)
	case *ast.Index:
		return lowerIndex(v, info)
	}
	panic("ir: unreachable exp type")
}

// lowerIdent mirrors the original's value_exp_to_ir for a bare identifier:
// a resolved constant returns its literal text directly; an array name
// decays to a pointer (`getptr` for an already-pointer-typed parameter,
// `getelemptr` for a true local/global array); anything else is a scalar
// variable, loaded into a fresh temporary.
func lowerIdent(v *ast.Ident, info *Info) (*PartIR, string) {
	part := NewPartIR()
	name := info.GetVarName(v.Name)

	if c, ok := info.GetConst(name); ok {
		return part, c
	}

	if dims := info.GetType(name); len(dims) > 0 {
		op := "getelemptr"
		if info.IsArg(name) {
			op = "getptr"
		}
		ret := info.AllocateVar(op, true, false, false, nil)
		part.AppendOp(info, op, ret, name, "0")
		return part, ret
	}

	if info.IsArg(name) {
		return part, name
	}
	t := info.AllocateVar("load", true, false, false, nil)
	part.AppendOp(info, "load", t, name)
	return part, t
}

func lowerUnary(v *ast.Unary, info *Info) (*PartIR, string) {
	part, name := lowerExp(v.X, info)
	switch v.Op {
	case "-":
		return part, binaryOperand("sub", "0", name, info, part)
	case "!":
		return part, binaryOperand("eq", name, "0", info, part)
	}
	panic("ir: unknown unary operator " + v.Op)
}

func lowerBinary(v *ast.Binary, info *Info) (*PartIR, string) {
	if v.Op == "and" || v.Op == "or" {
		if hasSideEffect(v.R) {
			return lowerShortCircuit(v, info)
		}
		return lowerStraightBool(v, info)
	}
	part, lname := lowerExp(v.L, info)
	rpart, rname := lowerExp(v.R, info)
	part.Merge(rpart, info)
	return part, binaryOperand(v.Op, lname, rname, info, part)
}

// lowerStraightBool lowers `&&`/`||` whose right-hand side has no side
// effect: both operands are unconditionally evaluated and boolean-
// normalized (`ne x, 0`) before the bitwise and/or, since the IR's and/or
// opcodes operate on true 0/1 values rather than C truthiness (spec §4.3).
func lowerStraightBool(v *ast.Binary, info *Info) (*PartIR, string) {
	part, lname := lowerExp(v.L, info)
	rpart, rname := lowerExp(v.R, info)
	part.Merge(rpart, info)

	b1 := boolizeOperand(lname, info, part, v.Op)
	b2 := boolizeOperand(rname, info, part, v.Op)
	dst := info.AllocateVar(v.Op, true, false, false, nil)
	part.AppendOp(info, v.Op, dst, b1, b2)
	return part, dst
}

// lowerShortCircuit lowers `&&`/`||` whose right-hand side has a side
// effect (typically a call): the right side is only evaluated when the left
// side doesn't already decide the result, via a three-block comp/lazy/next
// shape threading the result through a dedicated stack slot (spec §4.3,
// §9 Design Notes).
func lowerShortCircuit(v *ast.Binary, info *Info) (*PartIR, string) {
	part, lname := lowerExp(v.L, info)

	compName := info.AllocateLabel(v.Op + "_comp")
	lazyName := info.AllocateLabel(v.Op + "_lazy")
	nextName := info.AllocateLabel(v.Op + "_next")
	allocName := info.AllocateVar(v.Op+"_alloc", false, false, false, nil)
	current := info.AllocateVar(v.Op, true, false, false, nil)

	if v.Op == "and" {
		part.AppendOp(info, "br", lname, compName, lazyName)
	} else {
		part.AppendOp(info, "br", lname, lazyName, compName)
	}

	part.CreateNewBlock(lazyName)
	lazyVal := "0"
	if v.Op == "or" {
		lazyVal = "1"
	}
	part.AppendOp(info, "store", lazyVal, allocName)
	part.AppendOp(info, "jump", nextName)

	part.CreateNewBlock(compName)
	rpart, rname := lowerExp(v.R, info)
	part.Merge(rpart, info)
	boolName := boolizeOperand(rname, info, part, v.Op)
	part.AppendOp(info, "store", boolName, allocName)
	part.AppendOp(info, "jump", nextName)

	part.CreateNewBlock(nextName)
	part.AppendOp(info, "load", current, allocName)

	return part, current
}

// boolizeOperand normalizes name to a true 0/1 value: a numeric literal
// folds directly, otherwise a `ne x, 0` instruction is emitted.
func boolizeOperand(name string, info *Info, part *PartIR, opCategory string) string {
	if IsNum(name) {
		if MustAtoi(name) != 0 {
			return "1"
		}
		return "0"
	}
	t := info.AllocateVar(opCategory+"_boolize", true, false, false, nil)
	part.AppendOp(info, "ne", t, name, "0")
	return t
}

// binaryOperand emits (or constant-folds away) a two-operand instruction.
func binaryOperand(op, a, b string, info *Info, part *PartIR) string {
	if IsNum(a) && IsNum(b) {
		if v, ok := foldBinary(op, MustAtoi(a), MustAtoi(b)); ok {
			return strconv.Itoa(v)
		}
	}
	temp := info.AllocateVar(op, true, false, false, nil)
	part.AppendOp(info, op, temp, a, b)
	return temp
}

func lowerCall(v *ast.Call, info *Info) (*PartIR, string) {
	part := NewPartIR()
	argNames := make([]string, len(v.Args))
	for i, a := range v.Args {
		sub, name := lowerExp(a, info)
		part.Merge(sub, info)
		argNames[i] = name
	}

	if info.GetFunc(v.Func) == "int" {
		dst := info.AllocateVar(v.Func, true, false, false, nil)
		args := append([]string{v.Func, dst}, argNames...)
		part.AppendOp(info, "call_int", args...)
		return part, dst
	}
	args := append([]string{v.Func}, argNames...)
	part.AppendOp(info, "call_void", args...)
	return part, ""
}

// lowerIndex lowers an array element access. Fewer indices than the array's
// declared rank (or an explicit NoLoad request, used when synthesizing an
// assignment target) yields a pointer to the addressed sub-array without a
// final load — the "at_woload" form (spec §4.1 "ExpAST", at/at_woload).
func lowerIndex(v *ast.Index, info *Info) (*PartIR, string) {
	part := NewPartIR()
	arrName := info.GetVarName(v.Array)
	dims := info.GetType(arrName)
	noLoad := v.NoLoad || len(v.Idx) != len(dims)

	category := "at"
	if noLoad {
		category = "at_woload"
	}
	current := info.AllocateVar(category, true, false, false, nil)

	offsetPart, offsetName := lowerLinearIndex(v.Idx, dims, info)
	part.Merge(offsetPart, info)

	op := "getelemptr"
	if info.IsArg(arrName) {
		op = "getptr"
	}
	ptrName := info.AllocateVar("atptr", true, false, false, nil)
	part.AppendOp(info, op, ptrName, arrName, offsetName)

	if noLoad {
		return part, ptrName
	}
	part.AppendOp(info, "load", current, ptrName)
	return part, current
}

// lowerLinearIndex collapses a multi-dimensional index list into the single
// linear element offset `getptr`/`getelemptr` expects (the backend scales
// it by 4 bytes), summing
// `index[i] * size(dims[i+1:])` across dimensions (spec §4.1 "try_eval", the
// array-index linearization rule).
func lowerLinearIndex(idxExps []ast.Exp, dims []*int, info *Info) (*PartIR, string) {
	part := NewPartIR()
	terms := make([]string, len(idxExps))
	for i, ix := range idxExps {
		size := 1
		for j := i + 1; j < len(dims); j++ {
			if dims[j] != nil {
				size *= *dims[j]
			}
		}
		sub, name := lowerExp(ix, info)
		part.Merge(sub, info)
		if size == 1 {
			terms[i] = name
		} else {
			terms[i] = binaryOperand("mul", name, strconv.Itoa(size), info, part)
		}
	}
	result := terms[0]
	for _, t := range terms[1:] {
		result = binaryOperand("add", result, t, info, part)
	}
	return part, result
}
