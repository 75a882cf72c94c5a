package riscv

import (
	"strconv"
	"strings"

	"vslc/src/ir"
)

// Emit lowers a whole compiled program into RISC-V assembly text, grounded
// on `ProgramIR::to_riscv`/`FunctionIR::to_riscv`/`BaseBlockIR::to_riscv`/
// `SuperBlockIR::to_riscv`/`ValueIR::to_riscv` (spec §5 "Code Generation").
func Emit(prog *ir.Program) *Program {
	p := &Program{}
	c := NewController()
	glob := &GlobalInfo{GlobalVar: map[string]string{}, FuncName: map[string]string{}}
	c.SetGlobal(glob)

	p.Emit(".data")
	for _, v := range prog.Globals {
		name := v.Args[0]
		symbol := "globl_" + name[1:]
		glob.GlobalVar[name] = symbol
		p.Emit(".globl", symbol)
		p.Label(symbol)
		emitGlobalInit(p, v)
	}
	p.Text = append(p.Text, Text{""})
	p.Emit(".text")

	for name := range ir.LibFuncDecl {
		glob.FuncName[name] = name
	}
	glob.FuncName["main"] = "main"
	for _, fn := range prog.Functions {
		if fn.Name != "main" {
			glob.FuncName[fn.Name] = "func_" + fn.Name
		}
	}

	for _, fn := range prog.Functions {
		emitFunction(p, c, fn)
	}
	return p
}

// emitGlobalInit writes a global variable's `.data` body: a zero-fill for an
// uninitialized scalar/array, a single `.word` for a scalar, or a run of
// `.word`/`.zero` directives for an array literal (runs of consecutive zero
// elements collapse into one `.zero`).
func emitGlobalInit(p *Program, v *ir.Value) {
	typ, val := v.Args[1], v.Args[2]
	switch {
	case val == "undef":
		p.Emit(".zero", strconv.Itoa(typeSize(typ)))
	case val[0] != '{':
		p.Emit(".word", val)
	default:
		elems := strings.Split(val[1:len(val)-1], ", ")
		zeroRun := 0
		for _, e := range elems {
			if e == "0" {
				zeroRun += 4
				continue
			}
			if zeroRun > 0 {
				p.Emit(".zero", strconv.Itoa(zeroRun))
				zeroRun = 0
			}
			p.Emit(".word", e)
		}
		if zeroRun > 0 {
			p.Emit(".zero", strconv.Itoa(zeroRun))
		}
	}
}

// typeSize returns a type's size in bytes: 4 for a scalar `i32`, 4*N for an
// array type formatted `[i32, N]`.
func typeSize(typ string) int {
	if typ == "i32" {
		return 4
	}
	// "[i32, N]" -> N
	n, _ := strconv.Atoi(typ[6 : len(typ)-1])
	return n * 4
}

// getLog returns i such that 1<<i == x, or -1 if x isn't a power of two.
func getLog(x int) int {
	for i := 0; i < 32; i++ {
		if 1<<uint(i) == x {
			return i
		}
	}
	return -1
}

// mustAtoi parses a numeric IR operand. The value always comes from a
// constant-folded literal or an array index the frontend already validated,
// so a parse failure can't occur in practice.
func mustAtoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// emitFunction lays out fn's stack frame prologue, emits its body through
// its super-block tree, and back-patches the frame size into the prologue's
// `li t6, <size>` once the whole body is known (the original buffers the
// prologue and mutates it in place; Go's append-only slice makes that
// awkward, so the frame-size line is emitted with a placeholder index and
// rewritten afterward instead).
func emitFunction(p *Program, c *Controller, fn *ir.Function) {
	info := &FuncInfo{}
	c.SetFunc(info, fn.Args)
	info.InitSaveReg()

	label := c.glob.FuncName[fn.Name]
	p.Emit(".globl", label)
	p.Label(label)

	spLine := len(p.Text)
	p.Emit("li", "t6")
	p.Emit("sub", "sp", "sp", "t6")
	p.Emit("sw", "fp", "0(sp)")
	p.Emit("add", "fp", "sp", "t6")
	p.Emit("sw", "ra", "-4(fp)")

	emitSuperBlock(p, c, fn.Super)

	memNeed := ((info.MemNeed() + 4 + 15) / 16) * 16
	p.Text[spLine] = append(p.Text[spLine], strconv.Itoa(memNeed))
	p.Text = append(p.Text, Text{""})
}

// emitBlock writes one basic block's label and instructions.
// `%label_while_next_N` blocks are a loop's continuation target; their own
// label is suffixed `_act`, because the bare `label_while_next_N` label is a
// stub the loop's emitSuperBlock writes after the body, which restores the
// enclosing preserved-register set and then jumps to `_act`, per
// SuperBlockIR::to_riscv.
func emitBlock(p *Program, c *Controller, b *ir.Block) {
	if ir.StartWith(b.Name, "%label_while_next") {
		p.Label(b.Name[1:] + "_act")
	} else {
		p.Label(b.Name[1:])
	}
	for _, v := range b.Values {
		emitValue(p, c, v)
	}
}

// emitSuperBlock runs the callee-saved register handoff around one
// super-block's body: it computes the register set this super-block wants
// preserved (reusing whatever's already resident, assigning the rest to
// still-free saved registers), checks out that set on entry and the
// previous set on exit, and — for a non-entry super-block (a loop body) —
// wraps the body with the `_prepare`/`_act` label pair SuperBlockIR uses to
// let a `jump` target either the register-handoff preamble or the body
// directly depending on where control came from.
func emitSuperBlock(p *Program, c *Controller, sb *ir.SuperBlock) {
	oldSave := map[string]int{}
	for k, v := range c.CurrentSave {
		oldSave[k] = v
	}
	newSave := map[string]int{}
	var toSave []string

	for name := range sb.Preserve {
		if reg, ok := c.CurrentSave[name]; ok {
			newSave[name] = reg
		} else {
			toSave = append(toSave, name)
		}
	}

	usedSaved := func(idx int) bool {
		for _, reg := range newSave {
			if reg == idx {
				return true
			}
		}
		return false
	}
	for _, name := range toSave {
		for i := 1; i < SavedRegNum; i++ {
			idx := SavedRegs[i]
			if usedSaved(idx) {
				continue
			}
			newSave[name] = idx
			break
		}
	}
	for i := 1; i < SavedRegNum; i++ {
		if usedSaved(SavedRegs[i]) {
			continue
		}
		for name, reg := range oldSave {
			if reg == SavedRegs[i] {
				newSave[name] = reg
				break
			}
		}
	}

	firstName := sb.FirstBlockName()
	nextName := firstName[1:]
	if nextName != "entry" {
		p.Label(nextName + "_prepare")
		c.SetLabel(nextName)
	}

	c.Checkout(newSave, p, firstName != "%entry")
	for _, elem := range sb.Blocks {
		switch e := elem.(type) {
		case *ir.Block:
			emitBlock(p, c, e)
		case *ir.SuperBlock:
			emitSuperBlock(p, c, e)
		}
	}
	if firstName != "%entry" {
		p.Label("label_while_next_" + firstName[18:])
	}
	c.Checkout(oldSave, p, true)
	if firstName != "%entry" {
		p.Emit("j", "label_while_next_"+firstName[18:]+"_act")
	}
}

// emitValue emits one instruction's assembly, preceded by the source IR line
// as a comment for readability (spec §5 parity with the teacher's
// `#  <ir-text>:` convention). Args carrying the `//! disgard` tag are
// argument-binding bookkeeping only and produce no code beyond the comment.
func emitValue(p *Program, c *Controller, v *ir.Value) {
	p.Text = append(p.Text, Text{"# " + valueComment(v) + ":"})
	if ir.IsDiscard(v) {
		return
	}

	switch {
	case v.Op == "ret":
		emitRet(p, c, v)
	case v.Op == "alloc":
		c.Alloc(v.Args[0], p, true, typeSize(v.Args[1]))
	case v.Op == "br":
		emitBr(p, c, v)
	case v.Op == "jump":
		emitJump(p, c, v)
	case ir.StartWith(v.Op, "call"):
		emitCall(p, c, v)
	case v.Op == "getptr" || v.Op == "getelemptr":
		emitGetPtr(p, c, v)
	case v.Op == "load":
		emitLoad(p, c, v)
	case v.Op == "store":
		emitStore(p, c, v)
	case ir.BinaryOps[v.Op]:
		emitBinary(p, c, v)
	case v.Op == "//!":
		if v.Args[0] == "decl" {
			c.Alloc(v.Args[1], p, false, 4)
		}
	}
}

// valueComment renders v as a short debug comment preceding its emitted
// instructions, the same role as the original's inline `#  <ir-text>:`
// annotation ahead of every ValueIR::to_riscv case.
func valueComment(v *ir.Value) string {
	if len(v.Args) == 0 {
		return v.Op
	}
	return v.Op + " " + strings.Join(v.Args, ", ")
}

func emitRet(p *Program, c *Controller, v *ir.Value) {
	if len(v.Args) > 0 {
		c.SaveBack(A0Reg, p, false)
		if ir.IsVar(v.Args[0]) {
			c.Load(v.Args[0], p, true, A0Reg)
		} else {
			p.Emit("li", "a0", v.Args[0])
		}
	}
	c.Refresh(p, false, nil)
	c.PrepareReturn(p)
	p.Emit("lw", "ra", "-4(fp)")
	p.Emit("lw", "t6", "0(sp)")
	p.Emit("mv", "sp", "fp")
	p.Emit("mv", "fp", "t6")
	p.Emit("ret")
}

func emitBr(p *Program, c *Controller, v *ir.Value) {
	var reg int
	if ir.IsVar(v.Args[0]) {
		reg = c.Load(v.Args[0], p, true, 0)
	} else {
		p.Emit("li", "t6", v.Args[0])
		reg = T6Reg
	}
	c.TryInvalidate(v.Args[0])
	c.Refresh(p, true, nil)
	tempLabel := "labellongjump_" + strconv.Itoa(c.LongJump)
	c.LongJump++
	p.Emit("bnez", RegNames[reg], tempLabel)
	p.Emit("j", v.Args[2][1:])
	p.Label(tempLabel)
	p.Emit("j", v.Args[1][1:])
}

func emitJump(p *Program, c *Controller, v *ir.Value) {
	c.Refresh(p, true, nil)
	target := v.Args[0][1:]
	if c.HasSetLabel(target) || !ir.StartWith(target, "label_while_cond") {
		p.Emit("j", target)
	} else {
		p.Emit("j", target+"_prepare")
	}
}

func emitCall(p *Program, c *Controller, v *ir.Value) {
	withReturn := v.Op == "call_int"
	ret := 0
	if withReturn {
		ret = 1
	}
	argNum := len(v.Args) - 1 - ret
	padNum := (4 - (argNum % 4)) % 4
	sizeNeed := (argNum + padNum) * 4

	p.Emit("li", "t6", strconv.Itoa(sizeNeed))
	p.Emit("sub", "sp", "sp", "t6")
	funcName := c.glob.FuncName[v.Args[0]]

	n := argNum
	if n > 8 {
		n = 8
	}
	for i := 0; i < n; i++ {
		arg := v.Args[i+1+ret]
		if ir.IsNum(arg) {
			c.SaveBack(A0Reg+i, p, true)
			p.Emit("li", "a"+strconv.Itoa(i), arg)
		} else {
			c.Load(arg, p, true, RegNameToIdx("a"+strconv.Itoa(i)))
		}
	}
	for i := 8; i < argNum; i++ {
		arg := v.Args[i+1+ret]
		if ir.IsNum(arg) {
			p.Emit("li", "t6", arg)
		} else {
			c.Load(arg, p, true, T6Reg)
		}
		SafeMem("sw", "t6", -(i-8)*4, p, "sp")
	}
	for i := 0; i < argNum; i++ {
		c.TryInvalidate(v.Args[i+1+ret])
	}
	c.Refresh(p, true, nil)
	c.Transition(p, "sw")
	p.Emit("call", funcName)
	p.Emit("li", "t6", strconv.Itoa(sizeNeed))
	p.Emit("add", "sp", "sp", "t6")
	c.Transition(p, "lw")
	c.Refresh(p, true, nil)
	if withReturn {
		c.bind("a0", v.Args[1])
	}
}

func emitGetPtr(p *Program, c *Controller, v *ir.Value) {
	c.Ptr[v.Args[0]] = true
	if ir.IsNum(v.Args[2]) {
		p.Emit("li", "t6", strconv.Itoa(mustAtoi(v.Args[2])*4))
	} else {
		reg := c.Load(v.Args[2], p, true, 0)
		p.Emit("li", "t6", "2")
		p.Emit("sll", "t6", RegNames[reg], "t6")
	}
	targetReg := c.Load(v.Args[0], p, false, 0)
	var ptrReg int
	if v.Op == "getptr" {
		ptrReg = c.Load(v.Args[1], p, true, 0)
	} else if sym, ok := c.glob.GlobalVar[v.Args[1]]; ok {
		p.Emit("la", "t5", sym)
		ptrReg = T5Reg
	} else {
		pos := c.fn.SavePos(v.Args[1])
		p.Emit("li", "t5", strconv.Itoa(-pos))
		p.Emit("add", "t5", "t5", "fp")
		ptrReg = T5Reg
	}
	p.Emit("add", RegNames[targetReg], RegNames[ptrReg], "t6")
	c.TryInvalidate(v.Args[2])
}

func emitLoad(p *Program, c *Controller, v *ir.Value) {
	reg1 := c.Load(v.Args[0], p, false, 0)
	reg2 := c.Load(v.Args[1], p, true, 0)
	if c.Ptr[v.Args[1]] {
		p.Emit("lw", RegNames[reg1], "0("+RegNames[reg2]+")")
	} else {
		p.Emit("mv", RegNames[reg1], RegNames[reg2])
	}
	c.TryInvalidate(v.Args[1])
}

func emitStore(p *Program, c *Controller, v *ir.Value) {
	if v.Args[0][0] != '{' {
		if c.Ptr[v.Args[1]] {
			var vreg int
			if ir.IsNum(v.Args[0]) {
				p.Emit("li", "t6", v.Args[0])
				vreg = T6Reg
			} else {
				vreg = c.Load(v.Args[0], p, true, 0)
			}
			reg := c.Load(v.Args[1], p, true, 0)
			p.Emit("sw", RegNames[vreg], "0("+RegNames[reg]+")")
		} else {
			reg := c.Load(v.Args[1], p, false, 0)
			if ir.IsNum(v.Args[0]) {
				p.Emit("li", RegNames[reg], v.Args[0])
			} else {
				reg1 := c.Load(v.Args[0], p, true, 0)
				p.Emit("mv", RegNames[reg], RegNames[reg1])
			}
		}
		c.TryInvalidate(v.Args[0])
	} else {
		emitArrayStore(p, c, v)
	}
	c.TryInvalidate(v.Args[1])
}

func emitArrayStore(p *Program, c *Controller, v *ir.Value) {
	elems := strings.Split(v.Args[0][1:len(v.Args[0])-1], ", ")
	pos := c.fn.SavePos(v.Args[1])
	p.Emit("li", "t6", strconv.Itoa(-pos))
	p.Emit("add", "t6", "t6", "fp")
	jumpNum := 0
	for _, num := range elems {
		if num != "undef" {
			if jumpNum >= IMM12Max {
				p.Emit("li", "t5", strconv.Itoa(jumpNum))
				p.Emit("add", "t6", "t6", "t5")
				jumpNum = 0
			}
			numReg := "zero"
			if num != "0" {
				p.Emit("li", "t5", num)
				numReg = "t5"
			}
			p.Emit("sw", numReg, strconv.Itoa(jumpNum)+"(t6)")
		}
		jumpNum += 4
	}
}

// emitBinary lowers a binary-op IR instruction, applying the same
// peephole substitutions as `op_name.count(op)` in ValueIR::to_riscv:
// immediate add/sub/and/or, shift-by-log2 for power-of-two mul/div, and
// `seqz`/`snez`/`xor`-based comparisons instead of always loading both
// operands into registers.
func emitBinary(p *Program, c *Controller, v *ir.Value) {
	op := v.Op
	a1, a2 := v.Args[1], v.Args[2]
	lhs, rhs := "!t6", "!t6"
	if ir.IsVar(a1) {
		lhs = a1
	}
	if ir.IsVar(a2) {
		rhs = a2
	}

	if op == "sub" && rhs == "!t6" && mustAtoi(a2) != (1<<31) {
		op = "add"
		a2 = strconv.Itoa(-mustAtoi(a2))
	}

	switch op {
	case "add", "or", "xor", "and":
		if lhs == "!t6" {
			lhs, rhs = rhs, lhs
			a1, a2 = a2, a1
		}
		if ir.IsNum(a2) && mustAtoi(a2) >= -IMM12Max && mustAtoi(a2) < IMM12Max {
			reg := c.Load(v.Args[0], p, false, 0)
			lreg := c.Load(lhs, p, true, 0)
			p.Emit(op+"i", RegNames[reg], RegNames[lreg], a2)
			c.TryInvalidate(lhs)
			return
		}
	case "mul", "div":
		if lhs == "!t6" && op == "mul" {
			lhs, rhs = rhs, lhs
			a1, a2 = a2, a1
		}
		if ir.IsNum(a2) {
			if log := getLog(mustAtoi(a2)); log != -1 {
				reg := c.Load(v.Args[0], p, false, 0)
				lreg := c.Load(lhs, p, true, 0)
				if log != 0 {
					p.Emit("li", "t6", strconv.Itoa(log))
					shiftOp := "sra"
					if op == "mul" {
						shiftOp = "sll"
					}
					p.Emit(shiftOp, RegNames[reg], RegNames[lreg], "t6")
				} else {
					p.Emit("mv", RegNames[reg], RegNames[lreg])
				}
				c.TryInvalidate(lhs)
				return
			}
		}
	case "eq", "ne":
		if lhs == "!t6" {
			lhs, rhs = rhs, lhs
			a1, a2 = a2, a1
		}
		if a2 == "0" {
			reg := c.Load(v.Args[0], p, false, 0)
			lreg := c.Load(lhs, p, true, 0)
			p.Emit("s"+op+"z", RegNames[reg], RegNames[lreg])
			c.TryInvalidate(lhs)
			return
		}
	}

	if lhs == "!t6" {
		if a1 == "0" {
			lhs = "!zero"
		} else {
			p.Emit("li", "t6", a1)
		}
	}
	if rhs == "!t6" {
		if a2 == "0" {
			rhs = "!zero"
		} else {
			p.Emit("li", "t6", a2)
		}
	}

	var riscvOp string
	switch op {
	case "mod":
		riscvOp = "rem"
	case "lt", "gt":
		riscvOp = "s" + op
	case "eq", "ne":
		riscvOp = "xor"
	case "le":
		riscvOp = "sgt"
	case "ge":
		riscvOp = "slt"
	default:
		riscvOp = op
	}
	reg := c.Load(v.Args[0], p, false, 0)
	lreg := c.Load(lhs, p, true, 0)
	rreg := c.Load(rhs, p, true, 0)
	p.Emit(riscvOp, RegNames[reg], RegNames[lreg], RegNames[rreg])

	if op == "le" || op == "ge" {
		p.Emit("seqz", RegNames[reg], RegNames[reg])
	}
	if op == "eq" || op == "ne" {
		p.Emit("s"+op+"z", RegNames[reg], RegNames[reg])
	}
	c.TryInvalidate(lhs)
	c.TryInvalidate(rhs)
}
