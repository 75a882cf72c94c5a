// Package riscv lowers gathered, preservation-annotated IR into RV32IM
// assembly text: a register controller tracking which IR name currently
// lives in which register (and where it lives in memory when it doesn't),
// plus the per-opcode emission pass that drives it (spec §5 "Code
// Generation").
package riscv

import (
	"strconv"

	"vslc/src/ir"
)

// Register file layout (RV32I integer registers), grounded on
// original_source/inc/riscv.h + src/riscv.cpp.
const (
	IMM12Max    = 2048
	RegNum      = 32
	FreeRegNum  = 13
	SavedRegNum = 12
	ZeroReg     = 0
	A0Reg       = 10
	T0Reg       = 5
	T5Reg       = 30
	T6Reg       = 31
)

// Base registers (integer), named the way the teacher's stubbed backend
// named them.
const (
	x0  = iota // Zero register, RO.
	x1         // Return address (caller saved).
	x2         // Stack pointer.
	x3         // Global pointer.
	x4         // Thread pointer.
	x5         // Temp (caller saved).
	x6         // Temp (caller saved).
	x7         // Temp (caller saved).
	x8         // Frame pointer (callee saved).
	x9         // Saved (callee saved).
	x10        // a0.
	x11        // a1.
	x12        // a2.
	x13        // a3.
	x14        // a4.
	x15        // a5.
	x16        // a6.
	x17        // a7.
	x18        // Saved (callee saved).
	x19        // Saved (callee saved).
	x20        // Saved (callee saved).
	x21        // Saved (callee saved).
	x22        // Saved (callee saved).
	x23        // Saved (callee saved).
	x24        // Saved (callee saved).
	x25        // Saved (callee saved).
	x26        // Saved (callee saved).
	x27        // Saved (callee saved).
	x28        // Temp (caller saved).
	x29        // Temp (caller saved).
	x30        // Temp (caller saved), reserved as a scratch for far offsets.
	x31        // Temp (caller saved), reserved as a scratch for far offsets.
)

// RegNames maps a register index to its ABI name.
var RegNames = [RegNum]string{
	"zero", "ra", "sp", "gp", "tp",
	"t0", "t1", "t2",
	"fp", "s1",
	"a0", "a1", "a2", "a3", "a4", "a5", "a6", "a7",
	"s2", "s3", "s4", "s5", "s6", "s7", "s8", "s9", "s10", "s11",
	"t3", "t4", "t5", "t6",
}

// FreeRegs are the registers the allocator may hand out for ordinary values:
// the caller-saved temporaries and argument registers.
var FreeRegs = [FreeRegNum]int{
	x5, x6, x7,
	x10, x11, x12, x13, x14, x15, x16, x17,
	x28, x29,
}

// SavedRegs are the callee-saved registers preservation analysis shadows
// variables into across a super-block's lifetime.
var SavedRegs = [SavedRegNum]int{
	x8, x9,
	x18, x19, x20, x21, x22, x23, x24, x25, x26, x27,
}

// RegNameToIdx resolves an ABI register name back to its index. Panics on an
// unknown name — every caller passes a name drawn from RegNames itself.
func RegNameToIdx(name string) int {
	for i, n := range RegNames {
		if n == name {
			return i
		}
	}
	panic("riscv: unknown register name " + name)
}

// Text is one emitted assembly line: either a label (`len(Text)==1` and its
// single element ends in `:`) or an instruction mnemonic followed by its
// operands.
type Text []string

// IsLabel reports whether t is a bare label line.
func (t Text) IsLabel() bool {
	return len(t) == 1 && len(t[0]) > 0 && t[0][len(t[0])-1] == ':'
}

// Program accumulates the emitted instruction stream. The `.data` directives
// for global variables are emitted into Text as well; the emitter does not
// write to Data.
type Program struct {
	Text []Text
	Data []string
}

// Emit appends one instruction line.
func (p *Program) Emit(op string, args ...string) {
	p.Text = append(p.Text, append(Text{op}, args...))
}

// Label appends a bare label line.
func (p *Program) Label(name string) {
	p.Text = append(p.Text, Text{name + ":"})
}

// SafeMem emits a load/store at a frame-relative offset, routing through a
// scratch register (`t5`) when the offset doesn't fit a 12-bit immediate
// (spec §5 "Stack Frame"), matching `safe_mem` exactly.
func SafeMem(op, regName string, loc int, p *Program, base string) {
	if base == "" {
		base = "fp"
	}
	if loc <= IMM12Max && loc > -IMM12Max {
		p.Emit(op, regName, minus(loc)+"("+base+")")
		return
	}
	p.Emit("li", "t5", strconv.Itoa(loc))
	p.Emit("sub", "t5", base, "t5")
	p.Emit(op, regName, "0(t5)")
}

func minus(n int) string { return strconv.Itoa(-n) }

// GlobalInfo is the whole-program table Controller consults to tell a global
// variable or function name apart from a local stack slot.
type GlobalInfo struct {
	GlobalVar map[string]string // IR name -> `.data` symbol.
	FuncName  map[string]string // function IR name -> its emitted label.
}

// FuncInfo is the per-function frame layout Controller builds up as it
// allocates stack slots, consumed by the prologue/epilogue emitter.
type FuncInfo struct {
	memNeed  int
	savePos  map[string]int
}

// InitSaveReg reserves a fixed frame slot for every callee-saved register
// preservation analysis might shadow a variable into, ahead of any slot
// allocated for an ordinary local — the reservation layout `alloc_preserve`'s
// chosen set is saved/restored against in the prologue/epilogue.
func (f *FuncInfo) InitSaveReg() {
	if f.savePos == nil {
		f.savePos = map[string]int{}
	}
	for i := 1; i < SavedRegNum; i++ {
		f.savePos[savedKey(i)] = (i + 1) * 4
	}
}

func savedKey(i int) string { return "saved " + strconv.Itoa(i) }

// MemNeed returns the bytes of stack slots allocated so far (the deepest
// slot offset). The emitted frame is this plus 4, rounded up to a multiple
// of 16.
func (f *FuncInfo) MemNeed() int { return f.memNeed }

// SavePos returns the frame offset reserved for name.
func (f *FuncInfo) SavePos(name string) int { return f.savePos[name] }

// transformArgName rewrites a function-entry-block temporary's formatted
// `%arg_name_N: type` binding name into the plain `@name_N` stack-slot name
// Controller.clear binds incoming argument registers to.
func transformArgName(name string) string {
	colon := indexByte(name, ':')
	if ir.StartWith(name, "%") {
		rest := name[5:]
		if c := indexByte(rest, ':'); c >= 0 {
			rest = rest[:c]
		}
		return "@" + rest
	}
	if colon >= 0 {
		return name[:colon]
	}
	return name
}

func indexByte(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return i
		}
	}
	return -1
}
