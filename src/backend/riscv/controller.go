package riscv

import (
	"strconv"

	"vslc/src/ir"
)

// Controller is the register allocator: which IR name currently lives in
// which register, where each name's stack slot is, and the bookkeeping
// needed to spill/reload across instruction and block boundaries (spec §5
// "Register Allocation"). One Controller is reused across a whole program;
// SetFunc resets its per-function state.
type Controller struct {
	glob *GlobalInfo
	fn   *FuncInfo

	regInUse [RegNum]string // "" means free.
	regPos   map[string]int // name -> register index; absent/-1 means "in memory".
	labelSet map[string]bool

	currentTime int
	lastUsed    [RegNum]int

	// CurrentSave is the super-block-scoped set of names a callee-saved
	// register is currently shadowing: name -> register index.
	CurrentSave map[string]int
	LongJump    int
	Ptr         map[string]bool
}

// NewController returns a zero-valued Controller ready for SetGlobal/SetFunc.
func NewController() *Controller {
	return &Controller{
		regPos:      map[string]int{},
		labelSet:    map[string]bool{},
		CurrentSave: map[string]int{},
		Ptr:         map[string]bool{},
	}
}

// SetGlobal installs the whole-program global/function table.
func (c *Controller) SetGlobal(g *GlobalInfo) { c.glob = g }

// SetFunc installs fn's frame as the one Controller allocates into and binds
// args's incoming parameters (args formatted as `name: type`, per
// Function.Args) to their ABI argument registers / stack slots.
func (c *Controller) SetFunc(fn *FuncInfo, args []string) {
	c.fn = fn
	c.clear(args)
}

const regPosUnset = -1

func (c *Controller) getRegPos(name string) (int, bool) {
	p, ok := c.regPos[name]
	if !ok || p == regPosUnset {
		return 0, false
	}
	return p, true
}

// clear resets all per-function state (`Controller::clear`): every argument
// register is bound back to its parameter name, and the rest of the free
// register file starts empty.
func (c *Controller) clear(args []string) {
	c.Ptr = map[string]bool{}
	argc := len(args)
	c.fn.savePos = map[string]int{}
	c.regPos = map[string]int{}
	c.CurrentSave = map[string]int{}
	for i := 1; i < SavedRegNum; i++ {
		c.CurrentSave[savedKey(i)] = SavedRegs[i]
	}
	c.labelSet = map[string]bool{}
	c.fn.memNeed = 4 * SavedRegNum

	for i := range c.regInUse {
		c.regInUse[i] = ""
	}
	c.regInUse[x0] = "zero"
	c.regInUse[x1] = "return address"
	c.regInUse[x2] = "stack pointer"
	c.regInUse[x3] = "global pointer"
	c.regInUse[x4] = "thread pointer"
	c.regInUse[x8] = "frame pointer"
	c.regInUse[x9] = "saved 1"

	n := argc
	if n > 8 {
		n = 8
	}
	for i := 0; i < n; i++ {
		name := transformArgName(args[i])
		c.bind(RegNames[i+10], name)
		c.fn.savePos[name] = (1 + i - argc) * 4
	}
	for i := 8; i < argc; i++ {
		c.fn.savePos[transformArgName(args[i])] = -(i - 8) * 4
	}
	for i := argc; i < 8; i++ {
		c.regInUse[i+10] = ""
	}
	for i := 18; i < 28; i++ {
		c.regInUse[i] = savedKey(i - 16)
	}
	for i := 28; i < 32; i++ {
		c.regInUse[i] = ""
	}

	c.currentTime = 0
	for i := range c.lastUsed {
		c.lastUsed[i] = 0
	}
}

// varMem emits a load/store against name's storage location: a `.data`
// global (via `la`+op) or a frame-relative stack slot (via SafeMem).
func (c *Controller) varMem(op, name, regName string, p *Program) {
	if sym, ok := c.glob.GlobalVar[name]; ok {
		p.Emit("la", "t5", sym)
		p.Emit(op, regName, "0(t5)")
		return
	}
	SafeMem(op, regName, c.fn.SavePos(name), p, "")
}

// Refresh releases every in-use free register (unless it's carrying a
// temporary the caller exempted via except) and resets the allocator's
// recency clock. With save true each released register is first written back
// to memory; with save false only registers holding globals are. It runs
// ahead of each control transfer (br, jump, call, ret), after which no
// free-register binding may be assumed live.
func (c *Controller) Refresh(p *Program, save bool, except []string) {
	for _, idx := range FreeRegs {
		name := c.regInUse[idx]
		if name == "" {
			continue
		}
		if !ir.IsAllocVar(name) && contains(except, name) {
			continue
		}
		_, isGlobal := c.glob.GlobalVar[name]
		if save || isGlobal {
			c.varMem("sw", name, RegNames[idx], p)
		}
		delete(c.regPos, name)
		c.regInUse[idx] = ""
	}
	c.currentTime = 0
	for i := range c.lastUsed {
		c.lastUsed[i] = 0
	}
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

// Transition writes (mode=="sw") or reads (mode=="lw") every currently
// globally-resident saved-register binding, used when entering/leaving a
// region where preserved globals must round-trip through memory (e.g.
// around a call).
func (c *Controller) Transition(p *Program, mode string) {
	for name, reg := range c.CurrentSave {
		if _, ok := c.glob.GlobalVar[name]; ok {
			c.varMem(mode, name, RegNames[reg], p)
		}
	}
}

// PrepareReturn handles every currently-saved binding ahead of a function
// return: globals are written back to their `.data` symbol, and any
// callee-saved register the function itself repurposed (i.e. not simply
// still holding its own "saved N" placeholder) is reloaded from its reserved
// frame slot, restoring the caller's value.
func (c *Controller) PrepareReturn(p *Program) {
	for name, reg := range c.CurrentSave {
		if _, ok := c.glob.GlobalVar[name]; ok {
			c.varMem("sw", name, RegNames[reg], p)
		}
		for j := 1; j < SavedRegNum; j++ {
			if reg == SavedRegs[j] && !ir.StartWith(name, "saved ") {
				p.Emit("lw", RegNames[reg], strconv.Itoa(-(j+1)*4)+"(fp)")
			}
		}
	}
}

// bind marks reg as currently holding name.
func (c *Controller) bind(reg, name string) {
	idx := RegNameToIdx(reg)
	c.regInUse[idx] = name
	c.regPos[name] = idx
	c.lastUsed[idx] = c.currentTime
	c.currentTime++
}

// Alloc reserves storage for name: a stack slot always (unless name already
// has one), and — when reg is true and size==4 — a free register too, if one
// is available without spilling anything. A no-op if name was already
// allocated.
func (c *Controller) Alloc(name string, p *Program, reg bool, size int) {
	if _, ok := c.fn.savePos[name]; ok {
		return
	}
	if size != 4 {
		reg = false
	}
	if c.fn != nil {
		c.fn.memNeed += size
		c.fn.savePos[name] = c.fn.memNeed
	}
	if reg {
		for _, idx := range FreeRegs {
			if c.regInUse[idx] == "" {
				c.regInUse[idx] = name
				c.regPos[name] = idx
				c.lastUsed[idx] = c.currentTime
				c.currentTime++
				return
			}
		}
	}
	c.regPos[name] = regPosUnset
}

// findLRU returns the free-register-file index least recently touched.
func (c *Controller) findLRU() int {
	minTime := 1 << 30
	minIdx := FreeRegs[0]
	for _, idx := range FreeRegs {
		if c.lastUsed[idx] < minTime {
			minTime = c.lastUsed[idx]
			minIdx = idx
		}
	}
	return minIdx
}

// SaveBack spills whatever reg currently holds back to memory. If sync is
// true, the register is also marked free afterward.
func (c *Controller) SaveBack(reg int, p *Program, sync bool) {
	name := c.regInUse[reg]
	if name == "" {
		return
	}
	c.varMem("sw", name, RegNames[reg], p)
	if sync {
		delete(c.regPos, name)
		c.regInUse[reg] = ""
	}
}

// findReg returns a free register, evicting (via SaveBack) the
// least-recently-used one if the free register file is full.
func (c *Controller) findReg(p *Program) int {
	for _, idx := range FreeRegs {
		if c.regInUse[idx] == "" {
			c.lastUsed[idx] = c.currentTime
			c.currentTime++
			return idx
		}
	}
	reg := c.findLRU()
	c.SaveBack(reg, p, false)
	c.lastUsed[reg] = c.currentTime
	c.currentTime++
	delete(c.regPos, c.regInUse[reg])
	c.regInUse[reg] = ""
	return reg
}

// Load returns the register index holding name's current value, allocating
// one and (if load is true) emitting the `lw`/`la` to populate it if name
// isn't already resident. specify, when non-zero, forces the result into
// that exact register index (spilling/evicting its current occupant first,
// and moving name's existing value there via `mv` rather than reloading if
// it was already resident elsewhere) — used for RISC-V calling-convention
// argument/return placement. With specify set, the register is always
// filled (by `mv` or a load) whatever load says. The sentinel names "!t6"/"!zero" bypass
// allocation entirely, resolving straight to the scratch/zero registers.
func (c *Controller) Load(name string, p *Program, load bool, specify int) int {
	if specify != 0 {
		if pos, ok := c.getRegPos(name); ok && pos == specify {
			c.lastUsed[pos] = c.currentTime
			c.currentTime++
			return pos
		}
		if c.regInUse[specify] != "" {
			c.varMem("sw", c.regInUse[specify], RegNames[specify], p)
			delete(c.regPos, c.regInUse[specify])
			c.regInUse[specify] = ""
		}
		if pos, ok := c.getRegPos(name); ok {
			p.Emit("mv", RegNames[specify], RegNames[pos])
			c.regInUse[pos] = ""
		} else {
			c.varMem("lw", name, RegNames[specify], p)
		}
		c.lastUsed[specify] = c.currentTime
		c.currentTime++
		c.regInUse[specify] = name
		c.regPos[name] = specify
	}

	switch name {
	case "!t6":
		return T6Reg
	case "!zero":
		return ZeroReg
	}

	if pos, ok := c.getRegPos(name); ok {
		c.lastUsed[pos] = c.currentTime
		c.currentTime++
		return pos
	}

	reg := c.findReg(p)
	c.regInUse[reg] = name
	c.regPos[name] = reg
	if load {
		c.varMem("lw", name, RegNames[reg], p)
	}
	return reg
}

// TryInvalidate drops name's register binding without spilling it — used
// on a temporary whose value an instruction has just consumed, freeing its
// register. Allocated names (`@` variables and `%alloc_` slots) keep their
// binding, since their register may hold a value not yet written back to
// memory.
func (c *Controller) TryInvalidate(name string) {
	if ir.IsAllocVar(name) {
		return
	}
	if pos, ok := c.getRegPos(name); ok {
		c.regInUse[pos] = ""
		delete(c.regPos, name)
	}
}

// Checkout replaces the active CurrentSave set with newSet (a super-block's
// chosen preservation set, register indices keyed by name), loading each
// newly-entering name into its assigned register unless it was already
// there under the same binding.
func (c *Controller) Checkout(newSet map[string]int, p *Program, load bool) {
	old := c.CurrentSave
	c.CurrentSave = map[string]int{}
	for name, reg := range newSet {
		if oldReg, ok := old[name]; !ok || oldReg != reg || !ir.StartWith(name, "saved ") {
			c.Alloc(name, p, false, 4)
			c.Load(name, p, load, reg)
		}
		c.CurrentSave[name] = reg
	}
}

// HasSetLabel reports whether name has already been emitted as a label in
// this function (guards against re-emitting a synthesized label twice).
func (c *Controller) HasSetLabel(name string) bool { return c.labelSet[name] }

// SetLabel records name as emitted.
func (c *Controller) SetLabel(name string) { c.labelSet[name] = true }
