package ir

// pendingBlock is the single pending ("new_values") block a PartIR may hold:
// an as-yet-unsealed block body paired with its already-known name.
type pendingBlock struct {
	name   string
	values []*Value
}

// PartIR is the builder fragment lowering produces: a tail of instructions
// for the currently open leading block, a list of already-sealed blocks, and
// optionally one pending-but-not-yet-sealed next block. Design Notes §9
// calls for modeling this as an explicit state machine rather than two
// loosely-coupled optional fields; `pending == nil` is the "open head" state,
// `pending != nil` is "sealed-head-with-pending".
type PartIR struct {
	values  []*Value
	blocks  []*Block
	pending *pendingBlock
}

// NewPartIR returns an empty fragment.
func NewPartIR() *PartIR { return &PartIR{} }

// Values exposes the open-head tail, used only by CompUnit-level lowering to
// lift global declaration instructions out of the top-level fragment.
func (p *PartIR) Values() []*Value { return p.values }

// Blocks exposes the sealed block list, consumed when a function's PartIR is
// handed to its Function.Blocks.
func (p *PartIR) Blocks() []*Block { return p.blocks }

// tailEndsBlock reports whether the given instruction slice already ends
// with an end-of-block opcode.
func tailEndsBlock(vs []*Value) bool {
	return len(vs) > 0 && EndOfBlock[vs[len(vs)-1].Op]
}

// Append adds value to whichever tail is currently open: the pending block
// if one exists, otherwise the head values. A block that has already been
// closed by an end-of-block instruction silently drops further appends —
// the block is implicitly dead code after `ret`/`jump`/`br`. Appending an
// end-of-block instruction to an open pending block immediately seals it
// (mirroring the original's append-then-seal_next coupling), so the very
// next CreateNewBlock call is always legal.
func (p *PartIR) Append(value *Value, info *Info) {
	if p.pending != nil {
		p.pending.values = append(p.pending.values, value)
		if EndOfBlock[value.Op] {
			p.SealNext(info)
		}
		return
	}
	if tailEndsBlock(p.values) {
		return
	}
	p.values = append(p.values, value)
}

// AppendOp is a convenience wrapper building a Value from op/args and
// appending it.
func (p *PartIR) AppendOp(info *Info, op string, args ...string) {
	p.Append(NewValue(op, args...), info)
}

// SealNext finalizes the pending block into a real Block. If its last
// instruction is not an end-of-block op, a `jump %labelexit_<func>` is
// appended first — the function's canonical exit label.
func (p *PartIR) SealNext(info *Info) {
	if p.pending == nil {
		return
	}
	vs := p.pending.values
	if !tailEndsBlock(vs) {
		vs = append(vs, NewValue("jump", "%labelexit_"+info.FuncName))
	}
	p.blocks = append(p.blocks, &Block{Name: p.pending.name, Values: vs})
	p.pending = nil
}

// SealPrev builds the leading block (typically `%entry`) from the head
// values tail, appending `ret 0` (int return) or `ret` (void) if the block
// does not already end in a control transfer.
func (p *PartIR) SealPrev(name, funcType string) {
	vs := p.values
	if !tailEndsBlock(vs) {
		if funcType == "int" {
			vs = append(vs, NewValue("ret", "0"))
		} else {
			vs = append(vs, NewValue("ret"))
		}
	}
	p.blocks = append([]*Block{{Name: name, Values: vs}}, p.blocks...)
	p.values = nil
}

// CreateNewBlock opens a new pending block under name. Panics if a pending
// block is already open — sealing must happen before a new one starts
// (illegal-state-unrepresentable per Design Notes §9).
func (p *PartIR) CreateNewBlock(name string) {
	if p.pending != nil {
		panic("ir: PartIR.CreateNewBlock called with a pending block already open")
	}
	p.pending = &pendingBlock{name: name}
}

// Merge splices other into p: other's sealed blocks append to p.blocks;
// other's head values append to p's currently open tail (the pending block
// if one is open, else p.values) unless that tail is already sealed by an
// end-of-block instruction; if p's head tail is sealed and other carries a
// pending block, p adopts it as its own pending block.
func (p *PartIR) Merge(other *PartIR, info *Info) {
	p.blocks = append(p.blocks, other.blocks...)

	if p.pending != nil {
		p.pending.values = append(p.pending.values, other.values...)
		if tailEndsBlock(p.pending.values) {
			p.SealNext(info)
		}
	} else if !tailEndsBlock(p.values) {
		p.values = append(p.values, other.values...)
	}

	if other.pending != nil {
		p.pending = other.pending
	}
}

// Substitute rewrites every `jump`/`br` control-flow target across values,
// the pending block and all sealed blocks from name1 to name2 — used to
// back-patch `break`/`continue` placeholders once the enclosing `while` is
// known (spec §4.3/§9).
func (p *PartIR) Substitute(name1, name2 string) {
	substituteIn := func(vs []*Value) {
		for _, v := range vs {
			if v.Op != "jump" && v.Op != "br" {
				continue
			}
			for i, a := range v.Args {
				if a == name1 {
					v.Args[i] = name2
				}
			}
		}
	}
	substituteIn(p.values)
	if p.pending != nil {
		substituteIn(p.pending.values)
	}
	for _, b := range p.blocks {
		substituteIn(b.Values)
	}
}
