package ir

import (
	"sort"

	"github.com/samber/lo"
)

// SavedRegNum mirrors the RISC-V backend's callee-saved register file size
// (s0-s11, spec §5 "Register Allocation"). Duplicated here rather than
// imported from the riscv package to keep ir free of a backend dependency —
// the two packages shared a translation unit in the original.
const SavedRegNum = 12

// AllocPreserve runs callee-saved preservation analysis over fn's super-block
// tree (spec §4.2 "Preservation Analysis"): for each super-block, count how
// often each allocated variable's stack slot is touched across every
// instruction it contains (recursing into nested loop super-blocks first),
// then keep the most-frequently-touched slots — up to SavedRegNum-1 of them —
// as the set callee-saved registers should shadow for that super-block's
// lifetime, rather than reloading from memory on every use.
func AllocPreserve(fn *Function) {
	allocPreserveSuper(fn.Super, false)
}

// allocPreserveSuper computes and records sb.Preserve, returning sb's own
// operand-touch counts so an enclosing call can fold them into its own
// totals. inWhile is true for every super-block except the function's
// outermost one — mirroring the original's alloc_preserve(bool in_while=true)
// default parameter, under which only the root call passes false.
func allocPreserveSuper(sb *SuperBlock, inWhile bool) map[string]int {
	count := map[string]int{}
	for _, elem := range sb.Blocks {
		switch e := elem.(type) {
		case *Block:
			addCounts(count, countBlock(e))
		case *SuperBlock:
			addCounts(count, allocPreserveSuper(e, true))
		}
	}

	entries := lo.Entries(count)
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Value != entries[j].Value {
			return entries[i].Value > entries[j].Value
		}
		return entries[i].Key < entries[j].Key
	})

	threshold := 1
	if inWhile {
		threshold = 0
	}
	preserve := map[string]bool{}
	limit := SavedRegNum - 1
	for i := 0; i < limit && i < len(entries); i++ {
		if entries[i].Value > threshold {
			preserve[entries[i].Key] = true
		}
	}
	sb.Preserve = preserve
	return count
}

func addCounts(dst, src map[string]int) {
	for k, v := range src {
		dst[k] += v
	}
}

// countBlock tallies how many times each stack-resident name (program
// variable or `%alloc_...` temporary) is touched by b's instructions,
// skipping argument-binding instructions tagged `//! disgard` and any
// `//!`-opcode pseudo-instruction (neither reaches the RISC-V emitter).
// Per-opcode operand selection mirrors BaseBlockIR::alloc_preserve exactly:
// only operands that are themselves allocated names are counted.
func countBlock(b *Block) map[string]int {
	count := map[string]int{}
	add := func(name string) {
		if IsAllocVar(name) {
			count[name]++
		}
	}

	for _, v := range b.Values {
		if IsDiscard(v) || v.Op == "//!" {
			continue
		}
		switch {
		case v.Op == "ret":
			if len(v.Args) > 0 {
				add(v.Args[0])
			}
		case v.Op == "br":
			add(v.Args[0])
		case v.Op == "load":
			add(v.Args[0])
			add(v.Args[1])
		case v.Op == "store":
			if len(v.Args[0]) > 0 && v.Args[0][0] == '{' {
				continue
			}
			add(v.Args[0])
			add(v.Args[1])
		case BinaryOps[v.Op]:
			add(v.Args[0])
			add(v.Args[1])
			add(v.Args[2])
		case StartWith(v.Op, "call"):
			for i := 1; i < len(v.Args); i++ {
				add(v.Args[i])
			}
		case v.Op == "getptr" || v.Op == "getelemptr":
			add(v.Args[2])
		}
	}
	return count
}
