package ir

import (
	"sort"
	"strings"

	"vslc/src/util"
)

// Print writes prog's textual IR form to w: the runtime library's `decl`
// lines, global variable declarations, then every function body — the
// format spec §6 "Textual IR" documents and a reader of the original's
// `-koopa` output would recognize line-for-line. Library declarations are
// written in sorted order for deterministic output; the original's
// unordered_map iteration order was never a contract worth reproducing.
func (p *Program) Print(w *util.Writer) {
	names := make([]string, 0, len(LibFuncDecl))
	for name := range LibFuncDecl {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		w.Write("%s\n", LibFuncDecl[name])
	}
	w.WriteString("\n")
	for _, v := range p.Globals {
		w.Write("%s\n", formatValue(v))
	}
	w.WriteString("\n")
	for _, fn := range p.Functions {
		fn.print(w)
	}
}

func (fn *Function) print(w *util.Writer) {
	w.Write("fun @%s(%s)", fn.Name, strings.Join(fn.Args, ", "))
	if fn.ReturnType == "int" {
		w.WriteString(": i32")
	}
	w.WriteString(" {\n")
	for _, b := range fn.Blocks {
		b.print(w)
	}
	w.WriteString("}\n\n")
}

func (b *Block) print(w *util.Writer) {
	w.Write("%s:\n", b.Name)
	for _, v := range b.Values {
		w.Write("\t%s\n", formatValue(v))
	}
}

// formatValue renders one instruction the way ValueIR::to_string does:
// most opcodes get a hand-written `dst = op args` shape; anything else
// falls back to a plain `op arg, arg, ...` join. Either way, a trailing
// `//! <tag...>` pair — appended by IRINFO.StartFunc to mark
// argument-binding bookkeeping instructions (invariant 6, spec §8) — is
// preserved verbatim if the chosen shape didn't already consume it.
func formatValue(v *Value) string {
	var instr string
	consumedTag := false

	switch {
	case BinaryOps[v.Op]:
		instr = v.Args[0] + " = " + v.Op + " " + v.Args[1] + ", " + v.Args[2]
	case v.Op == "alloc" || v.Op == "load":
		instr = v.Args[0] + " = " + v.Op + " " + v.Args[1]
	case v.Op == "global alloc":
		instr = "global " + v.Args[0] + " = alloc " + v.Args[1] + ", " + v.Args[2]
	case v.Op == "call_int":
		instr = v.Args[1] + " = call @" + v.Args[0] + "(" + strings.Join(v.Args[2:], ", ") + ")"
	case v.Op == "call_void":
		instr = "call @" + v.Args[0] + "(" + strings.Join(v.Args[1:], ", ") + ")"
	case v.Op == "getelemptr" || v.Op == "getptr":
		instr = v.Args[0] + " = " + v.Op + " " + v.Args[1] + ", " + v.Args[2]
	default:
		instr = v.Op
		for i, a := range v.Args {
			if i > 0 && a != "//!" {
				instr += ","
			}
			instr += " " + a
		}
		consumedTag = true
	}

	if !consumedTag {
		for i, a := range v.Args {
			if a == "//!" {
				instr += " //!"
				for _, tail := range v.Args[i+1:] {
					instr += " " + tail
				}
				break
			}
		}
	}
	return instr
}
