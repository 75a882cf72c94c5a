// Command vslc compiles a small C-subset language to RISC-V assembly (or
// dumps its intermediate representation as text), driven by the pipeline
// frontend.Tokenize -> frontend.Parse -> ir.Lower -> (ir.GatherSuper ->
// ir.AllocPreserve -> riscv.Emit), per spec §1 "Pipeline".
package main

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"vslc/src/backend/riscv"
	"vslc/src/frontend"
	"vslc/src/ir"
	"vslc/src/util"
)

// run executes one compiler invocation end-to-end, writing its result
// through a util.Writer obtained from util.NewWriter.
func run(opt util.Options) error {
	src, err := util.ReadSource(opt)
	if err != nil {
		return fmt.Errorf("could not read source code: %s", err)
	}

	prog, err := frontend.Parse(src)
	if err != nil {
		return fmt.Errorf("parse error: %s", err)
	}

	lowered, err := ir.Lower(prog)
	if err != nil {
		return fmt.Errorf("ir lowering error: %s", err)
	}

	w := util.NewWriter()
	defer w.Close()

	if opt.Mode == util.ModeKoopa {
		lowered.Print(&w)
		return nil
	}

	for _, fn := range lowered.Functions {
		ir.GatherSuper(fn)
		ir.AllocPreserve(fn)
	}

	if opt.Mode == util.ModePerf {
		for _, fn := range lowered.Functions {
			util.Log.Debug().Str("func", fn.Name).Msg("gathered super-blocks")
		}
	}

	asm := riscv.Emit(lowered)
	writeAssembly(&w, asm)
	return nil
}

// writeAssembly serializes a riscv.Program's instruction stream, one line
// per Text entry: a bare label (no leading tab) or a tab-indented
// mnemonic/operand list.
func writeAssembly(w *util.Writer, p *riscv.Program) {
	for _, line := range p.Text {
		if len(line) == 0 || (len(line) == 1 && line[0] == "") {
			w.WriteString("\n")
			continue
		}
		if line.IsLabel() {
			// A function's entry block needs no label: execution falls
			// into it directly after the prologue.
			if strings.HasPrefix(line[0], "entry:") {
				continue
			}
			w.Write("%s\n", line[0])
			continue
		}
		w.Write("\t%s\t%s\n", line[0], strings.Join(line[1:], ", "))
	}
}

func main() {
	opt, err := util.ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Printf("Command line argument error: %s\n", err)
		os.Exit(1)
	}
	util.ConfigureLog(opt)

	wg := sync.WaitGroup{}
	var f *os.File
	if len(opt.Out) > 0 {
		f, err = os.OpenFile(opt.Out, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		defer f.Close()
	}
	util.ListenWrite(opt, f, &wg)
	defer util.Close()

	if err := run(opt); err != nil {
		fmt.Printf("Error: %s\n", err)
		os.Exit(1)
	}

	wg.Wait()
}
