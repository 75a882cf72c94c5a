package util

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Mode selects the compilation target of a run: IR text only, or full
// RISC-V assembly (with or without per-function debug logging).
type Mode int

const (
	ModeKoopa Mode = iota // -koopa: emit IR text only.
	ModeRiscv             // -riscv: emit RISC-V assembly.
	ModePerf              // -perf: emit RISC-V assembly plus one debug log line per function.
)

// Options carries the resolved command line configuration for one compiler
// invocation. Populated by ParseArgs via cobra flag bindings.
type Options struct {
	Mode    Mode   // Compilation mode.
	Src     string // Path to source file.
	Out     string // Path to output file.
	Verbose bool   // Set true if compiler should log statistical data.
}

// ---------------------
// ----- Constants -----
// ---------------------

const appVersion = "vslc-riscv 1.0"

// ---------------------
// ----- functions -----
// ---------------------

// ParseArgs parses command line arguments into Options using a cobra root
// command. args is the full command line, e.g. os.Args[1:].
func ParseArgs(args []string) (Options, error) {
	var opt Options
	var out string
	var verbose bool

	// A leading mode such as "-koopa" would be read by cobra as a cluster of
	// shorthand flags, so it is taken off before cobra parses the rest.
	var modeArg string
	if len(args) > 0 {
		if _, err := parseMode(args[0]); err == nil {
			modeArg, args = args[0], args[1:]
		}
	}

	root := &cobra.Command{
		Use:     "vslc <mode> <input-path>",
		Short:   "vslc compiles a small C-subset language to RISC-V assembly",
		Version: appVersion,
		Args:    cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			mode, err := parseMode(modeArg)
			if err != nil {
				return err
			}
			opt = Options{
				Mode:    mode,
				Src:     cmdArgs[0],
				Out:     out,
				Verbose: verbose,
			}
			return nil
		},
	}
	root.Flags().StringVarP(&out, "out", "o", "", "path to output file")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "print debug statistics during compilation")
	_ = root.MarkFlagRequired("out")

	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		return opt, err
	}
	return opt, nil
}

// parseMode resolves the mode argument, the first word of the command line
// ("<mode> <input-path> -o <output-path>"). The `-o <output-path>` pair is
// read by cobra as a flag regardless of its position.
func parseMode(s string) (Mode, error) {
	switch s {
	case "-koopa":
		return ModeKoopa, nil
	case "-riscv":
		return ModeRiscv, nil
	case "-perf":
		return ModePerf, nil
	default:
		return 0, fmt.Errorf("unexpected mode %q: want one of -koopa, -riscv, -perf", s)
	}
}
