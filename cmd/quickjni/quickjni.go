package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/artquick/quick/internal/dwarf"
	"github.com/artquick/quick/internal/isa"
	"github.com/artquick/quick/internal/jni"
	"github.com/artquick/quick/internal/jnicompiler"
)

func main() {
	doMain(os.Stdout, os.Stderr, os.Exit)
}

// doMain is separated out for the purpose of unit testing.
func doMain(stdOut, stdErr io.Writer, exit func(code int)) {
	flag.CommandLine.SetOutput(stdErr)

	var help bool
	flag.BoolVar(&help, "h", false, "print usage")

	flag.Parse()

	if help || flag.NArg() == 0 {
		printUsage(stdErr)
		exit(0)
	}

	subCmd := flag.Arg(0)
	switch subCmd {
	case "compile":
		doCompile(flag.Args()[1:], stdOut, stdErr, exit)
	default:
		fmt.Fprintln(stdErr, "invalid command")
		printUsage(stdErr)
		exit(1)
	}
}

func doCompile(args []string, stdOut, stdErr io.Writer, exit func(code int)) {
	flags := flag.NewFlagSet("compile", flag.ExitOnError)
	flags.SetOutput(stdErr)

	var help bool
	flags.BoolVar(&help, "h", false, "print usage")

	var isaName, variant string
	flags.StringVar(&isaName, "isa", "x86_64", "target instruction set: arm, thumb2, arm64, x86 or x86_64")
	flags.StringVar(&variant, "variant", "generic",
		"CPU variant of the target, e.g. cortex-a53 or silvermont. host detects the features of this CPU.")

	var static, synchronized, fastNative, criticalNative bool
	flags.BoolVar(&static, "static", false, "the method is static")
	flags.BoolVar(&synchronized, "synchronized", false, "the method is synchronized")
	flags.BoolVar(&fastNative, "fast", false, "the method is annotated @FastNative")
	flags.BoolVar(&criticalNative, "critical", false, "the method is annotated @CriticalNative")

	var readBarrier, heapPoisoning, debugChecks bool
	flags.BoolVar(&readBarrier, "read-barrier", true, "emit read barriers for references loaded by the stub")
	flags.BoolVar(&heapPoisoning, "heap-poisoning", false, "references stored in the heap are poisoned")
	flags.BoolVar(&debugChecks, "debug-checks", false, "emit runtime debug checks")

	var cfi, listing, dump, unwind bool
	flags.BoolVar(&cfi, "cfi", true, "generate call frame information")
	flags.BoolVar(&listing, "listing", false, "print the Go assembler listing of the stub")
	flags.BoolVar(&dump, "hex", false, "print a hex dump of the machine code")
	flags.BoolVar(&unwind, "unwind", false, "print the unwind table replayed from the call frame information")

	var debugFramePath string
	flags.StringVar(&debugFramePath, "debug-frame", "",
		"path to write a .debug_frame section describing the stub to. Requires -cfi.")

	_ = flags.Parse(args)

	if help {
		printCompileUsage(stdErr, flags)
		exit(0)
	}

	if flags.NArg() < 1 {
		fmt.Fprintln(stdErr, "missing method shorty")
		printCompileUsage(stdErr, flags)
		exit(1)
	}
	shorties := flags.Args()

	if (unwind || debugFramePath != "") && !cfi {
		fmt.Fprintln(stdErr, "-unwind and -debug-frame require -cfi")
		exit(1)
	}

	set, err := isa.InstructionSetFromString(isaName)
	if err != nil {
		fmt.Fprintf(stdErr, "invalid -isa: %v\n", err)
		exit(1)
	}
	features, err := featuresOf(set, variant)
	if err != nil {
		fmt.Fprintf(stdErr, "invalid -variant: %v\n", err)
		exit(1)
	}

	accessFlags := jnicompiler.AccNative
	for _, f := range []struct {
		set  bool
		flag jnicompiler.AccessFlags
	}{
		{static, jnicompiler.AccStatic},
		{synchronized, jnicompiler.AccSynchronized},
		{fastNative, jnicompiler.AccFastNative},
		{criticalNative, jnicompiler.AccCriticalNative},
	} {
		if f.set {
			accessFlags |= f.flag
		}
	}

	cfg := jni.NewConfig().
		WithReadBarrier(readBarrier).
		WithHeapPoisoning(heapPoisoning).
		WithRuntimeDebugChecks(debugChecks)
	opts := jnicompiler.NewOptions().
		WithConfig(cfg).
		WithFeatures(features).
		WithCFI(cfi).
		WithListing(listing)

	// Stubs are laid out back to back so that the .debug_frame covers all of them.
	img := jnicompiler.NewImage(set)
	fmt.Fprintf(stdOut, "isa: %s (%s)\n", set, features.Variant())
	for _, shorty := range shorties {
		method, err := jnicompiler.Compile(set, accessFlags, shorty, opts)
		if err != nil {
			fmt.Fprintf(stdErr, "error compiling stub: %v\n", err)
			exit(1)
		}
		offset, err := img.Add(method)
		if err != nil {
			fmt.Fprintf(stdErr, "error compiling stub: %v\n", err)
			exit(1)
		}

		fmt.Fprintln(stdOut)
		fmt.Fprintf(stdOut, "shorty: %s\n", shorty)
		fmt.Fprintf(stdOut, "offset: %#06x\n", offset)
		fmt.Fprintf(stdOut, "frame size: %d\n", method.FrameSize)
		fmt.Fprintf(stdOut, "core spill mask: %#08x\n", method.CoreSpillMask)
		fmt.Fprintf(stdOut, "fp spill mask: %#08x\n", method.FpSpillMask)
		fmt.Fprintf(stdOut, "code size: %d\n", len(method.Code))
		fmt.Fprintf(stdOut, "cfi size: %d\n", len(method.CFI))

		if listing {
			fmt.Fprintln(stdOut)
			_, _ = stdOut.Write(method.Listing)
		}
		if dump {
			fmt.Fprintln(stdOut)
			fmt.Fprint(stdOut, hex.Dump(method.Code))
		}
		if unwind {
			rows, err := method.UnwindRows()
			if err != nil {
				fmt.Fprintf(stdErr, "error replaying call frame information: %v\n", err)
				exit(1)
			}
			fmt.Fprintln(stdOut)
			for _, row := range rows {
				fmt.Fprintln(stdOut, formatRow(row))
			}
		}
	}

	if debugFramePath != "" {
		if err = os.WriteFile(debugFramePath, img.DebugFrame(0), 0o644); err != nil {
			fmt.Fprintf(stdErr, "error writing .debug_frame: %v\n", err)
			exit(1)
		}
	}
	exit(0)
}

// featuresOf returns the features of the named variant of set. The host variant
// is only valid when set is the instruction set of this process.
func featuresOf(set isa.InstructionSet, variant string) (*isa.Features, error) {
	if variant != "host" {
		return isa.FromVariant(set, variant)
	}
	f, err := isa.FromHost()
	if err != nil {
		return nil, err
	}
	// Thumb2 stubs run on an arm host.
	if host := f.InstructionSet(); host != set && !(set == isa.Arm && host == isa.Thumb2) {
		return nil, fmt.Errorf("host instruction set is %s, not %s", host, set)
	}
	return f, nil
}

// formatRow prints a row of the unwind table as `pc: cfa=reg+off reg@cfa-off...`,
// saved registers sorted by number.
func formatRow(row dwarf.Row) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%#06x: cfa=%s%+d", row.PC, row.CFARegister, row.CFAOffset)
	regs := lo.Keys(row.Saved)
	sort.Slice(regs, func(i, j int) bool { return regs[i] < regs[j] })
	for _, r := range regs {
		fmt.Fprintf(&b, " %s@cfa%+d", r, row.Saved[r])
	}
	return b.String()
}

func printUsage(stdErr io.Writer) {
	fmt.Fprintln(stdErr, "quickjni CLI")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Usage:\n  quickjni <command>")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Commands:")
	fmt.Fprintln(stdErr, "  compile\tCompiles the JNI stub of a native method")
}

func printCompileUsage(stdErr io.Writer, flags *flag.FlagSet) {
	fmt.Fprintln(stdErr, "quickjni CLI")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Usage:\n  quickjni compile <options> <shorty>...")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Options:")
	flags.PrintDefaults()
}
