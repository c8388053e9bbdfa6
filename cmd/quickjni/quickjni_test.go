package main

import (
	"bytes"
	"flag"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/artquick/quick/internal/isa"
)

func TestCompile(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		expOuts []string
	}{
		{
			name:    "defaults",
			args:    []string{"compile", "V"},
			expOuts: []string{"isa: x86_64 (generic)\n", "shorty: V\n", "frame size: "},
		},
		{
			name:    "arm64 static synchronized",
			args:    []string{"compile", "-isa=arm64", "-variant=cortex-a76", "-static", "-synchronized", "LLI"},
			expOuts: []string{"isa: arm64 (cortex-a76)\n", "shorty: LLI\n"},
		},
		{
			name:    "critical native",
			args:    []string{"compile", "-isa=thumb2", "-static", "-critical", "JIJ"},
			expOuts: []string{"isa: thumb2 (generic)\n"},
		},
		{
			name:    "listing",
			args:    []string{"compile", "-static", "-listing", "V"},
			expOuts: []string{"// x86_64 JNI stub V", "RET"},
		},
		{
			name:    "hex",
			args:    []string{"compile", "-isa=x86", "-hex", "V"},
			expOuts: []string{"00000000  "},
		},
		{
			name:    "unwind",
			args:    []string{"compile", "-isa=arm", "-unwind", "VI"},
			expOuts: []string{": cfa=r"},
		},
		{
			name:    "several stubs",
			args:    []string{"compile", "-isa=arm64", "-static", "V", "LLI"},
			expOuts: []string{"shorty: V\noffset: 0x000000\n", "shorty: LLI\noffset: 0x00"},
		},
		{
			name:    "no cfi",
			args:    []string{"compile", "-cfi=false", "V"},
			expOuts: []string{"cfi size: 0\n"},
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			exitCode, stdOut, stdErr := runMain(t, tc.args)
			require.Equal(t, 0, exitCode, stdErr)
			require.Empty(t, stdErr)
			for _, exp := range tc.expOuts {
				require.Contains(t, stdOut, exp)
			}
		})
	}
}

// hostInstructionSet returns the instruction set of this process and one it does not run.
func hostInstructionSet(t *testing.T) (host, other isa.InstructionSet) {
	for _, s := range []isa.InstructionSet{isa.Thumb2, isa.Arm64, isa.X86, isa.X86_64} {
		if isa.GoArch(s) == runtime.GOARCH {
			host = s
		}
	}
	if host == isa.None {
		t.Skip("no stubs for " + runtime.GOARCH)
	}
	other = isa.Arm64
	if host == isa.Arm64 {
		other = isa.X86_64
	}
	return
}

func TestCompile_hostVariant(t *testing.T) {
	host, other := hostInstructionSet(t)

	exitCode, stdOut, stdErr := runMain(t, []string{"compile", "-isa=" + host.String(), "-variant=host", "V"})
	require.Equal(t, 0, exitCode, stdErr)
	require.Contains(t, stdOut, "isa: "+host.String()+" (host)\n")

	exitCode, _, stdErr = runMain(t, []string{"compile", "-isa=" + other.String(), "-variant=host", "V"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stdErr, "invalid -variant: host instruction set is "+host.String()+", not "+other.String())
}

func TestCompile_debugFrame(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stub.debug_frame")
	exitCode, _, stdErr := runMain(t, []string{"compile", "-isa=arm64", "-debug-frame=" + path, "V"})
	require.Equal(t, 0, exitCode, stdErr)

	section, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotEmpty(t, section)
	// Every entry of the section is padded to the pointer size.
	require.Zero(t, len(section)%8)

	// A second stub adds its FDE after the first one.
	exitCode, _, stdErr = runMain(t, []string{"compile", "-isa=arm64", "-debug-frame=" + path, "V", "IIJ"})
	require.Equal(t, 0, exitCode, stdErr)
	both, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(both), len(section))
	require.Equal(t, section, both[:len(section)])
}

func TestHelp(t *testing.T) {
	exitCode, _, stdErr := runMain(t, []string{"-h"})
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdErr, "quickjni CLI\n\nUsage:")

	exitCode, _, stdErr = runMain(t, []string{"compile", "-h"})
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdErr, "quickjni compile <options> <shorty>")
}

func TestErrors(t *testing.T) {
	tests := []struct {
		message string
		args    []string
	}{
		{
			message: "invalid command",
			args:    []string{"run"},
		},
		{
			message: "missing method shorty",
			args:    []string{"compile"},
		},
		{
			message: `invalid -isa: unknown instruction set "riscv64"`,
			args:    []string{"compile", "-isa=riscv64", "V"},
		},
		{
			message: `invalid -variant: unknown arm64 variant "silvermont"`,
			args:    []string{"compile", "-isa=arm64", "-variant=silvermont", "V"},
		},
		{
			message: "error compiling stub: compiling JNI stub: @CriticalNative method cannot be virtual",
			args:    []string{"compile", "-critical", "V"},
		},
		{
			message: "error compiling stub: compiling JNI stub: invalid character 'X'",
			args:    []string{"compile", "VX"},
		},
		{
			message: "-unwind and -debug-frame require -cfi",
			args:    []string{"compile", "-cfi=false", "-unwind", "V"},
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.message, func(t *testing.T) {
			exitCode, _, stdErr := runMain(t, tc.args)
			require.Equal(t, 1, exitCode)
			require.Contains(t, stdErr, tc.message)
		})
	}
}

func runMain(t *testing.T, args []string) (int, string, string) {
	t.Helper()
	oldArgs := os.Args
	t.Cleanup(func() {
		os.Args = oldArgs
	})
	os.Args = append([]string{"quickjni"}, args...)

	var exitCode int
	stdOut := &bytes.Buffer{}
	stdErr := &bytes.Buffer{}
	var exited bool
	func() {
		defer func() {
			if r := recover(); r != nil {
				exited = true
			}
		}()
		flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
		doMain(stdOut, stdErr, func(code int) {
			exitCode = code
			panic(code)
		})
	}()

	require.True(t, exited)

	return exitCode, stdOut.String(), stdErr.String()
}
