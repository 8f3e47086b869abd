package emulator_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vlctools/vlc/pkg/emulator"
	"github.com/vlctools/vlc/pkg/program"
	"github.com/vlctools/vlc/pkg/vmlang"
)

func buildProgram(t *testing.T, files map[string]string) *program.VMProgram {
	t.Helper()
	var tokens []program.FileTokens
	for _, name := range []string{"Sys.vm", "Main.vm"} {
		src, ok := files[name]
		if !ok {
			continue
		}
		tok := vmlang.NewTokenizer(strings.NewReader(src))
		toks, err := tok.Tokenize()
		require.NoError(t, err)
		tokens = append(tokens, program.FileTokens{Name: name, Tokens: toks})
	}
	b := program.NewBuilder(emulator.DefaultIntrinsics())
	prog, err := b.Build(tokens)
	require.NoError(t, err)
	require.Empty(t, prog.Warnings)
	return prog
}

func TestRunReturnsHaltValue(t *testing.T) {
	prog := buildProgram(t, map[string]string{
		"Sys.vm": `
			function Sys.init 0
				push constant 10
			return
		`,
	})
	vm := emulator.New(prog)
	require.NoError(t, vm.Init("Sys.init"))
	result, err := vm.Run(1000)
	require.NoError(t, err)
	require.EqualValues(t, 10, result)
}

func TestRunWithMathDivideIntrinsic(t *testing.T) {
	prog := buildProgram(t, map[string]string{
		"Sys.vm": `
			function Sys.init 0
				push constant 10
				push constant 2
				call Math.divide 2
			return
		`,
	})
	vm := emulator.New(prog)
	require.NoError(t, vm.Init("Sys.init"))
	result, err := vm.Run(1000)
	require.NoError(t, err)
	require.EqualValues(t, 5, result)
}

func TestRunWithMemoryAllocIntrinsic(t *testing.T) {
	prog := buildProgram(t, map[string]string{
		"Sys.vm": `
			function Sys.init 0
				push constant 3
				call Memory.alloc 1
				push constant 3
				call Memory.alloc 1
				sub
			return
		`,
	})
	vm := emulator.New(prog)
	require.NoError(t, vm.Init("Sys.init"))
	result, err := vm.Run(1000)
	require.NoError(t, err)
	require.EqualValues(t, -3, result, "second allocation should start 3 words after the first")
}

func TestLoopWithLabelsAndStatics(t *testing.T) {
	prog := buildProgram(t, map[string]string{
		"Sys.vm": `
			function Sys.init 0
				push constant 0
				pop static 0
				label LOOP
				push static 0
				push constant 1
				add
				pop static 0
				push static 0
				push constant 5
				lt
				if-goto LOOP
				push static 0
			return
		`,
	})
	vm := emulator.New(prog)
	require.NoError(t, vm.Init("Sys.init"))
	result, err := vm.Run(1000)
	require.NoError(t, err)
	require.EqualValues(t, 5, result)
}

func TestFunctionCallArgumentBinding(t *testing.T) {
	prog := buildProgram(t, map[string]string{
		"Sys.vm": `
			function Sys.init 0
				push constant 2
				push constant 3
				call Main.add 2
			return
		`,
		"Main.vm": `
			function Main.add 0
				push argument 0
				push argument 1
				add
			return
		`,
	})
	vm := emulator.New(prog)
	require.NoError(t, vm.Init("Sys.init"))
	result, err := vm.Run(1000)
	require.NoError(t, err)
	require.EqualValues(t, 5, result)
}

func TestStaticSegmentIsPerFile(t *testing.T) {
	prog := buildProgram(t, map[string]string{
		"Sys.vm": `
			function Sys.init 0
				push constant 10
				pop static 0
				call Main.main 0
				push static 0
			return
		`,
		"Main.vm": `
			function Main.main 0
				push constant 99
				pop static 0
				push constant 0
			return
		`,
	})
	vm := emulator.New(prog)
	require.NoError(t, vm.Init("Sys.init"))
	result, err := vm.Run(1000)
	require.NoError(t, err)
	require.EqualValues(t, 10, result, "Main.vm's static 0 must not alias Sys.vm's static 0")
}

func TestRunStepBudgetExceeded(t *testing.T) {
	prog := buildProgram(t, map[string]string{
		"Sys.vm": `
			function Sys.init 0
				label LOOP
				goto LOOP
			return
		`,
	})
	vm := emulator.New(prog)
	require.NoError(t, vm.Init("Sys.init"))
	_, err := vm.Run(50)
	require.Error(t, err)
	var budgetErr emulator.StepBudgetExceeded
	require.ErrorAs(t, err, &budgetErr)
}

func TestInitRejectsUnknownEntryFunction(t *testing.T) {
	prog := buildProgram(t, map[string]string{
		"Sys.vm": `
			function Sys.init 0
			return
		`,
	})
	vm := emulator.New(prog)
	err := vm.Init("Main.main")
	require.Error(t, err)
}

func TestProfilerCountsCallsAndSteps(t *testing.T) {
	prog := buildProgram(t, map[string]string{
		"Sys.vm": `
			function Sys.init 0
				push constant 2
				push constant 3
				call Main.add 2
				pop temp 0
				push constant 4
				push constant 5
				call Main.add 2
			return
		`,
		"Main.vm": `
			function Main.add 0
				push argument 0
				push argument 1
				add
			return
		`,
	})
	vm := emulator.New(prog)
	vm.EnableProfiling()
	require.NoError(t, vm.Init("Sys.init"))
	_, err := vm.Run(1000)
	require.NoError(t, err)

	stats := vm.Profiler().Stats(prog)
	require.Contains(t, stats, "Main.add")
	require.Contains(t, stats, "Sys.init")
}
