package asmgen_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vlctools/vlc/pkg/asmgen"
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
	internals := map[string]program.FunctionRef{
		"Math.divide":   program.InternalRef(0),
		"Math.multiply": program.InternalRef(1),
		"Memory.alloc":  program.InternalRef(2),
	}
	b := program.NewBuilder(internals)
	prog, err := b.Build(tokens)
	require.NoError(t, err)
	require.Empty(t, prog.Warnings)
	return prog
}

func TestGenerateEmitsEntryAndFunctionLabels(t *testing.T) {
	prog := buildProgram(t, map[string]string{
		"Sys.vm": `
			function Sys.init 0
				push constant 10
			return
		`,
	})
	lines, err := asmgen.NewGenerator(prog).Generate("Sys.init")
	require.NoError(t, err)
	text := strings.Join(lines, "\n")

	require.Contains(t, text, "global hack_sys_init")
	require.Contains(t, text, "hack_sys_init:")
	require.Contains(t, text, "Sys_init:")
	require.Contains(t, text, "    push 10")
}

func TestGenerateRejectsUnknownEntry(t *testing.T) {
	prog := buildProgram(t, map[string]string{
		"Sys.vm": `
			function Sys.init 0
			return
		`,
	})
	_, err := asmgen.NewGenerator(prog).Generate("Main.main")
	require.Error(t, err)
}

func TestGenerateDeclaresUsedIntrinsicsAsExtern(t *testing.T) {
	prog := buildProgram(t, map[string]string{
		"Sys.vm": `
			function Sys.init 0
				push constant 10
				push constant 2
				call Math.divide 2
			return
		`,
	})
	lines, err := asmgen.NewGenerator(prog).Generate("Sys.init")
	require.NoError(t, err)
	text := strings.Join(lines, "\n")

	require.Contains(t, text, "extern vlrt_math_divide")
	require.NotContains(t, text, "vlrt_math_multiply")
}

func TestGenerateMangledCallSitesMatchFunctionLabels(t *testing.T) {
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
	lines, err := asmgen.NewGenerator(prog).Generate("Sys.init")
	require.NoError(t, err)
	text := strings.Join(lines, "\n")

	require.Contains(t, text, "call Main_add")
	require.Contains(t, text, "Main_add:")
}

func TestGenerateEmitsStaticAndTempBSS(t *testing.T) {
	prog := buildProgram(t, map[string]string{
		"Sys.vm": `
			function Sys.init 0
				push constant 1
				pop static 0
				push constant 2
				pop temp 0
			return
		`,
	})
	lines, err := asmgen.NewGenerator(prog).Generate("Sys.init")
	require.NoError(t, err)
	text := strings.Join(lines, "\n")

	require.Contains(t, text, "static_block_0: resq 1")
	require.Contains(t, text, "temp_area: resq 8")
}

func TestGenerateLoopEmitsLocalJumpLabels(t *testing.T) {
	prog := buildProgram(t, map[string]string{
		"Sys.vm": `
			function Sys.init 0
				push constant 0
				pop local 0
				label LOOP
				push local 0
				push constant 1
				add
				pop local 0
				push local 0
				push constant 5
				lt
				if-goto LOOP
			return
		`,
	})
	lines, err := asmgen.NewGenerator(prog).Generate("Sys.init")
	require.NoError(t, err)
	text := strings.Join(lines, "\n")

	require.Contains(t, text, "L_Sys_init_")
	require.Contains(t, text, "    jne L_Sys_init_")
}
