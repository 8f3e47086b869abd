package program_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vlctools/vlc/pkg/program"
	"github.com/vlctools/vlc/pkg/vmlang"
)

func tokenize(t *testing.T, src string) []vmlang.VMToken {
	t.Helper()
	tok := vmlang.NewTokenizer(strings.NewReader(src))
	tokens, err := tok.Tokenize()
	require.NoError(t, err)
	return tokens
}

func TestBuildLinksLabelsAndCalls(t *testing.T) {
	src := `
		function Sys.init 1
			push constant 10
			pop static 0
			label LOOP
			call Sys.incr 0
			pop temp 0
			goto LOOP
		return

		function Sys.incr 1
			push static 0
			push constant 1
			add
			pop local 0
			push local 0
			push constant 10
			gt
			if-goto SAVE
			return
			label SAVE
		return
	`
	tokens := tokenize(t, src)
	b := program.NewBuilder(nil)
	prog, err := b.Build([]program.FileTokens{{Name: "Sys.vm", Tokens: tokens}})
	require.NoError(t, err)

	require.Len(t, prog.Files, 1)
	require.Len(t, prog.Files[0].Functions, 2)

	initRef, found := prog.FunctionRef("Sys.init")
	require.True(t, found)
	assert.Equal(t, program.InCodeRef(0, 0), initRef)

	incrRef, found := prog.FunctionRef("Sys.incr")
	require.True(t, found)
	assert.Equal(t, program.InCodeRef(0, 1), incrRef)

	initFunc := prog.Files[0].Functions[0]
	assert.Equal(t, program.FunctionCmd{Ref: initRef, NumLocals: 1}, initFunc.Commands[0])

	// "push constant 10; pop static 0" fuses into a single CopySeg.
	assert.IsType(t, program.CopySegCmd{}, initFunc.Commands[1])
	// the call to Sys.incr resolves to its in-code ref. Index 2, not 3: the
	// preceding push/pop pair fused into the single CopySeg at index 1.
	call, ok := initFunc.Commands[2].(program.CallCmd)
	require.True(t, ok)
	assert.Equal(t, incrRef, call.Ref)
}

func TestBuildWarnsOnUnresolvedCall(t *testing.T) {
	src := `
		function Sys.init 1
			push constant 10
			push constant 11
			call Sys.add 2
		return
	`
	tokens := tokenize(t, src)
	b := program.NewBuilder(nil)
	prog, err := b.Build([]program.FileTokens{{Name: "Sys.vm", Tokens: tokens}})
	require.NoError(t, err)
	require.Len(t, prog.Warnings, 1)
	assert.Contains(t, prog.Warnings[0], `"Sys.add"`)
}

func TestBuildInternalFunctionsTakePriority(t *testing.T) {
	src := `
		function Sys.init 1
			push constant 10
			push constant 11
			call Sys.add 2
		return

		function Sys.add 0
			push argument 0
			push argument 1
			add
		return
	`
	tokens := tokenize(t, src)
	internals := map[string]program.FunctionRef{"Sys.add": program.InternalRef(0)}
	b := program.NewBuilder(internals)
	prog, err := b.Build([]program.FileTokens{{Name: "Sys.vm", Tokens: tokens}})
	require.NoError(t, err)
	assert.Empty(t, prog.Warnings)

	initFunc := prog.Files[0].Functions[0]
	call, ok := initFunc.Commands[3].(program.CallCmd)
	require.True(t, ok)
	assert.Equal(t, program.InternalRef(0), call.Ref)

	// the in-code Sys.add is still grouped into the file, just shadowed.
	require.Len(t, prog.Files[0].Functions, 2)
}

func TestBuildRejectsDuplicateFunction(t *testing.T) {
	src := `
		function Sys.init 0
		return

		function Sys.init 0
		return
	`
	tokens := tokenize(t, src)
	b := program.NewBuilder(nil)
	_, err := b.Build([]program.FileTokens{{Name: "Sys.vm", Tokens: tokens}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declared twice")
}

func TestBuildRejectsEmptyFile(t *testing.T) {
	b := program.NewBuilder(nil)
	_, err := b.Build([]program.FileTokens{{Name: "Empty.vm", Tokens: nil}})
	require.Error(t, err)

	var loadErr *program.LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, program.EmptyFile, loadErr.Kind)
}

func TestBuildRejectsDuplicateLabel(t *testing.T) {
	src := `
		function Sys.init 0
			label LOOP
			label LOOP
		return
	`
	tokens := tokenize(t, src)
	b := program.NewBuilder(nil)
	_, err := b.Build([]program.FileTokens{{Name: "Sys.vm", Tokens: tokens}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declared twice")
}
