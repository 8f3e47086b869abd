package program

import (
	"fmt"

	"github.com/vlctools/vlc/pkg/vmlang"
)

// Builder links a set of tokenized files into a VMProgram. Host-provided
// intrinsics are seeded into the function table before any file is
// processed, so a file that happens to declare a function with the same
// name never shadows the intrinsic — the declaration is silently ignored
// (the function is still linked into its file, but calls by that name
// resolve to the intrinsic).
type Builder struct {
	internalFuncs map[string]FunctionRef
}

func NewBuilder(internalFuncs map[string]FunctionRef) *Builder {
	return &Builder{internalFuncs: internalFuncs}
}

type rawFunction struct {
	name   string
	tokens []vmlang.VMToken // includes the leading FuncDecl
}

func (b *Builder) Build(files []FileTokens) (*VMProgram, error) {
	grouped, err := groupAllFiles(files)
	if err != nil {
		return nil, err
	}

	refsByName := map[string]FunctionRef{}
	namesByRef := map[FunctionRef]string{}
	for name, ref := range b.internalFuncs {
		refsByName[name] = ref
		namesByRef[ref] = name
	}

	for fileIdx, file := range grouped {
		for funcIdx, fn := range file {
			if existing, found := refsByName[fn.name]; found {
				if existing.Internal {
					continue // intrinsics take priority over same-named code functions
				}
				return nil, fmt.Errorf("function %q declared twice", fn.name)
			}
			ref := InCodeRef(fileIdx, funcIdx)
			refsByName[fn.name] = ref
			namesByRef[ref] = fn.name
		}
	}

	program := &VMProgram{namesByRef: namesByRef, refsByName: refsByName}
	staticOffset := uint16(0)

	for fileIdx, file := range grouped {
		vmfile := VMFile{Name: files[fileIdx].Name, StaticOffset: staticOffset}

		for _, fn := range file {
			vmfunc, err := b.linkFunction(fn, refsByName, program)
			if err != nil {
				return nil, fmt.Errorf("file %q: %w", files[fileIdx].Name, err)
			}
			for _, cmd := range vmfunc.Commands {
				vmfile.NumStatics = maxStaticIndex(vmfile.NumStatics, cmd)
			}
			vmfile.Functions = append(vmfile.Functions, vmfunc)
		}

		staticOffset += vmfile.NumStatics
		program.Files = append(program.Files, vmfile)
	}

	return program, nil
}

// groupAllFiles splits each file's flat token stream into one rawFunction
// per FuncDecl boundary, erroring if anything precedes the first function.
func groupAllFiles(files []FileTokens) ([][]rawFunction, error) {
	grouped := make([][]rawFunction, len(files))
	for i, file := range files {
		fns, err := groupFunctions(file.Tokens)
		if err != nil {
			return nil, fmt.Errorf("file %q: %w", file.Name, err)
		}
		grouped[i] = fns
	}
	return grouped, nil
}

func groupFunctions(tokens []vmlang.VMToken) ([]rawFunction, error) {
	var functions []rawFunction
	var current *rawFunction

	for _, tok := range tokens {
		if decl, ok := tok.(vmlang.FuncDecl); ok {
			if current != nil {
				functions = append(functions, *current)
			}
			current = &rawFunction{name: decl.Name}
		} else if current == nil {
			return nil, loadErrf(MalformedToken, "command %T appears before any function declaration", tok)
		}
		current.tokens = append(current.tokens, tok)
	}
	if current != nil {
		functions = append(functions, *current)
	}
	if len(functions) == 0 {
		return nil, loadErrf(EmptyFile, "file declares no functions")
	}
	return functions, nil
}

// linkFunction resolves labels and calls and fuses push/pop pairs for one
// function's token stream (fn.tokens[0] is always the FuncDecl itself).
func (b *Builder) linkFunction(fn rawFunction, refsByName map[string]FunctionRef, program *VMProgram) (VMFunction, error) {
	decl, ok := fn.tokens[0].(vmlang.FuncDecl)
	if !ok {
		return VMFunction{}, fmt.Errorf("function %q doesn't start with a FuncDecl", fn.name)
	}
	ref := refsByName[fn.name]

	body, err := fuseCopySeg(fn.tokens[1:])
	if err != nil {
		return VMFunction{}, err
	}

	labels, body, err := buildLabelTable(body)
	if err != nil {
		return VMFunction{}, fmt.Errorf("function %q: %w", fn.name, err)
	}

	vmfunc := VMFunction{ID: ref, Name: fn.name, NumLocals: decl.NumLocals}
	vmfunc.Commands = append(vmfunc.Commands, FunctionCmd{Ref: ref, NumLocals: decl.NumLocals})

	for _, tok := range body {
		cmd, err := b.linkCommand(tok, labels, refsByName, fn.name, program)
		if err != nil {
			return VMFunction{}, err
		}
		vmfunc.Commands = append(vmfunc.Commands, cmd)
	}
	return vmfunc, nil
}

// fuseCopySeg replaces any adjacent (push X, pop Y) pair with a single
// CopySeg token, the same optimization the original VM linker performs.
type copySegToken struct {
	// The embedded (always nil) VMToken supplies vmlang's unexported marker
	// method, so this package-private token can travel in a []vmlang.VMToken.
	vmlang.VMToken
	from, to vmlang.MemoryOp
}

func fuseCopySeg(tokens []vmlang.VMToken) ([]vmlang.VMToken, error) {
	var out []vmlang.VMToken
	for i := 0; i < len(tokens); i++ {
		if i+1 < len(tokens) {
			push, isPush := tokens[i].(vmlang.MemoryOp)
			pop, isPop := tokens[i+1].(vmlang.MemoryOp)
			if isPush && isPop && push.Op == vmlang.Push && pop.Op == vmlang.Pop {
				out = append(out, copySegToken{from: push, to: pop})
				i++
				continue
			}
		}
		out = append(out, tokens[i])
	}
	return out, nil
}

// buildLabelTable strips LabelDecl tokens out of the stream, recording each
// one's would-be command index (the index it would occupy in the final,
// label-free Commands slice).
func buildLabelTable(tokens []vmlang.VMToken) (map[string]int, []vmlang.VMToken, error) {
	labels := map[string]int{}
	var body []vmlang.VMToken
	index := 0
	for _, tok := range tokens {
		if decl, ok := tok.(vmlang.LabelDecl); ok {
			if _, found := labels[decl.Name]; found {
				return nil, nil, fmt.Errorf("label %q declared twice", decl.Name)
			}
			labels[decl.Name] = index + 1 // +1 to account for the FunctionCmd prologue
			continue
		}
		body = append(body, tok)
		index++
	}
	return labels, body, nil
}

func (b *Builder) linkCommand(tok vmlang.VMToken, labels map[string]int, refsByName map[string]FunctionRef, funcName string, program *VMProgram) (Command, error) {
	switch t := tok.(type) {
	case copySegToken:
		return CopySegCmd{FromSegment: t.from.Segment, FromIndex: t.from.Index, ToSegment: t.to.Segment, ToIndex: t.to.Index}, nil

	case vmlang.MemoryOp:
		if t.Op == vmlang.Push {
			return PushCmd{Segment: t.Segment, Index: t.Index}, nil
		}
		return PopCmd{Segment: t.Segment, Index: t.Index}, nil

	case vmlang.ArithmeticOp:
		return ArithmeticCmd{Op: Operation(t.Op)}, nil

	case vmlang.GotoOp:
		target, found := labels[t.Label]
		if !found {
			return nil, loadErrf(UnresolvedLabel, "function %q: label %q does not exist", funcName, t.Label)
		}
		if t.Jump == vmlang.IfGoto {
			return IfCmd{Target: target}, nil
		}
		return GotoCmd{Target: target}, nil

	case vmlang.CallOp:
		ref, found := refsByName[t.Name]
		if !found {
			program.Warnings = append(program.Warnings, fmt.Sprintf("function %q does not exist", t.Name))
			return CallCmd{Ref: unresolvedRef, NumArgs: t.NumArgs}, nil
		}
		return CallCmd{Ref: ref, NumArgs: t.NumArgs}, nil

	case vmlang.ReturnOp:
		return ReturnCmd{}, nil

	default:
		return nil, loadErrf(MalformedToken, "unexpected token %T in function %q body", tok, funcName)
	}
}

func maxStaticIndex(current uint16, cmd Command) uint16 {
	bump := func(segment vmlang.Segment, index uint16) uint16 {
		if segment == vmlang.Static && index+1 > current {
			return index + 1
		}
		return current
	}
	switch c := cmd.(type) {
	case PushCmd:
		return bump(c.Segment, c.Index)
	case PopCmd:
		return bump(c.Segment, c.Index)
	case CopySegCmd:
		current = bump(c.FromSegment, c.FromIndex)
		return bump(c.ToSegment, c.ToIndex)
	default:
		return current
	}
}
