// Package asmgen is the alternate back end: it consumes the same VMProgram
// pkg/emulator runs and emits x86-64 assembly text instead of interpreting
// it directly. Mirrors pkg/asm's CodeGenerator shape (a flat []Statement in,
// a flat []string out) but over program.Command instead of asm.Statement,
// and over a whole linked VMProgram rather than one file.
package asmgen

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vlctools/vlc/pkg/program"
	"github.com/vlctools/vlc/pkg/vmlang"
)

// Generator holds the program being translated. No additional state is
// needed beyond what's already in the linked VMProgram.
type Generator struct {
	prog *program.VMProgram
}

func NewGenerator(p *program.VMProgram) *Generator {
	return &Generator{prog: p}
}

// Generate emits a complete NASM-syntax source listing for the whole linked
// program, with hack_sys_init as the sole System-V entry point and every
// in-code function reachable from it through the internal calling
// convention documented on genCall.
func (g *Generator) Generate(entryFunc string) ([]string, error) {
	entryRef, found := g.prog.FunctionRef(entryFunc)
	if !found {
		return nil, fmt.Errorf("entry function %q not found", entryFunc)
	}
	if entryRef.Internal {
		return nil, fmt.Errorf("entry function %q resolves to a host intrinsic, not in-code", entryFunc)
	}

	var out []string
	out = append(out, "section .text")
	out = append(out, "global hack_sys_init")
	for _, sym := range g.usedIntrinsics() {
		out = append(out, fmt.Sprintf("extern %s", sym))
	}
	out = append(out, "")

	entryTarget, err := g.callTarget(entryRef)
	if err != nil {
		return nil, err
	}
	out = append(out, g.genHackSysInit(entryTarget)...)
	out = append(out, "")

	for fileIdx, file := range g.prog.Files {
		for i := range file.Functions {
			fn := &file.Functions[i]
			lines, err := g.genFunction(fileIdx, fn)
			if err != nil {
				return nil, fmt.Errorf("function %q: %w", fn.Name, err)
			}
			out = append(out, lines...)
			out = append(out, "")
		}
	}

	out = append(out, g.genBSS()...)
	return out, nil
}

func mangle(name string) string { return strings.ReplaceAll(name, ".", "_") }

func localLabel(mangledFunc string, cmdIdx int) string {
	return fmt.Sprintf("L_%s_%d", mangledFunc, cmdIdx)
}

// genHackSysInit is the one System-V boundary: a libc-style caller can `call
// hack_sys_init` directly. It zeroes the this/that registers, invokes the
// entry function through the internal convention with zero arguments, and
// hands the result back in eax.
func (g *Generator) genHackSysInit(entryTarget string) []string {
	lines := []string{
		"hack_sys_init:",
		"    push rbp",
		"    mov rbp, rsp",
		"    xor r12, r12",
		"    xor r13, r13",
	}
	lines = append(lines, genCallSequence(entryTarget, 0)...)
	lines = append(lines,
		"    mov rsp, rbp",
		"    pop rbp",
		"    ret",
	)
	return lines
}

// genFunction lays out one function's prologue (reserved, zeroed locals
// addressed relative to rbp), its linked command stream, and nothing else —
// return produces its own epilogue per command, there's no shared exit
// label since the VM has exactly one return point per path.
func (g *Generator) genFunction(fileIdx int, fn *program.VMFunction) ([]string, error) {
	mangled := mangle(fn.Name)
	lines := []string{
		fmt.Sprintf("%s:", mangled),
		"    push rbp",
		"    mov rbp, rsp",
	}
	if fn.NumLocals > 0 {
		lines = append(lines,
			fmt.Sprintf("    sub rsp, %d", int(fn.NumLocals)*8),
			fmt.Sprintf("    mov rcx, %d", fn.NumLocals),
			"    lea rdi, [rbp-8]",
			"    std",
			"    xor rax, rax",
			"    rep stosq",
			"    cld",
		)
	}

	targets := jumpTargets(fn.Commands)
	for idx, cmd := range fn.Commands {
		if targets[idx] {
			lines = append(lines, localLabel(mangled, idx)+":")
		}
		cmdLines, err := g.genCommand(fileIdx, mangled, cmd)
		if err != nil {
			return nil, fmt.Errorf("command %d: %w", idx, err)
		}
		lines = append(lines, cmdLines...)
	}
	return lines, nil
}

func jumpTargets(commands []program.Command) map[int]bool {
	targets := map[int]bool{}
	for _, cmd := range commands {
		switch t := cmd.(type) {
		case program.IfCmd:
			targets[t.Target] = true
		case program.GotoCmd:
			targets[t.Target] = true
		}
	}
	return targets
}

func (g *Generator) genCommand(fileIdx int, mangledFunc string, cmd program.Command) ([]string, error) {
	switch t := cmd.(type) {
	case program.FunctionCmd:
		return nil, nil // already accounted for by the function's own prologue
	case program.ArithmeticCmd:
		return genArithmetic(t.Op)
	case program.PushCmd:
		return g.genPush(fileIdx, t.Segment, t.Index)
	case program.PopCmd:
		return g.genPop(fileIdx, t.Segment, t.Index)
	case program.CopySegCmd:
		return g.genCopySeg(fileIdx, t)
	case program.IfCmd:
		return []string{"    pop rax", "    cmp rax, 0", fmt.Sprintf("    jne %s", localLabel(mangledFunc, t.Target))}, nil
	case program.GotoCmd:
		return []string{fmt.Sprintf("    jmp %s", localLabel(mangledFunc, t.Target))}, nil
	case program.ReturnCmd:
		return []string{"    pop rax", "    mov rsp, rbp", "    pop rbp", "    ret"}, nil
	case program.CallCmd:
		return g.genCall(t)
	default:
		return nil, fmt.Errorf("unrecognized command type %T", cmd)
	}
}

func genArithmetic(op program.Operation) ([]string, error) {
	switch op {
	case program.OpAdd:
		return []string{"    pop rbx", "    pop rax", "    add rax, rbx", "    push rax"}, nil
	case program.OpSub:
		return []string{"    pop rbx", "    pop rax", "    sub rax, rbx", "    push rax"}, nil
	case program.OpNeg:
		return []string{"    pop rax", "    neg rax", "    push rax"}, nil
	case program.OpAnd:
		return []string{"    pop rbx", "    pop rax", "    and rax, rbx", "    push rax"}, nil
	case program.OpOr:
		return []string{"    pop rbx", "    pop rax", "    or rax, rbx", "    push rax"}, nil
	case program.OpNot:
		return []string{"    pop rax", "    not rax", "    push rax"}, nil
	case program.OpEq:
		return compareSeq("cmove"), nil
	case program.OpGt:
		return compareSeq("cmovg"), nil
	case program.OpLt:
		return compareSeq("cmovl"), nil
	default:
		return nil, fmt.Errorf("unrecognized arithmetic op %q", op)
	}
}

// compareSeq is the cmp + conditional-move-into-(-1/0) idiom: rax holds the
// false result (0) going in, rcx the true one (-1), and the matching cmovCC
// picks between them off the earlier cmp's flags.
func compareSeq(cmov string) []string {
	return []string{
		"    pop rbx",
		"    pop rax",
		"    cmp rax, rbx",
		"    mov rax, 0",
		"    mov rcx, -1",
		fmt.Sprintf("    %s rax, rcx", cmov),
		"    push rax",
	}
}

// genPush, genPop and genCopySeg all bottom out in loadToReg/storeFromReg so
// the per-segment addressing logic (the part most likely to have an
// off-by-one) lives in exactly one place each.

func (g *Generator) genPush(fileIdx int, seg vmlang.Segment, idx uint16) ([]string, error) {
	load, err := loadToReg(fileIdx, seg, idx)
	if err != nil {
		return nil, err
	}
	return append(load, "    push rax"), nil
}

func (g *Generator) genPop(fileIdx int, seg vmlang.Segment, idx uint16) ([]string, error) {
	store, err := storeFromReg(fileIdx, seg, idx)
	if err != nil {
		return nil, err
	}
	return append([]string{"    pop rax"}, store...), nil
}

func (g *Generator) genCopySeg(fileIdx int, cmd program.CopySegCmd) ([]string, error) {
	load, err := loadToReg(fileIdx, cmd.FromSegment, cmd.FromIndex)
	if err != nil {
		return nil, err
	}
	store, err := storeFromReg(fileIdx, cmd.ToSegment, cmd.ToIndex)
	if err != nil {
		return nil, err
	}
	return append(load, store...), nil
}

// Frame layout past the saved rbp (see genCall): [rbp+8] return address,
// [rbp+16] the caller's runtime arg count, [rbp+24]/[rbp+32] saved
// that/this, [rbp+40..] the arguments themselves with argument 0 farthest
// from rbp (it was pushed first).
const argBase = 40

func loadToReg(fileIdx int, seg vmlang.Segment, idx uint16) ([]string, error) {
	switch seg {
	case vmlang.Constant:
		return []string{fmt.Sprintf("    mov rax, %d", idx)}, nil
	case vmlang.Pointer:
		reg, err := pointerReg(idx)
		if err != nil {
			return nil, err
		}
		return []string{fmt.Sprintf("    mov rax, %s", reg)}, nil
	case vmlang.Argument:
		return []string{
			"    mov rax, [rbp+16]",
			fmt.Sprintf("    sub rax, %d", idx+1),
			fmt.Sprintf("    mov rax, [rbp+rax*8+%d]", argBase),
		}, nil
	case vmlang.Local:
		return []string{fmt.Sprintf("    mov rax, [rbp-%d]", (idx+1)*8)}, nil
	case vmlang.This:
		return []string{fmt.Sprintf("    mov rax, [r12+%d]", idx*8)}, nil
	case vmlang.That:
		return []string{fmt.Sprintf("    mov rax, [r13+%d]", idx*8)}, nil
	case vmlang.Static:
		return []string{fmt.Sprintf("    mov rax, [rel static_block_%d+%d]", fileIdx, idx*8)}, nil
	case vmlang.Temp:
		if idx > 7 {
			return nil, fmt.Errorf("invalid 'temp' index, got %d", idx)
		}
		return []string{fmt.Sprintf("    mov rax, [rel temp_area+%d]", idx*8)}, nil
	default:
		return nil, fmt.Errorf("unrecognized segment %q", seg)
	}
}

func storeFromReg(fileIdx int, seg vmlang.Segment, idx uint16) ([]string, error) {
	switch seg {
	case vmlang.Constant:
		return nil, fmt.Errorf("cannot pop into the 'constant' segment")
	case vmlang.Pointer:
		reg, err := pointerReg(idx)
		if err != nil {
			return nil, err
		}
		return []string{fmt.Sprintf("    mov %s, rax", reg)}, nil
	case vmlang.Argument:
		return []string{
			"    mov rcx, [rbp+16]",
			fmt.Sprintf("    sub rcx, %d", idx+1),
			fmt.Sprintf("    mov [rbp+rcx*8+%d], rax", argBase),
		}, nil
	case vmlang.Local:
		return []string{fmt.Sprintf("    mov [rbp-%d], rax", (idx+1)*8)}, nil
	case vmlang.This:
		return []string{fmt.Sprintf("    mov [r12+%d], rax", idx*8)}, nil
	case vmlang.That:
		return []string{fmt.Sprintf("    mov [r13+%d], rax", idx*8)}, nil
	case vmlang.Static:
		return []string{fmt.Sprintf("    mov [rel static_block_%d+%d], rax", fileIdx, idx*8)}, nil
	case vmlang.Temp:
		if idx > 7 {
			return nil, fmt.Errorf("invalid 'temp' index, got %d", idx)
		}
		return []string{fmt.Sprintf("    mov [rel temp_area+%d], rax", idx*8)}, nil
	default:
		return nil, fmt.Errorf("unrecognized segment %q", seg)
	}
}

func pointerReg(idx uint16) (string, error) {
	switch idx {
	case 0:
		return "r12", nil
	case 1:
		return "r13", nil
	default:
		return "", fmt.Errorf("invalid 'pointer' index, got %d", idx)
	}
}

// genCall and genCallSequence implement the custom internal convention:
// the caller has already pushed its arguments left to right via preceding
// PushCmds, so this only has to save/restore the pointer registers, pass
// the argument count and unwind it all after the call lands rax on top of
// the native stack as the new expression-stack value.
func (g *Generator) genCall(cmd program.CallCmd) ([]string, error) {
	target, err := g.callTarget(cmd.Ref)
	if err != nil {
		return nil, err
	}
	return genCallSequence(target, int(cmd.NumArgs)), nil
}

func genCallSequence(target string, numArgs int) []string {
	lines := []string{
		"    push r12",
		"    push r13",
		fmt.Sprintf("    push %d", numArgs),
		fmt.Sprintf("    call %s", target),
		"    add rsp, 8",
		"    pop r13",
		"    pop r12",
	}
	if numArgs > 0 {
		lines = append(lines, fmt.Sprintf("    add rsp, %d", numArgs*8))
	}
	return append(lines, "    push rax")
}

func (g *Generator) callTarget(ref program.FunctionRef) (string, error) {
	if ref.Internal {
		return internalSymbol(ref.InternalID)
	}
	name, found := g.prog.FunctionName(ref)
	if !found {
		return "", fmt.Errorf("function ref %v has no name in the linked program", ref)
	}
	return mangle(name), nil
}

// internalSymbol names the extern symbol a runtime support object must
// define for each host intrinsic id, using the same ids pkg/emulator
// assigns its DefaultIntrinsics table — the two back ends agree on this
// small numbering as a shared host ABI, not a shared package dependency.
func internalSymbol(id int) (string, error) {
	switch id {
	case 0:
		return "vlrt_math_divide", nil
	case 1:
		return "vlrt_math_multiply", nil
	case 2:
		return "vlrt_memory_alloc", nil
	default:
		return "", fmt.Errorf("unrecognized intrinsic id %d", id)
	}
}

func (g *Generator) usedIntrinsics() []string {
	seen := map[string]bool{}
	for _, file := range g.prog.Files {
		for _, fn := range file.Functions {
			for _, cmd := range fn.Commands {
				call, ok := cmd.(program.CallCmd)
				if !ok || !call.Ref.Internal {
					continue
				}
				if sym, err := internalSymbol(call.Ref.InternalID); err == nil {
					seen[sym] = true
				}
			}
		}
	}
	syms := make([]string, 0, len(seen))
	for sym := range seen {
		syms = append(syms, sym)
	}
	sort.Strings(syms)
	return syms
}

func (g *Generator) genBSS() []string {
	lines := []string{"section .bss", "align 8", "temp_area: resq 8"}
	for i, file := range g.prog.Files {
		if file.NumStatics == 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("static_block_%d: resq %d", i, file.NumStatics))
	}
	return lines
}
