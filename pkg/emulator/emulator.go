// Package emulator runs a linked program.VMProgram: a software CPU over a
// fixed RAM layout (pointer registers at 0-4, temp at 5-12, statics from
// 16, the global stack from 256, a heap above that, the screen/keyboard
// memory-mapped region at the top) executing the exact call/return calling
// convention pkg/compiler emits against.
package emulator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vlctools/vlc/pkg/program"
	"github.com/vlctools/vlc/pkg/stdlib"
	"github.com/vlctools/vlc/pkg/vmlang"
)

const ramSize = 16384 + 8192 + 1

const (
	sp   = 0
	lcl  = 1
	arg  = 2
	this = 3
	that = 4
)

const heapStart = 2048

// Host intrinsic ids. Division and multiplication match the ids the
// original VM host registered them under; Memory.alloc is this repository's
// own addition since nothing in the linked program ever defines it in code.
const (
	IntrinsicMathDivide   = 0
	IntrinsicMathMultiply = 1
	IntrinsicMemoryAlloc  = 2
)

// DefaultIntrinsics is the intrinsic table a CLI driver registers with
// program.NewBuilder before linking, so Math.divide/Math.multiply/
// Memory.alloc calls resolve to host functions rather than missing code.
// The ids come from pkg/stdlib's embedded ABI table. execInternal's own
// IntrinsicXxx constants above, and pkg/asmgen's internalSymbol, repeat
// the same numbering by hand and must agree with it.
func DefaultIntrinsics() map[string]program.FunctionRef {
	refs := make(map[string]program.FunctionRef, len(stdlib.Intrinsics))
	for name, intr := range stdlib.Intrinsics {
		refs[name] = program.InternalRef(intr.ID)
	}
	return refs
}

// StepBudgetExceeded is returned by Run when a program doesn't halt within
// the caller-supplied step budget — a runaway loop, most likely.
type StepBudgetExceeded struct{ MaxSteps int }

func (e StepBudgetExceeded) Error() string {
	return fmt.Sprintf("program failed to finish within %d steps", e.MaxSteps)
}

// frame is the one piece of per-call bookkeeping the global stack model
// can't recover just by reading RAM: how many of the words above LCL/ARG
// belong to this invocation's working stack versus a caller's.
type frame struct {
	function  program.FunctionRef
	index     int
	numArgs   int
	stackSize int
}

type funcStats struct {
	numCalls uint64
	numSteps uint64
}

// Profiler accumulates per-function call/step counts across a run, enabled
// with Emulator.EnableProfiling.
type Profiler struct {
	stats map[program.FunctionRef]*funcStats
}

func newProfiler() *Profiler { return &Profiler{stats: map[program.FunctionRef]*funcStats{}} }

func (p *Profiler) entry(ref program.FunctionRef) *funcStats {
	s, ok := p.stats[ref]
	if !ok {
		s = &funcStats{}
		p.stats[ref] = s
	}
	return s
}

func (p *Profiler) countStep(ref program.FunctionRef) { p.entry(ref).numSteps++ }
func (p *Profiler) countCall(ref program.FunctionRef) { p.entry(ref).numCalls++ }

// Stats renders a fixed-width table of per-function call/step counts,
// busiest function last.
func (p *Profiler) Stats(prog *program.VMProgram) string {
	type row struct {
		name  string
		stats *funcStats
	}
	rows := make([]row, 0, len(p.stats))
	var totalSteps uint64
	for ref, s := range p.stats {
		name, ok := prog.FunctionName(ref)
		if !ok {
			name = "UNKNOWN_FUNC"
		}
		rows = append(rows, row{name: name, stats: s})
		totalSteps += s.numSteps
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].stats.numSteps < rows[j].stats.numSteps })

	var b strings.Builder
	fmt.Fprintf(&b, "%-30s %10s %10s %10s %10s\n", "function", "calls", "steps", "steps/call", "% steps")
	for _, r := range rows {
		perCall := uint64(0)
		if r.stats.numCalls > 0 {
			perCall = r.stats.numSteps / r.stats.numCalls
		}
		pct := float64(0)
		if totalSteps > 0 {
			pct = float64(r.stats.numSteps) / float64(totalSteps) * 100
		}
		fmt.Fprintf(&b, "%-30s %10d %10d %10d %9.2f%%\n", r.name, r.stats.numCalls, r.stats.numSteps, perCall, pct)
	}
	return b.String()
}

// Emulator executes one linked program.VMProgram against a private RAM
// image. The zero value isn't usable; construct with New.
type Emulator struct {
	program     *program.VMProgram
	ram         [ramSize]int32
	callStack   []*frame
	stepCounter int
	heapNext    int32
	profiler    *Profiler
	profiling   bool
}

func New(prog *program.VMProgram) *Emulator {
	return &Emulator{program: prog, heapNext: heapStart, profiler: newProfiler()}
}

// EnableProfiling turns on per-function call/step accounting for the
// remainder of the run; read it back with Profiler().
func (e *Emulator) EnableProfiling() { e.profiling = true }
func (e *Emulator) Profiler() *Profiler { return e.profiler }

func (e *Emulator) frame() *frame {
	if len(e.callStack) == 0 {
		panic("emulator: call stack is empty")
	}
	return e.callStack[len(e.callStack)-1]
}

// RAM exposes the emulator's memory image read-only, mainly for tests and
// for a host wanting to inspect the screen/keyboard region after a run.
func (e *Emulator) RAM() []int32 { return e.ram[:] }

// Init resets the machine and starts a fresh call frame at entryFunc
// (conventionally "Main.main"). SP and LCL both start at 256, the first
// stack address, so the entry function's locals sit at the bottom of the
// stack, matching the fixed RAM layout every segment formula assumes.
func (e *Emulator) Init(entryFunc string) error {
	e.ram = [ramSize]int32{}
	e.callStack = nil
	e.stepCounter = 0
	e.heapNext = heapStart

	ref, found := e.program.FunctionRef(entryFunc)
	if !found {
		return fmt.Errorf("no %q function found", entryFunc)
	}
	if ref.Internal {
		return fmt.Errorf("%q resolves to a host intrinsic, not a runnable function", entryFunc)
	}
	e.ram[sp] = 256
	e.ram[lcl] = 256
	e.callStack = []*frame{{function: ref}}
	return nil
}

func (e *Emulator) pushGlobal(value int32) {
	e.ram[sp]++
	e.ram[e.ram[sp]-1] = value
}

func (e *Emulator) popGlobal() (int32, error) {
	if e.ram[sp] <= 256 {
		return 0, fmt.Errorf("global stack is empty")
	}
	e.ram[sp]--
	return e.ram[e.ram[sp]], nil
}

func (e *Emulator) pushStack(value int32) {
	e.frame().stackSize++
	e.pushGlobal(value)
}

func (e *Emulator) popStack() (int32, error) {
	f := e.frame()
	if f.stackSize == 0 {
		return 0, fmt.Errorf("local stack is empty")
	}
	f.stackSize--
	return e.popGlobal()
}

// stackBounds returns the working-stack slice bounds: everything above the
// current frame's locals, up to SP.
func (e *Emulator) stackBounds() (int, int, error) {
	_, localEnd, err := e.segmentBounds(vmlang.Local)
	if err != nil {
		return 0, 0, err
	}
	start := localEnd
	if start < 256 {
		start = 256
	}
	return start, int(e.ram[sp]), nil
}

func (e *Emulator) peekStack() (int32, error) {
	start, end, err := e.stackBounds()
	if err != nil {
		return 0, err
	}
	if end <= start {
		return 0, fmt.Errorf("stack is empty")
	}
	return e.ram[end-1], nil
}

// segmentBounds computes the [start, end) RAM range a segment currently
// addresses, relative to the frame executing right now. Constant has no
// backing range — it's a literal, handled separately by readSegment.
func (e *Emulator) segmentBounds(segment vmlang.Segment) (int, int, error) {
	f := e.frame()
	switch segment {
	case vmlang.Static:
		file := &e.program.Files[f.function.FileIndex]
		start := 16 + int(file.StaticOffset)
		return start, start + int(file.NumStatics), nil
	case vmlang.Pointer:
		return this, that + 1, nil
	case vmlang.Temp:
		return 5, 5 + 8, nil
	case vmlang.This:
		return int(e.ram[this]), len(e.ram), nil
	case vmlang.That:
		return int(e.ram[that]), len(e.ram), nil
	case vmlang.Local:
		vmfunc, err := e.program.Function(f.function)
		if err != nil {
			return 0, 0, err
		}
		start := int(e.ram[lcl])
		return start, start + int(vmfunc.NumLocals), nil
	case vmlang.Argument:
		start := int(e.ram[arg])
		return start, start + f.numArgs, nil
	default:
		return 0, 0, fmt.Errorf("segment %q has no addressable RAM range", segment)
	}
}

func (e *Emulator) readSegment(segment vmlang.Segment, index uint16) (int32, error) {
	if segment == vmlang.Constant {
		return int32(index), nil
	}
	start, end, err := e.segmentBounds(segment)
	if err != nil {
		return 0, err
	}
	addr := start + int(index)
	if addr < start || addr >= end || addr >= len(e.ram) {
		return 0, fmt.Errorf("%s %d is out of bounds", segment, index)
	}
	return e.ram[addr], nil
}

func (e *Emulator) writeSegment(segment vmlang.Segment, index uint16, value int32) error {
	if segment == vmlang.Constant {
		return fmt.Errorf("constant segment is not writable")
	}
	start, end, err := e.segmentBounds(segment)
	if err != nil {
		return err
	}
	addr := start + int(index)
	if addr < start || addr >= end || addr >= len(e.ram) {
		return fmt.Errorf("%s %d is out of bounds", segment, index)
	}
	e.ram[addr] = value
	return nil
}

func (e *Emulator) execPush(segment vmlang.Segment, index uint16) error {
	value, err := e.readSegment(segment, index)
	if err != nil {
		return err
	}
	e.pushStack(value)
	return nil
}

func (e *Emulator) execPop(segment vmlang.Segment, index uint16) error {
	value, err := e.popStack()
	if err != nil {
		return fmt.Errorf("pop: %w", err)
	}
	return e.writeSegment(segment, index, value)
}

func (e *Emulator) execCopySeg(cmd program.CopySegCmd) error {
	value, err := e.readSegment(cmd.FromSegment, cmd.FromIndex)
	if err != nil {
		return err
	}
	return e.writeSegment(cmd.ToSegment, cmd.ToIndex, value)
}

func (e *Emulator) execInternal(id int, numArgs int) error {
	switch id {
	case IntrinsicMathDivide:
		if numArgs != 2 {
			return fmt.Errorf("Math.divide expects 2 args, got %d", numArgs)
		}
		a, err := e.popStack()
		if err != nil {
			return err
		}
		b, err := e.popStack()
		if err != nil {
			return err
		}
		if a == 0 {
			return fmt.Errorf("Math.divide: division by zero")
		}
		e.pushStack(b / a)

	case IntrinsicMathMultiply:
		if numArgs != 2 {
			return fmt.Errorf("Math.multiply expects 2 args, got %d", numArgs)
		}
		a, err := e.popStack()
		if err != nil {
			return err
		}
		b, err := e.popStack()
		if err != nil {
			return err
		}
		e.pushStack(b * a)

	case IntrinsicMemoryAlloc:
		if numArgs != 1 {
			return fmt.Errorf("Memory.alloc expects 1 arg, got %d", numArgs)
		}
		size, err := e.popStack()
		if err != nil {
			return err
		}
		if size <= 0 {
			return fmt.Errorf("Memory.alloc: invalid size %d", size)
		}
		if int(e.heapNext)+int(size) >= len(e.ram) {
			return fmt.Errorf("Memory.alloc: heap exhausted")
		}
		base := e.heapNext
		e.heapNext += size
		e.pushStack(base)

	default:
		return fmt.Errorf("unknown intrinsic function id %d", id)
	}
	return nil
}

func (e *Emulator) execCall(ref program.FunctionRef, numArgs int) {
	f := e.frame()
	e.pushStack(int32(f.index + 1))
	e.pushStack(e.ram[lcl])
	e.pushStack(e.ram[arg])
	e.pushStack(e.ram[this])
	e.pushStack(e.ram[that])
	e.ram[arg] = e.ram[sp] - 5 - int32(numArgs)
	e.ram[lcl] = e.ram[sp]
	e.callStack = append(e.callStack, &frame{function: ref, numArgs: numArgs})
}

func (e *Emulator) execReturn() error {
	returnValue, err := e.popStack()
	if err != nil {
		return err
	}
	argBase := e.ram[arg]
	e.ram[sp] = e.ram[lcl]

	savedThat, err := e.popGlobal()
	if err != nil {
		return err
	}
	savedThis, err := e.popGlobal()
	if err != nil {
		return err
	}
	savedArg, err := e.popGlobal()
	if err != nil {
		return err
	}
	savedLcl, err := e.popGlobal()
	if err != nil {
		return err
	}
	if _, err := e.popGlobal(); err != nil { // saved return index, only used by the caller's own frame.index
		return err
	}

	e.ram[that] = savedThat
	e.ram[this] = savedThis
	e.ram[arg] = savedArg
	e.ram[lcl] = savedLcl
	e.ram[sp] = argBase
	e.pushGlobal(returnValue)

	e.callStack = e.callStack[:len(e.callStack)-1]
	e.frame().index++
	return nil
}

func (e *Emulator) execArithmetic(op program.Operation) error {
	if op == program.OpNeg || op == program.OpNot {
		a, err := e.popStack()
		if err != nil {
			return err
		}
		if op == program.OpNeg {
			e.pushStack(-a)
		} else {
			e.pushStack(^a)
		}
		return nil
	}

	a, err := e.popStack()
	if err != nil {
		return err
	}
	b, err := e.popStack()
	if err != nil {
		return err
	}
	var result int32
	switch op {
	case program.OpAdd:
		result = b + a
	case program.OpSub:
		result = b - a
	case program.OpAnd:
		result = b & a
	case program.OpOr:
		result = b | a
	case program.OpEq:
		result = boolWord(b == a)
	case program.OpLt:
		result = boolWord(b < a)
	case program.OpGt:
		result = boolWord(b > a)
	default:
		return fmt.Errorf("unsupported arithmetic operation %q", op)
	}
	e.pushStack(result)
	return nil
}

func boolWord(b bool) int32 {
	if b {
		return -1
	}
	return 0
}

func (e *Emulator) nextCommand() (program.Command, error) {
	f := e.frame()
	vmfunc, err := e.program.Function(f.function)
	if err != nil {
		return nil, err
	}
	if f.index < 0 || f.index >= len(vmfunc.Commands) {
		return nil, fmt.Errorf("function %q has no command at index %d", vmfunc.Name, f.index)
	}
	return vmfunc.Commands[f.index], nil
}

// Step executes exactly one linked command. halted is true once the return
// from the outermost frame has nowhere left to go — the emulator reports
// that as the program's own exit code rather than erroring.
func (e *Emulator) Step() (halted bool, exitCode int32, err error) {
	e.stepCounter++
	cmd, err := e.nextCommand()
	if err != nil {
		return false, 0, err
	}

	if e.profiling {
		e.profiler.countStep(e.frame().function)
		if call, ok := cmd.(program.CallCmd); ok {
			e.profiler.countCall(call.Ref)
		}
	}

	switch c := cmd.(type) {
	case program.FunctionCmd:
		for i := uint16(0); i < c.NumLocals; i++ {
			e.pushGlobal(0)
		}
		e.frame().index++

	case program.CallCmd:
		if c.Ref.Internal {
			if err := e.execInternal(c.Ref.InternalID, int(c.NumArgs)); err != nil {
				return false, 0, fmt.Errorf("call: %w", err)
			}
			e.frame().index++
		} else {
			e.execCall(c.Ref, int(c.NumArgs))
		}

	case program.ReturnCmd:
		if len(e.callStack) == 1 {
			value, err := e.peekStack()
			if err != nil {
				return false, 0, err
			}
			return true, value, nil
		}
		if err := e.execReturn(); err != nil {
			return false, 0, fmt.Errorf("return: %w", err)
		}

	case program.GotoCmd:
		e.frame().index = c.Target

	case program.IfCmd:
		value, err := e.popStack()
		if err != nil {
			return false, 0, fmt.Errorf("if-goto: %w", err)
		}
		if value == -1 {
			e.frame().index = c.Target
		} else {
			e.frame().index++
		}

	case program.PushCmd:
		if err := e.execPush(c.Segment, c.Index); err != nil {
			return false, 0, fmt.Errorf("push %s %d: %w", c.Segment, c.Index, err)
		}
		e.frame().index++

	case program.PopCmd:
		if err := e.execPop(c.Segment, c.Index); err != nil {
			return false, 0, fmt.Errorf("pop %s %d: %w", c.Segment, c.Index, err)
		}
		e.frame().index++

	case program.CopySegCmd:
		if err := e.execCopySeg(c); err != nil {
			return false, 0, fmt.Errorf("copyseg: %w", err)
		}
		e.frame().index++

	case program.ArithmeticCmd:
		if err := e.execArithmetic(c.Op); err != nil {
			return false, 0, fmt.Errorf("%s: %w", c.Op, err)
		}
		e.frame().index++

	default:
		return false, 0, fmt.Errorf("unrecognized command %T", cmd)
	}

	return false, 0, nil
}

// Run steps the machine until it halts, returning the exit code peeked off
// the outermost frame's stack, or StepBudgetExceeded if it doesn't halt
// within maxSteps. Call Init first.
func (e *Emulator) Run(maxSteps int) (int32, error) {
	for {
		halted, exitCode, err := e.Step()
		if err != nil {
			return 0, err
		}
		if halted {
			return exitCode, nil
		}
		if e.stepCounter >= maxSteps {
			return 0, StepBudgetExceeded{MaxSteps: maxSteps}
		}
	}
}
