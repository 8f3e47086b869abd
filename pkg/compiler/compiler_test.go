package compiler_test

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/vlctools/vlc/pkg/compiler"
	"github.com/vlctools/vlc/pkg/parser"
	"github.com/vlctools/vlc/pkg/vmlang"
)

func compile(t *testing.T, src string) map[string][]vmlang.VMToken {
	t.Helper()
	p := parser.NewParser(bytes.NewReader([]byte(src)))
	module, err := p.Parse()
	if err != nil {
		t.Fatalf("parse: %s", err)
	}
	out, err := compiler.NewCompiler(module).Compile()
	if err != nil {
		t.Fatalf("compile: %s", err)
	}
	return out
}

func assertTokens(t *testing.T, got, want []vmlang.VMToken) {
	t.Helper()
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("token mismatch:\n got:  %#v\n want: %#v", got, want)
	}
}

func TestCompileSimplestProgram(t *testing.T) {
	classes := compile(t, `
		class Main {
			static main(): number {
				return 3+4-1;
			}
		}
	`)

	assertTokens(t, classes["Main"], []vmlang.VMToken{
		vmlang.FuncDecl{Name: "Main.main", NumLocals: 0},
		vmlang.MemoryOp{Op: vmlang.Push, Segment: vmlang.Constant, Index: 3},
		vmlang.MemoryOp{Op: vmlang.Push, Segment: vmlang.Constant, Index: 4},
		vmlang.ArithmeticOp{Op: vmlang.Add},
		vmlang.MemoryOp{Op: vmlang.Push, Segment: vmlang.Constant, Index: 1},
		vmlang.ArithmeticOp{Op: vmlang.Sub},
		vmlang.ReturnOp{},
	})
}

func TestCompileLoop(t *testing.T) {
	classes := compile(t, `
		class Main {
			static main(): number {
				let i: number = 0;
				let sum: number = 0;
				while (i < 10) {
					i = i + 1;
					sum = sum + sum;
				}
				return sum;
			}
		}
	`)

	assertTokens(t, classes["Main"], []vmlang.VMToken{
		vmlang.FuncDecl{Name: "Main.main", NumLocals: 2},
		vmlang.MemoryOp{Op: vmlang.Push, Segment: vmlang.Constant, Index: 0},
		vmlang.MemoryOp{Op: vmlang.Pop, Segment: vmlang.Local, Index: 0},
		vmlang.MemoryOp{Op: vmlang.Push, Segment: vmlang.Constant, Index: 0},
		vmlang.MemoryOp{Op: vmlang.Pop, Segment: vmlang.Local, Index: 1},
		vmlang.LabelDecl{Name: "WHILE$1"},
		vmlang.MemoryOp{Op: vmlang.Push, Segment: vmlang.Local, Index: 0},
		vmlang.MemoryOp{Op: vmlang.Push, Segment: vmlang.Constant, Index: 10},
		vmlang.ArithmeticOp{Op: vmlang.Lt},
		vmlang.ArithmeticOp{Op: vmlang.Not},
		vmlang.GotoOp{Jump: vmlang.IfGoto, Label: "WHILE_END$2"},
		vmlang.MemoryOp{Op: vmlang.Push, Segment: vmlang.Local, Index: 0},
		vmlang.MemoryOp{Op: vmlang.Push, Segment: vmlang.Constant, Index: 1},
		vmlang.ArithmeticOp{Op: vmlang.Add},
		vmlang.MemoryOp{Op: vmlang.Pop, Segment: vmlang.Local, Index: 0},
		vmlang.MemoryOp{Op: vmlang.Push, Segment: vmlang.Local, Index: 1},
		vmlang.MemoryOp{Op: vmlang.Push, Segment: vmlang.Local, Index: 1},
		vmlang.ArithmeticOp{Op: vmlang.Add},
		vmlang.MemoryOp{Op: vmlang.Pop, Segment: vmlang.Local, Index: 1},
		vmlang.GotoOp{Jump: vmlang.Goto, Label: "WHILE$1"},
		vmlang.LabelDecl{Name: "WHILE_END$2"},
		vmlang.MemoryOp{Op: vmlang.Push, Segment: vmlang.Local, Index: 1},
		vmlang.ReturnOp{},
	})
}

func TestCompileConstructorAndInstanceMethod(t *testing.T) {
	classes := compile(t, `
		class Counter {
			count: number;
			constructor(start: number) {
				this.count = start;
			}
			get(): number {
				return this.count;
			}
		}
	`)

	assertTokens(t, classes["Counter"], []vmlang.VMToken{
		vmlang.FuncDecl{Name: "Counter.new", NumLocals: 0},
		vmlang.MemoryOp{Op: vmlang.Push, Segment: vmlang.Constant, Index: 1},
		vmlang.CallOp{Name: "Memory.alloc", NumArgs: 1},
		vmlang.MemoryOp{Op: vmlang.Pop, Segment: vmlang.Pointer, Index: 0},
		vmlang.MemoryOp{Op: vmlang.Push, Segment: vmlang.Argument, Index: 0},
		vmlang.MemoryOp{Op: vmlang.Pop, Segment: vmlang.This, Index: 0},
		vmlang.MemoryOp{Op: vmlang.Push, Segment: vmlang.Pointer, Index: 0},
		vmlang.ReturnOp{},

		vmlang.FuncDecl{Name: "Counter.get", NumLocals: 0},
		vmlang.MemoryOp{Op: vmlang.Push, Segment: vmlang.Argument, Index: 0},
		vmlang.MemoryOp{Op: vmlang.Pop, Segment: vmlang.Pointer, Index: 0},
		vmlang.MemoryOp{Op: vmlang.Push, Segment: vmlang.This, Index: 0},
		vmlang.ReturnOp{},
	})
}

func TestCompileRejectsDuplicateClass(t *testing.T) {
	p := parser.NewParser(bytes.NewReader([]byte(`
		class Main { static main(): number { return 0; } }
		class Main { static main(): number { return 1; } }
	`)))
	module, err := p.Parse()
	if err != nil {
		t.Fatalf("parse: %s", err)
	}
	if _, err := compiler.NewCompiler(module).Compile(); err == nil {
		t.Fatal("expected an error for a class declared twice, got none")
	}
}
