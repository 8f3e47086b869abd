package vmlang_test

import (
	"strings"
	"testing"

	"github.com/vlctools/vlc/pkg/vmlang"
)

func TestTokenizeLines(t *testing.T) {
	test := func(name, src string, want []vmlang.VMToken) {
		t.Run(name, func(t *testing.T) {
			tok := vmlang.NewTokenizer(strings.NewReader(src))
			got, err := tok.Tokenize()
			if err != nil {
				t.Fatalf("Tokenize() error = %v", err)
			}
			if len(got) != len(want) {
				t.Fatalf("got %d tokens, want %d: %#v", len(got), len(want), got)
			}
			for i := range want {
				if got[i] != want[i] {
					t.Errorf("token %d = %#v, want %#v", i, got[i], want[i])
				}
			}
		})
	}

	test("push constant", "push constant 10", []vmlang.VMToken{
		vmlang.MemoryOp{Op: vmlang.Push, Segment: vmlang.Constant, Index: 10},
	})

	test("arithmetic", "add\nsub\nnot", []vmlang.VMToken{
		vmlang.ArithmeticOp{Op: vmlang.Add},
		vmlang.ArithmeticOp{Op: vmlang.Sub},
		vmlang.ArithmeticOp{Op: vmlang.Not},
	})

	test("function with body", "function Main.main 2\npush constant 3\nreturn", []vmlang.VMToken{
		vmlang.FuncDecl{Name: "Main.main", NumLocals: 2},
		vmlang.MemoryOp{Op: vmlang.Push, Segment: vmlang.Constant, Index: 3},
		vmlang.ReturnOp{},
	})

	test("goto and labels", "label LOOP\nif-goto LOOP\ngoto END\nlabel END", []vmlang.VMToken{
		vmlang.LabelDecl{Name: "LOOP"},
		vmlang.GotoOp{Jump: vmlang.IfGoto, Label: "LOOP"},
		vmlang.GotoOp{Jump: vmlang.Goto, Label: "END"},
		vmlang.LabelDecl{Name: "END"},
	})

	test("call", "call Math.multiply 2", []vmlang.VMToken{
		vmlang.CallOp{Name: "Math.multiply", NumArgs: 2},
	})

	test("comments are dropped", "// a comment\nadd\n// trailing", []vmlang.VMToken{
		vmlang.ArithmeticOp{Op: vmlang.Add},
	})
}

func TestRenderRoundTrip(t *testing.T) {
	tokens := []vmlang.VMToken{
		vmlang.FuncDecl{Name: "Main.main", NumLocals: 0},
		vmlang.MemoryOp{Op: vmlang.Push, Segment: vmlang.Constant, Index: 3},
		vmlang.MemoryOp{Op: vmlang.Push, Segment: vmlang.Constant, Index: 4},
		vmlang.ArithmeticOp{Op: vmlang.Add},
		vmlang.ReturnOp{},
	}

	lines, err := vmlang.Render(tokens)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	tok := vmlang.NewTokenizer(strings.NewReader(strings.Join(lines, "\n")))
	roundTripped, err := tok.Tokenize()
	if err != nil {
		t.Fatalf("re-Tokenize() error = %v", err)
	}

	if len(roundTripped) != len(tokens) {
		t.Fatalf("round trip produced %d tokens, want %d", len(roundTripped), len(tokens))
	}
	for i := range tokens {
		if roundTripped[i] != tokens[i] {
			t.Errorf("round trip token %d = %#v, want %#v", i, roundTripped[i], tokens[i])
		}
	}
}

func TestRenderRejectsOutOfRangeIndex(t *testing.T) {
	_, err := vmlang.Render([]vmlang.VMToken{
		vmlang.MemoryOp{Op: vmlang.Push, Segment: vmlang.Temp, Index: 8},
	})
	if err == nil {
		t.Fatal("expected an error for temp index 8")
	}
}
