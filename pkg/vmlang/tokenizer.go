package vmlang

import (
	"fmt"
	"io"
	"os"
	"strconv"

	pc "github.com/prataprc/goparsec"
)

// ----------------------------------------------------------------------------
// Parser Combinator(s)

// This section defines the Parser Combinator for every token of the VM text
// format. Each combinator either manages a whole line (memory op, arithmetic
// op, ...) or a piece of one (segment name, identifier, ...); comments are
// recognized and dropped during AST extraction.

var ast = pc.NewAST("vm_file", 0)

var (
	pFile = ast.ManyUntil("file", nil, ast.OrdChoice("line", nil, pComment, pLine), pc.End())

	pComment = ast.And("comment", nil, pc.Atom("//", "//"), pc.Token(`(?m).*$`, "COMMENT"))

	pLine = ast.OrdChoice("line_body", nil,
		pMemoryOp, pArithmeticOp, pLabelDecl, pGotoOp,
		pFuncDecl, pCallOp, pReturnOp,
	)

	pMemoryOp     = ast.And("memory_op", nil, pMemOpType, pSegment, pc.Int())
	pArithmeticOp = ast.And("arithmetic_op", nil, pArithOp)

	pLabelDecl = ast.And("label_decl", nil, pc.Atom("label", "LABEL"), pIdent)
	pGotoOp    = ast.And("goto_op", nil, pJumpType, pIdent)

	pFuncDecl = ast.And("func_decl", nil, pc.Atom("function", "FUNC"), pIdent, pc.Int())
	pCallOp   = ast.And("call_op", nil, pc.Atom("call", "CALL"), pIdent, pc.Int())
	pReturnOp = ast.And("return_op", nil, pc.Atom("return", "RETURN"))
)

var (
	// NOTE: an identifier can be any sequence of letters, digits, and symbols
	// (_, ., $, :) but cannot begin with a leading digit.
	pIdent = pc.Token(`[A-Za-z_.$:][0-9a-zA-Z_.$:]*`, "IDENT")

	pMemOpType = ast.OrdChoice("mem_op_type", nil, pc.Atom("push", "PUSH"), pc.Atom("pop", "POP"))

	pSegment = ast.OrdChoice("segment", nil,
		pc.Atom("argument", "ARGUMENT"), pc.Atom("local", "LOCAL"),
		pc.Atom("static", "STATIC"), pc.Atom("constant", "CONSTANT"),
		pc.Atom("this", "THIS"), pc.Atom("that", "THAT"),
		pc.Atom("temp", "TEMP"), pc.Atom("pointer", "POINTER"),
	)

	pArithOp = ast.OrdChoice("arith_op", nil,
		pc.Atom("eq", "EQ"), pc.Atom("gt", "GT"), pc.Atom("lt", "LT"),
		pc.Atom("add", "ADD"), pc.Atom("sub", "SUB"), pc.Atom("neg", "NEG"),
		pc.Atom("not", "NOT"), pc.Atom("and", "AND"), pc.Atom("or", "OR"),
	)

	// NOTE: "if-goto" must be tried before "goto" or the shorter atom wins.
	pJumpType = ast.OrdChoice("jump_type", nil, pc.Atom("if-goto", "IF-GOTO"), pc.Atom("goto", "GOTO"))
)

// ----------------------------------------------------------------------------
// Tokenizer

// Tokenizer turns VM text into a flat []VMToken, one file at a time. It does
// not group tokens into functions, resolve labels, or link calls — see
// pkg/program.Builder for that.
type Tokenizer struct{ reader io.Reader }

func NewTokenizer(r io.Reader) Tokenizer {
	return Tokenizer{reader: r}
}

func (t *Tokenizer) Tokenize() ([]VMToken, error) {
	content, err := io.ReadAll(t.reader)
	if err != nil {
		return nil, fmt.Errorf("cannot read from 'io.Reader': %w", err)
	}

	root, ok := t.fromSource(content)
	if !ok {
		return nil, fmt.Errorf("failed to parse VM text into an AST")
	}

	return t.fromAST(root)
}

// Scans the source and returns the traversable AST. Feature flags mirror
// goparsec's usual debugging hooks (PARSEC_DEBUG / EXPORT_AST / PRINT_AST).
func (t *Tokenizer) fromSource(source []byte) (pc.Queryable, bool) {
	if os.Getenv("PARSEC_DEBUG") != "" {
		ast.SetDebug()
	}

	root, _ := ast.Parsewith(pFile, pc.NewScanner(source))

	if os.Getenv("EXPORT_AST") != "" {
		if file, err := os.Create(fmt.Sprintf("%s/debug.ast.dot", os.Getenv("DEBUG_FOLDER"))); err == nil {
			defer file.Close()
			file.Write([]byte(ast.Dotstring("\"VM AST\"")))
		}
	}
	if os.Getenv("PRINT_AST") != "" {
		ast.Prettyprint()
	}

	return root, root != nil
}

func (t *Tokenizer) fromAST(root pc.Queryable) ([]VMToken, error) {
	tokens := []VMToken{}

	if root.GetName() != "file" {
		return nil, fmt.Errorf("expected node 'file', found %s", root.GetName())
	}

	for _, line := range root.GetChildren() {
		body := line
		if line.GetName() == "line" && len(line.GetChildren()) == 1 {
			body = line.GetChildren()[0]
		}

		switch body.GetName() {
		case "memory_op":
			op, err := t.handleMemoryOp(body)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, op)

		case "arithmetic_op":
			op, err := t.handleArithmeticOp(body)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, op)

		case "label_decl":
			op, err := t.handleLabelDecl(body)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, op)

		case "goto_op":
			op, err := t.handleGotoOp(body)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, op)

		case "func_decl":
			op, err := t.handleFuncDecl(body)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, op)

		case "call_op":
			op, err := t.handleCallOp(body)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, op)

		case "return_op":
			tokens = append(tokens, ReturnOp{})

		case "comment":
			continue

		default:
			return nil, fmt.Errorf("unrecognized node %q", body.GetName())
		}
	}

	return tokens, nil
}

func (Tokenizer) handleMemoryOp(node pc.Queryable) (VMToken, error) {
	children := node.GetChildren()
	if len(children) != 3 {
		return nil, fmt.Errorf("expected 'memory_op' with 3 children, got %d", len(children))
	}
	index, err := strconv.ParseUint(children[2].GetValue(), 10, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid index %q in memory op: %w", children[2].GetValue(), err)
	}
	return MemoryOp{
		Op:      MemOpType(children[0].GetValue()),
		Segment: Segment(children[1].GetValue()),
		Index:   uint16(index),
	}, nil
}

func (Tokenizer) handleArithmeticOp(node pc.Queryable) (VMToken, error) {
	children := node.GetChildren()
	if len(children) != 1 {
		return nil, fmt.Errorf("expected 'arithmetic_op' with 1 child, got %d", len(children))
	}
	return ArithmeticOp{Op: ArithOp(children[0].GetValue())}, nil
}

func (Tokenizer) handleLabelDecl(node pc.Queryable) (VMToken, error) {
	children := node.GetChildren()
	if len(children) != 2 {
		return nil, fmt.Errorf("expected 'label_decl' with 2 children, got %d", len(children))
	}
	return LabelDecl{Name: children[1].GetValue()}, nil
}

func (Tokenizer) handleGotoOp(node pc.Queryable) (VMToken, error) {
	children := node.GetChildren()
	if len(children) != 2 {
		return nil, fmt.Errorf("expected 'goto_op' with 2 children, got %d", len(children))
	}
	return GotoOp{Jump: JumpType(children[0].GetValue()), Label: children[1].GetValue()}, nil
}

func (Tokenizer) handleFuncDecl(node pc.Queryable) (VMToken, error) {
	children := node.GetChildren()
	if len(children) != 3 {
		return nil, fmt.Errorf("expected 'func_decl' with 3 children, got %d", len(children))
	}
	locals, err := strconv.ParseUint(children[2].GetValue(), 10, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid numLocals %q in function declaration: %w", children[2].GetValue(), err)
	}
	return FuncDecl{Name: children[1].GetValue(), NumLocals: uint16(locals)}, nil
}

func (Tokenizer) handleCallOp(node pc.Queryable) (VMToken, error) {
	children := node.GetChildren()
	if len(children) != 3 {
		return nil, fmt.Errorf("expected 'call_op' with 3 children, got %d", len(children))
	}
	args, err := strconv.ParseUint(children[2].GetValue(), 10, 8)
	if err != nil {
		return nil, fmt.Errorf("invalid numArgs %q in function call: %w", children[2].GetValue(), err)
	}
	return CallOp{Name: children[1].GetValue(), NumArgs: uint8(args)}, nil
}
