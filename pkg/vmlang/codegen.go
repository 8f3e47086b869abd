package vmlang

import "fmt"

// Render turns a flat token stream back into VM text, one line per token.
// Round-tripping (tokenize(Render(tokens)) == tokens, modulo comments) is
// one of the testable properties of the whole toolchain.
func Render(tokens []VMToken) ([]string, error) {
	lines := make([]string, 0, len(tokens))

	for _, tok := range tokens {
		var line string
		var err error

		switch t := tok.(type) {
		case MemoryOp:
			line, err = renderMemoryOp(t)
		case ArithmeticOp:
			line, err = renderArithmeticOp(t)
		case LabelDecl:
			line, err = renderLabelDecl(t)
		case GotoOp:
			line, err = renderGotoOp(t)
		case FuncDecl:
			line, err = renderFuncDecl(t)
		case CallOp:
			line, err = renderCallOp(t)
		case ReturnOp:
			line = "return"
		default:
			err = fmt.Errorf("unrecognized token type %T", tok)
		}

		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}

	return lines, nil
}

func renderMemoryOp(op MemoryOp) (string, error) {
	if op.Segment == Pointer && op.Index > 1 {
		return "", fmt.Errorf("invalid 'pointer' index, got %d", op.Index)
	}
	if op.Segment == Temp && op.Index > 7 {
		return "", fmt.Errorf("invalid 'temp' index, got %d", op.Index)
	}
	return fmt.Sprintf("%s %s %d", op.Op, op.Segment, op.Index), nil
}

func renderArithmeticOp(op ArithmeticOp) (string, error) {
	return string(op.Op), nil
}

func renderLabelDecl(op LabelDecl) (string, error) {
	if op.Name == "" {
		return "", fmt.Errorf("unable to produce an empty label declaration")
	}
	return fmt.Sprintf("label %s", op.Name), nil
}

func renderGotoOp(op GotoOp) (string, error) {
	if op.Label == "" {
		return "", fmt.Errorf("unable to produce an empty jump target")
	}
	return fmt.Sprintf("%s %s", op.Jump, op.Label), nil
}

func renderFuncDecl(op FuncDecl) (string, error) {
	if op.Name == "" {
		return "", fmt.Errorf("unable to produce an empty function declaration")
	}
	return fmt.Sprintf("function %s %d", op.Name, op.NumLocals), nil
}

func renderCallOp(op CallOp) (string, error) {
	if op.Name == "" {
		return "", fmt.Errorf("unable to produce an empty function call")
	}
	return fmt.Sprintf("call %s %d", op.Name, op.NumArgs), nil
}
