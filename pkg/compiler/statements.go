package compiler

import (
	"github.com/vlctools/vlc/pkg/ast"
	"github.com/vlctools/vlc/pkg/vmlang"
)

// methodCompiler holds the state local to compiling a single method body:
// the namespace being built, a fresh-label counter, and a back-pointer to
// the shared Compiler for class/type/statics lookups.
type methodCompiler struct {
	compiler *Compiler
	class    *ast.ClassDecl
	ns       *Namespace
	labelNum int
}

func (mc *methodCompiler) freshLabel(prefix string) string {
	mc.labelNum++
	return prefix + "$" + itoa(mc.labelNum)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := [20]byte{}
	i := len(digits)
	for n > 0 {
		i--
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return string(digits[i:])
}

func (mc *methodCompiler) compileBlock(b ast.Block) ([]vmlang.VMToken, error) {
	var tokens []vmlang.VMToken
	for _, stmt := range b.Statements {
		stmtTokens, err := mc.compileStatement(stmt)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, stmtTokens...)
	}
	return tokens, nil
}

func (mc *methodCompiler) compileStatement(s ast.Statement) ([]vmlang.VMToken, error) {
	switch stmt := s.(type) {
	case ast.LetStmt:
		return mc.compileLet(stmt)
	case ast.AssignmentStmt:
		return mc.compileAssignment(stmt)
	case ast.WhileStmt:
		return mc.compileWhile(stmt)
	case ast.IfStmt:
		return mc.compileIf(stmt)
	case ast.ReturnStmt:
		return mc.compileReturn(stmt)
	case ast.ExprStmt:
		return mc.compileExprStmt(stmt)
	default:
		return nil, errf(InvalidAssignmentTarget, "unrecognized statement type %T", s)
	}
}

func (mc *methodCompiler) compileLet(s ast.LetStmt) ([]vmlang.VMToken, error) {
	typeID, found := mc.compiler.types.TypeID(s.TypeName)
	if !found {
		return nil, errf(UnknownType, "let %q declared with unknown type %q", s.Name, s.TypeName)
	}
	ref, err := mc.ns.DeclareLocal(s.Name, s.TypeName, typeID)
	if err != nil {
		return nil, err
	}
	valueTokens, err := mc.compileExpr(s.Value)
	if err != nil {
		return nil, err
	}
	return append(valueTokens, vmlang.MemoryOp{Op: vmlang.Pop, Segment: ref.Segment, Index: ref.Index}), nil
}

func (mc *methodCompiler) compileAssignment(s ast.AssignmentStmt) ([]vmlang.VMToken, error) {
	valueTokens, err := mc.compileExpr(s.Value)
	if err != nil {
		return nil, err
	}
	destTokens, err := mc.compileAssignTarget(s.Dest)
	if err != nil {
		return nil, err
	}
	return append(valueTokens, destTokens...), nil
}

func (mc *methodCompiler) compileWhile(s ast.WhileStmt) ([]vmlang.VMToken, error) {
	start := mc.freshLabel("WHILE")
	end := mc.freshLabel("WHILE_END")

	condTokens, err := mc.compileExpr(s.Cond)
	if err != nil {
		return nil, err
	}
	bodyTokens, err := mc.compileBlock(s.Body)
	if err != nil {
		return nil, err
	}

	tokens := []vmlang.VMToken{vmlang.LabelDecl{Name: start}}
	tokens = append(tokens, condTokens...)
	tokens = append(tokens, vmlang.ArithmeticOp{Op: vmlang.Not}, vmlang.GotoOp{Jump: vmlang.IfGoto, Label: end})
	tokens = append(tokens, bodyTokens...)
	tokens = append(tokens, vmlang.GotoOp{Jump: vmlang.Goto, Label: start}, vmlang.LabelDecl{Name: end})
	return tokens, nil
}

func (mc *methodCompiler) compileIf(s ast.IfStmt) ([]vmlang.VMToken, error) {
	condTokens, err := mc.compileExpr(s.Cond)
	if err != nil {
		return nil, err
	}
	thenTokens, err := mc.compileBlock(s.Then)
	if err != nil {
		return nil, err
	}

	if s.Else == nil {
		end := mc.freshLabel("IF_END")
		tokens := append(condTokens, vmlang.ArithmeticOp{Op: vmlang.Not}, vmlang.GotoOp{Jump: vmlang.IfGoto, Label: end})
		tokens = append(tokens, thenTokens...)
		tokens = append(tokens, vmlang.LabelDecl{Name: end})
		return tokens, nil
	}

	elseTokens, err := mc.compileBlock(*s.Else)
	if err != nil {
		return nil, err
	}

	elseLabel := mc.freshLabel("IF_ELSE")
	endLabel := mc.freshLabel("IF_END")

	tokens := append(condTokens, vmlang.ArithmeticOp{Op: vmlang.Not}, vmlang.GotoOp{Jump: vmlang.IfGoto, Label: elseLabel})
	tokens = append(tokens, thenTokens...)
	tokens = append(tokens, vmlang.GotoOp{Jump: vmlang.Goto, Label: endLabel}, vmlang.LabelDecl{Name: elseLabel})
	tokens = append(tokens, elseTokens...)
	tokens = append(tokens, vmlang.LabelDecl{Name: endLabel})
	return tokens, nil
}

func (mc *methodCompiler) compileReturn(s ast.ReturnStmt) ([]vmlang.VMToken, error) {
	if s.Value.Term == nil {
		return []vmlang.VMToken{
			vmlang.MemoryOp{Op: vmlang.Push, Segment: vmlang.Constant, Index: 0},
			vmlang.ReturnOp{},
		}, nil
	}
	tokens, err := mc.compileExpr(s.Value)
	if err != nil {
		return nil, err
	}
	return append(tokens, vmlang.ReturnOp{}), nil
}

// compileExprStmt compiles an expression evaluated for side effect only
// (typically a call). The VM has no 'void' value, so the pushed result is
// discarded into an unused Temp slot, the conventional way a stack machine
// with no dedicated void type drops an unwanted return value.
func (mc *methodCompiler) compileExprStmt(s ast.ExprStmt) ([]vmlang.VMToken, error) {
	tokens, err := mc.compileExpr(s.Value)
	if err != nil {
		return nil, err
	}
	return append(tokens, vmlang.MemoryOp{Op: vmlang.Pop, Segment: vmlang.Temp, Index: 7}), nil
}
