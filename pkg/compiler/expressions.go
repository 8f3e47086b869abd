package compiler

import (
	"github.com/vlctools/vlc/pkg/ast"
	"github.com/vlctools/vlc/pkg/types"
	"github.com/vlctools/vlc/pkg/vmlang"
)

func (mc *methodCompiler) compileExpr(e ast.Expression) ([]vmlang.VMToken, error) {
	return mc.compileTerm(e.Term)
}

func (mc *methodCompiler) compileTerm(t ast.Term) ([]vmlang.VMToken, error) {
	switch term := t.(type) {
	case ast.NumberTerm:
		return []vmlang.VMToken{vmlang.MemoryOp{Op: vmlang.Push, Segment: vmlang.Constant, Index: uint16(term.Value)}}, nil

	case ast.BoolTerm:
		if term.Value {
			return []vmlang.VMToken{
				vmlang.MemoryOp{Op: vmlang.Push, Segment: vmlang.Constant, Index: 0},
				vmlang.ArithmeticOp{Op: vmlang.Not},
			}, nil
		}
		return []vmlang.VMToken{vmlang.MemoryOp{Op: vmlang.Push, Segment: vmlang.Constant, Index: 0}}, nil

	case ast.StringTerm:
		return mc.compileSequenceLiteral(stringBytes(term.Value))

	case ast.ArrayTerm:
		return mc.compileArrayLiteral(term.Elements)

	case ast.IdentifierTerm:
		ref, _, err := mc.ns.Resolve(term.Name)
		if err != nil {
			return nil, err
		}
		return []vmlang.VMToken{vmlang.MemoryOp{Op: vmlang.Push, Segment: ref.Segment, Index: ref.Index}}, nil

	case ast.BinaryOpTerm:
		if term.Op == ast.OpDot {
			if call, ok := term.Right.(ast.CallTerm); ok {
				return mc.compileDotCall(term.Left, call)
			}
			return mc.compileDotRead(term.Left, term.Right)
		}
		return mc.compileBinaryOp(term.Op, term.Left, term.Right)

	case ast.CallTerm:
		return mc.compileBareCall(term)

	case ast.NewTerm:
		return mc.compileNew(term)

	default:
		return nil, errf(NotAMember, "unsupported term %T", t)
	}
}

func (mc *methodCompiler) compileBinaryOp(op ast.Op, left, right ast.Term) ([]vmlang.VMToken, error) {
	leftTokens, err := mc.compileTerm(left)
	if err != nil {
		return nil, err
	}
	rightTokens, err := mc.compileTerm(right)
	if err != nil {
		return nil, err
	}
	tokens := append(leftTokens, rightTokens...)

	switch op {
	case ast.OpAdd:
		return append(tokens, vmlang.ArithmeticOp{Op: vmlang.Add}), nil
	case ast.OpSub:
		return append(tokens, vmlang.ArithmeticOp{Op: vmlang.Sub}), nil
	case ast.OpLt:
		return append(tokens, vmlang.ArithmeticOp{Op: vmlang.Lt}), nil
	case ast.OpGt:
		return append(tokens, vmlang.ArithmeticOp{Op: vmlang.Gt}), nil
	case ast.OpEq:
		return append(tokens, vmlang.ArithmeticOp{Op: vmlang.Eq}), nil
	case ast.OpLe: // a <= b  ==  !(a > b)
		return append(tokens, vmlang.ArithmeticOp{Op: vmlang.Gt}, vmlang.ArithmeticOp{Op: vmlang.Not}), nil
	case ast.OpGe: // a >= b  ==  !(a < b)
		return append(tokens, vmlang.ArithmeticOp{Op: vmlang.Lt}, vmlang.ArithmeticOp{Op: vmlang.Not}), nil
	case ast.OpNe: // a != b  ==  !(a == b)
		return append(tokens, vmlang.ArithmeticOp{Op: vmlang.Eq}, vmlang.ArithmeticOp{Op: vmlang.Not}), nil
	case ast.OpMul:
		return append(tokens, vmlang.CallOp{Name: "Math.multiply", NumArgs: 2}), nil
	case ast.OpDiv:
		return append(tokens, vmlang.CallOp{Name: "Math.divide", NumArgs: 2}), nil
	default:
		return nil, errf(NotAMember, "unsupported operator %q", op)
	}
}

func (mc *methodCompiler) compileArgs(args []ast.Expression) ([]vmlang.VMToken, error) {
	var tokens []vmlang.VMToken
	for _, arg := range args {
		argTokens, err := mc.compileExpr(arg)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, argTokens...)
	}
	return tokens, nil
}

func (mc *methodCompiler) compileNew(t ast.NewTerm) ([]vmlang.VMToken, error) {
	if _, found := mc.compiler.classes[t.ClassName]; !found {
		return nil, errf(UnknownType, "new %q refers to an unknown class", t.ClassName)
	}
	argTokens, err := mc.compileArgs(t.Args)
	if err != nil {
		return nil, err
	}
	return append(argTokens, vmlang.CallOp{Name: t.ClassName + ".new", NumArgs: uint8(len(t.Args))}), nil
}

// compileBareCall handles a Call term with no dot qualifier. The language
// has no free functions, so an unqualified call is implicitly scoped to the
// enclosing class: inside an instance method it dispatches on 'this';
// inside a static method (or the constructor) it is a call to a sibling
// static method of the same class.
func (mc *methodCompiler) compileBareCall(t ast.CallTerm) ([]vmlang.VMToken, error) {
	argTokens, err := mc.compileArgs(t.Args)
	if err != nil {
		return nil, err
	}

	if _, isInstance := mc.ns.params["this"]; isInstance {
		tokens := []vmlang.VMToken{vmlang.MemoryOp{Op: vmlang.Push, Segment: vmlang.Pointer, Index: 0}}
		tokens = append(tokens, argTokens...)
		tokens = append(tokens, vmlang.CallOp{Name: mc.class.Name + "." + t.FuncName, NumArgs: uint8(1 + len(t.Args))})
		return tokens, nil
	}

	return append(argTokens, vmlang.CallOp{Name: mc.class.Name + "." + t.FuncName, NumArgs: uint8(len(t.Args))}), nil
}

// compileDotCall handles 'left.method(args)': either an instance method
// call on 'this', a call on an object-typed local/parameter, or a static
// call on a class name.
func (mc *methodCompiler) compileDotCall(left ast.Term, call ast.CallTerm) ([]vmlang.VMToken, error) {
	leftIdent, ok := left.(ast.IdentifierTerm)
	if !ok {
		return nil, errf(NotAMember, "method call requires an identifier receiver, got %T", left)
	}

	argTokens, err := mc.compileArgs(call.Args)
	if err != nil {
		return nil, err
	}

	if leftIdent.Name == "this" {
		tokens := []vmlang.VMToken{vmlang.MemoryOp{Op: vmlang.Push, Segment: vmlang.Pointer, Index: 0}}
		tokens = append(tokens, argTokens...)
		tokens = append(tokens, vmlang.CallOp{Name: mc.class.Name + "." + call.FuncName, NumArgs: uint8(1 + len(call.Args))})
		return tokens, nil
	}

	if _, found := mc.compiler.classes[leftIdent.Name]; found {
		return append(argTokens, vmlang.CallOp{Name: leftIdent.Name + "." + call.FuncName, NumArgs: uint8(len(call.Args))}), nil
	}

	declType, found := mc.ns.DeclaredType(leftIdent.Name)
	if !found {
		return nil, errf(UndeclaredName, "name %q is not declared in the current scope", leftIdent.Name)
	}
	objRef, _, err := mc.ns.Resolve(leftIdent.Name)
	if err != nil {
		return nil, err
	}

	tokens := []vmlang.VMToken{vmlang.MemoryOp{Op: vmlang.Push, Segment: objRef.Segment, Index: objRef.Index}}
	tokens = append(tokens, argTokens...)
	tokens = append(tokens, vmlang.CallOp{Name: declType + "." + call.FuncName, NumArgs: uint8(1 + len(call.Args))})
	return tokens, nil
}

// compileDotRead handles 'left.field' in expression (read) position.
func (mc *methodCompiler) compileDotRead(left, right ast.Term) ([]vmlang.VMToken, error) {
	leftIdent, ok := left.(ast.IdentifierTerm)
	if !ok {
		return nil, errf(NotAMember, "field access requires an identifier on the left, got %T", left)
	}
	fieldIdent, ok := right.(ast.IdentifierTerm)
	if !ok {
		return nil, errf(NotAMember, "expected a field name on the right of '.', got %T", right)
	}

	if leftIdent.Name == "this" {
		field, found := mc.currentClassType().Field(fieldIdent.Name)
		if !found {
			return nil, errf(NotAMember, "class %q has no field %q", mc.class.Name, fieldIdent.Name)
		}
		return []vmlang.VMToken{vmlang.MemoryOp{Op: vmlang.Push, Segment: vmlang.This, Index: field.Index}}, nil
	}

	if _, found := mc.compiler.classes[leftIdent.Name]; found {
		ref, found := mc.compiler.statics.Lookup(leftIdent.Name, fieldIdent.Name)
		if !found {
			return nil, errf(NotAMember, "class %q has no static field %q", leftIdent.Name, fieldIdent.Name)
		}
		return []vmlang.VMToken{vmlang.MemoryOp{Op: vmlang.Push, Segment: ref.Segment, Index: ref.Index}}, nil
	}

	declType, found := mc.ns.DeclaredType(leftIdent.Name)
	if !found {
		return nil, errf(UndeclaredName, "name %q is not declared in the current scope", leftIdent.Name)
	}
	objRef, _, err := mc.ns.Resolve(leftIdent.Name)
	if err != nil {
		return nil, err
	}
	fieldType, found := mc.compiler.types.Type(declType)
	if !found {
		return nil, errf(UnknownType, "unknown type %q", declType)
	}
	field, found := fieldType.Field(fieldIdent.Name)
	if !found {
		return nil, errf(NotAMember, "type %q has no field %q", declType, fieldIdent.Name)
	}

	return []vmlang.VMToken{
		vmlang.MemoryOp{Op: vmlang.Push, Segment: objRef.Segment, Index: objRef.Index},
		vmlang.MemoryOp{Op: vmlang.Pop, Segment: vmlang.Pointer, Index: 1},
		vmlang.MemoryOp{Op: vmlang.Push, Segment: vmlang.That, Index: field.Index},
	}, nil
}

// compileAssignTarget mirrors compileDotRead/compileTerm(Identifier) but
// emits the 'pop' form, appended after the value has already been pushed.
func (mc *methodCompiler) compileAssignTarget(dest ast.Expression) ([]vmlang.VMToken, error) {
	switch t := dest.Term.(type) {
	case ast.IdentifierTerm:
		ref, _, err := mc.ns.Resolve(t.Name)
		if err != nil {
			return nil, err
		}
		return []vmlang.VMToken{vmlang.MemoryOp{Op: vmlang.Pop, Segment: ref.Segment, Index: ref.Index}}, nil

	case ast.BinaryOpTerm:
		if t.Op != ast.OpDot {
			return nil, errf(InvalidAssignmentTarget, "cannot assign to a %q expression", t.Op)
		}
		return mc.compileDotWrite(t.Left, t.Right)

	default:
		return nil, errf(InvalidAssignmentTarget, "unsupported assignment target %T", dest.Term)
	}
}

func (mc *methodCompiler) compileDotWrite(left, right ast.Term) ([]vmlang.VMToken, error) {
	leftIdent, ok := left.(ast.IdentifierTerm)
	if !ok {
		return nil, errf(InvalidAssignmentTarget, "dot assignment requires an identifier on the left")
	}
	fieldIdent, ok := right.(ast.IdentifierTerm)
	if !ok {
		return nil, errf(InvalidAssignmentTarget, "cannot assign to a method call")
	}

	if leftIdent.Name == "this" {
		field, found := mc.currentClassType().Field(fieldIdent.Name)
		if !found {
			return nil, errf(NotAMember, "class %q has no field %q", mc.class.Name, fieldIdent.Name)
		}
		return []vmlang.VMToken{vmlang.MemoryOp{Op: vmlang.Pop, Segment: vmlang.This, Index: field.Index}}, nil
	}

	if _, found := mc.compiler.classes[leftIdent.Name]; found {
		ref, found := mc.compiler.statics.Lookup(leftIdent.Name, fieldIdent.Name)
		if !found {
			return nil, errf(NotAMember, "class %q has no static field %q", leftIdent.Name, fieldIdent.Name)
		}
		return []vmlang.VMToken{vmlang.MemoryOp{Op: vmlang.Pop, Segment: ref.Segment, Index: ref.Index}}, nil
	}

	declType, found := mc.ns.DeclaredType(leftIdent.Name)
	if !found {
		return nil, errf(UndeclaredName, "name %q is not declared in the current scope", leftIdent.Name)
	}
	objRef, _, err := mc.ns.Resolve(leftIdent.Name)
	if err != nil {
		return nil, err
	}
	fieldType, found := mc.compiler.types.Type(declType)
	if !found {
		return nil, errf(UnknownType, "unknown type %q", declType)
	}
	field, found := fieldType.Field(fieldIdent.Name)
	if !found {
		return nil, errf(NotAMember, "type %q has no field %q", declType, fieldIdent.Name)
	}

	return []vmlang.VMToken{
		vmlang.MemoryOp{Op: vmlang.Push, Segment: objRef.Segment, Index: objRef.Index},
		vmlang.MemoryOp{Op: vmlang.Pop, Segment: vmlang.Pointer, Index: 1},
		vmlang.MemoryOp{Op: vmlang.Pop, Segment: vmlang.That, Index: field.Index},
	}, nil
}

func (mc *methodCompiler) currentClassType() *types.ObjectType {
	ot, _ := mc.compiler.types.Type(mc.class.Name)
	return ot
}

// compileSequenceLiteral allocates a buffer of 'len(values)' cells via the
// host-provided Memory.alloc intrinsic and stores each value through the
// That segment, leaving the buffer's address on the stack. Array and
// string literals share this lowering since the VM exposes no dedicated
// string or array segment — both are just a contiguous block addressed via
// a pointer, the same representation 'new'-ed objects use.
func (mc *methodCompiler) compileSequenceLiteral(values []vmlang.VMToken) ([]vmlang.VMToken, error) {
	tokens := []vmlang.VMToken{
		vmlang.MemoryOp{Op: vmlang.Push, Segment: vmlang.Constant, Index: uint16(len(values))},
		vmlang.CallOp{Name: "Memory.alloc", NumArgs: 1},
		vmlang.MemoryOp{Op: vmlang.Pop, Segment: vmlang.Pointer, Index: 1},
	}
	for i, v := range values {
		tokens = append(tokens, v, vmlang.MemoryOp{Op: vmlang.Pop, Segment: vmlang.That, Index: uint16(i)})
	}
	tokens = append(tokens, vmlang.MemoryOp{Op: vmlang.Push, Segment: vmlang.Pointer, Index: 1})
	return tokens, nil
}

func (mc *methodCompiler) compileArrayLiteral(elements []ast.Expression) ([]vmlang.VMToken, error) {
	values := make([]vmlang.VMToken, 0, len(elements))
	for _, el := range elements {
		tokens, err := mc.compileExpr(el)
		if err != nil {
			return nil, err
		}
		if len(tokens) != 1 {
			// An element more complex than a single push still works: splice
			// its tokens in directly rather than going through the uniform
			// push-constant path compileSequenceLiteral expects.
			return mc.compileArrayLiteralGeneral(elements)
		}
		values = append(values, tokens[0])
	}
	return mc.compileSequenceLiteral(values)
}

// compileArrayLiteralGeneral is the fallback for array elements that don't
// compile to a single push (a nested expression, a call, ...): each
// element's full token sequence runs immediately before its store.
func (mc *methodCompiler) compileArrayLiteralGeneral(elements []ast.Expression) ([]vmlang.VMToken, error) {
	tokens := []vmlang.VMToken{
		vmlang.MemoryOp{Op: vmlang.Push, Segment: vmlang.Constant, Index: uint16(len(elements))},
		vmlang.CallOp{Name: "Memory.alloc", NumArgs: 1},
		vmlang.MemoryOp{Op: vmlang.Pop, Segment: vmlang.Pointer, Index: 1},
	}
	for i, el := range elements {
		elTokens, err := mc.compileExpr(el)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, elTokens...)
		tokens = append(tokens, vmlang.MemoryOp{Op: vmlang.Pop, Segment: vmlang.That, Index: uint16(i)})
	}
	tokens = append(tokens, vmlang.MemoryOp{Op: vmlang.Push, Segment: vmlang.Pointer, Index: 1})
	return tokens, nil
}

func stringBytes(s string) []vmlang.VMToken {
	out := make([]vmlang.VMToken, len(s))
	for i := 0; i < len(s); i++ {
		out[i] = vmlang.MemoryOp{Op: vmlang.Push, Segment: vmlang.Constant, Index: uint16(s[i])}
	}
	return out
}
