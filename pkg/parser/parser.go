// Package parser turns 'L' source text into a *ast.Module using a
// goparsec-based combinator grammar, following the same FromSource/FromAST
// split used throughout this repository's other front ends.
package parser

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	pc "github.com/prataprc/goparsec"

	"github.com/vlctools/vlc/pkg/ast"
)

type Parser struct{ reader io.Reader }

func NewParser(r io.Reader) Parser {
	return Parser{reader: r}
}

func (p *Parser) Parse() (*ast.Module, error) {
	content, err := io.ReadAll(p.reader)
	if err != nil {
		return nil, fmt.Errorf("cannot read from 'io.Reader': %w", err)
	}

	root, ok := p.fromSource(content)
	if !ok {
		return nil, fmt.Errorf("failed to parse source into an AST")
	}

	return p.fromAST(root)
}

func (p *Parser) fromSource(source []byte) (pc.Queryable, bool) {
	if os.Getenv("PARSEC_DEBUG") != "" {
		ast.SetDebug()
	}

	root, _ := ast.Parsewith(pFile, pc.NewScanner(source))

	if os.Getenv("EXPORT_AST") != "" {
		if file, err := os.Create(fmt.Sprintf("%s/debug.ast.dot", os.Getenv("DEBUG_FOLDER"))); err == nil {
			defer file.Close()
			file.Write([]byte(ast.Dotstring("\"L AST\"")))
		}
	}
	if os.Getenv("PRINT_AST") != "" {
		ast.Prettyprint()
	}

	return root, root != nil
}

// unwrap strips the wrapper node goparsec's OrdChoice sometimes adds around
// a matched compound alternative. It's a no-op when 'node' isn't actually
// the named wrapper, which is what happens when the matched alternative was
// a bare terminal instead.
func unwrap(node pc.Queryable, wrapperName string) pc.Queryable {
	if node.GetName() == wrapperName && len(node.GetChildren()) == 1 {
		return node.GetChildren()[0]
	}
	return node
}

func (p *Parser) fromAST(root pc.Queryable) (*ast.Module, error) {
	if root.GetName() != "file" {
		return nil, fmt.Errorf("expected node 'file', found %s", root.GetName())
	}

	module := &ast.Module{}
	for _, child := range root.GetChildren() {
		class, err := parseClass(child)
		if err != nil {
			return nil, err
		}
		module.Classes = append(module.Classes, class)
	}
	return module, nil
}

func parseClass(node pc.Queryable) (*ast.ClassDecl, error) {
	children := node.GetChildren()
	if len(children) != 5 {
		return nil, fmt.Errorf("expected 'class_decl' with 5 children, got %d", len(children))
	}

	class := &ast.ClassDecl{Name: children[1].GetValue()}
	for _, member := range children[3].GetChildren() {
		member = unwrap(member, "member")
		switch member.GetName() {
		case "constructor_decl":
			method, err := parseConstructor(member)
			if err != nil {
				return nil, err
			}
			class.Methods = append(class.Methods, method)
		case "method_decl":
			method, err := parseMethod(member)
			if err != nil {
				return nil, err
			}
			class.Methods = append(class.Methods, method)
		case "field_decl":
			field, err := parseField(member)
			if err != nil {
				return nil, err
			}
			class.Fields = append(class.Fields, field)
		default:
			return nil, fmt.Errorf("unrecognized class member %q", member.GetName())
		}
	}
	return class, nil
}

func parseField(node pc.Queryable) (ast.FieldDecl, error) {
	children := node.GetChildren()
	switch len(children) {
	case 5: // static ident : type ;
		typeName, err := parseTypeName(children[3])
		if err != nil {
			return ast.FieldDecl{}, err
		}
		return ast.FieldDecl{Scope: ast.Static, Name: children[1].GetValue(), TypeName: typeName}, nil
	case 4: // ident : type ;
		typeName, err := parseTypeName(children[2])
		if err != nil {
			return ast.FieldDecl{}, err
		}
		return ast.FieldDecl{Scope: ast.Instance, Name: children[0].GetValue(), TypeName: typeName}, nil
	default:
		return ast.FieldDecl{}, fmt.Errorf("unexpected 'field_decl' with %d children", len(children))
	}
}

func parseConstructor(node pc.Queryable) (ast.MethodDecl, error) {
	children := node.GetChildren()
	if len(children) != 7 {
		return ast.MethodDecl{}, fmt.Errorf("expected 'constructor_decl' with 7 children, got %d", len(children))
	}
	params, err := parseParams(children[2])
	if err != nil {
		return ast.MethodDecl{}, err
	}
	body, err := parseBlock(children[5])
	if err != nil {
		return ast.MethodDecl{}, err
	}
	return ast.MethodDecl{Scope: ast.Static, Name: "new", IsConstructor: true, Parameters: params, Body: body}, nil
}

// parseMethod dispatches on arity, since the 4 method shapes (static x
// return-typed) all share the node name "method_decl".
func parseMethod(node pc.Queryable) (ast.MethodDecl, error) {
	children := node.GetChildren()
	switch len(children) {
	case 10: // static ident ( params ) : type { stmts }
		params, err := parseParams(children[3])
		if err != nil {
			return ast.MethodDecl{}, err
		}
		retType, err := parseTypeName(children[6])
		if err != nil {
			return ast.MethodDecl{}, err
		}
		body, err := parseBlock(children[8])
		if err != nil {
			return ast.MethodDecl{}, err
		}
		return ast.MethodDecl{Scope: ast.Static, Name: children[1].GetValue(), Parameters: params, ReturnType: retType, Body: body}, nil

	case 8: // static ident ( params ) { stmts }
		params, err := parseParams(children[3])
		if err != nil {
			return ast.MethodDecl{}, err
		}
		body, err := parseBlock(children[6])
		if err != nil {
			return ast.MethodDecl{}, err
		}
		return ast.MethodDecl{Scope: ast.Static, Name: children[1].GetValue(), Parameters: params, Body: body}, nil

	case 9: // ident ( params ) : type { stmts }
		params, err := parseParams(children[2])
		if err != nil {
			return ast.MethodDecl{}, err
		}
		retType, err := parseTypeName(children[5])
		if err != nil {
			return ast.MethodDecl{}, err
		}
		body, err := parseBlock(children[7])
		if err != nil {
			return ast.MethodDecl{}, err
		}
		return ast.MethodDecl{Scope: ast.Instance, Name: children[0].GetValue(), Parameters: params, ReturnType: retType, Body: body}, nil

	case 7: // ident ( params ) { stmts }
		params, err := parseParams(children[2])
		if err != nil {
			return ast.MethodDecl{}, err
		}
		body, err := parseBlock(children[5])
		if err != nil {
			return ast.MethodDecl{}, err
		}
		return ast.MethodDecl{Scope: ast.Instance, Name: children[0].GetValue(), Parameters: params, Body: body}, nil

	default:
		return ast.MethodDecl{}, fmt.Errorf("unexpected 'method_decl' with %d children", len(children))
	}
}

func parseParams(node pc.Queryable) ([]ast.Parameter, error) {
	var params []ast.Parameter
	for _, c := range node.GetChildren() {
		children := c.GetChildren()
		if len(children) != 3 {
			return nil, fmt.Errorf("expected 'param' with 3 children, got %d", len(children))
		}
		typeName, err := parseTypeName(children[2])
		if err != nil {
			return nil, err
		}
		params = append(params, ast.Parameter{Name: children[0].GetValue(), TypeName: typeName})
	}
	return params, nil
}

func parseTypeName(node pc.Queryable) (string, error) {
	node = unwrap(node, "type_name")
	switch node.GetName() {
	case "array_type_name":
		children := node.GetChildren()
		if len(children) != 3 {
			return "", fmt.Errorf("expected 'array_type_name' with 3 children, got %d", len(children))
		}
		return children[0].GetValue() + "[]", nil
	case "plain_type_name":
		children := node.GetChildren()
		if len(children) != 1 {
			return "", fmt.Errorf("expected 'plain_type_name' with 1 child, got %d", len(children))
		}
		return children[0].GetValue(), nil
	default:
		return "", fmt.Errorf("unrecognized type name node %q", node.GetName())
	}
}

func parseBlock(node pc.Queryable) (ast.Block, error) {
	var stmts []ast.Statement
	for _, c := range node.GetChildren() {
		s, err := parseStatement(c)
		if err != nil {
			return ast.Block{}, err
		}
		stmts = append(stmts, s)
	}
	return ast.Block{Statements: stmts}, nil
}

func parseStatement(node pc.Queryable) (ast.Statement, error) {
	node = unwrap(node, "statement")
	switch node.GetName() {
	case "let_stmt":
		return parseLetStmt(node)
	case "while_stmt":
		return parseWhileStmt(node)
	case "if_stmt":
		return parseIfStmt(node)
	case "return_stmt":
		return parseReturnStmt(node)
	case "assign_stmt":
		return parseAssignStmt(node)
	case "expr_stmt":
		return parseExprStmtNode(node)
	default:
		return nil, fmt.Errorf("unrecognized statement node %q", node.GetName())
	}
}

func parseLetStmt(node pc.Queryable) (ast.Statement, error) {
	children := node.GetChildren()
	if len(children) != 7 {
		return nil, fmt.Errorf("expected 'let_stmt' with 7 children, got %d", len(children))
	}
	typeName, err := parseTypeName(children[3])
	if err != nil {
		return nil, err
	}
	value, err := parseExpr(children[5])
	if err != nil {
		return nil, err
	}
	return ast.LetStmt{Name: children[1].GetValue(), TypeName: typeName, Value: value}, nil
}

func parseAssignStmt(node pc.Queryable) (ast.Statement, error) {
	children := node.GetChildren()
	if len(children) != 4 {
		return nil, fmt.Errorf("expected 'assign_stmt' with 4 children, got %d", len(children))
	}
	destTerm, err := parseDotExpr(children[0])
	if err != nil {
		return nil, err
	}
	value, err := parseExpr(children[2])
	if err != nil {
		return nil, err
	}
	return ast.AssignmentStmt{Dest: ast.Expression{Term: destTerm}, Value: value}, nil
}

func parseWhileStmt(node pc.Queryable) (ast.Statement, error) {
	children := node.GetChildren()
	if len(children) != 7 {
		return nil, fmt.Errorf("expected 'while_stmt' with 7 children, got %d", len(children))
	}
	cond, err := parseExpr(children[2])
	if err != nil {
		return nil, err
	}
	body, err := parseBlock(children[5])
	if err != nil {
		return nil, err
	}
	return ast.WhileStmt{Cond: cond, Body: body}, nil
}

func parseIfStmt(node pc.Queryable) (ast.Statement, error) {
	node = unwrap(node, "if_stmt_choice")
	children := node.GetChildren()
	cond, err := parseExpr(children[2])
	if err != nil {
		return nil, err
	}
	then, err := parseBlock(children[5])
	if err != nil {
		return nil, err
	}

	switch len(children) {
	case 7:
		return ast.IfStmt{Cond: cond, Then: then}, nil
	case 11:
		elseBlock, err := parseBlock(children[9])
		if err != nil {
			return nil, err
		}
		return ast.IfStmt{Cond: cond, Then: then, Else: &elseBlock}, nil
	default:
		return nil, fmt.Errorf("unexpected 'if_stmt' with %d children", len(children))
	}
}

func parseReturnStmt(node pc.Queryable) (ast.Statement, error) {
	node = unwrap(node, "return_stmt_choice")
	children := node.GetChildren()
	switch len(children) {
	case 2:
		return ast.ReturnStmt{}, nil
	case 3:
		value, err := parseExpr(children[1])
		if err != nil {
			return nil, err
		}
		return ast.ReturnStmt{Value: value}, nil
	default:
		return nil, fmt.Errorf("unexpected 'return_stmt' with %d children", len(children))
	}
}

func parseExprStmtNode(node pc.Queryable) (ast.Statement, error) {
	children := node.GetChildren()
	if len(children) != 2 {
		return nil, fmt.Errorf("expected 'expr_stmt' with 2 children, got %d", len(children))
	}
	value, err := parseExpr(children[0])
	if err != nil {
		return nil, err
	}
	return ast.ExprStmt{Value: value}, nil
}

// ----------------------------------------------------------------------------
// Expressions

func parseExpr(node pc.Queryable) (ast.Expression, error) {
	term, err := parseComparison(node)
	if err != nil {
		return ast.Expression{}, err
	}
	return ast.Expression{Term: term}, nil
}

func parseComparison(node pc.Queryable) (ast.Term, error) {
	children := node.GetChildren()
	if len(children) != 2 {
		return nil, fmt.Errorf("expected 'comparison' with 2 children, got %d", len(children))
	}
	left, err := parseAdditive(children[0])
	if err != nil {
		return nil, err
	}
	for _, tail := range children[1].GetChildren() {
		tailChildren := tail.GetChildren()
		if len(tailChildren) != 2 {
			return nil, fmt.Errorf("expected 'cmp_tail' with 2 children, got %d", len(tailChildren))
		}
		right, err := parseAdditive(tailChildren[1])
		if err != nil {
			return nil, err
		}
		left = ast.BinaryOpTerm{Op: ast.Op(unwrap(tailChildren[0], "cmp_op").GetValue()), Left: left, Right: right}
	}
	return left, nil
}

func parseAdditive(node pc.Queryable) (ast.Term, error) {
	children := node.GetChildren()
	if len(children) != 2 {
		return nil, fmt.Errorf("expected 'additive' with 2 children, got %d", len(children))
	}
	left, err := parseMultiplicative(children[0])
	if err != nil {
		return nil, err
	}
	for _, tail := range children[1].GetChildren() {
		tailChildren := tail.GetChildren()
		if len(tailChildren) != 2 {
			return nil, fmt.Errorf("expected 'add_tail' with 2 children, got %d", len(tailChildren))
		}
		right, err := parseMultiplicative(tailChildren[1])
		if err != nil {
			return nil, err
		}
		left = ast.BinaryOpTerm{Op: ast.Op(unwrap(tailChildren[0], "add_op").GetValue()), Left: left, Right: right}
	}
	return left, nil
}

func parseMultiplicative(node pc.Queryable) (ast.Term, error) {
	children := node.GetChildren()
	if len(children) != 2 {
		return nil, fmt.Errorf("expected 'multiplicative' with 2 children, got %d", len(children))
	}
	left, err := parseDotExpr(children[0])
	if err != nil {
		return nil, err
	}
	for _, tail := range children[1].GetChildren() {
		tailChildren := tail.GetChildren()
		if len(tailChildren) != 2 {
			return nil, fmt.Errorf("expected 'mul_tail' with 2 children, got %d", len(tailChildren))
		}
		right, err := parseDotExpr(tailChildren[1])
		if err != nil {
			return nil, err
		}
		left = ast.BinaryOpTerm{Op: ast.Op(unwrap(tailChildren[0], "mul_op").GetValue()), Left: left, Right: right}
	}
	return left, nil
}

func parseDotExpr(node pc.Queryable) (ast.Term, error) {
	children := node.GetChildren()
	if len(children) != 2 {
		return nil, fmt.Errorf("expected 'dot_expr' with 2 children, got %d", len(children))
	}
	left, err := parseAtom(children[0])
	if err != nil {
		return nil, err
	}
	for _, tail := range children[1].GetChildren() {
		tailChildren := tail.GetChildren()
		if len(tailChildren) != 2 {
			return nil, fmt.Errorf("expected 'dot_tail' with 2 children, got %d", len(tailChildren))
		}
		right, err := parseDotAtom(tailChildren[1])
		if err != nil {
			return nil, err
		}
		left = ast.BinaryOpTerm{Op: ast.OpDot, Left: left, Right: right}
	}
	return left, nil
}

func parseDotAtom(node pc.Queryable) (ast.Term, error) {
	node = unwrap(node, "dot_atom")
	switch node.GetName() {
	case "call_expr":
		return parseCallExpr(node)
	case "ident_atom":
		return parseIdentAtom(node)
	default:
		return nil, fmt.Errorf("unrecognized dot target %q", node.GetName())
	}
}

func parseAtom(node pc.Queryable) (ast.Term, error) {
	node = unwrap(node, "atom")
	switch node.GetName() {
	case "unary_minus":
		return parseUnaryMinus(node)
	case "new_expr":
		return parseNewExpr(node)
	case "call_expr":
		return parseCallExpr(node)
	case "paren_expr":
		return parseParenExpr(node)
	case "array_lit":
		return parseArrayLit(node)
	case "number_lit":
		return parseNumberLit(node)
	case "string_lit":
		return parseStringLit(node)
	case "TRUE":
		return ast.BoolTerm{Value: true}, nil
	case "FALSE":
		return ast.BoolTerm{Value: false}, nil
	case "ident_atom":
		return parseIdentAtom(node)
	default:
		return nil, fmt.Errorf("unrecognized atom node %q", node.GetName())
	}
}

// parseUnaryMinus synthesizes "-x" as "0 - x": the VM has no dedicated
// negate-via-literal form, so unary minus rides the same subtraction path
// binary minus already compiles through.
func parseUnaryMinus(node pc.Queryable) (ast.Term, error) {
	children := node.GetChildren()
	if len(children) != 2 {
		return nil, fmt.Errorf("expected 'unary_minus' with 2 children, got %d", len(children))
	}
	operand, err := parseAtom(children[1])
	if err != nil {
		return nil, err
	}
	return ast.BinaryOpTerm{Op: ast.OpSub, Left: ast.NumberTerm{Value: 0}, Right: operand}, nil
}

func parseIdentAtom(node pc.Queryable) (ast.Term, error) {
	children := node.GetChildren()
	if len(children) != 1 {
		return nil, fmt.Errorf("expected 'ident_atom' with 1 child, got %d", len(children))
	}
	return ast.IdentifierTerm{Name: children[0].GetValue()}, nil
}

func parseCallExpr(node pc.Queryable) (ast.Term, error) {
	children := node.GetChildren()
	if len(children) != 4 {
		return nil, fmt.Errorf("expected 'call_expr' with 4 children, got %d", len(children))
	}
	args, err := parseArgs(children[2])
	if err != nil {
		return nil, err
	}
	return ast.CallTerm{FuncName: children[0].GetValue(), Args: args}, nil
}

func parseNewExpr(node pc.Queryable) (ast.Term, error) {
	children := node.GetChildren()
	if len(children) != 5 {
		return nil, fmt.Errorf("expected 'new_expr' with 5 children, got %d", len(children))
	}
	args, err := parseArgs(children[3])
	if err != nil {
		return nil, err
	}
	return ast.NewTerm{ClassName: children[1].GetValue(), Args: args}, nil
}

func parseParenExpr(node pc.Queryable) (ast.Term, error) {
	children := node.GetChildren()
	if len(children) != 3 {
		return nil, fmt.Errorf("expected 'paren_expr' with 3 children, got %d", len(children))
	}
	return parseComparison(children[1])
}

func parseArrayLit(node pc.Queryable) (ast.Term, error) {
	children := node.GetChildren()
	if len(children) != 3 {
		return nil, fmt.Errorf("expected 'array_lit' with 3 children, got %d", len(children))
	}
	var elements []ast.Expression
	for _, c := range children[1].GetChildren() {
		e, err := parseExpr(c)
		if err != nil {
			return nil, err
		}
		elements = append(elements, e)
	}
	return ast.ArrayTerm{Elements: elements}, nil
}

func parseNumberLit(node pc.Queryable) (ast.Term, error) {
	children := node.GetChildren()
	if len(children) != 1 {
		return nil, fmt.Errorf("expected 'number_lit' with 1 child, got %d", len(children))
	}
	value, err := strconv.ParseUint(children[0].GetValue(), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid numeric literal %q: %w", children[0].GetValue(), err)
	}
	return ast.NumberTerm{Value: value}, nil
}

func parseStringLit(node pc.Queryable) (ast.Term, error) {
	children := node.GetChildren()
	if len(children) != 1 {
		return nil, fmt.Errorf("expected 'string_lit' with 1 child, got %d", len(children))
	}
	raw := children[0].GetValue()
	unquoted := strings.TrimSuffix(strings.TrimPrefix(raw, `"`), `"`)
	value, err := strconv.Unquote(`"` + unquoted + `"`)
	if err != nil {
		return nil, fmt.Errorf("invalid string literal %q: %w", raw, err)
	}
	return ast.StringTerm{Value: value}, nil
}

func parseArgs(node pc.Queryable) ([]ast.Expression, error) {
	var args []ast.Expression
	for _, c := range node.GetChildren() {
		e, err := parseExpr(c)
		if err != nil {
			return nil, err
		}
		args = append(args, e)
	}
	return args, nil
}
