package ast_test

import (
	"testing"

	"github.com/vlctools/vlc/pkg/ast"
)

func TestScopeString(t *testing.T) {
	if got := ast.Static.String(); got != "static" {
		t.Errorf("Static.String() = %q, want %q", got, "static")
	}
	if got := ast.Instance.String(); got != "instance" {
		t.Errorf("Instance.String() = %q, want %q", got, "instance")
	}
}

func TestClassDeclConstructor(t *testing.T) {
	class := &ast.ClassDecl{
		Name: "Counter",
		Methods: []ast.MethodDecl{
			{Name: "get", Scope: ast.Instance},
			{Name: "new", Scope: ast.Instance, IsConstructor: true},
		},
	}

	ctor := class.Constructor()
	if ctor == nil {
		t.Fatal("Constructor() = nil, want the 'new' method")
	}
	if ctor.Name != "new" {
		t.Errorf("Constructor().Name = %q, want %q", ctor.Name, "new")
	}
}

func TestClassDeclConstructorAbsent(t *testing.T) {
	class := &ast.ClassDecl{
		Name:    "Main",
		Methods: []ast.MethodDecl{{Name: "main", Scope: ast.Static}},
	}
	if ctor := class.Constructor(); ctor != nil {
		t.Errorf("Constructor() = %#v, want nil", ctor)
	}
}

func TestStatementVariantsImplementStatement(t *testing.T) {
	var stmts = []ast.Statement{
		ast.LetStmt{Name: "i", TypeName: "number"},
		ast.AssignmentStmt{},
		ast.WhileStmt{},
		ast.IfStmt{},
		ast.ReturnStmt{},
		ast.ExprStmt{},
	}
	if len(stmts) != 6 {
		t.Fatalf("expected 6 statement variants, got %d", len(stmts))
	}
}

func TestTermVariantsImplementTerm(t *testing.T) {
	var terms = []ast.Term{
		ast.NumberTerm{Value: 1},
		ast.BoolTerm{Value: true},
		ast.StringTerm{Value: "hi"},
		ast.ArrayTerm{},
		ast.IdentifierTerm{Name: "x"},
		ast.BinaryOpTerm{Op: ast.OpAdd},
		ast.CallTerm{FuncName: "f"},
		ast.NewTerm{ClassName: "C"},
	}
	if len(terms) != 8 {
		t.Fatalf("expected 8 term variants, got %d", len(terms))
	}
}

func TestReturnStmtBareReturnHasNilTerm(t *testing.T) {
	stmt := ast.ReturnStmt{}
	if stmt.Value.Term != nil {
		t.Errorf("zero-value ReturnStmt.Value.Term = %#v, want nil", stmt.Value.Term)
	}
}
