package parser

import (
	pc "github.com/prataprc/goparsec"
)

// ----------------------------------------------------------------------------
// Parser Combinator(s)
//
// This section defines the grammar for the 'L' class-language as a tree of
// parser combinators, mirroring the shape of pkg/vmlang's own grammar: each
// rule is a package-level var built out of
// ast.And/ast.OrdChoice/ast.Kleene/ast.ManyUntil.
//
// Left recursion isn't available from parser combinators, so operator
// precedence is expressed as a chain of levels (comparison -> additive ->
// multiplicative -> dot -> atom), each one binding tighter than the last;
// fromAST folds the repeated tail of each level into a left-associative
// BinaryOpTerm chain.
//
// goparsec's OrdChoice wraps the matched alternative in its own named node
// only when that alternative is itself a compound (And/Kleene/OrdChoice)
// result; a bare terminal (Atom/Token) comes through untouched. Rather than
// special-case every call site, every consumer below goes through unwrap(),
// which is a no-op when there's nothing to unwrap.
//
// Expressions, statement blocks and atoms are mutually recursive (parens
// wrap a full expression, while/if bodies hold more statements, unary minus
// wraps another atom). Go rejects a package-var initializer cycle, so the
// three recursive hubs (pExpr, pStmts, pAtom) are declared up front with no
// initializer and built inside init(); every reference to one of them from
// code built earlier in init() goes through a pointer (&pExpr, &pStmts,
// &pAtom), which goparsec resolves lazily at parse time instead of at
// construction time, same trick its own recursive-grammar examples use.

var ast = pc.NewAST("l_program", 0)

var (
	pFile        pc.Parser
	pClass       pc.Parser
	pClassMember pc.Parser
	pConstructor pc.Parser

	pMethod                pc.Parser
	pMethodStaticTyped     pc.Parser
	pMethodStaticUntyped   pc.Parser
	pMethodInstanceTyped   pc.Parser
	pMethodInstanceUntyped pc.Parser

	pField         pc.Parser
	pFieldStatic   pc.Parser
	pFieldInstance pc.Parser

	pParam  pc.Parser
	pParams pc.Parser

	pTypeName      pc.Parser
	pArrayTypeName pc.Parser
	pPlainTypeName pc.Parser

	pStmts     pc.Parser
	pStatement pc.Parser

	pLetStmt pc.Parser

	pAssignStmt pc.Parser

	pWhileStmt pc.Parser

	pIfStmt     pc.Parser
	pIfWithElse pc.Parser
	pIfNoElse   pc.Parser

	pReturnStmt      pc.Parser
	pReturnWithValue pc.Parser
	pReturnBare      pc.Parser

	pExprStmt pc.Parser

	pExpr       pc.Parser
	pComparison pc.Parser
	pCompareOp  pc.Parser

	pAdditive pc.Parser
	pAddOp    pc.Parser

	pMultiplicative pc.Parser
	pMulOp          pc.Parser

	pDotExpr pc.Parser
	pDotAtom pc.Parser

	pAtom       pc.Parser
	pUnaryMinus pc.Parser
	pNewExpr    pc.Parser
	pCallExpr   pc.Parser
	pParenExpr  pc.Parser
	pArrayLit   pc.Parser
	pNumberLit  pc.Parser
	pStringLit  pc.Parser
	pIdentAtom  pc.Parser

	pArgs pc.Parser
)

var (
	// NOTE: an identifier can't begin with a leading digit but may otherwise
	// mix letters, digits and underscores freely.
	pIdent = pc.Token(`[A-Za-z_][0-9A-Za-z_]*`, "IDENT")

	pDot    = pc.Atom(".", "DOT")
	pColon  = pc.Atom(":", "COLON")
	pSemi   = pc.Atom(";", "SEMI")
	pComma  = pc.Atom(",", "COMMA")
	pLBrace = pc.Atom("{", "LBRACE")
	pRBrace = pc.Atom("}", "RBRACE")
	pLParen = pc.Atom("(", "LPAREN")
	pRParen = pc.Atom(")", "RPAREN")
	pLBrack = pc.Atom("[", "LBRACK")
	pRBrack = pc.Atom("]", "RBRACK")
)

func init() {
	pArrayTypeName = ast.And("array_type_name", nil, pIdent, pLBrack, pRBrack)
	pPlainTypeName = ast.And("plain_type_name", nil, pIdent)
	pTypeName = ast.OrdChoice("type_name", nil, pArrayTypeName, pPlainTypeName)

	pParam = ast.And("param", nil, pIdent, pColon, pTypeName)
	pParams = ast.Kleene("params", nil, pParam, pComma)

	// Atom leaves that don't recurse into the expression grammar.
	pNumberLit = ast.And("number_lit", nil, pc.Int())
	pStringLit = ast.And("string_lit", nil, pc.Token(`"(?:\\.|[^"\\])*"`, "STRING"))
	pIdentAtom = ast.And("ident_atom", nil, pIdent)

	// pArgs/pParenExpr/pArrayLit close over &pExpr since pExpr is itself
	// only fully built after pAtom, which these three feed into.
	pArgs = ast.Kleene("args", nil, &pExpr, pComma)
	pCallExpr = ast.And("call_expr", nil, pIdent, pLParen, pArgs, pRParen)
	pNewExpr = ast.And("new_expr", nil, pc.Atom("new", "NEW"), pIdent, pLParen, pArgs, pRParen)
	pParenExpr = ast.And("paren_expr", nil, pLParen, &pExpr, pRParen)
	pArrayLit = ast.And("array_lit", nil, pLBrack, ast.Kleene("elements", nil, &pExpr, pComma), pRBrack)

	// pUnaryMinus closes over &pAtom since pAtom's own alternative list
	// includes pUnaryMinus.
	pUnaryMinus = ast.And("unary_minus", nil, pc.Atom("-", "MINUS"), &pAtom)

	pAtom = ast.OrdChoice("atom", nil,
		pUnaryMinus, pNewExpr, pCallExpr, pParenExpr, pArrayLit, pNumberLit, pStringLit,
		pc.Atom("true", "TRUE"), pc.Atom("false", "FALSE"), pIdentAtom,
	)

	pDotAtom = ast.OrdChoice("dot_atom", nil, pCallExpr, pIdentAtom)
	pDotExpr = ast.And("dot_expr", nil, pAtom, ast.Kleene("dot_rest", nil, ast.And("dot_tail", nil, pDot, pDotAtom)))

	pMulOp = ast.OrdChoice("mul_op", nil, pc.Atom("*", "STAR"), pc.Atom("/", "SLASH"))
	pMultiplicative = ast.And("multiplicative", nil, pDotExpr, ast.Kleene("mul_rest", nil, ast.And("mul_tail", nil, pMulOp, pDotExpr)))

	pAddOp = ast.OrdChoice("add_op", nil, pc.Atom("+", "PLUS"), pc.Atom("-", "MINUS"))
	pAdditive = ast.And("additive", nil, pMultiplicative, ast.Kleene("add_rest", nil, ast.And("add_tail", nil, pAddOp, pMultiplicative)))

	pCompareOp = ast.OrdChoice("cmp_op", nil,
		pc.Atom("<=", "LE"), pc.Atom(">=", "GE"), pc.Atom("==", "EQEQ"), pc.Atom("!=", "NE"),
		pc.Atom("<", "LT"), pc.Atom(">", "GT"),
	)
	pComparison = ast.And("comparison", nil, pAdditive, ast.Kleene("cmp_rest", nil, ast.And("cmp_tail", nil, pCompareOp, pAdditive)))

	pExpr = pComparison

	// Statements. pWhileStmt/pIfWithElse/pIfNoElse close over &pStmts since
	// pStmts (via pStatement) includes them as alternatives.
	pLetStmt = ast.And("let_stmt", nil, pc.Atom("let", "LET"), pIdent, pColon, pTypeName, pc.Atom("=", "ASSIGN"), pExpr, pSemi)
	pAssignStmt = ast.And("assign_stmt", nil, pDotExpr, pc.Atom("=", "ASSIGN"), pExpr, pSemi)
	pExprStmt = ast.And("expr_stmt", nil, pExpr, pSemi)

	pWhileStmt = ast.And("while_stmt", nil, pc.Atom("while", "WHILE"), pLParen, pExpr, pRParen, pLBrace, &pStmts, pRBrace)

	pIfWithElse = ast.And("if_stmt", nil, pc.Atom("if", "IF"), pLParen, pExpr, pRParen, pLBrace, &pStmts, pRBrace,
		pc.Atom("else", "ELSE"), pLBrace, &pStmts, pRBrace)
	pIfNoElse = ast.And("if_stmt", nil, pc.Atom("if", "IF"), pLParen, pExpr, pRParen, pLBrace, &pStmts, pRBrace)
	pIfStmt = ast.OrdChoice("if_stmt_choice", nil, pIfWithElse, pIfNoElse)

	pReturnWithValue = ast.And("return_stmt", nil, pc.Atom("return", "RETURN"), pExpr, pSemi)
	pReturnBare = ast.And("return_stmt", nil, pc.Atom("return", "RETURN"), pSemi)
	pReturnStmt = ast.OrdChoice("return_stmt_choice", nil, pReturnWithValue, pReturnBare)

	pStatement = ast.OrdChoice("statement", nil, pLetStmt, pWhileStmt, pIfStmt, pReturnStmt, pAssignStmt, pExprStmt)
	pStmts = ast.Kleene("block", nil, pStatement)

	// Class members. These use pStmts by value since it's already built.
	pConstructor = ast.And("constructor_decl", nil, pc.Atom("constructor", "CONSTRUCTOR"),
		pLParen, pParams, pRParen, pLBrace, pStmts, pRBrace)

	pMethodStaticTyped = ast.And("method_decl", nil, pc.Atom("static", "STATIC"), pIdent, pLParen, pParams, pRParen, pColon, pTypeName, pLBrace, pStmts, pRBrace)
	pMethodStaticUntyped = ast.And("method_decl", nil, pc.Atom("static", "STATIC"), pIdent, pLParen, pParams, pRParen, pLBrace, pStmts, pRBrace)
	pMethodInstanceTyped = ast.And("method_decl", nil, pIdent, pLParen, pParams, pRParen, pColon, pTypeName, pLBrace, pStmts, pRBrace)
	pMethodInstanceUntyped = ast.And("method_decl", nil, pIdent, pLParen, pParams, pRParen, pLBrace, pStmts, pRBrace)
	pMethod = ast.OrdChoice("method_decl_choice", nil, pMethodStaticTyped, pMethodStaticUntyped, pMethodInstanceTyped, pMethodInstanceUntyped)

	pFieldStatic = ast.And("field_decl", nil, pc.Atom("static", "STATIC"), pIdent, pColon, pTypeName, pSemi)
	pFieldInstance = ast.And("field_decl", nil, pIdent, pColon, pTypeName, pSemi)
	pField = ast.OrdChoice("field_decl_choice", nil, pFieldStatic, pFieldInstance)

	pClassMember = ast.OrdChoice("member", nil, pConstructor, pMethod, pField)
	pClass = ast.And("class_decl", nil, pc.Atom("class", "CLASS"), pIdent, pLBrace,
		ast.Kleene("members", nil, pClassMember), pRBrace)
	pFile = ast.ManyUntil("file", nil, pClass, pc.End())
}
