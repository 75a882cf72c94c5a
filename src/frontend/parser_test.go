package frontend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vslc/src/ast"
)

func TestParseIdentityFunction(t *testing.T) {
	prog, err := Parse(`int id(int x) { return x; }`)
	require.NoError(t, err)
	require.Len(t, prog.Funcs, 1)

	fn := prog.Funcs[0]
	assert.Equal(t, "id", fn.Name)
	assert.False(t, fn.IsVoid)
	require.Len(t, fn.Params, 1)
	assert.Equal(t, "x", fn.Params[0].Name)
	require.Len(t, fn.Body.Stmts, 1)

	ret, ok := fn.Body.Stmts[0].(*ast.Return)
	require.True(t, ok)
	ident, ok := ret.Exp.(*ast.Ident)
	require.True(t, ok)
	assert.Equal(t, "x", ident.Name)
}

func TestParseGlobalConstDecl(t *testing.T) {
	prog, err := Parse(`const int LIMIT = 10; void main() {}`)
	require.NoError(t, err)
	require.Len(t, prog.Globals, 1)

	g := prog.Globals[0]
	assert.True(t, g.IsConst)
	assert.Equal(t, "LIMIT", g.Ident)
	lit, ok := g.Exp.(*ast.Lit)
	require.True(t, ok)
	assert.Equal(t, 10, lit.Value)
}

func TestParseArrayDeclAndIndex(t *testing.T) {
	prog, err := Parse(`void main() { int a[2][3]; a[0][1] = 4; }`)
	require.NoError(t, err)

	body := prog.Funcs[0].Body.Stmts
	require.Len(t, body, 2)

	decl, ok := body[0].(*ast.Decl)
	require.True(t, ok)
	assert.Len(t, decl.Dims, 2)

	assign, ok := body[1].(*ast.Assign)
	require.True(t, ok)
	assert.Equal(t, "a", assign.Ident)
	assert.Len(t, assign.Dims, 2)
}

func TestParseOperatorPrecedence(t *testing.T) {
	// 1 + 2 * 3 should parse as 1 + (2 * 3): the Binary root is "add" with
	// a "mul" right-hand side.
	prog, err := Parse(`void main() { int x = 1 + 2 * 3; }`)
	require.NoError(t, err)

	decl := prog.Funcs[0].Body.Stmts[0].(*ast.Decl)
	root, ok := decl.Exp.(*ast.Binary)
	require.True(t, ok)
	assert.Equal(t, "add", root.Op)

	rhs, ok := root.R.(*ast.Binary)
	require.True(t, ok)
	assert.Equal(t, "mul", rhs.Op)
}

func TestParseIfElseWhileBreakContinue(t *testing.T) {
	src := `
	int loop(int n) {
		while (n > 0) {
			if (n == 5) {
				break;
			} else {
				continue;
			}
			n = n - 1;
		}
		return n;
	}`
	prog, err := Parse(src)
	require.NoError(t, err)

	fn := prog.Funcs[0]
	wh, ok := fn.Body.Stmts[0].(*ast.While)
	require.True(t, ok)

	ifStmt, ok := wh.Body.Stmts[0].(*ast.If)
	require.True(t, ok)
	require.NotNil(t, ifStmt.Else)

	_, ok = ifStmt.Then.Stmts[0].(*ast.Control)
	assert.True(t, ok)
	_, ok = ifStmt.Else.Stmts[0].(*ast.Control)
	assert.True(t, ok)
}

func TestParseCallExpressionAndStatement(t *testing.T) {
	src := `
	int add(int a, int b) { return a + b; }
	void main() {
		add(1, 2);
	}`
	prog, err := Parse(src)
	require.NoError(t, err)

	main := prog.Funcs[1]
	exprStmt, ok := main.Body.Stmts[0].(*ast.ExpStmt)
	require.True(t, ok)
	call, ok := exprStmt.Exp.(*ast.Call)
	require.True(t, ok)
	assert.Equal(t, "add", call.Func)
	assert.Len(t, call.Args, 2)
}

func TestParseRejectsMissingSemicolon(t *testing.T) {
	_, err := Parse(`void main() { int x = 1 }`)
	assert.Error(t, err)
}
