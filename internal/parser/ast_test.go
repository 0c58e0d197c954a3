package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func firstOfType(t *testing.T, root *Node, nodeType NodeType) *Node {
	t.Helper()
	found := root.FindByType(nodeType)
	require.NotEmpty(t, found, "no %s node", nodeType)
	return found[0]
}

func TestASTShapes(t *testing.T) {
	t.Run("ChainedCompare", func(t *testing.T) {
		cmp := firstOfType(t, parse(t, "a < b <= c\n"), NodeCompare)
		assert.Equal(t, []string{"<", "<="}, cmp.Ops)
		require.NotNil(t, cmp.Left)
		assert.Equal(t, "a", cmp.Left.Name)
		require.Len(t, cmp.Children, 2)
		assert.Equal(t, "b", cmp.Children[0].Name)
		assert.Equal(t, "c", cmp.Children[1].Name)
	})

	t.Run("CallArguments", func(t *testing.T) {
		call := firstOfType(t, parse(t, "f(1, *xs, k=2, **kw)\n"), NodeCall)
		assert.Equal(t, "f", call.ValueNode().Name)
		require.Len(t, call.Args, 2)
		assert.Equal(t, NodeConstant, call.Args[0].Type)
		assert.Equal(t, NodeStarred, call.Args[1].Type)

		require.Len(t, call.Keywords, 2)
		assert.Equal(t, "k", call.Keywords[0].Name)
		assert.Empty(t, call.Keywords[1].Name, "** has no keyword name")
		assert.Equal(t, "kw", call.Keywords[1].ValueNode().Name)
	})

	t.Run("Parameters", func(t *testing.T) {
		fn := firstOfType(t, parse(t, "def f(a, b=1, *args, c, **kw):\n    pass\n"), NodeFunctionDef)
		assert.Equal(t, "f", fn.Name)
		require.Len(t, fn.Args, 5)

		names := make([]string, len(fn.Args))
		for i, arg := range fn.Args {
			names[i] = arg.Name
		}
		assert.Equal(t, []string{"a", "b", "args", "c", "kw"}, names)
		assert.NotNil(t, fn.Args[1].ValueNode(), "default value")
		assert.Equal(t, "*", fn.Args[2].Op)
		assert.Equal(t, "**", fn.Args[4].Op)
		assert.Equal(t, 0, fn.Args[0].Level)
		assert.Equal(t, 1, fn.Args[3].Level, "keyword-only after *args")
	})

	t.Run("Import", func(t *testing.T) {
		imp := firstOfType(t, parse(t, "import os.path as p, sys\n"), NodeImport)
		require.Len(t, imp.Children, 2)
		assert.Equal(t, "os.path", imp.Children[0].Name)
		assert.Equal(t, "p", imp.Children[0].Value)
		assert.Equal(t, "sys", imp.Children[1].Name)
		assert.Nil(t, imp.Children[1].Value)
	})

	t.Run("RelativeImportFrom", func(t *testing.T) {
		imp := firstOfType(t, parse(t, "from ..pkg import a as b\n"), NodeImportFrom)
		assert.Equal(t, 2, imp.Level)
		assert.Equal(t, "pkg", imp.Module)
		assert.Equal(t, []string{"a"}, imp.Names)
		require.Len(t, imp.Children, 1)
		assert.Equal(t, "b", imp.Children[0].Value)
	})

	t.Run("WildcardImport", func(t *testing.T) {
		imp := firstOfType(t, parse(t, "from m import *\n"), NodeImportFrom)
		assert.Equal(t, "m", imp.Module)
		assert.Equal(t, []string{"*"}, imp.Names)
		assert.Empty(t, imp.Children)
	})

	t.Run("ChainedAssignment", func(t *testing.T) {
		assign := firstOfType(t, parse(t, "a = b = 1\n"), NodeAssign)
		require.Len(t, assign.Targets, 2)
		assert.Equal(t, "a", assign.Targets[0].Name)
		assert.Equal(t, "b", assign.Targets[1].Name)
		assert.Equal(t, int64(1), assign.ValueNode().Value)
	})

	t.Run("AugmentedAssignment", func(t *testing.T) {
		aug := firstOfType(t, parse(t, "x += 2\n"), NodeAugAssign)
		assert.Equal(t, "+", aug.Op)
		assert.Equal(t, "x", aug.Targets[0].Name)
	})

	t.Run("TryHandlers", func(t *testing.T) {
		try := firstOfType(t, parse(t, `
try:
    f()
except ValueError as e:
    pass
except:
    pass
else:
    g()
finally:
    h()
`), NodeTry)
		require.Len(t, try.Handlers, 2)
		assert.Equal(t, "e", try.Handlers[0].Name)
		assert.Equal(t, "ValueError", try.Handlers[0].ValueNode().Name)
		assert.Nil(t, try.Handlers[1].ValueNode())
		assert.Len(t, try.Orelse, 1)
		assert.Len(t, try.Finalbody, 1)
	})

	t.Run("Comprehension", func(t *testing.T) {
		comp := firstOfType(t, parse(t, "[x * 2 for x in xs if x for y in x]\n"), NodeListComp)
		require.Len(t, comp.Children, 2)
		assert.Equal(t, NodeBinOp, comp.ValueNode().Type)

		first := comp.Children[0]
		assert.Equal(t, "x", first.Targets[0].Name)
		assert.Equal(t, "xs", first.Iter.Name)
		assert.Len(t, first.Children, 1, "if clause")
		assert.Empty(t, comp.Children[1].Children)
	})

	t.Run("WalrusTarget", func(t *testing.T) {
		named := firstOfType(t, parse(t, "(n := 10)\n"), NodeNamedExpr)
		require.Len(t, named.Targets, 1)
		assert.Equal(t, "n", named.Targets[0].Name)
	})
}

func TestNodeHelpers(t *testing.T) {
	ast := parse(t, `
def f(a):
    g = lambda: a
    return [i for i in a]

class C:
    pass
`)

	t.Run("IsScope", func(t *testing.T) {
		assert.True(t, ast.IsScope())
		assert.True(t, firstOfType(t, ast, NodeFunctionDef).IsScope())
		assert.True(t, firstOfType(t, ast, NodeLambda).IsScope())
		assert.True(t, firstOfType(t, ast, NodeClassDef).IsScope())
		assert.True(t, firstOfType(t, ast, NodeListComp).IsScope())
		assert.False(t, firstOfType(t, ast, NodeReturn).IsScope())
	})

	t.Run("IsComprehension", func(t *testing.T) {
		assert.True(t, firstOfType(t, ast, NodeListComp).IsComprehension())
		assert.False(t, firstOfType(t, ast, NodeLambda).IsComprehension())
	})

	t.Run("IsStatement", func(t *testing.T) {
		assert.True(t, firstOfType(t, ast, NodeReturn).IsStatement())
		assert.True(t, firstOfType(t, ast, NodePass).IsStatement())
		assert.False(t, firstOfType(t, ast, NodeName).IsStatement())
	})

	t.Run("GetParentOfType", func(t *testing.T) {
		ret := firstOfType(t, ast, NodeReturn)
		fn := ret.GetParentOfType(NodeFunctionDef)
		require.NotNil(t, fn)
		assert.Equal(t, "f", fn.Name)
		assert.Nil(t, ret.GetParentOfType(NodeClassDef))
	})

	t.Run("String", func(t *testing.T) {
		assert.Equal(t, "FunctionDef(f)", firstOfType(t, ast, NodeFunctionDef).String())
		assert.Equal(t, "Module", ast.String())
	})

	t.Run("ValueNode", func(t *testing.T) {
		n := NewNode(NodeConstant)
		n.Value = int64(1)
		assert.Nil(t, n.ValueNode())
	})
}
