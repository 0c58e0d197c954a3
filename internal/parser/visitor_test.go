package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const visitorSource = `
def f(a):
    g = lambda: a
    def inner():
        hidden = 1
    return a
`

func TestFuncVisitor(t *testing.T) {
	ast := parse(t, visitorSource)

	t.Run("VisitsEverything", func(t *testing.T) {
		var names []string
		ast.Accept(NewFuncVisitor(func(n *Node) bool {
			if n.Type == NodeName {
				names = append(names, n.Name)
			}
			return true
		}))
		assert.Contains(t, names, "hidden")
		assert.Contains(t, names, "g")
	})

	t.Run("FalseSkipsChildren", func(t *testing.T) {
		var names []string
		ast.Accept(NewFuncVisitor(func(n *Node) bool {
			if n.Type == NodeName {
				names = append(names, n.Name)
			}
			return n.Type != NodeFunctionDef
		}))
		assert.Empty(t, names)
	})

	t.Run("NilNode", func(t *testing.T) {
		var n *Node
		called := false
		n.Accept(NewFuncVisitor(func(*Node) bool {
			called = true
			return true
		}))
		assert.False(t, called)
	})
}

func TestScopeLocalVisitor(t *testing.T) {
	ast := parse(t, visitorSource)
	fn := firstOfType(t, ast, NodeFunctionDef)
	require.Equal(t, "f", fn.Name)

	var visited []*Node
	fn.Accept(NewScopeLocalVisitor(fn, func(n *Node) {
		visited = append(visited, n)
	}))

	var names []string
	var nested []string
	for _, n := range visited {
		assert.NotSame(t, fn, n, "the root itself is not reported")
		switch n.Type {
		case NodeName:
			names = append(names, n.Name)
		case NodeLambda, NodeFunctionDef:
			nested = append(nested, n.String())
		}
	}

	assert.ElementsMatch(t, []string{"g", "a"}, names, "lambda body and inner def stay unvisited")
	assert.ElementsMatch(t, []string{"Lambda(<lambda>)", "FunctionDef(inner)"}, nested)
}
