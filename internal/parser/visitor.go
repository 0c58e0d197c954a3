package parser

// Visitor defines the interface for visiting AST nodes
type Visitor interface {
	// Visit is called for each node in the AST.
	// Return false to skip the node's children.
	Visit(node *Node) bool
}

// Accept implements the visitor pattern for AST nodes
func (n *Node) Accept(visitor Visitor) {
	if n == nil {
		return
	}
	if !visitor.Visit(n) {
		return
	}
	for _, child := range n.GetChildren() {
		child.Accept(visitor)
	}
}

// FuncVisitor is a visitor that uses a function
type FuncVisitor struct {
	fn func(*Node) bool
}

// NewFuncVisitor creates a visitor from a function
func NewFuncVisitor(fn func(*Node) bool) *FuncVisitor {
	return &FuncVisitor{fn: fn}
}

// Visit implements the Visitor interface
func (v *FuncVisitor) Visit(node *Node) bool {
	return v.fn(node)
}

// ScopeLocalVisitor visits the nodes that belong to one scope: it reports the
// root's direct contents and stops at nested functions, lambdas, classes and
// comprehensions, which are reported but not entered.
type ScopeLocalVisitor struct {
	root *Node
	fn   func(*Node)
}

// NewScopeLocalVisitor creates a visitor confined to the scope opened by root.
func NewScopeLocalVisitor(root *Node, fn func(*Node)) *ScopeLocalVisitor {
	return &ScopeLocalVisitor{root: root, fn: fn}
}

// Visit implements the Visitor interface
func (v *ScopeLocalVisitor) Visit(node *Node) bool {
	if node == v.root {
		return true
	}
	v.fn(node)
	return !node.IsScope()
}
