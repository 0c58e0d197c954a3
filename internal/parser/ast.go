package parser

import "fmt"

// NodeType represents the type of AST node
type NodeType string

// Python AST node types
const (
	// Module and structure
	NodeModule NodeType = "Module"

	// Statements
	NodeFunctionDef      NodeType = "FunctionDef"
	NodeAsyncFunctionDef NodeType = "AsyncFunctionDef"
	NodeClassDef         NodeType = "ClassDef"
	NodeReturn           NodeType = "Return"
	NodeDelete           NodeType = "Delete"
	NodeAssign           NodeType = "Assign"
	NodeAugAssign        NodeType = "AugAssign"
	NodeAnnAssign        NodeType = "AnnAssign"
	NodeFor              NodeType = "For"
	NodeAsyncFor         NodeType = "AsyncFor"
	NodeWhile            NodeType = "While"
	NodeIf               NodeType = "If"
	NodeWith             NodeType = "With"
	NodeAsyncWith        NodeType = "AsyncWith"
	NodeMatch            NodeType = "Match"
	NodeRaise            NodeType = "Raise"
	NodeTry              NodeType = "Try"
	NodeAssert           NodeType = "Assert"
	NodeImport           NodeType = "Import"
	NodeImportFrom       NodeType = "ImportFrom"
	NodeGlobal           NodeType = "Global"
	NodeNonlocal         NodeType = "Nonlocal"
	NodeExpr             NodeType = "Expr"
	NodePass             NodeType = "Pass"
	NodeBreak            NodeType = "Break"
	NodeContinue         NodeType = "Continue"
	NodePrint            NodeType = "Print"
	NodeExec             NodeType = "Exec"

	// Expressions
	NodeBoolOp         NodeType = "BoolOp"
	NodeNamedExpr      NodeType = "NamedExpr"
	NodeBinOp          NodeType = "BinOp"
	NodeUnaryOp        NodeType = "UnaryOp"
	NodeLambda         NodeType = "Lambda"
	NodeIfExp          NodeType = "IfExp"
	NodeDict           NodeType = "Dict"
	NodeSet            NodeType = "Set"
	NodeListComp       NodeType = "ListComp"
	NodeSetComp        NodeType = "SetComp"
	NodeDictComp       NodeType = "DictComp"
	NodeGeneratorExp   NodeType = "GeneratorExp"
	NodeAwait          NodeType = "Await"
	NodeYield          NodeType = "Yield"
	NodeYieldFrom      NodeType = "YieldFrom"
	NodeCompare        NodeType = "Compare"
	NodeCall           NodeType = "Call"
	NodeFormattedValue NodeType = "FormattedValue"
	NodeJoinedStr      NodeType = "JoinedStr"
	NodeConstant       NodeType = "Constant"
	NodeAttribute      NodeType = "Attribute"
	NodeSubscript      NodeType = "Subscript"
	NodeStarred        NodeType = "Starred"
	NodeName           NodeType = "Name"
	NodeList           NodeType = "List"
	NodeTuple          NodeType = "Tuple"
	NodeSlice          NodeType = "Slice"

	// Other
	NodeAlias         NodeType = "Alias"
	NodeExceptHandler NodeType = "ExceptHandler"
	NodeArg           NodeType = "Arg"
	NodeKeyword       NodeType = "Keyword"
	NodeComprehension NodeType = "Comprehension"
	NodeDecorator     NodeType = "Decorator"
	NodeWithItem      NodeType = "WithItem"
	NodeBlock         NodeType = "block" // Block of statements from parser
)

// Constant payloads that have no natural Go representation.
type (
	// Bytes is the value of a bytes literal.
	Bytes string
	// BigInt is an integer literal that does not fit in int64, kept as written.
	BigInt string
	// Imaginary is a complex literal such as 3j, kept as written.
	Imaginary string
	// Ellipsis is the value of the `...` literal.
	Ellipsis struct{}
)

// Location represents the position of a node in the source code
type Location struct {
	File      string
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
}

// Node represents an AST node.
//
// Field usage by node type:
//
//	FunctionDef/Lambda  Name, Args (Arg: Name, Value=default, Op ""|"*"|"**", Level=1 keyword-only), Body, Decorator
//	ClassDef            Name, Bases, Keywords, Body, Decorator
//	Assign              Targets (several for a = b = v), Value
//	AugAssign           Targets[0], Op, Value
//	For/While/If        Targets[0] (for), Iter (for), Test, Body, Orelse (elif is a nested If)
//	With                Children WithItem (Value=context, Targets[0]=optional target), Body
//	Try                 Body, Handlers (ExceptHandler: Value=type, Name=alias), Orelse, Finalbody
//	Raise               Value=exception, Right=cause
//	Import/ImportFrom   Module, Level, Children Alias (Name, Value=asname string)
//	Compare             Left, Children comparators, Ops
//	Call                Value=callee, Args (may contain Starred), Keywords (Name "" for **)
//	Dict                Children Keyword (Left=key, nil for **, Value=value)
//	Comprehensions      Value=element (Left=key for DictComp), Children Comprehension
//	                    (Targets[0], Iter, Children=if tests)
//	Subscript           Value=object, Children[0]=index
//	Slice               Left=lower, Right=upper, Value=step
type Node struct {
	Type     NodeType
	Value    interface{} // Can hold various values depending on node type
	Children []*Node
	Location Location
	Parent   *Node

	// Additional fields for specific node types
	Name      string   // For function/class definitions, variables
	Targets   []*Node  // For assignments
	Body      []*Node  // For compound statements
	Orelse    []*Node  // For if/for/while/try statements
	Finalbody []*Node  // For try statements
	Handlers  []*Node  // For try statements
	Test      *Node    // For if/while statements
	Iter      *Node    // For for loops
	Args      []*Node  // For function calls
	Keywords  []*Node  // For function calls
	Decorator []*Node  // For decorated functions/classes
	Bases     []*Node  // For class definitions
	Left      *Node    // For binary operations
	Right     *Node    // For binary operations
	Op        string   // For operations
	Ops       []string // For chained comparisons
	Module    string   // For imports
	Names     []string // For global/nonlocal and imports
	Level     int      // For relative imports
}

// NewNode creates a new AST node
func NewNode(nodeType NodeType) *Node {
	return &Node{Type: nodeType}
}

// AddChild adds a child node
func (n *Node) AddChild(child *Node) {
	if child != nil {
		child.Parent = n
		n.Children = append(n.Children, child)
	}
}

// AddToBody adds a node to the body
func (n *Node) AddToBody(node *Node) {
	if node != nil {
		node.Parent = n
		n.Body = append(n.Body, node)
	}
}

// ValueNode returns the Value field when it holds a node.
func (n *Node) ValueNode() *Node {
	if v, ok := n.Value.(*Node); ok {
		return v
	}
	return nil
}

// GetChildren returns all child nodes, including a node stored in Value.
func (n *Node) GetChildren() []*Node {
	var all []*Node
	add := func(nodes ...*Node) {
		for _, c := range nodes {
			if c != nil {
				all = append(all, c)
			}
		}
	}
	add(n.Decorator...)
	add(n.Args...)
	add(n.Bases...)
	add(n.Keywords...)
	add(n.Targets...)
	add(n.Left, n.Test, n.Iter)
	add(n.ValueNode(), n.Right)
	add(n.Children...)
	add(n.Body...)
	add(n.Handlers...)
	add(n.Orelse...)
	add(n.Finalbody...)
	return all
}

// IsStatement returns true if the node is a statement
func (n *Node) IsStatement() bool {
	switch n.Type {
	case NodeFunctionDef, NodeAsyncFunctionDef, NodeClassDef,
		NodeReturn, NodeDelete, NodeAssign, NodeAugAssign, NodeAnnAssign,
		NodeFor, NodeAsyncFor, NodeWhile, NodeIf, NodeWith, NodeAsyncWith,
		NodeMatch, NodeRaise, NodeTry, NodeAssert, NodeImport, NodeImportFrom,
		NodeGlobal, NodeNonlocal, NodeExpr, NodePass, NodeBreak, NodeContinue,
		NodePrint, NodeExec:
		return true
	default:
		return false
	}
}

// IsScope reports whether the node opens a new lexical scope.
func (n *Node) IsScope() bool {
	switch n.Type {
	case NodeModule, NodeFunctionDef, NodeAsyncFunctionDef, NodeLambda, NodeClassDef,
		NodeListComp, NodeSetComp, NodeDictComp, NodeGeneratorExp:
		return true
	default:
		return false
	}
}

// IsComprehension reports whether the node is a comprehension or generator expression.
func (n *Node) IsComprehension() bool {
	switch n.Type {
	case NodeListComp, NodeSetComp, NodeDictComp, NodeGeneratorExp:
		return true
	default:
		return false
	}
}

// String returns a string representation of the node
func (n *Node) String() string {
	if n.Name != "" {
		return fmt.Sprintf("%s(%s)", n.Type, n.Name)
	}
	if n.Value != nil {
		if _, ok := n.Value.(*Node); !ok {
			return fmt.Sprintf("%s(%v)", n.Type, n.Value)
		}
	}
	return string(n.Type)
}

// Walk traverses the AST using depth-first search
func (n *Node) Walk(visitor func(*Node) bool) {
	if n == nil || !visitor(n) {
		return
	}
	for _, child := range n.GetChildren() {
		child.Walk(visitor)
	}
}

// Find finds all nodes matching a predicate
func (n *Node) Find(predicate func(*Node) bool) []*Node {
	var results []*Node
	n.Walk(func(node *Node) bool {
		if predicate(node) {
			results = append(results, node)
		}
		return true
	})
	return results
}

// FindByType finds all nodes of a specific type
func (n *Node) FindByType(nodeType NodeType) []*Node {
	return n.Find(func(node *Node) bool {
		return node.Type == nodeType
	})
}

// GetParentOfType finds the nearest parent of a specific type
func (n *Node) GetParentOfType(nodeType NodeType) *Node {
	for current := n.Parent; current != nil; current = current.Parent {
		if current.Type == nodeType {
			return current
		}
	}
	return nil
}
