package parser

import (
	"fmt"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// ASTBuilder converts tree-sitter parse trees to internal AST representation
type ASTBuilder struct {
	source []byte
	file   string
}

// NewASTBuilder creates a new AST builder
func NewASTBuilder(source []byte) *ASTBuilder {
	return &ASTBuilder{
		source: source,
	}
}

// Build converts a tree-sitter tree to internal AST
func (b *ASTBuilder) Build(tree *sitter.Tree) (*Node, error) {
	if tree == nil {
		return nil, fmt.Errorf("tree is nil")
	}

	rootNode := tree.RootNode()
	if rootNode == nil {
		return nil, fmt.Errorf("root node is nil")
	}

	module := b.newNode(NodeModule, rootNode)
	for _, stmt := range b.buildStatements(rootNode) {
		module.AddToBody(stmt)
	}
	return module, nil
}

// buildStatements builds every statement child of a module or block
func (b *ASTBuilder) buildStatements(tsNode *sitter.Node) []*Node {
	var stmts []*Node
	for _, child := range b.namedChildren(tsNode) {
		if stmt := b.buildStatement(child); stmt != nil {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

// buildSuite builds the statements of a block-valued field
func (b *ASTBuilder) buildSuite(tsNode *sitter.Node, field string) []*Node {
	suite := tsNode.ChildByFieldName(field)
	if suite == nil {
		return nil
	}
	return b.buildStatements(suite)
}

// buildStatement dispatches on the tree-sitter statement type
func (b *ASTBuilder) buildStatement(tsNode *sitter.Node) *Node {
	switch tsNode.Type() {
	case "expression_statement":
		return b.buildExpressionStatement(tsNode)
	case "function_definition":
		return b.buildFunctionDef(tsNode)
	case "class_definition":
		return b.buildClassDef(tsNode)
	case "decorated_definition":
		return b.buildDecoratedDefinition(tsNode)
	case "if_statement":
		return b.buildIfStatement(tsNode)
	case "for_statement":
		return b.buildForStatement(tsNode)
	case "while_statement":
		return b.buildWhileStatement(tsNode)
	case "try_statement":
		return b.buildTryStatement(tsNode)
	case "with_statement":
		return b.buildWithStatement(tsNode)
	case "return_statement":
		node := b.newNode(NodeReturn, tsNode)
		if children := b.namedChildren(tsNode); len(children) > 0 {
			node.Value = b.buildExpr(children[0])
		}
		return node
	case "delete_statement":
		node := b.newNode(NodeDelete, tsNode)
		for _, child := range b.namedChildren(tsNode) {
			if child.Type() == "expression_list" {
				for _, elt := range b.namedChildren(child) {
					node.Targets = append(node.Targets, b.buildExpr(elt))
				}
				continue
			}
			node.Targets = append(node.Targets, b.buildExpr(child))
		}
		return node
	case "raise_statement":
		return b.buildRaiseStatement(tsNode)
	case "assert_statement":
		node := b.newNode(NodeAssert, tsNode)
		children := b.namedChildren(tsNode)
		if len(children) > 0 {
			node.Test = b.buildExpr(children[0])
		}
		if len(children) > 1 {
			node.Value = b.buildExpr(children[1])
		}
		return node
	case "import_statement":
		return b.buildImportStatement(tsNode)
	case "import_from_statement", "future_import_statement":
		return b.buildImportFromStatement(tsNode)
	case "global_statement", "nonlocal_statement":
		node := b.newNode(NodeGlobal, tsNode)
		if tsNode.Type() == "nonlocal_statement" {
			node.Type = NodeNonlocal
		}
		for _, child := range b.namedChildren(tsNode) {
			if child.Type() == "identifier" {
				node.Names = append(node.Names, b.text(child))
			}
		}
		return node
	case "pass_statement":
		return b.newNode(NodePass, tsNode)
	case "break_statement":
		return b.newNode(NodeBreak, tsNode)
	case "continue_statement":
		return b.newNode(NodeContinue, tsNode)
	case "print_statement":
		return b.buildPrintStatement(tsNode)
	case "exec_statement":
		node := b.newNode(NodeExec, tsNode)
		if code := tsNode.ChildByFieldName("code"); code != nil {
			node.Value = b.buildExpr(code)
		}
		if rest := b.namedChildren(tsNode); len(rest) > 1 {
			for _, child := range rest[1:] {
				node.Args = append(node.Args, b.buildExpr(child))
			}
		}
		return node
	case "match_statement":
		node := b.newNode(NodeMatch, tsNode)
		if subject := tsNode.ChildByFieldName("subject"); subject != nil {
			node.Test = b.buildExpr(subject)
		}
		return node
	default:
		return b.newNode(NodeType(tsNode.Type()), tsNode)
	}
}

// buildExpressionStatement builds an expression statement node. Assignments arrive here too.
func (b *ASTBuilder) buildExpressionStatement(tsNode *sitter.Node) *Node {
	children := b.namedChildren(tsNode)
	if len(children) == 0 {
		return nil
	}
	switch children[0].Type() {
	case "assignment":
		return b.buildAssignment(children[0])
	case "augmented_assignment":
		node := b.newNode(NodeAugAssign, children[0])
		node.Targets = []*Node{b.buildExpr(children[0].ChildByFieldName("left"))}
		node.Op = strings.TrimSuffix(b.text(children[0].ChildByFieldName("operator")), "=")
		node.Value = b.buildExpr(children[0].ChildByFieldName("right"))
		return node
	}

	node := b.newNode(NodeExpr, tsNode)
	if len(children) == 1 {
		node.Value = b.buildExpr(children[0])
		return node
	}
	tuple := b.newNode(NodeTuple, tsNode)
	for _, child := range children {
		tuple.AddChild(b.buildExpr(child))
	}
	node.Value = tuple
	return node
}

// buildAssignment flattens chained assignments into one node with several targets
func (b *ASTBuilder) buildAssignment(tsNode *sitter.Node) *Node {
	node := b.newNode(NodeAssign, tsNode)
	for cur := tsNode; cur != nil; {
		node.Targets = append(node.Targets, b.buildExpr(cur.ChildByFieldName("left")))
		if cur.ChildByFieldName("type") != nil {
			node.Type = NodeAnnAssign
		}
		right := cur.ChildByFieldName("right")
		if right == nil {
			break
		}
		if right.Type() == "assignment" {
			cur = right
			continue
		}
		node.Value = b.buildExpr(right)
		break
	}
	return node
}

// buildFunctionDef builds a function definition node
func (b *ASTBuilder) buildFunctionDef(tsNode *sitter.Node) *Node {
	node := b.newNode(NodeFunctionDef, tsNode)
	if b.hasChildOfType(tsNode, "async") {
		node.Type = NodeAsyncFunctionDef
	}
	if nameNode := tsNode.ChildByFieldName("name"); nameNode != nil {
		node.Name = b.text(nameNode)
	}
	if params := tsNode.ChildByFieldName("parameters"); params != nil {
		for _, arg := range b.buildParameters(params) {
			arg.Parent = node
			node.Args = append(node.Args, arg)
		}
	}
	for _, stmt := range b.buildSuite(tsNode, "body") {
		node.AddToBody(stmt)
	}
	return node
}

// buildClassDef builds a class definition node
func (b *ASTBuilder) buildClassDef(tsNode *sitter.Node) *Node {
	node := b.newNode(NodeClassDef, tsNode)
	if nameNode := tsNode.ChildByFieldName("name"); nameNode != nil {
		node.Name = b.text(nameNode)
	}
	if superclasses := tsNode.ChildByFieldName("superclasses"); superclasses != nil {
		node.Bases, node.Keywords = b.buildCallArguments(superclasses)
	}
	for _, stmt := range b.buildSuite(tsNode, "body") {
		node.AddToBody(stmt)
	}
	return node
}

// buildDecoratedDefinition attaches decorators to the function or class they wrap
func (b *ASTBuilder) buildDecoratedDefinition(tsNode *sitter.Node) *Node {
	definition := tsNode.ChildByFieldName("definition")
	if definition == nil {
		return nil
	}
	def := b.buildStatement(definition)
	for _, child := range b.namedChildren(tsNode) {
		if child.Type() != "decorator" {
			continue
		}
		dec := b.newNode(NodeDecorator, child)
		if inner := b.namedChildren(child); len(inner) > 0 {
			dec.Value = b.buildExpr(inner[0])
		}
		dec.Parent = def
		def.Decorator = append(def.Decorator, dec)
	}
	return def
}

// buildIfStatement turns elif clauses into nested If nodes in Orelse
func (b *ASTBuilder) buildIfStatement(tsNode *sitter.Node) *Node {
	node := b.newNode(NodeIf, tsNode)
	node.Test = b.buildExpr(tsNode.ChildByFieldName("condition"))
	for _, stmt := range b.buildSuite(tsNode, "consequence") {
		node.AddToBody(stmt)
	}

	tail := node
	childCount := int(tsNode.ChildCount())
	for i := 0; i < childCount; i++ {
		if tsNode.FieldNameForChild(i) != "alternative" {
			continue
		}
		alt := tsNode.Child(i)
		switch alt.Type() {
		case "elif_clause":
			elif := b.newNode(NodeIf, alt)
			elif.Test = b.buildExpr(alt.ChildByFieldName("condition"))
			for _, stmt := range b.buildSuite(alt, "consequence") {
				elif.AddToBody(stmt)
			}
			elif.Parent = tail
			tail.Orelse = []*Node{elif}
			tail = elif
		case "else_clause":
			tail.Orelse = b.parented(tail, b.buildSuite(alt, "body"))
		}
	}
	return node
}

// buildForStatement builds a for loop node
func (b *ASTBuilder) buildForStatement(tsNode *sitter.Node) *Node {
	node := b.newNode(NodeFor, tsNode)
	if b.hasChildOfType(tsNode, "async") {
		node.Type = NodeAsyncFor
	}
	node.Targets = []*Node{b.buildExpr(tsNode.ChildByFieldName("left"))}
	node.Iter = b.buildExpr(tsNode.ChildByFieldName("right"))
	for _, stmt := range b.buildSuite(tsNode, "body") {
		node.AddToBody(stmt)
	}
	if alt := tsNode.ChildByFieldName("alternative"); alt != nil {
		node.Orelse = b.parented(node, b.buildSuite(alt, "body"))
	}
	return node
}

// buildWhileStatement builds a while loop node
func (b *ASTBuilder) buildWhileStatement(tsNode *sitter.Node) *Node {
	node := b.newNode(NodeWhile, tsNode)
	node.Test = b.buildExpr(tsNode.ChildByFieldName("condition"))
	for _, stmt := range b.buildSuite(tsNode, "body") {
		node.AddToBody(stmt)
	}
	if alt := tsNode.ChildByFieldName("alternative"); alt != nil {
		node.Orelse = b.parented(node, b.buildSuite(alt, "body"))
	}
	return node
}

// buildTryStatement builds a try statement node
func (b *ASTBuilder) buildTryStatement(tsNode *sitter.Node) *Node {
	node := b.newNode(NodeTry, tsNode)
	for _, stmt := range b.buildSuite(tsNode, "body") {
		node.AddToBody(stmt)
	}

	for _, child := range b.namedChildren(tsNode) {
		switch child.Type() {
		case "except_clause", "except_group_clause":
			handler := b.buildExceptHandler(child)
			handler.Parent = node
			node.Handlers = append(node.Handlers, handler)
		case "else_clause":
			node.Orelse = b.parented(node, b.buildSuite(child, "body"))
		case "finally_clause":
			// finally_clause has no body field; the block is its only named child
			for _, inner := range b.namedChildren(child) {
				if inner.Type() == "block" {
					node.Finalbody = b.parented(node, b.buildStatements(inner))
				}
			}
		}
	}
	return node
}

// buildExceptHandler handles both `except T as n` and the older `except T, n` forms
func (b *ASTBuilder) buildExceptHandler(tsNode *sitter.Node) *Node {
	node := b.newNode(NodeExceptHandler, tsNode)
	for _, child := range b.namedChildren(tsNode) {
		switch child.Type() {
		case "block":
			for _, stmt := range b.buildStatements(child) {
				node.AddToBody(stmt)
			}
		case "as_pattern":
			if inner := b.namedChildren(child); len(inner) > 0 {
				node.Value = b.buildExpr(inner[0])
			}
			if alias := child.ChildByFieldName("alias"); alias != nil {
				node.Name = b.identifierText(alias)
			}
		default:
			if node.Value == nil {
				node.Value = b.buildExpr(child)
			} else if node.Name == "" {
				node.Name = b.identifierText(child)
			}
		}
	}
	return node
}

// buildWithStatement builds a with statement node
func (b *ASTBuilder) buildWithStatement(tsNode *sitter.Node) *Node {
	node := b.newNode(NodeWith, tsNode)
	if b.hasChildOfType(tsNode, "async") {
		node.Type = NodeAsyncWith
	}
	for _, child := range b.namedChildren(tsNode) {
		if child.Type() != "with_clause" {
			continue
		}
		for _, item := range b.namedChildren(child) {
			if item.Type() == "with_item" {
				node.AddChild(b.buildWithItem(item))
			}
		}
	}
	for _, stmt := range b.buildSuite(tsNode, "body") {
		node.AddToBody(stmt)
	}
	return node
}

// buildWithItem builds a with item node
func (b *ASTBuilder) buildWithItem(tsNode *sitter.Node) *Node {
	node := b.newNode(NodeWithItem, tsNode)
	value := tsNode.ChildByFieldName("value")
	if value != nil && value.Type() == "as_pattern" {
		if inner := b.namedChildren(value); len(inner) > 0 {
			node.Value = b.buildExpr(inner[0])
		}
		if alias := value.ChildByFieldName("alias"); alias != nil {
			node.Targets = []*Node{b.buildExpr(b.unwrapPatternTarget(alias))}
		}
		return node
	}
	if value != nil {
		node.Value = b.buildExpr(value)
	}
	if alias := tsNode.ChildByFieldName("alias"); alias != nil {
		node.Targets = []*Node{b.buildExpr(alias)}
	}
	return node
}

// buildRaiseStatement builds a raise statement node
func (b *ASTBuilder) buildRaiseStatement(tsNode *sitter.Node) *Node {
	node := b.newNode(NodeRaise, tsNode)
	childCount := int(tsNode.ChildCount())
	for i := 0; i < childCount; i++ {
		child := tsNode.Child(i)
		if !child.IsNamed() || child.Type() == "comment" {
			continue
		}
		if tsNode.FieldNameForChild(i) == "cause" {
			node.Right = b.buildExpr(child)
		} else if node.Value == nil {
			node.Value = b.buildExpr(child)
		}
	}
	return node
}

// buildImportStatement builds an import statement node
func (b *ASTBuilder) buildImportStatement(tsNode *sitter.Node) *Node {
	node := b.newNode(NodeImport, tsNode)
	childCount := int(tsNode.ChildCount())
	for i := 0; i < childCount; i++ {
		if tsNode.FieldNameForChild(i) == "name" {
			node.AddChild(b.buildAlias(tsNode.Child(i)))
		}
	}
	return node
}

// buildImportFromStatement builds an import from statement node
func (b *ASTBuilder) buildImportFromStatement(tsNode *sitter.Node) *Node {
	node := b.newNode(NodeImportFrom, tsNode)
	if tsNode.Type() == "future_import_statement" {
		node.Module = "__future__"
	}

	if moduleNode := tsNode.ChildByFieldName("module_name"); moduleNode != nil {
		if moduleNode.Type() == "relative_import" {
			for _, child := range b.namedChildren(moduleNode) {
				switch child.Type() {
				case "import_prefix":
					node.Level = len(b.text(child))
				case "dotted_name":
					node.Module = b.text(child)
				}
			}
		} else {
			node.Module = b.text(moduleNode)
		}
	}

	childCount := int(tsNode.ChildCount())
	for i := 0; i < childCount; i++ {
		child := tsNode.Child(i)
		if child.Type() == "wildcard_import" {
			node.Names = append(node.Names, "*")
			continue
		}
		if tsNode.FieldNameForChild(i) == "name" {
			alias := b.buildAlias(child)
			node.Names = append(node.Names, alias.Name)
			node.AddChild(alias)
		}
	}
	return node
}

// buildAlias builds an import alias node
func (b *ASTBuilder) buildAlias(tsNode *sitter.Node) *Node {
	node := b.newNode(NodeAlias, tsNode)
	if tsNode.Type() == "aliased_import" {
		node.Name = b.text(tsNode.ChildByFieldName("name"))
		if aliasNode := tsNode.ChildByFieldName("alias"); aliasNode != nil {
			node.Value = b.text(aliasNode)
		}
		return node
	}
	node.Name = b.text(tsNode)
	return node
}

// buildPrintStatement builds a Python 2 print statement node
func (b *ASTBuilder) buildPrintStatement(tsNode *sitter.Node) *Node {
	node := b.newNode(NodePrint, tsNode)
	childCount := int(tsNode.ChildCount())
	for i := 0; i < childCount; i++ {
		child := tsNode.Child(i)
		switch {
		case child.Type() == "chevron":
			if inner := b.namedChildren(child); len(inner) > 0 {
				node.Value = b.buildExpr(inner[0])
			}
		case tsNode.FieldNameForChild(i) == "argument":
			node.Args = append(node.Args, b.buildExpr(child))
		}
	}
	if childCount > 0 && tsNode.Child(childCount-1).Type() == "," {
		node.Op = ","
	}
	return node
}

// buildParameters builds function and lambda parameters
func (b *ASTBuilder) buildParameters(tsNode *sitter.Node) []*Node {
	var params []*Node
	keywordOnly := 0

	for _, child := range b.namedChildren(tsNode) {
		arg := b.newNode(NodeArg, child)
		arg.Level = keywordOnly
		switch child.Type() {
		case "identifier":
			arg.Name = b.text(child)
		case "default_parameter", "typed_default_parameter":
			arg.Name = b.text(child.ChildByFieldName("name"))
			arg.Value = b.buildExpr(child.ChildByFieldName("value"))
		case "typed_parameter":
			inner := b.namedChildren(child)
			if len(inner) == 0 {
				continue
			}
			b.fillSplat(arg, inner[0])
		case "list_splat_pattern", "dictionary_splat_pattern":
			b.fillSplat(arg, child)
		case "keyword_separator":
			keywordOnly = 1
			continue
		default:
			// positional_separator and annotations carry nothing for lowering
			continue
		}
		if arg.Op == "*" {
			keywordOnly = 1
		}
		params = append(params, arg)
	}

	return params
}

func (b *ASTBuilder) fillSplat(arg *Node, tsNode *sitter.Node) {
	switch tsNode.Type() {
	case "list_splat_pattern":
		arg.Op = "*"
		arg.Name = b.identifierText(tsNode)
	case "dictionary_splat_pattern":
		arg.Op = "**"
		arg.Name = b.identifierText(tsNode)
	default:
		arg.Name = b.text(tsNode)
	}
}

// buildCallArguments builds call arguments and keywords
func (b *ASTBuilder) buildCallArguments(tsNode *sitter.Node) ([]*Node, []*Node) {
	var args, keywords []*Node

	for _, child := range b.namedChildren(tsNode) {
		switch child.Type() {
		case "keyword_argument":
			kw := b.newNode(NodeKeyword, child)
			kw.Name = b.text(child.ChildByFieldName("name"))
			kw.Value = b.buildExpr(child.ChildByFieldName("value"))
			keywords = append(keywords, kw)
		case "dictionary_splat":
			kw := b.newNode(NodeKeyword, child)
			kw.Value = b.buildExpr(b.namedChildren(child)[0])
			keywords = append(keywords, kw)
		default:
			args = append(args, b.buildExpr(child))
		}
	}

	return args, keywords
}

// buildExpr builds an expression node
func (b *ASTBuilder) buildExpr(tsNode *sitter.Node) *Node {
	if tsNode == nil {
		return nil
	}

	switch tsNode.Type() {
	case "identifier":
		node := b.newNode(NodeName, tsNode)
		node.Name = b.text(tsNode)
		return node
	case "integer", "float", "true", "false", "none", "ellipsis":
		return b.buildNumberOrSingleton(tsNode)
	case "string":
		return b.buildString(tsNode)
	case "concatenated_string":
		return b.buildConcatenatedString(tsNode)
	case "parenthesized_expression", "type", "expression_statement":
		if inner := b.namedChildren(tsNode); len(inner) > 0 {
			return b.buildExpr(inner[0])
		}
		return b.newNode(NodeTuple, tsNode)
	case "binary_operator":
		node := b.newNode(NodeBinOp, tsNode)
		node.Left = b.buildExpr(tsNode.ChildByFieldName("left"))
		node.Op = b.text(tsNode.ChildByFieldName("operator"))
		node.Right = b.buildExpr(tsNode.ChildByFieldName("right"))
		return node
	case "unary_operator":
		node := b.newNode(NodeUnaryOp, tsNode)
		node.Op = b.text(tsNode.ChildByFieldName("operator"))
		node.Value = b.buildExpr(tsNode.ChildByFieldName("argument"))
		return node
	case "not_operator":
		node := b.newNode(NodeUnaryOp, tsNode)
		node.Op = "not"
		node.Value = b.buildExpr(tsNode.ChildByFieldName("argument"))
		return node
	case "boolean_operator":
		node := b.newNode(NodeBoolOp, tsNode)
		node.Op = b.text(tsNode.ChildByFieldName("operator"))
		node.AddChild(b.buildExpr(tsNode.ChildByFieldName("left")))
		node.AddChild(b.buildExpr(tsNode.ChildByFieldName("right")))
		return node
	case "comparison_operator":
		return b.buildCompare(tsNode)
	case "conditional_expression":
		node := b.newNode(NodeIfExp, tsNode)
		parts := b.namedChildren(tsNode)
		if len(parts) == 3 {
			node.AddToBody(b.buildExpr(parts[0]))
			node.Test = b.buildExpr(parts[1])
			node.Orelse = []*Node{b.buildExpr(parts[2])}
		}
		return node
	case "named_expression":
		node := b.newNode(NodeNamedExpr, tsNode)
		node.Targets = []*Node{b.buildExpr(tsNode.ChildByFieldName("name"))}
		node.Value = b.buildExpr(tsNode.ChildByFieldName("value"))
		return node
	case "lambda":
		node := b.newNode(NodeLambda, tsNode)
		node.Name = "<lambda>"
		if params := tsNode.ChildByFieldName("parameters"); params != nil {
			node.Args = b.buildParameters(params)
		}
		node.AddToBody(b.buildExpr(tsNode.ChildByFieldName("body")))
		return node
	case "call":
		node := b.newNode(NodeCall, tsNode)
		node.Value = b.buildExpr(tsNode.ChildByFieldName("function"))
		if arguments := tsNode.ChildByFieldName("arguments"); arguments != nil {
			if arguments.Type() == "generator_expression" {
				node.Args = []*Node{b.buildExpr(arguments)}
			} else {
				node.Args, node.Keywords = b.buildCallArguments(arguments)
			}
		}
		return node
	case "attribute":
		node := b.newNode(NodeAttribute, tsNode)
		node.Value = b.buildExpr(tsNode.ChildByFieldName("object"))
		node.Name = b.text(tsNode.ChildByFieldName("attribute"))
		return node
	case "subscript":
		return b.buildSubscript(tsNode)
	case "slice":
		return b.buildSlice(tsNode)
	case "list", "list_pattern":
		return b.buildSequence(NodeList, tsNode)
	case "tuple", "tuple_pattern", "expression_list", "pattern_list":
		return b.buildSequence(NodeTuple, tsNode)
	case "set":
		return b.buildSequence(NodeSet, tsNode)
	case "list_splat", "list_splat_pattern":
		node := b.newNode(NodeStarred, tsNode)
		node.Op = "*"
		if inner := b.namedChildren(tsNode); len(inner) > 0 {
			node.Value = b.buildExpr(inner[0])
		}
		return node
	case "dictionary":
		return b.buildDict(tsNode)
	case "list_comprehension":
		return b.buildComprehension(NodeListComp, tsNode)
	case "set_comprehension":
		return b.buildComprehension(NodeSetComp, tsNode)
	case "dictionary_comprehension":
		return b.buildComprehension(NodeDictComp, tsNode)
	case "generator_expression":
		return b.buildComprehension(NodeGeneratorExp, tsNode)
	case "yield":
		node := b.newNode(NodeYield, tsNode)
		if b.hasChildOfType(tsNode, "from") {
			node.Type = NodeYieldFrom
		}
		if inner := b.namedChildren(tsNode); len(inner) > 0 {
			node.Value = b.buildExpr(inner[0])
		}
		return node
	case "await":
		node := b.newNode(NodeAwait, tsNode)
		if inner := b.namedChildren(tsNode); len(inner) > 0 {
			node.Value = b.buildExpr(inner[0])
		}
		return node
	case "assignment":
		// only reachable through parenthesized statement-like constructs
		return b.buildAssignment(tsNode)
	default:
		return b.newNode(NodeType(tsNode.Type()), tsNode)
	}
}

// buildNumberOrSingleton builds numeric, boolean, None and Ellipsis constants
func (b *ASTBuilder) buildNumberOrSingleton(tsNode *sitter.Node) *Node {
	node := b.newNode(NodeConstant, tsNode)
	text := strings.ReplaceAll(b.text(tsNode), "_", "")

	switch tsNode.Type() {
	case "integer":
		if strings.HasSuffix(text, "j") || strings.HasSuffix(text, "J") {
			node.Value = Imaginary(text)
			break
		}
		text = strings.TrimRight(text, "lL")
		if val, err := strconv.ParseInt(text, 0, 64); err == nil {
			node.Value = val
		} else {
			node.Value = BigInt(text)
		}
	case "float":
		if strings.HasSuffix(text, "j") || strings.HasSuffix(text, "J") {
			node.Value = Imaginary(text)
			break
		}
		if val, err := strconv.ParseFloat(text, 64); err == nil {
			node.Value = val
		} else {
			node.Value = text
		}
	case "true":
		node.Value = true
	case "false":
		node.Value = false
	case "none":
		node.Value = nil
	case "ellipsis":
		node.Value = Ellipsis{}
	}
	return node
}

// buildString builds a plain string constant, or a JoinedStr for f-strings
func (b *ASTBuilder) buildString(tsNode *sitter.Node) *Node {
	text := b.text(tsNode)
	quote := strings.IndexAny(text, `'"`)
	if quote < 0 {
		quote = 0
	}
	prefix := strings.ToLower(text[:quote])

	if b.hasChildOfType(tsNode, "interpolation") {
		node := b.newNode(NodeJoinedStr, tsNode)
		b.appendStringParts(node, tsNode)
		return node
	}

	node := b.newNode(NodeConstant, tsNode)
	body := text[quote:]
	delim := 1
	if strings.HasPrefix(body, `"""`) || strings.HasPrefix(body, `'''`) {
		delim = 3
	}
	if len(body) >= 2*delim {
		body = body[delim : len(body)-delim]
	}
	if strings.Contains(prefix, "b") {
		node.Value = Bytes(body)
	} else {
		node.Value = body
	}
	return node
}

// appendStringParts walks an f-string, emitting literal chunks and formatted values
func (b *ASTBuilder) appendStringParts(node *Node, tsNode *sitter.Node) {
	childCount := int(tsNode.ChildCount())
	for i := 0; i < childCount; i++ {
		child := tsNode.Child(i)
		switch child.Type() {
		case "interpolation":
			fv := b.newNode(NodeFormattedValue, child)
			for _, part := range b.namedChildren(child) {
				switch part.Type() {
				case "type_conversion":
					fv.Op = strings.TrimPrefix(b.text(part), "!")
				case "format_specifier":
					spec := b.newNode(NodeJoinedStr, part)
					b.appendStringParts(spec, part)
					fv.AddChild(spec)
				default:
					if fv.Value == nil {
						fv.Value = b.buildExpr(part)
					}
				}
			}
			node.AddChild(fv)
		case "string_content", "escape_sequence":
			lit := b.newNode(NodeConstant, child)
			lit.Value = b.text(child)
			node.AddChild(lit)
		}
	}
}

// buildConcatenatedString folds adjacent literals; any f-string part makes the result a JoinedStr
func (b *ASTBuilder) buildConcatenatedString(tsNode *sitter.Node) *Node {
	var parts []*Node
	joined := false
	for _, child := range b.namedChildren(tsNode) {
		part := b.buildString(child)
		if part.Type == NodeJoinedStr {
			joined = true
		}
		parts = append(parts, part)
	}

	if joined {
		node := b.newNode(NodeJoinedStr, tsNode)
		for _, part := range parts {
			if part.Type == NodeJoinedStr {
				for _, c := range part.Children {
					node.AddChild(c)
				}
				continue
			}
			node.AddChild(part)
		}
		return node
	}

	node := b.newNode(NodeConstant, tsNode)
	var sb strings.Builder
	isBytes := false
	for _, part := range parts {
		switch v := part.Value.(type) {
		case string:
			sb.WriteString(v)
		case Bytes:
			isBytes = true
			sb.WriteString(string(v))
		}
	}
	if isBytes {
		node.Value = Bytes(sb.String())
	} else {
		node.Value = sb.String()
	}
	return node
}

// buildCompare keeps every operator of a chained comparison
func (b *ASTBuilder) buildCompare(tsNode *sitter.Node) *Node {
	node := b.newNode(NodeCompare, tsNode)
	childCount := int(tsNode.ChildCount())
	for i := 0; i < childCount; i++ {
		child := tsNode.Child(i)
		if tsNode.FieldNameForChild(i) == "operators" {
			op := strings.Join(strings.Fields(b.text(child)), " ")
			if op == "<>" {
				op = "!="
			}
			node.Ops = append(node.Ops, op)
			continue
		}
		if !child.IsNamed() || child.Type() == "comment" {
			continue
		}
		if node.Left == nil {
			node.Left = b.buildExpr(child)
		} else {
			node.AddChild(b.buildExpr(child))
		}
	}
	return node
}

// buildSubscript packs multiple subscripts into a tuple index
func (b *ASTBuilder) buildSubscript(tsNode *sitter.Node) *Node {
	node := b.newNode(NodeSubscript, tsNode)
	node.Value = b.buildExpr(tsNode.ChildByFieldName("value"))

	var indices []*Node
	childCount := int(tsNode.ChildCount())
	for i := 0; i < childCount; i++ {
		if tsNode.FieldNameForChild(i) == "subscript" {
			indices = append(indices, b.buildExpr(tsNode.Child(i)))
		}
	}
	if len(indices) == 1 {
		node.AddChild(indices[0])
	} else {
		tuple := b.newNode(NodeTuple, tsNode)
		for _, idx := range indices {
			tuple.AddChild(idx)
		}
		node.AddChild(tuple)
	}
	return node
}

// buildSlice builds a slice node
func (b *ASTBuilder) buildSlice(tsNode *sitter.Node) *Node {
	node := b.newNode(NodeSlice, tsNode)
	sliceArgs := []*Node{nil, nil, nil} // lower, upper, step
	argIndex := 0

	childCount := int(tsNode.ChildCount())
	for i := 0; i < childCount; i++ {
		child := tsNode.Child(i)
		if child.Type() == ":" {
			argIndex++
		} else if child.IsNamed() && child.Type() != "comment" && argIndex < 3 {
			sliceArgs[argIndex] = b.buildExpr(child)
		}
	}

	node.Left, node.Right = sliceArgs[0], sliceArgs[1]
	if sliceArgs[2] != nil {
		node.Value = sliceArgs[2]
	}
	return node
}

// buildSequence builds list, tuple and set displays and target patterns
func (b *ASTBuilder) buildSequence(nodeType NodeType, tsNode *sitter.Node) *Node {
	node := b.newNode(nodeType, tsNode)
	for _, child := range b.namedChildren(tsNode) {
		node.AddChild(b.buildExpr(child))
	}
	return node
}

// buildDict builds a dictionary display
func (b *ASTBuilder) buildDict(tsNode *sitter.Node) *Node {
	node := b.newNode(NodeDict, tsNode)
	for _, child := range b.namedChildren(tsNode) {
		item := b.newNode(NodeKeyword, child)
		switch child.Type() {
		case "pair":
			item.Left = b.buildExpr(child.ChildByFieldName("key"))
			item.Value = b.buildExpr(child.ChildByFieldName("value"))
		case "dictionary_splat":
			item.Value = b.buildExpr(b.namedChildren(child)[0])
		default:
			continue
		}
		node.AddChild(item)
	}
	return node
}

// buildComprehension extracts the element and the for/if clauses
func (b *ASTBuilder) buildComprehension(nodeType NodeType, tsNode *sitter.Node) *Node {
	node := b.newNode(nodeType, tsNode)

	if body := tsNode.ChildByFieldName("body"); body != nil {
		if body.Type() == "pair" {
			node.Left = b.buildExpr(body.ChildByFieldName("key"))
			node.Value = b.buildExpr(body.ChildByFieldName("value"))
		} else {
			node.Value = b.buildExpr(body)
		}
	}

	var current *Node
	for _, child := range b.namedChildren(tsNode) {
		switch child.Type() {
		case "for_in_clause":
			comp := b.newNode(NodeComprehension, child)
			if b.hasChildOfType(child, "async") {
				comp.Op = "async"
			}
			comp.Targets = []*Node{b.buildExpr(child.ChildByFieldName("left"))}

			var iters []*Node
			childCount := int(child.ChildCount())
			for i := 0; i < childCount; i++ {
				if child.FieldNameForChild(i) == "right" {
					iters = append(iters, b.buildExpr(child.Child(i)))
				}
			}
			if len(iters) == 1 {
				comp.Iter = iters[0]
			} else {
				tuple := b.newNode(NodeTuple, child)
				for _, it := range iters {
					tuple.AddChild(it)
				}
				comp.Iter = tuple
			}
			node.AddChild(comp)
			current = comp
		case "if_clause":
			if current == nil {
				continue
			}
			if inner := b.namedChildren(child); len(inner) > 0 {
				current.AddChild(b.buildExpr(inner[0]))
			}
		}
	}
	return node
}

// Utility methods...

func (b *ASTBuilder) newNode(nodeType NodeType, tsNode *sitter.Node) *Node {
	node := NewNode(nodeType)
	node.Location = b.getLocation(tsNode)
	return node
}

func (b *ASTBuilder) parented(parent *Node, nodes []*Node) []*Node {
	for _, n := range nodes {
		n.Parent = parent
	}
	return nodes
}

// getLocation extracts location information from a tree-sitter node
func (b *ASTBuilder) getLocation(tsNode *sitter.Node) Location {
	startPoint := tsNode.StartPoint()
	endPoint := tsNode.EndPoint()

	return Location{
		File:      b.file,
		StartLine: int(startPoint.Row) + 1,
		StartCol:  int(startPoint.Column),
		EndLine:   int(endPoint.Row) + 1,
		EndCol:    int(endPoint.Column),
	}
}

func (b *ASTBuilder) text(tsNode *sitter.Node) string {
	if tsNode == nil {
		return ""
	}
	return tsNode.Content(b.source)
}

// identifierText returns the first identifier inside a pattern, or the node text
func (b *ASTBuilder) identifierText(tsNode *sitter.Node) string {
	if tsNode.Type() == "identifier" {
		return b.text(tsNode)
	}
	for _, child := range b.namedChildren(tsNode) {
		if child.Type() == "identifier" {
			return b.text(child)
		}
	}
	return b.text(tsNode)
}

// unwrapPatternTarget strips the as_pattern_target wrapper used by newer grammars
func (b *ASTBuilder) unwrapPatternTarget(tsNode *sitter.Node) *sitter.Node {
	if tsNode.Type() == "as_pattern_target" {
		if inner := b.namedChildren(tsNode); len(inner) > 0 {
			return inner[0]
		}
	}
	return tsNode
}

// namedChildren returns named children, skipping comments
func (b *ASTBuilder) namedChildren(tsNode *sitter.Node) []*sitter.Node {
	var children []*sitter.Node
	count := int(tsNode.NamedChildCount())
	for i := 0; i < count; i++ {
		child := tsNode.NamedChild(i)
		if child != nil && child.Type() != "comment" && child.Type() != "line_continuation" {
			children = append(children, child)
		}
	}
	return children
}

// hasChildOfType checks if a node has a child of a specific type
func (b *ASTBuilder) hasChildOfType(tsNode *sitter.Node, childType string) bool {
	childCount := int(tsNode.ChildCount())
	for i := 0; i < childCount; i++ {
		child := tsNode.Child(i)
		if child != nil && child.Type() == childType {
			return true
		}
	}
	return false
}
