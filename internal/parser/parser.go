package parser

import (
	"context"
	"fmt"
	"io"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// Parser provides Python code parsing capabilities using tree-sitter
type Parser struct {
	parser *sitter.Parser
}

// New creates a new Parser instance with Python grammar
func New() *Parser {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	return &Parser{
		parser: parser,
	}
}

// ParseResult represents the result of parsing Python code
type ParseResult struct {
	Tree       *sitter.Tree
	RootNode   *sitter.Node
	SourceCode []byte
	AST        *Node
}

// SyntaxError reports the first malformed region found by tree-sitter.
type SyntaxError struct {
	File     string
	Line     int
	Col      int
	Function string // enclosing function, empty at module level
	Text     string
}

func (e *SyntaxError) Error() string {
	where := e.File
	if where == "" {
		where = "<source>"
	}
	msg := fmt.Sprintf("%s:%d:%d: invalid syntax", where, e.Line, e.Col)
	if e.Function != "" {
		msg += fmt.Sprintf(" in function %s", e.Function)
	}
	if e.Text != "" {
		msg += fmt.Sprintf(" near %q", e.Text)
	}
	return msg
}

// Parse parses Python source code and returns the AST
func (p *Parser) Parse(ctx context.Context, source []byte) (*ParseResult, error) {
	return p.ParseNamed(ctx, "", source)
}

// ParseNamed parses source and stamps every AST location with file.
func (p *Parser) ParseNamed(ctx context.Context, file string, source []byte) (*ParseResult, error) {
	tree, err := p.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse source: %w", err)
	}

	rootNode := tree.RootNode()
	if rootNode.HasError() {
		return nil, p.syntaxError(file, rootNode, source)
	}

	builder := NewASTBuilder(source)
	builder.file = file
	ast, err := builder.Build(tree)
	if err != nil {
		return nil, err
	}

	return &ParseResult{
		Tree:       tree,
		RootNode:   rootNode,
		SourceCode: source,
		AST:        ast,
	}, nil
}

// ParseFile parses a Python file from a reader
func (p *Parser) ParseFile(ctx context.Context, file string, reader io.Reader) (*ParseResult, error) {
	source, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read source: %w", err)
	}

	return p.ParseNamed(ctx, file, source)
}

// WalkTree traverses the AST and calls the visitor function for each node
func (p *Parser) WalkTree(node *sitter.Node, visitor func(*sitter.Node) error) error {
	if err := visitor(node); err != nil {
		return err
	}

	childCount := int(node.ChildCount())
	for i := 0; i < childCount; i++ {
		child := node.Child(i)
		if err := p.WalkTree(child, visitor); err != nil {
			return err
		}
	}

	return nil
}

var errStopWalk = fmt.Errorf("stop")

func (p *Parser) syntaxError(file string, root *sitter.Node, source []byte) *SyntaxError {
	var bad *sitter.Node
	_ = p.WalkTree(root, func(n *sitter.Node) error {
		if n.IsError() || n.IsMissing() {
			bad = n
			return errStopWalk
		}
		return nil
	})
	if bad == nil {
		bad = root
	}

	start := bad.StartPoint()
	serr := &SyntaxError{
		File: file,
		Line: int(start.Row) + 1,
		Col:  int(start.Column),
	}
	text := bad.Content(source)
	if len(text) > 40 {
		text = text[:40]
	}
	serr.Text = text

	for n := bad.Parent(); n != nil; n = n.Parent() {
		if n.Type() == "function_definition" {
			if name := n.ChildByFieldName("name"); name != nil {
				serr.Function = name.Content(source)
			}
			break
		}
	}
	return serr
}
