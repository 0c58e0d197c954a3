// Package parser turns Python source into the AST consumed by the scope
// classifier and the CFG builder.
//
// Parsing is done by tree-sitter; ASTBuilder then folds the concrete syntax
// tree into *Node values shaped for lowering: chained comparisons keep all
// their operators, elif chains become nested If nodes, call splats are
// explicit, and Python 2 print/exec statements are kept as statements.
//
// Basic usage:
//
//	p := parser.New()
//	result, err := p.ParseNamed(ctx, "mod.py", source)
//	if err != nil {
//	    // *SyntaxError carries file, line, column and enclosing function
//	}
//	// result.AST is the module node
package parser
