package scope

import (
	"fmt"
	"strings"

	"github.com/ludo-technologies/pyjit/internal/parser"
)

// Analyze builds the scope tree of a module and classifies every name.
func Analyze(module *parser.Node) (*Info, error) {
	if module == nil || module.Type != parser.NodeModule {
		return nil, fmt.Errorf("scope analysis needs a module node")
	}

	c := &classifier{info: &Info{
		File:   module.Location.File,
		byNode: map[*parser.Node]*Scope{},
	}}
	root := c.open(ModuleScope, "<module>", module, nil)
	c.info.Module = root
	c.stmts(root, module.Body)
	if c.err != nil {
		return nil, c.err
	}

	for _, s := range c.info.Scopes() {
		if err := c.resolve(s); err != nil {
			return nil, err
		}
	}
	for _, s := range c.info.Scopes() {
		s.assignCells()
	}
	for _, s := range c.info.Scopes() {
		if err := c.checkNameLookup(s); err != nil {
			return nil, err
		}
	}
	return c.info, nil
}

type classifier struct {
	info *Info
	err  error

	lookupPos map[*Scope]parser.Location
}

func (c *classifier) open(t Type, name string, node *parser.Node, parent *Scope) *Scope {
	s := newScope(t, name, node, parent)
	c.info.byNode[node] = s
	return s
}

func (c *classifier) fail(s *Scope, loc parser.Location, format string, args ...interface{}) {
	if c.err != nil {
		return
	}
	fn := ""
	for cur := s; cur != nil; cur = cur.Parent {
		if cur.IsFunctionLike() {
			fn = cur.QualifiedName()
			break
		}
	}
	c.err = &Error{Pos: loc, Function: fn, Msg: fmt.Sprintf(format, args...)}
}

func (s *Scope) bind(name string, loc parser.Location) {
	s.note(name, loc)
	s.bound[name] = true
}

func (s *Scope) use(name string, loc parser.Location) {
	s.note(name, loc)
	s.used[name] = true
}

func (c *classifier) stmts(s *Scope, stmts []*parser.Node) {
	for _, st := range stmts {
		c.stmt(s, st)
	}
}

func (c *classifier) stmt(s *Scope, n *parser.Node) {
	if n == nil {
		return
	}
	switch n.Type {
	case parser.NodeFunctionDef, parser.NodeAsyncFunctionDef:
		for _, d := range n.Decorator {
			c.expr(s, d.ValueNode())
		}
		c.defaults(s, n.Args)
		s.bind(n.Name, n.Location)
		fn := c.open(FunctionScope, n.Name, n, s)
		c.params(fn, n.Args)
		c.stmts(fn, n.Body)

	case parser.NodeClassDef:
		for _, d := range n.Decorator {
			c.expr(s, d.ValueNode())
		}
		for _, base := range n.Bases {
			c.expr(s, base)
		}
		for _, kw := range n.Keywords {
			c.expr(s, kw.ValueNode())
		}
		s.bind(n.Name, n.Location)
		cls := c.open(ClassScope, n.Name, n, s)
		c.stmts(cls, n.Body)

	case parser.NodeAssign, parser.NodeAnnAssign:
		c.expr(s, n.ValueNode())
		for _, t := range n.Targets {
			c.target(s, t)
		}

	case parser.NodeAugAssign:
		c.expr(s, n.ValueNode())
		for _, t := range n.Targets {
			if t.Type == parser.NodeName {
				s.use(t.Name, t.Location)
			}
			c.target(s, t)
		}

	case parser.NodeDelete:
		for _, t := range n.Targets {
			c.target(s, t)
		}

	case parser.NodeFor, parser.NodeAsyncFor:
		c.expr(s, n.Iter)
		for _, t := range n.Targets {
			c.target(s, t)
		}
		c.stmts(s, n.Body)
		c.stmts(s, n.Orelse)

	case parser.NodeWhile, parser.NodeIf:
		c.expr(s, n.Test)
		c.stmts(s, n.Body)
		c.stmts(s, n.Orelse)

	case parser.NodeWith, parser.NodeAsyncWith:
		for _, item := range n.Children {
			c.expr(s, item.ValueNode())
			for _, t := range item.Targets {
				c.target(s, t)
			}
		}
		c.stmts(s, n.Body)

	case parser.NodeTry:
		c.stmts(s, n.Body)
		for _, h := range n.Handlers {
			c.expr(s, h.ValueNode())
			if h.Name != "" {
				s.bind(h.Name, h.Location)
			}
			c.stmts(s, h.Body)
		}
		c.stmts(s, n.Orelse)
		c.stmts(s, n.Finalbody)

	case parser.NodeImport:
		for _, alias := range n.Children {
			name := strings.SplitN(alias.Name, ".", 2)[0]
			if as, ok := alias.Value.(string); ok && as != "" {
				name = as
			}
			s.bind(name, alias.Location)
		}

	case parser.NodeImportFrom:
		for _, name := range n.Names {
			if name == "*" {
				s.importStar = true
				c.markLookup(s, n.Location)
			}
		}
		for _, alias := range n.Children {
			name := alias.Name
			if as, ok := alias.Value.(string); ok && as != "" {
				name = as
			}
			s.bind(name, alias.Location)
		}

	case parser.NodeGlobal:
		for _, name := range n.Names {
			if s.isParam(name) {
				c.fail(s, n.Location, "name '%s' is parameter and global", name)
				return
			}
			if s.nonlocals[name] {
				c.fail(s, n.Location, "name '%s' is nonlocal and global", name)
				return
			}
			s.note(name, n.Location)
			s.globals[name] = true
		}

	case parser.NodeNonlocal:
		for _, name := range n.Names {
			if s.Type == ModuleScope {
				c.fail(s, n.Location, "nonlocal declaration not allowed at module level")
				return
			}
			if s.isParam(name) {
				c.fail(s, n.Location, "name '%s' is parameter and nonlocal", name)
				return
			}
			s.note(name, n.Location)
			s.nonlocals[name] = true
		}

	case parser.NodeExec:
		c.expr(s, n.ValueNode())
		for _, a := range n.Args {
			c.expr(s, a)
		}
		if len(n.Args) == 0 {
			s.bareExec = true
			c.markLookup(s, n.Location)
		}

	default:
		// Return, Raise, Assert, Expr, Print and the simple statements only read.
		for _, child := range n.GetChildren() {
			c.expr(s, child)
		}
	}
}

func (c *classifier) markLookup(s *Scope, loc parser.Location) {
	if c.lookupPos == nil {
		c.lookupPos = map[*Scope]parser.Location{}
	}
	if _, ok := c.lookupPos[s]; !ok {
		c.lookupPos[s] = loc
	}
}

func (s *Scope) isParam(name string) bool {
	for _, p := range s.Params {
		if p == name {
			return true
		}
	}
	return false
}

func (c *classifier) defaults(s *Scope, args []*parser.Node) {
	for _, arg := range args {
		c.expr(s, arg.ValueNode())
	}
}

func (c *classifier) params(s *Scope, args []*parser.Node) {
	for _, arg := range args {
		if arg.Name == "" {
			continue
		}
		s.Params = append(s.Params, arg.Name)
		s.bind(arg.Name, arg.Location)
		switch arg.Op {
		case "*":
			s.VarArg = arg.Name
		case "**":
			s.KwArg = arg.Name
		}
	}
}

// target records the names bound by an assignment target and the reads
// performed by attribute and subscript targets.
func (c *classifier) target(s *Scope, t *parser.Node) {
	if t == nil {
		return
	}
	switch t.Type {
	case parser.NodeName:
		s.bind(t.Name, t.Location)
	case parser.NodeTuple, parser.NodeList:
		for _, elt := range t.Children {
			c.target(s, elt)
		}
	case parser.NodeStarred:
		c.target(s, t.ValueNode())
	default:
		c.expr(s, t)
	}
}

func (c *classifier) expr(s *Scope, n *parser.Node) {
	if n == nil {
		return
	}
	switch n.Type {
	case parser.NodeName:
		s.use(n.Name, n.Location)

	case parser.NodeLambda:
		c.defaults(s, n.Args)
		fn := c.open(LambdaScope, "<lambda>", n, s)
		c.params(fn, n.Args)
		for _, body := range n.Body {
			c.expr(fn, body)
		}

	case parser.NodeListComp, parser.NodeSetComp, parser.NodeDictComp, parser.NodeGeneratorExp:
		c.comprehension(s, n)

	case parser.NodeNamedExpr:
		c.expr(s, n.ValueNode())
		c.walrus(s, n.Targets[0])

	case parser.NodeYield, parser.NodeYieldFrom:
		if s.IsFunctionLike() {
			s.IsGenerator = true
		}
		c.expr(s, n.ValueNode())

	default:
		for _, child := range n.GetChildren() {
			c.expr(s, child)
		}
	}
}

func comprehensionName(t parser.NodeType) string {
	switch t {
	case parser.NodeListComp:
		return "<listcomp>"
	case parser.NodeSetComp:
		return "<setcomp>"
	case parser.NodeDictComp:
		return "<dictcomp>"
	default:
		return "<genexpr>"
	}
}

// comprehension evaluates the outermost iterable in the enclosing scope and
// everything else inside a fresh scope that receives it as ".0".
func (c *classifier) comprehension(s *Scope, n *parser.Node) {
	if len(n.Children) == 0 {
		return
	}
	c.expr(s, n.Children[0].Iter)

	comp := c.open(ComprehensionScope, comprehensionName(n.Type), n, s)
	comp.IsGenerator = n.Type == parser.NodeGeneratorExp
	comp.Params = []string{ComprehensionArg}
	comp.bind(ComprehensionArg, n.Location)

	for i, clause := range n.Children {
		if i > 0 {
			c.expr(comp, clause.Iter)
		}
		for _, t := range clause.Targets {
			c.target(comp, t)
		}
		for _, test := range clause.Children {
			c.expr(comp, test)
		}
	}
	c.expr(comp, n.Left)
	c.expr(comp, n.ValueNode())
}

// walrus binds its target in the nearest enclosing non-comprehension scope.
func (c *classifier) walrus(s *Scope, t *parser.Node) {
	if t == nil || t.Type != parser.NodeName {
		return
	}
	owner := s
	for owner.Type == ComprehensionScope {
		owner = owner.Parent
	}
	owner.bind(t.Name, t.Location)
	if owner == s {
		return
	}
	for cur := s; cur != owner; cur = cur.Parent {
		cur.note(t.Name, t.Location)
		if owner.Type == ModuleScope || owner.globals[t.Name] {
			cur.globals[t.Name] = true
		} else {
			cur.nonlocals[t.Name] = true
		}
	}
}

// resolve finds the owner of every free name of s and threads it through the
// intermediate scopes.
func (c *classifier) resolve(s *Scope) error {
	if s.Type == ModuleScope {
		return nil
	}
	for _, name := range s.order {
		if s.globals[name] {
			continue
		}
		wantsOuter := s.nonlocals[name] || (s.used[name] && !s.bound[name])
		if !wantsOuter {
			continue
		}
		owner := findOwner(s, name)
		if owner == nil {
			if s.nonlocals[name] {
				c.fail(s, s.positions[name], "no binding for nonlocal '%s' found", name)
				return c.err
			}
			continue
		}
		owner.cellPending(name)
		for cur := s; cur != owner; cur = cur.Parent {
			cur.note(name, s.positions[name])
			cur.free[name] = true
		}
	}
	return nil
}

// findOwner walks enclosing function-like scopes for the one that binds name.
// Class scopes are transparent; a global declaration or the module stops the search.
func findOwner(s *Scope, name string) *Scope {
	for p := s.Parent; p != nil; p = p.Parent {
		if p.Type == ModuleScope || p.globals[name] {
			return nil
		}
		if p.Type == ClassScope {
			continue
		}
		if p.bound[name] && !p.nonlocals[name] {
			return p
		}
	}
	return nil
}

func (s *Scope) cellPending(name string) {
	if _, ok := s.cells[name]; !ok {
		s.cells[name] = -1
	}
}

func (s *Scope) assignCells() {
	s.cellOrder = nil
	for _, name := range s.order {
		if _, ok := s.cells[name]; ok {
			s.cells[name] = len(s.cellOrder)
			s.cellOrder = append(s.cellOrder, name)
		}
	}
}

// checkNameLookup rejects `import *` and bare exec in a function that has or
// contains free variables: such names cannot be both cells and dictionary entries.
func (c *classifier) checkNameLookup(s *Scope) error {
	if !s.IsFunctionLike() || !s.UsesNameLookup() {
		return nil
	}
	what := "import *"
	if s.bareExec && !s.importStar {
		what = "unqualified exec"
	}
	loc := c.lookupPos[s]
	if s.TakesClosure() {
		c.fail(s, loc, "%s is not allowed in function '%s' because it is a nested function with free variables", what, s.Name)
		return c.err
	}
	if s.CreatesClosure() || descendantTakesClosure(s) {
		c.fail(s, loc, "%s is not allowed in function '%s' because it contains a nested function with free variables", what, s.Name)
		return c.err
	}
	return nil
}

func descendantTakesClosure(s *Scope) bool {
	for _, child := range s.Children {
		if child.TakesClosure() || descendantTakesClosure(child) {
			return true
		}
	}
	return false
}
