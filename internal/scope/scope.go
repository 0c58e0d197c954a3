// Package scope classifies every variable name of a Python module by where
// its value lives at run time: a fast local register, the module globals, a
// closure cell owned by the scope, a cell of an enclosing scope, or a
// dictionary-backed NAME lookup.
package scope

import (
	"fmt"

	"github.com/ludo-technologies/pyjit/internal/parser"
)

// Kind is the storage class of one name in one scope.
type Kind int

const (
	// Local names live in a register of the frame.
	Local Kind = iota
	// Global names live in the module dictionary.
	Global
	// ClosureCell names are locals captured by a nested scope.
	ClosureCell
	// DerefFreeVariable names are cells owned by an enclosing scope.
	DerefFreeVariable
	// DictBacked names are looked up through the frame's locals dictionary.
	DictBacked
)

func (k Kind) String() string {
	switch k {
	case Local:
		return "local"
	case Global:
		return "global"
	case ClosureCell:
		return "closure"
	case DerefFreeVariable:
		return "deref"
	case DictBacked:
		return "name"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Type is the syntactic kind of a scope.
type Type int

const (
	ModuleScope Type = iota
	FunctionScope
	LambdaScope
	ClassScope
	ComprehensionScope
)

func (t Type) String() string {
	switch t {
	case ModuleScope:
		return "module"
	case FunctionScope:
		return "function"
	case LambdaScope:
		return "lambda"
	case ClassScope:
		return "class"
	case ComprehensionScope:
		return "comprehension"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// ComprehensionArg is the implicit parameter through which a comprehension
// receives its outermost iterator.
const ComprehensionArg = ".0"

// Deref locates a free variable: Depth closure hops above the closure passed
// to the scope, at Offset inside that closure.
type Deref struct {
	Depth  int
	Offset int
}

// Scope is the classification result for one lexical scope.
type Scope struct {
	Type     Type
	Name     string
	Node     *parser.Node
	Parent   *Scope
	Children []*Scope

	// Params in declaration order, including *args and **kwargs names.
	Params []string
	// VarArg and KwArg hold the names of the collecting parameters, if any.
	VarArg, KwArg string
	IsGenerator   bool

	order      []string
	seen       map[string]bool
	bound      map[string]bool
	used       map[string]bool
	globals    map[string]bool
	nonlocals  map[string]bool
	free       map[string]bool
	cells      map[string]int
	cellOrder  []string
	importStar bool
	bareExec   bool
	positions  map[string]parser.Location
}

func newScope(t Type, name string, node *parser.Node, parent *Scope) *Scope {
	s := &Scope{
		Type:      t,
		Name:      name,
		Node:      node,
		Parent:    parent,
		seen:      map[string]bool{},
		bound:     map[string]bool{},
		used:      map[string]bool{},
		globals:   map[string]bool{},
		nonlocals: map[string]bool{},
		free:      map[string]bool{},
		cells:     map[string]int{},
		positions: map[string]parser.Location{},
	}
	if parent != nil {
		parent.Children = append(parent.Children, s)
	}
	return s
}

// Classify returns the storage class of name in this scope.
func (s *Scope) Classify(name string) Kind {
	switch s.Type {
	case ModuleScope:
		return Global
	case ClassScope:
		if s.globals[name] {
			return Global
		}
		if s.free[name] && !s.bound[name] {
			return DerefFreeVariable
		}
		return DictBacked
	}

	if s.globals[name] {
		return Global
	}
	if s.nonlocals[name] || (s.free[name] && !s.bound[name]) {
		return DerefFreeVariable
	}
	if s.UsesNameLookup() {
		return DictBacked
	}
	if _, ok := s.cells[name]; ok {
		return ClosureCell
	}
	if s.bound[name] {
		return Local
	}
	return Global
}

// ClosureOffset returns the slot of a ClosureCell name in the scope's own closure.
func (s *Scope) ClosureOffset(name string) (int, bool) {
	off, ok := s.cells[name]
	return off, ok
}

// Deref resolves a DerefFreeVariable name to its (depth, offset) pair.
func (s *Scope) Deref(name string) (Deref, bool) {
	depth := 0
	for p := s.Parent; p != nil; p = p.Parent {
		if p.Type == ClassScope {
			continue
		}
		if off, ok := p.cells[name]; ok {
			return Deref{Depth: depth, Offset: off}, true
		}
		if p.CreatesClosure() {
			depth++
		}
	}
	return Deref{}, false
}

// CreatesClosure reports whether the scope owns closure cells.
func (s *Scope) CreatesClosure() bool {
	return len(s.cellOrder) > 0
}

// TakesClosure reports whether the scope needs its parent's closure.
func (s *Scope) TakesClosure() bool {
	return len(s.free) > 0
}

// UsesNameLookup reports whether locals must be dictionary-backed because of
// `from m import *` or a bare exec statement.
func (s *Scope) UsesNameLookup() bool {
	return s.importStar || s.bareExec
}

// CellNames returns the closure cells in slot order.
func (s *Scope) CellNames() []string {
	return s.cellOrder
}

// FreeNames returns the free variables in first-seen order.
func (s *Scope) FreeNames() []string {
	var names []string
	for _, n := range s.order {
		if s.free[n] {
			names = append(names, n)
		}
	}
	return names
}

// LocalNames returns names classified Local, in first-seen order.
func (s *Scope) LocalNames() []string {
	var names []string
	for _, n := range s.order {
		if s.Classify(n) == Local {
			names = append(names, n)
		}
	}
	return names
}

// IsFunctionLike reports whether the scope executes in its own frame with
// fast locals.
func (s *Scope) IsFunctionLike() bool {
	return s.Type == FunctionScope || s.Type == LambdaScope || s.Type == ComprehensionScope
}

// QualifiedName joins the scope names from the module down.
func (s *Scope) QualifiedName() string {
	if s.Parent == nil || s.Parent.Type == ModuleScope {
		return s.Name
	}
	return s.Parent.QualifiedName() + "." + s.Name
}

func (s *Scope) note(name string, loc parser.Location) {
	if !s.seen[name] {
		s.seen[name] = true
		s.order = append(s.order, name)
		s.positions[name] = loc
	}
}

// Info holds the scope tree of one module.
type Info struct {
	Module *Scope
	File   string
	byNode map[*parser.Node]*Scope
}

// ScopeFor returns the scope opened by node (module, def, lambda, class or comprehension).
func (info *Info) ScopeFor(node *parser.Node) (*Scope, bool) {
	s, ok := info.byNode[node]
	return s, ok
}

// Scopes returns every scope in pre-order.
func (info *Info) Scopes() []*Scope {
	var out []*Scope
	var walk func(*Scope)
	walk = func(s *Scope) {
		out = append(out, s)
		for _, c := range s.Children {
			walk(c)
		}
	}
	walk(info.Module)
	return out
}

// Error is a source-level scoping error.
type Error struct {
	Pos      parser.Location
	Function string
	Msg      string
}

func (e *Error) Error() string {
	file := e.Pos.File
	if file == "" {
		file = "<source>"
	}
	if e.Function != "" {
		return fmt.Sprintf("%s:%d:%d: %s (in %s)", file, e.Pos.StartLine, e.Pos.StartCol, e.Msg, e.Function)
	}
	return fmt.Sprintf("%s:%d:%d: %s", file, e.Pos.StartLine, e.Pos.StartCol, e.Msg)
}
