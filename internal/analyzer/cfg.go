package analyzer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ludo-technologies/pyjit/internal/scope"
)

// EdgeType represents the type of edge between basic blocks
type EdgeType int

const (
	// EdgeNormal represents normal sequential flow, including the normal
	// continuation of an invoke
	EdgeNormal EdgeType = iota
	// EdgeCondTrue represents conditional true branch
	EdgeCondTrue
	// EdgeCondFalse represents conditional false branch
	EdgeCondFalse
	// EdgeException represents the unwind edge of an invoke
	EdgeException
)

// String returns string representation of EdgeType
func (e EdgeType) String() string {
	switch e {
	case EdgeNormal:
		return "normal"
	case EdgeCondTrue:
		return "true"
	case EdgeCondFalse:
		return "false"
	case EdgeException:
		return "exception"
	default:
		return "unknown"
	}
}

// BlockID is a stable handle to a block in a CFG's arena. After
// finalization it equals the block's placement index.
type BlockID int32

// NoBlock is the absent block handle.
const NoBlock BlockID = -1

// Edge represents a directed edge between two basic blocks
type Edge struct {
	From BlockID
	To   BlockID
	Type EdgeType
}

// BasicBlock represents a basic block in the control flow graph
type BasicBlock struct {
	// ID is the arena handle of the block
	ID BlockID

	// Index is the placement index, -1 while the block is unplaced
	Index int

	// Label is a human-readable label describing the block's role
	Label string

	// Preds are the blocks that can flow into this block
	Preds []BlockID

	// Instrs is the instruction run; the last one is the terminator
	Instrs []InstrID
}

// IsPlaced reports whether the block has been given a placement index.
func (bb *BasicBlock) IsPlaced() bool {
	return bb.Index >= 0
}

// IsEmpty returns true if the block has no instructions
func (bb *BasicBlock) IsEmpty() bool {
	return len(bb.Instrs) == 0
}

func (bb *BasicBlock) hasPred(p BlockID) bool {
	for _, q := range bb.Preds {
		if q == p {
			return true
		}
	}
	return false
}

// String returns a string representation of the basic block
func (bb *BasicBlock) String() string {
	label := bb.Label
	if label == "" {
		label = fmt.Sprintf("bb%d", bb.ID)
	}
	return fmt.Sprintf("[%s: %d instrs]", label, len(bb.Instrs))
}

// CodeKind is the kind of lexical scope a CFG was built for.
type CodeKind int

const (
	KindModule CodeKind = iota
	KindFunction
	KindLambda
	KindClass
	KindComprehension
)

func (k CodeKind) String() string {
	switch k {
	case KindModule:
		return "module"
	case KindFunction:
		return "function"
	case KindLambda:
		return "lambda"
	case KindClass:
		return "class"
	case KindComprehension:
		return "comprehension"
	default:
		return fmt.Sprintf("CodeKind(%d)", int(k))
	}
}

// CFG represents the control flow graph of one function, lambda, class
// body, comprehension or module.
type CFG struct {
	// Name is the qualified name of the code object
	Name string
	Kind CodeKind

	// Params lists parameter names in declaration order
	Params      []string
	IsGenerator bool

	// Scope is the classification this CFG was built from
	Scope *scope.Scope

	Consts *ConstPool

	// Symbols maps symbol placeholders to names while registers are unallocated
	Symbols []string

	// VRegs is set by register allocation
	VRegs *VRegInfo

	// Children are the code objects created by this one, in source order
	Children []*CFG

	// Entry is the entry block
	Entry BlockID

	// DeadBlocks counts the lowered blocks Finalize dropped as unreachable
	DeadBlocks int

	code   []Instr
	blocks []*BasicBlock
	order  []BlockID

	// analyses memoizes AnalyzeFunction per option set; any relayout or
	// reallocation drops it
	analysisMu sync.Mutex
	analyses   map[AnalysisOptions]*FunctionAnalysis
}

func (cfg *CFG) invalidateAnalyses() {
	cfg.analysisMu.Lock()
	cfg.analyses = nil
	cfg.analysisMu.Unlock()
}

// NewCFG creates a new control flow graph with an entry block
func NewCFG(name string, kind CodeKind) *CFG {
	cfg := &CFG{
		Name:   name,
		Kind:   kind,
		Consts: NewConstPool(),
	}
	cfg.Entry = cfg.CreateBlock("entry")
	cfg.place(cfg.Entry)
	return cfg
}

// CreateBlock creates a new unplaced basic block and adds it to the arena
func (cfg *CFG) CreateBlock(label string) BlockID {
	id := BlockID(len(cfg.blocks))
	cfg.blocks = append(cfg.blocks, &BasicBlock{ID: id, Index: -1, Label: label})
	return id
}

// Block retrieves a block by its handle
func (cfg *CFG) Block(id BlockID) *BasicBlock {
	if id < 0 || int(id) >= len(cfg.blocks) {
		return nil
	}
	return cfg.blocks[id]
}

// Blocks returns the placed blocks in placement order
func (cfg *CFG) Blocks() []*BasicBlock {
	out := make([]*BasicBlock, len(cfg.order))
	for i, id := range cfg.order {
		out[i] = cfg.blocks[id]
	}
	return out
}

// BlockAt returns the block with the given placement index
func (cfg *CFG) BlockAt(index int) *BasicBlock {
	if index < 0 || index >= len(cfg.order) {
		return nil
	}
	return cfg.blocks[cfg.order[index]]
}

// Size returns the number of placed blocks
func (cfg *CFG) Size() int {
	return len(cfg.order)
}

// NumInstrs returns the size of the instruction arena
func (cfg *CFG) NumInstrs() int {
	return len(cfg.code)
}

// Instr returns the instruction with the given handle
func (cfg *CFG) Instr(id InstrID) *Instr {
	return &cfg.code[id]
}

func (cfg *CFG) place(id BlockID) {
	bb := cfg.blocks[id]
	if bb.IsPlaced() {
		return
	}
	bb.Index = len(cfg.order)
	cfg.order = append(cfg.order, id)
}

func (cfg *CFG) appendInstr(block BlockID, in Instr) InstrID {
	id := InstrID(len(cfg.code))
	cfg.code = append(cfg.code, in)
	bb := cfg.blocks[block]
	bb.Instrs = append(bb.Instrs, id)
	return id
}

func (cfg *CFG) addPred(to, from BlockID) {
	bb := cfg.blocks[to]
	if !bb.hasPred(from) {
		bb.Preds = append(bb.Preds, from)
	}
}

// Terminator returns the last instruction of a block if it ends the block
func (cfg *CFG) Terminator(bb *BasicBlock) *Instr {
	if len(bb.Instrs) == 0 {
		return nil
	}
	in := &cfg.code[bb.Instrs[len(bb.Instrs)-1]]
	if !in.IsTerminator() {
		return nil
	}
	return in
}

// Edges derives the outgoing edges of a block from its terminator
func (cfg *CFG) Edges(bb *BasicBlock) []Edge {
	t := cfg.Terminator(bb)
	if t == nil {
		return nil
	}
	switch {
	case t.IsInvoke():
		if t.Normal == t.Exc {
			return []Edge{{From: bb.ID, To: t.Exc, Type: EdgeException}}
		}
		return []Edge{
			{From: bb.ID, To: t.Normal, Type: EdgeNormal},
			{From: bb.ID, To: t.Exc, Type: EdgeException},
		}
	case t.Op == OpJump:
		return []Edge{{From: bb.ID, To: t.Target, Type: EdgeNormal}}
	case t.Op == OpBranch:
		return []Edge{
			{From: bb.ID, To: t.Target, Type: EdgeCondTrue},
			{From: bb.ID, To: t.Else, Type: EdgeCondFalse},
		}
	default:
		return nil
	}
}

// Successors returns the distinct successor blocks of a block
func (cfg *CFG) Successors(bb *BasicBlock) []BlockID {
	edges := cfg.Edges(bb)
	out := make([]BlockID, 0, len(edges))
	for _, e := range edges {
		out = append(out, e.To)
	}
	return out
}

// SymbolName returns the name behind a symbol placeholder
func (cfg *CFG) SymbolName(i int32) string {
	if i < 0 || int(i) >= len(cfg.Symbols) {
		return fmt.Sprintf("?%d", i)
	}
	return cfg.Symbols[i]
}

// RegName renders a register reference for dumps
func (cfg *CFG) RegName(r Reg) string {
	switch r.Kind {
	case RegUndefined:
		return "undef"
	case RegConst:
		return cfg.Consts.Get(r.N).String()
	case RegSymbol:
		return "%" + cfg.SymbolName(r.N)
	default:
		if cfg.VRegs != nil {
			if name := cfg.VRegs.Name(int(r.N)); name != "" {
				return fmt.Sprintf("r%d(%s)", r.N, name)
			}
		}
		return fmt.Sprintf("r%d", r.N)
	}
}

func (cfg *CFG) blockName(id BlockID) string {
	bb := cfg.Block(id)
	if bb == nil {
		return "<none>"
	}
	if bb.IsPlaced() {
		return fmt.Sprintf("bb%d", bb.Index)
	}
	return fmt.Sprintf("bb?%d", bb.ID)
}

// CFGVisitor defines the interface for visiting CFG nodes
type CFGVisitor interface {
	// VisitBlock is called for each basic block
	// Returns false to stop traversal
	VisitBlock(block *BasicBlock) bool

	// VisitEdge is called for each edge
	// Returns false to stop traversal
	VisitEdge(edge Edge) bool
}

// Walk performs a depth-first traversal of the CFG
func (cfg *CFG) Walk(visitor CFGVisitor) {
	if cfg.Block(cfg.Entry) == nil {
		return
	}
	visited := make(map[BlockID]bool)
	cfg.walkBlock(cfg.Entry, visitor, visited)
}

func (cfg *CFG) walkBlock(id BlockID, visitor CFGVisitor, visited map[BlockID]bool) bool {
	if visited[id] {
		return true
	}
	visited[id] = true

	block := cfg.blocks[id]
	if !visitor.VisitBlock(block) {
		return false
	}
	for _, edge := range cfg.Edges(block) {
		if !visitor.VisitEdge(edge) {
			return false
		}
		if !cfg.walkBlock(edge.To, visitor, visited) {
			return false
		}
	}
	return true
}

// BreadthFirstWalk performs a breadth-first traversal of the CFG
func (cfg *CFG) BreadthFirstWalk(visitor CFGVisitor) {
	if cfg.Block(cfg.Entry) == nil {
		return
	}

	visited := make(map[BlockID]bool)
	queue := []BlockID{cfg.Entry}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		if visited[id] {
			continue
		}
		visited[id] = true

		block := cfg.blocks[id]
		if !visitor.VisitBlock(block) {
			return
		}
		for _, edge := range cfg.Edges(block) {
			if !visitor.VisitEdge(edge) {
				return
			}
			if !visited[edge.To] {
				queue = append(queue, edge.To)
			}
		}
	}
}

// String returns a short description of the CFG
func (cfg *CFG) String() string {
	return fmt.Sprintf("CFG(%s): %d blocks", cfg.Name, cfg.Size())
}

// Dump renders every placed block with its instructions.
func (cfg *CFG) Dump() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s(%s)", cfg.Kind, cfg.Name, strings.Join(cfg.Params, ", "))
	if cfg.IsGenerator {
		sb.WriteString(" generator")
	}
	sb.WriteString("\n")
	for _, bb := range cfg.Blocks() {
		fmt.Fprintf(&sb, "bb%d %s:", bb.Index, bb.Label)
		if len(bb.Preds) > 0 {
			preds := make([]string, len(bb.Preds))
			for i, p := range bb.Preds {
				preds[i] = cfg.blockName(p)
			}
			fmt.Fprintf(&sb, " preds=%s", strings.Join(preds, ","))
		}
		sb.WriteString("\n")
		for _, id := range bb.Instrs {
			fmt.Fprintf(&sb, "    %s\n", cfg.code[id].Format(cfg))
		}
	}
	return sb.String()
}

// Verify checks the structural invariants of a placed CFG: a single
// terminator per block, at most two successors, no critical edges,
// consistent predecessor lists, and monotone placement.
func (cfg *CFG) Verify() error {
	if len(cfg.order) == 0 || cfg.order[0] != cfg.Entry {
		return internalErrorf(cfg.Name, "entry block is not placed first")
	}
	entry := cfg.blocks[cfg.Entry]
	if entry.Index != 0 || len(entry.Preds) != 0 {
		return internalErrorf(cfg.Name, "entry block must have index 0 and no predecessors")
	}

	for i, id := range cfg.order {
		bb := cfg.blocks[id]
		if bb.Index != i {
			return internalErrorf(cfg.Name, "block %d has index %d at position %d", bb.ID, bb.Index, i)
		}
		if len(bb.Instrs) == 0 {
			return internalErrorf(cfg.Name, "bb%d is empty", i)
		}
		for j, iid := range bb.Instrs {
			in := &cfg.code[iid]
			last := j == len(bb.Instrs)-1
			if in.IsTerminator() != last {
				return internalErrorf(cfg.Name, "bb%d: terminator misplaced at instruction %d (%s)", i, j, in.Op)
			}
			for _, r := range append([]Reg{in.Dst}, in.Args...) {
				if r.N < 0 && r.Kind != RegUndefined {
					return internalErrorf(cfg.Name, "bb%d: negative register reference %s", i, r)
				}
			}
		}

		succs := cfg.Successors(bb)
		if len(succs) > 2 {
			return internalErrorf(cfg.Name, "bb%d has %d successors", i, len(succs))
		}
		for _, s := range succs {
			sb := cfg.Block(s)
			if sb == nil || !sb.IsPlaced() {
				return internalErrorf(cfg.Name, "bb%d reaches a block that was never placed", i)
			}
			if !sb.hasPred(bb.ID) {
				return internalErrorf(cfg.Name, "bb%d -> bb%d missing from predecessor list", i, sb.Index)
			}
			if len(succs) > 1 && len(sb.Preds) != 1 {
				return internalErrorf(cfg.Name, "critical edge bb%d -> bb%d", i, sb.Index)
			}
		}

		if id == cfg.Entry {
			continue
		}
		earlier := false
		for _, p := range bb.Preds {
			pb := cfg.Block(p)
			if pb == nil || !pb.IsPlaced() {
				return internalErrorf(cfg.Name, "bb%d has an unplaced predecessor", i)
			}
			found := false
			for _, s := range cfg.Successors(pb) {
				if s == id {
					found = true
				}
			}
			if !found {
				return internalErrorf(cfg.Name, "bb%d lists bb%d as predecessor without an edge", i, pb.Index)
			}
			if pb.Index < bb.Index {
				earlier = true
			}
		}
		if !earlier {
			return internalErrorf(cfg.Name, "bb%d has no predecessor placed before it", i)
		}
	}
	return nil
}
