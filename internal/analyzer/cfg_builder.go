package analyzer

import (
	"fmt"
	"log"
	"strconv"

	"github.com/ludo-technologies/pyjit/internal/parser"
	"github.com/ludo-technologies/pyjit/internal/scope"
)

// Block label constants to avoid magic strings
const (
	LabelEntry        = "entry"
	LabelUnreachable  = "unreachable"
	LabelLandingPad   = "landing_pad"
	LabelInvokeNormal = "invoke_normal"
	LabelIfTrue       = "if_true"
	LabelIfFalse      = "if_false"
	LabelIfExit       = "if_exit"
	LabelWhileTest    = "while_test"
	LabelWhileBody    = "while_body"
	LabelWhileElse    = "while_else"
	LabelForTest      = "for_test"
	LabelForBody      = "for_body"
	LabelForElse      = "for_else"
	LabelLoopDone     = "loop_done"
	LabelLoopExit     = "loop_exit"
	LabelExceptions   = "except_dispatch"
	LabelTryJoin      = "try_join"
	LabelFinally      = "finally"
	LabelWithExc      = "with_exc"
	LabelWithExit     = "with_exit"
	LabelWithJoin     = "with_join"
)

// Continuation reasons recorded in the "why" register of a finally or with
// block before control enters its cleanup code.
const (
	WhyFallthrough int64 = iota
	WhyContinue
	WhyBreak
	WhyReturn
	WhyException
	numWhy
)

// Program is the set of CFGs built from one module.
type Program struct {
	File   string
	Module *CFG
}

// Functions returns every CFG of the program in pre-order, module first.
func (p *Program) Functions() []*CFG {
	var out []*CFG
	var walk func(*CFG)
	walk = func(c *CFG) {
		out = append(out, c)
		for _, child := range c.Children {
			walk(child)
		}
	}
	if p.Module != nil {
		walk(p.Module)
	}
	return out
}

// Lookup finds a CFG by qualified name.
func (p *Program) Lookup(name string) *CFG {
	for _, c := range p.Functions() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// CFGBuilder lowers the scopes of one classified module into CFGs
type CFGBuilder struct {
	info *scope.Info

	// logger for diagnostics (optional)
	logger *log.Logger
}

// NewCFGBuilder creates a new CFG builder over a classified module
func NewCFGBuilder(info *scope.Info) *CFGBuilder {
	return &CFGBuilder{info: info}
}

// SetLogger sets an optional logger for diagnostics
func (b *CFGBuilder) SetLogger(logger *log.Logger) {
	b.logger = logger
}

func (b *CFGBuilder) logf(format string, args ...interface{}) {
	if b.logger != nil {
		b.logger.Printf("CFGBuilder: "+format, args...)
	}
}

// Build constructs the CFG of the module and, recursively, of every scope
// nested in it. The returned CFGs are placed but not yet finalized.
func (b *CFGBuilder) Build() (*Program, error) {
	if b.info == nil || b.info.Module == nil {
		return nil, fmt.Errorf("cannot build CFG without scope information")
	}
	module, err := b.buildScope(b.info.Module)
	if err != nil {
		return nil, err
	}
	return &Program{File: b.info.File, Module: module}, nil
}

func kindOf(t scope.Type) CodeKind {
	switch t {
	case scope.FunctionScope:
		return KindFunction
	case scope.LambdaScope:
		return KindLambda
	case scope.ClassScope:
		return KindClass
	case scope.ComprehensionScope:
		return KindComprehension
	default:
		return KindModule
	}
}

func (b *CFGBuilder) buildScope(sc *scope.Scope) (*CFG, error) {
	name := sc.QualifiedName()
	cfg := NewCFG(name, kindOf(sc.Type))
	cfg.Scope = sc
	cfg.Params = append([]string(nil), sc.Params...)
	cfg.IsGenerator = sc.IsGenerator

	fb := &funcBuilder{
		owner:   b,
		cfg:     cfg,
		sc:      sc,
		cur:     cfg.Entry,
		symbols: make(map[string]int32),
	}
	if err := fb.buildBody(); err != nil {
		b.logf("failed to build %s: %v", name, err)
		return nil, err
	}
	b.logf("built %s: %d blocks, %d instructions", name, cfg.Size(), cfg.NumInstrs())
	return cfg, nil
}

// continuation records where break, continue and return go from inside a
// loop, a finally block or a with block.
type continuation struct {
	continueTo BlockID
	breakTo    BlockID

	// sayWhy is set for finally and with blocks: every exit stores its
	// reason in why and enters the cleanup block at finallyTo.
	sayWhy    bool
	finallyTo BlockID
	why       Reg
	retval    Reg
	observed  [numWhy]bool
}

// handlerFrame describes where exceptions raised in a protected region go.
type handlerFrame struct {
	dest         BlockID
	typ, val, tb Reg
	// why is set when the handler is a finally block
	why Reg
}

// funcBuilder holds the construction state of one CFG.
type funcBuilder struct {
	owner *CFGBuilder
	cfg   *CFG
	sc    *scope.Scope

	cur       BlockID
	symbols   map[string]int32
	tempCount int
	line      int32

	conts    []*continuation
	handlers []*handlerFrame
}

func (fb *funcBuilder) buildBody() error {
	node := fb.sc.Node
	for _, p := range fb.sc.Params {
		fb.sym(p)
	}
	if fb.sc.IsFunctionLike() {
		fb.setLine(node)
		if err := fb.bindParams(); err != nil {
			return err
		}
	}

	switch fb.sc.Type {
	case scope.LambdaScope:
		if len(node.Body) == 0 {
			return fb.errorf(node, "lambda without body")
		}
		v, err := fb.expr(node.Body[0])
		if err != nil {
			return err
		}
		fb.ret(v)
		return nil
	case scope.ComprehensionScope:
		return fb.comprehensionBody(node)
	default:
		if err := fb.stmts(node.Body); err != nil {
			return err
		}
		fb.ret(fb.none())
		return nil
	}
}

// bindParams moves parameters that are not plain locals into their real
// storage on entry.
func (fb *funcBuilder) bindParams() error {
	for _, p := range fb.sc.Params {
		r := fb.sym(p)
		switch fb.sc.Classify(p) {
		case scope.ClosureCell:
			off, _ := fb.sc.ClosureOffset(p)
			in := newInstr(OpStoreClosure)
			in.Aux = int32(off)
			in.Args = []Reg{r}
			fb.emit(in)
		case scope.DictBacked:
			in := newInstr(OpStoreName)
			in.Name = fb.cfg.Consts.Name(p)
			in.Args = []Reg{r}
			fb.emit(in)
		}
	}
	return nil
}

// sym interns a symbol placeholder for a variable or temporary name.
func (fb *funcBuilder) sym(name string) Reg {
	if idx, ok := fb.symbols[name]; ok {
		return SymReg(idx)
	}
	idx := int32(len(fb.cfg.Symbols))
	fb.cfg.Symbols = append(fb.cfg.Symbols, name)
	fb.symbols[name] = idx
	return SymReg(idx)
}

// temp returns a fresh compiler-synthesized register.
func (fb *funcBuilder) temp(hint string) Reg {
	fb.tempCount++
	return fb.sym(syntheticPrefix + hint + strconv.Itoa(fb.tempCount))
}

func (fb *funcBuilder) none() Reg {
	return ConstReg(fb.cfg.Consts.None())
}

func (fb *funcBuilder) intConst(v int64) Reg {
	return ConstReg(fb.cfg.Consts.Int(v))
}

func (fb *funcBuilder) setLine(n *parser.Node) {
	if n != nil && n.Location.StartLine > 0 {
		fb.line = int32(n.Location.StartLine)
	}
}

// functionName is the qualified name of the innermost function-like scope.
func (fb *funcBuilder) functionName() string {
	for s := fb.sc; s != nil; s = s.Parent {
		if s.IsFunctionLike() {
			return s.QualifiedName()
		}
	}
	return ""
}

func (fb *funcBuilder) errorf(n *parser.Node, format string, args ...interface{}) error {
	var pos Pos
	if n != nil {
		pos = posOf(n.Location)
	}
	if pos.File == "" {
		pos.File = fb.owner.info.File
	}
	return &CompileError{Pos: pos, Function: fb.functionName(), Msg: fmt.Sprintf(format, args...)}
}

// switchTo makes id the current block. A block is placed the first time it
// becomes current with at least one placed predecessor; blocks that never
// meet that condition hold unreachable code and are dropped at finalization.
func (fb *funcBuilder) switchTo(id BlockID) {
	fb.cur = id
	bb := fb.cfg.Block(id)
	if bb.IsPlaced() {
		return
	}
	for _, p := range bb.Preds {
		if fb.cfg.Block(p).IsPlaced() {
			fb.cfg.place(id)
			return
		}
	}
}

// reachable reports whether code emitted now can execute.
func (fb *funcBuilder) reachable() bool {
	return fb.cfg.Block(fb.cur).IsPlaced()
}

func (fb *funcBuilder) unreachable() {
	fb.cur = fb.cfg.CreateBlock(LabelUnreachable)
}

// emit appends an instruction to the current block. Inside a protected
// region a raising instruction becomes an invoke: it ends the block, the
// landing pad is emitted right away, and construction resumes in the
// normal continuation.
func (fb *funcBuilder) emit(in Instr) InstrID {
	in.Line = fb.line
	from := fb.cur
	id := fb.cfg.appendInstr(from, in)

	if !in.Op.CanRaise() || len(fb.handlers) == 0 {
		return id
	}

	h := fb.handlers[len(fb.handlers)-1]
	exc := fb.cfg.CreateBlock(LabelLandingPad)
	normal := exc
	if !in.Op.IsTerminator() {
		normal = fb.cfg.CreateBlock(LabelInvokeNormal)
	}
	ins := fb.cfg.Instr(id)
	ins.Normal, ins.Exc = normal, exc
	fb.cfg.addPred(exc, from)
	fb.cfg.addPred(normal, from)

	fb.switchTo(exc)
	tuple := fb.temp("exc")
	pad := newInstr(OpLandingPad)
	pad.Dst = tuple
	fb.emit(pad)
	for i, dst := range []Reg{h.typ, h.val, h.tb} {
		get := newInstr(OpTupleGet)
		get.Dst = dst
		get.Args = []Reg{tuple}
		get.Aux = int32(i)
		fb.emit(get)
	}
	if !h.why.IsUndefined() {
		fb.copyTo(h.why, fb.intConst(WhyException))
	}
	fb.jump(h.dest)

	if in.Op.IsTerminator() {
		fb.unreachable()
	} else {
		fb.switchTo(normal)
	}
	return id
}

// value emits a value-producing instruction into a fresh temporary.
func (fb *funcBuilder) value(op Opcode, hint string, args ...Reg) Reg {
	in := newInstr(op)
	in.Args = args
	return fb.emitValue(in, hint)
}

// emitValue emits a prepared instruction with a fresh temporary destination.
func (fb *funcBuilder) emitValue(in Instr, hint string) Reg {
	in.Dst = fb.temp(hint)
	fb.emit(in)
	return in.Dst
}

func (fb *funcBuilder) copyTo(dst, src Reg) {
	in := newInstr(OpCopy)
	in.Dst = dst
	in.Args = []Reg{src}
	fb.emit(in)
}

func (fb *funcBuilder) jump(to BlockID) {
	in := newInstr(OpJump)
	in.Target = to
	fb.cfg.addPred(to, fb.cur)
	fb.emit(in)
	fb.unreachable()
}

// branch ends the current block with a two-way branch to fresh blocks.
// Both targets have a single predecessor, so no critical edge can form.
func (fb *funcBuilder) branch(cond Reg, trueLabel, falseLabel string) (BlockID, BlockID) {
	t := fb.cfg.CreateBlock(trueLabel)
	f := fb.cfg.CreateBlock(falseLabel)
	in := newInstr(OpBranch)
	in.Args = []Reg{cond}
	in.Target, in.Else = t, f
	fb.cfg.addPred(t, fb.cur)
	fb.cfg.addPred(f, fb.cur)
	fb.emit(in)
	fb.unreachable()
	return t, f
}

// test evaluates the truth of v and branches on it.
func (fb *funcBuilder) test(v Reg, trueLabel, falseLabel string) (BlockID, BlockID) {
	nz := fb.value(OpNonzero, "nz", v)
	return fb.branch(nz, trueLabel, falseLabel)
}

func (fb *funcBuilder) ret(v Reg) {
	in := newInstr(OpReturn)
	in.Args = []Reg{v}
	fb.emit(in)
	fb.unreachable()
}

func (fb *funcBuilder) raise(flags Flags, args ...Reg) {
	in := newInstr(OpRaise)
	in.Flags = flags
	in.Args = args
	fb.emit(in)
	fb.unreachable()
}

func (fb *funcBuilder) pushHandler(h *handlerFrame) {
	fb.handlers = append(fb.handlers, h)
}

func (fb *funcBuilder) popHandler(h *handlerFrame) error {
	if len(fb.handlers) == 0 || fb.handlers[len(fb.handlers)-1] != h {
		return internalErrorf(fb.cfg.Name, "exception handler stack out of balance")
	}
	fb.handlers = fb.handlers[:len(fb.handlers)-1]
	return nil
}

func (fb *funcBuilder) pushCont(c *continuation) {
	fb.conts = append(fb.conts, c)
}

func (fb *funcBuilder) popCont(c *continuation) error {
	if len(fb.conts) == 0 || fb.conts[len(fb.conts)-1] != c {
		return internalErrorf(fb.cfg.Name, "continuation stack out of balance")
	}
	fb.conts = fb.conts[:len(fb.conts)-1]
	return nil
}

func (fb *funcBuilder) inLoop() bool {
	for _, c := range fb.conts {
		if c.breakTo != NoBlock {
			return true
		}
	}
	return false
}

// exitTo routes break or continue through the innermost enclosing finally
// or with block, or straight to the loop target.
func (fb *funcBuilder) exitTo(reason int64) {
	for i := len(fb.conts) - 1; i >= 0; i-- {
		c := fb.conts[i]
		if c.sayWhy {
			c.observed[reason] = true
			fb.copyTo(c.why, fb.intConst(reason))
			fb.jump(c.finallyTo)
			return
		}
		switch {
		case reason == WhyBreak && c.breakTo != NoBlock:
			fb.jump(c.breakTo)
			return
		case reason == WhyContinue && c.continueTo != NoBlock:
			fb.jump(c.continueTo)
			return
		}
	}
}

func (fb *funcBuilder) doReturn(v Reg) {
	for i := len(fb.conts) - 1; i >= 0; i-- {
		c := fb.conts[i]
		if c.sayWhy {
			c.observed[WhyReturn] = true
			fb.copyTo(c.retval, v)
			fb.copyTo(c.why, fb.intConst(WhyReturn))
			fb.jump(c.finallyTo)
			return
		}
	}
	fb.ret(v)
}

// dispatch runs after cleanup code and re-enters whatever exit was in
// progress, testing the why register for each reason that was observed.
// Construction continues on the fall-through path.
func (fb *funcBuilder) dispatch(c *continuation, h *handlerFrame) {
	for reason := WhyContinue; reason < numWhy; reason++ {
		if !c.observed[reason] {
			continue
		}
		cmp := newInstr(OpCompare)
		cmp.Args = []Reg{c.why, fb.intConst(reason)}
		cmp.Aux = int32(OpEq)
		eq := fb.emitValue(cmp, "is_why")
		yes, no := fb.branch(eq, "why_"+whyName(reason), "why_other")

		fb.switchTo(yes)
		switch reason {
		case WhyContinue, WhyBreak:
			fb.exitTo(reason)
		case WhyReturn:
			fb.doReturn(c.retval)
		case WhyException:
			fb.raise(FlagReraise, h.typ, h.val, h.tb)
		}
		fb.switchTo(no)
	}
}

func whyName(reason int64) string {
	switch reason {
	case WhyFallthrough:
		return "fallthrough"
	case WhyContinue:
		return "continue"
	case WhyBreak:
		return "break"
	case WhyReturn:
		return "return"
	default:
		return "exception"
	}
}
