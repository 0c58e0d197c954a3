package analyzer

import (
	"strings"

	"github.com/ludo-technologies/pyjit/internal/parser"
	"github.com/ludo-technologies/pyjit/internal/scope"
)

func (fb *funcBuilder) stmts(body []*parser.Node) error {
	for _, st := range body {
		if err := fb.stmt(st); err != nil {
			return err
		}
	}
	return nil
}

func (fb *funcBuilder) stmt(n *parser.Node) error {
	if n == nil {
		return nil
	}
	fb.setLine(n)

	switch n.Type {
	case parser.NodeExpr:
		_, err := fb.expr(n.ValueNode())
		return err

	case parser.NodeAssign, parser.NodeAnnAssign:
		if n.ValueNode() == nil {
			// bare annotation
			return nil
		}
		v, err := fb.expr(n.ValueNode())
		if err != nil {
			return err
		}
		for _, t := range n.Targets {
			if err := fb.assign(t, v); err != nil {
				return err
			}
		}
		return nil

	case parser.NodeAugAssign:
		return fb.augAssign(n)

	case parser.NodeDelete:
		for _, t := range n.Targets {
			if err := fb.del(t); err != nil {
				return err
			}
		}
		return nil

	case parser.NodeFunctionDef, parser.NodeAsyncFunctionDef:
		fn, err := fb.makeFunction(n)
		if err != nil {
			return err
		}
		return fb.storeName(n.Name, fn, n)

	case parser.NodeClassDef:
		cls, err := fb.makeClass(n)
		if err != nil {
			return err
		}
		return fb.storeName(n.Name, cls, n)

	case parser.NodeReturn:
		if fb.sc.Type == scope.ModuleScope || fb.sc.Type == scope.ClassScope {
			return fb.errorf(n, "'return' outside function")
		}
		v := fb.none()
		if value := n.ValueNode(); value != nil {
			var err error
			if v, err = fb.expr(value); err != nil {
				return err
			}
		}
		fb.doReturn(v)
		return nil

	case parser.NodeIf:
		return fb.ifStmt(n)
	case parser.NodeWhile:
		return fb.whileStmt(n)
	case parser.NodeFor:
		return fb.forStmt(n)
	case parser.NodeTry:
		return fb.tryStmt(n)
	case parser.NodeWith:
		return fb.withItems(n, 0)

	case parser.NodeBreak:
		if !fb.inLoop() {
			return fb.errorf(n, "'break' outside loop")
		}
		fb.exitTo(WhyBreak)
		return nil

	case parser.NodeContinue:
		if !fb.inLoop() {
			return fb.errorf(n, "'continue' not properly in loop")
		}
		fb.exitTo(WhyContinue)
		return nil

	case parser.NodeRaise:
		return fb.raiseStmt(n)
	case parser.NodeAssert:
		return fb.assertStmt(n)
	case parser.NodeImport:
		return fb.importStmt(n)
	case parser.NodeImportFrom:
		return fb.importFrom(n)
	case parser.NodePrint:
		return fb.printStmt(n)
	case parser.NodeExec:
		return fb.execStmt(n)

	case parser.NodeGlobal, parser.NodeNonlocal, parser.NodePass:
		return nil

	case parser.NodeMatch:
		return fb.errorf(n, "match statement is not supported")
	case parser.NodeAsyncFor:
		return fb.errorf(n, "async for is not supported")
	case parser.NodeAsyncWith:
		return fb.errorf(n, "async with is not supported")

	default:
		return fb.errorf(n, "unsupported statement %s", n.Type)
	}
}

// loadName reads a variable according to its storage class.
func (fb *funcBuilder) loadName(n *parser.Node) (Reg, error) {
	name := n.Name
	switch fb.sc.Classify(name) {
	case scope.Local:
		return fb.value(OpLoadLocal, "load", fb.sym(name)), nil
	case scope.Global:
		in := newInstr(OpLoadGlobal)
		in.Name = fb.cfg.Consts.Name(name)
		return fb.emitValue(in, "global"), nil
	case scope.DictBacked:
		in := newInstr(OpLoadName)
		in.Name = fb.cfg.Consts.Name(name)
		return fb.emitValue(in, "name"), nil
	case scope.ClosureCell:
		off, _ := fb.sc.ClosureOffset(name)
		in := newInstr(OpLoadClosure)
		in.Aux = int32(off)
		return fb.emitValue(in, "cell"), nil
	case scope.DerefFreeVariable:
		d, ok := fb.sc.Deref(name)
		if !ok {
			return Undefined, internalErrorf(fb.cfg.Name, "free variable '%s' has no owning closure", name)
		}
		in := newInstr(OpLoadDeref)
		in.Aux, in.Aux2 = int32(d.Offset), int32(d.Depth)
		return fb.emitValue(in, "deref"), nil
	}
	return Undefined, internalErrorf(fb.cfg.Name, "unclassified name '%s'", name)
}

// storeName writes a variable according to its storage class.
func (fb *funcBuilder) storeName(name string, v Reg, n *parser.Node) error {
	switch fb.sc.Classify(name) {
	case scope.Local:
		fb.copyTo(fb.sym(name), v)
	case scope.Global:
		in := newInstr(OpStoreGlobal)
		in.Name = fb.cfg.Consts.Name(name)
		in.Args = []Reg{v}
		fb.emit(in)
	case scope.DictBacked:
		in := newInstr(OpStoreName)
		in.Name = fb.cfg.Consts.Name(name)
		in.Args = []Reg{v}
		fb.emit(in)
	case scope.ClosureCell:
		off, _ := fb.sc.ClosureOffset(name)
		in := newInstr(OpStoreClosure)
		in.Aux = int32(off)
		in.Args = []Reg{v}
		fb.emit(in)
	case scope.DerefFreeVariable:
		d, ok := fb.sc.Deref(name)
		if !ok {
			return internalErrorf(fb.cfg.Name, "free variable '%s' has no owning closure", name)
		}
		in := newInstr(OpStoreDeref)
		in.Aux, in.Aux2 = int32(d.Offset), int32(d.Depth)
		in.Args = []Reg{v}
		fb.emit(in)
	}
	return nil
}

func (fb *funcBuilder) deleteName(n *parser.Node) error {
	name := n.Name
	switch fb.sc.Classify(name) {
	case scope.Local:
		in := newInstr(OpDeleteLocal)
		in.Dst = fb.sym(name)
		fb.emit(in)
	case scope.Global:
		in := newInstr(OpDeleteGlobal)
		in.Name = fb.cfg.Consts.Name(name)
		fb.emit(in)
	case scope.DictBacked:
		in := newInstr(OpDeleteName)
		in.Name = fb.cfg.Consts.Name(name)
		fb.emit(in)
	default:
		return fb.errorf(n, "can not delete variable '%s' referenced in nested scope", name)
	}
	return nil
}

// assign stores v into an assignment target.
func (fb *funcBuilder) assign(t *parser.Node, v Reg) error {
	switch t.Type {
	case parser.NodeName:
		return fb.storeName(t.Name, v, t)

	case parser.NodeAttribute:
		obj, err := fb.expr(t.ValueNode())
		if err != nil {
			return err
		}
		in := newInstr(OpStoreAttr)
		in.Name = fb.cfg.Consts.Name(t.Name)
		in.Args = []Reg{v, obj}
		fb.emit(in)
		return nil

	case parser.NodeSubscript:
		obj, err := fb.expr(t.ValueNode())
		if err != nil {
			return err
		}
		index := subscriptIndex(t)
		if index != nil && index.Type == parser.NodeSlice {
			bounds, err := fb.sliceBounds(index)
			if err != nil {
				return err
			}
			in := newInstr(OpStoreSlice)
			in.Args = append([]Reg{v, obj}, bounds...)
			fb.emit(in)
			return nil
		}
		idx, err := fb.expr(index)
		if err != nil {
			return err
		}
		in := newInstr(OpStoreSub)
		in.Args = []Reg{v, obj, idx}
		fb.emit(in)
		return nil

	case parser.NodeTuple, parser.NodeList:
		star := int32(-1)
		for i, elt := range t.Children {
			if elt.Type == parser.NodeStarred {
				if star >= 0 {
					return fb.errorf(elt, "multiple starred expressions in assignment")
				}
				star = int32(i)
			}
		}
		in := newInstr(OpUnpack)
		in.Args = []Reg{v}
		in.Aux = int32(len(t.Children))
		in.Aux2 = star
		tuple := fb.emitValue(in, "unpack")
		for i, elt := range t.Children {
			get := newInstr(OpTupleGet)
			get.Args = []Reg{tuple}
			get.Aux = int32(i)
			item := fb.emitValue(get, "item")
			if elt.Type == parser.NodeStarred {
				elt = elt.ValueNode()
			}
			if err := fb.assign(elt, item); err != nil {
				return err
			}
		}
		return nil

	case parser.NodeStarred:
		return fb.errorf(t, "starred assignment target must be in a list or tuple")

	default:
		return fb.errorf(t, "can't assign to %s", strings.ToLower(string(t.Type)))
	}
}

func (fb *funcBuilder) augAssign(n *parser.Node) error {
	if len(n.Targets) == 0 {
		return fb.errorf(n, "augmented assignment without target")
	}
	op, ok := operatorTokens[n.Op]
	if !ok {
		return fb.errorf(n, "unsupported operator %s=", n.Op)
	}
	t := n.Targets[0]

	combine := func(cur Reg) (Reg, error) {
		rhs, err := fb.expr(n.ValueNode())
		if err != nil {
			return Undefined, err
		}
		in := newInstr(OpAugBinary)
		in.Args = []Reg{cur, rhs}
		in.Aux = int32(op)
		return fb.emitValue(in, "aug"), nil
	}

	switch t.Type {
	case parser.NodeName:
		cur, err := fb.loadName(t)
		if err != nil {
			return err
		}
		res, err := combine(cur)
		if err != nil {
			return err
		}
		return fb.storeName(t.Name, res, t)

	case parser.NodeAttribute:
		obj, err := fb.expr(t.ValueNode())
		if err != nil {
			return err
		}
		load := newInstr(OpLoadAttr)
		load.Name = fb.cfg.Consts.Name(t.Name)
		load.Args = []Reg{obj}
		res, err := combine(fb.emitValue(load, "attr"))
		if err != nil {
			return err
		}
		store := newInstr(OpStoreAttr)
		store.Name = fb.cfg.Consts.Name(t.Name)
		store.Args = []Reg{res, obj}
		fb.emit(store)
		return nil

	case parser.NodeSubscript:
		obj, err := fb.expr(t.ValueNode())
		if err != nil {
			return err
		}
		index := subscriptIndex(t)
		if index != nil && index.Type == parser.NodeSlice {
			bounds, err := fb.sliceBounds(index)
			if err != nil {
				return err
			}
			cur := fb.value(OpLoadSlice, "slice", append([]Reg{obj}, bounds...)...)
			res, err := combine(cur)
			if err != nil {
				return err
			}
			store := newInstr(OpStoreSlice)
			store.Args = append([]Reg{res, obj}, bounds...)
			fb.emit(store)
			return nil
		}
		idx, err := fb.expr(index)
		if err != nil {
			return err
		}
		res, err := combine(fb.value(OpLoadSub, "item", obj, idx))
		if err != nil {
			return err
		}
		store := newInstr(OpStoreSub)
		store.Args = []Reg{res, obj, idx}
		fb.emit(store)
		return nil

	default:
		return fb.errorf(t, "illegal expression for augmented assignment")
	}
}

func (fb *funcBuilder) del(t *parser.Node) error {
	switch t.Type {
	case parser.NodeName:
		return fb.deleteName(t)

	case parser.NodeAttribute:
		obj, err := fb.expr(t.ValueNode())
		if err != nil {
			return err
		}
		in := newInstr(OpDeleteAttr)
		in.Name = fb.cfg.Consts.Name(t.Name)
		in.Args = []Reg{obj}
		fb.emit(in)
		return nil

	case parser.NodeSubscript:
		obj, err := fb.expr(t.ValueNode())
		if err != nil {
			return err
		}
		index := subscriptIndex(t)
		if index != nil && index.Type == parser.NodeSlice {
			bounds, err := fb.sliceBounds(index)
			if err != nil {
				return err
			}
			in := newInstr(OpDeleteSlice)
			in.Args = append([]Reg{obj}, bounds...)
			fb.emit(in)
			return nil
		}
		idx, err := fb.expr(index)
		if err != nil {
			return err
		}
		in := newInstr(OpDeleteSub)
		in.Args = []Reg{obj, idx}
		fb.emit(in)
		return nil

	case parser.NodeTuple, parser.NodeList:
		for _, elt := range t.Children {
			if err := fb.del(elt); err != nil {
				return err
			}
		}
		return nil

	default:
		return fb.errorf(t, "can't delete %s", strings.ToLower(string(t.Type)))
	}
}

func (fb *funcBuilder) ifStmt(n *parser.Node) error {
	cond, err := fb.expr(n.Test)
	if err != nil {
		return err
	}
	t, f := fb.test(cond, LabelIfTrue, LabelIfFalse)
	exit := fb.cfg.CreateBlock(LabelIfExit)

	fb.switchTo(t)
	if err := fb.stmts(n.Body); err != nil {
		return err
	}
	fb.jump(exit)

	fb.switchTo(f)
	if err := fb.stmts(n.Orelse); err != nil {
		return err
	}
	fb.jump(exit)

	fb.switchTo(exit)
	return nil
}

func (fb *funcBuilder) whileStmt(n *parser.Node) error {
	test := fb.cfg.CreateBlock(LabelWhileTest)
	fb.jump(test)
	fb.switchTo(test)

	cond, err := fb.expr(n.Test)
	if err != nil {
		return err
	}
	elseLabel := LabelLoopDone
	if len(n.Orelse) > 0 {
		elseLabel = LabelWhileElse
	}
	body, other := fb.test(cond, LabelWhileBody, elseLabel)
	return fb.loop(n, test, body, other, nil)
}

func (fb *funcBuilder) forStmt(n *parser.Node) error {
	seq, err := fb.expr(n.Iter)
	if err != nil {
		return err
	}
	iter := fb.value(OpGetIter, "iter", seq)

	test := fb.cfg.CreateBlock(LabelForTest)
	fb.jump(test)
	fb.switchTo(test)

	more := fb.value(OpHasNext, "hasnext", iter)
	elseLabel := LabelLoopDone
	if len(n.Orelse) > 0 {
		elseLabel = LabelForElse
	}
	body, other := fb.branch(more, LabelForBody, elseLabel)
	return fb.loop(n, test, body, other, func() error {
		item := fb.value(OpIterNext, "next", iter)
		if len(n.Targets) == 0 {
			return nil
		}
		return fb.assign(n.Targets[0], item)
	})
}

// loop lowers the body and else clause of a while or for loop whose test
// block branches to body and other. The else block only exists when the
// loop has an else clause; otherwise the exhaustion edge leaves the loop
// directly through other.
func (fb *funcBuilder) loop(n *parser.Node, test, body, other BlockID, head func() error) error {
	exit := fb.cfg.CreateBlock(LabelLoopExit)
	cont := &continuation{continueTo: test, breakTo: exit, finallyTo: NoBlock}

	fb.switchTo(body)
	if head != nil {
		if err := head(); err != nil {
			return err
		}
	}
	fb.pushCont(cont)
	if err := fb.stmts(n.Body); err != nil {
		return err
	}
	if err := fb.popCont(cont); err != nil {
		return err
	}
	fb.jump(test)

	fb.switchTo(other)
	if err := fb.stmts(n.Orelse); err != nil {
		return err
	}
	fb.jump(exit)

	fb.switchTo(exit)
	return nil
}

func (fb *funcBuilder) raiseStmt(n *parser.Node) error {
	value := n.ValueNode()
	if value == nil {
		fb.raise(0)
		return nil
	}
	exc, err := fb.expr(value)
	if err != nil {
		return err
	}
	if n.Right == nil {
		fb.raise(0, exc)
		return nil
	}
	cause, err := fb.expr(n.Right)
	if err != nil {
		return err
	}
	fb.raise(0, exc, cause)
	return nil
}

func (fb *funcBuilder) assertStmt(n *parser.Node) error {
	cond, err := fb.expr(n.Test)
	if err != nil {
		return err
	}
	ok, fail := fb.test(cond, "assert_ok", "assert_fail")

	fb.switchTo(fail)
	cls := newInstr(OpLoadGlobal)
	cls.Name = fb.cfg.Consts.Name("AssertionError")
	exc := fb.emitValue(cls, "global")
	if msg := n.ValueNode(); msg != nil {
		m, err := fb.expr(msg)
		if err != nil {
			return err
		}
		call := newInstr(OpCall)
		call.Args = []Reg{exc, m}
		call.Aux = 1
		exc = fb.emitValue(call, "call")
	}
	fb.raise(0, exc)

	fb.switchTo(ok)
	return nil
}

func (fb *funcBuilder) importStmt(n *parser.Node) error {
	for _, alias := range n.Children {
		in := newInstr(OpImport)
		in.Name = fb.cfg.Consts.Name(alias.Name)
		bind := strings.SplitN(alias.Name, ".", 2)[0]
		if as, ok := alias.Value.(string); ok && as != "" {
			in.Flags |= FlagLeaf
			bind = as
		}
		mod := fb.emitValue(in, "module")
		if err := fb.storeName(bind, mod, alias); err != nil {
			return err
		}
	}
	return nil
}

func (fb *funcBuilder) importFrom(n *parser.Node) error {
	in := newInstr(OpImport)
	in.Name = fb.cfg.Consts.Name(n.Module)
	in.Aux = int32(n.Level)
	in.Flags |= FlagLeaf
	mod := fb.emitValue(in, "module")

	for _, name := range n.Names {
		if name == "*" {
			star := newInstr(OpImportStar)
			star.Args = []Reg{mod}
			fb.emit(star)
		}
	}
	for _, alias := range n.Children {
		from := newInstr(OpImportFrom)
		from.Name = fb.cfg.Consts.Name(alias.Name)
		from.Args = []Reg{mod}
		v := fb.emitValue(from, "from")
		bind := alias.Name
		if as, ok := alias.Value.(string); ok && as != "" {
			bind = as
		}
		if err := fb.storeName(bind, v, alias); err != nil {
			return err
		}
	}
	return nil
}

func (fb *funcBuilder) printStmt(n *parser.Node) error {
	dest := Undefined
	if d := n.ValueNode(); d != nil {
		var err error
		if dest, err = fb.expr(d); err != nil {
			return err
		}
	}
	args := []Reg{dest}
	for _, a := range n.Args {
		v, err := fb.expr(a)
		if err != nil {
			return err
		}
		args = append(args, v)
	}
	in := newInstr(OpPrint)
	in.Args = args
	if n.Op == "," {
		in.Flags |= FlagNoNewline
	}
	fb.emit(in)
	return nil
}

func (fb *funcBuilder) execStmt(n *parser.Node) error {
	code, err := fb.expr(n.ValueNode())
	if err != nil {
		return err
	}
	args := []Reg{code, Undefined, Undefined}
	for i, a := range n.Args {
		if i >= 2 {
			break
		}
		v, err := fb.expr(a)
		if err != nil {
			return err
		}
		args[i+1] = v
	}
	in := newInstr(OpExec)
	in.Args = args
	fb.emit(in)
	return nil
}

func subscriptIndex(n *parser.Node) *parser.Node {
	if len(n.Children) == 0 {
		return nil
	}
	return n.Children[0]
}
