package analyzer

import (
	"github.com/ludo-technologies/pyjit/internal/parser"
	"github.com/ludo-technologies/pyjit/internal/scope"
)

// expr lowers an expression and returns the register holding its value.
// Constants are returned as immediate operands without emitting code.
func (fb *funcBuilder) expr(n *parser.Node) (Reg, error) {
	if n == nil {
		return Undefined, internalErrorf(fb.cfg.Name, "missing expression")
	}

	switch n.Type {
	case parser.NodeConstant:
		c, err := FromLiteral(n.Value)
		if err != nil {
			return Undefined, fb.errorf(n, "%v", err)
		}
		return ConstReg(fb.cfg.Consts.Add(c)), nil

	case parser.NodeName:
		return fb.loadName(n)

	case parser.NodeAttribute:
		obj, err := fb.expr(n.ValueNode())
		if err != nil {
			return Undefined, err
		}
		in := newInstr(OpLoadAttr)
		in.Name = fb.cfg.Consts.Name(n.Name)
		in.Args = []Reg{obj}
		return fb.emitValue(in, "attr"), nil

	case parser.NodeSubscript:
		obj, err := fb.expr(n.ValueNode())
		if err != nil {
			return Undefined, err
		}
		index := subscriptIndex(n)
		if index != nil && index.Type == parser.NodeSlice {
			bounds, err := fb.sliceBounds(index)
			if err != nil {
				return Undefined, err
			}
			return fb.value(OpLoadSlice, "slice", append([]Reg{obj}, bounds...)...), nil
		}
		idx, err := fb.expr(index)
		if err != nil {
			return Undefined, err
		}
		return fb.value(OpLoadSub, "item", obj, idx), nil

	case parser.NodeSlice:
		bounds, err := fb.sliceBounds(n)
		if err != nil {
			return Undefined, err
		}
		return fb.value(OpMakeSlice, "slice", bounds...), nil

	case parser.NodeBinOp:
		op, ok := operatorTokens[n.Op]
		if !ok {
			return Undefined, fb.errorf(n, "unsupported operator %s", n.Op)
		}
		left, err := fb.expr(n.Left)
		if err != nil {
			return Undefined, err
		}
		right, err := fb.expr(n.Right)
		if err != nil {
			return Undefined, err
		}
		in := newInstr(OpBinary)
		in.Args = []Reg{left, right}
		in.Aux = int32(op)
		return fb.emitValue(in, "binop"), nil

	case parser.NodeUnaryOp:
		op, ok := unaryTokens[n.Op]
		if !ok {
			return Undefined, fb.errorf(n, "unsupported unary operator %s", n.Op)
		}
		v, err := fb.expr(n.ValueNode())
		if err != nil {
			return Undefined, err
		}
		in := newInstr(OpUnary)
		in.Args = []Reg{v}
		in.Aux = int32(op)
		return fb.emitValue(in, "unop"), nil

	case parser.NodeBoolOp:
		return fb.boolOp(n)
	case parser.NodeCompare:
		return fb.compare(n)
	case parser.NodeIfExp:
		return fb.ifExp(n)
	case parser.NodeCall:
		return fb.call(n)

	case parser.NodeTuple:
		return fb.sequence(n, OpMakeTuple)
	case parser.NodeList:
		return fb.sequence(n, OpMakeList)
	case parser.NodeSet:
		return fb.sequence(n, OpMakeSet)
	case parser.NodeDict:
		return fb.dict(n)

	case parser.NodeListComp, parser.NodeSetComp, parser.NodeDictComp, parser.NodeGeneratorExp:
		return fb.comprehension(n)

	case parser.NodeLambda:
		return fb.makeFunction(n)

	case parser.NodeNamedExpr:
		v, err := fb.expr(n.ValueNode())
		if err != nil {
			return Undefined, err
		}
		if len(n.Targets) == 0 || n.Targets[0].Type != parser.NodeName {
			return Undefined, fb.errorf(n, "cannot use assignment expressions with this target")
		}
		if err := fb.walrusStore(n.Targets[0], v); err != nil {
			return Undefined, err
		}
		return v, nil

	case parser.NodeYield, parser.NodeYieldFrom, parser.NodeAwait:
		if !fb.sc.IsFunctionLike() {
			keyword := "yield"
			if n.Type == parser.NodeAwait {
				keyword = "await"
			}
			return Undefined, fb.errorf(n, "'%s' outside function", keyword)
		}
		v := fb.none()
		if value := n.ValueNode(); value != nil {
			var err error
			if v, err = fb.expr(value); err != nil {
				return Undefined, err
			}
		}
		op := OpYield
		switch n.Type {
		case parser.NodeYieldFrom:
			op = OpYieldFrom
		case parser.NodeAwait:
			op = OpAwait
		}
		return fb.value(op, "sent", v), nil

	case parser.NodeJoinedStr:
		return fb.joinedStr(n)

	case parser.NodeStarred:
		return Undefined, fb.errorf(n, "can't use starred expression here")

	default:
		return Undefined, fb.errorf(n, "unsupported expression %s", n.Type)
	}
}

// walrusStore binds the target of an assignment expression. Inside a
// comprehension the name belongs to the enclosing function, which the scope
// classifier already reflects.
func (fb *funcBuilder) walrusStore(t *parser.Node, v Reg) error {
	return fb.storeName(t.Name, v, t)
}

func (fb *funcBuilder) sliceBounds(n *parser.Node) ([]Reg, error) {
	bounds := []Reg{Undefined, Undefined, Undefined}
	for i, part := range []*parser.Node{n.Left, n.Right, n.ValueNode()} {
		if part == nil {
			continue
		}
		v, err := fb.expr(part)
		if err != nil {
			return nil, err
		}
		bounds[i] = v
	}
	return bounds, nil
}

// boolOp lowers `a and b` / `a or b` to a chain of tests that all write
// the same result register.
func (fb *funcBuilder) boolOp(n *parser.Node) (Reg, error) {
	if len(n.Children) == 0 {
		return Undefined, fb.errorf(n, "empty boolean operation")
	}
	result := fb.temp("bool")
	exit := fb.cfg.CreateBlock("bool_exit")
	isAnd := n.Op == "and"

	for i, operand := range n.Children {
		v, err := fb.expr(operand)
		if err != nil {
			return Undefined, err
		}
		fb.copyTo(result, v)
		if i == len(n.Children)-1 {
			break
		}
		t, f := fb.test(v, "bool_true", "bool_false")
		next, done := t, f
		if !isAnd {
			next, done = f, t
		}
		fb.switchTo(done)
		fb.jump(exit)
		fb.switchTo(next)
	}
	fb.jump(exit)
	fb.switchTo(exit)
	return result, nil
}

// compare lowers a possibly chained comparison. Each intermediate operand
// is evaluated once and reused as the left side of the next test.
func (fb *funcBuilder) compare(n *parser.Node) (Reg, error) {
	if len(n.Ops) == 0 || len(n.Ops) != len(n.Children) {
		return Undefined, fb.errorf(n, "malformed comparison")
	}
	left, err := fb.expr(n.Left)
	if err != nil {
		return Undefined, err
	}

	single := len(n.Ops) == 1
	var result Reg
	var exit BlockID
	if !single {
		result = fb.temp("cmp")
		exit = fb.cfg.CreateBlock("compare_exit")
	}

	for i, opText := range n.Ops {
		op, ok := operatorTokens[opText]
		if !ok {
			return Undefined, fb.errorf(n, "unsupported comparison %s", opText)
		}
		right, err := fb.expr(n.Children[i])
		if err != nil {
			return Undefined, err
		}
		in := newInstr(OpCompare)
		in.Args = []Reg{left, right}
		in.Aux = int32(op)
		c := fb.emitValue(in, "cmp")
		if single {
			return c, nil
		}
		fb.copyTo(result, c)
		if i < len(n.Ops)-1 {
			t, f := fb.test(c, "compare_next", "compare_false")
			fb.switchTo(f)
			fb.jump(exit)
			fb.switchTo(t)
			left = right
		}
	}
	fb.jump(exit)
	fb.switchTo(exit)
	return result, nil
}

func (fb *funcBuilder) ifExp(n *parser.Node) (Reg, error) {
	if len(n.Body) == 0 || len(n.Orelse) == 0 {
		return Undefined, fb.errorf(n, "malformed conditional expression")
	}
	cond, err := fb.expr(n.Test)
	if err != nil {
		return Undefined, err
	}
	result := fb.temp("ifexp")
	t, f := fb.test(cond, "ifexp_true", "ifexp_false")
	exit := fb.cfg.CreateBlock("ifexp_exit")

	for _, arm := range []struct {
		block BlockID
		value *parser.Node
	}{{t, n.Body[0]}, {f, n.Orelse[0]}} {
		fb.switchTo(arm.block)
		v, err := fb.expr(arm.value)
		if err != nil {
			return Undefined, err
		}
		fb.copyTo(result, v)
		fb.jump(exit)
	}
	fb.switchTo(exit)
	return result, nil
}

// call lowers a call. Operands are laid out as callee (or receiver),
// positional arguments, keyword values, then *args and **kwargs.
func (fb *funcBuilder) call(n *parser.Node) (Reg, error) {
	callee := n.ValueNode()
	if callee == nil {
		return Undefined, fb.errorf(n, "call without callee")
	}
	in := newInstr(OpCall)
	if callee.Type == parser.NodeAttribute {
		recv, err := fb.expr(callee.ValueNode())
		if err != nil {
			return Undefined, err
		}
		in.Op = OpCallAttr
		in.Name = fb.cfg.Consts.Name(callee.Name)
		in.Args = []Reg{recv}
	} else {
		f, err := fb.expr(callee)
		if err != nil {
			return Undefined, err
		}
		in.Args = []Reg{f}
	}

	var pos []Reg
	star, collected := Undefined, Undefined
	for i, a := range n.Args {
		if a.Type == parser.NodeStarred {
			v, err := fb.expr(a.ValueNode())
			if err != nil {
				return Undefined, err
			}
			if collected.IsUndefined() && i == len(n.Args)-1 {
				star = v
				continue
			}
			if collected.IsUndefined() {
				collected = fb.value(OpMakeList, "args", pos...)
				pos = nil
			}
			ext := newInstr(OpListExtend)
			ext.Args = []Reg{collected, v}
			fb.emit(ext)
			continue
		}
		v, err := fb.expr(a)
		if err != nil {
			return Undefined, err
		}
		if collected.IsUndefined() {
			pos = append(pos, v)
			continue
		}
		app := newInstr(OpListAppend)
		app.Args = []Reg{collected, v}
		fb.emit(app)
	}
	if !collected.IsUndefined() {
		star = collected
	}

	var kwVals []Reg
	kwargs, merged := Undefined, Undefined
	for i, kw := range n.Keywords {
		v, err := fb.expr(kw.ValueNode())
		if err != nil {
			return Undefined, err
		}
		if kw.Name != "" {
			kwVals = append(kwVals, v)
			in.Kw = append(in.Kw, fb.cfg.Consts.Name(kw.Name))
			continue
		}
		if merged.IsUndefined() && kwargs.IsUndefined() && i == len(n.Keywords)-1 {
			kwargs = v
			continue
		}
		if merged.IsUndefined() {
			merged = fb.value(OpMakeDict, "kwargs")
			if !kwargs.IsUndefined() {
				fb.dictUpdate(merged, kwargs)
				kwargs = Undefined
			}
		}
		fb.dictUpdate(merged, v)
	}
	if !merged.IsUndefined() {
		kwargs = merged
	}

	in.Aux = int32(len(pos))
	in.Args = append(in.Args, pos...)
	in.Args = append(in.Args, kwVals...)
	if !star.IsUndefined() {
		in.Flags |= FlagStarArgs
		in.Args = append(in.Args, star)
	}
	if !kwargs.IsUndefined() {
		in.Flags |= FlagKwArgs
		in.Args = append(in.Args, kwargs)
	}
	return fb.emitValue(in, "call"), nil
}

func (fb *funcBuilder) dictUpdate(d, v Reg) {
	in := newInstr(OpDictUpdate)
	in.Args = []Reg{d, v}
	fb.emit(in)
}

// sequence lowers tuple, list and set displays, unpacking starred items.
func (fb *funcBuilder) sequence(n *parser.Node, op Opcode) (Reg, error) {
	hasStar := false
	for _, elt := range n.Children {
		if elt.Type == parser.NodeStarred {
			hasStar = true
		}
	}

	if !hasStar {
		items := make([]Reg, 0, len(n.Children))
		for _, elt := range n.Children {
			v, err := fb.expr(elt)
			if err != nil {
				return Undefined, err
			}
			items = append(items, v)
		}
		return fb.value(op, "seq", items...), nil
	}

	collect := OpMakeList
	if op == OpMakeSet {
		collect = OpMakeSet
	}
	acc := fb.value(collect, "seq")
	for _, elt := range n.Children {
		starred := elt.Type == parser.NodeStarred
		if starred {
			elt = elt.ValueNode()
		}
		v, err := fb.expr(elt)
		if err != nil {
			return Undefined, err
		}
		switch {
		case op == OpMakeSet && starred:
			in := newInstr(OpCallAttr)
			in.Name = fb.cfg.Consts.Name("update")
			in.Args = []Reg{acc, v}
			in.Aux = 1
			fb.emitValue(in, "call")
		case op == OpMakeSet:
			in := newInstr(OpSetAdd)
			in.Args = []Reg{acc, v}
			fb.emit(in)
		case starred:
			in := newInstr(OpListExtend)
			in.Args = []Reg{acc, v}
			fb.emit(in)
		default:
			in := newInstr(OpListAppend)
			in.Args = []Reg{acc, v}
			fb.emit(in)
		}
	}
	if op != OpMakeTuple {
		return acc, nil
	}
	load := newInstr(OpLoadGlobal)
	load.Name = fb.cfg.Consts.Name("tuple")
	conv := newInstr(OpCall)
	conv.Args = []Reg{fb.emitValue(load, "global"), acc}
	conv.Aux = 1
	return fb.emitValue(conv, "tuple"), nil
}

func (fb *funcBuilder) dict(n *parser.Node) (Reg, error) {
	var pairs []Reg
	d := Undefined
	for _, item := range n.Children {
		if item.Left == nil {
			v, err := fb.expr(item.ValueNode())
			if err != nil {
				return Undefined, err
			}
			if d.IsUndefined() {
				d = fb.value(OpMakeDict, "dict", pairs...)
				pairs = nil
			}
			fb.dictUpdate(d, v)
			continue
		}
		k, err := fb.expr(item.Left)
		if err != nil {
			return Undefined, err
		}
		v, err := fb.expr(item.ValueNode())
		if err != nil {
			return Undefined, err
		}
		if d.IsUndefined() {
			pairs = append(pairs, k, v)
			continue
		}
		set := newInstr(OpDictSet)
		set.Args = []Reg{d, k, v}
		fb.emit(set)
	}
	if d.IsUndefined() {
		d = fb.value(OpMakeDict, "dict", pairs...)
	}
	return d, nil
}

var conversions = map[string]int32{"": 0, "s": 1, "r": 2, "a": 3}

func (fb *funcBuilder) joinedStr(n *parser.Node) (Reg, error) {
	parts := make([]Reg, 0, len(n.Children))
	for _, part := range n.Children {
		if part.Type != parser.NodeFormattedValue {
			v, err := fb.expr(part)
			if err != nil {
				return Undefined, err
			}
			parts = append(parts, v)
			continue
		}
		v, err := fb.expr(part.ValueNode())
		if err != nil {
			return Undefined, err
		}
		spec := Undefined
		if len(part.Children) > 0 {
			if spec, err = fb.joinedStr(part.Children[0]); err != nil {
				return Undefined, err
			}
		}
		in := newInstr(OpFormat)
		in.Args = []Reg{v, spec}
		in.Aux = conversions[part.Op]
		parts = append(parts, fb.emitValue(in, "fmt"))
	}
	return fb.value(OpBuildString, "str", parts...), nil
}

// childCode builds the nested CFG of a scope-opening node and records it.
func (fb *funcBuilder) childCode(n *parser.Node) (*CFG, int32, error) {
	sc, ok := fb.owner.info.ScopeFor(n)
	if !ok {
		return nil, 0, internalErrorf(fb.cfg.Name, "no scope recorded for %s", n)
	}
	child, err := fb.owner.buildScope(sc)
	if err != nil {
		return nil, 0, err
	}
	fb.cfg.Children = append(fb.cfg.Children, child)
	return child, fb.cfg.Consts.Add(Const{Kind: ConstCode, Code: child}), nil
}

func closureFlags(sc *scope.Scope) Flags {
	var f Flags
	if sc.TakesClosure() {
		f |= FlagClosure
	}
	if sc.IsGenerator {
		f |= FlagGenerator
	}
	return f
}

// decorators evaluates decorator expressions in source order.
func (fb *funcBuilder) decorators(n *parser.Node) ([]Reg, error) {
	var out []Reg
	for _, d := range n.Decorator {
		v, err := fb.expr(d.ValueNode())
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// decorate applies decorators innermost first.
func (fb *funcBuilder) decorate(decs []Reg, v Reg) Reg {
	for i := len(decs) - 1; i >= 0; i-- {
		in := newInstr(OpCall)
		in.Args = []Reg{decs[i], v}
		in.Aux = 1
		v = fb.emitValue(in, "decorated")
	}
	return v
}

// makeFunction lowers def and lambda: decorators, then defaults, then the
// function object itself.
func (fb *funcBuilder) makeFunction(n *parser.Node) (Reg, error) {
	decs, err := fb.decorators(n)
	if err != nil {
		return Undefined, err
	}

	var positional, kwonly []Reg
	var kwNames []int32
	for _, arg := range n.Args {
		def := arg.ValueNode()
		if def == nil {
			continue
		}
		v, err := fb.expr(def)
		if err != nil {
			return Undefined, err
		}
		if arg.Level == 1 {
			kwonly = append(kwonly, v)
			kwNames = append(kwNames, fb.cfg.Consts.Name(arg.Name))
		} else {
			positional = append(positional, v)
		}
	}

	child, code, err := fb.childCode(n)
	if err != nil {
		return Undefined, err
	}
	in := newInstr(OpMakeFunction)
	in.Name = code
	in.Args = append(positional, kwonly...)
	in.Aux = int32(len(positional))
	in.Kw = kwNames
	in.Flags = closureFlags(child.Scope)
	fn := fb.emitValue(in, "func")
	return fb.decorate(decs, fn), nil
}

func (fb *funcBuilder) makeClass(n *parser.Node) (Reg, error) {
	decs, err := fb.decorators(n)
	if err != nil {
		return Undefined, err
	}
	bases := make([]Reg, 0, len(n.Bases))
	for _, b := range n.Bases {
		v, err := fb.expr(b)
		if err != nil {
			return Undefined, err
		}
		bases = append(bases, v)
	}
	tuple := fb.value(OpMakeTuple, "bases", bases...)

	in := newInstr(OpMakeClass)
	in.Args = []Reg{tuple}
	for _, kw := range n.Keywords {
		if kw.Name == "" {
			return Undefined, fb.errorf(kw, "class keyword unpacking is not supported")
		}
		v, err := fb.expr(kw.ValueNode())
		if err != nil {
			return Undefined, err
		}
		in.Args = append(in.Args, v)
		in.Kw = append(in.Kw, fb.cfg.Consts.Name(kw.Name))
	}

	child, code, err := fb.childCode(n)
	if err != nil {
		return Undefined, err
	}
	in.Name = code
	in.Flags = closureFlags(child.Scope)
	cls := fb.emitValue(in, "class")
	return fb.decorate(decs, cls), nil
}

// comprehension evaluates the outermost iterable here and calls a
// synthesized function that receives its iterator as the only argument.
func (fb *funcBuilder) comprehension(n *parser.Node) (Reg, error) {
	if len(n.Children) == 0 {
		return Undefined, fb.errorf(n, "comprehension without for clause")
	}
	for _, clause := range n.Children {
		if clause.Op == "async" {
			return Undefined, fb.errorf(clause, "asynchronous comprehensions are not supported")
		}
	}
	seq, err := fb.expr(n.Children[0].Iter)
	if err != nil {
		return Undefined, err
	}
	iter := fb.value(OpGetIter, "iter", seq)

	child, code, err := fb.childCode(n)
	if err != nil {
		return Undefined, err
	}
	mk := newInstr(OpMakeFunction)
	mk.Name = code
	mk.Flags = closureFlags(child.Scope)
	fn := fb.emitValue(mk, "func")

	call := newInstr(OpCall)
	call.Args = []Reg{fn, iter}
	call.Aux = 1
	return fb.emitValue(call, "comp"), nil
}

// comprehensionBody builds the synthesized function of a comprehension.
func (fb *funcBuilder) comprehensionBody(n *parser.Node) error {
	acc := Undefined
	switch n.Type {
	case parser.NodeListComp:
		acc = fb.value(OpMakeList, "acc")
	case parser.NodeSetComp:
		acc = fb.value(OpMakeSet, "acc")
	case parser.NodeDictComp:
		acc = fb.value(OpMakeDict, "acc")
	}

	element := func() error {
		if n.Type == parser.NodeDictComp {
			k, err := fb.expr(n.Left)
			if err != nil {
				return err
			}
			v, err := fb.expr(n.ValueNode())
			if err != nil {
				return err
			}
			in := newInstr(OpDictSet)
			in.Args = []Reg{acc, k, v}
			fb.emit(in)
			return nil
		}
		v, err := fb.expr(n.ValueNode())
		if err != nil {
			return err
		}
		switch n.Type {
		case parser.NodeListComp:
			in := newInstr(OpListAppend)
			in.Args = []Reg{acc, v}
			fb.emit(in)
		case parser.NodeSetComp:
			in := newInstr(OpSetAdd)
			in.Args = []Reg{acc, v}
			fb.emit(in)
		default:
			fb.value(OpYield, "sent", v)
		}
		return nil
	}

	if err := fb.clauses(n.Children, 0, element); err != nil {
		return err
	}
	if acc.IsUndefined() {
		acc = fb.none()
	}
	fb.ret(acc)
	return nil
}

// clauses lowers the for/if clauses of a comprehension from index i on.
// The first clause iterates the implicit argument directly.
func (fb *funcBuilder) clauses(cs []*parser.Node, i int, element func() error) error {
	if i == len(cs) {
		return element()
	}
	clause := cs[i]
	fb.setLine(clause)

	var iter Reg
	if i == 0 {
		iter = fb.value(OpLoadLocal, "load", fb.sym(scope.ComprehensionArg))
	} else {
		seq, err := fb.expr(clause.Iter)
		if err != nil {
			return err
		}
		iter = fb.value(OpGetIter, "iter", seq)
	}

	test := fb.cfg.CreateBlock("comp_test")
	fb.jump(test)
	fb.switchTo(test)
	more := fb.value(OpHasNext, "hasnext", iter)
	body, done := fb.branch(more, "comp_body", "comp_done")

	fb.switchTo(body)
	item := fb.value(OpIterNext, "next", iter)
	if len(clause.Targets) > 0 {
		if err := fb.assign(clause.Targets[0], item); err != nil {
			return err
		}
	}
	for _, cond := range clause.Children {
		c, err := fb.expr(cond)
		if err != nil {
			return err
		}
		keep, skip := fb.test(c, "comp_keep", "comp_skip")
		fb.switchTo(skip)
		fb.jump(test)
		fb.switchTo(keep)
	}
	if err := fb.clauses(cs, i+1, element); err != nil {
		return err
	}
	fb.jump(test)

	fb.switchTo(done)
	return nil
}
