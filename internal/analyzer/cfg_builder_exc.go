package analyzer

import (
	"github.com/ludo-technologies/pyjit/internal/parser"
)

func (fb *funcBuilder) newHandler(dest BlockID) *handlerFrame {
	return &handlerFrame{
		dest: dest,
		typ:  fb.temp("exc_type"),
		val:  fb.temp("exc_value"),
		tb:   fb.temp("exc_tb"),
	}
}

func (fb *funcBuilder) tryStmt(n *parser.Node) error {
	switch {
	case len(n.Finalbody) > 0 && len(n.Handlers) > 0:
		return fb.tryFinally(n, func() error { return fb.tryExcept(n) })
	case len(n.Finalbody) > 0:
		return fb.tryFinally(n, func() error { return fb.stmts(n.Body) })
	case len(n.Handlers) > 0:
		return fb.tryExcept(n)
	default:
		return fb.stmts(n.Body)
	}
}

// tryExcept lowers the body under a handler frame, then tests the caught
// exception against each clause in order.
func (fb *funcBuilder) tryExcept(n *parser.Node) error {
	dispatch := fb.cfg.CreateBlock(LabelExceptions)
	h := fb.newHandler(dispatch)

	fb.pushHandler(h)
	if err := fb.stmts(n.Body); err != nil {
		return err
	}
	if err := fb.popHandler(h); err != nil {
		return err
	}
	if err := fb.stmts(n.Orelse); err != nil {
		return err
	}
	join := fb.cfg.CreateBlock(LabelTryJoin)
	fb.jump(join)

	fb.switchTo(dispatch)
	info := newInstr(OpSetExcInfo)
	info.Args = []Reg{h.typ, h.val, h.tb}
	fb.emit(info)

	caughtAll := false
	for i, handler := range n.Handlers {
		fb.setLine(handler)
		nomatch := NoBlock
		if typ := handler.ValueNode(); typ != nil {
			t, err := fb.expr(typ)
			if err != nil {
				return err
			}
			match := fb.value(OpCheckExcMatch, "match", h.val, t)
			var yes BlockID
			yes, nomatch = fb.branch(match, "except_match", "except_next")
			fb.switchTo(yes)
		} else {
			if i != len(n.Handlers)-1 {
				return fb.errorf(handler, "default 'except:' must be last")
			}
			caughtAll = true
		}

		if handler.Name != "" {
			if err := fb.storeName(handler.Name, h.val, handler); err != nil {
				return err
			}
		}
		if err := fb.stmts(handler.Body); err != nil {
			return err
		}
		fb.emit(newInstr(OpUncacheExcInfo))
		fb.jump(join)

		if nomatch != NoBlock {
			fb.switchTo(nomatch)
		}
	}
	if !caughtAll {
		fb.raise(FlagReraise, h.typ, h.val, h.tb)
	}

	fb.switchTo(join)
	return nil
}

// tryFinally runs body with every exit (fall through, break, continue,
// return, exception) funnelled into one finally block. The exit reason is
// kept in a why register and re-dispatched after the finally code.
func (fb *funcBuilder) tryFinally(n *parser.Node, body func() error) error {
	finally := fb.cfg.CreateBlock(LabelFinally)
	h := fb.newHandler(finally)
	h.why = fb.temp("why")
	cont := &continuation{
		continueTo: NoBlock,
		breakTo:    NoBlock,
		sayWhy:     true,
		finallyTo:  finally,
		why:        h.why,
		retval:     fb.temp("retval"),
	}

	fb.pushCont(cont)
	fb.pushHandler(h)
	if err := body(); err != nil {
		return err
	}
	if err := fb.popHandler(h); err != nil {
		return err
	}
	if err := fb.popCont(cont); err != nil {
		return err
	}
	cont.observed[WhyFallthrough] = true
	fb.copyTo(h.why, fb.intConst(WhyFallthrough))
	fb.jump(finally)

	// the landing pads feeding finally record WhyException themselves
	cont.observed[WhyException] = fb.hasLandingPred(finally)

	fb.switchTo(finally)
	if err := fb.stmts(n.Finalbody); err != nil {
		return err
	}
	fb.dispatch(cont, h)
	return nil
}

func (fb *funcBuilder) hasLandingPred(id BlockID) bool {
	for _, p := range fb.cfg.Block(id).Preds {
		if pb := fb.cfg.Block(p); pb.IsPlaced() && pb.Label == LabelLandingPad {
			return true
		}
	}
	return false
}

// withItems lowers `with a as x, b as y: body` as nested single-item blocks.
func (fb *funcBuilder) withItems(n *parser.Node, i int) error {
	if i == len(n.Children) {
		return fb.stmts(n.Body)
	}
	item := n.Children[i]
	fb.setLine(item)

	mgr, err := fb.expr(item.ValueNode())
	if err != nil {
		return err
	}
	load := newInstr(OpLoadClsAttr)
	load.Name = fb.cfg.Consts.Name("__exit__")
	load.Args = []Reg{mgr}
	exit := fb.emitValue(load, "exit")

	enter := newInstr(OpCallClsAttr)
	enter.Name = fb.cfg.Consts.Name("__enter__")
	enter.Args = []Reg{mgr}
	entered := fb.emitValue(enter, "enter")

	cleanup := fb.cfg.CreateBlock(LabelWithExit)
	excDest := fb.cfg.CreateBlock(LabelWithExc)
	h := fb.newHandler(excDest)
	cont := &continuation{
		continueTo: NoBlock,
		breakTo:    NoBlock,
		sayWhy:     true,
		finallyTo:  cleanup,
		why:        fb.temp("why"),
		retval:     fb.temp("retval"),
	}

	fb.pushCont(cont)
	fb.pushHandler(h)
	if len(item.Targets) > 0 {
		if err := fb.assign(item.Targets[0], entered); err != nil {
			return err
		}
	}
	if err := fb.withItems(n, i+1); err != nil {
		return err
	}
	if err := fb.popHandler(h); err != nil {
		return err
	}
	if err := fb.popCont(cont); err != nil {
		return err
	}
	cont.observed[WhyFallthrough] = true
	fb.copyTo(cont.why, fb.intConst(WhyFallthrough))
	fb.jump(cleanup)
	join := fb.cfg.CreateBlock(LabelWithJoin)

	// exceptional exit: __exit__(type, value, tb) decides whether to swallow
	fb.switchTo(excDest)
	call := newInstr(OpCall)
	call.Args = []Reg{exit, h.typ, h.val, h.tb}
	call.Aux = 3
	suppress := fb.emitValue(call, "exit_result")
	swallow, reraise := fb.test(suppress, "with_suppress", "with_reraise")
	fb.switchTo(reraise)
	fb.raise(FlagReraise, h.typ, h.val, h.tb)
	fb.switchTo(swallow)
	fb.jump(join)

	// every other exit: __exit__(None, None, None), then resume the exit
	fb.switchTo(cleanup)
	none := fb.none()
	call = newInstr(OpCall)
	call.Args = []Reg{exit, none, none, none}
	call.Aux = 3
	fb.emitValue(call, "exit_result")
	fb.dispatch(cont, h)
	fb.jump(join)

	fb.switchTo(join)
	return nil
}
