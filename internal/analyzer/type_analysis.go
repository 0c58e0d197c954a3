package analyzer

import "fmt"

// TypeTag is a speculative type in a flat lattice with Unknown at the
// bottom and Any at the top.
type TypeTag uint8

const (
	TypeUnknown TypeTag = iota
	TypeNone
	TypeBool
	TypeInt
	TypeFloat
	TypeStr
	TypeBytes
	TypeTuple
	TypeList
	TypeDict
	TypeSet
	TypeFunction
	TypeClass
	TypeAny
)

var typeNames = [...]string{
	TypeUnknown: "unknown", TypeNone: "none", TypeBool: "bool", TypeInt: "int",
	TypeFloat: "float", TypeStr: "str", TypeBytes: "bytes", TypeTuple: "tuple",
	TypeList: "list", TypeDict: "dict", TypeSet: "set", TypeFunction: "function",
	TypeClass: "class", TypeAny: "any",
}

func (t TypeTag) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("TypeTag(%d)", int(t))
}

// joinTypes is the least upper bound of two tags.
func joinTypes(from, into TypeTag) TypeTag {
	switch {
	case from == into, from == TypeUnknown:
		return into
	case into == TypeUnknown:
		return from
	default:
		return TypeAny
	}
}

func constType(c Const) TypeTag {
	switch c.Kind {
	case ConstNone:
		return TypeNone
	case ConstBool:
		return TypeBool
	case ConstInt, ConstBigInt:
		return TypeInt
	case ConstFloat:
		return TypeFloat
	case ConstStr, ConstName:
		return TypeStr
	case ConstBytes:
		return TypeBytes
	default:
		return TypeAny
	}
}

// TypeAnalysis holds speculative register types per block and the result
// type of every value-producing instruction.
type TypeAnalysis struct {
	cfg     *CFG
	fp      *FixedPoint[TypeTag]
	results map[InstrID]TypeTag
}

// AnalyzeTypes propagates type tags over an allocated CFG. Parameters start
// as Any, every other register as Unknown.
func AnalyzeTypes(cfg *CFG) (*TypeAnalysis, error) {
	if cfg.VRegs == nil {
		return nil, internalErrorf(cfg.Name, "type analysis requires allocated registers")
	}
	ta := &TypeAnalysis{cfg: cfg, results: make(map[InstrID]TypeTag)}
	initial := make([]TypeTag, cfg.VRegs.Total())
	for i := 0; i < cfg.VRegs.NumParams; i++ {
		initial[i] = TypeAny
	}

	fp, err := ComputeFixedPoint(cfg, Dataflow[TypeTag]{
		Start:   cfg.Entry,
		Initial: initial,
		Merge:   joinTypes,
		Process: func(state []TypeTag, bb *BasicBlock) error {
			for _, iid := range bb.Instrs {
				in := cfg.Instr(iid)
				dst, ok := in.Writes()
				if !ok || !dst.IsVirtual() {
					continue
				}
				if int(dst.N) >= len(state) {
					return internalErrorf(cfg.Name, "register %s out of range", dst)
				}
				t := ta.transfer(in, state)
				state[dst.N] = t
				ta.results[iid] = t
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	ta.fp = fp
	return ta, nil
}

func (ta *TypeAnalysis) operand(r Reg, state []TypeTag) TypeTag {
	switch {
	case r.IsConst():
		return constType(ta.cfg.Consts.Get(r.N))
	case r.IsVirtual() && int(r.N) < len(state):
		return state[r.N]
	default:
		return TypeAny
	}
}

func (ta *TypeAnalysis) transfer(in *Instr, state []TypeTag) TypeTag {
	arg := func(i int) TypeTag {
		if i >= len(in.Args) {
			return TypeAny
		}
		return ta.operand(in.Args[i], state)
	}

	switch in.Op {
	case OpCopy, OpLoadLocal:
		return arg(0)
	case OpDeleteLocal:
		return TypeUnknown
	case OpCompare, OpNonzero, OpHasNext, OpCheckExcMatch:
		return TypeBool
	case OpMakeTuple:
		return TypeTuple
	case OpMakeList:
		return TypeList
	case OpMakeDict:
		return TypeDict
	case OpMakeSet:
		return TypeSet
	case OpMakeFunction:
		return TypeFunction
	case OpMakeClass:
		return TypeClass
	case OpFormat, OpBuildString:
		return TypeStr
	case OpUnary:
		switch t := arg(0); Operator(in.Aux) {
		case OpNot:
			return TypeBool
		case OpUSub, OpUAdd:
			if t == TypeInt || t == TypeFloat {
				return t
			}
		case OpInvert:
			if t == TypeInt || t == TypeBool {
				return TypeInt
			}
		}
		return TypeAny
	case OpBinary, OpAugBinary:
		return arithmetic(Operator(in.Aux), arg(0), arg(1))
	default:
		return TypeAny
	}
}

func arithmetic(op Operator, l, r TypeTag) TypeTag {
	numeric := func(t TypeTag) bool { return t == TypeInt || t == TypeFloat || t == TypeBool }
	switch {
	case op == OpAdd && l == r && (l == TypeStr || l == TypeBytes || l == TypeList || l == TypeTuple):
		return l
	case !numeric(l) || !numeric(r):
		return TypeAny
	case l == TypeBool && r == TypeBool && (op == OpBitAnd || op == OpBitOr || op == OpBitXor):
		return TypeBool
	case op == OpDiv:
		return TypeFloat
	case l == TypeFloat || r == TypeFloat:
		switch op {
		case OpAdd, OpSub, OpMult, OpFloorDiv, OpMod, OpPow:
			return TypeFloat
		}
		return TypeAny
	default:
		switch op {
		case OpAdd, OpSub, OpMult, OpFloorDiv, OpMod, OpLShift, OpRShift, OpBitAnd, OpBitOr, OpBitXor:
			return TypeInt
		}
		return TypeAny
	}
}

// ResultType returns the type produced by an instruction, Unknown if it
// produces no value or was never reached.
func (ta *TypeAnalysis) ResultType(id InstrID) TypeTag {
	return ta.results[id]
}

// AtStart returns the type of r at the entry of block b.
func (ta *TypeAnalysis) AtStart(r Reg, b BlockID) TypeTag {
	states := ta.fp.AtStart(b)
	if !r.IsVirtual() || int(r.N) >= len(states) {
		return TypeUnknown
	}
	return states[r.N]
}

// AtEnd returns the type of r at the exit of block b.
func (ta *TypeAnalysis) AtEnd(r Reg, b BlockID) TypeTag {
	states := ta.fp.AtEnd(b)
	if !r.IsVirtual() || int(r.N) >= len(states) {
		return TypeUnknown
	}
	return states[r.N]
}
