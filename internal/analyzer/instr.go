package analyzer

import (
	"fmt"
	"strings"
)

// Opcode identifies the kind of an instruction. The set is closed: every
// switch over opcodes in this package is exhaustive.
type Opcode uint8

const (
	OpInvalid Opcode = iota

	// Variable access
	OpLoadLocal    // Dst = Args[0], raises if the local is unbound
	OpCopy         // Dst = Args[0]
	OpLoadGlobal   // Dst = globals[Name]
	OpLoadName     // Dst = locals dict, then globals, then builtins [Name]
	OpLoadClosure  // Dst = own closure[Aux]
	OpLoadDeref    // Dst = closure Aux2 hops up, slot Aux
	OpStoreGlobal  // globals[Name] = Args[0]
	OpStoreName    // locals dict[Name] = Args[0]
	OpStoreClosure // own closure[Aux] = Args[0]
	OpStoreDeref   // closure Aux2 hops up, slot Aux = Args[0]
	OpDeleteLocal  // Dst becomes unbound; raises if already unbound
	OpDeleteGlobal // del globals[Name]
	OpDeleteName   // del locals dict[Name]

	// Attribute, item and slice access
	OpLoadAttr    // Dst = Args[0].Name
	OpLoadClsAttr // Dst = type(Args[0]).Name bound to Args[0]
	OpStoreAttr   // Args[1].Name = Args[0]
	OpDeleteAttr  // del Args[0].Name
	OpLoadSub     // Dst = Args[0][Args[1]]
	OpStoreSub    // Args[1][Args[2]] = Args[0]
	OpDeleteSub   // del Args[0][Args[1]]
	OpLoadSlice   // Dst = Args[0][Args[1]:Args[2]:Args[3]]
	OpStoreSlice  // Args[1][Args[2]:Args[3]:Args[4]] = Args[0]
	OpDeleteSlice // del Args[0][Args[1]:Args[2]:Args[3]]

	// Operators; Aux holds the Operator
	OpBinary    // Dst = Args[0] op Args[1]
	OpAugBinary // Dst = Args[0] op= Args[1]
	OpUnary     // Dst = op Args[0]
	OpCompare   // Dst = Args[0] op Args[1]
	OpNonzero   // Dst = bool(Args[0])

	// Calls; Args = callee/receiver, positional, keyword values, [*args], [**kwargs]
	OpCall        // Dst = Args[0](...)
	OpCallAttr    // Dst = Args[0].Name(...)
	OpCallClsAttr // Dst = type(Args[0]).Name(Args[0], ...)

	// Containers
	OpMakeTuple  // Dst = (Args...)
	OpMakeList   // Dst = [Args...]
	OpMakeSet    // Dst = {Args...}
	OpMakeDict   // Dst = {Args[0]: Args[1], ...}
	OpMakeSlice  // Dst = slice(Args[0], Args[1], Args[2])
	OpListAppend // Args[0].append(Args[1])
	OpListExtend // Args[0].extend(Args[1])
	OpSetAdd     // Args[0].add(Args[1])
	OpDictSet    // Args[0][Args[1]] = Args[2]
	OpDictUpdate // Args[0].update(Args[1])

	// Iteration and unpacking
	OpGetIter  // Dst = iter(Args[0])
	OpHasNext  // Dst = Args[0] has another item
	OpIterNext // Dst = next(Args[0])
	OpUnpack   // Dst = tuple(Args[0]) checked against Aux items, starred at Aux2 (-1: none)
	OpTupleGet // Dst = Args[0][Aux]

	// Functions, classes and modules
	OpMakeFunction // Dst = function(code Name, defaults Args...); Flags carry closure/generator
	OpMakeClass    // Dst = class with body code Name, bases tuple Args[0], keywords Kw=Args[1:]
	OpImport       // Dst = __import__(Name, level Aux); FlagLeaf returns the leaf module
	OpImportFrom   // Dst = Args[0].Name, raising ImportError
	OpImportStar   // copy the public names of Args[0] into the namespace

	// Generators and coroutines
	OpYield     // Dst = yield Args[0]
	OpYieldFrom // Dst = yield from Args[0]
	OpAwait     // Dst = await Args[0]

	// Strings and legacy statements
	OpFormat      // Dst = format(Args[0], Args[1]) with conversion Aux
	OpBuildString // Dst = "".join(Args...)
	OpPrint       // print Args[1:] to Args[0] (Undefined: stdout); FlagNoNewline
	OpExec        // exec Args[0] in Args[1], Args[2]

	// Exception machinery
	OpLandingPad     // Dst = (type, value, traceback) of the in-flight exception
	OpSetExcInfo     // sys.exc_info() = (Args[0], Args[1], Args[2])
	OpUncacheExcInfo // clear sys.exc_info()
	OpCheckExcMatch  // Dst = Args[0] matches exception class(es) Args[1]

	// Terminators
	OpJump   // goto Target
	OpBranch // if Args[0] goto Target else Else
	OpReturn // return Args[0]
	OpRaise  // raise Args[0] [from Args[1]], or reraise (Args[0], Args[1], Args[2]) with FlagReraise

	numOpcodes
)

var opcodeNames = [...]string{
	OpInvalid:        "invalid",
	OpLoadLocal:      "load_local",
	OpCopy:           "copy",
	OpLoadGlobal:     "load_global",
	OpLoadName:       "load_name",
	OpLoadClosure:    "load_closure",
	OpLoadDeref:      "load_deref",
	OpStoreGlobal:    "store_global",
	OpStoreName:      "store_name",
	OpStoreClosure:   "store_closure",
	OpStoreDeref:     "store_deref",
	OpDeleteLocal:    "delete_local",
	OpDeleteGlobal:   "delete_global",
	OpDeleteName:     "delete_name",
	OpLoadAttr:       "load_attr",
	OpLoadClsAttr:    "load_clsattr",
	OpStoreAttr:      "store_attr",
	OpDeleteAttr:     "delete_attr",
	OpLoadSub:        "load_sub",
	OpStoreSub:       "store_sub",
	OpDeleteSub:      "delete_sub",
	OpLoadSlice:      "load_slice",
	OpStoreSlice:     "store_slice",
	OpDeleteSlice:    "delete_slice",
	OpBinary:         "binary",
	OpAugBinary:      "aug_binary",
	OpUnary:          "unary",
	OpCompare:        "compare",
	OpNonzero:        "nonzero",
	OpCall:           "call",
	OpCallAttr:       "call_attr",
	OpCallClsAttr:    "call_clsattr",
	OpMakeTuple:      "make_tuple",
	OpMakeList:       "make_list",
	OpMakeSet:        "make_set",
	OpMakeDict:       "make_dict",
	OpMakeSlice:      "make_slice",
	OpListAppend:     "list_append",
	OpListExtend:     "list_extend",
	OpSetAdd:         "set_add",
	OpDictSet:        "dict_set",
	OpDictUpdate:     "dict_update",
	OpGetIter:        "get_iter",
	OpHasNext:        "has_next",
	OpIterNext:       "iter_next",
	OpUnpack:         "unpack",
	OpTupleGet:       "tuple_get",
	OpMakeFunction:   "make_function",
	OpMakeClass:      "make_class",
	OpImport:         "import",
	OpImportFrom:     "import_from",
	OpImportStar:     "import_star",
	OpYield:          "yield",
	OpYieldFrom:      "yield_from",
	OpAwait:          "await",
	OpFormat:         "format",
	OpBuildString:    "build_string",
	OpPrint:          "print",
	OpExec:           "exec",
	OpLandingPad:     "landing_pad",
	OpSetExcInfo:     "set_exc_info",
	OpUncacheExcInfo: "uncache_exc_info",
	OpCheckExcMatch:  "check_exc_match",
	OpJump:           "jump",
	OpBranch:         "branch",
	OpReturn:         "return",
	OpRaise:          "raise",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) && opcodeNames[op] != "" {
		return opcodeNames[op]
	}
	return fmt.Sprintf("Opcode(%d)", int(op))
}

// IsTerminator reports whether the opcode ends a basic block.
func (op Opcode) IsTerminator() bool {
	switch op {
	case OpJump, OpBranch, OpReturn, OpRaise:
		return true
	default:
		return false
	}
}

// CanRaise reports whether executing the opcode may raise a Python exception.
// Inside a protected region such instructions end their block with an
// exception edge.
func (op Opcode) CanRaise() bool {
	switch op {
	case OpCopy, OpLoadClosure, OpStoreGlobal, OpStoreClosure, OpStoreDeref,
		OpMakeTuple, OpMakeList, OpMakeSlice, OpTupleGet, OpMakeFunction,
		OpLandingPad, OpSetExcInfo, OpUncacheExcInfo,
		OpJump, OpBranch, OpReturn:
		return false
	case OpInvalid, numOpcodes:
		return false
	default:
		return true
	}
}

// HasDst reports whether the opcode produces a value.
func (op Opcode) HasDst() bool {
	switch op {
	case OpLoadLocal, OpCopy, OpLoadGlobal, OpLoadName, OpLoadClosure, OpLoadDeref,
		OpLoadAttr, OpLoadClsAttr, OpLoadSub, OpLoadSlice,
		OpBinary, OpAugBinary, OpUnary, OpCompare, OpNonzero,
		OpCall, OpCallAttr, OpCallClsAttr,
		OpMakeTuple, OpMakeList, OpMakeSet, OpMakeDict, OpMakeSlice,
		OpGetIter, OpHasNext, OpIterNext, OpUnpack, OpTupleGet,
		OpMakeFunction, OpMakeClass, OpImport, OpImportFrom,
		OpYield, OpYieldFrom, OpAwait, OpFormat, OpBuildString,
		OpLandingPad, OpCheckExcMatch:
		return true
	case OpDeleteLocal:
		// the deleted register is the destination: it is killed, not read
		return true
	default:
		return false
	}
}

// Operator tags binary, unary and comparison instructions.
type Operator uint8

const (
	OpAdd Operator = iota
	OpSub
	OpMult
	OpMatMult
	OpDiv
	OpFloorDiv
	OpMod
	OpPow
	OpLShift
	OpRShift
	OpBitAnd
	OpBitOr
	OpBitXor
	OpInvert
	OpUSub
	OpUAdd
	OpNot
	OpEq
	OpNotEq
	OpLt
	OpLtE
	OpGt
	OpGtE
	OpIs
	OpIsNot
	OpIn
	OpNotIn
)

var operatorTokens = map[string]Operator{
	"+": OpAdd, "-": OpSub, "*": OpMult, "@": OpMatMult, "/": OpDiv, "//": OpFloorDiv,
	"%": OpMod, "**": OpPow, "<<": OpLShift, ">>": OpRShift, "&": OpBitAnd, "|": OpBitOr,
	"^": OpBitXor, "==": OpEq, "!=": OpNotEq, "<": OpLt, "<=": OpLtE, ">": OpGt,
	">=": OpGtE, "is": OpIs, "is not": OpIsNot, "in": OpIn, "not in": OpNotIn,
}

var unaryTokens = map[string]Operator{
	"~": OpInvert, "-": OpUSub, "+": OpUAdd, "not": OpNot,
}

var operatorNames = [...]string{
	OpAdd: "+", OpSub: "-", OpMult: "*", OpMatMult: "@", OpDiv: "/", OpFloorDiv: "//",
	OpMod: "%", OpPow: "**", OpLShift: "<<", OpRShift: ">>", OpBitAnd: "&", OpBitOr: "|",
	OpBitXor: "^", OpInvert: "~", OpUSub: "-", OpUAdd: "+", OpNot: "not", OpEq: "==",
	OpNotEq: "!=", OpLt: "<", OpLtE: "<=", OpGt: ">", OpGtE: ">=", OpIs: "is",
	OpIsNot: "is not", OpIn: "in", OpNotIn: "not in",
}

func (o Operator) String() string {
	if int(o) < len(operatorNames) {
		return operatorNames[o]
	}
	return fmt.Sprintf("Operator(%d)", int(o))
}

// Flags modify the meaning of an instruction.
type Flags uint8

const (
	FlagStarArgs  Flags = 1 << iota // call: Args carries *args before any **kwargs
	FlagKwArgs                      // call: last Arg is **kwargs
	FlagClosure                     // make_function/make_class: capture the current closure
	FlagGenerator                   // make_function: the code is a generator
	FlagReraise                     // raise: Args are (type, value, traceback)
	FlagLeaf                        // import: return the leaf module of a dotted name
	FlagNoNewline                   // print: trailing comma
)

// InstrID is a stable handle to an instruction in a CFG's arena.
type InstrID int32

// Instr is a fixed-size instruction record.
type Instr struct {
	Op    Opcode
	Flags Flags
	Dst   Reg
	Args  []Reg
	// Name is a constant-pool index of an identifier or code object, -1 if unused.
	Name int32
	Aux  int32
	Aux2 int32
	// Kw holds constant-pool indices of keyword argument names for calls.
	Kw []int32

	// Jump/Branch targets.
	Target, Else BlockID
	// Normal and Exc are set when the instruction is an invoke: it ends its
	// block and continues at Normal, or at Exc if it raised.
	Normal, Exc BlockID

	Line int32
}

func newInstr(op Opcode) Instr {
	return Instr{Op: op, Name: -1, Target: NoBlock, Else: NoBlock, Normal: NoBlock, Exc: NoBlock}
}

// IsInvoke reports whether the instruction carries exception edges.
func (in *Instr) IsInvoke() bool {
	return in.Exc != NoBlock
}

// IsTerminator reports whether the instruction ends its block.
func (in *Instr) IsTerminator() bool {
	return in.Op.IsTerminator() || in.IsInvoke()
}

// NumPositional is the number of positional arguments of a call.
func (in *Instr) NumPositional() int {
	return int(in.Aux)
}

// Reads calls fn for every register operand the instruction reads, in order.
func (in *Instr) Reads(fn func(Reg)) {
	for _, r := range in.Args {
		fn(r)
	}
}

// Writes reports the register the instruction writes, if any.
func (in *Instr) Writes() (Reg, bool) {
	if in.Op.HasDst() && in.Dst.Kind != RegUndefined {
		return in.Dst, true
	}
	return Reg{}, false
}

// Format renders the instruction using the CFG's constant pool.
func (in *Instr) Format(cfg *CFG) string {
	var sb strings.Builder
	if in.Op.HasDst() && in.Op != OpDeleteLocal {
		sb.WriteString(cfg.RegName(in.Dst))
		sb.WriteString(" = ")
	}
	sb.WriteString(in.Op.String())

	switch in.Op {
	case OpBinary, OpAugBinary, OpUnary, OpCompare:
		fmt.Fprintf(&sb, " %s", Operator(in.Aux))
	case OpLoadClosure, OpStoreClosure:
		fmt.Fprintf(&sb, " slot=%d", in.Aux)
	case OpLoadDeref, OpStoreDeref:
		fmt.Fprintf(&sb, " depth=%d slot=%d", in.Aux2, in.Aux)
	case OpUnpack:
		fmt.Fprintf(&sb, " n=%d", in.Aux)
		if in.Aux2 >= 0 {
			fmt.Fprintf(&sb, " star=%d", in.Aux2)
		}
	case OpTupleGet:
		fmt.Fprintf(&sb, " [%d]", in.Aux)
	case OpDeleteLocal:
		fmt.Fprintf(&sb, " %s", cfg.RegName(in.Dst))
	}
	if in.Name >= 0 {
		fmt.Fprintf(&sb, " %s", cfg.Consts.Get(in.Name))
	}
	for i, r := range in.Args {
		if i == 0 {
			sb.WriteString(" ")
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(cfg.RegName(r))
	}
	if len(in.Kw) > 0 {
		names := make([]string, len(in.Kw))
		for i, k := range in.Kw {
			names[i] = cfg.Consts.Get(k).String()
		}
		fmt.Fprintf(&sb, " kw=(%s)", strings.Join(names, ", "))
	}
	for _, f := range []struct {
		flag Flags
		name string
	}{
		{FlagStarArgs, "*args"}, {FlagKwArgs, "**kwargs"}, {FlagClosure, "closure"},
		{FlagGenerator, "generator"}, {FlagReraise, "reraise"}, {FlagLeaf, "leaf"},
		{FlagNoNewline, "nonl"},
	} {
		if in.Flags&f.flag != 0 {
			fmt.Fprintf(&sb, " +%s", f.name)
		}
	}

	switch in.Op {
	case OpJump:
		fmt.Fprintf(&sb, " -> %s", cfg.blockName(in.Target))
	case OpBranch:
		fmt.Fprintf(&sb, " -> %s, %s", cfg.blockName(in.Target), cfg.blockName(in.Else))
	}
	if in.IsInvoke() {
		fmt.Fprintf(&sb, " invoke -> %s unwind %s", cfg.blockName(in.Normal), cfg.blockName(in.Exc))
	}
	return sb.String()
}
