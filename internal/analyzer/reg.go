package analyzer

import "fmt"

// RegKind tells how a register reference is resolved.
type RegKind uint8

const (
	// RegUndefined is the sentinel for "no value". It is the zero Reg.
	RegUndefined RegKind = iota
	// RegConst references an entry of the CFG's constant pool.
	RegConst
	// RegSymbol is a placeholder keyed by the CFG symbol table. Only
	// present between construction and register allocation.
	RegSymbol
	// RegVirtual is a final register index.
	RegVirtual
)

// Reg is a register reference used as an instruction operand or destination.
type Reg struct {
	Kind RegKind
	N    int32
}

// Undefined is the "no value" operand.
var Undefined = Reg{}

// ConstReg references constant i of the pool.
func ConstReg(i int32) Reg { return Reg{Kind: RegConst, N: i} }

// SymReg references symbol i of the CFG symbol table.
func SymReg(i int32) Reg { return Reg{Kind: RegSymbol, N: i} }

// VReg references final register i.
func VReg(i int) Reg { return Reg{Kind: RegVirtual, N: int32(i)} }

// IsUndefined reports whether r is the sentinel.
func (r Reg) IsUndefined() bool { return r.Kind == RegUndefined }

// IsConst reports whether r is an immediate constant.
func (r Reg) IsConst() bool { return r.Kind == RegConst }

// IsVirtual reports whether r is an allocated register.
func (r Reg) IsVirtual() bool { return r.Kind == RegVirtual }

func (r Reg) String() string {
	switch r.Kind {
	case RegUndefined:
		return "undef"
	case RegConst:
		return fmt.Sprintf("c%d", r.N)
	case RegSymbol:
		return fmt.Sprintf("s%d", r.N)
	default:
		return fmt.Sprintf("r%d", r.N)
	}
}

// syntheticPrefix marks compiler-generated symbol names. Source identifiers
// can never start with it.
const syntheticPrefix = "#"

// IsSyntheticName reports whether a symbol name was generated by the builder.
func IsSyntheticName(name string) bool {
	return len(name) > 0 && name[0] == syntheticPrefix[0]
}
