package analyzer

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ludo-technologies/pyjit/internal/parser"
)

// ConstKind identifies the payload of a constant.
type ConstKind uint8

const (
	ConstNone ConstKind = iota
	ConstBool
	ConstInt
	ConstBigInt
	ConstFloat
	ConstImag
	ConstStr
	ConstBytes
	ConstEllipsis
	// ConstName is an identifier: attribute, global or module name.
	ConstName
	// ConstCode is a nested code object.
	ConstCode
)

// Const is one constant pool entry.
type Const struct {
	Kind  ConstKind
	Int   int64
	Float float64
	// Str carries strings, bytes, names and the literal text of big ints and
	// imaginary numbers.
	Str  string
	Code *CFG
}

func (c Const) String() string {
	switch c.Kind {
	case ConstNone:
		return "None"
	case ConstBool:
		if c.Int != 0 {
			return "True"
		}
		return "False"
	case ConstInt:
		return strconv.FormatInt(c.Int, 10)
	case ConstFloat:
		return strconv.FormatFloat(c.Float, 'g', -1, 64)
	case ConstBigInt, ConstImag:
		return c.Str
	case ConstStr:
		return strconv.Quote(c.Str)
	case ConstBytes:
		return "b" + strconv.Quote(c.Str)
	case ConstEllipsis:
		return "..."
	case ConstName:
		return "'" + c.Str + "'"
	case ConstCode:
		if c.Code == nil {
			return "<code>"
		}
		return fmt.Sprintf("<code %s>", c.Code.Name)
	default:
		return "?"
	}
}

type constKey struct {
	kind ConstKind
	i    int64
	f    uint64
	s    string
}

// ConstPool interns the constants of one CFG. Code objects are never shared.
type ConstPool struct {
	items []Const
	index map[constKey]int32
}

// NewConstPool creates an empty pool.
func NewConstPool() *ConstPool {
	return &ConstPool{index: make(map[constKey]int32)}
}

// Add interns c and returns its index.
func (p *ConstPool) Add(c Const) int32 {
	if c.Kind == ConstCode {
		p.items = append(p.items, c)
		return int32(len(p.items) - 1)
	}
	key := constKey{kind: c.Kind, i: c.Int, f: math.Float64bits(c.Float), s: c.Str}
	if idx, ok := p.index[key]; ok {
		return idx
	}
	idx := int32(len(p.items))
	p.items = append(p.items, c)
	p.index[key] = idx
	return idx
}

// Name interns an identifier.
func (p *ConstPool) Name(s string) int32 {
	return p.Add(Const{Kind: ConstName, Str: s})
}

// Int interns an integer.
func (p *ConstPool) Int(v int64) int32 {
	return p.Add(Const{Kind: ConstInt, Int: v})
}

// None interns None.
func (p *ConstPool) None() int32 {
	return p.Add(Const{Kind: ConstNone})
}

// Str interns a string.
func (p *ConstPool) Str(s string) int32 {
	return p.Add(Const{Kind: ConstStr, Str: s})
}

// Get returns constant i.
func (p *ConstPool) Get(i int32) Const {
	if i < 0 || int(i) >= len(p.items) {
		return Const{Kind: ConstNone}
	}
	return p.items[i]
}

// Len returns the number of constants.
func (p *ConstPool) Len() int {
	return len(p.items)
}

// FromLiteral converts the value of a parser Constant node.
func FromLiteral(v interface{}) (Const, error) {
	switch val := v.(type) {
	case nil:
		return Const{Kind: ConstNone}, nil
	case bool:
		c := Const{Kind: ConstBool}
		if val {
			c.Int = 1
		}
		return c, nil
	case int64:
		return Const{Kind: ConstInt, Int: val}, nil
	case float64:
		return Const{Kind: ConstFloat, Float: val}, nil
	case string:
		return Const{Kind: ConstStr, Str: val}, nil
	case parser.Bytes:
		return Const{Kind: ConstBytes, Str: string(val)}, nil
	case parser.BigInt:
		return Const{Kind: ConstBigInt, Str: string(val)}, nil
	case parser.Imaginary:
		return Const{Kind: ConstImag, Str: strings.ToLower(string(val))}, nil
	case parser.Ellipsis:
		return Const{Kind: ConstEllipsis}, nil
	default:
		return Const{}, fmt.Errorf("unsupported literal %T", v)
	}
}
