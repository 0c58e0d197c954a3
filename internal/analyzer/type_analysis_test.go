package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func analyzeTypes(t *testing.T, source, name string) (*CFG, *TypeAnalysis) {
	t.Helper()
	cfg := mustFunc(t, compileSource(t, source), name)
	ta, err := AnalyzeTypes(cfg)
	require.NoError(t, err)
	return cfg, ta
}

func TestTypeTag(t *testing.T) {
	assert.Equal(t, "unknown", TypeUnknown.String())
	assert.Equal(t, "int", TypeInt.String())
	assert.Equal(t, "any", TypeAny.String())
	assert.Equal(t, "TypeTag(200)", TypeTag(200).String())
}

func TestJoinTypes(t *testing.T) {
	tests := []struct {
		from, into, want TypeTag
	}{
		{TypeInt, TypeInt, TypeInt},
		{TypeUnknown, TypeStr, TypeStr},
		{TypeStr, TypeUnknown, TypeStr},
		{TypeInt, TypeFloat, TypeAny},
		{TypeAny, TypeInt, TypeAny},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, joinTypes(tt.from, tt.into), "%s into %s", tt.from, tt.into)
	}
}

func TestArithmetic(t *testing.T) {
	tests := []struct {
		name string
		op   Operator
		l, r TypeTag
		want TypeTag
	}{
		{"IntAdd", OpAdd, TypeInt, TypeInt, TypeInt},
		{"BoolPromotes", OpAdd, TypeBool, TypeInt, TypeInt},
		{"TrueDivision", OpDiv, TypeInt, TypeInt, TypeFloat},
		{"FloatWidens", OpMult, TypeInt, TypeFloat, TypeFloat},
		{"FloatShift", OpLShift, TypeFloat, TypeInt, TypeAny},
		{"StrConcat", OpAdd, TypeStr, TypeStr, TypeStr},
		{"ListConcat", OpAdd, TypeList, TypeList, TypeList},
		{"StrRepeat", OpMult, TypeStr, TypeInt, TypeAny},
		{"MatMult", OpMatMult, TypeInt, TypeInt, TypeAny},
		{"BoolAnd", OpBitAnd, TypeBool, TypeBool, TypeBool},
		{"BoolOr", OpBitOr, TypeBool, TypeBool, TypeBool},
		{"BoolXor", OpBitXor, TypeBool, TypeBool, TypeBool},
		{"BoolAndInt", OpBitAnd, TypeBool, TypeInt, TypeInt},
		{"BoolAddBool", OpAdd, TypeBool, TypeBool, TypeInt},
		{"BoolShift", OpLShift, TypeBool, TypeBool, TypeInt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, arithmetic(tt.op, tt.l, tt.r))
		})
	}
}

func TestTypeAnalysis(t *testing.T) {
	t.Run("StraightLine", func(t *testing.T) {
		cfg, ta := analyzeTypes(t, `
def f(a):
    x = 1
    y = x + 2
    z = x / 2
    s = "a" + "b"
    items = [x, y]
    return y
`, "f")
		end := cfg.Entry
		assert.Equal(t, TypeAny, ta.AtEnd(mustLookup(t, cfg, "a"), end), "parameters are unconstrained")
		assert.Equal(t, TypeInt, ta.AtEnd(mustLookup(t, cfg, "x"), end))
		assert.Equal(t, TypeInt, ta.AtEnd(mustLookup(t, cfg, "y"), end))
		assert.Equal(t, TypeFloat, ta.AtEnd(mustLookup(t, cfg, "z"), end))
		assert.Equal(t, TypeStr, ta.AtEnd(mustLookup(t, cfg, "s"), end))
		assert.Equal(t, TypeList, ta.AtEnd(mustLookup(t, cfg, "items"), end))
		assert.Equal(t, TypeUnknown, ta.AtStart(mustLookup(t, cfg, "x"), end))
	})

	t.Run("JoinConflict", func(t *testing.T) {
		cfg, ta := analyzeTypes(t, `
def f(c):
    if c:
        v = 1
    else:
        v = 1.5
    return v
`, "f")
		join := blocksLabeled(cfg, LabelIfExit)[0]
		assert.Equal(t, TypeAny, ta.AtStart(mustLookup(t, cfg, "v"), join.ID))
	})

	t.Run("JoinAgreement", func(t *testing.T) {
		cfg, ta := analyzeTypes(t, `
def f(c):
    if c:
        v = 1
    else:
        v = 2
    return v
`, "f")
		join := blocksLabeled(cfg, LabelIfExit)[0]
		assert.Equal(t, TypeInt, ta.AtStart(mustLookup(t, cfg, "v"), join.ID))
	})

	t.Run("UnboundPathKeepsType", func(t *testing.T) {
		cfg, ta := analyzeTypes(t, `
def f(c):
    if c:
        v = "s"
    return v
`, "f")
		join := blocksLabeled(cfg, LabelIfExit)[0]
		assert.Equal(t, TypeStr, ta.AtStart(mustLookup(t, cfg, "v"), join.ID))
	})

	t.Run("LoopWidens", func(t *testing.T) {
		cfg, ta := analyzeTypes(t, `
def f(n):
    v = 0
    while n:
        v = v / 2
    return v
`, "f")
		test := blocksLabeled(cfg, LabelWhileTest)[0]
		assert.Equal(t, TypeAny, ta.AtStart(mustLookup(t, cfg, "v"), test.ID))
	})

	t.Run("ResultTypes", func(t *testing.T) {
		cfg, ta := analyzeTypes(t, "def f(a, b):\n    return a < b\n", "f")
		compares := instrsOf(cfg, OpCompare)
		require.Len(t, compares, 1)

		var id InstrID = -1
		for _, bb := range cfg.Blocks() {
			for _, iid := range bb.Instrs {
				if cfg.Instr(iid).Op == OpCompare {
					id = iid
				}
			}
		}
		require.NotEqual(t, InstrID(-1), id)
		assert.Equal(t, TypeBool, ta.ResultType(id))

		entry := cfg.Block(cfg.Entry)
		last := entry.Instrs[len(entry.Instrs)-1]
		require.Equal(t, OpReturn, cfg.Instr(last).Op)
		assert.Equal(t, TypeUnknown, ta.ResultType(last), "return produces no value")
	})

	t.Run("RequiresAllocation", func(t *testing.T) {
		cfg := mustFunc(t, buildFinalized(t, "def f(a):\n    return a\n"), "f")
		_, err := AnalyzeTypes(cfg)
		require.Error(t, err)
		assert.True(t, IsInternalError(err))
	})
}
