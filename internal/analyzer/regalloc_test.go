package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileWith(t *testing.T, source string, opts CompileOptions) *Program {
	t.Helper()
	prog, err := Compile(parseSource(t, source), opts)
	require.NoError(t, err)
	return prog
}

func mustLookup(t *testing.T, cfg *CFG, name string) Reg {
	t.Helper()
	require.NotNil(t, cfg.VRegs)
	r, ok := cfg.VRegs.Lookup(name)
	require.True(t, ok, "no register for %s", name)
	return r
}

func TestRegisterAllocator(t *testing.T) {
	const straight = `
def f(a, b):
    c = a + b
    return c
`

	t.Run("UserRangeFirst", func(t *testing.T) {
		cfg := mustFunc(t, compileSource(t, straight), "f")
		vr := cfg.VRegs
		require.NotNil(t, vr)
		assert.Nil(t, cfg.Symbols, "placeholders are gone after allocation")

		assert.Equal(t, 2, vr.NumParams)
		assert.Equal(t, 3, vr.NumUser)
		assert.Equal(t, []string{"a", "b", "c"}, vr.UserNames())
		assert.Equal(t, VReg(2), mustLookup(t, cfg, "c"))
		assert.Equal(t, 0, vr.NumCross)
		assert.Equal(t, 3, vr.CrossStart())
		assert.Equal(t, 3, vr.SingleStart())
	})

	t.Run("SingleBlockReuse", func(t *testing.T) {
		cfg := mustFunc(t, compileSource(t, straight), "f")
		// two loads and the sum overlap, the final load reuses a slot
		assert.Equal(t, 3, cfg.VRegs.NumSingle)
		assert.Equal(t, 6, cfg.VRegs.Total())

		loads := instrsOf(cfg, OpLoadLocal)
		require.Len(t, loads, 3)
		assert.Equal(t, loads[0].Dst, loads[2].Dst)
		assert.NotEqual(t, loads[0].Dst, loads[1].Dst)
	})

	t.Run("NoReuse", func(t *testing.T) {
		opts := DefaultCompileOptions()
		opts.Allocator.ReuseSingleBlock = false
		cfg := mustFunc(t, compileWith(t, straight, opts), "f")
		assert.Equal(t, 4, cfg.VRegs.NumSingle)

		seen := make(map[Reg]bool)
		for _, in := range instrsOf(cfg, OpLoadLocal) {
			assert.False(t, seen[in.Dst], "register %s assigned twice", in.Dst)
			seen[in.Dst] = true
		}
	})

	t.Run("ParameterOrder", func(t *testing.T) {
		cfg := mustFunc(t, compileSource(t, "def f(b, a):\n    x = a\n    return b\n"), "f")
		assert.Equal(t, []string{"b", "a", "x"}, cfg.VRegs.UserNames())
		assert.Equal(t, 2, cfg.VRegs.NumParams)
	})

	t.Run("UnreachableNamesKeepRegister", func(t *testing.T) {
		cfg := mustFunc(t, compileSource(t, "def f():\n    return 1\n    x = 2\n"), "f")
		assert.Equal(t, []string{"x"}, cfg.VRegs.UserNames())
		assert.Equal(t, 0, cfg.VRegs.NumParams)
	})

	t.Run("DeadTemporaryDemoted", func(t *testing.T) {
		cfg := mustFunc(t, compileSource(t, "def f(g):\n    g()\n"), "f")
		calls := instrsOf(cfg, OpCall)
		require.Len(t, calls, 1)
		assert.True(t, calls[0].Dst.IsUndefined(), "the unused call result gets no register")
		assert.True(t, calls[0].Args[0].IsVirtual())
	})

	t.Run("CrossBlockTemporary", func(t *testing.T) {
		cfg := mustFunc(t, compileSource(t, "def f(a, b):\n    return a and b\n"), "f")
		vr := cfg.VRegs
		require.GreaterOrEqual(t, vr.NumCross, 1)

		exit := blocksLabeled(cfg, "bool_exit")
		require.Len(t, exit, 1)
		ret := cfg.Terminator(exit[0])
		require.NotNil(t, ret)
		require.Equal(t, OpReturn, ret.Op)
		result := ret.Args[0]
		require.True(t, result.IsVirtual())
		assert.Equal(t, RangeCrossBlock, vr.Range(int(result.N)))
		assert.NotEmpty(t, vr.Name(int(result.N)))
	})

	t.Run("EveryOperandAllocated", func(t *testing.T) {
		prog := compileSource(t, `
def f(xs):
    total = 0
    try:
        for x in xs:
            total += x
    except TypeError as e:
        return e
    finally:
        print(total)
    return total
`)
		cfg := mustFunc(t, prog, "f")
		for _, bb := range cfg.Blocks() {
			for _, id := range bb.Instrs {
				in := cfg.Instr(id)
				for _, r := range append([]Reg{in.Dst}, in.Args...) {
					assert.NotEqual(t, RegSymbol, r.Kind, "placeholder left in %s", in.Format(cfg))
					if r.IsVirtual() {
						assert.Less(t, int(r.N), cfg.VRegs.Total())
					}
				}
			}
		}
	})

	t.Run("AlreadyAllocated", func(t *testing.T) {
		cfg := mustFunc(t, compileSource(t, straight), "f")
		_, err := NewRegisterAllocator(DefaultRegAllocOptions()).Allocate(cfg)
		require.Error(t, err)
		assert.True(t, IsInternalError(err))
		assert.Contains(t, err.Error(), "registers already allocated")
	})

	t.Run("RangeNames", func(t *testing.T) {
		assert.Equal(t, "user", RangeUser.String())
		assert.Equal(t, "cross-block", RangeCrossBlock.String())
		assert.Equal(t, "single-block", RangeSingleBlock.String())
	})
}

func TestVRegInfo(t *testing.T) {
	cfg := mustFunc(t, compileSource(t, "def f(a):\n    b = a\n    return b\n"), "f")
	vr := cfg.VRegs

	t.Run("Ranges", func(t *testing.T) {
		assert.Equal(t, RangeUser, vr.Range(0))
		assert.Equal(t, RangeUser, vr.Range(1))
		assert.Equal(t, RangeSingleBlock, vr.Range(vr.SingleStart()))
		assert.True(t, vr.IsUserVisible(1))
		assert.False(t, vr.IsUserVisible(vr.SingleStart()))
		assert.False(t, vr.IsUserVisible(-1))
	})

	t.Run("Names", func(t *testing.T) {
		assert.Equal(t, "a", vr.Name(0))
		assert.Equal(t, "b", vr.Name(1))
		assert.Empty(t, vr.Name(vr.SingleStart()), "single-block registers are anonymous")
		assert.Empty(t, vr.Name(-1))

		_, ok := vr.Lookup("missing")
		assert.False(t, ok)
	})

	t.Run("RegName", func(t *testing.T) {
		assert.Equal(t, "r1(b)", cfg.RegName(VReg(1)))
	})
}
