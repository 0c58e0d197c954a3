package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// symOf returns the placeholder of a named symbol of an unallocated CFG.
func symOf(t *testing.T, cfg *CFG, name string) Reg {
	t.Helper()
	for i, s := range cfg.Symbols {
		if s == name {
			return SymReg(int32(i))
		}
	}
	require.Failf(t, "unknown symbol", "no symbol named %s", name)
	return Undefined
}

func TestAccessKind(t *testing.T) {
	tests := []struct {
		kind     AccessKind
		expected string
		isDef    bool
	}{
		{AccessRead, "read", false},
		{AccessWrite, "write", true},
		{AccessKill, "kill", true},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.kind.String())
			assert.Equal(t, tt.isDef, tt.kind.IsDef())
		})
	}
	assert.Equal(t, "unknown", AccessKind(99).String())
}

func TestCollectDefUse(t *testing.T) {
	t.Run("StraightLine", func(t *testing.T) {
		cfg := mustFunc(t, buildFinalized(t, "def f(a, b):\n    c = a + b\n    return c\n"), "f")
		info, err := CollectDefUse(cfg)
		require.NoError(t, err)

		a := symOf(t, cfg, "a")
		c := symOf(t, cfg, "c")
		regs := info.Registers()
		require.Len(t, regs, 7)
		assert.Equal(t, a, regs[0], "registers are listed in first-seen order")

		ua := info.Usage(a)
		require.NotNil(t, ua)
		assert.Equal(t, 1, ua.Reads)
		assert.Equal(t, 0, ua.Writes)
		assert.False(t, ua.IsCrossBlock())

		uc := info.Usage(c)
		require.NotNil(t, uc)
		require.Len(t, uc.Accesses, 2)
		assert.Equal(t, AccessWrite, uc.Accesses[0].Kind)
		assert.Equal(t, AccessRead, uc.Accesses[1].Kind)
		assert.Less(t, uc.Accesses[0].Pos, uc.Accesses[1].Pos)

		// every variable and temporary is read exactly once
		assert.Equal(t, 7, info.TotalReads())
		assert.Equal(t, 5, info.TotalWrites())
	})

	t.Run("ConstantsSkipped", func(t *testing.T) {
		cfg := mustFunc(t, buildFinalized(t, "def f():\n    return 1\n"), "f")
		info, err := CollectDefUse(cfg)
		require.NoError(t, err)
		assert.Empty(t, info.Registers())
		assert.Nil(t, info.Usage(ConstReg(0)))
	})

	t.Run("DeleteIsKill", func(t *testing.T) {
		cfg := mustFunc(t, buildFinalized(t, "def f():\n    x = 1\n    del x\n"), "f")
		info, err := CollectDefUse(cfg)
		require.NoError(t, err)

		u := info.Usage(symOf(t, cfg, "x"))
		require.NotNil(t, u)
		require.Len(t, u.Accesses, 2)
		assert.Equal(t, AccessWrite, u.Accesses[0].Kind)
		assert.Equal(t, AccessKill, u.Accesses[1].Kind)
		assert.Equal(t, 2, u.Writes)
		assert.Equal(t, 0, u.Reads)
	})

	t.Run("CrossBlock", func(t *testing.T) {
		cfg := mustFunc(t, buildFinalized(t, "def f(c):\n    if c:\n        y = 1\n    return y\n"), "f")
		info, err := CollectDefUse(cfg)
		require.NoError(t, err)

		u := info.Usage(symOf(t, cfg, "y"))
		require.NotNil(t, u)
		assert.True(t, u.IsCrossBlock())

		thenBlock := blocksLabeled(cfg, LabelIfTrue)[0]
		elseBlock := blocksLabeled(cfg, LabelIfFalse)[0]
		join := blocksLabeled(cfg, LabelIfExit)[0]

		kind, ok := u.FirstAccessIn(thenBlock.ID)
		require.True(t, ok)
		assert.Equal(t, AccessWrite, kind)

		kind, ok = u.FirstAccessIn(join.ID)
		require.True(t, ok)
		assert.Equal(t, AccessRead, kind)

		_, ok = u.FirstAccessIn(elseBlock.ID)
		assert.False(t, ok)
	})

	t.Run("AllocatedRegisters", func(t *testing.T) {
		cfg := mustFunc(t, compileSource(t, "def f(a):\n    b = a\n    return b\n"), "f")
		info, err := CollectDefUse(cfg)
		require.NoError(t, err)
		for _, r := range info.Registers() {
			assert.True(t, r.IsVirtual())
		}
		assert.NotNil(t, info.Usage(VReg(1)))
	})

	t.Run("NegativeRegister", func(t *testing.T) {
		cfg := NewCFG("broken", KindFunction)
		cfg.appendInstr(cfg.Entry, returnInstr(VReg(-1)))
		_, err := CollectDefUse(cfg)
		require.Error(t, err)
		assert.True(t, IsInternalError(err))
		assert.Contains(t, err.Error(), "negative register reference")
	})
}
