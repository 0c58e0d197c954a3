package analyzer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLiveness(t *testing.T) {
	cfg := mustFunc(t, compileSource(t, "def f(a, b):\n    return a and b\n"), "f")
	live, err := NewLiveness(cfg)
	require.NoError(t, err)

	entry := cfg.Block(cfg.Entry)
	onFalse := blocksLabeled(cfg, "bool_false")[0]
	onTrue := blocksLabeled(cfg, "bool_true")[0]
	exit := blocksLabeled(cfg, "bool_exit")[0]

	ret := cfg.Terminator(exit)
	require.NotNil(t, ret)
	result := ret.Args[0]
	require.Equal(t, RangeCrossBlock, cfg.VRegs.Range(int(result.N)))

	t.Run("CrossBlockTemporary", func(t *testing.T) {
		assert.True(t, live.IsLiveAtEnd(result, entry.ID))
		assert.True(t, live.IsLiveAtEnd(result, onFalse.ID))
		assert.True(t, live.IsLiveAtEnd(result, onTrue.ID))
		assert.False(t, live.IsLiveAtEnd(result, exit.ID), "nothing reads the result after the return")
	})

	t.Run("LiveAtStart", func(t *testing.T) {
		assert.False(t, live.IsLiveAtStart(result, entry.ID), "entry writes before reading")
		assert.True(t, live.IsLiveAtStart(result, onFalse.ID), "passes through untouched")
		assert.False(t, live.IsLiveAtStart(result, onTrue.ID), "overwritten by the second operand")
		assert.True(t, live.IsLiveAtStart(result, exit.ID))
	})

	t.Run("LiveBlocks", func(t *testing.T) {
		assert.ElementsMatch(t, []int{entry.Index, onFalse.Index, onTrue.Index}, live.LiveBlocks(result))
	})

	t.Run("UserVisibleAlwaysLive", func(t *testing.T) {
		a := mustLookup(t, cfg, "a")
		assert.True(t, live.IsLiveAtEnd(a, exit.ID))
		assert.True(t, live.IsLiveAtStart(a, exit.ID))
		assert.Len(t, live.LiveBlocks(a), cfg.Size())
	})

	t.Run("SingleBlockTemporariesDie", func(t *testing.T) {
		for i := cfg.VRegs.SingleStart(); i < cfg.VRegs.Total(); i++ {
			assert.Empty(t, live.LiveBlocks(VReg(i)), "r%d", i)
		}
	})

	t.Run("UntouchedRegister", func(t *testing.T) {
		assert.False(t, live.IsLiveAtEnd(VReg(cfg.VRegs.Total()+5), entry.ID))
	})

	t.Run("ConcurrentQueries", func(t *testing.T) {
		fresh, err := NewLiveness(cfg)
		require.NoError(t, err)

		var wg sync.WaitGroup
		results := make([]bool, 16)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = fresh.IsLiveAtEnd(result, entry.ID)
			}(i)
		}
		wg.Wait()
		for _, r := range results {
			assert.True(t, r)
		}
	})
}

func TestLivenessLoop(t *testing.T) {
	cfg := mustFunc(t, compileSource(t, `
def f(n):
    total = 0
    while n:
        total = total + (n if n > 2 else 1)
        n = n - 1
    return total
`), "f")
	live, err := NewLiveness(cfg)
	require.NoError(t, err)

	body := blocksLabeled(cfg, LabelWhileBody)
	require.Len(t, body, 1)
	join := blocksLabeled(cfg, "ifexp_exit")
	require.Len(t, join, 1)

	// the conditional expression result crosses blocks but dies at the add
	var result Reg
	for _, id := range join[0].Instrs {
		in := cfg.Instr(id)
		if in.Op == OpBinary {
			result = in.Args[1]
			break
		}
	}
	require.True(t, result.IsVirtual())
	assert.Equal(t, RangeCrossBlock, cfg.VRegs.Range(int(result.N)))
	assert.False(t, live.IsLiveAtEnd(result, join[0].ID))
	assert.False(t, live.IsLiveAtStart(result, body[0].ID))
}
