package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFinalize(t *testing.T) {
	t.Run("DropsDeadCode", func(t *testing.T) {
		prog, err := BuildProgram(parseSource(t, `
def f(x):
    return x
    print("never")
`), nil)
		require.NoError(t, err)
		cfg := mustFunc(t, prog, "f")

		require.NoError(t, cfg.Finalize())
		assert.Equal(t, 1, cfg.Size())
		assert.Equal(t, 1, cfg.DeadBlocks)
		for i, bb := range cfg.Blocks() {
			assert.Equal(t, BlockID(i), bb.ID, "IDs match placement after finalization")
		}
	})

	t.Run("PlacedButUnreachable", func(t *testing.T) {
		cfg := NewCFG("f", KindFunction)
		cfg.appendInstr(cfg.Entry, returnInstr(ConstReg(cfg.Consts.None())))
		orphan := cfg.CreateBlock("orphan")
		cfg.appendInstr(orphan, returnInstr(ConstReg(cfg.Consts.None())))
		cfg.place(orphan)

		err := cfg.Finalize()
		require.Error(t, err)
		assert.True(t, IsInternalError(err))
		assert.Contains(t, err.Error(), "unreachable from entry")
	})

	t.Run("JumpToUnplacedBlock", func(t *testing.T) {
		cfg := NewCFG("f", KindFunction)
		target := cfg.CreateBlock("target")
		cfg.appendInstr(cfg.Entry, jumpInstr(target))

		err := cfg.Finalize()
		require.Error(t, err)
		assert.True(t, IsInternalError(err))
		assert.Contains(t, err.Error(), "never placed")
	})

	t.Run("DropsUnplacedPreds", func(t *testing.T) {
		cfg := NewCFG("f", KindFunction)
		join := cfg.CreateBlock("join")
		dead := cfg.CreateBlock("dead")
		link(cfg, cfg.Entry, jumpInstr(join))
		cfg.appendInstr(dead, jumpInstr(join))
		cfg.addPred(join, dead)
		cfg.appendInstr(join, returnInstr(ConstReg(cfg.Consts.None())))

		require.NoError(t, cfg.Finalize())
		assert.Equal(t, []BlockID{0}, cfg.Block(1).Preds)
		assert.Equal(t, 1, cfg.DeadBlocks)
	})
}

func TestMergeBlocks(t *testing.T) {
	t.Run("Chain", func(t *testing.T) {
		cfg := NewCFG("chain", KindFunction)
		a := cfg.CreateBlock("A")
		b := cfg.CreateBlock("B")
		link(cfg, cfg.Entry, jumpInstr(a))
		link(cfg, a, jumpInstr(b))
		link(cfg, b, returnInstr(ConstReg(cfg.Consts.None())))
		require.NoError(t, cfg.Finalize())

		merged, err := cfg.MergeBlocks()
		require.NoError(t, err)
		assert.Equal(t, 2, merged)
		assert.Equal(t, 1, cfg.Size())

		entry := cfg.Block(cfg.Entry)
		require.Len(t, entry.Instrs, 1)
		assert.Equal(t, OpReturn, cfg.Instr(entry.Instrs[0]).Op)
	})

	t.Run("RewritesSuccessorPreds", func(t *testing.T) {
		cfg := NewCFG("f", KindFunction)
		a := cfg.CreateBlock("A")
		b := cfg.CreateBlock("B")
		c := cfg.CreateBlock("C")
		cond := ConstReg(cfg.Consts.Add(Const{Kind: ConstBool, Int: 1}))
		link(cfg, cfg.Entry, jumpInstr(a))
		link(cfg, a, branchInstr(cond, b, c))
		link(cfg, b, returnInstr(cond))
		link(cfg, c, returnInstr(cond))
		require.NoError(t, cfg.Finalize())

		merged, err := cfg.MergeBlocks()
		require.NoError(t, err)
		assert.Equal(t, 1, merged)
		require.Equal(t, 3, cfg.Size())
		assert.Equal(t, "B", cfg.Block(1).Label)
		assert.Equal(t, []BlockID{0}, cfg.Block(1).Preds)
		assert.Equal(t, []BlockID{0}, cfg.Block(2).Preds)
		require.NoError(t, cfg.Verify())
	})

	t.Run("JoinNotAbsorbed", func(t *testing.T) {
		cfg, _, _, _ := diamond()
		require.NoError(t, cfg.Finalize())
		merged, err := cfg.MergeBlocks()
		require.NoError(t, err)
		assert.Zero(t, merged)
		assert.Equal(t, 4, cfg.Size())
	})

	t.Run("SelfLoopNotAbsorbed", func(t *testing.T) {
		cfg := NewCFG("spin", KindFunction)
		a := cfg.CreateBlock("A")
		link(cfg, cfg.Entry, jumpInstr(a))
		link(cfg, a, jumpInstr(a))
		require.NoError(t, cfg.Finalize())

		merged, err := cfg.MergeBlocks()
		require.NoError(t, err)
		assert.Zero(t, merged)
	})

	t.Run("Idempotent", func(t *testing.T) {
		prog := buildFinalized(t, `
def f(xs):
    for i in xs:
        break
`)
		cfg := mustFunc(t, prog, "f")
		first, err := cfg.MergeBlocks()
		require.NoError(t, err)
		assert.Equal(t, 1, first)
		dump := cfg.Dump()

		second, err := cfg.MergeBlocks()
		require.NoError(t, err)
		assert.Zero(t, second)
		assert.Equal(t, dump, cfg.Dump())
	})

	t.Run("CompiledFunctionsVerify", func(t *testing.T) {
		prog := compileSource(t, `
def f(items):
    out = []
    for item in items:
        try:
            out.append(item.value)
        except AttributeError:
            continue
        finally:
            pass
    with open("x") as fh:
        fh.write(str(out))
    return [x for x in out if x]
`)
		for _, cfg := range prog.Functions() {
			assert.NoError(t, cfg.Verify(), cfg.Name)
		}
	})
}
