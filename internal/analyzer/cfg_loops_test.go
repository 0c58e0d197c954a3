package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopLowering(t *testing.T) {
	t.Run("ForWithBreak", func(t *testing.T) {
		prog := buildFinalized(t, `
def f(xs):
    for i in xs:
        break
`)
		cfg := mustFunc(t, prog, "f")
		assert.Equal(t, []string{LabelEntry, LabelForTest, LabelForBody, LabelLoopDone, LabelLoopExit}, labelsOf(cfg))
		assert.Empty(t, blocksLabeled(cfg, LabelForElse))

		exit := blocksLabeled(cfg, LabelLoopExit)[0]
		assert.Len(t, exit.Preds, 2, "break and exhaustion both leave the loop")

		// the back edge after break is never placed
		test := blocksLabeled(cfg, LabelForTest)[0]
		assert.Len(t, test.Preds, 1)
	})

	t.Run("ForProtocol", func(t *testing.T) {
		prog := buildFinalized(t, `
def f(xs):
    total = 0
    for x in xs:
        total += x
    return total
`)
		cfg := mustFunc(t, prog, "f")
		require.Len(t, instrsOf(cfg, OpGetIter), 1)
		require.Len(t, instrsOf(cfg, OpHasNext), 1)
		require.Len(t, instrsOf(cfg, OpIterNext), 1)

		test := blocksLabeled(cfg, LabelForTest)[0]
		term := cfg.Terminator(test)
		require.NotNil(t, term)
		assert.Equal(t, OpBranch, term.Op)
		assert.Equal(t, LabelForBody, cfg.Block(term.Target).Label)
		assert.Equal(t, LabelLoopDone, cfg.Block(term.Else).Label)
		assert.Len(t, test.Preds, 2, "entry and the back edge")

		body := blocksLabeled(cfg, LabelForBody)[0]
		first := cfg.Instr(body.Instrs[0])
		assert.Equal(t, OpIterNext, first.Op)
	})

	t.Run("ForElse", func(t *testing.T) {
		prog := buildFinalized(t, `
def f(xs):
    for x in xs:
        if x:
            break
    else:
        return None
    return x
`)
		cfg := mustFunc(t, prog, "f")
		assert.Len(t, blocksLabeled(cfg, LabelForElse), 1)
		assert.Empty(t, blocksLabeled(cfg, LabelLoopDone))
	})

	t.Run("WhileContinue", func(t *testing.T) {
		prog := buildFinalized(t, `
def f(n):
    while n > 0:
        n = n - 1
        if n == 5:
            continue
        print(n)
    return n
`)
		cfg := mustFunc(t, prog, "f")
		test := blocksLabeled(cfg, LabelWhileTest)
		require.Len(t, test, 1)
		// entry, continue and the end of the body
		assert.Len(t, test[0].Preds, 3)
		assert.Len(t, blocksLabeled(cfg, LabelWhileBody), 1)
		assert.Len(t, blocksLabeled(cfg, LabelLoopDone), 1)
	})

	t.Run("WhileElse", func(t *testing.T) {
		prog := buildFinalized(t, `
def f(n):
    while n:
        n -= 1
    else:
        n = -1
    return n
`)
		cfg := mustFunc(t, prog, "f")
		assert.Len(t, blocksLabeled(cfg, LabelWhileElse), 1)
		assert.Empty(t, blocksLabeled(cfg, LabelLoopDone))
	})

	t.Run("InfiniteLoop", func(t *testing.T) {
		prog := buildFinalized(t, `
def f():
    while True:
        pass
`)
		cfg := mustFunc(t, prog, "f")
		test := blocksLabeled(cfg, LabelWhileTest)
		require.Len(t, test, 1)
		assert.Len(t, test[0].Preds, 2)
		require.NoError(t, cfg.Verify())
	})

	t.Run("NestedBreakLeavesInnerLoop", func(t *testing.T) {
		prog := buildFinalized(t, `
def f(rows):
    for row in rows:
        for cell in row:
            if cell:
                break
    return rows
`)
		cfg := mustFunc(t, prog, "f")
		exits := blocksLabeled(cfg, LabelLoopExit)
		require.Len(t, exits, 2)
		tests := blocksLabeled(cfg, LabelForTest)
		require.Len(t, tests, 2)

		// the inner loop exit flows back to the outer test
		inner := exits[0]
		term := cfg.Terminator(inner)
		require.NotNil(t, term)
		assert.Equal(t, OpJump, term.Op)
		assert.Equal(t, tests[0].ID, term.Target)
	})

	t.Run("LoopsMerge", func(t *testing.T) {
		prog := compileSource(t, `
def f(xs):
    for i in xs:
        break
`)
		cfg := mustFunc(t, prog, "f")
		// entry absorbs the test block, which no longer has a back edge
		assert.Empty(t, blocksLabeled(cfg, LabelForTest))
		require.NoError(t, cfg.Verify())
	})
}
