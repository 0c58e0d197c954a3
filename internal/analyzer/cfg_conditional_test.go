package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func labelsOf(cfg *CFG) []string {
	labels := make([]string, 0, cfg.Size())
	for _, bb := range cfg.Blocks() {
		labels = append(labels, bb.Label)
	}
	return labels
}

func TestConditionalLowering(t *testing.T) {
	t.Run("IfWithoutElse", func(t *testing.T) {
		prog := buildFinalized(t, `
def f(c):
    if c:
        y = 1
    return y
`)
		cfg := mustFunc(t, prog, "f")
		assert.Equal(t, []string{LabelEntry, LabelIfTrue, LabelIfFalse, LabelIfExit}, labelsOf(cfg))

		exit := blocksLabeled(cfg, LabelIfExit)[0]
		assert.Len(t, exit.Preds, 2)

		// the implicit "return None" after the explicit return is dropped
		assert.Equal(t, 1, cfg.DeadBlocks)
		assert.Len(t, instrsOf(cfg, OpReturn), 1)
	})

	t.Run("IfElse", func(t *testing.T) {
		prog := buildFinalized(t, `
def f(x):
    if x:
        y = 1
    else:
        y = 2
    return y
`)
		cfg := mustFunc(t, prog, "f")
		entry := cfg.Block(cfg.Entry)
		term := cfg.Terminator(entry)
		require.NotNil(t, term)
		assert.Equal(t, OpBranch, term.Op)

		cond := cfg.Instr(entry.Instrs[len(entry.Instrs)-2])
		assert.Equal(t, OpNonzero, cond.Op, "the branch tests the truth of the condition")
		assert.Equal(t, cond.Dst, term.Args[0])

		assert.Equal(t, LabelIfTrue, cfg.Block(term.Target).Label)
		assert.Equal(t, LabelIfFalse, cfg.Block(term.Else).Label)
	})

	t.Run("ElifChain", func(t *testing.T) {
		prog := buildFinalized(t, `
def f(x):
    if x == 1:
        return "one"
    elif x == 2:
        return "two"
    else:
        return "many"
`)
		cfg := mustFunc(t, prog, "f")
		assert.Len(t, instrsOf(cfg, OpBranch), 2)
		assert.Len(t, instrsOf(cfg, OpReturn), 3)
		// every arm returns, so no if_exit block is ever placed
		assert.Empty(t, blocksLabeled(cfg, LabelIfExit))
	})

	t.Run("AllArmsReturnDropsJoin", func(t *testing.T) {
		prog := buildFinalized(t, `
def f(x):
    if x:
        return 1
    else:
        return 2
    print("never")
`)
		cfg := mustFunc(t, prog, "f")
		for _, bb := range cfg.Blocks() {
			assert.NotEqual(t, LabelUnreachable, bb.Label)
		}
		assert.Empty(t, instrsOf(cfg, OpLoadGlobal), "the dead print is not placed")
		assert.GreaterOrEqual(t, cfg.DeadBlocks, 1)
	})

	t.Run("Assert", func(t *testing.T) {
		prog := buildFinalized(t, `
def f(x):
    assert x, "x must be set"
    return x
`)
		cfg := mustFunc(t, prog, "f")
		fail := blocksLabeled(cfg, "assert_fail")
		require.Len(t, fail, 1)
		raise := cfg.Terminator(fail[0])
		require.NotNil(t, raise)
		assert.Equal(t, OpRaise, raise.Op)
		assert.Len(t, blocksLabeled(cfg, "assert_ok"), 1)

		globals := instrsOf(cfg, OpLoadGlobal)
		require.Len(t, globals, 1)
		assert.Equal(t, "AssertionError", cfg.Consts.Get(globals[0].Name).Str)
	})

	t.Run("ConditionalExpression", func(t *testing.T) {
		prog := buildFinalized(t, `
def f(a, b, c):
    return b if a else c
`)
		cfg := mustFunc(t, prog, "f")
		exits := blocksLabeled(cfg, "ifexp_exit")
		require.Len(t, exits, 1)
		assert.Len(t, exits[0].Preds, 2)
	})
}

func TestConditionalNoCriticalEdges(t *testing.T) {
	sources := map[string]string{
		"nested": `
def f(a, b):
    if a:
        if b:
            return 1
    return 2
`,
		"short_circuit": `
def f(a, b, c):
    if a and b or c:
        x = 1
    else:
        x = 2
    return x
`,
		"while_if": `
def f(n):
    while n:
        if n % 2:
            n -= 3
        else:
            n -= 1
    return n
`,
	}

	for name, src := range sources {
		t.Run(name, func(t *testing.T) {
			prog := compileSource(t, src)
			cfg := mustFunc(t, prog, "f")
			for _, bb := range cfg.Blocks() {
				succs := cfg.Successors(bb)
				if len(succs) < 2 {
					continue
				}
				for _, s := range succs {
					assert.Len(t, cfg.Block(s).Preds, 1, "critical edge bb%d -> bb%d", bb.Index, s)
				}
			}
		})
	}
}
