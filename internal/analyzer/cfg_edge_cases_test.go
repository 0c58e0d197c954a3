package analyzer

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCFGEdgeCases(t *testing.T) {
	t.Run("EmptyModule", func(t *testing.T) {
		prog := compileSource(t, "")
		require.NotNil(t, prog.Module)
		assert.Equal(t, 1, prog.Module.Size())
		assert.Len(t, prog.Functions(), 1)
	})

	t.Run("PassOnlyFunction", func(t *testing.T) {
		prog := compileSource(t, "def f():\n    pass\n")
		cfg := mustFunc(t, prog, "f")
		assert.Equal(t, 1, cfg.Size())
		term := cfg.Terminator(cfg.Block(cfg.Entry))
		require.NotNil(t, term)
		assert.Equal(t, OpReturn, term.Op)
		assert.True(t, term.Args[0].IsConst())
		assert.Equal(t, ConstNone, cfg.Consts.Get(term.Args[0].N).Kind)
	})

	t.Run("GlobalDeclaration", func(t *testing.T) {
		prog := buildFinalized(t, `
counter = 0

def bump():
    global counter
    counter += 1
`)
		cfg := mustFunc(t, prog, "bump")
		assert.Len(t, instrsOf(cfg, OpLoadGlobal), 1)
		assert.Len(t, instrsOf(cfg, OpStoreGlobal), 1)
		assert.Empty(t, instrsOf(cfg, OpLoadLocal))
	})

	t.Run("NonlocalDeclaration", func(t *testing.T) {
		prog := buildFinalized(t, `
def outer():
    n = 0
    def inc():
        nonlocal n
        n += 1
    inc()
    return n
`)
		inner := mustFunc(t, prog, "outer.inc")
		stores := instrsOf(inner, OpStoreDeref)
		require.Len(t, stores, 1)
		assert.Equal(t, int32(0), stores[0].Aux2, "n lives in the closure of outer")

		outer := mustFunc(t, prog, "outer")
		assert.Len(t, instrsOf(outer, OpStoreClosure), 1)
		assert.Len(t, instrsOf(outer, OpLoadClosure), 1)
	})

	t.Run("NonlocalWithoutBinding", func(t *testing.T) {
		err := buildError(t, `
def outer():
    def inner():
        nonlocal missing
        missing = 1
`)
		assert.Contains(t, err.Error(), "no binding for nonlocal 'missing' found")
	})

	t.Run("ClassBodyReadsEnclosingCell", func(t *testing.T) {
		prog := buildFinalized(t, `
def make():
    x = 1
    class C:
        y = x
    return C
`)
		cls := mustFunc(t, prog, "make.C")
		assert.Len(t, instrsOf(cls, OpLoadDeref), 1)
		assert.Len(t, instrsOf(cls, OpStoreName), 1)
	})

	t.Run("ClassKeywords", func(t *testing.T) {
		prog := buildFinalized(t, `
class C(Base, metaclass=Meta):
    pass
`)
		classes := instrsOf(prog.Module, OpMakeClass)
		require.Len(t, classes, 1)
		require.Len(t, classes[0].Kw, 1)
		assert.Equal(t, "metaclass", prog.Module.Consts.Get(classes[0].Kw[0]).Str)
		assert.Len(t, classes[0].Args, 2)

		err := buildError(t, "class D(**opts):\n    pass\n")
		assert.Contains(t, err.Error(), "class keyword unpacking is not supported")
	})

	t.Run("KeywordOnlyDefaults", func(t *testing.T) {
		prog := buildFinalized(t, `
def f(a, b=1, *, c=2, d=3):
    return a
`)
		makes := instrsOf(prog.Module, OpMakeFunction)
		require.Len(t, makes, 1)
		mk := makes[0]
		assert.Equal(t, int32(1), mk.Aux)
		assert.Len(t, mk.Args, 3)
		require.Len(t, mk.Kw, 2)
		assert.Equal(t, "c", prog.Module.Consts.Get(mk.Kw[0]).Str)
		assert.Equal(t, "d", prog.Module.Consts.Get(mk.Kw[1]).Str)
	})

	t.Run("Imports", func(t *testing.T) {
		prog := buildFinalized(t, `
def f():
    import os.path
    import numpy as np
    from collections import OrderedDict as OD
    return os, np, OD
`)
		cfg := mustFunc(t, prog, "f")
		imports := instrsOf(cfg, OpImport)
		require.Len(t, imports, 3)
		assert.Zero(t, imports[0].Flags&FlagLeaf, "plain import binds the top package")
		assert.NotZero(t, imports[1].Flags&FlagLeaf)
		assert.Len(t, instrsOf(cfg, OpImportFrom), 1)

		var locals []string
		for _, name := range cfg.Symbols {
			if !IsSyntheticName(name) {
				locals = append(locals, name)
			}
		}
		assert.ElementsMatch(t, []string{"os", "np", "OD"}, locals)
	})

	t.Run("DeleteTargets", func(t *testing.T) {
		prog := buildFinalized(t, `
def f(obj, items):
    x = 1
    del x, obj.attr, items[0], items[1:2]
`)
		cfg := mustFunc(t, prog, "f")
		assert.Len(t, instrsOf(cfg, OpDeleteLocal), 1)
		assert.Len(t, instrsOf(cfg, OpDeleteAttr), 1)
		assert.Len(t, instrsOf(cfg, OpDeleteSub), 1)
		assert.Len(t, instrsOf(cfg, OpDeleteSlice), 1)
	})

	t.Run("AugmentedTargets", func(t *testing.T) {
		prog := buildFinalized(t, `
def f(obj, items, n):
    obj.total += n
    items[0] *= n
    n -= 1
    return n
`)
		cfg := mustFunc(t, prog, "f")
		augs := instrsOf(cfg, OpAugBinary)
		require.Len(t, augs, 3)
		assert.Equal(t, OpAdd, Operator(augs[0].Aux))
		assert.Equal(t, OpMult, Operator(augs[1].Aux))
		assert.Equal(t, OpSub, Operator(augs[2].Aux))
		assert.Len(t, instrsOf(cfg, OpStoreAttr), 1)
		assert.Len(t, instrsOf(cfg, OpStoreSub), 1)
	})

	t.Run("StarredDisplays", func(t *testing.T) {
		prog := buildFinalized(t, `
def f(a, b):
    return (*a, 1), [*b], {*a, 2}
`)
		cfg := mustFunc(t, prog, "f")
		globals := instrsOf(cfg, OpLoadGlobal)
		require.Len(t, globals, 1)
		assert.Equal(t, "tuple", cfg.Consts.Get(globals[0].Name).Str)
		assert.Len(t, instrsOf(cfg, OpListExtend), 2)

		updates := instrsOf(cfg, OpCallAttr)
		require.Len(t, updates, 1)
		assert.Equal(t, "update", cfg.Consts.Get(updates[0].Name).Str)
	})

	t.Run("DictUnpacking", func(t *testing.T) {
		prog := buildFinalized(t, `
def f(a):
    return {"k": 1, **a, "z": 2}
`)
		cfg := mustFunc(t, prog, "f")
		dicts := instrsOf(cfg, OpMakeDict)
		require.Len(t, dicts, 1)
		assert.Len(t, dicts[0].Args, 2)
		assert.Len(t, instrsOf(cfg, OpDictUpdate), 1)
		assert.Len(t, instrsOf(cfg, OpDictSet), 1)
	})

	t.Run("MatchRejected", func(t *testing.T) {
		err := buildError(t, `
def f(x):
    match x:
        case 1:
            return 1
`)
		assert.Contains(t, err.Error(), "match statement is not supported")
	})

	t.Run("BareStarredTarget", func(t *testing.T) {
		err := buildError(t, "def f(g):\n    *a = g\n")
		assert.True(t, IsCompileError(err))
		assert.Contains(t, err.Error(), "starred assignment target must be in a list or tuple")
	})

	t.Run("LongFunction", func(t *testing.T) {
		var sb strings.Builder
		sb.WriteString("def f(x):\n")
		for i := 0; i < 200; i++ {
			fmt.Fprintf(&sb, "    if x > %d:\n        x = x - %d\n", i, i)
		}
		sb.WriteString("    return x\n")

		prog := compileSource(t, sb.String())
		cfg := mustFunc(t, prog, "f")
		require.NoError(t, cfg.Verify())
		assert.Len(t, instrsOf(cfg, OpBranch), 200)
	})

	t.Run("DeepNesting", func(t *testing.T) {
		var sb strings.Builder
		sb.WriteString("def f(x):\n")
		indent := "    "
		for i := 0; i < 30; i++ {
			fmt.Fprintf(&sb, "%sif x:\n", indent)
			indent += "    "
		}
		fmt.Fprintf(&sb, "%sreturn x\n", indent)
		sb.WriteString("    return 0\n")

		prog := compileSource(t, sb.String())
		require.NoError(t, mustFunc(t, prog, "f").Verify())
	})
}

func TestWalrusLowering(t *testing.T) {
	t.Run("InCondition", func(t *testing.T) {
		prog := buildFinalized(t, `
def f(data):
    if (n := len(data)) > 10:
        return n
    return 0
`)
		cfg := mustFunc(t, prog, "f")
		copies := instrsOf(cfg, OpCopy)
		require.NotEmpty(t, copies)
		assert.Equal(t, "n", cfg.SymbolName(copies[0].Dst.N))
	})

	t.Run("InWhile", func(t *testing.T) {
		prog := buildFinalized(t, `
def f(read):
    while (chunk := read()):
        print(chunk)
`)
		cfg := mustFunc(t, prog, "f")
		test := blocksLabeled(cfg, LabelWhileTest)
		require.Len(t, test, 1)
		found := false
		for _, id := range test[0].Instrs {
			in := cfg.Instr(id)
			if in.Op == OpCopy && cfg.SymbolName(in.Dst.N) == "chunk" {
				found = true
			}
		}
		assert.True(t, found, "the walrus target is assigned in the loop test")
	})
}
