package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func analyzePhis(t *testing.T, source, name string, opts PhiOptions) (*CFG, *PhiPlacement) {
	t.Helper()
	cfg := mustFunc(t, compileSource(t, source), name)
	fa, err := AnalyzeFunction(cfg, AnalysisOptions{Phi: opts})
	require.NoError(t, err)
	return cfg, fa.Phis
}

func TestPhiPlacement(t *testing.T) {
	t.Run("BothArmsAssign", func(t *testing.T) {
		cfg, phis := analyzePhis(t, `
def f():
    if x:
        y = 1
    else:
        y = 2
    print(y)
`, "f", PhiOptions{})
		y := mustLookup(t, cfg, "y")
		join := blocksLabeled(cfg, LabelIfExit)[0]

		assert.Equal(t, []Reg{y}, phis.RequiredPhis(join.ID))
		assert.True(t, phis.IsRequired(y, join.ID))
		assert.False(t, phis.IsPotentiallyUndefinedAt(y, join.ID))
		assert.Equal(t, 1, phis.Count())

		then := blocksLabeled(cfg, LabelIfTrue)[0]
		assert.True(t, phis.IsRequiredAfter(y, then.ID))
		assert.False(t, phis.IsRequiredAfter(y, join.ID))
		assert.Empty(t, phis.RequiredPhis(cfg.Entry))
	})

	t.Run("OneArmAssigns", func(t *testing.T) {
		cfg, phis := analyzePhis(t, `
def f(c):
    if c:
        y = 1
    return y
`, "f", PhiOptions{})
		c := mustLookup(t, cfg, "c")
		y := mustLookup(t, cfg, "y")
		join := blocksLabeled(cfg, LabelIfExit)[0]

		assert.Equal(t, []Reg{c, y}, phis.RequiredPhis(join.ID))
		assert.True(t, phis.IsPotentiallyUndefinedAt(y, join.ID))
		assert.False(t, phis.IsPotentiallyUndefinedAt(c, join.ID))
	})

	t.Run("TemporariesNeedNoPhi", func(t *testing.T) {
		cfg, phis := analyzePhis(t, `
def f(c):
    if c:
        print(1)
    else:
        print(2)
    return None
`, "f", PhiOptions{})
		join := blocksLabeled(cfg, LabelIfExit)[0]
		for _, r := range phis.RequiredPhis(join.ID) {
			assert.True(t, cfg.VRegs.IsUserVisible(int(r.N)), "unexpected phi for %s", cfg.RegName(r))
		}
	})

	t.Run("CrossBlockTemporary", func(t *testing.T) {
		cfg, phis := analyzePhis(t, "def f(a, b):\n    return a and b\n", "f", PhiOptions{})
		exit := blocksLabeled(cfg, "bool_exit")[0]
		ret := cfg.Terminator(exit)
		require.NotNil(t, ret)
		assert.True(t, phis.IsRequired(ret.Args[0], exit.ID))
	})

	t.Run("LoopHeader", func(t *testing.T) {
		cfg, phis := analyzePhis(t, `
def f(n):
    total = 0
    while n:
        total = total + n
        n = n - 1
    return total
`, "f", PhiOptions{})
		test := blocksLabeled(cfg, LabelWhileTest)[0]
		total := mustLookup(t, cfg, "total")
		n := mustLookup(t, cfg, "n")
		assert.True(t, phis.IsRequired(total, test.ID))
		assert.True(t, phis.IsRequired(n, test.ID))
		assert.False(t, phis.IsPotentiallyUndefinedAt(total, test.ID))
	})

	t.Run("OSREntry", func(t *testing.T) {
		cfg, phis := analyzePhis(t, "def f(a, b):\n    c = a + b\n    return c\n", "f", PhiOptions{OSREntry: true})
		a := mustLookup(t, cfg, "a")
		c := mustLookup(t, cfg, "c")

		assert.Equal(t, []Reg{VReg(0), VReg(1), VReg(2)}, phis.RequiredPhis(cfg.Entry))
		assert.True(t, phis.IsPotentiallyUndefinedAt(a, cfg.Entry))
		assert.True(t, phis.IsPotentiallyUndefinedAt(c, cfg.Entry))
	})

	t.Run("NoOSREntry", func(t *testing.T) {
		_, phis := analyzePhis(t, "def f(a, b):\n    c = a + b\n    return c\n", "f", PhiOptions{})
		assert.Zero(t, phis.Count())
	})

	t.Run("OutOfRangeQueries", func(t *testing.T) {
		_, phis := analyzePhis(t, "def f():\n    return 1\n", "f", PhiOptions{})
		assert.False(t, phis.IsRequired(VReg(0), BlockID(99)))
		assert.False(t, phis.IsRequired(ConstReg(0), 0))
		assert.Nil(t, phis.RequiredPhis(BlockID(-1)))
		assert.False(t, phis.IsRequiredAfter(VReg(0), BlockID(99)))
	})

	t.Run("RequiresAllocation", func(t *testing.T) {
		cfg := mustFunc(t, buildFinalized(t, "def f(a):\n    return a\n"), "f")
		live, err := NewLiveness(cfg)
		require.NoError(t, err)
		_, err = AnalyzePhis(cfg, live, nil, PhiOptions{})
		require.Error(t, err)
		assert.True(t, IsInternalError(err))
	})
}

var dataflowCorpus = map[string]string{
	"loops": `
def f(xs, n):
    total = 0
    for x in xs:
        if x:
            continue
        total = total + x
    else:
        done = True
    while n:
        n = n - 1
        if n > 3:
            break
    return total
`,
	"finally": `
def f(g):
    for i in g:
        try:
            if i:
                return i
            v = g(i)
        except KeyError as e:
            v = e
            continue
        finally:
            g.close()
    return v
`,
	"with": `
def f(path):
    with open(path) as fh, lock:
        data = fh.read()
        if not data:
            raise ValueError(path)
    return data
`,
}

// Every placed edge and every join of the corpus must agree between the
// three analyses, not only the blocks picked out by the scenario tests.
func TestDataflowAgreement(t *testing.T) {
	for name, source := range dataflowCorpus {
		t.Run(name, func(t *testing.T) {
			for _, cfg := range compileSource(t, source).Functions() {
				fa, err := AnalyzeFunction(cfg, AnalysisOptions{})
				require.NoError(t, err, cfg.Name)
				defs, live, phis := fa.Definedness, fa.Liveness, fa.Phis
				total := cfg.VRegs.Total()

				for _, p := range cfg.Blocks() {
					for _, e := range cfg.Edges(p) {
						for i := 0; i < total; i++ {
							r := VReg(i)
							if defs.AtEnd(r, p.ID) == LevelDefined {
								assert.NotEqual(t, LevelUndefined, defs.AtStart(r, e.To),
									"%s: %s defined leaving bb%d but undefined entering bb%d",
									cfg.Name, cfg.RegName(r), p.Index, cfg.Block(e.To).Index)
							}
						}
					}
				}

				for _, b := range cfg.Blocks() {
					if len(b.Preds) < 2 {
						assert.Empty(t, phis.RequiredPhis(b.ID), "%s: phi at bb%d without a join", cfg.Name, b.Index)
						continue
					}
					for i := 0; i < total; i++ {
						r := VReg(i)
						feeding := 0
						for _, p := range b.Preds {
							if defs.AtEnd(r, p) != LevelUndefined && live.IsLiveAtEnd(r, p) {
								feeding++
								assert.True(t, phis.IsRequiredAfter(r, p),
									"%s: %s leaves bb%d into a join without a phi",
									cfg.Name, cfg.RegName(r), cfg.Block(p).Index)
							}
						}
						assert.Equal(t, feeding > 0, phis.IsRequired(r, b.ID),
							"%s: phi of %s at bb%d", cfg.Name, cfg.RegName(r), b.Index)
					}
				}
			}
		})
	}
}
