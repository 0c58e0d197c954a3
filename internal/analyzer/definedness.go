package analyzer

import "fmt"

// DefinitionLevel is the definedness lattice:
// Unknown < {Undefined, Defined} < PotentiallyDefined.
type DefinitionLevel uint8

const (
	// LevelUnknown is the bottom element; it never survives the analysis
	LevelUnknown DefinitionLevel = iota
	LevelUndefined
	LevelDefined
	LevelPotentiallyDefined
)

func (l DefinitionLevel) String() string {
	switch l {
	case LevelUnknown:
		return "unknown"
	case LevelUndefined:
		return "undefined"
	case LevelDefined:
		return "defined"
	case LevelPotentiallyDefined:
		return "potentially-defined"
	default:
		return fmt.Sprintf("DefinitionLevel(%d)", int(l))
	}
}

// mergeDefinition joins two levels. Equal levels pass through; any
// disagreement, including one with Unknown, is PotentiallyDefined.
func mergeDefinition(from, into DefinitionLevel) DefinitionLevel {
	if from == into {
		return into
	}
	return LevelPotentiallyDefined
}

// Definedness tells, per register and block, whether the register holds a
// value at block entry and exit.
type Definedness struct {
	cfg *CFG
	fp  *FixedPoint[DefinitionLevel]
}

// AnalyzeDefinedness runs the definedness analysis over an allocated CFG.
// Parameters are defined at entry; every other register starts undefined.
func AnalyzeDefinedness(cfg *CFG) (*Definedness, error) {
	if cfg.VRegs == nil {
		return nil, internalErrorf(cfg.Name, "definedness requires allocated registers")
	}
	initial := make([]DefinitionLevel, cfg.VRegs.Total())
	for i := range initial {
		initial[i] = LevelUndefined
		if i < cfg.VRegs.NumParams {
			initial[i] = LevelDefined
		}
	}

	fp, err := ComputeFixedPoint(cfg, Dataflow[DefinitionLevel]{
		Start:   cfg.Entry,
		Initial: initial,
		Merge:   mergeDefinition,
		Process: func(state []DefinitionLevel, bb *BasicBlock) error {
			for _, iid := range bb.Instrs {
				in := cfg.Instr(iid)
				dst, ok := in.Writes()
				if !ok || !dst.IsVirtual() {
					continue
				}
				if int(dst.N) >= len(state) {
					return internalErrorf(cfg.Name, "register %s out of range", dst)
				}
				if in.Op == OpDeleteLocal {
					state[dst.N] = LevelUndefined
				} else {
					state[dst.N] = LevelDefined
				}
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	for _, bb := range cfg.Blocks() {
		for _, states := range [][]DefinitionLevel{fp.AtStart(bb.ID), fp.AtEnd(bb.ID)} {
			for r, l := range states {
				if l == LevelUnknown {
					return nil, internalErrorf(cfg.Name, "definedness of r%d left unknown in bb%d", r, bb.Index)
				}
			}
		}
	}
	return &Definedness{cfg: cfg, fp: fp}, nil
}

func (d *Definedness) level(states []DefinitionLevel, r Reg) DefinitionLevel {
	if !r.IsVirtual() || int(r.N) >= len(states) {
		return LevelUnknown
	}
	return states[r.N]
}

// AtStart returns the definedness of r at the entry of block b.
func (d *Definedness) AtStart(r Reg, b BlockID) DefinitionLevel {
	return d.level(d.fp.AtStart(b), r)
}

// AtEnd returns the definedness of r at the exit of block b.
func (d *Definedness) AtEnd(r Reg, b BlockID) DefinitionLevel {
	return d.level(d.fp.AtEnd(b), r)
}

// Visits is the number of block evaluations the analysis needed.
func (d *Definedness) Visits() int {
	return d.fp.Visits
}
