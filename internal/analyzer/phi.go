package analyzer

import (
	"golang.org/x/tools/container/intsets"
)

// PhiOptions configures phi placement.
type PhiOptions struct {
	// OSREntry treats the entry block as a merge point with one extra
	// virtual predecessor, for code entered in the middle of a run.
	OSREntry bool
}

// PhiPlacement records, per block, the registers whose value has to be
// merged at block entry, and which of them also need an "is defined"
// companion because some incoming path leaves them unset.
type PhiPlacement struct {
	cfg       *CFG
	required  []intsets.Sparse
	companion []intsets.Sparse
}

// AnalyzePhis computes phi placement from liveness and definedness. A
// register needs a phi at a block with several predecessors when at least
// one predecessor both defines it and keeps it live. With OSREntry the
// entry block needs a phi for every register live at its start.
func AnalyzePhis(cfg *CFG, live *Liveness, defs *Definedness, opts PhiOptions) (*PhiPlacement, error) {
	if cfg.VRegs == nil {
		return nil, internalErrorf(cfg.Name, "phi placement requires allocated registers")
	}
	n := cfg.Size()
	pp := &PhiPlacement{
		cfg:       cfg,
		required:  make([]intsets.Sparse, n),
		companion: make([]intsets.Sparse, n),
	}
	total := cfg.VRegs.Total()

	for _, bb := range cfg.Blocks() {
		osr := opts.OSREntry && bb.ID == cfg.Entry
		if len(bb.Preds) < 2 && !osr {
			continue
		}
		for i := 0; i < total; i++ {
			r := VReg(i)
			need := osr && live.IsLiveAtStart(r, bb.ID)
			for _, p := range bb.Preds {
				if need {
					break
				}
				need = defs.AtEnd(r, p) != LevelUndefined && live.IsLiveAtEnd(r, p)
			}
			if !need {
				continue
			}
			pp.required[bb.Index].Insert(i)
			if osr || defs.AtStart(r, bb.ID) == LevelPotentiallyDefined {
				pp.companion[bb.Index].Insert(i)
			}
		}
	}
	return pp, nil
}

// IsRequired reports whether r needs a phi at the entry of block b.
func (pp *PhiPlacement) IsRequired(r Reg, b BlockID) bool {
	if !r.IsVirtual() || int(b) >= len(pp.required) || b < 0 {
		return false
	}
	return pp.required[b].Has(int(r.N))
}

// IsRequiredAfter reports whether the value of r at the end of block b
// feeds a phi in one of its successors.
func (pp *PhiPlacement) IsRequiredAfter(r Reg, b BlockID) bool {
	bb := pp.cfg.Block(b)
	if bb == nil {
		return false
	}
	for _, s := range pp.cfg.Successors(bb) {
		if pp.IsRequired(r, s) {
			return true
		}
	}
	return false
}

// IsPotentiallyUndefinedAt reports whether the phi of r at block b needs a
// companion flag telling whether a value actually arrived.
func (pp *PhiPlacement) IsPotentiallyUndefinedAt(r Reg, b BlockID) bool {
	if !r.IsVirtual() || int(b) >= len(pp.companion) || b < 0 {
		return false
	}
	return pp.companion[b].Has(int(r.N))
}

// RequiredPhis returns the registers needing a phi at block b, in
// ascending order.
func (pp *PhiPlacement) RequiredPhis(b BlockID) []Reg {
	if int(b) >= len(pp.required) || b < 0 {
		return nil
	}
	var out []Reg
	for _, i := range pp.required[b].AppendTo(nil) {
		out = append(out, VReg(i))
	}
	return out
}

// Count returns the total number of phis over all blocks.
func (pp *PhiPlacement) Count() int {
	total := 0
	for i := range pp.required {
		total += pp.required[i].Len()
	}
	return total
}
