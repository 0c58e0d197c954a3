package service

import (
	"github.com/ludo-technologies/pyjit/domain"
	"github.com/ludo-technologies/pyjit/internal/analyzer"
)

// describeCFG renders a lowered CFG into its report form. Block references
// are placement indices.
func describeCFG(cfg *analyzer.CFG, showConstants bool) domain.FunctionIR {
	ir := domain.FunctionIR{
		Name:       cfg.Name,
		Kind:       cfg.Kind.String(),
		Params:     cfg.Params,
		Generator:  cfg.IsGenerator,
		DeadBlocks: cfg.DeadBlocks,
		Complexity: analyzer.CalculateComplexity(cfg).Complexity,
	}

	if v := cfg.VRegs; v != nil {
		ir.Registers = domain.RegisterLayout{
			Params: v.NumParams,
			User:   v.NumUser,
			Cross:  v.NumCross,
			Single: v.NumSingle,
			Total:  v.Total(),
			Names:  append([]string(nil), v.UserNames()...),
		}
	}

	for _, bb := range cfg.Blocks() {
		block := domain.BlockInfo{
			Index:  bb.Index,
			Label:  bb.Label,
			Instrs: make([]string, 0, len(bb.Instrs)),
		}
		for _, p := range bb.Preds {
			block.Preds = append(block.Preds, cfg.Block(p).Index)
		}
		for _, id := range bb.Instrs {
			block.Instrs = append(block.Instrs, cfg.Instr(id).Format(cfg))
		}
		for _, e := range cfg.Edges(bb) {
			block.Succs = append(block.Succs, domain.EdgeInfo{
				To:   cfg.Block(e.To).Index,
				Kind: e.Type.String(),
			})
		}
		ir.Blocks = append(ir.Blocks, block)
	}

	if showConstants {
		for i := 0; i < cfg.Consts.Len(); i++ {
			ir.Constants = append(ir.Constants, cfg.Consts.Get(int32(i)).String())
		}
	}
	return ir
}

// describeDataflow reports, per block, the phis required at entry and the
// state of every user-visible variable on entry
func describeDataflow(fa *analyzer.FunctionAnalysis, osr bool) *domain.FunctionDataflow {
	cfg := fa.CFG
	df := &domain.FunctionDataflow{
		PhiCount: fa.Phis.Count(),
		OSREntry: osr,
	}

	numUser := 0
	if cfg.VRegs != nil {
		numUser = cfg.VRegs.NumUser
	}

	for _, bb := range cfg.Blocks() {
		block := domain.BlockDataflow{Index: bb.Index}
		for _, r := range fa.Phis.RequiredPhis(bb.ID) {
			block.Phis = append(block.Phis, cfg.RegName(r))
		}
		for i := 0; i < numUser; i++ {
			r := analyzer.VReg(i)
			state := domain.VariableState{
				Name:    cfg.VRegs.Name(i),
				Defined: fa.Definedness.AtStart(r, bb.ID).String(),
				Live:    fa.Liveness.IsLiveAtStart(r, bb.ID),
			}
			if fa.Types != nil {
				state.Type = fa.Types.AtStart(r, bb.ID).String()
			}
			block.Variables = append(block.Variables, state)
		}
		df.Blocks = append(df.Blocks, block)
	}
	return df
}
