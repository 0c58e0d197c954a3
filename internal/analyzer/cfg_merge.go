package analyzer

// Finalize drops the blocks that were never placed and renumbers the arena so
// that every BlockID equals its placement index. Predecessor entries that
// point at unplaced blocks (dead code after a return, say) are discarded.
// A placed block that branches to an unplaced one, or that cannot be
// reached from the entry, is an internal error.
func (cfg *CFG) Finalize() error {
	ra := NewReachabilityAnalyzer(cfg)
	result := ra.AnalyzeReachability()
	for _, id := range cfg.order {
		if !result.IsReachable(id) {
			return internalErrorf(cfg.Name, "placed block %s is unreachable from entry", cfg.blocks[id])
		}
	}
	cfg.DeadBlocks = len(ra.DeadBlocks(result))

	if err := cfg.compact(); err != nil {
		return err
	}
	return cfg.Verify()
}

func (cfg *CFG) compact() error {
	cfg.invalidateAnalyses()
	remap := make([]BlockID, len(cfg.blocks))
	for i := range remap {
		remap[i] = NoBlock
	}
	for i, id := range cfg.order {
		remap[id] = BlockID(i)
	}
	target := func(from *BasicBlock, id BlockID) (BlockID, error) {
		if id == NoBlock {
			return NoBlock, nil
		}
		if int(id) >= len(remap) || remap[id] == NoBlock {
			return NoBlock, internalErrorf(cfg.Name, "bb%d reaches a block that was never placed", from.Index)
		}
		return remap[id], nil
	}

	code := make([]Instr, 0, len(cfg.code))
	blocks := make([]*BasicBlock, 0, len(cfg.order))
	for i, id := range cfg.order {
		old := cfg.blocks[id]
		bb := &BasicBlock{ID: BlockID(i), Index: i, Label: old.Label}

		for _, p := range old.Preds {
			if np := remap[p]; np != NoBlock {
				bb.Preds = append(bb.Preds, np)
			}
		}
		for _, iid := range old.Instrs {
			in := cfg.code[iid]
			var err error
			if in.Target, err = target(old, in.Target); err != nil {
				return err
			}
			if in.Else, err = target(old, in.Else); err != nil {
				return err
			}
			if in.Normal, err = target(old, in.Normal); err != nil {
				return err
			}
			if in.Exc, err = target(old, in.Exc); err != nil {
				return err
			}
			bb.Instrs = append(bb.Instrs, InstrID(len(code)))
			code = append(code, in)
		}
		blocks = append(blocks, bb)
	}

	cfg.code = code
	cfg.blocks = blocks
	cfg.order = make([]BlockID, len(blocks))
	for i := range blocks {
		cfg.order[i] = BlockID(i)
	}
	cfg.Entry = 0
	return nil
}

// MergeBlocks lets every block that ends in a Jump absorb its target when it
// is the target's only predecessor. The rewrite is repeated until no such
// pair is left, so running it twice changes nothing. It returns the number
// of blocks absorbed. The CFG must be finalized.
func (cfg *CFG) MergeBlocks() (int, error) {
	merged := 0
	dead := make([]bool, len(cfg.blocks))

	for _, id := range cfg.order {
		if dead[id] {
			continue
		}
		bb := cfg.blocks[id]
		for {
			t := cfg.Terminator(bb)
			if t == nil || t.Op != OpJump {
				break
			}
			succ := cfg.Block(t.Target)
			if succ == nil || succ.ID == bb.ID || succ.ID == cfg.Entry || len(succ.Preds) != 1 || succ.Preds[0] != bb.ID {
				break
			}

			bb.Instrs = append(bb.Instrs[:len(bb.Instrs)-1], succ.Instrs...)
			for _, s := range cfg.Successors(succ) {
				next := cfg.blocks[s]
				for i, p := range next.Preds {
					if p == succ.ID {
						next.Preds[i] = bb.ID
					}
				}
			}
			dead[succ.ID] = true
			succ.Instrs = nil
			succ.Preds = nil
			merged++
		}
	}
	if merged == 0 {
		return 0, nil
	}

	order := cfg.order[:0]
	for _, id := range cfg.order {
		if dead[id] {
			cfg.blocks[id].Index = -1
			continue
		}
		cfg.blocks[id].Index = len(order)
		order = append(order, id)
	}
	cfg.order = order
	if err := cfg.compact(); err != nil {
		return merged, err
	}
	return merged, cfg.Verify()
}
