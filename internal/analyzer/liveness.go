package analyzer

import (
	"sync"

	"golang.org/x/tools/container/intsets"
)

// Liveness answers whether a register is live at the end or start of a
// block. Results are computed per register on first query by a backward
// flood from the blocks that read the register before writing it, and then
// memoized. Queries are safe for concurrent use.
type Liveness struct {
	cfg   *CFG
	usage *DefUseInfo

	mu        sync.Mutex
	liveAtEnd map[Reg]*intsets.Sparse
}

// NewLiveness prepares liveness queries over a finalized CFG.
func NewLiveness(cfg *CFG) (*Liveness, error) {
	usage, err := CollectDefUse(cfg)
	if err != nil {
		return nil, err
	}
	return &Liveness{
		cfg:       cfg,
		usage:     usage,
		liveAtEnd: make(map[Reg]*intsets.Sparse),
	}, nil
}

// isUserVisible reports whether r names a source variable. Such registers
// may be observed by introspection and are always live.
func (l *Liveness) isUserVisible(r Reg) bool {
	switch r.Kind {
	case RegVirtual:
		return l.cfg.VRegs != nil && l.cfg.VRegs.IsUserVisible(int(r.N))
	case RegSymbol:
		return !IsSyntheticName(l.cfg.SymbolName(r.N))
	default:
		return false
	}
}

// IsLiveAtEnd reports whether r may be read on some path leaving block b
// before it is written again.
func (l *Liveness) IsLiveAtEnd(r Reg, b BlockID) bool {
	if l.isUserVisible(r) {
		return true
	}
	return l.blocks(r).Has(int(b))
}

// IsLiveAtStart reports whether r may be read in block b, or after it,
// before it is written.
func (l *Liveness) IsLiveAtStart(r Reg, b BlockID) bool {
	if l.isUserVisible(r) {
		return true
	}
	u := l.usage.Usage(r)
	if u != nil {
		if kind, ok := u.FirstAccessIn(b); ok {
			return kind == AccessRead
		}
	}
	return l.IsLiveAtEnd(r, b)
}

// LiveBlocks returns the indices of the blocks at whose end r is live.
func (l *Liveness) LiveBlocks(r Reg) []int {
	if l.isUserVisible(r) {
		out := make([]int, l.cfg.Size())
		for i := range out {
			out[i] = i
		}
		return out
	}
	return l.blocks(r).AppendTo(nil)
}

func (l *Liveness) blocks(r Reg) *intsets.Sparse {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.liveAtEnd[r]; ok {
		return s
	}
	s := l.flood(r)
	l.liveAtEnd[r] = s
	return s
}

// flood marks every block from which a reading block is reachable without
// passing a block that writes r first. The writing block itself is marked
// since the flood enters it from its successor.
func (l *Liveness) flood(r Reg) *intsets.Sparse {
	live := &intsets.Sparse{}
	u := l.usage.Usage(r)
	if u == nil {
		return live
	}

	var stack []BlockID
	for _, b := range u.Blocks.AppendTo(nil) {
		if kind, _ := u.FirstAccessIn(BlockID(b)); kind == AccessRead {
			stack = append(stack, BlockID(b))
		}
	}
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, p := range l.cfg.Block(b).Preds {
			if !live.Insert(int(p)) {
				continue
			}
			if kind, ok := u.FirstAccessIn(p); ok && kind.IsDef() {
				continue
			}
			if kind, ok := u.FirstAccessIn(p); ok && kind == AccessRead {
				// p is a reading block and already seeds its own flood
				continue
			}
			stack = append(stack, p)
		}
	}
	return live
}
