package analyzer

import (
	"fmt"
	"log"

	"golang.org/x/tools/container/intsets"
)

// RegRange is one of the three disjoint register ranges.
type RegRange int

const (
	// RangeUser holds one register per source-level variable
	RangeUser RegRange = iota
	// RangeCrossBlock holds compiler temporaries used in more than one block
	RangeCrossBlock
	// RangeSingleBlock holds block-local temporaries, reused across blocks
	RangeSingleBlock
)

func (r RegRange) String() string {
	switch r {
	case RangeUser:
		return "user"
	case RangeCrossBlock:
		return "cross-block"
	case RangeSingleBlock:
		return "single-block"
	default:
		return fmt.Sprintf("RegRange(%d)", int(r))
	}
}

// VRegInfo describes the final register layout of one CFG. Registers
// [0, NumUser) are user-visible with parameters first, [NumUser,
// NumUser+NumCross) are cross-block temporaries and the rest are
// single-block temporaries.
type VRegInfo struct {
	NumParams int
	NumUser   int
	NumCross  int
	NumSingle int

	names  []string
	byName map[string]int
}

// Total is the number of registers the frame needs.
func (v *VRegInfo) Total() int {
	return v.NumUser + v.NumCross + v.NumSingle
}

// CrossStart is the first cross-block register.
func (v *VRegInfo) CrossStart() int {
	return v.NumUser
}

// SingleStart is the first single-block register.
func (v *VRegInfo) SingleStart() int {
	return v.NumUser + v.NumCross
}

// Range returns the range register i belongs to.
func (v *VRegInfo) Range(i int) RegRange {
	switch {
	case i < v.NumUser:
		return RangeUser
	case i < v.SingleStart():
		return RangeCrossBlock
	default:
		return RangeSingleBlock
	}
}

// IsUserVisible reports whether register i holds a source variable.
func (v *VRegInfo) IsUserVisible(i int) bool {
	return i >= 0 && i < v.NumUser
}

// Name returns the variable or temporary name of register i. Single-block
// registers have no name.
func (v *VRegInfo) Name(i int) string {
	if v == nil || i < 0 || i >= len(v.names) {
		return ""
	}
	return v.names[i]
}

// Lookup finds the register of a named variable or cross-block temporary.
func (v *VRegInfo) Lookup(name string) (Reg, bool) {
	i, ok := v.byName[name]
	if !ok {
		return Undefined, false
	}
	return VReg(i), true
}

// UserNames returns the user-visible variable names in register order.
func (v *VRegInfo) UserNames() []string {
	return v.names[:v.NumUser]
}

// RegAllocOptions configures the allocator.
type RegAllocOptions struct {
	// ReuseSingleBlock shares indices between single-block temporaries whose
	// live ranges do not overlap.
	ReuseSingleBlock bool
}

// DefaultRegAllocOptions returns the default allocator configuration.
func DefaultRegAllocOptions() RegAllocOptions {
	return RegAllocOptions{ReuseSingleBlock: true}
}

// RegisterAllocator replaces the symbol placeholders of a finalized CFG with
// final register indices.
type RegisterAllocator struct {
	opts RegAllocOptions

	// logger for diagnostics (optional)
	logger *log.Logger
}

// NewRegisterAllocator creates an allocator.
func NewRegisterAllocator(opts RegAllocOptions) *RegisterAllocator {
	return &RegisterAllocator{opts: opts}
}

// SetLogger sets an optional logger for diagnostics
func (a *RegisterAllocator) SetLogger(logger *log.Logger) {
	a.logger = logger
}

func (a *RegisterAllocator) logf(format string, args ...interface{}) {
	if a.logger != nil {
		a.logger.Printf("RegisterAllocator: "+format, args...)
	}
}

// Allocate runs the four allocation passes over cfg and patches every
// placeholder in place:
//
//  1. usage tracking over the placed blocks;
//  2. user-visible names, parameters first in declaration order;
//  3. synthetic registers used in more than one block;
//  4. the remaining synthetic registers by forward linear scan.
//
// Synthetic registers that are written but never read are demoted to
// Undefined and get no index.
func (a *RegisterAllocator) Allocate(cfg *CFG) (*VRegInfo, error) {
	if cfg.VRegs != nil {
		return nil, internalErrorf(cfg.Name, "registers already allocated")
	}

	usage, err := CollectDefUse(cfg)
	if err != nil {
		return nil, err
	}
	for _, r := range usage.Registers() {
		if r.Kind != RegSymbol || int(r.N) >= len(cfg.Symbols) {
			return nil, internalErrorf(cfg.Name, "unknown register placeholder %s", r)
		}
	}

	st := &allocState{
		cfg:    cfg,
		usage:  usage,
		assign: make([]int, len(cfg.Symbols)),
		demote: make([]bool, len(cfg.Symbols)),
		info:   &VRegInfo{byName: make(map[string]int)},
	}
	for i := range st.assign {
		st.assign[i] = -1
	}

	st.userPass()
	st.crossBlockPass()
	a.singleBlockPass(st)

	if err := st.patch(); err != nil {
		return nil, err
	}
	cfg.VRegs = st.info
	cfg.invalidateAnalyses()
	cfg.Symbols = nil

	a.logf("%s: %d user, %d cross-block, %d single-block registers, %d demoted",
		cfg.Name, st.info.NumUser, st.info.NumCross, st.info.NumSingle, st.demoted)
	return st.info, nil
}

type allocState struct {
	cfg     *CFG
	usage   *DefUseInfo
	assign  []int
	demote  []bool
	demoted int
	info    *VRegInfo
}

func (st *allocState) named(sym int, name string) {
	idx := len(st.info.names)
	st.assign[sym] = idx
	st.info.names = append(st.info.names, name)
	st.info.byName[name] = idx
}

func (st *allocState) userPass() {
	index := make(map[string]int, len(st.cfg.Symbols))
	for i, name := range st.cfg.Symbols {
		index[name] = i
	}
	for _, p := range st.cfg.Params {
		if sym, ok := index[p]; ok && st.assign[sym] < 0 {
			st.named(sym, p)
		}
	}
	st.info.NumParams = len(st.info.names)

	for _, r := range st.usage.Registers() {
		name := st.cfg.Symbols[r.N]
		if !IsSyntheticName(name) && st.assign[r.N] < 0 {
			st.named(int(r.N), name)
		}
	}
	// names bound only in code that was dropped as unreachable still get a
	// register so the user range matches the scope's variables
	for sym, name := range st.cfg.Symbols {
		if !IsSyntheticName(name) && st.assign[sym] < 0 {
			st.named(sym, name)
		}
	}
	st.info.NumUser = len(st.info.names)
}

func (st *allocState) crossBlockPass() {
	for _, r := range st.usage.Registers() {
		if st.assign[r.N] >= 0 {
			continue
		}
		u := st.usage.Usage(r)
		if u.Reads == 0 {
			st.demote[r.N] = true
			st.demoted++
			continue
		}
		if u.IsCrossBlock() {
			st.named(int(r.N), st.cfg.Symbols[r.N])
		}
	}
	st.info.NumCross = len(st.info.names) - st.info.NumUser
}

// singleBlockPass walks every block forward. A temporary takes the lowest
// free index at its first access and gives it back after its last one.
func (a *RegisterAllocator) singleBlockPass(st *allocState) {
	start := st.info.SingleStart()
	next := start
	var free intsets.Sparse

	last := make(map[int32]InstrID)
	for _, r := range st.usage.Registers() {
		if st.assign[r.N] < 0 && !st.demote[r.N] {
			u := st.usage.Usage(r)
			last[r.N] = u.Accesses[len(u.Accesses)-1].Instr
		}
	}

	take := func(sym int32) {
		if st.assign[sym] >= 0 || st.demote[sym] {
			return
		}
		if _, ok := last[sym]; !ok {
			return
		}
		var idx int
		if !a.opts.ReuseSingleBlock || !free.TakeMin(&idx) {
			idx = next
			next++
		}
		st.assign[sym] = idx
	}

	for _, bb := range st.cfg.Blocks() {
		for _, iid := range bb.Instrs {
			in := st.cfg.Instr(iid)
			in.Reads(func(r Reg) {
				if r.Kind == RegSymbol {
					take(r.N)
				}
			})
			if dst, ok := in.Writes(); ok && dst.Kind == RegSymbol {
				take(dst.N)
			}

			if !a.opts.ReuseSingleBlock {
				continue
			}
			release := func(r Reg) {
				if r.Kind != RegSymbol {
					return
				}
				if end, ok := last[r.N]; ok && end == iid {
					free.Insert(st.assign[r.N])
					delete(last, r.N)
				}
			}
			in.Reads(release)
			if dst, ok := in.Writes(); ok {
				release(dst)
			}
		}
	}
	st.info.NumSingle = next - start
}

// patch rewrites every placeholder of the placed blocks.
func (st *allocState) patch() error {
	resolve := func(r Reg) (Reg, error) {
		if r.Kind != RegSymbol {
			return r, nil
		}
		if r.N < 0 || int(r.N) >= len(st.assign) {
			return r, internalErrorf(st.cfg.Name, "negative or unknown register placeholder %s", r)
		}
		if st.demote[r.N] {
			return Undefined, nil
		}
		idx := st.assign[r.N]
		if idx < 0 {
			return r, internalErrorf(st.cfg.Name, "register %s was never allocated", st.cfg.Symbols[r.N])
		}
		return VReg(idx), nil
	}

	for _, bb := range st.cfg.Blocks() {
		for _, iid := range bb.Instrs {
			in := st.cfg.Instr(iid)
			var err error
			if in.Dst, err = resolve(in.Dst); err != nil {
				return err
			}
			for i, r := range in.Args {
				if in.Args[i], err = resolve(r); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
