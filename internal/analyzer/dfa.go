package analyzer

import (
	"golang.org/x/tools/container/intsets"
)

// AccessKind classifies how an instruction touches a register
type AccessKind int

const (
	// AccessRead is an operand read
	AccessRead AccessKind = iota
	// AccessWrite stores a new value
	AccessWrite
	// AccessKill unbinds the register (del x)
	AccessKill
)

// String returns the string representation of AccessKind
func (k AccessKind) String() string {
	switch k {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	case AccessKill:
		return "kill"
	default:
		return "unknown"
	}
}

// IsDef returns true if the access gives the register a new state
func (k AccessKind) IsDef() bool {
	return k == AccessWrite || k == AccessKill
}

// RegAccess is one read or write of a register
type RegAccess struct {
	Kind  AccessKind
	Block BlockID
	Instr InstrID
	// Pos is the position of the instruction within its block
	Pos int
}

// RegUsage collects every access of one register
type RegUsage struct {
	Reg      Reg
	Accesses []RegAccess

	// Blocks holds the IDs of the blocks touching the register
	Blocks intsets.Sparse

	Reads  int
	Writes int

	first map[BlockID]AccessKind
}

func newRegUsage(r Reg) *RegUsage {
	return &RegUsage{Reg: r, first: make(map[BlockID]AccessKind)}
}

func (u *RegUsage) add(a RegAccess) {
	u.Accesses = append(u.Accesses, a)
	u.Blocks.Insert(int(a.Block))
	if _, ok := u.first[a.Block]; !ok {
		u.first[a.Block] = a.Kind
	}
	if a.Kind == AccessRead {
		u.Reads++
	} else {
		u.Writes++
	}
}

// IsCrossBlock returns true if the register is touched by more than one block
func (u *RegUsage) IsCrossBlock() bool {
	return u.Blocks.Len() > 1
}

// FirstAccessIn returns the kind of the first access of the register in a block
func (u *RegUsage) FirstAccessIn(b BlockID) (AccessKind, bool) {
	k, ok := u.first[b]
	return k, ok
}

// DefUseInfo holds the register accesses of one CFG, built by a forward
// scan of the placed blocks.
type DefUseInfo struct {
	cfg   *CFG
	usage map[Reg]*RegUsage
	order []Reg
}

// CollectDefUse scans the placed blocks of cfg in order and records every
// symbol or virtual register access. Constants and Undefined operands are
// skipped. A negative register index is reported as an InternalError.
func CollectDefUse(cfg *CFG) (*DefUseInfo, error) {
	info := &DefUseInfo{cfg: cfg, usage: make(map[Reg]*RegUsage)}
	for _, bb := range cfg.Blocks() {
		for pos, iid := range bb.Instrs {
			in := cfg.Instr(iid)
			var bad error
			in.Reads(func(r Reg) {
				if err := info.record(r, RegAccess{Kind: AccessRead, Block: bb.ID, Instr: iid, Pos: pos}); err != nil && bad == nil {
					bad = err
				}
			})
			if bad != nil {
				return nil, bad
			}
			if dst, ok := in.Writes(); ok {
				kind := AccessWrite
				if in.Op == OpDeleteLocal {
					kind = AccessKill
				}
				if err := info.record(dst, RegAccess{Kind: kind, Block: bb.ID, Instr: iid, Pos: pos}); err != nil {
					return nil, err
				}
			}
		}
	}
	return info, nil
}

func (info *DefUseInfo) record(r Reg, a RegAccess) error {
	if r.Kind != RegSymbol && r.Kind != RegVirtual {
		return nil
	}
	if r.N < 0 {
		return internalErrorf(info.cfg.Name, "negative register reference %s in bb%d", r, info.cfg.Block(a.Block).Index)
	}
	u, ok := info.usage[r]
	if !ok {
		u = newRegUsage(r)
		info.usage[r] = u
		info.order = append(info.order, r)
	}
	u.add(a)
	return nil
}

// Usage returns the accesses of a register, or nil if it is never touched
func (info *DefUseInfo) Usage(r Reg) *RegUsage {
	return info.usage[r]
}

// Registers returns every touched register in first-seen order
func (info *DefUseInfo) Registers() []Reg {
	return info.order
}

// TotalReads returns the number of register reads
func (info *DefUseInfo) TotalReads() int {
	total := 0
	for _, u := range info.usage {
		total += u.Reads
	}
	return total
}

// TotalWrites returns the number of register writes and kills
func (info *DefUseInfo) TotalWrites() int {
	total := 0
	for _, u := range info.usage {
		total += u.Writes
	}
	return total
}
