package analyzer

import (
	"time"

	"golang.org/x/tools/container/intsets"
)

// ReachabilityResult contains the results of reachability analysis over the
// block arena of a CFG, placed or not.
type ReachabilityResult struct {
	// Reachable holds the IDs of blocks reachable from the start block
	Reachable intsets.Sparse

	// Unreachable lists the remaining blocks in arena order
	Unreachable []BlockID

	// TotalBlocks is the size of the arena
	TotalBlocks int

	// AnalysisTime is the time taken to perform the analysis
	AnalysisTime time.Duration
}

// IsReachable reports whether the block was reached.
func (r *ReachabilityResult) IsReachable(id BlockID) bool {
	return r.Reachable.Has(int(id))
}

// ReachableCount is the number of reachable blocks.
func (r *ReachabilityResult) ReachableCount() int {
	return r.Reachable.Len()
}

// ReachabilityAnalyzer performs reachability analysis on CFGs
type ReachabilityAnalyzer struct {
	cfg *CFG
}

// NewReachabilityAnalyzer creates a new reachability analyzer for the given CFG
func NewReachabilityAnalyzer(cfg *CFG) *ReachabilityAnalyzer {
	return &ReachabilityAnalyzer{cfg: cfg}
}

// AnalyzeReachability performs reachability analysis starting from the entry block
func (ra *ReachabilityAnalyzer) AnalyzeReachability() *ReachabilityResult {
	if ra.cfg == nil {
		return &ReachabilityResult{}
	}
	return ra.AnalyzeReachabilityFrom(ra.cfg.Entry)
}

// AnalyzeReachabilityFrom performs reachability analysis from a specific starting block
func (ra *ReachabilityAnalyzer) AnalyzeReachabilityFrom(start BlockID) *ReachabilityResult {
	startTime := time.Now()
	result := &ReachabilityResult{}
	if ra.cfg == nil || ra.cfg.Block(start) == nil {
		result.AnalysisTime = time.Since(startTime)
		return result
	}
	result.TotalBlocks = len(ra.cfg.blocks)

	stack := []BlockID{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !result.Reachable.Insert(int(id)) {
			continue
		}
		for _, s := range ra.cfg.Successors(ra.cfg.blocks[id]) {
			if !result.Reachable.Has(int(s)) {
				stack = append(stack, s)
			}
		}
	}

	for id := range ra.cfg.blocks {
		if !result.Reachable.Has(id) {
			result.Unreachable = append(result.Unreachable, BlockID(id))
		}
	}
	result.AnalysisTime = time.Since(startTime)
	return result
}

// DeadBlocks returns the unreachable blocks that hold instructions. These
// are the regions the builder lowered but never placed.
func (ra *ReachabilityAnalyzer) DeadBlocks(result *ReachabilityResult) []BlockID {
	var dead []BlockID
	for _, id := range result.Unreachable {
		if !ra.cfg.blocks[id].IsEmpty() {
			dead = append(dead, id)
		}
	}
	return dead
}
