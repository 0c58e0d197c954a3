package analyzer

import "fmt"

// Risk thresholds for cyclomatic complexity
const (
	LowComplexityThreshold    = 9
	MediumComplexityThreshold = 19
)

// ComplexityResult holds the cyclomatic complexity of one lowered function
type ComplexityResult struct {
	// Complexity is the McCabe number: conditional branches plus one
	Complexity int

	// Raw CFG metrics over the blocks reachable from the entry
	Edges int
	Nodes int

	// Decisions counts blocks ending in a two-way branch
	Decisions int

	// ExceptionEdges counts edges into handlers; they do not add to Complexity
	ExceptionEdges int

	FunctionName string

	// "low", "medium" or "high"
	RiskLevel string
}

// String returns a human-readable representation of the complexity result
func (cr *ComplexityResult) String() string {
	return fmt.Sprintf("Function: %s, Complexity: %d, Risk: %s",
		cr.FunctionName, cr.Complexity, cr.RiskLevel)
}

type complexityVisitor struct {
	nodes          int
	edges          int
	exceptionEdges int
	decisions      map[BlockID]bool
}

func (cv *complexityVisitor) VisitBlock(block *BasicBlock) bool {
	cv.nodes++
	return true
}

func (cv *complexityVisitor) VisitEdge(edge Edge) bool {
	cv.edges++
	switch edge.Type {
	case EdgeCondTrue, EdgeCondFalse:
		cv.decisions[edge.From] = true
	case EdgeException:
		cv.exceptionEdges++
	}
	return true
}

// CalculateComplexity computes the cyclomatic complexity of a CFG. Returns
// fan out to no shared exit block, so the count is taken from the branches
// rather than from E - N + 2.
func CalculateComplexity(cfg *CFG) *ComplexityResult {
	visitor := &complexityVisitor{decisions: make(map[BlockID]bool)}
	cfg.Walk(visitor)

	result := &ComplexityResult{
		Complexity:     len(visitor.decisions) + 1,
		Edges:          visitor.edges,
		Nodes:          visitor.nodes,
		Decisions:      len(visitor.decisions),
		ExceptionEdges: visitor.exceptionEdges,
		FunctionName:   cfg.Name,
	}
	result.RiskLevel = riskLevel(result.Complexity)
	return result
}

func riskLevel(complexity int) string {
	switch {
	case complexity <= LowComplexityThreshold:
		return "low"
	case complexity <= MediumComplexityThreshold:
		return "medium"
	default:
		return "high"
	}
}
