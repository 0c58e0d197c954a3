package analyzer

import (
	"container/heap"
)

// Dataflow describes a forward analysis over a per-register state vector.
// Merge folds the exit value of a predecessor into the current entry value
// of a successor and must be monotone. Process applies the transfer function
// of one block to a copy of its entry state.
type Dataflow[T comparable] struct {
	Start   BlockID
	Initial []T
	Merge   func(from, into T) T
	Process func(state []T, bb *BasicBlock) error
}

// FixedPoint holds the entry and exit state of every block reached by a
// dataflow computation. Blocks that were never reached have nil states.
type FixedPoint[T comparable] struct {
	entry [][]T
	exit  [][]T

	// Visits counts block evaluations, re-evaluations included
	Visits int
}

// Reached reports whether the computation reached block b.
func (fp *FixedPoint[T]) Reached(b BlockID) bool {
	return int(b) < len(fp.entry) && fp.entry[b] != nil
}

// AtStart returns the state at the entry of block b.
func (fp *FixedPoint[T]) AtStart(b BlockID) []T {
	if int(b) >= len(fp.entry) {
		return nil
	}
	return fp.entry[b]
}

// AtEnd returns the state at the exit of block b.
func (fp *FixedPoint[T]) AtEnd(b BlockID) []T {
	if int(b) >= len(fp.exit) {
		return nil
	}
	return fp.exit[b]
}

// ComputeFixedPoint runs df over a finalized cfg. The worklist pops blocks by
// ascending index, so on its first visit a block has at least one processed
// predecessor. A block is queued again whenever merging a predecessor's exit
// state changes its entry state.
func ComputeFixedPoint[T comparable](cfg *CFG, df Dataflow[T]) (*FixedPoint[T], error) {
	n := cfg.Size()
	fp := &FixedPoint[T]{entry: make([][]T, n), exit: make([][]T, n)}
	start := cfg.Block(df.Start)
	if start == nil || !start.IsPlaced() {
		return nil, internalErrorf(cfg.Name, "dataflow start block %d is not placed", df.Start)
	}

	queued := make([]bool, n)
	work := newBlockQueue()
	push := func(idx int) {
		if !queued[idx] {
			queued[idx] = true
			work.Enqueue(idx)
		}
	}

	fp.entry[start.Index] = append([]T(nil), df.Initial...)
	push(start.Index)

	for !work.Empty() {
		idx := work.Dequeue()
		queued[idx] = false
		bb := cfg.BlockAt(idx)
		fp.Visits++

		state := append([]T(nil), fp.entry[idx]...)
		if err := df.Process(state, bb); err != nil {
			return nil, err
		}
		fp.exit[idx] = state

		for _, s := range cfg.Successors(bb) {
			succ := cfg.Block(s)
			into := fp.entry[succ.Index]
			if into == nil {
				fp.entry[succ.Index] = append([]T(nil), state...)
				push(succ.Index)
				continue
			}
			changed := false
			for r := range into {
				if m := df.Merge(state[r], into[r]); m != into[r] {
					into[r] = m
					changed = true
				}
			}
			if changed {
				push(succ.Index)
			}
		}
	}
	return fp, nil
}

// blockQueue is a min-heap of block indices.
type blockQueue struct {
	queue blockHeap
}

func newBlockQueue() *blockQueue {
	return &blockQueue{}
}

func (q *blockQueue) Empty() bool {
	return len(q.queue) == 0
}

func (q *blockQueue) Enqueue(idx int) {
	heap.Push(&q.queue, idx)
}

func (q *blockQueue) Dequeue() int {
	return heap.Pop(&q.queue).(int)
}

type blockHeap []int

func (h blockHeap) Len() int           { return len(h) }
func (h blockHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h blockHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *blockHeap) Push(x any) {
	*h = append(*h, x.(int))
}

func (h *blockHeap) Pop() any {
	old := *h
	n := len(old) - 1
	item := old[n]
	*h = old[:n]
	return item
}
