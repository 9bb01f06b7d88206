package engine

import "container/heap"

// eventKind discriminates scheduler timer events. Edge traversal is not an
// event: progress advances every tick so renderers observe motion.
type eventKind int

const (
	evRetryExpire eventKind = iota
	evProcessingDone
)

// event is a due timer owned by the scheduler. seq is assigned in
// scheduling order, which inside a tick follows request creation order, so
// ties at the same due tick resolve FIFO and runs stay deterministic.
type event struct {
	dueTick int64
	seq     int64
	kind    eventKind
	reqID   int64
}

type eventHeap []*event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].dueTick != h[j].dueTick {
		return h[i].dueTick < h[j].dueTick
	}
	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) { *h = append(*h, x.(*event)) }

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return ev
}

// timerQueue wraps the heap with the scheduling sequence counter.
type timerQueue struct {
	heap eventHeap
	seq  int64
}

func newTimerQueue() *timerQueue {
	tq := &timerQueue{}
	heap.Init(&tq.heap)
	return tq
}

func (tq *timerQueue) schedule(dueTick int64, kind eventKind, reqID int64) {
	tq.seq++
	heap.Push(&tq.heap, &event{dueTick: dueTick, seq: tq.seq, kind: kind, reqID: reqID})
}

// popDue removes and returns the next event due at or before the tick.
func (tq *timerQueue) popDue(tick int64) (*event, bool) {
	if len(tq.heap) == 0 || tq.heap[0].dueTick > tick {
		return nil, false
	}
	return heap.Pop(&tq.heap).(*event), true
}

func (tq *timerQueue) drain() {
	tq.heap = tq.heap[:0]
	tq.seq = 0
}

func (tq *timerQueue) len() int { return len(tq.heap) }
