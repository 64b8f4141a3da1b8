package routing

import (
	"math"

	"tile_router/pkg/graph"
)

// MinHeap is a concrete-typed min-heap for Dijkstra priority queue.
// Avoids interface boxing overhead of container/heap.
type MinHeap struct {
	items []PQItem
}

// PQItem is a priority queue entry.
type PQItem struct {
	Node uint32
	Dist uint32
}

func (h *MinHeap) Len() int { return len(h.items) }

func (h *MinHeap) Push(node, dist uint32) {
	h.items = append(h.items, PQItem{node, dist})
	h.siftUp(len(h.items) - 1)
}

func (h *MinHeap) Pop() PQItem {
	n := len(h.items)
	item := h.items[0]
	h.items[0] = h.items[n-1]
	h.items = h.items[:n-1]
	if len(h.items) > 0 {
		h.siftDown(0)
	}
	return item
}

func (h *MinHeap) Reset() {
	h.items = h.items[:0]
}

func (h *MinHeap) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if h.items[i].Dist >= h.items[parent].Dist {
			break
		}
		h.items[i], h.items[parent] = h.items[parent], h.items[i]
		i = parent
	}
}

func (h *MinHeap) siftDown(i int) {
	n := len(h.items)
	for {
		smallest := i
		left := 2*i + 1
		right := 2*i + 2
		if left < n && h.items[left].Dist < h.items[smallest].Dist {
			smallest = left
		}
		if right < n && h.items[right].Dist < h.items[smallest].Dist {
			smallest = right
		}
		if smallest == i {
			break
		}
		h.items[i], h.items[smallest] = h.items[smallest], h.items[i]
		i = smallest
	}
}

// SearchState holds per-search state for one-to-many Dijkstra. It is sized
// for one graph and reused across searches from different sources.
type SearchState struct {
	Dist    []uint32
	Touched []uint32 // nodes touched during this search (for fast reset)
	PQ      MinHeap

	target []bool
}

// NewSearchState creates a SearchState for a graph with n nodes.
func NewSearchState(n uint32) *SearchState {
	dist := make([]uint32, n)
	for i := range dist {
		dist[i] = math.MaxUint32
	}
	return &SearchState{
		Dist:    dist,
		Touched: make([]uint32, 0, 1024),
		PQ:      MinHeap{items: make([]PQItem, 0, 256)},
		target:  make([]bool, n),
	}
}

// Reset clears only the touched entries for fast reuse.
func (qs *SearchState) Reset() {
	for _, node := range qs.Touched {
		qs.Dist[node] = math.MaxUint32
	}
	qs.Touched = qs.Touched[:0]
	qs.PQ.Reset()
}

func (qs *SearchState) touch(node, dist uint32) {
	if qs.Dist[node] == math.MaxUint32 {
		qs.Touched = append(qs.Touched, node)
	}
	qs.Dist[node] = dist
}

// OneToMany returns the shortest distance from source to each of targets,
// in target order, or math.MaxUint32 for unreachable targets. The search
// stops once every target is settled. qs may be nil; otherwise it must be
// sized for g and is reset before returning.
func OneToMany(g *graph.Graph, source uint32, targets []uint32, qs *SearchState) []uint32 {
	if qs == nil {
		qs = NewSearchState(g.NumNodes)
	}
	defer qs.Reset()

	remaining := 0
	for _, t := range targets {
		if !qs.target[t] {
			qs.target[t] = true
			remaining++
		}
	}
	defer func() {
		for _, t := range targets {
			qs.target[t] = false
		}
	}()

	qs.touch(source, 0)
	qs.PQ.Push(source, 0)
	for qs.PQ.Len() > 0 && remaining > 0 {
		cur := qs.PQ.Pop()
		if cur.Dist > qs.Dist[cur.Node] {
			continue // stale entry
		}
		if qs.target[cur.Node] {
			qs.target[cur.Node] = false
			remaining--
		}

		start, end := g.EdgesFrom(cur.Node)
		for e := start; e < end; e++ {
			v := g.Head[e]
			nd := cur.Dist + g.Weight[e]
			if nd < cur.Dist || nd == math.MaxUint32 {
				continue // overflow, or a cost equal to the unreachable sentinel
			}
			if nd < qs.Dist[v] {
				qs.touch(v, nd)
				qs.PQ.Push(v, nd)
			}
		}
	}

	dist := make([]uint32, len(targets))
	for i, t := range targets {
		dist[i] = qs.Dist[t]
	}
	return dist
}
