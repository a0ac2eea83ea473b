package core

import (
	"container/heap"
	"sort"
)

// dependencyOrder orders n nodes so every node follows the nodes it depends
// on. deps[i] lists the nodes i depends on. Ties are broken by position, so
// the order is stable for a given input. Nodes that cannot be ordered (they
// sit on or behind a cycle) are returned in blocked, ascending.
func dependencyOrder(n int, deps map[int][]int) (order []int, blocked []int) {
	indegree := make([]int, n)
	dependents := make(map[int][]int, len(deps))
	for i, targets := range deps {
		for _, j := range targets {
			if j == i {
				indegree[i]++
				continue
			}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	ready := &intHeap{}
	for i := 0; i < n; i++ {
		if indegree[i] == 0 {
			heap.Push(ready, i)
		}
	}

	order = make([]int, 0, n)
	for ready.Len() > 0 {
		i := heap.Pop(ready).(int)
		order = append(order, i)
		for _, d := range dependents[i] {
			indegree[d]--
			if indegree[d] == 0 {
				heap.Push(ready, d)
			}
		}
	}

	if len(order) == n {
		return order, nil
	}
	emitted := make([]bool, n)
	for _, i := range order {
		emitted[i] = true
	}
	for i := 0; i < n; i++ {
		if !emitted[i] {
			blocked = append(blocked, i)
		}
	}
	sort.Ints(blocked)
	return order, blocked
}

type intHeap []int

func (h intHeap) Len() int            { return len(h) }
func (h intHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h intHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *intHeap) Push(x interface{}) { *h = append(*h, x.(int)) }
func (h *intHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
