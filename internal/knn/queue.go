package knn

import "container/heap"

// Compile time check to ensure priorityQueue satisfies the heap interface.
var _ heap.Interface = (*priorityQueue)(nil)

// pqItem is an entry in the candidate queue.
type pqItem struct {
	Node     uint32  // Node is the graph node id.
	Distance float32 // Distance is the priority of the item in the queue.
	Index    int     // Index is maintained by the heap.Interface methods.
}

// priorityQueue implements heap.Interface over pqItems. With Max set it
// behaves as a max-heap (worst candidate on top), otherwise as a min-heap.
type priorityQueue struct {
	Max   bool
	Items []*pqItem
}

func (pq *priorityQueue) Len() int { return len(pq.Items) }

func (pq *priorityQueue) Less(i, j int) bool {
	if pq.Max {
		return pq.Items[i].Distance > pq.Items[j].Distance
	}

	return pq.Items[i].Distance < pq.Items[j].Distance
}

func (pq *priorityQueue) Swap(i, j int) {
	pq.Items[i], pq.Items[j] = pq.Items[j], pq.Items[i]
	pq.Items[i].Index, pq.Items[j].Index = i, j
}

func (pq *priorityQueue) Push(x any) {
	item, _ := x.(*pqItem)
	item.Index = len(pq.Items)
	pq.Items = append(pq.Items, item)
}

func (pq *priorityQueue) Pop() any {
	if len(pq.Items) == 0 {
		return nil
	}

	old := pq.Items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.Index = -1
	pq.Items = old[:n-1]

	return item
}

// Top returns the highest-priority element without removing it.
func (pq *priorityQueue) Top() *pqItem {
	return pq.Items[0]
}
