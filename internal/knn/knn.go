// Package knn provides an HNSW-based approximate nearest neighbor index used
// to build the k-nearest-neighbor graphs that drive pseudo-label clustering.
//
// Construction is deterministic for a fixed seed: level generation draws from
// an index-local RNG rather than process-global random state.
package knn

import (
	"container/heap"
	"math"
	"math/rand"

	"github.com/bits-and-blooms/bitset"

	"github.com/cellmapper/coembed/distance"
	"github.com/cellmapper/coembed/internal/math32"
)

// node is a single element of the HNSW graph.
type node struct {
	Connections [][]uint32 // Per-level links to other nodes
	Vector      []float32
	Layer       int
	ID          uint32
}

// Options configures the index.
type Options struct {
	// M is the number of established connections per element during
	// construction. The range 8-48 is fine for the latent dimensionalities
	// seen here.
	M int

	// EF is the size of the dynamic candidate list during construction and
	// search. Larger values improve recall at the cost of time.
	EF int

	// Heuristic selects heuristic neighbour pruning instead of naive
	// closest-first truncation.
	Heuristic bool

	// Distance is the distance function between vectors.
	Distance distance.Func

	// Seed seeds level generation.
	Seed int64
}

// DefaultOptions holds the default index options.
var DefaultOptions = Options{
	M:         8,
	EF:        200,
	Heuristic: true,
	Distance:  math32.SquaredL2,
	Seed:      1,
}

// Index is a hierarchical navigable small world graph over float32 vectors.
type Index struct {
	dimension int
	mmax      int     // Max connections per element per layer
	mmax0     int     // Max for layer 0
	ml        float64 // Normalization factor for level generation
	ep        uint32  // Entry point node id
	maxLevel  int
	nodes     []*node
	rng       *rand.Rand
	opts      Options
}

// ErrDimensionMismatch is returned when an inserted or queried vector does
// not match the index dimension.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return "dimension mismatch"
}

// New creates an index for vectors of the given dimension.
func New(dimension int, optFns ...func(o *Options)) *Index {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.M < 2 {
		// M == 1 would make the level normalization factor divide by zero
		opts.M = 2
	}

	return &Index{
		dimension: dimension,
		mmax:      opts.M,
		mmax0:     2 * opts.M,
		ml:        1 / math.Log(float64(opts.M)),
		rng:       rand.New(rand.NewSource(opts.Seed)), // nolint gosec
		opts:      opts,
	}
}

// Len returns the number of indexed vectors.
func (x *Index) Len() int {
	return len(x.nodes)
}

// Neighbor is a search result.
type Neighbor struct {
	ID       uint32
	Distance float32
}

// Insert adds a vector to the index and returns its id. Ids are assigned
// densely in insertion order, so callers can use row indices directly.
func (x *Index) Insert(v []float32) (uint32, error) {
	if len(v) != x.dimension {
		return 0, &ErrDimensionMismatch{Expected: x.dimension, Actual: len(v)}
	}

	vectorCopy := make([]float32, len(v))
	copy(vectorCopy, v)

	id := uint32(len(x.nodes))
	layer := int(math.Floor(-math.Log(x.rng.Float64()) * x.ml))

	n := &node{
		ID:          id,
		Vector:      vectorCopy,
		Layer:       layer,
		Connections: make([][]uint32, layer+1),
	}

	if len(x.nodes) == 0 {
		x.nodes = append(x.nodes, n)
		x.ep = id
		x.maxLevel = layer

		return id, nil
	}

	// Greedy descent through the layers above the new node's top layer.
	currID, currDist := x.greedyDescend(vectorCopy, x.ep, x.maxLevel, layer+1)

	for level := min(layer, x.maxLevel); level >= 0; level-- {
		top := x.searchLayer(vectorCopy, &pqItem{Node: currID, Distance: currDist}, x.opts.EF, level)

		if x.opts.Heuristic {
			x.selectNeighboursHeuristic(top, x.mmax)
		} else {
			selectNeighboursSimple(top, x.mmax)
		}

		n.Connections[level] = make([]uint32, top.Len())

		for i := top.Len() - 1; i >= 0; i-- {
			item, _ := heap.Pop(top).(*pqItem)
			n.Connections[level][i] = item.Node
		}

		if len(n.Connections[level]) > 0 {
			// Closest match seeds the next (lower) level search.
			currID = n.Connections[level][0]
			currDist = x.opts.Distance(x.nodes[currID].Vector, vectorCopy)
		}
	}

	x.nodes = append(x.nodes, n)

	// Link neighbours back to the new node, making it visible.
	for level := min(layer, x.maxLevel); level >= 0; level-- {
		for _, neighbour := range n.Connections[level] {
			x.link(neighbour, id, level)
		}
	}

	if layer > x.maxLevel {
		x.ep = id
		x.maxLevel = layer
	}

	return id, nil
}

// Search returns the k nearest neighbours of q ordered by ascending distance.
func (x *Index) Search(q []float32, k int) ([]Neighbor, error) {
	if len(q) != x.dimension {
		return nil, &ErrDimensionMismatch{Expected: x.dimension, Actual: len(q)}
	}

	if len(x.nodes) == 0 || k <= 0 {
		return nil, nil
	}

	currID, currDist := x.greedyDescend(q, x.ep, x.maxLevel, 1)

	ef := max(x.opts.EF, k)
	top := x.searchLayer(q, &pqItem{Node: currID, Distance: currDist}, ef, 0)

	for top.Len() > k {
		_ = heap.Pop(top)
	}

	out := make([]Neighbor, top.Len())
	for i := top.Len() - 1; i >= 0; i-- {
		item, _ := heap.Pop(top).(*pqItem)
		out[i] = Neighbor{ID: item.Node, Distance: item.Distance}
	}

	return out, nil
}

// greedyDescend walks from the entry point down to stopLevel, following the
// single closest connection at each layer.
func (x *Index) greedyDescend(q []float32, epID uint32, fromLevel, stopLevel int) (uint32, float32) {
	currID := epID
	currDist := x.opts.Distance(x.nodes[currID].Vector, q)

	for level := fromLevel; level >= stopLevel; level-- {
		changed := true
		for changed {
			changed = false

			curr := x.nodes[currID]
			if len(curr.Connections) <= level {
				continue
			}

			for _, cand := range curr.Connections[level] {
				d := x.opts.Distance(x.nodes[cand].Vector, q)
				if d < currDist {
					currID = cand
					currDist = d
					changed = true
				}
			}
		}
	}

	return currID, currDist
}

// searchLayer performs a beam search in one layer and returns a max-heap of
// at most ef candidates.
func (x *Index) searchLayer(q []float32, ep *pqItem, ef, level int) *priorityQueue {
	var visited bitset.BitSet

	visited.Set(uint(ep.Node))

	candidates := &priorityQueue{}
	heap.Init(candidates)
	heap.Push(candidates, &pqItem{Node: ep.Node, Distance: ep.Distance})

	top := &priorityQueue{Max: true}
	heap.Init(top)
	heap.Push(top, &pqItem{Node: ep.Node, Distance: ep.Distance})

	for candidates.Len() > 0 {
		lowerBound := top.Top().Distance

		candidate, _ := heap.Pop(candidates).(*pqItem)
		if candidate.Distance > lowerBound {
			break
		}

		n := x.nodes[candidate.Node]
		if len(n.Connections) <= level {
			continue
		}

		for _, next := range n.Connections[level] {
			if visited.Test(uint(next)) {
				continue
			}

			visited.Set(uint(next))

			d := x.opts.Distance(q, x.nodes[next].Vector)

			if top.Len() < ef {
				heap.Push(top, &pqItem{Node: next, Distance: d})
				heap.Push(candidates, &pqItem{Node: next, Distance: d})
			} else if top.Top().Distance > d {
				heap.Pop(top)
				heap.Push(top, &pqItem{Node: next, Distance: d})
				heap.Push(candidates, &pqItem{Node: next, Distance: d})
			}
		}
	}

	return top
}

// link connects first -> second at the given level, pruning back to the
// connection budget when exceeded.
func (x *Index) link(first, second uint32, level int) {
	maxConnections := x.mmax
	if level == 0 {
		maxConnections = x.mmax0
	}

	n := x.nodes[first]
	if len(n.Connections) <= level {
		return
	}

	n.Connections[level] = append(n.Connections[level], second)

	if len(n.Connections[level]) <= maxConnections {
		return
	}

	top := &priorityQueue{Max: true}
	heap.Init(top)

	for _, id := range n.Connections[level] {
		heap.Push(top, &pqItem{Node: id, Distance: x.opts.Distance(n.Vector, x.nodes[id].Vector)})
	}

	if x.opts.Heuristic {
		x.selectNeighboursHeuristic(top, maxConnections)
	} else {
		selectNeighboursSimple(top, maxConnections)
	}

	n.Connections[level] = make([]uint32, top.Len())

	// Order by best match (index 0) .. worst
	for i := top.Len() - 1; i >= 0; i-- {
		item, _ := heap.Pop(top).(*pqItem)
		n.Connections[level][i] = item.Node
	}
}

// selectNeighboursSimple truncates the candidate heap to the m closest.
func selectNeighboursSimple(top *priorityQueue, m int) {
	for top.Len() > m {
		_ = heap.Pop(top)
	}
}

// selectNeighboursHeuristic keeps candidates that are closer to the query
// than to any already-kept candidate, which preserves graph connectivity in
// clustered data better than plain truncation.
func (x *Index) selectNeighboursHeuristic(top *priorityQueue, m int) {
	if top.Len() <= m {
		return
	}

	// Drain into a min-heap so we consider candidates closest-first.
	byDistance := &priorityQueue{}
	heap.Init(byDistance)

	for top.Len() > 0 {
		item, _ := heap.Pop(top).(*pqItem)
		heap.Push(byDistance, item)
	}

	kept := make([]*pqItem, 0, m)
	discarded := make([]*pqItem, 0)

	for byDistance.Len() > 0 && len(kept) < m {
		item, _ := heap.Pop(byDistance).(*pqItem)

		hit := true
		for _, v := range kept {
			if x.opts.Distance(x.nodes[v.Node].Vector, x.nodes[item.Node].Vector) < item.Distance {
				hit = false
				break
			}
		}

		if hit {
			kept = append(kept, item)
		} else {
			discarded = append(discarded, item)
		}
	}

	// Backfill from discarded candidates if pruning was too aggressive.
	for _, item := range discarded {
		if len(kept) >= m {
			break
		}
		kept = append(kept, item)
	}

	for _, item := range kept {
		heap.Push(top, item)
	}
}
