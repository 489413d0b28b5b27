// Package cluster derives pseudo-labels from latent vectors by community
// detection over a k-nearest-neighbor graph. The labels are consumed by the
// co-embedding fitter for triplet sampling.
package cluster

import (
	"fmt"
	"math/rand"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/cellmapper/coembed/distance"
	"github.com/cellmapper/coembed/internal/knn"
)

// Options configures community detection.
type Options struct {
	// Metric is the distance metric for the k-nearest-neighbor graph.
	Metric distance.Metric
}

// Result holds a clustering of n vectors.
type Result struct {
	// Labels assigns each row a compact community id in [0, NumClusters).
	Labels []int

	// Members[c] is the set of row indices assigned to community c.
	Members []*roaring.Bitmap
}

// NumClusters returns the number of detected communities.
func (r *Result) NumClusters() int {
	return len(r.Members)
}

const maxPropagationIters = 50

// Detect clusters the n vectors of the flattened row-major matrix (n = len
// (vectors)/dim) by building a k-nearest-neighbor graph and running label
// propagation on it. Deterministic for a fixed seed.
func Detect(vectors []float32, dim, k int, seed int64, optFns ...func(o *Options)) (*Result, error) {
	opts := Options{Metric: distance.MetricL2}

	for _, fn := range optFns {
		fn(&opts)
	}

	n := len(vectors) / dim
	if n == 0 || len(vectors)%dim != 0 {
		return nil, fmt.Errorf("cluster: malformed matrix: %d values, dim %d", len(vectors), dim)
	}

	if k < 1 || k >= n {
		return nil, fmt.Errorf("cluster: k %d out of range for %d rows", k, n)
	}

	adj, err := buildGraph(vectors, dim, k, seed, opts)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(seed)) // nolint gosec
	labels := propagate(adj, rng)

	return compact(labels), nil
}

// buildGraph returns, for each row, the ids of its k nearest neighbours
// (excluding the row itself).
func buildGraph(vectors []float32, dim, k int, seed int64, opts Options) ([][]uint32, error) {
	fn, err := distance.Provider(opts.Metric)
	if err != nil {
		return nil, fmt.Errorf("cluster: %w", err)
	}

	graphFn := fn
	if opts.Metric != distance.MetricL2 {
		// The dot-product family is a similarity; the graph needs
		// smaller-is-closer.
		graphFn = func(a, b []float32) float32 { return -fn(a, b) }
	}

	if opts.Metric == distance.MetricCosine {
		vectors = normalizeRows(vectors, dim)
	}

	n := len(vectors) / dim

	idx := knn.New(dim, func(o *knn.Options) {
		o.Seed = seed
		o.EF = max(knn.DefaultOptions.EF, k+1)
		o.Distance = graphFn
	})

	for i := 0; i < n; i++ {
		if _, err := idx.Insert(vectors[i*dim : (i+1)*dim]); err != nil {
			return nil, err
		}
	}

	adj := make([][]uint32, n)

	for i := 0; i < n; i++ {
		neighbours, err := idx.Search(vectors[i*dim:(i+1)*dim], k+1)
		if err != nil {
			return nil, err
		}

		adj[i] = make([]uint32, 0, k)
		for _, nb := range neighbours {
			if nb.ID == uint32(i) {
				continue
			}
			if len(adj[i]) == k {
				break
			}
			adj[i] = append(adj[i], nb.ID)
		}
	}

	return adj, nil
}

// normalizeRows returns a copy of the matrix with every row L2-normalized,
// turning dot products into cosine similarities. Zero-norm rows pass through
// unchanged.
func normalizeRows(vectors []float32, dim int) []float32 {
	out := make([]float32, len(vectors))

	for i := 0; i < len(vectors); i += dim {
		row := vectors[i : i+dim]

		if nv, ok := distance.NormalizeL2Copy(row); ok {
			copy(out[i:], nv)
		} else {
			copy(out[i:], row)
		}
	}

	return out
}

// propagate runs synchronous-free label propagation: nodes adopt the most
// frequent label among their neighbours, visiting nodes in a shuffled order
// each round, until no label changes or the iteration cap is hit.
func propagate(adj [][]uint32, rng *rand.Rand) []int {
	n := len(adj)

	labels := make([]int, n)
	for i := range labels {
		labels[i] = i
	}

	order := rng.Perm(n)
	counts := make(map[int]int, 8)

	for iter := 0; iter < maxPropagationIters; iter++ {
		changed := false

		for _, i := range order {
			if len(adj[i]) == 0 {
				continue
			}

			clear(counts)
			for _, nb := range adj[i] {
				counts[labels[nb]]++
			}

			best := labels[i]
			bestCount := counts[best]

			for label, count := range counts {
				// Ties break toward the smaller label id to keep the
				// result independent of map iteration order.
				if count > bestCount || (count == bestCount && label < best) {
					best = label
					bestCount = count
				}
			}

			if best != labels[i] {
				labels[i] = best
				changed = true
			}
		}

		if !changed {
			break
		}

		rng.Shuffle(n, func(a, b int) { order[a], order[b] = order[b], order[a] })
	}

	return labels
}

// compact renumbers raw labels to 0..c-1 and materializes membership bitmaps.
func compact(labels []int) *Result {
	remap := make(map[int]int, 16)
	members := make([]*roaring.Bitmap, 0, 16)

	out := make([]int, len(labels))

	for i, raw := range labels {
		c, ok := remap[raw]
		if !ok {
			c = len(members)
			remap[raw] = c
			members = append(members, roaring.New())
		}

		out[i] = c
		members[c].Add(uint32(i))
	}

	return &Result{Labels: out, Members: members}
}
