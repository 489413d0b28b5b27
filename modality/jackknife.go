package modality

import (
	"math/rand"

	"github.com/RoaringBitmap/roaring/v2"
)

// Jackknife samples floor(fraction*n) row indices to withhold from training.
// Returns an empty bitmap for a fraction of zero. Deterministic for a fixed
// rng state.
func Jackknife(n int, fraction float64, rng *rand.Rand) *roaring.Bitmap {
	held := roaring.New()

	size := int(fraction * float64(n))
	if size <= 0 {
		return held
	}

	for _, idx := range rng.Perm(n)[:size] {
		held.Add(uint32(idx))
	}

	return held
}
