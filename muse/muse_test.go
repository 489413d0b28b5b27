package muse

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellmapper/coembed/artifact"
	"github.com/cellmapper/coembed/internal/math32"
	"github.com/cellmapper/coembed/modality"
)

func noopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// syntheticAligned builds n aligned rows over two modalities with two
// well-separated groups, so pseudo-label clustering has structure to find.
func syntheticAligned(n int, seed int64) *modality.Aligned {
	rng := rand.New(rand.NewSource(seed))

	const (
		dimA = 6
		dimB = 5
	)

	a := make([]float32, 0, n*dimA)
	b := make([]float32, 0, n*dimB)
	ids := make([]string, 0, n)

	for i := 0; i < n; i++ {
		ids = append(ids, fmt.Sprintf("gene%03d", i))

		offset := float32(0)
		if i%2 == 1 {
			offset = 5
		}

		for j := 0; j < dimA; j++ {
			a = append(a, offset+rng.Float32())
		}
		for j := 0; j < dimB; j++ {
			b = append(b, offset+rng.Float32())
		}
	}

	return &modality.Aligned{
		IDs:      ids,
		Names:    []string{"ppi", "image"},
		Matrices: [][]float32{a, b},
		Dims:     []int{dimA, dimB},
	}
}

func smallConfig() Config {
	cfg := DefaultConfig
	cfg.LatentDim = 4
	cfg.K = 3
	cfg.EpochsInit = 5
	cfg.Epochs = 30

	return cfg
}

func TestFitPredictShapeAndFiniteness(t *testing.T) {
	aligned := syntheticAligned(30, 1)

	fused, err := FitPredict(context.Background(), aligned, roaring.New(),
		smallConfig(), nil, noopLogger())
	require.NoError(t, err)

	require.Len(t, fused, 30)
	for i, vec := range fused {
		assert.Len(t, vec, 4, "row %d", i)
		assert.False(t, math32.HasNaN(vec), "row %d has non-finite values", i)
	}
}

func TestFitPredictDeterministicForFixedSeed(t *testing.T) {
	run := func() [][]float32 {
		fused, err := FitPredict(context.Background(), syntheticAligned(24, 2),
			roaring.New(), smallConfig(), nil, noopLogger())
		require.NoError(t, err)

		return fused
	}

	assert.Equal(t, run(), run())
}

func TestFitPredictSeedChangesResult(t *testing.T) {
	aligned := syntheticAligned(24, 2)

	cfg := smallConfig()
	first, err := FitPredict(context.Background(), aligned, roaring.New(), cfg, nil, noopLogger())
	require.NoError(t, err)

	cfg.Seed = 99
	second, err := FitPredict(context.Background(), aligned, roaring.New(), cfg, nil, noopLogger())
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestFitPredictHeldOutRows(t *testing.T) {
	aligned := syntheticAligned(30, 3)

	heldOut := roaring.New()
	heldOut.Add(0)
	heldOut.Add(7)
	heldOut.Add(29)

	fused, err := FitPredict(context.Background(), aligned, heldOut,
		smallConfig(), nil, noopLogger())
	require.NoError(t, err)

	// Held-out rows still get an embedding, they are just not trained on.
	require.Len(t, fused, 30)
	for _, row := range []int{0, 7, 29} {
		assert.False(t, math32.HasNaN(fused[row]))
	}
}

func TestFitPredictTooFewTrainingRows(t *testing.T) {
	aligned := syntheticAligned(10, 4)

	cfg := smallConfig()
	cfg.K = 12 // More neighbors than rows.

	_, err := FitPredict(context.Background(), aligned, roaring.New(), cfg, nil, noopLogger())
	require.Error(t, err)

	var dataErr *DataError
	assert.ErrorAs(t, err, &dataErr)
}

func TestFitPredictHeldOutShrinksTrainingSet(t *testing.T) {
	aligned := syntheticAligned(10, 5)

	heldOut := roaring.New()
	for i := uint32(0); i < 7; i++ {
		heldOut.Add(i)
	}

	// 3 training rows for k=3 is not enough.
	_, err := FitPredict(context.Background(), aligned, heldOut, smallConfig(), nil, noopLogger())
	require.Error(t, err)

	var dataErr *DataError
	assert.ErrorAs(t, err, &dataErr)
}

func TestFitPredictValidation(t *testing.T) {
	aligned := syntheticAligned(20, 6)

	t.Run("BadLatentDim", func(t *testing.T) {
		cfg := smallConfig()
		cfg.LatentDim = 0

		_, err := FitPredict(context.Background(), aligned, roaring.New(), cfg, nil, noopLogger())
		assert.Error(t, err)
	})

	t.Run("BadK", func(t *testing.T) {
		cfg := smallConfig()
		cfg.K = 0

		_, err := FitPredict(context.Background(), aligned, roaring.New(), cfg, nil, noopLogger())
		assert.Error(t, err)
	})

	t.Run("WrongModalityCount", func(t *testing.T) {
		bad := &modality.Aligned{
			IDs:      aligned.IDs,
			Names:    []string{"only"},
			Matrices: aligned.Matrices[:1],
			Dims:     aligned.Dims[:1],
		}

		_, err := FitPredict(context.Background(), bad, roaring.New(), smallConfig(), nil, noopLogger())
		assert.Error(t, err)
	})
}

func TestFitPredictCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := FitPredict(ctx, syntheticAligned(20, 7), roaring.New(),
		smallConfig(), nil, noopLogger())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCheckpointRoundTrip(t *testing.T) {
	store := artifact.NewMemoryStore()
	aligned := syntheticAligned(24, 8)

	_, err := FitPredict(context.Background(), aligned, roaring.New(),
		smallConfig(), store, noopLogger())
	require.NoError(t, err)

	assert.Equal(t, []string{CheckpointName}, store.Names())

	cp, err := LoadCheckpoint(store)
	require.NoError(t, err)

	assert.Equal(t, []string{"ppi", "image"}, cp.Names)
	assert.Equal(t, 4, cp.LatentDim)
	require.Len(t, cp.Encoders, 2)

	assert.Equal(t, 6, cp.Encoders[0].InDim)
	assert.Equal(t, 5, cp.Encoders[1].InDim)
	assert.Len(t, cp.Encoders[0].W1, 6*4)
	assert.Len(t, cp.Encoders[0].B2, 6)
	assert.Len(t, cp.Encoders[1].W2, 4*5)
}

func TestLoadCheckpointMissing(t *testing.T) {
	_, err := LoadCheckpoint(artifact.NewMemoryStore())
	assert.Error(t, err)
}
