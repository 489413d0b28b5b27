// Package muse fits a shared latent space over two aligned embedding
// modalities. Training runs in two phases: each modality's autoencoder is
// warm-started on its own reconstruction objective, then all encoders are
// updated jointly on a combined loss of per-modality reconstruction,
// cross-modal consistency between the two latent encodings of the same
// entity, and a margin-based triplet objective whose pseudo-labels come from
// k-nearest-neighbor community detection over the current latents.
package muse

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/cellmapper/coembed/artifact"
	"github.com/cellmapper/coembed/distance"
	"github.com/cellmapper/coembed/modality"
)

// CheckpointName is the artifact name the trained model weights are stored
// under.
const CheckpointName = "muse/model.gob"

// Config holds the fitter hyperparameters.
type Config struct {
	// LatentDim is the dimensionality of the shared latent space.
	LatentDim int

	// K is the neighbor count for pseudo-label clustering.
	K int

	// Metric is the distance metric for the pseudo-label kNN graph.
	Metric distance.Metric

	// TripletMargin is the margin of the triplet objective.
	TripletMargin float32

	// Dropout is the input dropout rate during training.
	Dropout float32

	// EpochsInit is the number of per-modality warm start epochs.
	EpochsInit int

	// Epochs is the number of joint training epochs.
	Epochs int

	// Seed drives all randomness in the fit: weight init, dropout,
	// clustering, and triplet sampling. Fixing it makes the fit
	// reproducible end to end.
	Seed int64

	// RecWeight, CrossWeight and TripletWeight scale the three loss terms.
	RecWeight     float32
	CrossWeight   float32
	TripletWeight float32

	// LearningRate is the Adam step size.
	LearningRate float32
}

// DefaultConfig holds the default fitter hyperparameters.
var DefaultConfig = Config{
	LatentDim:     128,
	K:             10,
	Metric:        distance.MetricL2,
	TripletMargin: 0.1,
	Dropout:       0.25,
	EpochsInit:    200,
	Epochs:        500,
	Seed:          1,
	RecWeight:     1,
	CrossWeight:   1,
	TripletWeight: 1,
	LearningRate:  1e-3,
}

// DataError indicates the aligned identifier set is unsuitable for the
// requested parameters and the fit cannot proceed.
type DataError struct {
	Reason string
}

func (e *DataError) Error() string {
	return "training data unsuitable: " + e.Reason
}

// FitPredict trains the co-embedding model and returns one fused latent
// vector per aligned entity, in the aligned canonical order. Rows whose
// index is in heldOut are excluded from every loss term and used only for
// monitoring. The trained weights are persisted as a checkpoint artifact.
func FitPredict(ctx context.Context, aligned *modality.Aligned, heldOut *roaring.Bitmap,
	cfg Config, store artifact.Store, logger *slog.Logger) ([][]float32, error,
) {
	if len(aligned.Matrices) != 2 {
		return nil, fmt.Errorf("muse: need exactly 2 modalities, got %d", len(aligned.Matrices))
	}

	if cfg.LatentDim < 1 {
		return nil, fmt.Errorf("muse: invalid latent dimension %d", cfg.LatentDim)
	}

	if cfg.K < 1 {
		return nil, fmt.Errorf("muse: invalid neighbor count %d", cfg.K)
	}

	n := aligned.Len()
	nHeld := int(heldOut.GetCardinality())
	nTrain := n - nHeld

	// Clustering over nTrain latents with k neighbors degenerates when the
	// training partition is not strictly larger than k.
	if nTrain <= cfg.K {
		return nil, &DataError{Reason: fmt.Sprintf(
			"%d training entities (of %d aligned) for k=%d neighbors", nTrain, n, cfg.K)}
	}

	t := newTrainer(aligned, heldOut, cfg, logger)

	if err := t.pretrain(ctx); err != nil {
		return nil, err
	}

	if err := t.fitJoint(ctx); err != nil {
		return nil, err
	}

	fused, err := t.fusedEmbeddings()
	if err != nil {
		return nil, err
	}

	if store != nil {
		if err := t.checkpoint(store); err != nil {
			return nil, err
		}
	}

	return fused, nil
}
