package muse

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/cellmapper/coembed/cluster"
	"github.com/cellmapper/coembed/distance"
	"github.com/cellmapper/coembed/internal/math32"
	"github.com/cellmapper/coembed/modality"
)

// labelRefreshInterval is the number of joint epochs between pseudo-label
// recomputations.
const labelRefreshInterval = 25

type trainer struct {
	cfg     Config
	aligned *modality.Aligned
	logger  *slog.Logger

	n         int
	nTrain    int
	trainRows []uint32  // row indices not held out
	heldRows  []uint32  // row indices held out for monitoring
	mask      []float32 // 1 for training rows, 0 for held-out rows

	encs []*encoder
	rngs []*rand.Rand // per-modality streams: init, dropout
	rng  *rand.Rand   // joint-phase stream: clustering seeds, triplets

	// Pseudo-labels per modality, refreshed during the joint phase.
	labels  [][]int
	members [][][]uint32 // per modality, per community, training-row members

	progress rate.Sometimes
}

func newTrainer(aligned *modality.Aligned, heldOut *roaring.Bitmap, cfg Config, logger *slog.Logger) *trainer {
	n := aligned.Len()

	t := &trainer{
		cfg:      cfg,
		aligned:  aligned,
		logger:   logger,
		n:        n,
		mask:     make([]float32, n),
		labels:   make([][]int, len(aligned.Matrices)),
		members:  make([][][]uint32, len(aligned.Matrices)),
		rng:      rand.New(rand.NewSource(cfg.Seed)), // nolint gosec
		progress: rate.Sometimes{Interval: time.Second},
	}

	for i := 0; i < n; i++ {
		if heldOut.Contains(uint32(i)) {
			t.heldRows = append(t.heldRows, uint32(i))
		} else {
			t.trainRows = append(t.trainRows, uint32(i))
			t.mask[i] = 1
		}
	}

	t.nTrain = len(t.trainRows)

	for mi, dim := range aligned.Dims {
		rng := rand.New(rand.NewSource(cfg.Seed + int64(mi) + 1)) // nolint gosec
		t.rngs = append(t.rngs, rng)
		t.encs = append(t.encs, newEncoder(dim, cfg.LatentDim, rng))
	}

	return t
}

// pretrain warm-starts each modality's autoencoder on its own reconstruction
// objective. Modalities are independent here, so they train concurrently.
func (t *trainer) pretrain(ctx context.Context) error {
	t.logger.Info("pretraining modality encoders", "epochs", t.cfg.EpochsInit)

	g, ctx := errgroup.WithContext(ctx)

	for mi := range t.encs {
		g.Go(func() error {
			enc := t.encs[mi]
			x := t.aligned.Matrices[mi]
			rng := t.rngs[mi]

			for epoch := 0; epoch < t.cfg.EpochsInit; epoch++ {
				if err := ctx.Err(); err != nil {
					return err
				}

				enc.forward(x, t.n, t.cfg.Dropout, true, rng)
				enc.zeroDeltas()
				t.addReconstructionDelta(enc, x)
				enc.backward(t.n)
				enc.update(t.cfg.LearningRate)
			}

			t.logger.Info("pretrained encoder",
				"modality", t.aligned.Names[mi],
				"loss", t.reconstructionLoss(enc, x, t.trainRows))

			return nil
		})
	}

	return g.Wait()
}

// fitJoint runs the joint phase: pseudo-label refresh on a fixed cadence,
// then full-batch updates on the combined loss each epoch.
func (t *trainer) fitJoint(ctx context.Context) error {
	t.logger.Info("joint training", "epochs", t.cfg.Epochs, "k", t.cfg.K)

	for epoch := 0; epoch < t.cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if epoch%labelRefreshInterval == 0 {
			if err := t.refreshLabels(); err != nil {
				return err
			}

			t.monitor(epoch)
		}

		for mi, enc := range t.encs {
			enc.forward(t.aligned.Matrices[mi], t.n, t.cfg.Dropout, true, t.rngs[mi])
			enc.zeroDeltas()
		}

		for mi, enc := range t.encs {
			t.addReconstructionDelta(enc, t.aligned.Matrices[mi])
		}

		t.addCrossModalDelta()

		for mi := range t.encs {
			t.addTripletDelta(mi)
		}

		for _, enc := range t.encs {
			enc.backward(t.n)
			enc.update(t.cfg.LearningRate)
		}
	}

	return nil
}

// refreshLabels rebuilds each modality's pseudo-labels by clustering its
// current latent vectors.
func (t *trainer) refreshLabels() error {
	for mi, enc := range t.encs {
		enc.forward(t.aligned.Matrices[mi], t.n, 0, false, nil)

		res, err := cluster.Detect(enc.h[:t.n*t.cfg.LatentDim], t.cfg.LatentDim, t.cfg.K, t.rng.Int63(),
			func(o *cluster.Options) { o.Metric = t.cfg.Metric })
		if err != nil {
			return err
		}

		t.labels[mi] = res.Labels

		members := make([][]uint32, res.NumClusters())
		for _, row := range t.trainRows {
			c := res.Labels[row]
			members[c] = append(members[c], row)
		}
		t.members[mi] = members
	}

	return nil
}

// monitor logs training progress, including held-out reconstruction loss
// when a held-out partition exists. Throttled to avoid flooding the log on
// fast refresh cadences.
func (t *trainer) monitor(epoch int) {
	t.progress.Do(func() {
		attrs := []any{"epoch", epoch}

		for mi, enc := range t.encs {
			name := t.aligned.Names[mi]
			attrs = append(attrs, "loss_"+name, t.reconstructionLoss(enc, t.aligned.Matrices[mi], t.trainRows))

			if len(t.heldRows) > 0 {
				attrs = append(attrs, "heldout_loss_"+name, t.reconstructionLoss(enc, t.aligned.Matrices[mi], t.heldRows))
			}

			attrs = append(attrs, "clusters_"+name, len(t.members[mi]))
		}

		attrs = append(attrs, "cross_modal_cosine", t.crossModalCosine())

		t.logger.Info("joint training progress", attrs...)
	})
}

// crossModalCosine returns the mean cosine similarity between the two
// modality latents over the training rows, a direct readout of how far the
// consistency term has pulled the spaces together.
func (t *trainer) crossModalCosine() float32 {
	a, b := t.encs[0], t.encs[1]
	dim := t.cfg.LatentDim

	var sum float32
	for _, row := range t.trainRows {
		off := int(row) * dim
		sum += distance.CosineSimilarity(a.h[off:off+dim], b.h[off:off+dim])
	}

	return sum / float32(t.nTrain)
}

// addReconstructionDelta accumulates the masked reconstruction delta into
// the encoder's output gradient buffer.
func (t *trainer) addReconstructionDelta(enc *encoder, x []float32) {
	scale := 2 * t.cfg.RecWeight / float32(t.nTrain)

	for i := 0; i < t.n; i++ {
		if t.mask[i] == 0 {
			continue
		}

		off := i * enc.inDim
		for d := 0; d < enc.inDim; d++ {
			enc.dXhat[off+d] += scale * (enc.xhat[off+d] - x[off+d])
		}
	}
}

// addCrossModalDelta pulls the two latent encodings of each training entity
// toward each other.
func (t *trainer) addCrossModalDelta() {
	a, b := t.encs[0], t.encs[1]
	dim := t.cfg.LatentDim
	scale := 2 * t.cfg.CrossWeight / float32(t.nTrain)

	for _, row := range t.trainRows {
		off := int(row) * dim
		for d := 0; d < dim; d++ {
			diff := a.h[off+d] - b.h[off+d]
			a.dH[off+d] += scale * diff
			b.dH[off+d] -= scale * diff
		}
	}
}

// reconstructionLoss returns the mean squared reconstruction error over the
// given rows using the encoder's current weights, without dropout.
func (t *trainer) reconstructionLoss(enc *encoder, x []float32, rows []uint32) float32 {
	if len(rows) == 0 {
		return 0
	}

	enc.forward(x, t.n, 0, false, nil)

	var sum float32
	for _, row := range rows {
		off := int(row) * enc.inDim
		sum += math32.SquaredL2(enc.xhat[off:off+enc.inDim], x[off:off+enc.inDim])
	}

	return sum / float32(len(rows)*enc.inDim)
}

// fusedEmbeddings returns the per-entity mean of the final modality latents.
func (t *trainer) fusedEmbeddings() ([][]float32, error) {
	dim := t.cfg.LatentDim

	for mi, enc := range t.encs {
		enc.forward(t.aligned.Matrices[mi], t.n, 0, false, nil)
	}

	out := make([][]float32, t.n)
	inv := 1 / float32(len(t.encs))

	for i := 0; i < t.n; i++ {
		row := make([]float32, dim)
		off := i * dim

		for _, enc := range t.encs {
			math32.Axpy(row, enc.h[off:off+dim], inv)
		}

		if math32.HasNaN(row) {
			return nil, &DataError{Reason: "fit diverged, output contains NaN"}
		}

		out[i] = row
	}

	return out, nil
}
