package coembed

import (
	"context"
	"iter"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/cellmapper/coembed/artifact"
	"github.com/cellmapper/coembed/distance"
	"github.com/cellmapper/coembed/modality"
	"github.com/cellmapper/coembed/muse"
)

// TestGenesFileName is the side file listing held-out identifiers, written
// when a non-zero jackknife fraction is requested.
const TestGenesFileName = "muse_test_genes.txt"

// Muse creates a builder for the real co-embedding fitter with the given
// latent dimensionality.
//
// The builder is immutable - each method returns a new builder with the
// updated configuration.
//
// Example:
//
//	gen, err := coembed.Muse(128).
//	    K(10).
//	    TripletMargin(0.1).
//	    Files(paths, names).
//	    Outdir(outdir).
//	    Build()
func Muse(dimensions int) MuseBuilder {
	cfg := muse.DefaultConfig
	cfg.LatentDim = dimensions

	return MuseBuilder{
		cfg:         cfg,
		compression: artifact.CompressionZSTD,
		logger:      NewLogger(nil),
	}
}

// MuseBuilder is an immutable fluent builder for the muse generator.
type MuseBuilder struct {
	cfg         muse.Config
	jackknife   float64
	files       []string
	names       []string
	ppiDir      string
	imageDir    string
	outdir      string
	compression artifact.Compression
	logger      *Logger
}

// K sets the neighbor count used for pseudo-label clustering.
func (b MuseBuilder) K(k int) MuseBuilder {
	b.cfg.K = k
	return b
}

// Metric sets the distance metric used for the pseudo-label kNN graph.
func (b MuseBuilder) Metric(m distance.Metric) MuseBuilder {
	b.cfg.Metric = m
	return b
}

// TripletMargin sets the margin of the triplet objective.
func (b MuseBuilder) TripletMargin(margin float32) MuseBuilder {
	b.cfg.TripletMargin = margin
	return b
}

// Dropout sets the input dropout rate during training.
func (b MuseBuilder) Dropout(rate float32) MuseBuilder {
	b.cfg.Dropout = rate
	return b
}

// Epochs sets the number of joint training epochs.
func (b MuseBuilder) Epochs(n int) MuseBuilder {
	b.cfg.Epochs = n
	return b
}

// EpochsInit sets the number of per-modality warm start epochs.
func (b MuseBuilder) EpochsInit(n int) MuseBuilder {
	b.cfg.EpochsInit = n
	return b
}

// Jackknife sets the fraction of entities withheld from training for
// evaluation. Zero disables the held-out partition.
func (b MuseBuilder) Jackknife(fraction float64) MuseBuilder {
	b.jackknife = fraction
	return b
}

// Seed sets the seed for all randomness in the fit, making it reproducible
// end to end.
func (b MuseBuilder) Seed(seed int64) MuseBuilder {
	b.cfg.Seed = seed
	return b
}

// Files sets explicit embedding file paths and their modality names. A nil
// names slice selects generated emd_<i> names.
func (b MuseBuilder) Files(files, names []string) MuseBuilder {
	b.files = files
	b.names = names
	return b
}

// Dirs selects the conventional directory pair holding a PPI and an image
// embedding file.
func (b MuseBuilder) Dirs(ppiDir, imageDir string) MuseBuilder {
	b.ppiDir = ppiDir
	b.imageDir = imageDir
	return b
}

// Outdir sets the run output directory, used for intermediate model
// artifacts and the held-out identifier side file.
func (b MuseBuilder) Outdir(outdir string) MuseBuilder {
	b.outdir = outdir
	return b
}

// Compression sets the codec for persisted model artifacts.
func (b MuseBuilder) Compression(c artifact.Compression) MuseBuilder {
	b.compression = c
	return b
}

// Logger sets the structured logger.
func (b MuseBuilder) Logger(l *Logger) MuseBuilder {
	b.logger = l
	return b
}

// Build validates the configuration and creates the generator.
func (b MuseBuilder) Build() (*MuseGenerator, error) {
	in, err := resolveInputs(b.files, b.names, b.ppiDir, b.imageDir)
	if err != nil {
		return nil, err
	}

	if len(in.files) != 2 {
		return nil, &ConfigurationError{
			Reason: "the muse algorithm supports exactly two modalities"}
	}

	if b.outdir == "" {
		return nil, &ConfigurationError{Reason: "outdir is required"}
	}

	if b.cfg.LatentDim < 1 {
		return nil, &ConfigurationError{Reason: "dimensions must be positive"}
	}

	if b.cfg.K < 1 {
		return nil, &ConfigurationError{Reason: "the neighbor count k must be positive"}
	}

	if b.cfg.Epochs < 0 || b.cfg.EpochsInit < 0 {
		return nil, &ConfigurationError{Reason: "epoch counts must not be negative"}
	}

	if _, err := distance.Provider(b.cfg.Metric); err != nil {
		return nil, &ConfigurationError{Reason: err.Error()}
	}

	if b.jackknife < 0 || b.jackknife >= 1 {
		return nil, &ConfigurationError{Reason: "jackknife fraction must be in [0, 1)"}
	}

	return &MuseGenerator{
		cfg:       b.cfg,
		jackknife: b.jackknife,
		inputs:    in,
		outdir:    b.outdir,
		store:     artifact.NewLocalStore(b.outdir, b.compression),
		logger:    b.logger,
	}, nil
}

// MuseGenerator fits the co-embedding model and emits one fused latent
// vector per entity in the identifier intersection of its two inputs.
type MuseGenerator struct {
	cfg       muse.Config
	jackknife float64
	inputs    *inputs
	outdir    string
	store     artifact.Store
	logger    *Logger
}

// GetDimensions returns the latent dimensionality of emitted rows.
func (g *MuseGenerator) GetDimensions() int {
	return g.cfg.LatentDim
}

// InputDirs returns the directories the input embeddings came from.
func (g *MuseGenerator) InputDirs() []string {
	return g.inputs.dirs()
}

// Rows trains the model and streams the fused embedding rows. The training
// run blocks before the first row is yielded.
func (g *MuseGenerator) Rows(ctx context.Context) iter.Seq2[*Row, error] {
	return func(yield func(*Row, error) bool) {
		mods, err := g.inputs.load()
		if err != nil {
			yield(nil, err)
			return
		}

		aligned, err := modality.Align(mods, g.logger.Logger)
		if err != nil {
			yield(nil, err)
			return
		}

		rng := rand.New(rand.NewSource(g.cfg.Seed)) // nolint gosec
		held := modality.Jackknife(aligned.Len(), g.jackknife, rng)

		if g.jackknife > 0 {
			if err := g.writeTestGenes(aligned, held.ToArray()); err != nil {
				yield(nil, err)
				return
			}
		}

		fused, err := muse.FitPredict(ctx, aligned, held, g.cfg, g.store, g.logger.Logger)
		if err != nil {
			yield(nil, translateError(err))
			return
		}

		for i, id := range aligned.IDs {
			if !yield(&Row{ID: id, Vector: fused[i]}, nil) {
				return
			}
		}
	}
}

// writeTestGenes records the held-out identifiers for later evaluation.
func (g *MuseGenerator) writeTestGenes(aligned *modality.Aligned, held []uint32) error {
	ids := make([]string, len(held))
	for i, row := range held {
		ids[i] = aligned.IDs[row]
	}

	path := filepath.Join(g.outdir, TestGenesFileName)

	return os.WriteFile(path, []byte(strings.Join(ids, "\n")), 0o644)
}
