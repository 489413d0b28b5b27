package coembed

import (
	"context"
	"iter"
	"math/rand"

	"github.com/cellmapper/coembed/modality"
)

// Fake creates a builder for the fake co-embedding generator, which emits
// uniform random vectors in [0,1) over the identifier intersection of two
// modalities without any training. It satisfies the same contract as the
// real fitter, for pipeline smoke tests and control experiments.
//
// The builder is immutable - each method returns a new builder with the
// updated configuration.
func Fake(dimensions int) FakeBuilder {
	return FakeBuilder{
		dimensions: dimensions,
		seed:       1,
		logger:     NewLogger(nil),
	}
}

// FakeBuilder is an immutable fluent builder for the fake generator.
type FakeBuilder struct {
	dimensions int
	seed       int64
	files      []string
	names      []string
	ppiDir     string
	imageDir   string
	logger     *Logger
}

// Files sets explicit embedding file paths and their modality names.
func (b FakeBuilder) Files(files, names []string) FakeBuilder {
	b.files = files
	b.names = names
	return b
}

// Dirs selects the conventional directory pair holding a PPI and an image
// embedding file.
func (b FakeBuilder) Dirs(ppiDir, imageDir string) FakeBuilder {
	b.ppiDir = ppiDir
	b.imageDir = imageDir
	return b
}

// Seed seeds the random vector generation.
func (b FakeBuilder) Seed(seed int64) FakeBuilder {
	b.seed = seed
	return b
}

// Logger sets the structured logger.
func (b FakeBuilder) Logger(l *Logger) FakeBuilder {
	b.logger = l
	return b
}

// Build validates the configuration and creates the generator.
func (b FakeBuilder) Build() (*FakeGenerator, error) {
	in, err := resolveInputs(b.files, b.names, b.ppiDir, b.imageDir)
	if err != nil {
		return nil, err
	}

	if len(in.files) != 2 {
		return nil, &ConfigurationError{
			Reason: "the fake generator supports exactly two modalities"}
	}

	if b.dimensions < 1 {
		return nil, &ConfigurationError{Reason: "dimensions must be positive"}
	}

	return &FakeGenerator{
		dimensions: b.dimensions,
		seed:       b.seed,
		inputs:     in,
		logger:     b.logger,
	}, nil
}

// FakeGenerator emits random vectors over the identifier intersection of
// two modalities.
type FakeGenerator struct {
	dimensions int
	seed       int64
	inputs     *inputs
	logger     *Logger
}

// GetDimensions returns the vector length of emitted rows.
func (g *FakeGenerator) GetDimensions() int {
	return g.dimensions
}

// InputDirs returns the directories the input embeddings came from.
func (g *FakeGenerator) InputDirs() []string {
	return g.inputs.dirs()
}

// Rows streams one uniform random vector per intersection identifier.
func (g *FakeGenerator) Rows(ctx context.Context) iter.Seq2[*Row, error] {
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

		rng := rand.New(rand.NewSource(g.seed)) // nolint gosec

		for _, id := range aligned.IDs {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			vec := make([]float32, g.dimensions)
			for i := range vec {
				vec[i] = rng.Float32()
			}

			if !yield(&Row{ID: id, Vector: vec}, nil) {
				return
			}
		}
	}
}
