package coembed

import (
	"context"
	"fmt"
	"iter"
	"path/filepath"

	"github.com/cellmapper/coembed/modality"
)

// Row is one emitted co-embedding row: an entity identifier and its fused
// latent vector.
type Row struct {
	ID     string
	Vector []float32
}

// EmbeddingGenerator is the capability shared by the real fitter, the fake
// generator, and any future alternate algorithm.
//
// Rows returns a lazy, finite row sequence. It is not restartable: a fresh
// generator is required to regenerate, and the Coembedder consumes it
// exactly once per run.
type EmbeddingGenerator interface {
	// GetDimensions returns the vector length of every emitted row.
	GetDimensions() int

	// InputDirs returns the directories the input embeddings came from,
	// for provenance registration.
	InputDirs() []string

	// Rows streams the co-embedding rows. The underlying fit runs to
	// completion before the first row is yielded.
	Rows(ctx context.Context) iter.Seq2[*Row, error]
}

// inputs is the resolved set of embedding files and their modality names.
type inputs struct {
	files []string
	names []string
}

// resolveInputs applies the input-selection rules: either an explicit file
// list or the ppi/image directory pair, never both, and the directory flags
// are only valid together. Default names are PPI/image in directory mode and
// emd_<i> in file mode.
func resolveInputs(files, names []string, ppiDir, imageDir string) (*inputs, error) {
	dirMode := ppiDir != "" || imageDir != ""

	if dirMode && len(files) > 0 {
		return nil, &ConfigurationError{
			Reason: "use either the embedding directories or explicit embedding files, not both"}
	}

	if dirMode {
		if ppiDir == "" || imageDir == "" {
			return nil, &ConfigurationError{
				Reason: "the ppi and image embedding directories are required together"}
		}

		ppiFile, err := modality.Discover(ppiDir)
		if err != nil {
			return nil, translateError(err)
		}

		imageFile, err := modality.Discover(imageDir)
		if err != nil {
			return nil, translateError(err)
		}

		files = []string{ppiFile, imageFile}
		if names == nil {
			names = []string{"PPI", "image"}
		}
	}

	if len(files) < 2 {
		return nil, &ConfigurationError{
			Reason: fmt.Sprintf("at least 2 embedding inputs are required, got %d", len(files))}
	}

	if names == nil {
		for i := range files {
			names = append(names, fmt.Sprintf("emd_%d", i))
		}
	}

	if len(names) != len(files) {
		return nil, &ConfigurationError{
			Reason: fmt.Sprintf("%d embedding names for %d embedding files", len(names), len(files))}
	}

	return &inputs{files: files, names: names}, nil
}

// dirs returns the directory of each input file.
func (in *inputs) dirs() []string {
	dirs := make([]string, len(in.files))
	for i, f := range in.files {
		dirs[i] = filepath.Dir(f)
	}

	return dirs
}

// load reads and sorts every input modality.
func (in *inputs) load() ([]*modality.Modality, error) {
	mods := make([]*modality.Modality, len(in.files))

	for i, file := range in.files {
		m, err := modality.Load(file, in.names[i])
		if err != nil {
			return nil, translateError(err)
		}
		mods[i] = m
	}

	return mods, nil
}
