// Package modality loads per-modality embedding tables and aligns them onto
// the shared identifier intersection required for co-embedding.
//
// An embedding table is tab-delimited with a header row (discarded): column 0
// holds the entity identifier, the remaining columns the vector components.
// Row order in the file carries no meaning; rows are sorted by identifier
// after loading.
package modality

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

const (
	// PPIEmbeddingFile is the conventional name of a protein-protein
	// interaction network embedding table inside an input directory.
	PPIEmbeddingFile = "ppi_emd.tsv"

	// ImageEmbeddingFile is the conventional name of an image-derived
	// embedding table inside an input directory.
	ImageEmbeddingFile = "image_emd.tsv"
)

// FileError indicates a missing or unreadable embedding file.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type FileError struct {
	Path  string
	cause error
}

func (e *FileError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("embedding file %s: %v", e.Path, e.cause)
	}

	return fmt.Sprintf("embedding file not found in %s", e.Path)
}

func (e *FileError) Unwrap() error { return e.cause }

// Modality is one named embedding source with rows sorted by identifier.
type Modality struct {
	Name    string
	IDs     []string
	Vectors [][]float32
	Dim     int
}

// Len returns the number of entities in the modality.
func (m *Modality) Len() int {
	return len(m.IDs)
}

// Discover finds the conventionally-named embedding file inside dir, trying
// the PPI filename first and the image filename second.
func Discover(dir string) (string, error) {
	for _, name := range []string{PPIEmbeddingFile, ImageEmbeddingFile} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", &FileError{Path: dir}
}

// Load reads one embedding table. All rows must have the same width.
func Load(path, name string) (*Modality, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &FileError{Path: path, cause: err}
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = '\t'
	r.FieldsPerRecord = -1

	// Header row is discarded.
	if _, err := r.Read(); err != nil {
		if err == io.EOF {
			return nil, &FileError{Path: path, cause: fmt.Errorf("empty file")}
		}

		return nil, &FileError{Path: path, cause: err}
	}

	m := &Modality{Name: name, Dim: -1}

	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &FileError{Path: path, cause: err}
		}

		if len(record) < 2 {
			return nil, &FileError{Path: path, cause: fmt.Errorf("row for %q has no vector components", record[0])}
		}

		if m.Dim == -1 {
			m.Dim = len(record) - 1
		} else if len(record)-1 != m.Dim {
			return nil, &FileError{Path: path,
				cause: fmt.Errorf("row for %q has %d components, want %d", record[0], len(record)-1, m.Dim)}
		}

		vec := make([]float32, m.Dim)
		for i, field := range record[1:] {
			v, err := strconv.ParseFloat(field, 32)
			if err != nil {
				return nil, &FileError{Path: path, cause: fmt.Errorf("row for %q: %w", record[0], err)}
			}
			vec[i] = float32(v)
		}

		m.IDs = append(m.IDs, record[0])
		m.Vectors = append(m.Vectors, vec)
	}

	m.sortByID()

	return m, nil
}

func (m *Modality) sortByID() {
	perm := make([]int, len(m.IDs))
	for i := range perm {
		perm[i] = i
	}

	sort.Slice(perm, func(a, b int) bool { return m.IDs[perm[a]] < m.IDs[perm[b]] })

	ids := make([]string, len(m.IDs))
	vecs := make([][]float32, len(m.Vectors))
	for i, p := range perm {
		ids[i] = m.IDs[p]
		vecs[i] = m.Vectors[p]
	}

	m.IDs = ids
	m.Vectors = vecs
}

// Aligned holds the per-modality matrices restricted to the identifier
// intersection across all modalities, in one canonical row order.
type Aligned struct {
	// IDs is the canonical identifier order: the first modality's sorted
	// order filtered to the intersection.
	IDs []string

	// Names holds the modality names, matching Matrices.
	Names []string

	// Matrices holds one flattened row-major matrix per modality. Row i of
	// every matrix belongs to IDs[i].
	Matrices [][]float32

	// Dims holds the native dimensionality of each modality.
	Dims []int
}

// Len returns the number of aligned entities.
func (a *Aligned) Len() int {
	return len(a.IDs)
}

// Align computes the identifier intersection of all modalities and builds
// the aligned per-modality matrices. Requires at least two modalities.
func Align(mods []*Modality, logger *slog.Logger) (*Aligned, error) {
	if len(mods) < 2 {
		return nil, fmt.Errorf("modality: need at least 2 modalities, got %d", len(mods))
	}

	for _, m := range mods {
		logger.Info("loaded modality embeddings", "modality", m.Name, "count", m.Len())
	}

	// seen[id] is the number of leading modalities the id occurs in. Each
	// modality bumps an id at most once, so duplicated rows in a file
	// cannot skew the intersection.
	seen := make(map[string]int, mods[0].Len())
	for _, id := range mods[0].IDs {
		seen[id] = 1
	}

	for mi, m := range mods[1:] {
		for _, id := range m.IDs {
			if seen[id] == mi+1 {
				seen[id] = mi + 2
			}
		}
	}

	aligned := &Aligned{}

	for _, id := range mods[0].IDs {
		if seen[id] == len(mods) {
			aligned.IDs = append(aligned.IDs, id)
			seen[id] = 0 // emit each id once
		}
	}

	logger.Info("computed modality overlap", "count", len(aligned.IDs))

	for _, m := range mods {
		rowByID := make(map[string][]float32, m.Len())
		for i, id := range m.IDs {
			rowByID[id] = m.Vectors[i]
		}

		matrix := make([]float32, 0, len(aligned.IDs)*m.Dim)
		for _, id := range aligned.IDs {
			matrix = append(matrix, rowByID[id]...)
		}

		aligned.Names = append(aligned.Names, m.Name)
		aligned.Matrices = append(aligned.Matrices, matrix)
		aligned.Dims = append(aligned.Dims, m.Dim)
	}

	return aligned, nil
}
