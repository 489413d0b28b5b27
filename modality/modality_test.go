package modality

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTSV(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func noopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadSortsByIdentifier(t *testing.T) {
	path := writeTSV(t, t.TempDir(), "emd.tsv",
		"id\td1\td2\n"+
			"geneC\t5\t6\n"+
			"geneA\t1\t2\n"+
			"geneB\t3\t4\n")

	m, err := Load(path, "test")
	require.NoError(t, err)

	assert.Equal(t, "test", m.Name)
	assert.Equal(t, 2, m.Dim)
	assert.Equal(t, 3, m.Len())
	assert.Equal(t, []string{"geneA", "geneB", "geneC"}, m.IDs)
	assert.Equal(t, []float32{1, 2}, m.Vectors[0])
	assert.Equal(t, []float32{5, 6}, m.Vectors[2])
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{"Empty", ""},
		{"InconsistentWidth", "id\td1\ngeneA\t1\ngeneB\t1\t2\n"},
		{"MissingVector", "id\td1\ngeneA\n"},
		{"NonNumeric", "id\td1\ngeneA\tabc\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTSV(t, dir, tt.name+".tsv", tt.content)

			_, err := Load(path, "test")
			require.Error(t, err)

			var fileErr *FileError
			assert.ErrorAs(t, err, &fileErr)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.tsv"), "test")
	require.Error(t, err)

	var fileErr *FileError
	require.ErrorAs(t, err, &fileErr)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadHeaderOnly(t *testing.T) {
	path := writeTSV(t, t.TempDir(), "emd.tsv", "id\td1\td2\n")

	m, err := Load(path, "test")
	require.NoError(t, err)
	assert.Equal(t, 0, m.Len())
}

func TestDiscover(t *testing.T) {
	t.Run("PPIPreferred", func(t *testing.T) {
		dir := t.TempDir()
		writeTSV(t, dir, PPIEmbeddingFile, "id\td1\n")
		writeTSV(t, dir, ImageEmbeddingFile, "id\td1\n")

		path, err := Discover(dir)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, PPIEmbeddingFile), path)
	})

	t.Run("ImageFallback", func(t *testing.T) {
		dir := t.TempDir()
		writeTSV(t, dir, ImageEmbeddingFile, "id\td1\n")

		path, err := Discover(dir)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, ImageEmbeddingFile), path)
	})

	t.Run("NothingFound", func(t *testing.T) {
		_, err := Discover(t.TempDir())
		require.Error(t, err)

		var fileErr *FileError
		assert.ErrorAs(t, err, &fileErr)
	})
}

func TestAlign(t *testing.T) {
	a := &Modality{
		Name: "ppi",
		IDs:  []string{"gene1", "gene2", "gene3"},
		Vectors: [][]float32{
			{1, 1},
			{2, 2},
			{3, 3},
		},
		Dim: 2,
	}
	b := &Modality{
		Name: "image",
		IDs:  []string{"gene2", "gene3", "gene4"},
		Vectors: [][]float32{
			{20, 20, 20},
			{30, 30, 30},
			{40, 40, 40},
		},
		Dim: 3,
	}

	aligned, err := Align([]*Modality{a, b}, noopLogger())
	require.NoError(t, err)

	assert.Equal(t, []string{"gene2", "gene3"}, aligned.IDs)
	assert.Equal(t, []string{"ppi", "image"}, aligned.Names)
	assert.Equal(t, []int{2, 3}, aligned.Dims)
	assert.Equal(t, 2, aligned.Len())

	// Row i of every matrix belongs to IDs[i].
	assert.Equal(t, []float32{2, 2, 3, 3}, aligned.Matrices[0])
	assert.Equal(t, []float32{20, 20, 20, 30, 30, 30}, aligned.Matrices[1])
}

func TestAlignDuplicateIdentifiers(t *testing.T) {
	t.Run("DuplicateInSecondModality", func(t *testing.T) {
		a := &Modality{
			Name:    "ppi",
			IDs:     []string{"gene1", "gene2"},
			Vectors: [][]float32{{1, 1}, {2, 2}},
			Dim:     2,
		}
		b := &Modality{
			Name:    "image",
			IDs:     []string{"gene2", "gene2", "gene3"},
			Vectors: [][]float32{{20}, {21}, {30}},
			Dim:     1,
		}

		aligned, err := Align([]*Modality{a, b}, noopLogger())
		require.NoError(t, err)

		// The intersection is a set operation: repeated rows in one file
		// must not change it.
		assert.Equal(t, []string{"gene2"}, aligned.IDs)
		assert.Equal(t, []float32{2, 2}, aligned.Matrices[0])
	})

	t.Run("DuplicateInFirstModality", func(t *testing.T) {
		a := &Modality{
			Name:    "ppi",
			IDs:     []string{"gene2", "gene2"},
			Vectors: [][]float32{{1}, {2}},
			Dim:     1,
		}
		b := &Modality{
			Name:    "image",
			IDs:     []string{"gene2"},
			Vectors: [][]float32{{20}},
			Dim:     1,
		}

		aligned, err := Align([]*Modality{a, b}, noopLogger())
		require.NoError(t, err)

		assert.Equal(t, []string{"gene2"}, aligned.IDs, "each id appears once")
		assert.Equal(t, []float32{20}, aligned.Matrices[1])
	})
}

func TestAlignEmptyIntersection(t *testing.T) {
	a := &Modality{Name: "a", IDs: []string{"x"}, Vectors: [][]float32{{1}}, Dim: 1}
	b := &Modality{Name: "b", IDs: []string{"y"}, Vectors: [][]float32{{2}}, Dim: 1}

	aligned, err := Align([]*Modality{a, b}, noopLogger())
	require.NoError(t, err)
	assert.Equal(t, 0, aligned.Len())
}

func TestAlignRequiresTwoModalities(t *testing.T) {
	a := &Modality{Name: "a", IDs: []string{"x"}, Vectors: [][]float32{{1}}, Dim: 1}

	_, err := Align([]*Modality{a}, noopLogger())
	assert.Error(t, err)
}
