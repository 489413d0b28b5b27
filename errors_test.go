package coembed

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cellmapper/coembed/modality"
	"github.com/cellmapper/coembed/muse"
	"github.com/cellmapper/coembed/provenance"
)

func TestExitStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"Nil", nil, StatusOK},
		{"Generic", errors.New("boom"), StatusError},
		{"Configuration", &ConfigurationError{Reason: "bad"}, StatusConfiguration},
		{"ModalityFile", &ModalityFileError{Path: "/x"}, StatusModalityFile},
		{"TrainingData", &TrainingDataError{}, StatusTrainingData},
		{"Provenance", &ProvenanceError{}, StatusProvenance},
		{"Wrapped", fmt.Errorf("run: %w", &ConfigurationError{Reason: "bad"}), StatusConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExitStatus(tt.err))
		})
	}
}

func TestTranslateError(t *testing.T) {
	t.Run("Nil", func(t *testing.T) {
		assert.NoError(t, translateError(nil))
	})

	t.Run("ModalityFile", func(t *testing.T) {
		_, srcErr := modality.Load("/does/not/exist.tsv", "test")

		err := translateError(srcErr)

		var fileErr *ModalityFileError
		assert.ErrorAs(t, err, &fileErr)
		assert.Equal(t, "/does/not/exist.tsv", fileErr.Path)
	})

	t.Run("TrainingData", func(t *testing.T) {
		err := translateError(&muse.DataError{Reason: "too few rows"})

		var dataErr *TrainingDataError
		assert.ErrorAs(t, err, &dataErr)
	})

	t.Run("Provenance", func(t *testing.T) {
		r := provenance.NewROCrate()
		_, srcErr := r.RegisterCrate(t.TempDir(), provenance.RunInfo{})

		err := translateError(srcErr)

		var provErr *ProvenanceError
		assert.ErrorAs(t, err, &provErr)
	})

	t.Run("Passthrough", func(t *testing.T) {
		src := errors.New("boom")
		assert.Equal(t, src, translateError(src))
	})
}
