package coembed

import (
	"errors"
	"fmt"

	"github.com/cellmapper/coembed/modality"
	"github.com/cellmapper/coembed/muse"
	"github.com/cellmapper/coembed/provenance"
)

// ConfigurationError indicates invalid or contradictory caller-supplied
// parameters. The run terminates before any output is written.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "invalid configuration: " + e.Reason
}

// ModalityFileError indicates a required embedding file is missing or
// unreadable.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ModalityFileError struct {
	Path  string
	cause error
}

func (e *ModalityFileError) Error() string {
	return fmt.Sprintf("modality file error: %v", e.cause)
}

func (e *ModalityFileError) Unwrap() error { return e.cause }

// TrainingDataError indicates the aligned identifier set is too small or
// otherwise unsuitable for the requested parameters.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type TrainingDataError struct {
	cause error
}

func (e *TrainingDataError) Error() string {
	return fmt.Sprintf("training data error: %v", e.cause)
}

func (e *TrainingDataError) Unwrap() error { return e.cause }

// ProvenanceError indicates the provenance registry rejected run metadata.
// It is propagated, never retried.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ProvenanceError struct {
	cause error
}

func (e *ProvenanceError) Error() string {
	return fmt.Sprintf("provenance error: %v", e.cause)
}

func (e *ProvenanceError) Unwrap() error { return e.cause }

// translateError normalizes subpackage errors into the public taxonomy.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var fe *modality.FileError
	if errors.As(err, &fe) {
		return &ModalityFileError{Path: fe.Path, cause: err}
	}

	var de *muse.DataError
	if errors.As(err, &de) {
		return &TrainingDataError{cause: err}
	}

	var re *provenance.RegistrationError
	if errors.As(err, &re) {
		return &ProvenanceError{cause: err}
	}

	return err
}

// Exit statuses reported in the run-finish record and by the command line.
const (
	StatusOK            = 0
	StatusError         = 1
	StatusConfiguration = 2
	StatusModalityFile  = 3
	StatusTrainingData  = 4
	StatusProvenance    = 5
)

// ExitStatus maps an error to its run exit status.
func ExitStatus(err error) int {
	if err == nil {
		return StatusOK
	}

	var ce *ConfigurationError
	if errors.As(err, &ce) {
		return StatusConfiguration
	}

	var me *ModalityFileError
	if errors.As(err, &me) {
		return StatusModalityFile
	}

	var te *TrainingDataError
	if errors.As(err, &te) {
		return StatusTrainingData
	}

	var pe *ProvenanceError
	if errors.As(err, &pe) {
		return StatusProvenance
	}

	return StatusError
}
