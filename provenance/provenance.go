// Package provenance records what a run consumed and produced. A Registry
// assigns opaque identifiers to the run's output crate, the software that ran,
// the datasets it generated, and the computation linking them.
package provenance

import "fmt"

// RunInfo describes the run whose outputs are being registered.
type RunInfo struct {
	Name         string
	Organization string
	Project      string
	Description  string
	Keywords     []string
}

// Software identifies the tool that performed the run.
type Software struct {
	Name        string
	Description string
	Author      string
	Version     string
	URL         string
	Keywords    []string
}

// Dataset describes a generated output file.
type Dataset struct {
	Name          string
	Description   string
	SourceFile    string
	DataFormat    string
	Author        string
	Version       string
	DatePublished string
	Keywords      []string
}

// Computation links consumed inputs, the software, and generated outputs.
type Computation struct {
	Name         string
	RunBy        string
	Command      string
	Description  string
	Keywords     []string
	UsedSoftware []string
	UsedDataset  []string
	Generated    []string
}

// Registry registers run metadata and returns opaque identifiers.
type Registry interface {
	// RegisterCrate registers the output directory as a research crate.
	RegisterCrate(outdir string, info RunInfo) (string, error)

	// RegisterSoftware registers the software identity of this tool.
	RegisterSoftware(outdir string, sw Software) (string, error)

	// RegisterDataset registers a generated output file.
	RegisterDataset(outdir string, ds Dataset) (string, error)

	// RegisterComputation registers the computation itself.
	RegisterComputation(outdir string, comp Computation) (string, error)
}

// RegistrationError indicates the registry rejected the supplied metadata.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type RegistrationError struct {
	Op    string
	cause error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("provenance registration %s: %v", e.Op, e.cause)
}

func (e *RegistrationError) Unwrap() error { return e.cause }
