package provenance

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// MetadataFileName is the crate metadata file written into the output
// directory.
const MetadataFileName = "ro-crate-metadata.json"

const crateContext = "https://w3id.org/ro/crate/1.1/context"

// ROCrate is a Registry that maintains a research-object crate metadata file
// inside the output directory. Identifiers are freshly generated UUID URNs.
type ROCrate struct{}

// NewROCrate creates a crate-file backed Registry.
func NewROCrate() *ROCrate {
	return &ROCrate{}
}

type crateDoc struct {
	Context string           `json:"@context"`
	Graph   []map[string]any `json:"@graph"`
}

func newID() string {
	return "urn:uuid:" + uuid.NewString()
}

// RegisterCrate creates the crate metadata file for outdir.
func (r *ROCrate) RegisterCrate(outdir string, info RunInfo) (string, error) {
	if info.Name == "" || info.Organization == "" || info.Project == "" {
		return "", &RegistrationError{Op: "crate",
			cause: fmt.Errorf("name, organization and project are required")}
	}

	id := newID()

	doc := &crateDoc{
		Context: crateContext,
		Graph: []map[string]any{
			{
				"@id":          id,
				"@type":        "Dataset",
				"name":         info.Name,
				"organization": info.Organization,
				"project":      info.Project,
				"description":  info.Description,
				"keywords":     info.Keywords,
			},
		},
	}

	if err := r.write(outdir, doc); err != nil {
		return "", &RegistrationError{Op: "crate", cause: err}
	}

	return id, nil
}

// RegisterSoftware appends a software entity to the crate.
func (r *ROCrate) RegisterSoftware(outdir string, sw Software) (string, error) {
	if sw.Name == "" || sw.Version == "" {
		return "", &RegistrationError{Op: "software",
			cause: fmt.Errorf("name and version are required")}
	}

	return r.append(outdir, "software", map[string]any{
		"@type":       "SoftwareApplication",
		"name":        sw.Name,
		"description": sw.Description,
		"author":      sw.Author,
		"version":     sw.Version,
		"url":         sw.URL,
		"keywords":    sw.Keywords,
	})
}

// RegisterDataset appends a generated dataset entity to the crate.
func (r *ROCrate) RegisterDataset(outdir string, ds Dataset) (string, error) {
	if ds.Name == "" || ds.SourceFile == "" {
		return "", &RegistrationError{Op: "dataset",
			cause: fmt.Errorf("name and source file are required")}
	}

	return r.append(outdir, "dataset", map[string]any{
		"@type":          "Dataset",
		"name":           ds.Name,
		"description":    ds.Description,
		"contentUrl":     ds.SourceFile,
		"encodingFormat": ds.DataFormat,
		"author":         ds.Author,
		"version":        ds.Version,
		"datePublished":  ds.DatePublished,
		"keywords":       ds.Keywords,
	})
}

// RegisterComputation appends the computation entity to the crate.
func (r *ROCrate) RegisterComputation(outdir string, comp Computation) (string, error) {
	if comp.Name == "" {
		return "", &RegistrationError{Op: "computation",
			cause: fmt.Errorf("name is required")}
	}

	return r.append(outdir, "computation", map[string]any{
		"@type":       "CreateAction",
		"name":        comp.Name,
		"agent":       comp.RunBy,
		"description": comp.Description,
		"command":     comp.Command,
		"keywords":    comp.Keywords,
		"instrument":  comp.UsedSoftware,
		"object":      comp.UsedDataset,
		"result":      comp.Generated,
	})
}

func (r *ROCrate) append(outdir, op string, entity map[string]any) (string, error) {
	doc, err := r.read(outdir)
	if err != nil {
		return "", &RegistrationError{Op: op, cause: err}
	}

	id := newID()
	entity["@id"] = id
	doc.Graph = append(doc.Graph, entity)

	if err := r.write(outdir, doc); err != nil {
		return "", &RegistrationError{Op: op, cause: err}
	}

	return id, nil
}

func (r *ROCrate) read(outdir string) (*crateDoc, error) {
	data, err := os.ReadFile(filepath.Join(outdir, MetadataFileName))
	if err != nil {
		return nil, fmt.Errorf("crate not registered: %w", err)
	}

	var doc crateDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	return &doc, nil
}

func (r *ROCrate) write(outdir string, doc *crateDoc) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	path := filepath.Join(outdir, MetadataFileName)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}

	return os.Rename(tmp, path)
}

// Noop is a Registry that accepts everything and records nothing. Intended
// for tests and runs where provenance tracking is disabled.
type Noop struct{}

// RegisterCrate implements Registry.
func (Noop) RegisterCrate(string, RunInfo) (string, error) { return newID(), nil }

// RegisterSoftware implements Registry.
func (Noop) RegisterSoftware(string, Software) (string, error) { return newID(), nil }

// RegisterDataset implements Registry.
func (Noop) RegisterDataset(string, Dataset) (string, error) { return newID(), nil }

// RegisterComputation implements Registry.
func (Noop) RegisterComputation(string, Computation) (string, error) { return newID(), nil }
