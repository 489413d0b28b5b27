package coembed

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cellmapper/coembed/provenance"
	"github.com/cellmapper/coembed/runlog"
)

// CoEmbeddingFileName is the merged embedding table written into the run's
// output directory.
const CoEmbeddingFileName = "coembedding_emd.tsv"

// CoembedderOptions configures a run coordinator.
type CoembedderOptions struct {
	// Logger is the structured logger for the run.
	Logger *Logger

	// Registry records run provenance. Defaults to the crate-file registry.
	Registry provenance.Registry

	// Name, Organization and Project identify the run in provenance
	// records. Defaults are filled in when unset.
	Name         string
	Organization string
	Project      string

	// Args is recorded verbatim in the run-start record, typically the
	// parsed command line.
	Args any
}

// Coembedder drives one co-embedding run: bookkeeping records, provenance
// registration, and serialization of the generator's row sequence into the
// output table.
type Coembedder struct {
	outdir string
	gen    EmbeddingGenerator
	opts   CoembedderOptions
}

// New creates a run coordinator for the given output directory and
// generator.
func New(outdir string, gen EmbeddingGenerator, optFns ...func(o *CoembedderOptions)) (*Coembedder, error) {
	if outdir == "" {
		return nil, &ConfigurationError{Reason: "outdir is required"}
	}

	if gen == nil {
		return nil, &ConfigurationError{Reason: "an embedding generator is required"}
	}

	opts := CoembedderOptions{
		Logger:       NewLogger(nil),
		Registry:     provenance.NewROCrate(),
		Name:         "co-embedding run",
		Organization: "unspecified",
		Project:      "unspecified",
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	abs, err := filepath.Abs(outdir)
	if err != nil {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("outdir: %v", err)}
	}

	return &Coembedder{outdir: abs, gen: gen, opts: opts}, nil
}

// OutputFile returns the path of the merged embedding table.
func (c *Coembedder) OutputFile() string {
	return filepath.Join(c.outdir, CoEmbeddingFileName)
}

// Run executes the co-embedding run. The run-finish record is written on
// every exit path, carrying the exit status that ExitStatus derives from the
// returned error.
func (c *Coembedder) Run(ctx context.Context) (err error) {
	logger := c.opts.Logger.WithOutdir(c.outdir)
	start := time.Now().Unix()

	if mkErr := os.MkdirAll(c.outdir, 0o755); mkErr != nil {
		return fmt.Errorf("create output directory: %w", mkErr)
	}

	defer func() {
		rec := runlog.FinishRecord{
			StartTime: start,
			EndTime:   time.Now().Unix(),
			Status:    ExitStatus(err),
		}

		if finishErr := runlog.WriteFinish(c.outdir, rec); finishErr != nil {
			logger.Error("failed to write run-finish record", "error", finishErr)
		}

		if err != nil {
			logger.Error("run failed", "error", err, "status", ExitStatus(err))
		}
	}()

	startRec := runlog.StartRecord{
		StartTime: start,
		Version:   Version,
		Args:      c.opts.Args,
	}

	if err = runlog.WriteStart(c.outdir, startRec); err != nil {
		return err
	}

	keywords := []string{"coembedding"}

	info := provenance.RunInfo{
		Name:         c.opts.Name,
		Organization: c.opts.Organization,
		Project:      c.opts.Project,
		Description:  Description,
		Keywords:     keywords,
	}

	if _, err = c.opts.Registry.RegisterCrate(c.outdir, info); err != nil {
		err = translateError(err)
		return err
	}

	softwareID, swErr := c.opts.Registry.RegisterSoftware(c.outdir, provenance.Software{
		Name:        Name,
		Description: Description,
		Version:     Version,
		URL:         RepoURL,
		Keywords:    append(keywords, "tools"),
	})
	if swErr != nil {
		err = translateError(swErr)
		return err
	}

	count, writeErr := c.writeTable(ctx)
	if writeErr != nil {
		err = writeErr
		return err
	}

	logger.Info("wrote co-embedding table",
		"rows", count, "dimensions", c.gen.GetDimensions(), "file", c.OutputFile())

	datasetID, dsErr := c.opts.Registry.RegisterDataset(c.outdir, provenance.Dataset{
		Name:          CoEmbeddingFileName + " coembedding output file",
		Description:   Description + " co-embedding file",
		SourceFile:    c.OutputFile(),
		DataFormat:    "tsv",
		Author:        Name,
		Version:       Version,
		DatePublished: time.Now().Format("2006-01-02"),
		Keywords:      append(keywords, "file"),
	})
	if dsErr != nil {
		err = translateError(dsErr)
		return err
	}

	_, compErr := c.opts.Registry.RegisterComputation(c.outdir, provenance.Computation{
		Name:         ComputationName,
		Description:  Description + " run of " + Name,
		Command:      fmt.Sprintf("%v", c.opts.Args),
		Keywords:     append(keywords, "computation"),
		UsedSoftware: []string{softwareID},
		UsedDataset:  c.gen.InputDirs(),
		Generated:    []string{datasetID},
	})
	if compErr != nil {
		err = translateError(compErr)
		return err
	}

	return nil
}

// writeTable streams the generator's rows into the output table. The table
// is written to a temp file and renamed into place only after the sequence
// is fully consumed, so an aborted fit never leaves a partial table behind.
//
// Vector components are formatted with the shortest representation that
// round-trips a float32 (strconv 'g', precision -1).
func (c *Coembedder) writeTable(ctx context.Context) (int, error) {
	dims := c.gen.GetDimensions()

	tmp := c.OutputFile() + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return 0, err
	}

	defer func() {
		f.Close()
		os.Remove(tmp)
	}()

	w := csv.NewWriter(f)
	w.Comma = '\t'

	header := make([]string, dims)
	header[0] = ""
	for i := 1; i < dims; i++ {
		header[i] = strconv.Itoa(i)
	}

	if err := w.Write(header); err != nil {
		return 0, err
	}

	count := 0

	for row, rowErr := range c.gen.Rows(ctx) {
		if rowErr != nil {
			return count, rowErr
		}

		record := make([]string, 0, len(row.Vector)+1)
		record = append(record, row.ID)
		for _, v := range row.Vector {
			record = append(record, strconv.FormatFloat(float64(v), 'g', -1, 32))
		}

		if err := w.Write(record); err != nil {
			return count, err
		}

		count++
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return count, err
	}

	if err := f.Close(); err != nil {
		return count, err
	}

	return count, os.Rename(tmp, c.OutputFile())
}
