// Package coembed merges two independently computed embedding tables that
// share an identifier space into a single co-embedding: one fused latent
// vector per entity present in both inputs.
//
// The public surface is the EmbeddingGenerator capability and the Coembedder
// run coordinator. Two generators are provided: the real fitter built with
// the Muse builder, and a random generator built with Fake for smoke tests
// and control experiments. Both stream their output as a lazy row sequence
// that the Coembedder serializes to a tab-separated table.
//
// Example:
//
//	gen, err := coembed.Muse(128).
//	    K(10).
//	    Dirs(ppiDir, imageDir).
//	    Outdir(outdir).
//	    Seed(42).
//	    Build()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	runner, err := coembed.New(outdir, gen)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := runner.Run(ctx); err != nil {
//	    os.Exit(coembed.ExitStatus(err))
//	}
package coembed

const (
	// Name is the tool name used in provenance records.
	Name = "coembed"

	// Version is the tool version.
	Version = "0.1.0"

	// Description is the tool description used in provenance records.
	Description = "a tool to merge independently computed embeddings into a joint co-embedding"

	// RepoURL is the source location recorded for the software identity.
	RepoURL = "https://github.com/cellmapper/coembed"

	// ComputationName names the computation in provenance records.
	ComputationName = "merged embedding"
)
