package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cellmapper/coembed"
	"github.com/cellmapper/coembed/internal/config"
	"github.com/cellmapper/coembed/runlog"
)

var (
	flagEmbeddings    []string
	flagNames         []string
	flagPPIDir        string
	flagImageDir      string
	flagFake          bool
	flagLatentDim     int
	flagK             int
	flagTripletMargin float32
	flagDropout       float32
	flagEpochs        int
	flagEpochsInit    int
	flagJackknife     float64
	flagSeed          int64
	flagName          string
	flagOrganization  string
	flagProject       string
	flagConfigFile    string
	flagSkipLogging   bool
	flagVerbose       int
)

var rootCmd = &cobra.Command{
	Use:   "coembed OUTDIR",
	Short: "Merge embeddings from multiple modalities into one co-embedding",
	Long: `Given two embedding tables keyed by shared identifiers (for example a
protein-protein-interaction network embedding and a microscopy-image
embedding), coembed fits a joint latent space and writes one fused vector
per entity present in both inputs.

Inputs are selected either with --embeddings (two TSV paths) or with the
--ppi-embeddingdir / --image-embeddingdir directory pair, whose
conventionally-named embedding files are discovered automatically.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		outdir := args[0]

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		logger, closer, err := buildLogger(outdir)
		if err != nil {
			return err
		}
		if closer != nil {
			defer closer.Close()
		}

		gen, err := buildGenerator(outdir, cfg, logger)
		if err != nil {
			return err
		}

		runner, err := coembed.New(outdir, gen, func(o *coembed.CoembedderOptions) {
			o.Logger = logger
			o.Args = argsRecord(cmd)

			if cfg.Name != "" {
				o.Name = cfg.Name
			}
			if cfg.Organization != "" {
				o.Organization = cfg.Organization
			}
			if cfg.Project != "" {
				o.Project = cfg.Project
			}
		})
		if err != nil {
			return err
		}

		return runner.Run(cmd.Context())
	},
}

func init() {
	f := rootCmd.Flags()

	f.StringSliceVar(&flagEmbeddings, "embeddings", nil,
		"paths to two embedding TSV files")
	f.StringSliceVar(&flagNames, "embedding-names", nil,
		"name for each --embeddings path")
	f.StringVar(&flagPPIDir, "ppi-embeddingdir", "",
		"directory holding the PPI embedding file")
	f.StringVar(&flagImageDir, "image-embeddingdir", "",
		"directory holding the image embedding file")
	f.BoolVar(&flagFake, "fake-embedding", false,
		"generate random co-embeddings instead of training")

	defaults := config.Default()
	f.IntVar(&flagLatentDim, "latent-dimension", defaults.LatentDimension,
		"output dimension of the co-embedding")
	f.IntVar(&flagK, "k", defaults.K,
		"nearest neighbor count used for clustering")
	f.Float32Var(&flagTripletMargin, "triplet-margin", defaults.TripletMargin,
		"margin for the triplet loss")
	f.Float32Var(&flagDropout, "dropout", defaults.Dropout,
		"dropout rate during training")
	f.IntVar(&flagEpochs, "n-epochs", defaults.Epochs,
		"number of joint training epochs")
	f.IntVar(&flagEpochsInit, "n-epochs-init", defaults.EpochsInit,
		"number of initialization training epochs")
	f.Float64Var(&flagJackknife, "jackknife-percent", defaults.JackknifePercent,
		"fraction of entities to withhold from training, e.g. 0.1")
	f.Int64Var(&flagSeed, "seed", defaults.Seed,
		"seed for all randomness in the run")

	f.StringVar(&flagName, "name", "", "name of this run for provenance")
	f.StringVar(&flagOrganization, "organization-name", "",
		"organization running this tool, for provenance")
	f.StringVar(&flagProject, "project-name", "",
		"project this run belongs to, for provenance")

	f.StringVar(&flagConfigFile, "config", "",
		"path to a YAML file with run defaults; flags override it")
	f.BoolVar(&flagSkipLogging, "skip-logging", false,
		"do not write the output.log file into the output directory")
	f.CountVarP(&flagVerbose, "verbose", "v",
		"increase log verbosity (-v info, -vv debug)")

	rootCmd.Version = coembed.Version
}

// loadConfig merges the optional config file under any explicitly set
// flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(flagConfigFile)
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()

	if f.Changed("latent-dimension") {
		cfg.LatentDimension = flagLatentDim
	}
	if f.Changed("k") {
		cfg.K = flagK
	}
	if f.Changed("triplet-margin") {
		cfg.TripletMargin = flagTripletMargin
	}
	if f.Changed("dropout") {
		cfg.Dropout = flagDropout
	}
	if f.Changed("n-epochs") {
		cfg.Epochs = flagEpochs
	}
	if f.Changed("n-epochs-init") {
		cfg.EpochsInit = flagEpochsInit
	}
	if f.Changed("jackknife-percent") {
		cfg.JackknifePercent = flagJackknife
	}
	if f.Changed("seed") {
		cfg.Seed = flagSeed
	}
	if flagName != "" {
		cfg.Name = flagName
	}
	if flagOrganization != "" {
		cfg.Organization = flagOrganization
	}
	if flagProject != "" {
		cfg.Project = flagProject
	}

	return cfg, nil
}

// buildLogger writes to stderr, and additionally to the run's log file
// unless file logging is skipped.
func buildLogger(outdir string) (*coembed.Logger, io.Closer, error) {
	level := slog.LevelWarn
	switch {
	case flagVerbose >= 2:
		level = slog.LevelDebug
	case flagVerbose == 1:
		level = slog.LevelInfo
	}

	if flagSkipLogging {
		return coembed.NewTextLogger(level), nil, nil
	}

	if err := os.MkdirAll(outdir, 0o755); err != nil {
		return nil, nil, err
	}

	f, err := os.OpenFile(runlog.LogPath(outdir), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}

	handler := slog.NewTextHandler(io.MultiWriter(os.Stderr, f), &slog.HandlerOptions{Level: level})

	return coembed.NewLogger(handler), f, nil
}

func buildGenerator(outdir string, cfg *config.Config, logger *coembed.Logger) (coembed.EmbeddingGenerator, error) {
	if flagFake {
		return coembed.Fake(cfg.LatentDimension).
			Files(flagEmbeddings, flagNames).
			Dirs(flagPPIDir, flagImageDir).
			Seed(cfg.Seed).
			Logger(logger).
			Build()
	}

	return coembed.Muse(cfg.LatentDimension).
		K(cfg.K).
		TripletMargin(cfg.TripletMargin).
		Dropout(cfg.Dropout).
		Epochs(cfg.Epochs).
		EpochsInit(cfg.EpochsInit).
		Jackknife(cfg.JackknifePercent).
		Seed(cfg.Seed).
		Files(flagEmbeddings, flagNames).
		Dirs(flagPPIDir, flagImageDir).
		Outdir(outdir).
		Logger(logger).
		Build()
}

// argsRecord captures the effective command line for the run-start record.
func argsRecord(cmd *cobra.Command) map[string]string {
	record := make(map[string]string)

	cmd.Flags().Visit(func(f *pflag.Flag) {
		record[f.Name] = f.Value.String()
	})

	return record
}
