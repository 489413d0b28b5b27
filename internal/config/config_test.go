package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 128, cfg.LatentDimension)
	assert.Equal(t, 10, cfg.K)
	assert.InDelta(t, 0.1, cfg.TripletMargin, 1e-6)
	assert.InDelta(t, 0.25, cfg.Dropout, 1e-6)
	assert.Equal(t, 500, cfg.Epochs)
	assert.Equal(t, 200, cfg.EpochsInit)
	assert.Equal(t, float64(0), cfg.JackknifePercent)
	assert.Equal(t, int64(1), cfg.Seed)
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"latent_dimension: 64\n"+
			"n_epochs: 25\n"+
			"jackknife_percent: 0.1\n"+
			"organization_name: example org\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 64, cfg.LatentDimension)
	assert.Equal(t, 25, cfg.Epochs)
	assert.InDelta(t, 0.1, cfg.JackknifePercent, 1e-9)
	assert.Equal(t, "example org", cfg.Organization)

	// Unset keys keep the defaults.
	assert.Equal(t, 10, cfg.K)
	assert.Equal(t, 200, cfg.EpochsInit)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("latent_dimension: [oops\n"), 0o644))

	_, err = Load(path)
	assert.Error(t, err)
}
