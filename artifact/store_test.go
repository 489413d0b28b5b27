package artifact

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressionString(t *testing.T) {
	assert.Equal(t, "none", CompressionNone.String())
	assert.Equal(t, "lz4", CompressionLZ4.String())
	assert.Equal(t, "zstd", CompressionZSTD.String())
	assert.Equal(t, "Unknown(42)", Compression(42).String())
}

func TestLocalStoreRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("co-embedding checkpoint payload "), 256)

	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			store := NewLocalStore(t.TempDir(), c)

			require.NoError(t, store.Put("muse/model.gob", payload))

			got, err := store.Get("muse/model.gob")
			require.NoError(t, err)
			assert.Equal(t, payload, got)
		})
	}
}

func TestLocalStoreCompressedOnDisk(t *testing.T) {
	root := t.TempDir()
	payload := bytes.Repeat([]byte("aaaaaaaaaaaaaaaa"), 1024)

	store := NewLocalStore(root, CompressionZSTD)
	require.NoError(t, store.Put("blob", payload))

	raw, err := os.ReadFile(filepath.Join(root, "blob"))
	require.NoError(t, err)
	assert.Less(t, len(raw), len(payload), "highly repetitive payload must shrink")
	assert.NotEqual(t, payload, raw)
}

func TestLocalStoreOverwrite(t *testing.T) {
	store := NewLocalStore(t.TempDir(), CompressionNone)

	require.NoError(t, store.Put("blob", []byte("first")))
	require.NoError(t, store.Put("blob", []byte("second")))

	got, err := store.Get("blob")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
}

func TestLocalStoreGetMissing(t *testing.T) {
	store := NewLocalStore(t.TempDir(), CompressionNone)

	_, err := store.Get("missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLocalStoreNoTempLeftovers(t *testing.T) {
	root := t.TempDir()
	store := NewLocalStore(root, CompressionLZ4)

	require.NoError(t, store.Put("nested/dir/blob", []byte("data")))

	entries, err := os.ReadDir(filepath.Join(root, "nested", "dir"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "blob", entries[0].Name())
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()

	require.NoError(t, store.Put("b", []byte("two")))
	require.NoError(t, store.Put("a", []byte("one")))

	got, err := store.Get("a")
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), got)

	// Stored blobs are copies, not aliases.
	got[0] = 'X'
	again, err := store.Get("a")
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), again)

	assert.Equal(t, []string{"a", "b"}, store.Names())

	_, err = store.Get("missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}
