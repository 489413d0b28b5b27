package muse

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/cellmapper/coembed/artifact"
)

// Checkpoint holds the trained model weights for later evaluation.
type Checkpoint struct {
	Names     []string
	LatentDim int
	Encoders  []EncoderWeights
}

// EncoderWeights holds one modality encoder's parameters.
type EncoderWeights struct {
	InDim int
	W1    []float32
	B1    []float32
	W2    []float32
	B2    []float32
}

// checkpoint persists the trained weights through the artifact store.
func (t *trainer) checkpoint(store artifact.Store) error {
	cp := Checkpoint{
		Names:     t.aligned.Names,
		LatentDim: t.cfg.LatentDim,
	}

	for _, enc := range t.encs {
		cp.Encoders = append(cp.Encoders, EncoderWeights{
			InDim: enc.inDim,
			W1:    enc.w1.w,
			B1:    enc.b1.w,
			W2:    enc.w2.w,
			B2:    enc.b2.w,
		})
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(cp); err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	return store.Put(CheckpointName, buf.Bytes())
}

// LoadCheckpoint reads a persisted model checkpoint from the artifact store.
func LoadCheckpoint(store artifact.Store) (*Checkpoint, error) {
	data, err := store.Get(CheckpointName)
	if err != nil {
		return nil, err
	}

	var cp Checkpoint
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}

	return &cp, nil
}
