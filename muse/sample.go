package muse

// addTripletDelta samples one triplet per training entity in modality mi and
// accumulates the hinge gradient into the modality's latent delta buffer.
// Pseudo-labels come from the other modality's clustering, which is what
// couples the two latent spaces beyond the per-entity consistency term:
// entities that the other modality groups together are pulled together here.
func (t *trainer) addTripletDelta(mi int) {
	other := 1 - mi
	labels := t.labels[other]
	members := t.members[other]

	if len(members) < 2 {
		// A single community leaves nothing to contrast against.
		return
	}

	enc := t.encs[mi]
	dim := t.cfg.LatentDim
	scale := 2 * t.cfg.TripletWeight / float32(t.nTrain)

	for i := 0; i < t.nTrain; i++ {
		anchor := t.trainRows[t.rng.Intn(t.nTrain)]

		pool := members[labels[anchor]]
		if len(pool) < 2 {
			continue
		}

		positive := pool[t.rng.Intn(len(pool))]
		if positive == anchor {
			// Step to the next member; pool has at least two entries.
			positive = pool[(indexOf(pool, anchor)+1)%len(pool)]
		}

		negative, ok := t.sampleNegative(labels, labels[anchor])
		if !ok {
			continue
		}

		t.applyHinge(enc, int(anchor), int(positive), int(negative), dim, scale)
	}
}

// sampleNegative draws a training row whose pseudo-label differs from label.
func (t *trainer) sampleNegative(labels []int, label int) (uint32, bool) {
	// Bounded rejection sampling keeps the draw uniform over eligible rows
	// without materializing them.
	for attempt := 0; attempt < 8; attempt++ {
		cand := t.trainRows[t.rng.Intn(t.nTrain)]
		if labels[cand] != label {
			return cand, true
		}
	}

	return 0, false
}

// applyHinge accumulates the gradient of
// max(0, margin + d(a,p) - d(a,n)) over squared L2 latent distances.
func (t *trainer) applyHinge(enc *encoder, a, p, n, dim int, scale float32) {
	ao, po, no := a*dim, p*dim, n*dim

	var dap, dan float32
	for d := 0; d < dim; d++ {
		vp := enc.h[ao+d] - enc.h[po+d]
		vn := enc.h[ao+d] - enc.h[no+d]
		dap += vp * vp
		dan += vn * vn
	}

	if t.cfg.TripletMargin+dap-dan <= 0 {
		return
	}

	for d := 0; d < dim; d++ {
		ha, hp, hn := enc.h[ao+d], enc.h[po+d], enc.h[no+d]

		enc.dH[ao+d] += scale * (hn - hp)
		enc.dH[po+d] -= scale * (ha - hp)
		enc.dH[no+d] += scale * (ha - hn)
	}
}

func indexOf(pool []uint32, v uint32) int {
	for i, x := range pool {
		if x == v {
			return i
		}
	}

	return 0
}
