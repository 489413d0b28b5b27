package muse

import (
	"math/rand"

	"github.com/cellmapper/coembed/internal/math32"
)

// param is one weight tensor with its gradient and Adam moment estimates.
type param struct {
	w []float32 // values
	g []float32 // gradient accumulator
	m []float32 // first moment
	v []float32 // second moment
}

func newParam(size int) *param {
	return &param{
		w: make([]float32, size),
		g: make([]float32, size),
		m: make([]float32, size),
		v: make([]float32, size),
	}
}

const (
	adamBeta1 = 0.9
	adamBeta2 = 0.999
	adamEps   = 1e-8
)

// step applies one Adam update with bias correction and clears the gradient.
// t is the 1-based update count.
func (p *param) step(lr float32, t int) {
	c1 := 1 - pow(adamBeta1, t)
	c2 := 1 - pow(adamBeta2, t)

	for i := range p.w {
		g := p.g[i]
		p.m[i] = adamBeta1*p.m[i] + (1-adamBeta1)*g
		p.v[i] = adamBeta2*p.v[i] + (1-adamBeta2)*g*g

		mhat := p.m[i] / c1
		vhat := p.v[i] / c2

		p.w[i] -= lr * mhat / (math32.Sqrt(vhat) + adamEps)
		p.g[i] = 0
	}
}

func pow(b float32, n int) float32 {
	out := float32(1)
	for i := 0; i < n; i++ {
		out *= b
	}

	return out
}

// encoder is a single-hidden-layer autoencoder for one modality: a linear
// map into the shared latent space with tanh activation, and a linear
// decoder back to the modality's native space.
type encoder struct {
	inDim     int
	latentDim int

	w1 *param // inDim x latentDim
	b1 *param // latentDim
	w2 *param // latentDim x inDim
	b2 *param // inDim

	steps int

	// Forward caches, sized for n rows on each call.
	xDrop []float32 // n x inDim, input after dropout
	h     []float32 // n x latentDim
	xhat  []float32 // n x inDim

	// Backward buffers.
	dH    []float32 // n x latentDim
	dXhat []float32 // n x inDim
	dZ    []float32 // n x latentDim
	dHrec []float32 // n x latentDim
}

// newEncoder creates an encoder with Glorot-uniform initialized weights.
func newEncoder(inDim, latentDim int, rng *rand.Rand) *encoder {
	e := &encoder{
		inDim:     inDim,
		latentDim: latentDim,
		w1:        newParam(inDim * latentDim),
		b1:        newParam(latentDim),
		w2:        newParam(latentDim * inDim),
		b2:        newParam(inDim),
	}

	glorot(e.w1.w, inDim, latentDim, rng)
	glorot(e.w2.w, latentDim, inDim, rng)

	return e
}

func glorot(w []float32, fanIn, fanOut int, rng *rand.Rand) {
	limit := math32.Sqrt(6 / float32(fanIn+fanOut))
	for i := range w {
		w[i] = (2*rng.Float32() - 1) * limit
	}
}

func (e *encoder) resize(n int) {
	e.xDrop = grow(e.xDrop, n*e.inDim)
	e.h = grow(e.h, n*e.latentDim)
	e.xhat = grow(e.xhat, n*e.inDim)
	e.dH = grow(e.dH, n*e.latentDim)
	e.dXhat = grow(e.dXhat, n*e.inDim)
	e.dZ = grow(e.dZ, n*e.latentDim)
	e.dHrec = grow(e.dHrec, n*e.latentDim)
}

func grow(buf []float32, size int) []float32 {
	if cap(buf) < size {
		return make([]float32, size)
	}

	return buf[:size]
}

// forward runs the autoencoder over the n-row matrix x. When train is true,
// inverted dropout with the given rate is applied to the input. The latent
// activations land in e.h and the reconstruction in e.xhat.
func (e *encoder) forward(x []float32, n int, dropout float32, train bool, rng *rand.Rand) {
	e.resize(n)

	copy(e.xDrop, x[:n*e.inDim])

	if train && dropout > 0 {
		keep := 1 - dropout
		inv := 1 / keep

		for i := range e.xDrop {
			if rng.Float32() < dropout {
				e.xDrop[i] = 0
			} else {
				e.xDrop[i] *= inv
			}
		}
	}

	math32.MatMul(e.h, e.xDrop, e.w1.w, n, e.inDim, e.latentDim)
	math32.AddRowInPlace(e.h, e.b1.w, n, e.latentDim)
	math32.TanhInPlace(e.h)

	math32.MatMul(e.xhat, e.h, e.w2.w, n, e.latentDim, e.inDim)
	math32.AddRowInPlace(e.xhat, e.b2.w, n, e.inDim)
}

// zeroDeltas clears the activation gradients before a new accumulation pass.
func (e *encoder) zeroDeltas() {
	math32.Zero(e.dH)
	math32.Zero(e.dXhat)
}

// backward accumulates parameter gradients from the deltas in e.dXhat and
// e.dH. Callers fill e.dXhat with the reconstruction delta and add any latent
// deltas (cross-modal, triplet) into e.dH before calling.
func (e *encoder) backward(n int) {
	// Decoder gradients, plus the reconstruction path into the latent delta.
	math32.MatMulATB(e.w2.g, e.h, e.dXhat, n, e.latentDim, e.inDim)
	math32.ColSums(e.b2.g, e.dXhat, n, e.inDim)

	math32.MatMulABT(e.dHrec, e.dXhat, e.w2.w, n, e.inDim, e.latentDim)
	math32.Axpy(e.dH, e.dHrec, 1)

	// Through tanh: dZ = dH * (1 - h^2).
	for i := range e.dZ[:n*e.latentDim] {
		e.dZ[i] = e.dH[i] * (1 - e.h[i]*e.h[i])
	}

	math32.MatMulATB(e.w1.g, e.xDrop, e.dZ, n, e.inDim, e.latentDim)
	math32.ColSums(e.b1.g, e.dZ, n, e.latentDim)
}

// update applies one optimizer step to all parameters.
func (e *encoder) update(lr float32) {
	e.steps++

	e.w1.step(lr, e.steps)
	e.b1.step(lr, e.steps)
	e.w2.step(lr, e.steps)
	e.b2.step(lr, e.steps)
}
