// Package math32 provides pure-Go float32 vector and matrix kernels.
// This is an internal package - external users should use the distance package.
//
// Matrices are flattened row-major []float32 slices with an explicit
// dimension, so a matrix with n rows and m columns occupies n*m elements
// and row i is data[i*m : (i+1)*m].
package math32

import "math"

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float32 {
	var ret float32
	for i := range a {
		ret += a[i] * b[i]
	}

	return ret
}

// SquaredL2 calculates the squared L2 distance between two vectors.
// Assumes vectors are the same length (caller's responsibility).
func SquaredL2(a, b []float32) float32 {
	var distance float32
	for i := range a {
		distance += (a[i] - b[i]) * (a[i] - b[i])
	}

	return distance
}

// Sqrt returns the square root of x as a float32.
func Sqrt(x float32) float32 {
	return float32(math.Sqrt(float64(x)))
}

// ScaleInPlace multiplies all elements of a by scalar.
func ScaleInPlace(a []float32, scalar float32) {
	for i := range a {
		a[i] *= scalar
	}
}

// Axpy computes y += alpha*x.
// Assumes slices are the same length.
func Axpy(y, x []float32, alpha float32) {
	for i := range y {
		y[i] += alpha * x[i]
	}
}

// Zero sets all elements of a to zero.
func Zero(a []float32) {
	for i := range a {
		a[i] = 0
	}
}

// TanhInPlace applies tanh element-wise.
func TanhInPlace(a []float32) {
	for i := range a {
		a[i] = float32(math.Tanh(float64(a[i])))
	}
}

// HasNaN reports whether a contains a NaN or Inf element.
func HasNaN(a []float32) bool {
	for _, v := range a {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return true
		}
	}

	return false
}

// MatMul computes C = A * B where A is n x k and B is k x m.
// C must have length n*m and is overwritten.
func MatMul(c, a, b []float32, n, k, m int) {
	Zero(c)

	for i := 0; i < n; i++ {
		arow := a[i*k : (i+1)*k]
		crow := c[i*m : (i+1)*m]

		for p := 0; p < k; p++ {
			av := arow[p]
			if av == 0 {
				continue
			}

			brow := b[p*m : (p+1)*m]
			for j := 0; j < m; j++ {
				crow[j] += av * brow[j]
			}
		}
	}
}

// MatMulATB computes C = A^T * B where A is n x k and B is n x m.
// C must have length k*m and is overwritten.
func MatMulATB(c, a, b []float32, n, k, m int) {
	Zero(c)

	for i := 0; i < n; i++ {
		arow := a[i*k : (i+1)*k]
		brow := b[i*m : (i+1)*m]

		for p := 0; p < k; p++ {
			av := arow[p]
			if av == 0 {
				continue
			}

			crow := c[p*m : (p+1)*m]
			for j := 0; j < m; j++ {
				crow[j] += av * brow[j]
			}
		}
	}
}

// MatMulABT computes C = A * B^T where A is n x k and B is m x k.
// C must have length n*m and is overwritten.
func MatMulABT(c, a, b []float32, n, k, m int) {
	for i := 0; i < n; i++ {
		arow := a[i*k : (i+1)*k]
		crow := c[i*m : (i+1)*m]

		for j := 0; j < m; j++ {
			crow[j] = Dot(arow, b[j*k:(j+1)*k])
		}
	}
}

// ColSums computes dst[j] = sum over rows of a[i*m+j] for an n x m matrix a.
// dst must have length m and is overwritten.
func ColSums(dst, a []float32, n, m int) {
	Zero(dst)

	for i := 0; i < n; i++ {
		row := a[i*m : (i+1)*m]
		for j := 0; j < m; j++ {
			dst[j] += row[j]
		}
	}
}

// AddRowInPlace adds the row vector b to every row of the n x m matrix a.
func AddRowInPlace(a, b []float32, n, m int) {
	for i := 0; i < n; i++ {
		row := a[i*m : (i+1)*m]
		for j := 0; j < m; j++ {
			row[j] += b[j]
		}
	}
}
