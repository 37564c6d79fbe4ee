package seqflow

import (
	"math/rand"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
)

// Tensor is a dense row-major float64 array. The first dimension is the batch.
type Tensor struct {
	data  []float64
	shape []int
}

// NewTensor allocates a zeroed tensor
func NewTensor(shape ...int) *Tensor {
	size := 1
	for _, s := range shape {
		if s <= 0 {
			s = 1 // Ensure non-zero size
		}
		size *= s
	}
	return &Tensor{
		data:  make([]float64, size),
		shape: append([]int(nil), shape...),
	}
}

// FromSlice wraps data without copying. len(data) must match the shape.
func FromSlice(data []float64, shape ...int) (*Tensor, error) {
	size := 1
	for _, s := range shape {
		if s <= 0 {
			return nil, errorf("invalid dimension %d in shape %v", s, shape)
		}
		size *= s
	}
	if size != len(data) {
		return nil, errorf("shape %v needs %d values, got %d", shape, size, len(data))
	}
	return &Tensor{data: data, shape: append([]int(nil), shape...)}, nil
}

// Shape returns a copy of the tensor dimensions
func (t *Tensor) Shape() []int {
	return append([]int(nil), t.shape...)
}

// Data returns the backing slice. Writes are visible to the tensor.
func (t *Tensor) Data() []float64 { return t.data }

// Size is the number of elements
func (t *Tensor) Size() int { return len(t.data) }

// Reshape returns a view sharing the same data
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	return FromSlice(t.data, shape...)
}

// Row returns sample i as a new slice view
func (t *Tensor) Row(i int) []float64 {
	cols := len(t.data) / t.shape[0]
	return t.data[i*cols : (i+1)*cols : (i+1)*cols]
}

func (t *Tensor) fill(value float64) {
	for i := range t.data {
		t.data[i] = value
	}
}

func (t *Tensor) fillRandUniform(low, high float64, rng *rand.Rand) {
	for i := range t.data {
		t.data[i] = rng.Float64()*(high-low) + low
	}
}

func (t *Tensor) zero() {
	for i := range t.data {
		t.data[i] = 0
	}
}

// general views a row-major slice as a BLAS matrix
func general(data []float64, rows, cols int) blas64.General {
	return blas64.General{Rows: rows, Cols: cols, Stride: cols, Data: data}
}

// blasView is general with an explicit row stride, for selecting one time
// step out of a [batch, steps, features] block
func blasView(data []float64, rows, cols, stride int) blas64.General {
	return blas64.General{Rows: rows, Cols: cols, Stride: stride, Data: data}
}

// gemm computes c = a @ b + beta*c where a is m×k, b is k×n and c is m×n.
// transA/transB select the stored transpose of a or b.
func gemm(transA, transB bool, a, b blas64.General, beta float64, c blas64.General) {
	tA, tB := blas.NoTrans, blas.NoTrans
	if transA {
		tA = blas.Trans
	}
	if transB {
		tB = blas.Trans
	}
	blas64.Gemm(tA, tB, 1, a, b, beta, c)
}

// addRowVec adds v to every row of the rows×len(v) matrix in data
func addRowVec(data []float64, v []float64) {
	n := len(v)
	for i := range data {
		data[i] += v[i%n]
	}
}

// sumRowsInto accumulates the column sums of a rows×len(out) matrix into out
func sumRowsInto(data []float64, out []float64) {
	n := len(out)
	for i, v := range data {
		out[i%n] += v
	}
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func product(shape []int) int {
	p := 1
	for _, s := range shape {
		p *= s
	}
	return p
}
