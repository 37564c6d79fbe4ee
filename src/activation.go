package seqflow

import "math"

// Activation is an element-wise function applied after a projection
type Activation interface {
	forward(x, out []float64)
	backward(x, gradOut, gradIn []float64)
	name() string
}

// IdentityActivation passes values through, used for regression heads
type IdentityActivation struct{}

func Identity() Activation { return &IdentityActivation{} }

func (IdentityActivation) forward(x, out []float64) { copy(out, x) }

func (IdentityActivation) backward(x, gradOut, gradIn []float64) { copy(gradIn, gradOut) }

func (IdentityActivation) name() string { return "identity" }

// TanhActivation
type TanhActivation struct{}

func Tanh() Activation { return &TanhActivation{} }

func (TanhActivation) forward(x, out []float64) {
	for i, v := range x {
		out[i] = math.Tanh(v)
	}
}

func (TanhActivation) backward(x, gradOut, gradIn []float64) {
	for i, v := range x {
		t := math.Tanh(v)
		gradIn[i] = gradOut[i] * (1 - t*t)
	}
}

func (TanhActivation) name() string { return "tanh" }

func sigmoid(v float64) float64 {
	// exp(-v) overflows for v < -709
	if v >= 0 {
		return 1.0 / (1.0 + math.Exp(-v))
	}
	e := math.Exp(v)
	return e / (1.0 + e)
}
