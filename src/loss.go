package seqflow

import (
	"gonum.org/v1/gonum/floats"
)

// Loss computes loss and gradients
type Loss interface {
	compute(pred, target *Tensor) float64
	gradient(pred, target *Tensor, gradOut *Tensor)
	name() string
}

// MSELoss - Mean Squared Error
type MSELoss struct {
	Reduction string // "mean" or "sum"
}

type MSEConfig struct {
	Reduction string
}

func MSE(config MSEConfig) Loss {
	return &MSELoss{Reduction: config.Reduction}
}

func (m *MSELoss) compute(pred, target *Tensor) float64 {
	diff := make([]float64, len(pred.data))
	floats.SubTo(diff, pred.data, target.data)
	sum := floats.Dot(diff, diff)
	if m.Reduction == "mean" {
		return sum / float64(len(pred.data))
	}
	return sum
}

func (m *MSELoss) gradient(pred, target *Tensor, gradOut *Tensor) {
	scale := 2.0
	if m.Reduction == "mean" {
		scale = 2.0 / float64(len(pred.data))
	}
	floats.SubTo(gradOut.data, pred.data, target.data)
	floats.Scale(scale, gradOut.data)
}

func (m *MSELoss) name() string { return "mse" }
