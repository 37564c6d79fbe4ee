package seqflow

import "math"

// Metric accumulates a regression score over a stream of predictions
type Metric interface {
	Reset()
	Update(pred, target *Tensor)
	Result() float64
	Name() string
}

// MeanSquaredErrorMetric - running mean of squared differences
type MeanSquaredErrorMetric struct {
	sum   float64
	count int
}

func MeanSquaredError() Metric {
	return &MeanSquaredErrorMetric{}
}

func (m *MeanSquaredErrorMetric) Reset() {
	m.sum = 0
	m.count = 0
}

func (m *MeanSquaredErrorMetric) Update(pred, target *Tensor) {
	for i := range pred.data {
		diff := pred.data[i] - target.data[i]
		m.sum += diff * diff
	}
	m.count += len(pred.data)
}

func (m *MeanSquaredErrorMetric) Result() float64 {
	if m.count == 0 {
		return 0
	}
	return m.sum / float64(m.count)
}

func (m *MeanSquaredErrorMetric) Name() string { return "mse" }

// MeanAbsoluteErrorMetric - running mean of absolute differences
type MeanAbsoluteErrorMetric struct {
	sum   float64
	count int
}

func MeanAbsoluteError() Metric {
	return &MeanAbsoluteErrorMetric{}
}

func (m *MeanAbsoluteErrorMetric) Reset() {
	m.sum = 0
	m.count = 0
}

func (m *MeanAbsoluteErrorMetric) Update(pred, target *Tensor) {
	for i := range pred.data {
		m.sum += math.Abs(pred.data[i] - target.data[i])
	}
	m.count += len(pred.data)
}

func (m *MeanAbsoluteErrorMetric) Result() float64 {
	if m.count == 0 {
		return 0
	}
	return m.sum / float64(m.count)
}

func (m *MeanAbsoluteErrorMetric) Name() string { return "mae" }
