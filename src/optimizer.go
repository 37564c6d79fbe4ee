package seqflow

import "math"

// Optimizer updates the network's flat parameter vector in place from the
// matching flat gradient vector.
type Optimizer interface {
	init(size int)
	step(params, grads []float64)
	LearningRate() float64
	SetLearningRate(lr float64)
	name() string
}

// SGDOptimizer - Stochastic Gradient Descent with optional (Nesterov) momentum
type SGDOptimizer struct {
	LR          float64
	Momentum    float64
	WeightDecay float64
	Nesterov    bool
	velocity    []float64
}

type SGDConfig struct {
	LR          float64
	Momentum    float64
	WeightDecay float64
	Nesterov    bool
}

func SGD(config SGDConfig) Optimizer {
	return &SGDOptimizer{
		LR:          config.LR,
		Momentum:    config.Momentum,
		WeightDecay: config.WeightDecay,
		Nesterov:    config.Nesterov,
	}
}

func (s *SGDOptimizer) init(size int) {
	s.velocity = make([]float64, size)
}

func (s *SGDOptimizer) step(params, grads []float64) {
	if len(s.velocity) != len(params) {
		s.init(len(params))
	}
	for j := range params {
		grad := grads[j]
		if s.WeightDecay != 0 {
			grad += s.WeightDecay * params[j]
		}
		if s.Momentum != 0 {
			s.velocity[j] = s.Momentum*s.velocity[j] + grad
			if s.Nesterov {
				grad += s.Momentum * s.velocity[j]
			} else {
				grad = s.velocity[j]
			}
		}
		params[j] -= s.LR * grad
	}
}

func (s *SGDOptimizer) LearningRate() float64 { return s.LR }

func (s *SGDOptimizer) SetLearningRate(lr float64) { s.LR = lr }

func (s *SGDOptimizer) name() string { return "sgd" }

// AdamOptimizer - Adaptive Moment Estimation
type AdamOptimizer struct {
	LR          float64
	Beta1       float64
	Beta2       float64
	Epsilon     float64
	WeightDecay float64
	AMSGrad     bool
	m           []float64
	v           []float64
	vMax        []float64
	t           int
}

type AdamConfig struct {
	LR          float64
	Beta1       float64
	Beta2       float64
	Epsilon     float64
	WeightDecay float64
	AMSGrad     bool
}

// DefaultAdamConfig returns the usual betas and epsilon for the given rate
func DefaultAdamConfig(lr float64) AdamConfig {
	return AdamConfig{LR: lr, Beta1: 0.9, Beta2: 0.999, Epsilon: 1e-8}
}

func Adam(config AdamConfig) Optimizer {
	return &AdamOptimizer{
		LR:          config.LR,
		Beta1:       config.Beta1,
		Beta2:       config.Beta2,
		Epsilon:     config.Epsilon,
		WeightDecay: config.WeightDecay,
		AMSGrad:     config.AMSGrad,
	}
}

func (a *AdamOptimizer) init(size int) {
	a.m = make([]float64, size)
	a.v = make([]float64, size)
	if a.AMSGrad {
		a.vMax = make([]float64, size)
	}
	a.t = 0
}

func (a *AdamOptimizer) step(params, grads []float64) {
	if len(a.m) != len(params) {
		a.init(len(params))
	}
	a.t++
	bc1 := 1 - math.Pow(a.Beta1, float64(a.t))
	bc2 := 1 - math.Pow(a.Beta2, float64(a.t))

	for j := range params {
		grad := grads[j]
		if a.WeightDecay != 0 {
			grad += a.WeightDecay * params[j]
		}
		a.m[j] = a.Beta1*a.m[j] + (1-a.Beta1)*grad
		a.v[j] = a.Beta2*a.v[j] + (1-a.Beta2)*grad*grad

		mHat := a.m[j] / bc1
		vHat := a.v[j] / bc2

		if a.AMSGrad {
			if vHat > a.vMax[j] {
				a.vMax[j] = vHat
			}
			vHat = a.vMax[j]
		}

		params[j] -= a.LR * mHat / (math.Sqrt(vHat) + a.Epsilon)
	}
}

// Steps is the number of updates applied so far
func (a *AdamOptimizer) Steps() int { return a.t }

func (a *AdamOptimizer) LearningRate() float64 { return a.LR }

func (a *AdamOptimizer) SetLearningRate(lr float64) { a.LR = lr }

func (a *AdamOptimizer) name() string { return "adam" }
