package seqflow

import (
	"math"
	"testing"
)

func TestSGD(t *testing.T) {
	t.Run("Plain", func(t *testing.T) {
		opt := SGD(SGDConfig{LR: 0.1})
		params := []float64{1, -1}
		opt.step(params, []float64{2, -4})
		if math.Abs(params[0]-0.8) > 1e-12 || math.Abs(params[1]+0.6) > 1e-12 {
			t.Errorf("params = %v, want [0.8 -0.6]", params)
		}
	})

	t.Run("Momentum", func(t *testing.T) {
		opt := SGD(SGDConfig{LR: 0.1, Momentum: 0.9})
		params := []float64{0}
		opt.step(params, []float64{1}) // v = 1, p = -0.1
		opt.step(params, []float64{1}) // v = 1.9, p = -0.29
		if math.Abs(params[0]+0.29) > 1e-12 {
			t.Errorf("param = %v, want -0.29", params[0])
		}
	})

	if lr := SGD(SGDConfig{LR: 0.3}).LearningRate(); lr != 0.3 {
		t.Errorf("LearningRate = %v, want 0.3", lr)
	}
}

func TestAdam(t *testing.T) {
	t.Run("FirstStepMovesByLR", func(t *testing.T) {
		// After bias correction the first update is lr * g/|g|
		opt := Adam(DefaultAdamConfig(0.01))
		params := []float64{1, 1, 1}
		opt.step(params, []float64{0.5, -3, 100})
		want := []float64{0.99, 1.01, 0.99}
		for i := range want {
			if math.Abs(params[i]-want[i]) > 1e-6 {
				t.Errorf("param %d = %v, want %v", i, params[i], want[i])
			}
		}
	})

	t.Run("ZeroGradientKeepsParameter", func(t *testing.T) {
		opt := Adam(DefaultAdamConfig(0.01))
		params := []float64{2}
		opt.step(params, []float64{0})
		if params[0] != 2 {
			t.Errorf("param = %v, want 2", params[0])
		}
	})

	t.Run("AMSGrad", func(t *testing.T) {
		cfg := DefaultAdamConfig(0.01)
		cfg.AMSGrad = true
		opt := Adam(cfg)
		opt.init(1)
		params := []float64{0}
		opt.step(params, []float64{10})
		opt.step(params, []float64{0.1})
		a := opt.(*AdamOptimizer)
		if a.vMax[0] < a.v[0]/(1-math.Pow(a.Beta2, 2)) {
			t.Error("vMax must track the largest second moment")
		}
		if a.Steps() != 2 {
			t.Errorf("Steps = %d, want 2", a.Steps())
		}
	})
}

func TestWeightDecay(t *testing.T) {
	params := []float64{2, -4}
	opt := SGD(SGDConfig{LR: 0.5, WeightDecay: 0.1})
	opt.step(params, []float64{0, 0})
	// p -= lr * wd * p
	if math.Abs(params[0]-1.9) > 1e-12 || math.Abs(params[1]+3.8) > 1e-12 {
		t.Errorf("params = %v, want [1.9 -3.8]", params)
	}
}

func TestNesterov(t *testing.T) {
	params := []float64{1}
	opt := SGD(SGDConfig{LR: 0.1, Momentum: 0.5, Nesterov: true})

	// v = 2, step uses g + m*v = 3
	opt.step(params, []float64{2})
	if math.Abs(params[0]-0.7) > 1e-12 {
		t.Fatalf("after step 1 param = %v, want 0.7", params[0])
	}
	// v = 0.5*2 + 2 = 3, step uses 2 + 1.5 = 3.5
	opt.step(params, []float64{2})
	if math.Abs(params[0]-0.35) > 1e-12 {
		t.Errorf("after step 2 param = %v, want 0.35", params[0])
	}
}
