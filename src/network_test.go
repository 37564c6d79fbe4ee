package seqflow

import (
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"

	"gonum.org/v1/gonum/floats"
)

func buildSequenceNet(t *testing.T, seed int64) *Network {
	t.Helper()
	net, err := NewNetwork(NetworkConfig{Seed: seed}).
		AddLayer(Steps().Build()).
		AddLayer(LSTM(4).
			WithReturnSequences(true).
			WithInitializer(XavierUniform(1.0)).
			WithRecurrentInitializer(XavierUniform(1.0)).
			WithBiasInitializer(Zeros()).
			WithForgetBias(1.0).
			Build()).
		AddLayer(Dropout(0.2).Build()).
		AddLayer(Linear(1).
			WithInitializer(XavierUniform(1.0)).
			WithBiasInitializer(Zeros()).
			WithBias(true).
			Build()).
		AddLayer(LastStep().Build()).
		Build([]int{3, 2})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return net
}

func TestNetworkBuild(t *testing.T) {
	net := buildSequenceNet(t, 1)

	// LSTM: 2*16 + 4*16 + 16, Linear: 4*1 + 1
	if got, want := net.NumParameters(), 2*16+4*16+16+4+1; got != want {
		t.Errorf("NumParameters = %d, want %d", got, want)
	}
	if out := net.OutputShape(); len(out) != 1 || out[0] != 1 {
		t.Errorf("OutputShape = %v, want [1]", out)
	}
	if !strings.Contains(net.Summary(), "lstm") {
		t.Errorf("Summary missing lstm layer:\n%s", net.Summary())
	}

	t.Run("EmptyNetwork", func(t *testing.T) {
		if _, err := NewNetwork(NetworkConfig{}).Build([]int{3}); err == nil {
			t.Error("Expected error for network without layers")
		}
	})

	t.Run("BadLayer", func(t *testing.T) {
		_, err := NewNetwork(NetworkConfig{}).
			AddLayer(LSTM(2).Build()).
			Build([]int{3, 2})
		if err == nil || !strings.Contains(err.Error(), "layer 0 (lstm)") {
			t.Errorf("Expected layer-tagged build error, got %v", err)
		}
	})
}

func TestFlatParameters(t *testing.T) {
	net := buildSequenceNet(t, 1)
	lstm := net.layers[1].(*LSTMLayer)

	params := net.Parameters()
	params[0] = 42
	if lstm.W.data[0] != 42 {
		t.Error("layer weights must be views into the flat parameter vector")
	}

	lstm.dW.data[1] = 7
	if net.Gradients()[1] != 7 {
		t.Error("layer gradients must be views into the flat gradient vector")
	}

	net.ZeroGrad()
	for i, g := range net.Gradients() {
		if g != 0 {
			t.Fatalf("gradient %d not cleared: %v", i, g)
		}
	}
}

func TestClipGradNorm(t *testing.T) {
	net := buildSequenceNet(t, 1)
	g := net.Gradients()
	for i := range g {
		g[i] = 1
	}
	before := math.Sqrt(float64(len(g)))

	norm := net.ClipGradNorm(5)
	if math.Abs(norm-before) > 1e-12 {
		t.Errorf("ClipGradNorm returned %v, want %v", norm, before)
	}
	if after := floats.Norm(g, 2); math.Abs(after-5) > 1e-9 {
		t.Errorf("norm after clipping = %v, want 5", after)
	}

	// Below the threshold nothing changes
	net.ClipGradNorm(100)
	if after := floats.Norm(g, 2); math.Abs(after-5) > 1e-9 {
		t.Errorf("norm changed to %v below threshold", after)
	}
}

func TestTrainBatch(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	net := buildSequenceNet(t, 3)
	err := net.Compile(CompileConfig{
		Optimizer:    Adam(DefaultAdamConfig(0.01)),
		Loss:         MSE(MSEConfig{Reduction: "mean"}),
		GradientClip: GradientClipConfig{Mode: "norm", MaxNorm: 5},
	})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	x := randomTensor(rng, 4, 3, 2)
	y := randomTensor(rng, 4, 1)

	t.Run("UpdatesParameters", func(t *testing.T) {
		before := append([]float64(nil), net.Parameters()...)
		loss, err := net.TrainBatch(x, y)
		if err != nil {
			t.Fatalf("TrainBatch failed: %v", err)
		}
		if loss < 0 || math.IsNaN(loss) {
			t.Errorf("invalid loss %v", loss)
		}
		if floats.Equal(before, net.Parameters()) {
			t.Error("parameters did not change")
		}
		if adam := net.Optimizer().(*AdamOptimizer); adam.Steps() != 1 {
			t.Errorf("Adam steps = %d, want 1", adam.Steps())
		}
	})

	t.Run("EvalLeavesParameters", func(t *testing.T) {
		before := append([]float64(nil), net.Parameters()...)
		p1, _, err := net.EvalBatch(x, y)
		if err != nil {
			t.Fatalf("EvalBatch failed: %v", err)
		}
		p2, err := net.Predict(x)
		if err != nil {
			t.Fatalf("Predict failed: %v", err)
		}
		if !floats.Equal(before, net.Parameters()) {
			t.Error("evaluation changed parameters")
		}
		if !floats.Equal(p1.Data(), p2.Data()) {
			t.Error("inference is not deterministic")
		}
	})

	t.Run("LossDecreases", func(t *testing.T) {
		_, first, err := net.EvalBatch(x, y)
		if err != nil {
			t.Fatalf("EvalBatch failed: %v", err)
		}
		for i := 0; i < 200; i++ {
			if _, err := net.TrainBatch(x, y); err != nil {
				t.Fatalf("TrainBatch failed: %v", err)
			}
		}
		_, last, _ := net.EvalBatch(x, y)
		if last >= first {
			t.Errorf("loss did not decrease: first %v, last %v", first, last)
		}
	})

	t.Run("TargetShapeMismatch", func(t *testing.T) {
		_, err := net.TrainBatch(x, NewTensor(4, 2))
		var fe *FlowError
		if !errors.As(err, &fe) {
			t.Fatalf("Expected *FlowError, got %v", err)
		}
		if fe.Phase != "loss" || fe.ErrorType != "shape mismatch" {
			t.Errorf("unexpected error %+v", fe)
		}
	})

	t.Run("InputShapeMismatch", func(t *testing.T) {
		_, err := net.TrainBatch(NewTensor(4, 2, 2), y)
		var fe *FlowError
		if !errors.As(err, &fe) || fe.Component != "Network" {
			t.Fatalf("Expected Network shape error, got %v", err)
		}
	})

	t.Run("NonFiniteLoss", func(t *testing.T) {
		bad := NewTensor(4, 1)
		bad.fill(math.NaN())
		_, err := net.TrainBatch(x, bad)
		var fe *FlowError
		if !errors.As(err, &fe) || fe.ErrorType != "non-finite loss" {
			t.Fatalf("Expected non-finite loss error, got %v", err)
		}
	})
}

func TestCompileValidation(t *testing.T) {
	net := buildSequenceNet(t, 1)
	loss := MSE(MSEConfig{Reduction: "mean"})

	tests := []struct {
		name string
		cfg  CompileConfig
	}{
		{"NoOptimizer", CompileConfig{Loss: loss, GradientClip: GradientClipConfig{Mode: "none"}}},
		{"NoLoss", CompileConfig{Optimizer: SGD(SGDConfig{LR: 0.1}), GradientClip: GradientClipConfig{Mode: "none"}}},
		{"NoClipMode", CompileConfig{Optimizer: SGD(SGDConfig{LR: 0.1}), Loss: loss}},
		{"ZeroMaxNorm", CompileConfig{Optimizer: SGD(SGDConfig{LR: 0.1}), Loss: loss, GradientClip: GradientClipConfig{Mode: "norm"}}},
		{"ZeroLR", CompileConfig{Optimizer: Adam(DefaultAdamConfig(0)), Loss: loss, GradientClip: GradientClipConfig{Mode: "none"}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := net.Compile(tc.cfg); err == nil {
				t.Error("Expected validation error")
			}
		})
	}

	if _, err := net.TrainBatch(NewTensor(1, 3, 2), NewTensor(1, 1)); err == nil {
		t.Error("Expected error training an uncompiled network")
	}
}

func TestMSELoss(t *testing.T) {
	pred, _ := FromSlice([]float64{1, 2, 3, 4}, 2, 2)
	target, _ := FromSlice([]float64{0, 2, 3, 6}, 2, 2)

	mean := MSE(MSEConfig{Reduction: "mean"})
	if got := mean.compute(pred, target); got != 5.0/4 {
		t.Errorf("mean MSE = %v, want 1.25", got)
	}
	sum := MSE(MSEConfig{Reduction: "sum"})
	if got := sum.compute(pred, target); got != 5 {
		t.Errorf("sum MSE = %v, want 5", got)
	}

	g := NewTensor(2, 2)
	mean.gradient(pred, target, g)
	want := []float64{0.5, 0, 0, -1}
	for i := range want {
		if math.Abs(g.data[i]-want[i]) > 1e-12 {
			t.Fatalf("gradient = %v, want %v", g.data, want)
		}
	}
}

func TestMetrics(t *testing.T) {
	pred, _ := FromSlice([]float64{1, 2, 3}, 3, 1)
	target, _ := FromSlice([]float64{2, 2, 1}, 3, 1)

	mae := MeanAbsoluteError()
	mae.Update(pred, target)
	if got := mae.Result(); math.Abs(got-1) > 1e-12 {
		t.Errorf("MAE = %v, want 1", got)
	}
	mse := MeanSquaredError()
	mse.Update(pred, target)
	if got := mse.Result(); math.Abs(got-5.0/3) > 1e-12 {
		t.Errorf("MSE = %v, want 5/3", got)
	}
	mae.Reset()
	if mae.Result() != 0 {
		t.Error("Reset did not clear MAE")
	}
}

func TestClipGradValue(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	net := buildSequenceNet(t, 2)
	err := net.Compile(CompileConfig{
		Optimizer:    SGD(SGDConfig{LR: 0.01}),
		Loss:         MSE(MSEConfig{Reduction: "mean"}),
		GradientClip: GradientClipConfig{Mode: "value", MaxValue: 1e-3},
	})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	y := NewTensor(4, 1)
	y.fill(50)
	if _, err := net.TrainBatch(randomTensor(rng, 4, 3, 2), y); err != nil {
		t.Fatalf("TrainBatch failed: %v", err)
	}

	clipped := 0
	for i, g := range net.Gradients() {
		if math.Abs(g) > 1e-3 {
			t.Fatalf("gradient %d = %v outside [-1e-3, 1e-3]", i, g)
		}
		if math.Abs(g) == 1e-3 {
			clipped++
		}
	}
	if clipped == 0 {
		t.Error("a target of 50 should saturate at least one gradient")
	}
}

func TestNonFiniteDetection(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	x := randomTensor(rng, 2, 3, 2)
	y := randomTensor(rng, 2, 1)

	t.Run("LSTMState", func(t *testing.T) {
		net := buildSequenceNet(t, 1)
		compileForTest(t, net)
		net.Parameters()[0] = math.NaN()

		_, err := net.TrainBatch(x, y)
		var fe *FlowError
		if !errors.As(err, &fe) {
			t.Fatalf("Expected *FlowError, got %v", err)
		}
		if fe.LayerIndex != 1 || fe.LayerName != "lstm" || fe.Phase != "forward" || fe.ErrorType != "NaN detected" {
			t.Errorf("error does not name the LSTM layer: %+v", fe)
		}
	})

	t.Run("Gradients", func(t *testing.T) {
		net := buildSequenceNet(t, 1)
		compileForTest(t, net)
		g := net.Gradients()
		g[len(g)-1] = math.Inf(1) // linear bias

		err := net.checkGradients()
		var fe *FlowError
		if !errors.As(err, &fe) {
			t.Fatalf("Expected *FlowError, got %v", err)
		}
		if fe.LayerIndex != 3 || fe.LayerName != "linear" || fe.Phase != "backward" || fe.ErrorType != "Inf detected" {
			t.Errorf("error does not name the linear layer: %+v", fe)
		}

		net.ZeroGrad()
		if err := net.checkGradients(); err != nil {
			t.Errorf("Unexpected error for finite gradients: %v", err)
		}
	})
}
