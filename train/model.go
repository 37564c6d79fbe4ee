package train

import (
	"fmt"

	seqflow "seqflow/src"
)

// ModelConfig describes the stacked LSTM regression network
type ModelConfig struct {
	FeatureDim  int
	LabelDim    int
	Rho         int
	HiddenSize  int
	Depth       int
	DropoutProb float64
	Uniform     float64 // > 0 initializes every parameter in [-Uniform, Uniform]
	Seed        int64
}

// ModelConfigFor derives the network shape from the run config and the
// dataset dimensions
func ModelConfigFor(cfg Config, featureDim, labelDim int) ModelConfig {
	return ModelConfig{
		FeatureDim:  featureDim,
		LabelDim:    labelDim,
		Rho:         cfg.Rho,
		HiddenSize:  cfg.HiddenSize,
		Depth:       cfg.Depth,
		DropoutProb: cfg.DropoutProb,
		Uniform:     cfg.Uniform,
		Seed:        cfg.Seed,
	}
}

// BuildModel assembles
//
//	Steps -> (LSTM -> Dropout) x Depth -> Linear per step -> LastStep
//
// for inputs shaped [Rho, FeatureDim] and outputs shaped [LabelDim].
func BuildModel(mc ModelConfig) (*seqflow.Network, error) {
	if mc.FeatureDim <= 0 || mc.LabelDim <= 0 {
		return nil, fmt.Errorf("model needs feature and label dims > 0, got %d and %d", mc.FeatureDim, mc.LabelDim)
	}

	weightInit := seqflow.XavierUniform(1.0)
	recurrentInit := seqflow.XavierUniform(1.0)
	biasInit := seqflow.Zeros()
	if mc.Uniform > 0 {
		weightInit = seqflow.SymmetricUniform(mc.Uniform)
		recurrentInit = weightInit
		biasInit = weightInit
	}

	nb := seqflow.NewNetwork(seqflow.NetworkConfig{Seed: mc.Seed}).
		AddLayer(seqflow.Steps().Build())

	for d := 0; d < mc.Depth; d++ {
		lstm := seqflow.LSTM(mc.HiddenSize).
			WithReturnSequences(true).
			WithInitializer(weightInit).
			WithRecurrentInitializer(recurrentInit).
			WithBiasInitializer(biasInit)
		if mc.Uniform <= 0 {
			lstm = lstm.WithForgetBias(1.0)
		}
		nb = nb.AddLayer(lstm.Build())
		if mc.DropoutProb > 0 {
			nb = nb.AddLayer(seqflow.Dropout(mc.DropoutProb).Build())
		}
	}

	net, err := nb.
		AddLayer(seqflow.Linear(mc.LabelDim).
			WithActivation(seqflow.Identity()).
			WithInitializer(weightInit).
			WithBiasInitializer(biasInit).
			WithBias(true).
			Build()).
		AddLayer(seqflow.LastStep().Build()).
		Build([]int{mc.Rho, mc.FeatureDim})
	if err != nil {
		return nil, err
	}

	if out := net.OutputShape(); len(out) != 1 || out[0] != mc.LabelDim {
		return nil, &seqflow.FlowError{
			Component:    "Model",
			ErrorType:    "output mismatch",
			LayerIndex:   -1,
			Phase:        "build",
			ExpectedInfo: fmt.Sprintf("[%d]", mc.LabelDim),
			Cause:        fmt.Sprintf("network produces %v per sample", out),
		}
	}
	return net, nil
}

// Compile attaches the MSE loss, the configured optimizer and gradient
// clipping
func Compile(net *seqflow.Network, cfg Config) error {
	var opt seqflow.Optimizer
	switch cfg.Optimizer {
	case "sgd":
		opt = seqflow.SGD(seqflow.SGDConfig{
			LR:          cfg.LearningRate,
			Momentum:    cfg.Momentum,
			Nesterov:    cfg.Nesterov,
			WeightDecay: cfg.WeightDecay,
		})
	default:
		ac := seqflow.DefaultAdamConfig(cfg.LearningRate)
		ac.WeightDecay = cfg.WeightDecay
		opt = seqflow.Adam(ac)
	}

	clip := seqflow.GradientClipConfig{Mode: "none"}
	switch {
	case cfg.ClipMode == "value":
		clip = seqflow.GradientClipConfig{Mode: "value", MaxValue: cfg.MaxGradValue}
	case cfg.MaxGradNorm > 0:
		clip = seqflow.GradientClipConfig{Mode: "norm", MaxNorm: cfg.MaxGradNorm}
	}

	return net.Compile(seqflow.CompileConfig{
		Optimizer:    opt,
		Loss:         seqflow.MSE(seqflow.MSEConfig{Reduction: "mean"}),
		GradientClip: clip,
	})
}

// ScheduleFor returns the learning rate schedule selected by cfg.
// The cosine schedule reaches zero one epoch after MaxEpoch, so the last
// epoch still updates.
func ScheduleFor(cfg Config) seqflow.Schedule {
	switch cfg.LRSchedule {
	case "step":
		return seqflow.StepDecay(seqflow.StepDecayConfig{StepSize: cfg.LRStep, Gamma: cfg.LRDecay})
	case "exp":
		return seqflow.ExponentialDecay(seqflow.ExponentialDecayConfig{Gamma: cfg.LRDecay})
	case "cosine":
		return seqflow.CosineAnnealing(seqflow.CosineAnnealingConfig{TMax: cfg.MaxEpoch + 1})
	default:
		return seqflow.ConstantLR()
	}
}
