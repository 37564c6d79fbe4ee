// Package seqflow is a small neural network library for sequence
// regression in Go.
//
// It favours explicit configuration: layers are assembled with fluent
// builders, every initializer is named, and the optimizer, loss and
// clipping mode are passed at compile time. Dense algebra runs on gonum
// BLAS.
//
// Basic usage:
//
//	net, err := seqflow.NewNetwork(seqflow.NetworkConfig{Seed: 42}).
//		AddLayer(seqflow.Steps().Build()).
//		AddLayer(seqflow.LSTM(64).
//			WithReturnSequences(true).
//			WithInitializer(seqflow.XavierUniform(1.0)).
//			WithRecurrentInitializer(seqflow.XavierUniform(1.0)).
//			WithBiasInitializer(seqflow.Zeros()).
//			WithForgetBias(1.0).
//			Build()).
//		AddLayer(seqflow.Linear(1).
//			WithInitializer(seqflow.XavierUniform(1.0)).
//			WithBiasInitializer(seqflow.Zeros()).
//			WithBias(true).
//			Build()).
//		AddLayer(seqflow.LastStep().Build()).
//		Build([]int{rho, features})
//
//	err = net.Compile(seqflow.CompileConfig{
//		Optimizer: seqflow.Adam(seqflow.DefaultAdamConfig(0.01)),
//		Loss:      seqflow.MSE(seqflow.MSEConfig{Reduction: "mean"}),
//		GradientClip: seqflow.GradientClipConfig{
//			Mode:    "norm",
//			MaxNorm: 5,
//		},
//	})
//
//	loss, err := net.TrainBatch(inputs, targets)
package seqflow
