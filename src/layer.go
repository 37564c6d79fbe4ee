package seqflow

import (
	"errors"
	"math/rand"
)

// Layer is the base interface for all layers. Shapes passed to build and
// returned by outputShape exclude the batch dimension.
type Layer interface {
	forward(input *Tensor, training bool) (*Tensor, error)
	backward(gradOutput *Tensor) (*Tensor, error)
	parameters() []*Tensor
	gradients() []*Tensor
	paramNames() []string
	build(inputShape []int, rng *rand.Rand) error
	outputShape() []int
	name() string
}

// LinearLayer - affine projection over the last dimension. A [steps, features]
// input is projected independently at every time step.
type LinearLayer struct {
	units       int
	activation  Activation
	initializer Initializer
	biasInit    Initializer
	useBias     bool
	weights     *Tensor
	bias        *Tensor
	gradW       *Tensor
	gradB       *Tensor
	input       *Tensor
	preAct      *Tensor
	inputShape  []int
	fanIn       int
	built       bool
}

// LinearBuilder for fluent API
type LinearBuilder struct {
	layer *LinearLayer
}

func Linear(units int) *LinearBuilder {
	return &LinearBuilder{
		layer: &LinearLayer{
			units:      units,
			activation: Identity(),
		},
	}
}

func (b *LinearBuilder) WithActivation(act Activation) *LinearBuilder {
	b.layer.activation = act
	return b
}

func (b *LinearBuilder) WithInitializer(init Initializer) *LinearBuilder {
	b.layer.initializer = init
	return b
}

func (b *LinearBuilder) WithBiasInitializer(init Initializer) *LinearBuilder {
	b.layer.biasInit = init
	return b
}

func (b *LinearBuilder) WithBias(useBias bool) *LinearBuilder {
	b.layer.useBias = useBias
	return b
}

func (b *LinearBuilder) Build() Layer {
	return b.layer
}

func (d *LinearLayer) build(inputShape []int, rng *rand.Rand) error {
	if len(inputShape) == 0 || len(inputShape) > 2 {
		return errorf("Linear requires input shape [features] or [steps, features], got %v", inputShape)
	}
	if d.units <= 0 {
		return errorf("Linear units must be > 0, got %d", d.units)
	}
	if d.initializer == nil {
		return errors.New("seqflow: Linear requires initializer - use WithInitializer()")
	}
	if d.activation == nil {
		return errors.New("seqflow: Linear requires activation - use WithActivation()")
	}
	if d.useBias && d.biasInit == nil {
		return errors.New("seqflow: Linear with bias requires bias initializer - use WithBiasInitializer()")
	}

	d.fanIn = inputShape[len(inputShape)-1]
	d.inputShape = append([]int(nil), inputShape...)

	d.weights = NewTensor(d.fanIn, d.units)
	d.initializer.initialize(d.weights, d.fanIn, d.units, rng)
	d.gradW = NewTensor(d.fanIn, d.units)

	if d.useBias {
		d.bias = NewTensor(d.units)
		d.biasInit.initialize(d.bias, d.fanIn, d.units, rng)
		d.gradB = NewTensor(d.units)
	}

	d.built = true
	return nil
}

func (d *LinearLayer) forward(input *Tensor, training bool) (*Tensor, error) {
	if !d.built {
		return nil, errors.New("seqflow: layer not built - call Build() first")
	}
	if !sameShape(input.shape[1:], d.inputShape) {
		return nil, shapeError("Linear", -1, "forward", input, d.inputShape)
	}

	rows := input.Size() / d.fanIn
	outShape := append([]int{input.shape[0]}, d.outputShape()...)

	d.input = input
	d.preAct = NewTensor(outShape...)
	output := NewTensor(outShape...)

	// Y = X @ W (+ b)
	gemm(false, false, general(input.data, rows, d.fanIn), general(d.weights.data, d.fanIn, d.units), 0, general(d.preAct.data, rows, d.units))
	if d.useBias {
		addRowVec(d.preAct.data, d.bias.data)
	}

	d.activation.forward(d.preAct.data, output.data)
	return output, nil
}

func (d *LinearLayer) backward(gradOutput *Tensor) (*Tensor, error) {
	if d.input == nil {
		return nil, errors.New("seqflow: backward called before forward")
	}

	rows := d.input.Size() / d.fanIn

	gradPreAct := NewTensor(gradOutput.shape...)
	d.activation.backward(d.preAct.data, gradOutput.data, gradPreAct.data)

	// dL/dW += X^T @ dL/dY
	gemm(true, false, general(d.input.data, rows, d.fanIn), general(gradPreAct.data, rows, d.units), 1, general(d.gradW.data, d.fanIn, d.units))

	if d.useBias {
		sumRowsInto(gradPreAct.data, d.gradB.data)
	}

	// dL/dX = dL/dY @ W^T
	gradInput := NewTensor(d.input.shape...)
	gemm(false, true, general(gradPreAct.data, rows, d.units), general(d.weights.data, d.fanIn, d.units), 0, general(gradInput.data, rows, d.fanIn))

	return gradInput, nil
}

func (d *LinearLayer) parameters() []*Tensor {
	if d.useBias {
		return []*Tensor{d.weights, d.bias}
	}
	return []*Tensor{d.weights}
}

func (d *LinearLayer) gradients() []*Tensor {
	if d.useBias {
		return []*Tensor{d.gradW, d.gradB}
	}
	return []*Tensor{d.gradW}
}

func (d *LinearLayer) paramNames() []string {
	if d.useBias {
		return []string{"weight", "bias"}
	}
	return []string{"weight"}
}

func (d *LinearLayer) outputShape() []int {
	out := append([]int(nil), d.inputShape...)
	out[len(out)-1] = d.units
	return out
}

func (d *LinearLayer) name() string { return "linear" }

// DropoutLayer - randomly zeros elements during training
type DropoutLayer struct {
	rate  float64
	mask  []float64
	rng   *rand.Rand
	built bool
}

type DropoutBuilder struct {
	layer *DropoutLayer
}

func Dropout(rate float64) *DropoutBuilder {
	return &DropoutBuilder{
		layer: &DropoutLayer{
			rate: rate,
		},
	}
}

func (b *DropoutBuilder) Build() Layer {
	return b.layer
}

func (d *DropoutLayer) build(inputShape []int, rng *rand.Rand) error {
	if d.rate < 0 || d.rate >= 1 {
		return errors.New("seqflow: dropout rate must be in [0, 1)")
	}
	d.rng = rng
	d.built = true
	return nil
}

func (d *DropoutLayer) forward(input *Tensor, training bool) (*Tensor, error) {
	if !training || d.rate == 0 {
		d.mask = nil
		return input, nil
	}

	output := NewTensor(input.shape...)
	d.mask = make([]float64, len(input.data))

	scale := 1.0 / (1.0 - d.rate)
	for i, v := range input.data {
		if d.rng.Float64() >= d.rate {
			d.mask[i] = scale
			output.data[i] = v * scale
		}
	}
	return output, nil
}

func (d *DropoutLayer) backward(gradOutput *Tensor) (*Tensor, error) {
	if d.mask == nil {
		return gradOutput, nil
	}
	gradInput := NewTensor(gradOutput.shape...)
	for i, g := range gradOutput.data {
		gradInput.data[i] = g * d.mask[i]
	}
	return gradInput, nil
}

func (d *DropoutLayer) parameters() []*Tensor { return nil }
func (d *DropoutLayer) gradients() []*Tensor  { return nil }
func (d *DropoutLayer) paramNames() []string  { return nil }
func (d *DropoutLayer) outputShape() []int    { return nil }
func (d *DropoutLayer) name() string          { return "dropout" }

// StepsLayer - splits an input of [steps, d1, d2, ...] into a sequence of
// per-step feature vectors [steps, d1*d2*...]
type StepsLayer struct {
	inputShape []int
	built      bool
}

type StepsBuilder struct {
	layer *StepsLayer
}

func Steps() *StepsBuilder {
	return &StepsBuilder{layer: &StepsLayer{}}
}

func (b *StepsBuilder) Build() Layer {
	return b.layer
}

func (s *StepsLayer) build(inputShape []int, rng *rand.Rand) error {
	if len(inputShape) < 2 {
		return errorf("Steps requires input shape [steps, features...], got %v", inputShape)
	}
	s.inputShape = append([]int(nil), inputShape...)
	s.built = true
	return nil
}

func (s *StepsLayer) forward(input *Tensor, training bool) (*Tensor, error) {
	if !sameShape(input.shape[1:], s.inputShape) {
		return nil, shapeError("Steps", -1, "forward", input, s.inputShape)
	}
	out := s.outputShape()
	return input.Reshape(input.shape[0], out[0], out[1])
}

func (s *StepsLayer) backward(gradOutput *Tensor) (*Tensor, error) {
	return gradOutput.Reshape(append([]int{gradOutput.shape[0]}, s.inputShape...)...)
}

func (s *StepsLayer) parameters() []*Tensor { return nil }
func (s *StepsLayer) gradients() []*Tensor  { return nil }
func (s *StepsLayer) paramNames() []string  { return nil }

func (s *StepsLayer) outputShape() []int {
	return []int{s.inputShape[0], product(s.inputShape[1:])}
}

func (s *StepsLayer) name() string { return "steps" }

// LastStepLayer - selects the final time step of a [steps, features] sequence
type LastStepLayer struct {
	steps    int
	features int
	built    bool
}

type LastStepBuilder struct {
	layer *LastStepLayer
}

func LastStep() *LastStepBuilder {
	return &LastStepBuilder{layer: &LastStepLayer{}}
}

func (b *LastStepBuilder) Build() Layer {
	return b.layer
}

func (l *LastStepLayer) build(inputShape []int, rng *rand.Rand) error {
	if len(inputShape) != 2 {
		return errorf("LastStep requires input shape [steps, features], got %v", inputShape)
	}
	l.steps = inputShape[0]
	l.features = inputShape[1]
	l.built = true
	return nil
}

func (l *LastStepLayer) forward(input *Tensor, training bool) (*Tensor, error) {
	if len(input.shape) != 3 || input.shape[1] != l.steps || input.shape[2] != l.features {
		return nil, shapeError("LastStep", -1, "forward", input, []int{l.steps, l.features})
	}
	batch := input.shape[0]
	output := NewTensor(batch, l.features)
	last := (l.steps - 1) * l.features
	for b := 0; b < batch; b++ {
		copy(output.Row(b), input.data[b*l.steps*l.features+last:])
	}
	return output, nil
}

func (l *LastStepLayer) backward(gradOutput *Tensor) (*Tensor, error) {
	batch := gradOutput.shape[0]
	gradInput := NewTensor(batch, l.steps, l.features)
	last := (l.steps - 1) * l.features
	for b := 0; b < batch; b++ {
		copy(gradInput.data[b*l.steps*l.features+last:], gradOutput.Row(b))
	}
	return gradInput, nil
}

func (l *LastStepLayer) parameters() []*Tensor { return nil }
func (l *LastStepLayer) gradients() []*Tensor  { return nil }
func (l *LastStepLayer) paramNames() []string  { return nil }
func (l *LastStepLayer) outputShape() []int    { return []int{l.features} }
func (l *LastStepLayer) name() string          { return "last_step" }
