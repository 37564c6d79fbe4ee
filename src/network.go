package seqflow

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Network is the main neural network container. All trainable parameters
// live in one contiguous vector and all gradients in another; the tensors
// held by each layer are views into them.
type Network struct {
	layers     []Layer
	optimizer  Optimizer
	loss       Loss
	gradClip   GradientClipConfig
	compiled   bool
	built      bool
	rng        *rand.Rand
	inputShape []int
	outShape   []int
	params     []float64
	grads      []float64
}

// NetworkBuilder for fluent API
type NetworkBuilder struct {
	network *Network
	err     error
}

// NewNetwork creates a new network builder
func NewNetwork(config NetworkConfig) *NetworkBuilder {
	return &NetworkBuilder{
		network: &Network{
			layers: make([]Layer, 0),
			rng:    rand.New(rand.NewSource(config.Seed)),
		},
	}
}

// AddLayer adds a layer to the network
func (n *NetworkBuilder) AddLayer(layer Layer) *NetworkBuilder {
	if n.err != nil {
		return n
	}
	if layer == nil {
		n.err = errors.New("seqflow: nil layer")
		return n
	}
	n.network.layers = append(n.network.layers, layer)
	return n
}

// Build finalizes the network structure for inputs of inputShape (batch
// dimension excluded) and packs the parameters into flat storage.
func (n *NetworkBuilder) Build(inputShape []int) (*Network, error) {
	if n.err != nil {
		return nil, n.err
	}
	if len(n.network.layers) == 0 {
		return nil, errors.New("seqflow: network must have at least one layer")
	}
	if len(inputShape) == 0 {
		return nil, errors.New("seqflow: inputShape must be specified")
	}

	net := n.network
	net.inputShape = append([]int(nil), inputShape...)

	currentShape := net.inputShape
	for i, layer := range net.layers {
		if err := layer.build(currentShape, net.rng); err != nil {
			return nil, errorf("layer %d (%s): %w", i, layer.name(), err)
		}
		if outShape := layer.outputShape(); outShape != nil {
			currentShape = outShape
		}
	}
	net.outShape = append([]int(nil), currentShape...)

	net.flatten()
	net.built = true
	return net, nil
}

// flatten moves every parameter and gradient tensor into the network's
// contiguous vectors and repoints the tensors at their slots
func (n *Network) flatten() {
	total := 0
	for _, layer := range n.layers {
		for _, p := range layer.parameters() {
			total += p.Size()
		}
	}

	n.params = make([]float64, total)
	n.grads = make([]float64, total)

	off := 0
	for _, layer := range n.layers {
		params := layer.parameters()
		grads := layer.gradients()
		for j, p := range params {
			size := p.Size()
			copy(n.params[off:], p.data)
			p.data = n.params[off : off+size : off+size]
			grads[j].data = n.grads[off : off+size : off+size]
			off += size
		}
	}
}

// Compile configures optimizer, loss and gradient clipping
func (n *Network) Compile(config CompileConfig) error {
	if !n.built {
		return errors.New("seqflow: network must be built before compiling")
	}
	if err := ValidateCompileConfig(config); err != nil {
		return err
	}

	n.optimizer = config.Optimizer
	n.optimizer.init(len(n.params))
	n.loss = config.Loss
	n.gradClip = config.GradientClip
	n.compiled = true

	return nil
}

// layerError tags err with the failing layer's position
func (n *Network) layerError(i int, err error) error {
	var fe *FlowError
	if errors.As(err, &fe) {
		fe.LayerIndex = i
		fe.LayerName = n.layers[i].name()
		return fe
	}
	return errorf("layer %d (%s): %w", i, n.layers[i].name(), err)
}

func (n *Network) checkInput(x *Tensor) error {
	if x == nil || len(x.shape) != len(n.inputShape)+1 || !sameShape(x.shape[1:], n.inputShape) {
		return &FlowError{
			Component:    "Network",
			ErrorType:    "shape mismatch",
			LayerIndex:   -1,
			Phase:        "forward",
			InputInfo:    ScanTensor(x),
			ExpectedInfo: fmt.Sprintf("[batch %v]", n.inputShape),
			Cause:        "input does not match the shape the network was built for",
		}
	}
	return nil
}

// Forward runs every layer in order. training enables dropout.
func (n *Network) Forward(x *Tensor, training bool) (*Tensor, error) {
	if !n.built {
		return nil, errors.New("seqflow: network not built")
	}
	if err := n.checkInput(x); err != nil {
		return nil, err
	}

	output := x
	var err error
	for i, layer := range n.layers {
		output, err = layer.forward(output, training)
		if err != nil {
			return nil, n.layerError(i, err)
		}
	}
	return output, nil
}

func (n *Network) backward(gradOutput *Tensor) error {
	var err error
	for i := len(n.layers) - 1; i >= 0; i-- {
		gradOutput, err = n.layers[i].backward(gradOutput)
		if err != nil {
			return n.layerError(i, err)
		}
	}
	return nil
}

// checkGradients reports the first layer whose gradients hold NaN or Inf
func (n *Network) checkGradients() error {
	for i, layer := range n.layers {
		for _, g := range layer.gradients() {
			if err := nonFiniteError(layer.name(), "backward", g); err != nil {
				return n.layerError(i, err)
			}
		}
	}
	return nil
}

func (n *Network) computeLoss(out, y *Tensor) (float64, error) {
	if y == nil || !sameShape(out.shape, y.shape) {
		return 0, &FlowError{
			Component:    n.loss.name(),
			ErrorType:    "shape mismatch",
			LayerIndex:   -1,
			Phase:        "loss",
			InputInfo:    ScanTensor(y),
			OutputInfo:   ScanTensor(out),
			ExpectedInfo: fmt.Sprintf("targets shaped %v", out.shape),
			Cause:        "targets do not match network output",
		}
	}
	loss := n.loss.compute(out, y)
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return loss, &FlowError{
			Component:  n.loss.name(),
			ErrorType:  "non-finite loss",
			LayerIndex: -1,
			Phase:      "loss",
			OutputInfo: ScanTensor(out),
			Cause:      fmt.Sprintf("loss evaluated to %v - lower the learning rate or clip gradients", loss),
		}
	}
	return loss, nil
}

// TrainBatch performs one optimization step on a batch and returns the loss
// measured before the update.
func (n *Network) TrainBatch(x, y *Tensor) (float64, error) {
	if !n.compiled {
		return 0, errors.New("seqflow: network must be compiled before training")
	}

	n.ZeroGrad()

	out, err := n.Forward(x, true)
	if err != nil {
		return 0, err
	}
	loss, err := n.computeLoss(out, y)
	if err != nil {
		return loss, err
	}

	gradOutput := NewTensor(out.shape...)
	n.loss.gradient(out, y, gradOutput)
	if err := n.backward(gradOutput); err != nil {
		return loss, err
	}
	if err := n.checkGradients(); err != nil {
		return loss, err
	}

	switch n.gradClip.Mode {
	case "norm":
		n.ClipGradNorm(n.gradClip.MaxNorm)
	case "value":
		n.clipGradValue(n.gradClip.MaxValue)
	}

	n.optimizer.step(n.params, n.grads)
	return loss, nil
}

// EvalBatch runs inference on a batch and returns predictions and loss.
// Parameters are left untouched.
func (n *Network) EvalBatch(x, y *Tensor) (*Tensor, float64, error) {
	if !n.compiled {
		return nil, 0, errors.New("seqflow: network must be compiled before evaluation")
	}
	out, err := n.Forward(x, false)
	if err != nil {
		return nil, 0, err
	}
	loss, err := n.computeLoss(out, y)
	if err != nil {
		return out, loss, err
	}
	return out, loss, nil
}

// Predict runs inference on inputs
func (n *Network) Predict(x *Tensor) (*Tensor, error) {
	return n.Forward(x, false)
}

// ZeroGrad clears the gradient vector
func (n *Network) ZeroGrad() {
	for i := range n.grads {
		n.grads[i] = 0
	}
}

// ClipGradNorm rescales the gradient vector so its L2 norm is at most
// maxNorm and returns the norm before clipping
func (n *Network) ClipGradNorm(maxNorm float64) float64 {
	norm := floats.Norm(n.grads, 2)
	if norm > maxNorm && norm > 0 {
		floats.Scale(maxNorm/norm, n.grads)
	}
	return norm
}

func (n *Network) clipGradValue(maxValue float64) {
	for i, g := range n.grads {
		n.grads[i] = math.Max(-maxValue, math.Min(maxValue, g))
	}
}

// Parameters returns the live flat parameter vector
func (n *Network) Parameters() []float64 { return n.params }

// Gradients returns the live flat gradient vector
func (n *Network) Gradients() []float64 { return n.grads }

func (n *Network) NumParameters() int { return len(n.params) }

// InputShape excludes the batch dimension
func (n *Network) InputShape() []int { return append([]int(nil), n.inputShape...) }

// OutputShape excludes the batch dimension
func (n *Network) OutputShape() []int { return append([]int(nil), n.outShape...) }

func (n *Network) Optimizer() Optimizer { return n.optimizer }

// Summary prints network architecture
func (n *Network) Summary() string {
	var b strings.Builder
	b.WriteString("seqflow Network Summary\n")
	b.WriteString("=======================\n")

	for i, layer := range n.layers {
		layerParams := 0
		for _, p := range layer.parameters() {
			layerParams += p.Size()
		}
		shape := layer.outputShape()
		if shape == nil {
			shape = []int{}
		}
		fmt.Fprintf(&b, "Layer %d: %-10s out=%v - %d params\n", i+1, layer.name(), shape, layerParams)
	}
	b.WriteString("=======================\n")
	fmt.Fprintf(&b, "Total parameters: %d\n", len(n.params))

	return b.String()
}
