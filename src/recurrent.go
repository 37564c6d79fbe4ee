package seqflow

import (
	"errors"
	"math"
	"math/rand"
)

// LSTMLayer - Long Short-Term Memory
// The four gates share fused weight matrices with columns ordered
// input, forget, cell candidate, output.
type LSTMLayer struct {
	units           int
	returnSequences bool
	initializer     Initializer
	recurrentInit   Initializer
	biasInit        Initializer
	forgetBias      float64
	hasForgetBias   bool

	W *Tensor // Input weights [inputDim, 4*units]
	U *Tensor // Recurrent weights [units, 4*units]
	b *Tensor // Biases [4*units]

	dW, dU, db *Tensor

	// Cache for backward pass
	inputs       *Tensor
	hiddenStates []*Tensor // [seqLen+1] of [batch, units]
	cellStates   []*Tensor // [seqLen+1] of [batch, units]
	gates        []*Tensor // [seqLen] of activated gates [batch, 4*units]

	inputDim int
	seqLen   int
	built    bool
}

type LSTMBuilder struct {
	layer *LSTMLayer
}

func LSTM(units int) *LSTMBuilder {
	return &LSTMBuilder{
		layer: &LSTMLayer{
			units:           units,
			returnSequences: false,
		},
	}
}

func (b *LSTMBuilder) WithReturnSequences(ret bool) *LSTMBuilder {
	b.layer.returnSequences = ret
	return b
}

func (b *LSTMBuilder) WithInitializer(init Initializer) *LSTMBuilder {
	b.layer.initializer = init
	return b
}

func (b *LSTMBuilder) WithRecurrentInitializer(init Initializer) *LSTMBuilder {
	b.layer.recurrentInit = init
	return b
}

func (b *LSTMBuilder) WithBiasInitializer(init Initializer) *LSTMBuilder {
	b.layer.biasInit = init
	return b
}

// WithForgetBias overrides the forget gate bias after bias initialization
func (b *LSTMBuilder) WithForgetBias(v float64) *LSTMBuilder {
	b.layer.forgetBias = v
	b.layer.hasForgetBias = true
	return b
}

func (b *LSTMBuilder) Build() Layer {
	return b.layer
}

func (l *LSTMLayer) build(inputShape []int, rng *rand.Rand) error {
	if len(inputShape) != 2 {
		return errors.New("seqflow: LSTM requires input shape [seqLen, features]")
	}
	if l.units <= 0 {
		return errorf("LSTM units must be > 0, got %d", l.units)
	}
	if l.initializer == nil {
		return errors.New("seqflow: LSTM requires initializer")
	}
	if l.recurrentInit == nil {
		return errors.New("seqflow: LSTM requires recurrent initializer")
	}
	if l.biasInit == nil {
		return errors.New("seqflow: LSTM requires bias initializer")
	}

	l.seqLen = inputShape[0]
	l.inputDim = inputShape[1]
	gates := 4 * l.units

	l.W = NewTensor(l.inputDim, gates)
	l.initializer.initialize(l.W, l.inputDim, l.units, rng)

	l.U = NewTensor(l.units, gates)
	l.recurrentInit.initialize(l.U, l.units, l.units, rng)

	l.b = NewTensor(gates)
	l.biasInit.initialize(l.b, l.inputDim, l.units, rng)
	if l.hasForgetBias {
		for u := l.units; u < 2*l.units; u++ {
			l.b.data[u] = l.forgetBias
		}
	}

	l.dW = NewTensor(l.inputDim, gates)
	l.dU = NewTensor(l.units, gates)
	l.db = NewTensor(gates)

	l.built = true
	return nil
}

// stepView is the [batch, width] slice of time step t inside a
// [batch, seqLen, width] tensor, addressed with a row stride.
func stepView(t *Tensor, step, width int) (data []float64, rows, stride int) {
	rows = t.shape[0]
	stride = t.shape[1] * width
	return t.data[step*width:], rows, stride
}

func (l *LSTMLayer) forward(input *Tensor, training bool) (*Tensor, error) {
	if !l.built {
		return nil, errors.New("seqflow: LSTM not built")
	}
	if len(input.shape) != 3 || input.shape[1] != l.seqLen || input.shape[2] != l.inputDim {
		return nil, shapeError("LSTM", -1, "forward", input, []int{l.seqLen, l.inputDim})
	}

	batchSize := input.shape[0]
	H := l.units

	l.inputs = input
	l.hiddenStates = make([]*Tensor, l.seqLen+1)
	l.cellStates = make([]*Tensor, l.seqLen+1)
	l.gates = make([]*Tensor, l.seqLen)

	// h_0 and c_0 start at zero
	l.hiddenStates[0] = NewTensor(batchSize, H)
	l.cellStates[0] = NewTensor(batchSize, H)

	for t := 0; t < l.seqLen; t++ {
		xt, rows, stride := stepView(input, t, l.inputDim)
		hPrev := l.hiddenStates[t]
		cPrev := l.cellStates[t]

		// z = x_t @ W + h_{t-1} @ U + b
		z := NewTensor(batchSize, 4*H)
		gemm(false, false,
			blasView(xt, rows, l.inputDim, stride),
			general(l.W.data, l.inputDim, 4*H), 0,
			general(z.data, batchSize, 4*H))
		gemm(false, false,
			general(hPrev.data, batchSize, H),
			general(l.U.data, H, 4*H), 1,
			general(z.data, batchSize, 4*H))
		addRowVec(z.data, l.b.data)

		cNew := NewTensor(batchSize, H)
		hNew := NewTensor(batchSize, H)
		for b := 0; b < batchSize; b++ {
			g := z.data[b*4*H : (b+1)*4*H]
			for u := 0; u < H; u++ {
				g[u] = sigmoid(g[u])           // input gate
				g[H+u] = sigmoid(g[H+u])       // forget gate
				g[2*H+u] = math.Tanh(g[2*H+u]) // cell candidate
				g[3*H+u] = sigmoid(g[3*H+u])   // output gate

				// C_t = f ⊙ C_{t-1} + i ⊙ c̃
				c := g[H+u]*cPrev.data[b*H+u] + g[u]*g[2*H+u]
				cNew.data[b*H+u] = c
				// h_t = o ⊙ tanh(C_t)
				hNew.data[b*H+u] = g[3*H+u] * math.Tanh(c)
			}
		}

		l.gates[t] = z
		l.cellStates[t+1] = cNew
		l.hiddenStates[t+1] = hNew
	}

	// NaN/Inf in the gates propagates into the final cell state
	if err := nonFiniteError("LSTM", "forward", l.cellStates[l.seqLen]); err != nil {
		return nil, err
	}

	if l.returnSequences {
		output := NewTensor(batchSize, l.seqLen, H)
		for t := 0; t < l.seqLen; t++ {
			h := l.hiddenStates[t+1]
			for b := 0; b < batchSize; b++ {
				copy(output.data[(b*l.seqLen+t)*H:], h.Row(b))
			}
		}
		return output, nil
	}

	return l.hiddenStates[l.seqLen], nil
}

func (l *LSTMLayer) backward(gradOutput *Tensor) (*Tensor, error) {
	if l.inputs == nil {
		return nil, errors.New("seqflow: backward called before forward")
	}

	batchSize := l.inputs.shape[0]
	H := l.units

	gradInput := NewTensor(l.inputs.shape...)
	dh := NewTensor(batchSize, H)
	dc := NewTensor(batchSize, H)
	dz := NewTensor(batchSize, 4*H)

	if !l.returnSequences {
		copy(dh.data, gradOutput.data)
	}

	for t := l.seqLen - 1; t >= 0; t-- {
		if l.returnSequences {
			for b := 0; b < batchSize; b++ {
				row := dh.data[b*H : (b+1)*H]
				src := gradOutput.data[(b*l.seqLen+t)*H:]
				for u := range row {
					row[u] += src[u]
				}
			}
		}

		gates := l.gates[t]
		cNew := l.cellStates[t+1]
		cPrev := l.cellStates[t]

		for b := 0; b < batchSize; b++ {
			g := gates.data[b*4*H : (b+1)*4*H]
			d := dz.data[b*4*H : (b+1)*4*H]
			for u := 0; u < H; u++ {
				i, f, cCand, o := g[u], g[H+u], g[2*H+u], g[3*H+u]
				dhVal := dh.data[b*H+u]
				tanhC := math.Tanh(cNew.data[b*H+u])

				// dL/dC = dL/dC_{t+1} * f_{t+1} + dL/dh * o * (1 - tanh²(C))
				dcVal := dc.data[b*H+u] + dhVal*o*(1-tanhC*tanhC)

				d[u] = dcVal * cCand * i * (1 - i)
				d[H+u] = dcVal * cPrev.data[b*H+u] * f * (1 - f)
				d[2*H+u] = dcVal * i * (1 - cCand*cCand)
				d[3*H+u] = dhVal * tanhC * o * (1 - o)

				dc.data[b*H+u] = dcVal * f
			}
		}

		xt, rows, stride := stepView(l.inputs, t, l.inputDim)

		// dW += x_t^T @ dz, dU += h_{t-1}^T @ dz, db += sum(dz)
		gemm(true, false,
			blasView(xt, rows, l.inputDim, stride),
			general(dz.data, batchSize, 4*H), 1,
			general(l.dW.data, l.inputDim, 4*H))
		gemm(true, false,
			general(l.hiddenStates[t].data, batchSize, H),
			general(dz.data, batchSize, 4*H), 1,
			general(l.dU.data, H, 4*H))
		sumRowsInto(dz.data, l.db.data)

		// dx_t = dz @ W^T, dh_{t-1} = dz @ U^T
		gx, _, _ := stepView(gradInput, t, l.inputDim)
		gemm(false, true,
			general(dz.data, batchSize, 4*H),
			general(l.W.data, l.inputDim, 4*H), 0,
			blasView(gx, rows, l.inputDim, stride))
		gemm(false, true,
			general(dz.data, batchSize, 4*H),
			general(l.U.data, H, 4*H), 0,
			general(dh.data, batchSize, H))
	}

	return gradInput, nil
}

func (l *LSTMLayer) parameters() []*Tensor {
	return []*Tensor{l.W, l.U, l.b}
}

func (l *LSTMLayer) gradients() []*Tensor {
	return []*Tensor{l.dW, l.dU, l.db}
}

func (l *LSTMLayer) paramNames() []string {
	return []string{"weight_ih", "weight_hh", "bias"}
}

func (l *LSTMLayer) outputShape() []int {
	if l.returnSequences {
		return []int{l.seqLen, l.units}
	}
	return []int{l.units}
}

func (l *LSTMLayer) name() string { return "lstm" }
