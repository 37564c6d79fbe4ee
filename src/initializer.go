package seqflow

import (
	"math"
	"math/rand"
)

// Initializer sets up initial weights for layers
type Initializer interface {
	initialize(t *Tensor, fanIn, fanOut int, rng *rand.Rand)
	name() string
}

// XavierUniformInit - Xavier/Glorot uniform initialization
type XavierUniformInit struct {
	Gain float64
}

func XavierUniform(gain float64) Initializer {
	return &XavierUniformInit{Gain: gain}
}

func (x *XavierUniformInit) initialize(t *Tensor, fanIn, fanOut int, rng *rand.Rand) {
	limit := x.Gain * math.Sqrt(6.0/float64(fanIn+fanOut))
	t.fillRandUniform(-limit, limit, rng)
}

func (x *XavierUniformInit) name() string { return "xavier_uniform" }

// ZerosInit - initialize with zeros
type ZerosInit struct{}

func Zeros() Initializer { return &ZerosInit{} }

func (z *ZerosInit) initialize(t *Tensor, fanIn, fanOut int, rng *rand.Rand) {
	t.fill(0)
}

func (z *ZerosInit) name() string { return "zeros" }

// RandomUniformInit - uniform in [MinVal, MaxVal)
type RandomUniformInit struct {
	MinVal float64
	MaxVal float64
}

func RandomUniform(minVal, maxVal float64) Initializer {
	return &RandomUniformInit{MinVal: minVal, MaxVal: maxVal}
}

// SymmetricUniform draws from [-r, r), the usual "uniform init range" setting
func SymmetricUniform(r float64) Initializer {
	return RandomUniform(-r, r)
}

func (r *RandomUniformInit) initialize(t *Tensor, fanIn, fanOut int, rng *rand.Rand) {
	t.fillRandUniform(r.MinVal, r.MaxVal, rng)
}

func (r *RandomUniformInit) name() string { return "random_uniform" }
