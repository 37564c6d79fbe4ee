package seqflow

import "math"

// Schedule maps a 1-based epoch and the base learning rate to the rate used
// during that epoch. Implementations are pure, so resuming at any epoch
// yields the same rate.
type Schedule interface {
	Rate(epoch int, base float64) float64
	name() string
}

// ConstantSchedule keeps the base rate
type ConstantSchedule struct{}

func ConstantLR() Schedule { return ConstantSchedule{} }

func (ConstantSchedule) Rate(epoch int, base float64) float64 { return base }

func (ConstantSchedule) name() string { return "constant" }

// StepDecaySchedule multiplies the rate by Gamma every StepSize epochs
type StepDecaySchedule struct {
	StepSize int
	Gamma    float64
}

type StepDecayConfig struct {
	StepSize int
	Gamma    float64
}

func StepDecay(config StepDecayConfig) Schedule {
	return &StepDecaySchedule{StepSize: config.StepSize, Gamma: config.Gamma}
}

func (s *StepDecaySchedule) Rate(epoch int, base float64) float64 {
	if s.StepSize <= 0 {
		return base
	}
	return base * math.Pow(s.Gamma, float64((epoch-1)/s.StepSize))
}

func (s *StepDecaySchedule) name() string { return "step_decay" }

// ExponentialDecaySchedule multiplies the rate by Gamma every epoch
type ExponentialDecaySchedule struct {
	Gamma float64
}

type ExponentialDecayConfig struct {
	Gamma float64
}

func ExponentialDecay(config ExponentialDecayConfig) Schedule {
	return &ExponentialDecaySchedule{Gamma: config.Gamma}
}

func (e *ExponentialDecaySchedule) Rate(epoch int, base float64) float64 {
	return base * math.Pow(e.Gamma, float64(epoch-1))
}

func (e *ExponentialDecaySchedule) name() string { return "exponential_decay" }

// CosineAnnealingSchedule anneals from the base rate at epoch 1 down to
// EtaMin at epoch TMax and stays there
type CosineAnnealingSchedule struct {
	TMax   int
	EtaMin float64
}

type CosineAnnealingConfig struct {
	TMax   int
	EtaMin float64
}

func CosineAnnealing(config CosineAnnealingConfig) Schedule {
	return &CosineAnnealingSchedule{TMax: config.TMax, EtaMin: config.EtaMin}
}

func (c *CosineAnnealingSchedule) Rate(epoch int, base float64) float64 {
	if c.TMax <= 1 || epoch >= c.TMax {
		if c.TMax <= 1 && epoch <= 1 {
			return base
		}
		return c.EtaMin
	}
	progress := float64(epoch-1) / float64(c.TMax-1)
	return c.EtaMin + 0.5*(base-c.EtaMin)*(1+math.Cos(math.Pi*progress))
}

func (c *CosineAnnealingSchedule) name() string { return "cosine_annealing" }

// ScheduleName reports the schedule's identifier for logs
func ScheduleName(s Schedule) string { return s.name() }
