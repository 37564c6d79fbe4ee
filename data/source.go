package data

import (
	"fmt"

	seqflow "seqflow/src"
)

// Batch is one draw from a Source. Inputs is (B, rho, F) and Targets holds
// the label of every window position, (B, rho, L).
type Batch struct {
	Inputs  *seqflow.Tensor
	Targets *seqflow.Tensor
}

// LastTargets returns the (B, L) labels at the final window position
func (b *Batch) LastTargets() *seqflow.Tensor {
	shape := b.Targets.Shape()
	batch, rho, labels := shape[0], shape[1], shape[2]

	out := seqflow.NewTensor(batch, labels)
	src, dst := b.Targets.Data(), out.Data()
	for i := 0; i < batch; i++ {
		copy(dst[i*labels:(i+1)*labels], src[(i*rho+rho-1)*labels:])
	}
	return out
}

// Source produces sliding-window batches over a Series. Sample i of a batch
// covers records (cursor+i+t) mod N for t in [0, rho); after each batch the
// cursor moves forward one record per sample, wrapping at the end.
type Source struct {
	series    *Series
	batchSize int
	rho       int
	cursor    int
}

// NewSource creates a source with a fixed batch size and window length
func NewSource(series *Series, batchSize, rho int) (*Source, error) {
	if series == nil || series.Len() == 0 {
		return nil, fmt.Errorf("data: empty series")
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("data: batch size must be > 0, got %d", batchSize)
	}
	if rho <= 0 {
		return nil, fmt.Errorf("data: rho must be > 0, got %d", rho)
	}
	if rho > series.Len() {
		return nil, fmt.Errorf("data: rho %d exceeds the %d records in the series", rho, series.Len())
	}
	if batchSize > series.Len() {
		return nil, fmt.Errorf("data: batch size %d exceeds the %d records in the series", batchSize, series.Len())
	}
	return &Source{series: series, batchSize: batchSize, rho: rho}, nil
}

// Next returns the next batch and advances the cursor
func (s *Source) Next() *Batch {
	n := s.series.Len()
	f := s.series.FeatureDim()
	l := s.series.LabelDim()

	inputs := seqflow.NewTensor(s.batchSize, s.rho, f)
	targets := seqflow.NewTensor(s.batchSize, s.rho, l)
	in, tg := inputs.Data(), targets.Data()

	for i := 0; i < s.batchSize; i++ {
		for t := 0; t < s.rho; t++ {
			rec := (s.cursor + i + t) % n
			pos := i*s.rho + t
			copy(in[pos*f:(pos+1)*f], s.series.Inputs.RawRowView(rec))
			copy(tg[pos*l:(pos+1)*l], s.series.Labels.RawRowView(rec))
		}
	}

	s.cursor = (s.cursor + s.batchSize) % n
	return &Batch{Inputs: inputs, Targets: targets}
}

// Reset rewinds the cursor to the first record
func (s *Source) Reset() { s.cursor = 0 }

// Iterations is the number of batches in one pass, N / B
func (s *Source) Iterations() int { return s.series.Len() / s.batchSize }

// Size is the number of records
func (s *Source) Size() int { return s.series.Len() }

func (s *Source) FeatureDim() int { return s.series.FeatureDim() }
func (s *Source) LabelDim() int   { return s.series.LabelDim() }
func (s *Source) BatchSize() int  { return s.batchSize }
func (s *Source) Rho() int        { return s.rho }
