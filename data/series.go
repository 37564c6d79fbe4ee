// Package data turns tabular time series into fixed-size batches of
// sliding windows for sequence models.
package data

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Series is an in-memory time series of N records. Row i of Inputs holds the
// features of record i and row i of Labels its regression targets.
type Series struct {
	Inputs *mat.Dense
	Labels *mat.Dense
}

// NewSeries pairs inputs (N×F) with labels (N×L)
func NewSeries(inputs, labels *mat.Dense) (*Series, error) {
	if inputs == nil || labels == nil {
		return nil, errors.New("data: series needs inputs and labels")
	}
	ni, _ := inputs.Dims()
	nl, _ := labels.Dims()
	if ni != nl {
		return nil, fmt.Errorf("data: %d input records but %d label records", ni, nl)
	}
	return &Series{Inputs: inputs, Labels: labels}, nil
}

// Len is the number of records
func (s *Series) Len() int {
	n, _ := s.Inputs.Dims()
	return n
}

func (s *Series) FeatureDim() int {
	_, f := s.Inputs.Dims()
	return f
}

func (s *Series) LabelDim() int {
	_, l := s.Labels.Dims()
	return l
}
