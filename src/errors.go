package seqflow

import (
	"fmt"
	"math"
	"strings"
)

// TensorInfo captures tensor state for error reporting
type TensorInfo struct {
	Shape      []int
	Size       int
	NaNCount   int
	InfCount   int
	MinValue   float64
	MaxValue   float64
	BadIndices []int // First 10 corrupted indices
}

// Format returns a compact string representation
func (t *TensorInfo) Format() string {
	s := fmt.Sprintf("%v size=%d", t.Shape, t.Size)
	if t.NaNCount > 0 || t.InfCount > 0 {
		s += fmt.Sprintf(" (corrupt: %d NaN, %d Inf)", t.NaNCount, t.InfCount)
	} else {
		s += fmt.Sprintf(" range=[%.4f, %.4f]", t.MinValue, t.MaxValue)
	}
	return s
}

// FlowError is the structured error returned for shape and numeric failures
type FlowError struct {
	Component    string      // "LSTM", "Network", "MSE", ...
	ErrorType    string      // "shape mismatch", "NaN detected"
	LayerIndex   int         // 0-indexed position, -1 when not tied to a layer
	LayerName    string      // layer kind or ""
	Phase        string      // "build", "forward", "backward", "loss"
	InputInfo    *TensorInfo // nil if not relevant
	OutputInfo   *TensorInfo // nil if not relevant
	ExpectedInfo string      // what was expected
	Cause        string      // human-readable cause
}

// Error implements the error interface
func (e *FlowError) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "seqflow: %s %s", e.Component, e.ErrorType)
	if e.LayerIndex >= 0 {
		fmt.Fprintf(&b, " at layer %d", e.LayerIndex)
	}
	if e.LayerName != "" {
		fmt.Fprintf(&b, " %q", e.LayerName)
	}
	if e.Phase != "" {
		fmt.Fprintf(&b, " during %s", e.Phase)
	}
	b.WriteString("\n")

	if e.InputInfo != nil {
		fmt.Fprintf(&b, "  input:    %s\n", e.InputInfo.Format())
	}
	if e.OutputInfo != nil {
		fmt.Fprintf(&b, "  output:   %s\n", e.OutputInfo.Format())
	}
	if e.ExpectedInfo != "" {
		fmt.Fprintf(&b, "  expected: %s\n", e.ExpectedInfo)
	}

	fmt.Fprintf(&b, "  cause:    %s", e.Cause)

	return b.String()
}

// ScanTensor checks for NaN/Inf and collects stats
func ScanTensor(t *Tensor) *TensorInfo {
	if t == nil {
		return nil
	}

	info := &TensorInfo{
		Shape:      t.Shape(),
		Size:       len(t.data),
		MinValue:   math.Inf(1),
		MaxValue:   math.Inf(-1),
		BadIndices: make([]int, 0, 10),
	}

	for i, v := range t.data {
		switch {
		case math.IsNaN(v):
			info.NaNCount++
			if len(info.BadIndices) < 10 {
				info.BadIndices = append(info.BadIndices, i)
			}
		case math.IsInf(v, 0):
			info.InfCount++
			if len(info.BadIndices) < 10 {
				info.BadIndices = append(info.BadIndices, i)
			}
		default:
			info.MinValue = math.Min(info.MinValue, v)
			info.MaxValue = math.Max(info.MaxValue, v)
		}
	}

	// Handle empty or all-corrupt tensors
	if math.IsInf(info.MinValue, 1) {
		info.MinValue = 0
	}
	if math.IsInf(info.MaxValue, -1) {
		info.MaxValue = 0
	}

	return info
}

// shapeError reports a tensor whose shape does not match what a layer expects
func shapeError(component string, layerIndex int, phase string, got *Tensor, expected []int) *FlowError {
	return &FlowError{
		Component:    component,
		ErrorType:    "shape mismatch",
		LayerIndex:   layerIndex,
		LayerName:    component,
		Phase:        phase,
		InputInfo:    ScanTensor(got),
		ExpectedInfo: fmt.Sprintf("[batch %v]", expected),
		Cause:        fmt.Sprintf("got shape %v", got.shape),
	}
}

// nonFiniteError reports NaN/Inf values found in t
func nonFiniteError(component, phase string, t *Tensor) error {
	info := ScanTensor(t)
	if info.NaNCount == 0 && info.InfCount == 0 {
		return nil
	}
	kind := "NaN detected"
	if info.NaNCount == 0 {
		kind = "Inf detected"
	}
	return &FlowError{
		Component:  component,
		ErrorType:  kind,
		LayerIndex: -1,
		Phase:      phase,
		OutputInfo: info,
		Cause:      fmt.Sprintf("%d NaN, %d Inf values at indices %v - likely exploding gradients", info.NaNCount, info.InfCount, info.BadIndices),
	}
}

// errorf creates a formatted error
func errorf(format string, args ...interface{}) error {
	return fmt.Errorf("seqflow: "+format, args...)
}
