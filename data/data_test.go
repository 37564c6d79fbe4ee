package data

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// rampSeries has records r = 0..n-1 with features [r, 10r] and label 100r
func rampSeries(t *testing.T, n int) *Series {
	t.Helper()
	in := mat.NewDense(n, 2, nil)
	lb := mat.NewDense(n, 1, nil)
	for r := 0; r < n; r++ {
		in.Set(r, 0, float64(r))
		in.Set(r, 1, float64(10*r))
		lb.Set(r, 0, float64(100*r))
	}
	s, err := NewSeries(in, lb)
	if err != nil {
		t.Fatalf("NewSeries failed: %v", err)
	}
	return s
}

func TestSourceShapes(t *testing.T) {
	src, err := NewSource(rampSeries(t, 10), 4, 3)
	if err != nil {
		t.Fatalf("NewSource failed: %v", err)
	}

	b := src.Next()
	if got := b.Inputs.Shape(); len(got) != 3 || got[0] != 4 || got[1] != 3 || got[2] != 2 {
		t.Errorf("Inputs shape = %v, want [4 3 2]", got)
	}
	if got := b.Targets.Shape(); len(got) != 3 || got[0] != 4 || got[1] != 3 || got[2] != 1 {
		t.Errorf("Targets shape = %v, want [4 3 1]", got)
	}
	if got := b.LastTargets().Shape(); len(got) != 2 || got[0] != 4 || got[1] != 1 {
		t.Errorf("LastTargets shape = %v, want [4 1]", got)
	}

	if src.Iterations() != 2 {
		t.Errorf("Iterations = %d, want 10/4 = 2", src.Iterations())
	}
	if src.Size() != 10 || src.FeatureDim() != 2 || src.LabelDim() != 1 || src.BatchSize() != 4 || src.Rho() != 3 {
		t.Error("shape metadata does not match the series")
	}
}

func TestSourceWindows(t *testing.T) {
	src, err := NewSource(rampSeries(t, 5), 2, 3)
	if err != nil {
		t.Fatalf("NewSource failed: %v", err)
	}

	// sample i of the first batch starts at record i
	b := src.Next()
	in := b.Inputs.Data()
	wantFirst := []float64{0, 1, 2, 1, 2, 3} // feature 0 of each step
	for k, want := range wantFirst {
		if got := in[k*2]; got != want {
			t.Fatalf("batch 1 step %d = %v, want %v", k, got, want)
		}
	}
	last := b.LastTargets().Data()
	if last[0] != 200 || last[1] != 300 {
		t.Errorf("LastTargets = %v, want [200 300]", last)
	}

	// cursor moved by the batch size: samples start at 2 and 3 and wrap
	b = src.Next()
	in = b.Inputs.Data()
	wantSecond := []float64{2, 3, 4, 3, 4, 0}
	for k, want := range wantSecond {
		if got := in[k*2]; got != want {
			t.Fatalf("batch 2 step %d = %v, want %v", k, got, want)
		}
	}

	src.Reset()
	if got := src.Next().Inputs.Data()[0]; got != 0 {
		t.Errorf("after Reset first record = %v, want 0", got)
	}
}

func TestNewSourceErrors(t *testing.T) {
	s := rampSeries(t, 4)
	tests := []struct {
		name      string
		batchSize int
		rho       int
	}{
		{"ZeroBatch", 0, 2},
		{"ZeroRho", 2, 0},
		{"RhoExceedsRecords", 2, 5},
		{"BatchExceedsRecords", 5, 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewSource(s, tc.batchSize, tc.rho); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestReadCSV(t *testing.T) {
	t.Run("WithHeader", func(t *testing.T) {
		in := "a,b,c,y\n1,2,3,4\n5,6,7,8\n"
		s, err := ReadCSV(strings.NewReader(in), 1)
		if err != nil {
			t.Fatalf("ReadCSV failed: %v", err)
		}
		if s.Len() != 2 || s.FeatureDim() != 3 || s.LabelDim() != 1 {
			t.Fatalf("got %d records %d features %d labels", s.Len(), s.FeatureDim(), s.LabelDim())
		}
		if s.Inputs.At(1, 2) != 7 || s.Labels.At(1, 0) != 8 {
			t.Errorf("unexpected values %v / %v", mat.Formatted(s.Inputs), mat.Formatted(s.Labels))
		}
	})

	t.Run("NoHeaderTwoLabels", func(t *testing.T) {
		in := "# comment\n1,2,3,4\n5,6,7,8\n9,10,11,12\n"
		s, err := ReadCSV(strings.NewReader(in), 2)
		if err != nil {
			t.Fatalf("ReadCSV failed: %v", err)
		}
		if s.Len() != 3 || s.FeatureDim() != 2 || s.LabelDim() != 2 {
			t.Fatalf("got %d records %d features %d labels", s.Len(), s.FeatureDim(), s.LabelDim())
		}
		if s.Labels.At(2, 1) != 12 {
			t.Errorf("label = %v, want 12", s.Labels.At(2, 1))
		}
	})

	errs := map[string]struct {
		in        string
		labelCols int
	}{
		"Empty":         {"", 1},
		"HeaderOnly":    {"x,y\n", 1},
		"Ragged":        {"1,2,3\n4,5\n", 1},
		"NonNumeric":    {"1,2\n3,abc\n", 1},
		"MixedFirstRow": {"1.0,abc,2\n3,4,5\n", 1},
		"NoFeatures":    {"1,2\n3,4\n", 2},
		"ZeroLabelCols": {"1,2\n", 0},
	}
	for name, tc := range errs {
		t.Run(name, func(t *testing.T) {
			if _, err := ReadCSV(strings.NewReader(tc.in), tc.labelCols); err == nil {
				t.Error("Expected error")
			}
		})
	}

	t.Run("MixedFirstRowLine", func(t *testing.T) {
		_, err := ReadCSV(strings.NewReader("1.0,abc,2\n3,4,5\n"), 1)
		if err == nil || !strings.Contains(err.Error(), "line 1") {
			t.Errorf("error %v does not point at line 1", err)
		}
	})
}

func TestLoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "series.csv")
	if err := os.WriteFile(path, []byte("x,y\n0.5,1\n1.5,2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := LoadCSV(path, 1)
	if err != nil {
		t.Fatalf("LoadCSV failed: %v", err)
	}
	if s.Len() != 2 || s.Inputs.At(1, 0) != 1.5 {
		t.Errorf("unexpected series %v", mat.Formatted(s.Inputs))
	}

	if _, err := LoadCSV(filepath.Join(t.TempDir(), "missing.csv"), 1); err == nil {
		t.Error("Expected error for missing file")
	}
}
