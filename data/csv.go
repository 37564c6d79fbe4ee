package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// LoadCSV reads a series from a CSV file. Each row is one record: the
// feature columns followed by labelCols label columns. A first row in which
// no cell is a number is treated as a header and skipped.
func LoadCSV(path string, labelCols int) (*Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("data: open %s: %w", path, err)
	}
	defer f.Close()

	s, err := ReadCSV(f, labelCols)
	if err != nil {
		return nil, fmt.Errorf("data: %s: %w", path, err)
	}
	return s, nil
}

// ReadCSV parses CSV records from r, see LoadCSV
func ReadCSV(r io.Reader, labelCols int) (*Series, error) {
	if labelCols <= 0 {
		return nil, fmt.Errorf("label column count must be > 0, got %d", labelCols)
	}

	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.TrimLeadingSpace = true

	var (
		inputs, labels []float64
		cols, rows     int
		first          = true
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		if first && isHeader(rec) {
			first = false
			continue
		}
		first = false

		values, err := parseRow(rec)
		if err != nil {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		if cols == 0 {
			cols = len(values)
			if labelCols >= cols {
				return nil, fmt.Errorf("%d label columns leave no features in %d-column rows", labelCols, cols)
			}
		}
		feat := cols - labelCols
		inputs = append(inputs, values[:feat]...)
		labels = append(labels, values[feat:]...)
		rows++
	}

	if rows == 0 {
		return nil, errors.New("no records")
	}

	return NewSeries(
		mat.NewDense(rows, cols-labelCols, inputs),
		mat.NewDense(rows, labelCols, labels),
	)
}

func parseRow(rec []string) ([]float64, error) {
	values := make([]float64, len(rec))
	for i, cell := range rec {
		v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
		if err != nil {
			return nil, fmt.Errorf("column %d: %q is not a number", i+1, cell)
		}
		values[i] = v
	}
	return values, nil
}

// isHeader reports whether none of the cells parse as numbers
func isHeader(rec []string) bool {
	for _, cell := range rec {
		if _, err := strconv.ParseFloat(strings.TrimSpace(cell), 64); err == nil {
			return false
		}
	}
	return true
}
