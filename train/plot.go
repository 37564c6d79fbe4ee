package train

import (
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// PlotFile is the regression plot written after epoch
func PlotFile(dir string, epoch int) string {
	return filepath.Join(dir, fmt.Sprintf("regression-%d.png", epoch))
}

// PlotRegression renders actual and predicted validation values of the
// first label column against the sample index
func PlotRegression(path string, epoch int, eval *EvalResult) error {
	if len(eval.Targets) == 0 {
		return fmt.Errorf("plot regression: no retained validation samples")
	}

	actual := make(plotter.XYs, len(eval.Targets))
	predicted := make(plotter.XYs, len(eval.Predictions))
	for i := range eval.Targets {
		actual[i] = plotter.XY{X: float64(i), Y: eval.Targets[i][0]}
		predicted[i] = plotter.XY{X: float64(i), Y: eval.Predictions[i][0]}
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Validation regression, epoch %d (MSE %.4g)", epoch, eval.Loss)
	p.X.Label.Text = "sample"
	p.Y.Label.Text = "value"
	p.Add(plotter.NewGrid())

	if err := plotutil.AddLines(p, "actual", actual, "predicted", predicted); err != nil {
		return fmt.Errorf("plot regression: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("plot regression: %w", err)
	}
	if err := p.Save(10*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("plot regression: save %s: %w", path, err)
	}
	return nil
}
