// Package train wires datasets, a stacked LSTM network and the per-epoch
// train/evaluate/checkpoint cycle together.
package train

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// ErrUsage marks configuration errors caused by bad command-line input
var ErrUsage = errors.New("usage error")

// SnapshotFile is the name of the checkpoint inside SnapshotDir
const SnapshotFile = "model.snap"

// Config holds run parameters. It is filled once at startup and treated as
// read-only afterwards.
type Config struct {
	TrainPath      string
	ValPath        string
	LearningRate   float64
	Momentum       float64
	BatchSize      int
	MaxEpoch       int
	Uniform        float64
	Rho            int
	HiddenSize     int
	Depth          int
	DropoutProb    float64
	PrintEvery     int
	TestEvery      int
	LogPath        string
	SavePath       string
	SaveEvery      int
	PlotRegression int

	LabelCols    int
	ClipMode     string  // "norm" or "value"
	MaxGradNorm  float64 // 0 disables norm clipping
	MaxGradValue float64
	Nesterov     bool
	Optimizer    string // "adam" or "sgd"
	LRSchedule   string // "constant", "step", "exp" or "cosine"
	LRDecay      float64
	LRStep       int
	WeightDecay  float64 // L2 penalty applied by the optimizer
	Seed         int64
	PlotPath     string
	RunDB        string // SQLite run journal, "" disables
	Verbose      bool

	// SnapshotDir is set by CreateSnapshotDir
	SnapshotDir string
}

// DefaultConfig returns the defaults of every flag
func DefaultConfig() Config {
	return Config{
		LearningRate:   0.01,
		Momentum:       0.9,
		BatchSize:      32,
		MaxEpoch:       1000,
		Uniform:        0.1,
		Rho:            5,
		HiddenSize:     200,
		Depth:          1,
		DropoutProb:    0.5,
		PrintEvery:     0,
		TestEvery:      1,
		LogPath:        "./log.txt",
		SavePath:       "./snapshots",
		SaveEvery:      0,
		PlotRegression: 0,
		LabelCols:      1,
		ClipMode:       "norm",
		MaxGradNorm:    5,
		MaxGradValue:   1,
		Optimizer:      "adam",
		LRSchedule:     "constant",
		LRDecay:        0.5,
		LRStep:         10,
		WeightDecay:    0,
		Seed:           1,
		PlotPath:       "./plots",
	}
}

// ParseConfig reads command-line arguments (without the program name).
// Flag syntax and validation failures wrap ErrUsage; -h returns
// flag.ErrHelp.
func ParseConfig(args []string, output io.Writer) (Config, error) {
	cfg := DefaultConfig()

	fs := flag.NewFlagSet("seqflow", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&cfg.TrainPath, "trainPath", cfg.TrainPath, "training data CSV (required)")
	fs.StringVar(&cfg.ValPath, "valPath", cfg.ValPath, "validation data CSV (required)")
	fs.Float64Var(&cfg.LearningRate, "learningRate", cfg.LearningRate, "optimizer learning rate")
	fs.Float64Var(&cfg.Momentum, "momentum", cfg.Momentum, "SGD momentum")
	fs.BoolVar(&cfg.Nesterov, "nesterov", cfg.Nesterov, "use Nesterov momentum with SGD")
	fs.IntVar(&cfg.BatchSize, "batchSize", cfg.BatchSize, "training batch size")
	fs.IntVar(&cfg.MaxEpoch, "maxEpoch", cfg.MaxEpoch, "number of epochs")
	fs.Float64Var(&cfg.Uniform, "uniform", cfg.Uniform, "initialize parameters uniformly in [-u, u]; <= 0 uses Xavier")
	fs.IntVar(&cfg.Rho, "rho", cfg.Rho, "window length in time steps")
	fs.IntVar(&cfg.HiddenSize, "hiddenSize", cfg.HiddenSize, "LSTM hidden units")
	fs.IntVar(&cfg.Depth, "depth", cfg.Depth, "number of stacked LSTM layers")
	fs.Float64Var(&cfg.DropoutProb, "dropoutProb", cfg.DropoutProb, "dropout after each LSTM layer; 0 disables")
	fs.IntVar(&cfg.PrintEvery, "printEvery", cfg.PrintEvery, "log progress every n iterations; 0 disables")
	fs.IntVar(&cfg.TestEvery, "testEvery", cfg.TestEvery, "evaluate every n epochs; 0 disables")
	fs.StringVar(&cfg.LogPath, "logPath", cfg.LogPath, "epoch log file")
	fs.StringVar(&cfg.SavePath, "savePath", cfg.SavePath, "snapshot root directory")
	fs.IntVar(&cfg.SaveEvery, "saveEvery", cfg.SaveEvery, "snapshot every n epochs; 0 disables")
	fs.IntVar(&cfg.PlotRegression, "plotRegression", cfg.PlotRegression, "plot validation predictions every n epochs; 0 disables")
	fs.IntVar(&cfg.LabelCols, "labelCols", cfg.LabelCols, "trailing CSV columns holding labels")
	fs.StringVar(&cfg.ClipMode, "clipMode", cfg.ClipMode, "gradient clipping: norm or value")
	fs.Float64Var(&cfg.MaxGradNorm, "maxGradNorm", cfg.MaxGradNorm, "clip the gradient L2 norm in norm mode; 0 disables")
	fs.Float64Var(&cfg.MaxGradValue, "maxGradValue", cfg.MaxGradValue, "clip every gradient to [-v, v] in value mode")
	fs.StringVar(&cfg.Optimizer, "optimizer", cfg.Optimizer, "adam or sgd")
	fs.StringVar(&cfg.LRSchedule, "lrSchedule", cfg.LRSchedule, "learning rate schedule: constant, step, exp or cosine")
	fs.Float64Var(&cfg.LRDecay, "lrDecay", cfg.LRDecay, "decay factor of the step and exp schedules")
	fs.IntVar(&cfg.LRStep, "lrStep", cfg.LRStep, "epochs between decays of the step schedule")
	fs.Float64Var(&cfg.WeightDecay, "weightDecay", cfg.WeightDecay, "L2 weight decay; 0 disables")
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "random seed for initialization and dropout")
	fs.StringVar(&cfg.PlotPath, "plotPath", cfg.PlotPath, "directory for regression plots")
	fs.StringVar(&cfg.RunDB, "runDB", cfg.RunDB, "SQLite file recording runs and epochs; empty disables")
	fs.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "debug logging")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return cfg, err
		}
		return cfg, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if fs.NArg() > 0 {
		return cfg, fmt.Errorf("%w: unexpected arguments %v", ErrUsage, fs.Args())
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	return cfg, nil
}

// Validate checks required fields and value ranges
func (c Config) Validate() error {
	if c.TrainPath == "" {
		return errors.New("-trainPath is required")
	}
	if c.ValPath == "" {
		return errors.New("-valPath is required")
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("learningRate must be > 0, got %g", c.LearningRate)
	}
	if c.Momentum < 0 || c.Momentum >= 1 {
		return fmt.Errorf("momentum must be in [0, 1), got %g", c.Momentum)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batchSize must be > 0, got %d", c.BatchSize)
	}
	if c.MaxEpoch <= 0 {
		return fmt.Errorf("maxEpoch must be > 0, got %d", c.MaxEpoch)
	}
	if c.Rho <= 0 {
		return fmt.Errorf("rho must be > 0, got %d", c.Rho)
	}
	if c.HiddenSize <= 0 {
		return fmt.Errorf("hiddenSize must be > 0, got %d", c.HiddenSize)
	}
	if c.Depth <= 0 {
		return fmt.Errorf("depth must be > 0, got %d", c.Depth)
	}
	if c.DropoutProb < 0 || c.DropoutProb >= 1 {
		return fmt.Errorf("dropoutProb must be in [0, 1), got %g", c.DropoutProb)
	}
	if c.PrintEvery < 0 || c.TestEvery < 0 || c.SaveEvery < 0 || c.PlotRegression < 0 {
		return errors.New("printEvery, testEvery, saveEvery and plotRegression must be >= 0")
	}
	if c.LogPath == "" {
		return errors.New("logPath must not be empty")
	}
	if c.SaveEvery > 0 && c.SavePath == "" {
		return errors.New("savePath must not be empty when saveEvery > 0")
	}
	if c.PlotRegression > 0 && c.PlotPath == "" {
		return errors.New("plotPath must not be empty when plotRegression > 0")
	}
	if c.LabelCols <= 0 {
		return fmt.Errorf("labelCols must be > 0, got %d", c.LabelCols)
	}
	if c.WeightDecay < 0 {
		return fmt.Errorf("weightDecay must be >= 0, got %g", c.WeightDecay)
	}
	switch c.ClipMode {
	case "norm":
		if c.MaxGradNorm < 0 {
			return fmt.Errorf("maxGradNorm must be >= 0, got %g", c.MaxGradNorm)
		}
	case "value":
		if c.MaxGradValue <= 0 {
			return fmt.Errorf("maxGradValue must be > 0 in value mode, got %g", c.MaxGradValue)
		}
	default:
		return fmt.Errorf("clipMode must be norm or value, got %q", c.ClipMode)
	}
	if c.Nesterov && (c.Optimizer != "sgd" || c.Momentum == 0) {
		return errors.New("nesterov needs -optimizer sgd and a non-zero momentum")
	}
	switch c.Optimizer {
	case "adam", "sgd":
	default:
		return fmt.Errorf("optimizer must be adam or sgd, got %q", c.Optimizer)
	}
	switch c.LRSchedule {
	case "constant", "cosine":
	case "step", "exp":
		if c.LRDecay <= 0 || c.LRDecay > 1 {
			return fmt.Errorf("lrDecay must be in (0, 1], got %g", c.LRDecay)
		}
		if c.LRSchedule == "step" && c.LRStep <= 0 {
			return fmt.Errorf("lrStep must be > 0, got %d", c.LRStep)
		}
	default:
		return fmt.Errorf("lrSchedule must be constant, step, exp or cosine, got %q", c.LRSchedule)
	}
	return nil
}

func due(interval, n int) bool {
	return interval > 0 && n%interval == 0
}

// TestDue reports whether validation loss is recorded after epoch
func (c Config) TestDue(epoch int) bool { return due(c.TestEvery, epoch) }

// SaveDue reports whether a snapshot is written after epoch
func (c Config) SaveDue(epoch int) bool { return due(c.SaveEvery, epoch) }

// PlotDue reports whether a regression plot is rendered after epoch
func (c Config) PlotDue(epoch int) bool { return due(c.PlotRegression, epoch) }

// PrintDue reports whether progress is logged after iteration
func (c Config) PrintDue(iteration int) bool { return due(c.PrintEvery, iteration) }

// CreateSnapshotDir creates <SavePath>/<YYYYMMDD-HHMMSS> and records it in
// SnapshotDir. It does nothing when snapshots are disabled.
func (c *Config) CreateSnapshotDir(now time.Time) error {
	if c.SaveEvery <= 0 {
		return nil
	}
	dir := filepath.Join(c.SavePath, now.Format("20060102-150405"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	c.SnapshotDir = dir
	return nil
}

// SnapshotPath is the checkpoint file, "" when snapshots are disabled
func (c Config) SnapshotPath() string {
	if c.SnapshotDir == "" {
		return ""
	}
	return filepath.Join(c.SnapshotDir, SnapshotFile)
}
