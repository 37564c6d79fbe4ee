package train

import (
	"errors"
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig([]string{"-trainPath", "a.csv", "-valPath", "b.csv"}, io.Discard)
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}

	want := DefaultConfig()
	want.TrainPath, want.ValPath = "a.csv", "b.csv"
	if cfg != want {
		t.Errorf("got %+v\nwant %+v", cfg, want)
	}

	if cfg.LearningRate != 0.01 || cfg.BatchSize != 32 || cfg.HiddenSize != 200 || cfg.Rho != 5 ||
		cfg.DropoutProb != 0.5 || cfg.TestEvery != 1 || cfg.SaveEvery != 0 || cfg.MaxEpoch != 1000 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestParseConfigValues(t *testing.T) {
	args := []string{
		"-trainPath", "t.csv", "-valPath", "v.csv",
		"-learningRate", "0.001", "-batchSize", "8", "-rho", "12",
		"-hiddenSize", "64", "-depth", "3", "-dropoutProb", "0",
		"-saveEvery", "5", "-optimizer", "sgd", "-momentum", "0.5",
		"-labelCols", "2", "-verbose", "-nesterov", "-uniform", "-1",
		"-clipMode", "value", "-maxGradValue", "0.25",
	}
	cfg, err := ParseConfig(args, io.Discard)
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}
	if cfg.LearningRate != 0.001 || cfg.BatchSize != 8 || cfg.Rho != 12 || cfg.HiddenSize != 64 ||
		cfg.Depth != 3 || cfg.DropoutProb != 0 || cfg.SaveEvery != 5 || cfg.Optimizer != "sgd" ||
		cfg.Momentum != 0.5 || cfg.LabelCols != 2 || !cfg.Verbose || !cfg.Nesterov || cfg.Uniform != -1 ||
		cfg.ClipMode != "value" || cfg.MaxGradValue != 0.25 {
		t.Errorf("flags not applied: %+v", cfg)
	}
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"MissingTrainPath", []string{"-valPath", "v.csv"}},
		{"MissingValPath", []string{"-trainPath", "t.csv"}},
		{"UnknownFlag", []string{"-trainPath", "t.csv", "-valPath", "v.csv", "-bogus"}},
		{"BadNumber", []string{"-trainPath", "t.csv", "-valPath", "v.csv", "-batchSize", "many"}},
		{"ZeroBatch", []string{"-trainPath", "t.csv", "-valPath", "v.csv", "-batchSize", "0"}},
		{"DropoutOne", []string{"-trainPath", "t.csv", "-valPath", "v.csv", "-dropoutProb", "1"}},
		{"NegativeInterval", []string{"-trainPath", "t.csv", "-valPath", "v.csv", "-testEvery", "-1"}},
		{"UnknownOptimizer", []string{"-trainPath", "t.csv", "-valPath", "v.csv", "-optimizer", "lbfgs"}},
		{"UnknownSchedule", []string{"-trainPath", "t.csv", "-valPath", "v.csv", "-lrSchedule", "cyclic"}},
		{"StepWithoutInterval", []string{"-trainPath", "t.csv", "-valPath", "v.csv", "-lrSchedule", "step", "-lrStep", "0"}},
		{"DecayAboveOne", []string{"-trainPath", "t.csv", "-valPath", "v.csv", "-lrSchedule", "exp", "-lrDecay", "1.5"}},
		{"NegativeWeightDecay", []string{"-trainPath", "t.csv", "-valPath", "v.csv", "-weightDecay", "-0.1"}},
		{"UnknownClipMode", []string{"-trainPath", "t.csv", "-valPath", "v.csv", "-clipMode", "range"}},
		{"ZeroMaxGradValue", []string{"-trainPath", "t.csv", "-valPath", "v.csv", "-clipMode", "value", "-maxGradValue", "0"}},
		{"NegativeMaxGradNorm", []string{"-trainPath", "t.csv", "-valPath", "v.csv", "-maxGradNorm", "-1"}},
		{"NesterovWithAdam", []string{"-trainPath", "t.csv", "-valPath", "v.csv", "-nesterov"}},
		{"NesterovWithoutMomentum", []string{"-trainPath", "t.csv", "-valPath", "v.csv", "-optimizer", "sgd", "-nesterov"}},
		{"ExtraArgs", []string{"-trainPath", "t.csv", "-valPath", "v.csv", "extra"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseConfig(tc.args, io.Discard)
			if !errors.Is(err, ErrUsage) {
				t.Errorf("Expected ErrUsage, got %v", err)
			}
		})
	}

	t.Run("Help", func(t *testing.T) {
		_, err := ParseConfig([]string{"-h"}, io.Discard)
		if !errors.Is(err, flag.ErrHelp) {
			t.Errorf("Expected flag.ErrHelp, got %v", err)
		}
	})
}

func TestIntervals(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TestEvery = 2
	cfg.SaveEvery = 0
	cfg.PlotRegression = 3
	cfg.PrintEvery = 0

	tests := []struct {
		epoch            int
		test, save, plot bool
	}{
		{1, false, false, false},
		{2, true, false, false},
		{3, false, false, true},
		{6, true, false, true},
	}
	for _, tc := range tests {
		if got := cfg.TestDue(tc.epoch); got != tc.test {
			t.Errorf("TestDue(%d) = %v, want %v", tc.epoch, got, tc.test)
		}
		if got := cfg.SaveDue(tc.epoch); got != tc.save {
			t.Errorf("SaveDue(%d) = %v, want %v", tc.epoch, got, tc.save)
		}
		if got := cfg.PlotDue(tc.epoch); got != tc.plot {
			t.Errorf("PlotDue(%d) = %v, want %v", tc.epoch, got, tc.plot)
		}
	}
	if cfg.PrintDue(10) {
		t.Error("PrintDue must be false when printEvery is 0")
	}
}

func TestCreateSnapshotDir(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("Enabled", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.SavePath = t.TempDir()
		cfg.SaveEvery = 1
		if err := cfg.CreateSnapshotDir(now); err != nil {
			t.Fatalf("CreateSnapshotDir failed: %v", err)
		}
		want := filepath.Join(cfg.SavePath, "20240102-030405")
		if cfg.SnapshotDir != want {
			t.Errorf("SnapshotDir = %q, want %q", cfg.SnapshotDir, want)
		}
		if info, err := os.Stat(want); err != nil || !info.IsDir() {
			t.Errorf("snapshot dir not created: %v", err)
		}
		if cfg.SnapshotPath() != filepath.Join(want, SnapshotFile) {
			t.Errorf("SnapshotPath = %q", cfg.SnapshotPath())
		}
	})

	t.Run("Disabled", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.SavePath = filepath.Join(t.TempDir(), "snaps")
		if err := cfg.CreateSnapshotDir(now); err != nil {
			t.Fatalf("CreateSnapshotDir failed: %v", err)
		}
		if cfg.SnapshotDir != "" || cfg.SnapshotPath() != "" {
			t.Error("no snapshot dir expected when saveEvery is 0")
		}
		if _, err := os.Stat(cfg.SavePath); !os.IsNotExist(err) {
			t.Error("savePath must not be created when saveEvery is 0")
		}
	})
}
