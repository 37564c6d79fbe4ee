package train

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"seqflow/data"
)

// Setup loads both datasets, builds and compiles the model, creates the
// snapshot directory and opens the run journal. The returned trainer must be
// released with Close.
func Setup(ctx context.Context, cfg Config, logger *logrus.Logger) (*Trainer, error) {
	if logger == nil {
		logger = logrus.New()
	}

	trainSeries, err := data.LoadCSV(cfg.TrainPath, cfg.LabelCols)
	if err != nil {
		return nil, err
	}
	valSeries, err := data.LoadCSV(cfg.ValPath, cfg.LabelCols)
	if err != nil {
		return nil, err
	}

	trainSrc, err := data.NewSource(trainSeries, cfg.BatchSize, cfg.Rho)
	if err != nil {
		return nil, err
	}
	valSrc, err := data.NewSource(valSeries, 1, cfg.Rho)
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"train_records": trainSrc.Size(),
		"val_records":   valSrc.Size(),
		"features":      trainSrc.FeatureDim(),
		"labels":        trainSrc.LabelDim(),
	}).Info("Loaded datasets")

	net, err := BuildModel(ModelConfigFor(cfg, trainSrc.FeatureDim(), trainSrc.LabelDim()))
	if err != nil {
		return nil, err
	}
	if err := Compile(net, cfg); err != nil {
		return nil, err
	}
	logger.Debug("\n" + net.Summary())

	if err := cfg.CreateSnapshotDir(time.Now()); err != nil {
		return nil, err
	}

	t, err := NewTrainer(cfg, net, trainSrc, valSrc, logger)
	if err != nil {
		return nil, err
	}

	if cfg.RunDB != "" {
		j, err := OpenJournal(ctx, cfg.RunDB, cfg)
		if err != nil {
			return nil, err
		}
		t.SetJournal(j)
		logger.WithField("run_id", j.RunID()).Debug("Recording run in journal")
	}
	return t, nil
}

// Config returns the configuration the trainer runs with, including the
// snapshot directory chosen by Setup
func (t *Trainer) Config() Config { return t.cfg }

// Close releases the run journal
func (t *Trainer) Close() error {
	if t.journal == nil {
		return nil
	}
	return t.journal.Close()
}
