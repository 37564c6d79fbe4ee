package train

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"seqflow/data"
	seqflow "seqflow/src"
)

// EpochResult summarizes one completed epoch
type EpochResult struct {
	Epoch        int
	LearningRate float64
	TrainLoss    float64
	Tested       bool
	TestLoss     float64
	TestMAE      float64
	Checkpointed bool
	PlotPath     string
	Duration     time.Duration
}

// EvalResult is the outcome of one pass over the validation source.
// Predictions and Targets are filled only when requested.
type EvalResult struct {
	Loss        float64
	MAE         float64
	Predictions [][]float64
	Targets     [][]float64
}

// Hooks are optional callbacks invoked by the trainer
type Hooks struct {
	OnBatch func(epoch, iteration int, loss float64)
	OnEpoch func(r EpochResult)
}

// Trainer drives the train/evaluate/checkpoint cycle for one network.
// It is not safe for concurrent use.
type Trainer struct {
	cfg      Config
	net      *seqflow.Network
	train    *data.Source
	val      *data.Source
	logger   *logrus.Logger
	journal  *Journal
	schedule seqflow.Schedule
	Hooks    Hooks
}

// NewTrainer checks that the sources agree with each other and with the
// network. val must use batch size 1. A nil logger gets a default one.
func NewTrainer(cfg Config, net *seqflow.Network, train, val *data.Source, logger *logrus.Logger) (*Trainer, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if net == nil || train == nil || val == nil {
		return nil, errors.New("trainer needs a network and both sources")
	}
	if train.FeatureDim() != val.FeatureDim() || train.LabelDim() != val.LabelDim() {
		return nil, fmt.Errorf("training data has %d features/%d labels but validation data has %d/%d",
			train.FeatureDim(), train.LabelDim(), val.FeatureDim(), val.LabelDim())
	}
	if val.BatchSize() != 1 {
		return nil, fmt.Errorf("validation source must use batch size 1, got %d", val.BatchSize())
	}
	in, out := net.InputShape(), net.OutputShape()
	if len(in) != 2 || in[0] != train.Rho() || in[1] != train.FeatureDim() {
		return nil, fmt.Errorf("network expects inputs %v, training windows are [%d %d]", in, train.Rho(), train.FeatureDim())
	}
	if len(out) != 1 || out[0] != train.LabelDim() {
		return nil, fmt.Errorf("network produces %v, data has %d label columns", out, train.LabelDim())
	}
	if net.Optimizer() == nil {
		return nil, errors.New("network must be compiled before training")
	}
	return &Trainer{cfg: cfg, net: net, train: train, val: val, logger: logger, schedule: ScheduleFor(cfg)}, nil
}

// SetJournal makes the trainer record every epoch in j
func (t *Trainer) SetJournal(j *Journal) { t.journal = j }

// Network returns the trained network
func (t *Trainer) Network() *seqflow.Network { return t.net }

// TrainEpoch runs Iterations() optimization steps and returns the mean
// batch loss
func (t *Trainer) TrainEpoch(epoch int) (float64, error) {
	iters := t.train.Iterations()
	if iters == 0 {
		return 0, errors.New("training source yields no full batch")
	}

	sum := 0.0
	for i := 1; i <= iters; i++ {
		batch := t.train.Next()
		loss, err := t.net.TrainBatch(batch.Inputs, batch.LastTargets())
		if err != nil {
			return 0, fmt.Errorf("epoch %d iteration %d: %w", epoch, i, err)
		}
		sum += loss

		if t.Hooks.OnBatch != nil {
			t.Hooks.OnBatch(epoch, i, loss)
		}
		if t.cfg.PrintDue(i) {
			t.logger.WithFields(logrus.Fields{
				"epoch":      epoch,
				"iteration":  fmt.Sprintf("%d/%d", i, iters),
				"batch_loss": loss,
				"mean_loss":  sum / float64(i),
			}).Info("Training progress")
		}
	}
	return sum / float64(iters), nil
}

// Evaluate runs one inference pass over the validation source, Size()
// iterations of batch size 1. keep retains predictions and targets.
func (t *Trainer) Evaluate(keep bool) (*EvalResult, error) {
	t.val.Reset()
	iters := t.val.Size()

	res := &EvalResult{}
	mae := seqflow.MeanAbsoluteError()
	sum := 0.0
	for i := 0; i < iters; i++ {
		batch := t.val.Next()
		target := batch.LastTargets()
		pred, loss, err := t.net.EvalBatch(batch.Inputs, target)
		if err != nil {
			return nil, fmt.Errorf("evaluation sample %d: %w", i, err)
		}
		sum += loss
		mae.Update(pred, target)
		if keep {
			res.Predictions = append(res.Predictions, append([]float64(nil), pred.Data()...))
			res.Targets = append(res.Targets, append([]float64(nil), target.Data()...))
		}
	}
	res.Loss = sum / float64(iters)
	res.MAE = mae.Result()
	return res, nil
}

// Checkpoint writes a parameter snapshot to the configured snapshot file
func (t *Trainer) Checkpoint() error {
	path := t.cfg.SnapshotPath()
	if path == "" {
		return errors.New("checkpoint: snapshot directory not created")
	}
	return seqflow.SaveSnapshot(path, t.net.Snapshot())
}

// RunEpoch trains for one epoch and performs the evaluation, plot,
// checkpoint and log steps due at its end
func (t *Trainer) RunEpoch(ctx context.Context, epoch int, log *EpochLog) (EpochResult, error) {
	start := time.Now()
	res := EpochResult{Epoch: epoch}

	res.LearningRate = t.schedule.Rate(epoch, t.cfg.LearningRate)
	t.net.Optimizer().SetLearningRate(res.LearningRate)

	trainLoss, err := t.TrainEpoch(epoch)
	if err != nil {
		return res, err
	}
	res.TrainLoss = trainLoss

	testDue, plotDue := t.cfg.TestDue(epoch), t.cfg.PlotDue(epoch)
	var eval *EvalResult
	if testDue || plotDue {
		eval, err = t.Evaluate(plotDue)
		if err != nil {
			return res, err
		}
	}
	if testDue {
		res.Tested = true
		res.TestLoss = eval.Loss
		res.TestMAE = eval.MAE
	}

	if err := log.Append(epoch, res.TrainLoss, res.TestLoss, res.Tested); err != nil {
		return res, err
	}

	if plotDue {
		res.PlotPath = PlotFile(t.cfg.PlotPath, epoch)
		if err := PlotRegression(res.PlotPath, epoch, eval); err != nil {
			return res, err
		}
	}

	if t.cfg.SaveDue(epoch) {
		if err := t.Checkpoint(); err != nil {
			return res, err
		}
		res.Checkpointed = true
	}

	res.Duration = time.Since(start)

	if t.journal != nil {
		if err := t.journal.Record(ctx, res); err != nil {
			return res, err
		}
	}

	fields := logrus.Fields{
		"epoch":         epoch,
		"learning_rate": res.LearningRate,
		"train_loss":    res.TrainLoss,
		"duration":      res.Duration,
	}
	if res.Tested {
		fields["test_loss"] = res.TestLoss
		fields["test_mae"] = res.TestMAE
	}
	if res.Checkpointed {
		fields["snapshot"] = t.cfg.SnapshotPath()
	}
	if res.PlotPath != "" {
		fields["plot"] = res.PlotPath
	}
	t.logger.WithFields(fields).Info("Training epoch completed")

	if t.Hooks.OnEpoch != nil {
		t.Hooks.OnEpoch(res)
	}
	return res, nil
}

// Run trains for MaxEpoch epochs, appending to the epoch log at LogPath.
// Cancellation is checked between epochs and returns ctx.Err().
func (t *Trainer) Run(ctx context.Context) error {
	log, err := OpenEpochLog(t.cfg.LogPath)
	if err != nil {
		return err
	}
	defer log.Close()

	t.logger.WithFields(logrus.Fields{
		"parameters": t.net.NumParameters(),
		"iterations": t.train.Iterations(),
		"max_epoch":  t.cfg.MaxEpoch,
		"optimizer":  t.cfg.Optimizer,
		"schedule":   seqflow.ScheduleName(t.schedule),
	}).Info("Starting training")

	for epoch := 1; epoch <= t.cfg.MaxEpoch; epoch++ {
		select {
		case <-ctx.Done():
			t.logger.WithField("epoch", epoch-1).Warn("Training cancelled")
			return ctx.Err()
		default:
		}

		if _, err := t.RunEpoch(ctx, epoch, log); err != nil {
			return err
		}
	}

	t.logger.Info("Training complete")
	return nil
}
