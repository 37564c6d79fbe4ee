// Command seqflow trains a stacked LSTM regression model on CSV time series.
//
//	seqflow -trainPath train.csv -valPath val.csv -hiddenSize 64 -maxEpoch 50
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"seqflow/train"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	cfg, err := train.ParseConfig(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		io.WriteString(stderr, err.Error()+"\n")
		return 2
	}

	logger := logrus.New()
	logger.SetOutput(stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if cfg.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	t, err := train.Setup(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Error("Setup failed")
		return 1
	}
	defer t.Close()

	if err := t.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return 130
		}
		logger.WithError(err).Error("Training failed")
		return 1
	}
	return 0
}
