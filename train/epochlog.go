package train

import (
	"fmt"
	"os"
	"strconv"
)

const epochLogHeader = "epoch\ttrain_loss\ttest_loss\n"

// EpochLog is an append-only tab-separated file with one row per epoch.
// Epochs without evaluation carry "-" in the test column.
type EpochLog struct {
	f *os.File
}

// OpenEpochLog opens path for appending, writing the header when the file
// is new or empty
func OpenEpochLog(path string) (*EpochLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open epoch log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat epoch log: %w", err)
	}
	if info.Size() == 0 {
		if _, err := f.WriteString(epochLogHeader); err != nil {
			f.Close()
			return nil, fmt.Errorf("write epoch log header: %w", err)
		}
	}
	return &EpochLog{f: f}, nil
}

// Append writes one row and syncs it to disk
func (l *EpochLog) Append(epoch int, trainLoss float64, testLoss float64, tested bool) error {
	test := "-"
	if tested {
		test = strconv.FormatFloat(testLoss, 'g', -1, 64)
	}
	row := strconv.Itoa(epoch) + "\t" + strconv.FormatFloat(trainLoss, 'g', -1, 64) + "\t" + test + "\n"
	if _, err := l.f.WriteString(row); err != nil {
		return fmt.Errorf("append epoch log: %w", err)
	}
	return l.f.Sync()
}

func (l *EpochLog) Close() error {
	return l.f.Close()
}
