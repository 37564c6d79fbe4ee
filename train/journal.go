package train

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Journal records runs and their epoch results in a SQLite database so
// several runs can be compared after the fact.
type Journal struct {
	db    *sql.DB
	runID int64
}

var journalSchema = []string{`
CREATE TABLE IF NOT EXISTS runs(
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	started TEXT NOT NULL,
	train_path TEXT,
	val_path TEXT,
	optimizer TEXT,
	learning_rate REAL,
	batch_size INTEGER,
	rho INTEGER,
	hidden_size INTEGER,
	depth INTEGER,
	dropout REAL
)`, `
CREATE TABLE IF NOT EXISTS epochs(
	run_id INTEGER NOT NULL REFERENCES runs(id),
	epoch INTEGER NOT NULL,
	learning_rate REAL NOT NULL,
	train_loss REAL NOT NULL,
	test_loss REAL,
	test_mae REAL,
	ts TEXT NOT NULL,
	PRIMARY KEY(run_id, epoch)
)`,
}

// OpenJournal opens or creates the database at path and registers a new run
func OpenJournal(ctx context.Context, path string, cfg Config) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open run journal: %w", err)
	}
	for _, stmt := range journalSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create run journal schema: %w", err)
		}
	}

	res, err := db.ExecContext(ctx,
		`INSERT INTO runs(started, train_path, val_path, optimizer, learning_rate, batch_size, rho, hidden_size, depth, dropout)
		VALUES(?,?,?,?,?,?,?,?,?,?)`,
		time.Now().UTC().Format(time.RFC3339), cfg.TrainPath, cfg.ValPath, cfg.Optimizer,
		cfg.LearningRate, cfg.BatchSize, cfg.Rho, cfg.HiddenSize, cfg.Depth, cfg.DropoutProb)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("register run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("register run: %w", err)
	}
	return &Journal{db: db, runID: id}, nil
}

// RunID identifies this run in the runs table
func (j *Journal) RunID() int64 { return j.runID }

// Record stores one epoch result. Test columns are NULL when the epoch was
// not evaluated.
func (j *Journal) Record(ctx context.Context, r EpochResult) error {
	var testLoss, testMAE sql.NullFloat64
	if r.Tested {
		testLoss = sql.NullFloat64{Float64: r.TestLoss, Valid: true}
		testMAE = sql.NullFloat64{Float64: r.TestMAE, Valid: true}
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO epochs(run_id, epoch, learning_rate, train_loss, test_loss, test_mae, ts) VALUES(?,?,?,?,?,?,?)`,
		j.runID, r.Epoch, r.LearningRate, r.TrainLoss, testLoss, testMAE, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record epoch %d: %w", r.Epoch, err)
	}
	return nil
}

// Epochs returns the recorded epochs of this run in order
func (j *Journal) Epochs(ctx context.Context) ([]EpochResult, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT epoch, learning_rate, train_loss, test_loss, test_mae FROM epochs WHERE run_id = ? ORDER BY epoch`, j.runID)
	if err != nil {
		return nil, fmt.Errorf("query epochs: %w", err)
	}
	defer rows.Close()

	var out []EpochResult
	for rows.Next() {
		var (
			r                 EpochResult
			testLoss, testMAE sql.NullFloat64
		)
		if err := rows.Scan(&r.Epoch, &r.LearningRate, &r.TrainLoss, &testLoss, &testMAE); err != nil {
			return nil, fmt.Errorf("scan epoch: %w", err)
		}
		r.Tested = testLoss.Valid
		r.TestLoss = testLoss.Float64
		r.TestMAE = testMAE.Float64
		out = append(out, r)
	}
	return out, rows.Err()
}

func (j *Journal) Close() error {
	return j.db.Close()
}
