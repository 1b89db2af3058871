package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/GoSim-25-26J-441/medvision-sim/pkg/models"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS datasets (
	id          TEXT PRIMARY KEY,
	body        TEXT NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS model_configs (
	id          TEXT PRIMARY KEY,
	body        TEXT NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS experiments (
	id             TEXT PRIMARY KEY,
	body           TEXT NOT NULL,
	status         TEXT NOT NULL,
	current_epoch  INTEGER NOT NULL DEFAULT 0,
	num_epochs     INTEGER NOT NULL,
	best_loss      REAL,
	error          TEXT NOT NULL DEFAULT '',
	created_at     TEXT NOT NULL,
	started_at     TEXT,
	ended_at       TEXT
);

CREATE TABLE IF NOT EXISTS experiment_metrics (
	experiment_id       TEXT NOT NULL,
	epoch               INTEGER NOT NULL,
	loss                REAL NOT NULL,
	contrastive_loss    REAL NOT NULL,
	reconstruction_loss REAL NOT NULL,
	learning_rate       REAL NOT NULL,
	PRIMARY KEY (experiment_id, epoch),
	FOREIGN KEY (experiment_id) REFERENCES experiments(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS evaluations (
	id             TEXT PRIMARY KEY,
	experiment_id  TEXT NOT NULL UNIQUE,
	body           TEXT NOT NULL,
	evaluated_at   TEXT NOT NULL,
	FOREIGN KEY (experiment_id) REFERENCES experiments(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS finetune_configs (
	id             TEXT PRIMARY KEY,
	experiment_id  TEXT NOT NULL,
	status         TEXT NOT NULL,
	body           TEXT NOT NULL,
	created_at     TEXT NOT NULL,
	FOREIGN KEY (experiment_id) REFERENCES experiments(id) ON DELETE CASCADE
);
`

// SQLiteStore persists entities in a SQLite database. Entity bodies are JSON columns;
// experiment progress lives in dedicated columns and the append-only
// experiment_metrics table keyed by (experiment_id, epoch).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens a SQLite database and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection serializes writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// timeLayout is fixed-width so that text columns sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// insertBody stores a JSON body in one of the id/body/created_at tables.
func (s *SQLiteStore) insertBody(ctx context.Context, table, kind, id string, created time.Time, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", kind, err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table+` WHERE id = ?`, id).Scan(&n); err != nil {
		return fmt.Errorf("check %s: %w", kind, err)
	}
	if n > 0 {
		return fmt.Errorf("%w: %s %s", ErrAlreadyExists, kind, id)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO `+table+` (id, body, created_at) VALUES (?, ?, ?)`,
		id, string(body), formatTime(created),
	); err != nil {
		return fmt.Errorf("insert %s: %w", kind, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) getBody(ctx context.Context, table, kind, id string, out any) error {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM `+table+` WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	if err != nil {
		return fmt.Errorf("query %s: %w", kind, err)
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return fmt.Errorf("unmarshal %s: %w", kind, err)
	}
	return nil
}

func (s *SQLiteStore) listBodies(ctx context.Context, table, kind string, decode func(body []byte) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM `+table+` ORDER BY created_at, id`)
	if err != nil {
		return fmt.Errorf("query %s: %w", kind, err)
	}
	defer rows.Close()
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return fmt.Errorf("scan %s: %w", kind, err)
		}
		if err := decode([]byte(body)); err != nil {
			return fmt.Errorf("unmarshal %s: %w", kind, err)
		}
	}
	return rows.Err()
}

func (s *SQLiteStore) deleteByID(ctx context.Context, table, kind, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", kind, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	return nil
}

func (s *SQLiteStore) CreateDataset(ctx context.Context, d *models.Dataset) error {
	assignIdentity(&d.ID, &d.CreatedAt)
	return s.insertBody(ctx, "datasets", "dataset", d.ID, d.CreatedAt, d)
}

func (s *SQLiteStore) GetDataset(ctx context.Context, id string) (*models.Dataset, error) {
	var d models.Dataset
	if err := s.getBody(ctx, "datasets", "dataset", id, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *SQLiteStore) ListDatasets(ctx context.Context) ([]*models.Dataset, error) {
	out := []*models.Dataset{}
	err := s.listBodies(ctx, "datasets", "dataset", func(body []byte) error {
		var d models.Dataset
		if err := json.Unmarshal(body, &d); err != nil {
			return err
		}
		out = append(out, &d)
		return nil
	})
	return out, err
}

func (s *SQLiteStore) DeleteDataset(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "datasets", "dataset", id)
}

func (s *SQLiteStore) CreateModel(ctx context.Context, m *models.ModelConfig) error {
	assignIdentity(&m.ID, &m.CreatedAt)
	return s.insertBody(ctx, "model_configs", "model config", m.ID, m.CreatedAt, m)
}

func (s *SQLiteStore) GetModel(ctx context.Context, id string) (*models.ModelConfig, error) {
	var m models.ModelConfig
	if err := s.getBody(ctx, "model_configs", "model config", id, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *SQLiteStore) ListModels(ctx context.Context) ([]*models.ModelConfig, error) {
	out := []*models.ModelConfig{}
	err := s.listBodies(ctx, "model_configs", "model config", func(body []byte) error {
		var m models.ModelConfig
		if err := json.Unmarshal(body, &m); err != nil {
			return err
		}
		out = append(out, &m)
		return nil
	})
	return out, err
}

func (s *SQLiteStore) DeleteModel(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "model_configs", "model config", id)
}

// experimentBody is the static part of an experiment. Progress fields are columns.
func experimentBody(e *models.Experiment) ([]byte, error) {
	static := *e
	static.Status = ""
	static.CurrentEpoch = 0
	static.BestLoss = nil
	static.MetricsHistory = nil
	static.Error = ""
	static.StartedAt = nil
	static.EndedAt = nil
	return json.Marshal(&static)
}

func (s *SQLiteStore) CreateExperiment(ctx context.Context, e *models.Experiment) error {
	assignIdentity(&e.ID, &e.CreatedAt)
	body, err := experimentBody(e)
	if err != nil {
		return fmt.Errorf("marshal experiment: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM experiments WHERE id = ?`, e.ID).Scan(&n); err != nil {
		return fmt.Errorf("check experiment: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("%w: experiment %s", ErrAlreadyExists, e.ID)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO experiments (id, body, status, current_epoch, num_epochs, best_loss, error, created_at, started_at, ended_at)
		 VALUES (?, ?, ?, 0, ?, NULL, ?, ?, ?, ?)`,
		e.ID, string(body), string(e.Status), e.TrainingConfig.NumEpochs, e.Error,
		formatTime(e.CreatedAt), formatTimePtr(e.StartedAt), formatTimePtr(e.EndedAt),
	)
	if err != nil {
		return fmt.Errorf("insert experiment: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// loadExperiment reads an experiment and its full history through q (db or tx).
func loadExperiment(ctx context.Context, q queryer, id string) (*models.Experiment, error) {
	var (
		body              string
		status, errMsg    string
		current           int
		best              sql.NullFloat64
		started, finished sql.NullString
	)
	err := q.QueryRowContext(ctx,
		`SELECT body, status, current_epoch, best_loss, error, started_at, ended_at FROM experiments WHERE id = ?`, id,
	).Scan(&body, &status, &current, &best, &errMsg, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: experiment %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query experiment: %w", err)
	}

	var e models.Experiment
	if err := json.Unmarshal([]byte(body), &e); err != nil {
		return nil, fmt.Errorf("unmarshal experiment: %w", err)
	}
	e.Status = models.ExperimentStatus(status)
	e.CurrentEpoch = current
	e.Error = errMsg
	if best.Valid {
		v := best.Float64
		e.BestLoss = &v
	}
	if e.StartedAt, err = parseTimePtr(started); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if e.EndedAt, err = parseTimePtr(finished); err != nil {
		return nil, fmt.Errorf("parse ended_at: %w", err)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT epoch, loss, contrastive_loss, reconstruction_loss, learning_rate
		 FROM experiment_metrics WHERE experiment_id = ? ORDER BY epoch`, id)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()
	e.MetricsHistory = make([]models.MetricsRecord, 0, current)
	for rows.Next() {
		var r models.MetricsRecord
		if err := rows.Scan(&r.Epoch, &r.Loss, &r.ContrastiveLoss, &r.ReconstructionLoss, &r.LearningRate); err != nil {
			return nil, fmt.Errorf("scan metrics: %w", err)
		}
		e.MetricsHistory = append(e.MetricsHistory, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *SQLiteStore) GetExperiment(ctx context.Context, id string) (*models.Experiment, error) {
	return loadExperiment(ctx, s.db, id)
}

func (s *SQLiteStore) ListExperiments(ctx context.Context) ([]*models.Experiment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM experiments ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query experiments: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan experiment id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*models.Experiment, 0, len(ids))
	for _, id := range ids {
		e, err := loadExperiment(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *SQLiteStore) DeleteExperiment(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM finetune_configs WHERE experiment_id = ?`,
		`DELETE FROM evaluations WHERE experiment_id = ?`,
		`DELETE FROM experiment_metrics WHERE experiment_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return fmt.Errorf("delete experiment children: %w", err)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM experiments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete experiment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: experiment %s", ErrNotFound, id)
	}
	return tx.Commit()
}

func (s *SQLiteStore) AppendMetrics(ctx context.Context, id string, rec models.MetricsRecord) (*models.Experiment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var (
		status            string
		current, numEpoch int
		best              sql.NullFloat64
	)
	err = tx.QueryRowContext(ctx,
		`SELECT status, current_epoch, num_epochs, best_loss FROM experiments WHERE id = ?`, id,
	).Scan(&status, &current, &numEpoch, &best)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: experiment %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query experiment: %w", err)
	}
	if models.ExperimentStatus(status) != models.StatusRunning {
		return nil, fmt.Errorf("%w: experiment %s is %s, metrics require running", ErrStatusConflict, id, status)
	}
	if rec.Epoch != current+1 {
		return nil, fmt.Errorf("%w: got epoch %d, want %d", models.ErrNonContiguous, rec.Epoch, current+1)
	}
	if rec.Epoch > numEpoch {
		return nil, fmt.Errorf("%w: epoch %d exceeds num_epochs %d", models.ErrNonContiguous, rec.Epoch, numEpoch)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO experiment_metrics (experiment_id, epoch, loss, contrastive_loss, reconstruction_loss, learning_rate)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, rec.Epoch, rec.Loss, rec.ContrastiveLoss, rec.ReconstructionLoss, rec.LearningRate,
	); err != nil {
		return nil, fmt.Errorf("insert metrics: %w", err)
	}

	newBest := rec.Loss
	if best.Valid && best.Float64 <= rec.Loss {
		newBest = best.Float64
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE experiments SET current_epoch = ?, best_loss = ? WHERE id = ?`,
		rec.Epoch, newBest, id,
	); err != nil {
		return nil, fmt.Errorf("update experiment: %w", err)
	}

	e, err := loadExperiment(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return e, nil
}

func (s *SQLiteStore) TransitionStatus(ctx context.Context, id string, from []models.ExperimentStatus, to models.ExperimentStatus, errMsg string) (*models.Experiment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	e, err := loadExperiment(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(id, e.Status, from, to); err != nil {
		return nil, err
	}
	applyTransition(e, to, errMsg)

	if _, err := tx.ExecContext(ctx,
		`UPDATE experiments SET status = ?, error = ?, started_at = ?, ended_at = ? WHERE id = ?`,
		string(e.Status), e.Error, formatTimePtr(e.StartedAt), formatTimePtr(e.EndedAt), id,
	); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return e, nil
}

func (s *SQLiteStore) CreateEvaluation(ctx context.Context, ev *models.EvaluationResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM experiments WHERE id = ?`, ev.ExperimentID).Scan(&n); err != nil {
		return fmt.Errorf("check experiment: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: experiment %s", ErrNotFound, ev.ExperimentID)
	}
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM evaluations WHERE experiment_id = ?`, ev.ExperimentID).Scan(&n); err != nil {
		return fmt.Errorf("check evaluation: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("%w: evaluation for experiment %s", ErrAlreadyExists, ev.ExperimentID)
	}

	assignIdentity(&ev.ID, &ev.EvaluatedAt)
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal evaluation: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO evaluations (id, experiment_id, body, evaluated_at) VALUES (?, ?, ?, ?)`,
		ev.ID, ev.ExperimentID, string(body), formatTime(ev.EvaluatedAt),
	); err != nil {
		return fmt.Errorf("insert evaluation: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetEvaluation(ctx context.Context, experimentID string) (*models.EvaluationResult, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM evaluations WHERE experiment_id = ?`, experimentID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: evaluation for experiment %s", ErrNotFound, experimentID)
	}
	if err != nil {
		return nil, fmt.Errorf("query evaluation: %w", err)
	}
	var ev models.EvaluationResult
	if err := json.Unmarshal([]byte(body), &ev); err != nil {
		return nil, fmt.Errorf("unmarshal evaluation: %w", err)
	}
	return &ev, nil
}

func (s *SQLiteStore) ListEvaluations(ctx context.Context) ([]*models.EvaluationResult, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM evaluations ORDER BY evaluated_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query evaluations: %w", err)
	}
	defer rows.Close()
	out := []*models.EvaluationResult{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan evaluation: %w", err)
		}
		var ev models.EvaluationResult
		if err := json.Unmarshal([]byte(body), &ev); err != nil {
			return nil, fmt.Errorf("unmarshal evaluation: %w", err)
		}
		out = append(out, &ev)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CreateFinetune(ctx context.Context, f *models.FinetuneConfig) error {
	assignIdentity(&f.ID, &f.CreatedAt)
	body, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal fine-tune: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM experiments WHERE id = ?`, f.ExperimentID).Scan(&n); err != nil {
		return fmt.Errorf("check experiment: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: experiment %s", ErrNotFound, f.ExperimentID)
	}
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM finetune_configs WHERE id = ?`, f.ID).Scan(&n); err != nil {
		return fmt.Errorf("check fine-tune: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("%w: fine-tune %s", ErrAlreadyExists, f.ID)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO finetune_configs (id, experiment_id, status, body, created_at) VALUES (?, ?, ?, ?, ?)`,
		f.ID, f.ExperimentID, string(f.Status), string(body), formatTime(f.CreatedAt),
	); err != nil {
		return fmt.Errorf("insert fine-tune: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetFinetune(ctx context.Context, id string) (*models.FinetuneConfig, error) {
	var f models.FinetuneConfig
	if err := s.getBody(ctx, "finetune_configs", "fine-tune", id, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *SQLiteStore) ListFinetunes(ctx context.Context) ([]*models.FinetuneConfig, error) {
	out := []*models.FinetuneConfig{}
	err := s.listBodies(ctx, "finetune_configs", "fine-tune", func(body []byte) error {
		var f models.FinetuneConfig
		if err := json.Unmarshal(body, &f); err != nil {
			return err
		}
		out = append(out, &f)
		return nil
	})
	return out, err
}

func (s *SQLiteStore) CompleteFinetune(ctx context.Context, id string, labelPercent float64, ev *models.EvaluationResult) (*models.FinetuneConfig, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var body string
	err = tx.QueryRowContext(ctx, `SELECT body FROM finetune_configs WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: fine-tune %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query fine-tune: %w", err)
	}
	var f models.FinetuneConfig
	if err := json.Unmarshal([]byte(body), &f); err != nil {
		return nil, fmt.Errorf("unmarshal fine-tune: %w", err)
	}
	if err := applyFinetuneCompletion(&f, labelPercent, ev); err != nil {
		return nil, err
	}

	updated, err := json.Marshal(&f)
	if err != nil {
		return nil, fmt.Errorf("marshal fine-tune: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE finetune_configs SET status = ?, body = ? WHERE id = ?`,
		string(f.Status), string(updated), id,
	); err != nil {
		return nil, fmt.Errorf("update fine-tune: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &f, nil
}

func (s *SQLiteStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM datasets),
		(SELECT COUNT(*) FROM model_configs),
		(SELECT COUNT(*) FROM experiments),
		(SELECT COUNT(*) FROM experiments WHERE status = ?),
		(SELECT COUNT(*) FROM experiments WHERE status = ?),
		(SELECT COUNT(*) FROM evaluations)`,
		string(models.StatusCompleted), string(models.StatusRunning),
	).Scan(&c.Datasets, &c.Models, &c.Experiments, &c.Completed, &c.Running, &c.Evaluations)
	if err != nil {
		return Counts{}, fmt.Errorf("count: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	for _, table := range []string{"finetune_configs", "evaluations", "experiment_metrics", "experiments", "model_configs", "datasets"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return tx.Commit()
}
