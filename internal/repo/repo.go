package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"setback/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const workerColumns = `id,name,COALESCE(preset,''),profile_json,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorker(row rowScanner) (domain.Worker, error) {
	var w domain.Worker
	var profile string
	err := row.Scan(&w.ID, &w.Name, &w.Preset, &profile, &w.CreatedAt, &w.UpdatedAt)
	if err == sql.ErrNoRows {
		return w, ErrNotFound
	}
	if err != nil {
		return w, err
	}
	if err := json.Unmarshal([]byte(profile), &w.Profile); err != nil {
		return w, fmt.Errorf("decode profile of worker %s: %w", w.ID, err)
	}
	w.Profile = w.Profile.Clamp()
	return w, nil
}

func (r Repo) InsertWorker(ctx context.Context, tx *sql.Tx, w domain.Worker) error {
	profile, err := json.Marshal(w.Profile.Clamp())
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO workers(id,name,preset,profile_json,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		w.ID, w.Name, nullable(w.Preset), string(profile), w.CreatedAt, w.UpdatedAt)
	return err
}

// UpdateWorkerProfile replaces the stored profile. preset is cleared when empty.
func (r Repo) UpdateWorkerProfile(ctx context.Context, tx *sql.Tx, id string, p domain.Profile, preset, updatedAt string) error {
	profile, err := json.Marshal(p.Clamp())
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE workers SET profile_json=?, preset=?, updated_at=? WHERE id=?`,
		string(profile), nullable(preset), updatedAt, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r Repo) GetWorker(ctx context.Context, id string) (domain.Worker, error) {
	return scanWorker(r.DB.QueryRowContext(ctx, `SELECT `+workerColumns+` FROM workers WHERE id=?`, id))
}

func (r Repo) GetWorkerTx(ctx context.Context, tx *sql.Tx, id string) (domain.Worker, error) {
	return scanWorker(tx.QueryRowContext(ctx, `SELECT `+workerColumns+` FROM workers WHERE id=?`, id))
}

// Personality returns the stored profile of a worker.
func (r Repo) Personality(ctx context.Context, workerID string) (domain.Profile, error) {
	w, err := r.GetWorker(ctx, workerID)
	if err != nil {
		return domain.Profile{}, err
	}
	return w.Profile, nil
}

func (r Repo) ListWorkers(ctx context.Context) ([]domain.Worker, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+workerColumns+` FROM workers ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

// CountWorkers returns the number of spawned workers.
func (r Repo) CountWorkers(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM workers`).Scan(&n)
	return n, err
}

// DeleteWorker removes the worker; its failures and learnings cascade.
func (r Repo) DeleteWorker(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM workers WHERE id=?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// PreviousFailureCount counts recorded failures of one type for a worker.
func (r Repo) PreviousFailureCount(ctx context.Context, workerID string, ft domain.FailureType) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM failures WHERE worker_id=? AND failure_type=?`, workerID, string(ft)).Scan(&n)
	return n, err
}

// PreviousFailureCountTx counts inside tx so the read and the insert that follows stay consistent.
func (r Repo) PreviousFailureCountTx(ctx context.Context, tx *sql.Tx, workerID string, ft domain.FailureType) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM failures WHERE worker_id=? AND failure_type=?`, workerID, string(ft)).Scan(&n)
	return n, err
}

func (r Repo) InsertFailure(ctx context.Context, tx *sql.Tx, f domain.FailureRecord) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO failures(worker_id,failure_type,score,severity,ts) VALUES (?,?,?,?,?)`,
		f.WorkerID, f.FailureType, f.Score, f.Severity, f.TS)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// FailureFilters narrows ListFailures.
type FailureFilters struct {
	WorkerID    string
	FailureType string
	Limit       int
}

func (r Repo) ListFailures(ctx context.Context, f FailureFilters) ([]domain.FailureRecord, error) {
	query := `SELECT id,worker_id,failure_type,score,severity,ts FROM failures WHERE worker_id=?`
	args := []any{f.WorkerID}
	if f.FailureType != "" {
		query += ` AND failure_type=?`
		args = append(args, f.FailureType)
	}
	query += ` ORDER BY id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.FailureRecord
	for rows.Next() {
		var rec domain.FailureRecord
		if err := rows.Scan(&rec.ID, &rec.WorkerID, &rec.FailureType, &rec.Score, &rec.Severity, &rec.TS); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// FailureCounts returns the per-type failure totals of a worker.
func (r Repo) FailureCounts(ctx context.Context, workerID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT failure_type, COUNT(*) FROM failures WHERE worker_id=? GROUP BY failure_type`, workerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var ft string
		var n int
		if err := rows.Scan(&ft, &n); err != nil {
			return nil, err
		}
		res[ft] = n
	}
	return res, rows.Err()
}

func (r Repo) InsertLearning(ctx context.Context, tx *sql.Tx, l domain.Learning) error {
	if l.Statement == "" {
		return errors.New("statement required")
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO learnings(id,worker_id,failure_type,statement,created_at) VALUES (?,?,?,?,?)`,
		l.ID, l.WorkerID, l.FailureType, l.Statement, l.CreatedAt)
	return err
}

// ListLearnings returns a worker's learning statements, newest first.
func (r Repo) ListLearnings(ctx context.Context, workerID string, limit int) ([]domain.Learning, error) {
	query := `SELECT id,worker_id,failure_type,statement,created_at FROM learnings WHERE worker_id=? ORDER BY created_at DESC, rowid DESC`
	args := []any{workerID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Learning
	for rows.Next() {
		var l domain.Learning
		if err := rows.Scan(&l.ID, &l.WorkerID, &l.FailureType, &l.Statement, &l.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
