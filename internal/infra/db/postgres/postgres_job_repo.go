package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"docs-ingestion-service/internal/domain"
	"docs-ingestion-service/internal/domain/model"
	"docs-ingestion-service/internal/domain/ports/repository"
)

var _ repository.JobRepository = (*jobRepo)(nil)

// jobRepo stores jobs with options and progress serialized to JSONB. The
// structured payloads exist only at this boundary; the rest of the system
// works with the typed model.
type jobRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewJobRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *jobRepo {
	return &jobRepo{
		pool: pool,
		tm:   tm,
	}
}

func (r *jobRepo) Create(ctx context.Context, tx repository.Tx, job *model.Job) error {
	optionsJSON, err := json.Marshal(job.Options)
	if err != nil {
		return fmt.Errorf("marshal job options: %w", err)
	}
	progressJSON, err := json.Marshal(job.Progress)
	if err != nil {
		return fmt.Errorf("marshal job progress: %w", err)
	}

	const q = `
INSERT INTO ingestion_jobs (id, url, options, status, progress, error_message, created_at, started_at, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);`

	_, err = execSQL(ctx, r.pool, tx, q,
		job.ID, job.URL, optionsJSON, string(job.Status), progressJSON,
		job.ErrorMessage, job.CreatedAt, job.StartedAt, job.CompletedAt)
	return err
}

func (r *jobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	const q = `
SELECT id, url, options, status, progress, error_message, created_at, started_at, completed_at
FROM ingestion_jobs
WHERE id = $1;`

	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

func (r *jobRepo) Update(ctx context.Context, tx repository.Tx, id string, upd repository.JobUpdate) error {
	set := make([]string, 0, 5)
	args := make([]interface{}, 0, 6)
	args = append(args, id)

	add := func(col string, v interface{}) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if upd.Status != nil {
		add("status", string(*upd.Status))
	}
	if upd.Progress != nil {
		progressJSON, err := json.Marshal(upd.Progress)
		if err != nil {
			return fmt.Errorf("marshal job progress: %w", err)
		}
		add("progress", progressJSON)
	}
	if upd.ErrorMessage != nil {
		add("error_message", *upd.ErrorMessage)
	}
	if upd.StartedAt != nil {
		add("started_at", *upd.StartedAt)
	}
	if upd.CompletedAt != nil {
		add("completed_at", *upd.CompletedAt)
	}
	if len(set) == 0 {
		return nil
	}

	q := "UPDATE ingestion_jobs SET " + joinSet(set) + " WHERE id = $1;"
	cmd, err := execSQL(ctx, r.pool, tx, q, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *jobRepo) FetchAndMarkProcessing(ctx context.Context) (*model.Job, error) {
	var job *model.Job

	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		const fetchQuery = `
SELECT id, url, options, status, progress, error_message, created_at, started_at, completed_at
FROM ingestion_jobs
WHERE status = 'queued'
ORDER BY created_at
LIMIT 1
FOR UPDATE SKIP LOCKED;`

		row, err := pickRow(ctx, r.pool, tx, fetchQuery)
		if err != nil {
			return err
		}
		claimed, err := scanJob(row)
		if err != nil {
			return err
		}

		now := time.Now()
		claimed.Status = model.JobStatusProcessing
		claimed.StartedAt = &now

		const claimQuery = `
UPDATE ingestion_jobs SET status = $2, started_at = $3 WHERE id = $1;`
		if _, err := execSQL(ctx, r.pool, tx, claimQuery, claimed.ID, string(claimed.Status), now); err != nil {
			return err
		}

		job = claimed
		return nil
	})

	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNotFound
	}
	return job, err
}

func (r *jobRepo) DeleteOlderThan(ctx context.Context, tx repository.Tx, cutoff time.Time) (int, error) {
	const q = `
DELETE FROM ingestion_jobs
WHERE status IN ('completed', 'failed') AND created_at < $1;`

	cmd, err := execSQL(ctx, r.pool, tx, q, cutoff)
	if err != nil {
		return 0, err
	}
	return int(cmd.RowsAffected()), nil
}

func scanJob(row pgx.Row) (*model.Job, error) {
	var (
		job          model.Job
		statusStr    string
		optionsJSON  []byte
		progressJSON []byte
	)
	err := row.Scan(
		&job.ID, &job.URL, &optionsJSON, &statusStr, &progressJSON,
		&job.ErrorMessage, &job.CreatedAt, &job.StartedAt, &job.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	job.Status = model.JobStatus(statusStr)
	if len(optionsJSON) > 0 {
		if err := json.Unmarshal(optionsJSON, &job.Options); err != nil {
			return nil, fmt.Errorf("unmarshal job options: %w", err)
		}
	}
	if len(progressJSON) > 0 {
		if err := json.Unmarshal(progressJSON, &job.Progress); err != nil {
			return nil, fmt.Errorf("unmarshal job progress: %w", err)
		}
	}
	return &job, nil
}

func joinSet(set []string) string {
	out := set[0]
	for _, s := range set[1:] {
		out += ", " + s
	}
	return out
}
