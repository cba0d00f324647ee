package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/amishk599/jobmatch/internal/model"
)

var _ Store = (*PostgresQueue)(nil)

const postgresSchema = `CREATE TABLE IF NOT EXISTS job_queue (
	seq         BIGSERIAL PRIMARY KEY,
	id          TEXT   NOT NULL UNIQUE,
	url         TEXT   NOT NULL UNIQUE,
	title       TEXT   NOT NULL DEFAULT '',
	company     TEXT   NOT NULL DEFAULT '',
	description TEXT   NOT NULL DEFAULT '',
	status      TEXT   NOT NULL DEFAULT 'pending',
	last_error  TEXT   NOT NULL DEFAULT '',
	created_at  BIGINT NOT NULL,
	updated_at  BIGINT NOT NULL,
	version     BIGINT NOT NULL DEFAULT 1
);
ALTER TABLE job_queue ADD COLUMN IF NOT EXISTS version BIGINT NOT NULL DEFAULT 1;
CREATE INDEX IF NOT EXISTS job_queue_pending ON job_queue (status, created_at, seq);`

// PostgresQueue is the queue store backed by a shared Postgres database, for
// deployments where several hosts feed the same queue.
type PostgresQueue struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresQueue connects to dsn and ensures the job_queue table exists.
func NewPostgresQueue(ctx context.Context, dsn string) (*PostgresQueue, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating job_queue table: %w", err)
	}
	return &PostgresQueue{pool: pool, now: time.Now}, nil
}

// EnqueueOrUpdate upserts the posting keyed by its normalized URL.
func (q *PostgresQueue) EnqueueOrUpdate(ctx context.Context, p model.Posting) (model.QueueRecord, error) {
	p = prepare(p)
	if p.URL == "" {
		return model.QueueRecord{}, fmt.Errorf("enqueue posting %q: empty url", p.Title)
	}

	now := q.now().UnixNano()
	rec, err := scanRecord(q.pool.QueryRow(ctx, `
		INSERT INTO job_queue (id, url, title, company, description, status, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', '', $6, $6)
		ON CONFLICT (url) DO UPDATE SET
			title       = EXCLUDED.title,
			company     = EXCLUDED.company,
			description = EXCLUDED.description,
			status      = 'pending',
			last_error  = '',
			updated_at  = GREATEST(job_queue.updated_at, EXCLUDED.updated_at),
			version     = job_queue.version + 1
		RETURNING `+recordColumns,
		uuid.NewString(), p.URL, p.Title, p.Company, p.Description, now,
	))
	if err != nil {
		return model.QueueRecord{}, fmt.Errorf("enqueue %s: %w", p.URL, err)
	}
	return rec, nil
}

// DequeueOldestPending returns the oldest pending record, or nil.
func (q *PostgresQueue) DequeueOldestPending(ctx context.Context) (*model.QueueRecord, error) {
	return q.NextPending(ctx, model.Cursor{})
}

// NextPending returns the oldest pending record strictly after cur.
func (q *PostgresQueue) NextPending(ctx context.Context, cur model.Cursor) (*model.QueueRecord, error) {
	after := int64(0)
	if !cur.CreatedAt.IsZero() {
		after = cur.CreatedAt.UnixNano()
	}
	rec, err := scanRecord(q.pool.QueryRow(ctx, `
		SELECT `+recordColumns+` FROM job_queue
		WHERE status = 'pending'
		  AND (created_at > $1 OR (created_at = $1 AND seq > $2))
		ORDER BY created_at ASC, seq ASC
		LIMIT 1`, after, cur.Seq))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue pending: %w", err)
	}
	return &rec, nil
}

// MarkDone moves the record to done and stores its final description.
func (q *PostgresQueue) MarkDone(ctx context.Context, rec model.QueueRecord, finalDescription string) error {
	return q.settle(ctx, "mark done", rec, `
		UPDATE job_queue
		SET status = 'done', description = $1, last_error = '', updated_at = GREATEST(updated_at, $2), version = version + 1
		WHERE id = $3 AND ($4::BIGINT = 0 OR version = $4)`,
		finalDescription, q.now().UnixNano(), rec.ID, rec.Version)
}

// MarkFailed moves the record to failed and records errText.
func (q *PostgresQueue) MarkFailed(ctx context.Context, rec model.QueueRecord, errText string) error {
	return q.settle(ctx, "mark failed", rec, `
		UPDATE job_queue
		SET status = 'failed', last_error = $1, updated_at = GREATEST(updated_at, $2), version = version + 1
		WHERE id = $3 AND ($4::BIGINT = 0 OR version = $4)`,
		errText, q.now().UnixNano(), rec.ID, rec.Version)
}

// Requeue resets a record to pending.
func (q *PostgresQueue) Requeue(ctx context.Context, id string) error {
	return q.exec(ctx, "requeue", id, `
		UPDATE job_queue
		SET status = 'pending', last_error = '', updated_at = GREATEST(updated_at, $1), version = version + 1
		WHERE id = $2`, q.now().UnixNano(), id)
}

// Remove deletes a record.
func (q *PostgresQueue) Remove(ctx context.Context, id string) error {
	return q.exec(ctx, "remove", id, `DELETE FROM job_queue WHERE id = $1`, id)
}

// Get returns a single record by ID.
func (q *PostgresQueue) Get(ctx context.Context, id string) (model.QueueRecord, error) {
	rec, err := scanRecord(q.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM job_queue WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.QueueRecord{}, fmt.Errorf("get %s: %w", id, model.ErrRecordNotFound)
	}
	if err != nil {
		return model.QueueRecord{}, fmt.Errorf("get %s: %w", id, err)
	}
	return rec, nil
}

// List returns records in FIFO order, optionally filtered by status.
func (q *PostgresQueue) List(ctx context.Context, status model.Status, limit int) ([]model.QueueRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM job_queue`
	var args []any
	if status != "" {
		args = append(args, string(status))
		query += fmt.Sprintf(` WHERE status = $%d`, len(args))
	}
	query += ` ORDER BY created_at ASC, seq ASC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := q.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %q records: %w", status, err)
	}
	defer rows.Close()

	var out []model.QueueRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("list %q records: %w", status, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Stats returns the number of records per status.
func (q *PostgresQueue) Stats(ctx context.Context) (map[model.Status]int, error) {
	rows, err := q.pool.Query(ctx, `SELECT status, COUNT(*) FROM job_queue GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[model.Status]int)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("queue stats: %w", err)
		}
		stats[model.Status(status)] = int(count)
	}
	return stats, rows.Err()
}

// Close releases the connection pool.
func (q *PostgresQueue) Close() error {
	q.pool.Close()
	return nil
}

func (q *PostgresQueue) exec(ctx context.Context, op, id, query string, args ...any) error {
	tag, err := q.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", op, id, model.ErrRecordNotFound)
	}
	return nil
}

func (q *PostgresQueue) settle(ctx context.Context, op string, rec model.QueueRecord, query string, args ...any) error {
	err := q.exec(ctx, op, rec.ID, query, args...)
	if !errors.Is(err, model.ErrRecordNotFound) || rec.Version == 0 {
		return err
	}
	var exists bool
	if err := q.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM job_queue WHERE id = $1)`, rec.ID).Scan(&exists); err != nil {
		return fmt.Errorf("%s %s: %w", op, rec.ID, err)
	}
	if exists {
		return fmt.Errorf("%s %s: %w", op, rec.ID, model.ErrRecordChanged)
	}
	return err
}
