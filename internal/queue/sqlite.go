package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/amishk599/jobmatch/internal/model"
)

var _ Store = (*SQLiteQueue)(nil)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS job_queue (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT    NOT NULL UNIQUE,
	url         TEXT    NOT NULL UNIQUE,
	title       TEXT    NOT NULL DEFAULT '',
	company     TEXT    NOT NULL DEFAULT '',
	description TEXT    NOT NULL DEFAULT '',
	status      TEXT    NOT NULL DEFAULT 'pending',
	last_error  TEXT    NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL,
	version     INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS job_queue_pending ON job_queue (status, created_at, seq);`

const recordColumns = `seq, id, url, title, company, description, status, last_error, created_at, updated_at, version`

// SQLiteQueue is the queue store backed by a local SQLite file.
type SQLiteQueue struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteQueue opens (or creates) the SQLite database at dbPath and ensures
// the job_queue table exists.
func NewSQLiteQueue(dbPath string) (*SQLiteQueue, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening queue db: %w", err)
	}

	// One connection serializes writers; concurrent scrapers rely on the
	// upsert, not on connection-level parallelism.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging queue db: %w", err)
	}

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating job_queue table: %w", err)
	}
	if err := addSQLiteVersionColumn(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteQueue{db: db, now: time.Now}, nil
}

// EnqueueOrUpdate inserts the posting or, when its normalized URL is already
// queued, overwrites title/company/description and resets it to pending.
func (q *SQLiteQueue) EnqueueOrUpdate(ctx context.Context, p model.Posting) (model.QueueRecord, error) {
	p = prepare(p)
	if p.URL == "" {
		return model.QueueRecord{}, fmt.Errorf("enqueue posting %q: empty url", p.Title)
	}

	now := q.now().UnixNano()
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO job_queue (id, url, title, company, description, status, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'pending', '', ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			title       = excluded.title,
			company     = excluded.company,
			description = excluded.description,
			status      = 'pending',
			last_error  = '',
			updated_at  = MAX(job_queue.updated_at, excluded.updated_at),
			version     = job_queue.version + 1`,
		uuid.NewString(), p.URL, p.Title, p.Company, p.Description, now, now,
	)
	if err != nil {
		return model.QueueRecord{}, fmt.Errorf("enqueue %s: %w", p.URL, err)
	}

	rec, err := scanRecord(q.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM job_queue WHERE url = ?`, p.URL))
	if err != nil {
		return model.QueueRecord{}, fmt.Errorf("enqueue %s: reading back: %w", p.URL, err)
	}
	return rec, nil
}

// DequeueOldestPending returns the oldest pending record, or nil if the queue
// has none. The record stays pending.
func (q *SQLiteQueue) DequeueOldestPending(ctx context.Context) (*model.QueueRecord, error) {
	return q.NextPending(ctx, model.Cursor{})
}

// NextPending returns the oldest pending record strictly after cur.
func (q *SQLiteQueue) NextPending(ctx context.Context, cur model.Cursor) (*model.QueueRecord, error) {
	after := int64(0)
	if !cur.CreatedAt.IsZero() {
		after = cur.CreatedAt.UnixNano()
	}
	rec, err := scanRecord(q.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM job_queue
		WHERE status = 'pending'
		  AND (created_at > ? OR (created_at = ? AND seq > ?))
		ORDER BY created_at ASC, seq ASC
		LIMIT 1`, after, after, cur.Seq))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue pending: %w", err)
	}
	return &rec, nil
}

// MarkDone moves the record to done and stores its final description.
func (q *SQLiteQueue) MarkDone(ctx context.Context, rec model.QueueRecord, finalDescription string) error {
	return q.settle(ctx, "mark done", rec, `
		UPDATE job_queue
		SET status = 'done', description = ?, last_error = '', updated_at = MAX(updated_at, ?), version = version + 1
		WHERE id = ? AND (? = 0 OR version = ?)`,
		finalDescription, q.now().UnixNano(), rec.ID, rec.Version, rec.Version)
}

// MarkFailed moves the record to failed and records errText. The description
// is left untouched.
func (q *SQLiteQueue) MarkFailed(ctx context.Context, rec model.QueueRecord, errText string) error {
	return q.settle(ctx, "mark failed", rec, `
		UPDATE job_queue
		SET status = 'failed', last_error = ?, updated_at = MAX(updated_at, ?), version = version + 1
		WHERE id = ? AND (? = 0 OR version = ?)`,
		errText, q.now().UnixNano(), rec.ID, rec.Version, rec.Version)
}

// Requeue resets a done or failed record to pending without touching its content.
func (q *SQLiteQueue) Requeue(ctx context.Context, id string) error {
	return q.exec(ctx, "requeue", id, `
		UPDATE job_queue
		SET status = 'pending', last_error = '', updated_at = MAX(updated_at, ?), version = version + 1
		WHERE id = ?`, q.now().UnixNano(), id)
}

// Remove deletes a record.
func (q *SQLiteQueue) Remove(ctx context.Context, id string) error {
	return q.exec(ctx, "remove", id, `DELETE FROM job_queue WHERE id = ?`, id)
}

// Get returns a single record by ID.
func (q *SQLiteQueue) Get(ctx context.Context, id string) (model.QueueRecord, error) {
	rec, err := scanRecord(q.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM job_queue WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.QueueRecord{}, fmt.Errorf("get %s: %w", id, model.ErrRecordNotFound)
	}
	if err != nil {
		return model.QueueRecord{}, fmt.Errorf("get %s: %w", id, err)
	}
	return rec, nil
}

// List returns records in FIFO order. An empty status lists every record;
// limit <= 0 means no limit.
func (q *SQLiteQueue) List(ctx context.Context, status model.Status, limit int) ([]model.QueueRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM job_queue`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at ASC, seq ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
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
func (q *SQLiteQueue) Stats(ctx context.Context) (map[model.Status]int, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM job_queue GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[model.Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("queue stats: %w", err)
		}
		stats[model.Status(status)] = count
	}
	return stats, rows.Err()
}

// Close closes the underlying database connection.
func (q *SQLiteQueue) Close() error {
	return q.db.Close()
}

func (q *SQLiteQueue) exec(ctx context.Context, op, id, query string, args ...any) error {
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", op, id, model.ErrRecordNotFound)
	}
	return nil
}

// settle runs a conditional terminal write. A miss on an existing id means
// the record was written since rec was read.
func (q *SQLiteQueue) settle(ctx context.Context, op string, rec model.QueueRecord, query string, args ...any) error {
	err := q.exec(ctx, op, rec.ID, query, args...)
	if !errors.Is(err, model.ErrRecordNotFound) || rec.Version == 0 {
		return err
	}
	var exists int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM job_queue WHERE id = ?`, rec.ID).Scan(&exists); err != nil {
		return fmt.Errorf("%s %s: %w", op, rec.ID, err)
	}
	if exists > 0 {
		return fmt.Errorf("%s %s: %w", op, rec.ID, model.ErrRecordChanged)
	}
	return fmt.Errorf("%s %s: %w", op, rec.ID, model.ErrRecordNotFound)
}

// addSQLiteVersionColumn upgrades tables created before rows were versioned.
func addSQLiteVersionColumn(db *sql.DB) error {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('job_queue') WHERE name = 'version'`).Scan(&n)
	if err != nil {
		return fmt.Errorf("inspecting job_queue columns: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := db.Exec(`ALTER TABLE job_queue ADD COLUMN version INTEGER NOT NULL DEFAULT 1`); err != nil {
		return fmt.Errorf("adding job_queue.version: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (model.QueueRecord, error) {
	var (
		rec              model.QueueRecord
		status           string
		created, updated int64
	)
	err := row.Scan(&rec.Seq, &rec.ID, &rec.URL, &rec.Title, &rec.Company,
		&rec.Description, &status, &rec.LastError, &created, &updated, &rec.Version)
	if err != nil {
		return model.QueueRecord{}, err
	}
	rec.Status = model.Status(status)
	rec.CreatedAt = time.Unix(0, created)
	rec.UpdatedAt = time.Unix(0, updated)
	return rec, nil
}
