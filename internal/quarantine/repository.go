package quarantine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"labor/internal/message"
	"labor/internal/storage"
	apperrors "labor/pkg/errors"
)

type Repository interface {
	Create(ctx context.Context, entry *Entry) error
	Get(ctx context.Context, id string) (*Entry, error)
	GetByRawMessageID(ctx context.Context, rawMessageID string) (*Entry, error)
	List(ctx context.Context, filter ListFilter) ([]*Entry, int, error)
	// LeaseDue leases up to limit pending entries whose retry is due. Entries leased by
	// another worker are skipped.
	LeaseDue(ctx context.Context, now, leaseUntil time.Time, limit int) ([]*Entry, error)
	// Lease leases one entry regardless of its schedule. Resolved entries cannot be leased.
	Lease(ctx context.Context, id string, now, leaseUntil time.Time) (*Entry, error)
	// UpdateAttempt persists the outcome of a failed replay and clears the lease.
	UpdateAttempt(ctx context.Context, entry *Entry) error
	// Resolve marks a leased entry resolved.
	Resolve(ctx context.Context, entry *Entry) error
	ReleaseLease(ctx context.Context, entry *Entry) error
	// SetRawStatus moves the raw message from one of the expected statuses to status.
	SetRawStatus(ctx context.Context, rawMessageID string, status message.Status, expected ...message.Status) error
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const entryColumns = `id, raw_message_id, reason, error_details, retry_count, status, last_retry_at,
	next_retry_at, lease_until, version, created_at, updated_at`

const insertEntrySQL = `
INSERT INTO quarantine_entries (id, raw_message_id, reason, error_details, retry_count, status,
	last_retry_at, next_retry_at, lease_until, version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL, $9, $10, $10)`

const leaseDueSQL = `
UPDATE quarantine_entries
SET lease_until = $2, version = version + 1, updated_at = $1
WHERE id IN (
	SELECT id FROM quarantine_entries
	WHERE status = 'pending'
	  AND next_retry_at <= $1
	  AND (lease_until IS NULL OR lease_until < $1)
	ORDER BY next_retry_at
	LIMIT $3
	FOR UPDATE SKIP LOCKED
)
RETURNING ` + entryColumns

const leaseOneSQL = `
UPDATE quarantine_entries
SET lease_until = $3, version = version + 1, updated_at = $2
WHERE id = $1
  AND status <> 'resolved'
  AND (lease_until IS NULL OR lease_until < $2)
RETURNING ` + entryColumns

const updateAttemptSQL = `
UPDATE quarantine_entries
SET retry_count = $3, status = $4, last_retry_at = $5, next_retry_at = $6, reason = $7,
	error_details = $8, lease_until = NULL, version = version + 1, updated_at = $5
WHERE id = $1 AND version = $2`

const resolveSQL = `
UPDATE quarantine_entries
SET status = 'resolved', lease_until = NULL, next_retry_at = NULL, version = version + 1, updated_at = now()
WHERE id = $1 AND version = $2`

const releaseLeaseSQL = `
UPDATE quarantine_entries
SET lease_until = NULL, version = version + 1, updated_at = now()
WHERE id = $1 AND version = $2`

func (r *PostgresRepository) Create(ctx context.Context, entry *Entry) error {
	details, err := json.Marshal(entry.ErrorDetails)
	if err != nil {
		return fmt.Errorf("marshal error details: %w", err)
	}

	q := storage.QuerierFromCtx(ctx, r.db)
	_, err = q.ExecContext(ctx, insertEntrySQL,
		entry.ID,
		entry.RawMessageID,
		entry.Reason,
		details,
		entry.RetryCount,
		string(entry.Status),
		entry.LastRetryAt,
		entry.NextRetryAt,
		entry.Version,
		entry.CreatedAt,
	)
	return storage.MapError(err, "create quarantine entry")
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Entry, error) {
	q := storage.QuerierFromCtx(ctx, r.db)
	entry, err := scanEntry(q.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM quarantine_entries WHERE id = $1`, id))
	if err != nil {
		return nil, storage.MapError(err, "get quarantine entry")
	}
	return entry, nil
}

func (r *PostgresRepository) GetByRawMessageID(ctx context.Context, rawMessageID string) (*Entry, error) {
	q := storage.QuerierFromCtx(ctx, r.db)
	entry, err := scanEntry(q.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM quarantine_entries WHERE raw_message_id = $1`, rawMessageID))
	if err != nil {
		return nil, storage.MapError(err, "get quarantine entry by raw message")
	}
	return entry, nil
}

func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]*Entry, int, error) {
	sb := storage.Builder()

	countQuery := sb.Select("COUNT(*)").From("quarantine_entries")
	listQuery := sb.Select(entryColumns).From("quarantine_entries").
		OrderBy("created_at DESC", "id").
		Limit(uint64(filter.Limit)).
		Offset(uint64(filter.Offset))

	if filter.Status != "" {
		countQuery = countQuery.Where("status = ?", string(filter.Status))
		listQuery = listQuery.Where("status = ?", string(filter.Status))
	}
	if filter.Reason != "" {
		countQuery = countQuery.Where("reason = ?", filter.Reason)
		listQuery = listQuery.Where("reason = ?", filter.Reason)
	}

	q := storage.QuerierFromCtx(ctx, r.db)

	countSQL, countArgs, err := countQuery.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count query: %w", err)
	}
	var total int
	if err := q.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, storage.MapError(err, "count quarantine entries")
	}

	listSQL, listArgs, err := listQuery.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list query: %w", err)
	}
	rows, err := q.QueryContext(ctx, listSQL, listArgs...)
	if err != nil {
		return nil, 0, storage.MapError(err, "list quarantine entries")
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, 0, storage.MapError(err, "scan quarantine entries")
	}
	return entries, total, nil
}

func (r *PostgresRepository) LeaseDue(ctx context.Context, now, leaseUntil time.Time, limit int) ([]*Entry, error) {
	q := storage.QuerierFromCtx(ctx, r.db)
	rows, err := q.QueryContext(ctx, leaseDueSQL, now, leaseUntil, limit)
	if err != nil {
		return nil, storage.MapError(err, "lease due quarantine entries")
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, storage.MapError(err, "scan leased quarantine entries")
	}
	return entries, nil
}

func (r *PostgresRepository) Lease(ctx context.Context, id string, now, leaseUntil time.Time) (*Entry, error) {
	q := storage.QuerierFromCtx(ctx, r.db)
	entry, err := scanEntry(q.QueryRowContext(ctx, leaseOneSQL, id, now, leaseUntil))
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, apperrors.ErrLeaseLost.WithDetail("entry_id", id)
	}
	if err != nil {
		return nil, storage.MapError(err, "lease quarantine entry")
	}
	return entry, nil
}

func (r *PostgresRepository) UpdateAttempt(ctx context.Context, entry *Entry) error {
	details, err := json.Marshal(entry.ErrorDetails)
	if err != nil {
		return fmt.Errorf("marshal error details: %w", err)
	}
	return r.execVersioned(ctx, "update quarantine attempt", entry, updateAttemptSQL,
		entry.ID,
		entry.Version,
		entry.RetryCount,
		string(entry.Status),
		entry.LastRetryAt,
		entry.NextRetryAt,
		entry.Reason,
		details,
	)
}

func (r *PostgresRepository) Resolve(ctx context.Context, entry *Entry) error {
	return r.execVersioned(ctx, "resolve quarantine entry", entry, resolveSQL, entry.ID, entry.Version)
}

func (r *PostgresRepository) ReleaseLease(ctx context.Context, entry *Entry) error {
	return r.execVersioned(ctx, "release quarantine lease", entry, releaseLeaseSQL, entry.ID, entry.Version)
}

// execVersioned runs a compare-and-set update and bumps entry.Version on success.
func (r *PostgresRepository) execVersioned(ctx context.Context, op string, entry *Entry, query string, args ...any) error {
	q := storage.QuerierFromCtx(ctx, r.db)
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return storage.MapError(err, op)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storage.MapError(err, op)
	}
	if n == 0 {
		return apperrors.ErrLeaseLost.WithDetail("entry_id", entry.ID)
	}
	entry.Version++
	return nil
}

func (r *PostgresRepository) SetRawStatus(ctx context.Context, rawMessageID string, status message.Status, expected ...message.Status) error {
	from := make([]string, len(expected))
	for i, s := range expected {
		from[i] = string(s)
	}

	q := storage.QuerierFromCtx(ctx, r.db)
	res, err := q.ExecContext(ctx,
		`UPDATE raw_messages SET status = $2, updated_at = now() WHERE id = $1 AND status = ANY($3)`,
		rawMessageID, string(status), pq.Array(from))
	if err != nil {
		return storage.MapError(err, "set raw message status")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storage.MapError(err, "set raw message status")
	}
	if n == 0 {
		return apperrors.ErrStaleClaim.WithDetail("raw_message_id", rawMessageID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		entry                            Entry
		details                          []byte
		status                           string
		lastRetry, nextRetry, leaseUntil sql.NullTime
	)
	err := row.Scan(
		&entry.ID,
		&entry.RawMessageID,
		&entry.Reason,
		&details,
		&entry.RetryCount,
		&status,
		&lastRetry,
		&nextRetry,
		&leaseUntil,
		&entry.Version,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &entry.ErrorDetails); err != nil {
			return nil, fmt.Errorf("unmarshal error details: %w", err)
		}
	}
	entry.Status = Status(status)
	entry.LastRetryAt = timePtr(lastRetry)
	entry.NextRetryAt = timePtr(nextRetry)
	entry.LeaseUntil = timePtr(leaseUntil)
	return &entry, nil
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
