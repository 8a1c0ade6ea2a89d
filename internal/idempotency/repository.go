package idempotency

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"labor/internal/ldt"
	"labor/internal/message"
	"labor/internal/storage"
)

type Repository interface {
	// Insert stores raw unless its idempotency key already exists. It reports whether
	// the row was inserted.
	Insert(ctx context.Context, raw *message.Raw) (bool, error)
	GetByKey(ctx context.Context, key string) (*message.Raw, error)
	GetByID(ctx context.Context, id string) (*message.Raw, error)
	// Reclaim takes over a released claim, or one left in received since before
	// staleBefore. It returns nil when the row is not reclaimable.
	Reclaim(ctx context.Context, key string, staleBefore, now time.Time) (*message.Raw, error)
	// Release gives up a claim that is still in received.
	Release(ctx context.Context, id string) error
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const rawColumns = `id, idempotency_key, transport_message_id, source, payload, bsnr_hint, lanr_hint,
	status, result_id, received_at, claimed_at`

const insertRawSQL = `
INSERT INTO raw_messages (id, idempotency_key, transport_message_id, source, payload, bsnr_hint, lanr_hint,
	status, received_at, claimed_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
ON CONFLICT (idempotency_key) DO NOTHING
RETURNING id`

const reclaimRawSQL = `
UPDATE raw_messages
SET status = 'received', claimed_at = $3, updated_at = $3
WHERE idempotency_key = $1
  AND (status = 'released' OR (status = 'received' AND claimed_at < $2))
RETURNING ` + rawColumns

const releaseRawSQL = `
UPDATE raw_messages
SET status = 'released', updated_at = now()
WHERE id = $1 AND status = 'received'`

func (r *PostgresRepository) Insert(ctx context.Context, raw *message.Raw) (bool, error) {
	q := storage.QuerierFromCtx(ctx, r.db)

	var id string
	err := q.QueryRowContext(ctx, insertRawSQL,
		raw.ID,
		raw.IdempotencyKey,
		storage.NullString(raw.TransportMessageID),
		raw.Source,
		raw.Payload,
		storage.NullString(raw.Hints.BSNR),
		storage.NullString(raw.Hints.LANR),
		string(message.StatusReceived),
		raw.ReceivedAt,
		raw.ClaimedAt,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storage.MapError(err, "insert raw message")
	}
	return true, nil
}

func (r *PostgresRepository) GetByKey(ctx context.Context, key string) (*message.Raw, error) {
	q := storage.QuerierFromCtx(ctx, r.db)
	row := q.QueryRowContext(ctx, `SELECT `+rawColumns+` FROM raw_messages WHERE idempotency_key = $1`, key)
	raw, err := scanRaw(row)
	if err != nil {
		return nil, storage.MapError(err, "get raw message by key")
	}
	return raw, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*message.Raw, error) {
	q := storage.QuerierFromCtx(ctx, r.db)
	row := q.QueryRowContext(ctx, `SELECT `+rawColumns+` FROM raw_messages WHERE id = $1`, id)
	raw, err := scanRaw(row)
	if err != nil {
		return nil, storage.MapError(err, "get raw message")
	}
	return raw, nil
}

func (r *PostgresRepository) Reclaim(ctx context.Context, key string, staleBefore, now time.Time) (*message.Raw, error) {
	q := storage.QuerierFromCtx(ctx, r.db)
	raw, err := scanRaw(q.QueryRowContext(ctx, reclaimRawSQL, key, staleBefore, now))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storage.MapError(err, "reclaim raw message")
	}
	return raw, nil
}

func (r *PostgresRepository) Release(ctx context.Context, id string) error {
	q := storage.QuerierFromCtx(ctx, r.db)
	_, err := q.ExecContext(ctx, releaseRawSQL, id)
	return storage.MapError(err, "release raw message")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRaw(row rowScanner) (*message.Raw, error) {
	var (
		raw                             message.Raw
		transportID, bsnrHint, lanrHint sql.NullString
		resultID                        sql.NullString
		status                          string
	)
	err := row.Scan(
		&raw.ID,
		&raw.IdempotencyKey,
		&transportID,
		&raw.Source,
		&raw.Payload,
		&bsnrHint,
		&lanrHint,
		&status,
		&resultID,
		&raw.ReceivedAt,
		&raw.ClaimedAt,
	)
	if err != nil {
		return nil, err
	}
	raw.TransportMessageID = transportID.String
	raw.Hints = ldt.Hints{BSNR: bsnrHint.String, LANR: lanrHint.String}
	raw.Status = message.Status(status)
	raw.ResultID = storage.StringPtr(resultID)
	return &raw, nil
}
