package result

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"labor/internal/message"
	"labor/internal/storage"
	apperrors "labor/pkg/errors"
)

type Repository interface {
	InsertResult(ctx context.Context, res *Result) error
	InsertObservations(ctx context.Context, observations []Observation) error
	// MarkRawStored moves the raw message to stored if it is still in one of the
	// expected statuses, and fails with ErrStaleClaim otherwise.
	MarkRawStored(ctx context.Context, rawMessageID, resultID string, expected ...message.Status) error
	CountByRawMessageID(ctx context.Context, rawMessageID string) (results, observations int, err error)
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const insertResultSQL = `
INSERT INTO results (id, raw_message_id, owner_id, tenant_id, bsnr, lanr, bsnr_source, lanr_source,
	message_kind, patient_id, patient_last_name, patient_first_name, patient_birth_date,
	patient_address, patient_postal_code, patient_city, lab_name, lab_address,
	request_id, test_date, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`

func (r *PostgresRepository) InsertResult(ctx context.Context, res *Result) error {
	q := storage.QuerierFromCtx(ctx, r.db)
	_, err := q.ExecContext(ctx, insertResultSQL,
		res.ID,
		res.SourceMessageID,
		storage.PtrToNullString(res.OwnerID),
		storage.PtrToNullString(res.TenantID),
		storage.PtrToNullString(res.BSNR),
		storage.PtrToNullString(res.LANR),
		string(res.BSNRSource),
		string(res.LANRSource),
		res.MessageKind,
		res.Patient.PatientID,
		res.Patient.LastName,
		res.Patient.FirstName,
		res.Patient.BirthDate,
		res.Patient.Address,
		res.Patient.PostalCode,
		res.Patient.City,
		res.Lab.Name,
		res.Lab.Address,
		res.RequestID,
		res.TestDate,
		res.CreatedAt,
	)
	return storage.MapError(err, "insert result")
}

func (r *PostgresRepository) InsertObservations(ctx context.Context, observations []Observation) error {
	if len(observations) == 0 {
		return nil
	}

	query := storage.Builder().
		Insert("observations").
		Columns("id", "result_id", "position", "record_type", "field_id", "content")
	for _, o := range observations {
		query = query.Values(o.ID, o.ResultID, o.Position, o.RecordType, o.FieldID, o.Content)
	}

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return err
	}

	q := storage.QuerierFromCtx(ctx, r.db)
	_, err = q.ExecContext(ctx, sqlStr, args...)
	return storage.MapError(err, "insert observations")
}

func (r *PostgresRepository) MarkRawStored(ctx context.Context, rawMessageID, resultID string, expected ...message.Status) error {
	from := make([]string, len(expected))
	for i, s := range expected {
		from[i] = string(s)
	}

	q := storage.QuerierFromCtx(ctx, r.db)
	res, err := q.ExecContext(ctx,
		`UPDATE raw_messages SET status = 'stored', result_id = $2, updated_at = now()
		WHERE id = $1 AND status = ANY($3)`,
		rawMessageID, resultID, pq.Array(from))
	if err != nil {
		return storage.MapError(err, "mark raw message stored")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storage.MapError(err, "mark raw message stored")
	}
	if n == 0 {
		return apperrors.ErrStaleClaim.WithDetail("raw_message_id", rawMessageID)
	}
	return nil
}

func (r *PostgresRepository) CountByRawMessageID(ctx context.Context, rawMessageID string) (int, int, error) {
	q := storage.QuerierFromCtx(ctx, r.db)
	var results, observations int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT r.id), COUNT(o.id)
		FROM results r LEFT JOIN observations o ON o.result_id = r.id
		WHERE r.raw_message_id = $1`, rawMessageID).Scan(&results, &observations)
	if err != nil {
		return 0, 0, storage.MapError(err, "count results")
	}
	return results, observations, nil
}
