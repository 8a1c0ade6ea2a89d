package owner

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"labor/internal/storage"
	"labor/pkg/metrics"
)

type PostgresDirectory struct {
	db          *sql.DB
	serviceName string
}

func NewPostgresDirectory(db *sql.DB, serviceName string) *PostgresDirectory {
	return &PostgresDirectory{db: db, serviceName: serviceName}
}

const ownerColumns = `id, tenant_id, user_id, bsnr, lanr`

func (d *PostgresDirectory) LookupOwner(ctx context.Context, bsnr, lanr string) (*Owner, error) {
	start := time.Now()
	q := storage.QuerierFromCtx(ctx, d.db)
	o, err := scanOwner(q.QueryRowContext(ctx,
		`SELECT `+ownerColumns+` FROM owners WHERE bsnr = $1 AND lanr = $2`, bsnr, lanr))
	metrics.ObserveDatabaseQuery(d.serviceName, "postgres", "lookup_owner", time.Since(start), ignoreNoRows(err))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOwnerNotFound.WithDetail("bsnr", bsnr).WithDetail("lanr", lanr)
	}
	if err != nil {
		return nil, storage.MapError(err, "lookup owner")
	}
	return o, nil
}

func (d *PostgresDirectory) GetOwner(ctx context.Context, id string) (*Owner, error) {
	q := storage.QuerierFromCtx(ctx, d.db)
	o, err := scanOwner(q.QueryRowContext(ctx, `SELECT `+ownerColumns+` FROM owners WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOwnerNotFound.WithDetail("owner_id", id)
	}
	if err != nil {
		return nil, storage.MapError(err, "get owner")
	}
	return o, nil
}

func scanOwner(row *sql.Row) (*Owner, error) {
	var o Owner
	if err := row.Scan(&o.ID, &o.TenantID, &o.UserID, &o.BSNR, &o.LANR); err != nil {
		return nil, err
	}
	return &o, nil
}

func ignoreNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	return err
}
