// Package storage holds the Postgres plumbing shared by the repositories: a
// context-scoped transaction manager, query building and error mapping.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	apperrors "labor/pkg/errors"
)

// Querier is implemented by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txCtxKey struct{}

func withTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txCtxKey{}, tx)
}

// QuerierFromCtx returns the transaction carried by ctx, or db when there is none.
func QuerierFromCtx(ctx context.Context, db *sql.DB) Querier {
	if tx, ok := ctx.Value(txCtxKey{}).(*sql.Tx); ok {
		return tx
	}
	return db
}

// TxRunner is implemented by TxManager. Services depend on it so tests can run
// callbacks without a database.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// TxManager runs callbacks inside one transaction. Nested RunInTx calls open an
// independent transaction and must be avoided.
type TxManager struct {
	db *sql.DB
}

func NewTxManager(db *sql.DB) *TxManager {
	return &TxManager{db: db}
}

// RunInTx commits when fn returns nil and rolls back otherwise, including on panic.
func (m *TxManager) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return MapError(err, "begin transaction")
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(withTx(ctx, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("rollback failed: %w (original error: %v)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return MapError(err, "commit transaction")
	}

	return nil
}

// Builder returns a squirrel statement builder using Postgres placeholders.
func Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// Text the server cannot store. Retrying the same bytes fails the same way.
const (
	pgCharacterNotInRepertoire = "22021"
	pgUntranslatableCharacter  = "22P05"
)

// MapError converts driver errors to application errors. Context errors pass through
// unchanged; anything unclassified is a store failure.
func MapError(err error, op string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}

	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.ErrNotFound.WithCause(fmt.Errorf("%s: %w", op, err))
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pgUniqueViolation:
			return apperrors.ErrConflict.WithCause(fmt.Errorf("%s: %w", op, err)).
				WithDetail("constraint", pqErr.Constraint)
		case pgForeignKeyViolation:
			return apperrors.ErrNotFound.WithCause(fmt.Errorf("%s: %w", op, err)).
				WithDetail("constraint", pqErr.Constraint)
		case pgCheckViolation:
			return apperrors.ErrValidation.WithCause(fmt.Errorf("%s: %w", op, err)).
				WithDetail("constraint", pqErr.Constraint)
		case pgCharacterNotInRepertoire, pgUntranslatableCharacter:
			return apperrors.ErrInvalidPayload.WithCause(fmt.Errorf("%s: %w", op, err)).
				WithDetail("sqlstate", string(pqErr.Code))
		}
	}

	return apperrors.ErrStoreFailure.WithCause(fmt.Errorf("%s: %w", op, err))
}

// NullString maps empty strings to NULL.
func NullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// StringPtr maps NULL to nil.
func StringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func PtrToNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
