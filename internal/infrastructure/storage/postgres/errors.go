package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"costledger/internal/core/apperror"
)

// SQLSTATE codes the storage layer maps to domain errors.
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateLockNotAvailable     = "55P03"
	sqlStateUniqueViolation      = "23505"
	sqlStateForeignKeyViolation  = "23503"
	sqlStateCheckViolation       = "23514"
)

// TranslateError maps driver errors to apperror values. Errors that already
// carry an AppError pass through unchanged. entity and key describe the row
// the statement touched and only feed the error message.
func TranslateError(err error, entity string, key any) error {
	if err == nil {
		return nil
	}
	if apperror.IsAppError(err) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperror.NewNotFound(entity, key)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case sqlStateSerializationFailure, sqlStateDeadlockDetected, sqlStateLockNotAvailable:
		return apperror.NewConcurrentModification(entity, key).
			WithDetail("sqlstate", pgErr.Code).
			WithCause(err)
	case sqlStateUniqueViolation:
		return apperror.NewConflict("duplicate "+entity).
			WithDetail("constraint", pgErr.ConstraintName).
			WithCause(err)
	case sqlStateForeignKeyViolation:
		return apperror.NewConflict(entity+" is still referenced").
			WithDetail("constraint", pgErr.ConstraintName).
			WithCause(err)
	case sqlStateCheckViolation:
		return apperror.NewValidation(entity + " violates " + pgErr.ConstraintName).WithCause(err)
	}
	return err
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlStateUniqueViolation
}
