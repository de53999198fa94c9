package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/scry-assess/internal/store"
)

// SQLSTATE codes the stores react to.
const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeCheckViolation       = "23514"
	codeNotNullViolation     = "23502"
	codeSerializationFailure = "40001"
	codeLockNotAvailable     = "55P03"
)

type pgMapping struct {
	target error
	label  string
}

var pgErrorMap = map[string]pgMapping{
	codeUniqueViolation:      {store.ErrDuplicate, "unique violation"},
	codeForeignKeyViolation:  {store.ErrInvalidEntity, "unknown skill or question"},
	codeCheckViolation:       {store.ErrInvalidEntity, "check constraint violation"},
	codeNotNullViolation:     {store.ErrInvalidEntity, "missing required column"},
	codeSerializationFailure: {store.ErrVersionConflict, "serialization failure"},
	codeLockNotAvailable:     {store.ErrVersionConflict, "row lock not available"},
}

// MapError translates driver errors into store sentinels. Unknown errors are
// returned unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", store.ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	m, ok := pgErrorMap[pgErr.Code]
	if !ok {
		return err
	}
	detail := pgErr.ConstraintName
	if detail == "" {
		detail = pgErr.ColumnName
	}
	if detail == "" {
		return fmt.Errorf("%w: %s: %v", m.target, m.label, err)
	}
	return fmt.Errorf("%w: %s (%s): %v", m.target, m.label, detail, err)
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}

// CheckRowsAffected returns notFound (store.ErrNotFound when nil) if the
// statement matched no rows.
func CheckRowsAffected(result sql.Result, notFound error) error {
	if result == nil {
		return errors.New("nil result")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	if notFound == nil {
		return store.ErrNotFound
	}
	return notFound
}
