package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrConflict reports a write that collided with existing state: a unique
// key already taken, or a transaction aborted by deadlock or serialization
// failure.
var ErrConflict = errors.New("store: conflict")

const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
	pgSerializationFail   = "40001"
	pgDeadlockDetected    = "40P01"
)

// translate maps Postgres errors onto the sentinels the service layer
// understands. A missing referenced row reads as sql.ErrNoRows.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgForeignKeyViolation:
		return fmt.Errorf("%w: %s", sql.ErrNoRows, pgErr.ConstraintName)
	case pgUniqueViolation:
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	case pgSerializationFail, pgDeadlockDetected:
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
	default:
		return err
	}
}
