package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// isConstraint reports a unique violation on one specific named constraint,
// so unrelated conflicts are not misreported as domain errors.
func isConstraint(err error, name string) bool {
	var pgErr *pgconn.PgError

	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == name
}
