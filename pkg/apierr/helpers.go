package apierr

import (
	"errors"

	"github.com/jackc/pgx/v5"
)

// IsNotFound reports whether err comes from a lookup that matched no row,
// so handlers can map store errors to 404s without importing pgx.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
