package exchange

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrConflict reports a lock timeout, deadlock abort or serialization
// failure. The unit of work rolled back whole; the caller may retry.
var ErrConflict = errors.New("concurrent update conflict")

// Postgres SQLSTATEs that mean the transaction lost a race rather than
// violated a business rule.
var retryableCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
}

func mapStorageErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && retryableCodes[pgErr.Code] {
		return ErrConflict
	}
	return err
}
