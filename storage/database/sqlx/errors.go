package sqlxrepos

import (
	"database/sql"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolgate/core"
)

var errNoRowReturned = errors.New("statement returned no row")

const (
	codeUniqueViolation   = "23505"
	codeAdminShutdown     = "57P01"
	codeCrashShutdown     = "57P02"
	constraintSingleAdmin = "profiles_single_admin"
)

// trapErr wraps err with msg. Errors that did not come back from postgres itself
// (dial, timeout, broken connection) are reported as core.TransportError;
// a server going down is reported as a shutdown error.
func trapErr(err error, msg string) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code == codeAdminShutdown || pqErr.Code == codeCrashShutdown {
			return core.NewShutdownError(msg + ": " + pqErr.Message)
		}
		return errors.Wrap(err, msg)
	}
	if err == sql.ErrNoRows || err == errNoRowReturned {
		return errors.Wrap(err, msg)
	}
	return core.NewTransportError(msg, err)
}

func isUniqueViolation(err error) (*pq.Error, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == codeUniqueViolation {
		return pqErr, true
	}
	return nil, false
}

// rowScanner is the part of *sqlx.Rows read by scanReturned.
type rowScanner interface {
	Next() bool
	Err() error
	StructScan(dest interface{}) error
}

// scanReturned scans the single row of an INSERT ... RETURNING into dest.
func scanReturned(rows rowScanner, dest interface{}) error {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return errNoRowReturned
	}
	return rows.StructScan(dest)
}
