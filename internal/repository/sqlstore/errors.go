package sqlstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sakif/studysync/internal/repository"
)

// SQLite reports failures as plain text; these are the fragments we map to
// the codes Postgres would have used for the same condition.
var sqliteCodes = []struct {
	fragment string
	code     string
}{
	{"no such table", repository.CodeUndefinedTable},
	{"no such column", CodeUndefinedColumn},
	{"UNIQUE constraint failed", repository.CodeUniqueViolation},
	{"FOREIGN KEY constraint failed", "23503"},
	{"NOT NULL constraint failed", "23502"},
	{"CHECK constraint failed", "23514"},
}

// mapError converts a driver error into *repository.Error. Errors that are
// already *repository.Error pass through untouched.
func mapError(relName string, err error) error {
	if err == nil {
		return nil
	}

	var repoErr *repository.Error
	if errors.As(err, &repoErr) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &repository.Error{
			Code:     pgErr.Code,
			Message:  pgErr.Message,
			Relation: relName,
			Err:      err,
		}
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return &repository.Error{
			Code:     repository.CodeConnectionFailure,
			Message:  connErr.Error(),
			Relation: relName,
			Err:      err,
		}
	}

	msg := err.Error()
	cause := driverMessage(err)
	for _, m := range sqliteCodes {
		if !strings.Contains(msg, m.fragment) {
			continue
		}
		out := &repository.Error{Code: m.code, Message: cause, Relation: relName, Err: err}
		if m.code == repository.CodeUndefinedTable {
			out.Message = fmt.Sprintf("relation %q does not exist", relName)
		}
		return out
	}

	return &repository.Error{
		Code:     repository.CodeInternal,
		Message:  cause,
		Relation: relName,
		Err:      err,
	}
}

// driverMessage is the text of the innermost error, without the
// "sqlstore: <op>:" prefixes added on the way up.
func driverMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
