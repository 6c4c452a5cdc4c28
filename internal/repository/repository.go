// Package repository defines the contract of the remote relational store.
//
// The store is relation-scoped: every call names a relation (a table) and
// works on loosely typed rows keyed by snake_case column names, the way the
// backend returns them. Mapping rows into domain types is the caller's job.
//
//	Select(relation, query)         → rows
//	Insert(relation, row)           → inserted row (with generated id/timestamps)
//	Update(relation, patch, filter) → rows affected
//	Delete(relation, filter)        → rows affected
//
// Failures come back as *Error, which carries a machine-readable code so the
// caller can tell "relation/permission unavailable" apart from everything else.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Relations used by the study group core.
const (
	RelationGroups      = "study_groups"
	RelationMemberships = "study_group_members"
	RelationProfiles    = "profiles"
)

// Row is one record keyed by column name. Embedded relations appear as
// nested Row values (or nil when the join found nothing).
type Row map[string]any

// Op is a filter operator.
type Op string

const (
	OpEq Op = "eq"
	OpIn Op = "in"
)

// Filter restricts a query to rows where Column matches Value.
// For OpIn, Value must be a slice.
type Filter struct {
	Column string
	Op     Op
	Value  any
}

// Eq builds an equality filter.
func Eq(column string, value any) Filter { return Filter{Column: column, Op: OpEq, Value: value} }

// In builds a set-membership filter.
func In[T any](column string, values []T) Filter {
	vals := make([]any, len(values))
	for i, v := range values {
		vals[i] = v
	}
	return Filter{Column: column, Op: OpIn, Value: vals}
}

// Order sorts a select.
type Order struct {
	Column string
	Desc   bool
}

// Embed asks the store to join another relation server-side and nest the
// matching row under As. LocalKey is a column of the queried relation,
// ForeignKey a column of the embedded one.
type Embed struct {
	Relation   string
	LocalKey   string
	ForeignKey string
	As         string
	Columns    []string
}

// Query describes a select. Empty Columns means every column.
type Query struct {
	Columns []string
	Filters []Filter
	Order   []Order
	Embed   *Embed
}

// Store is the relation-scoped CRUD surface the sync core consumes.
type Store interface {
	Select(ctx context.Context, relation string, q Query) ([]Row, error)
	Insert(ctx context.Context, relation string, row Row) (Row, error)
	Update(ctx context.Context, relation string, patch Row, filters []Filter) (int64, error)
	Delete(ctx context.Context, relation string, filters []Filter) (int64, error)
}

// Error codes. The first three follow Postgres SQLSTATE, PGRST116 is the
// REST gateway's "no rows / relation unavailable" code.
const (
	CodeUndefinedTable        = "42P01"
	CodeInsufficientPrivilege = "42501"
	CodeUniqueViolation       = "23505"
	CodeNoRows                = "PGRST116"
	CodeInvalidRequest        = "22023"
	CodeInternal              = "XX000"
	CodeConnectionFailure     = "08006"
)

// Error is a store failure with a machine-readable code.
type Error struct {
	Code     string
	Message  string
	Relation string
	Err      error
}

func (e *Error) Error() string {
	if e.Relation != "" {
		return fmt.Sprintf("%s (%s, relation %s)", e.Message, e.Code, e.Relation)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// IsUnavailable reports whether the error means the backend is not
// provisioned for this relation: the table is missing, access is denied, or
// the store cannot be reached at all (SQLSTATE class 08).
// Message checks only apply when the code says nothing more specific, since
// integrity violations routinely mention the relation by name.
func (e *Error) IsUnavailable() bool {
	switch e.Code {
	case CodeUndefinedTable, CodeInsufficientPrivilege, CodeNoRows:
		return true
	case "", CodeInternal:
	default:
		if strings.HasPrefix(e.Code, "08") {
			return true
		}
		return false
	}
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "permission denied") ||
		strings.Contains(msg, "relation") ||
		strings.Contains(msg, "does not exist")
}

// IsUnavailable reports whether err carries an unavailable-class *Error.
func IsUnavailable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.IsUnavailable()
}

// HasCode reports whether err carries an *Error with the given code.
func HasCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// Message returns the backend's human-readable message for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
