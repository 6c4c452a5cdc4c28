package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/studysync/internal/repository"
)

// Select runs a filtered, ordered read. With q.Embed set, the embedded
// relation is LEFT JOINed and nested under Embed.As; a row whose join found
// nothing gets a nil there.
//
// Every identifier is checked against the catalog before it reaches SQL, and
// every value travels as a bind parameter.
func (db *DB) Select(ctx context.Context, relName string, q repository.Query) ([]repository.Row, error) {
	rel, err := db.authorize(relName)
	if err != nil {
		return nil, err
	}

	names := q.Columns
	if len(names) == 0 {
		names = rel.names()
	}
	cols := make([]column, 0, len(names))
	selectList := make([]string, 0, len(names))
	for _, n := range names {
		c, err := lookupColumn(relName, rel, n)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
		selectList = append(selectList, "t."+c.name)
	}

	var (
		embRel  relation
		embCols []column
		embKey  column
		join    string
	)
	if e := q.Embed; e != nil {
		if embRel, err = db.authorize(e.Relation); err != nil {
			return nil, err
		}
		if _, err := lookupColumn(relName, rel, e.LocalKey); err != nil {
			return nil, err
		}
		if embKey, err = lookupColumn(e.Relation, embRel, e.ForeignKey); err != nil {
			return nil, err
		}
		embNames := e.Columns
		if len(embNames) == 0 {
			embNames = embRel.names()
		}
		for _, n := range embNames {
			c, err := lookupColumn(e.Relation, embRel, n)
			if err != nil {
				return nil, err
			}
			embCols = append(embCols, c)
			selectList = append(selectList, "e."+c.name)
		}
		// The join key tells a missing embedded row apart from one whose
		// selected columns all happen to be NULL.
		selectList = append(selectList, "e."+embKey.name)
		join = fmt.Sprintf(" LEFT JOIN %s AS e ON e.%s = t.%s", e.Relation, embKey.name, e.LocalKey)
	}

	where, args, err := db.whereClause(relName, rel, "t.", q.Filters, 0)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s AS t%s%s", strings.Join(selectList, ", "), relName, join, where)
	if len(q.Order) > 0 {
		parts := make([]string, 0, len(q.Order))
		for _, o := range q.Order {
			if _, err := lookupColumn(relName, rel, o.Column); err != nil {
				return nil, err
			}
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			parts = append(parts, fmt.Sprintf("t.%s %s", o.Column, dir))
		}
		sb.WriteString(" ORDER BY " + strings.Join(parts, ", "))
	}

	rows, err := db.conn.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, mapError(relName, fmt.Errorf("sqlstore: selecting %s: %w", relName, err))
	}
	defer rows.Close()

	width := len(selectList)
	out := make([]repository.Row, 0)
	for rows.Next() {
		raw := make([]any, width)
		dest := make([]any, width)
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, mapError(relName, fmt.Errorf("sqlstore: scanning %s row: %w", relName, err))
		}

		row := make(repository.Row, len(cols)+1)
		for i, c := range cols {
			if row[c.name], err = decode(c, raw[i]); err != nil {
				return nil, mapError(relName, err)
			}
		}
		if q.Embed != nil {
			if raw[width-1] == nil {
				row[q.Embed.As] = nil
			} else {
				nested := make(repository.Row, len(embCols))
				for i, c := range embCols {
					if nested[c.name], err = decode(c, raw[len(cols)+i]); err != nil {
						return nil, mapError(q.Embed.Relation, err)
					}
				}
				row[q.Embed.As] = nested
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(relName, fmt.Errorf("sqlstore: iterating %s: %w", relName, err))
	}

	return out, nil
}

// Insert writes one row. The id column gets an xid and the timestamp column
// the current time when the caller leaves them empty. The returned row holds
// every written column in its decoded form.
func (db *DB) Insert(ctx context.Context, relName string, in repository.Row) (repository.Row, error) {
	rel, err := db.authorize(relName)
	if err != nil {
		return nil, err
	}

	row := make(repository.Row, len(in)+2)
	for k, v := range in {
		row[k] = v
	}
	if v, ok := row[rel.idColumn]; !ok || v == nil || v == "" {
		row[rel.idColumn] = xid.New().String()
	}
	if v, ok := row[rel.timeColumn]; !ok || v == nil || v == "" {
		row[rel.timeColumn] = db.now()
	}

	names := make([]string, 0, len(row))
	marks := make([]string, 0, len(row))
	args := make([]any, 0, len(row))
	out := make(repository.Row, len(row))
	// Walk the catalog, not the map, so column order is deterministic.
	for _, c := range rel.columns {
		v, ok := row[c.name]
		if !ok {
			continue
		}
		enc, err := encode(c, v)
		if err != nil {
			return nil, &repository.Error{Code: repository.CodeInvalidRequest, Message: err.Error(), Relation: relName, Err: err}
		}
		names = append(names, c.name)
		args = append(args, enc)
		marks = append(marks, db.placeholder(len(args)))
		if out[c.name], err = decode(c, enc); err != nil {
			return nil, mapError(relName, err)
		}
	}
	for k := range row {
		if _, err := lookupColumn(relName, rel, k); err != nil {
			return nil, err
		}
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", relName, strings.Join(names, ", "), strings.Join(marks, ", "))
	if _, err := db.conn.ExecContext(ctx, query, args...); err != nil {
		return nil, mapError(relName, fmt.Errorf("sqlstore: inserting into %s: %w", relName, err))
	}

	return out, nil
}

// Update applies patch to every row matching filters and reports how many
// rows changed. Zero is not an error here: the caller decides what an
// unmatched filter means.
func (db *DB) Update(ctx context.Context, relName string, patch repository.Row, filters []repository.Filter) (int64, error) {
	rel, err := db.authorize(relName)
	if err != nil {
		return 0, err
	}
	if len(patch) == 0 {
		return 0, &repository.Error{Code: repository.CodeInvalidRequest, Message: "update with an empty patch", Relation: relName}
	}
	if len(filters) == 0 {
		return 0, &repository.Error{Code: repository.CodeInvalidRequest, Message: "update without a filter", Relation: relName}
	}

	sets := make([]string, 0, len(patch))
	args := make([]any, 0, len(patch)+len(filters))
	for _, c := range rel.columns {
		v, ok := patch[c.name]
		if !ok {
			continue
		}
		enc, err := encode(c, v)
		if err != nil {
			return 0, &repository.Error{Code: repository.CodeInvalidRequest, Message: err.Error(), Relation: relName, Err: err}
		}
		args = append(args, enc)
		sets = append(sets, fmt.Sprintf("%s = %s", c.name, db.placeholder(len(args))))
	}
	for k := range patch {
		if _, err := lookupColumn(relName, rel, k); err != nil {
			return 0, err
		}
	}

	where, whereArgs, err := db.whereClause(relName, rel, "", filters, len(args))
	if err != nil {
		return 0, err
	}
	args = append(args, whereArgs...)

	query := fmt.Sprintf("UPDATE %s SET %s%s", relName, strings.Join(sets, ", "), where)
	result, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapError(relName, fmt.Errorf("sqlstore: updating %s: %w", relName, err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, mapError(relName, fmt.Errorf("sqlstore: checking rows affected: %w", err))
	}
	return n, nil
}

// Delete removes every row matching filters. A filter is mandatory.
func (db *DB) Delete(ctx context.Context, relName string, filters []repository.Filter) (int64, error) {
	rel, err := db.authorize(relName)
	if err != nil {
		return 0, err
	}
	if len(filters) == 0 {
		return 0, &repository.Error{Code: repository.CodeInvalidRequest, Message: "delete without a filter", Relation: relName}
	}

	where, args, err := db.whereClause(relName, rel, "", filters, 0)
	if err != nil {
		return 0, err
	}

	result, err := db.conn.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s%s", relName, where), args...)
	if err != nil {
		return 0, mapError(relName, fmt.Errorf("sqlstore: deleting from %s: %w", relName, err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, mapError(relName, fmt.Errorf("sqlstore: checking rows affected: %w", err))
	}
	return n, nil
}

// authorize resolves the relation and applies the denied list.
func (db *DB) authorize(relName string) (relation, error) {
	rel, err := lookupRelation(relName)
	if err != nil {
		return relation{}, err
	}
	if db.denied[relName] {
		return relation{}, &repository.Error{
			Code:     repository.CodeInsufficientPrivilege,
			Message:  fmt.Sprintf("permission denied for table %s", relName),
			Relation: relName,
		}
	}
	return rel, nil
}

// whereClause renders filters as " WHERE a = ? AND b IN (?, ?)". offset is
// the number of bind parameters already used by the statement.
func (db *DB) whereClause(relName string, rel relation, prefix string, filters []repository.Filter, offset int) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}
	conds := make([]string, 0, len(filters))
	args := make([]any, 0, len(filters))
	for _, f := range filters {
		c, err := lookupColumn(relName, rel, f.Column)
		if err != nil {
			return "", nil, err
		}
		switch f.Op {
		case repository.OpEq, "":
			v, err := encode(c, f.Value)
			if err != nil {
				return "", nil, &repository.Error{Code: repository.CodeInvalidRequest, Message: err.Error(), Relation: relName, Err: err}
			}
			args = append(args, v)
			conds = append(conds, fmt.Sprintf("%s%s = %s", prefix, c.name, db.placeholder(offset+len(args))))
		case repository.OpIn:
			values, ok := f.Value.([]any)
			if !ok {
				return "", nil, &repository.Error{Code: repository.CodeInvalidRequest, Message: fmt.Sprintf("in-filter on %s needs a list", c.name), Relation: relName}
			}
			if len(values) == 0 {
				// IN () is not valid everywhere; an empty set matches nothing.
				conds = append(conds, "1 = 0")
				continue
			}
			marks := make([]string, 0, len(values))
			for _, raw := range values {
				v, err := encode(c, raw)
				if err != nil {
					return "", nil, &repository.Error{Code: repository.CodeInvalidRequest, Message: err.Error(), Relation: relName, Err: err}
				}
				args = append(args, v)
				marks = append(marks, db.placeholder(offset+len(args)))
			}
			conds = append(conds, fmt.Sprintf("%s%s IN (%s)", prefix, c.name, strings.Join(marks, ", ")))
		default:
			return "", nil, &repository.Error{Code: repository.CodeInvalidRequest, Message: fmt.Sprintf("unsupported operator %q", f.Op), Relation: relName}
		}
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}
