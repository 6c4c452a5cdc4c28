package sqlstore

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/sakif/studysync/internal/repository"
)

// kind tells the store how a column is encoded on the way in and decoded on
// the way out, so rows look the same whichever driver produced them.
type kind int

const (
	kindText kind = iota
	kindInt
	kindBool
	kindJSON // stored as JSON text, returned decoded
	kindTime // stored as fixed-width RFC 3339 text, returned as string
)

type column struct {
	name string
	kind kind
}

type relation struct {
	columns []column
	// generated columns are filled on insert when the caller leaves them out
	idColumn   string
	timeColumn string
}

func (r relation) column(name string) (column, bool) {
	for _, c := range r.columns {
		if c.name == name {
			return c, true
		}
	}
	return column{}, false
}

func (r relation) names() []string {
	out := make([]string, len(r.columns))
	for i, c := range r.columns {
		out[i] = c.name
	}
	return out
}

// catalog mirrors the embedded migrations.
var catalog = map[string]relation{
	repository.RelationProfiles: {
		columns: []column{
			{"id", kindText},
			{"user_id", kindText},
			{"name", kindText},
			{"email", kindText},
			{"college", kindText},
			{"branch", kindText},
			{"year", kindInt},
			{"is_verified", kindBool},
			{"avatar_url", kindText},
			{"created_at", kindTime},
		},
		idColumn:   "id",
		timeColumn: "created_at",
	},
	repository.RelationGroups: {
		columns: []column{
			{"id", kindText},
			{"name", kindText},
			{"subject", kindText},
			{"description", kindText},
			{"max_members", kindInt},
			{"is_private", kindBool},
			{"tags", kindJSON},
			{"creator_id", kindText},
			{"created_at", kindTime},
		},
		idColumn:   "id",
		timeColumn: "created_at",
	},
	repository.RelationMemberships: {
		columns: []column{
			{"id", kindText},
			{"group_id", kindText},
			{"user_id", kindText},
			{"role", kindText},
			{"joined_at", kindTime},
		},
		idColumn:   "id",
		timeColumn: "joined_at",
	},
}

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func lookupRelation(name string) (relation, error) {
	if !identRe.MatchString(name) {
		return relation{}, &repository.Error{
			Code:     repository.CodeInvalidRequest,
			Message:  fmt.Sprintf("invalid relation name %q", name),
			Relation: name,
		}
	}
	rel, ok := catalog[name]
	if !ok {
		return relation{}, &repository.Error{
			Code:     repository.CodeUndefinedTable,
			Message:  fmt.Sprintf("relation %q does not exist", name),
			Relation: name,
		}
	}
	return rel, nil
}

func lookupColumn(relName string, rel relation, name string) (column, error) {
	c, ok := rel.column(name)
	if !ok {
		return column{}, &repository.Error{
			Code:     CodeUndefinedColumn,
			Message:  fmt.Sprintf("column %q of %s is unknown", name, relName),
			Relation: relName,
		}
	}
	return c, nil
}

// CodeUndefinedColumn is reported for filters or patches naming unknown columns.
const CodeUndefinedColumn = "42703"

// encode converts a caller value into a bind parameter for the column.
func encode(c column, v any) (any, error) {
	if v == nil {
		if c.kind == kindJSON {
			return "[]", nil
		}
		return nil, nil
	}
	switch c.kind {
	case kindText:
		switch x := v.(type) {
		case string:
			return x, nil
		case *string:
			if x == nil {
				return nil, nil
			}
			return *x, nil
		case fmt.Stringer:
			return x.String(), nil
		}
		return fmt.Sprint(v), nil
	case kindInt:
		return toInt64(v)
	case kindBool:
		switch x := v.(type) {
		case bool:
			return x, nil
		case int64:
			return x != 0, nil
		case int:
			return x != 0, nil
		}
		return nil, fmt.Errorf("column %s: cannot use %T as bool", c.name, v)
	case kindJSON:
		if s, ok := v.(string); ok && json.Valid([]byte(s)) {
			return s, nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.name, err)
		}
		return string(b), nil
	case kindTime:
		switch x := v.(type) {
		case time.Time:
			return formatTime(x), nil
		case string:
			return x, nil
		}
		return nil, fmt.Errorf("column %s: cannot use %T as time", c.name, v)
	}
	return v, nil
}

// decode converts a scanned driver value into the row representation.
func decode(c column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	switch c.kind {
	case kindInt:
		return toInt64(v)
	case kindBool:
		switch x := v.(type) {
		case bool:
			return x, nil
		case int64:
			return x != 0, nil
		case string:
			return strconv.ParseBool(x)
		}
	case kindJSON:
		s, ok := v.(string)
		if !ok {
			return v, nil
		}
		var out any
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil, fmt.Errorf("column %s: decoding json: %w", c.name, err)
		}
		return out, nil
	case kindTime:
		if t, ok := v.(time.Time); ok {
			return formatTime(t), nil
		}
	}
	return v, nil
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case float64:
		return int64(x), nil
	case string:
		return strconv.ParseInt(x, 10, 64)
	case json.Number:
		return x.Int64()
	}
	return 0, fmt.Errorf("cannot use %T as integer", v)
}
