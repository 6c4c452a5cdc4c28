package sqlstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sakif/studysync/internal/repository"
)

// newTestDB opens a provisioned in-memory store. The clock ticks one second
// per call so created_at ordering is deterministic.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	return openTestDB(t, Config{Driver: DriverSQLite, DSN: ":memory:", Provision: true})
}

func openTestDB(t *testing.T, cfg Config) *DB {
	t.Helper()
	db, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	db.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return db
}

func insertTestRow(t *testing.T, db *DB, relName string, row repository.Row) repository.Row {
	t.Helper()
	out, err := db.Insert(context.Background(), relName, row)
	if err != nil {
		t.Fatalf("Insert(%s) error = %v", relName, err)
	}
	return out
}

func codeOf(err error) string {
	var e *repository.Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// =========================================================================
// INSERT
// =========================================================================

func TestInsert_GeneratesIDAndTimestamp(t *testing.T) {
	db := newTestDB(t)

	row := insertTestRow(t, db, repository.RelationGroups, repository.Row{
		"name":       "Algo Club",
		"creator_id": "subject-1",
		"tags":       []string{"a", "b"},
		"is_private": true,
	})

	if id, _ := row["id"].(string); id == "" {
		t.Error("Insert() did not generate an id")
	}
	if ts, _ := row["created_at"].(string); ts == "" {
		t.Error("Insert() did not set created_at")
	}
	if row["is_private"] != true {
		t.Errorf("is_private = %v, want true", row["is_private"])
	}
	tags, ok := row["tags"].([]any)
	if !ok || len(tags) != 2 || tags[0] != "a" {
		t.Errorf("tags = %#v, want [a b]", row["tags"])
	}
}

func TestInsert_KeepsCallerID(t *testing.T) {
	db := newTestDB(t)

	row := insertTestRow(t, db, repository.RelationProfiles, repository.Row{
		"id":      "profile-1",
		"user_id": "subject-1",
		"name":    "Sarah",
		"year":    3,
	})
	if row["id"] != "profile-1" {
		t.Errorf("id = %v, want profile-1", row["id"])
	}
	if row["year"] != int64(3) {
		t.Errorf("year = %#v, want int64(3)", row["year"])
	}
}

func TestInsert_UniqueViolation(t *testing.T) {
	db := newTestDB(t)
	g := insertTestRow(t, db, repository.RelationGroups, repository.Row{"name": "g", "creator_id": "s"})

	m := repository.Row{"group_id": g["id"], "user_id": "s", "role": "member"}
	insertTestRow(t, db, repository.RelationMemberships, m)

	_, err := db.Insert(context.Background(), repository.RelationMemberships, m)
	if got := codeOf(err); got != repository.CodeUniqueViolation {
		t.Fatalf("duplicate membership code = %q, want %q (err: %v)", got, repository.CodeUniqueViolation, err)
	}
	if repository.IsUnavailable(err) {
		t.Error("unique violation must not classify as unavailable")
	}
}

func TestInsert_UnknownColumn(t *testing.T) {
	db := newTestDB(t)
	_, err := db.Insert(context.Background(), repository.RelationGroups, repository.Row{"name": "g", "bogus": 1})
	if got := codeOf(err); got != CodeUndefinedColumn {
		t.Errorf("code = %q, want %q", got, CodeUndefinedColumn)
	}
}

// =========================================================================
// SELECT
// =========================================================================

func TestSelect_FilterAndOrder(t *testing.T) {
	db := newTestDB(t)
	first := insertTestRow(t, db, repository.RelationGroups, repository.Row{"name": "first", "creator_id": "a"})
	second := insertTestRow(t, db, repository.RelationGroups, repository.Row{"name": "second", "creator_id": "b"})
	insertTestRow(t, db, repository.RelationGroups, repository.Row{"name": "third", "creator_id": "c"})

	rows, err := db.Select(context.Background(), repository.RelationGroups, repository.Query{
		Columns: []string{"id", "name"},
		Filters: []repository.Filter{repository.In("id", []any{first["id"], second["id"]})},
		Order:   []repository.Order{{Column: "created_at", Desc: true}},
	})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Select() returned %d rows, want 2", len(rows))
	}
	if rows[0]["name"] != "second" || rows[1]["name"] != "first" {
		t.Errorf("order = [%v %v], want [second first]", rows[0]["name"], rows[1]["name"])
	}
	if _, ok := rows[0]["creator_id"]; ok {
		t.Error("Select() returned a column that was not asked for")
	}
}

func TestSelect_EmptyInMatchesNothing(t *testing.T) {
	db := newTestDB(t)
	insertTestRow(t, db, repository.RelationGroups, repository.Row{"name": "g", "creator_id": "a"})

	rows, err := db.Select(context.Background(), repository.RelationGroups, repository.Query{
		Filters: []repository.Filter{repository.In("id", []string{})},
	})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("Select() returned %d rows, want 0", len(rows))
	}
}

func TestSelect_Embed(t *testing.T) {
	db := newTestDB(t)
	g := insertTestRow(t, db, repository.RelationGroups, repository.Row{"name": "g", "creator_id": "s1"})
	insertTestRow(t, db, repository.RelationProfiles, repository.Row{"user_id": "s1", "name": "Sarah", "email": "sarah@mit.edu"})
	insertTestRow(t, db, repository.RelationMemberships, repository.Row{"group_id": g["id"], "user_id": "s1", "role": "admin"})
	insertTestRow(t, db, repository.RelationMemberships, repository.Row{"group_id": g["id"], "user_id": "ghost", "role": "member"})

	rows, err := db.Select(context.Background(), repository.RelationMemberships, repository.Query{
		Columns: []string{"group_id", "user_id"},
		Filters: []repository.Filter{repository.In("group_id", []any{g["id"]})},
		Order:   []repository.Order{{Column: "joined_at"}},
		Embed: &repository.Embed{
			Relation:   repository.RelationProfiles,
			LocalKey:   "user_id",
			ForeignKey: "user_id",
			As:         "profiles",
			Columns:    []string{"id", "name", "email"},
		},
	})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Select() returned %d rows, want 2", len(rows))
	}

	profile, ok := rows[0]["profiles"].(repository.Row)
	if !ok {
		t.Fatalf("embedded profile = %#v, want a Row", rows[0]["profiles"])
	}
	if profile["name"] != "Sarah" {
		t.Errorf("embedded name = %v, want Sarah", profile["name"])
	}
	if rows[1]["profiles"] != nil {
		t.Errorf("unmatched embed = %#v, want nil", rows[1]["profiles"])
	}
}

// =========================================================================
// UPDATE / DELETE
// =========================================================================

func TestUpdate_RowsAffected(t *testing.T) {
	db := newTestDB(t)
	g := insertTestRow(t, db, repository.RelationGroups, repository.Row{"name": "old", "creator_id": "owner"})
	ctx := context.Background()

	n, err := db.Update(ctx, repository.RelationGroups, repository.Row{"name": "hijacked"},
		[]repository.Filter{repository.Eq("id", g["id"]), repository.Eq("creator_id", "intruder")})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if n != 0 {
		t.Errorf("non-owner update affected %d rows, want 0", n)
	}

	n, err = db.Update(ctx, repository.RelationGroups, repository.Row{"name": "new", "tags": []string{"x"}},
		[]repository.Filter{repository.Eq("id", g["id"]), repository.Eq("creator_id", "owner")})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if n != 1 {
		t.Errorf("owner update affected %d rows, want 1", n)
	}

	rows, err := db.Select(ctx, repository.RelationGroups, repository.Query{Filters: []repository.Filter{repository.Eq("id", g["id"])}})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if rows[0]["name"] != "new" {
		t.Errorf("name = %v, want new", rows[0]["name"])
	}
}

func TestUpdate_RequiresPatchAndFilter(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := db.Update(ctx, repository.RelationGroups, repository.Row{}, []repository.Filter{repository.Eq("id", "x")}); codeOf(err) != repository.CodeInvalidRequest {
		t.Errorf("empty patch error = %v, want invalid request", err)
	}
	if _, err := db.Update(ctx, repository.RelationGroups, repository.Row{"name": "x"}, nil); codeOf(err) != repository.CodeInvalidRequest {
		t.Errorf("missing filter error = %v, want invalid request", err)
	}
}

func TestDelete(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	g := insertTestRow(t, db, repository.RelationGroups, repository.Row{"name": "g", "creator_id": "owner"})
	insertTestRow(t, db, repository.RelationMemberships, repository.Row{"group_id": g["id"], "user_id": "owner", "role": "admin"})

	n, err := db.Delete(ctx, repository.RelationMemberships, []repository.Filter{repository.Eq("group_id", g["id"])})
	if err != nil || n != 1 {
		t.Fatalf("Delete(memberships) = %d, %v; want 1, nil", n, err)
	}
	n, err = db.Delete(ctx, repository.RelationGroups, []repository.Filter{repository.Eq("id", g["id"]), repository.Eq("creator_id", "owner")})
	if err != nil || n != 1 {
		t.Fatalf("Delete(group) = %d, %v; want 1, nil", n, err)
	}

	if _, err := db.Delete(ctx, repository.RelationGroups, nil); codeOf(err) != repository.CodeInvalidRequest {
		t.Errorf("unfiltered delete error = %v, want invalid request", err)
	}
}

// =========================================================================
// UNAVAILABLE BACKENDS
// =========================================================================

func TestUnprovisioned_ReportsUndefinedTable(t *testing.T) {
	db := openTestDB(t, Config{Driver: DriverSQLite, DSN: ":memory:"})

	_, err := db.Select(context.Background(), repository.RelationGroups, repository.Query{})
	if got := codeOf(err); got != repository.CodeUndefinedTable {
		t.Fatalf("code = %q, want %q (err: %v)", got, repository.CodeUndefinedTable, err)
	}
	if !repository.IsUnavailable(err) {
		t.Error("missing relation must classify as unavailable")
	}
}

func TestDenied_ReportsInsufficientPrivilege(t *testing.T) {
	db := openTestDB(t, Config{
		Driver:    DriverSQLite,
		DSN:       ":memory:",
		Provision: true,
		Denied:    []string{repository.RelationMemberships},
	})
	ctx := context.Background()

	if _, err := db.Select(ctx, repository.RelationGroups, repository.Query{}); err != nil {
		t.Fatalf("Select(groups) error = %v", err)
	}
	_, err := db.Insert(ctx, repository.RelationMemberships, repository.Row{"group_id": "g", "user_id": "u"})
	if got := codeOf(err); got != repository.CodeInsufficientPrivilege {
		t.Fatalf("code = %q, want %q", got, repository.CodeInsufficientPrivilege)
	}
	if !repository.IsUnavailable(err) {
		t.Error("denied relation must classify as unavailable")
	}
}

func TestUnknownRelation(t *testing.T) {
	db := newTestDB(t)

	_, err := db.Select(context.Background(), "snippets", repository.Query{})
	if got := codeOf(err); got != repository.CodeUndefinedTable {
		t.Errorf("code = %q, want %q", got, repository.CodeUndefinedTable)
	}
	_, err = db.Select(context.Background(), "groups; DROP TABLE profiles", repository.Query{})
	if got := codeOf(err); got != repository.CodeInvalidRequest {
		t.Errorf("code = %q, want %q", got, repository.CodeInvalidRequest)
	}
}

func TestInternalError_CarriesDriverMessage(t *testing.T) {
	db := newTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := db.Select(ctx, repository.RelationGroups, repository.Query{})
	if got := codeOf(err); got != repository.CodeInternal {
		t.Fatalf("code = %q, want %q (err: %v)", got, repository.CodeInternal, err)
	}
	if got := repository.Message(err); got != context.Canceled.Error() {
		t.Errorf("Message() = %q, want %q", got, context.Canceled.Error())
	}
	if !errors.Is(err, context.Canceled) {
		t.Error("the driver error must stay reachable through Unwrap")
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db := newTestDB(t)
	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}
