package service

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sakif/studysync/internal/model"
	"github.com/sakif/studysync/internal/repository"
)

// Name given to a creator nobody knows anything about.
const unknownCreatorName = "Unknown"

// ROW TYPES:
// The store hands back loosely typed rows keyed by snake_case columns. We
// decode each one into a small struct by marshaling the map to JSON and back,
// which gives us type coercion and null handling from encoding/json for free.

type groupRow struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Subject     string   `json:"subject"`
	Description string   `json:"description"`
	MaxMembers  int      `json:"max_members"`
	IsPrivate   bool     `json:"is_private"`
	Tags        []string `json:"tags"`
	CreatorID   string   `json:"creator_id"`
	CreatedAt   string   `json:"created_at"`
}

type profileRow struct {
	ID         string  `json:"id"`
	UserID     string  `json:"user_id"`
	Name       string  `json:"name"`
	Email      string  `json:"email"`
	College    string  `json:"college"`
	Branch     string  `json:"branch"`
	Year       int     `json:"year"`
	IsVerified bool    `json:"is_verified"`
	AvatarURL  *string `json:"avatar_url"`
}

type membershipRow struct {
	GroupID string      `json:"group_id"`
	UserID  string      `json:"user_id"`
	Profile *profileRow `json:"profiles"`
}

// joinedGroupRow is a group row with its creator and member profiles
// attached. Creator is nil when the creator's profile did not resolve.
type joinedGroupRow struct {
	groupRow
	Creator *profileRow
	Members []profileRow
}

// decodeRow converts a store row into T.
func decodeRow[T any](row repository.Row) (T, error) {
	var out T
	b, err := json.Marshal(row)
	if err != nil {
		return out, fmt.Errorf("encoding row: %w", err)
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, fmt.Errorf("decoding row: %w", err)
	}
	return out, nil
}

func decodeRows[T any](rows []repository.Row) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		v, err := decodeRow[T](r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// normalizeGroup maps one joined row to a StudyGroup. It never fails: the
// creator falls back to the current user (or a nameless stranger when there
// is none), and a creation time that does not parse is left zero.
func normalizeGroup(row joinedGroupRow, current *model.User, now time.Time) model.StudyGroup {
	members := make([]model.Member, 0, len(row.Members))
	for _, p := range row.Members {
		members = append(members, profileMember(p, now))
	}

	var createdBy model.Member
	if row.Creator != nil {
		createdBy = profileMember(*row.Creator, now)
	} else {
		createdBy = current.AsMember(unknownCreatorName, now)
	}

	tags := row.Tags
	if tags == nil {
		tags = []string{}
	}

	return model.StudyGroup{
		ID:          row.ID,
		Name:        row.Name,
		Subject:     row.Subject,
		Description: row.Description,
		Members:     members,
		MaxMembers:  row.MaxMembers,
		CreatedBy:   createdBy,
		IsPrivate:   row.IsPrivate,
		Tags:        tags,
		CreatedAt:   parseTime(row.CreatedAt),
	}
}

// profileMember maps a profile row to a Member. Join and activity times are
// not tracked remotely, so both are now.
func profileMember(p profileRow, now time.Time) model.Member {
	return model.Member{
		ID:          model.ProfileID(p.ID),
		Name:        p.Name,
		Email:       p.Email,
		College:     p.College,
		Branch:      p.Branch,
		Year:        p.Year,
		IsVerified:  p.IsVerified,
		IsAnonymous: false,
		Avatar:      p.AvatarURL,
		JoinedAt:    now,
		LastActive:  now,
	}
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	// Postgres timestamptz rendered as text.
	if t, err := time.Parse("2006-01-02 15:04:05.999999999-07", s); err == nil {
		return t
	}
	return time.Time{}
}
