package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/studysync/internal/model"
	"github.com/sakif/studysync/internal/repository"
)

func TestDecodeRow_CoercesLooseRows(t *testing.T) {
	row := repository.Row{
		"id":          "g1",
		"name":        "Algo",
		"max_members": int64(7),
		"is_private":  true,
		"tags":        []any{"a", "b"},
		"creator_id":  "s1",
		"created_at":  "2025-03-01T12:00:00Z",
		"extra":       "ignored",
	}

	g, err := decodeRow[groupRow](row)
	require.NoError(t, err)
	assert.Equal(t, groupRow{
		ID:         "g1",
		Name:       "Algo",
		MaxMembers: 7,
		IsPrivate:  true,
		Tags:       []string{"a", "b"},
		CreatorID:  "s1",
		CreatedAt:  "2025-03-01T12:00:00Z",
	}, g)
}

func TestDecodeRow_NestedProfile(t *testing.T) {
	rows := []repository.Row{
		{"group_id": "g1", "user_id": "s1", "profiles": repository.Row{"id": "p1", "name": "Maya", "year": int64(2)}},
		{"group_id": "g1", "user_id": "s2", "profiles": nil},
	}

	got, err := decodeRows[membershipRow](rows)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.NotNil(t, got[0].Profile)
	assert.Equal(t, "p1", got[0].Profile.ID)
	assert.Equal(t, 2, got[0].Profile.Year)
	assert.Nil(t, got[1].Profile)
}

func TestDecodeRows_RejectsWrongShape(t *testing.T) {
	_, err := decodeRows[groupRow]([]repository.Row{{"tags": "not-a-list"}})
	assert.Error(t, err)
}

func TestNormalizeGroup(t *testing.T) {
	avatar := "https://img/p1.png"
	row := joinedGroupRow{
		groupRow: groupRow{
			ID:         "g1",
			Name:       "Algo",
			Subject:    "CS",
			MaxMembers: 5,
			CreatedAt:  "2025-02-01T08:30:00.123Z",
		},
		Creator: &profileRow{ID: "p1", Name: "Maya", Year: 2, IsVerified: true, AvatarURL: &avatar},
		Members: []profileRow{{ID: "p1", Name: "Maya"}, {ID: "p2", Name: "Omar"}},
	}

	g := normalizeGroup(row, nil, testNow)

	assert.Equal(t, "g1", g.ID)
	assert.Equal(t, model.ProfileID("p1"), g.CreatedBy.ID)
	assert.Equal(t, &avatar, g.CreatedBy.Avatar)
	assert.True(t, g.CreatedBy.IsVerified)
	assert.Equal(t, testNow, g.CreatedBy.JoinedAt)
	require.Len(t, g.Members, 2)
	assert.Equal(t, model.ProfileID("p2"), g.Members[1].ID)
	assert.NotNil(t, g.Tags)
	assert.Empty(t, g.Tags)
	assert.Equal(t, time.Date(2025, 2, 1, 8, 30, 0, 123e6, time.UTC), g.CreatedAt.UTC())
}

func TestNormalizeGroup_CreatorFallbacks(t *testing.T) {
	row := joinedGroupRow{groupRow: groupRow{ID: "g1"}}

	t.Run("current user", func(t *testing.T) {
		g := normalizeGroup(row, &model.User{ID: "p9", Email: "x@uni.edu"}, testNow)
		assert.Equal(t, model.ProfileID("p9"), g.CreatedBy.ID)
		assert.Equal(t, "Unknown", g.CreatedBy.Name)
		assert.Equal(t, "x@uni.edu", g.CreatedBy.Email)
		assert.Equal(t, 1, g.CreatedBy.Year)
	})

	t.Run("nobody signed in", func(t *testing.T) {
		g := normalizeGroup(row, nil, testNow)
		assert.Empty(t, g.CreatedBy.ID)
		assert.Equal(t, "Unknown", g.CreatedBy.Name)
		assert.NotNil(t, g.Members)
	})
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2025-03-01T12:00:00Z", testNow},
		{"2025-03-01T13:00:00+01:00", testNow},
		{"2025-03-01 12:00:00.5+00", testNow.Add(500 * time.Millisecond)},
		{"", time.Time{}},
		{"yesterday", time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := parseTime(tt.in)
			assert.True(t, tt.want.Equal(got), "parseTime(%q) = %v, want %v", tt.in, got, tt.want)
		})
	}
}
