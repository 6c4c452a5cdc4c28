package model

import "time"

// Membership roles stored on study_group_members.role.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Member is one person as shown inside a study group.
//
// JoinedAt and LastActive are synthesized on the client when a row is
// normalized; the backend does not track them.
type Member struct {
	ID          ProfileID `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	College     string    `json:"college"`
	Branch      string    `json:"branch"`
	Year        int       `json:"year"`
	IsVerified  bool      `json:"isVerified"`
	IsAnonymous bool      `json:"isAnonymous"`
	Avatar      *string   `json:"avatar,omitempty"`
	JoinedAt    time.Time `json:"joinedAt"`
	LastActive  time.Time `json:"lastActive"`
}

// User is the higher-level profile object of the signed-in person, as known
// locally by the auth layer. Any field may be empty; callers fall back to
// defaults (see AsMember).
type User struct {
	ID         ProfileID `json:"id"`
	Name       string    `json:"name,omitempty"`
	Email      string    `json:"email,omitempty"`
	College    string    `json:"college,omitempty"`
	Branch     string    `json:"branch,omitempty"`
	Year       int       `json:"year,omitempty"`
	IsVerified bool      `json:"isVerified,omitempty"`
	Avatar     *string   `json:"avatar,omitempty"`
}

// AsMember builds a Member from the user's best-known attributes.
// unknownName is used when the user has no name ("Unknown" when reading,
// "You" when the user is acting on their own behalf). Year defaults to 1.
func (u *User) AsMember(unknownName string, now time.Time) Member {
	m := Member{
		Name:       unknownName,
		Year:       1,
		JoinedAt:   now,
		LastActive: now,
	}
	if u == nil {
		return m
	}
	m.ID = u.ID
	if u.Name != "" {
		m.Name = u.Name
	}
	m.Email = u.Email
	m.College = u.College
	m.Branch = u.Branch
	if u.Year > 0 {
		m.Year = u.Year
	}
	m.IsVerified = u.IsVerified
	return m
}
