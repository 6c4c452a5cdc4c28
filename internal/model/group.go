package model

import "time"

// StudyGroup is the canonical in-memory shape of a study group.
//
// Members is ordered by fetch but is semantically a set keyed by Member.ID.
// MaxMembers is advisory only: nothing in this module enforces it.
// CreatedBy is always populated, even when the creator's profile row is missing.
type StudyGroup struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Subject     string    `json:"subject"`
	Description string    `json:"description"`
	Members     []Member  `json:"members"`
	MaxMembers  int       `json:"maxMembers"`
	CreatedBy   Member    `json:"createdBy"`
	IsPrivate   bool      `json:"isPrivate"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"createdAt"`
}

// HasMember reports whether a member with the given id is in the roster.
func (g StudyGroup) HasMember(id ProfileID) bool {
	for _, m := range g.Members {
		if m.ID == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can't mutate shared slices.
func (g StudyGroup) Clone() StudyGroup {
	cp := g
	cp.Members = append([]Member(nil), g.Members...)
	cp.Tags = append([]string(nil), g.Tags...)
	if cp.Members == nil {
		cp.Members = []Member{}
	}
	if cp.Tags == nil {
		cp.Tags = []string{}
	}
	return cp
}

// GroupSpec holds the fields supplied when creating a group.
type GroupSpec struct {
	Name        string   `json:"name"`
	Subject     string   `json:"subject"`
	Description string   `json:"description"`
	MaxMembers  int      `json:"maxMembers"`
	IsPrivate   bool     `json:"isPrivate"`
	Tags        []string `json:"tags"`
}

// GroupPatch is a partial update. Nil fields are left unchanged.
type GroupPatch struct {
	Name        *string   `json:"name,omitempty"`
	Subject     *string   `json:"subject,omitempty"`
	Description *string   `json:"description,omitempty"`
	MaxMembers  *int      `json:"maxMembers,omitempty"`
	IsPrivate   *bool     `json:"isPrivate,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p GroupPatch) IsEmpty() bool {
	return p.Name == nil && p.Subject == nil && p.Description == nil &&
		p.MaxMembers == nil && p.IsPrivate == nil && p.Tags == nil
}
