// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data, composed rather than inherited.
package model

// TWO IDENTIFIERS FOR ONE HUMAN:
// The backend assigns every signed-in principal an authentication-subject id.
// That id is the foreign key on every ownership and membership row.
// Separately, each principal has a profile row whose primary key is used for
// display and is what Member.ID carries.
//
// The lookup between them is the profiles relation itself:
//
//	profiles.user_id (SubjectID) → profiles.id (ProfileID)
//
// Writes always use SubjectID. Reads join profile rows back onto it.
// Keeping them as distinct named types makes the compiler refuse to mix them up.

// SubjectID is the authentication-subject identifier issued by the auth backend.
type SubjectID string

// ProfileID is the primary key of a profile record.
type ProfileID string

// String implements fmt.Stringer.
func (id SubjectID) String() string { return string(id) }

// String implements fmt.Stringer.
func (id ProfileID) String() string { return string(id) }

// IsZero reports whether the id is unset.
func (id SubjectID) IsZero() bool { return id == "" }
