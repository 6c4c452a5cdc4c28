package service

import (
	"time"

	"github.com/rs/xid"

	"github.com/sakif/studysync/internal/model"
)

// Name shown for the signed-in user acting on their own behalf when their
// profile has no name.
const selfName = "You"

const day = 24 * time.Hour

// fallbackMember builds one of the fixed roster entries.
func fallbackMember(id, name, email, college, branch string, year int, now time.Time) model.Member {
	return model.Member{
		ID:         model.ProfileID(id),
		Name:       name,
		Email:      email,
		College:    college,
		Branch:     branch,
		Year:       year,
		IsVerified: true,
		JoinedAt:   now,
		LastActive: now,
	}
}

// FallbackGroups returns the fixed dataset published when the backend is not
// provisioned. Every call builds fresh values, so callers may mutate the
// result freely.
func FallbackGroups(now time.Time) []model.StudyGroup {
	sarah := fallbackMember("1", "Sarah Chen", "sarah@mit.edu", "MIT", "Computer Science", 3, now)
	mike := fallbackMember("2", "Mike Johnson", "mike@stanford.edu", "Stanford", "Computer Science", 2, now)
	alex := fallbackMember("3", "Alex Rodriguez", "alex@caltech.edu", "Caltech", "Physics", 4, now)
	emily := fallbackMember("4", "Emily Wang", "emily@stanford.edu", "Stanford", "Mechanical Engineering", 3, now)

	return []model.StudyGroup{
		{
			ID:          "1",
			Name:        "Data Structures & Algorithms Mastery",
			Subject:     "Computer Science",
			Description: "Weekly problem-solving sessions focusing on coding interview preparation and algorithmic thinking.",
			Members:     []model.Member{sarah, mike},
			MaxMembers:  15,
			CreatedBy:   sarah,
			IsPrivate:   false,
			Tags:        []string{"DSA", "Coding", "Interview Prep"},
			CreatedAt:   now.Add(-7 * day),
		},
		{
			ID:          "2",
			Name:        "Quantum Physics Discussion Circle",
			Subject:     "Physics",
			Description: "Deep dive into quantum mechanics concepts, problem-solving, and research discussions.",
			Members:     []model.Member{alex},
			MaxMembers:  10,
			CreatedBy:   alex,
			IsPrivate:   true,
			Tags:        []string{"Quantum", "Physics", "Research"},
			CreatedAt:   now.Add(-14 * day),
		},
		{
			ID:          "3",
			Name:        "Mechanical Design Project Team",
			Subject:     "Mechanical Engineering",
			Description: "Collaborative group working on innovative mechanical design projects and CAD modeling.",
			Members:     []model.Member{emily},
			MaxMembers:  8,
			CreatedBy:   emily,
			IsPrivate:   false,
			Tags:        []string{"CAD", "Design", "Projects"},
			CreatedAt:   now.Add(-3 * day),
		},
	}
}

// synthesizeGroup builds a group that exists only in memory, for creation
// while the backend is not provisioned. The creator is its only member.
func synthesizeGroup(spec model.GroupSpec, user *model.User, now time.Time) model.StudyGroup {
	me := user.AsMember(selfName, now)
	tags := append([]string(nil), spec.Tags...)
	if tags == nil {
		tags = []string{}
	}
	return model.StudyGroup{
		ID:          xid.New().String(),
		Name:        spec.Name,
		Subject:     spec.Subject,
		Description: spec.Description,
		Members:     []model.Member{me},
		MaxMembers:  spec.MaxMembers,
		CreatedBy:   me,
		IsPrivate:   spec.IsPrivate,
		Tags:        tags,
		CreatedAt:   now,
	}
}
