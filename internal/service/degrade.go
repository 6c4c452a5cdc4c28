package service

import (
	"errors"
	"fmt"

	"github.com/sakif/studysync/internal/model"
	"github.com/sakif/studysync/internal/repository"
)

// DEGRADED MODE:
// Every remote call ends in one of three outcomes. A healthy call is
// followed by a refetch. An unavailable backend (missing relation, denied
// permission, unreachable server, or something that blew up in our own code)
// is absorbed by a local strategy that edits the in-memory collection. Any
// other failure belongs to the caller.

type outcome int

const (
	outcomeOK outcome = iota
	outcomeUnavailable
	outcomeFailed
)

func (o outcome) String() string {
	switch o {
	case outcomeOK:
		return "ok"
	case outcomeUnavailable:
		return "unavailable"
	default:
		return "failed"
	}
}

// unexpectedError marks a failure that is not the backend talking: a
// recovered panic or a row we could not decode.
type unexpectedError struct {
	cause error
}

func (e *unexpectedError) Error() string { return "unexpected: " + e.cause.Error() }
func (e *unexpectedError) Unwrap() error { return e.cause }

func unexpected(err error) error {
	if err == nil {
		return nil
	}
	return &unexpectedError{cause: err}
}

func recovered(r any) error {
	if err, ok := r.(error); ok {
		return unexpected(fmt.Errorf("panic: %w", err))
	}
	return unexpected(fmt.Errorf("panic: %v", r))
}

func classify(err error) outcome {
	if err == nil {
		return outcomeOK
	}
	var u *unexpectedError
	if repository.IsUnavailable(err) || errors.As(err, &u) {
		return outcomeUnavailable
	}
	return outcomeFailed
}

// strategy is a local edit of the collection applied in degraded mode.
type strategy func(groups []model.StudyGroup) []model.StudyGroup

// degradeCreate puts a locally synthesized group first.
func degradeCreate(g model.StudyGroup) strategy {
	return func(groups []model.StudyGroup) []model.StudyGroup {
		return append([]model.StudyGroup{g}, groups...)
	}
}

// degradeJoin adds me to the group unless a member with my id is already
// there.
func degradeJoin(groupID string, me model.Member) strategy {
	return func(groups []model.StudyGroup) []model.StudyGroup {
		for i := range groups {
			if groups[i].ID == groupID && !groups[i].HasMember(me.ID) {
				groups[i].Members = append(groups[i].Members, me)
			}
		}
		return groups
	}
}

// degradeLeave removes every member with my id from the group.
func degradeLeave(groupID string, me model.ProfileID) strategy {
	return func(groups []model.StudyGroup) []model.StudyGroup {
		for i := range groups {
			if groups[i].ID != groupID {
				continue
			}
			kept := make([]model.Member, 0, len(groups[i].Members))
			for _, m := range groups[i].Members {
				if m.ID != me {
					kept = append(kept, m)
				}
			}
			groups[i].Members = kept
		}
		return groups
	}
}
