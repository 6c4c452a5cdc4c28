// Package handler is the HTTP face of one session's study group collection.
//
// Handlers decode the request, call the Coordinator, and encode the result.
// They never touch the store or the session directly; all policy (fallback,
// ownership, validation) lives in the service layer.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/studysync/internal/apperror"
	"github.com/sakif/studysync/internal/collection"
	"github.com/sakif/studysync/internal/model"
	"github.com/sakif/studysync/internal/service"
)

// StudyGroups is the part of *service.Coordinator the handlers use.
type StudyGroups interface {
	Groups() *collection.Store[model.StudyGroup]
	Refetch(ctx context.Context) collection.State[model.StudyGroup]
	Create(ctx context.Context, spec model.GroupSpec) (*model.StudyGroup, error)
	Update(ctx context.Context, groupID string, patch model.GroupPatch) error
	Delete(ctx context.Context, groupID string) error
	Join(ctx context.Context, groupID string) error
	Leave(ctx context.Context, groupID string) error
	MembershipOf(groupID string) service.Membership
}

// GroupsResponse is the collection as the UI renders it. Error is null when
// the last fetch succeeded.
type GroupsResponse struct {
	Groups  []model.StudyGroup `json:"groups"`
	Loading bool               `json:"loading"`
	Error   *string            `json:"error"`
}

func groupsResponse(st collection.State[model.StudyGroup]) GroupsResponse {
	resp := GroupsResponse{Groups: st.Items, Loading: st.Loading}
	if st.Err != "" {
		msg := st.Err
		resp.Error = &msg
	}
	return resp
}

// GroupsHandler serves /api/groups.
type GroupsHandler struct {
	groups StudyGroups
	logger *slog.Logger
}

// NewGroupsHandler creates a new GroupsHandler.
func NewGroupsHandler(groups StudyGroups, logger *slog.Logger) *GroupsHandler {
	return &GroupsHandler{groups: groups, logger: logger}
}

// HandleList returns the current collection without touching the backend.
//
// HTTP: GET /api/groups
func (h *GroupsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, groupsResponse(h.groups.Groups().Snapshot()))
}

// HandleRefetch reloads the collection and returns it.
//
// HTTP: POST /api/groups/refetch
func (h *GroupsHandler) HandleRefetch(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, groupsResponse(h.groups.Refetch(r.Context())))
}

// HandleCreate creates a group owned by the signed-in user.
//
// HTTP: POST /api/groups
// REQUEST BODY: {"name": "Algo Club", "subject": "CS", "maxMembers": 5, "tags": ["a"]}
func (h *GroupsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var spec model.GroupSpec
	if err := decodeJSON(w, r, &spec); err != nil {
		writeError(w, err)
		return
	}

	group, err := h.groups.Create(r.Context(), spec)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

// HandleUpdate applies a partial update to a group the user owns and returns
// the refreshed group.
//
// HTTP: PATCH /api/groups/{id}
func (h *GroupsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := groupID(w, r)
	if !ok {
		return
	}
	var patch model.GroupPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, err)
		return
	}

	if err := h.groups.Update(r.Context(), id, patch); err != nil {
		writeError(w, err)
		return
	}
	if g, found := h.find(id); found {
		writeJSON(w, http.StatusOK, g)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDelete removes a group the user owns.
//
// HTTP: DELETE /api/groups/{id}
func (h *GroupsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := groupID(w, r)
	if !ok {
		return
	}
	if err := h.groups.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleJoin adds the user to a group. Responds with the resulting membership.
//
// HTTP: POST /api/groups/{id}/join
func (h *GroupsHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	h.membershipChange(w, r, h.groups.Join)
}

// HandleLeave removes the user from a group.
//
// HTTP: POST /api/groups/{id}/leave
func (h *GroupsHandler) HandleLeave(w http.ResponseWriter, r *http.Request) {
	h.membershipChange(w, r, h.groups.Leave)
}

// HandleMembership answers isMember/isOwner for one group.
//
// HTTP: GET /api/groups/{id}/membership
func (h *GroupsHandler) HandleMembership(w http.ResponseWriter, r *http.Request) {
	id, ok := groupID(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.groups.MembershipOf(id))
}

func (h *GroupsHandler) membershipChange(w http.ResponseWriter, r *http.Request, change func(context.Context, string) error) {
	id, ok := groupID(w, r)
	if !ok {
		return
	}
	if err := change(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.groups.MembershipOf(id))
}

func (h *GroupsHandler) find(id string) (model.StudyGroup, bool) {
	for _, g := range h.groups.Groups().Items() {
		if g.ID == id {
			return g, true
		}
	}
	return model.StudyGroup{}, false
}

// groupID reads the {id} path parameter, answering 400 when it is blank.
func groupID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, apperror.ValidationFailed("id", "study group id is required"))
		return "", false
	}
	return id, true
}
